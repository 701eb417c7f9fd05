package proxy

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
)

// ErrorResponse is the body returned when the proxy itself fails a request.
type ErrorResponse struct {
	Error     string `json:"error"`
	RequestID string `json:"request_id,omitempty"`
}

// writeJSONError writes a JSON error response with the given status code.
// Encoding failures are logged; the client may then see a partial body.
func writeJSONError(ctx context.Context, w http.ResponseWriter, r *http.Request, message string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	body := ErrorResponse{Error: message, RequestID: r.Header.Get(RequestIDHeader)}
	if err := json.NewEncoder(w).Encode(body); err != nil {
		slog.ErrorContext(ctx, "failed to encode JSON response", "error", err)
	}
}
