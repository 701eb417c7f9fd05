package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"

	"github.com/florianilch/tradestation-auth/internal/client"
)

// FetchResult is one line of Fetch output.
type FetchResult struct {
	Path      string          `json:"path"`
	Status    int             `json:"status"`
	RequestID string          `json:"request_id"`
	Body      json.RawMessage `json:"body,omitempty"`
}

// Fetch issues a GET for every path through the client's transport and writes
// each response to out as one JSON line, in completion order.
//
// A failed request, including one that could not get a token, does not stop
// the others; all failures are returned joined.
func Fetch(ctx context.Context, apiClient *client.Client, paths []string, out io.Writer) error {
	var (
		mu   sync.Mutex
		errs []error
	)
	enc := json.NewEncoder(out)

	for _, path := range paths {
		req, err := apiClient.NewRequest(ctx, http.MethodGet, path, nil)
		if err != nil {
			return fmt.Errorf("building request for %s: %w", path, err)
		}
		requestID := req.Header.Get("X-Request-ID")

		handle := func(resp *http.Response) error {
			body, err := io.ReadAll(resp.Body)
			if err != nil {
				return fmt.Errorf("GET %s: reading body: %w", path, err)
			}

			result := FetchResult{Path: path, Status: resp.StatusCode, RequestID: requestID}
			if json.Valid(body) {
				result.Body = body
			} else if len(body) > 0 {
				quoted, _ := json.Marshal(string(body))
				result.Body = quoted
			}

			mu.Lock()
			err = enc.Encode(result)
			mu.Unlock()
			if err != nil {
				return fmt.Errorf("writing result for %s: %w", path, err)
			}

			if resp.StatusCode >= http.StatusBadRequest {
				return fmt.Errorf("GET %s: unexpected status %d", path, resp.StatusCode)
			}
			return nil
		}

		// Synchronous transports report per-request errors here; later paths still run
		if err := apiClient.Submit(req, handle); err != nil {
			errs = append(errs, err)
		}
	}

	errs = append(errs, apiClient.Wait())
	return errors.Join(errs...)
}
