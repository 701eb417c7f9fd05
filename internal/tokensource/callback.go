package tokensource

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"os"
	"time"
)

// CallbackServer is a Prompter that captures the redirect itself by listening
// on the redirect URI's host and port, so the user does not have to paste it.
type CallbackServer struct {
	// Out defaults to os.Stderr.
	Out io.Writer
	// Open is optional. Failures are logged and the server keeps waiting.
	Open OpenFunc
	// Listener overrides the listener derived from the redirect URI.
	Listener net.Listener

	redirect *url.URL
}

// Compile-time check to ensure CallbackServer implements Prompter
var _ Prompter = (*CallbackServer)(nil)

// NewCallbackServer validates that redirectURI is a plain http URL this
// process can listen on.
func NewCallbackServer(redirectURI string) (*CallbackServer, error) {
	u, err := url.Parse(redirectURI)
	if err != nil {
		return nil, fmt.Errorf("invalid redirect URI: %w", err)
	}
	if u.Scheme != "http" {
		return nil, fmt.Errorf("callback listener requires an http redirect URI, got %q", u.Scheme)
	}
	if u.Host == "" {
		return nil, errors.New("redirect URI has no host")
	}
	return &CallbackServer{redirect: u}, nil
}

// Callback implements Prompter. It blocks until the first request carrying
// OAuth2 callback parameters arrives or ctx ends.
func (s *CallbackServer) Callback(ctx context.Context, authURL string) (string, error) {
	out := s.Out
	if out == nil {
		out = os.Stderr
	}

	listener := s.Listener
	if listener == nil {
		address := s.redirect.Host
		if s.redirect.Port() == "" {
			address = net.JoinHostPort(s.redirect.Hostname(), "80")
		}
		var err error
		listener, err = net.Listen("tcp", address)
		if err != nil {
			return "", fmt.Errorf("failed to listen on %s: %w", address, err)
		}
	}

	resultCh := make(chan string, 1)
	server := &http.Server{
		Handler:           s.handler(resultCh),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		if err := server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.ErrorContext(ctx, "callback listener failed", "error", err)
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			_ = server.Close()
		}
	}()

	_, _ = fmt.Fprintln(out, "Please go to this URL to authorize the application:")
	_, _ = fmt.Fprintln(out, authURL)
	_, _ = fmt.Fprintf(out, "Waiting for the redirect on %s ...\n", s.redirect.String())

	if s.Open != nil {
		if err := s.Open(authURL); err != nil {
			slog.WarnContext(ctx, "failed to open browser", "error", err)
		}
	}

	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case callbackURL := <-resultCh:
		return callbackURL, nil
	}
}

func (s *CallbackServer) handler(resultCh chan<- string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		query := r.URL.Query()
		if !query.Has("state") && !query.Has("code") && !query.Has("error") && !query.Has("error_description") {
			http.NotFound(w, r)
			return
		}

		callback := *s.redirect
		callback.Path = r.URL.Path
		callback.RawQuery = r.URL.RawQuery

		select {
		case resultCh <- callback.String():
			_, _ = io.WriteString(w, "Authorization received. You can close this window.\n")
		default:
			http.Error(w, "authorization already received", http.StatusConflict)
		}
	})
}
