package proxy

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/http/httputil"
	"net/url"
	"time"

	"golang.org/x/oauth2"

	"github.com/florianilch/tradestation-auth/internal/auth"
)

// Proxy is a local reverse proxy that forwards every request to the brokerage
// API with a fresh bearer token attached.
type Proxy struct {
	handler http.Handler
	server  *http.Server
}

// Compile-time check that Proxy implements http.Handler
var _ http.Handler = (*Proxy)(nil)

// Option configures a Proxy.
type Option func(*config)

type config struct {
	baseURL       string
	baseTransport http.RoundTripper
}

// WithBaseURL sets the upstream API root.
func WithBaseURL(baseURL string) Option {
	return func(c *config) {
		c.baseURL = baseURL
	}
}

// WithBaseTransport sets the RoundTripper beneath the bearer token transport.
func WithBaseTransport(rt http.RoundTripper) Option {
	return func(c *config) {
		c.baseTransport = rt
	}
}

// New creates a proxy authenticating upstream requests with ts.
func New(ts oauth2.TokenSource, opts ...Option) (*Proxy, error) {
	if ts == nil {
		return nil, fmt.Errorf("missing token source")
	}

	cfg := &config{baseTransport: http.DefaultTransport}
	for _, opt := range opts {
		opt(cfg)
	}

	upstream, err := url.Parse(cfg.baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid upstream URL: %w", err)
	}
	if upstream.Scheme == "" || upstream.Host == "" {
		return nil, fmt.Errorf("upstream URL must be absolute: %q", cfg.baseURL)
	}

	transport := &oauth2.Transport{Source: ts, Base: cfg.baseTransport}

	reverseProxyHandler := &httputil.ReverseProxy{
		Rewrite: func(pr *httputil.ProxyRequest) {
			pr.SetURL(upstream)
			// Callers never supply their own credentials
			pr.Out.Header.Del("Authorization")
			pr.Out.Header.Del("Cookie")
		},
		// FlushInterval: -1 flushes immediately, required for the API's streaming endpoints.
		FlushInterval: -1,
		Transport:     transport,
		ErrorHandler:  upstreamError,
	}

	logger := slog.Default()

	return &Proxy{
		handler: applyMiddlewares(reverseProxyHandler,
			RequestID,
			Logging(logger),
			Recovery,
		),
	}, nil
}

// upstreamError reports token failures as 502 for the affected request only.
func upstreamError(w http.ResponseWriter, r *http.Request, err error) {
	ctx := r.Context()

	var authErr *auth.Error
	if errors.As(err, &authErr) {
		slog.WarnContext(ctx, "no usable access token for request", "kind", authErr.Kind.String())
		writeJSONError(ctx, w, r, "upstream authentication failed: "+authErr.Kind.String(), http.StatusBadGateway)
		return
	}

	if errors.Is(err, context.Canceled) {
		return
	}

	slog.ErrorContext(ctx, "upstream request failed", "error", err)
	writeJSONError(ctx, w, r, "upstream request failed", http.StatusBadGateway)
}

// ServeHTTP implements http.Handler interface
func (p *Proxy) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	p.handler.ServeHTTP(w, r)
}

// Start starts the HTTP server in the background and returns immediately.
// Returns a channel for runtime errors and a startup error if any.
//
// Startup errors (port in use, permission denied) are returned immediately.
// Runtime errors (network failures during operation) are sent to the error channel.
//
// The caller is responsible for calling Shutdown() to stop the server.
func (p *Proxy) Start(ctx context.Context, address string) (<-chan error, error) {
	// Create listener synchronously to catch port-in-use errors immediately
	listener, err := net.Listen("tcp", address)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on %s: %w", address, err)
	}

	p.server = &http.Server{
		Handler:      p,
		ReadTimeout:  30 * time.Second, // Inbound: Read entire client request
		WriteTimeout: 15 * time.Minute, // Inbound: allows long streaming responses, still bounded
		IdleTimeout:  90 * time.Second, // Inbound: Keep-alive wait for next request from client
		BaseContext: func(net.Listener) context.Context {
			return ctx
		},
	}

	errCh := make(chan error, 1)

	go func() {
		err := p.server.Serve(listener)
		// Only report error if not from graceful shutdown
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	return errCh, nil
}

// Shutdown performs graceful shutdown of the HTTP server.
// Returns error if shutdown fails or times out.
func (p *Proxy) Shutdown(ctx context.Context) error {
	if p.server == nil {
		return nil
	}

	if err := p.server.Shutdown(ctx); err != nil {
		// Graceful shutdown failed - force close
		_ = p.server.Close()
		return fmt.Errorf("graceful shutdown failed: %w", err)
	}

	return nil
}
