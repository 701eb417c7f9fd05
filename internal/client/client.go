// Package client provides the handle application code uses to call the
// brokerage API with a continuously refreshed bearer token.
package client

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/oauth2"

	"github.com/florianilch/tradestation-auth/internal/tokensource"
)

// TokenSource supplies fresh access tokens. Any error is fatal to the one
// request that needed the token, never to the process.
type TokenSource interface {
	oauth2.TokenSource
	AccessToken(ctx context.Context) (string, error)
}

// Option configures a Client.
type Option func(*config)

type config struct {
	paperTrade     bool
	baseURL        string
	transportKind  TransportKind
	maxConcurrency int
	timeout        time.Duration
	baseTransport  http.RoundTripper
}

// WithPaperTrade selects the simulated trading environment.
func WithPaperTrade(paperTrade bool) Option {
	return func(c *config) {
		c.paperTrade = paperTrade
	}
}

// WithBaseURL overrides the API base URL derived from the paper trade setting.
func WithBaseURL(baseURL string) Option {
	return func(c *config) {
		c.baseURL = baseURL
	}
}

// WithTransport selects sync or async request execution. maxConcurrency
// bounds in-flight async requests.
func WithTransport(kind TransportKind, maxConcurrency int) Option {
	return func(c *config) {
		c.transportKind = kind
		c.maxConcurrency = maxConcurrency
	}
}

// WithTimeout bounds each API request.
func WithTimeout(timeout time.Duration) Option {
	return func(c *config) {
		c.timeout = timeout
	}
}

// WithBaseTransport sets the RoundTripper beneath the bearer token transport.
func WithBaseTransport(rt http.RoundTripper) Option {
	return func(c *config) {
		c.baseTransport = rt
	}
}

// Client is an authenticated handle on the brokerage API.
type Client struct {
	paperTrade bool
	baseURL    *url.URL
	tokens     TokenSource
	httpClient *http.Client
	transport  Transport
}

// New creates a Client. ctx bounds the lifetime of an async transport.
func New(ctx context.Context, tokens TokenSource, opts ...Option) (*Client, error) {
	if tokens == nil {
		return nil, fmt.Errorf("missing token source")
	}

	cfg := &config{
		paperTrade:    true,
		transportKind: TransportSync,
		timeout:       tokensource.DefaultTimeout,
		baseTransport: http.DefaultTransport,
	}
	for _, opt := range opts {
		opt(cfg)
	}

	rawBaseURL := cfg.baseURL
	if rawBaseURL == "" {
		rawBaseURL = tokensource.LiveBaseURL
		if cfg.paperTrade {
			rawBaseURL = tokensource.PaperBaseURL
		}
	}
	baseURL, err := url.Parse(strings.TrimSuffix(rawBaseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("invalid base URL: %w", err)
	}

	httpClient := &http.Client{
		Timeout:   cfg.timeout,
		Transport: &oauth2.Transport{Source: tokens, Base: cfg.baseTransport},
	}

	var transport Transport
	switch cfg.transportKind {
	case TransportSync:
		transport = NewSyncTransport(httpClient)
	case TransportAsync:
		transport = NewAsyncTransport(ctx, httpClient, cfg.maxConcurrency)
	default:
		return nil, fmt.Errorf("unsupported transport: %s", cfg.transportKind)
	}

	return &Client{
		paperTrade: cfg.paperTrade,
		baseURL:    baseURL,
		tokens:     tokens,
		httpClient: httpClient,
		transport:  transport,
	}, nil
}

// AccessToken returns a fresh access token for callers that sign requests themselves.
func (c *Client) AccessToken(ctx context.Context) (string, error) {
	return c.tokens.AccessToken(ctx)
}

// TokenSource returns the token source requests are authenticated with.
func (c *Client) TokenSource() TokenSource {
	return c.tokens
}

// PaperTrade reports whether the client targets the simulated environment.
func (c *Client) PaperTrade() bool {
	return c.paperTrade
}

// BaseURL returns the API root requests are resolved against.
func (c *Client) BaseURL() string {
	return c.baseURL.String()
}

// HTTPClient returns an *http.Client that attaches bearer tokens.
func (c *Client) HTTPClient() *http.Client {
	return c.httpClient
}

// NewRequest creates a request for path relative to BaseURL, tagged with a
// fresh X-Request-ID. path may carry a query string.
func (c *Client) NewRequest(ctx context.Context, method, path string, body io.Reader) (*http.Request, error) {
	rel, err := url.Parse(path)
	if err != nil {
		return nil, fmt.Errorf("invalid request path: %w", err)
	}
	target := c.baseURL.JoinPath(rel.Path)
	target.RawQuery = rel.RawQuery
	req, err := http.NewRequestWithContext(ctx, method, target.String(), body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-ID", uuid.NewString())
	return req, nil
}

// Submit executes req through the selected transport.
func (c *Client) Submit(req *http.Request, handle ResponseHandler) error {
	slog.DebugContext(req.Context(), "submitting request",
		"method", req.Method, "path", req.URL.Path, "request_id", req.Header.Get("X-Request-ID"))
	return c.transport.Submit(req, handle)
}

// Wait blocks until all submitted requests completed.
func (c *Client) Wait() error {
	return c.transport.Wait()
}
