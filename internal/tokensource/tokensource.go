package tokensource

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/oauth2"

	"github.com/florianilch/tradestation-auth/internal/auth"
)

// DefaultTimeout bounds a single token endpoint round trip.
const DefaultTimeout = 30 * time.Second

var tracer = otel.Tracer("github.com/florianilch/tradestation-auth/internal/tokensource")

// Option configures an Authorizer or a Manager.
type Option func(*config)

// config holds settings shared by Authorizer and Manager.
type config struct {
	baseTransport http.RoundTripper
	timeout       time.Duration
	audience      string
	now           func() time.Time
	refreshMargin time.Duration
	prompter      Prompter
}

func newConfig(opts []Option) *config {
	cfg := &config{
		baseTransport: http.DefaultTransport,
		timeout:       DefaultTimeout,
		audience:      Audience,
		now:           time.Now,
	}
	for _, opt := range opts {
		opt(cfg)
	}
	return cfg
}

// WithTransport sets a custom base transport for token endpoint requests.
// If not provided, http.DefaultTransport is used.
func WithTransport(transport http.RoundTripper) Option {
	return func(c *config) {
		c.baseTransport = transport
	}
}

// WithTimeout bounds each token endpoint request. Zero disables the bound.
func WithTimeout(timeout time.Duration) Option {
	return func(c *config) {
		c.timeout = timeout
	}
}

// WithAudience overrides the audience sent with the authorization request.
func WithAudience(audience string) Option {
	return func(c *config) {
		c.audience = audience
	}
}

// WithClock replaces time.Now, used for freshness checks and expiry computation.
func WithClock(now func() time.Time) Option {
	return func(c *config) {
		c.now = now
	}
}

// WithRefreshMargin makes the Manager refresh tokens this long before they expire.
func WithRefreshMargin(margin time.Duration) Option {
	return func(c *config) {
		c.refreshMargin = margin
	}
}

// WithPrompter sets how the Authorizer obtains the redirect URL from the user.
func WithPrompter(p Prompter) Option {
	return func(c *config) {
		c.prompter = p
	}
}

// oauthContext injects the HTTP client used for token endpoint requests.
// The oauth2 package picks custom clients up via the oauth2.HTTPClient context key.
func (c *config) oauthContext(ctx context.Context) context.Context {
	httpClient := &http.Client{
		Timeout:   c.timeout,
		Transport: c.baseTransport,
	}
	return context.WithValue(ctx, oauth2.HTTPClient, httpClient)
}

func newOAuth2Config(creds auth.Credentials, endpoint oauth2.Endpoint) *oauth2.Config {
	return &oauth2.Config{
		ClientID:     creds.ClientKey,
		ClientSecret: creds.ClientSecret,
		RedirectURL:  creds.RedirectURI,
		Scopes:       creds.Scopes(),
		Endpoint:     endpoint,
	}
}

// fromOAuth2 maps a token endpoint response onto auth.Token.
//
// The lifetime is read from access_token_expires_in or expires_in, the absolute
// expiry from access_token_expires_at or expires_at, falling back to issued +
// lifetime. A response without refresh_token keeps previousRefresh.
func fromOAuth2(tok *oauth2.Token, issued time.Time, previousRefresh string) (auth.Token, error) {
	t := auth.Token{
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
	}
	if t.RefreshToken == "" {
		t.RefreshToken = previousRefresh
	}

	if v, ok := extraInt(tok, "access_token_expires_in", "expires_in"); ok {
		t.ExpiresIn = v
	}

	switch v, ok := extraInt(tok, "access_token_expires_at", "expires_at"); {
	case ok:
		t.ExpiresAt = v
	case t.ExpiresIn > 0:
		t.ExpiresAt = issued.Unix() + t.ExpiresIn
	case !tok.Expiry.IsZero():
		t.ExpiresAt = tok.Expiry.Unix()
	}

	if err := t.Validate(); err != nil {
		return auth.Token{}, err
	}
	return t, nil
}

// extraInt returns the first of keys present in the raw response as an integer.
func extraInt(tok *oauth2.Token, keys ...string) (int64, bool) {
	for _, key := range keys {
		switch v := tok.Extra(key).(type) {
		case float64:
			return int64(v), true
		case int64:
			return v, true
		case int:
			return int64(v), true
		case json.Number:
			if n, err := v.Int64(); err == nil {
				return n, true
			}
		case string:
			if n, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64); err == nil {
				return n, true
			}
		}
	}
	return 0, false
}

// grantError classifies a failed token endpoint call. Rejections carry the
// HTTP status and error_description, timeouts become auth.KindNetworkTimeout.
func grantError(err error, kind auth.Kind) *auth.Error {
	var authErr *auth.Error
	if errors.As(err, &authErr) {
		return authErr
	}

	var retrieveErr *oauth2.RetrieveError
	if errors.As(err, &retrieveErr) {
		e := &auth.Error{Kind: kind, Err: err}
		if retrieveErr.Response != nil {
			e.Status = retrieveErr.Response.StatusCode
		}
		e.Detail = retrieveErr.ErrorDescription
		if e.Detail == "" {
			e.Detail = retrieveErr.ErrorCode
		}
		return e
	}

	if auth.IsTimeout(err) {
		return &auth.Error{Kind: auth.KindNetworkTimeout, Err: err}
	}

	return &auth.Error{Kind: kind, Err: err}
}

func recordError(span trace.Span, err error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}
