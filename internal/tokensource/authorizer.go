package tokensource

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"errors"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"golang.org/x/oauth2"

	"github.com/florianilch/tradestation-auth/internal/auth"
)

// Authorizer drives the interactive OAuth2 authorization-code grant.
type Authorizer struct {
	oauth2Config *oauth2.Config
	cfg          *config
}

// NewAuthorizer creates an Authorizer for the given credentials and endpoint.
func NewAuthorizer(creds auth.Credentials, endpoint oauth2.Endpoint, opts ...Option) *Authorizer {
	return &Authorizer{
		oauth2Config: newOAuth2Config(creds, endpoint),
		cfg:          newConfig(opts),
	}
}

// NewState returns a single-use anti-forgery state value with 128+ bits of entropy.
func NewState() string {
	return rand.Text()
}

// AuthCodeURL builds the authorization URL the user has to visit.
func (a *Authorizer) AuthCodeURL(state string) string {
	return a.oauth2Config.AuthCodeURL(state, oauth2.SetAuthURLParam("audience", a.cfg.audience))
}

// Run performs the complete flow: it generates a state, asks the prompter for
// the redirect URL, validates it and exchanges the code. The returned token is
// not persisted.
func (a *Authorizer) Run(ctx context.Context) (auth.Token, error) {
	if a.cfg.prompter == nil {
		return auth.Token{}, errors.New("no prompter configured for authorization flow")
	}

	state := NewState()
	authURL := a.AuthCodeURL(state)

	slog.WarnContext(ctx, "authorization required, waiting for redirect URL")

	callbackURL, err := a.cfg.prompter.Callback(ctx, authURL)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return auth.Token{}, &auth.Error{Kind: auth.KindUserCancelled, Err: err}
		}
		return auth.Token{}, err
	}

	code, err := ParseCallback(callbackURL, state)
	if err != nil {
		return auth.Token{}, err
	}

	return a.Exchange(ctx, code)
}

// ParseCallback extracts the authorization code from the redirect URL.
//
// The state is checked first; a mismatch aborts before error_description or
// code are considered.
func ParseCallback(callbackURL, wantState string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(callbackURL))
	if err != nil {
		return "", &auth.Error{Kind: auth.KindMalformedCallback, Err: err}
	}
	query := u.Query()

	state := strings.TrimSpace(query.Get("state"))
	if query.Has("state") && subtle.ConstantTimeCompare([]byte(state), []byte(wantState)) != 1 {
		return "", &auth.Error{Kind: auth.KindStateMismatch, Detail: "possible cross-site request forgery"}
	}

	if desc := strings.TrimSpace(query.Get("error_description")); desc != "" {
		return "", &auth.Error{Kind: auth.KindAuthorizationDenied, Detail: desc}
	}

	if !query.Has("state") {
		return "", &auth.Error{Kind: auth.KindMalformedCallback, Detail: "missing state parameter"}
	}

	code := strings.TrimSpace(query.Get("code"))
	if code == "" {
		return "", &auth.Error{Kind: auth.KindMalformedCallback, Detail: "missing code parameter"}
	}
	return code, nil
}

// Exchange trades an authorization code for a token.
func (a *Authorizer) Exchange(ctx context.Context, code string) (auth.Token, error) {
	ctx, span := tracer.Start(ctx, "tokensource.Exchange")
	defer span.End()

	issued := a.cfg.now()
	tok, err := a.oauth2Config.Exchange(a.cfg.oauthContext(ctx), code)
	if err != nil {
		authErr := grantError(err, auth.KindTokenExchangeRejected)
		recordError(span, authErr)
		return auth.Token{}, authErr
	}

	token, err := fromOAuth2(tok, issued, "")
	if err != nil {
		recordError(span, err)
		return auth.Token{}, err
	}

	slog.InfoContext(ctx, "authorization code exchanged", "expires_at", token.Expiry().Format(time.RFC3339))
	return token, nil
}
