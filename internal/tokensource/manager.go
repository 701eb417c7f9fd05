package tokensource

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/sync/semaphore"

	"github.com/florianilch/tradestation-auth/internal/auth"
	"github.com/florianilch/tradestation-auth/internal/tokenstore"
)

// Manager keeps an access token fresh, refreshing it with the refresh-token
// grant and writing every refreshed token back to the store.
type Manager struct {
	oauth2Config *oauth2.Config
	store        tokenstore.TokenStore
	cfg          *config

	token atomic.Pointer[auth.Token]
	// refreshSem serializes the check-refresh-write sequence; waiting respects ctx.
	refreshSem *semaphore.Weighted

	persistMu  sync.Mutex
	persistErr error
}

// Compile-time check to ensure Manager implements oauth2.TokenSource
var _ oauth2.TokenSource = (*Manager)(nil)

// NewManager creates a Manager for an already obtained token.
// No I/O is performed until a stale token is used.
func NewManager(creds auth.Credentials, endpoint oauth2.Endpoint, store tokenstore.TokenStore, initial auth.Token, opts ...Option) (*Manager, error) {
	if store == nil {
		return nil, fmt.Errorf("missing token store")
	}
	if err := initial.Validate(); err != nil {
		return nil, err
	}

	m := &Manager{
		oauth2Config: newOAuth2Config(creds, endpoint),
		store:        store,
		cfg:          newConfig(opts),
		refreshSem:   semaphore.NewWeighted(1),
	}
	m.token.Store(&initial)

	return m, nil
}

// AccessToken returns an access token that is fresh at the instant of return.
//
// Errors are *auth.Error: ReauthorizationRequired when the token is stale and
// there is no refresh token, RefreshFailed or NetworkTimeout when the refresh
// grant fails. The held token is never modified by a failed refresh.
func (m *Manager) AccessToken(ctx context.Context) (string, error) {
	token, err := m.current(ctx)
	if err != nil {
		return "", err
	}
	return token.AccessToken, nil
}

// Token implements oauth2.TokenSource for use with oauth2.Transport.
// The interface has no context parameter; refreshes are bounded by the
// configured timeout instead.
func (m *Manager) Token() (*oauth2.Token, error) {
	token, err := m.current(context.Background())
	if err != nil {
		return nil, err
	}
	return &oauth2.Token{
		AccessToken: token.AccessToken,
		TokenType:   "Bearer",
		Expiry:      token.Expiry(),
	}, nil
}

// PersistErr returns the error of the latest write-back of a refreshed token,
// or nil if it succeeded. A failed write-back does not fail AccessToken: the
// refreshed token is held in memory, but a rotated refresh token is lost when
// the process exits.
func (m *Manager) PersistErr() error {
	m.persistMu.Lock()
	defer m.persistMu.Unlock()
	return m.persistErr
}

// Snapshot returns the currently held token without checking freshness.
func (m *Manager) Snapshot() auth.Token {
	return *m.token.Load()
}

func (m *Manager) current(ctx context.Context) (auth.Token, error) {
	// Hot path: lock-free read while the token is fresh
	if token := *m.token.Load(); token.Fresh(m.cfg.now(), m.cfg.refreshMargin) {
		return token, nil
	}

	if err := m.refreshSem.Acquire(ctx, 1); err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return auth.Token{}, &auth.Error{Kind: auth.KindNetworkTimeout, Err: err}
		}
		return auth.Token{}, err
	}
	defer m.refreshSem.Release(1)

	// Another caller may have refreshed while we waited
	token := *m.token.Load()
	if token.Fresh(m.cfg.now(), m.cfg.refreshMargin) {
		return token, nil
	}

	if token.RefreshToken == "" {
		return auth.Token{}, &auth.Error{Kind: auth.KindReauthorizationRequired, Detail: "token expired and no refresh token available"}
	}

	return m.refresh(ctx, token)
}

// refresh performs the refresh-token grant. Must be called with refreshSem held.
func (m *Manager) refresh(ctx context.Context, current auth.Token) (auth.Token, error) {
	ctx, span := tracer.Start(ctx, "tokensource.Refresh")
	defer span.End()

	issued := m.cfg.now()
	// Empty access token forces the oauth2 package to refresh immediately
	source := m.oauth2Config.TokenSource(m.cfg.oauthContext(ctx), &oauth2.Token{RefreshToken: current.RefreshToken})
	tok, err := source.Token()
	if err != nil {
		authErr := grantError(err, auth.KindRefreshFailed)
		recordError(span, authErr)
		slog.WarnContext(ctx, "token refresh failed", "kind", authErr.Kind.String(), "status", authErr.Status)
		return auth.Token{}, authErr
	}

	next, err := fromOAuth2(tok, issued, current.RefreshToken)
	if err != nil {
		authErr := &auth.Error{Kind: auth.KindRefreshFailed, Err: err}
		recordError(span, authErr)
		return auth.Token{}, authErr
	}

	m.token.Store(&next)
	slog.InfoContext(ctx, "access token refreshed", "expires_at", next.Expiry().Format(time.RFC3339))

	err = m.store.Write(ctx, next)
	if err != nil {
		err = &auth.Error{Kind: auth.KindIOError, Detail: "persisting refreshed token", Err: err}
		recordError(span, err)
		slog.ErrorContext(ctx, "failed to persist refreshed token", "error", err)
	}
	m.persistMu.Lock()
	m.persistErr = err
	m.persistMu.Unlock()

	return next, nil
}
