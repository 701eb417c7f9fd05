package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/oauth2"

	"github.com/florianilch/tradestation-auth/internal/auth"
	"github.com/florianilch/tradestation-auth/internal/client"
	"github.com/florianilch/tradestation-auth/internal/tokensource"
	"github.com/florianilch/tradestation-auth/internal/tokenstore"
)

// Factory creates API clients, reusing a persisted token when one exists and
// running the interactive authorization flow otherwise.
//
// A Factory call is a single pass: it never retries and never falls back to
// a degraded client. Any failure is returned as-is.
type Factory struct {
	credentials   auth.Credentials
	endpoint      oauth2.Endpoint
	store         tokenstore.TokenStore
	promptTimeout time.Duration
	tokenOpts     []tokensource.Option
	clientOpts    []client.Option
}

// FactoryOption configures a Factory.
type FactoryOption func(*Factory)

// WithEndpoint overrides the OAuth2 endpoints.
func WithEndpoint(endpoint oauth2.Endpoint) FactoryOption {
	return func(f *Factory) {
		f.endpoint = endpoint
	}
}

// WithPromptTimeout bounds the wait for the user's redirect URL.
func WithPromptTimeout(timeout time.Duration) FactoryOption {
	return func(f *Factory) {
		f.promptTimeout = timeout
	}
}

// WithTokenOptions passes options to the authorizer and the token manager.
func WithTokenOptions(opts ...tokensource.Option) FactoryOption {
	return func(f *Factory) {
		f.tokenOpts = append(f.tokenOpts, opts...)
	}
}

// WithClientOptions passes options to every client created.
func WithClientOptions(opts ...client.Option) FactoryOption {
	return func(f *Factory) {
		f.clientOpts = append(f.clientOpts, opts...)
	}
}

// NewFactory creates a Factory for the given credentials and store.
func NewFactory(creds auth.Credentials, store tokenstore.TokenStore, opts ...FactoryOption) (*Factory, error) {
	if err := creds.Validate(); err != nil {
		return nil, fmt.Errorf("invalid credentials: %w", err)
	}
	if store == nil {
		return nil, fmt.Errorf("missing token store")
	}

	f := &Factory{
		credentials: creds,
		endpoint:    tokensource.Endpoint,
		store:       store,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f, nil
}

// Create returns a client backed by the persisted token if the store has one,
// or by a token from a fresh authorization flow, which is persisted first.
func (f *Factory) Create(ctx context.Context) (*client.Client, error) {
	token, err := f.store.Read(ctx)
	if err == nil {
		slog.InfoContext(ctx, "using persisted token", "expires_at", token.ExpiresAt)
		return f.newClient(ctx, token)
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return nil, err
	}

	slog.WarnContext(ctx, "no usable persisted token, starting authorization flow", "reason", err.Error())
	return f.CreateFromAuthorization(ctx)
}

// CreateFromStore returns a client backed by the persisted token only. No
// network call is made; auth.ErrNotFound is returned when nothing is stored.
func (f *Factory) CreateFromStore(ctx context.Context) (*client.Client, error) {
	token, err := f.store.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("reading persisted token: %w", err)
	}
	return f.newClient(ctx, token)
}

// CreateFromAuthorization always runs the authorization flow, persists the
// resulting token and returns a client backed by it.
func (f *Factory) CreateFromAuthorization(ctx context.Context) (*client.Client, error) {
	token, err := f.Authorize(ctx)
	if err != nil {
		return nil, err
	}
	return f.newClient(ctx, token)
}

// Authorize runs the authorization flow and persists the token.
func (f *Factory) Authorize(ctx context.Context) (auth.Token, error) {
	flowCtx := ctx
	if f.promptTimeout > 0 {
		var cancel context.CancelFunc
		flowCtx, cancel = context.WithTimeout(ctx, f.promptTimeout)
		defer cancel()
	}

	authorizer := tokensource.NewAuthorizer(f.credentials, f.endpoint, f.tokenOpts...)
	token, err := authorizer.Run(flowCtx)
	if err != nil {
		return auth.Token{}, fmt.Errorf("authorization flow: %w", err)
	}

	if err := f.store.Write(ctx, token); err != nil {
		return auth.Token{}, fmt.Errorf("persisting token: %w", err)
	}

	slog.InfoContext(ctx, "authorization complete, token persisted")
	return token, nil
}

func (f *Factory) newClient(ctx context.Context, token auth.Token) (*client.Client, error) {
	manager, err := tokensource.NewManager(f.credentials, f.endpoint, f.store, token, f.tokenOpts...)
	if err != nil {
		return nil, fmt.Errorf("creating token manager: %w", err)
	}
	return client.New(ctx, manager, f.clientOpts...)
}

// ClientFromAccessFunctions creates a client whose token lives in caller-owned
// storage reached through read and write. The token must already exist.
func ClientFromAccessFunctions(ctx context.Context, creds auth.Credentials, read tokenstore.ReadFunc, write tokenstore.WriteFunc, opts ...FactoryOption) (*client.Client, error) {
	store, err := tokenstore.NewFuncStore(read, write)
	if err != nil {
		return nil, err
	}
	f, err := NewFactory(creds, store, opts...)
	if err != nil {
		return nil, err
	}
	return f.CreateFromStore(ctx)
}
