package tokenstore

import (
	"context"

	"github.com/florianilch/tradestation-auth/internal/auth"
)

// TokenStore reads and writes tokens to persistent storage.
//
// Read fails with auth.ErrNotFound when nothing has been stored yet.
// Write fails with auth.ErrIOError when the backend cannot persist the token.
type TokenStore interface {
	Read(ctx context.Context) (auth.Token, error)
	Write(ctx context.Context, token auth.Token) error
}

// Clearer is implemented by stores that can forget their token.
type Clearer interface {
	Clear(ctx context.Context) error
}
