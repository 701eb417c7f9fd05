package tokenstore

import (
	"context"
	"errors"

	"github.com/florianilch/tradestation-auth/internal/auth"
)

// ReadFunc loads a token from caller-owned storage.
type ReadFunc func(ctx context.Context) (auth.Token, error)

// WriteFunc persists a token to caller-owned storage.
type WriteFunc func(ctx context.Context, token auth.Token) error

// FuncStore adapts a pair of access functions to TokenStore, letting host
// applications keep tokens in a database or secret manager.
type FuncStore struct {
	read  ReadFunc
	write WriteFunc
}

// Compile-time check to ensure FuncStore implements TokenStore
var _ TokenStore = (*FuncStore)(nil)

// NewFuncStore creates a FuncStore. Both functions are required.
func NewFuncStore(read ReadFunc, write WriteFunc) (*FuncStore, error) {
	if read == nil {
		return nil, errors.New("missing token read function")
	}
	if write == nil {
		return nil, errors.New("missing token write function")
	}
	return &FuncStore{read: read, write: write}, nil
}

// Read calls the read function and validates its result. Errors that are not
// already classified are reported as auth.ErrIOError.
func (f *FuncStore) Read(ctx context.Context) (auth.Token, error) {
	token, err := f.read(ctx)
	if err != nil {
		return auth.Token{}, classify(err)
	}
	if err := token.Validate(); err != nil {
		return auth.Token{}, err
	}
	return token, nil
}

// Write calls the write function.
func (f *FuncStore) Write(ctx context.Context, token auth.Token) error {
	if err := f.write(ctx, token); err != nil {
		return classify(err)
	}
	return nil
}

func classify(err error) error {
	if auth.KindOf(err) != auth.KindUnknown || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return ioError(err)
}
