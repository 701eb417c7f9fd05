package tokenstore

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/florianilch/tradestation-auth/internal/auth"
)

// EnvStore provides read-only access to a token document stored in an
// environment variable. Refreshed tokens cannot be persisted.
type EnvStore struct {
	envKey string
}

// Compile-time check to ensure EnvStore implements TokenStore
var _ TokenStore = (*EnvStore)(nil)

// NewEnvStore creates an EnvStore for the given environment variable.
func NewEnvStore(envKey string) (*EnvStore, error) {
	if envKey == "" {
		return nil, fmt.Errorf("environment key cannot be empty")
	}

	return &EnvStore{
		envKey: envKey,
	}, nil
}

// Read decodes the token document from the environment variable.
func (e *EnvStore) Read(ctx context.Context) (auth.Token, error) {
	if err := ctx.Err(); err != nil {
		return auth.Token{}, err
	}

	doc, ok := os.LookupEnv(e.envKey)
	if !ok || doc == "" {
		return auth.Token{}, &auth.Error{Kind: auth.KindNotFound, Detail: "environment variable " + e.envKey}
	}
	return decode([]byte(doc))
}

// Write is not supported for environment variables (they are read-only).
func (e *EnvStore) Write(ctx context.Context, _ auth.Token) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	return ioError(errors.New("environment variable storage is read-only"))
}
