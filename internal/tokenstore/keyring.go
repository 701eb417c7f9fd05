package tokenstore

import (
	"context"
	"errors"
	"fmt"

	"github.com/zalando/go-keyring"

	"github.com/florianilch/tradestation-auth/internal/auth"
)

// DefaultKeyringService is the keyring service name tokens are stored under.
const DefaultKeyringService = "tradestation-auth-token"

// KeyringStore provides OS-native secure credential storage for tokens.
// Uses macOS Keychain, Windows Credential Manager, or Linux Secret Service.
type KeyringStore struct {
	service string
	user    string
}

// Compile-time check to ensure KeyringStore implements TokenStore
var _ TokenStore = (*KeyringStore)(nil)

// NewKeyringStore creates a KeyringStore for the given service and user identifiers.
func NewKeyringStore(service, user string) (*KeyringStore, error) {
	if service == "" {
		return nil, fmt.Errorf("service cannot be empty")
	}
	if user == "" {
		return nil, fmt.Errorf("user cannot be empty")
	}

	return &KeyringStore{
		service: service,
		user:    user,
	}, nil
}

// Read returns the token from the system keyring.
func (k *KeyringStore) Read(ctx context.Context) (auth.Token, error) {
	if err := ctx.Err(); err != nil {
		return auth.Token{}, err
	}

	secret, err := keyring.Get(k.service, k.user)
	if errors.Is(err, keyring.ErrNotFound) {
		return auth.Token{}, &auth.Error{Kind: auth.KindNotFound, Detail: k.service + "/" + k.user, Err: err}
	}
	if err != nil {
		return auth.Token{}, ioError(err)
	}

	return decode([]byte(secret))
}

// Write persists the token to the system keyring, overwriting any existing value.
func (k *KeyringStore) Write(ctx context.Context, token auth.Token) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	data, err := encode(token)
	if err != nil {
		return err
	}

	if err := keyring.Set(k.service, k.user, string(data)); err != nil {
		return ioError(err)
	}
	return nil
}

// Clear deletes the keyring entry. A missing entry is not an error.
func (k *KeyringStore) Clear(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := keyring.Delete(k.service, k.user); err != nil && !errors.Is(err, keyring.ErrNotFound) {
		return ioError(err)
	}
	return nil
}
