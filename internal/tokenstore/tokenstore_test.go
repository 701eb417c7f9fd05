package tokenstore_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/zalando/go-keyring"

	"github.com/florianilch/tradestation-auth/internal/auth"
	"github.com/florianilch/tradestation-auth/internal/tokenstore"
)

var sampleToken = auth.Token{
	AccessToken:  "AT1",
	RefreshToken: "RT1",
	ExpiresIn:    1200,
	ExpiresAt:    1_700_001_200,
}

func TestFileStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "nested", "ts_state.json")

	store, err := tokenstore.NewFileStore(path)
	require.NoError(t, err)

	require.NoError(t, store.Write(ctx, sampleToken))

	got, err := store.Read(ctx)
	require.NoError(t, err)
	require.Equal(t, sampleToken, got)

	info, err := os.Stat(path)
	require.NoError(t, err)
	require.Equal(t, os.FileMode(0600), info.Mode().Perm())
}

func TestFileStoreWritesFlatPrettyDocument(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "ts_state.json")

	store, err := tokenstore.NewFileStore(path)
	require.NoError(t, err)
	require.NoError(t, store.Write(ctx, sampleToken))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.JSONEq(t, `{
		"access_token": "AT1",
		"refresh_token": "RT1",
		"access_token_expires_in": 1200,
		"access_token_expires_at": 1700001200
	}`, string(data))
	require.Contains(t, string(data), "\n    \"access_token\": \"AT1\"")
}

func TestFileStoreOverwritesWholeDocument(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "ts_state.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"access_token":"old","extra":"field"}`), 0600))

	store, err := tokenstore.NewFileStore(path)
	require.NoError(t, err)
	require.NoError(t, store.Write(ctx, auth.Token{AccessToken: "new"}))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.NotContains(t, string(data), "extra")

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	require.Len(t, entries, 1, "temp file must not be left behind")
}

func TestFileStoreReadErrors(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	store, err := tokenstore.NewFileStore(filepath.Join(dir, "missing.json"))
	require.NoError(t, err)
	_, err = store.Read(ctx)
	require.ErrorIs(t, err, auth.ErrNotFound)

	corrupt := filepath.Join(dir, "corrupt.json")
	require.NoError(t, os.WriteFile(corrupt, []byte("{not json"), 0600))
	store, err = tokenstore.NewFileStore(corrupt)
	require.NoError(t, err)
	_, err = store.Read(ctx)
	require.ErrorIs(t, err, auth.ErrInvalidToken)

	noAccess := filepath.Join(dir, "empty.json")
	require.NoError(t, os.WriteFile(noAccess, []byte(`{"refresh_token":"RT"}`), 0600))
	store, err = tokenstore.NewFileStore(noAccess)
	require.NoError(t, err)
	_, err = store.Read(ctx)
	require.ErrorIs(t, err, auth.ErrInvalidToken)
}

func TestFileStoreReadsLegacyPermissions(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ts_state.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"access_token":"AT","expires_in":1200}`), 0644))

	store, err := tokenstore.NewFileStore(path)
	require.NoError(t, err)

	got, err := store.Read(context.Background())
	require.NoError(t, err)
	require.Equal(t, auth.Token{AccessToken: "AT", ExpiresIn: 1200}, got)
}

func TestFileStoreClear(t *testing.T) {
	ctx := context.Background()
	store, err := tokenstore.NewFileStore(filepath.Join(t.TempDir(), "ts_state.json"))
	require.NoError(t, err)

	require.NoError(t, store.Clear(ctx), "clearing a missing file is a no-op")
	require.NoError(t, store.Write(ctx, sampleToken))
	require.NoError(t, store.Clear(ctx))

	_, err = store.Read(ctx)
	require.ErrorIs(t, err, auth.ErrNotFound)
}

func TestFileStoreCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	store, err := tokenstore.NewFileStore(filepath.Join(t.TempDir(), "ts_state.json"))
	require.NoError(t, err)
	require.ErrorIs(t, store.Write(ctx, sampleToken), context.Canceled)
}

func TestNewFileStoreRequiresPath(t *testing.T) {
	_, err := tokenstore.NewFileStore("")
	require.Error(t, err)
}

func TestKeyringStore(t *testing.T) {
	keyring.MockInit()
	ctx := context.Background()

	store, err := tokenstore.NewKeyringStore(tokenstore.DefaultKeyringService, "trader")
	require.NoError(t, err)

	_, err = store.Read(ctx)
	require.ErrorIs(t, err, auth.ErrNotFound)

	require.NoError(t, store.Write(ctx, sampleToken))
	got, err := store.Read(ctx)
	require.NoError(t, err)
	require.Equal(t, sampleToken, got)

	require.NoError(t, store.Clear(ctx))
	_, err = store.Read(ctx)
	require.ErrorIs(t, err, auth.ErrNotFound)

	_, err = tokenstore.NewKeyringStore("", "trader")
	require.Error(t, err)
}

func TestEnvStore(t *testing.T) {
	ctx := context.Background()
	const key = "TSAUTH_TEST_TOKEN"

	store, err := tokenstore.NewEnvStore(key)
	require.NoError(t, err)

	t.Setenv(key, "")
	_, err = store.Read(ctx)
	require.ErrorIs(t, err, auth.ErrNotFound)

	t.Setenv(key, `{"access_token":"AT1","refresh_token":"RT1","access_token_expires_in":1200,"access_token_expires_at":1700001200}`)
	got, err := store.Read(ctx)
	require.NoError(t, err)
	require.Equal(t, sampleToken, got)

	require.ErrorIs(t, store.Write(ctx, sampleToken), auth.ErrIOError)
}

func TestFuncStore(t *testing.T) {
	ctx := context.Background()

	var written []auth.Token
	store, err := tokenstore.NewFuncStore(
		func(context.Context) (auth.Token, error) { return sampleToken, nil },
		func(_ context.Context, tok auth.Token) error {
			written = append(written, tok)
			return nil
		},
	)
	require.NoError(t, err)

	got, err := store.Read(ctx)
	require.NoError(t, err)
	require.Equal(t, sampleToken, got)

	require.NoError(t, store.Write(ctx, sampleToken))
	require.Equal(t, []auth.Token{sampleToken}, written)
}

func TestFuncStoreClassifiesErrors(t *testing.T) {
	ctx := context.Background()

	store, err := tokenstore.NewFuncStore(
		func(context.Context) (auth.Token, error) { return auth.Token{}, errors.New("db down") },
		func(context.Context, auth.Token) error { return &auth.Error{Kind: auth.KindNotFound} },
	)
	require.NoError(t, err)

	_, err = store.Read(ctx)
	require.ErrorIs(t, err, auth.ErrIOError)
	require.True(t, strings.Contains(err.Error(), "db down"))

	require.ErrorIs(t, store.Write(ctx, sampleToken), auth.ErrNotFound, "classified errors pass through")

	invalid, err := tokenstore.NewFuncStore(
		func(context.Context) (auth.Token, error) { return auth.Token{}, nil },
		func(context.Context, auth.Token) error { return nil },
	)
	require.NoError(t, err)
	_, err = invalid.Read(ctx)
	require.ErrorIs(t, err, auth.ErrInvalidToken)

	_, err = tokenstore.NewFuncStore(nil, nil)
	require.Error(t, err)
}
