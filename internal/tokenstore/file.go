package tokenstore

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/florianilch/tradestation-auth/internal/auth"
)

// DefaultFile is the token file used when no path is configured.
const DefaultFile = "ts_state.json"

// FileStore provides atomic file-based token storage with secure permissions.
// Writes use temp file + rename for crash safety.
type FileStore struct {
	filePath string
}

// Compile-time check to ensure FileStore implements TokenStore
var _ TokenStore = (*FileStore)(nil)

// NewFileStore creates a FileStore for the given path, creating parent directories
// with 0700 permissions if they don't exist.
func NewFileStore(filePath string) (*FileStore, error) {
	if filePath == "" {
		return nil, fmt.Errorf("file path cannot be empty")
	}

	dir := filepath.Dir(filePath)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, err
	}

	return &FileStore{
		filePath: filePath,
	}, nil
}

// Path returns the backing file path.
func (f *FileStore) Path() string {
	return f.filePath
}

// Read returns the stored token. Returns auth.ErrNotFound if the file doesn't exist.
func (f *FileStore) Read(ctx context.Context) (auth.Token, error) {
	if err := ctx.Err(); err != nil {
		return auth.Token{}, err
	}

	info, err := os.Stat(f.filePath)
	if errors.Is(err, fs.ErrNotExist) {
		return auth.Token{}, &auth.Error{Kind: auth.KindNotFound, Detail: f.filePath, Err: err}
	}
	if err != nil {
		return auth.Token{}, ioError(err)
	}
	// Older clients wrote the file world-readable; accept it, the next write tightens it.
	if info.Mode().Perm()&0077 != 0 {
		slog.WarnContext(ctx, "token file has insecure permissions",
			"path", f.filePath, "mode", fmt.Sprintf("%04o", info.Mode().Perm()))
	}

	slog.DebugContext(ctx, "loading token from file", "path", f.filePath)

	data, err := os.ReadFile(f.filePath)
	if err != nil {
		return auth.Token{}, ioError(err)
	}

	return decode(data)
}

// Write atomically replaces the file with the token document.
// Sets file permissions to 0600 (owner read/write only).
func (f *FileStore) Write(ctx context.Context, token auth.Token) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	data, err := encode(token)
	if err != nil {
		return err
	}

	slog.InfoContext(ctx, "updating token file", "path", f.filePath)

	// Create secure temp file in same directory for atomic rename
	dir := filepath.Dir(f.filePath)
	tempFile, err := os.CreateTemp(dir, "*.tmp")
	if err != nil {
		return ioError(err)
	}
	tempName := tempFile.Name()
	// Cleanup deferred for all exit paths
	defer func() { _ = os.Remove(tempName) }()
	defer func() { _ = tempFile.Close() }()

	if _, err := tempFile.Write(data); err != nil {
		return ioError(err)
	}

	if err := ctx.Err(); err != nil {
		return err
	}
	if err := tempFile.Close(); err != nil {
		return ioError(err)
	}

	if err := os.Rename(tempName, f.filePath); err != nil {
		return ioError(err)
	}

	// Set secure file permissions (0600 = rw-------)
	if err := os.Chmod(f.filePath, 0600); err != nil {
		return ioError(err)
	}

	return nil
}

// Clear removes the token file. A missing file is not an error.
func (f *FileStore) Clear(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := os.Remove(f.filePath); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return ioError(err)
	}
	return nil
}
