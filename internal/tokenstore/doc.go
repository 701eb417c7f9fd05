// Package tokenstore provides persistent storage for OAuth2 tokens.
//
// Every backend stores the whole token as one flat JSON document and every
// write replaces the previous document entirely:
//   - File: local JSON file with atomic writes and owner-only permissions (default)
//   - Keyring: OS-native credential storage (macOS Keychain, Windows Credential Manager, etc.)
//   - Env: read-only environment variable holding the JSON document
//   - Func: caller supplied read/write functions, e.g. a database or secret manager
//
// The interactive authorization flow and token refresh require writable storage.
package tokenstore
