package tokensource_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"golang.org/x/oauth2"

	"github.com/florianilch/tradestation-auth/internal/auth"
)

var (
	testNow   = time.Unix(1_700_000_000, 0)
	testClock = func() time.Time { return testNow }

	testCreds = auth.Credentials{
		ClientKey:    "client-key",
		ClientSecret: "client-secret",
		RedirectURI:  "http://localhost:3000",
	}
)

// tokenEndpoint is a fake token endpoint that records every grant request.
type tokenEndpoint struct {
	calls atomic.Int32

	mu     sync.Mutex
	forms  []url.Values
	status int
	body   string
	delay  time.Duration
}

func newTokenEndpoint(t *testing.T, status int, body string) (*tokenEndpoint, oauth2.Endpoint) {
	t.Helper()

	te := &tokenEndpoint{status: status, body: body}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		te.calls.Add(1)
		if err := r.ParseForm(); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		te.mu.Lock()
		te.forms = append(te.forms, r.PostForm)
		status, body, delay := te.status, te.body, te.delay
		te.mu.Unlock()

		if delay > 0 {
			select {
			case <-time.After(delay):
			case <-r.Context().Done():
				return
			}
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)

	return te, oauth2.Endpoint{
		AuthURL:   srv.URL + "/authorize",
		TokenURL:  srv.URL + "/oauth/token",
		AuthStyle: oauth2.AuthStyleInParams,
	}
}

func (te *tokenEndpoint) lastForm() url.Values {
	te.mu.Lock()
	defer te.mu.Unlock()
	if len(te.forms) == 0 {
		return nil
	}
	return te.forms[len(te.forms)-1]
}

func (te *tokenEndpoint) setDelay(d time.Duration) {
	te.mu.Lock()
	defer te.mu.Unlock()
	te.delay = d
}

func (te *tokenEndpoint) respond(status int, body string) {
	te.mu.Lock()
	defer te.mu.Unlock()
	te.status, te.body = status, body
}

// recordingStore is an in-memory TokenStore that counts writes.
type recordingStore struct {
	mu       sync.Mutex
	token    *auth.Token
	writes   []auth.Token
	writeErr error
}

func (s *recordingStore) Read(context.Context) (auth.Token, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.token == nil {
		return auth.Token{}, &auth.Error{Kind: auth.KindNotFound}
	}
	return *s.token, nil
}

func (s *recordingStore) Write(_ context.Context, token auth.Token) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.writes = append(s.writes, token)
	if s.writeErr != nil {
		return s.writeErr
	}
	s.token = &token
	return nil
}

func (s *recordingStore) Writes() []auth.Token {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]auth.Token(nil), s.writes...)
}

var errBoom = errors.New("boom")
