package auth_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/florianilch/tradestation-auth/internal/auth"
)

func TestTokenFresh(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)

	tests := []struct {
		name   string
		token  auth.Token
		margin time.Duration
		want   bool
	}{
		{"future expiry", auth.Token{AccessToken: "AT", ExpiresAt: now.Unix() + 60}, 0, true},
		{"past expiry", auth.Token{AccessToken: "AT", ExpiresAt: now.Unix() - 10}, 0, false},
		{"expires exactly now", auth.Token{AccessToken: "AT", ExpiresAt: now.Unix()}, 0, false},
		{"unknown expiry", auth.Token{AccessToken: "AT"}, 0, false},
		{"empty access token", auth.Token{ExpiresAt: now.Unix() + 60}, 0, false},
		{"inside margin", auth.Token{AccessToken: "AT", ExpiresAt: now.Unix() + 30}, time.Minute, false},
		{"outside margin", auth.Token{AccessToken: "AT", ExpiresAt: now.Unix() + 120}, time.Minute, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, tt.token.Fresh(now, tt.margin))
		})
	}
}

func TestTokenUnmarshalAliases(t *testing.T) {
	var tok auth.Token
	err := json.Unmarshal([]byte(`{"access_token":" AT ","refresh_token":"RT","expires_in":1200,"expires_at":42}`), &tok)
	require.NoError(t, err)
	require.Equal(t, auth.Token{AccessToken: "AT", RefreshToken: "RT", ExpiresIn: 1200, ExpiresAt: 42}, tok)

	// Canonical keys win over aliases.
	err = json.Unmarshal([]byte(`{"access_token":"AT","access_token_expires_at":7,"expires_at":42}`), &tok)
	require.NoError(t, err)
	require.Equal(t, int64(7), tok.ExpiresAt)
}

func TestTokenValidate(t *testing.T) {
	require.NoError(t, auth.Token{AccessToken: "AT"}.Validate())

	err := auth.Token{RefreshToken: "RT"}.Validate()
	require.ErrorIs(t, err, auth.ErrInvalidToken)

	err = auth.Token{AccessToken: "AT", ExpiresAt: -1}.Validate()
	require.ErrorIs(t, err, auth.ErrInvalidToken)
}

func TestTokenStringRedactsSecrets(t *testing.T) {
	s := auth.Token{AccessToken: "secret-access", RefreshToken: "secret-refresh", ExpiresAt: 5}.String()
	require.NotContains(t, s, "secret-access")
	require.NotContains(t, s, "secret-refresh")
	require.Contains(t, s, "expires_at:5")
}

func TestErrorMatching(t *testing.T) {
	err := fmt.Errorf("creating client: %w", &auth.Error{Kind: auth.KindRefreshFailed, Status: 401})

	require.ErrorIs(t, err, auth.ErrRefreshFailed)
	require.NotErrorIs(t, err, auth.ErrReauthorizationRequired)
	require.Equal(t, auth.KindRefreshFailed, auth.KindOf(err))
	require.Equal(t, auth.KindUnknown, auth.KindOf(errors.New("plain")))
	require.Equal(t, "refresh failed (status 401)", (&auth.Error{Kind: auth.KindRefreshFailed, Status: 401}).Error())

	denied := &auth.Error{Kind: auth.KindAuthorizationDenied, Detail: "access_denied"}
	require.Equal(t, "authorization denied: access_denied", denied.Error())
}

func TestIsTimeout(t *testing.T) {
	require.True(t, auth.IsTimeout(fmt.Errorf("wrapped: %w", context.DeadlineExceeded)))
	require.False(t, auth.IsTimeout(context.Canceled))
}

func TestCredentialsScopes(t *testing.T) {
	require.Equal(t, []string{"openid", "offline_access", "profile", "MarketData", "ReadAccount", "Trade", "Crypto", "Matrix", "OptionSpreads"},
		auth.Credentials{}.Scopes())
	require.Equal(t, []string{"openid", "ReadAccount"}, auth.Credentials{Scope: " openid  ReadAccount "}.Scopes())
}

func TestCredentialsValidate(t *testing.T) {
	require.NoError(t, auth.Credentials{ClientKey: "k", ClientSecret: "s", RedirectURI: "http://localhost:3000"}.Validate())
	require.Error(t, auth.Credentials{ClientKey: "k", RedirectURI: "http://localhost:3000"}.Validate())
	require.Error(t, auth.Credentials{ClientKey: "k", ClientSecret: "s", RedirectURI: "not a url"}.Validate())
}
