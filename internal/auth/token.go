package auth

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

// DefaultScope is requested when the caller does not override the scope.
const DefaultScope = "openid offline_access profile MarketData ReadAccount Trade Crypto Matrix OptionSpreads"

// Token is the persisted OAuth2 credential.
//
// ExpiresAt is absolute (unix seconds). Zero means unknown and is treated as
// already expired.
type Token struct {
	AccessToken  string `json:"access_token" validate:"required"`
	RefreshToken string `json:"refresh_token,omitempty"`
	ExpiresIn    int64  `json:"access_token_expires_in,omitempty" validate:"gte=0"`
	ExpiresAt    int64  `json:"access_token_expires_at,omitempty" validate:"gte=0"`
}

// tokenDocument accepts the standard expires_in/expires_at aliases in
// addition to the keys Token is written with.
type tokenDocument struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    *int64 `json:"access_token_expires_in"`
	ExpiresAt    *int64 `json:"access_token_expires_at"`
	StdExpiresIn *int64 `json:"expires_in"`
	StdExpiresAt *int64 `json:"expires_at"`
}

var validate = validator.New()

// UnmarshalJSON decodes a persisted token document.
func (t *Token) UnmarshalJSON(data []byte) error {
	var doc tokenDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return err
	}

	*t = Token{
		AccessToken:  strings.TrimSpace(doc.AccessToken),
		RefreshToken: strings.TrimSpace(doc.RefreshToken),
		ExpiresIn:    firstInt(doc.ExpiresIn, doc.StdExpiresIn),
		ExpiresAt:    firstInt(doc.ExpiresAt, doc.StdExpiresAt),
	}
	return nil
}

// Validate checks the token at a trust boundary (store read, endpoint response).
func (t Token) Validate() error {
	if err := validate.Struct(t); err != nil {
		return &Error{Kind: KindInvalidToken, Err: err}
	}
	return nil
}

// Expiry returns ExpiresAt as a time, or the zero time when unknown.
func (t Token) Expiry() time.Time {
	if t.ExpiresAt <= 0 {
		return time.Time{}
	}
	return time.Unix(t.ExpiresAt, 0)
}

// Fresh reports whether the access token can be used at now without refresh.
// A margin > 0 treats the token as stale that long before its expiry.
func (t Token) Fresh(now time.Time, margin time.Duration) bool {
	if t.AccessToken == "" || t.ExpiresAt <= 0 {
		return false
	}
	return now.Add(margin).Before(t.Expiry())
}

// String redacts secrets so tokens can be passed to loggers safely.
func (t Token) String() string {
	return fmt.Sprintf("Token{access_token:%s refresh_token:%s expires_at:%d}",
		redact(t.AccessToken), redact(t.RefreshToken), t.ExpiresAt)
}

func redact(s string) string {
	if s == "" {
		return `""`
	}
	return "[redacted]"
}

func firstInt(values ...*int64) int64 {
	for _, v := range values {
		if v != nil {
			return *v
		}
	}
	return 0
}
