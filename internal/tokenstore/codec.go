package tokenstore

import (
	"encoding/json"

	"github.com/florianilch/tradestation-auth/internal/auth"
)

// encode renders the token as a pretty-printed flat document.
func encode(token auth.Token) ([]byte, error) {
	data, err := json.MarshalIndent(token, "", "    ")
	if err != nil {
		return nil, &auth.Error{Kind: auth.KindIOError, Err: err}
	}
	return append(data, '\n'), nil
}

// decode parses and validates a stored document.
func decode(data []byte) (auth.Token, error) {
	var token auth.Token
	if err := json.Unmarshal(data, &token); err != nil {
		return auth.Token{}, &auth.Error{Kind: auth.KindInvalidToken, Err: err}
	}
	if err := token.Validate(); err != nil {
		return auth.Token{}, err
	}
	return token, nil
}

func ioError(err error) error {
	return &auth.Error{Kind: auth.KindIOError, Err: err}
}
