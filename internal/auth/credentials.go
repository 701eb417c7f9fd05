package auth

import "strings"

// Credentials identify the application to the authorization server.
// They are immutable for the lifetime of the process.
type Credentials struct {
	ClientKey    string `json:"client_key" validate:"required"`
	ClientSecret string `json:"client_secret" validate:"required"`
	RedirectURI  string `json:"redirect_uri" validate:"required,url"`
	// Scope is space-delimited. Empty means DefaultScope.
	Scope string `json:"scope,omitempty"`
}

// Scopes returns the requested scopes, falling back to DefaultScope.
func (c Credentials) Scopes() []string {
	scope := c.Scope
	if strings.TrimSpace(scope) == "" {
		scope = DefaultScope
	}
	return strings.Fields(scope)
}

// Validate checks that all required fields are present.
func (c Credentials) Validate() error {
	return validate.Struct(c)
}
