// Package tokensource provides OAuth2 token acquisition and automatic refresh
// for the TradeStation API.
//
// # Authorization Flow
//
// Use Authorizer for the interactive authorization-code grant:
//
//	a := tokensource.NewAuthorizer(creds, tokensource.Endpoint,
//		tokensource.WithPrompter(&tokensource.StdinPrompter{}))
//	token, err := a.Run(ctx)
//	// persist token, it is not stored by Run
//
// Run generates a single-use state value, presents the authorization URL,
// waits for the redirect URL and validates its state before any request is
// sent to the token endpoint.
//
// # Token Lifecycle
//
// Use NewManager to keep an access token fresh:
//
//	m, err := tokensource.NewManager(creds, tokensource.Endpoint, store, token)
//	accessToken, err := m.AccessToken(ctx)
//	// Manager implements oauth2.TokenSource and can be used with oauth2.Transport
//
// A stale token is refreshed with the refresh-token grant, written back to the
// store and returned. Concurrent callers share one refresh.
//
// # Custom Base Transport
//
// Configure a custom base transport for token endpoint requests (e.g., for
// proxies or tests):
//
//	m, err := tokensource.NewManager(creds, tokensource.Endpoint, store, token,
//		tokensource.WithTransport(customTransport),
//		tokensource.WithTimeout(10*time.Second),
//	)
package tokensource
