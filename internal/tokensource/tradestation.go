package tokensource

import (
	"golang.org/x/oauth2"
)

const (
	// Audience identifies the brokerage API the access token is issued for.
	Audience = "https://api.tradestation.com"

	// LiveBaseURL and PaperBaseURL are the REST API roots for real and simulated trading.
	LiveBaseURL  = "https://api.tradestation.com/v3"
	PaperBaseURL = "https://sim-api.tradestation.com/v3"
)

// Endpoint defines the OAuth2 endpoints for TradeStation authentication.
// Client credentials travel in the form body of both grants.
var Endpoint = oauth2.Endpoint{
	AuthURL:   "https://signin.tradestation.com/authorize",
	TokenURL:  "https://signin.tradestation.com/oauth/token",
	AuthStyle: oauth2.AuthStyleInParams,
}
