package common

// TokenCookieName is the cookie holding the session token for browser clients.
const TokenCookieName = "token"

// Account providers.
const (
	ProviderCredentials = "credentials"
	ProviderGoogle      = "google"
)
