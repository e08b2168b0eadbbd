package types

// RegistryCredentials holds basic auth credentials.
type RegistryCredentials struct {
	Username string `json:"username"` // Registry username.
	Password string `json:"password"` // Registry token or password.
}

// TokenResponse is the body returned by a registry token endpoint.
type TokenResponse struct {
	Token       string `json:"token"`
	AccessToken string `json:"access_token"` //nolint:tagliatelle
	ExpiresIn   int    `json:"expires_in"`   //nolint:tagliatelle
}

// RegistryObserver receives counts of registry traffic and cache lookups.
type RegistryObserver interface {
	RegistryRequest(endpoint string, statusCode int)
	CacheLookup(result string)
}
