package oauth2

// TokenResponse is the token endpoint response format defined in RFC 6749.
// Returned from POST /token for all grant types.
type TokenResponse struct {
	// AccessToken is the JWT used to access protected resources.
	// Usage: "Authorization: Bearer <access_token>"
	AccessToken *string `json:"access_token,omitempty"`

	// IdToken is the OpenID Connect ID token containing user identity claims.
	// Only present when the "openid" scope was granted.
	IdToken *string `json:"id_token,omitempty"`

	// TokenType is always "bearer" in this implementation.
	TokenType string `json:"token_type,omitempty"`

	// ExpiresIn is the lifetime in seconds of the access token.
	ExpiresIn int `json:"expires_in,omitempty"`

	// RefreshToken is an opaque token for obtaining new access tokens.
	// Only present when the client allows offline access.
	RefreshToken *string `json:"refresh_token,omitempty"`

	// Scope is the space-separated set of scopes actually granted.
	Scope string `json:"scope,omitempty"`
}
