package oauth2

// AuthorizationParameters holds parameters for the OAuth2 authorization request.
// These arrive as query parameters at the /authorize endpoint.
type AuthorizationParameters struct {
	// ClientID identifies the application requesting authorization.
	// Validated against the client registry.
	ClientID string

	// ResponseType specifies what the authorization endpoint should return.
	// Only "code" is supported.
	ResponseType ResponseType

	// RedirectURI is where the authorization response will be sent.
	// Security: must exactly match a pre-registered URI to prevent open redirects.
	RedirectURI string

	// Scope is the space-separated set of permissions being requested.
	// Validated against the client's allowed scopes and the global scope set.
	Scope string

	// State is an opaque value the client uses to correlate the callback
	// with its request (CSRF protection). Echoed back verbatim on redirect.
	State string

	// CodeChallenge is the PKCE challenge derived from code_verifier.
	// Required when the client is flagged RequirePKCE.
	CodeChallenge string

	// CodeChallengeMethod specifies how code_challenge was derived ("S256" or "plain").
	CodeChallengeMethod CodeMethodType

	// Nonce is a random value bound into the ID token so the client can
	// detect replay. Only meaningful when the openid scope is requested.
	Nonce string
}

// TokenRequest holds the form parameters of a POST /token call.
type TokenRequest struct {
	GrantType    GrantType
	ClientID     string
	ClientSecret string
	Code         string
	RedirectURI  string
	CodeVerifier string
	RefreshToken string
	Scope        string
}
