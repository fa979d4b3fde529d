package server

// Route path constants
// All application routes are defined here to ensure consistency and prevent typos
const (
	// Interactive routes
	RouteHome       = "/"
	RouteBackOffice = "/backoffice"
	RouteLogin      = "/login"
	RouteConsent    = "/consent"
	RouteLogout     = "/logout"
	RouteError      = "/error"

	// OAuth2 / OIDC Routes
	RouteWellKnownOpenIDConfig = "/.well-known/openid-configuration"
	RouteWellKnownJWKS         = "/.well-known/jwks.json"
	RouteAuthorize             = "/authorize"
	RouteToken                 = "/token"

	// API Routes
	RouteAPIProducts = "/api/products"
)
