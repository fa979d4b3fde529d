// Package server exposes the provider over HTTP: the OAuth2/OIDC endpoints,
// the login and consent pages, the hosted error page and the bearer-protected
// sample product API.
package server

import (
	"fmt"
	"net/http"

	"github.com/docketlabs/docket-idp/auth"
	"github.com/docketlabs/docket-idp/interaction"
	"github.com/docketlabs/docket-idp/internal/config"
	"github.com/docketlabs/docket-idp/token"
)

// DocketManagerScope is the API scope guarding the product endpoints.
const DocketManagerScope = "docket-manager"

type Server struct {
	env          string
	mux          *http.ServeMux
	routes       []string
	config       config.Config
	auth         *auth.AuthorizationService
	issuer       *token.Issuer
	validator    *token.Validator
	interactions interaction.Repo
}

func New(
	cfg config.Config,
	authService *auth.AuthorizationService,
	issuer *token.Issuer,
	validator *token.Validator,
	interactions interaction.Repo,
) (*Server, error) {
	if cfg == nil {
		return nil, fmt.Errorf("[Server New] config is required")
	}
	if authService == nil {
		return nil, fmt.Errorf("[Server New] authorization service is required")
	}
	if issuer == nil {
		return nil, fmt.Errorf("[Server New] token issuer is required")
	}
	if validator == nil {
		return nil, fmt.Errorf("[Server New] token validator is required")
	}
	if interactions == nil {
		return nil, fmt.Errorf("[Server New] interaction repo is required")
	}

	s := &Server{
		env:          cfg.GetEnv(),
		mux:          http.NewServeMux(),
		config:       cfg,
		auth:         authService,
		issuer:       issuer,
		validator:    validator,
		interactions: interactions,
	}

	s.initRoutes()

	return s, nil
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

func (s *Server) RegisterRouteHandler(pattern string, handler http.Handler) {
	s.routes = append(s.routes, pattern)
	s.mux.Handle(pattern, handler)
}

func (s *Server) RegisterRouteFunc(pattern string, handler func(http.ResponseWriter, *http.Request)) {
	s.routes = append(s.routes, pattern)
	s.mux.HandleFunc(pattern, handler)
}

func (s *Server) initRoutes() {
	// Pages. Frame headers stay open so the back office can embed them.
	s.RegisterRouteHandler("GET /{$}", ChainMiddleware(s.HomeHandler(), s.PageMiddleware()...))
	s.RegisterRouteHandler("GET "+RouteBackOffice, ChainMiddleware(s.BackOfficeHandler(), s.PageMiddleware()...))
	s.RegisterRouteHandler("GET "+RouteError, ChainMiddleware(s.ErrorHandler(), s.PageMiddleware()...))

	// Login, consent and logout
	s.RegisterRouteHandler("GET "+RouteLogin, ChainMiddleware(s.LoginPageHandler(), s.PageMiddleware()...))
	s.RegisterRouteHandler("POST "+RouteLogin, ChainMiddleware(s.LoginSubmissionHandler(), s.PageMiddleware()...))
	s.RegisterRouteHandler("POST "+RouteConsent, ChainMiddleware(s.ConsentHandler(), s.PageMiddleware()...))
	s.RegisterRouteHandler("GET "+RouteLogout, ChainMiddleware(s.LogoutHandler(), s.PageMiddleware()...))

	// OAuth2 / OIDC endpoints
	s.RegisterRouteHandler("GET "+RouteWellKnownOpenIDConfig, ChainMiddleware(s.WellKnownOpenIDConfig(), s.APIMiddleware()...))
	s.RegisterRouteHandler("GET "+RouteWellKnownJWKS, ChainMiddleware(s.JWKS(), s.APIMiddleware()...))
	s.RegisterRouteHandler("GET "+RouteAuthorize, ChainMiddleware(s.Authorize(), s.PageMiddleware()...))
	s.RegisterRouteHandler("POST "+RouteToken, ChainMiddleware(s.Token(), s.APIMiddleware()...))

	// Protected product API
	s.RegisterRouteHandler("GET "+RouteAPIProducts,
		ChainMiddleware(s.ProductsHandler(), append(s.APIMiddleware(), s.RequireScope(DocketManagerScope))...))
}
