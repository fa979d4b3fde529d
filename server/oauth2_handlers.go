package server

import (
	"encoding/json"
	"net/http"
	"net/url"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/docketlabs/docket-idp/interaction"
	"github.com/docketlabs/docket-idp/oauth2"
)

const (
	contentTypeHTML = "text/html; charset=utf-8"
	contentTypeJSON = "application/json; charset=utf-8"
)

// WellKnownOpenIDConfig serves the OIDC discovery document
func (s *Server) WellKnownOpenIDConfig() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		baseURL := s.config.GetIssuerURL()

		resp := map[string]any{
			"issuer":                 baseURL,
			"authorization_endpoint": baseURL + RouteAuthorize,
			"token_endpoint":         baseURL + RouteToken,
			"jwks_uri":               baseURL + RouteWellKnownJWKS,
			"end_session_endpoint":   baseURL + RouteLogout,

			"response_types_supported": []string{"code"},
			"response_modes_supported": []string{"query"},
			"subject_types_supported":  []string{"public"},

			"id_token_signing_alg_values_supported": []string{"RS256"},

			"scopes_supported": []string{
				"openid",
				"profile",
				"email",
				"address",
				"roles",
				DocketManagerScope,
			},

			"token_endpoint_auth_methods_supported": []string{
				"client_secret_post",
			},

			"grant_types_supported": []string{
				"authorization_code",
				"client_credentials",
				"refresh_token",
			},

			"code_challenge_methods_supported": []string{"S256", "plain"},
		}

		w.Header().Set("Content-Type", contentTypeJSON)
		w.Header().Set("Cache-Control", "public, max-age=3600") // Cache for 1 hour
		_ = json.NewEncoder(w).Encode(resp)
	}
}

// JWKS returns the JSON Web Key Set used to validate tokens
func (s *Server) JWKS() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		jwks, err := s.issuer.GetJWKS()
		if err != nil {
			writeJSONError(w, "server_error", "failed to get JWKS", http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", contentTypeJSON)
		w.Header().Set("Cache-Control", "public, max-age=3600") // Cache for 1 hour
		_ = json.NewEncoder(w).Encode(jwks)
	}
}

// Authorize begins the authorization flow. A valid request parks the
// parameters and sends the browser to the login page; an invalid one either
// bounces the error back to the client's registered redirect URI or, when no
// registered target is known, to the hosted error page.
func (s *Server) Authorize() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		params := parseAuthorizationParameters(r)

		pendingID, err := s.auth.Authorize(params)
		if err != nil {
			s.authorizeError(w, r, params, err)
			return
		}

		http.Redirect(w, r, RouteLogin+"?authRequestId="+url.QueryEscape(pendingID), http.StatusSeeOther)
	}
}

func (s *Server) authorizeError(w http.ResponseWriter, r *http.Request, params oauth2.AuthorizationParameters, err error) {
	oauthErr := asOAuthError(err)

	if s.auth.RedirectSafe(params.ClientID, params.RedirectURI) {
		u, parseErr := url.Parse(params.RedirectURI)
		if parseErr == nil {
			q := u.Query()
			q.Set("error", oauthErr.Code)
			if oauthErr.Description != "" && !s.config.IsProduction() {
				q.Set("error_description", oauthErr.Description)
			}
			if params.State != "" {
				q.Set("state", params.State)
			}
			u.RawQuery = q.Encode()
			http.Redirect(w, r, u.String(), http.StatusSeeOther)
			return
		}
	}

	// The redirect URI cannot be trusted, so the failure is parked and shown
	// on the hosted error page instead.
	errorID, createErr := s.interactions.Create(&interaction.ErrorContext{
		Code:        oauthErr.Code,
		Description: oauthErr.Description,
		ClientID:    params.ClientID,
	})
	if createErr != nil {
		log.Err(createErr).Msg("failed to store error context")
		writeJSONError(w, "server_error", "", http.StatusInternalServerError)
		return
	}

	http.Redirect(w, r, RouteError+"?errorId="+url.QueryEscape(errorID), http.StatusSeeOther)
}

// Token exchanges code/credentials for tokens
func (s *Server) Token() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			writeJSONError(w, "invalid_request", "failed to parse form data", http.StatusBadRequest)
			return
		}

		tokenReq := oauth2.TokenRequest{
			GrantType:    oauth2.GrantType(r.FormValue("grant_type")),
			ClientID:     r.FormValue("client_id"),
			ClientSecret: r.FormValue("client_secret"),
			Code:         r.FormValue("code"),
			RedirectURI:  r.FormValue("redirect_uri"),
			CodeVerifier: r.FormValue("code_verifier"),
			RefreshToken: r.FormValue("refresh_token"),
			Scope:        r.FormValue("scope"),
		}

		tokenResponse, err := s.auth.Token(tokenReq)
		if err != nil {
			oauthErr := asOAuthError(err)
			status := http.StatusBadRequest
			if errors.Is(oauthErr, oauth2.ErrInvalidClient) {
				status = http.StatusUnauthorized
			}
			if errors.Is(oauthErr, oauth2.ErrServerError) {
				status = http.StatusInternalServerError
			}
			writeJSONError(w, oauthErr.Code, oauthErr.Description, status)
			return
		}

		w.Header().Set("Content-Type", contentTypeJSON)
		w.Header().Set("Cache-Control", "no-store")
		w.Header().Set("Pragma", "no-cache")
		_ = json.NewEncoder(w).Encode(tokenResponse)
	}
}

// ErrorHandler shows a parked authorization failure. The description is only
// included outside production so internals never leak to end users.
func (s *Server) ErrorHandler() http.HandlerFunc {
	type errorPage struct {
		Error       string `json:"error"`
		Description string `json:"error_description,omitempty"`
	}

	return func(w http.ResponseWriter, r *http.Request) {
		page := errorPage{Error: "server_error"}

		errorID := r.URL.Query().Get("errorId")
		if errorID != "" {
			ctx, err := s.interactions.Get(errorID)
			if err == nil {
				page.Error = ctx.Code
				if !s.config.IsProduction() {
					page.Description = ctx.Description
				}
			} else if !errors.Is(err, interaction.ErrNotFound) {
				log.Err(err).Msg("failed to load error context")
			}
		}

		w.Header().Set("Content-Type", contentTypeJSON)
		_ = json.NewEncoder(w).Encode(page)
	}
}

// parseAuthorizationParameters extracts OAuth2 authorization parameters from the query string
func parseAuthorizationParameters(r *http.Request) oauth2.AuthorizationParameters {
	return oauth2.AuthorizationParameters{
		ClientID:            r.URL.Query().Get("client_id"),
		ResponseType:        oauth2.ResponseType(r.URL.Query().Get("response_type")),
		RedirectURI:         r.URL.Query().Get("redirect_uri"),
		Scope:               r.URL.Query().Get("scope"),
		State:               r.URL.Query().Get("state"),
		CodeChallenge:       r.URL.Query().Get("code_challenge"),
		CodeChallengeMethod: oauth2.CodeMethodType(r.URL.Query().Get("code_challenge_method")),
		Nonce:               r.URL.Query().Get("nonce"),
	}
}

// asOAuthError maps any failure onto a protocol error, defaulting to
// server_error for anything unexpected.
func asOAuthError(err error) *oauth2.Error {
	var oauthErr *oauth2.Error
	if errors.As(err, &oauthErr) {
		return oauthErr
	}
	log.Err(err).Msg("unexpected error mapped to server_error")
	return oauth2.ErrServerError
}

// writeJSONError writes an OAuth2 error response
func writeJSONError(w http.ResponseWriter, errorCode, description string, statusCode int) {
	w.Header().Set("Content-Type", contentTypeJSON)
	w.WriteHeader(statusCode)
	response := map[string]string{"error": errorCode}
	if description != "" {
		response["error_description"] = description
	}
	_ = json.NewEncoder(w).Encode(response)
}
