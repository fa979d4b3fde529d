package server

import (
	"encoding/json"
	"net/http"
	"net/url"
)

// Product is an item in the docket manager's sample catalogue.
type Product struct {
	ID    int     `json:"id"`
	Name  string  `json:"name"`
	Price float64 `json:"price"`
}

// TestProducts mirrors the sample catalogue served by the product API.
var TestProducts = []Product{
	{ID: 1, Name: "Docket binder", Price: 12.50},
	{ID: 2, Name: "Carbonless docket book", Price: 7.95},
	{ID: 3, Name: "Delivery docket pad", Price: 4.25},
	{ID: 4, Name: "Archive box", Price: 9.00},
}

// ProductsHandler serves the sample catalogue. RequireScope has already
// checked the bearer token before this runs.
func (s *Server) ProductsHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", contentTypeJSON)
		_ = json.NewEncoder(w).Encode(TestProducts)
	}
}

// HomeHandler describes the provider instance.
func (s *Server) HomeHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resp := map[string]any{
			"app":       s.config.GetAppName(),
			"issuer":    s.config.GetIssuerURL(),
			"discovery": s.config.GetIssuerURL() + RouteWellKnownOpenIDConfig,
		}
		w.Header().Set("Content-Type", contentTypeJSON)
		_ = json.NewEncoder(w).Encode(resp)
	}
}

// BackOfficeHandler returns the login URL the back-office iframe should load.
// The tenant is identified by a URL-friendly tenancy name; here it comes from
// configuration, in a real deployment it would derive from the customer's
// account.
func (s *Server) BackOfficeHandler() http.HandlerFunc {
	type backOfficePage struct {
		LoginURL string `json:"login_url"`
	}

	return func(w http.ResponseWriter, r *http.Request) {
		shop := url.QueryEscape(s.config.GetTenantName())
		page := backOfficePage{
			LoginURL: s.config.GetBackOfficeFrontendURL() + "account/login/docket-manager?shop=" + shop,
		}
		w.Header().Set("Content-Type", contentTypeJSON)
		_ = json.NewEncoder(w).Encode(page)
	}
}
