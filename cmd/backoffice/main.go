// Command backoffice is a small relying party that exercises the provider the
// way the docket-manager back office does: authorization code with PKCE,
// ID token verification through the discovery document, then a call to the
// bearer-protected product API.
package main

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"sync"

	"github.com/coreos/go-oidc/v3/oidc"
	"golang.org/x/oauth2"
)

const (
	defaultIssuer   = "http://localhost:5000"
	defaultListen   = ":5002"
	defaultClientID = "docket-manager"
	callbackPath    = "/signin-docket-manager"
)

type relyingParty struct {
	oauth2Config *oauth2.Config
	verifier     *oidc.IDTokenVerifier
	issuerURL    string

	mu       sync.Mutex
	requests map[string]flowState // keyed by state
}

type flowState struct {
	codeVerifier string
	nonce        string
}

func main() {
	issuerURL := envOr("IDP_ISSUER", defaultIssuer)
	listenAddr := envOr("BACKOFFICE_LISTEN", defaultListen)
	clientID := envOr("BACKOFFICE_CLIENT_ID", defaultClientID)
	clientSecret := envOr("BACKOFFICE_CLIENT_SECRET", "secret")
	externalURL := envOr("BACKOFFICE_URL", "http://localhost"+listenAddr)

	ctx := context.Background()
	provider, err := oidc.NewProvider(ctx, issuerURL)
	if err != nil {
		log.Fatalf("discovery failed: %v", err)
	}

	rp := &relyingParty{
		oauth2Config: &oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			Endpoint:     provider.Endpoint(),
			RedirectURL:  externalURL + callbackPath,
			Scopes:       []string{oidc.ScopeOpenID, "profile", "email", "roles", "docket-manager"},
		},
		verifier:  provider.Verifier(&oidc.Config{ClientID: clientID}),
		issuerURL: issuerURL,
		requests:  make(map[string]flowState),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", rp.startFlow)
	mux.HandleFunc("GET "+callbackPath, rp.callback)

	log.Printf("back office listening on %s (issuer %s)", listenAddr, issuerURL)
	if err := http.ListenAndServe(listenAddr, mux); err != nil {
		log.Fatal(err)
	}
}

func (rp *relyingParty) startFlow(w http.ResponseWriter, r *http.Request) {
	state := randomValue()
	nonce := randomValue()
	codeVerifier := oauth2.GenerateVerifier()

	rp.mu.Lock()
	rp.requests[state] = flowState{codeVerifier: codeVerifier, nonce: nonce}
	rp.mu.Unlock()

	authURL := rp.oauth2Config.AuthCodeURL(state,
		oauth2.S256ChallengeOption(codeVerifier),
		oauth2.SetAuthURLParam("nonce", nonce),
	)
	http.Redirect(w, r, authURL, http.StatusFound)
}

func (rp *relyingParty) callback(w http.ResponseWriter, r *http.Request) {
	if errParam := r.URL.Query().Get("error"); errParam != "" {
		http.Error(w, "authorization failed: "+errParam, http.StatusBadRequest)
		return
	}

	state := r.URL.Query().Get("state")
	rp.mu.Lock()
	flow, ok := rp.requests[state]
	delete(rp.requests, state)
	rp.mu.Unlock()
	if !ok {
		http.Error(w, "unknown state", http.StatusBadRequest)
		return
	}

	oauth2Token, err := rp.oauth2Config.Exchange(r.Context(), r.URL.Query().Get("code"),
		oauth2.VerifierOption(flow.codeVerifier))
	if err != nil {
		http.Error(w, "token exchange failed: "+err.Error(), http.StatusInternalServerError)
		return
	}

	rawIDToken, ok := oauth2Token.Extra("id_token").(string)
	if !ok {
		http.Error(w, "no ID token in response", http.StatusInternalServerError)
		return
	}

	idToken, err := rp.verifier.Verify(r.Context(), rawIDToken)
	if err != nil {
		http.Error(w, "ID token verification failed: "+err.Error(), http.StatusInternalServerError)
		return
	}

	var claims struct {
		Nonce string `json:"nonce"`
		Sub   string `json:"sub"`
		Name  string `json:"name"`
		Email string `json:"email"`
	}
	if err := idToken.Claims(&claims); err != nil {
		http.Error(w, "failed to extract claims: "+err.Error(), http.StatusInternalServerError)
		return
	}
	if claims.Nonce != flow.nonce {
		http.Error(w, "invalid nonce", http.StatusUnauthorized)
		return
	}

	products, err := rp.fetchProducts(r.Context(), oauth2Token)
	if err != nil {
		http.Error(w, "product API call failed: "+err.Error(), http.StatusBadGateway)
		return
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"signed_in_as": claims,
		"products":     json.RawMessage(products),
	})
}

func (rp *relyingParty) fetchProducts(ctx context.Context, tok *oauth2.Token) ([]byte, error) {
	client := rp.oauth2Config.Client(ctx, tok)
	resp, err := client.Get(rp.issuerURL + "/api/products")
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %s", resp.Status)
	}
	return io.ReadAll(resp.Body)
}

func randomValue() string {
	bytes := make([]byte, 16)
	if _, err := rand.Read(bytes); err != nil {
		log.Fatal(err)
	}
	return base64.RawURLEncoding.EncodeToString(bytes)
}

func envOr(name, fallback string) string {
	if value := os.Getenv(name); value != "" {
		return value
	}
	return fallback
}
