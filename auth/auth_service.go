// Package auth implements the authorization-code flow state machine and the
// token endpoint grants for the provider.
package auth

import (
	"crypto/sha256"
	"encoding/base64"
	"time"

	"github.com/pkg/errors"

	"github.com/docketlabs/docket-idp/authcode"
	"github.com/docketlabs/docket-idp/clients"
	"github.com/docketlabs/docket-idp/oauth2"
	"github.com/docketlabs/docket-idp/scopes"
	"github.com/docketlabs/docket-idp/token"
	"github.com/docketlabs/docket-idp/users"
)

const (
	defaultCodeTTL    = 5 * time.Minute
	defaultRefreshTTL = 7 * 24 * time.Hour
)

// ErrInvalidCredentials is returned by Login when the username or password is
// wrong. Callers must not reveal which of the two failed.
var ErrInvalidCredentials = errors.New("invalid username or password")

// Repos holds all repository dependencies for the AuthorizationService.
type Repos struct {
	Users   users.Repo
	Pending PendingRepo
	Codes   authcode.Store
	Refresh RefreshRepo
}

// LoginResult tells the login and consent handlers what to do next: either
// send the browser to the consent prompt, or complete the flow by redirecting
// back to the client with a code (or access_denied on refusal).
type LoginResult struct {
	NeedsConsent bool
	Denied       bool
	PendingID    string
	RedirectURI  string
	Code         string
	State        string
}

// AuthorizationService drives the authorization-code flow and serves token
// requests for every supported grant type.
type AuthorizationService struct {
	repos          Repos
	clientRegistry *clients.Registry
	scopeRegistry  *scopes.Registry
	issuer         *token.Issuer
	codeTTL        time.Duration
	refreshTTL     time.Duration
	nowTime        func() time.Time
}

// AuthorizationServiceOption defines a function type to modify the AuthorizationService instance.
type AuthorizationServiceOption func(*AuthorizationService)

// WithNowTime sets the now time function (primarily for testing)
func WithNowTime(nowFunc func() time.Time) AuthorizationServiceOption {
	return func(as *AuthorizationService) {
		as.nowTime = nowFunc
	}
}

// WithCodeTTL overrides the authorization code lifetime.
func WithCodeTTL(ttl time.Duration) AuthorizationServiceOption {
	return func(as *AuthorizationService) {
		as.codeTTL = ttl
	}
}

// WithRefreshTTL overrides the refresh token lifetime.
func WithRefreshTTL(ttl time.Duration) AuthorizationServiceOption {
	return func(as *AuthorizationService) {
		as.refreshTTL = ttl
	}
}

// NewAuthorizationService initializes a new AuthorizationService with required dependencies.
func NewAuthorizationService(
	repos Repos,
	clientRegistry *clients.Registry,
	scopeRegistry *scopes.Registry,
	issuer *token.Issuer,
	options ...AuthorizationServiceOption,
) (*AuthorizationService, error) {
	if repos.Users == nil {
		return nil, errors.New("[NewAuthorizationService] Users repo is required")
	}
	if repos.Pending == nil {
		return nil, errors.New("[NewAuthorizationService] Pending repo is required")
	}
	if repos.Codes == nil {
		return nil, errors.New("[NewAuthorizationService] Codes store is required")
	}
	if repos.Refresh == nil {
		return nil, errors.New("[NewAuthorizationService] Refresh repo is required")
	}
	if clientRegistry == nil {
		return nil, errors.New("[NewAuthorizationService] client registry is required")
	}
	if scopeRegistry == nil {
		return nil, errors.New("[NewAuthorizationService] scope registry is required")
	}
	if issuer == nil {
		return nil, errors.New("[NewAuthorizationService] issuer is required")
	}

	authService := &AuthorizationService{
		repos:          repos,
		clientRegistry: clientRegistry,
		scopeRegistry:  scopeRegistry,
		issuer:         issuer,
		codeTTL:        defaultCodeTTL,
		refreshTTL:     defaultRefreshTTL,
		nowTime:        time.Now,
	}

	for _, opt := range options {
		opt(authService)
	}

	return authService, nil
}

// RedirectSafe reports whether the request's redirect_uri is registered for
// the client. Only then may a protocol error travel back on the redirect;
// otherwise the handler must fall back to the hosted error page.
func (as *AuthorizationService) RedirectSafe(clientID, redirectURI string) bool {
	client, err := as.clientRegistry.Lookup(clientID)
	if err != nil {
		return false
	}
	return redirectURI != "" && client.RedirectAllowed(redirectURI)
}

// PostLogoutRedirectSafe reports whether the URI is registered as a
// post-logout redirect target for the client.
func (as *AuthorizationService) PostLogoutRedirectSafe(clientID, redirectURI string) bool {
	client, err := as.clientRegistry.Lookup(clientID)
	if err != nil {
		return false
	}
	return redirectURI != "" && client.PostLogoutRedirectAllowed(redirectURI)
}

// Authorize validates an incoming authorization request and parks it as a
// pending authorization awaiting login. Every failure is an *oauth2.Error.
func (as *AuthorizationService) Authorize(params oauth2.AuthorizationParameters) (string, error) {
	client, err := as.clientRegistry.Lookup(params.ClientID)
	if err != nil {
		return "", oauth2.ErrInvalidRequest.WithDescription("unknown client %q", params.ClientID)
	}

	if params.ResponseType != oauth2.CodeResponseType {
		return "", oauth2.ErrInvalidRequest.WithDescription("unsupported response_type %q", params.ResponseType)
	}

	if !client.HasGrantType(oauth2.AuthorizationCodeGrant) {
		return "", oauth2.ErrUnauthorizedClient.WithDescription("client is not allowed the authorization_code grant")
	}

	if params.RedirectURI == "" || !client.RedirectAllowed(params.RedirectURI) {
		return "", oauth2.ErrInvalidRequest.WithDescription("redirect_uri is not registered for this client")
	}

	requestedScopes := oauth2.SplitScopes(params.Scope)
	if len(requestedScopes) == 0 {
		return "", oauth2.ErrInvalidScope.WithDescription("scope is required")
	}
	for _, scope := range requestedScopes {
		if !as.scopeRegistry.Contains(scope) {
			return "", oauth2.ErrInvalidScope.WithDescription("unknown scope %q", scope)
		}
	}
	if err := client.ValidateScopes(requestedScopes); err != nil {
		return "", oauth2.ErrInvalidScope.WithDescription("scope not allowed for this client")
	}

	if client.RequirePKCE {
		if params.CodeChallenge == "" {
			return "", oauth2.ErrInvalidRequest.WithDescription("code_challenge is required")
		}
		switch params.CodeChallengeMethod {
		case oauth2.CodeMethodTypeS256, oauth2.CodeMethodTypePlain:
		case "":
			// RFC 7636 section 4.3: an omitted method means plain.
			params.CodeChallengeMethod = oauth2.CodeMethodTypePlain
		default:
			return "", oauth2.ErrInvalidRequest.WithDescription("unsupported code_challenge_method %q", params.CodeChallengeMethod)
		}
	}

	pending := NewPendingAuthorization(params)
	if err := as.repos.Pending.Upsert(pending); err != nil {
		return "", oauth2.ErrServerError.WithDescription("failed to store authorization request")
	}

	return pending.ID, nil
}

// Login authenticates the resource owner for a pending authorization. On
// success the flow either moves to consent or completes with a code redirect.
func (as *AuthorizationService) Login(pendingID, username, password string) (*LoginResult, error) {
	pending, err := as.repos.Pending.Get(pendingID)
	if err != nil {
		return nil, errors.Wrap(err, "[AuthorizationService.Login] pendingRepo.Get")
	}

	client, err := as.clientRegistry.Lookup(pending.Params.ClientID)
	if err != nil {
		return nil, errors.Wrap(err, "[AuthorizationService.Login] clientRegistry.Lookup")
	}

	user, err := as.repos.Users.GetByUsername(username)
	if err != nil {
		return nil, ErrInvalidCredentials
	}
	if !users.CheckPasswordHash(password, user.PasswordHash) {
		return nil, ErrInvalidCredentials
	}

	pending.Subject = user.Subject
	if err := as.repos.Pending.Upsert(pending); err != nil {
		return nil, errors.Wrap(err, "[AuthorizationService.Login] pendingRepo.Upsert")
	}

	if client.RequireConsent {
		return &LoginResult{NeedsConsent: true, PendingID: pendingID}, nil
	}

	return as.completeAuthorization(pending)
}

// Consent records the resource owner's decision for a pending authorization.
// Approval issues the code; refusal redirects back with access_denied.
func (as *AuthorizationService) Consent(pendingID string, approved bool) (*LoginResult, error) {
	pending, err := as.repos.Pending.Get(pendingID)
	if err != nil {
		return nil, errors.Wrap(err, "[AuthorizationService.Consent] pendingRepo.Get")
	}
	if pending.Subject == "" {
		return nil, errors.New("[AuthorizationService.Consent] authorization has no authenticated subject")
	}

	if !approved {
		_ = as.repos.Pending.Delete(pendingID)
		return &LoginResult{
			Denied:      true,
			RedirectURI: pending.Params.RedirectURI,
			State:       pending.Params.State,
		}, nil
	}

	return as.completeAuthorization(pending)
}

func (as *AuthorizationService) completeAuthorization(pending *PendingAuthorization) (*LoginResult, error) {
	code, err := authcode.Generate()
	if err != nil {
		return nil, errors.Wrap(err, "[AuthorizationService.completeAuthorization] authcode.Generate")
	}

	err = as.repos.Codes.Save(code, &authcode.Code{
		ClientID:            pending.Params.ClientID,
		Subject:             pending.Subject,
		Scopes:              oauth2.SplitScopes(pending.Params.Scope),
		RedirectURI:         pending.Params.RedirectURI,
		CodeChallenge:       pending.Params.CodeChallenge,
		CodeChallengeMethod: pending.Params.CodeChallengeMethod,
		Nonce:               pending.Params.Nonce,
		ExpiresAt:           as.nowTime().Add(as.codeTTL),
	})
	if err != nil {
		return nil, errors.Wrap(err, "[AuthorizationService.completeAuthorization] codes.Save")
	}

	_ = as.repos.Pending.Delete(pending.ID)

	return &LoginResult{
		RedirectURI: pending.Params.RedirectURI,
		Code:        code,
		State:       pending.Params.State,
	}, nil
}

// Token handles the OAuth 2.0 token request.
func (as *AuthorizationService) Token(request oauth2.TokenRequest) (*oauth2.TokenResponse, error) {
	switch request.GrantType {
	case oauth2.AuthorizationCodeGrant:
		return as.authorizationCodeGrant(request)
	case oauth2.ClientCredentialsGrant:
		return as.clientCredentialsGrant(request)
	case oauth2.RefreshTokenGrant:
		return as.refreshTokenGrant(request)
	default:
		return nil, oauth2.ErrUnsupportedGrantType.WithDescription("grant_type %q is not supported", request.GrantType)
	}
}

func (as *AuthorizationService) authorizationCodeGrant(request oauth2.TokenRequest) (*oauth2.TokenResponse, error) {
	client, err := as.authenticateClient(request.ClientID, request.ClientSecret)
	if err != nil {
		return nil, err
	}
	if !client.HasGrantType(oauth2.AuthorizationCodeGrant) {
		return nil, oauth2.ErrUnauthorizedClient.WithDescription("client is not allowed the authorization_code grant")
	}

	code, err := as.repos.Codes.Consume(request.Code)
	if err != nil {
		return nil, oauth2.ErrInvalidGrant.WithDescription("authorization code is invalid or expired")
	}

	if code.ClientID != client.ID {
		return nil, oauth2.ErrInvalidGrant.WithDescription("authorization code was issued to a different client")
	}
	if code.RedirectURI != request.RedirectURI {
		return nil, oauth2.ErrInvalidGrant.WithDescription("redirect_uri does not match the authorization request")
	}
	if client.RequirePKCE && code.CodeChallenge == "" {
		return nil, oauth2.ErrInvalidGrant.WithDescription("authorization code was issued without a code challenge")
	}
	if !checkCodeChallenge(code.CodeChallenge, request.CodeVerifier, code.CodeChallengeMethod) {
		return nil, oauth2.ErrInvalidGrant.WithDescription("code verifier check failed")
	}

	user, err := as.repos.Users.GetBySubject(code.Subject)
	if err != nil {
		return nil, oauth2.ErrInvalidGrant.WithDescription("subject no longer exists")
	}

	return as.issueTokens(user, client, code.Scopes, code.Nonce)
}

func (as *AuthorizationService) clientCredentialsGrant(request oauth2.TokenRequest) (*oauth2.TokenResponse, error) {
	client, err := as.authenticateClient(request.ClientID, request.ClientSecret)
	if err != nil {
		return nil, err
	}
	if !client.HasGrantType(oauth2.ClientCredentialsGrant) {
		return nil, oauth2.ErrUnauthorizedClient.WithDescription("client is not allowed the client_credentials grant")
	}

	// Machine tokens carry API scopes only; identity resources make no sense
	// without a user.
	grantedScopes := as.scopeRegistry.ApiScopes(client.Scopes)
	if request.Scope != "" {
		requested := oauth2.SplitScopes(request.Scope)
		if err := client.ValidateScopes(requested); err != nil {
			return nil, oauth2.ErrInvalidScope.WithDescription("scope not allowed for this client")
		}
		grantedScopes = as.scopeRegistry.ApiScopes(requested)
	}
	if len(grantedScopes) == 0 {
		return nil, oauth2.ErrInvalidScope.WithDescription("no API scopes granted")
	}

	accessToken, err := as.issuer.IssueAccessToken(nil, client, grantedScopes)
	if err != nil {
		return nil, oauth2.ErrServerError.WithDescription("failed to issue access token")
	}

	return &oauth2.TokenResponse{
		AccessToken: accessToken,
		TokenType:   "Bearer",
		ExpiresIn:   as.issuer.AccessTokenExpiresIn(),
		Scope:       oauth2.JoinScopes(grantedScopes),
	}, nil
}

func (as *AuthorizationService) refreshTokenGrant(request oauth2.TokenRequest) (*oauth2.TokenResponse, error) {
	client, err := as.authenticateClient(request.ClientID, request.ClientSecret)
	if err != nil {
		return nil, err
	}
	if !client.HasGrantType(oauth2.AuthorizationCodeGrant) || !client.AllowOfflineAccess {
		return nil, oauth2.ErrUnauthorizedClient.WithDescription("client is not allowed the refresh_token grant")
	}

	refreshToken, err := as.repos.Refresh.Consume(request.RefreshToken)
	if err != nil {
		return nil, oauth2.ErrInvalidGrant.WithDescription("refresh token is invalid or expired")
	}
	if refreshToken.ClientID != client.ID {
		return nil, oauth2.ErrInvalidGrant.WithDescription("refresh token was issued to a different client")
	}

	user, err := as.repos.Users.GetBySubject(refreshToken.Subject)
	if err != nil {
		return nil, oauth2.ErrInvalidGrant.WithDescription("subject no longer exists")
	}

	return as.issueTokens(user, client, refreshToken.Scopes, "")
}

// RevokeSubjectSessions drops all refresh tokens for a subject, called from
// the end-session endpoint.
func (as *AuthorizationService) RevokeSubjectSessions(subject string) error {
	if err := as.repos.Refresh.RevokeForSubject(subject); err != nil {
		return errors.Wrap(err, "[AuthorizationService.RevokeSubjectSessions] refresh.RevokeForSubject")
	}
	return nil
}

// CleanupExpiredCodes removes authorization codes that were never redeemed.
func (as *AuthorizationService) CleanupExpiredCodes() {
	as.repos.Codes.Cleanup()
}

func (as *AuthorizationService) authenticateClient(clientID, clientSecret string) (*clients.Client, error) {
	client, err := as.clientRegistry.Lookup(clientID)
	if err != nil {
		return nil, oauth2.ErrInvalidClient.WithDescription("client authentication failed")
	}
	if !client.CheckSecret(clientSecret) {
		return nil, oauth2.ErrInvalidClient.WithDescription("client authentication failed")
	}
	return client, nil
}

func (as *AuthorizationService) issueTokens(user *users.User, client *clients.Client, grantedScopes []string, nonce string) (*oauth2.TokenResponse, error) {
	accessToken, err := as.issuer.IssueAccessToken(user, client, grantedScopes)
	if err != nil {
		return nil, oauth2.ErrServerError.WithDescription("failed to issue access token")
	}

	response := &oauth2.TokenResponse{
		AccessToken: accessToken,
		TokenType:   "Bearer",
		ExpiresIn:   as.issuer.AccessTokenExpiresIn(),
		Scope:       oauth2.JoinScopes(grantedScopes),
	}

	if oauth2.ContainsScope(grantedScopes, oauth2.OpenIDScope) {
		idToken, err := as.issuer.IssueIDToken(user, client, grantedScopes, nonce)
		if err != nil {
			return nil, oauth2.ErrServerError.WithDescription("failed to issue ID token")
		}
		response.IdToken = idToken
	}

	if client.AllowOfflineAccess {
		value, err := GenerateRefreshToken()
		if err != nil {
			return nil, oauth2.ErrServerError.WithDescription("failed to issue refresh token")
		}
		err = as.repos.Refresh.Save(&RefreshToken{
			Token:     value,
			ClientID:  client.ID,
			Subject:   user.Subject,
			Scopes:    grantedScopes,
			ExpiresAt: as.nowTime().Add(as.refreshTTL),
		})
		if err != nil {
			return nil, oauth2.ErrServerError.WithDescription("failed to store refresh token")
		}
		response.RefreshToken = &value
	}

	return response, nil
}

func checkCodeChallenge(storedChallenge, verifier string, method oauth2.CodeMethodType) bool {
	if storedChallenge == "" && verifier == "" { // No PKCE code challenge
		return true
	}
	switch method {
	case oauth2.CodeMethodTypeS256:
		hash := sha256.Sum256([]byte(verifier))
		return base64.URLEncoding.WithPadding(base64.NoPadding).EncodeToString(hash[:]) == storedChallenge
	case oauth2.CodeMethodTypePlain, "": // omitted method defaults to plain
		return storedChallenge == verifier
	}
	return false
}
