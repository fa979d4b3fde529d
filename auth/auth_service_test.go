package auth_test

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/docketlabs/docket-idp/auth"
	"github.com/docketlabs/docket-idp/authcode"
	"github.com/docketlabs/docket-idp/clients"
	"github.com/docketlabs/docket-idp/oauth2"
	"github.com/docketlabs/docket-idp/scopes"
	"github.com/docketlabs/docket-idp/token"
	"github.com/docketlabs/docket-idp/token/keys"
	"github.com/docketlabs/docket-idp/users"
)

const (
	testIssuer        = "http://localhost:5000"
	testAudience      = "docket-manager"
	testClientID      = "test-client-1"
	testClientSecret  = "test-secret-1"
	testUserSubject   = "user-1"
	testUsername      = "john.doe"
	testUserPassword  = "password123"
	testRedirectURI   = "http://localhost:3000/callback"
	testState         = "random-state-value"
	testCodeChallenge = "E9Melhoa2OwvFrEMTJguCHaoeK1t8URWbuGJSstw-cM"
	testCodeVerifier  = "dBjftJeZ4CVP-mB92K27uhbUJU1p1r_wW1gFWFOEjXk"
	testNonce         = "random-nonce-value"
	testScope         = "openid profile docket-manager"
)

// testFixture holds all test dependencies
type testFixture struct {
	userRepo    users.Repo
	pendingRepo auth.PendingRepo
	codeStore   authcode.Store
	refreshRepo auth.RefreshRepo
	service     *auth.AuthorizationService
}

func setupTestFixture(t *testing.T, clientChanges ...func(*clients.Client)) *testFixture {
	t.Helper()

	keyPair, err := keys.GenerateRSAKeyPair(uuid.New().String(), 2048)
	require.NoError(t, err)

	scopeRegistry := scopes.NewRegistry(
		[]scopes.ApiScope{{Name: "docket-manager"}},
		scopes.DefaultIdentityResources(),
	)

	issuer, err := token.New(keys.NewKeyPairSigner(keyPair), scopeRegistry, testIssuer, testAudience)
	require.NoError(t, err)

	secretHash, err := clients.HashSecret(testClientSecret)
	require.NoError(t, err)

	client := &clients.Client{
		ID:         testClientID,
		SecretHash: secretHash,
		GrantTypes: []oauth2.GrantType{
			oauth2.AuthorizationCodeGrant,
			oauth2.ClientCredentialsGrant,
			oauth2.RefreshTokenGrant,
		},
		Scopes:                  []string{"openid", "profile", "docket-manager"},
		RedirectURIs:            []string{testRedirectURI},
		RequirePKCE:             true,
		AllowOfflineAccess:      true,
		AlwaysIncludeUserClaims: true,
	}
	for _, change := range clientChanges {
		change(client)
	}

	userRepo := users.NewInMemoryRepo()
	passwordHash, err := users.HashPassword(testUserPassword)
	require.NoError(t, err)
	require.NoError(t, userRepo.Upsert(&users.User{
		Subject:      testUserSubject,
		Username:     testUsername,
		PasswordHash: passwordHash,
		FirstName:    "John",
		LastName:     "Doe",
		Roles:        []string{"admin"},
	}))

	pendingRepo := auth.NewInMemoryPendingRepo()
	codeStore := authcode.NewInMemoryStore()
	refreshRepo := auth.NewInMemoryRefreshRepo()

	service, err := auth.NewAuthorizationService(
		auth.Repos{
			Users:   userRepo,
			Pending: pendingRepo,
			Codes:   codeStore,
			Refresh: refreshRepo,
		},
		clients.NewRegistry([]*clients.Client{client}),
		scopeRegistry,
		issuer,
	)
	require.NoError(t, err)

	return &testFixture{
		userRepo:    userRepo,
		pendingRepo: pendingRepo,
		codeStore:   codeStore,
		refreshRepo: refreshRepo,
		service:     service,
	}
}

func authorizationParams() oauth2.AuthorizationParameters {
	return oauth2.AuthorizationParameters{
		ClientID:            testClientID,
		ResponseType:        oauth2.CodeResponseType,
		RedirectURI:         testRedirectURI,
		Scope:               testScope,
		State:               testState,
		CodeChallenge:       testCodeChallenge,
		CodeChallengeMethod: oauth2.CodeMethodTypeS256,
		Nonce:               testNonce,
	}
}

// runCodeFlow drives authorize+login and returns the issued code.
func (f *testFixture) runCodeFlow(t *testing.T) string {
	t.Helper()

	pendingID, err := f.service.Authorize(authorizationParams())
	require.NoError(t, err)

	result, err := f.service.Login(pendingID, testUsername, testUserPassword)
	require.NoError(t, err)
	require.False(t, result.NeedsConsent)
	require.Equal(t, testRedirectURI, result.RedirectURI)
	require.Equal(t, testState, result.State)
	require.NotEmpty(t, result.Code)

	return result.Code
}

func codeTokenRequest(code string) oauth2.TokenRequest {
	return oauth2.TokenRequest{
		GrantType:    oauth2.AuthorizationCodeGrant,
		ClientID:     testClientID,
		ClientSecret: testClientSecret,
		Code:         code,
		RedirectURI:  testRedirectURI,
		CodeVerifier: testCodeVerifier,
	}
}

func TestAuthorizeUnknownClient(t *testing.T) {
	f := setupTestFixture(t)

	params := authorizationParams()
	params.ClientID = "no-such-client"

	_, err := f.service.Authorize(params)
	require.ErrorIs(t, err, oauth2.ErrInvalidRequest)
}

func TestAuthorizeUnregisteredRedirectURI(t *testing.T) {
	f := setupTestFixture(t)

	params := authorizationParams()
	params.RedirectURI = "http://evil.example.com/callback"

	_, err := f.service.Authorize(params)
	require.ErrorIs(t, err, oauth2.ErrInvalidRequest)
	require.False(t, f.service.RedirectSafe(params.ClientID, params.RedirectURI))
}

func TestAuthorizeRedirectURIMustMatchExactly(t *testing.T) {
	f := setupTestFixture(t)

	params := authorizationParams()
	params.RedirectURI = testRedirectURI + "/extra"

	_, err := f.service.Authorize(params)
	require.ErrorIs(t, err, oauth2.ErrInvalidRequest)
}

func TestAuthorizeScopeOutsideClientAllowance(t *testing.T) {
	f := setupTestFixture(t)

	params := authorizationParams()
	params.Scope = "openid email"

	_, err := f.service.Authorize(params)
	require.ErrorIs(t, err, oauth2.ErrInvalidScope)
}

func TestAuthorizeUnknownScope(t *testing.T) {
	f := setupTestFixture(t)

	params := authorizationParams()
	params.Scope = "openid not-a-scope"

	_, err := f.service.Authorize(params)
	require.ErrorIs(t, err, oauth2.ErrInvalidScope)
}

func TestAuthorizeMissingCodeChallenge(t *testing.T) {
	f := setupTestFixture(t)

	params := authorizationParams()
	params.CodeChallenge = ""

	_, err := f.service.Authorize(params)
	require.ErrorIs(t, err, oauth2.ErrInvalidRequest)
}

func TestLoginWrongPassword(t *testing.T) {
	f := setupTestFixture(t)

	pendingID, err := f.service.Authorize(authorizationParams())
	require.NoError(t, err)

	_, err = f.service.Login(pendingID, testUsername, "wrong-password")
	require.ErrorIs(t, err, auth.ErrInvalidCredentials)

	_, err = f.service.Login(pendingID, "no-such-user", testUserPassword)
	require.ErrorIs(t, err, auth.ErrInvalidCredentials)
}

func TestConsentRequiredWhenClientAsksForIt(t *testing.T) {
	f := setupTestFixture(t, func(c *clients.Client) { c.RequireConsent = true })

	pendingID, err := f.service.Authorize(authorizationParams())
	require.NoError(t, err)

	result, err := f.service.Login(pendingID, testUsername, testUserPassword)
	require.NoError(t, err)
	require.True(t, result.NeedsConsent)

	approved, err := f.service.Consent(result.PendingID, true)
	require.NoError(t, err)
	require.NotEmpty(t, approved.Code)
	require.Equal(t, testState, approved.State)
}

func TestConsentDenied(t *testing.T) {
	f := setupTestFixture(t, func(c *clients.Client) { c.RequireConsent = true })

	pendingID, err := f.service.Authorize(authorizationParams())
	require.NoError(t, err)

	result, err := f.service.Login(pendingID, testUsername, testUserPassword)
	require.NoError(t, err)
	require.True(t, result.NeedsConsent)

	denied, err := f.service.Consent(result.PendingID, false)
	require.NoError(t, err)
	require.True(t, denied.Denied)
	require.Empty(t, denied.Code)
	require.Equal(t, testRedirectURI, denied.RedirectURI)
	require.Equal(t, testState, denied.State)
}

func TestAuthorizationCodeGrant(t *testing.T) {
	f := setupTestFixture(t)

	code := f.runCodeFlow(t)

	response, err := f.service.Token(codeTokenRequest(code))
	require.NoError(t, err)
	require.NotNil(t, response.AccessToken)
	require.NotNil(t, response.IdToken)
	require.NotNil(t, response.RefreshToken)
	require.Equal(t, "Bearer", response.TokenType)
	require.Equal(t, testScope, response.Scope)
}

func TestAuthorizationCodeIsSingleUse(t *testing.T) {
	f := setupTestFixture(t)

	code := f.runCodeFlow(t)

	_, err := f.service.Token(codeTokenRequest(code))
	require.NoError(t, err)

	_, err = f.service.Token(codeTokenRequest(code))
	require.ErrorIs(t, err, oauth2.ErrInvalidGrant)
}

func TestAuthorizationCodeWrongVerifier(t *testing.T) {
	f := setupTestFixture(t)

	code := f.runCodeFlow(t)

	request := codeTokenRequest(code)
	request.CodeVerifier = "not-the-right-verifier-not-the-right"

	_, err := f.service.Token(request)
	require.ErrorIs(t, err, oauth2.ErrInvalidGrant)
}

func TestAuthorizationCodePlainMethod(t *testing.T) {
	f := setupTestFixture(t)

	params := authorizationParams()
	params.CodeChallenge = testCodeVerifier
	params.CodeChallengeMethod = oauth2.CodeMethodTypePlain

	pendingID, err := f.service.Authorize(params)
	require.NoError(t, err)
	result, err := f.service.Login(pendingID, testUsername, testUserPassword)
	require.NoError(t, err)

	_, err = f.service.Token(codeTokenRequest(result.Code))
	require.NoError(t, err)
}

func TestAuthorizationCodeOmittedMethodDefaultsToPlain(t *testing.T) {
	f := setupTestFixture(t)

	params := authorizationParams()
	params.CodeChallenge = testCodeVerifier
	params.CodeChallengeMethod = ""

	pendingID, err := f.service.Authorize(params)
	require.NoError(t, err)
	result, err := f.service.Login(pendingID, testUsername, testUserPassword)
	require.NoError(t, err)

	_, err = f.service.Token(codeTokenRequest(result.Code))
	require.NoError(t, err)
}

func TestAuthorizationCodeRedirectMismatch(t *testing.T) {
	f := setupTestFixture(t)

	code := f.runCodeFlow(t)

	request := codeTokenRequest(code)
	request.RedirectURI = "http://localhost:3000/other"

	_, err := f.service.Token(request)
	require.ErrorIs(t, err, oauth2.ErrInvalidGrant)
}

func TestAuthorizationCodeWrongClientSecret(t *testing.T) {
	f := setupTestFixture(t)

	code := f.runCodeFlow(t)

	request := codeTokenRequest(code)
	request.ClientSecret = "wrong-secret"

	_, err := f.service.Token(request)
	require.ErrorIs(t, err, oauth2.ErrInvalidClient)
}

func TestClientCredentialsGrant(t *testing.T) {
	f := setupTestFixture(t)

	response, err := f.service.Token(oauth2.TokenRequest{
		GrantType:    oauth2.ClientCredentialsGrant,
		ClientID:     testClientID,
		ClientSecret: testClientSecret,
	})
	require.NoError(t, err)
	require.NotNil(t, response.AccessToken)
	require.Nil(t, response.IdToken)
	// Only the API scope survives, identity resources need a user
	require.Equal(t, "docket-manager", response.Scope)
}

func TestClientCredentialsWrongSecret(t *testing.T) {
	f := setupTestFixture(t)

	_, err := f.service.Token(oauth2.TokenRequest{
		GrantType:    oauth2.ClientCredentialsGrant,
		ClientID:     testClientID,
		ClientSecret: "wrong-secret",
	})
	require.ErrorIs(t, err, oauth2.ErrInvalidClient)
}

func TestRefreshTokenGrantRotates(t *testing.T) {
	f := setupTestFixture(t)

	code := f.runCodeFlow(t)
	first, err := f.service.Token(codeTokenRequest(code))
	require.NoError(t, err)
	require.NotNil(t, first.RefreshToken)

	second, err := f.service.Token(oauth2.TokenRequest{
		GrantType:    oauth2.RefreshTokenGrant,
		ClientID:     testClientID,
		ClientSecret: testClientSecret,
		RefreshToken: *first.RefreshToken,
	})
	require.NoError(t, err)
	require.NotNil(t, second.AccessToken)
	require.NotNil(t, second.RefreshToken)
	require.NotEqual(t, *first.RefreshToken, *second.RefreshToken)

	// The consumed refresh token cannot be replayed
	_, err = f.service.Token(oauth2.TokenRequest{
		GrantType:    oauth2.RefreshTokenGrant,
		ClientID:     testClientID,
		ClientSecret: testClientSecret,
		RefreshToken: *first.RefreshToken,
	})
	require.ErrorIs(t, err, oauth2.ErrInvalidGrant)
}

func TestUnsupportedGrantType(t *testing.T) {
	f := setupTestFixture(t)

	_, err := f.service.Token(oauth2.TokenRequest{
		GrantType:    "password",
		ClientID:     testClientID,
		ClientSecret: testClientSecret,
	})
	require.ErrorIs(t, err, oauth2.ErrUnsupportedGrantType)
}

func TestExpiredCodeRejected(t *testing.T) {
	now := time.Now()
	f := setupTestFixture(t)

	service, err := auth.NewAuthorizationService(
		auth.Repos{
			Users:   f.userRepo,
			Pending: f.pendingRepo,
			Codes:   authcode.NewInMemoryStore(authcode.WithNowFunc(func() time.Time { return now })),
			Refresh: f.refreshRepo,
		},
		testClientRegistry(t),
		scopes.NewRegistry([]scopes.ApiScope{{Name: "docket-manager"}}, scopes.DefaultIdentityResources()),
		testTokenIssuer(t),
		auth.WithNowTime(func() time.Time { return now }),
		auth.WithCodeTTL(time.Minute),
	)
	require.NoError(t, err)

	pendingID, err := service.Authorize(authorizationParams())
	require.NoError(t, err)
	result, err := service.Login(pendingID, testUsername, testUserPassword)
	require.NoError(t, err)

	now = now.Add(2 * time.Minute)

	_, err = service.Token(codeTokenRequest(result.Code))
	require.ErrorIs(t, err, oauth2.ErrInvalidGrant)
}

func TestAbandonedAuthorizationExpires(t *testing.T) {
	now := time.Now()
	f := setupTestFixture(t)

	service, err := auth.NewAuthorizationService(
		auth.Repos{
			Users: f.userRepo,
			Pending: auth.NewInMemoryPendingRepo(
				auth.WithPendingTTL(time.Minute),
				auth.WithPendingNowFunc(func() time.Time { return now }),
			),
			Codes:   f.codeStore,
			Refresh: f.refreshRepo,
		},
		testClientRegistry(t),
		scopes.NewRegistry([]scopes.ApiScope{{Name: "docket-manager"}}, scopes.DefaultIdentityResources()),
		testTokenIssuer(t),
	)
	require.NoError(t, err)

	pendingID, err := service.Authorize(authorizationParams())
	require.NoError(t, err)

	now = now.Add(2 * time.Minute)

	_, err = service.Login(pendingID, testUsername, testUserPassword)
	require.ErrorIs(t, err, auth.ErrPendingNotFound)
}

func testClientRegistry(t *testing.T) *clients.Registry {
	t.Helper()
	secretHash, err := clients.HashSecret(testClientSecret)
	require.NoError(t, err)
	return clients.NewRegistry([]*clients.Client{{
		ID:                 testClientID,
		SecretHash:         secretHash,
		GrantTypes:         []oauth2.GrantType{oauth2.AuthorizationCodeGrant},
		Scopes:             []string{"openid", "profile", "docket-manager"},
		RedirectURIs:       []string{testRedirectURI},
		RequirePKCE:        true,
		AllowOfflineAccess: true,
	}})
}

func testTokenIssuer(t *testing.T) *token.Issuer {
	t.Helper()
	keyPair, err := keys.GenerateRSAKeyPair(uuid.New().String(), 2048)
	require.NoError(t, err)
	scopeRegistry := scopes.NewRegistry([]scopes.ApiScope{{Name: "docket-manager"}}, scopes.DefaultIdentityResources())
	issuer, err := token.New(keys.NewKeyPairSigner(keyPair), scopeRegistry, testIssuer, testAudience)
	require.NoError(t, err)
	return issuer
}
