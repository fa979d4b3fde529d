package token_test

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/docketlabs/docket-idp/clients"
	"github.com/docketlabs/docket-idp/scopes"
	"github.com/docketlabs/docket-idp/token"
	"github.com/docketlabs/docket-idp/token/keys"
	"github.com/docketlabs/docket-idp/users"
)

const (
	testIssuer   = "http://localhost:5000"
	testAudience = "docket-manager"
	testClientID = "test-client-1"
	testScope    = "docket-manager"
)

type testFixture struct {
	signer    *keys.KeyPairSigner
	issuer    *token.Issuer
	validator *token.Validator
	user      *users.User
	client    *clients.Client
}

func setupTestFixture(t *testing.T, issuerOptions ...token.IssuerOption) *testFixture {
	t.Helper()

	keyPair, err := keys.GenerateRSAKeyPair(uuid.New().String(), 2048)
	require.NoError(t, err)
	signer := keys.NewKeyPairSigner(keyPair)

	scopeRegistry := scopes.NewRegistry(
		[]scopes.ApiScope{{Name: testScope}},
		scopes.DefaultIdentityResources(),
	)

	issuer, err := token.New(signer, scopeRegistry, testIssuer, testAudience, issuerOptions...)
	require.NoError(t, err)

	return &testFixture{
		signer:    signer,
		issuer:    issuer,
		validator: token.NewValidator(signer.PublicKey(), testIssuer),
		user: &users.User{
			Subject:       "818727",
			Username:      "alice",
			FirstName:     "Alice",
			LastName:      "Smith",
			Email:         "AliceSmith@email.com",
			EmailVerified: true,
			Roles:         []string{"admin"},
		},
		client: &clients.Client{
			ID:                      testClientID,
			AlwaysIncludeUserClaims: true,
		},
	}
}

func parseClaims(t *testing.T, f *testFixture, rawToken string) jwt.MapClaims {
	t.Helper()
	parsed, err := jwt.Parse(rawToken, f.signer.GetVerificationKey)
	require.NoError(t, err)
	claims, ok := parsed.Claims.(jwt.MapClaims)
	require.True(t, ok)
	return claims
}

func TestIssueAccessTokenForUser(t *testing.T) {
	f := setupTestFixture(t)

	rawToken, err := f.issuer.IssueAccessToken(f.user, f.client, []string{"openid", testScope})
	require.NoError(t, err)

	claims := parseClaims(t, f, *rawToken)
	require.Equal(t, testIssuer, claims["iss"])
	require.Equal(t, testAudience, claims["aud"])
	require.Equal(t, "818727", claims["sub"])
	require.Equal(t, testClientID, claims["client_id"])
	require.Equal(t, "openid "+testScope, claims["scope"])
	require.Equal(t, "user", claims["token_type"])
	require.NotEmpty(t, claims["jti"])
}

func TestIssueAccessTokenForClient(t *testing.T) {
	f := setupTestFixture(t)

	rawToken, err := f.issuer.IssueAccessToken(nil, f.client, []string{testScope})
	require.NoError(t, err)

	claims := parseClaims(t, f, *rawToken)
	require.Equal(t, testClientID, claims["sub"])
	require.Equal(t, "client", claims["token_type"])
}

func TestIssueIDTokenIncludesIdentityClaims(t *testing.T) {
	f := setupTestFixture(t)

	rawToken, err := f.issuer.IssueIDToken(f.user, f.client, []string{"openid", "profile", "email"}, "nonce-123")
	require.NoError(t, err)

	claims := parseClaims(t, f, *rawToken)
	require.Equal(t, "818727", claims["sub"])
	require.Equal(t, testClientID, claims["aud"])
	require.Equal(t, "nonce-123", claims["nonce"])
	require.Equal(t, "Alice Smith", claims["name"])
	require.Equal(t, "AliceSmith@email.com", claims["email"])
	require.Equal(t, true, claims["email_verified"])
	// address was not granted
	require.NotContains(t, claims, "address")
}

func TestIssueIDTokenWithoutUserClaimsFlag(t *testing.T) {
	f := setupTestFixture(t)
	f.client.AlwaysIncludeUserClaims = false

	rawToken, err := f.issuer.IssueIDToken(f.user, f.client, []string{"openid", "profile", "email"}, "")
	require.NoError(t, err)

	claims := parseClaims(t, f, *rawToken)
	require.Equal(t, "818727", claims["sub"])
	require.NotContains(t, claims, "email")
	require.NotContains(t, claims, "name")
	require.NotContains(t, claims, "nonce")
}

func TestValidateAcceptsIssuedToken(t *testing.T) {
	f := setupTestFixture(t)

	rawToken, err := f.issuer.IssueAccessToken(f.user, f.client, []string{testScope})
	require.NoError(t, err)

	principal, err := f.validator.Validate(*rawToken, testScope)
	require.NoError(t, err)
	require.Equal(t, "818727", principal.Subject)
	require.Equal(t, testClientID, principal.ClientID)
	require.True(t, principal.HasScope(testScope))
	require.Equal(t, []string{"admin"}, principal.Roles)
}

func TestValidateRejectsForeignKey(t *testing.T) {
	f := setupTestFixture(t)
	other := setupTestFixture(t)

	rawToken, err := other.issuer.IssueAccessToken(other.user, other.client, []string{testScope})
	require.NoError(t, err)

	_, err = f.validator.Validate(*rawToken, testScope)
	require.ErrorIs(t, err, token.ErrUnauthorized)
}

func TestValidateRejectsExpiredToken(t *testing.T) {
	past := time.Now().Add(-2 * time.Hour)
	f := setupTestFixture(t, token.WithNowFunc(func() time.Time { return past }))

	rawToken, err := f.issuer.IssueAccessToken(f.user, f.client, []string{testScope})
	require.NoError(t, err)

	_, err = f.validator.Validate(*rawToken, testScope)
	require.ErrorIs(t, err, token.ErrUnauthorized)
}

func TestValidateRejectsMissingScope(t *testing.T) {
	f := setupTestFixture(t)

	rawToken, err := f.issuer.IssueAccessToken(f.user, f.client, []string{"openid"})
	require.NoError(t, err)

	_, err = f.validator.Validate(*rawToken, testScope)
	require.ErrorIs(t, err, token.ErrUnauthorized)
}

func TestValidateRejectsGarbage(t *testing.T) {
	f := setupTestFixture(t)

	_, err := f.validator.Validate("not-a-jwt", testScope)
	require.ErrorIs(t, err, token.ErrUnauthorized)
}

func TestValidationFailuresAreIndistinguishable(t *testing.T) {
	f := setupTestFixture(t)
	other := setupTestFixture(t)

	foreign, err := other.issuer.IssueAccessToken(other.user, other.client, []string{testScope})
	require.NoError(t, err)
	missingScope, err := f.issuer.IssueAccessToken(f.user, f.client, []string{"openid"})
	require.NoError(t, err)

	_, errForeign := f.validator.Validate(*foreign, testScope)
	_, errScope := f.validator.Validate(*missingScope, testScope)
	_, errGarbage := f.validator.Validate("garbage", testScope)

	require.Equal(t, errForeign, errScope)
	require.Equal(t, errScope, errGarbage)
}

func TestJWKSExposesSigningKey(t *testing.T) {
	f := setupTestFixture(t)

	jwks, err := f.issuer.GetJWKS()
	require.NoError(t, err)
	require.Len(t, jwks.Keys, 1)
	require.Equal(t, "RSA", jwks.Keys[0].Kty)
	require.Equal(t, keys.RS256, jwks.Keys[0].Alg)
	require.NotEmpty(t, jwks.Keys[0].N)
}
