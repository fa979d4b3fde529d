package scopes_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/docketlabs/docket-idp/scopes"
	"github.com/docketlabs/docket-idp/users"
)

func testRegistry() *scopes.Registry {
	return scopes.NewRegistry(
		[]scopes.ApiScope{{Name: "docket-manager", DisplayName: "Docket Manager API"}},
		scopes.DefaultIdentityResources(),
	)
}

func testUser() *users.User {
	return &users.User{
		Subject:       "818727",
		Username:      "alice",
		FirstName:     "Alice",
		LastName:      "Smith",
		Email:         "AliceSmith@email.com",
		EmailVerified: true,
		Website:       "http://alice.com",
		Address:       "One Hacker Way, Heidelberg, 69118, Germany",
		Roles:         []string{"admin"},
	}
}

func TestContains(t *testing.T) {
	registry := testRegistry()

	require.True(t, registry.Contains("docket-manager"))
	require.True(t, registry.Contains("openid"))
	require.True(t, registry.Contains("roles"))
	require.False(t, registry.Contains("payments"))
}

func TestApiScopesFiltersIdentityResources(t *testing.T) {
	registry := testRegistry()

	granted := registry.ApiScopes([]string{"openid", "profile", "docket-manager"})
	require.Equal(t, []string{"docket-manager"}, granted)
}

func TestClaimsForSelectsGrantedResources(t *testing.T) {
	registry := testRegistry()

	claims := registry.ClaimsFor(testUser(), []string{"openid", "profile", "email"})

	require.Equal(t, "818727", claims[scopes.ClaimSubject])
	require.Equal(t, "Alice Smith", claims[scopes.ClaimName])
	require.Equal(t, "Alice", claims[scopes.ClaimGivenName])
	require.Equal(t, "AliceSmith@email.com", claims[scopes.ClaimEmail])
	require.Equal(t, true, claims[scopes.ClaimEmailVerified])

	// address and roles were not granted
	require.NotContains(t, claims, scopes.ClaimAddress)
	require.NotContains(t, claims, scopes.ClaimRole)
}

func TestClaimsForIgnoresApiScopes(t *testing.T) {
	registry := testRegistry()

	claims := registry.ClaimsFor(testUser(), []string{"docket-manager"})
	require.Empty(t, claims)
}

func TestClaimsForRoles(t *testing.T) {
	registry := testRegistry()

	claims := registry.ClaimsFor(testUser(), []string{"roles"})
	require.Equal(t, []string{"admin"}, claims[scopes.ClaimRole])
}

func TestClaimsForOmitsEmptyOptionalFields(t *testing.T) {
	registry := testRegistry()
	user := &users.User{Subject: "1", Username: "minimal"}

	claims := registry.ClaimsFor(user, []string{"openid", "profile", "email"})

	require.Equal(t, "minimal", claims[scopes.ClaimName])
	require.NotContains(t, claims, scopes.ClaimGivenName)
	require.NotContains(t, claims, scopes.ClaimWebsite)
	require.NotContains(t, claims, scopes.ClaimEmail)
}
