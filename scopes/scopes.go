// Package scopes holds the global scope configuration: the API scopes clients
// may request for resource access, and the identity resources that map granted
// scopes to the claims an ID token exposes.
package scopes

import "github.com/docketlabs/docket-idp/users"

// ApiScope is a named permission for a protected API.
type ApiScope struct {
	Name        string `json:"name"`
	DisplayName string `json:"display_name,omitempty"`
}

// IdentityResource names a scope that exposes identity claims rather than API
// access. ClaimTypes lists the claims included when the scope is granted.
type IdentityResource struct {
	Name       string   `json:"name"`
	ClaimTypes []string `json:"claim_types,omitempty"`
}

// Standard claim type identifiers used in tokens.
const (
	ClaimSubject           = "sub"
	ClaimName              = "name"
	ClaimGivenName         = "given_name"
	ClaimFamilyName        = "family_name"
	ClaimPreferredUsername = "preferred_username"
	ClaimWebsite           = "website"
	ClaimEmail             = "email"
	ClaimEmailVerified     = "email_verified"
	ClaimAddress           = "address"
	ClaimRole              = "role"
)

// DefaultIdentityResources returns the standard OpenID Connect identity
// resources plus the roles resource.
func DefaultIdentityResources() []IdentityResource {
	return []IdentityResource{
		{Name: "openid", ClaimTypes: []string{ClaimSubject}},
		{Name: "profile", ClaimTypes: []string{ClaimName, ClaimGivenName, ClaimFamilyName, ClaimPreferredUsername, ClaimWebsite}},
		{Name: "email", ClaimTypes: []string{ClaimEmail, ClaimEmailVerified}},
		{Name: "address", ClaimTypes: []string{ClaimAddress}},
		{Name: "roles", ClaimTypes: []string{ClaimRole}},
	}
}

// Registry is the process-wide scope catalogue, read-only after startup.
type Registry struct {
	api      map[string]ApiScope
	identity map[string]IdentityResource
}

// NewRegistry builds the scope catalogue from static configuration.
func NewRegistry(apiScopes []ApiScope, identityResources []IdentityResource) *Registry {
	r := &Registry{
		api:      make(map[string]ApiScope, len(apiScopes)),
		identity: make(map[string]IdentityResource, len(identityResources)),
	}
	for _, s := range apiScopes {
		r.api[s.Name] = s
	}
	for _, ir := range identityResources {
		r.identity[ir.Name] = ir
	}
	return r
}

// Contains reports whether the name exists in either the API scope set or the
// identity resource set.
func (r *Registry) Contains(name string) bool {
	if _, ok := r.api[name]; ok {
		return true
	}
	_, ok := r.identity[name]
	return ok
}

// IsApiScope reports whether the name is a registered API scope.
func (r *Registry) IsApiScope(name string) bool {
	_, ok := r.api[name]
	return ok
}

// ApiScopes filters the granted set down to registered API scopes. These are
// the scopes that end up in access tokens.
func (r *Registry) ApiScopes(granted []string) []string {
	result := []string{}
	for _, name := range granted {
		if _, ok := r.api[name]; ok {
			result = append(result, name)
		}
	}
	return result
}

// ClaimsFor selects the identity claims exposed by the granted scopes.
// Pure function of (user, grantedScopes) and the identity resource table;
// there are no extensibility hooks.
func (r *Registry) ClaimsFor(user *users.User, grantedScopes []string) map[string]any {
	claims := make(map[string]any)
	for _, scope := range grantedScopes {
		resource, ok := r.identity[scope]
		if !ok {
			continue
		}
		for _, claimType := range resource.ClaimTypes {
			addClaim(claims, claimType, user)
		}
	}
	return claims
}

func addClaim(claims map[string]any, claimType string, user *users.User) {
	switch claimType {
	case ClaimSubject:
		claims[ClaimSubject] = user.Subject
	case ClaimName:
		claims[ClaimName] = user.Name()
	case ClaimGivenName:
		if user.FirstName != "" {
			claims[ClaimGivenName] = user.FirstName
		}
	case ClaimFamilyName:
		if user.LastName != "" {
			claims[ClaimFamilyName] = user.LastName
		}
	case ClaimPreferredUsername:
		claims[ClaimPreferredUsername] = user.Username
	case ClaimWebsite:
		if user.Website != "" {
			claims[ClaimWebsite] = user.Website
		}
	case ClaimEmail:
		if user.Email != "" {
			claims[ClaimEmail] = user.Email
		}
	case ClaimEmailVerified:
		claims[ClaimEmailVerified] = user.EmailVerified
	case ClaimAddress:
		if user.Address != "" {
			claims[ClaimAddress] = user.Address
		}
	case ClaimRole:
		if len(user.Roles) > 0 {
			claims[ClaimRole] = user.Roles
		}
	}
}
