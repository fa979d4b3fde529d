package clients

import (
	"golang.org/x/crypto/bcrypt"

	"github.com/docketlabs/docket-idp/oauth2"
)

// Client is a registered relying party. Secrets are held only as bcrypt
// digests; the plaintext exists solely in the deployment configuration.
type Client struct {
	ID                      string             `json:"id"`
	Description             string             `json:"description"`
	SecretHash              string             `json:"-"`
	GrantTypes              []oauth2.GrantType `json:"grant_types"`
	Scopes                  []string           `json:"scopes"`
	RedirectURIs            []string           `json:"redirect_uris"`
	PostLogoutRedirectURIs  []string           `json:"post_logout_redirect_uris"`
	RequirePKCE             bool               `json:"require_pkce"`
	RequireConsent          bool               `json:"require_consent"`
	AllowOfflineAccess      bool               `json:"allow_offline_access"`
	AlwaysIncludeUserClaims bool               `json:"always_include_user_claims"`
}

// HashSecret produces the bcrypt digest stored in SecretHash.
func HashSecret(secret string) (string, error) {
	bytes, err := bcrypt.GenerateFromPassword([]byte(secret), bcrypt.DefaultCost)
	return string(bytes), err
}

// CheckSecret compares a presented secret against the stored digest.
// Never compares plaintext.
func (c *Client) CheckSecret(secret string) bool {
	if c.SecretHash == "" || secret == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(c.SecretHash), []byte(secret)) == nil
}

// HasGrantType reports whether the client may use the given grant.
func (c *Client) HasGrantType(grant oauth2.GrantType) bool {
	for _, g := range c.GrantTypes {
		if g == grant {
			return true
		}
	}
	return false
}

// RedirectAllowed checks a presented redirect URI against the registered set.
// Exact match only, no prefix or wildcard matching.
func (c *Client) RedirectAllowed(redirectURI string) bool {
	for _, uri := range c.RedirectURIs {
		if redirectURI == uri {
			return true
		}
	}
	return false
}

// PostLogoutRedirectAllowed checks a post-logout redirect URI. Exact match only.
func (c *Client) PostLogoutRedirectAllowed(redirectURI string) bool {
	for _, uri := range c.PostLogoutRedirectURIs {
		if redirectURI == uri {
			return true
		}
	}
	return false
}

// HasScope checks if the client has permission for a specific scope.
func (c *Client) HasScope(scope string) bool {
	for _, s := range c.Scopes {
		if s == scope {
			return true
		}
	}
	return false
}

// ValidateScopes checks that every requested scope is allowed for this client.
func (c *Client) ValidateScopes(requestedScopes []string) error {
	for _, scope := range requestedScopes {
		if !c.HasScope(scope) {
			return ErrInvalidScope
		}
	}
	return nil
}
