package token

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/docketlabs/docket-idp/clients"
	"github.com/docketlabs/docket-idp/oauth2"
	"github.com/docketlabs/docket-idp/scopes"
	"github.com/docketlabs/docket-idp/token/keys"
	"github.com/docketlabs/docket-idp/users"
)

// Issuer signs access and identity tokens with the process signing key.
// The key is loaded once at startup and never leaves this package.
type Issuer struct {
	signer            keys.Signer
	scopeRegistry     *scopes.Registry
	issuer            string
	audience          string
	accessTokenExpiry time.Duration
	idTokenExpiry     time.Duration
	nowFunc           func() time.Time
}

// IssuerOption defines a function type to modify the Issuer instance.
type IssuerOption func(*Issuer)

// WithTokenExpiry overrides the default access and ID token lifetimes.
func WithTokenExpiry(accessTokenExpiry, idTokenExpiry time.Duration) IssuerOption {
	return func(i *Issuer) {
		i.accessTokenExpiry = accessTokenExpiry
		i.idTokenExpiry = idTokenExpiry
	}
}

// WithNowFunc sets the now time function (primarily for testing)
func WithNowFunc(now func() time.Time) IssuerOption {
	return func(i *Issuer) {
		i.nowFunc = now
	}
}

// New initializes an Issuer for the given authority and audience.
func New(signer keys.Signer, scopeRegistry *scopes.Registry, issuer, audience string, options ...IssuerOption) (*Issuer, error) {
	if signer == nil {
		return nil, errors.New("[token.New] signer is required")
	}
	if scopeRegistry == nil {
		return nil, errors.New("[token.New] scope registry is required")
	}
	if issuer == "" {
		return nil, errors.New("[token.New] issuer is required")
	}

	i := &Issuer{
		signer:        signer,
		scopeRegistry: scopeRegistry,
		issuer:        issuer,
		audience:      audience,
		nowFunc:       time.Now,
	}

	for _, opt := range options {
		opt(i)
	}

	if i.accessTokenExpiry == 0 {
		i.accessTokenExpiry = time.Hour
	}
	if i.idTokenExpiry == 0 {
		i.idTokenExpiry = time.Hour
	}
	return i, nil
}

// IssueAccessToken creates a signed access token for the granted scopes.
// A nil user produces a client-credentials token with the client as subject.
func (i *Issuer) IssueAccessToken(user *users.User, client *clients.Client, grantedScopes []string) (*string, error) {
	now := i.nowFunc()
	claims := jwt.MapClaims{
		"iss":       i.issuer,
		"aud":       i.audience,
		"client_id": client.ID,
		"scope":     oauth2.JoinScopes(grantedScopes),
		"iat":       now.Unix(),
		"nbf":       now.Unix(),
		"exp":       now.Add(i.accessTokenExpiry).Unix(),
		"jti":       uuid.New().String(),
	}

	if user != nil {
		claims["sub"] = user.Subject
		claims["token_type"] = "user"
		if len(user.Roles) > 0 {
			claims["role"] = user.Roles
		}
	} else {
		claims["sub"] = client.ID
		claims["token_type"] = "client"
	}

	return i.signClaims(claims)
}

// IssueIDToken creates a signed OpenID Connect ID token. Identity claims are
// selected by the granted identity resources; subject and issuer are always
// present.
func (i *Issuer) IssueIDToken(user *users.User, client *clients.Client, grantedScopes []string, nonce string) (*string, error) {
	if user == nil {
		return nil, errors.New("[Issuer.IssueIDToken] user is required")
	}

	now := i.nowFunc()
	claims := jwt.MapClaims{
		"iss": i.issuer,
		"sub": user.Subject,
		"aud": client.ID,
		"iat": now.Unix(),
		"exp": now.Add(i.idTokenExpiry).Unix(),
		"jti": uuid.New().String(),
	}

	if nonce != "" {
		claims["nonce"] = nonce
	}

	// Without the flag the client is expected to fetch identity claims from
	// a userinfo endpoint; with it they ride along in the ID token.
	if client.AlwaysIncludeUserClaims {
		for claimType, value := range i.scopeRegistry.ClaimsFor(user, grantedScopes) {
			if _, exists := claims[claimType]; !exists {
				claims[claimType] = value
			}
		}
	}

	return i.signClaims(claims)
}

// AccessTokenExpiresIn returns the access token lifetime in whole seconds,
// as reported in the token response.
func (i *Issuer) AccessTokenExpiresIn() int {
	return int(i.accessTokenExpiry.Seconds())
}

// GetJWKS returns the JSON Web Key Set for public key distribution.
func (i *Issuer) GetJWKS() (*keys.JWKS, error) {
	keyPairSigner, ok := i.signer.(*keys.KeyPairSigner)
	if !ok {
		return nil, errors.New("JWKS only supported for asymmetric signing")
	}
	return keyPairSigner.GetJWKS()
}

func (i *Issuer) signClaims(claims jwt.MapClaims) (*string, error) {
	signedToken, err := i.signer.Sign(claims)
	if err != nil {
		return nil, errors.Wrap(err, "[Issuer.signClaims] signer.Sign")
	}
	return &signedToken, nil
}
