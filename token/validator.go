package token

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/docketlabs/docket-idp/oauth2"
	"github.com/docketlabs/docket-idp/token/keys"
)

// ErrUnauthorized is the single result for every validation failure: bad
// signature, expired or not-yet-valid token, wrong issuer, missing scope or a
// malformed token all look identical to the caller. Protected endpoints must
// respond with an access-denied outcome and nothing else.
var ErrUnauthorized = errors.New("unauthorized")

// Principal is the identity extracted from a validated bearer token.
type Principal struct {
	Subject  string
	ClientID string
	Scopes   []string
	Roles    []string
}

// HasScope reports whether the principal was granted the scope.
func (p *Principal) HasScope(scope string) bool {
	return oauth2.ContainsScope(p.Scopes, scope)
}

// Validator is the resource-server side check for bearer tokens. It only
// needs the issuer's public key and configured authority, never the private
// signing key.
type Validator struct {
	verificationKey any
	issuer          string
	nowFunc         func() time.Time
}

// ValidatorOption defines a function type to modify the Validator instance.
type ValidatorOption func(*Validator)

// WithValidatorNowFunc sets the now time function (primarily for testing)
func WithValidatorNowFunc(now func() time.Time) ValidatorOption {
	return func(v *Validator) {
		v.nowFunc = now
	}
}

// NewValidator creates a Validator for tokens issued by the given authority.
func NewValidator(verificationKey any, issuer string, options ...ValidatorOption) *Validator {
	v := &Validator{
		verificationKey: verificationKey,
		issuer:          issuer,
		nowFunc:         time.Now,
	}
	for _, opt := range options {
		opt(v)
	}
	return v
}

// Validate verifies signature, expiry, issuer and the required scope.
// Any failure yields ErrUnauthorized with no distinguishing signal.
func (v *Validator) Validate(rawToken, requiredScope string) (*Principal, error) {
	parsed, err := jwt.Parse(
		rawToken,
		v.verificationKeyFunc,
		jwt.WithValidMethods([]string{keys.RS256}),
		jwt.WithIssuer(v.issuer),
		jwt.WithTimeFunc(v.nowFunc),
		jwt.WithExpirationRequired(),
	)
	if err != nil || !parsed.Valid {
		return nil, ErrUnauthorized
	}

	claims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok {
		return nil, ErrUnauthorized
	}

	scope, _ := claims["scope"].(string)
	grantedScopes := oauth2.SplitScopes(scope)
	if requiredScope != "" && !oauth2.ContainsScope(grantedScopes, requiredScope) {
		return nil, ErrUnauthorized
	}

	sub, _ := claims["sub"].(string)
	clientID, _ := claims["client_id"].(string)

	var roles []string
	if claimRoles, ok := claims["role"].([]interface{}); ok {
		roles = interfaceArrayToString(claimRoles)
	}

	return &Principal{
		Subject:  sub,
		ClientID: clientID,
		Scopes:   grantedScopes,
		Roles:    roles,
	}, nil
}

func (v *Validator) verificationKeyFunc(token *jwt.Token) (any, error) {
	if _, ok := token.Method.(*jwt.SigningMethodRSA); !ok {
		return nil, ErrUnauthorized
	}
	return v.verificationKey, nil
}

func interfaceArrayToString(iArray []interface{}) []string {
	stringSlice := make([]string, 0)
	for _, v := range iArray {
		if s, ok := v.(string); ok {
			stringSlice = append(stringSlice, s)
		}
	}
	return stringSlice
}
