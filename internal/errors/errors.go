// Package errors holds the shared error catalogue used across packages
// that do not own a more specific sentinel.
package errors

import "errors"

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrInvalidRedirectURI = errors.New("invalid redirect URI")
	ErrInternal           = errors.New("internal error")
)
