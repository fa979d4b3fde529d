package oauth2

import "fmt"

// Error is a protocol-level OAuth2 error. Code is one of the RFC 6749 error
// identifiers and is what goes on the wire; Description is human-readable
// detail that must only reach the browser in non-production deployments.
type Error struct {
	Code        string `json:"error"`
	Description string `json:"error_description,omitempty"`
}

func (e *Error) Error() string {
	if e.Description == "" {
		return e.Code
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Description)
}

// WithDescription returns a copy of the error carrying extra detail.
// The sentinel itself is never mutated so errors.Is keeps working.
func (e *Error) WithDescription(format string, args ...any) *Error {
	return &Error{Code: e.Code, Description: fmt.Sprintf(format, args...)}
}

// Is matches on the protocol error code, so wrapped and described copies
// compare equal to their sentinel.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Code == e.Code
}

// Protocol error sentinels. Compare with errors.Is against these.
var (
	ErrInvalidRequest       = &Error{Code: "invalid_request"}
	ErrInvalidClient        = &Error{Code: "invalid_client"}
	ErrInvalidGrant         = &Error{Code: "invalid_grant"}
	ErrInvalidScope         = &Error{Code: "invalid_scope"}
	ErrUnauthorizedClient   = &Error{Code: "unauthorized_client"}
	ErrUnsupportedGrantType = &Error{Code: "unsupported_grant_type"}
	ErrAccessDenied         = &Error{Code: "access_denied"}
	ErrServerError          = &Error{Code: "server_error"}
)
