package auth

import (
	"errors"
	"net/http"

	"github.com/ecoagris/portal/internal/identity"
)

// Kind classifies an authentication failure. The HTTP layer branches only
// on kinds, never on error messages.
type Kind string

const (
	KindNoSession           Kind = "no_session"
	KindInvalidSession      Kind = "invalid_session"
	KindMalformedRequest    Kind = "malformed_request"
	KindInvalidCredentials  Kind = "invalid_credentials"
	KindAccessDenied        Kind = "access_denied"
	KindTokenExpired        Kind = "token_expired"
	KindTokenInvalid        Kind = "token_invalid"
	KindMalformedToken      Kind = "malformed_token"
	KindProviderUnavailable Kind = "provider_unavailable"

	// Kinds used by the admin API once the caller is authenticated.
	KindNotFound Kind = "not_found"
	KindInternal Kind = "internal_error"
)

// Error is an authentication failure tagged with its kind.
type Error struct {
	Kind Kind
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return string(e.Kind)
	}
	return string(e.Kind) + ": " + e.Err.Error()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// NewError tags err with kind.
func NewError(kind Kind, err error) *Error {
	return &Error{Kind: kind, Err: err}
}

// KindOf classifies err. Tagged errors keep their kind; identity provider
// errors are mapped; anything else is treated as a provider failure.
func KindOf(err error) Kind {
	var authErr *Error
	if errors.As(err, &authErr) {
		return authErr.Kind
	}

	switch {
	case errors.Is(err, identity.ErrInvalidCredentials):
		return KindInvalidCredentials
	case errors.Is(err, identity.ErrUserDisabled):
		return KindAccessDenied
	case errors.Is(err, identity.ErrTokenExpired),
		errors.Is(err, identity.ErrSessionRevoked),
		errors.Is(err, identity.ErrRecentSignInRequired):
		return KindTokenExpired
	case errors.Is(err, identity.ErrMalformedToken):
		return KindMalformedToken
	case errors.Is(err, identity.ErrTokenInvalid):
		return KindTokenInvalid
	default:
		return KindProviderUnavailable
	}
}

// Status returns the HTTP status for a kind.
func (k Kind) Status() int {
	switch k {
	case KindMalformedRequest, KindMalformedToken:
		return http.StatusBadRequest
	case KindProviderUnavailable:
		return http.StatusServiceUnavailable
	case KindNotFound:
		return http.StatusNotFound
	case KindInternal:
		return http.StatusInternalServerError
	default:
		return http.StatusUnauthorized
	}
}

// Message returns the user-facing message for a kind.
func (k Kind) Message() string {
	switch k {
	case KindMalformedRequest:
		return "Invalid request body."
	case KindInvalidCredentials:
		return "Invalid email or password."
	case KindAccessDenied:
		return "Access denied. Admin only."
	case KindTokenExpired:
		return "Session expired. Please sign in again."
	case KindTokenInvalid:
		return "Invalid token."
	case KindMalformedToken:
		return "Malformed token."
	case KindNoSession, KindInvalidSession:
		return "Authentication required."
	case KindNotFound:
		return "Not found."
	case KindInternal:
		return "Something went wrong, please try again."
	default:
		return "Authentication failed, please try again."
	}
}

// ErrorResponse is the JSON body of a failed auth or admin request.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  Kind   `json:"code"`
}

// NewErrorResponse builds the JSON body for err.
func NewErrorResponse(err error) (int, ErrorResponse) {
	kind := KindOf(err)
	return kind.Status(), ErrorResponse{Error: kind.Message(), Code: kind}
}
