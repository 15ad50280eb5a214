package identity

import "errors"

var (
	ErrInvalidCredentials    = errors.New("invalid email or password")
	ErrUserDisabled          = errors.New("user account is disabled")
	ErrTokenExpired          = errors.New("token expired")
	ErrTokenInvalid          = errors.New("token invalid")
	ErrMalformedToken        = errors.New("malformed token")
	ErrSessionRevoked        = errors.New("session revoked")
	ErrRecentSignInRequired  = errors.New("recent sign-in required")
	ErrInvalidSessionTTL     = errors.New("session duration out of range")
	ErrProviderUnavailable   = errors.New("identity provider unavailable")
	ErrPasswordTooShort      = errors.New("password must be at least 8 characters")
	ErrInvalidSigningKeyType = errors.New("signing key must be an ECDSA P-256 private key")
)
