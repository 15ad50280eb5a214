package models

import (
	"time"

	"github.com/google/uuid"
)

// User is an account held by the identity provider.
// The password hash never leaves the provider and stores.
type User struct {
	UID          uuid.UUID // UUIDv7
	Email        string    // unique, compared exactly
	DisplayName  string
	PasswordHash string // bcrypt

	Disabled bool

	// TokensValidAfter is the revocation watermark: sessions whose sign-in
	// happened before this instant are rejected.
	TokensValidAfter time.Time

	CreatedAt   time.Time
	UpdatedAt   time.Time
	LastLoginAt *time.Time
}

// SignInRevoked returns true if a sign-in at authTime happened at or before
// the account's revocation watermark. Both sides are compared at microsecond
// precision.
func (u *User) SignInRevoked(authTime time.Time) bool {
	if u.TokensValidAfter.IsZero() {
		return false
	}
	return !authTime.Truncate(time.Microsecond).After(u.TokensValidAfter.Truncate(time.Microsecond))
}
