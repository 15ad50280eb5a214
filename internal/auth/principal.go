package auth

import (
	"context"

	"github.com/google/uuid"
)

// Principal is the account behind a verified session cookie.
type Principal struct {
	UID   uuid.UUID
	Email string
}

type contextKey int

const (
	principalContextKey contextKey = iota
)

// WithPrincipal adds a verified principal to the context.
func WithPrincipal(ctx context.Context, principal *Principal) context.Context {
	return context.WithValue(ctx, principalContextKey, principal)
}

// PrincipalFromContext extracts the authenticated principal from the request context.
// Returns nil if no principal is present (unauthenticated request).
func PrincipalFromContext(ctx context.Context) *Principal {
	principal, _ := ctx.Value(principalContextKey).(*Principal)
	return principal
}
