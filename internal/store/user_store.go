package store

import (
	"context"
	"errors"
	"time"

	"github.com/ecoagris/portal/internal/models"
	"github.com/google/uuid"
)

// Errors
var (
	ErrUserNotFound      = errors.New("user not found")
	ErrUserAlreadyExists = errors.New("user already exists")

	// ErrUnavailable marks failures of the backing database itself rather
	// than of the request.
	ErrUnavailable = errors.New("store unavailable")
)

// UserStore manages identity accounts.
type UserStore interface {
	// Create creates a new account. Returns ErrUserAlreadyExists if the
	// UID or email is already taken.
	Create(ctx context.Context, user *models.User) error

	// Get retrieves an account by UID.
	Get(ctx context.Context, uid uuid.UUID) (*models.User, error)

	// GetByEmail retrieves an account by exact email.
	GetByEmail(ctx context.Context, email string) (*models.User, error)

	// SetDisabled enables or disables an account.
	SetDisabled(ctx context.Context, uid uuid.UUID, disabled bool) error

	// SetTokensValidAfter moves the revocation watermark of an account.
	SetTokensValidAfter(ctx context.Context, uid uuid.UUID, t time.Time) error

	// RecordLogin updates the last login timestamp.
	RecordLogin(ctx context.Context, uid uuid.UUID, t time.Time) error

	// List returns all accounts ordered by email.
	List(ctx context.Context) ([]*models.User, error)
}
