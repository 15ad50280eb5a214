package store

import (
	"context"
	"errors"

	"github.com/ecoagris/portal/internal/models"
	"github.com/google/uuid"
)

var ErrProfileNotFound = errors.New("profile not found")

// ProfileStore is the per-user document store keyed by UID.
type ProfileStore interface {
	Get(ctx context.Context, uid uuid.UUID) (*models.Profile, error)

	// Put creates or replaces the profile document.
	Put(ctx context.Context, profile *models.Profile) error
}
