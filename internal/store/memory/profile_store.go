package memory

import (
	"context"
	"sync"
	"time"

	"github.com/ecoagris/portal/internal/models"
	"github.com/ecoagris/portal/internal/store"
	"github.com/google/uuid"
)

// ProfileStore implements store.ProfileStore using in-memory storage.
type ProfileStore struct {
	mu       sync.RWMutex
	profiles map[uuid.UUID]*models.Profile
}

// NewProfileStore creates a new in-memory profile store.
func NewProfileStore() *ProfileStore {
	return &ProfileStore{
		profiles: make(map[uuid.UUID]*models.Profile),
	}
}

// Get retrieves a profile by UID.
func (s *ProfileStore) Get(ctx context.Context, uid uuid.UUID) (*models.Profile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	profile, exists := s.profiles[uid]
	if !exists {
		return nil, store.ErrProfileNotFound
	}

	clone := *profile
	return &clone, nil
}

// Put creates or replaces a profile.
func (s *ProfileStore) Put(ctx context.Context, profile *models.Profile) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	clone := *profile
	if clone.UpdatedAt.IsZero() {
		clone.UpdatedAt = time.Now()
	}
	s.profiles[profile.UID] = &clone

	return nil
}
