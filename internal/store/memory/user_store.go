package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/ecoagris/portal/internal/models"
	"github.com/ecoagris/portal/internal/store"
	"github.com/google/uuid"
)

// UserStore implements store.UserStore using in-memory storage.
// This implementation is for testing and development only - data is lost on restart.
type UserStore struct {
	mu sync.RWMutex

	users        map[uuid.UUID]*models.User // uid -> User
	usersByEmail map[string]uuid.UUID       // email -> uid
}

// NewUserStore creates a new in-memory user store.
func NewUserStore() *UserStore {
	return &UserStore{
		users:        make(map[uuid.UUID]*models.User),
		usersByEmail: make(map[string]uuid.UUID),
	}
}

// Create creates a new account in memory.
func (s *UserStore) Create(ctx context.Context, user *models.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.users[user.UID]; exists {
		return store.ErrUserAlreadyExists
	}
	if _, exists := s.usersByEmail[user.Email]; exists {
		return store.ErrUserAlreadyExists
	}

	// Clone to avoid external modifications
	clone := *user
	s.users[user.UID] = &clone
	s.usersByEmail[user.Email] = user.UID

	return nil
}

// Get retrieves an account by UID.
func (s *UserStore) Get(ctx context.Context, uid uuid.UUID) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	user, exists := s.users[uid]
	if !exists {
		return nil, store.ErrUserNotFound
	}

	clone := *user
	return &clone, nil
}

// GetByEmail retrieves an account by exact email.
func (s *UserStore) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	uid, exists := s.usersByEmail[email]
	if !exists {
		return nil, store.ErrUserNotFound
	}

	clone := *s.users[uid]
	return &clone, nil
}

// SetDisabled enables or disables an account.
func (s *UserStore) SetDisabled(ctx context.Context, uid uuid.UUID, disabled bool) error {
	return s.update(uid, func(u *models.User) {
		u.Disabled = disabled
	})
}

// SetTokensValidAfter moves the revocation watermark of an account.
func (s *UserStore) SetTokensValidAfter(ctx context.Context, uid uuid.UUID, t time.Time) error {
	return s.update(uid, func(u *models.User) {
		u.TokensValidAfter = t
	})
}

// RecordLogin updates the last login timestamp.
func (s *UserStore) RecordLogin(ctx context.Context, uid uuid.UUID, t time.Time) error {
	return s.update(uid, func(u *models.User) {
		u.LastLoginAt = &t
	})
}

// List returns all accounts ordered by email.
func (s *UserStore) List(ctx context.Context) ([]*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	users := make([]*models.User, 0, len(s.users))
	for _, u := range s.users {
		clone := *u
		users = append(users, &clone)
	}

	sort.Slice(users, func(i, j int) bool {
		return users[i].Email < users[j].Email
	})

	return users, nil
}

func (s *UserStore) update(uid uuid.UUID, fn func(u *models.User)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	user, exists := s.users[uid]
	if !exists {
		return store.ErrUserNotFound
	}

	fn(user)
	user.UpdatedAt = time.Now()

	return nil
}
