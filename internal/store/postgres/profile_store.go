package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/ecoagris/portal/internal/models"
	"github.com/ecoagris/portal/internal/store"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ProfileStore implements store.ProfileStore as JSONB documents keyed by UID.
type ProfileStore struct {
	pool *pgxpool.Pool
}

// NewProfileStore creates a new PostgreSQL-backed profile store.
func NewProfileStore(pool *pgxpool.Pool) *ProfileStore {
	return &ProfileStore{
		pool: pool,
	}
}

// Get retrieves a profile document by UID.
func (s *ProfileStore) Get(ctx context.Context, uid uuid.UUID) (*models.Profile, error) {
	var document []byte
	err := s.pool.QueryRow(ctx, `SELECT document FROM profiles WHERE uid = $1`, uid).Scan(&document)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, store.ErrProfileNotFound
		}
		return nil, fmt.Errorf("failed to get profile: %w", mapPostgresError(err))
	}

	var profile models.Profile
	if err := json.Unmarshal(document, &profile); err != nil {
		return nil, fmt.Errorf("failed to decode profile document: %w", err)
	}

	return &profile, nil
}

// Put creates or replaces a profile document.
func (s *ProfileStore) Put(ctx context.Context, profile *models.Profile) error {
	doc := *profile
	if doc.UpdatedAt.IsZero() {
		doc.UpdatedAt = time.Now()
	}

	document, err := json.Marshal(&doc)
	if err != nil {
		return fmt.Errorf("failed to encode profile document: %w", err)
	}

	query := `
		INSERT INTO profiles (uid, document, updated_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (uid) DO UPDATE
		SET document = EXCLUDED.document, updated_at = EXCLUDED.updated_at
	`

	if _, err := s.pool.Exec(ctx, query, doc.UID, document, doc.UpdatedAt); err != nil {
		return fmt.Errorf("failed to put profile: %w", mapPostgresError(err))
	}

	return nil
}
