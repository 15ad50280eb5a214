package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ecoagris/portal/internal/models"
	"github.com/ecoagris/portal/internal/store"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"
)

const userColumns = `
	uid, email, display_name, password_hash, disabled,
	tokens_valid_after, created_at, updated_at, last_login_at
`

// UserStore implements store.UserStore using PostgreSQL.
type UserStore struct {
	pool *pgxpool.Pool
}

// NewUserStore creates a new PostgreSQL-backed user store.
func NewUserStore(pool *pgxpool.Pool) *UserStore {
	return &UserStore{
		pool: pool,
	}
}

// Create creates a new account in the database.
func (s *UserStore) Create(ctx context.Context, user *models.User) error {
	query := `
		INSERT INTO users (
			uid, email, display_name, password_hash, disabled,
			tokens_valid_after, created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8
		)
	`

	var validAfter *time.Time
	if !user.TokensValidAfter.IsZero() {
		validAfter = &user.TokensValidAfter
	}

	_, err := s.pool.Exec(ctx, query,
		user.UID,
		user.Email,
		user.DisplayName,
		user.PasswordHash,
		user.Disabled,
		validAfter,
		user.CreatedAt,
		user.UpdatedAt,
	)
	if err != nil {
		if mapped := mapPostgresError(err); errors.Is(mapped, store.ErrUserAlreadyExists) {
			return mapped
		}
		return fmt.Errorf("failed to create user: %w", mapPostgresError(err))
	}

	log.Debug().
		Str("uid", user.UID.String()).
		Msg("Created user")

	return nil
}

// Get retrieves an account by UID.
func (s *UserStore) Get(ctx context.Context, uid uuid.UUID) (*models.User, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE uid = $1`, uid)
	return scanUser(row)
}

// GetByEmail retrieves an account by exact email.
func (s *UserStore) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE email = $1`, email)
	return scanUser(row)
}

// SetDisabled enables or disables an account.
func (s *UserStore) SetDisabled(ctx context.Context, uid uuid.UUID, disabled bool) error {
	return s.exec(ctx, "set disabled",
		`UPDATE users SET disabled = $2, updated_at = now() WHERE uid = $1`,
		uid, disabled,
	)
}

// SetTokensValidAfter moves the revocation watermark of an account.
func (s *UserStore) SetTokensValidAfter(ctx context.Context, uid uuid.UUID, t time.Time) error {
	return s.exec(ctx, "set tokens_valid_after",
		`UPDATE users SET tokens_valid_after = $2, updated_at = now() WHERE uid = $1`,
		uid, t,
	)
}

// RecordLogin updates the last login timestamp.
func (s *UserStore) RecordLogin(ctx context.Context, uid uuid.UUID, t time.Time) error {
	return s.exec(ctx, "record login",
		`UPDATE users SET last_login_at = $2 WHERE uid = $1`,
		uid, t,
	)
}

// List returns all accounts ordered by email.
func (s *UserStore) List(ctx context.Context) ([]*models.User, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+userColumns+` FROM users ORDER BY email`)
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", mapPostgresError(err))
	}
	defer rows.Close()

	var users []*models.User
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, user)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate users: %w", mapPostgresError(err))
	}

	return users, nil
}

func (s *UserStore) exec(ctx context.Context, op string, query string, args ...any) error {
	result, err := s.pool.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to %s: %w", op, mapPostgresError(err))
	}

	if result.RowsAffected() == 0 {
		return store.ErrUserNotFound
	}

	return nil
}

func scanUser(row pgx.Row) (*models.User, error) {
	var (
		user       models.User
		validAfter *time.Time
	)

	err := row.Scan(
		&user.UID,
		&user.Email,
		&user.DisplayName,
		&user.PasswordHash,
		&user.Disabled,
		&validAfter,
		&user.CreatedAt,
		&user.UpdatedAt,
		&user.LastLoginAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, store.ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to get user: %w", mapPostgresError(err))
	}

	if validAfter != nil {
		user.TokensValidAfter = *validAfter
	}

	return &user, nil
}
