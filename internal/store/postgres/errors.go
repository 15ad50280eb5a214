package postgres

import (
	"errors"
	"fmt"

	"github.com/ecoagris/portal/internal/store"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"
)

// accountConstraints are the unique constraints that mean the account exists.
var accountConstraints = map[string]bool{
	"users_pkey":      true,
	"users_email_key": true,
}

// mapPostgresError translates a PostgreSQL error into the store sentinels.
// Errors that did not come from the server are returned unchanged.
func mapPostgresError(err error) error {
	var pgErr *pgconn.PgError
	if err == nil || !errors.As(err, &pgErr) {
		return err
	}

	code := pgErr.Code
	switch {
	case code == pgerrcode.UniqueViolation && accountConstraints[pgErr.ConstraintName]:
		return store.ErrUserAlreadyExists

	case code == pgerrcode.UniqueViolation:
		return fmt.Errorf("unique constraint violation: %s: %w", pgErr.ConstraintName, err)

	case code == pgerrcode.ForeignKeyViolation:
		// profiles.uid references users.uid
		return fmt.Errorf("%w: %s", store.ErrUserNotFound, pgErr.Detail)

	case pgerrcode.IsConnectionException(code),
		pgerrcode.IsOperatorIntervention(code),
		pgerrcode.IsInsufficientResources(code):
		return fmt.Errorf("%w: %s: %w", store.ErrUnavailable, pgErr.Message, err)

	default:
		return fmt.Errorf("postgres error [%s]: %s: %w", code, pgErr.Message, err)
	}
}
