package postgres

import (
	"errors"
	"testing"

	"github.com/ecoagris/portal/internal/store"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/require"
)

func TestMapPostgresError(t *testing.T) {
	t.Run("nil", func(t *testing.T) {
		require.NoError(t, mapPostgresError(nil))
	})

	t.Run("non postgres error passes through", func(t *testing.T) {
		err := errors.New("boom")
		require.Equal(t, err, mapPostgresError(err))
	})

	t.Run("duplicate email", func(t *testing.T) {
		err := &pgconn.PgError{Code: pgerrcode.UniqueViolation, ConstraintName: "users_email_key"}
		require.ErrorIs(t, mapPostgresError(err), store.ErrUserAlreadyExists)
	})

	t.Run("other unique violation", func(t *testing.T) {
		err := &pgconn.PgError{Code: pgerrcode.UniqueViolation, ConstraintName: "something_else"}
		mapped := mapPostgresError(err)
		require.NotErrorIs(t, mapped, store.ErrUserAlreadyExists)
		require.ErrorContains(t, mapped, "unique constraint violation")
	})

	t.Run("profile for missing user", func(t *testing.T) {
		err := &pgconn.PgError{Code: pgerrcode.ForeignKeyViolation, Detail: "Key (uid) is not present"}
		require.ErrorIs(t, mapPostgresError(err), store.ErrUserNotFound)
	})

	for _, code := range []string{pgerrcode.ConnectionFailure, pgerrcode.AdminShutdown, pgerrcode.TooManyConnections} {
		t.Run("unavailable "+code, func(t *testing.T) {
			mapped := mapPostgresError(&pgconn.PgError{Code: code, Message: "server says no"})
			require.ErrorIs(t, mapped, store.ErrUnavailable)

			var pgErr *pgconn.PgError
			require.True(t, errors.As(mapped, &pgErr))
		})
	}

	t.Run("other codes keep the server message", func(t *testing.T) {
		mapped := mapPostgresError(&pgconn.PgError{Code: pgerrcode.CheckViolation, Message: "bad row"})
		require.NotErrorIs(t, mapped, store.ErrUnavailable)
		require.ErrorContains(t, mapped, "bad row")
	})
}
