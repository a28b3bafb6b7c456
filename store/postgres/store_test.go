package postgres

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teeline/authcore/store"
)

var t0 = time.Date(2026, time.March, 1, 12, 0, 0, 0, time.UTC)

func newMockStore(t *testing.T) (*Store, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	return New(mock), mock
}

func TestGetUser(t *testing.T) {
	s, mock := newMockStore(t)
	ctx := context.Background()
	columns := []string{"id", "email", "credential_hash", "nickname", "is_active", "created_at"}

	t.Run("found", func(t *testing.T) {
		mock.ExpectQuery(regexp.QuoteMeta("FROM users WHERE id = $1")).
			WithArgs("u1").
			WillReturnRows(pgxmock.NewRows(columns).AddRow("u1", "alice@example.com", "hash", "alice", true, t0))

		u, err := s.GetUser(ctx, "u1")
		require.NoError(t, err)
		assert.Equal(t, "alice@example.com", u.Email)
		assert.True(t, u.IsActive)
		assert.True(t, t0.Equal(u.CreatedAt))
	})

	t.Run("not found", func(t *testing.T) {
		mock.ExpectQuery(regexp.QuoteMeta("FROM users WHERE id = $1")).
			WithArgs("missing").
			WillReturnError(pgx.ErrNoRows)

		_, err := s.GetUser(ctx, "missing")
		require.ErrorIs(t, err, store.ErrNotFound)
	})

	t.Run("database error", func(t *testing.T) {
		mock.ExpectQuery(regexp.QuoteMeta("FROM users WHERE email = $1")).
			WithArgs("alice@example.com").
			WillReturnError(errors.New("connection reset"))

		_, err := s.GetUserByEmail(ctx, "alice@example.com")
		require.Error(t, err)
		assert.False(t, errors.Is(err, store.ErrNotFound))
	})

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestTransactEmptyDoesNotBegin(t *testing.T) {
	s, mock := newMockStore(t)
	require.NoError(t, s.Transact(context.Background()))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestTransactRotationCommits(t *testing.T) {
	s, mock := newMockStore(t)
	at := t0.Add(time.Minute)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("UPDATE refresh_tokens SET revoked_at = $3")).
		WithArgs("u1", "old", at).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO refresh_tokens")).
		WithArgs("u1", "new", at, at.Add(time.Hour), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	err := s.Transact(context.Background(),
		store.RevokeRefreshToken{UserID: "u1", TokenHash: "old", At: at},
		store.PutRefreshToken{Record: store.RefreshTokenRecord{UserID: "u1", TokenHash: "new", IssuedAt: at, ExpiresAt: at.Add(time.Hour)}},
	)
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestTransactConditionFailedRollsBack(t *testing.T) {
	s, mock := newMockStore(t)
	at := t0.Add(time.Minute)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("UPDATE refresh_tokens SET revoked_at = $3")).
		WithArgs("u1", "old", at).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))
	mock.ExpectRollback()

	err := s.Transact(context.Background(),
		store.RevokeRefreshToken{UserID: "u1", TokenHash: "old", At: at},
		store.PutRefreshToken{Record: store.RefreshTokenRecord{UserID: "u1", TokenHash: "new", IssuedAt: at, ExpiresAt: at.Add(time.Hour)}},
	)
	require.ErrorIs(t, err, store.ErrConditionFailed)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestTransactMapsPgErrors(t *testing.T) {
	user := store.User{ID: "u1", Email: "alice@example.com", CredentialHash: "h", IsActive: true, CreatedAt: t0}

	cases := []struct {
		name string
		code string
		want error
	}{
		{name: "unique violation", code: pgerrcode.UniqueViolation, want: store.ErrDuplicate},
		{name: "serialization failure", code: pgerrcode.SerializationFailure, want: store.ErrContention},
		{name: "deadlock", code: pgerrcode.DeadlockDetected, want: store.ErrContention},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			s, mock := newMockStore(t)
			mock.ExpectBegin()
			mock.ExpectExec(regexp.QuoteMeta("INSERT INTO users")).
				WillReturnError(&pgconn.PgError{Code: tc.code, ConstraintName: "users_email_key"})
			mock.ExpectRollback()

			err := s.Transact(context.Background(), store.PutUser{User: user})
			require.ErrorIs(t, err, tc.want)
			require.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestTransactForeignKeyViolationIsConditionFailure(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO password_reset_codes")).
		WillReturnError(&pgconn.PgError{Code: pgerrcode.ForeignKeyViolation})
	mock.ExpectRollback()

	err := s.Transact(context.Background(), store.PutResetCode{Code: store.PasswordResetCode{
		ID: "c1", UserID: "ghost", CodeHash: "h", CreatedAt: t0, ExpiresAt: t0.Add(10 * time.Minute),
	}})
	require.ErrorIs(t, err, store.ErrConditionFailed)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestTransactRecordFailurePassesMaxAttempts(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("SET attempts = attempts + 1")).
		WithArgs("u1", t0, 5).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))
	mock.ExpectCommit()

	err := s.Transact(context.Background(), store.RecordResetFailure{UserID: "u1", At: t0, MaxAttempts: 5})
	require.NoError(t, err, "no redeemable code is not a failure")
	require.NoError(t, mock.ExpectationsWereMet())
}
