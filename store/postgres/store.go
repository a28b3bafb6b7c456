package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/samber/oops"

	"github.com/teeline/authcore/store"
)

// poolIface is the subset of *pgxpool.Pool the store uses. pgxmock pools
// satisfy it in tests.
type poolIface interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
}

// Store implements store.Store on PostgreSQL. Every Transact call runs in one
// database transaction and conditions are expressed as guarded UPDATEs.
type Store struct {
	pool poolIface
}

var _ store.Store = (*Store)(nil)

// New wraps pool. The caller owns the pool.
func New(pool poolIface) *Store {
	return &Store{pool: pool}
}

const userColumns = `id, email, credential_hash, nickname, is_active, created_at`

func scanUser(row pgx.Row) (store.User, error) {
	var u store.User
	if err := row.Scan(&u.ID, &u.Email, &u.CredentialHash, &u.Nickname, &u.IsActive, &u.CreatedAt); err != nil {
		return store.User{}, err
	}
	u.CreatedAt = u.CreatedAt.UTC()
	return u, nil
}

func (s *Store) GetUser(ctx context.Context, userID string) (store.User, error) {
	u, err := scanUser(s.pool.QueryRow(ctx,
		`SELECT `+userColumns+` FROM users WHERE id = $1`, userID))
	if errors.Is(err, pgx.ErrNoRows) {
		return store.User{}, store.ErrNotFound
	}
	if err != nil {
		return store.User{}, oops.Code("STORE_QUERY_FAILED").With("operation", "get user").Wrap(err)
	}
	return u, nil
}

func (s *Store) GetUserByEmail(ctx context.Context, email string) (store.User, error) {
	u, err := scanUser(s.pool.QueryRow(ctx,
		`SELECT `+userColumns+` FROM users WHERE email = $1`, email))
	if errors.Is(err, pgx.ErrNoRows) {
		return store.User{}, store.ErrNotFound
	}
	if err != nil {
		return store.User{}, oops.Code("STORE_QUERY_FAILED").With("operation", "get user by email").Wrap(err)
	}
	return u, nil
}

const refreshColumns = `user_id, token_hash, issued_at, expires_at, revoked_at`

func scanRefresh(row pgx.Row) (store.RefreshTokenRecord, error) {
	var r store.RefreshTokenRecord
	if err := row.Scan(&r.UserID, &r.TokenHash, &r.IssuedAt, &r.ExpiresAt, &r.RevokedAt); err != nil {
		return store.RefreshTokenRecord{}, err
	}
	r.IssuedAt = r.IssuedAt.UTC()
	r.ExpiresAt = r.ExpiresAt.UTC()
	if r.RevokedAt != nil {
		at := r.RevokedAt.UTC()
		r.RevokedAt = &at
	}
	return r, nil
}

func (s *Store) GetRefreshToken(ctx context.Context, tokenHash string) (store.RefreshTokenRecord, error) {
	r, err := scanRefresh(s.pool.QueryRow(ctx,
		`SELECT `+refreshColumns+` FROM refresh_tokens WHERE token_hash = $1`, tokenHash))
	if errors.Is(err, pgx.ErrNoRows) {
		return store.RefreshTokenRecord{}, store.ErrNotFound
	}
	if err != nil {
		return store.RefreshTokenRecord{}, oops.Code("STORE_QUERY_FAILED").With("operation", "get refresh token").Wrap(err)
	}
	return r, nil
}

func (s *Store) ListRefreshTokens(ctx context.Context, userID string) ([]store.RefreshTokenRecord, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+refreshColumns+` FROM refresh_tokens WHERE user_id = $1 AND revoked_at IS NULL ORDER BY issued_at DESC, token_hash`, userID)
	if err != nil {
		return nil, oops.Code("STORE_QUERY_FAILED").With("operation", "list refresh tokens").Wrap(err)
	}
	defer rows.Close()

	var records []store.RefreshTokenRecord
	for rows.Next() {
		r, err := scanRefresh(rows)
		if err != nil {
			return nil, oops.Code("STORE_QUERY_FAILED").With("operation", "scan refresh token").Wrap(err)
		}
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, oops.Code("STORE_QUERY_FAILED").With("operation", "list refresh tokens").Wrap(err)
	}
	return records, nil
}

func (s *Store) LatestResetCode(ctx context.Context, userID string) (store.PasswordResetCode, error) {
	var c store.PasswordResetCode
	err := s.pool.QueryRow(ctx, `
		SELECT id, user_id, code_hash, created_at, expires_at, consumed, verified_at, attempts
		FROM password_reset_codes
		WHERE user_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT 1`, userID).
		Scan(&c.ID, &c.UserID, &c.CodeHash, &c.CreatedAt, &c.ExpiresAt, &c.Consumed, &c.VerifiedAt, &c.Attempts)
	if errors.Is(err, pgx.ErrNoRows) {
		return store.PasswordResetCode{}, store.ErrNotFound
	}
	if err != nil {
		return store.PasswordResetCode{}, oops.Code("STORE_QUERY_FAILED").With("operation", "latest reset code").Wrap(err)
	}
	c.CreatedAt = c.CreatedAt.UTC()
	c.ExpiresAt = c.ExpiresAt.UTC()
	if c.VerifiedAt != nil {
		at := c.VerifiedAt.UTC()
		c.VerifiedAt = &at
	}
	return c, nil
}

// Transact applies ops inside one transaction. The first failing op rolls
// everything back.
func (s *Store) Transact(ctx context.Context, ops ...store.Op) (err error) {
	if len(ops) == 0 {
		return nil
	}
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return oops.Code("STORE_TX_BEGIN_FAILED").Wrap(err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	for _, op := range ops {
		if err = apply(ctx, tx, op); err != nil {
			return classify(op, err)
		}
	}
	if err = tx.Commit(ctx); err != nil {
		return classify(nil, err)
	}
	return nil
}

func classify(op store.Op, err error) error {
	if errors.Is(err, store.ErrConditionFailed) || errors.Is(err, store.ErrDuplicate) {
		return err
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgerrcode.UniqueViolation:
			if _, ok := op.(store.PutUser); ok {
				return oops.Code("STORE_DUPLICATE_USER").With("constraint", pgErr.ConstraintName).Wrap(store.ErrDuplicate)
			}
			return conditionFailed(op, "unique violation on "+pgErr.ConstraintName)
		case pgerrcode.ForeignKeyViolation:
			return conditionFailed(op, "owner missing")
		case pgerrcode.SerializationFailure, pgerrcode.DeadlockDetected:
			return oops.Code("STORE_CONTENTION").Wrap(store.ErrContention)
		}
	}
	return oops.Code("STORE_TX_FAILED").With("op", fmt.Sprintf("%T", op)).Wrap(err)
}

func conditionFailed(op store.Op, reason string) error {
	return oops.Code("STORE_CONDITION_FAILED").
		With("op", fmt.Sprintf("%T", op)).
		With("reason", reason).
		Wrap(store.ErrConditionFailed)
}

// execOne runs a guarded statement and fails the op when it touched no rows.
func execOne(ctx context.Context, tx pgx.Tx, op store.Op, reason, sql string, args ...any) error {
	tag, err := tx.Exec(ctx, sql, args...)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return conditionFailed(op, reason)
	}
	return nil
}

func apply(ctx context.Context, tx pgx.Tx, op store.Op) error {
	switch o := op.(type) {
	case store.PutUser:
		_, err := tx.Exec(ctx,
			`INSERT INTO users (`+userColumns+`) VALUES ($1, $2, $3, $4, $5, $6)`,
			o.User.ID, o.User.Email, o.User.CredentialHash, o.User.Nickname, o.User.IsActive, o.User.CreatedAt)
		return err

	case store.UpdateCredential:
		return execOne(ctx, tx, op, "user missing",
			`UPDATE users SET credential_hash = $2 WHERE id = $1`, o.UserID, o.Hash)

	case store.DeactivateUser:
		return execOne(ctx, tx, op, "user missing",
			`UPDATE users SET is_active = FALSE WHERE id = $1`, o.UserID)

	case store.PutRefreshToken:
		r := o.Record
		_, err := tx.Exec(ctx,
			`INSERT INTO refresh_tokens (`+refreshColumns+`) VALUES ($1, $2, $3, $4, $5)`,
			r.UserID, r.TokenHash, r.IssuedAt, r.ExpiresAt, r.RevokedAt)
		return err

	case store.RevokeRefreshToken:
		return execOne(ctx, tx, op, "token missing or revoked", `
			UPDATE refresh_tokens SET revoked_at = $3
			WHERE user_id = $1 AND token_hash = $2 AND revoked_at IS NULL`,
			o.UserID, o.TokenHash, o.At)

	case store.RevokeAllRefreshTokens:
		_, err := tx.Exec(ctx, `
			UPDATE refresh_tokens SET revoked_at = $2
			WHERE user_id = $1 AND revoked_at IS NULL AND expires_at > $2`,
			o.UserID, o.At)
		return err

	case store.PutResetCode:
		c := o.Code
		_, err := tx.Exec(ctx, `
			INSERT INTO password_reset_codes
				(id, user_id, code_hash, created_at, expires_at, consumed, verified_at, attempts)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
			c.ID, c.UserID, c.CodeHash, c.CreatedAt, c.ExpiresAt, c.Consumed, c.VerifiedAt, c.Attempts)
		return err

	case store.SupersedeResetCodes:
		_, err := tx.Exec(ctx,
			`UPDATE password_reset_codes SET consumed = TRUE WHERE user_id = $1 AND consumed = FALSE`,
			o.UserID)
		return err

	case store.ConsumeResetCode:
		return execOne(ctx, tx, op, "no redeemable code", `
			UPDATE password_reset_codes SET consumed = TRUE, verified_at = $3
			WHERE id = (
				SELECT id FROM password_reset_codes
				WHERE user_id = $1 AND code_hash = $2 AND consumed = FALSE AND expires_at > $3
				ORDER BY created_at DESC
				LIMIT 1
				FOR UPDATE
			)`,
			o.UserID, o.CodeHash, o.At)

	case store.RecordResetFailure:
		_, err := tx.Exec(ctx, `
			UPDATE password_reset_codes
			SET attempts = attempts + 1,
			    consumed = ($3 > 0 AND attempts + 1 >= $3)
			WHERE id = (
				SELECT id FROM password_reset_codes
				WHERE user_id = $1 AND consumed = FALSE AND expires_at > $2
				ORDER BY created_at DESC
				LIMIT 1
				FOR UPDATE
			)`,
			o.UserID, o.At, o.MaxAttempts)
		return err

	default:
		return fmt.Errorf("postgres store: unsupported op %T", op)
	}
}
