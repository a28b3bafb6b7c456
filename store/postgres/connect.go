package postgres

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
	"github.com/samber/oops"
	"github.com/sethvargo/go-retry"

	"github.com/teeline/authcore/store/postgres/migrations"
)

// ConnectOptions tunes Connect.
type ConnectOptions struct {
	// PingAttempts bounds how often the first ping is retried. Zero means 5.
	PingAttempts uint64
	// PingBackoff is the initial backoff between pings. Zero means 200ms.
	PingBackoff time.Duration
}

// Connect opens a pool for dsn and waits until the server answers a ping.
func Connect(ctx context.Context, dsn string, opts ConnectOptions) (*pgxpool.Pool, error) {
	if opts.PingAttempts == 0 {
		opts.PingAttempts = 5
	}
	if opts.PingBackoff == 0 {
		opts.PingBackoff = 200 * time.Millisecond
	}

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, oops.Code("STORE_PG_CONFIG").Wrap(err)
	}

	backoff := retry.WithMaxRetries(opts.PingAttempts, retry.NewExponential(opts.PingBackoff))
	err = retry.Do(ctx, backoff, func(ctx context.Context) error {
		if err := pool.Ping(ctx); err != nil {
			return retry.RetryableError(err)
		}
		return nil
	})
	if err != nil {
		pool.Close()
		return nil, oops.Code("STORE_PG_UNAVAILABLE").
			With("attempts", opts.PingAttempts).
			Wrap(err)
	}
	return pool, nil
}

// Migrate applies the embedded schema migrations.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	db := stdlib.OpenDBFromPool(pool)
	defer db.Close()

	goose.SetBaseFS(migrations.FS)
	if err := goose.SetDialect("pgx"); err != nil {
		return oops.Code("STORE_PG_MIGRATE").Wrap(err)
	}
	if err := goose.UpContext(ctx, db, "."); err != nil {
		return oops.Code("STORE_PG_MIGRATE").Wrap(err)
	}
	return nil
}
