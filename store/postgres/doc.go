// Package postgres is a PostgreSQL implementation of store.Store built on
// pgx. Schema migrations are embedded and applied with goose via Migrate.
//
// Conditional ops map to guarded UPDATE statements: an op whose statement
// affects no row fails the whole transaction with store.ErrConditionFailed.
package postgres
