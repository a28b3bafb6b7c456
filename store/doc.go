// Package store defines the persistence contract used by the authentication
// flows: users, refresh token records and password reset codes.
//
// Every record is owned by a user id. Reads are point lookups or owner-scoped
// queries; every mutation goes through [Store.Transact], which applies a list of
// [Op] values atomically and evaluates their conditions against the state it
// commits over.
//
// Implementations live in sub-packages:
//
//   - redisstore: single-table key-value layout on Redis (WATCH/MULTI/EXEC).
//   - postgres: relational layout on PostgreSQL (one pgx transaction per call).
//
// storetest holds a behavioural suite both adapters run.
package store
