// Package authcore is an email and password authentication engine with
// short-lived JWT access tokens and long-lived rotating refresh tokens.
//
// An [Engine] is assembled once through [Builder] and is then safe for
// concurrent use. Persistence is behind [store.Store]; the repository ships a
// Redis backend (store/redisstore) and a PostgreSQL backend (store/postgres).
//
// # Architecture boundaries
//
// authcore is the public surface. It exposes [Engine], [Builder], [Config],
// the error taxonomy and value types. Flow orchestration and the audit
// dispatcher live under internal/ and are never exported.
//
// Every multi-step mutation an operation performs is a single
// store.Transact call whose conditions are checked by the backend, so two
// concurrent refreshes of one secret can never both succeed.
//
// # Errors
//
// Credential, refresh and reset-code failures are deliberately coarse: an
// unknown email and a wrong password both yield [ErrInvalidCredentials], and
// an unknown, revoked or expired refresh secret all yield
// [ErrTokenExpiredOrInvalid]. Backend failures are logged with detail and
// returned as [ErrUnexpected]. [StatusCode] maps the taxonomy to HTTP.
package authcore
