// Package refresh generates and hashes the opaque refresh secrets handed to
// clients.
//
// # Token format
//
// A secret is 48 bytes from crypto/rand, base64url-encoded without padding.
// Only its SHA-256 hash (hex) is persisted; the hash doubles as the lookup key.
//
// # Architecture boundaries
//
// This package owns secret generation, hashing and structural validation.
// Rotation, revocation and expiry are decided by the session flows against the
// store.
//
// # What this package must NOT do
//
//   - Access Redis, PostgreSQL or any I/O.
//   - Import authcore, jwt or store.
package refresh
