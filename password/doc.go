// Package password hashes and verifies user passwords.
//
// Two algorithms implement [Hasher]:
//
//   - [Bcrypt], the default, with a work factor of at least 10.
//   - [Argon2], argon2id encoded in PHC string format:
//
//	$argon2id$v=19$m=<memory>,t=<time>,p=<threads>$<salt>$<hash>
//
// Both share one verify and upgrade path. [Inspect] reads the algorithm and
// parameters out of a stored hash, any Hasher verifies either format, and
// NeedsUpgrade compares the stored parameters with the Hasher's [Options]. A
// hash of the other algorithm always needs an upgrade, so changing
// Options.Algorithm migrates users as they log in.
//
// # Architecture boundaries
//
// This package owns hashing and verification only. Password policy (length,
// reuse) is enforced by the engine.
//
// # What this package must NOT do
//
//   - Store or retrieve passwords.
//   - Import any other authcore package.
//   - Log plaintext passwords.
package password
