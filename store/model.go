package store

import "time"

// User is an account. Email is stored normalized (trimmed, lower-cased) and is
// unique across the store.
type User struct {
	ID             string
	Email          string
	CredentialHash string
	Nickname       string
	IsActive       bool
	CreatedAt      time.Time
}

// RefreshTokenRecord is the persisted side of a refresh secret. Only the hash
// of the secret is kept. RevokedAt is set at most once.
type RefreshTokenRecord struct {
	UserID    string
	TokenHash string
	IssuedAt  time.Time
	ExpiresAt time.Time
	RevokedAt *time.Time
}

// Usable reports whether the record can still be exchanged at now.
// A record expiring exactly at now is not usable.
func (r RefreshTokenRecord) Usable(now time.Time) bool {
	return r.RevokedAt == nil && now.Before(r.ExpiresAt)
}

// PasswordResetCode is a one-time reset code. CodeHash is the hex SHA-256 of
// the six digit code.
type PasswordResetCode struct {
	ID         string
	UserID     string
	CodeHash   string
	CreatedAt  time.Time
	ExpiresAt  time.Time
	Consumed   bool
	VerifiedAt *time.Time
	Attempts   int
}

// Redeemable reports whether the code can still be consumed at now.
func (c PasswordResetCode) Redeemable(now time.Time) bool {
	return !c.Consumed && c.ExpiresAt.After(now)
}
