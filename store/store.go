package store

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotFound is returned by point lookups for a missing item.
	ErrNotFound = errors.New("store: not found")
	// ErrConditionFailed is returned by Transact when an op's condition does not
	// hold. Nothing from that call is written.
	ErrConditionFailed = errors.New("store: condition failed")
	// ErrDuplicate is returned by Transact when PutUser collides with an existing
	// email or id.
	ErrDuplicate = errors.New("store: duplicate")
	// ErrContention is returned when an optimistic transaction kept losing races
	// and gave up.
	ErrContention = errors.New("store: contention retries exhausted")
)

// Store is the persistence contract behind the authentication flows.
type Store interface {
	GetUser(ctx context.Context, userID string) (User, error)
	// GetUserByEmail expects an already normalized email.
	GetUserByEmail(ctx context.Context, email string) (User, error)
	// GetRefreshToken looks a record up by the hash of its secret.
	GetRefreshToken(ctx context.Context, tokenHash string) (RefreshTokenRecord, error)
	// ListRefreshTokens returns the unrevoked records owned by userID, newest
	// first. Expired records may be included; revoked ones never are.
	ListRefreshTokens(ctx context.Context, userID string) ([]RefreshTokenRecord, error)
	// LatestResetCode returns the most recently created code for userID.
	LatestResetCode(ctx context.Context, userID string) (PasswordResetCode, error)
	// Transact applies ops all-or-nothing.
	Transact(ctx context.Context, ops ...Op) error
}

// Op is a single write inside Transact.
type Op interface {
	op()
}

// PutUser creates a user. It fails with ErrDuplicate if the id or email exists.
type PutUser struct {
	User User
}

// UpdateCredential replaces a user's password hash. Condition: the user exists.
type UpdateCredential struct {
	UserID string
	Hash   string
}

// DeactivateUser clears IsActive. Condition: the user exists.
type DeactivateUser struct {
	UserID string
}

// PutRefreshToken stores a new refresh record.
type PutRefreshToken struct {
	Record RefreshTokenRecord
}

// RevokeRefreshToken sets RevokedAt on one record.
// Condition: the record exists, belongs to UserID and is not yet revoked.
type RevokeRefreshToken struct {
	UserID    string
	TokenHash string
	At        time.Time
}

// RevokeAllRefreshTokens sets RevokedAt on every record of UserID that is live
// at At. Having no live records is not a failure.
type RevokeAllRefreshTokens struct {
	UserID string
	At     time.Time
}

// PutResetCode stores a new reset code.
type PutResetCode struct {
	Code PasswordResetCode
}

// SupersedeResetCodes marks every unconsumed code of UserID as consumed.
type SupersedeResetCodes struct {
	UserID string
}

// ConsumeResetCode marks the code of UserID whose hash is CodeHash as consumed.
// Condition: such a code exists, is unconsumed and expires after At.
type ConsumeResetCode struct {
	UserID   string
	CodeHash string
	At       time.Time
}

// RecordResetFailure counts a failed confirmation against the newest redeemable
// code of UserID and consumes it once Attempts reaches MaxAttempts. Without a
// redeemable code it does nothing.
type RecordResetFailure struct {
	UserID      string
	At          time.Time
	MaxAttempts int
}

func (PutUser) op()                {}
func (UpdateCredential) op()       {}
func (DeactivateUser) op()         {}
func (PutRefreshToken) op()        {}
func (RevokeRefreshToken) op()     {}
func (RevokeAllRefreshTokens) op() {}
func (PutResetCode) op()           {}
func (SupersedeResetCodes) op()    {}
func (ConsumeResetCode) op()       {}
func (RecordResetFailure) op()     {}
