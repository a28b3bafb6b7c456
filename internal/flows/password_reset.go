package flows

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/teeline/authcore/internal"
	"github.com/teeline/authcore/store"
)

// PasswordResetMetrics carries metric IDs used by the password reset flows.
type PasswordResetMetrics struct {
	Request          int
	RateLimited      int
	DeliveryFailure  int
	ConfirmSuccess   int
	ConfirmFailure   int
	AttemptsExceeded int
}

// PasswordResetEvents carries audit event names used by the password reset flows.
type PasswordResetEvents struct {
	Request          string
	RateLimited      string
	DeliveryFailure  string
	Confirm          string
	AttemptsExceeded string
}

// PasswordResetErrors carries host-level sentinel errors used by the password
// reset flows.
type PasswordResetErrors struct {
	EngineNotReady error
	InvalidEmail   error
	UserNotFound   error
	InvalidCode    error
	Unexpected     error
	// RateLimited builds the error returned while the request cooldown runs.
	RateLimited func(retryAfter time.Duration) error
}

// PasswordResetDeps captures password reset dependencies.
type PasswordResetDeps struct {
	Store          store.Store
	NormalizeEmail func(string) (string, error)
	NewCode        func() (string, error)
	HashCode       func(string) string
	ValidCode      func(string) bool
	NewID          func() string
	CheckPassword  func(string) error
	HashPassword   func(string) (string, error)
	// Send delivers the plaintext code. It runs after the code is committed.
	Send func(ctx context.Context, to, code string) error

	CodeTTL         time.Duration
	RequestCooldown time.Duration
	MaxAttempts     int

	Hooks
	Metrics PasswordResetMetrics
	Events  PasswordResetEvents
	Errors  PasswordResetErrors
}

func (d *PasswordResetDeps) normalize() {
	normalizeHooks(&d.Hooks)
	if d.NormalizeEmail == nil {
		d.NormalizeEmail = internal.NormalizeEmail
	}
	if d.NewCode == nil {
		d.NewCode = internal.NewResetCode
	}
	if d.HashCode == nil {
		d.HashCode = internal.HashCode
	}
	if d.ValidCode == nil {
		d.ValidCode = internal.ValidResetCode
	}
}

// RunRequestPasswordReset issues a fresh code for email and hands it to Send.
// Unknown and inactive accounts get the same nil result as real ones so the
// call cannot be used to probe for accounts. The only error a caller can
// observe for a well-formed email is the cooldown.
func RunRequestPasswordReset(ctx context.Context, email string, deps PasswordResetDeps) error {
	deps.normalize()
	if deps.Store == nil || deps.NewID == nil || deps.CodeTTL <= 0 {
		return deps.Errors.EngineNotReady
	}

	normalized, err := deps.NormalizeEmail(email)
	if err != nil {
		return deps.Errors.InvalidEmail
	}

	user, err := deps.Store.GetUserByEmail(ctx, normalized)
	if errors.Is(err, store.ErrNotFound) || (err == nil && !user.IsActive) {
		deps.EmitAudit(ctx, deps.Events.Request, false, "", nil, metadata("email", normalized, "reason", "no_active_account"))
		return nil
	}
	if err != nil {
		deps.LogError(ctx, "password reset: lookup by email failed", err, "email", normalized)
		return deps.Errors.Unexpected
	}

	now := deps.Now().UTC()
	latest, err := deps.Store.LatestResetCode(ctx, user.ID)
	switch {
	case err == nil:
		if elapsed := now.Sub(latest.CreatedAt); elapsed < deps.RequestCooldown {
			// A code stamped in the future (clock skew between nodes) waits out
			// the full cooldown.
			retryAfter := deps.RequestCooldown
			if elapsed > 0 {
				retryAfter -= elapsed
			}
			deps.MetricInc(deps.Metrics.RateLimited)
			deps.EmitAudit(ctx, deps.Events.RateLimited, false, user.ID, nil, metadata("retry_after", retryAfter.Round(time.Second).String()))
			if deps.Errors.RateLimited != nil {
				return deps.Errors.RateLimited(retryAfter)
			}
			return deps.Errors.Unexpected
		}
	case errors.Is(err, store.ErrNotFound):
	default:
		deps.LogError(ctx, "password reset: latest code lookup failed", err, "user_id", user.ID)
		return deps.Errors.Unexpected
	}

	code, err := deps.NewCode()
	if err != nil {
		deps.LogError(ctx, "password reset: code generation failed", err)
		return deps.Errors.Unexpected
	}
	record := store.PasswordResetCode{
		ID:        deps.NewID(),
		UserID:    user.ID,
		CodeHash:  deps.HashCode(code),
		CreatedAt: now,
		ExpiresAt: now.Add(deps.CodeTTL),
	}
	err = deps.Store.Transact(ctx,
		store.SupersedeResetCodes{UserID: user.ID},
		store.PutResetCode{Code: record},
	)
	if err != nil {
		deps.LogError(ctx, "password reset: persist code failed", err, "user_id", user.ID)
		return deps.Errors.Unexpected
	}
	deps.MetricInc(deps.Metrics.Request)

	if deps.Send != nil {
		if err := deps.Send(ctx, user.Email, code); err != nil {
			// The code stays valid. The user can ask again once the cooldown ends.
			deps.MetricInc(deps.Metrics.DeliveryFailure)
			deps.LogError(ctx, "password reset: delivery failed", err, "user_id", user.ID)
			deps.EmitAudit(ctx, deps.Events.DeliveryFailure, false, user.ID, err, nil)
			return nil
		}
	}

	deps.EmitAudit(ctx, deps.Events.Request, true, user.ID, nil, nil)
	return nil
}

// RunConfirmPasswordReset redeems code for email and sets newPassword. The code
// is consumed, the credential replaced and every session revoked in a single
// transaction. A wrong code counts against the attempt budget of the newest
// outstanding code.
func RunConfirmPasswordReset(ctx context.Context, email, code, newPassword string, deps PasswordResetDeps) error {
	deps.normalize()
	if deps.Store == nil || deps.HashPassword == nil {
		return deps.Errors.EngineNotReady
	}

	normalized, err := deps.NormalizeEmail(email)
	if err != nil {
		return confirmFailed(ctx, "", "invalid_email", deps.Errors.UserNotFound, deps)
	}
	user, err := deps.Store.GetUserByEmail(ctx, normalized)
	if errors.Is(err, store.ErrNotFound) || (err == nil && !user.IsActive) {
		return confirmFailed(ctx, "", "no_active_account", deps.Errors.UserNotFound, deps)
	}
	if err != nil {
		deps.LogError(ctx, "password reset confirm: lookup by email failed", err, "email", normalized)
		return deps.Errors.Unexpected
	}

	if deps.CheckPassword != nil {
		if err := deps.CheckPassword(newPassword); err != nil {
			return confirmFailed(ctx, user.ID, "password_policy", err, deps)
		}
	}

	now := deps.Now().UTC()
	if !deps.ValidCode(code) {
		recordCodeFailure(ctx, user.ID, now, deps)
		return confirmFailed(ctx, user.ID, "malformed_code", deps.Errors.InvalidCode, deps)
	}

	hash, err := deps.HashPassword(newPassword)
	if err != nil {
		deps.LogError(ctx, "password reset confirm: hash password failed", err, "user_id", user.ID)
		return deps.Errors.Unexpected
	}

	err = deps.Store.Transact(ctx,
		store.ConsumeResetCode{UserID: user.ID, CodeHash: deps.HashCode(code), At: now},
		store.UpdateCredential{UserID: user.ID, Hash: hash},
		store.RevokeAllRefreshTokens{UserID: user.ID, At: now},
	)
	switch {
	case errors.Is(err, store.ErrConditionFailed):
		recordCodeFailure(ctx, user.ID, now, deps)
		return confirmFailed(ctx, user.ID, "code_mismatch", deps.Errors.InvalidCode, deps)
	case err != nil:
		deps.LogError(ctx, "password reset confirm: persist failed", err, "user_id", user.ID)
		return deps.Errors.Unexpected
	}

	deps.MetricInc(deps.Metrics.ConfirmSuccess)
	deps.EmitAudit(ctx, deps.Events.Confirm, true, user.ID, nil, metadata("sessions", "revoked"))
	return nil
}

func confirmFailed(ctx context.Context, userID, reason string, err error, deps PasswordResetDeps) error {
	deps.MetricInc(deps.Metrics.ConfirmFailure)
	deps.EmitAudit(ctx, deps.Events.Confirm, false, userID, err, metadata("reason", reason))
	return err
}

func recordCodeFailure(ctx context.Context, userID string, now time.Time, deps PasswordResetDeps) {
	if deps.MaxAttempts <= 0 {
		return
	}
	before, err := deps.Store.LatestResetCode(ctx, userID)
	if err != nil || !before.Redeemable(now) {
		return
	}
	err = deps.Store.Transact(ctx, store.RecordResetFailure{UserID: userID, At: now, MaxAttempts: deps.MaxAttempts})
	if err != nil {
		deps.LogError(ctx, "password reset confirm: record failure failed", err, "user_id", userID)
		return
	}

	after, err := deps.Store.LatestResetCode(ctx, userID)
	if err == nil && after.ID == before.ID && after.Consumed && after.VerifiedAt == nil {
		deps.MetricInc(deps.Metrics.AttemptsExceeded)
		deps.EmitAudit(ctx, deps.Events.AttemptsExceeded, false, userID, deps.Errors.InvalidCode,
			metadata("attempts", strconv.Itoa(after.Attempts)))
	}
}
