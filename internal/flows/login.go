package flows

import (
	"context"
	"errors"

	"github.com/teeline/authcore/internal"
	"github.com/teeline/authcore/store"
)

// LoginMetrics carries metric IDs used by the login flow.
type LoginMetrics struct {
	Success              int
	Failure              int
	SessionCreated       int
	HashUpgraded         int
	OtherSessionsRevoked int
}

// LoginEvents carries audit event names used by the login flow.
type LoginEvents struct {
	Success string
	Failure string
}

// LoginErrors carries host-level sentinel errors used by the login flow.
type LoginErrors struct {
	EngineNotReady     error
	InvalidCredentials error
	Unexpected         error
}

// LoginDeps captures login dependencies.
type LoginDeps struct {
	Store          store.Store
	NormalizeEmail func(string) (string, error)
	VerifyPassword func(plaintext, hash string) (bool, error)
	NeedsUpgrade   func(hash string) (bool, error)
	HashPassword   func(string) (string, error)
	// DummyHash is verified against when the email is unknown so the response
	// time does not reveal whether an account exists.
	DummyHash           string
	UpgradeOnLogin      bool
	RevokeOtherSessions bool
	Tokens              TokenDeps

	Hooks
	Metrics LoginMetrics
	Events  LoginEvents
	Errors  LoginErrors
}

// RunLogin verifies credentials and opens a new session. Every credential
// problem, including an unknown or inactive account, surfaces as the same
// InvalidCredentials error.
func RunLogin(ctx context.Context, email, plaintext string, deps LoginDeps) (*AuthResult, error) {
	normalizeHooks(&deps.Hooks)
	if deps.Store == nil || deps.VerifyPassword == nil || !deps.Tokens.ready() {
		return nil, deps.Errors.EngineNotReady
	}
	if deps.NormalizeEmail == nil {
		deps.NormalizeEmail = internal.NormalizeEmail
	}

	normalized, err := deps.NormalizeEmail(email)
	if err != nil {
		burnVerify(plaintext, deps)
		return nil, loginFailed(ctx, "", "", "invalid_email", deps)
	}

	user, err := deps.Store.GetUserByEmail(ctx, normalized)
	if errors.Is(err, store.ErrNotFound) {
		burnVerify(plaintext, deps)
		return nil, loginFailed(ctx, "", normalized, "unknown_email", deps)
	}
	if err != nil {
		deps.LogError(ctx, "login: lookup by email failed", err, "email", normalized)
		return nil, deps.Errors.Unexpected
	}

	ok, err := deps.VerifyPassword(plaintext, user.CredentialHash)
	if err != nil {
		deps.LogError(ctx, "login: stored hash unreadable", err, "user_id", user.ID)
		return nil, loginFailed(ctx, user.ID, normalized, "unreadable_hash", deps)
	}
	if !ok {
		return nil, loginFailed(ctx, user.ID, normalized, "password_mismatch", deps)
	}
	if !user.IsActive {
		return nil, loginFailed(ctx, user.ID, normalized, "inactive", deps)
	}

	now := deps.Now().UTC()
	var ops []store.Op

	if deps.UpgradeOnLogin && deps.NeedsUpgrade != nil && deps.HashPassword != nil {
		if stale, err := deps.NeedsUpgrade(user.CredentialHash); err == nil && stale {
			if upgraded, err := deps.HashPassword(plaintext); err == nil {
				ops = append(ops, store.UpdateCredential{UserID: user.ID, Hash: upgraded})
				user.CredentialHash = upgraded
				deps.MetricInc(deps.Metrics.HashUpgraded)
			} else {
				deps.LogError(ctx, "login: rehash failed", err, "user_id", user.ID)
			}
		}
	}
	if deps.RevokeOtherSessions {
		ops = append(ops, store.RevokeAllRefreshTokens{UserID: user.ID, At: now})
	}

	tokens, record, err := mintSession(user, now, deps.Tokens)
	if err != nil {
		deps.LogError(ctx, "login: mint session failed", err, "user_id", user.ID)
		return nil, deps.Errors.Unexpected
	}
	ops = append(ops, store.PutRefreshToken{Record: record})

	if err := deps.Store.Transact(ctx, ops...); err != nil {
		deps.LogError(ctx, "login: persist session failed", err, "user_id", user.ID)
		return nil, deps.Errors.Unexpected
	}

	deps.MetricInc(deps.Metrics.Success)
	deps.MetricInc(deps.Metrics.SessionCreated)
	if deps.RevokeOtherSessions {
		deps.MetricInc(deps.Metrics.OtherSessionsRevoked)
	}
	deps.EmitAudit(ctx, deps.Events.Success, true, user.ID, nil, metadata("email", normalized))
	return &AuthResult{User: user, Tokens: tokens}, nil
}

func burnVerify(plaintext string, deps LoginDeps) {
	if deps.DummyHash != "" {
		_, _ = deps.VerifyPassword(plaintext, deps.DummyHash)
	}
}

func loginFailed(ctx context.Context, userID, email, reason string, deps LoginDeps) error {
	deps.MetricInc(deps.Metrics.Failure)
	deps.EmitAudit(ctx, deps.Events.Failure, false, userID, deps.Errors.InvalidCredentials, metadata("email", email, "reason", reason))
	return deps.Errors.InvalidCredentials
}
