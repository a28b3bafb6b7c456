package flows

import (
	"context"
	"errors"

	"github.com/teeline/authcore/store"
)

// AccountMetrics carries metric IDs used by the account flows.
type AccountMetrics struct {
	PasswordChangeSuccess       int
	PasswordChangeInvalidOld    int
	PasswordChangeReuseRejected int
	Deactivated                 int
}

// AccountEvents carries audit event names used by the account flows.
type AccountEvents struct {
	PasswordChange string
	Deactivated    string
}

// AccountErrors carries host-level sentinel errors used by the account flows.
type AccountErrors struct {
	EngineNotReady     error
	UserNotFound       error
	UserInactive       error
	InvalidCredentials error
	PasswordReuse      error
	Unexpected         error
}

// AccountDeps captures dependencies for password change and deactivation.
type AccountDeps struct {
	Store          store.Store
	VerifyPassword func(plaintext, hash string) (bool, error)
	CheckPassword  func(string) error
	HashPassword   func(string) (string, error)

	Hooks
	Metrics AccountMetrics
	Events  AccountEvents
	Errors  AccountErrors
}

// RunChangePassword replaces the password of an authenticated user after
// re-verifying the current one. All of the user's sessions are revoked along
// with the credential update.
func RunChangePassword(ctx context.Context, userID, oldPassword, newPassword string, deps AccountDeps) error {
	normalizeHooks(&deps.Hooks)
	if deps.Store == nil || deps.VerifyPassword == nil || deps.HashPassword == nil {
		return deps.Errors.EngineNotReady
	}

	user, err := loadUser(ctx, userID, deps)
	if err != nil {
		return err
	}
	if !user.IsActive {
		return deps.Errors.UserInactive
	}

	ok, err := deps.VerifyPassword(oldPassword, user.CredentialHash)
	if err != nil {
		deps.LogError(ctx, "change password: stored hash unreadable", err, "user_id", user.ID)
	}
	if !ok {
		deps.MetricInc(deps.Metrics.PasswordChangeInvalidOld)
		deps.EmitAudit(ctx, deps.Events.PasswordChange, false, user.ID, deps.Errors.InvalidCredentials, metadata("reason", "old_password_mismatch"))
		return deps.Errors.InvalidCredentials
	}
	if oldPassword == newPassword {
		deps.MetricInc(deps.Metrics.PasswordChangeReuseRejected)
		deps.EmitAudit(ctx, deps.Events.PasswordChange, false, user.ID, deps.Errors.PasswordReuse, metadata("reason", "reuse"))
		return deps.Errors.PasswordReuse
	}
	if deps.CheckPassword != nil {
		if err := deps.CheckPassword(newPassword); err != nil {
			deps.EmitAudit(ctx, deps.Events.PasswordChange, false, user.ID, err, metadata("reason", "password_policy"))
			return err
		}
	}

	hash, err := deps.HashPassword(newPassword)
	if err != nil {
		deps.LogError(ctx, "change password: hash password failed", err, "user_id", user.ID)
		return deps.Errors.Unexpected
	}

	err = deps.Store.Transact(ctx,
		store.UpdateCredential{UserID: user.ID, Hash: hash},
		store.RevokeAllRefreshTokens{UserID: user.ID, At: deps.Now().UTC()},
	)
	switch {
	case errors.Is(err, store.ErrConditionFailed):
		return deps.Errors.UserNotFound
	case err != nil:
		deps.LogError(ctx, "change password: persist failed", err, "user_id", user.ID)
		return deps.Errors.Unexpected
	}

	deps.MetricInc(deps.Metrics.PasswordChangeSuccess)
	deps.EmitAudit(ctx, deps.Events.PasswordChange, true, user.ID, nil, metadata("sessions", "revoked"))
	return nil
}

// RunDeactivateAccount disables login for userID and revokes its sessions.
// Deactivating an already inactive account succeeds.
func RunDeactivateAccount(ctx context.Context, userID string, deps AccountDeps) error {
	normalizeHooks(&deps.Hooks)
	if deps.Store == nil {
		return deps.Errors.EngineNotReady
	}

	user, err := loadUser(ctx, userID, deps)
	if err != nil {
		return err
	}

	err = deps.Store.Transact(ctx,
		store.DeactivateUser{UserID: user.ID},
		store.RevokeAllRefreshTokens{UserID: user.ID, At: deps.Now().UTC()},
	)
	switch {
	case errors.Is(err, store.ErrConditionFailed):
		return deps.Errors.UserNotFound
	case err != nil:
		deps.LogError(ctx, "deactivate: persist failed", err, "user_id", user.ID)
		return deps.Errors.Unexpected
	}

	if user.IsActive {
		deps.MetricInc(deps.Metrics.Deactivated)
	}
	deps.EmitAudit(ctx, deps.Events.Deactivated, true, user.ID, nil, nil)
	return nil
}

func loadUser(ctx context.Context, userID string, deps AccountDeps) (store.User, error) {
	if userID == "" {
		return store.User{}, deps.Errors.UserNotFound
	}
	user, err := deps.Store.GetUser(ctx, userID)
	if errors.Is(err, store.ErrNotFound) {
		return store.User{}, deps.Errors.UserNotFound
	}
	if err != nil {
		deps.LogError(ctx, "account: user lookup failed", err, "user_id", userID)
		return store.User{}, deps.Errors.Unexpected
	}
	return user, nil
}
