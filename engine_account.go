package authcore

import (
	"context"

	internalflows "github.com/teeline/authcore/internal/flows"
)

// ChangePassword replaces the password of userID after checking oldPassword.
// Every session of the user is revoked, including the caller's.
func (e *Engine) ChangePassword(ctx context.Context, userID, oldPassword, newPassword string) error {
	if !e.ready() {
		return ErrEngineNotReady
	}
	return e.flows.ChangePassword(ctx, userID, oldPassword, newPassword)
}

// DeactivateAccount soft-deletes userID: login stops working and every
// session is revoked. The record is kept.
func (e *Engine) DeactivateAccount(ctx context.Context, userID string) error {
	if !e.ready() {
		return ErrEngineNotReady
	}
	return e.flows.DeactivateAccount(ctx, userID)
}

func (e *Engine) accountFlowDeps() internalflows.AccountDeps {
	return internalflows.AccountDeps{
		Store:          e.store,
		VerifyPassword: e.hasher.Verify,
		CheckPassword:  e.checkPassword,
		HashPassword:   e.hasher.Hash,
		Hooks:          e.hooks(),
		Metrics: internalflows.AccountMetrics{
			PasswordChangeSuccess:       int(MetricPasswordChangeSuccess),
			PasswordChangeInvalidOld:    int(MetricPasswordChangeInvalidOld),
			PasswordChangeReuseRejected: int(MetricPasswordChangeReuseRejected),
			Deactivated:                 int(MetricAccountDeactivated),
		},
		Events: internalflows.AccountEvents{
			PasswordChange: auditEventPasswordChange,
			Deactivated:    auditEventAccountDeactivated,
		},
		Errors: internalflows.AccountErrors{
			EngineNotReady:     ErrEngineNotReady,
			UserNotFound:       ErrUserNotFound,
			UserInactive:       ErrUserInactive,
			InvalidCredentials: ErrInvalidCredentials,
			PasswordReuse:      ErrPasswordReuse,
			Unexpected:         ErrUnexpected,
		},
	}
}
