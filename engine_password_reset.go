package authcore

import (
	"context"
	"time"

	"github.com/teeline/authcore/internal"
	internalflows "github.com/teeline/authcore/internal/flows"
)

// RequestPasswordReset issues a six digit code for email and sends it through
// the configured mailer. It returns nil for unknown and inactive accounts.
// A second request within PasswordReset.RequestCooldown fails with a
// *RateLimitError.
func (e *Engine) RequestPasswordReset(ctx context.Context, email string) error {
	if !e.ready() {
		return ErrEngineNotReady
	}
	return e.flows.RequestPasswordReset(ctx, email)
}

// ConfirmPasswordReset sets newPassword if code is the outstanding code for
// email. Success revokes every session of the account.
func (e *Engine) ConfirmPasswordReset(ctx context.Context, email, code, newPassword string) error {
	if !e.ready() {
		return ErrEngineNotReady
	}
	return e.flows.ConfirmPasswordReset(ctx, email, code, newPassword)
}

func (e *Engine) passwordResetFlowDeps() internalflows.PasswordResetDeps {
	cfg := e.config.PasswordReset

	return internalflows.PasswordResetDeps{
		Store:           e.store,
		NormalizeEmail:  internal.NormalizeEmail,
		NewCode:         internal.NewResetCode,
		HashCode:        internal.HashCode,
		ValidCode:       internal.ValidResetCode,
		NewID:           newID,
		CheckPassword:   e.checkPassword,
		HashPassword:    e.hasher.Hash,
		Send:            e.mailer.SendResetCode,
		CodeTTL:         cfg.CodeTTL,
		RequestCooldown: cfg.RequestCooldown,
		MaxAttempts:     cfg.MaxAttempts,
		Hooks:           e.hooks(),
		Metrics: internalflows.PasswordResetMetrics{
			Request:          int(MetricPasswordResetRequest),
			RateLimited:      int(MetricPasswordResetRateLimited),
			DeliveryFailure:  int(MetricPasswordResetDeliveryFailure),
			ConfirmSuccess:   int(MetricPasswordResetConfirmSuccess),
			ConfirmFailure:   int(MetricPasswordResetConfirmFailure),
			AttemptsExceeded: int(MetricPasswordResetAttemptsExceeded),
		},
		Events: internalflows.PasswordResetEvents{
			Request:          auditEventPasswordResetRequest,
			RateLimited:      auditEventPasswordResetRateLimited,
			DeliveryFailure:  auditEventPasswordResetDelivery,
			Confirm:          auditEventPasswordResetConfirm,
			AttemptsExceeded: auditEventPasswordResetAttemptsBurned,
		},
		Errors: internalflows.PasswordResetErrors{
			EngineNotReady: ErrEngineNotReady,
			InvalidEmail:   ErrInvalidEmail,
			UserNotFound:   ErrUserNotFound,
			InvalidCode:    ErrInvalidVerificationCode,
			Unexpected:     ErrUnexpected,
			RateLimited: func(retryAfter time.Duration) error {
				return &RateLimitError{RetryAfter: retryAfter}
			},
		},
	}
}
