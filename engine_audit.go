package authcore

import (
	"context"
	"errors"
)

const (
	auditEventRegisterSuccess             = "register_success"
	auditEventRegisterFailure             = "register_failure"
	auditEventRegisterDuplicate           = "register_duplicate"
	auditEventLoginSuccess                = "login_success"
	auditEventLoginFailure                = "login_failure"
	auditEventRefreshSuccess              = "refresh_success"
	auditEventRefreshInvalid              = "refresh_invalid"
	auditEventRefreshReuseDetected        = "refresh_reuse_detected"
	auditEventLogoutAll                   = "logout_all"
	auditEventPasswordChange              = "password_change"
	auditEventPasswordResetRequest        = "password_reset_request"
	auditEventPasswordResetRateLimited    = "password_reset_rate_limited"
	auditEventPasswordResetDelivery       = "password_reset_delivery_failure"
	auditEventPasswordResetConfirm        = "password_reset_confirm"
	auditEventPasswordResetAttemptsBurned = "password_reset_attempts_exceeded"
	auditEventAccountDeactivated          = "account_deactivated"
)

// AuditErrorCode is the stable, non-sensitive error label stored on events.
type AuditErrorCode string

const (
	auditErrInvalidCredentials AuditErrorCode = "invalid_credentials"
	auditErrUserNotFound       AuditErrorCode = "user_not_found"
	auditErrUserInactive       AuditErrorCode = "user_inactive"
	auditErrInvalidToken       AuditErrorCode = "invalid_token"
	auditErrInvalidCode        AuditErrorCode = "invalid_code"
	auditErrRateLimited        AuditErrorCode = "rate_limited"
	auditErrDuplicate          AuditErrorCode = "duplicate"
	auditErrPasswordPolicy     AuditErrorCode = "password_policy"
	auditErrPasswordReuse      AuditErrorCode = "password_reuse"
	auditErrInvalidEmail       AuditErrorCode = "invalid_email"
	auditErrDelivery           AuditErrorCode = "delivery_failed"
	auditErrInternal           AuditErrorCode = "internal_error"
)

func (e *Engine) emitAudit(
	ctx context.Context,
	eventType string,
	success bool,
	userID string,
	err error,
	metadataBuilder func() map[string]string,
) {
	if e == nil || e.audit == nil {
		return
	}

	var metadata map[string]string
	if metadataBuilder != nil {
		metadata = metadataBuilder()
	}

	event := AuditEvent{
		Timestamp: e.now().UTC(),
		EventType: eventType,
		UserID:    userID,
		IP:        clientIPFromContext(ctx),
		Success:   success,
		Metadata:  metadata,
	}
	if code := auditErrorCode(err); code != "" {
		event.Error = string(code)
	}

	e.audit.Emit(ctx, event)
}

func auditErrorCode(err error) AuditErrorCode {
	if err == nil {
		return ""
	}

	switch {
	case errors.Is(err, ErrInvalidCredentials), errors.Is(err, ErrAccessTokenInvalid):
		return auditErrInvalidCredentials
	case errors.Is(err, ErrUserNotFound):
		return auditErrUserNotFound
	case errors.Is(err, ErrUserInactive):
		return auditErrUserInactive
	case errors.Is(err, ErrTokenExpiredOrInvalid):
		return auditErrInvalidToken
	case errors.Is(err, ErrInvalidVerificationCode):
		return auditErrInvalidCode
	case errors.Is(err, ErrRateLimitExceeded):
		return auditErrRateLimited
	case errors.Is(err, ErrEmailAlreadyExists):
		return auditErrDuplicate
	case errors.Is(err, ErrPasswordPolicy):
		return auditErrPasswordPolicy
	case errors.Is(err, ErrPasswordReuse):
		return auditErrPasswordReuse
	case errors.Is(err, ErrInvalidEmail):
		return auditErrInvalidEmail
	case errors.Is(err, ErrUnexpected), errors.Is(err, ErrEngineNotReady):
		return auditErrInternal
	default:
		// Only delivery failures reach here with a foreign error.
		return auditErrDelivery
	}
}
