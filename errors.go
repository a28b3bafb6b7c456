package authcore

import (
	"errors"
	"fmt"
	"net/http"
	"time"
)

var (
	// ErrInvalidCredentials covers an unknown email, an inactive account and a
	// wrong password alike.
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrUserNotFound       = errors.New("user not found")
	ErrUserInactive       = errors.New("user inactive")
	// ErrTokenExpiredOrInvalid covers unknown, revoked and expired refresh
	// secrets alike.
	ErrTokenExpiredOrInvalid = errors.New("refresh token expired or invalid")
	// ErrInvalidVerificationCode covers wrong, expired, superseded and already
	// used reset codes alike.
	ErrInvalidVerificationCode = errors.New("invalid verification code")
	ErrRateLimitExceeded       = errors.New("rate limit exceeded")
	ErrEmailAlreadyExists      = errors.New("email already exists")
	// ErrUnexpected is returned for every backend failure. The detail is logged,
	// never returned.
	ErrUnexpected = errors.New("unexpected error")

	ErrPasswordPolicy     = errors.New("password policy violation")
	ErrPasswordReuse      = errors.New("new password must be different from current password")
	ErrInvalidEmail       = errors.New("invalid email")
	ErrAccessTokenInvalid = errors.New("invalid access token")
	ErrEngineNotReady     = errors.New("engine not initialized")
)

// errRefreshUserNotFound is ErrUserNotFound as Refresh reports it. The caller
// presented a live token for an account that is gone or deactivated, which is
// a refusal (403) rather than a missing resource (404).
var errRefreshUserNotFound error = &statusError{err: ErrUserNotFound, status: http.StatusForbidden}

type statusError struct {
	err    error
	status int
}

func (e *statusError) Error() string { return e.err.Error() }
func (e *statusError) Unwrap() error { return e.err }

// RateLimitError is returned by RequestPasswordReset while the cooldown since
// the previous code is still running.
type RateLimitError struct {
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("%s: retry after %s", ErrRateLimitExceeded, e.RetryAfter.Round(time.Second))
}

// Is makes errors.Is(err, ErrRateLimitExceeded) hold.
func (e *RateLimitError) Is(target error) bool {
	return target == ErrRateLimitExceeded
}

// RetryAfter extracts the wait from a rate limit error.
func RetryAfter(err error) (time.Duration, bool) {
	var rl *RateLimitError
	if errors.As(err, &rl) {
		return rl.RetryAfter, true
	}
	return 0, false
}

// StatusCode maps an engine error to the HTTP status a transport should answer
// with. A nil error maps to 200.
func StatusCode(err error) int {
	var se *statusError
	if errors.As(err, &se) {
		return se.status
	}
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, ErrInvalidCredentials), errors.Is(err, ErrAccessTokenInvalid):
		return http.StatusUnauthorized
	case errors.Is(err, ErrTokenExpiredOrInvalid), errors.Is(err, ErrUserInactive):
		return http.StatusForbidden
	case errors.Is(err, ErrUserNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrInvalidVerificationCode),
		errors.Is(err, ErrPasswordPolicy),
		errors.Is(err, ErrPasswordReuse),
		errors.Is(err, ErrInvalidEmail):
		return http.StatusBadRequest
	case errors.Is(err, ErrEmailAlreadyExists):
		return http.StatusConflict
	case errors.Is(err, ErrRateLimitExceeded):
		return http.StatusTooManyRequests
	case errors.Is(err, ErrEngineNotReady):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
