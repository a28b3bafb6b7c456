package flows

import (
	"context"
	"errors"
	"time"

	"github.com/teeline/authcore/store"
)

// RefreshMetrics carries metric IDs used by the refresh flow.
type RefreshMetrics struct {
	Success       int
	Failure       int
	ReuseDetected int
}

// RefreshEvents carries audit event names used by the refresh flow.
type RefreshEvents struct {
	Success       string
	Invalid       string
	ReuseDetected string
}

// RefreshErrors carries host-level sentinel errors used by the refresh flow.
type RefreshErrors struct {
	EngineNotReady error
	TokenInvalid   error
	UserNotFound   error
	Unexpected     error
}

// RefreshDeps captures refresh rotation dependencies.
type RefreshDeps struct {
	Store          store.Store
	ValidateSecret func(string) error
	HashSecret     func(string) string
	Tokens         TokenDeps

	Hooks
	Metrics RefreshMetrics
	Events  RefreshEvents
	Errors  RefreshErrors
}

// RunRefresh exchanges a refresh secret for a new token pair. Revoking the
// presented record and storing its successor happen in one conditional
// transaction, so of any number of concurrent calls with the same secret
// exactly one succeeds.
func RunRefresh(ctx context.Context, secret string, deps RefreshDeps) (*SessionTokens, error) {
	normalizeHooks(&deps.Hooks)
	if deps.Store == nil || deps.HashSecret == nil || !deps.Tokens.ready() {
		return nil, deps.Errors.EngineNotReady
	}

	if deps.ValidateSecret != nil {
		if err := deps.ValidateSecret(secret); err != nil {
			return nil, refreshInvalid(ctx, "", "malformed", deps)
		}
	}

	hash := deps.HashSecret(secret)
	record, err := deps.Store.GetRefreshToken(ctx, hash)
	if errors.Is(err, store.ErrNotFound) {
		return nil, refreshInvalid(ctx, "", "unknown", deps)
	}
	if err != nil {
		deps.LogError(ctx, "refresh: lookup failed", err)
		return nil, deps.Errors.Unexpected
	}

	now := deps.Now().UTC()
	if record.RevokedAt != nil {
		// A revoked secret being presented again means it leaked or a client
		// retried after a successful rotation. Either way it is reported.
		deps.MetricInc(deps.Metrics.ReuseDetected)
		deps.EmitAudit(ctx, deps.Events.ReuseDetected, false, record.UserID, deps.Errors.TokenInvalid,
			metadata("revoked_at", record.RevokedAt.UTC().Format(time.RFC3339)))
		deps.MetricInc(deps.Metrics.Failure)
		return nil, deps.Errors.TokenInvalid
	}
	if !record.Usable(now) {
		return nil, refreshInvalid(ctx, record.UserID, "expired", deps)
	}

	user, err := deps.Store.GetUser(ctx, record.UserID)
	if errors.Is(err, store.ErrNotFound) || (err == nil && !user.IsActive) {
		deps.MetricInc(deps.Metrics.Failure)
		deps.EmitAudit(ctx, deps.Events.Invalid, false, record.UserID, deps.Errors.UserNotFound, metadata("reason", "user_unavailable"))
		return nil, deps.Errors.UserNotFound
	}
	if err != nil {
		deps.LogError(ctx, "refresh: user lookup failed", err, "user_id", record.UserID)
		return nil, deps.Errors.Unexpected
	}

	tokens, next, err := mintSession(user, now, deps.Tokens)
	if err != nil {
		deps.LogError(ctx, "refresh: mint session failed", err, "user_id", user.ID)
		return nil, deps.Errors.Unexpected
	}

	err = deps.Store.Transact(ctx,
		store.RevokeRefreshToken{UserID: user.ID, TokenHash: hash, At: now},
		store.PutRefreshToken{Record: next},
	)
	switch {
	case errors.Is(err, store.ErrConditionFailed):
		return nil, refreshInvalid(ctx, user.ID, "lost_race", deps)
	case errors.Is(err, store.ErrContention):
		// The presented record was not revoked; the client may retry with it.
		deps.LogError(ctx, "refresh: rotate contention", err, "user_id", user.ID)
		deps.MetricInc(deps.Metrics.Failure)
		return nil, deps.Errors.Unexpected
	case err != nil:
		deps.LogError(ctx, "refresh: rotate failed", err, "user_id", user.ID)
		return nil, deps.Errors.Unexpected
	}

	deps.MetricInc(deps.Metrics.Success)
	deps.EmitAudit(ctx, deps.Events.Success, true, user.ID, nil, nil)
	return &tokens, nil
}

func refreshInvalid(ctx context.Context, userID, reason string, deps RefreshDeps) error {
	deps.MetricInc(deps.Metrics.Failure)
	deps.EmitAudit(ctx, deps.Events.Invalid, false, userID, deps.Errors.TokenInvalid, metadata("reason", reason))
	return deps.Errors.TokenInvalid
}
