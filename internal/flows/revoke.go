package flows

import (
	"context"
	"errors"
	"strings"

	"github.com/teeline/authcore/store"
)

// RevokeMetrics carries metric IDs used by the revoke-all flow.
type RevokeMetrics struct {
	LogoutAll int
}

// RevokeEvents carries audit event names used by the revoke-all flow.
type RevokeEvents struct {
	LogoutAll string
}

// RevokeErrors carries host-level sentinel errors used by the revoke-all flow.
type RevokeErrors struct {
	EngineNotReady error
	UserNotFound   error
	Unexpected     error
}

// RevokeDeps captures revoke-all dependencies.
type RevokeDeps struct {
	Store store.Store

	Hooks
	Metrics RevokeMetrics
	Events  RevokeEvents
	Errors  RevokeErrors
}

// RunRevokeAll revokes every live refresh record of userID. Calling it for a
// user with no live sessions succeeds.
func RunRevokeAll(ctx context.Context, userID, reason string, deps RevokeDeps) error {
	normalizeHooks(&deps.Hooks)
	if deps.Store == nil {
		return deps.Errors.EngineNotReady
	}
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return deps.Errors.UserNotFound
	}

	if _, err := deps.Store.GetUser(ctx, userID); errors.Is(err, store.ErrNotFound) {
		return deps.Errors.UserNotFound
	} else if err != nil {
		deps.LogError(ctx, "revoke all: user lookup failed", err, "user_id", userID)
		return deps.Errors.Unexpected
	}

	if err := deps.Store.Transact(ctx, store.RevokeAllRefreshTokens{UserID: userID, At: deps.Now().UTC()}); err != nil {
		deps.LogError(ctx, "revoke all: persist failed", err, "user_id", userID)
		deps.EmitAudit(ctx, deps.Events.LogoutAll, false, userID, deps.Errors.Unexpected, metadata("reason", reason))
		return deps.Errors.Unexpected
	}

	deps.MetricInc(deps.Metrics.LogoutAll)
	deps.EmitAudit(ctx, deps.Events.LogoutAll, true, userID, nil, metadata("reason", reason))
	return nil
}
