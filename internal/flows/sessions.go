package flows

import (
	"context"
	"errors"

	"github.com/teeline/authcore/store"
)

// SessionsErrors carries host-level sentinel errors used by session listing.
type SessionsErrors struct {
	EngineNotReady error
	UserNotFound   error
	Unexpected     error
}

// SessionsDeps captures session listing dependencies.
type SessionsDeps struct {
	Store store.Store

	Hooks
	Errors SessionsErrors
}

// RunActiveSessions returns the records of userID that are usable now, newest
// first. Token hashes never leave this function.
func RunActiveSessions(ctx context.Context, userID string, deps SessionsDeps) ([]store.RefreshTokenRecord, error) {
	normalizeHooks(&deps.Hooks)
	if deps.Store == nil {
		return nil, deps.Errors.EngineNotReady
	}
	if userID == "" {
		return nil, deps.Errors.UserNotFound
	}
	if _, err := deps.Store.GetUser(ctx, userID); errors.Is(err, store.ErrNotFound) {
		return nil, deps.Errors.UserNotFound
	} else if err != nil {
		deps.LogError(ctx, "sessions: user lookup failed", err, "user_id", userID)
		return nil, deps.Errors.Unexpected
	}

	records, err := deps.Store.ListRefreshTokens(ctx, userID)
	if err != nil {
		deps.LogError(ctx, "sessions: list failed", err, "user_id", userID)
		return nil, deps.Errors.Unexpected
	}

	now := deps.Now().UTC()
	live := make([]store.RefreshTokenRecord, 0, len(records))
	for _, r := range records {
		if r.Usable(now) {
			r.TokenHash = ""
			live = append(live, r)
		}
	}
	return live, nil
}
