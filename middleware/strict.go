package middleware

import (
	"context"
	"net/http"

	"github.com/teeline/authcore"
)

// RequireStrict is RequireAccess plus a store lookup: the user must still
// have at least one live session. Logout and password changes take effect on
// the next request instead of at token expiry.
func RequireStrict(engine *authcore.Engine) func(http.Handler) http.Handler {
	if engine == nil {
		return Guard(nil)
	}
	return Guard(engine, liveSession(engine))
}

func liveSession(engine *authcore.Engine) Check {
	return func(ctx context.Context, id *authcore.Identity) error {
		sessions, err := engine.ActiveSessions(ctx, id.UserID)
		if err != nil {
			return err
		}
		if len(sessions) == 0 {
			return authcore.ErrAccessTokenInvalid
		}
		return nil
	}
}
