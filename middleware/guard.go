package middleware

import (
	"context"
	"net"
	"net/http"
	"strings"

	"github.com/teeline/authcore"
)

type identityContextKey struct{}

// IdentityFromContext returns the identity a guard attached to ctx.
func IdentityFromContext(ctx context.Context) (*authcore.Identity, bool) {
	id, ok := ctx.Value(identityContextKey{}).(*authcore.Identity)
	return id, ok
}

// Validator is the part of *authcore.Engine the guards need.
type Validator interface {
	ValidateAccess(ctx context.Context, accessToken string) (*authcore.Identity, error)
}

// Check runs after a token validates. A non-nil error rejects the request
// with the status StatusCode maps it to.
type Check func(ctx context.Context, id *authcore.Identity) error

// Guard rejects requests without a valid bearer access token and passes the
// identity to next through the request context.
func Guard(v Validator, checks ...Check) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if v == nil {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			token, ok := bearerToken(r.Header.Get("Authorization"))
			if !ok {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			ctx := withClientIP(r)
			id, err := v.ValidateAccess(ctx, token)
			if err != nil {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}
			for _, check := range checks {
				if err := check(ctx, id); err != nil {
					status := authcore.StatusCode(err)
					http.Error(w, http.StatusText(status), status)
					return
				}
			}

			ctx = context.WithValue(ctx, identityContextKey{}, id)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireAccess checks only the token's signature and expiry. Logout does not
// reach it until the token expires.
func RequireAccess(engine *authcore.Engine) func(http.Handler) http.Handler {
	if engine == nil {
		return Guard(nil)
	}
	return Guard(engine)
}

func withClientIP(r *http.Request) context.Context {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	if host == "" {
		return r.Context()
	}
	return authcore.WithClientIP(r.Context(), host)
}

func bearerToken(value string) (string, bool) {
	const bearer = "Bearer "
	if len(value) < len(bearer) || !strings.EqualFold(value[:len(bearer)], bearer) {
		return "", false
	}

	token := strings.TrimSpace(value[len(bearer):])
	if token == "" {
		return "", false
	}

	return token, true
}
