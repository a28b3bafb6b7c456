package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teeline/authcore"
	"github.com/teeline/authcore/password"
	"github.com/teeline/authcore/store/redisstore"
)

func newEngine(t *testing.T) *authcore.Engine {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	cfg := authcore.DefaultConfig()
	cfg.JWT.PrivateKey = []byte("0123456789abcdef0123456789abcdef")
	cfg.Password.BcryptCost = password.MinBcryptCost

	engine, err := authcore.New().WithConfig(cfg).WithStore(redisstore.New(rdb)).Build()
	require.NoError(t, err)
	t.Cleanup(engine.Close)
	return engine
}

func protected(t *testing.T, mw func(http.Handler) http.Handler) http.Handler {
	return mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, ok := IdentityFromContext(r.Context())
		require.True(t, ok)
		_, _ = w.Write([]byte(id.Email))
	}))
}

func serve(h http.Handler, header string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	if header != "" {
		req.Header.Set("Authorization", header)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestRequireAccess(t *testing.T) {
	engine := newEngine(t)
	res, err := engine.Register(context.Background(), "mw@example.com", "correct-horse-1", "")
	require.NoError(t, err)
	h := protected(t, RequireAccess(engine))

	rec := serve(h, "Bearer "+res.AccessToken)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "mw@example.com", rec.Body.String())

	assert.Equal(t, http.StatusOK, serve(h, "bearer "+res.AccessToken).Code)
	assert.Equal(t, http.StatusUnauthorized, serve(h, "").Code)
	assert.Equal(t, http.StatusUnauthorized, serve(h, "Bearer ").Code)
	assert.Equal(t, http.StatusUnauthorized, serve(h, "Basic abc").Code)
	assert.Equal(t, http.StatusUnauthorized, serve(h, "Bearer "+res.RefreshToken).Code)

	// stateless: still accepted after logout
	require.NoError(t, engine.Logout(context.Background(), res.User.ID))
	assert.Equal(t, http.StatusOK, serve(h, "Bearer "+res.AccessToken).Code)
}

func TestRequireStrictHonoursLogout(t *testing.T) {
	engine := newEngine(t)
	res, err := engine.Register(context.Background(), "strict@example.com", "correct-horse-1", "")
	require.NoError(t, err)
	h := protected(t, RequireStrict(engine))

	assert.Equal(t, http.StatusOK, serve(h, "Bearer "+res.AccessToken).Code)

	require.NoError(t, engine.Logout(context.Background(), res.User.ID))
	assert.Equal(t, http.StatusUnauthorized, serve(h, "Bearer "+res.AccessToken).Code)
}

func TestNilEngineRejects(t *testing.T) {
	h := protected(t, RequireAccess(nil))
	assert.Equal(t, http.StatusUnauthorized, serve(h, "Bearer x").Code)
}

func TestBearerToken(t *testing.T) {
	cases := []struct {
		in   string
		want string
		ok   bool
	}{
		{"Bearer abc", "abc", true},
		{"BEARER abc ", "abc", true},
		{"Bearer", "", false},
		{"Token abc", "", false},
	}
	for _, tc := range cases {
		got, ok := bearerToken(tc.in)
		assert.Equal(t, tc.ok, ok, tc.in)
		assert.Equal(t, tc.want, got, tc.in)
	}
}
