package authcore

import (
	"context"
	"errors"
	"net/http"
	"sync/atomic"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/teeline/authcore/password"
	"github.com/teeline/authcore/store"
	"github.com/teeline/authcore/store/redisstore"
)

func TestRefreshRefusesDeactivatedOwnerWithLiveToken(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	reg := env.register(t, "mallory@example.com", "correct-horse-1")

	// Deactivate without revoking so the record itself stays usable.
	if err := env.store.Transact(ctx, store.DeactivateUser{UserID: reg.User.ID}); err != nil {
		t.Fatalf("DeactivateUser: %v", err)
	}
	if got := env.liveTokens(t, reg.User.ID); got != 1 {
		t.Fatalf("expected the refresh record to stay live, got %d", got)
	}

	_, err := env.engine.Refresh(ctx, reg.RefreshToken)
	expectErr(t, err, ErrUserNotFound)
	if got := StatusCode(err); got != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", got)
	}
	if got := env.engine.MetricsSnapshot().Counters[MetricRefreshFailure]; got != 1 {
		t.Fatalf("expected one refresh failure, got %d", got)
	}
	if got := env.liveTokens(t, reg.User.ID); got != 1 {
		t.Fatalf("a refused refresh must not rotate, got %d live", got)
	}
}

func TestResetConfirmUnknownUserIsNotFound(t *testing.T) {
	env := newTestEnv(t)
	err := env.engine.ConfirmPasswordReset(context.Background(), "ghost@example.com", "123456", "brand-new-pass-1")
	expectErr(t, err, ErrUserNotFound)
	if got := StatusCode(err); got != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", got)
	}
}

// contendedStore fails every transaction with ErrContention while contend is set.
type contendedStore struct {
	*redisstore.Store
	contend atomic.Bool
}

func (s *contendedStore) Transact(ctx context.Context, ops ...store.Op) error {
	if s.contend.Load() {
		return store.ErrContention
	}
	return s.Store.Transact(ctx, ops...)
}

func TestRefreshContentionKeepsTheSecretUsable(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	hasher, err := password.NewBcrypt(password.MinBcryptCost)
	if err != nil {
		t.Fatalf("NewBcrypt: %v", err)
	}
	st := &contendedStore{Store: redisstore.New(rdb)}
	engine, err := New().
		WithConfig(testConfig()).
		WithStore(st).
		WithHasher(hasher).
		WithClock(newTestClock().Now).
		Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	t.Cleanup(engine.Close)

	ctx := context.Background()
	reg, err := engine.Register(ctx, "oscar@example.com", "correct-horse-1", "")
	if err != nil {
		t.Fatalf("Register: %v", err)
	}

	st.contend.Store(true)
	_, err = engine.Refresh(ctx, reg.RefreshToken)
	expectErr(t, err, ErrUnexpected)
	if errors.Is(err, ErrTokenExpiredOrInvalid) {
		t.Fatal("contention must not tell the client its secret is dead")
	}
	if got := StatusCode(err); got != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", got)
	}

	st.contend.Store(false)
	if _, err := engine.Refresh(ctx, reg.RefreshToken); err != nil {
		t.Fatalf("retry with the same secret: %v", err)
	}
}
