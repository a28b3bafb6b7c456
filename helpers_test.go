package authcore

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/teeline/authcore/mailer"
	"github.com/teeline/authcore/password"
	"github.com/teeline/authcore/store"
	"github.com/teeline/authcore/store/redisstore"
)

var testEpoch = time.Date(2026, time.March, 1, 9, 0, 0, 0, time.UTC)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: testEpoch}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// outbox records every reset code handed to the mailer.
type outbox struct {
	mu    sync.Mutex
	codes map[string][]string
	fail  error
}

func newOutbox() *outbox {
	return &outbox{codes: map[string][]string{}}
}

func (o *outbox) SendResetCode(_ context.Context, to, code string) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.fail != nil {
		return o.fail
	}
	o.codes[to] = append(o.codes[to], code)
	return nil
}

func (o *outbox) last(t *testing.T, to string) string {
	t.Helper()
	o.mu.Lock()
	defer o.mu.Unlock()
	codes := o.codes[to]
	if len(codes) == 0 {
		t.Fatalf("no reset code sent to %s", to)
	}
	return codes[len(codes)-1]
}

func (o *outbox) count(to string) int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.codes[to])
}

var _ mailer.Sender = (*outbox)(nil)

type testEnv struct {
	engine *Engine
	store  *redisstore.Store
	clock  *testClock
	mail   *outbox
	mr     *miniredis.Miniredis
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.JWT.PrivateKey = []byte("0123456789abcdef0123456789abcdef")
	cfg.JWT.Leeway = 0
	cfg.Session.RefreshTTL = time.Hour
	cfg.Password.BcryptCost = password.MinBcryptCost
	cfg.Metrics.Enabled = true
	return cfg
}

func newTestEnv(t *testing.T, mutate ...func(*Config)) *testEnv {
	t.Helper()

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	cfg := testConfig()
	for _, fn := range mutate {
		fn(&cfg)
	}

	hasher, err := password.NewBcrypt(password.MinBcryptCost)
	if err != nil {
		t.Fatalf("NewBcrypt: %v", err)
	}

	env := &testEnv{
		store: redisstore.New(rdb, redisstore.WithMaxRetries(64)),
		clock: newTestClock(),
		mail:  newOutbox(),
		mr:    mr,
	}
	engine, err := New().
		WithConfig(cfg).
		WithStore(env.store).
		WithHasher(hasher).
		WithMailer(env.mail).
		WithClock(env.clock.Now).
		Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	t.Cleanup(engine.Close)
	env.engine = engine
	return env
}

func (env *testEnv) register(t *testing.T, email, pw string) *AuthResult {
	t.Helper()
	res, err := env.engine.Register(context.Background(), email, pw, "")
	if err != nil {
		t.Fatalf("Register(%s): %v", email, err)
	}
	return res
}

func (env *testEnv) liveTokens(t *testing.T, userID string) int {
	t.Helper()
	records, err := env.store.ListRefreshTokens(context.Background(), userID)
	if err != nil {
		t.Fatalf("ListRefreshTokens: %v", err)
	}
	n := 0
	for _, r := range records {
		if r.Usable(env.clock.Now()) {
			n++
		}
	}
	return n
}

func expectErr(t *testing.T, err, want error) {
	t.Helper()
	if !errors.Is(err, want) {
		t.Fatalf("expected %v, got %v", want, err)
	}
}

var _ store.Store = (*redisstore.Store)(nil)
