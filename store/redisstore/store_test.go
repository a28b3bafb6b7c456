package redisstore

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teeline/authcore/store"
	"github.com/teeline/authcore/store/storetest"
)

func newTestStore(t *testing.T, opts ...Option) (*Store, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return New(rdb, opts...), mr
}

func TestStoreContract(t *testing.T) {
	storetest.Run(t, func(t *testing.T) store.Store {
		s, _ := newTestStore(t)
		return s
	})
}

func TestStorePing(t *testing.T) {
	s, mr := newTestStore(t)
	require.NoError(t, s.Ping(context.Background()))

	mr.Close()
	require.Error(t, s.Ping(context.Background()))
}

func TestStorePrefixNamespacesKeys(t *testing.T) {
	s, mr := newTestStore(t, WithPrefix("tenant-a"))
	ctx := context.Background()

	u := store.User{ID: "u1", Email: "alice@example.com", IsActive: true, CreatedAt: time.Unix(0, 0).UTC()}
	require.NoError(t, s.Transact(ctx, store.PutUser{User: u}))

	assert.True(t, mr.Exists("tenant-a:u:u1"))
	assert.True(t, mr.Exists("tenant-a:email:alice@example.com"))
	assert.False(t, mr.Exists("auth:u:u1"))
}

func TestTransactEmptyIsNoop(t *testing.T) {
	s, _ := newTestStore(t)
	require.NoError(t, s.Transact(context.Background()))
}

func TestTransactRejectsOwnerlessOp(t *testing.T) {
	s, _ := newTestStore(t)
	err := s.Transact(context.Background(), store.DeactivateUser{})
	require.Error(t, err)
	assert.False(t, errors.Is(err, store.ErrConditionFailed))
}

func TestGetUserCorruptRecord(t *testing.T) {
	s, mr := newTestStore(t)
	mr.HSet("auth:u:u1", fieldProfile, "garbage")

	_, err := s.GetUser(context.Background(), "u1")
	require.Error(t, err)
	assert.True(t, errors.Is(err, errCorruptRecord))
}

func TestConcurrentRotationHasOneWinner(t *testing.T) {
	s, _ := newTestStore(t, WithMaxRetries(64))
	ctx := context.Background()
	base := time.Date(2026, time.March, 1, 12, 0, 0, 0, time.UTC)

	require.NoError(t, s.Transact(ctx, store.PutUser{User: store.User{ID: "u1", Email: "race@example.com", IsActive: true, CreatedAt: base}}))
	require.NoError(t, s.Transact(ctx, store.PutRefreshToken{Record: store.RefreshTokenRecord{
		UserID: "u1", TokenHash: "old", IssuedAt: base, ExpiresAt: base.Add(time.Hour),
	}}))

	const workers = 16
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		wins    int
		refused int
	)
	at := base.Add(time.Minute)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			err := s.Transact(ctx,
				store.RevokeRefreshToken{UserID: "u1", TokenHash: "old", At: at},
				store.PutRefreshToken{Record: store.RefreshTokenRecord{
					UserID: "u1", TokenHash: fmt.Sprintf("next-%d", i), IssuedAt: at, ExpiresAt: at.Add(time.Hour),
				}},
			)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				wins++
			case errors.Is(err, store.ErrConditionFailed), errors.Is(err, store.ErrContention):
				refused++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 1, wins)
	assert.Equal(t, workers-1, refused)

	list, err := s.ListRefreshTokens(ctx, "u1")
	require.NoError(t, err)
	live := 0
	for _, r := range list {
		if r.Usable(at) {
			live++
		}
	}
	assert.Equal(t, 1, live)
}

func TestCodecRoundTrip(t *testing.T) {
	at := time.Date(2026, time.March, 1, 12, 0, 0, 123, time.UTC)
	code := store.PasswordResetCode{
		ID: "c1", UserID: "u1", CodeHash: "h", CreatedAt: at, ExpiresAt: at.Add(10 * time.Minute),
		Consumed: true, VerifiedAt: &at, Attempts: 4,
	}
	data, err := encodeResetCode(code)
	require.NoError(t, err)
	got, err := decodeResetCode(data)
	require.NoError(t, err)
	assert.Equal(t, code, got)

	rec := store.RefreshTokenRecord{UserID: "u1", TokenHash: "t", IssuedAt: at, ExpiresAt: at.Add(time.Hour)}
	data, err = encodeRefresh(rec)
	require.NoError(t, err)
	gotRec, err := decodeRefresh(data)
	require.NoError(t, err)
	assert.Equal(t, rec, gotRec)
}

func TestCodecRejectsMalformedInput(t *testing.T) {
	user, err := encodeUser(store.User{ID: "u1", Email: "a@example.com", CreatedAt: time.Unix(0, 0)})
	require.NoError(t, err)

	cases := map[string][]byte{
		"empty":          nil,
		"wrong kind":     append([]byte{kindRefresh}, user[1:]...),
		"future version": append([]byte{kindUser, recordFormatV1 + 1}, user[2:]...),
		"truncated":      user[:len(user)-3],
		"trailing bytes": append(append([]byte{}, user...), 0x00),
	}
	for name, data := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := decodeUser(data)
			require.ErrorIs(t, err, errCorruptRecord)
		})
	}
}

func TestCodecRejectsOversizedField(t *testing.T) {
	long := make([]byte, 70000)
	_, err := encodeUser(store.User{ID: string(long)})
	require.Error(t, err)
}

// commandLog records every command a client sends, pipelines included.
type commandLog struct {
	mu   sync.Mutex
	cmds []redis.Cmder
}

func (l *commandLog) DialHook(next redis.DialHook) redis.DialHook { return next }

func (l *commandLog) ProcessHook(next redis.ProcessHook) redis.ProcessHook {
	return func(ctx context.Context, cmd redis.Cmder) error {
		l.record(cmd)
		return next(ctx, cmd)
	}
}

func (l *commandLog) ProcessPipelineHook(next redis.ProcessPipelineHook) redis.ProcessPipelineHook {
	return func(ctx context.Context, cmds []redis.Cmder) error {
		for _, cmd := range cmds {
			l.record(cmd)
		}
		return next(ctx, cmds)
	}
}

func (l *commandLog) record(cmd redis.Cmder) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.cmds = append(l.cmds, cmd)
}

func (l *commandLog) reset() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.cmds = nil
}

// keys returns the distinct prefixed keys the recorded commands named.
func (l *commandLog) keys(prefix string) []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	seen := map[string]struct{}{}
	for _, cmd := range l.cmds {
		for _, arg := range cmd.Args() {
			if s, ok := arg.(string); ok && strings.HasPrefix(s, prefix) {
				seen[s] = struct{}{}
			}
		}
	}
	out := make([]string, 0, len(seen))
	for k := range seen {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func (l *commandLog) names() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]string, 0, len(l.cmds))
	for _, cmd := range l.cmds {
		out = append(out, cmd.Name())
	}
	return out
}

func rotate(t *testing.T, s *Store, userID, from, to string, at time.Time) {
	t.Helper()
	require.NoError(t, s.Transact(context.Background(),
		store.RevokeRefreshToken{UserID: userID, TokenHash: from, At: at},
		store.PutRefreshToken{Record: store.RefreshTokenRecord{
			UserID: userID, TokenHash: to, IssuedAt: at, ExpiresAt: at.Add(time.Hour),
		}},
	))
}

func TestRotationTouchesOnlyItsTokensAndLiveIndex(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	s := New(rdb)
	ctx := context.Background()
	base := time.Date(2026, time.March, 1, 12, 0, 0, 0, time.UTC)

	require.NoError(t, s.Transact(ctx, store.PutUser{User: store.User{ID: "u1", Email: "busy@example.com", IsActive: true, CreatedAt: base}}))
	require.NoError(t, s.Transact(ctx,
		store.SupersedeResetCodes{UserID: "u1"},
		store.PutResetCode{Code: store.PasswordResetCode{ID: "c1", UserID: "u1", CodeHash: "h", CreatedAt: base, ExpiresAt: base.Add(10 * time.Minute)}},
	))
	require.NoError(t, s.Transact(ctx, store.PutRefreshToken{Record: store.RefreshTokenRecord{
		UserID: "u1", TokenHash: "t0", IssuedAt: base, ExpiresAt: base.Add(time.Hour),
	}}))
	for i := 1; i <= 50; i++ {
		rotate(t, s, "u1", fmt.Sprintf("t%d", i-1), fmt.Sprintf("t%d", i), base.Add(time.Duration(i)*time.Second))
	}

	log := &commandLog{}
	rdb.AddHook(log)
	rotate(t, s, "u1", "t50", "t51", base.Add(time.Minute))

	assert.Equal(t, []string{"auth:rt:t50", "auth:rt:t51", "auth:u:u1:live"}, log.keys("auth:"))
	assert.NotContains(t, log.names(), "hgetall")
	assert.NotContains(t, log.names(), "zrange", "rotation must not read the live index")

	log.reset()
	list, err := s.ListRefreshTokens(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "t51", list[0].TokenHash)
	assert.Equal(t, []string{"auth:rt:t51", "auth:u:u1:live"}, log.keys("auth:"))
}

func TestIndexesStayBoundedAcrossRotations(t *testing.T) {
	s, mr := newTestStore(t)
	ctx := context.Background()
	base := time.Date(2026, time.March, 1, 12, 0, 0, 0, time.UTC)

	require.NoError(t, s.Transact(ctx, store.PutUser{User: store.User{ID: "u1", Email: "long@example.com", IsActive: true, CreatedAt: base}}))
	require.NoError(t, s.Transact(ctx, store.PutRefreshToken{Record: store.RefreshTokenRecord{
		UserID: "u1", TokenHash: "t0", IssuedAt: base, ExpiresAt: base.Add(time.Hour),
	}}))
	for i := 1; i <= 300; i++ {
		rotate(t, s, "u1", fmt.Sprintf("t%d", i-1), fmt.Sprintf("t%d", i), base.Add(time.Duration(i)*time.Second))
	}
	for i := 0; i < 20; i++ {
		created := base.Add(time.Duration(i) * 6 * time.Minute)
		require.NoError(t, s.Transact(ctx,
			store.SupersedeResetCodes{UserID: "u1"},
			store.PutResetCode{Code: store.PasswordResetCode{
				ID: fmt.Sprintf("c%d", i), UserID: "u1", CodeHash: fmt.Sprintf("h%d", i),
				CreatedAt: created, ExpiresAt: created.Add(10 * time.Minute),
			}},
		))
	}

	fields, err := mr.HKeys("auth:u:u1")
	require.NoError(t, err)
	assert.Equal(t, []string{fieldProfile}, fields)

	live, err := mr.ZMembers("auth:u:u1:live")
	require.NoError(t, err)
	assert.Equal(t, []string{"t300"}, live)

	open, err := mr.ZMembers("auth:u:u1:rc:open")
	require.NoError(t, err)
	assert.Len(t, open, 1)

	old, err := s.GetRefreshToken(ctx, "t1")
	require.NoError(t, err, "revoked records are kept")
	assert.NotNil(t, old.RevokedAt)

	latest, err := s.LatestResetCode(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "c19", latest.ID)
}

func TestExpiredTokensLeaveTheLiveIndex(t *testing.T) {
	s, mr := newTestStore(t)
	ctx := context.Background()
	base := time.Date(2026, time.March, 1, 12, 0, 0, 0, time.UTC)

	require.NoError(t, s.Transact(ctx, store.PutUser{User: store.User{ID: "u1", Email: "idle@example.com", IsActive: true, CreatedAt: base}}))
	require.NoError(t, s.Transact(ctx, store.PutRefreshToken{Record: store.RefreshTokenRecord{
		UserID: "u1", TokenHash: "stale", IssuedAt: base, ExpiresAt: base.Add(time.Hour),
	}}))

	later := base.Add(2 * time.Hour)
	require.NoError(t, s.Transact(ctx, store.PutRefreshToken{Record: store.RefreshTokenRecord{
		UserID: "u1", TokenHash: "fresh", IssuedAt: later, ExpiresAt: later.Add(time.Hour),
	}}))

	live, err := mr.ZMembers("auth:u:u1:live")
	require.NoError(t, err)
	assert.Equal(t, []string{"fresh"}, live)

	stale, err := s.GetRefreshToken(ctx, "stale")
	require.NoError(t, err)
	assert.Nil(t, stale.RevokedAt, "pruning the index leaves the record alone")
}

func TestWatchKeysSkipAppendOnlyIndexes(t *testing.T) {
	s, _ := newTestStore(t)
	at := time.Date(2026, time.March, 1, 12, 0, 0, 0, time.UTC)

	keys, err := s.watchKeys([]store.Op{
		store.RevokeRefreshToken{UserID: "u1", TokenHash: "old", At: at},
		store.PutRefreshToken{Record: store.RefreshTokenRecord{UserID: "u1", TokenHash: "new", IssuedAt: at, ExpiresAt: at.Add(time.Hour)}},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"auth:rt:old", "auth:rt:new"}, keys)

	keys, err = s.watchKeys([]store.Op{
		store.UpdateCredential{UserID: "u1", Hash: "h"},
		store.RevokeAllRefreshTokens{UserID: "u1", At: at},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"auth:u:u1", "auth:u:u1:live"}, keys)
}
