package redisstore

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/redis/go-redis/v9"
	"github.com/samber/oops"

	"github.com/teeline/authcore/store"
)

const (
	defaultPrefix     = "auth"
	defaultMaxRetries = 8

	fieldProfile     = "PROFILE"
	resetFieldPrefix = "RC#"
)

// Store lays records out so that every operation reads only the keys it
// changes:
//
//	<prefix>:u:<id>            hash, field PROFILE
//	<prefix>:email:<email>     owner id
//	<prefix>:rt:<token hash>   one refresh record
//	<prefix>:u:<id>:live       zset of unrevoked token hashes, scored by expiry (ms)
//	<prefix>:u:<id>:rc         hash of reset codes, field RC#<created nanos>#<id>
//	<prefix>:u:<id>:rc:open    zset of unconsumed code fields, scored by creation (ms)
//	<prefix>:u:<id>:rc:latest  field name of the newest code
//
// Records are never deleted. Revoked tokens and consumed codes leave the
// indexes, so list and revoke-all cost is bounded by live state.
type Store struct {
	redis      redis.UniversalClient
	prefix     string
	maxRetries int
}

var _ store.Store = (*Store)(nil)

// Option customises a Store.
type Option func(*Store)

// WithPrefix namespaces every key under prefix.
func WithPrefix(prefix string) Option {
	return func(s *Store) {
		if prefix != "" {
			s.prefix = prefix
		}
	}
}

// WithMaxRetries bounds optimistic transaction retries.
func WithMaxRetries(n int) Option {
	return func(s *Store) {
		if n > 0 {
			s.maxRetries = n
		}
	}
}

// New wraps an existing client. The caller owns the client.
func New(client redis.UniversalClient, opts ...Option) *Store {
	s := &Store{
		redis:      client,
		prefix:     defaultPrefix,
		maxRetries: defaultMaxRetries,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) ownerKey(userID string) string {
	return s.prefix + ":u:" + userID
}

func (s *Store) emailKey(email string) string {
	return s.prefix + ":email:" + email
}

func (s *Store) tokenKey(tokenHash string) string {
	return s.prefix + ":rt:" + tokenHash
}

func (s *Store) liveKey(userID string) string {
	return s.ownerKey(userID) + ":live"
}

func (s *Store) codesKey(userID string) string {
	return s.ownerKey(userID) + ":rc"
}

func (s *Store) openCodesKey(userID string) string {
	return s.codesKey(userID) + ":open"
}

func (s *Store) latestCodeKey(userID string) string {
	return s.codesKey(userID) + ":latest"
}

func resetField(c store.PasswordResetCode) string {
	return fmt.Sprintf("%s%020d#%s", resetFieldPrefix, c.CreatedAt.UnixNano(), c.ID)
}

func unavailable(operation string, err error) error {
	return oops.Code("STORE_REDIS_UNAVAILABLE").
		With("operation", operation).
		Wrap(err)
}

func corrupt(operation string, err error) error {
	return oops.Code("STORE_CORRUPT_RECORD").
		With("operation", operation).
		Wrap(err)
}

// Ping checks connectivity.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.redis.Ping(ctx).Err(); err != nil {
		return unavailable("ping", err)
	}
	return nil
}

func (s *Store) GetUser(ctx context.Context, userID string) (store.User, error) {
	data, err := s.redis.HGet(ctx, s.ownerKey(userID), fieldProfile).Bytes()
	if errors.Is(err, redis.Nil) {
		return store.User{}, store.ErrNotFound
	}
	if err != nil {
		return store.User{}, unavailable("get user", err)
	}
	user, err := decodeUser(data)
	if err != nil {
		return store.User{}, corrupt("decode user", err)
	}
	return user, nil
}

func (s *Store) GetUserByEmail(ctx context.Context, email string) (store.User, error) {
	userID, err := s.redis.Get(ctx, s.emailKey(email)).Result()
	if errors.Is(err, redis.Nil) {
		return store.User{}, store.ErrNotFound
	}
	if err != nil {
		return store.User{}, unavailable("get user by email", err)
	}
	return s.GetUser(ctx, userID)
}

func (s *Store) GetRefreshToken(ctx context.Context, tokenHash string) (store.RefreshTokenRecord, error) {
	data, err := s.redis.Get(ctx, s.tokenKey(tokenHash)).Bytes()
	if errors.Is(err, redis.Nil) {
		return store.RefreshTokenRecord{}, store.ErrNotFound
	}
	if err != nil {
		return store.RefreshTokenRecord{}, unavailable("get refresh token", err)
	}
	record, err := decodeRefresh(data)
	if err != nil {
		return store.RefreshTokenRecord{}, corrupt("decode refresh token", err)
	}
	return record, nil
}

func (s *Store) ListRefreshTokens(ctx context.Context, userID string) ([]store.RefreshTokenRecord, error) {
	hashes, err := s.redis.ZRange(ctx, s.liveKey(userID), 0, -1).Result()
	if err != nil {
		return nil, unavailable("list refresh tokens", err)
	}
	if len(hashes) == 0 {
		return nil, nil
	}

	keys := make([]string, len(hashes))
	for i, h := range hashes {
		keys[i] = s.tokenKey(h)
	}
	values, err := s.redis.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, unavailable("list refresh tokens", err)
	}

	records := make([]store.RefreshTokenRecord, 0, len(values))
	for _, v := range values {
		raw, ok := v.(string)
		if !ok {
			continue
		}
		record, err := decodeRefresh([]byte(raw))
		if err != nil {
			return nil, corrupt("decode refresh token", err)
		}
		if record.RevokedAt != nil {
			continue
		}
		records = append(records, record)
	}
	sortNewestFirst(records)
	return records, nil
}

func sortNewestFirst(records []store.RefreshTokenRecord) {
	sort.Slice(records, func(i, j int) bool {
		if !records[i].IssuedAt.Equal(records[j].IssuedAt) {
			return records[i].IssuedAt.After(records[j].IssuedAt)
		}
		return records[i].TokenHash < records[j].TokenHash
	})
}

func (s *Store) LatestResetCode(ctx context.Context, userID string) (store.PasswordResetCode, error) {
	field, err := s.redis.Get(ctx, s.latestCodeKey(userID)).Result()
	if errors.Is(err, redis.Nil) {
		return store.PasswordResetCode{}, store.ErrNotFound
	}
	if err != nil {
		return store.PasswordResetCode{}, unavailable("latest reset code", err)
	}
	data, err := s.redis.HGet(ctx, s.codesKey(userID), field).Bytes()
	if errors.Is(err, redis.Nil) {
		return store.PasswordResetCode{}, corrupt("latest reset code", fmt.Errorf("%w: dangling latest pointer", errCorruptRecord))
	}
	if err != nil {
		return store.PasswordResetCode{}, unavailable("latest reset code", err)
	}
	code, err := decodeResetCode(data)
	if err != nil {
		return store.PasswordResetCode{}, corrupt("decode reset code", err)
	}
	return code, nil
}

// Transact watches the keys the ops read, evaluates conditions against that
// snapshot and commits the writes in one MULTI/EXEC. A concurrent writer to a
// watched key aborts EXEC and the whole evaluation is retried on fresh state.
func (s *Store) Transact(ctx context.Context, ops ...store.Op) error {
	if len(ops) == 0 {
		return nil
	}
	keys, err := s.watchKeys(ops)
	if err != nil {
		return err
	}

	for i := 0; i < s.maxRetries; i++ {
		err := s.redis.Watch(ctx, func(tx *redis.Tx) error {
			plan := newTxnPlan(s, tx)
			for _, op := range ops {
				if err := plan.apply(ctx, op); err != nil {
					return err
				}
			}
			_, err := tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				return plan.flush(ctx, pipe)
			})
			return err
		}, keys...)

		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		if err == nil {
			return nil
		}
		if errors.Is(err, store.ErrConditionFailed) ||
			errors.Is(err, store.ErrDuplicate) ||
			errors.Is(err, errCorruptRecord) {
			return err
		}
		return unavailable("transact", err)
	}

	return store.ErrContention
}

// watchKeys lists the keys whose current value decides an op's outcome.
// Index keys that ops only append to or remove from are not watched, so a
// login does not abort a concurrent rotation of another token.
func (s *Store) watchKeys(ops []store.Op) ([]string, error) {
	seen := make(map[string]struct{}, len(ops)*2)
	keys := make([]string, 0, len(ops)*2)
	add := func(ks ...string) {
		for _, k := range ks {
			if _, ok := seen[k]; ok {
				continue
			}
			seen[k] = struct{}{}
			keys = append(keys, k)
		}
	}

	for _, op := range ops {
		owner, err := opOwner(op)
		if err != nil {
			return nil, err
		}
		switch o := op.(type) {
		case store.PutUser:
			add(s.ownerKey(owner), s.emailKey(o.User.Email))
		case store.UpdateCredential, store.DeactivateUser:
			add(s.ownerKey(owner))
		case store.PutRefreshToken:
			add(s.tokenKey(o.Record.TokenHash))
		case store.RevokeRefreshToken:
			add(s.tokenKey(o.TokenHash))
		case store.RevokeAllRefreshTokens:
			add(s.liveKey(owner))
		case store.PutResetCode, store.SupersedeResetCodes, store.ConsumeResetCode, store.RecordResetFailure:
			add(s.codesKey(owner), s.openCodesKey(owner), s.latestCodeKey(owner))
		}
	}
	return keys, nil
}

func opOwner(op store.Op) (string, error) {
	var owner string
	switch o := op.(type) {
	case store.PutUser:
		owner = o.User.ID
	case store.UpdateCredential:
		owner = o.UserID
	case store.DeactivateUser:
		owner = o.UserID
	case store.PutRefreshToken:
		owner = o.Record.UserID
	case store.RevokeRefreshToken:
		owner = o.UserID
	case store.RevokeAllRefreshTokens:
		owner = o.UserID
	case store.PutResetCode:
		owner = o.Code.UserID
	case store.SupersedeResetCodes:
		owner = o.UserID
	case store.ConsumeResetCode:
		owner = o.UserID
	case store.RecordResetFailure:
		owner = o.UserID
	default:
		return "", fmt.Errorf("redisstore: unsupported op %T", op)
	}
	if owner == "" {
		return "", fmt.Errorf("redisstore: %T without owner id", op)
	}
	return owner, nil
}
