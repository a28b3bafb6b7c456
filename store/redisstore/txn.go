package redisstore

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"sort"
	"strconv"

	"github.com/redis/go-redis/v9"
	"github.com/samber/oops"

	"github.com/teeline/authcore/store"
)

// txnPlan evaluates ops against lazily read state and buffers the writes.
// Every read goes through the watched *redis.Tx, so the values a condition is
// decided on are the values EXEC commits over.
type txnPlan struct {
	s  *Store
	tx *redis.Tx

	profiles map[string]*profileState
	tokens   map[string]*tokenState
	live     map[string]*liveIndex
	resets   map[string]*resetState
	sets     map[string]string
}

type profileState struct {
	user   store.User
	exists bool
	dirty  bool
}

type tokenState struct {
	record store.RefreshTokenRecord
	exists bool
	dirty  bool
}

// liveIndex buffers changes to a user's live token set. members is only read
// by RevokeAllRefreshTokens.
type liveIndex struct {
	loaded  bool
	members []string
	added   map[string]float64
	removed map[string]struct{}
	pruneTo int64
}

type resetState struct {
	codes       map[string]store.PasswordResetCode
	open        map[string]struct{}
	dirty       map[string]struct{}
	opened      map[string]float64
	closed      map[string]struct{}
	latest      string
	latestDirty bool
}

func newTxnPlan(s *Store, tx *redis.Tx) *txnPlan {
	return &txnPlan{
		s:        s,
		tx:       tx,
		profiles: make(map[string]*profileState),
		tokens:   make(map[string]*tokenState),
		live:     make(map[string]*liveIndex),
		resets:   make(map[string]*resetState),
		sets:     make(map[string]string),
	}
}

func conditionFailed(op store.Op, reason string) error {
	return oops.Code("STORE_CONDITION_FAILED").
		With("op", fmt.Sprintf("%T", op)).
		With("reason", reason).
		Wrap(store.ErrConditionFailed)
}

func (p *txnPlan) apply(ctx context.Context, op store.Op) error {
	switch o := op.(type) {
	case store.PutUser:
		return p.putUser(ctx, o)
	case store.UpdateCredential:
		return p.updateProfile(ctx, op, o.UserID, func(u *store.User) { u.CredentialHash = o.Hash })
	case store.DeactivateUser:
		return p.updateProfile(ctx, op, o.UserID, func(u *store.User) { u.IsActive = false })
	case store.PutRefreshToken:
		return p.putRefreshToken(ctx, o)
	case store.RevokeRefreshToken:
		return p.revokeRefreshToken(ctx, o)
	case store.RevokeAllRefreshTokens:
		return p.revokeAll(ctx, o)
	case store.PutResetCode:
		return p.putResetCode(ctx, o)
	case store.SupersedeResetCodes:
		return p.supersede(ctx, o)
	case store.ConsumeResetCode:
		return p.consume(ctx, o)
	case store.RecordResetFailure:
		return p.recordFailure(ctx, o)
	default:
		return fmt.Errorf("redisstore: unsupported op %T", op)
	}
}

func (p *txnPlan) profile(ctx context.Context, userID string) (*profileState, error) {
	if st, ok := p.profiles[userID]; ok {
		return st, nil
	}
	st := &profileState{}
	data, err := p.tx.HGet(ctx, p.s.ownerKey(userID), fieldProfile).Bytes()
	switch {
	case errors.Is(err, redis.Nil):
	case err != nil:
		return nil, err
	default:
		if st.user, err = decodeUser(data); err != nil {
			return nil, err
		}
		st.exists = true
	}
	p.profiles[userID] = st
	return st, nil
}

func (p *txnPlan) token(ctx context.Context, tokenHash string) (*tokenState, error) {
	if st, ok := p.tokens[tokenHash]; ok {
		return st, nil
	}
	st := &tokenState{}
	data, err := p.tx.Get(ctx, p.s.tokenKey(tokenHash)).Bytes()
	switch {
	case errors.Is(err, redis.Nil):
	case err != nil:
		return nil, err
	default:
		if st.record, err = decodeRefresh(data); err != nil {
			return nil, err
		}
		st.exists = true
	}
	p.tokens[tokenHash] = st
	return st, nil
}

func (p *txnPlan) liveFor(userID string) *liveIndex {
	idx, ok := p.live[userID]
	if !ok {
		idx = &liveIndex{added: make(map[string]float64), removed: make(map[string]struct{})}
		p.live[userID] = idx
	}
	return idx
}

func (idx *liveIndex) add(tokenHash string, score float64) {
	delete(idx.removed, tokenHash)
	idx.added[tokenHash] = score
}

func (idx *liveIndex) remove(tokenHash string) {
	delete(idx.added, tokenHash)
	idx.removed[tokenHash] = struct{}{}
}

// liveMembers returns the committed members merged with pending changes.
func (p *txnPlan) liveMembers(ctx context.Context, userID string) ([]string, error) {
	idx := p.liveFor(userID)
	if !idx.loaded {
		members, err := p.tx.ZRange(ctx, p.s.liveKey(userID), 0, -1).Result()
		if err != nil {
			return nil, err
		}
		idx.members = members
		idx.loaded = true
	}

	out := make([]string, 0, len(idx.members)+len(idx.added))
	seen := make(map[string]struct{}, cap(out))
	for _, h := range idx.members {
		if _, gone := idx.removed[h]; gone {
			continue
		}
		seen[h] = struct{}{}
		out = append(out, h)
	}
	for h := range idx.added {
		if _, dup := seen[h]; !dup {
			out = append(out, h)
		}
	}
	sort.Strings(out)
	return out, nil
}

func (p *txnPlan) putUser(ctx context.Context, o store.PutUser) error {
	emailKey := p.s.emailKey(o.User.Email)
	if _, pending := p.sets[emailKey]; pending {
		return store.ErrDuplicate
	}
	n, err := p.tx.Exists(ctx, emailKey).Result()
	if err != nil {
		return err
	}
	if n > 0 {
		return oops.Code("STORE_DUPLICATE_EMAIL").Wrap(store.ErrDuplicate)
	}

	st, err := p.profile(ctx, o.User.ID)
	if err != nil {
		return err
	}
	if st.exists {
		return oops.Code("STORE_DUPLICATE_ID").Wrap(store.ErrDuplicate)
	}
	st.user, st.exists, st.dirty = o.User, true, true
	p.sets[emailKey] = o.User.ID
	return nil
}

func (p *txnPlan) updateProfile(ctx context.Context, op store.Op, userID string, mutate func(*store.User)) error {
	st, err := p.profile(ctx, userID)
	if err != nil {
		return err
	}
	if !st.exists {
		return conditionFailed(op, "user missing")
	}
	mutate(&st.user)
	st.dirty = true
	return nil
}

func (p *txnPlan) putRefreshToken(ctx context.Context, o store.PutRefreshToken) error {
	st, err := p.token(ctx, o.Record.TokenHash)
	if err != nil {
		return err
	}
	if st.exists {
		return conditionFailed(o, "token hash exists")
	}
	st.record, st.exists, st.dirty = o.Record, true, true

	idx := p.liveFor(o.Record.UserID)
	if o.Record.RevokedAt == nil {
		idx.add(o.Record.TokenHash, float64(o.Record.ExpiresAt.UnixMilli()))
	}
	if cutoff := o.Record.IssuedAt.UnixMilli(); cutoff > idx.pruneTo {
		idx.pruneTo = cutoff
	}
	return nil
}

func (p *txnPlan) revokeRefreshToken(ctx context.Context, o store.RevokeRefreshToken) error {
	st, err := p.token(ctx, o.TokenHash)
	if err != nil {
		return err
	}
	if !st.exists || st.record.UserID != o.UserID {
		return conditionFailed(o, "token missing")
	}
	if st.record.RevokedAt != nil {
		return conditionFailed(o, "already revoked")
	}
	at := o.At
	st.record.RevokedAt = &at
	st.dirty = true
	p.liveFor(o.UserID).remove(o.TokenHash)
	return nil
}

// revokeAll walks the live index. Members that are no longer usable are
// dropped from the index without touching their record.
func (p *txnPlan) revokeAll(ctx context.Context, o store.RevokeAllRefreshTokens) error {
	members, err := p.liveMembers(ctx, o.UserID)
	if err != nil {
		return err
	}
	idx := p.liveFor(o.UserID)
	for _, h := range members {
		st, err := p.token(ctx, h)
		if err != nil {
			return err
		}
		idx.remove(h)
		if !st.exists || !st.record.Usable(o.At) {
			continue
		}
		at := o.At
		st.record.RevokedAt = &at
		st.dirty = true
	}
	return nil
}

func (p *txnPlan) resetsFor(ctx context.Context, userID string) (*resetState, error) {
	if st, ok := p.resets[userID]; ok {
		return st, nil
	}
	st := &resetState{
		codes:  make(map[string]store.PasswordResetCode),
		open:   make(map[string]struct{}),
		dirty:  make(map[string]struct{}),
		opened: make(map[string]float64),
		closed: make(map[string]struct{}),
	}

	latest, err := p.tx.Get(ctx, p.s.latestCodeKey(userID)).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, err
	}
	st.latest = latest

	fields, err := p.tx.ZRange(ctx, p.s.openCodesKey(userID), 0, -1).Result()
	if err != nil {
		return nil, err
	}
	if len(fields) > 0 {
		values, err := p.tx.HMGet(ctx, p.s.codesKey(userID), fields...).Result()
		if err != nil {
			return nil, err
		}
		for i, v := range values {
			raw, ok := v.(string)
			if !ok {
				return nil, fmt.Errorf("%w: open code %s has no record", errCorruptRecord, fields[i])
			}
			code, err := decodeResetCode([]byte(raw))
			if err != nil {
				return nil, err
			}
			st.codes[fields[i]] = code
			st.open[fields[i]] = struct{}{}
		}
	}
	p.resets[userID] = st
	return st, nil
}

// openFields returns the unconsumed code fields oldest first.
func (st *resetState) openFields() []string {
	out := make([]string, 0, len(st.open))
	for f := range st.open {
		out = append(out, f)
	}
	sort.Strings(out)
	return out
}

func (st *resetState) update(field string, code store.PasswordResetCode) {
	st.codes[field] = code
	st.dirty[field] = struct{}{}
	if code.Consumed {
		delete(st.open, field)
		delete(st.opened, field)
		st.closed[field] = struct{}{}
	}
}

func (p *txnPlan) putResetCode(ctx context.Context, o store.PutResetCode) error {
	st, err := p.resetsFor(ctx, o.Code.UserID)
	if err != nil {
		return err
	}
	field := resetField(o.Code)
	st.codes[field] = o.Code
	st.dirty[field] = struct{}{}
	if !o.Code.Consumed {
		st.open[field] = struct{}{}
		delete(st.closed, field)
		st.opened[field] = float64(o.Code.CreatedAt.UnixMilli())
	}
	if field > st.latest {
		st.latest = field
		st.latestDirty = true
	}
	return nil
}

func (p *txnPlan) supersede(ctx context.Context, o store.SupersedeResetCodes) error {
	st, err := p.resetsFor(ctx, o.UserID)
	if err != nil {
		return err
	}
	for _, field := range st.openFields() {
		code := st.codes[field]
		code.Consumed = true
		st.update(field, code)
	}
	return nil
}

func (p *txnPlan) consume(ctx context.Context, o store.ConsumeResetCode) error {
	st, err := p.resetsFor(ctx, o.UserID)
	if err != nil {
		return err
	}
	for _, field := range st.openFields() {
		code := st.codes[field]
		if subtle.ConstantTimeCompare([]byte(code.CodeHash), []byte(o.CodeHash)) != 1 {
			continue
		}
		if !code.Redeemable(o.At) {
			continue
		}
		at := o.At
		code.Consumed = true
		code.VerifiedAt = &at
		st.update(field, code)
		return nil
	}
	return conditionFailed(o, "no redeemable code")
}

func (p *txnPlan) recordFailure(ctx context.Context, o store.RecordResetFailure) error {
	st, err := p.resetsFor(ctx, o.UserID)
	if err != nil {
		return err
	}
	fields := st.openFields()
	for i := len(fields) - 1; i >= 0; i-- {
		code := st.codes[fields[i]]
		if !code.Redeemable(o.At) {
			continue
		}
		code.Attempts++
		if o.MaxAttempts > 0 && code.Attempts >= o.MaxAttempts {
			code.Consumed = true
		}
		st.update(fields[i], code)
		return nil
	}
	return nil
}

func (p *txnPlan) flush(ctx context.Context, pipe redis.Pipeliner) error {
	for userID, st := range p.profiles {
		if !st.dirty {
			continue
		}
		data, err := encodeUser(st.user)
		if err != nil {
			return err
		}
		pipe.HSet(ctx, p.s.ownerKey(userID), fieldProfile, data)
	}

	for tokenHash, st := range p.tokens {
		if !st.dirty {
			continue
		}
		data, err := encodeRefresh(st.record)
		if err != nil {
			return err
		}
		pipe.Set(ctx, p.s.tokenKey(tokenHash), data, 0)
	}

	for userID, idx := range p.live {
		key := p.s.liveKey(userID)
		if idx.pruneTo > 0 {
			pipe.ZRemRangeByScore(ctx, key, "-inf", "("+strconv.FormatInt(idx.pruneTo, 10))
		}
		if len(idx.removed) > 0 {
			members := make([]interface{}, 0, len(idx.removed))
			for h := range idx.removed {
				members = append(members, h)
			}
			pipe.ZRem(ctx, key, members...)
		}
		if len(idx.added) > 0 {
			members := make([]redis.Z, 0, len(idx.added))
			for h, score := range idx.added {
				members = append(members, redis.Z{Score: score, Member: h})
			}
			pipe.ZAdd(ctx, key, members...)
		}
	}

	for userID, st := range p.resets {
		if len(st.dirty) > 0 {
			values := make(map[string]interface{}, len(st.dirty))
			for field := range st.dirty {
				data, err := encodeResetCode(st.codes[field])
				if err != nil {
					return err
				}
				values[field] = data
			}
			pipe.HSet(ctx, p.s.codesKey(userID), values)
		}
		if len(st.closed) > 0 {
			members := make([]interface{}, 0, len(st.closed))
			for f := range st.closed {
				members = append(members, f)
			}
			pipe.ZRem(ctx, p.s.openCodesKey(userID), members...)
		}
		if len(st.opened) > 0 {
			members := make([]redis.Z, 0, len(st.opened))
			for f, score := range st.opened {
				members = append(members, redis.Z{Score: score, Member: f})
			}
			pipe.ZAdd(ctx, p.s.openCodesKey(userID), members...)
		}
		if st.latestDirty {
			pipe.Set(ctx, p.s.latestCodeKey(userID), st.latest, 0)
		}
	}

	for key, value := range p.sets {
		pipe.Set(ctx, key, value, 0)
	}
	return nil
}
