// Package storetest is a behavioural test suite for store.Store implementations.
package storetest

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teeline/authcore/store"
)

// Factory returns an empty store. It is called once per sub-test.
type Factory func(t *testing.T) store.Store

var base = time.Date(2026, time.March, 1, 12, 0, 0, 0, time.UTC)

// Run exercises the full store contract against stores built by newStore.
func Run(t *testing.T, newStore Factory) {
	t.Helper()

	t.Run("users", func(t *testing.T) { testUsers(t, newStore(t)) })
	t.Run("refresh tokens", func(t *testing.T) { testRefreshTokens(t, newStore(t)) })
	t.Run("rotation is conditional", func(t *testing.T) { testRotation(t, newStore(t)) })
	t.Run("revoke all", func(t *testing.T) { testRevokeAll(t, newStore(t)) })
	t.Run("reset codes", func(t *testing.T) { testResetCodes(t, newStore(t)) })
	t.Run("reset failures", func(t *testing.T) { testResetFailures(t, newStore(t)) })
}

func testUser(id, email string) store.User {
	return store.User{
		ID:             id,
		Email:          email,
		CredentialHash: "hash-" + id,
		Nickname:       "nick-" + id,
		IsActive:       true,
		CreatedAt:      base,
	}
}

func seedUser(t *testing.T, s store.Store, id, email string) store.User {
	t.Helper()
	u := testUser(id, email)
	require.NoError(t, s.Transact(context.Background(), store.PutUser{User: u}))
	return u
}

func testUsers(t *testing.T, s store.Store) {
	ctx := context.Background()
	u := seedUser(t, s, "11111111-1111-1111-1111-111111111111", "alice@example.com")

	got, err := s.GetUser(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, u.Email, got.Email)
	assert.Equal(t, u.CredentialHash, got.CredentialHash)
	assert.Equal(t, u.Nickname, got.Nickname)
	assert.True(t, got.IsActive)
	assert.True(t, u.CreatedAt.Equal(got.CreatedAt))

	byEmail, err := s.GetUserByEmail(ctx, "alice@example.com")
	require.NoError(t, err)
	assert.Equal(t, u.ID, byEmail.ID)

	dup := testUser("22222222-2222-2222-2222-222222222222", "alice@example.com")
	err = s.Transact(ctx, store.PutUser{User: dup})
	require.ErrorIs(t, err, store.ErrDuplicate)

	_, err = s.GetUser(ctx, "33333333-3333-3333-3333-333333333333")
	require.ErrorIs(t, err, store.ErrNotFound)
	_, err = s.GetUserByEmail(ctx, "nobody@example.com")
	require.ErrorIs(t, err, store.ErrNotFound)

	require.NoError(t, s.Transact(ctx, store.UpdateCredential{UserID: u.ID, Hash: "new-hash"}))
	got, err = s.GetUser(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, "new-hash", got.CredentialHash)

	err = s.Transact(ctx, store.UpdateCredential{UserID: "33333333-3333-3333-3333-333333333333", Hash: "x"})
	require.ErrorIs(t, err, store.ErrConditionFailed)

	require.NoError(t, s.Transact(ctx, store.DeactivateUser{UserID: u.ID}))
	got, err = s.GetUser(ctx, u.ID)
	require.NoError(t, err)
	assert.False(t, got.IsActive)
}

func refreshRecord(userID, hash string, issued time.Time) store.RefreshTokenRecord {
	return store.RefreshTokenRecord{
		UserID:    userID,
		TokenHash: hash,
		IssuedAt:  issued,
		ExpiresAt: issued.Add(7 * 24 * time.Hour),
	}
}

func testRefreshTokens(t *testing.T, s store.Store) {
	ctx := context.Background()
	u := seedUser(t, s, "11111111-1111-1111-1111-111111111111", "bob@example.com")

	older := refreshRecord(u.ID, "hash-a", base)
	newer := refreshRecord(u.ID, "hash-b", base.Add(time.Minute))
	require.NoError(t, s.Transact(ctx, store.PutRefreshToken{Record: older}, store.PutRefreshToken{Record: newer}))

	got, err := s.GetRefreshToken(ctx, "hash-a")
	require.NoError(t, err)
	assert.Equal(t, u.ID, got.UserID)
	assert.Nil(t, got.RevokedAt)
	assert.True(t, older.ExpiresAt.Equal(got.ExpiresAt))

	_, err = s.GetRefreshToken(ctx, "hash-missing")
	require.ErrorIs(t, err, store.ErrNotFound)

	list, err := s.ListRefreshTokens(ctx, u.ID)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "hash-b", list[0].TokenHash)
	assert.Equal(t, "hash-a", list[1].TokenHash)

	revokeAt := base.Add(2 * time.Minute)
	require.NoError(t, s.Transact(ctx, store.RevokeRefreshToken{UserID: u.ID, TokenHash: "hash-a", At: revokeAt}))
	got, err = s.GetRefreshToken(ctx, "hash-a")
	require.NoError(t, err)
	require.NotNil(t, got.RevokedAt)
	assert.True(t, revokeAt.Equal(*got.RevokedAt))

	list, err = s.ListRefreshTokens(ctx, u.ID)
	require.NoError(t, err)
	require.Len(t, list, 1, "revoked records are not listed")
	assert.Equal(t, "hash-b", list[0].TokenHash)

	err = s.Transact(ctx, store.RevokeRefreshToken{UserID: u.ID, TokenHash: "hash-a", At: revokeAt})
	require.ErrorIs(t, err, store.ErrConditionFailed)

	err = s.Transact(ctx, store.RevokeRefreshToken{UserID: u.ID, TokenHash: "hash-missing", At: revokeAt})
	require.ErrorIs(t, err, store.ErrConditionFailed)

	err = s.Transact(ctx, store.RevokeRefreshToken{UserID: "someone-else", TokenHash: "hash-b", At: revokeAt})
	require.ErrorIs(t, err, store.ErrConditionFailed, "a record is only revoked by its owner")
}

func testRotation(t *testing.T, s store.Store) {
	ctx := context.Background()
	u := seedUser(t, s, "11111111-1111-1111-1111-111111111111", "carol@example.com")
	require.NoError(t, s.Transact(ctx, store.PutRefreshToken{Record: refreshRecord(u.ID, "old", base)}))

	at := base.Add(time.Minute)
	rotate := func(next string) error {
		return s.Transact(ctx,
			store.RevokeRefreshToken{UserID: u.ID, TokenHash: "old", At: at},
			store.PutRefreshToken{Record: refreshRecord(u.ID, next, at)},
		)
	}

	require.NoError(t, rotate("next-1"))
	require.ErrorIs(t, rotate("next-2"), store.ErrConditionFailed)

	_, err := s.GetRefreshToken(ctx, "next-2")
	require.ErrorIs(t, err, store.ErrNotFound, "a failed rotation must not persist its new record")

	list, err := s.ListRefreshTokens(ctx, u.ID)
	require.NoError(t, err)
	live := 0
	for _, r := range list {
		if r.Usable(at) {
			live++
		}
	}
	assert.Equal(t, 1, live)
}

func testRevokeAll(t *testing.T, s store.Store) {
	ctx := context.Background()
	u := seedUser(t, s, "11111111-1111-1111-1111-111111111111", "dave@example.com")
	at := base.Add(time.Hour)

	require.NoError(t, s.Transact(ctx, store.RevokeAllRefreshTokens{UserID: u.ID, At: at}), "no records is not an error")

	for _, h := range []string{"r1", "r2", "r3"} {
		require.NoError(t, s.Transact(ctx, store.PutRefreshToken{Record: refreshRecord(u.ID, h, base)}))
	}
	earlier := base.Add(time.Minute)
	require.NoError(t, s.Transact(ctx, store.RevokeRefreshToken{UserID: u.ID, TokenHash: "r1", At: earlier}))

	require.NoError(t, s.Transact(ctx, store.RevokeAllRefreshTokens{UserID: u.ID, At: at}))
	require.NoError(t, s.Transact(ctx, store.RevokeAllRefreshTokens{UserID: u.ID, At: at.Add(time.Minute)}))

	list, err := s.ListRefreshTokens(ctx, u.ID)
	require.NoError(t, err)
	assert.Empty(t, list)

	for _, h := range []string{"r1", "r2", "r3"} {
		r, err := s.GetRefreshToken(ctx, h)
		require.NoError(t, err)
		require.NotNil(t, r.RevokedAt, h)
		if h == "r1" {
			assert.True(t, earlier.Equal(*r.RevokedAt), "already revoked record keeps its timestamp")
		} else {
			assert.True(t, at.Equal(*r.RevokedAt))
		}
	}

	require.NoError(t, s.Transact(ctx,
		store.RevokeAllRefreshTokens{UserID: u.ID, At: at.Add(2 * time.Minute)},
		store.PutRefreshToken{Record: refreshRecord(u.ID, "r4", at.Add(2*time.Minute))},
	))
	list, err = s.ListRefreshTokens(ctx, u.ID)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "r4", list[0].TokenHash, "a record put after the revocation in one call stays live")
}

func resetCode(id, userID, hash string, created time.Time) store.PasswordResetCode {
	return store.PasswordResetCode{
		ID:        id,
		UserID:    userID,
		CodeHash:  hash,
		CreatedAt: created,
		ExpiresAt: created.Add(10 * time.Minute),
	}
}

func testResetCodes(t *testing.T, s store.Store) {
	ctx := context.Background()
	u := seedUser(t, s, "11111111-1111-1111-1111-111111111111", "erin@example.com")

	_, err := s.LatestResetCode(ctx, u.ID)
	require.ErrorIs(t, err, store.ErrNotFound)

	first := resetCode("aaaaaaaa-0000-0000-0000-000000000001", u.ID, "code-1", base)
	require.NoError(t, s.Transact(ctx, store.SupersedeResetCodes{UserID: u.ID}, store.PutResetCode{Code: first}))

	second := resetCode("aaaaaaaa-0000-0000-0000-000000000002", u.ID, "code-2", base.Add(6*time.Minute))
	require.NoError(t, s.Transact(ctx, store.SupersedeResetCodes{UserID: u.ID}, store.PutResetCode{Code: second}))

	latest, err := s.LatestResetCode(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, second.ID, latest.ID)
	assert.False(t, latest.Consumed)

	at := base.Add(7 * time.Minute)
	err = s.Transact(ctx, store.ConsumeResetCode{UserID: u.ID, CodeHash: "code-1", At: at})
	require.ErrorIs(t, err, store.ErrConditionFailed, "superseded code must not be redeemable")

	require.NoError(t, s.Transact(ctx,
		store.ConsumeResetCode{UserID: u.ID, CodeHash: "code-2", At: at},
		store.UpdateCredential{UserID: u.ID, Hash: "reset-hash"},
	))
	latest, err = s.LatestResetCode(ctx, u.ID)
	require.NoError(t, err)
	assert.True(t, latest.Consumed)
	require.NotNil(t, latest.VerifiedAt)
	assert.True(t, at.Equal(*latest.VerifiedAt))

	err = s.Transact(ctx,
		store.ConsumeResetCode{UserID: u.ID, CodeHash: "code-2", At: at},
		store.UpdateCredential{UserID: u.ID, Hash: "second-hash"},
	)
	require.ErrorIs(t, err, store.ErrConditionFailed)
	got, err := s.GetUser(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, "reset-hash", got.CredentialHash, "failed consume must roll back the credential update")

	third := resetCode("aaaaaaaa-0000-0000-0000-000000000003", u.ID, "code-3", base.Add(20*time.Minute))
	require.NoError(t, s.Transact(ctx, store.PutResetCode{Code: third}))
	err = s.Transact(ctx, store.ConsumeResetCode{UserID: u.ID, CodeHash: "code-3", At: third.ExpiresAt})
	require.ErrorIs(t, err, store.ErrConditionFailed, "a code is expired at its expiry instant")
}

func testResetFailures(t *testing.T, s store.Store) {
	ctx := context.Background()
	u := seedUser(t, s, "11111111-1111-1111-1111-111111111111", "frank@example.com")

	require.NoError(t, s.Transact(ctx, store.RecordResetFailure{UserID: u.ID, At: base, MaxAttempts: 3}), "no code is a no-op")

	code := resetCode("bbbbbbbb-0000-0000-0000-000000000001", u.ID, "code", base)
	require.NoError(t, s.Transact(ctx, store.PutResetCode{Code: code}))

	at := base.Add(time.Minute)
	for i := 1; i <= 3; i++ {
		require.NoError(t, s.Transact(ctx, store.RecordResetFailure{UserID: u.ID, At: at, MaxAttempts: 3}))
		latest, err := s.LatestResetCode(ctx, u.ID)
		require.NoError(t, err)
		assert.Equal(t, i, latest.Attempts)
		assert.Equal(t, i == 3, latest.Consumed)
	}

	err := s.Transact(ctx, store.ConsumeResetCode{UserID: u.ID, CodeHash: "code", At: at})
	require.ErrorIs(t, err, store.ErrConditionFailed, "burned code must not be redeemable")
}
