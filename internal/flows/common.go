package flows

import (
	"context"
	"time"

	"github.com/teeline/authcore/jwt"
	"github.com/teeline/authcore/store"
)

// SessionTokens is a freshly minted access token plus refresh secret.
type SessionTokens struct {
	AccessToken      string
	RefreshToken     string
	AccessExpiresAt  time.Time
	RefreshExpiresAt time.Time
}

// AuthResult is the flow-local response of register and login.
type AuthResult struct {
	User   store.User
	Tokens SessionTokens
}

// TokenDeps mints the credentials handed out by register, login and refresh.
type TokenDeps struct {
	AccessTTL    time.Duration
	RefreshTTL   time.Duration
	CreateAccess func(jwt.AccessSubject) (string, error)
	NewRefresh   func() (secret, hash string, err error)
}

// Hooks are the side channels every flow reports through.
type Hooks struct {
	Now       func() time.Time
	MetricInc func(int)
	EmitAudit func(ctx context.Context, event string, success bool, userID string, err error, metadata func() map[string]string)
	LogError  func(ctx context.Context, msg string, err error, attrs ...any)
}

func normalizeHooks(h *Hooks) {
	if h.Now == nil {
		h.Now = time.Now
	}
	if h.MetricInc == nil {
		h.MetricInc = func(int) {}
	}
	if h.EmitAudit == nil {
		h.EmitAudit = func(context.Context, string, bool, string, error, func() map[string]string) {}
	}
	if h.LogError == nil {
		h.LogError = func(context.Context, string, error, ...any) {}
	}
}

func (t TokenDeps) ready() bool {
	return t.CreateAccess != nil && t.NewRefresh != nil && t.RefreshTTL > 0
}

// mintSession creates the token pair for user and the record that makes the
// refresh secret redeemable. Nothing is persisted here.
func mintSession(user store.User, now time.Time, deps TokenDeps) (SessionTokens, store.RefreshTokenRecord, error) {
	access, err := deps.CreateAccess(jwt.AccessSubject{
		UserID:   user.ID,
		Email:    user.Email,
		Nickname: user.Nickname,
	})
	if err != nil {
		return SessionTokens{}, store.RefreshTokenRecord{}, err
	}
	secret, hash, err := deps.NewRefresh()
	if err != nil {
		return SessionTokens{}, store.RefreshTokenRecord{}, err
	}

	record := store.RefreshTokenRecord{
		UserID:    user.ID,
		TokenHash: hash,
		IssuedAt:  now,
		ExpiresAt: now.Add(deps.RefreshTTL),
	}
	return SessionTokens{
		AccessToken:      access,
		RefreshToken:     secret,
		AccessExpiresAt:  now.Add(deps.AccessTTL),
		RefreshExpiresAt: record.ExpiresAt,
	}, record, nil
}

func metadata(kv ...string) func() map[string]string {
	return func() map[string]string {
		m := make(map[string]string, len(kv)/2)
		for i := 0; i+1 < len(kv); i += 2 {
			m[kv[i]] = kv[i+1]
		}
		return m
	}
}
