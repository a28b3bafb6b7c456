package authcore

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
)

func TestRegisterCreatesUserAndSession(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	res, err := env.engine.Register(ctx, "  Bob@Example.COM ", "correct-horse-1", "")
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if res.User.Email != "bob@example.com" {
		t.Fatalf("email not normalized: %q", res.User.Email)
	}
	if res.User.Nickname != "bob" {
		t.Fatalf("expected nickname from local part, got %q", res.User.Nickname)
	}
	if res.AccessToken == "" || res.RefreshToken == "" {
		t.Fatal("expected both tokens")
	}
	if !res.RefreshExpiresAt.Equal(testEpoch.Add(time.Hour)) {
		t.Fatalf("unexpected refresh expiry %s", res.RefreshExpiresAt)
	}

	user, err := env.store.GetUser(ctx, res.User.ID)
	if err != nil {
		t.Fatalf("GetUser: %v", err)
	}
	if user.CredentialHash == "" || user.CredentialHash == "correct-horse-1" {
		t.Fatal("credential must be stored hashed")
	}
	if got := env.liveTokens(t, res.User.ID); got != 1 {
		t.Fatalf("expected one live session, got %d", got)
	}
}

func TestRegisterRejectsDuplicateEmailCaseInsensitive(t *testing.T) {
	env := newTestEnv(t)
	env.register(t, "carol@example.com", "correct-horse-1")

	_, err := env.engine.Register(context.Background(), "CAROL@example.com", "another-pass-2", "c")
	expectErr(t, err, ErrEmailAlreadyExists)

	if got := env.engine.MetricsSnapshot().Counters[MetricRegisterDuplicate]; got != 1 {
		t.Fatalf("expected duplicate metric 1, got %d", got)
	}
}

func TestRegisterValidatesInput(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	_, err := env.engine.Register(ctx, "not-an-email", "correct-horse-1", "")
	expectErr(t, err, ErrInvalidEmail)

	_, err = env.engine.Register(ctx, "dave@example.com", "short", "")
	expectErr(t, err, ErrPasswordPolicy)

	_, err = env.engine.Register(ctx, "dave@example.com", strings.Repeat("x", 73), "")
	expectErr(t, err, ErrPasswordPolicy)
}

func TestLoginReturnsSanitizedUser(t *testing.T) {
	env := newTestEnv(t)
	reg := env.register(t, "erin@example.com", "correct-horse-1")

	res, err := env.engine.Login(context.Background(), "ERIN@example.com", "correct-horse-1")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if res.User.ID != reg.User.ID || res.User.Email != "erin@example.com" {
		t.Fatalf("unexpected user view %+v", res.User)
	}

	// Multi-device by default: both sessions stay live.
	if got := env.liveTokens(t, reg.User.ID); got != 2 {
		t.Fatalf("expected two live sessions, got %d", got)
	}
}

// The three failure causes must be indistinguishable to the caller. Changing
// this leaks which emails have accounts.
func TestLoginFailuresAreIndistinguishable(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	inactive := env.register(t, "frank@example.com", "correct-horse-1")
	env.register(t, "grace@example.com", "correct-horse-1")
	if err := env.engine.DeactivateAccount(ctx, inactive.User.ID); err != nil {
		t.Fatalf("DeactivateAccount: %v", err)
	}

	cases := []struct {
		name     string
		email    string
		password string
	}{
		{name: "unknown email", email: "nobody@example.com", password: "correct-horse-1"},
		{name: "wrong password", email: "grace@example.com", password: "wrong-horse-1"},
		{name: "inactive account", email: "frank@example.com", password: "correct-horse-1"},
		{name: "malformed email", email: "grace", password: "correct-horse-1"},
	}

	var messages []string
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := env.engine.Login(ctx, tc.email, tc.password)
			if err != ErrInvalidCredentials {
				t.Fatalf("expected exactly ErrInvalidCredentials, got %v", err)
			}
			messages = append(messages, err.Error())
		})
	}
	for _, m := range messages {
		if m != messages[0] {
			t.Fatalf("error messages differ: %q vs %q", m, messages[0])
		}
	}
}

func TestRefreshRotationChain(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	reg := env.register(t, "heidi@example.com", "correct-horse-1")
	s0 := reg.RefreshToken

	pair, err := env.engine.Refresh(ctx, s0)
	if err != nil {
		t.Fatalf("Refresh(s0): %v", err)
	}
	s1 := pair.RefreshToken
	if s1 == s0 {
		t.Fatal("rotation must issue a new secret")
	}

	_, err = env.engine.Refresh(ctx, s0)
	expectErr(t, err, ErrTokenExpiredOrInvalid)
	if got := env.engine.MetricsSnapshot().Counters[MetricRefreshReuseDetected]; got != 1 {
		t.Fatalf("expected reuse to be counted once, got %d", got)
	}

	if _, err := env.engine.Refresh(ctx, s1); err != nil {
		t.Fatalf("Refresh(s1): %v", err)
	}
	_, err = env.engine.Refresh(ctx, s1)
	expectErr(t, err, ErrTokenExpiredOrInvalid)

	if got := env.liveTokens(t, reg.User.ID); got != 1 {
		t.Fatalf("expected one live session after rotations, got %d", got)
	}
}

func TestRefreshRejectsUnknownAndMalformedSecrets(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	for _, secret := range []string{"", "garbage", strings.Repeat("A", 64)} {
		_, err := env.engine.Refresh(ctx, secret)
		expectErr(t, err, ErrTokenExpiredOrInvalid)
	}
}

func TestRefreshExpiryBoundary(t *testing.T) {
	t.Run("expires_at == now is rejected", func(t *testing.T) {
		env := newTestEnv(t)
		reg := env.register(t, "ivan@example.com", "correct-horse-1")

		env.clock.Advance(time.Hour)
		_, err := env.engine.Refresh(context.Background(), reg.RefreshToken)
		expectErr(t, err, ErrTokenExpiredOrInvalid)
	})

	t.Run("expires_at == now+1s is accepted", func(t *testing.T) {
		env := newTestEnv(t)
		reg := env.register(t, "judy@example.com", "correct-horse-1")

		env.clock.Advance(time.Hour - time.Second)
		if _, err := env.engine.Refresh(context.Background(), reg.RefreshToken); err != nil {
			t.Fatalf("expected refresh one second before expiry to succeed: %v", err)
		}
	})
}

func TestLogoutIsIdempotent(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	reg := env.register(t, "mallory@example.com", "correct-horse-1")
	second, err := env.engine.Login(ctx, "mallory@example.com", "correct-horse-1")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}

	if err := env.engine.Logout(ctx, reg.User.ID); err != nil {
		t.Fatalf("first Logout: %v", err)
	}
	if err := env.engine.Logout(ctx, reg.User.ID); err != nil {
		t.Fatalf("second Logout: %v", err)
	}

	for _, secret := range []string{reg.RefreshToken, second.RefreshToken} {
		_, err := env.engine.Refresh(ctx, secret)
		expectErr(t, err, ErrTokenExpiredOrInvalid)
	}
	if got := env.liveTokens(t, reg.User.ID); got != 0 {
		t.Fatalf("expected no live sessions, got %d", got)
	}

	expectErr(t, env.engine.Logout(ctx, "no-such-user"), ErrUserNotFound)
	expectErr(t, env.engine.Logout(ctx, ""), ErrUserNotFound)
}

func TestRevokeOtherSessionsOnLogin(t *testing.T) {
	env := newTestEnv(t, func(c *Config) { c.Session.RevokeOtherSessionsOnLogin = true })
	ctx := context.Background()
	reg := env.register(t, "niaj@example.com", "correct-horse-1")

	res, err := env.engine.Login(ctx, "niaj@example.com", "correct-horse-1")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}

	_, err = env.engine.Refresh(ctx, reg.RefreshToken)
	expectErr(t, err, ErrTokenExpiredOrInvalid)
	if _, err := env.engine.Refresh(ctx, res.RefreshToken); err != nil {
		t.Fatalf("newest session must survive: %v", err)
	}
}

func TestValidateAccess(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	reg := env.register(t, "olivia@example.com", "correct-horse-1")

	id, err := env.engine.ValidateAccess(ctx, reg.AccessToken)
	if err != nil {
		t.Fatalf("ValidateAccess: %v", err)
	}
	if id.UserID != reg.User.ID || id.Email != "olivia@example.com" || id.Nickname != "olivia" {
		t.Fatalf("unexpected identity %+v", id)
	}
	if !id.ExpiresAt.Equal(testEpoch.Add(15 * time.Minute)) {
		t.Fatalf("unexpected expiry %s", id.ExpiresAt)
	}

	_, err = env.engine.ValidateAccess(ctx, reg.AccessToken+"x")
	expectErr(t, err, ErrAccessTokenInvalid)

	env.clock.Advance(15 * time.Minute)
	_, err = env.engine.ValidateAccess(ctx, reg.AccessToken)
	expectErr(t, err, ErrAccessTokenInvalid)

	if got := env.engine.MetricsSnapshot().Counters[MetricValidateFailure]; got != 2 {
		t.Fatalf("expected two validate failures, got %d", got)
	}
}

func TestActiveSessions(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	reg := env.register(t, "peggy@example.com", "correct-horse-1")
	env.clock.Advance(time.Minute)
	if _, err := env.engine.Login(ctx, "peggy@example.com", "correct-horse-1"); err != nil {
		t.Fatalf("Login: %v", err)
	}

	sessions, err := env.engine.ActiveSessions(ctx, reg.User.ID)
	if err != nil {
		t.Fatalf("ActiveSessions: %v", err)
	}
	if len(sessions) != 2 {
		t.Fatalf("expected 2 sessions, got %d", len(sessions))
	}
	if !sessions[0].IssuedAt.After(sessions[1].IssuedAt) {
		t.Fatal("expected newest session first")
	}

	_, err = env.engine.ActiveSessions(ctx, "ghost")
	expectErr(t, err, ErrUserNotFound)
}

func TestNilEngineIsNotReady(t *testing.T) {
	var e *Engine
	_, err := e.Login(context.Background(), "a@example.com", "whatever-123")
	if !errors.Is(err, ErrEngineNotReady) {
		t.Fatalf("expected ErrEngineNotReady, got %v", err)
	}
	e.Close()
	if e.AuditDropped() != 0 {
		t.Fatal("nil engine reports drops")
	}
}
