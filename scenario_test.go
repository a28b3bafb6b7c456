package authcore

import (
	"context"
	"testing"
)

func TestEndToEndSessionLifecycle(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	reg, err := env.engine.Register(ctx, "alice@example.com", "Passw0rd!", "")
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if reg.User.Nickname != "alice" {
		t.Fatalf("unexpected nickname %q", reg.User.Nickname)
	}

	login, err := env.engine.Login(ctx, "alice@example.com", "Passw0rd!")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if login.AccessToken == "" || login.RefreshToken == "" {
		t.Fatal("login must return both tokens")
	}

	pair, err := env.engine.Refresh(ctx, login.RefreshToken)
	if err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if pair.AccessToken == "" || pair.RefreshToken == login.RefreshToken {
		t.Fatal("refresh must return a new pair")
	}
	_, err = env.engine.Refresh(ctx, login.RefreshToken)
	expectErr(t, err, ErrTokenExpiredOrInvalid)

	id, err := env.engine.ValidateAccess(ctx, pair.AccessToken)
	if err != nil {
		t.Fatalf("ValidateAccess: %v", err)
	}
	if id.UserID != reg.User.ID {
		t.Fatalf("access token names %q, want %q", id.UserID, reg.User.ID)
	}

	if err := env.engine.Logout(ctx, id.UserID); err != nil {
		t.Fatalf("Logout: %v", err)
	}
	_, err = env.engine.Refresh(ctx, pair.RefreshToken)
	expectErr(t, err, ErrTokenExpiredOrInvalid)
	if StatusCode(err) != 403 {
		t.Fatalf("expected 403 for a dead refresh token, got %d", StatusCode(err))
	}
}
