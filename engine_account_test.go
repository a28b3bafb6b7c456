package authcore

import (
	"context"
	"testing"

	"github.com/teeline/authcore/password"
)

func TestChangePassword(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	reg := env.register(t, "zara@example.com", "correct-horse-1")

	expectErr(t, env.engine.ChangePassword(ctx, reg.User.ID, "wrong-horse-1", "brand-new-pass-2"), ErrInvalidCredentials)
	expectErr(t, env.engine.ChangePassword(ctx, reg.User.ID, "correct-horse-1", "correct-horse-1"), ErrPasswordReuse)
	expectErr(t, env.engine.ChangePassword(ctx, reg.User.ID, "correct-horse-1", "short"), ErrPasswordPolicy)
	expectErr(t, env.engine.ChangePassword(ctx, "ghost", "correct-horse-1", "brand-new-pass-2"), ErrUserNotFound)

	if got := env.liveTokens(t, reg.User.ID); got != 1 {
		t.Fatalf("rejected changes must not touch sessions, got %d live", got)
	}

	if err := env.engine.ChangePassword(ctx, reg.User.ID, "correct-horse-1", "brand-new-pass-2"); err != nil {
		t.Fatalf("ChangePassword: %v", err)
	}
	if got := env.liveTokens(t, reg.User.ID); got != 0 {
		t.Fatalf("expected sessions revoked, got %d live", got)
	}
	_, err := env.engine.Refresh(ctx, reg.RefreshToken)
	expectErr(t, err, ErrTokenExpiredOrInvalid)

	_, err = env.engine.Login(ctx, "zara@example.com", "correct-horse-1")
	expectErr(t, err, ErrInvalidCredentials)
	if _, err := env.engine.Login(ctx, "zara@example.com", "brand-new-pass-2"); err != nil {
		t.Fatalf("login with new password: %v", err)
	}

	snap := env.engine.MetricsSnapshot()
	if snap.Counters[MetricPasswordChangeSuccess] != 1 ||
		snap.Counters[MetricPasswordChangeInvalidOld] != 1 ||
		snap.Counters[MetricPasswordChangeReuseRejected] != 1 {
		t.Fatalf("unexpected password change counters %+v", snap.Counters)
	}
}

func TestDeactivateAccount(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	reg := env.register(t, "amir@example.com", "correct-horse-1")

	if err := env.engine.DeactivateAccount(ctx, reg.User.ID); err != nil {
		t.Fatalf("DeactivateAccount: %v", err)
	}
	if err := env.engine.DeactivateAccount(ctx, reg.User.ID); err != nil {
		t.Fatalf("second DeactivateAccount: %v", err)
	}
	if got := env.engine.MetricsSnapshot().Counters[MetricAccountDeactivated]; got != 1 {
		t.Fatalf("expected one deactivation counted, got %d", got)
	}

	user, err := env.store.GetUser(ctx, reg.User.ID)
	if err != nil {
		t.Fatalf("record must be kept: %v", err)
	}
	if user.IsActive {
		t.Fatal("user still active")
	}

	_, err = env.engine.Refresh(ctx, reg.RefreshToken)
	expectErr(t, err, ErrTokenExpiredOrInvalid)
	_, err = env.engine.Login(ctx, "amir@example.com", "correct-horse-1")
	expectErr(t, err, ErrInvalidCredentials)
	expectErr(t, env.engine.ChangePassword(ctx, reg.User.ID, "correct-horse-1", "brand-new-pass-2"), ErrUserInactive)

	// the email stays taken
	_, err = env.engine.Register(ctx, "amir@example.com", "correct-horse-1", "")
	expectErr(t, err, ErrEmailAlreadyExists)

	expectErr(t, env.engine.DeactivateAccount(ctx, "ghost"), ErrUserNotFound)
}

func TestLoginUpgradesWeakHash(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	reg := env.register(t, "bianca@example.com", "correct-horse-1")

	stronger, err := New().
		WithConfig(func() Config {
			cfg := testConfig()
			cfg.Password.BcryptCost = 11
			return cfg
		}()).
		WithStore(env.store).
		WithClock(env.clock.Now).
		Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	t.Cleanup(stronger.Close)

	before, err := env.store.GetUser(ctx, reg.User.ID)
	if err != nil {
		t.Fatalf("GetUser: %v", err)
	}
	if _, err := stronger.Login(ctx, "bianca@example.com", "correct-horse-1"); err != nil {
		t.Fatalf("Login: %v", err)
	}
	after, err := env.store.GetUser(ctx, reg.User.ID)
	if err != nil {
		t.Fatalf("GetUser: %v", err)
	}
	if after.CredentialHash == before.CredentialHash {
		t.Fatal("expected credential to be rehashed at the stronger cost")
	}
	if got := stronger.MetricsSnapshot().Counters[MetricPasswordHashUpgraded]; got != 1 {
		t.Fatalf("expected one upgrade, got %d", got)
	}

	if _, err := stronger.Login(ctx, "bianca@example.com", "correct-horse-1"); err != nil {
		t.Fatalf("second Login: %v", err)
	}
	if got := stronger.MetricsSnapshot().Counters[MetricPasswordHashUpgraded]; got != 1 {
		t.Fatalf("upgraded hash must not be rehashed again, got %d", got)
	}
}

func TestLoginMigratesHashToConfiguredAlgorithm(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	reg := env.register(t, "chidi@example.com", "correct-horse-1")

	argon, err := New().
		WithConfig(func() Config {
			cfg := testConfig()
			cfg.Password.Algorithm = password.AlgorithmArgon2id
			cfg.Password.Argon2 = password.Argon2Config{Memory: 8 * 1024, Time: 1, Parallelism: 1, SaltLength: 16, KeyLength: 32}
			return cfg
		}()).
		WithStore(env.store).
		WithClock(env.clock.Now).
		Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	t.Cleanup(argon.Close)

	if _, err := argon.Login(ctx, "chidi@example.com", "correct-horse-1"); err != nil {
		t.Fatalf("Login with bcrypt hash: %v", err)
	}
	user, err := env.store.GetUser(ctx, reg.User.ID)
	if err != nil {
		t.Fatalf("GetUser: %v", err)
	}
	params, err := password.Inspect(user.CredentialHash)
	if err != nil {
		t.Fatalf("Inspect: %v", err)
	}
	if params.Algorithm != password.AlgorithmArgon2id {
		t.Fatalf("expected argon2id after login, got %s", params.Algorithm)
	}

	// The bcrypt engine still accepts the migrated hash.
	if _, err := env.engine.Login(ctx, "chidi@example.com", "correct-horse-1"); err != nil {
		t.Fatalf("Login with argon2id hash: %v", err)
	}
}
