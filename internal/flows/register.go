package flows

import (
	"context"
	"errors"
	"strings"

	"github.com/teeline/authcore/internal"
	"github.com/teeline/authcore/store"
)

// RegisterMetrics carries metric IDs used by the register flow.
type RegisterMetrics struct {
	Success        int
	Duplicate      int
	Failure        int
	SessionCreated int
}

// RegisterEvents carries audit event names used by the register flow.
type RegisterEvents struct {
	Success   string
	Duplicate string
	Failure   string
}

// RegisterErrors carries host-level sentinel errors used by the register flow.
type RegisterErrors struct {
	EngineNotReady     error
	InvalidEmail       error
	EmailAlreadyExists error
	Unexpected         error
}

// RegisterDeps captures register dependencies.
type RegisterDeps struct {
	Store          store.Store
	NormalizeEmail func(string) (string, error)
	CheckPassword  func(string) error
	HashPassword   func(string) (string, error)
	NewUserID      func() string
	Tokens         TokenDeps

	Hooks
	Metrics RegisterMetrics
	Events  RegisterEvents
	Errors  RegisterErrors
}

// RunRegister creates an active user and its first session in one transaction.
func RunRegister(ctx context.Context, email, plaintext, nickname string, deps RegisterDeps) (*AuthResult, error) {
	normalizeHooks(&deps.Hooks)
	if deps.Store == nil || deps.HashPassword == nil || deps.NewUserID == nil || !deps.Tokens.ready() {
		return nil, deps.Errors.EngineNotReady
	}
	if deps.NormalizeEmail == nil {
		deps.NormalizeEmail = internal.NormalizeEmail
	}

	normalized, err := deps.NormalizeEmail(email)
	if err != nil {
		deps.MetricInc(deps.Metrics.Failure)
		deps.EmitAudit(ctx, deps.Events.Failure, false, "", deps.Errors.InvalidEmail, metadata("reason", "invalid_email"))
		return nil, deps.Errors.InvalidEmail
	}
	if deps.CheckPassword != nil {
		if err := deps.CheckPassword(plaintext); err != nil {
			deps.MetricInc(deps.Metrics.Failure)
			deps.EmitAudit(ctx, deps.Events.Failure, false, "", err, metadata("email", normalized, "reason", "password_policy"))
			return nil, err
		}
	}

	// Fast path. The transaction below is what actually guarantees uniqueness.
	if _, err := deps.Store.GetUserByEmail(ctx, normalized); err == nil {
		return nil, duplicate(ctx, normalized, deps)
	} else if !errors.Is(err, store.ErrNotFound) {
		deps.LogError(ctx, "register: lookup by email failed", err, "email", normalized)
		return nil, deps.Errors.Unexpected
	}

	nickname = strings.TrimSpace(nickname)
	if nickname == "" {
		nickname = internal.EmailLocalPart(normalized)
	}

	hash, err := deps.HashPassword(plaintext)
	if err != nil {
		deps.LogError(ctx, "register: hash password failed", err, "email", normalized)
		return nil, deps.Errors.Unexpected
	}

	now := deps.Now().UTC()
	user := store.User{
		ID:             deps.NewUserID(),
		Email:          normalized,
		CredentialHash: hash,
		Nickname:       nickname,
		IsActive:       true,
		CreatedAt:      now,
	}
	tokens, record, err := mintSession(user, now, deps.Tokens)
	if err != nil {
		deps.LogError(ctx, "register: mint session failed", err, "user_id", user.ID)
		return nil, deps.Errors.Unexpected
	}

	err = deps.Store.Transact(ctx,
		store.PutUser{User: user},
		store.PutRefreshToken{Record: record},
	)
	if errors.Is(err, store.ErrDuplicate) {
		return nil, duplicate(ctx, normalized, deps)
	}
	if err != nil {
		deps.MetricInc(deps.Metrics.Failure)
		deps.LogError(ctx, "register: persist user failed", err, "email", normalized)
		deps.EmitAudit(ctx, deps.Events.Failure, false, "", deps.Errors.Unexpected, metadata("email", normalized, "reason", "store"))
		return nil, deps.Errors.Unexpected
	}

	deps.MetricInc(deps.Metrics.Success)
	deps.MetricInc(deps.Metrics.SessionCreated)
	deps.EmitAudit(ctx, deps.Events.Success, true, user.ID, nil, metadata("email", normalized))
	return &AuthResult{User: user, Tokens: tokens}, nil
}

func duplicate(ctx context.Context, email string, deps RegisterDeps) error {
	deps.MetricInc(deps.Metrics.Duplicate)
	deps.EmitAudit(ctx, deps.Events.Duplicate, false, "", deps.Errors.EmailAlreadyExists, metadata("email", email))
	return deps.Errors.EmailAlreadyExists
}
