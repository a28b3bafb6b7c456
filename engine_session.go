package authcore

import (
	"context"
	"time"

	"github.com/teeline/authcore/internal"
	internalflows "github.com/teeline/authcore/internal/flows"
	"github.com/teeline/authcore/refresh"
)

// Register creates an active account and logs it in. An empty nickname
// defaults to the local part of the email.
func (e *Engine) Register(ctx context.Context, email, password, nickname string) (*AuthResult, error) {
	if !e.ready() {
		return nil, ErrEngineNotReady
	}
	result, err := e.flows.Register(ctx, email, password, nickname)
	if err != nil {
		return nil, err
	}
	return toAuthResult(result), nil
}

// Login verifies email and password and opens a new session. Prior sessions
// stay valid unless Session.RevokeOtherSessionsOnLogin is set. Every
// credential failure is ErrInvalidCredentials.
func (e *Engine) Login(ctx context.Context, email, password string) (*AuthResult, error) {
	if !e.ready() {
		return nil, ErrEngineNotReady
	}
	result, err := e.flows.Login(ctx, email, password)
	if err != nil {
		return nil, err
	}
	return toAuthResult(result), nil
}

// Refresh exchanges a refresh secret for a new pair. The presented secret is
// revoked; presenting it again fails with ErrTokenExpiredOrInvalid.
func (e *Engine) Refresh(ctx context.Context, refreshToken string) (*TokenPair, error) {
	if !e.ready() {
		return nil, ErrEngineNotReady
	}
	tokens, err := e.flows.Refresh(ctx, refreshToken)
	if err != nil {
		return nil, err
	}
	pair := toTokenPair(*tokens)
	return &pair, nil
}

// Logout revokes every session of userID. It is idempotent.
func (e *Engine) Logout(ctx context.Context, userID string) error {
	if !e.ready() {
		return ErrEngineNotReady
	}
	return e.flows.RevokeAll(ctx, userID, "logout")
}

// ValidateAccess verifies an access token's signature and expiry. It does not
// consult the store, so a token stays valid until it expires even after
// logout.
func (e *Engine) ValidateAccess(ctx context.Context, accessToken string) (*Identity, error) {
	if !e.ready() {
		return nil, ErrEngineNotReady
	}
	claims, err := e.flows.ValidateAccess(ctx, accessToken)
	if err != nil {
		return nil, err
	}

	id := &Identity{
		UserID:   claims.UID,
		Email:    claims.Email,
		Nickname: claims.Nickname,
	}
	if claims.IssuedAt != nil {
		id.IssuedAt = claims.IssuedAt.Time.UTC()
	}
	if claims.ExpiresAt != nil {
		id.ExpiresAt = claims.ExpiresAt.Time.UTC()
	}
	return id, nil
}

// ActiveSessions lists the refresh tokens of userID that are usable now,
// newest first.
func (e *Engine) ActiveSessions(ctx context.Context, userID string) ([]SessionInfo, error) {
	if !e.ready() {
		return nil, ErrEngineNotReady
	}
	records, err := e.flows.ActiveSessions(ctx, userID)
	if err != nil {
		return nil, err
	}
	out := make([]SessionInfo, 0, len(records))
	for _, r := range records {
		out = append(out, SessionInfo{IssuedAt: r.IssuedAt, ExpiresAt: r.ExpiresAt})
	}
	return out, nil
}

func (e *Engine) registerFlowDeps() internalflows.RegisterDeps {
	return internalflows.RegisterDeps{
		Store:          e.store,
		NormalizeEmail: internal.NormalizeEmail,
		CheckPassword:  e.checkPassword,
		HashPassword:   e.hasher.Hash,
		NewUserID:      newID,
		Tokens:         e.tokenDeps(),
		Hooks:          e.hooks(),
		Metrics: internalflows.RegisterMetrics{
			Success:        int(MetricRegisterSuccess),
			Duplicate:      int(MetricRegisterDuplicate),
			Failure:        int(MetricRegisterFailure),
			SessionCreated: int(MetricSessionCreated),
		},
		Events: internalflows.RegisterEvents{
			Success:   auditEventRegisterSuccess,
			Duplicate: auditEventRegisterDuplicate,
			Failure:   auditEventRegisterFailure,
		},
		Errors: internalflows.RegisterErrors{
			EngineNotReady:     ErrEngineNotReady,
			InvalidEmail:       ErrInvalidEmail,
			EmailAlreadyExists: ErrEmailAlreadyExists,
			Unexpected:         ErrUnexpected,
		},
	}
}

func (e *Engine) loginFlowDeps() internalflows.LoginDeps {
	return internalflows.LoginDeps{
		Store:               e.store,
		NormalizeEmail:      internal.NormalizeEmail,
		VerifyPassword:      e.hasher.Verify,
		NeedsUpgrade:        e.hasher.NeedsUpgrade,
		HashPassword:        e.hasher.Hash,
		DummyHash:           e.dummyHash,
		UpgradeOnLogin:      e.config.Password.UpgradeOnLogin,
		RevokeOtherSessions: e.config.Session.RevokeOtherSessionsOnLogin,
		Tokens:              e.tokenDeps(),
		Hooks:               e.hooks(),
		Metrics: internalflows.LoginMetrics{
			Success:              int(MetricLoginSuccess),
			Failure:              int(MetricLoginFailure),
			SessionCreated:       int(MetricSessionCreated),
			HashUpgraded:         int(MetricPasswordHashUpgraded),
			OtherSessionsRevoked: int(MetricSessionsRevokedOnLogin),
		},
		Events: internalflows.LoginEvents{
			Success: auditEventLoginSuccess,
			Failure: auditEventLoginFailure,
		},
		Errors: internalflows.LoginErrors{
			EngineNotReady:     ErrEngineNotReady,
			InvalidCredentials: ErrInvalidCredentials,
			Unexpected:         ErrUnexpected,
		},
	}
}

func (e *Engine) refreshFlowDeps() internalflows.RefreshDeps {
	return internalflows.RefreshDeps{
		Store:          e.store,
		ValidateSecret: refresh.Validate,
		HashSecret:     refresh.Hash,
		Tokens:         e.tokenDeps(),
		Hooks:          e.hooks(),
		Metrics: internalflows.RefreshMetrics{
			Success:       int(MetricRefreshSuccess),
			Failure:       int(MetricRefreshFailure),
			ReuseDetected: int(MetricRefreshReuseDetected),
		},
		Events: internalflows.RefreshEvents{
			Success:       auditEventRefreshSuccess,
			Invalid:       auditEventRefreshInvalid,
			ReuseDetected: auditEventRefreshReuseDetected,
		},
		Errors: internalflows.RefreshErrors{
			EngineNotReady: ErrEngineNotReady,
			TokenInvalid:   ErrTokenExpiredOrInvalid,
			UserNotFound:   errRefreshUserNotFound,
			Unexpected:     ErrUnexpected,
		},
	}
}

func (e *Engine) revokeFlowDeps() internalflows.RevokeDeps {
	return internalflows.RevokeDeps{
		Store: e.store,
		Hooks: e.hooks(),
		Metrics: internalflows.RevokeMetrics{
			LogoutAll: int(MetricLogoutAll),
		},
		Events: internalflows.RevokeEvents{
			LogoutAll: auditEventLogoutAll,
		},
		Errors: internalflows.RevokeErrors{
			EngineNotReady: ErrEngineNotReady,
			UserNotFound:   ErrUserNotFound,
			Unexpected:     ErrUnexpected,
		},
	}
}

func (e *Engine) sessionsFlowDeps() internalflows.SessionsDeps {
	return internalflows.SessionsDeps{
		Store: e.store,
		Hooks: e.hooks(),
		Errors: internalflows.SessionsErrors{
			EngineNotReady: ErrEngineNotReady,
			UserNotFound:   ErrUserNotFound,
			Unexpected:     ErrUnexpected,
		},
	}
}

func (e *Engine) validateFlowDeps() internalflows.ValidateDeps {
	deps := internalflows.ValidateDeps{
		ParseAccess: e.jwtManager.ParseAccess,
		Hooks:       e.hooks(),
		Metrics: internalflows.ValidateMetrics{
			Failure: int(MetricValidateFailure),
		},
		Errors: internalflows.ValidateErrors{
			EngineNotReady: ErrEngineNotReady,
			TokenInvalid:   ErrAccessTokenInvalid,
		},
	}
	if e.metrics.LatencyEnabled() {
		deps.ObserveLatency = func(d time.Duration) {
			e.metrics.Observe(MetricValidateLatency, d)
		}
	}
	return deps
}
