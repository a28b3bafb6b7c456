package authcore

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/teeline/authcore/internal/audit"
	internalflows "github.com/teeline/authcore/internal/flows"
	"github.com/teeline/authcore/jwt"
	"github.com/teeline/authcore/logging"
	"github.com/teeline/authcore/mailer"
	"github.com/teeline/authcore/password"
	"github.com/teeline/authcore/refresh"
	"github.com/teeline/authcore/store"
)

// Engine is the authentication facade. It is immutable after Build and safe
// for concurrent use.
type Engine struct {
	config     Config
	store      store.Store
	hasher     password.Hasher
	dummyHash  string
	mailer     mailer.Sender
	logger     *slog.Logger
	jwtManager *jwt.Manager
	audit      *audit.Dispatcher
	metrics    *Metrics
	clock      func() time.Time
	flows      internalflows.Service
}

// Close stops the audit dispatcher after delivering what it has buffered.
func (e *Engine) Close() {
	if e == nil {
		return
	}
	e.audit.Close()
}

// AuditDropped counts audit events lost to backpressure.
func (e *Engine) AuditDropped() uint64 {
	if e == nil {
		return 0
	}
	return e.audit.Dropped()
}

func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	if e == nil || e.metrics == nil {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}
	return e.metrics.Snapshot()
}

func (e *Engine) metricInc(id MetricID) {
	if e == nil || e.metrics == nil {
		return
	}
	e.metrics.Inc(id)
}

func (e *Engine) now() time.Time {
	if e == nil || e.clock == nil {
		return time.Now()
	}
	return e.clock()
}

func (e *Engine) ready() bool {
	return e != nil && e.flows.Initialized()
}

func (e *Engine) logError(ctx context.Context, msg string, err error, attrs ...any) {
	if e == nil || e.logger == nil {
		return
	}
	logging.LogErrorContext(ctx, e.logger, msg, err, attrs...)
}

func (e *Engine) hooks() internalflows.Hooks {
	return internalflows.Hooks{
		Now: e.now,
		MetricInc: func(id int) {
			e.metricInc(MetricID(id))
		},
		EmitAudit: e.emitAudit,
		LogError:  e.logError,
	}
}

func (e *Engine) tokenDeps() internalflows.TokenDeps {
	return internalflows.TokenDeps{
		AccessTTL:    e.config.JWT.AccessTTL,
		RefreshTTL:   e.config.Session.RefreshTTL,
		CreateAccess: e.jwtManager.CreateAccess,
		NewRefresh:   refresh.NewSecret,
	}
}

func (e *Engine) checkPassword(plaintext string) error {
	return e.config.Password.checkPassword(plaintext)
}

func newID() string {
	return uuid.NewString()
}

func (e *Engine) buildFlows() internalflows.Service {
	return internalflows.New(internalflows.Deps{
		Register:      e.registerFlowDeps(),
		Login:         e.loginFlowDeps(),
		Refresh:       e.refreshFlowDeps(),
		Revoke:        e.revokeFlowDeps(),
		PasswordReset: e.passwordResetFlowDeps(),
		Account:       e.accountFlowDeps(),
		Sessions:      e.sessionsFlowDeps(),
		Validate:      e.validateFlowDeps(),
	})
}

func toAuthResult(r *internalflows.AuthResult) *AuthResult {
	return &AuthResult{
		TokenPair: toTokenPair(r.Tokens),
		User: UserView{
			ID:       r.User.ID,
			Email:    r.User.Email,
			Nickname: r.User.Nickname,
		},
	}
}

func toTokenPair(t internalflows.SessionTokens) TokenPair {
	return TokenPair{
		AccessToken:      t.AccessToken,
		RefreshToken:     t.RefreshToken,
		AccessExpiresAt:  t.AccessExpiresAt,
		RefreshExpiresAt: t.RefreshExpiresAt,
	}
}
