package flows

import (
	"context"

	"github.com/teeline/authcore/jwt"
	"github.com/teeline/authcore/store"
)

// Service is the centralized flow runner built once by the root engine.
type Service struct {
	deps Deps
}

// New returns a flow service with immutable dependency wiring.
func New(deps Deps) Service {
	return Service{deps: deps}
}

// Initialized reports whether the service has been wired with flow deps.
func (s Service) Initialized() bool {
	return s.deps.Validate.ParseAccess != nil && s.deps.Login.Store != nil
}

func (s Service) Register(ctx context.Context, email, password, nickname string) (*AuthResult, error) {
	return RunRegister(ctx, email, password, nickname, s.deps.Register)
}

func (s Service) Login(ctx context.Context, email, password string) (*AuthResult, error) {
	return RunLogin(ctx, email, password, s.deps.Login)
}

func (s Service) Refresh(ctx context.Context, refreshToken string) (*SessionTokens, error) {
	return RunRefresh(ctx, refreshToken, s.deps.Refresh)
}

func (s Service) RevokeAll(ctx context.Context, userID, reason string) error {
	return RunRevokeAll(ctx, userID, reason, s.deps.Revoke)
}

func (s Service) RequestPasswordReset(ctx context.Context, email string) error {
	return RunRequestPasswordReset(ctx, email, s.deps.PasswordReset)
}

func (s Service) ConfirmPasswordReset(ctx context.Context, email, code, newPassword string) error {
	return RunConfirmPasswordReset(ctx, email, code, newPassword, s.deps.PasswordReset)
}

func (s Service) ChangePassword(ctx context.Context, userID, oldPassword, newPassword string) error {
	return RunChangePassword(ctx, userID, oldPassword, newPassword, s.deps.Account)
}

func (s Service) DeactivateAccount(ctx context.Context, userID string) error {
	return RunDeactivateAccount(ctx, userID, s.deps.Account)
}

func (s Service) ActiveSessions(ctx context.Context, userID string) ([]store.RefreshTokenRecord, error) {
	return RunActiveSessions(ctx, userID, s.deps.Sessions)
}

func (s Service) ValidateAccess(ctx context.Context, token string) (*jwt.AccessClaims, error) {
	return RunValidateAccess(ctx, token, s.deps.Validate)
}
