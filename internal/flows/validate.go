package flows

import (
	"context"
	"time"

	"github.com/teeline/authcore/jwt"
)

// ValidateMetrics carries metric IDs used by access token validation.
type ValidateMetrics struct {
	Failure int
}

// ValidateErrors carries host-level sentinel errors used by access token
// validation.
type ValidateErrors struct {
	EngineNotReady error
	TokenInvalid   error
}

// ValidateDeps captures access validation dependencies.
type ValidateDeps struct {
	ParseAccess    func(string) (*jwt.AccessClaims, error)
	ObserveLatency func(time.Duration)

	Hooks
	Metrics ValidateMetrics
	Errors  ValidateErrors
}

// RunValidateAccess verifies an access token without touching the store.
func RunValidateAccess(ctx context.Context, token string, deps ValidateDeps) (*jwt.AccessClaims, error) {
	normalizeHooks(&deps.Hooks)
	if deps.ParseAccess == nil {
		return nil, deps.Errors.EngineNotReady
	}
	if deps.ObserveLatency != nil {
		start := time.Now()
		defer func() { deps.ObserveLatency(time.Since(start)) }()
	}

	claims, err := deps.ParseAccess(token)
	if err != nil {
		deps.MetricInc(deps.Metrics.Failure)
		return nil, deps.Errors.TokenInvalid
	}
	return claims, nil
}
