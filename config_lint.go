package authcore

import (
	"fmt"
	"strings"
	"time"
)

// LintSeverity ranks a configuration warning.
type LintSeverity int

const (
	LintInfo LintSeverity = iota
	LintWarn
	LintHigh
)

func (s LintSeverity) String() string {
	switch s {
	case LintInfo:
		return "INFO"
	case LintWarn:
		return "WARN"
	case LintHigh:
		return "HIGH"
	default:
		return fmt.Sprintf("LintSeverity(%d)", int(s))
	}
}

// LintWarning is a setting that is valid but probably not what production
// wants.
type LintWarning struct {
	Code     string
	Severity LintSeverity
	Message  string
}

type LintResult []LintWarning

func (r LintResult) Codes() []string {
	codes := make([]string, 0, len(r))
	for _, w := range r {
		codes = append(codes, w.Code)
	}
	return codes
}

// BySeverity keeps warnings at or above min.
func (r LintResult) BySeverity(min LintSeverity) LintResult {
	var out LintResult
	for _, w := range r {
		if w.Severity >= min {
			out = append(out, w)
		}
	}
	return out
}

// AsError joins every warning at or above min into one error, or returns nil.
func (r LintResult) AsError(min LintSeverity) error {
	hits := r.BySeverity(min)
	if len(hits) == 0 {
		return nil
	}
	parts := make([]string, 0, len(hits))
	for _, w := range hits {
		parts = append(parts, w.Code+": "+w.Message)
	}
	return fmt.Errorf("config lint: %s", strings.Join(parts, "; "))
}

// Lint reports settings that pass Validate but weaken the deployment.
func (c Config) Lint() LintResult {
	var ws LintResult
	add := func(code string, sev LintSeverity, format string, args ...any) {
		ws = append(ws, LintWarning{Code: code, Severity: sev, Message: fmt.Sprintf(format, args...)})
	}

	if c.JWT.Leeway > time.Minute {
		add("leeway_large", LintWarn, "JWT leeway %s accepts tokens well past expiry", c.JWT.Leeway)
	}
	if c.JWT.AccessTTL > 30*time.Minute {
		add("access_ttl_long", LintWarn, "access tokens stay valid %s after logout", c.JWT.AccessTTL)
	}
	if c.Session.RefreshTTL > 90*24*time.Hour {
		add("refresh_ttl_long", LintInfo, "refresh tokens live %s", c.Session.RefreshTTL)
	}
	if strings.EqualFold(c.JWT.SigningMethod, "hs256") || c.JWT.SigningMethod == "" {
		add("signing_hs256", LintInfo, "hs256 shares the signing secret with every verifier")
	}
	if !c.Audit.Enabled {
		add("audit_disabled", LintInfo, "no audit trail is kept")
	}
	if c.PasswordReset.RequestCooldown == 0 {
		add("reset_cooldown_disabled", LintHigh, "password reset requests are not rate limited")
	}
	if c.PasswordReset.MaxAttempts == 0 {
		add("reset_attempts_unlimited", LintHigh, "a reset code can be guessed without limit until it expires")
	}
	if c.PasswordReset.CodeTTL > 15*time.Minute {
		add("reset_code_ttl_long", LintWarn, "reset codes live %s", c.PasswordReset.CodeTTL)
	}
	if strings.EqualFold(c.Password.Algorithm, "argon2id") && c.Password.Argon2.Memory < 64*1024 {
		add("argon2_memory_low", LintWarn, "argon2 memory %d KB is below 64 MB", c.Password.Argon2.Memory)
	}
	if c.Password.MinLength < 8 {
		add("password_min_length_low", LintWarn, "passwords may be %d characters", c.Password.MinLength)
	}
	return ws
}
