package authcore

import "time"

// SecurityReport summarises the security-relevant settings an Engine runs
// with. It contains no key material.
type SecurityReport struct {
	SigningAlgorithm       string
	AccessTTL              time.Duration
	RefreshTTL             time.Duration
	PasswordAlgorithm      string
	Password               PasswordConfigReport
	SingleSession          bool
	ResetCodeTTL           time.Duration
	ResetRequestCooldown   time.Duration
	ResetMaxAttempts       int
	AuditEnabled           bool
	MetricsEnabled         bool
	RefreshRotationEnabled bool
}

// PasswordConfigReport carries whichever hasher parameters apply.
type PasswordConfigReport struct {
	BcryptCost        int
	Argon2Memory      uint32
	Argon2Time        uint32
	Argon2Parallelism uint8
	MinLength         int
	MaxLength         int
	UpgradeOnLogin    bool
}

// SecurityReport describes the running configuration.
func (e *Engine) SecurityReport() SecurityReport {
	if e == nil {
		return SecurityReport{}
	}
	return e.config.SecurityReport()
}

// SecurityReport describes c without building an engine.
func (c Config) SecurityReport() SecurityReport {
	algorithm := c.Password.Algorithm
	if algorithm == "" {
		algorithm = "bcrypt"
	}
	signing := c.JWT.SigningMethod
	if signing == "" {
		signing = "hs256"
	}

	report := SecurityReport{
		SigningAlgorithm:       signing,
		AccessTTL:              c.JWT.AccessTTL,
		RefreshTTL:             c.Session.RefreshTTL,
		PasswordAlgorithm:      algorithm,
		SingleSession:          c.Session.RevokeOtherSessionsOnLogin,
		ResetCodeTTL:           c.PasswordReset.CodeTTL,
		ResetRequestCooldown:   c.PasswordReset.RequestCooldown,
		ResetMaxAttempts:       c.PasswordReset.MaxAttempts,
		AuditEnabled:           c.Audit.Enabled,
		MetricsEnabled:         c.Metrics.Enabled,
		RefreshRotationEnabled: true,
		Password: PasswordConfigReport{
			MinLength:      c.Password.MinLength,
			MaxLength:      c.Password.MaxLength,
			UpgradeOnLogin: c.Password.UpgradeOnLogin,
		},
	}
	if algorithm == "bcrypt" {
		report.Password.BcryptCost = c.Password.BcryptCost
	} else {
		report.Password.Argon2Memory = c.Password.Argon2.Memory
		report.Password.Argon2Time = c.Password.Argon2.Time
		report.Password.Argon2Parallelism = c.Password.Argon2.Parallelism
	}
	return report
}
