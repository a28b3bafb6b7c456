package authcore

import (
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/teeline/authcore/jwt"
	"github.com/teeline/authcore/password"
)

// Config is the full engine configuration. It is copied into the Engine at
// Build and never read again.
type Config struct {
	JWT           JWTConfig
	Session       SessionConfig
	Password      PasswordConfig
	PasswordReset PasswordResetConfig
	Audit         AuditConfig
	Metrics       MetricsConfig
}

/*
====================================
JWT CONFIG
====================================
*/

// JWTConfig controls access token signing.
type JWTConfig struct {
	AccessTTL     time.Duration
	SigningMethod string // "hs256" (default) or "ed25519"
	// PrivateKey is the HMAC secret for hs256 or the Ed25519 private key.
	PrivateKey []byte
	// PublicKey is derived from PrivateKey when empty.
	PublicKey []byte
	Issuer    string
	Audience  string
	Leeway    time.Duration
	KeyID     string
}

/*
====================================
SESSION CONFIG
====================================
*/

// SessionConfig controls refresh token lifetime and login concurrency.
type SessionConfig struct {
	RefreshTTL time.Duration
	// RevokeOtherSessionsOnLogin makes every login revoke the user's existing
	// sessions in the same transaction that stores the new one.
	RevokeOtherSessionsOnLogin bool
}

/*
====================================
PASSWORD CONFIG
====================================
*/

// PasswordConfig selects the hasher and the plaintext policy.
type PasswordConfig struct {
	Algorithm      string // "bcrypt" (default) or "argon2id"
	BcryptCost     int
	Argon2         password.Argon2Config
	MinLength      int
	MaxLength      int
	UpgradeOnLogin bool
}

// PasswordResetConfig controls the one-time code flow.
type PasswordResetConfig struct {
	CodeTTL         time.Duration
	RequestCooldown time.Duration
	// MaxAttempts is the number of wrong confirmations a code survives. Zero
	// disables the limit.
	MaxAttempts int
}

// AuditConfig controls the asynchronous audit dispatcher.
type AuditConfig struct {
	Enabled     bool
	BufferSize  int
	DropIfFull  bool
	SinkTimeout time.Duration
}

// MetricsConfig controls the in-process counters.
type MetricsConfig struct {
	Enabled                 bool
	EnableLatencyHistograms bool
}

// DefaultConfig returns a configuration that only lacks a signing key.
func DefaultConfig() Config {
	return Config{
		JWT: JWTConfig{
			AccessTTL:     15 * time.Minute,
			SigningMethod: string(jwt.MethodHS256),
			Leeway:        30 * time.Second,
		},
		Session: SessionConfig{
			RefreshTTL: 30 * 24 * time.Hour,
		},
		Password: PasswordConfig{
			Algorithm:      password.AlgorithmBcrypt,
			BcryptCost:     password.DefaultBcryptCost,
			Argon2:         password.DefaultArgon2Config(),
			MinLength:      8,
			MaxLength:      72,
			UpgradeOnLogin: true,
		},
		PasswordReset: PasswordResetConfig{
			CodeTTL:         10 * time.Minute,
			RequestCooldown: 5 * time.Minute,
			MaxAttempts:     5,
		},
		Audit: AuditConfig{
			Enabled:     false,
			BufferSize:  1024,
			DropIfFull:  true,
			SinkTimeout: 2 * time.Second,
		},
		Metrics: MetricsConfig{
			Enabled:                 true,
			EnableLatencyHistograms: false,
		},
	}
}

func cloneConfig(cfg Config) Config {
	out := cfg
	out.JWT.PrivateKey = cloneBytes(cfg.JWT.PrivateKey)
	out.JWT.PublicKey = cloneBytes(cfg.JWT.PublicKey)
	return out
}

func cloneBytes(b []byte) []byte {
	if b == nil {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

// Validate reports the first setting that would make the engine unsafe or
// unusable. A missing signing key is always an error.
func (c *Config) Validate() error {
	if c.JWT.AccessTTL < jwt.MinAccessTTL || c.JWT.AccessTTL > jwt.MaxAccessTTL {
		return fmt.Errorf("JWT AccessTTL must be between %s and %s", jwt.MinAccessTTL, jwt.MaxAccessTTL)
	}
	switch strings.ToLower(c.JWT.SigningMethod) {
	case "", string(jwt.MethodHS256):
		if len(c.JWT.PrivateKey) == 0 {
			return errors.New("hs256 requires PrivateKey")
		}
		if len(c.JWT.PrivateKey) < 32 {
			return errors.New("hs256 PrivateKey must be at least 32 bytes")
		}
	case string(jwt.MethodEd25519):
		if len(c.JWT.PrivateKey) == 0 {
			return errors.New("ed25519 requires PrivateKey")
		}
	default:
		return errors.New("unsupported JWT signing method")
	}
	if c.JWT.Leeway < 0 || c.JWT.Leeway > 2*time.Minute {
		return errors.New("JWT Leeway must be between 0 and 2m")
	}

	if c.Session.RefreshTTL <= 0 {
		return errors.New("Session RefreshTTL must be > 0")
	}
	if c.Session.RefreshTTL <= c.JWT.AccessTTL {
		return errors.New("Session RefreshTTL must be longer than JWT AccessTTL")
	}

	switch strings.ToLower(c.Password.Algorithm) {
	case "", password.AlgorithmBcrypt:
		if c.Password.BcryptCost != 0 && c.Password.BcryptCost < password.MinBcryptCost {
			return fmt.Errorf("Password BcryptCost must be >= %d", password.MinBcryptCost)
		}
	case password.AlgorithmArgon2id:
		if c.Password.Argon2.Memory < 8192 {
			return errors.New("Password Argon2 Memory must be >= 8192 KB")
		}
		if c.Password.Argon2.Time < 1 {
			return errors.New("Password Argon2 Time must be >= 1")
		}
		if c.Password.Argon2.Parallelism < 1 {
			return errors.New("Password Argon2 Parallelism must be >= 1")
		}
	default:
		return errors.New("unsupported password algorithm")
	}
	if c.Password.MinLength < 1 {
		return errors.New("Password MinLength must be >= 1")
	}
	if c.Password.MaxLength != 0 && c.Password.MaxLength < c.Password.MinLength {
		return errors.New("Password MaxLength must be >= MinLength")
	}

	if c.PasswordReset.CodeTTL <= 0 {
		return errors.New("PasswordReset CodeTTL must be > 0")
	}
	if c.PasswordReset.RequestCooldown < 0 {
		return errors.New("PasswordReset RequestCooldown must be >= 0")
	}
	if c.PasswordReset.MaxAttempts < 0 {
		return errors.New("PasswordReset MaxAttempts must be >= 0")
	}

	if c.Audit.Enabled && c.Audit.BufferSize <= 0 {
		return errors.New("Audit BufferSize must be > 0 when audit is enabled")
	}
	if c.Audit.SinkTimeout < 0 {
		return errors.New("Audit SinkTimeout must be >= 0")
	}
	return nil
}

// checkPassword applies the length policy. Length is counted in runes; bcrypt
// additionally caps the encoded form at 72 bytes.
func (c PasswordConfig) checkPassword(plaintext string) error {
	n := utf8.RuneCountInString(plaintext)
	if n < c.MinLength {
		return fmt.Errorf("%w: must be at least %d characters", ErrPasswordPolicy, c.MinLength)
	}
	if c.MaxLength > 0 && n > c.MaxLength {
		return fmt.Errorf("%w: must be at most %d characters", ErrPasswordPolicy, c.MaxLength)
	}
	if strings.TrimSpace(plaintext) == "" {
		return fmt.Errorf("%w: must not be blank", ErrPasswordPolicy)
	}
	if (c.Algorithm == "" || strings.EqualFold(c.Algorithm, password.AlgorithmBcrypt)) && len(plaintext) > 72 {
		return fmt.Errorf("%w: must be at most 72 bytes", ErrPasswordPolicy)
	}
	return nil
}
