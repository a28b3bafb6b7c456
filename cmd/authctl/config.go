package main

import (
	"encoding/base64"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/samber/oops"
	"github.com/spf13/pflag"

	"github.com/teeline/authcore"
)

// keyEnv supplies the signing key when the config file has none.
const keyEnv = "AUTHCORE_JWT_KEY"

type globalOptions struct {
	configFile string
	flags      *pflag.FlagSet
}

type fileConfig struct {
	Log struct {
		Level  string `koanf:"level"`
		Format string `koanf:"format"`
	} `koanf:"log"`

	Backend struct {
		Kind        string `koanf:"kind"`
		DSN         string `koanf:"dsn"`
		RedisAddr   string `koanf:"redis_addr"`
		RedisPrefix string `koanf:"redis_prefix"`
	} `koanf:"backend"`

	JWT struct {
		SigningMethod string        `koanf:"signing_method"`
		Key           string        `koanf:"key"`
		KeyFile       string        `koanf:"key_file"`
		AccessTTL     time.Duration `koanf:"access_ttl"`
		Issuer        string        `koanf:"issuer"`
		Audience      string        `koanf:"audience"`
		Leeway        time.Duration `koanf:"leeway"`
		KeyID         string        `koanf:"key_id"`
	} `koanf:"jwt"`

	Session struct {
		RefreshTTL    time.Duration `koanf:"refresh_ttl"`
		SingleSession bool          `koanf:"single_session"`
	} `koanf:"session"`

	Password struct {
		Algorithm  string `koanf:"algorithm"`
		BcryptCost int    `koanf:"bcrypt_cost"`
		MinLength  int    `koanf:"min_length"`
		MaxLength  int    `koanf:"max_length"`
	} `koanf:"password"`

	Reset struct {
		CodeTTL     time.Duration `koanf:"code_ttl"`
		Cooldown    time.Duration `koanf:"cooldown"`
		MaxAttempts *int          `koanf:"max_attempts"`
	} `koanf:"reset"`

	Audit struct {
		Enabled bool `koanf:"enabled"`
	} `koanf:"audit"`

	SMTP struct {
		Host     string `koanf:"host"`
		Port     int    `koanf:"port"`
		Username string `koanf:"username"`
		Password string `koanf:"password"`
		From     string `koanf:"from"`
	} `koanf:"smtp"`
}

// loadConfig layers the config file under the command line flags.
func loadConfig(opts *globalOptions) (*fileConfig, error) {
	k := koanf.New(".")

	if opts.configFile != "" {
		if err := k.Load(file.Provider(opts.configFile), yaml.Parser()); err != nil {
			return nil, oops.Code("CONFIG_INVALID").With("path", opts.configFile).Wrap(err)
		}
	}
	if opts.flags != nil {
		if err := k.Load(posflag.Provider(opts.flags, ".", k), nil); err != nil {
			return nil, oops.Code("CONFIG_INVALID").Wrap(err)
		}
	}

	var cfg fileConfig
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, oops.Code("CONFIG_INVALID").Wrap(err)
	}
	return &cfg, nil
}

// engineConfig maps the file onto authcore.DefaultConfig. Zero values keep
// the defaults.
func (fc *fileConfig) engineConfig() (authcore.Config, error) {
	cfg := authcore.DefaultConfig()

	if fc.JWT.SigningMethod != "" {
		cfg.JWT.SigningMethod = strings.ToLower(fc.JWT.SigningMethod)
	}
	key, err := fc.signingKey()
	if err != nil {
		return cfg, err
	}
	cfg.JWT.PrivateKey = key
	if fc.JWT.AccessTTL > 0 {
		cfg.JWT.AccessTTL = fc.JWT.AccessTTL
	}
	if fc.JWT.Leeway > 0 {
		cfg.JWT.Leeway = fc.JWT.Leeway
	}
	cfg.JWT.Issuer = fc.JWT.Issuer
	cfg.JWT.Audience = fc.JWT.Audience
	cfg.JWT.KeyID = fc.JWT.KeyID

	if fc.Session.RefreshTTL > 0 {
		cfg.Session.RefreshTTL = fc.Session.RefreshTTL
	}
	cfg.Session.RevokeOtherSessionsOnLogin = fc.Session.SingleSession

	if fc.Password.Algorithm != "" {
		cfg.Password.Algorithm = strings.ToLower(fc.Password.Algorithm)
	}
	if fc.Password.BcryptCost > 0 {
		cfg.Password.BcryptCost = fc.Password.BcryptCost
	}
	if fc.Password.MinLength > 0 {
		cfg.Password.MinLength = fc.Password.MinLength
	}
	if fc.Password.MaxLength > 0 {
		cfg.Password.MaxLength = fc.Password.MaxLength
	}

	if fc.Reset.CodeTTL > 0 {
		cfg.PasswordReset.CodeTTL = fc.Reset.CodeTTL
	}
	if fc.Reset.Cooldown > 0 {
		cfg.PasswordReset.RequestCooldown = fc.Reset.Cooldown
	}
	if fc.Reset.MaxAttempts != nil {
		cfg.PasswordReset.MaxAttempts = *fc.Reset.MaxAttempts
	}
	cfg.Audit.Enabled = fc.Audit.Enabled

	if err := cfg.Validate(); err != nil {
		return cfg, oops.Code("CONFIG_INVALID").Wrap(err)
	}
	return cfg, nil
}

// signingKey reads jwt.key_file, then jwt.key, then the environment. A key
// prefixed with "base64:" is decoded.
func (fc *fileConfig) signingKey() ([]byte, error) {
	if fc.JWT.KeyFile != "" {
		data, err := os.ReadFile(fc.JWT.KeyFile)
		if err != nil {
			return nil, oops.Code("CONFIG_INVALID").With("path", fc.JWT.KeyFile).Wrap(err)
		}
		return data, nil
	}

	raw := fc.JWT.Key
	if raw == "" {
		raw = os.Getenv(keyEnv)
	}
	if rest, ok := strings.CutPrefix(raw, "base64:"); ok {
		key, err := base64.StdEncoding.DecodeString(rest)
		if err != nil {
			return nil, oops.Code("CONFIG_INVALID").Errorf("jwt.key: invalid base64: %w", err)
		}
		return key, nil
	}
	if raw == "" {
		return nil, nil
	}
	return []byte(raw), nil
}
