package authcore

import (
	"errors"
	"log/slog"
	"time"

	"github.com/teeline/authcore/internal/audit"
	"github.com/teeline/authcore/jwt"
	"github.com/teeline/authcore/logging"
	"github.com/teeline/authcore/mailer"
	"github.com/teeline/authcore/password"
	"github.com/teeline/authcore/store"
)

// Builder assembles an Engine. A Builder is single use.
type Builder struct {
	config    Config
	store     store.Store
	hasher    password.Hasher
	mailer    mailer.Sender
	logger    *slog.Logger
	auditSink AuditSink
	now       func() time.Time

	built bool
}

// New starts a Builder from DefaultConfig.
func New() *Builder {
	return &Builder{
		config: DefaultConfig(),
	}
}

func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithStore sets the persistence backend. It is required.
func (b *Builder) WithStore(s store.Store) *Builder {
	b.store = s
	return b
}

// WithHasher overrides the hasher otherwise built from Config.Password.
func (b *Builder) WithHasher(h password.Hasher) *Builder {
	b.hasher = h
	return b
}

// WithMailer sets where reset codes go. Without one, codes are logged with
// the digits redacted, which is only useful in development.
func (b *Builder) WithMailer(m mailer.Sender) *Builder {
	b.mailer = m
	return b
}

func (b *Builder) WithLogger(l *slog.Logger) *Builder {
	b.logger = l
	return b
}

// WithAuditSink sets the sink. A non-nil sink turns the audit dispatcher on
// regardless of Config.Audit.Enabled.
func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	return b
}

// WithClock replaces time.Now for every expiry decision the engine makes.
func (b *Builder) WithClock(now func() time.Time) *Builder {
	b.now = now
	return b
}

func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

func (b *Builder) WithLatencyHistograms(enabled bool) *Builder {
	b.config.Metrics.EnableLatencyHistograms = enabled
	return b
}

// Build validates the configuration and wires the engine.
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}
	if b.store == nil {
		return nil, errors.New("store required")
	}

	cfg := cloneConfig(b.config)
	if b.auditSink != nil {
		cfg.Audit.Enabled = true
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	now := b.now
	if now == nil {
		now = time.Now
	}
	logger := b.logger
	if logger == nil {
		logger = logging.Discard()
	}

	hasher := b.hasher
	if hasher == nil {
		h, err := password.New(password.Options{
			Algorithm:  cfg.Password.Algorithm,
			BcryptCost: cfg.Password.BcryptCost,
			Argon2:     cfg.Password.Argon2,
		})
		if err != nil {
			return nil, err
		}
		hasher = h
	}
	// Verified against on unknown emails so login timing does not depend on
	// whether the account exists.
	dummyHash, err := hasher.Hash("authcore-timing-equalizer")
	if err != nil {
		return nil, err
	}

	sender := b.mailer
	if sender == nil {
		sender = mailer.LogSender{Logger: logger}
	}

	jm, err := jwt.NewManager(jwt.Config{
		AccessTTL:     cfg.JWT.AccessTTL,
		SigningMethod: jwt.SigningMethod(cfg.JWT.SigningMethod),
		PrivateKey:    cloneBytes(cfg.JWT.PrivateKey),
		PublicKey:     cloneBytes(cfg.JWT.PublicKey),
		Issuer:        cfg.JWT.Issuer,
		Audience:      cfg.JWT.Audience,
		Leeway:        cfg.JWT.Leeway,
		KeyID:         cfg.JWT.KeyID,
		Now:           now,
	})
	if err != nil {
		return nil, err
	}

	engine := &Engine{
		config:     cloneConfig(cfg),
		store:      b.store,
		hasher:     hasher,
		dummyHash:  dummyHash,
		mailer:     sender,
		logger:     logger,
		jwtManager: jm,
		metrics:    NewMetrics(cfg.Metrics),
		clock:      now,
		audit: audit.NewDispatcher(audit.Config{
			Enabled:     cfg.Audit.Enabled,
			BufferSize:  cfg.Audit.BufferSize,
			DropIfFull:  cfg.Audit.DropIfFull,
			SinkTimeout: cfg.Audit.SinkTimeout,
		}, b.auditSink),
	}
	engine.flows = engine.buildFlows()

	b.built = true
	return engine, nil
}
