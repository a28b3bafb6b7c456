package main

import (
	"context"
	"log/slog"
	"strings"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/samber/oops"
	"github.com/sethvargo/go-retry"

	"github.com/teeline/authcore"
	"github.com/teeline/authcore/logging"
	"github.com/teeline/authcore/mailer"
	"github.com/teeline/authcore/store"
	"github.com/teeline/authcore/store/postgres"
	"github.com/teeline/authcore/store/redisstore"
)

// session is an engine plus everything that must be closed with it.
type session struct {
	engine  *authcore.Engine
	logger  *slog.Logger
	closers []func()
}

func (s *session) Close() {
	if s.engine != nil {
		s.engine.Close()
	}
	for i := len(s.closers) - 1; i >= 0; i-- {
		s.closers[i]()
	}
}

func openStore(ctx context.Context, fc *fileConfig) (store.Store, []func(), error) {
	switch strings.ToLower(fc.Backend.Kind) {
	case "postgres":
		if fc.Backend.DSN == "" {
			return nil, nil, oops.Code("CONFIG_INVALID").Errorf("backend.dsn is required for postgres")
		}
		pool, err := postgres.Connect(ctx, fc.Backend.DSN, postgres.ConnectOptions{})
		if err != nil {
			return nil, nil, err
		}
		return postgres.New(pool), []func(){pool.Close}, nil

	case "redis":
		rdb := redis.NewClient(&redis.Options{Addr: fc.Backend.RedisAddr})
		s := redisstore.New(rdb, redisstore.WithPrefix(fc.Backend.RedisPrefix))
		backoff := retry.WithMaxRetries(4, retry.NewExponential(defaultPingBackoff))
		err := retry.Do(ctx, backoff, func(ctx context.Context) error {
			if err := s.Ping(ctx); err != nil {
				return retry.RetryableError(err)
			}
			return nil
		})
		if err != nil {
			_ = rdb.Close()
			return nil, nil, oops.Code("STORE_UNAVAILABLE").With("addr", fc.Backend.RedisAddr).Wrap(err)
		}
		return s, []func(){func() { _ = rdb.Close() }}, nil

	case "", "memory":
		mr, err := miniredis.Run()
		if err != nil {
			return nil, nil, oops.Code("STORE_UNAVAILABLE").Wrap(err)
		}
		rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
		return redisstore.New(rdb, redisstore.WithPrefix(fc.Backend.RedisPrefix)),
			[]func(){func() { _ = rdb.Close() }, mr.Close}, nil

	default:
		return nil, nil, oops.Code("CONFIG_INVALID").Errorf("unknown backend %q", fc.Backend.Kind)
	}
}

// openSession loads the configuration and builds an engine on its backend.
func openSession(ctx context.Context, opts *globalOptions) (*session, error) {
	fc, err := loadConfig(opts)
	if err != nil {
		return nil, err
	}
	cfg, err := fc.engineConfig()
	if err != nil {
		return nil, err
	}

	logger := logging.Setup(logging.Options{
		Service: "authctl",
		Format:  fc.Log.Format,
		Level:   fc.Log.Level,
	}, nil)

	st, closers, err := openStore(ctx, fc)
	if err != nil {
		return nil, err
	}
	s := &session{logger: logger, closers: closers}

	b := authcore.New().
		WithConfig(cfg).
		WithStore(st).
		WithLogger(logger)
	if fc.Audit.Enabled {
		b = b.WithAuditSink(authcore.NewSlogSink(logger))
	}
	if fc.SMTP.Host != "" {
		sender, err := mailer.NewSMTPSender(mailer.SMTPConfig{
			Host:     fc.SMTP.Host,
			Port:     fc.SMTP.Port,
			Username: fc.SMTP.Username,
			Password: fc.SMTP.Password,
			From:     fc.SMTP.From,
		})
		if err != nil {
			s.Close()
			return nil, oops.Code("CONFIG_INVALID").Wrap(err)
		}
		b = b.WithMailer(sender)
	}

	engine, err := b.Build()
	if err != nil {
		s.Close()
		return nil, oops.Code("ENGINE_BUILD_FAILED").Wrap(err)
	}
	s.engine = engine
	return s, nil
}
