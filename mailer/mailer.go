// Package mailer delivers password reset codes.
package mailer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/smtp"
	"strings"
	"time"
)

// Sender delivers a reset code to an address. Implementations must not log
// the code.
type Sender interface {
	SendResetCode(ctx context.Context, to, code string) error
}

// SenderFunc adapts a function to Sender.
type SenderFunc func(ctx context.Context, to, code string) error

func (f SenderFunc) SendResetCode(ctx context.Context, to, code string) error {
	return f(ctx, to, code)
}

// LogSender records that a code was sent without revealing it. It is the
// default when no real transport is configured.
type LogSender struct {
	Logger *slog.Logger
}

func (s LogSender) SendResetCode(ctx context.Context, to, code string) error {
	logger := s.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.InfoContext(ctx, "password reset code issued",
		"to", to,
		"code", redact(code),
	)
	return nil
}

func redact(code string) string {
	if code == "" {
		return ""
	}
	return strings.Repeat("*", len(code))
}

// SMTPConfig configures SMTPSender.
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	Subject  string
	Timeout  time.Duration
}

// ErrSMTPConfig is returned by NewSMTPSender for an incomplete config.
var ErrSMTPConfig = errors.New("mailer: smtp host and from address are required")

// SMTPSender sends plain text mail through an SMTP relay.
type SMTPSender struct {
	cfg  SMTPConfig
	auth smtp.Auth
	send func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
}

func NewSMTPSender(cfg SMTPConfig) (*SMTPSender, error) {
	if cfg.Host == "" || cfg.From == "" {
		return nil, ErrSMTPConfig
	}
	if cfg.Port == 0 {
		cfg.Port = 587
	}
	if cfg.Subject == "" {
		cfg.Subject = "Your password reset code"
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 10 * time.Second
	}
	s := &SMTPSender{cfg: cfg, send: smtp.SendMail}
	if cfg.Username != "" {
		s.auth = smtp.PlainAuth("", cfg.Username, cfg.Password, cfg.Host)
	}
	return s, nil
}

func (s *SMTPSender) SendResetCode(ctx context.Context, to, code string) error {
	if strings.ContainsAny(to, "\r\n") {
		return fmt.Errorf("mailer: invalid recipient")
	}
	msg := s.message(to, code)
	addr := net.JoinHostPort(s.cfg.Host, fmt.Sprint(s.cfg.Port))

	ctx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	defer cancel()

	errCh := make(chan error, 1)
	go func() {
		errCh <- s.send(addr, s.auth, s.cfg.From, []string{to}, msg)
	}()
	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("mailer: send to %s: %w", to, err)
		}
		return nil
	case <-ctx.Done():
		return fmt.Errorf("mailer: send to %s: %w", to, ctx.Err())
	}
}

func (s *SMTPSender) message(to, code string) []byte {
	var b strings.Builder
	b.WriteString("From: " + s.cfg.From + "\r\n")
	b.WriteString("To: " + to + "\r\n")
	b.WriteString("Subject: " + s.cfg.Subject + "\r\n")
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=utf-8\r\n")
	b.WriteString("\r\n")
	b.WriteString("Your password reset code is " + code + ".\r\n")
	b.WriteString("It expires in 10 minutes. If you did not ask for it, ignore this message.\r\n")
	return []byte(b.String())
}
