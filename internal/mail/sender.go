package mail

import (
	"context"
	"fmt"
	"log/slog"
	"net/smtp"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

// Sender delivers a message and returns its Message-ID.
type Sender interface {
	Send(ctx context.Context, m *Message) (string, error)
}

// SMTPConfig holds relay settings.
type SMTPConfig struct {
	Addr     string // host:port
	Username string
	Password string
	Rate     float64 // messages per second
}

// SMTPSender relays messages through an SMTP server, throttled by a token
// bucket so a burst of sends cannot trip the relay's limits.
type SMTPSender struct {
	addr    string
	auth    smtp.Auth
	limiter *rate.Limiter
	logger  *slog.Logger
	now     func() time.Time

	sendMail func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
}

// NewSMTPSender creates an SMTP sender. Auth is PLAIN when a username is set.
func NewSMTPSender(cfg SMTPConfig, logger *slog.Logger) *SMTPSender {
	if logger == nil {
		logger = slog.Default()
	}
	var auth smtp.Auth
	if cfg.Username != "" {
		host, _, _ := strings.Cut(cfg.Addr, ":")
		auth = smtp.PlainAuth("", cfg.Username, cfg.Password, host)
	}
	r := rate.Limit(cfg.Rate)
	if cfg.Rate <= 0 {
		r = rate.Inf
	}
	return &SMTPSender{
		addr:     cfg.Addr,
		auth:     auth,
		limiter:  rate.NewLimiter(r, 1),
		logger:   logger,
		now:      time.Now,
		sendMail: smtp.SendMail,
	}
}

// Send waits for the rate limiter, then relays m.
func (s *SMTPSender) Send(ctx context.Context, m *Message) (string, error) {
	raw, id, err := Build(m, s.now())
	if err != nil {
		return "", err
	}
	if err := s.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("mail throttle: %w", err)
	}
	if err := s.sendMail(s.addr, s.auth, envelope(m.From), m.Recipients(), raw); err != nil {
		s.logger.Warn("smtp send failed", "to", m.To, "err", err)
		return "", fmt.Errorf("smtp send to %s: %w", m.To, err)
	}
	s.logger.Info("mail sent", "to", m.To, "cc", len(m.CC), "message_id", id)
	return id, nil
}

// envelope strips a display name from a From header value.
func envelope(from string) string {
	if i := strings.LastIndex(from, "<"); i >= 0 {
		return strings.TrimSuffix(from[i+1:], ">")
	}
	return from
}

// NoopSender logs messages instead of delivering them.
type NoopSender struct {
	Logger *slog.Logger
}

// Send builds m to validate it, logs it and reports success.
func (n NoopSender) Send(_ context.Context, m *Message) (string, error) {
	raw, id, err := Build(m, time.Now())
	if err != nil {
		return "", err
	}
	logger := n.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.Info("mail not delivered (no smtp configured)",
		"to", m.To, "subject", m.Subject, "bytes", len(raw), "message_id", id)
	return id, nil
}
