// Package mailer provides the mail transports used by the notification
// dispatcher: an SMTP transport built on go-mail and a log-only transport for
// environments without an SMTP relay.
package mailer

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	netmail "net/mail"
	"strings"
	"time"

	mail "github.com/go-mail/mail/v2"
	"github.com/rs/zerolog/log"
)

// Transport delivers a single HTML message.
type Transport interface {
	Send(ctx context.Context, to, subject, htmlBody string) error
}

// ErrInvalidAddress is returned for recipients that cannot be parsed.
var ErrInvalidAddress = errors.New("invalid recipient address")

// SMTPConfig holds relay settings.
type SMTPConfig struct {
	Host          string
	Port          int
	User          string
	Pass          string
	From          string // e.g. "Review Office <no-reply@example.org>"
	SkipTLSVerify bool
	Timeout       time.Duration
}

// SMTPTransport sends mail through an SMTP relay using mandatory STARTTLS.
type SMTPTransport struct {
	cfg    SMTPConfig
	dialer *mail.Dialer
}

// NewSMTPTransport validates cfg and prepares a dialer.
func NewSMTPTransport(cfg SMTPConfig) (*SMTPTransport, error) {
	if cfg.Host == "" || cfg.From == "" {
		return nil, fmt.Errorf("smtp not configured (SMTP_HOST/SMTP_FROM)")
	}
	if cfg.Port == 0 {
		cfg.Port = 587
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	d := mail.NewDialer(cfg.Host, cfg.Port, cfg.User, cfg.Pass)
	d.StartTLSPolicy = mail.MandatoryStartTLS
	d.TLSConfig = &tls.Config{
		ServerName:         cfg.Host,
		InsecureSkipVerify: cfg.SkipTLSVerify, //nolint:gosec // dev relays only, opt-in via SMTP_SKIP_TLS_VERIFY
	}
	d.Timeout = cfg.Timeout
	return &SMTPTransport{cfg: cfg, dialer: d}, nil
}

// Send delivers one message. Recipients are parsed first so malformed
// addresses fail fast without a network round trip.
func (t *SMTPTransport) Send(ctx context.Context, to, subject, htmlBody string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m, err := t.message(to, subject, htmlBody)
	if err != nil {
		return err
	}
	return t.dialer.DialAndSend(m)
}

func (t *SMTPTransport) message(to, subject, htmlBody string) (*mail.Message, error) {
	addr, err := parseAddress(to)
	if err != nil {
		return nil, err
	}
	m := mail.NewMessage()
	m.SetHeader("From", t.cfg.From)
	m.SetHeader("To", addr)
	m.SetHeader("Subject", subject)
	m.SetBody("text/html", htmlBody)
	return m, nil
}

func parseAddress(to string) (string, error) {
	to = strings.TrimSpace(to)
	if to == "" {
		return "", fmt.Errorf("%w: empty", ErrInvalidAddress)
	}
	a, err := netmail.ParseAddress(to)
	if err != nil {
		return "", fmt.Errorf("%w: %q: %v", ErrInvalidAddress, to, err)
	}
	return a.Address, nil
}

// LogTransport logs messages instead of sending them.
type LogTransport struct{}

// Send logs the message envelope at info level. Malformed addresses still
// fail, so retry behavior matches the SMTP transport.
func (LogTransport) Send(_ context.Context, to, subject, htmlBody string) error {
	addr, err := parseAddress(to)
	if err != nil {
		return err
	}
	log.Info().
		Str("to", addr).
		Str("subject", subject).
		Int("body_bytes", len(htmlBody)).
		Msg("mail (log transport)")
	return nil
}
