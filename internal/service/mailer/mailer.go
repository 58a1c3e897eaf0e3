// Package mailer delivers issued license keys to the payer's email address.
// Concurrent SMTP sessions are bounded by a Limiter.
package mailer

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/wneessen/go-mail"
)

// ErrNoRecipient is returned when the payer record carried no email address.
var ErrNoRecipient = errors.New("mailer: no recipient")

// Limiter bounds concurrent deliveries. Do runs fn while holding a slot.
type Limiter interface {
	Do(ctx context.Context, fn func(context.Context) error) error
}

// Sender delivers prepared messages. *mail.Client satisfies it.
type Sender interface {
	DialAndSendWithContext(ctx context.Context, messages ...*mail.Msg) error
}

// Config holds the SMTP settings.
type Config struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	Timeout  time.Duration
}

// Mailer sends license emails.
type Mailer struct {
	from    string
	sender  Sender
	limiter Limiter
}

// New dials nothing; it only prepares an SMTP client from cfg.
func New(cfg Config, l Limiter) (*Mailer, error) {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	opts := []mail.Option{
		mail.WithPort(cfg.Port),
		mail.WithTimeout(cfg.Timeout),
		mail.WithTLSPortPolicy(mail.TLSOpportunistic),
	}
	if cfg.Username != "" {
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(cfg.Username),
			mail.WithPassword(cfg.Password),
		)
	}
	client, err := mail.NewClient(cfg.Host, opts...)
	if err != nil {
		return nil, fmt.Errorf("mailer: new client: %w", err)
	}
	return NewWithSender(cfg.From, client, l), nil
}

// NewWithSender builds a Mailer around an existing Sender.
func NewWithSender(from string, s Sender, l Limiter) *Mailer {
	if s == nil {
		panic("mailer.New: nil sender")
	}
	if l == nil {
		panic("mailer.New: nil limiter")
	}
	return &Mailer{from: from, sender: s, limiter: l}
}

// SendLicense emails licenseKey to the given address.
func (m *Mailer) SendLicense(ctx context.Context, to, licenseKey string) error {
	to = strings.TrimSpace(to)
	if to == "" {
		return ErrNoRecipient
	}

	msg, err := licenseMessage(m.from, to, licenseKey)
	if err != nil {
		return err
	}

	return m.limiter.Do(ctx, func(ctx context.Context) error {
		if err := m.sender.DialAndSendWithContext(ctx, msg); err != nil {
			return fmt.Errorf("mailer: send to %s: %w", to, err)
		}
		return nil
	})
}

func licenseMessage(from, to, licenseKey string) (*mail.Msg, error) {
	msg := mail.NewMsg()
	if err := msg.From(from); err != nil {
		return nil, fmt.Errorf("mailer: from: %w", err)
	}
	if err := msg.To(to); err != nil {
		return nil, fmt.Errorf("mailer: to: %w", err)
	}
	msg.Subject("Your License Key")
	msg.SetBodyString(mail.TypeTextPlain, fmt.Sprintf(
		"Thank you for your purchase!\n\nYour License Key: %s\n\nKeep this key somewhere safe.\n", licenseKey))
	return msg, nil
}
