package mailer

import (
	"fmt"
	"log"

	gomail "gopkg.in/gomail.v2"
)

// Config for the outbound SMTP transport.
type Config struct {
	Host      string
	Port      int
	User      string
	Password  string
	DefaultTo string // recipient when no per-device override is set
}

// Mailer sends generated notifications over SMTP. Delivery is best effort;
// the pipeline never depends on the outcome.
type Mailer struct {
	dialer    *gomail.Dialer
	from      string
	defaultTo string
}

// New builds a mailer. Returns nil when SMTP is not configured, which the
// dispatcher treats as "notifications disabled".
func New(cfg Config) *Mailer {
	if cfg.Host == "" || cfg.User == "" {
		return nil
	}
	if cfg.Port <= 0 {
		cfg.Port = 465
	}
	return &Mailer{
		dialer:    gomail.NewDialer(cfg.Host, cfg.Port, cfg.User, cfg.Password),
		from:      cfg.User,
		defaultTo: cfg.DefaultTo,
	}
}

// Send delivers one plain-text message. toOverride takes precedence over the
// configured default recipient.
func (m *Mailer) Send(subject, body, toOverride string) error {
	to := toOverride
	if to == "" {
		to = m.defaultTo
	}
	if to == "" {
		return fmt.Errorf("no recipient configured")
	}

	msg := gomail.NewMessage()
	msg.SetAddressHeader("From", m.from, "AuraLinkPlant")
	msg.SetHeader("To", to)
	msg.SetHeader("Subject", subject)
	msg.SetBody("text/plain", body)

	if err := m.dialer.DialAndSend(msg); err != nil {
		return fmt.Errorf("smtp send: %w", err)
	}
	log.Printf("mail: sent %q to %s", subject, to)
	return nil
}
