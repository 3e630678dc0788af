// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package email

import (
	"context"
	"fmt"

	"github.com/wneessen/go-mail"

	"codeberg.org/oliverandrich/go-admin-auth/internal/config"
)

// SMTPTransport delivers mail through an SMTP relay.
type SMTPTransport struct {
	cfg      *config.SMTPConfig
	from     string
	fromName string
}

// NewSMTPTransport validates the relay settings.
func NewSMTPTransport(cfg *config.SMTPConfig, from, fromName string) (*SMTPTransport, error) {
	if cfg == nil || cfg.Host == "" {
		return nil, fmt.Errorf("SMTP host is required")
	}
	if from == "" {
		return nil, fmt.Errorf("mail from address is required")
	}
	return &SMTPTransport{cfg: cfg, from: from, fromName: fromName}, nil
}

func (t *SMTPTransport) message(to, subject, body string) (*mail.Msg, error) {
	msg := mail.NewMsg()

	if t.fromName != "" {
		if err := msg.FromFormat(t.fromName, t.from); err != nil {
			return nil, fmt.Errorf("setting from address: %w", err)
		}
	} else if err := msg.From(t.from); err != nil {
		return nil, fmt.Errorf("setting from address: %w", err)
	}

	if err := msg.To(to); err != nil {
		return nil, fmt.Errorf("setting to address: %w", err)
	}

	msg.Subject(subject)
	msg.SetBodyString(mail.TypeTextPlain, body)
	return msg, nil
}

func (t *SMTPTransport) options() []mail.Option {
	opts := []mail.Option{mail.WithPort(t.cfg.Port)}

	if t.cfg.TLS {
		opts = append(opts, mail.WithTLSPolicy(mail.TLSMandatory))
		// Implicit TLS on 465, STARTTLS elsewhere
		if t.cfg.Port == 465 {
			opts = append(opts, mail.WithSSL())
		}
	} else {
		opts = append(opts, mail.WithTLSPolicy(mail.NoTLS))
	}

	if t.cfg.Username != "" && t.cfg.Password != "" {
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(t.cfg.Username),
			mail.WithPassword(t.cfg.Password),
		)
	}
	return opts
}

// Deliver sends one message, opening a fresh connection.
func (t *SMTPTransport) Deliver(ctx context.Context, to, subject, body string) error {
	msg, err := t.message(to, subject, body)
	if err != nil {
		return err
	}

	client, err := mail.NewClient(t.cfg.Host, t.options()...)
	if err != nil {
		return fmt.Errorf("creating mail client: %w", err)
	}

	if err := client.DialAndSendWithContext(ctx, msg); err != nil {
		return fmt.Errorf("sending email: %w", err)
	}
	return nil
}
