// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package email

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"codeberg.org/oliverandrich/go-admin-auth/internal/config"
	"codeberg.org/oliverandrich/go-admin-auth/internal/i18n"
)

// ErrUnknownTemplate is returned when no "<ident>_body" message exists.
var ErrUnknownTemplate = errors.New("unknown mail template")

// Transport delivers a rendered plain-text message.
type Transport interface {
	Deliver(ctx context.Context, to, subject, body string) error
}

// Service renders mail templates from the message catalogue and hands them
// to a transport.
type Service struct {
	transport Transport
}

// NewService creates a mailer on top of a transport.
func NewService(transport Transport) *Service {
	return &Service{transport: transport}
}

// NewFromConfig builds the transport selected by cfg.Transport.
func NewFromConfig(mailCfg *config.MailConfig, smtpCfg *config.SMTPConfig) (*Service, error) {
	if mailCfg.From == "" && mailCfg.Transport != "log" && mailCfg.Transport != "" {
		return nil, fmt.Errorf("mail from address is required")
	}

	switch strings.ToLower(mailCfg.Transport) {
	case "smtp":
		t, err := NewSMTPTransport(smtpCfg, mailCfg.From, mailCfg.FromName)
		if err != nil {
			return nil, err
		}
		return NewService(t), nil
	case "resend":
		t, err := NewResendTransport(mailCfg.ResendAPIKey, mailCfg.From, mailCfg.FromName)
		if err != nil {
			return nil, err
		}
		return NewService(t), nil
	case "", "log":
		slog.Warn("mail transport is log, messages are not delivered")
		return NewService(LogTransport{}), nil
	default:
		return nil, fmt.Errorf("unsupported mail transport %q", mailCfg.Transport)
	}
}

// Send renders templateIdent for the locale in ctx and delivers it. An empty
// subject is taken from the "<ident>_subject" message.
func (s *Service) Send(ctx context.Context, to, subject, templateIdent string, data map[string]any) error {
	bodyID := templateIdent + "_body"
	body := i18n.TData(ctx, bodyID, data)
	if body == bodyID {
		return fmt.Errorf("%w: %s", ErrUnknownTemplate, templateIdent)
	}
	if subject == "" {
		subject = i18n.TData(ctx, templateIdent+"_subject", data)
	}

	if err := s.transport.Deliver(ctx, to, subject, strings.TrimSpace(body)+"\n"); err != nil {
		return fmt.Errorf("failed to send %s mail: %w", templateIdent, err)
	}
	slog.Info("mail_sent", "template", templateIdent, "to", to)
	return nil
}
