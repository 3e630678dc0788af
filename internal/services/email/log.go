// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package email

import (
	"context"
	"log/slog"
)

// LogTransport writes messages to the log instead of sending them.
// Only meant for development.
type LogTransport struct{}

func (LogTransport) Deliver(ctx context.Context, to, subject, body string) error {
	slog.InfoContext(ctx, "email sent (dev mode)", "to", to, "subject", subject, "body", body)
	return nil
}
