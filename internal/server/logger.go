// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package server

import (
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/lmittmann/tint"
	slogmulti "github.com/samber/slog-multi"
	slogsentry "github.com/samber/slog-sentry/v2"

	"codeberg.org/oliverandrich/go-admin-auth/internal/config"
)

// SetupLogger configures the global slog logger. With a Sentry DSN, error
// records are sent to Sentry as well. The returned function flushes pending
// events and must be called before exit.
func SetupLogger(cfg *config.LogConfig, sentryCfg *config.SentryConfig) func() {
	handler := newLogHandler(os.Stdout, cfg.Level, cfg.Format)
	flush := func() {}

	if sentryCfg != nil && sentryCfg.DSN != "" {
		if err := sentry.Init(sentry.ClientOptions{Dsn: sentryCfg.DSN}); err != nil {
			slog.New(handler).Warn("sentry disabled", "error", err)
		} else {
			handler = slogmulti.Fanout(
				handler,
				slogsentry.Option{Level: slog.LevelError}.NewSentryHandler(),
			)
			flush = func() { sentry.Flush(2 * time.Second) }
		}
	}

	slog.SetDefault(slog.New(handler))
	return flush
}

func newLogHandler(w io.Writer, level, format string) slog.Handler {
	logLevel := parseLevel(level)
	if format == "json" {
		return slog.NewJSONHandler(w, &slog.HandlerOptions{Level: logLevel})
	}
	return tint.NewHandler(w, &tint.Options{Level: logLevel})
}

func parseLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
