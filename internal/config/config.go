// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package config

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	altsrc "github.com/urfave/cli-altsrc/v3"
	"github.com/urfave/cli-altsrc/v3/toml"
	"github.com/urfave/cli/v3"
)

const (
	// DefaultCookieName is the name of the remember-me cookie.
	DefaultCookieName = "charcoal_admin_login"
	// DefaultCookieDuration is how long a remember-me token stays valid.
	DefaultCookieDuration = 15 * 24 * time.Hour
	// DefaultLostPasswordExpiry is how long a lost-password token stays valid.
	DefaultLostPasswordExpiry = 2 * time.Hour
)

var configFile = altsrc.StringSourcer("config.toml")

type Config struct { //nolint:govet // fieldalignment not critical for config structs
	Server   ServerConfig
	Log      LogConfig
	Database DatabaseConfig
	TLS      TLSConfig
	Auth     AuthConfig
	Session  SessionConfig
	Mail     MailConfig
	SMTP     SMTPConfig
	Captcha  CaptchaConfig
	Sentry   SentryConfig
}

type TLSConfig struct {
	Mode     string // off, manual, acme
	CertDir  string // Directory for ACME certificates
	Email    string // ACME email for Let's Encrypt
	CertFile string // Path to certificate file (manual mode)
	KeyFile  string // Path to private key file (manual mode)
}

type ServerConfig struct { //nolint:govet // fieldalignment not critical for config structs
	Host        string
	Port        int
	BaseURL     string
	MaxBodySize int // in MB
}

type LogConfig struct {
	Level  string // debug, info, warn, error
	Format string // text, json
}

type DatabaseConfig struct {
	Driver string // sqlite, pgx
	DSN    string
}

// AuthConfig holds the remember-me and lost-password token policy.
type AuthConfig struct { //nolint:govet // fieldalignment not critical
	CookieName         string
	CookieDuration     time.Duration
	HTTPSOnly          bool
	LostPasswordExpiry time.Duration
	BcryptCost         int
}

type SessionConfig struct { //nolint:govet // fieldalignment not critical
	CookieName string // Session cookie name
	MaxAge     int    // Session max age in seconds
	HashKey    string // 32-byte hex string for HMAC signing
	BlockKey   string // 32-byte hex string for AES encryption (optional)
}

// MailConfig selects the mail transport and the sender identity.
type MailConfig struct {
	Transport    string // smtp, resend, log
	From         string
	FromName     string
	ResendAPIKey string
}

type SMTPConfig struct { //nolint:govet // fieldalignment not critical
	Host     string
	Port     int
	Username string
	Password string
	TLS      bool
}

type CaptchaConfig struct {
	Secret    string // empty disables verification
	VerifyURL string
}

type SentryConfig struct {
	DSN string
}

func NewFromCLI(cmd *cli.Command) *Config {
	cfg := &Config{
		Server: ServerConfig{
			Host:        cmd.String("host"),
			Port:        int(cmd.Int("port")),
			BaseURL:     cmd.String("base-url"),
			MaxBodySize: int(cmd.Int("max-body-size")),
		},
		Log: LogConfig{
			Level:  cmd.String("log-level"),
			Format: cmd.String("log-format"),
		},
		Database: DatabaseConfig{
			Driver: cmd.String("database-driver"),
			DSN:    cmd.String("database-dsn"),
		},
		TLS: TLSConfig{
			Mode:     cmd.String("tls-mode"),
			CertDir:  cmd.String("tls-cert-dir"),
			Email:    cmd.String("tls-email"),
			CertFile: cmd.String("tls-cert-file"),
			KeyFile:  cmd.String("tls-key-file"),
		},
		Auth: AuthConfig{
			CookieName:         cmd.String("auth-cookie-name"),
			CookieDuration:     durationOrDefault("auth-cookie-duration", cmd.String("auth-cookie-duration"), DefaultCookieDuration),
			HTTPSOnly:          cmd.Bool("auth-https-only"),
			LostPasswordExpiry: durationOrDefault("auth-lost-password-expiry", cmd.String("auth-lost-password-expiry"), DefaultLostPasswordExpiry),
			BcryptCost:         int(cmd.Int("auth-bcrypt-cost")),
		},
		Session: SessionConfig{
			CookieName: cmd.String("session-cookie-name"),
			MaxAge:     int(cmd.Int("session-max-age")),
			HashKey:    cmd.String("session-hash-key"),
			BlockKey:   cmd.String("session-block-key"),
		},
		Mail: MailConfig{
			Transport:    cmd.String("mail-transport"),
			From:         cmd.String("mail-from"),
			FromName:     cmd.String("mail-from-name"),
			ResendAPIKey: cmd.String("mail-resend-api-key"),
		},
		SMTP: SMTPConfig{
			Host:     cmd.String("smtp-host"),
			Port:     int(cmd.Int("smtp-port")),
			Username: cmd.String("smtp-username"),
			Password: cmd.String("smtp-password"),
			TLS:      cmd.Bool("smtp-tls"),
		},
		Captcha: CaptchaConfig{
			Secret:    cmd.String("captcha-secret"),
			VerifyURL: cmd.String("captcha-verify-url"),
		},
		Sentry: SentryConfig{
			DSN: cmd.String("sentry-dsn"),
		},
	}

	if cfg.Server.BaseURL == "" {
		cfg.Server.BaseURL = buildBaseURL(cfg)
	}

	applyAuthDefaults(&cfg.Auth)

	return cfg
}

// applyAuthDefaults fills zero values so a hand-built AuthConfig behaves like the flag defaults.
func applyAuthDefaults(cfg *AuthConfig) {
	if cfg.CookieName == "" {
		cfg.CookieName = DefaultCookieName
	}
	if cfg.CookieDuration <= 0 {
		cfg.CookieDuration = DefaultCookieDuration
	}
	if cfg.LostPasswordExpiry <= 0 {
		cfg.LostPasswordExpiry = DefaultLostPasswordExpiry
	}
}

// DefaultAuthConfig returns the auth policy used when nothing is configured.
func DefaultAuthConfig() *AuthConfig {
	cfg := &AuthConfig{}
	applyAuthDefaults(cfg)
	return cfg
}

func durationOrDefault(flag, value string, def time.Duration) time.Duration {
	if value == "" {
		return def
	}
	d, err := ParseRelativeDuration(value)
	if err != nil || d <= 0 {
		slog.Warn("config invalid duration, using default", "flag", flag, "value", value, "default", def)
		return def
	}
	return d
}

func buildBaseURL(cfg *Config) string {
	host := cfg.Server.Host
	port := cfg.Server.Port
	mode := strings.ToLower(cfg.TLS.Mode)

	scheme := "http"
	if shouldUseTLS(mode) {
		scheme = "https"
	}

	// ACME mode always uses port 443
	if mode == "acme" {
		return fmt.Sprintf("https://%s", host)
	}

	// Hide default ports in URL
	if (scheme == "http" && port == 80) || (scheme == "https" && port == 443) {
		return fmt.Sprintf("%s://%s", scheme, host)
	}
	return fmt.Sprintf("%s://%s:%d", scheme, host, port)
}

func shouldUseTLS(mode string) bool {
	switch mode {
	case "acme", "manual":
		return true
	default:
		return false
	}
}

// IsLocalhost checks if the host is a localhost address.
func IsLocalhost(host string) bool {
	switch host {
	case "", "localhost", "127.0.0.1", "::1":
		return true
	}
	// Check for *.localhost subdomains (e.g., app.localhost)
	return strings.HasSuffix(host, ".localhost")
}

func source(env, key string) cli.ValueSourceChain {
	return cli.NewValueSourceChain(cli.EnvVar(env), toml.TOML(key, configFile))
}

// Flags returns the flags shared by every command that touches the database.
func Flags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "log-level",
			Value:   "info",
			Usage:   "Log level (debug, info, warn, error)",
			Sources: source("LOG_LEVEL", "log.level"),
		},
		&cli.StringFlag{
			Name:    "log-format",
			Value:   "text",
			Usage:   "Log format (text, json)",
			Sources: source("LOG_FORMAT", "log.format"),
		},
		&cli.StringFlag{
			Name:    "database-driver",
			Value:   "sqlite",
			Usage:   "Database driver (sqlite, pgx)",
			Sources: source("DATABASE_DRIVER", "database.driver"),
		},
		&cli.StringFlag{
			Name:    "database-dsn",
			Value:   "./data/app.db",
			Usage:   "Database DSN",
			Sources: source("DATABASE_DSN", "database.dsn"),
		},
		&cli.StringFlag{
			Name:    "auth-cookie-name",
			Value:   DefaultCookieName,
			Usage:   "Remember-me cookie name",
			Sources: source("AUTH_COOKIE_NAME", "auth.cookie_name"),
		},
		&cli.StringFlag{
			Name:    "auth-cookie-duration",
			Value:   "15 days",
			Usage:   "Remember-me token lifetime (e.g. \"15 days\", \"36h\")",
			Sources: source("AUTH_COOKIE_DURATION", "auth.cookie_duration"),
		},
		&cli.BoolFlag{
			Name:    "auth-https-only",
			Usage:   "Only send the remember-me cookie over HTTPS",
			Sources: source("AUTH_HTTPS_ONLY", "auth.https_only"),
		},
		&cli.StringFlag{
			Name:    "auth-lost-password-expiry",
			Value:   "2 hours",
			Usage:   "Lost-password token lifetime",
			Sources: source("AUTH_LOST_PASSWORD_EXPIRY", "auth.lost_password_expiry"),
		},
		&cli.IntFlag{
			Name:    "auth-bcrypt-cost",
			Value:   10,
			Usage:   "bcrypt cost for token secrets and passwords",
			Sources: source("AUTH_BCRYPT_COST", "auth.bcrypt_cost"),
		},
		&cli.StringFlag{
			Name:    "sentry-dsn",
			Usage:   "Sentry DSN for error reporting (optional)",
			Sources: source("SENTRY_DSN", "sentry.dsn"),
		},
	}
}

// ServerFlags returns the flags only the HTTP server needs.
func ServerFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "host",
			Value:   "localhost",
			Usage:   "Host to bind to",
			Sources: source("HOST", "server.host"),
		},
		&cli.IntFlag{
			Name:    "port",
			Value:   8080,
			Usage:   "Port to listen on",
			Sources: source("PORT", "server.port"),
		},
		&cli.StringFlag{
			Name:    "base-url",
			Usage:   "Base URL for the application",
			Sources: source("BASE_URL", "server.base_url"),
		},
		&cli.IntFlag{
			Name:    "max-body-size",
			Value:   1,
			Usage:   "Maximum request body size in MB",
			Sources: source("MAX_BODY_SIZE", "server.max_body_size"),
		},
		&cli.StringFlag{
			Name:    "tls-mode",
			Value:   "off",
			Usage:   "TLS mode (off, manual, acme)",
			Sources: source("TLS_MODE", "tls.mode"),
		},
		&cli.StringFlag{
			Name:    "tls-cert-dir",
			Value:   "./data/certs",
			Usage:   "Directory for ACME certificates",
			Sources: source("TLS_CERT_DIR", "tls.cert_dir"),
		},
		&cli.StringFlag{
			Name:    "tls-email",
			Usage:   "Email for ACME/Let's Encrypt registration",
			Sources: source("TLS_EMAIL", "tls.email"),
		},
		&cli.StringFlag{
			Name:    "tls-cert-file",
			Usage:   "Path to TLS certificate file (manual mode)",
			Sources: source("TLS_CERT_FILE", "tls.cert_file"),
		},
		&cli.StringFlag{
			Name:    "tls-key-file",
			Usage:   "Path to TLS private key file (manual mode)",
			Sources: source("TLS_KEY_FILE", "tls.key_file"),
		},
		// Session flags
		&cli.StringFlag{
			Name:    "session-cookie-name",
			Value:   "_session",
			Usage:   "Session cookie name",
			Sources: source("SESSION_COOKIE_NAME", "session.cookie_name"),
		},
		&cli.IntFlag{
			Name:    "session-max-age",
			Value:   3600,
			Usage:   "Session max age in seconds",
			Sources: source("SESSION_MAX_AGE", "session.max_age"),
		},
		&cli.StringFlag{
			Name:    "session-hash-key",
			Usage:   "Session hash key (32-byte hex, auto-generated if empty in dev)",
			Sources: source("SESSION_HASH_KEY", "session.hash_key"),
		},
		&cli.StringFlag{
			Name:    "session-block-key",
			Usage:   "Session block key for encryption (32-byte hex, optional)",
			Sources: source("SESSION_BLOCK_KEY", "session.block_key"),
		},
		// Mail flags
		&cli.StringFlag{
			Name:    "mail-transport",
			Value:   "log",
			Usage:   "Mail transport (smtp, resend, log)",
			Sources: source("MAIL_TRANSPORT", "mail.transport"),
		},
		&cli.StringFlag{
			Name:    "mail-from",
			Value:   "noreply@localhost",
			Usage:   "Sender address",
			Sources: source("MAIL_FROM", "mail.from"),
		},
		&cli.StringFlag{
			Name:    "mail-from-name",
			Usage:   "Sender display name",
			Sources: source("MAIL_FROM_NAME", "mail.from_name"),
		},
		&cli.StringFlag{
			Name:    "mail-resend-api-key",
			Usage:   "Resend API key (resend transport)",
			Sources: source("RESEND_API_KEY", "mail.resend_api_key"),
		},
		&cli.StringFlag{
			Name:    "smtp-host",
			Usage:   "SMTP host (smtp transport)",
			Sources: source("SMTP_HOST", "smtp.host"),
		},
		&cli.IntFlag{
			Name:    "smtp-port",
			Value:   587,
			Usage:   "SMTP port",
			Sources: source("SMTP_PORT", "smtp.port"),
		},
		&cli.StringFlag{
			Name:    "smtp-username",
			Usage:   "SMTP username",
			Sources: source("SMTP_USERNAME", "smtp.username"),
		},
		&cli.StringFlag{
			Name:    "smtp-password",
			Usage:   "SMTP password",
			Sources: source("SMTP_PASSWORD", "smtp.password"),
		},
		&cli.BoolFlag{
			Name:    "smtp-tls",
			Value:   true,
			Usage:   "Require TLS for SMTP",
			Sources: source("SMTP_TLS", "smtp.tls"),
		},
		// Captcha flags
		&cli.StringFlag{
			Name:    "captcha-secret",
			Usage:   "CAPTCHA secret key (empty disables verification)",
			Sources: source("CAPTCHA_SECRET", "captcha.secret"),
		},
		&cli.StringFlag{
			Name:    "captcha-verify-url",
			Value:   "https://www.google.com/recaptcha/api/siteverify",
			Usage:   "CAPTCHA verification endpoint",
			Sources: source("CAPTCHA_VERIFY_URL", "captcha.verify_url"),
		},
	}
}
