// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package server

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/urfave/cli/v3"

	"codeberg.org/oliverandrich/go-admin-auth/internal/config"
	"codeberg.org/oliverandrich/go-admin-auth/internal/database"
	"codeberg.org/oliverandrich/go-admin-auth/internal/handlers"
	"codeberg.org/oliverandrich/go-admin-auth/internal/i18n"
	"codeberg.org/oliverandrich/go-admin-auth/internal/repository"
	"codeberg.org/oliverandrich/go-admin-auth/internal/services/auth"
	"codeberg.org/oliverandrich/go-admin-auth/internal/services/authtoken"
	"codeberg.org/oliverandrich/go-admin-auth/internal/services/captcha"
	"codeberg.org/oliverandrich/go-admin-auth/internal/services/email"
	"codeberg.org/oliverandrich/go-admin-auth/internal/services/lostpassword"
	"codeberg.org/oliverandrich/go-admin-auth/internal/services/passwordreset"
	"codeberg.org/oliverandrich/go-admin-auth/internal/services/session"
)

// Run starts the server with the given CLI command.
func Run(ctx context.Context, cmd *cli.Command) error {
	cfg := config.NewFromCLI(cmd)
	flush := SetupLogger(&cfg.Log, &cfg.Sentry)
	defer flush()

	slog.Info("starting server",
		"host", cfg.Server.Host,
		"port", cfg.Server.Port,
		"base_url", cfg.Server.BaseURL,
	)

	// Database, migrations included
	db, err := database.Open(ctx, cfg.Database.Driver, cfg.Database.DSN)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer func() {
		if closeErr := db.Close(); closeErr != nil {
			slog.Error("failed to close database", "error", closeErr)
		}
	}()

	// i18n
	if initErr := i18n.Init(); initErr != nil {
		return fmt.Errorf("failed to init i18n: %w", initErr)
	}

	e, err := New(cfg, repository.New(db))
	if err != nil {
		return err
	}

	return startWithGracefulShutdown(e, cfg)
}

// New builds the Echo instance with all services, middleware and routes.
func New(cfg *config.Config, repo *repository.Repository) (*echo.Echo, error) {
	sessions, err := session.NewManager(&cfg.Session, strings.HasPrefix(cfg.Server.BaseURL, "https://"))
	if err != nil {
		return nil, fmt.Errorf("failed to create session manager: %w", err)
	}

	mailer, err := email.NewFromConfig(&cfg.Mail, &cfg.SMTP)
	if err != nil {
		return nil, fmt.Errorf("failed to create mailer: %w", err)
	}

	users := auth.NewService(repo, &cfg.Auth)
	authTokens := authtoken.NewService(repo, &cfg.Auth)
	resets := passwordreset.NewService(
		repo,
		users,
		lostpassword.NewService(repo, &cfg.Auth),
		authTokens,
		captcha.NewFromConfig(&cfg.Captcha),
		mailer,
		cfg.Server.BaseURL,
	)

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	setupMiddleware(e, cfg)
	e.Use(AuthMiddleware(sessions, repo, authTokens))

	setupRoutes(e, handlers.New(repo), handlers.NewAuth(users, sessions, authTokens, resets))
	return e, nil
}

func setupRoutes(e *echo.Echo, h *handlers.Handlers, ah *handlers.AuthHandlers) {
	e.GET("/health", h.Health)

	g := e.Group("/auth", rateLimit())
	g.POST("/login", ah.Login)
	g.POST("/logout", ah.Logout)
	g.POST("/lost-password", ah.LostPassword)
	g.POST("/reset-password", ah.ResetPassword)
	g.GET("/me", ah.Me, RequireAuth())
}

func startWithGracefulShutdown(e *echo.Echo, cfg *config.Config) error {
	// Setup TLS
	tlsResult, err := SetupTLS(cfg)
	if err != nil {
		return fmt.Errorf("TLS setup failed: %w", err)
	}

	// Channel for server errors
	errChan := make(chan error, 2)

	// HTTP redirect server for ACME mode
	var httpServer *http.Server

	switch tlsResult.Mode {
	case TLSModeOff:
		addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
		go func() {
			slog.Info("Server running", "url", cfg.Server.BaseURL)
			if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errChan <- err
			}
		}()

	case TLSModeACME:
		go func() {
			slog.Info("Server running", "url", cfg.Server.BaseURL)
			if err := startTLSServer(e, ":443", tlsResult.TLSConfig); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errChan <- err
			}
		}()

		httpServer = &http.Server{
			Addr:              ":80",
			Handler:           tlsResult.HTTPHandler,
			ReadHeaderTimeout: 10 * time.Second,
		}
		go func() {
			slog.Info("HTTP to HTTPS redirect active", "addr", ":80")
			if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errChan <- err
			}
		}()

	case TLSModeManual:
		addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
		go func() {
			slog.Info("Server running", "url", cfg.Server.BaseURL)
			if err := startTLSServer(e, addr, tlsResult.TLSConfig); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errChan <- err
			}
		}()
	}

	// Wait for interrupt signal or error
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-quit:
		slog.Info("shutting down server")
	case err := <-errChan:
		slog.Error("server error", "error", err)
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := e.Shutdown(shutdownCtx); err != nil {
		slog.Error("failed to shutdown main server", "error", err)
	}

	if httpServer != nil {
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			slog.Error("failed to shutdown HTTP redirect server", "error", err)
		}
	}

	slog.Info("server stopped")
	return nil
}

// startTLSServer starts the Echo server with a custom TLS configuration.
func startTLSServer(e *echo.Echo, addr string, tlsConfig *tls.Config) error {
	lc := &net.ListenConfig{}
	ln, err := lc.Listen(context.Background(), "tcp", addr)
	if err != nil {
		return err
	}
	e.TLSListener = tls.NewListener(ln, tlsConfig)
	e.TLSServer.TLSConfig = tlsConfig
	return e.Server.Serve(e.TLSListener)
}
