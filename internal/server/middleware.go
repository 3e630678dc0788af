// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package server

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"codeberg.org/oliverandrich/go-admin-auth/internal/appcontext"
	"codeberg.org/oliverandrich/go-admin-auth/internal/config"
	"codeberg.org/oliverandrich/go-admin-auth/internal/handlers"
	"codeberg.org/oliverandrich/go-admin-auth/internal/i18n"
	"codeberg.org/oliverandrich/go-admin-auth/internal/models"
	"codeberg.org/oliverandrich/go-admin-auth/internal/repository"
	"codeberg.org/oliverandrich/go-admin-auth/internal/services/authtoken"
	"codeberg.org/oliverandrich/go-admin-auth/internal/services/session"
)

// Requests per second and burst allowed per client IP on /auth routes.
const (
	authRateLimit = 1
	authRateBurst = 10
)

func setupMiddleware(e *echo.Echo, cfg *config.Config) {
	maxBody := cfg.Server.MaxBodySize
	if maxBody <= 0 {
		maxBody = 1
	}

	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(requestLogger())
	e.Use(middleware.Secure())
	e.Use(middleware.BodyLimit(fmt.Sprintf("%dM", maxBody)))
	e.Use(customContext())
	e.Use(i18nMiddleware())
}

// requestLogger returns middleware that logs requests using slog.
func requestLogger() echo.MiddlewareFunc {
	return middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogStatus:    true,
		LogURI:       true,
		LogMethod:    true,
		LogLatency:   true,
		LogRemoteIP:  true,
		LogRequestID: true,
		LogError:     true,
		HandleError:  true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			attrs := []slog.Attr{
				slog.String("method", v.Method),
				slog.String("uri", v.URI),
				slog.Int("status", v.Status),
				slog.Duration("latency", v.Latency),
				slog.String("ip", v.RemoteIP),
				slog.String("request_id", v.RequestID),
			}

			if v.Error != nil {
				attrs = append(attrs, slog.String("error", v.Error.Error()))
				slog.LogAttrs(c.Request().Context(), slog.LevelError, "request", attrs...)
			} else {
				slog.LogAttrs(c.Request().Context(), slog.LevelInfo, "request", attrs...)
			}

			return nil
		},
	})
}

// i18nMiddleware sets the locale based on Accept-Language header.
func i18nMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			acceptLang := c.Request().Header.Get("Accept-Language")
			lang := i18n.MatchLanguage(acceptLang)
			ctx := i18n.WithLocale(c.Request().Context(), lang)
			c.SetRequest(c.Request().WithContext(ctx))
			return next(c)
		}
	}
}

// rateLimit throttles clients by IP with an in-memory token bucket.
func rateLimit() echo.MiddlewareFunc {
	store := middleware.NewRateLimiterMemoryStoreWithConfig(middleware.RateLimiterMemoryStoreConfig{
		Rate:      authRateLimit,
		Burst:     authRateBurst,
		ExpiresIn: 3 * time.Minute,
	})
	return middleware.RateLimiterWithConfig(middleware.RateLimiterConfig{
		Store: store,
		DenyHandler: func(c echo.Context, identifier string, _ error) error {
			slog.Warn("rate_limited", "ip", identifier, "uri", c.Request().RequestURI)
			return handlers.RenderError(c, http.StatusTooManyRequests, "error_too_many_requests")
		},
		ErrorHandler: func(c echo.Context, _ error) error {
			return handlers.RenderError(c, http.StatusForbidden, "error_invalid_request")
		},
	})
}

// AuthMiddleware loads the user from the session cookie. Without a valid
// session it falls back to the remember-me cookie and, when that resolves to
// an account, starts a new session. A remember-me cookie that does not
// resolve is cleared.
func AuthMiddleware(sessions *session.Manager, repo *repository.Repository, tokens *authtoken.Service) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			cc, ok := c.(*appcontext.Context)
			if !ok {
				return next(c)
			}

			user := sessionUser(cc, sessions, repo)
			if user == nil && tokens != nil {
				user = rememberedUser(cc, sessions, repo, tokens)
			}

			if user != nil {
				cc.User = user
				cc.SetRequest(cc.Request().WithContext(appcontext.WithUser(cc.Request().Context(), user)))
			}
			return next(cc)
		}
	}
}

func sessionUser(c *appcontext.Context, sessions *session.Manager, repo *repository.Repository) *models.User {
	data, err := sessions.Parse(c.Request())
	if err != nil || data == nil {
		return nil
	}

	user, err := repo.GetUserByID(c.Request().Context(), data.UserID)
	if err != nil {
		if !errors.Is(err, repository.ErrNotFound) {
			slog.Error("failed to load session user", "user_id", data.UserID, "error", err)
			return nil
		}
		c.SetCookie(sessions.Clear())
		return nil
	}
	return user
}

func rememberedUser(c *appcontext.Context, sessions *session.Manager, repo *repository.Repository, tokens *authtoken.Service) *models.User {
	cookie, err := c.Cookie(tokens.CookieName())
	if err != nil || cookie.Value == "" {
		return nil
	}

	ctx := c.Request().Context()
	ident, secret, ok := authtoken.ParseCookie(cookie.Value)
	if !ok {
		slog.Info("auth_token_malformed", "ip", c.RealIP())
		c.SetCookie(tokens.ClearCookie())
		return nil
	}

	username, err := tokens.UserID(ctx, ident, secret)
	if err != nil {
		slog.Error("failed to resolve auth token", "ident", ident, "error", err)
		return nil
	}
	if username == "" {
		c.SetCookie(tokens.ClearCookie())
		return nil
	}

	user, err := repo.GetUserByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			slog.Warn("auth_token_orphaned", "ident", ident, "username", username)
			if revokeErr := tokens.Revoke(ctx, ident); revokeErr != nil {
				slog.Error("failed to revoke orphaned auth token", "error", revokeErr)
			}
			c.SetCookie(tokens.ClearCookie())
			return nil
		}
		slog.Error("failed to load remembered user", "username", username, "error", err)
		return nil
	}

	sess, err := sessions.Create(user.ID, user.Username)
	if err != nil {
		slog.Error("failed to create session", "error", err)
		return nil
	}
	c.SetCookie(sess)
	slog.Info("auth_token_login", "ident", ident, "username", user.Username, "ip", c.RealIP())
	return user
}

// RequireAuth rejects requests without an authenticated user.
func RequireAuth() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			cc, ok := c.(*appcontext.Context)
			if !ok || !cc.IsAuthenticated() {
				return handlers.Unauthorized(c)
			}
			return next(c)
		}
	}
}
