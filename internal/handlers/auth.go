// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package handlers

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"codeberg.org/oliverandrich/go-admin-auth/internal/appcontext"
	"codeberg.org/oliverandrich/go-admin-auth/internal/i18n"
	"codeberg.org/oliverandrich/go-admin-auth/internal/models"
	"codeberg.org/oliverandrich/go-admin-auth/internal/services/auth"
	"codeberg.org/oliverandrich/go-admin-auth/internal/services/authtoken"
	"codeberg.org/oliverandrich/go-admin-auth/internal/services/passwordreset"
	"codeberg.org/oliverandrich/go-admin-auth/internal/services/session"
)

// AuthHandlers contains handlers for authentication.
type AuthHandlers struct {
	users      *auth.Service
	sessions   *session.Manager
	authTokens *authtoken.Service
	resets     *passwordreset.Service
}

// NewAuth creates a new AuthHandlers instance.
func NewAuth(users *auth.Service, sess *session.Manager, tokens *authtoken.Service, resets *passwordreset.Service) *AuthHandlers {
	return &AuthHandlers{
		users:      users,
		sessions:   sess,
		authTokens: tokens,
		resets:     resets,
	}
}

// LoginRequest is the request body for password login.
type LoginRequest struct {
	Username   string `json:"username"`
	Password   string `json:"password"`
	RememberMe bool   `json:"remember_me"`
}

// UserResponse is the public view of an account.
type UserResponse struct {
	ID          string `json:"id"`
	Username    string `json:"username"`
	Email       string `json:"email"`
	DisplayName string `json:"display_name"`
}

func newUserResponse(u *models.User) UserResponse {
	return UserResponse{
		ID:          u.ID,
		Username:    u.Username,
		Email:       u.Email,
		DisplayName: u.Name(),
	}
}

// Login checks the credentials, starts a session and, when asked to,
// issues a remember-me cookie.
func (h *AuthHandlers) Login(c echo.Context) error {
	var req LoginRequest
	if err := c.Bind(&req); err != nil {
		return BadRequest(c, "error_invalid_request")
	}

	ctx := c.Request().Context()
	user, err := h.users.Login(ctx, req.Username, req.Password)
	if err != nil {
		if errors.Is(err, auth.ErrInvalidCredentials) {
			return RenderError(c, http.StatusUnauthorized, "error_invalid_credentials")
		}
		slog.Error("login error", "error", err)
		return InternalServerError(c)
	}

	cookie, err := h.sessions.Create(user.ID, user.Username)
	if err != nil {
		slog.Error("failed to create session", "error", err)
		return InternalServerError(c)
	}
	c.SetCookie(cookie)

	if req.RememberMe {
		if err := h.remember(c, user.Username); err != nil {
			slog.Error("failed to issue remember-me token", "username", user.Username, "error", err)
			return InternalServerError(c)
		}
	}

	slog.Debug("session started", "username", user.Username, "remember_me", req.RememberMe, "ip", c.RealIP())
	return c.JSON(http.StatusOK, map[string]any{
		"status":  "ok",
		"message": i18n.T(ctx, "login_success"),
		"user":    newUserResponse(user),
	})
}

func (h *AuthHandlers) remember(c echo.Context, username string) error {
	token, err := h.authTokens.Generate(username)
	if err != nil {
		return err
	}
	if err := h.authTokens.Save(c.Request().Context(), token); err != nil {
		return err
	}
	cookie, err := h.authTokens.Cookie(token)
	if err != nil {
		return err
	}
	c.SetCookie(cookie)
	return nil
}

// Logout revokes the presented remember-me token and clears both cookies.
func (h *AuthHandlers) Logout(c echo.Context) error {
	if cookie, err := c.Cookie(h.authTokens.CookieName()); err == nil {
		if ident, _, ok := authtoken.ParseCookie(cookie.Value); ok {
			if err := h.authTokens.Revoke(c.Request().Context(), ident); err != nil {
				slog.Error("failed to revoke auth token on logout", "error", err)
			}
		}
	}

	c.SetCookie(h.sessions.Clear())
	c.SetCookie(h.authTokens.ClearCookie())
	return RenderMessage(c, "logout_success")
}

// Me returns the authenticated user.
func (h *AuthHandlers) Me(c echo.Context) error {
	cc, ok := c.(*appcontext.Context)
	if !ok || cc.User == nil {
		return Unauthorized(c)
	}
	return c.JSON(http.StatusOK, newUserResponse(cc.User))
}

// LostPasswordRequest is the request body for a reset link.
type LostPasswordRequest struct {
	Username string `json:"username"`
	Captcha  string `json:"captcha"`
}

// LostPassword mails a reset link. The answer is the same whether or not an
// account matched.
func (h *AuthHandlers) LostPassword(c echo.Context) error {
	var req LostPasswordRequest
	if err := c.Bind(&req); err != nil {
		return BadRequest(c, "error_invalid_request")
	}

	err := h.resets.RequestReset(c.Request().Context(), passwordreset.RequestParams{
		Username:        req.Username,
		CaptchaResponse: req.Captcha,
		RemoteIP:        c.RealIP(),
	})
	switch {
	case err == nil:
		return RenderMessage(c, "lost_password_requested")
	case errors.Is(err, passwordreset.ErrRejected):
		return BadRequest(c, "error_invalid_request")
	default:
		slog.Error("lost password request failed", "error", err)
		return InternalServerError(c)
	}
}

// ResetPasswordRequest is the request body for setting a new password.
type ResetPasswordRequest struct {
	Token           string `json:"token"`
	Username        string `json:"username"`
	Password        string `json:"password"`
	PasswordConfirm string `json:"password_confirm"`
	Captcha         string `json:"captcha"`
}

// ResetPassword sets a new password from a lost-password token. Every
// rejection gets the same generic message.
func (h *AuthHandlers) ResetPassword(c echo.Context) error {
	var req ResetPasswordRequest
	if err := c.Bind(&req); err != nil {
		return BadRequest(c, "error_invalid_request")
	}

	_, err := h.resets.Reset(c.Request().Context(), passwordreset.ResetParams{
		Token:           req.Token,
		Username:        req.Username,
		Password:        req.Password,
		PasswordConfirm: req.PasswordConfirm,
		CaptchaResponse: req.Captcha,
		RemoteIP:        c.RealIP(),
	})
	switch {
	case err == nil:
		c.SetCookie(h.sessions.Clear())
		c.SetCookie(h.authTokens.ClearCookie())
		return RenderMessage(c, "password_reset_success")
	case errors.Is(err, passwordreset.ErrRejected):
		return BadRequest(c, "error_reset_failed")
	default:
		return InternalServerError(c)
	}
}
