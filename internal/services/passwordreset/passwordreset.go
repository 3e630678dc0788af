// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

// Package passwordreset runs the lost-password request and the reset
// submission on top of the token, user, CAPTCHA and mail services.
//
// Every input or validation failure wraps ErrRejected. Callers are expected
// to answer all of them with the same generic message so that a client can
// not tell an unknown account from a bad token.
package passwordreset

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"codeberg.org/oliverandrich/go-admin-auth/internal/repository"
	"codeberg.org/oliverandrich/go-admin-auth/internal/services/auth"
	"codeberg.org/oliverandrich/go-admin-auth/internal/services/authtoken"
	"codeberg.org/oliverandrich/go-admin-auth/internal/services/captcha"
	"codeberg.org/oliverandrich/go-admin-auth/internal/services/lostpassword"
)

// ErrRejected marks failures caused by the submitted input.
var ErrRejected = errors.New("password reset rejected")

var (
	ErrMissingToken     = fmt.Errorf("%w: missing token", ErrRejected)
	ErrMissingUsername  = fmt.Errorf("%w: missing username", ErrRejected)
	ErrMissingPassword  = fmt.Errorf("%w: missing password", ErrRejected)
	ErrPasswordMismatch = fmt.Errorf("%w: passwords do not match", ErrRejected)
	ErrMissingCaptcha   = fmt.Errorf("%w: missing captcha response", ErrRejected)
	ErrCaptchaFailed    = fmt.Errorf("%w: captcha verification failed", ErrRejected)
	ErrUnknownUser      = fmt.Errorf("%w: no matching user", ErrRejected)
	ErrInvalidToken     = fmt.Errorf("%w: invalid or expired token", ErrRejected)
)

// State is the position of a reset submission in the flow.
type State int

const (
	AwaitUsername State = iota
	AwaitTokenValidation
	AwaitCaptcha
	PasswordUpdated
	Failed
)

func (s State) String() string {
	switch s {
	case AwaitUsername:
		return "await_username"
	case AwaitTokenValidation:
		return "await_token_validation"
	case AwaitCaptcha:
		return "await_captcha"
	case PasswordUpdated:
		return "password_updated"
	case Failed:
		return "failed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Mailer sends a templated message.
type Mailer interface {
	Send(ctx context.Context, to, subject, templateIdent string, data map[string]any) error
}

type Service struct {
	repo       *repository.Repository
	users      *auth.Service
	tokens     *lostpassword.Service
	authTokens *authtoken.Service
	captcha    captcha.Verifier
	mailer     Mailer
	resetURL   string
}

// NewService wires the reset flow. Reset links point at
// <baseURL>/auth/reset-password.
func NewService(
	repo *repository.Repository,
	users *auth.Service,
	tokens *lostpassword.Service,
	authTokens *authtoken.Service,
	verifier captcha.Verifier,
	mailer Mailer,
	baseURL string,
) *Service {
	if verifier == nil {
		verifier = captcha.Disabled{}
	}
	return &Service{
		repo:       repo,
		users:      users,
		tokens:     tokens,
		authTokens: authTokens,
		captcha:    verifier,
		mailer:     mailer,
		resetURL:   strings.TrimSuffix(baseURL, "/") + "/auth/reset-password",
	}
}

// RequestParams is a lost-password request.
type RequestParams struct {
	Username        string
	CaptchaResponse string
	RemoteIP        string
}

// RequestReset mails a reset link to the account matching the username or
// email. An unknown account is not an error.
func (s *Service) RequestReset(ctx context.Context, p RequestParams) error {
	login := strings.TrimSpace(p.Username)
	if login == "" {
		return ErrMissingUsername
	}
	if err := s.verifyCaptcha(ctx, p.CaptchaResponse, p.RemoteIP); err != nil {
		return err
	}

	user, err := s.users.FindUser(ctx, login)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			slog.Info("lost_password_unknown_user", "login", login, "ip", p.RemoteIP)
			return nil
		}
		return fmt.Errorf("failed to look up user: %w", err)
	}

	plaintext, token, err := s.tokens.Create(ctx, user.ID)
	if err != nil {
		return err
	}

	link := s.resetURL + "?" + url.Values{
		"token":    {plaintext},
		"username": {user.Username},
	}.Encode()

	err = s.mailer.Send(ctx, user.Email, "", "lost_password", map[string]any{
		"Name":     user.Name(),
		"Username": user.Username,
		"ResetURL": link,
		"Expiry":   token.Expiry.UTC().Format(time.RFC1123),
	})
	if err != nil {
		slog.Error("lost_password_mail_failed", "username", user.Username, "ip", p.RemoteIP, "error", err)
		return err
	}

	slog.Info("lost_password_requested", "username", user.Username, "ip", p.RemoteIP)
	return nil
}

// ResetParams is a reset submission.
type ResetParams struct {
	Token           string
	Username        string
	Password        string
	PasswordConfirm string
	CaptchaResponse string
	RemoteIP        string
}

// Reset validates a submission and replaces the password. The returned
// state is where the flow stopped. On success the lost-password token is
// deleted and every remember-me token of the account is revoked.
func (s *Service) Reset(ctx context.Context, p ResetParams) (State, error) {
	state, err := s.reset(ctx, p)
	if err != nil {
		level := slog.LevelWarn
		if !errors.Is(err, ErrRejected) {
			level = slog.LevelError
		}
		slog.Log(ctx, level, "password_reset_failed",
			"state", state.String(), "username", p.Username, "ip", p.RemoteIP, "reason", err.Error())
		return Failed, err
	}
	return state, nil
}

func (s *Service) reset(ctx context.Context, p ResetParams) (State, error) {
	state := AwaitUsername

	switch {
	case p.Token == "":
		return state, ErrMissingToken
	case strings.TrimSpace(p.Username) == "":
		return state, ErrMissingUsername
	case p.Password == "":
		return state, ErrMissingPassword
	case p.Password != p.PasswordConfirm:
		return state, ErrPasswordMismatch
	case strings.TrimSpace(p.CaptchaResponse) == "" && !s.captchaDisabled():
		return state, ErrMissingCaptcha
	}

	// Only the submitted username is compared so the outcome is the same
	// whether or not the account exists.
	if err := s.users.PasswordValidator().Validate(p.Password, p.Username); err != nil {
		return state, fmt.Errorf("%w: %w", ErrRejected, err)
	}

	user, err := s.users.FindUser(ctx, p.Username)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return state, ErrUnknownUser
		}
		return state, fmt.Errorf("failed to look up user: %w", err)
	}

	state = AwaitTokenValidation
	valid, err := s.tokens.Validate(ctx, p.Token, user.ID)
	if err != nil {
		return state, err
	}
	if !valid {
		return state, ErrInvalidToken
	}

	state = AwaitCaptcha
	if err := s.verifyCaptcha(ctx, p.CaptchaResponse, p.RemoteIP); err != nil {
		return state, err
	}

	hash, err := s.users.HashPassword(p.Password)
	if err != nil {
		return state, err
	}
	if err := s.repo.UpdateUserPassword(ctx, user.ID, hash); err != nil {
		return state, fmt.Errorf("failed to update password: %w", err)
	}

	if err := s.tokens.Consume(ctx, p.Token); err != nil {
		return state, err
	}
	if err := s.tokens.RevokeForUser(ctx, user.ID); err != nil {
		return state, err
	}
	if _, err := s.authTokens.RevokeAll(ctx, user.Username); err != nil {
		return state, err
	}

	if err := s.mailer.Send(ctx, user.Email, "", "password_changed", map[string]any{
		"Name":     user.Name(),
		"Username": user.Username,
	}); err != nil {
		// The password is already changed; a lost notice must not undo that.
		slog.Warn("password_changed_mail_failed", "username", user.Username, "error", err)
	}

	slog.Info("password_reset_success", "user_id", user.ID, "username", user.Username, "ip", p.RemoteIP)
	return PasswordUpdated, nil
}

func (s *Service) captchaDisabled() bool {
	_, ok := s.captcha.(captcha.Disabled)
	return ok
}

// verifyCaptcha maps verifier outcomes: a rejected or missing response is
// ErrCaptchaFailed, anything else is an internal error.
func (s *Service) verifyCaptcha(ctx context.Context, response, remoteIP string) error {
	err := s.captcha.Verify(ctx, response, remoteIP)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, captcha.ErrFailed), errors.Is(err, captcha.ErrMissingResponse):
		return fmt.Errorf("%w (%w)", ErrCaptchaFailed, err)
	default:
		return fmt.Errorf("failed to verify captcha: %w", err)
	}
}
