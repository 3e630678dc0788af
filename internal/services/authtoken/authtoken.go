// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

// Package authtoken manages persistent "remember me" credentials.
//
// A token is a pair of independent random values: a public ident used as
// the lookup key, and a secret that is only ever stored as a bcrypt hash.
// The client holds both in a cookie. A presented secret that does not match
// its ident is treated as a breach and revokes every token of the account.
package authtoken

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"codeberg.org/oliverandrich/go-admin-auth/internal/config"
	"codeberg.org/oliverandrich/go-admin-auth/internal/models"
	"codeberg.org/oliverandrich/go-admin-auth/internal/repository"
)

const (
	identBytes  = 16
	secretBytes = 32

	// IdentLength is the hex length of a token ident.
	IdentLength = identBytes * 2
	// SecretLength is the hex length of a token secret.
	SecretLength = secretBytes * 2

	separator = ";"
)

var (
	ErrNoUsername = errors.New("auth token requires a username")
	ErrNoExpiry   = errors.New("auth token has no expiry")
	ErrNoSecret   = errors.New("auth token secret is not available")
)

type Service struct {
	repo *repository.Repository
	cfg  *config.AuthConfig
	cost int
}

func NewService(repo *repository.Repository, cfg *config.AuthConfig) *Service {
	if cfg == nil {
		cfg = config.DefaultAuthConfig()
	}
	cost := bcrypt.DefaultCost
	if cfg.BcryptCost >= bcrypt.MinCost && cfg.BcryptCost <= bcrypt.MaxCost {
		cost = cfg.BcryptCost
	}
	return &Service{
		repo: repo,
		cfg:  cfg,
		cost: cost,
	}
}

// CookieName returns the name of the remember-me cookie.
func (s *Service) CookieName() string {
	return s.cfg.CookieName
}

// Generate creates an unsaved token for username that expires after the
// configured cookie duration. The returned token still holds its plaintext
// secret; call Save to persist it.
func (s *Service) Generate(username string) (*models.AuthToken, error) {
	username = strings.ToLower(strings.TrimSpace(username))
	if username == "" {
		return nil, ErrNoUsername
	}

	ident, err := randomHex(identBytes)
	if err != nil {
		return nil, err
	}
	secret, err := randomHex(secretBytes)
	if err != nil {
		return nil, err
	}

	return models.NewAuthToken(ident, secret, username, time.Now().Add(s.cfg.CookieDuration)), nil
}

// Save hashes a plaintext secret, stamps the timestamps and persists the token.
// Tokens that are already hashed are written as they are.
func (s *Service) Save(ctx context.Context, t *models.AuthToken) error {
	if t.IsPlaintext() {
		hash, err := bcrypt.GenerateFromPassword([]byte(t.Token), s.cost)
		if err != nil {
			return fmt.Errorf("failed to hash auth token: %w", err)
		}
		t.MarkHashed(string(hash))
	}

	now := time.Now().UTC()
	if t.Created.IsZero() {
		t.Created = now
	}
	t.LastModified = now

	if err := s.repo.SaveAuthToken(ctx, t); err != nil {
		return fmt.Errorf("failed to save auth token: %w", err)
	}
	return nil
}

// Cookie builds the remember-me cookie for a freshly generated token.
// The value is "ident;secret", query-escaped because a raw semicolon is not
// a valid cookie octet. Path and Domain are left empty.
func (s *Service) Cookie(t *models.AuthToken) (*http.Cookie, error) {
	if t.Expiry == nil {
		return nil, ErrNoExpiry
	}
	if t.Secret() == "" {
		return nil, ErrNoSecret
	}

	return &http.Cookie{
		Name:     s.cfg.CookieName,
		Value:    url.QueryEscape(t.Ident + separator + t.Secret()),
		Expires:  *t.Expiry,
		Secure:   s.cfg.HTTPSOnly,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	}, nil
}

// ClearCookie returns a cookie that removes the remember-me cookie.
func (s *Service) ClearCookie() *http.Cookie {
	return &http.Cookie{
		Name:     s.cfg.CookieName,
		Value:    "",
		Expires:  time.Unix(0, 0),
		MaxAge:   -1,
		Secure:   s.cfg.HTTPSOnly,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	}
}

// ParseCookie splits a cookie value into ident and secret. Both the escaped
// and the raw "ident;secret" forms are accepted. Only the separator and a
// non-empty ident are required: the secret is left for UserID to compare,
// so a forged secret of any shape still counts as a mismatch.
func ParseCookie(value string) (ident, secret string, ok bool) {
	if unescaped, err := url.QueryUnescape(value); err == nil {
		value = unescaped
	}
	ident, secret, found := strings.Cut(value, separator)
	if !found || ident == "" {
		return "", "", false
	}
	return ident, secret, true
}

// UserID resolves a presented ident and secret to a username.
//
// Unknown, expired and mismatched tokens all yield "" with a nil error.
// Expired tokens are deleted. A mismatched secret triggers Panic for the
// token's username. Only store failures return an error.
func (s *Service) UserID(ctx context.Context, ident, secret string) (string, error) {
	if ident == "" {
		return "", nil
	}

	t, err := s.repo.GetAuthToken(ctx, ident)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			slog.Info("auth_token_not_found", "ident", ident)
			return "", nil
		}
		return "", fmt.Errorf("failed to load auth token: %w", err)
	}

	if t.IsExpired(time.Now()) {
		slog.Info("auth_token_expired", "ident", ident, "username", t.Username)
		if err := s.repo.DeleteAuthToken(ctx, ident); err != nil {
			return "", fmt.Errorf("failed to delete expired auth token: %w", err)
		}
		return "", nil
	}

	if bcrypt.CompareHashAndPassword([]byte(t.Token), []byte(secret)) != nil {
		if err := s.Panic(ctx, t.Username); err != nil {
			return "", err
		}
		if err := s.repo.DeleteAuthToken(ctx, ident); err != nil {
			return "", fmt.Errorf("failed to delete auth token: %w", err)
		}
		return "", nil
	}

	return t.Username, nil
}

// Panic is the breach response: it logs at error level and deletes every
// auth token of username.
func (s *Service) Panic(ctx context.Context, username string) error {
	slog.Error("auth_token_breach",
		"message", "possible security breach: auth token secret mismatch, revoking all tokens",
		"username", username)

	n, err := s.repo.DeleteAuthTokensByUsername(ctx, username)
	if err != nil {
		return fmt.Errorf("failed to revoke auth tokens: %w", err)
	}
	slog.Warn("auth_tokens_revoked", "username", username, "count", n, "reason", "breach")
	return nil
}

// Revoke deletes a single token, as on logout.
func (s *Service) Revoke(ctx context.Context, ident string) error {
	if err := s.repo.DeleteAuthToken(ctx, ident); err != nil {
		return fmt.Errorf("failed to revoke auth token: %w", err)
	}
	return nil
}

// RevokeAll deletes every token of username and returns how many were removed.
func (s *Service) RevokeAll(ctx context.Context, username string) (int64, error) {
	n, err := s.repo.DeleteAuthTokensByUsername(ctx, username)
	if err != nil {
		return 0, fmt.Errorf("failed to revoke auth tokens: %w", err)
	}
	slog.Info("auth_tokens_revoked", "username", strings.ToLower(username), "count", n)
	return n, nil
}

// PurgeExpired deletes every expired token.
func (s *Service) PurgeExpired(ctx context.Context) (int64, error) {
	n, err := s.repo.DeleteExpiredAuthTokens(ctx, time.Now())
	if err != nil {
		return 0, fmt.Errorf("failed to purge auth tokens: %w", err)
	}
	return n, nil
}

func randomHex(n int) (string, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to read random bytes: %w", err)
	}
	return hex.EncodeToString(b), nil
}
