// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

// Package lostpassword manages single-use password reset tokens.
//
// The plaintext token only travels in the reset mail. The store keeps its
// SHA-256 digest and lookups compare digests, so a leaked table cannot be
// replayed.
package lostpassword

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"codeberg.org/oliverandrich/go-admin-auth/internal/config"
	"codeberg.org/oliverandrich/go-admin-auth/internal/models"
	"codeberg.org/oliverandrich/go-admin-auth/internal/repository"
)

// TokenLength is the number of random bytes in a token.
const TokenLength = 32

type Service struct {
	repo   *repository.Repository
	expiry time.Duration
}

func NewService(repo *repository.Repository, cfg *config.AuthConfig) *Service {
	expiry := config.DefaultLostPasswordExpiry
	if cfg != nil && cfg.LostPasswordExpiry > 0 {
		expiry = cfg.LostPasswordExpiry
	}
	return &Service{repo: repo, expiry: expiry}
}

// Expiry returns how long new tokens stay valid.
func (s *Service) Expiry() time.Duration {
	return s.expiry
}

// HashToken computes the stored form of a token.
func HashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

// Create issues and persists a token for userID. The plaintext is returned
// for delivery and is not recoverable afterwards.
func (s *Service) Create(ctx context.Context, userID string) (string, *models.LostPasswordToken, error) {
	b := make([]byte, TokenLength)
	if _, err := rand.Read(b); err != nil {
		return "", nil, fmt.Errorf("failed to generate random bytes: %w", err)
	}
	plaintext := hex.EncodeToString(b)

	t := &models.LostPasswordToken{
		Token:  HashToken(plaintext),
		UserID: userID,
	}
	if err := s.Save(ctx, t); err != nil {
		return "", nil, err
	}
	return plaintext, t, nil
}

// Save persists t, defaulting the expiry to now plus the configured duration
// when it is unset.
func (s *Service) Save(ctx context.Context, t *models.LostPasswordToken) error {
	if t.Expiry.IsZero() {
		t.Expiry = time.Now().Add(s.expiry)
	}
	if err := s.repo.SaveLostPasswordToken(ctx, t); err != nil {
		return fmt.Errorf("failed to save lost password token: %w", err)
	}
	return nil
}

// Validate reports whether token exists, belongs to userID and has not expired.
// Failed validations leave the token in place.
func (s *Service) Validate(ctx context.Context, token, userID string) (bool, error) {
	if token == "" || userID == "" {
		return false, nil
	}
	found, err := s.repo.FindValidLostPasswordToken(ctx, HashToken(token), userID, time.Now())
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return false, nil
		}
		return false, fmt.Errorf("failed to look up lost password token: %w", err)
	}
	return found.Token != "", nil
}

// Consume deletes a token after it was used.
func (s *Service) Consume(ctx context.Context, token string) error {
	if err := s.repo.DeleteLostPasswordToken(ctx, HashToken(token)); err != nil {
		return fmt.Errorf("failed to delete lost password token: %w", err)
	}
	return nil
}

// RevokeForUser deletes every outstanding token of userID.
func (s *Service) RevokeForUser(ctx context.Context, userID string) error {
	if err := s.repo.DeleteLostPasswordTokensByUser(ctx, userID); err != nil {
		return fmt.Errorf("failed to delete lost password tokens: %w", err)
	}
	return nil
}

// PurgeExpired deletes every lapsed token.
func (s *Service) PurgeExpired(ctx context.Context) (int64, error) {
	n, err := s.repo.DeleteExpiredLostPasswordTokens(ctx, time.Now())
	if err != nil {
		return 0, fmt.Errorf("failed to purge lost password tokens: %w", err)
	}
	return n, nil
}
