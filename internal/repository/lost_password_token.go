// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package repository

import (
	"context"
	"time"

	"codeberg.org/oliverandrich/go-admin-auth/internal/models"
)

const lostPasswordTokenColumns = `token, user_id, expiry`

// GetLostPasswordToken loads a lost-password token by its stored value.
func (r *Repository) GetLostPasswordToken(ctx context.Context, token string) (*models.LostPasswordToken, error) {
	var t models.LostPasswordToken
	err := r.db.GetContext(ctx, &t, r.rebind(
		`SELECT `+lostPasswordTokenColumns+` FROM lost_password_tokens WHERE token = ?`), token)
	if err != nil {
		return nil, wrapError(err)
	}
	return &t, nil
}

// SaveLostPasswordToken inserts or updates a lost-password token.
func (r *Repository) SaveLostPasswordToken(ctx context.Context, t *models.LostPasswordToken) error {
	_, err := r.db.ExecContext(ctx, r.rebind(
		`INSERT INTO lost_password_tokens (`+lostPasswordTokenColumns+`) VALUES (?, ?, ?)
		ON CONFLICT (token) DO UPDATE SET user_id = excluded.user_id, expiry = excluded.expiry`),
		t.Token, t.UserID, utc(t.Expiry))
	return err
}

// FindValidLostPasswordToken returns the token matching both value and user
// that is still unexpired at now.
func (r *Repository) FindValidLostPasswordToken(ctx context.Context, token, userID string, now time.Time) (*models.LostPasswordToken, error) {
	var t models.LostPasswordToken
	err := r.db.GetContext(ctx, &t, r.rebind(
		`SELECT `+lostPasswordTokenColumns+` FROM lost_password_tokens
		WHERE token = ? AND user_id = ? AND expiry > ?`),
		token, userID, utc(now))
	if err != nil {
		return nil, wrapError(err)
	}
	return &t, nil
}

// DeleteLostPasswordToken deletes a token by its stored value.
func (r *Repository) DeleteLostPasswordToken(ctx context.Context, token string) error {
	_, err := r.db.ExecContext(ctx, r.rebind(`DELETE FROM lost_password_tokens WHERE token = ?`), token)
	return err
}

// DeleteLostPasswordTokensByUser deletes all outstanding tokens for a user.
func (r *Repository) DeleteLostPasswordTokensByUser(ctx context.Context, userID string) error {
	_, err := r.db.ExecContext(ctx, r.rebind(`DELETE FROM lost_password_tokens WHERE user_id = ?`), userID)
	return err
}

// DeleteExpiredLostPasswordTokens deletes tokens that lapsed before now.
func (r *Repository) DeleteExpiredLostPasswordTokens(ctx context.Context, now time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, r.rebind(`DELETE FROM lost_password_tokens WHERE expiry <= ?`), utc(now))
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
