// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package repository

import (
	"context"
	"errors"
	"strings"
	"time"

	"codeberg.org/oliverandrich/go-admin-auth/internal/models"
)

// ErrPlaintextSecret is returned when an AuthToken still carrying its
// plaintext secret is about to be written.
var ErrPlaintextSecret = errors.New("auth token secret must be hashed before saving")

const authTokenColumns = `ident, token, username, expiry, created, last_modified`

// GetAuthToken loads an auth token by ident.
func (r *Repository) GetAuthToken(ctx context.Context, ident string) (*models.AuthToken, error) {
	var token models.AuthToken
	err := r.db.GetContext(ctx, &token, r.rebind(`SELECT `+authTokenColumns+` FROM auth_tokens WHERE ident = ?`), ident)
	if err != nil {
		return nil, wrapError(err)
	}
	return &token, nil
}

// SaveAuthToken inserts or updates an auth token.
func (r *Repository) SaveAuthToken(ctx context.Context, token *models.AuthToken) error {
	if token.IsPlaintext() {
		return ErrPlaintextSecret
	}
	_, err := r.db.ExecContext(ctx, r.rebind(
		`INSERT INTO auth_tokens (`+authTokenColumns+`) VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (ident) DO UPDATE SET
			token = excluded.token,
			username = excluded.username,
			expiry = excluded.expiry,
			last_modified = excluded.last_modified`),
		token.Ident, token.Token, strings.ToLower(token.Username), utcPtr(token.Expiry),
		utc(token.Created), utc(token.LastModified))
	return err
}

// DeleteAuthToken deletes an auth token by ident. Deleting a missing token is not an error.
func (r *Repository) DeleteAuthToken(ctx context.Context, ident string) error {
	_, err := r.db.ExecContext(ctx, r.rebind(`DELETE FROM auth_tokens WHERE ident = ?`), ident)
	return err
}

// DeleteAuthTokensByUsername deletes every auth token of a user and returns how many were removed.
func (r *Repository) DeleteAuthTokensByUsername(ctx context.Context, username string) (int64, error) {
	res, err := r.db.ExecContext(ctx, r.rebind(`DELETE FROM auth_tokens WHERE username = ?`), strings.ToLower(username))
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// CountAuthTokensByUsername returns the number of stored tokens for a user.
func (r *Repository) CountAuthTokensByUsername(ctx context.Context, username string) (int64, error) {
	var count int64
	err := r.db.GetContext(ctx, &count, r.rebind(`SELECT COUNT(*) FROM auth_tokens WHERE username = ?`), strings.ToLower(username))
	return count, err
}

// DeleteExpiredAuthTokens deletes tokens whose expiry is missing or before now.
func (r *Repository) DeleteExpiredAuthTokens(ctx context.Context, now time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, r.rebind(`DELETE FROM auth_tokens WHERE expiry IS NULL OR expiry < ?`), utc(now))
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
