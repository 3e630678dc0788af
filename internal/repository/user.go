// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package repository

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"

	"codeberg.org/oliverandrich/go-admin-auth/internal/models"
)

const userColumns = `id, username, email, display_name, password_hash, last_login_at, created_at, updated_at`

// CreateUser inserts a new user. The username is lower-cased and an ID is
// assigned when empty.
func (r *Repository) CreateUser(ctx context.Context, user *models.User) error {
	if user.ID == "" {
		user.ID = uuid.NewString()
	}
	user.Username = strings.ToLower(user.Username)
	now := time.Now().UTC()
	user.CreatedAt = now
	user.UpdatedAt = now

	_, err := r.db.ExecContext(ctx, r.rebind(
		`INSERT INTO users (`+userColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`),
		user.ID, user.Username, user.Email, user.DisplayName, user.PasswordHash,
		utcPtr(user.LastLoginAt), user.CreatedAt, user.UpdatedAt)
	return err
}

// GetUserByID retrieves a user by ID.
func (r *Repository) GetUserByID(ctx context.Context, id string) (*models.User, error) {
	var user models.User
	err := r.db.GetContext(ctx, &user, r.rebind(`SELECT `+userColumns+` FROM users WHERE id = ?`), id)
	if err != nil {
		return nil, wrapError(err)
	}
	return &user, nil
}

// GetUserByUsername retrieves a user by username, case-insensitively.
func (r *Repository) GetUserByUsername(ctx context.Context, username string) (*models.User, error) {
	var user models.User
	err := r.db.GetContext(ctx, &user, r.rebind(`SELECT `+userColumns+` FROM users WHERE username = ?`),
		strings.ToLower(username))
	if err != nil {
		return nil, wrapError(err)
	}
	return &user, nil
}

// GetUserByEmail retrieves a user by email address, case-insensitively.
func (r *Repository) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	var user models.User
	err := r.db.GetContext(ctx, &user, r.rebind(`SELECT `+userColumns+` FROM users WHERE lower(email) = ?`),
		strings.ToLower(email))
	if err != nil {
		return nil, wrapError(err)
	}
	return &user, nil
}

// UserExists checks if a user with the given username exists.
func (r *Repository) UserExists(ctx context.Context, username string) (bool, error) {
	var exists bool
	err := r.db.GetContext(ctx, &exists, r.rebind(`SELECT EXISTS(SELECT 1 FROM users WHERE username = ?)`),
		strings.ToLower(username))
	return exists, err
}

// UpdateUserPassword replaces a user's password hash.
func (r *Repository) UpdateUserPassword(ctx context.Context, id, passwordHash string) error {
	res, err := r.db.ExecContext(ctx, r.rebind(
		`UPDATE users SET password_hash = ?, updated_at = ? WHERE id = ?`),
		passwordHash, time.Now().UTC(), id)
	if err != nil {
		return err
	}
	return affected(res)
}

// TouchUserLogin records a successful login.
func (r *Repository) TouchUserLogin(ctx context.Context, id string, at time.Time) error {
	res, err := r.db.ExecContext(ctx, r.rebind(`UPDATE users SET last_login_at = ? WHERE id = ?`), utc(at), id)
	if err != nil {
		return err
	}
	return affected(res)
}
