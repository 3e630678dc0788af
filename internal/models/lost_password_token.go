// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package models

import "time"

// LostPasswordToken authorizes a single password reset for one user.
// Token is the stored form of the credential (a SHA-256 hex digest).
type LostPasswordToken struct {
	Token  string    `db:"token" json:"-"`
	UserID string    `db:"user_id" json:"user_id"`
	Expiry time.Time `db:"expiry" json:"expiry"`
}

// IsExpired reports whether the token has lapsed at now.
func (t *LostPasswordToken) IsExpired(now time.Time) bool {
	return !now.Before(t.Expiry)
}
