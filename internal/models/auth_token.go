// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package models

import "time"

// AuthToken is a persistent "remember me" credential.
//
// Ident is the public lookup key. Token holds the plaintext secret from
// construction until it is hashed, and the bcrypt hash afterwards.
type AuthToken struct { //nolint:govet // fieldalignment: readability over optimization
	Ident        string     `db:"ident" json:"ident"`
	Token        string     `db:"token" json:"-"`
	Username     string     `db:"username" json:"username"`
	Expiry       *time.Time `db:"expiry" json:"expiry,omitempty"`
	Created      time.Time  `db:"created" json:"created"`
	LastModified time.Time  `db:"last_modified" json:"last_modified"`

	plaintext bool
	secret    string
}

// NewAuthToken returns a token whose Token field is still the plaintext secret.
func NewAuthToken(ident, secret, username string, expiry time.Time) *AuthToken {
	return &AuthToken{
		Ident:     ident,
		Token:     secret,
		Username:  username,
		Expiry:    &expiry,
		plaintext: true,
		secret:    secret,
	}
}

// IsPlaintext reports whether Token has not been hashed yet.
func (t *AuthToken) IsPlaintext() bool {
	return t.plaintext
}

// MarkHashed replaces the plaintext secret with its hash. The plaintext stays
// available through Secret for the lifetime of this value only.
func (t *AuthToken) MarkHashed(hash string) {
	t.Token = hash
	t.plaintext = false
}

// Secret returns the plaintext secret if this value generated it, or "" for
// records loaded from storage.
func (t *AuthToken) Secret() string {
	return t.secret
}

// IsExpired reports whether the token is unusable at now. A missing expiry
// counts as expired.
func (t *AuthToken) IsExpired(now time.Time) bool {
	return t.Expiry == nil || now.After(*t.Expiry)
}
