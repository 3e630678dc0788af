// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package auth_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"codeberg.org/oliverandrich/go-admin-auth/internal/config"
	"codeberg.org/oliverandrich/go-admin-auth/internal/repository"
	"codeberg.org/oliverandrich/go-admin-auth/internal/services/auth"
	"codeberg.org/oliverandrich/go-admin-auth/internal/testutil"
)

func newService(t *testing.T) (*auth.Service, *repository.Repository) {
	t.Helper()
	_, repo := testutil.NewTestDB(t)
	cfg := config.DefaultAuthConfig()
	cfg.BcryptCost = bcrypt.MinCost
	return auth.NewService(repo, cfg), repo
}

func TestCreateUser(t *testing.T) {
	svc, repo := newService(t)
	ctx := context.Background()

	user, err := svc.CreateUser(ctx, auth.CreateUserParams{
		Username: "Alice",
		Email:    "alice@example.com",
		Password: "sturdy-lantern-meadow",
	})

	require.NoError(t, err)
	assert.Equal(t, "alice", user.Username)
	assert.NotEqual(t, "sturdy-lantern-meadow", user.PasswordHash)

	stored, err := repo.GetUserByUsername(ctx, "alice")
	require.NoError(t, err)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(stored.PasswordHash), []byte("sturdy-lantern-meadow")))
}

func TestCreateUser_Rejections(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()
	_, err := svc.CreateUser(ctx, auth.CreateUserParams{Username: "alice", Email: "alice@example.com", Password: "sturdy-lantern-meadow"})
	require.NoError(t, err)

	tests := []struct {
		name   string
		params auth.CreateUserParams
		want   error
	}{
		{"empty username", auth.CreateUserParams{Email: "x@example.com", Password: "sturdy-lantern-meadow"}, auth.ErrInvalidUsername},
		{"bad email", auth.CreateUserParams{Username: "bob", Email: "not-an-email", Password: "sturdy-lantern-meadow"}, auth.ErrInvalidEmail},
		{"weak password", auth.CreateUserParams{Username: "bob", Email: "bob@example.com", Password: "short"}, auth.ErrWeakPassword},
		{"duplicate username", auth.CreateUserParams{Username: "ALICE", Email: "other@example.com", Password: "sturdy-lantern-meadow"}, auth.ErrUserExists},
		{"duplicate email", auth.CreateUserParams{Username: "bob", Email: "alice@example.com", Password: "sturdy-lantern-meadow"}, auth.ErrUserExists},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.CreateUser(ctx, tt.params)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestLogin(t *testing.T) {
	svc, repo := newService(t)
	ctx := context.Background()
	created := testutil.NewTestUser(t, repo, "alice")

	t.Run("by username", func(t *testing.T) {
		user, err := svc.Login(ctx, "alice", testutil.TestPassword)
		require.NoError(t, err)
		assert.Equal(t, created.ID, user.ID)
	})

	t.Run("by email", func(t *testing.T) {
		user, err := svc.Login(ctx, "alice@example.com", testutil.TestPassword)
		require.NoError(t, err)
		assert.Equal(t, created.ID, user.ID)
	})

	t.Run("wrong password", func(t *testing.T) {
		_, err := svc.Login(ctx, "alice", "wrong-password")
		assert.ErrorIs(t, err, auth.ErrInvalidCredentials)
	})

	t.Run("unknown user", func(t *testing.T) {
		_, err := svc.Login(ctx, "nobody", testutil.TestPassword)
		assert.ErrorIs(t, err, auth.ErrInvalidCredentials)
	})

	stored, err := repo.GetUserByID(ctx, created.ID)
	require.NoError(t, err)
	assert.NotNil(t, stored.LastLoginAt)
}

func TestFindUser(t *testing.T) {
	svc, repo := newService(t)
	ctx := context.Background()
	alice := testutil.NewTestUser(t, repo, "alice")

	user, err := svc.FindUser(ctx, " alice ")
	require.NoError(t, err)
	assert.Equal(t, alice.ID, user.ID)

	user, err = svc.FindUser(ctx, "alice@example.com")
	require.NoError(t, err)
	assert.Equal(t, alice.ID, user.ID)

	_, err = svc.FindUser(ctx, "")
	assert.ErrorIs(t, err, repository.ErrNotFound)

	_, err = svc.FindUser(ctx, "nobody@example.com")
	assert.ErrorIs(t, err, repository.ErrNotFound)
}
