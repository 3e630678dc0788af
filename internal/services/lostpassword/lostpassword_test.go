// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package lostpassword_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"codeberg.org/oliverandrich/go-admin-auth/internal/config"
	"codeberg.org/oliverandrich/go-admin-auth/internal/models"
	"codeberg.org/oliverandrich/go-admin-auth/internal/repository"
	"codeberg.org/oliverandrich/go-admin-auth/internal/services/lostpassword"
	"codeberg.org/oliverandrich/go-admin-auth/internal/testutil"
)

func newService(t *testing.T) (*lostpassword.Service, *repository.Repository) {
	t.Helper()
	_, repo := testutil.NewTestDB(t)
	return lostpassword.NewService(repo, config.DefaultAuthConfig()), repo
}

func TestCreate(t *testing.T) {
	svc, repo := newService(t)
	ctx := context.Background()
	before := time.Now()

	plaintext, token, err := svc.Create(ctx, "user-a")

	require.NoError(t, err)
	assert.Len(t, plaintext, lostpassword.TokenLength*2)
	assert.NotEqual(t, plaintext, token.Token)
	assert.Equal(t, lostpassword.HashToken(plaintext), token.Token)
	assert.WithinDuration(t, before.Add(2*time.Hour), token.Expiry, 5*time.Second)

	stored, err := repo.GetLostPasswordToken(ctx, token.Token)
	require.NoError(t, err)
	assert.Equal(t, "user-a", stored.UserID)

	_, err = repo.GetLostPasswordToken(ctx, plaintext)
	assert.ErrorIs(t, err, repository.ErrNotFound, "plaintext is never stored")
}

func TestSave_KeepsExplicitExpiry(t *testing.T) {
	svc, repo := newService(t)
	ctx := context.Background()
	expiry := time.Now().Add(10 * time.Minute).Truncate(time.Second)

	require.NoError(t, svc.Save(ctx, &models.LostPasswordToken{Token: "digest", UserID: "user-a", Expiry: expiry}))

	stored, err := repo.GetLostPasswordToken(ctx, "digest")
	require.NoError(t, err)
	assert.True(t, expiry.Equal(stored.Expiry))
}

func TestNewService_ConfiguredExpiry(t *testing.T) {
	_, repo := testutil.NewTestDB(t)
	cfg := config.DefaultAuthConfig()
	cfg.LostPasswordExpiry = 30 * time.Minute
	svc := lostpassword.NewService(repo, cfg)

	_, token, err := svc.Create(context.Background(), "user-a")

	require.NoError(t, err)
	assert.Equal(t, 30*time.Minute, svc.Expiry())
	assert.WithinDuration(t, time.Now().Add(30*time.Minute), token.Expiry, 5*time.Second)
}

func TestValidate(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()
	plaintext, _, err := svc.Create(ctx, "user-a")
	require.NoError(t, err)

	tests := []struct {
		name   string
		token  string
		userID string
		valid  bool
	}{
		{"matching", plaintext, "user-a", true},
		{"other user", plaintext, "user-b", false},
		{"unknown token", "deadbeef", "user-a", false},
		{"stored digest is not a credential", lostpassword.HashToken(plaintext), "user-a", false},
		{"empty token", "", "user-a", false},
		{"empty user", plaintext, "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			valid, err := svc.Validate(ctx, tt.token, tt.userID)
			require.NoError(t, err)
			assert.Equal(t, tt.valid, valid)
		})
	}

	// Failed attempts leave the token usable.
	valid, err := svc.Validate(ctx, plaintext, "user-a")
	require.NoError(t, err)
	assert.True(t, valid)
}

func TestValidate_Expired(t *testing.T) {
	svc, repo := newService(t)
	ctx := context.Background()
	plaintext := "expired-token"
	require.NoError(t, svc.Save(ctx, &models.LostPasswordToken{
		Token:  lostpassword.HashToken(plaintext),
		UserID: "user-a",
		Expiry: time.Now().Add(-time.Minute),
	}))

	valid, err := svc.Validate(ctx, plaintext, "user-a")

	require.NoError(t, err)
	assert.False(t, valid)
	_, err = repo.GetLostPasswordToken(ctx, lostpassword.HashToken(plaintext))
	assert.NoError(t, err)
}

func TestConsume(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()
	plaintext, _, err := svc.Create(ctx, "user-a")
	require.NoError(t, err)

	require.NoError(t, svc.Consume(ctx, plaintext))

	valid, err := svc.Validate(ctx, plaintext, "user-a")
	require.NoError(t, err)
	assert.False(t, valid)
}

func TestPurgeExpired(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()
	require.NoError(t, svc.Save(ctx, &models.LostPasswordToken{Token: "old", UserID: "u", Expiry: time.Now().Add(-time.Hour)}))
	live, _, err := svc.Create(ctx, "u")
	require.NoError(t, err)

	n, err := svc.PurgeExpired(ctx)

	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	valid, err := svc.Validate(ctx, live, "u")
	require.NoError(t, err)
	assert.True(t, valid)
}

func TestRevokeForUser(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()
	first, _, err := svc.Create(ctx, "user-a")
	require.NoError(t, err)
	second, _, err := svc.Create(ctx, "user-a")
	require.NoError(t, err)
	other, _, err := svc.Create(ctx, "user-b")
	require.NoError(t, err)

	require.NoError(t, svc.RevokeForUser(ctx, "user-a"))

	for _, tok := range []string{first, second} {
		valid, err := svc.Validate(ctx, tok, "user-a")
		require.NoError(t, err)
		assert.False(t, valid)
	}
	valid, err := svc.Validate(ctx, other, "user-b")
	require.NoError(t, err)
	assert.True(t, valid)
}
