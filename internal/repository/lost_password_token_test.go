// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package repository_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"codeberg.org/oliverandrich/go-admin-auth/internal/models"
	"codeberg.org/oliverandrich/go-admin-auth/internal/repository"
	"codeberg.org/oliverandrich/go-admin-auth/internal/testutil"
)

func TestSaveLostPasswordToken_RoundTrip(t *testing.T) {
	_, repo := testutil.NewTestDB(t)
	ctx := context.Background()
	expiry := time.Now().Add(2 * time.Hour).Truncate(time.Second)

	require.NoError(t, repo.SaveLostPasswordToken(ctx, &models.LostPasswordToken{
		Token: "digest", UserID: "user-1", Expiry: expiry,
	}))

	loaded, err := repo.GetLostPasswordToken(ctx, "digest")
	require.NoError(t, err)
	assert.Equal(t, "user-1", loaded.UserID)
	assert.True(t, expiry.Equal(loaded.Expiry))
}

func TestFindValidLostPasswordToken(t *testing.T) {
	_, repo := testutil.NewTestDB(t)
	ctx := context.Background()
	now := time.Now()

	require.NoError(t, repo.SaveLostPasswordToken(ctx, &models.LostPasswordToken{
		Token: "valid", UserID: "user-a", Expiry: now.Add(time.Hour),
	}))
	require.NoError(t, repo.SaveLostPasswordToken(ctx, &models.LostPasswordToken{
		Token: "expired", UserID: "user-a", Expiry: now.Add(-time.Minute),
	}))

	tests := []struct {
		name   string
		token  string
		userID string
		found  bool
	}{
		{"matching token and user", "valid", "user-a", true},
		{"other user", "valid", "user-b", false},
		{"expired", "expired", "user-a", false},
		{"unknown token", "unknown", "user-a", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := repo.FindValidLostPasswordToken(ctx, tt.token, tt.userID, now)
			if tt.found {
				require.NoError(t, err)
				assert.Equal(t, tt.token, got.Token)
			} else {
				assert.ErrorIs(t, err, repository.ErrNotFound)
			}
		})
	}
}

func TestDeleteLostPasswordToken(t *testing.T) {
	_, repo := testutil.NewTestDB(t)
	ctx := context.Background()
	require.NoError(t, repo.SaveLostPasswordToken(ctx, &models.LostPasswordToken{
		Token: "t1", UserID: "user-a", Expiry: time.Now().Add(time.Hour),
	}))

	require.NoError(t, repo.DeleteLostPasswordToken(ctx, "t1"))

	_, err := repo.GetLostPasswordToken(ctx, "t1")
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestDeleteLostPasswordTokensByUser(t *testing.T) {
	_, repo := testutil.NewTestDB(t)
	ctx := context.Background()
	expiry := time.Now().Add(time.Hour)
	for _, tok := range []string{"a1", "a2"} {
		require.NoError(t, repo.SaveLostPasswordToken(ctx, &models.LostPasswordToken{Token: tok, UserID: "user-a", Expiry: expiry}))
	}
	require.NoError(t, repo.SaveLostPasswordToken(ctx, &models.LostPasswordToken{Token: "b1", UserID: "user-b", Expiry: expiry}))

	require.NoError(t, repo.DeleteLostPasswordTokensByUser(ctx, "user-a"))

	_, err := repo.GetLostPasswordToken(ctx, "a1")
	assert.ErrorIs(t, err, repository.ErrNotFound)
	_, err = repo.GetLostPasswordToken(ctx, "b1")
	assert.NoError(t, err)
}

func TestDeleteExpiredLostPasswordTokens(t *testing.T) {
	_, repo := testutil.NewTestDB(t)
	ctx := context.Background()
	now := time.Now()
	require.NoError(t, repo.SaveLostPasswordToken(ctx, &models.LostPasswordToken{Token: "old", UserID: "u", Expiry: now.Add(-time.Hour)}))
	require.NoError(t, repo.SaveLostPasswordToken(ctx, &models.LostPasswordToken{Token: "new", UserID: "u", Expiry: now.Add(time.Hour)}))

	n, err := repo.DeleteExpiredLostPasswordTokens(ctx, now)

	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	_, err = repo.GetLostPasswordToken(ctx, "new")
	assert.NoError(t, err)
}
