// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package appcontext_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"codeberg.org/oliverandrich/go-admin-auth/internal/appcontext"
	"codeberg.org/oliverandrich/go-admin-auth/internal/models"
)

func TestContext_GetUser(t *testing.T) {
	user := &models.User{ID: "user-123", Username: "testuser"}
	ctx := &appcontext.Context{User: user}

	result := ctx.GetUser()

	assert.Equal(t, user, result)
	assert.Equal(t, "user-123", result.ID)
}

func TestContext_GetUser_Nil(t *testing.T) {
	ctx := &appcontext.Context{User: nil}

	assert.Nil(t, ctx.GetUser())
}

func TestContext_IsAuthenticated(t *testing.T) {
	assert.True(t, (&appcontext.Context{User: &models.User{ID: "1"}}).IsAuthenticated())
	assert.False(t, (&appcontext.Context{}).IsAuthenticated())
}

func TestWithUser(t *testing.T) {
	user := &models.User{ID: "user-123"}

	ctx := appcontext.WithUser(context.Background(), user)

	assert.Same(t, user, appcontext.UserFrom(ctx))
	assert.Nil(t, appcontext.UserFrom(context.Background()))
}
