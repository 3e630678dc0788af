// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package passwordreset_test

import (
	"context"
	"errors"
	"net/url"
	"regexp"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"codeberg.org/oliverandrich/go-admin-auth/internal/config"
	"codeberg.org/oliverandrich/go-admin-auth/internal/models"
	"codeberg.org/oliverandrich/go-admin-auth/internal/repository"
	"codeberg.org/oliverandrich/go-admin-auth/internal/services/auth"
	"codeberg.org/oliverandrich/go-admin-auth/internal/services/authtoken"
	"codeberg.org/oliverandrich/go-admin-auth/internal/services/captcha"
	"codeberg.org/oliverandrich/go-admin-auth/internal/services/email"
	"codeberg.org/oliverandrich/go-admin-auth/internal/services/lostpassword"
	"codeberg.org/oliverandrich/go-admin-auth/internal/services/passwordreset"
	"codeberg.org/oliverandrich/go-admin-auth/internal/testutil"
)

const newPassword = "violet-lantern-orbit-93"

type fixture struct {
	svc        *passwordreset.Service
	repo       *repository.Repository
	tokens     *lostpassword.Service
	authTokens *authtoken.Service
	transport  *testutil.RecordingTransport
}

func newFixture(t *testing.T, verifier captcha.Verifier) *fixture {
	t.Helper()
	_, repo := testutil.NewTestDB(t)
	cfg := config.DefaultAuthConfig()
	cfg.BcryptCost = bcrypt.MinCost

	f := &fixture{
		repo:       repo,
		tokens:     lostpassword.NewService(repo, cfg),
		authTokens: authtoken.NewService(repo, cfg),
		transport:  &testutil.RecordingTransport{},
	}
	f.svc = passwordreset.NewService(
		repo,
		auth.NewService(repo, cfg),
		f.tokens,
		f.authTokens,
		verifier,
		email.NewService(f.transport),
		"https://admin.example.com/",
	)
	return f
}

func (f *fixture) issueToken(t *testing.T, user *models.User) string {
	t.Helper()
	plaintext, _, err := f.tokens.Create(context.Background(), user.ID)
	require.NoError(t, err)
	return plaintext
}

func (f *fixture) rememberMe(t *testing.T, username string) {
	t.Helper()
	token, err := f.authTokens.Generate(username)
	require.NoError(t, err)
	require.NoError(t, f.authTokens.Save(context.Background(), token))
}

func validParams(token, username string) passwordreset.ResetParams {
	return passwordreset.ResetParams{
		Token:           token,
		Username:        username,
		Password:        newPassword,
		PasswordConfirm: newPassword,
		CaptchaResponse: "captcha-ok",
		RemoteIP:        "203.0.113.7",
	}
}

func passwordMatches(t *testing.T, repo *repository.Repository, id, password string) bool {
	t.Helper()
	user, err := repo.GetUserByID(context.Background(), id)
	require.NoError(t, err)
	return bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)) == nil
}

func TestReset_Success(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	user := testutil.NewTestUser(t, f.repo, "alice")
	token := f.issueToken(t, user)
	other := f.issueToken(t, user)
	f.rememberMe(t, "alice")
	f.rememberMe(t, "alice")

	state, err := f.svc.Reset(ctx, validParams(token, "alice"))

	require.NoError(t, err)
	assert.Equal(t, passwordreset.PasswordUpdated, state)
	assert.True(t, passwordMatches(t, f.repo, user.ID, newPassword))

	valid, err := f.tokens.Validate(ctx, token, user.ID)
	require.NoError(t, err)
	assert.False(t, valid, "used token is consumed")
	valid, err = f.tokens.Validate(ctx, other, user.ID)
	require.NoError(t, err)
	assert.False(t, valid, "outstanding tokens are revoked")

	count, err := f.repo.CountAuthTokensByUsername(ctx, "alice")
	require.NoError(t, err)
	assert.Zero(t, count)

	sent := f.transport.Sent()
	require.Len(t, sent, 1)
	assert.Equal(t, "alice@example.com", sent[0].To)
	assert.Equal(t, "Your password was changed", sent[0].Subject)
}

func TestReset_MatchesByEmail(t *testing.T) {
	f := newFixture(t, nil)
	user := testutil.NewTestUser(t, f.repo, "alice")
	token := f.issueToken(t, user)

	state, err := f.svc.Reset(context.Background(), validParams(token, "Alice@Example.com"))

	require.NoError(t, err)
	assert.Equal(t, passwordreset.PasswordUpdated, state)
}

func TestReset_TokenIsSingleUse(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	user := testutil.NewTestUser(t, f.repo, "alice")
	token := f.issueToken(t, user)

	_, err := f.svc.Reset(ctx, validParams(token, "alice"))
	require.NoError(t, err)

	params := validParams(token, "alice")
	params.Password = "another-fresh-passphrase-7"
	params.PasswordConfirm = params.Password
	state, err := f.svc.Reset(ctx, params)

	assert.ErrorIs(t, err, passwordreset.ErrInvalidToken)
	assert.Equal(t, passwordreset.Failed, state)
	assert.True(t, passwordMatches(t, f.repo, user.ID, newPassword))
}

func TestReset_TokenBoundToUser(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	alice := testutil.NewTestUser(t, f.repo, "alice")
	bob := testutil.NewTestUser(t, f.repo, "bob")
	token := f.issueToken(t, alice)

	_, err := f.svc.Reset(ctx, validParams(token, "bob"))

	assert.ErrorIs(t, err, passwordreset.ErrInvalidToken)
	assert.True(t, passwordMatches(t, f.repo, bob.ID, testutil.TestPassword))

	valid, err := f.tokens.Validate(ctx, token, alice.ID)
	require.NoError(t, err)
	assert.True(t, valid, "a failed attempt leaves the token usable by its owner")
}

func TestReset_ExpiredToken(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	user := testutil.NewTestUser(t, f.repo, "alice")
	require.NoError(t, f.tokens.Save(ctx, &models.LostPasswordToken{
		Token:  lostpassword.HashToken("stale"),
		UserID: user.ID,
		Expiry: time.Now().Add(-time.Minute),
	}))

	_, err := f.svc.Reset(ctx, validParams("stale", "alice"))

	assert.ErrorIs(t, err, passwordreset.ErrInvalidToken)
	assert.True(t, passwordMatches(t, f.repo, user.ID, testutil.TestPassword))
}

func TestReset_RejectsInput(t *testing.T) {
	tests := []struct {
		name   string
		modify func(p *passwordreset.ResetParams)
		want   error
	}{
		{"missing token", func(p *passwordreset.ResetParams) { p.Token = "" }, passwordreset.ErrMissingToken},
		{"missing username", func(p *passwordreset.ResetParams) { p.Username = "  " }, passwordreset.ErrMissingUsername},
		{"missing password", func(p *passwordreset.ResetParams) {
			p.Password = ""
			p.PasswordConfirm = ""
		}, passwordreset.ErrMissingPassword},
		{"mismatch", func(p *passwordreset.ResetParams) { p.PasswordConfirm = "something-else-entirely" }, passwordreset.ErrPasswordMismatch},
		{"missing captcha", func(p *passwordreset.ResetParams) { p.CaptchaResponse = "" }, passwordreset.ErrMissingCaptcha},
		{"unknown user", func(p *passwordreset.ResetParams) { p.Username = "mallory" }, passwordreset.ErrUnknownUser},
		{"wrong token", func(p *passwordreset.ResetParams) { p.Token = "not-the-token" }, passwordreset.ErrInvalidToken},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, captcha.Func(func(context.Context, string, string) error { return nil }))
			user := testutil.NewTestUser(t, f.repo, "alice")
			params := validParams(f.issueToken(t, user), "alice")
			tt.modify(&params)

			state, err := f.svc.Reset(context.Background(), params)

			require.Error(t, err)
			assert.ErrorIs(t, err, tt.want)
			assert.ErrorIs(t, err, passwordreset.ErrRejected)
			assert.Equal(t, passwordreset.Failed, state)
			assert.True(t, passwordMatches(t, f.repo, user.ID, testutil.TestPassword))
			assert.Empty(t, f.transport.Sent())
		})
	}
}

func TestReset_CaptchaOptionalWhenDisabled(t *testing.T) {
	f := newFixture(t, captcha.Disabled{})
	user := testutil.NewTestUser(t, f.repo, "alice")
	params := validParams(f.issueToken(t, user), "alice")
	params.CaptchaResponse = ""

	state, err := f.svc.Reset(context.Background(), params)

	require.NoError(t, err)
	assert.Equal(t, passwordreset.PasswordUpdated, state)
}

func TestReset_CaptchaFailure(t *testing.T) {
	var calls int
	f := newFixture(t, captcha.Func(func(_ context.Context, response, remoteIP string) error {
		calls++
		assert.Equal(t, "captcha-ok", response)
		assert.Equal(t, "203.0.113.7", remoteIP)
		return captcha.ErrFailed
	}))
	ctx := context.Background()
	user := testutil.NewTestUser(t, f.repo, "alice")
	token := f.issueToken(t, user)

	_, err := f.svc.Reset(ctx, validParams(token, "alice"))

	assert.ErrorIs(t, err, passwordreset.ErrCaptchaFailed)
	assert.ErrorIs(t, err, captcha.ErrFailed)
	assert.Equal(t, 1, calls)
	assert.True(t, passwordMatches(t, f.repo, user.ID, testutil.TestPassword))

	valid, err := f.tokens.Validate(ctx, token, user.ID)
	require.NoError(t, err)
	assert.True(t, valid)
}

func TestReset_CaptchaNotCheckedBeforeToken(t *testing.T) {
	var calls int
	f := newFixture(t, captcha.Func(func(context.Context, string, string) error {
		calls++
		return nil
	}))
	testutil.NewTestUser(t, f.repo, "alice")

	_, err := f.svc.Reset(context.Background(), validParams("bogus", "alice"))

	assert.ErrorIs(t, err, passwordreset.ErrInvalidToken)
	assert.Zero(t, calls)
}

func TestReset_CaptchaServiceError(t *testing.T) {
	f := newFixture(t, captcha.Func(func(context.Context, string, string) error {
		return errors.New("connection refused")
	}))
	user := testutil.NewTestUser(t, f.repo, "alice")

	_, err := f.svc.Reset(context.Background(), validParams(f.issueToken(t, user), "alice"))

	require.Error(t, err)
	assert.NotErrorIs(t, err, passwordreset.ErrRejected)
}

func TestReset_PasswordPolicy(t *testing.T) {
	f := newFixture(t, nil)
	user := testutil.NewTestUser(t, f.repo, "alice")
	params := validParams(f.issueToken(t, user), "alice")
	params.Password = "short"
	params.PasswordConfirm = "short"

	_, err := f.svc.Reset(context.Background(), params)

	assert.ErrorIs(t, err, passwordreset.ErrRejected)
	assert.ErrorIs(t, err, auth.ErrWeakPassword)
	var policy *auth.PolicyError
	require.ErrorAs(t, err, &policy)
	assert.Contains(t, policy.Codes(), auth.CodeTooShort)
}

func TestReset_PasswordPolicySameForUnknownUser(t *testing.T) {
	f := newFixture(t, nil)
	params := validParams("whatever", "nobody")
	params.Password = "short"
	params.PasswordConfirm = "short"

	_, err := f.svc.Reset(context.Background(), params)

	assert.ErrorIs(t, err, auth.ErrWeakPassword)
	assert.NotErrorIs(t, err, passwordreset.ErrUnknownUser)
}

func TestReset_NotificationFailureIsIgnored(t *testing.T) {
	f := newFixture(t, nil)
	f.transport.Err = errors.New("smtp down")
	user := testutil.NewTestUser(t, f.repo, "alice")

	state, err := f.svc.Reset(context.Background(), validParams(f.issueToken(t, user), "alice"))

	require.NoError(t, err)
	assert.Equal(t, passwordreset.PasswordUpdated, state)
	assert.True(t, passwordMatches(t, f.repo, user.ID, newPassword))
}

var linkPattern = regexp.MustCompile(`https://\S+`)

func TestRequestReset_SendsLink(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	user := testutil.NewTestUser(t, f.repo, "alice")

	err := f.svc.RequestReset(ctx, passwordreset.RequestParams{Username: "alice@example.com", RemoteIP: "203.0.113.7"})
	require.NoError(t, err)

	sent := f.transport.Sent()
	require.Len(t, sent, 1)
	assert.Equal(t, "alice@example.com", sent[0].To)

	raw := linkPattern.FindString(sent[0].Body)
	require.NotEmpty(t, raw)
	link, err := url.Parse(raw)
	require.NoError(t, err)
	assert.Equal(t, "admin.example.com", link.Host)
	assert.Equal(t, "/auth/reset-password", link.Path)
	assert.Equal(t, "alice", link.Query().Get("username"))

	valid, err := f.tokens.Validate(ctx, link.Query().Get("token"), user.ID)
	require.NoError(t, err)
	assert.True(t, valid)
}

func TestRequestReset_LinkCompletesReset(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	user := testutil.NewTestUser(t, f.repo, "alice")

	require.NoError(t, f.svc.RequestReset(ctx, passwordreset.RequestParams{Username: "alice"}))
	link, err := url.Parse(linkPattern.FindString(f.transport.Sent()[0].Body))
	require.NoError(t, err)

	_, err = f.svc.Reset(ctx, validParams(link.Query().Get("token"), link.Query().Get("username")))

	require.NoError(t, err)
	assert.True(t, passwordMatches(t, f.repo, user.ID, newPassword))
}

func TestRequestReset_UnknownUser(t *testing.T) {
	f := newFixture(t, nil)

	err := f.svc.RequestReset(context.Background(), passwordreset.RequestParams{Username: "nobody"})

	require.NoError(t, err)
	assert.Empty(t, f.transport.Sent())
}

func TestRequestReset_MissingUsername(t *testing.T) {
	f := newFixture(t, nil)

	err := f.svc.RequestReset(context.Background(), passwordreset.RequestParams{Username: " "})

	assert.ErrorIs(t, err, passwordreset.ErrMissingUsername)
}

func TestRequestReset_CaptchaFailure(t *testing.T) {
	f := newFixture(t, captcha.Func(func(context.Context, string, string) error {
		return captcha.ErrMissingResponse
	}))
	testutil.NewTestUser(t, f.repo, "alice")

	err := f.svc.RequestReset(context.Background(), passwordreset.RequestParams{Username: "alice"})

	assert.ErrorIs(t, err, passwordreset.ErrCaptchaFailed)
	assert.Empty(t, f.transport.Sent())
}

func TestRequestReset_MailFailure(t *testing.T) {
	f := newFixture(t, nil)
	f.transport.Err = errors.New("smtp down")
	testutil.NewTestUser(t, f.repo, "alice")

	err := f.svc.RequestReset(context.Background(), passwordreset.RequestParams{Username: "alice"})

	require.Error(t, err)
	assert.NotErrorIs(t, err, passwordreset.ErrRejected)
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "await_username", passwordreset.AwaitUsername.String())
	assert.Equal(t, "await_token_validation", passwordreset.AwaitTokenValidation.String())
	assert.Equal(t, "await_captcha", passwordreset.AwaitCaptcha.String())
	assert.Equal(t, "password_updated", passwordreset.PasswordUpdated.String())
	assert.Equal(t, "failed", passwordreset.Failed.String())
}
