package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"famfinance/internal/models"
	"famfinance/internal/security"
)

func TestRegisterAndLogin(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	user, err := h.auth.Register(ctx, " Jordan@Example.com ", "correct-horse", "Jordan")
	require.NoError(t, err)
	assert.Equal(t, "jordan@example.com", user.Email)
	assert.True(t, user.HasPassword())

	sent := h.mailer.Sent()
	require.Len(t, sent, 1)
	assert.Equal(t, "Welcome to Family Finance!", sent[0].Subject)
	assert.NotEmpty(t, sent[0].Text)

	_, err = h.auth.Register(ctx, "JORDAN@example.com", "another-pass", "Jordan Two")
	assert.ErrorIs(t, err, ErrEmailTaken)

	session, err := h.auth.Login(ctx, "jordan@example.com", "correct-horse")
	require.NoError(t, err)
	assert.Equal(t, user.ID, session.User.ID)

	id, claims, err := h.auth.Authenticate(session.Token)
	require.NoError(t, err)
	assert.Equal(t, Identity{UserID: user.ID, Email: "jordan@example.com"}, id)
	assert.Equal(t, session.Claims.ID, claims.ID)

	_, err = h.auth.Login(ctx, "jordan@example.com", "wrong-password")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
	_, err = h.auth.Login(ctx, "nobody@example.com", "correct-horse")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestRegisterValidation(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	tests := []struct {
		name     string
		email    string
		password string
		userName string
	}{
		{"bad email", "jordan", "correct-horse", "Jordan"},
		{"short password", "jordan@example.com", "short", "Jordan"},
		{"missing name", "jordan@example.com", "correct-horse", " "},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := h.auth.Register(ctx, tt.email, tt.password, tt.userName)
			assert.ErrorIs(t, err, ErrValidation)
		})
	}
}

func TestRegisterSurvivesMailerFailure(t *testing.T) {
	h := newHarness(t)
	h.mailer.fail = true

	user, err := h.auth.Register(context.Background(), "quinn@example.com", "correct-horse", "Quinn")
	require.NoError(t, err)
	assert.NotZero(t, user.ID)
}

func TestAuthenticateRejectsBadTokens(t *testing.T) {
	h := newHarness(t)

	_, _, err := h.auth.Authenticate("not-a-token")
	assert.ErrorIs(t, err, ErrUnauthenticated)

	other := security.NewTokenIssuer("ffffffffffffffffffffffffffffffff", time.Hour)
	token, _, err := other.Issue(1, "x@example.com")
	require.NoError(t, err)
	_, _, err = h.auth.Authenticate(token)
	assert.ErrorIs(t, err, ErrUnauthenticated)
}

func TestPasswordResetFlow(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	user, err := h.auth.Register(ctx, "robin@example.com", "original-pass", "Robin")
	require.NoError(t, err)

	h.auth.RequestPasswordReset(ctx, "nobody@example.com")
	assert.Zero(t, h.count(t, "SELECT COUNT(*) FROM password_reset_tokens"))

	h.auth.RequestPasswordReset(ctx, "ROBIN@example.com")
	var token string
	require.NoError(t, h.db.QueryRowContext(ctx, "SELECT token FROM password_reset_tokens WHERE user_id = ?", user.ID).Scan(&token))

	jobs, err := h.jobs.ListDueJobs(ctx, time.Now().Add(time.Minute), 10)
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	assert.Contains(t, jobs[0].HTML, "/reset-password?token="+token)

	assert.ErrorIs(t, h.auth.ResetPassword(ctx, token, "short"), ErrValidation)
	assert.ErrorIs(t, h.auth.ResetPassword(ctx, "bogus", "brand-new-pass"), ErrInvalidResetToken)

	require.NoError(t, h.auth.ResetPassword(ctx, token, "brand-new-pass"))
	assert.ErrorIs(t, h.auth.ResetPassword(ctx, token, "another-new-pass"), ErrInvalidResetToken)

	_, err = h.auth.Login(ctx, "robin@example.com", "original-pass")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
	_, err = h.auth.Login(ctx, "robin@example.com", "brand-new-pass")
	require.NoError(t, err)
}

func TestPasswordResetTokenExpires(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	user, err := h.auth.Register(ctx, "sky@example.com", "original-pass", "Sky")
	require.NoError(t, err)

	h.auth.RequestPasswordReset(ctx, user.Email)
	var token string
	require.NoError(t, h.db.QueryRowContext(ctx, "SELECT token FROM password_reset_tokens WHERE user_id = ?", user.ID).Scan(&token))

	h.auth.now = fixedClock(time.Now().Add(2 * time.Hour))
	assert.ErrorIs(t, h.auth.ResetPassword(ctx, token, "brand-new-pass"), ErrInvalidResetToken)

	removed, err := h.auth.CleanupExpiredTokens(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), removed)
}

func TestOAuthLogin(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	created, err := h.auth.OAuthLogin(ctx, "google", "sub-1", "Taylor@Example.com", "Taylor")
	require.NoError(t, err)
	assert.Equal(t, "taylor@example.com", created.User.Email)
	assert.False(t, created.User.HasPassword())

	again, err := h.auth.OAuthLogin(ctx, "google", "sub-1", "taylor@example.com", "Taylor")
	require.NoError(t, err)
	assert.Equal(t, created.User.ID, again.User.ID)

	existing, err := h.auth.Register(ctx, "morgan@example.com", "correct-horse", "Morgan")
	require.NoError(t, err)
	linked, err := h.auth.OAuthLogin(ctx, "google", "sub-2", "morgan@example.com", "")
	require.NoError(t, err)
	assert.Equal(t, existing.ID, linked.User.ID)

	byIdentity, err := h.users.GetUserByOAuth(ctx, "google", "sub-2")
	require.NoError(t, err)
	require.NotNil(t, byIdentity)
	assert.Equal(t, existing.ID, byIdentity.ID)

	_, err = h.auth.OAuthLogin(ctx, "google", "", "x@example.com", "X")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	ac, err := h.access.ResolveContext(ctx, Identity{UserID: created.User.ID, Email: created.User.Email})
	require.NoError(t, err)
	assert.Equal(t, models.RoleAdmin, ac.Family.Role)
}
