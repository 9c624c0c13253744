package service

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"famfinance/internal/log"
	"famfinance/internal/models"
)

type stubSES struct {
	input *sesv2.SendEmailInput
	err   error
}

func (s *stubSES) SendEmail(ctx context.Context, params *sesv2.SendEmailInput, optFns ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error) {
	s.input = params
	if s.err != nil {
		return nil, s.err
	}
	return &sesv2.SendEmailOutput{MessageId: aws.String("msg-1")}, nil
}

func TestSESMailerSend(t *testing.T) {
	stub := &stubSES{}
	m := &SESMailer{client: stub, fromEmail: "noreply@example.com", fromName: "Family Finance", enabled: true, logger: log.Discard()}

	err := m.Send(context.Background(), Message{To: "a@example.com", Subject: "Hi", HTML: "<p>Hi</p>", Text: "Hi"})
	require.NoError(t, err)
	require.NotNil(t, stub.input)
	assert.Equal(t, "Family Finance <noreply@example.com>", *stub.input.FromEmailAddress)
	assert.Equal(t, []string{"a@example.com"}, stub.input.Destination.ToAddresses)
	assert.Equal(t, "Hi", *stub.input.Content.Simple.Body.Text.Data)

	stub.err = errors.New("throttled")
	err = m.Send(context.Background(), Message{To: "a@example.com", Subject: "Hi", HTML: "<p>Hi</p>"})
	assert.ErrorIs(t, err, ErrUpstream)
}

func TestSESMailerDisabled(t *testing.T) {
	m, err := NewSESMailer(context.Background(), "us-east-1", "", "", false, log.Discard())
	require.NoError(t, err)
	assert.False(t, m.IsEnabled())
	assert.NoError(t, m.Send(context.Background(), Message{To: "a@example.com", Subject: "Hi"}))
}

func TestEmailComposer(t *testing.T) {
	c := NewEmailComposer("https://finance.example.com/")
	user := &models.User{Email: "dee@example.com", Name: "Dee <script>"}

	welcome, err := c.Welcome(user)
	require.NoError(t, err)
	assert.Equal(t, "dee@example.com", welcome.To)
	assert.Contains(t, welcome.HTML, "https://finance.example.com/login")
	assert.NotContains(t, welcome.HTML, "<script>")
	assert.Contains(t, welcome.Text, "Get Started")

	reset, err := c.PasswordReset(user, "tok en", time.Hour)
	require.NoError(t, err)
	assert.Contains(t, reset.HTML, "/reset-password?token=tok+en")
	assert.Contains(t, reset.HTML, "1h0m0s")

	inv := &models.FamilyInvitation{Email: "eve@example.com", Role: models.RoleViewer, Token: "abc", ExpiresAt: time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)}
	invitation, err := c.Invitation(inv, "The Smiths", "Dee")
	require.NoError(t, err)
	assert.Equal(t, "Dee invited you to The Smiths", invitation.Subject)
	assert.Contains(t, invitation.HTML, "as a viewer")
	assert.Contains(t, invitation.HTML, "May 1, 2024")
}

func TestReminderEmailDueText(t *testing.T) {
	c := NewEmailComposer("https://finance.example.com")
	now := time.Date(2024, 5, 10, 9, 0, 0, 0, time.UTC)
	member := models.MemberWithUser{Name: "Dee", Email: "dee@example.com"}

	tests := []struct {
		name    string
		due     time.Time
		subject string
		dueIn   string
	}{
		{"in three days", now.AddDate(0, 0, 3), "Reminder: Rent", "in 3 days"},
		{"tomorrow", now.Add(20 * time.Hour), "Reminder: Rent", "due tomorrow"},
		{"today", now, "Reminder: Rent", "due today"},
		{"overdue", now.AddDate(0, 0, -2), "Overdue: Rent", "2 days overdue"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rem := &models.Reminder{
				Title:    "Rent",
				DueDate:  tt.due,
				Priority: models.PriorityHigh,
				Amount:   decimal.NewNullDecimal(decimal.RequireFromString("950")),
			}
			msg, err := c.Reminder(rem, member, "Household", now)
			require.NoError(t, err)
			assert.Equal(t, tt.subject, msg.Subject)
			assert.Contains(t, msg.HTML, tt.dueIn)
			assert.Contains(t, msg.HTML, "950.00")
			assert.True(t, strings.Contains(msg.Text, "Rent"))
		})
	}
}
