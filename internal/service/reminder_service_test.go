package service

import (
	"bytes"
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"famfinance/internal/log"
	"famfinance/internal/models"
	"famfinance/internal/testutil"
)

var sweepNow = time.Date(2024, time.May, 10, 9, 0, 0, 0, time.UTC)

type reminderFixture struct {
	owner    *models.User
	member   *models.User
	familyID int64
}

func setupReminderFamily(t *testing.T, h *harness) reminderFixture {
	t.Helper()
	owner := testutil.CreateUser(t, h.db, "Owner")
	member := testutil.CreateUser(t, h.db, "Member")
	familyID := testutil.CreateFamily(t, h.db, "Household", owner)
	testutil.AddMember(t, h.db, familyID, member, models.RoleMember, time.Now().UTC())
	return reminderFixture{owner: owner, member: member, familyID: familyID}
}

func (f reminderFixture) create(t *testing.T, h *harness, title string, due time.Time, recurring bool) *models.Reminder {
	t.Helper()
	rem, err := h.reminder.CreateReminder(context.Background(), f.familyID, f.owner.ID, ReminderInput{
		Title:       title,
		Amount:      decimal.NewNullDecimal(decimal.RequireFromString("120.50")),
		DueDate:     due,
		IsRecurring: recurring,
	})
	require.NoError(t, err)
	return rem
}

func TestCreateReminderDefaults(t *testing.T) {
	h := newHarness(t)
	f := setupReminderFamily(t, h)

	rem := f.create(t, h, "  Water bill ", sweepNow.AddDate(0, 0, 10), false)
	assert.Equal(t, "Water bill", rem.Title)
	assert.Equal(t, models.PriorityMedium, rem.Priority)
	assert.Equal(t, 3, rem.NotifyDaysBefore)
	assert.True(t, rem.IsActive)
	assert.False(t, rem.IsCompleted)

	_, err := h.reminder.CreateReminder(context.Background(), f.familyID, f.owner.ID, ReminderInput{
		Title:    "Bad",
		DueDate:  sweepNow,
		Priority: "SOMEDAY",
	})
	assert.ErrorIs(t, err, ErrValidation)
}

func TestSweepNotifiesOneShotReminderOnce(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	f := setupReminderFamily(t, h)
	rem := f.create(t, h, "Electricity", sweepNow.AddDate(0, 0, 2), false)

	result, err := h.reminder.Sweep(ctx, sweepNow)
	require.NoError(t, err)
	assert.Equal(t, models.SweepResult{Checked: 1, Notified: 1, EmailsSent: 2}, result)

	sent := h.mailer.Sent()
	require.Len(t, sent, 2)
	recipients := []string{sent[0].To, sent[1].To}
	assert.ElementsMatch(t, []string{f.owner.Email, f.member.Email}, recipients)
	assert.Equal(t, "Reminder: Electricity", sent[0].Subject)
	assert.True(t, strings.Contains(sent[0].HTML, "Household"))

	got, err := h.reminder.GetReminder(ctx, f.familyID, rem.ID)
	require.NoError(t, err)
	assert.True(t, got.IsCompleted)
	require.NotNil(t, got.LastNotified)
	assert.True(t, sweepNow.Equal(*got.LastNotified))

	again, err := h.reminder.Sweep(ctx, sweepNow.Add(time.Hour))
	require.NoError(t, err)
	assert.Zero(t, again.Checked)
	assert.Len(t, h.mailer.Sent(), 2)

	later, err := h.reminder.Sweep(ctx, sweepNow.Add(48*time.Hour))
	require.NoError(t, err)
	assert.Zero(t, later.Checked, "completed reminders are never selected")
}

func TestSweepRecurringReminderRespectsCooldown(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	f := setupReminderFamily(t, h)
	rem := f.create(t, h, "Rent", sweepNow.AddDate(0, 0, 1), true)

	first, err := h.reminder.Sweep(ctx, sweepNow)
	require.NoError(t, err)
	assert.Equal(t, 1, first.Notified)

	within, err := h.reminder.Sweep(ctx, sweepNow.Add(23*time.Hour))
	require.NoError(t, err)
	assert.Zero(t, within.Notified)

	after, err := h.reminder.Sweep(ctx, sweepNow.Add(25*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 1, after.Notified)
	assert.Len(t, h.mailer.Sent(), 4)

	got, err := h.reminder.GetReminder(ctx, f.familyID, rem.ID)
	require.NoError(t, err)
	assert.False(t, got.IsCompleted, "recurring reminders stay open after notifying")
}

func TestSweepSkipsRemindersOutsideWindow(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	f := setupReminderFamily(t, h)
	f.create(t, h, "Insurance", sweepNow.AddDate(0, 0, 5), false)

	completed := f.create(t, h, "Phone", sweepNow.AddDate(0, 0, 1), false)
	_, err := h.reminder.CompleteReminder(ctx, f.familyID, completed.ID)
	require.NoError(t, err)

	result, err := h.reminder.Sweep(ctx, sweepNow)
	require.NoError(t, err)
	assert.Equal(t, models.SweepResult{}, result)
	assert.Empty(t, h.mailer.Sent())
}

func TestSweepNotifiesOverdueReminders(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	f := setupReminderFamily(t, h)
	f.create(t, h, "Car tax", sweepNow.AddDate(0, 0, -2), false)

	result, err := h.reminder.Sweep(ctx, sweepNow)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Notified)

	sent := h.mailer.Sent()
	require.NotEmpty(t, sent)
	assert.Equal(t, "Overdue: Car tax", sent[0].Subject)
}

func TestSweepCountsSendFailures(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	f := setupReminderFamily(t, h)
	h.mailer.failTo[f.member.Email] = true
	rem := f.create(t, h, "Gas", sweepNow.AddDate(0, 0, 1), false)

	result, err := h.reminder.Sweep(ctx, sweepNow)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Notified)
	assert.Equal(t, 1, result.EmailsSent)
	assert.Equal(t, 1, result.Errors)

	got, err := h.reminder.GetReminder(ctx, f.familyID, rem.ID)
	require.NoError(t, err)
	assert.True(t, got.IsCompleted, "a failed send does not roll back the claim")
}

func TestSweepLogsFamilyLookupFailure(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	var buf bytes.Buffer
	h.reminder = NewReminderService(h.reminders, h.families, h.mailer, h.composer, 50,
		log.New(log.Config{Output: &buf, Format: "json"}))
	f := setupReminderFamily(t, h)
	f.create(t, h, "Insurance", sweepNow.AddDate(0, 0, 1), false)

	// Members are still listed; only the family name lookup fails
	_, err := h.db.ExecContext(ctx, "ALTER TABLE families RENAME TO families_archived")
	require.NoError(t, err)

	result, err := h.reminder.Sweep(ctx, sweepNow)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Notified)
	assert.Equal(t, 2, result.EmailsSent, "the lookup failure does not stop delivery")
	assert.Contains(t, buf.String(), "failed to load family name")
	assert.Contains(t, buf.String(), `"level":"WARN"`)
}

func TestConcurrentSweepsNotifyOnce(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	f := setupReminderFamily(t, h)
	for _, title := range []string{"Water", "Broadband", "Council tax"} {
		f.create(t, h, title, sweepNow.AddDate(0, 0, 1), true)
	}

	const sweepers = 4
	results := make([]models.SweepResult, sweepers)
	var wg sync.WaitGroup
	for i := 0; i < sweepers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			r, err := h.reminder.Sweep(ctx, sweepNow)
			assert.NoError(t, err)
			results[i] = r
		}(i)
	}
	wg.Wait()

	notified := 0
	for _, r := range results {
		notified += r.Notified
	}
	assert.Equal(t, 3, notified)
	assert.Len(t, h.mailer.Sent(), 6)
}

func TestReactivateReminder(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	f := setupReminderFamily(t, h)
	rem := f.create(t, h, "Nursery", sweepNow.AddDate(0, 0, 1), false)

	_, err := h.reminder.Sweep(ctx, sweepNow)
	require.NoError(t, err)

	reopened, err := h.reminder.ReactivateReminder(ctx, f.familyID, rem.ID)
	require.NoError(t, err)
	assert.False(t, reopened.IsCompleted)
	assert.Nil(t, reopened.LastNotified)

	result, err := h.reminder.Sweep(ctx, sweepNow.Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 1, result.Notified)

	_, err = h.reminder.ReactivateReminder(ctx, f.familyID+100, rem.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestListUpcoming(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	f := setupReminderFamily(t, h)
	h.reminder.now = fixedClock(sweepNow)

	f.create(t, h, "Soon", sweepNow.AddDate(0, 0, 3), false)
	f.create(t, h, "Overdue", sweepNow.AddDate(0, 0, -1), false)
	f.create(t, h, "Later", sweepNow.AddDate(0, 0, 30), false)

	upcoming, err := h.reminder.ListUpcoming(ctx, f.familyID, 7)
	require.NoError(t, err)
	require.Len(t, upcoming, 2)
	assert.Equal(t, "Overdue", upcoming[0].Title)
	assert.Equal(t, "Soon", upcoming[1].Title)
}
