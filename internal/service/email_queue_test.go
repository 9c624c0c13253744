package service

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"famfinance/internal/models"
)

var queueStart = time.Date(2024, time.June, 1, 12, 0, 0, 0, time.UTC)

func enqueue(t *testing.T, h *harness, to string) *models.EmailJob {
	t.Helper()
	job, err := h.queue.Enqueue(context.Background(), Message{To: to, Subject: "Hello", HTML: "<p>Hi</p>", Text: "Hi"})
	require.NoError(t, err)
	return job
}

func TestEmailQueueDelivers(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.queue.now = fixedClock(queueStart)
	pub := &fakePublisher{}
	h.queue.SetPublisher(pub)

	job := enqueue(t, h, "pat@example.com")
	assert.Equal(t, []int64{job.ID}, pub.ids)

	result, err := h.queue.Process(ctx)
	require.NoError(t, err)
	assert.Equal(t, models.QueueResult{Processed: 1, Sent: 1}, result)

	sent := h.mailer.Sent()
	require.Len(t, sent, 1)
	assert.Equal(t, "pat@example.com", sent[0].To)

	stored, err := h.jobs.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.EmailSent, stored.Status)
	assert.Equal(t, 1, stored.Attempts)
	require.NotNil(t, stored.SentAt)

	again, err := h.queue.Process(ctx)
	require.NoError(t, err)
	assert.Zero(t, again.Processed)
}

func TestEmailQueueRetriesThenFails(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.mailer.fail = true
	h.queue.now = fixedClock(queueStart)
	job := enqueue(t, h, "sam@example.com")

	steps := []struct {
		at       time.Duration
		want     models.QueueResult
		attempts int
		status   models.EmailStatus
	}{
		{0, models.QueueResult{Processed: 1, Retried: 1}, 1, models.EmailPending},
		{30 * time.Second, models.QueueResult{}, 1, models.EmailPending},
		{time.Minute, models.QueueResult{Processed: 1, Retried: 1}, 2, models.EmailPending},
		{2 * time.Minute, models.QueueResult{}, 2, models.EmailPending},
		{3 * time.Minute, models.QueueResult{Processed: 1, Failed: 1}, 3, models.EmailFailed},
		{time.Hour, models.QueueResult{}, 3, models.EmailFailed},
	}

	for _, step := range steps {
		h.queue.now = fixedClock(queueStart.Add(step.at))
		result, err := h.queue.Process(ctx)
		require.NoError(t, err)
		assert.Equal(t, step.want, result, "at +%v", step.at)

		stored, err := h.jobs.GetJob(ctx, job.ID)
		require.NoError(t, err)
		assert.Equal(t, step.attempts, stored.Attempts, "at +%v", step.at)
		assert.Equal(t, step.status, stored.Status, "at +%v", step.at)
		assert.Equal(t, "smtp unavailable", stored.LastError)
	}

	stats, err := h.queue.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats[models.EmailFailed])
}

func TestEmailQueueTruncatesLastError(t *testing.T) {
	tests := []struct {
		name    string
		message string
		wantLen int
	}{
		{"ascii", strings.Repeat("x", 900), 500},
		// 1 + 2*249 = 499 bytes; one more rune would end at byte 501
		{"multi-byte runes", "x" + strings.Repeat("é", 400), 499},
		{"invalid utf-8 from the relay", "bad \xff\xfe byte", len("bad \uFFFD byte")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			ctx := context.Background()
			h.queue.now = fixedClock(queueStart)
			h.queue.mailer = failingMailer{err: tt.message}
			job := enqueue(t, h, "lee@example.com")

			_, err := h.queue.Process(ctx)
			require.NoError(t, err)

			stored, err := h.jobs.GetJob(ctx, job.ID)
			require.NoError(t, err)
			assert.True(t, utf8.ValidString(stored.LastError))
			assert.Len(t, stored.LastError, tt.wantLen)
			assert.Equal(t, 1, stored.Attempts)
		})
	}
}

func TestTruncateError(t *testing.T) {
	assert.Equal(t, "short", truncateError("short", 10))
	assert.Equal(t, "ab", truncateError("abé", 3), "never splits a rune")
	assert.Equal(t, "abé", truncateError("abé", 4))
}

func TestEmailQueueProcessJob(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.queue.now = fixedClock(queueStart)
	job := enqueue(t, h, "kim@example.com")

	_, err := h.queue.ProcessJob(ctx, job.ID+1000)
	assert.ErrorIs(t, err, ErrNotFound)

	result, err := h.queue.ProcessJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Sent)

	result, err = h.queue.ProcessJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Zero(t, result.Processed, "a sent job is not delivered twice")
	assert.Len(t, h.mailer.Sent(), 1)
}

func TestEmailQueueLeaseBlocksSecondProcessor(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.queue.now = fixedClock(queueStart)
	job := enqueue(t, h, "ray@example.com")

	claimed, err := h.jobs.ClaimJob(ctx, job.ID, queueStart, queueStart.Add(emailJobLease))
	require.NoError(t, err)
	require.True(t, claimed)

	result, err := h.queue.Process(ctx)
	require.NoError(t, err)
	assert.Zero(t, result.Processed)

	h.queue.now = fixedClock(queueStart.Add(emailJobLease))
	result, err = h.queue.Process(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Sent, "an abandoned lease expires")
}

type failingMailer struct {
	err string
}

func (m failingMailer) Send(ctx context.Context, msg Message) error {
	return errors.New(m.err)
}
