package service

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"famfinance/internal/log"
	"famfinance/internal/metrics"
	"famfinance/internal/models"
	"famfinance/internal/repository"
)

const (
	defaultQueueBatchSize = 20
	defaultMaxAttempts    = 3
	defaultRetryBackoff   = time.Minute
	emailJobLease         = 5 * time.Minute
	maxLastErrorLength    = 500
)

// JobPublisher announces newly queued jobs to out-of-process workers
type JobPublisher interface {
	PublishEmailJob(ctx context.Context, jobID int64) error
}

// EmailQueue is the durable outbound email queue
type EmailQueue struct {
	jobs        *repository.EmailJobRepository
	mailer      Mailer
	publisher   JobPublisher
	batchSize   int
	maxAttempts int
	backoff     time.Duration
	logger      *log.Logger
	now         func() time.Time
}

// NewEmailQueue creates a queue that delivers through mailer
func NewEmailQueue(jobs *repository.EmailJobRepository, mailer Mailer, batchSize, maxAttempts int, logger *log.Logger) *EmailQueue {
	if batchSize < 1 {
		batchSize = defaultQueueBatchSize
	}
	if maxAttempts < 1 {
		maxAttempts = defaultMaxAttempts
	}
	return &EmailQueue{
		jobs:        jobs,
		mailer:      mailer,
		batchSize:   batchSize,
		maxAttempts: maxAttempts,
		backoff:     defaultRetryBackoff,
		logger:      logger.WithComponent(log.ComponentQueue),
		now:         time.Now,
	}
}

// SetPublisher enables job notifications, e.g. over AMQP
func (q *EmailQueue) SetPublisher(p JobPublisher) {
	q.publisher = p
}

// Enqueue stores msg for delivery. A failed publish is only logged: the scheduled
// sweep still picks the job up.
func (q *EmailQueue) Enqueue(ctx context.Context, msg Message) (*models.EmailJob, error) {
	now := q.now()
	job := &models.EmailJob{
		To:          msg.To,
		Subject:     msg.Subject,
		HTML:        msg.HTML,
		Text:        msg.Text,
		Status:      models.EmailPending,
		MaxAttempts: q.maxAttempts,
		ScheduledAt: now,
		CreatedAt:   now,
	}
	if err := q.jobs.CreateJob(ctx, job); err != nil {
		return nil, err
	}

	if q.publisher != nil {
		if err := q.publisher.PublishEmailJob(ctx, job.ID); err != nil {
			q.logger.WarnContext(ctx, "failed to publish email job", log.FieldJobID, job.ID, log.FieldError, err)
		}
	}
	return job, nil
}

// Process delivers up to one batch of due jobs. A job's failure never stops the batch.
func (q *EmailQueue) Process(ctx context.Context) (models.QueueResult, error) {
	now := q.now()
	var result models.QueueResult

	jobs, err := q.jobs.ListDueJobs(ctx, now, q.batchSize)
	if err != nil {
		return result, err
	}

	for i := range jobs {
		if ctx.Err() != nil {
			break
		}
		outcome, err := q.deliver(ctx, &jobs[i], now)
		if err != nil {
			q.logger.ErrorContext(ctx, "failed to process email job", log.FieldJobID, jobs[i].ID, log.FieldError, err)
			continue
		}
		result.Add(outcome)
	}

	if result.Processed > 0 {
		q.logger.InfoContext(ctx, "processed email queue",
			"processed", result.Processed,
			"sent", result.Sent,
			"retried", result.Retried,
			"failed", result.Failed)
	}
	return result, nil
}

// ProcessJob delivers a single job by id. Jobs that are no longer pending or not yet
// due are left alone.
func (q *EmailQueue) ProcessJob(ctx context.Context, id int64) (models.QueueResult, error) {
	var result models.QueueResult
	job, err := q.jobs.GetJob(ctx, id)
	if err != nil {
		return result, err
	}
	if job == nil {
		return result, fmt.Errorf("email job %d: %w", id, ErrNotFound)
	}

	now := q.now()
	if job.Status != models.EmailPending || job.ScheduledAt.After(now) {
		return result, nil
	}
	outcome, err := q.deliver(ctx, job, now)
	if err != nil {
		return result, err
	}
	result.Add(outcome)
	return result, nil
}

// deliver leases, sends and records one job
func (q *EmailQueue) deliver(ctx context.Context, job *models.EmailJob, now time.Time) (models.QueueResult, error) {
	var outcome models.QueueResult

	claimed, err := q.jobs.ClaimJob(ctx, job.ID, now, now.Add(emailJobLease))
	if err != nil {
		return outcome, err
	}
	if !claimed {
		return outcome, nil
	}
	outcome.Processed = 1
	attempts := job.Attempts + 1

	sendErr := q.mailer.Send(ctx, Message{To: job.To, Subject: job.Subject, HTML: job.HTML, Text: job.Text})
	if sendErr == nil {
		if _, err := q.jobs.MarkSent(ctx, job.ID, attempts, now); err != nil {
			return outcome, err
		}
		outcome.Sent = 1
		metrics.EmailJobs.WithLabelValues("sent").Inc()
		return outcome, nil
	}

	lastErr := truncateError(sendErr.Error(), maxLastErrorLength)

	maxAttempts := job.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = q.maxAttempts
	}
	if attempts >= maxAttempts {
		if err := q.jobs.MarkFailed(ctx, job.ID, attempts, lastErr); err != nil {
			return outcome, err
		}
		outcome.Failed = 1
		metrics.EmailJobs.WithLabelValues("failed").Inc()
		q.logger.WarnContext(ctx, "email job failed permanently",
			log.FieldJobID, job.ID,
			"attempts", attempts,
			log.FieldError, sendErr)
		return outcome, nil
	}

	next := now.Add(time.Duration(attempts) * q.backoff)
	if err := q.jobs.MarkRetry(ctx, job.ID, attempts, lastErr, next); err != nil {
		return outcome, err
	}
	outcome.Retried = 1
	metrics.EmailJobs.WithLabelValues("retried").Inc()
	q.logger.InfoContext(ctx, "email job rescheduled",
		log.FieldJobID, job.ID,
		"attempts", attempts,
		"next_attempt", next,
		log.FieldError, sendErr)
	return outcome, nil
}

// Stats returns the number of jobs per status
func (q *EmailQueue) Stats(ctx context.Context) (map[models.EmailStatus]int, error) {
	return q.jobs.CountByStatus(ctx)
}

// truncateError cuts msg to at most limit bytes on a rune boundary. The result is
// always valid UTF-8, which Postgres requires for TEXT columns.
func truncateError(msg string, limit int) string {
	msg = strings.ToValidUTF8(msg, "\uFFFD")
	if len(msg) <= limit {
		return msg
	}
	cut := limit
	for cut > 0 && !utf8.RuneStart(msg[cut]) {
		cut--
	}
	return msg[:cut]
}
