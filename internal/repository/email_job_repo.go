package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"famfinance/internal/database"
	"famfinance/internal/models"
)

// EmailJobRepository handles database operations for the outbound email queue
type EmailJobRepository struct {
	db database.DBTX
}

// NewEmailJobRepository creates a new email job repository
func NewEmailJobRepository(db database.DBTX) *EmailJobRepository {
	return &EmailJobRepository{db: db}
}

// CreateJob enqueues an email
func (r *EmailJobRepository) CreateJob(ctx context.Context, job *models.EmailJob) error {
	job.ScheduledAt = utc(job.ScheduledAt)
	job.CreatedAt = utc(job.CreatedAt)
	if job.Status == "" {
		job.Status = models.EmailPending
	}
	query := `
		INSERT INTO email_jobs (recipient, subject, html_body, text_body, status, attempts, max_attempts, last_error, scheduled_at, created_at)
		VALUES (?, ?, ?, ?, ?, 0, ?, '', ?, ?)
	`
	id, err := r.db.ExecReturningID(ctx, query, job.To, job.Subject, job.HTML, job.Text, job.Status, job.MaxAttempts, job.ScheduledAt, job.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create email job: %w", err)
	}
	job.ID = id
	return nil
}

const emailJobColumns = "id, recipient, subject, html_body, text_body, status, attempts, max_attempts, last_error, scheduled_at, sent_at, created_at"

func scanEmailJob(row interface{ Scan(...any) error }) (*models.EmailJob, error) {
	job := &models.EmailJob{}
	var sentAt sql.NullTime
	err := row.Scan(&job.ID, &job.To, &job.Subject, &job.HTML, &job.Text, &job.Status, &job.Attempts, &job.MaxAttempts,
		&job.LastError, &job.ScheduledAt, &sentAt, &job.CreatedAt)
	if err != nil {
		return nil, err
	}
	job.SentAt = timePtr(sentAt)
	return job, nil
}

// GetJob retrieves a job by ID
func (r *EmailJobRepository) GetJob(ctx context.Context, id int64) (*models.EmailJob, error) {
	job, err := scanEmailJob(r.db.QueryRowContext(ctx, "SELECT "+emailJobColumns+" FROM email_jobs WHERE id = ?", id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get email job: %w", err)
	}
	return job, nil
}

// ListDueJobs returns pending jobs scheduled at or before now, oldest first
func (r *EmailJobRepository) ListDueJobs(ctx context.Context, now time.Time, limit int) ([]models.EmailJob, error) {
	query := "SELECT " + emailJobColumns + " FROM email_jobs WHERE status = ? AND scheduled_at <= ? ORDER BY scheduled_at, id LIMIT ?"
	rows, err := r.db.QueryContext(ctx, query, models.EmailPending, utc(now), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query email jobs: %w", err)
	}
	defer rows.Close()

	var jobs []models.EmailJob
	for rows.Next() {
		job, err := scanEmailJob(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan email job: %w", err)
		}
		jobs = append(jobs, *job)
	}
	return jobs, rows.Err()
}

// ClaimJob leases a due pending job by pushing its schedule to leaseUntil. Only one
// of several concurrent processors gets true; an abandoned lease simply expires.
func (r *EmailJobRepository) ClaimJob(ctx context.Context, id int64, now, leaseUntil time.Time) (bool, error) {
	query := "UPDATE email_jobs SET scheduled_at = ? WHERE id = ? AND status = ? AND scheduled_at <= ?"
	result, err := r.db.ExecContext(ctx, query, utc(leaseUntil), id, models.EmailPending, utc(now))
	if err != nil {
		return false, fmt.Errorf("failed to claim email job: %w", err)
	}
	return rowsAffected(result)
}

// MarkSent records a successful delivery of a pending job
func (r *EmailJobRepository) MarkSent(ctx context.Context, id int64, attempts int, now time.Time) (bool, error) {
	query := "UPDATE email_jobs SET status = ?, attempts = ?, sent_at = ?, last_error = '' WHERE id = ? AND status = ?"
	result, err := r.db.ExecContext(ctx, query, models.EmailSent, attempts, utc(now), id, models.EmailPending)
	if err != nil {
		return false, fmt.Errorf("failed to mark email job sent: %w", err)
	}
	return rowsAffected(result)
}

// MarkRetry records a failed attempt and reschedules the job
func (r *EmailJobRepository) MarkRetry(ctx context.Context, id int64, attempts int, lastError string, next time.Time) error {
	query := "UPDATE email_jobs SET attempts = ?, last_error = ?, scheduled_at = ? WHERE id = ? AND status = ?"
	if _, err := r.db.ExecContext(ctx, query, attempts, lastError, utc(next), id, models.EmailPending); err != nil {
		return fmt.Errorf("failed to reschedule email job: %w", err)
	}
	return nil
}

// MarkFailed records the final failed attempt
func (r *EmailJobRepository) MarkFailed(ctx context.Context, id int64, attempts int, lastError string) error {
	query := "UPDATE email_jobs SET status = ?, attempts = ?, last_error = ? WHERE id = ? AND status = ?"
	if _, err := r.db.ExecContext(ctx, query, models.EmailFailed, attempts, lastError, id, models.EmailPending); err != nil {
		return fmt.Errorf("failed to mark email job failed: %w", err)
	}
	return nil
}

// CountByStatus returns the number of jobs per status
func (r *EmailJobRepository) CountByStatus(ctx context.Context) (map[models.EmailStatus]int, error) {
	rows, err := r.db.QueryContext(ctx, "SELECT status, COUNT(*) FROM email_jobs GROUP BY status")
	if err != nil {
		return nil, fmt.Errorf("failed to count email jobs: %w", err)
	}
	defer rows.Close()

	counts := make(map[models.EmailStatus]int)
	for rows.Next() {
		var status models.EmailStatus
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("failed to scan email job count: %w", err)
		}
		counts[status] = n
	}
	return counts, rows.Err()
}
