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

// ReminderRepository handles database operations for reminders
type ReminderRepository struct {
	db database.DBTX
}

// NewReminderRepository creates a new reminder repository
func NewReminderRepository(db database.DBTX) *ReminderRepository {
	return &ReminderRepository{db: db}
}

const reminderColumns = `id, family_id, title, description, amount, due_date, priority, is_recurring,
	notify_days_before, notify_at, last_notified, is_active, is_completed, completed_at,
	created_by, created_at, updated_at`

func scanReminder(row interface{ Scan(...any) error }) (*models.Reminder, error) {
	rem := &models.Reminder{}
	var lastNotified, completedAt sql.NullTime
	err := row.Scan(
		&rem.ID,
		&rem.FamilyID,
		&rem.Title,
		&rem.Description,
		&rem.Amount,
		&rem.DueDate,
		&rem.Priority,
		&rem.IsRecurring,
		&rem.NotifyDaysBefore,
		&rem.NotifyAt,
		&lastNotified,
		&rem.IsActive,
		&rem.IsCompleted,
		&completedAt,
		&rem.CreatedBy,
		&rem.CreatedAt,
		&rem.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	rem.DueDate = rem.DueDate.UTC()
	rem.NotifyAt = rem.NotifyAt.UTC()
	rem.LastNotified = timePtr(lastNotified)
	rem.CompletedAt = timePtr(completedAt)
	return rem, nil
}

func (r *ReminderRepository) queryReminders(ctx context.Context, query string, args ...any) ([]models.Reminder, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query reminders: %w", err)
	}
	defer rows.Close()

	var reminders []models.Reminder
	for rows.Next() {
		rem, err := scanReminder(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan reminder: %w", err)
		}
		reminders = append(reminders, *rem)
	}
	return reminders, rows.Err()
}

// CreateReminder stores a reminder, deriving notify_at from the due date and lead time
func (r *ReminderRepository) CreateReminder(ctx context.Context, rem *models.Reminder) error {
	rem.DueDate = utc(rem.DueDate)
	rem.NotifyAt = models.NotifyAtFor(rem.DueDate, rem.NotifyDaysBefore)
	rem.CreatedAt = utc(rem.CreatedAt)
	rem.UpdatedAt = rem.CreatedAt
	query := `
		INSERT INTO reminders (family_id, title, description, amount, due_date, priority, is_recurring,
			notify_days_before, notify_at, is_active, is_completed, created_by, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	id, err := r.db.ExecReturningID(ctx, query, rem.FamilyID, rem.Title, rem.Description, rem.Amount, rem.DueDate,
		rem.Priority, rem.IsRecurring, rem.NotifyDaysBefore, rem.NotifyAt, rem.IsActive, rem.IsCompleted,
		rem.CreatedBy, rem.CreatedAt, rem.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create reminder: %w", err)
	}
	rem.ID = id
	return nil
}

// GetReminder retrieves a reminder within a family
func (r *ReminderRepository) GetReminder(ctx context.Context, familyID, id int64) (*models.Reminder, error) {
	rem, err := scanReminder(r.db.QueryRowContext(ctx, "SELECT "+reminderColumns+" FROM reminders WHERE id = ? AND family_id = ?", id, familyID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get reminder: %w", err)
	}
	return rem, nil
}

// ListReminders returns a family's reminders ordered by due date
func (r *ReminderRepository) ListReminders(ctx context.Context, familyID int64, includeCompleted bool) ([]models.Reminder, error) {
	query := "SELECT " + reminderColumns + " FROM reminders WHERE family_id = ?"
	if !includeCompleted {
		query += " AND is_completed = FALSE"
	}
	query += " ORDER BY due_date, id"
	return r.queryReminders(ctx, query, familyID)
}

// ListUpcoming returns open reminders due before until
func (r *ReminderRepository) ListUpcoming(ctx context.Context, familyID int64, until time.Time) ([]models.Reminder, error) {
	query := "SELECT " + reminderColumns + ` FROM reminders
		WHERE family_id = ? AND is_active = TRUE AND is_completed = FALSE AND due_date <= ?
		ORDER BY due_date, id`
	return r.queryReminders(ctx, query, familyID, utc(until))
}

// UpdateReminder saves a reminder's editable fields and recomputes notify_at
func (r *ReminderRepository) UpdateReminder(ctx context.Context, rem *models.Reminder) (bool, error) {
	rem.DueDate = utc(rem.DueDate)
	rem.NotifyAt = models.NotifyAtFor(rem.DueDate, rem.NotifyDaysBefore)
	rem.UpdatedAt = utc(rem.UpdatedAt)
	query := `
		UPDATE reminders
		SET title = ?, description = ?, amount = ?, due_date = ?, priority = ?, is_recurring = ?,
			notify_days_before = ?, notify_at = ?, is_active = ?, updated_at = ?
		WHERE id = ? AND family_id = ?
	`
	result, err := r.db.ExecContext(ctx, query, rem.Title, rem.Description, rem.Amount, rem.DueDate, rem.Priority,
		rem.IsRecurring, rem.NotifyDaysBefore, rem.NotifyAt, rem.IsActive, rem.UpdatedAt, rem.ID, rem.FamilyID)
	if err != nil {
		return false, fmt.Errorf("failed to update reminder: %w", err)
	}
	return rowsAffected(result)
}

// DeleteReminder removes a reminder within a family
func (r *ReminderRepository) DeleteReminder(ctx context.Context, familyID, id int64) (bool, error) {
	result, err := r.db.ExecContext(ctx, "DELETE FROM reminders WHERE id = ? AND family_id = ?", id, familyID)
	if err != nil {
		return false, fmt.Errorf("failed to delete reminder: %w", err)
	}
	return rowsAffected(result)
}

// CompleteReminder marks an open reminder completed
func (r *ReminderRepository) CompleteReminder(ctx context.Context, familyID, id int64, now time.Time) (bool, error) {
	now = utc(now)
	query := "UPDATE reminders SET is_completed = TRUE, completed_at = ?, updated_at = ? WHERE id = ? AND family_id = ? AND is_completed = FALSE"
	result, err := r.db.ExecContext(ctx, query, now, now, id, familyID)
	if err != nil {
		return false, fmt.Errorf("failed to complete reminder: %w", err)
	}
	return rowsAffected(result)
}

// ReactivateReminder reopens a reminder and clears its notification history
func (r *ReminderRepository) ReactivateReminder(ctx context.Context, familyID, id int64, now time.Time) (bool, error) {
	query := `
		UPDATE reminders
		SET is_active = TRUE, is_completed = FALSE, completed_at = NULL, last_notified = NULL, updated_at = ?
		WHERE id = ? AND family_id = ?
	`
	result, err := r.db.ExecContext(ctx, query, utc(now), id, familyID)
	if err != nil {
		return false, fmt.Errorf("failed to reactivate reminder: %w", err)
	}
	return rowsAffected(result)
}

// ListDueForNotification selects sweep candidates: open reminders whose notify window
// has started and that were not notified after cooldownCutoff. Oldest due date first.
func (r *ReminderRepository) ListDueForNotification(ctx context.Context, now, cooldownCutoff time.Time, limit int) ([]models.Reminder, error) {
	query := "SELECT " + reminderColumns + ` FROM reminders
		WHERE is_active = TRUE AND is_completed = FALSE AND notify_at <= ?
		  AND (last_notified IS NULL OR last_notified <= ?)
		ORDER BY due_date, id
		LIMIT ?`
	return r.queryReminders(ctx, query, utc(now), utc(cooldownCutoff), limit)
}

// ClaimForNotification stamps last_notified and, for one-shot reminders, completes the
// reminder. The update only applies while the reminder is still open and outside its
// cool-down, so of two concurrent sweeps exactly one claims it.
func (r *ReminderRepository) ClaimForNotification(ctx context.Context, id int64, now, cooldownCutoff time.Time, complete bool) (bool, error) {
	now = utc(now)
	set := "last_notified = ?, updated_at = ?"
	args := []any{now, now}
	if complete {
		set += ", is_completed = TRUE, completed_at = ?"
		args = append(args, now)
	}
	args = append(args, id, utc(cooldownCutoff))

	query := "UPDATE reminders SET " + set + ` WHERE id = ? AND is_active = TRUE AND is_completed = FALSE
		AND (last_notified IS NULL OR last_notified <= ?)`
	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return false, fmt.Errorf("failed to claim reminder: %w", err)
	}
	return rowsAffected(result)
}
