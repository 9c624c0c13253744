package service

import (
	"context"
	"strings"
	"sync/atomic"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"famfinance/internal/log"
	"famfinance/internal/metrics"
	"famfinance/internal/models"
	"famfinance/internal/repository"
	"famfinance/internal/validation"
)

const (
	defaultSweepBatchSize   = 50
	defaultSendConcurrency  = 4
	defaultNotifyDaysBefore = 3
)

// ReminderInput holds the editable fields of a reminder
type ReminderInput struct {
	Title            string
	Description      string
	Amount           decimal.NullDecimal
	DueDate          time.Time
	Priority         models.Priority
	IsRecurring      bool
	NotifyDaysBefore *int
}

// ReminderService manages reminders and dispatches their notifications
type ReminderService struct {
	reminders   *repository.ReminderRepository
	families    *repository.FamilyRepository
	mailer      Mailer
	composer    *EmailComposer
	batchSize   int
	concurrency int
	logger      *log.Logger
	now         func() time.Time
}

// NewReminderService creates a reminder service. batchSize caps the reminders
// notified per sweep.
func NewReminderService(reminders *repository.ReminderRepository, families *repository.FamilyRepository,
	mailer Mailer, composer *EmailComposer, batchSize int, logger *log.Logger) *ReminderService {
	if batchSize < 1 {
		batchSize = defaultSweepBatchSize
	}
	return &ReminderService{
		reminders:   reminders,
		families:    families,
		mailer:      mailer,
		composer:    composer,
		batchSize:   batchSize,
		concurrency: defaultSendConcurrency,
		logger:      logger.WithComponent(log.ComponentReminder),
		now:         time.Now,
	}
}

// Sweep notifies every eligible reminder in one batch. Each reminder is claimed with a
// conditional update before its emails go out, so overlapping sweeps never notify the
// same reminder twice. A failed send is counted and never stops the sweep.
func (s *ReminderService) Sweep(ctx context.Context, now time.Time) (models.SweepResult, error) {
	var result models.SweepResult
	metrics.ReminderSweeps.Inc()

	cutoff := now.Add(-models.NotificationCooldown)
	candidates, err := s.reminders.ListDueForNotification(ctx, now, cutoff, s.batchSize)
	if err != nil {
		return result, err
	}
	result.Checked = len(candidates)

	familyNames := make(map[int64]string)
	for i := range candidates {
		rem := &candidates[i]
		if ctx.Err() != nil {
			break
		}
		if !rem.IsEligible(now) {
			continue
		}

		claimed, err := s.reminders.ClaimForNotification(ctx, rem.ID, now, cutoff, !rem.IsRecurring)
		if err != nil {
			result.Errors++
			s.logger.ErrorContext(ctx, "failed to claim reminder", log.FieldReminderID, rem.ID, log.FieldError, err)
			continue
		}
		if !claimed {
			continue
		}
		result.Notified++
		metrics.RemindersNotified.Inc()

		sent, failed := s.notifyMembers(ctx, rem, familyNames, now)
		result.EmailsSent += sent
		result.Errors += failed
	}

	s.logger.InfoContext(ctx, "reminder sweep finished",
		log.FieldOperation, log.OpSweep,
		"checked", result.Checked,
		"notified", result.Notified,
		"emails_sent", result.EmailsSent,
		"errors", result.Errors)
	return result, nil
}

// notifyMembers emails every active member of the reminder's family with bounded
// concurrency and returns the number of sends that succeeded and failed
func (s *ReminderService) notifyMembers(ctx context.Context, rem *models.Reminder, familyNames map[int64]string, now time.Time) (int, int) {
	members, err := s.families.ListMembers(ctx, rem.FamilyID)
	if err != nil {
		s.logger.ErrorContext(ctx, "failed to list family members",
			log.FieldReminderID, rem.ID,
			log.FieldFamilyID, rem.FamilyID,
			log.FieldError, err)
		return 0, 1
	}

	familyName, ok := familyNames[rem.FamilyID]
	if !ok {
		family, err := s.families.GetFamilyByID(ctx, rem.FamilyID)
		switch {
		case err != nil:
			s.logger.WarnContext(ctx, "failed to load family name, sending without it",
				log.FieldReminderID, rem.ID,
				log.FieldFamilyID, rem.FamilyID,
				log.FieldError, err)
		case family != nil:
			familyName = family.Name
		}
		familyNames[rem.FamilyID] = familyName
	}

	var sent, failed atomic.Int64
	var g errgroup.Group
	g.SetLimit(s.concurrency)
	for _, member := range members {
		g.Go(func() error {
			msg, err := s.composer.Reminder(rem, member, familyName, now)
			if err == nil {
				err = s.mailer.Send(ctx, msg)
			}
			if err != nil {
				failed.Add(1)
				metrics.ReminderEmails.WithLabelValues("failed").Inc()
				s.logger.WarnContext(ctx, "failed to send reminder email",
					log.FieldReminderID, rem.ID,
					log.FieldUserID, member.UserID,
					log.FieldError, err)
				return nil
			}
			sent.Add(1)
			metrics.ReminderEmails.WithLabelValues("sent").Inc()
			return nil
		})
	}
	_ = g.Wait()

	return int(sent.Load()), int(failed.Load())
}

// ListReminders returns a family's reminders, optionally including completed ones
func (s *ReminderService) ListReminders(ctx context.Context, familyID int64, includeCompleted bool) ([]models.Reminder, error) {
	return s.reminders.ListReminders(ctx, familyID, includeCompleted)
}

// ListUpcoming returns open reminders due within the next days days, overdue included
func (s *ReminderService) ListUpcoming(ctx context.Context, familyID int64, days int) ([]models.Reminder, error) {
	if days <= 0 {
		days = 7
	}
	return s.reminders.ListUpcoming(ctx, familyID, s.now().AddDate(0, 0, days))
}

// GetReminder returns one reminder
func (s *ReminderService) GetReminder(ctx context.Context, familyID, id int64) (*models.Reminder, error) {
	rem, err := s.reminders.GetReminder(ctx, familyID, id)
	if err != nil {
		return nil, err
	}
	if rem == nil {
		return nil, notFound("reminder")
	}
	return rem, nil
}

// CreateReminder stores a new active reminder
func (s *ReminderService) CreateReminder(ctx context.Context, familyID, userID int64, in ReminderInput) (*models.Reminder, error) {
	if err := validateReminder(&in); err != nil {
		return nil, err
	}

	rem := &models.Reminder{
		FamilyID:         familyID,
		Title:            in.Title,
		Description:      in.Description,
		Amount:           in.Amount,
		DueDate:          in.DueDate,
		Priority:         in.Priority,
		IsRecurring:      in.IsRecurring,
		NotifyDaysBefore: *in.NotifyDaysBefore,
		IsActive:         true,
		CreatedBy:        userID,
		CreatedAt:        s.now(),
	}
	if err := s.reminders.CreateReminder(ctx, rem); err != nil {
		return nil, err
	}
	s.logger.InfoContext(ctx, "reminder created", log.FieldFamilyID, familyID, log.FieldReminderID, rem.ID)
	return rem, nil
}

// UpdateReminder replaces a reminder's editable fields
func (s *ReminderService) UpdateReminder(ctx context.Context, familyID, id int64, in ReminderInput) (*models.Reminder, error) {
	rem, err := s.GetReminder(ctx, familyID, id)
	if err != nil {
		return nil, err
	}
	if in.NotifyDaysBefore == nil {
		in.NotifyDaysBefore = &rem.NotifyDaysBefore
	}
	if err := validateReminder(&in); err != nil {
		return nil, err
	}

	rem.Title = in.Title
	rem.Description = in.Description
	rem.Amount = in.Amount
	rem.DueDate = in.DueDate
	rem.Priority = in.Priority
	rem.IsRecurring = in.IsRecurring
	rem.NotifyDaysBefore = *in.NotifyDaysBefore
	rem.UpdatedAt = s.now()

	updated, err := s.reminders.UpdateReminder(ctx, rem)
	if err != nil {
		return nil, err
	}
	if !updated {
		return nil, notFound("reminder")
	}
	return rem, nil
}

// DeleteReminder removes a reminder
func (s *ReminderService) DeleteReminder(ctx context.Context, familyID, id int64) error {
	deleted, err := s.reminders.DeleteReminder(ctx, familyID, id)
	if err != nil {
		return err
	}
	if !deleted {
		return notFound("reminder")
	}
	return nil
}

// CompleteReminder marks a reminder done; completing a completed reminder is a no-op
func (s *ReminderService) CompleteReminder(ctx context.Context, familyID, id int64) (*models.Reminder, error) {
	if _, err := s.reminders.CompleteReminder(ctx, familyID, id, s.now()); err != nil {
		return nil, err
	}
	return s.GetReminder(ctx, familyID, id)
}

// ReactivateReminder reopens a reminder so it notifies again
func (s *ReminderService) ReactivateReminder(ctx context.Context, familyID, id int64) (*models.Reminder, error) {
	reopened, err := s.reminders.ReactivateReminder(ctx, familyID, id, s.now())
	if err != nil {
		return nil, err
	}
	if !reopened {
		return nil, notFound("reminder")
	}
	return s.GetReminder(ctx, familyID, id)
}

func validateReminder(in *ReminderInput) error {
	in.Title = strings.TrimSpace(in.Title)
	in.Description = strings.TrimSpace(in.Description)
	if in.Priority == "" {
		in.Priority = models.PriorityMedium
	}
	if in.NotifyDaysBefore == nil {
		days := defaultNotifyDaysBefore
		in.NotifyDaysBefore = &days
	}

	errs := []error{
		validation.ValidateTitle(in.Title),
		validation.ValidateDescription(in.Description),
		validation.ValidateDate("dueDate", in.DueDate),
		validation.ValidateNotifyDaysBefore(*in.NotifyDaysBefore),
	}
	if in.Amount.Valid {
		errs = append(errs, validation.ValidateAmount("amount", in.Amount.Decimal))
	}
	if err := validation.First(errs...); err != nil {
		return invalid(err)
	}
	if !in.Priority.Valid() {
		return invalid(validation.ValidationError{Field: "priority", Message: "must be one of LOW, MEDIUM, HIGH, URGENT"})
	}
	return nil
}
