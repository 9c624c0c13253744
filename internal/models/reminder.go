package models

import (
	"math"
	"time"

	"github.com/shopspring/decimal"
)

// Priority orders reminders by urgency
type Priority string

const (
	PriorityLow    Priority = "LOW"
	PriorityMedium Priority = "MEDIUM"
	PriorityHigh   Priority = "HIGH"
	PriorityUrgent Priority = "URGENT"
)

// Valid reports whether p is a known priority
func (p Priority) Valid() bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh, PriorityUrgent:
		return true
	}
	return false
}

// NotificationCooldown is the minimum gap between two notifications for one reminder
const NotificationCooldown = 24 * time.Hour

// Reminder is a due-date-bound obligation
type Reminder struct {
	ID               int64               `json:"id"`
	FamilyID         int64               `json:"familyId"`
	Title            string              `json:"title"`
	Description      string              `json:"description"`
	Amount           decimal.NullDecimal `json:"amount"`
	DueDate          time.Time           `json:"dueDate"`
	Priority         Priority            `json:"priority"`
	IsRecurring      bool                `json:"isRecurring"`
	NotifyDaysBefore int                 `json:"notifyDaysBefore"`
	NotifyAt         time.Time           `json:"-"`
	LastNotified     *time.Time          `json:"lastNotified,omitempty"`
	IsActive         bool                `json:"isActive"`
	IsCompleted      bool                `json:"isCompleted"`
	CompletedAt      *time.Time          `json:"completedAt,omitempty"`
	CreatedBy        int64               `json:"createdBy"`
	CreatedAt        time.Time           `json:"createdAt"`
	UpdatedAt        time.Time           `json:"updatedAt"`
}

// NotifyAtFor returns the earliest instant a reminder due at dueDate should notify
func NotifyAtFor(dueDate time.Time, notifyDaysBefore int) time.Time {
	return dueDate.AddDate(0, 0, -notifyDaysBefore)
}

// DaysUntilDue returns the number of days until the due date, rounded up.
// Overdue reminders return a negative or zero value.
func (r *Reminder) DaysUntilDue(now time.Time) int {
	return int(math.Ceil(r.DueDate.Sub(now).Hours() / 24))
}

// NotifiedRecently reports whether the reminder is still inside its cool-down
func (r *Reminder) NotifiedRecently(now time.Time) bool {
	return r.LastNotified != nil && now.Sub(*r.LastNotified) < NotificationCooldown
}

// IsEligible reports whether the reminder should be notified at now
func (r *Reminder) IsEligible(now time.Time) bool {
	days := r.DaysUntilDue(now)
	shouldNotify := days <= r.NotifyDaysBefore || days < 0
	return r.IsActive && !r.IsCompleted && shouldNotify && !r.NotifiedRecently(now)
}

// SweepResult counts what a reminder sweep did
type SweepResult struct {
	Checked    int `json:"checked"`
	Notified   int `json:"notified"`
	EmailsSent int `json:"emailsSent"`
	Errors     int `json:"errors"`
}
