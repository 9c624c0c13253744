package models

import "time"

// EmailStatus is the delivery state of a queued email
type EmailStatus string

const (
	EmailPending EmailStatus = "PENDING"
	EmailSent    EmailStatus = "SENT"
	EmailFailed  EmailStatus = "FAILED"
)

// EmailJob is a queued outbound email
type EmailJob struct {
	ID          int64
	To          string
	Subject     string
	HTML        string
	Text        string
	Status      EmailStatus
	Attempts    int
	MaxAttempts int
	LastError   string
	ScheduledAt time.Time
	SentAt      *time.Time
	CreatedAt   time.Time
}

// QueueResult counts what one queue pass did
type QueueResult struct {
	Processed int `json:"processed"`
	Sent      int `json:"sent"`
	Retried   int `json:"retried"`
	Failed    int `json:"failed"`
}

// Add accumulates other into r
func (r *QueueResult) Add(other QueueResult) {
	r.Processed += other.Processed
	r.Sent += other.Sent
	r.Retried += other.Retried
	r.Failed += other.Failed
}
