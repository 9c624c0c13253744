package models

import "time"

// FamilyInvitation is a pending offer to join a family
type FamilyInvitation struct {
	ID          int64      `json:"id"`
	FamilyID    int64      `json:"familyId"`
	Email       string     `json:"email"`
	Role        Role       `json:"role"`
	Token       string     `json:"-"`
	InvitedBy   int64      `json:"invitedBy"`
	ExpiresAt   time.Time  `json:"expiresAt"`
	AcceptedAt  *time.Time `json:"acceptedAt,omitempty"`
	AcceptedBy  *int64     `json:"acceptedBy,omitempty"`
	CreatedAt   time.Time  `json:"createdAt"`
	FamilyName  string     `json:"familyName,omitempty"`  // Populated via JOIN
	InviterName string     `json:"inviterName,omitempty"` // Populated via JOIN
}

func (i *FamilyInvitation) IsExpired(now time.Time) bool {
	return now.After(i.ExpiresAt)
}

func (i *FamilyInvitation) IsAccepted() bool {
	return i.AcceptedAt != nil
}

func (i *FamilyInvitation) IsPending(now time.Time) bool {
	return !i.IsExpired(now) && !i.IsAccepted()
}
