package models

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func TestResetTokenIsValid(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	tests := []struct {
		name      string
		expiresAt time.Time
		used      bool
		want      bool
	}{
		{
			name:      "future expiration",
			expiresAt: now.Add(1 * time.Hour),
			want:      true,
		},
		{
			name:      "just expired",
			expiresAt: now.Add(-1 * time.Second),
			want:      false,
		},
		{
			name:      "already used",
			expiresAt: now.Add(1 * time.Hour),
			used:      true,
			want:      false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			token := PasswordResetToken{Token: "abc", UserID: 1, ExpiresAt: tt.expiresAt, Used: tt.used}
			if got := token.IsValid(now); got != tt.want {
				t.Errorf("PasswordResetToken.IsValid() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestRolePermissions(t *testing.T) {
	tests := []struct {
		role Role
		perm Permission
		want bool
	}{
		{RoleAdmin, PermissionRead, true},
		{RoleAdmin, PermissionWrite, true},
		{RoleAdmin, PermissionAdmin, true},
		{RoleMember, PermissionRead, true},
		{RoleMember, PermissionWrite, true},
		{RoleMember, PermissionAdmin, false},
		{RoleViewer, PermissionRead, true},
		{RoleViewer, PermissionWrite, false},
		{RoleViewer, PermissionAdmin, false},
		{Role("OWNER"), PermissionRead, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.role)+"_"+string(tt.perm), func(t *testing.T) {
			if got := tt.role.Can(tt.perm); got != tt.want {
				t.Errorf("%s.Can(%s) = %v, want %v", tt.role, tt.perm, got, tt.want)
			}
		})
	}

	var none *FamilyContext
	if none.Can(PermissionRead) {
		t.Error("nil family context should grant nothing")
	}
}

func TestParseRole(t *testing.T) {
	if r, err := ParseRole(" member "); err != nil || r != RoleMember {
		t.Errorf("ParseRole(member) = %v, %v", r, err)
	}
	if _, err := ParseRole("owner"); err == nil {
		t.Error("ParseRole(owner) should fail")
	}
}

func TestInvitationState(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	accepted := now.Add(-time.Hour)

	tests := []struct {
		name    string
		inv     FamilyInvitation
		pending bool
	}{
		{"open", FamilyInvitation{ExpiresAt: now.Add(time.Hour)}, true},
		{"expired", FamilyInvitation{ExpiresAt: now.Add(-time.Hour)}, false},
		{"accepted", FamilyInvitation{ExpiresAt: now.Add(time.Hour), AcceptedAt: &accepted}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.inv.IsPending(now); got != tt.pending {
				t.Errorf("IsPending() = %v, want %v", got, tt.pending)
			}
		})
	}
}

func TestReminderIsEligible(t *testing.T) {
	now := time.Date(2024, 5, 10, 9, 0, 0, 0, time.UTC)
	recent := now.Add(-2 * time.Hour)
	dayAgo := now.Add(-NotificationCooldown)

	tests := []struct {
		name     string
		reminder Reminder
		want     bool
	}{
		{
			name:     "inside notify window",
			reminder: Reminder{DueDate: now.AddDate(0, 0, 2), NotifyDaysBefore: 3, IsActive: true},
			want:     true,
		},
		{
			name:     "exactly at window edge",
			reminder: Reminder{DueDate: now.AddDate(0, 0, 3), NotifyDaysBefore: 3, IsActive: true},
			want:     true,
		},
		{
			name:     "outside notify window",
			reminder: Reminder{DueDate: now.AddDate(0, 0, 5), NotifyDaysBefore: 3, IsActive: true},
			want:     false,
		},
		{
			name:     "overdue",
			reminder: Reminder{DueDate: now.AddDate(0, 0, -4), NotifyDaysBefore: 0, IsActive: true},
			want:     true,
		},
		{
			name:     "completed",
			reminder: Reminder{DueDate: now, NotifyDaysBefore: 3, IsActive: true, IsCompleted: true},
			want:     false,
		},
		{
			name:     "inactive",
			reminder: Reminder{DueDate: now, NotifyDaysBefore: 3},
			want:     false,
		},
		{
			name:     "notified recently",
			reminder: Reminder{DueDate: now, NotifyDaysBefore: 3, IsActive: true, LastNotified: &recent},
			want:     false,
		},
		{
			name:     "cooldown elapsed",
			reminder: Reminder{DueDate: now, NotifyDaysBefore: 3, IsActive: true, LastNotified: &dayAgo},
			want:     true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.reminder.IsEligible(now); got != tt.want {
				t.Errorf("IsEligible() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestNewBudgetSummary(t *testing.T) {
	budget := Budget{Amount: decimal.NewFromInt(200), AlertThreshold: 80}

	tests := []struct {
		spent         string
		percent       string
		overThreshold bool
		overBudget    bool
	}{
		{"0", "0", false, false},
		{"159.99", "80", true, false},
		{"150", "75", false, false},
		{"200", "100", true, false},
		{"250.50", "125.25", true, true},
	}

	for _, tt := range tests {
		t.Run(tt.spent, func(t *testing.T) {
			s := NewBudgetSummary(budget, decimal.RequireFromString(tt.spent))
			if !s.PercentUsed.Equal(decimal.RequireFromString(tt.percent)) {
				t.Errorf("PercentUsed = %s, want %s", s.PercentUsed, tt.percent)
			}
			if s.OverThreshold != tt.overThreshold {
				t.Errorf("OverThreshold = %v, want %v", s.OverThreshold, tt.overThreshold)
			}
			if s.OverBudget != tt.overBudget {
				t.Errorf("OverBudget = %v, want %v", s.OverBudget, tt.overBudget)
			}
			if !s.Remaining.Equal(budget.Amount.Sub(s.Spent)) {
				t.Errorf("Remaining = %s", s.Remaining)
			}
		})
	}
}

func TestTransactionSigned(t *testing.T) {
	expense := Transaction{Amount: decimal.NewFromInt(40), Kind: KindExpense}
	income := Transaction{Amount: decimal.NewFromInt(40), Kind: KindIncome}
	if !expense.Signed().Equal(decimal.NewFromInt(-40)) {
		t.Errorf("expense signed = %s", expense.Signed())
	}
	if !income.Signed().Equal(decimal.NewFromInt(40)) {
		t.Errorf("income signed = %s", income.Signed())
	}
}
