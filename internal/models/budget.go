package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// BudgetPeriod is the cadence label carried by templates and budgets
type BudgetPeriod string

const (
	PeriodMonthly   BudgetPeriod = "MONTHLY"
	PeriodQuarterly BudgetPeriod = "QUARTERLY"
	PeriodYearly    BudgetPeriod = "YEARLY"
)

// Valid reports whether p is a known cadence
func (p BudgetPeriod) Valid() bool {
	switch p {
	case PeriodMonthly, PeriodQuarterly, PeriodYearly:
		return true
	}
	return false
}

// DefaultAlertThreshold is the percent of a budget that triggers an alert
const DefaultAlertThreshold = 80

// Category groups transactions and budgets within a family
type Category struct {
	ID        int64           `json:"id"`
	FamilyID  int64           `json:"familyId"`
	Name      string          `json:"name"`
	Kind      TransactionKind `json:"kind"`
	CreatedAt time.Time       `json:"createdAt"`
}

// BudgetTemplate is a recurring budget definition
type BudgetTemplate struct {
	ID             int64           `json:"id"`
	FamilyID       int64           `json:"familyId"`
	CategoryID     int64           `json:"categoryId"`
	Name           string          `json:"name"`
	MonthlyLimit   decimal.Decimal `json:"monthlyLimit"`
	AlertThreshold int             `json:"alertThreshold"`
	Period         BudgetPeriod    `json:"period"`
	AutoGenerate   bool            `json:"autoGenerate"`
	IsActive       bool            `json:"isActive"`
	LastGenerated  *time.Time      `json:"lastGenerated,omitempty"`
	CreatedBy      int64           `json:"createdBy"`
	CreatedAt      time.Time       `json:"createdAt"`
	UpdatedAt      time.Time       `json:"updatedAt"`
}

// Budget is a budget materialized for one period window [StartDate, EndDate]
type Budget struct {
	ID             int64           `json:"id"`
	FamilyID       int64           `json:"familyId"`
	CategoryID     int64           `json:"categoryId"`
	Name           string          `json:"name"`
	Amount         decimal.Decimal `json:"amount"`
	AlertThreshold int             `json:"alertThreshold"`
	Period         BudgetPeriod    `json:"period"`
	StartDate      time.Time       `json:"startDate"`
	EndDate        time.Time       `json:"endDate"`
	TemplateID     *int64          `json:"templateId,omitempty"`
	CreatedBy      int64           `json:"createdBy"`
	CreatedAt      time.Time       `json:"createdAt"`
}

// BudgetSummary reports spending against a budget
type BudgetSummary struct {
	Budget        Budget          `json:"budget"`
	Spent         decimal.Decimal `json:"spent"`
	Remaining     decimal.Decimal `json:"remaining"`
	PercentUsed   decimal.Decimal `json:"percentUsed"`
	OverThreshold bool            `json:"overThreshold"`
	OverBudget    bool            `json:"overBudget"`
}

// NewBudgetSummary computes spending figures for b given the amount spent
func NewBudgetSummary(b Budget, spent decimal.Decimal) BudgetSummary {
	s := BudgetSummary{
		Budget:    b,
		Spent:     spent,
		Remaining: b.Amount.Sub(spent),
	}
	if b.Amount.IsPositive() {
		s.PercentUsed = spent.Div(b.Amount).Mul(decimal.NewFromInt(100)).Round(2)
	} else if spent.IsPositive() {
		s.PercentUsed = decimal.NewFromInt(100)
	}
	s.OverThreshold = s.PercentUsed.GreaterThanOrEqual(decimal.NewFromInt(int64(b.AlertThreshold)))
	s.OverBudget = spent.GreaterThan(b.Amount)
	return s
}

// Skip reasons reported by budget generation
const (
	SkipReasonExists = "already exists for period"
	SkipReasonError  = "error during generation"
)

// SkippedTemplate records a template that did not produce a budget
type SkippedTemplate struct {
	TemplateID int64  `json:"templateId"`
	Reason     string `json:"reason"`
}

// GenerationResult is the outcome of generating budgets for a period
type GenerationResult struct {
	Generated []Budget          `json:"generated"`
	Skipped   []SkippedTemplate `json:"skipped"`
}
