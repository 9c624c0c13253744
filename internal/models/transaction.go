package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// TransactionKind is the direction of money movement
type TransactionKind string

const (
	KindIncome  TransactionKind = "INCOME"
	KindExpense TransactionKind = "EXPENSE"
)

// Valid reports whether k is a known kind
func (k TransactionKind) Valid() bool {
	return k == KindIncome || k == KindExpense
}

// Transaction is a monetary event. Amount is always positive; Kind carries the sign.
type Transaction struct {
	ID          int64           `json:"id"`
	FamilyID    int64           `json:"familyId"`
	AccountID   *int64          `json:"accountId,omitempty"`
	CategoryID  *int64          `json:"categoryId,omitempty"`
	Amount      decimal.Decimal `json:"amount"`
	Kind        TransactionKind `json:"kind"`
	Description string          `json:"description"`
	Date        time.Time       `json:"date"`
	ExternalID  *string         `json:"externalId,omitempty"`
	CreatedBy   *int64          `json:"createdBy,omitempty"`
	CreatedAt   time.Time       `json:"createdAt"`
}

// Signed returns the amount with expenses negative
func (t *Transaction) Signed() decimal.Decimal {
	if t.Kind == KindExpense {
		return t.Amount.Neg()
	}
	return t.Amount
}

// BankConnection is a linked institution at the aggregator
type BankConnection struct {
	ID              int64      `json:"id"`
	FamilyID        int64      `json:"familyId"`
	InstitutionName string     `json:"institutionName"`
	AccessToken     string     `json:"-"`
	LastSyncedAt    *time.Time `json:"lastSyncedAt,omitempty"`
	CreatedBy       int64      `json:"createdBy"`
	CreatedAt       time.Time  `json:"createdAt"`
}

// BankAccount is an account reported by the aggregator for a connection
type BankAccount struct {
	ID           int64           `json:"id"`
	FamilyID     int64           `json:"familyId"`
	ConnectionID int64           `json:"connectionId"`
	ExternalID   string          `json:"externalId"`
	Name         string          `json:"name"`
	Mask         string          `json:"mask"`
	Type         string          `json:"type"`
	Balance      decimal.Decimal `json:"balance"`
	Currency     string          `json:"currency"`
	UpdatedAt    time.Time       `json:"updatedAt"`
}

// SyncResult counts what a bank sync stored
type SyncResult struct {
	Accounts     int `json:"accounts"`
	Transactions int `json:"transactions"`
	Duplicates   int `json:"duplicates"`
}
