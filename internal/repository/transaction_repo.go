package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"famfinance/internal/database"
	"famfinance/internal/models"
)

// TransactionRepository handles database operations for transactions
type TransactionRepository struct {
	db database.DBTX
}

// NewTransactionRepository creates a new transaction repository
func NewTransactionRepository(db database.DBTX) *TransactionRepository {
	return &TransactionRepository{db: db}
}

// WithTx returns a repository bound to tx
func (r *TransactionRepository) WithTx(tx *database.Tx) *TransactionRepository {
	return &TransactionRepository{db: tx}
}

// TransactionFilter narrows a transaction listing. Zero values mean no restriction.
type TransactionFilter struct {
	Start      time.Time // inclusive
	End        time.Time // exclusive
	CategoryID int64
	Kind       models.TransactionKind
	Limit      int
}

const transactionColumns = `id, family_id, account_id, category_id, amount, kind, description, date, external_id, created_by, created_at`

func scanTransaction(row interface{ Scan(...any) error }) (*models.Transaction, error) {
	t := &models.Transaction{}
	var accountID, categoryID, createdBy sql.NullInt64
	var externalID sql.NullString
	err := row.Scan(
		&t.ID,
		&t.FamilyID,
		&accountID,
		&categoryID,
		&t.Amount,
		&t.Kind,
		&t.Description,
		&t.Date,
		&externalID,
		&createdBy,
		&t.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	t.AccountID = int64Ptr(accountID)
	t.CategoryID = int64Ptr(categoryID)
	t.CreatedBy = int64Ptr(createdBy)
	t.ExternalID = stringPtr(externalID)
	return t, nil
}

// CreateTransaction inserts a transaction
func (r *TransactionRepository) CreateTransaction(ctx context.Context, t *models.Transaction) error {
	t.Date = utc(t.Date)
	t.CreatedAt = utc(t.CreatedAt)
	query := `
		INSERT INTO transactions (family_id, account_id, category_id, amount, kind, description, date, external_id, created_by, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	id, err := r.db.ExecReturningID(ctx, query, t.FamilyID, nullInt64(t.AccountID), nullInt64(t.CategoryID), t.Amount, t.Kind,
		t.Description, t.Date, nullString(t.ExternalID), nullInt64(t.CreatedBy), t.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create transaction: %w", err)
	}
	t.ID = id
	return nil
}

// InsertExternal inserts a synced transaction. It reports false without error when
// a row with the same external id already exists in the family.
func (r *TransactionRepository) InsertExternal(ctx context.Context, t *models.Transaction) (bool, error) {
	err := r.CreateTransaction(ctx, t)
	if err != nil && r.db.IsUniqueViolation(err) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// GetTransaction retrieves a transaction within a family
func (r *TransactionRepository) GetTransaction(ctx context.Context, familyID, id int64) (*models.Transaction, error) {
	t, err := scanTransaction(r.db.QueryRowContext(ctx, "SELECT "+transactionColumns+" FROM transactions WHERE id = ? AND family_id = ?", id, familyID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get transaction: %w", err)
	}
	return t, nil
}

// ListTransactions returns a family's transactions, newest first
func (r *TransactionRepository) ListTransactions(ctx context.Context, familyID int64, f TransactionFilter) ([]models.Transaction, error) {
	query := "SELECT " + transactionColumns + " FROM transactions WHERE family_id = ?"
	args := []any{familyID}
	if !f.Start.IsZero() {
		query += " AND date >= ?"
		args = append(args, utc(f.Start))
	}
	if !f.End.IsZero() {
		query += " AND date < ?"
		args = append(args, utc(f.End))
	}
	if f.CategoryID != 0 {
		query += " AND category_id = ?"
		args = append(args, f.CategoryID)
	}
	if f.Kind != "" {
		query += " AND kind = ?"
		args = append(args, f.Kind)
	}
	query += " ORDER BY date DESC, id DESC"
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query transactions: %w", err)
	}
	defer rows.Close()

	var transactions []models.Transaction
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan transaction: %w", err)
		}
		transactions = append(transactions, *t)
	}
	return transactions, rows.Err()
}

// SumExpenses totals EXPENSE amounts for a category in [start, end).
// Amounts are summed as decimals in Go; SQLite stores them as text.
func (r *TransactionRepository) SumExpenses(ctx context.Context, familyID, categoryID int64, start, end time.Time) (decimal.Decimal, error) {
	query := "SELECT amount FROM transactions WHERE family_id = ? AND category_id = ? AND kind = ? AND date >= ? AND date < ?"
	rows, err := r.db.QueryContext(ctx, query, familyID, categoryID, models.KindExpense, utc(start), utc(end))
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to query expenses: %w", err)
	}
	defer rows.Close()

	total := decimal.Zero
	for rows.Next() {
		var amount decimal.Decimal
		if err := rows.Scan(&amount); err != nil {
			return decimal.Zero, fmt.Errorf("failed to scan amount: %w", err)
		}
		total = total.Add(amount)
	}
	return total, rows.Err()
}

// DeleteTransaction removes a transaction within a family
func (r *TransactionRepository) DeleteTransaction(ctx context.Context, familyID, id int64) (bool, error) {
	result, err := r.db.ExecContext(ctx, "DELETE FROM transactions WHERE id = ? AND family_id = ?", id, familyID)
	if err != nil {
		return false, fmt.Errorf("failed to delete transaction: %w", err)
	}
	return rowsAffected(result)
}
