package service

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"famfinance/internal/export"
	"famfinance/internal/log"
	"famfinance/internal/models"
	"famfinance/internal/repository"
	"famfinance/internal/validation"
)

const maxTransactionList = 500

// TransactionInput describes a manually entered transaction
type TransactionInput struct {
	CategoryID  *int64
	Amount      decimal.Decimal
	Kind        models.TransactionKind
	Description string
	Date        time.Time
}

// TransactionQuery narrows a transaction listing
type TransactionQuery struct {
	Month      time.Time
	AllTime    bool
	CategoryID int64
	Kind       models.TransactionKind
}

// TransactionService manages manual transactions and exports
type TransactionService struct {
	transactions *repository.TransactionRepository
	categories   *repository.CategoryRepository
	loc          *time.Location
	logger       *log.Logger
	now          func() time.Time
}

// NewTransactionService creates a transaction service
func NewTransactionService(transactions *repository.TransactionRepository, categories *repository.CategoryRepository, loc *time.Location, logger *log.Logger) *TransactionService {
	if loc == nil {
		loc = time.Local
	}
	return &TransactionService{
		transactions: transactions,
		categories:   categories,
		loc:          loc,
		logger:       logger.WithComponent(log.ComponentLedger),
		now:          time.Now,
	}
}

// Create records a manual transaction on behalf of the caller
func (s *TransactionService) Create(ctx context.Context, ac *models.AccessContext, in TransactionInput) (*models.Transaction, error) {
	if !ac.Family.Can(models.PermissionWrite) {
		return nil, ErrUnauthorized
	}

	in.Description = strings.TrimSpace(in.Description)
	if err := validation.First(
		validation.ValidateAmount("amount", in.Amount),
		validation.ValidateDescription(in.Description),
		validation.ValidateDate("date", in.Date),
	); err != nil {
		return nil, invalid(err)
	}
	if !in.Kind.Valid() {
		return nil, invalid(validation.ValidationError{Field: "kind", Message: "must be INCOME or EXPENSE"})
	}
	if in.CategoryID != nil {
		c, err := s.categories.GetCategory(ctx, ac.Family.ID, *in.CategoryID)
		if err != nil {
			return nil, err
		}
		if c == nil {
			return nil, notFound("category")
		}
	}

	userID := ac.User.ID
	t := &models.Transaction{
		FamilyID:    ac.Family.ID,
		CategoryID:  in.CategoryID,
		Amount:      in.Amount,
		Kind:        in.Kind,
		Description: in.Description,
		Date:        in.Date,
		CreatedBy:   &userID,
		CreatedAt:   s.now(),
	}
	if err := s.transactions.CreateTransaction(ctx, t); err != nil {
		return nil, err
	}
	return t, nil
}

// Period returns the month window for month, or the current month when zero
func (s *TransactionService) Period(month time.Time) Period {
	return MonthWindow(month, s.now(), s.loc)
}

// List returns the family's transactions for a month (current month when zero)
func (s *TransactionService) List(ctx context.Context, familyID int64, q TransactionQuery) ([]models.Transaction, error) {
	filter := repository.TransactionFilter{
		CategoryID: q.CategoryID,
		Kind:       q.Kind,
		Limit:      maxTransactionList,
	}
	if !q.AllTime {
		period := s.Period(q.Month)
		filter.Start = period.Start
		filter.End = period.Next
	}
	return s.transactions.ListTransactions(ctx, familyID, filter)
}

// Delete removes a transaction. Admins may delete any row, members only rows they created.
func (s *TransactionService) Delete(ctx context.Context, ac *models.AccessContext, id int64) error {
	if !ac.Family.Can(models.PermissionWrite) {
		return ErrUnauthorized
	}

	t, err := s.transactions.GetTransaction(ctx, ac.Family.ID, id)
	if err != nil {
		return err
	}
	if t == nil {
		return notFound("transaction")
	}
	if !ac.Family.Can(models.PermissionAdmin) && (t.CreatedBy == nil || *t.CreatedBy != ac.User.ID) {
		return fmt.Errorf("%w: members can only delete their own transactions", ErrForbidden)
	}

	deleted, err := s.transactions.DeleteTransaction(ctx, ac.Family.ID, id)
	if err != nil {
		return err
	}
	if !deleted {
		return notFound("transaction")
	}
	s.logger.InfoContext(ctx, "transaction deleted", log.FieldFamilyID, ac.Family.ID, log.FieldUserID, ac.User.ID, "transaction_id", id)
	return nil
}

// Export writes the selected transactions as an XLSX workbook
func (s *TransactionService) Export(ctx context.Context, familyID int64, q TransactionQuery, w io.Writer) error {
	filter := repository.TransactionFilter{CategoryID: q.CategoryID, Kind: q.Kind}
	if !q.AllTime {
		period := s.Period(q.Month)
		filter.Start = period.Start
		filter.End = period.Next
	}
	transactions, err := s.transactions.ListTransactions(ctx, familyID, filter)
	if err != nil {
		return err
	}

	categories, err := s.categories.ListCategories(ctx, familyID)
	if err != nil {
		return err
	}
	names := make(map[int64]string, len(categories))
	for _, c := range categories {
		names[c.ID] = c.Name
	}

	return export.WriteTransactionsXLSX(w, transactions, names)
}
