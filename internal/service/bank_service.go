package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"famfinance/internal/banking"
	"famfinance/internal/log"
	"famfinance/internal/models"
	"famfinance/internal/repository"
)

const initialSyncWindow = 90 * 24 * time.Hour

// BankService links institutions through the aggregator and imports their data
type BankService struct {
	client       banking.Client
	banks        *repository.BankRepository
	transactions *repository.TransactionRepository
	logger       *log.Logger
	now          func() time.Time
}

// NewBankService creates a bank service. A nil client disables linking and syncing.
func NewBankService(client banking.Client, banks *repository.BankRepository, transactions *repository.TransactionRepository, logger *log.Logger) *BankService {
	return &BankService{
		client:       client,
		banks:        banks,
		transactions: transactions,
		logger:       logger.WithComponent(log.ComponentBanking),
		now:          time.Now,
	}
}

// Link exchanges a public token for a connection and runs a best-effort first sync
func (s *BankService) Link(ctx context.Context, familyID, userID int64, publicToken string) (*models.BankConnection, *models.SyncResult, error) {
	if s.client == nil {
		return nil, nil, ErrBankingDisabled
	}
	if strings.TrimSpace(publicToken) == "" {
		return nil, nil, fmt.Errorf("%w: publicToken is required", ErrValidation)
	}

	link, err := s.client.ExchangePublicToken(ctx, publicToken)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %w", ErrUpstream, err)
	}

	conn := &models.BankConnection{
		FamilyID:        familyID,
		InstitutionName: link.InstitutionName,
		AccessToken:     link.AccessToken,
		CreatedBy:       userID,
		CreatedAt:       s.now(),
	}
	if err := s.banks.CreateConnection(ctx, conn); err != nil {
		return nil, nil, err
	}
	s.logger.InfoContext(ctx, "bank linked", log.FieldFamilyID, familyID, "connection_id", conn.ID)

	result, err := s.sync(ctx, conn)
	if err != nil {
		s.logger.WarnContext(ctx, "initial bank sync failed", log.FieldFamilyID, familyID, "connection_id", conn.ID, log.FieldError, err)
		return conn, nil, nil
	}
	return conn, result, nil
}

// Sync imports accounts and transactions for one connection of the family
func (s *BankService) Sync(ctx context.Context, familyID, connectionID int64) (*models.SyncResult, error) {
	if s.client == nil {
		return nil, ErrBankingDisabled
	}
	conn, err := s.banks.GetConnection(ctx, familyID, connectionID)
	if err != nil {
		return nil, err
	}
	if conn == nil {
		return nil, notFound("bank connection")
	}
	return s.sync(ctx, conn)
}

func (s *BankService) sync(ctx context.Context, conn *models.BankConnection) (*models.SyncResult, error) {
	now := s.now()
	result := &models.SyncResult{}

	accounts, err := s.client.Accounts(ctx, conn.AccessToken)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUpstream, err)
	}
	accountIDs := make(map[string]int64, len(accounts))
	for _, a := range accounts {
		account := &models.BankAccount{
			FamilyID:     conn.FamilyID,
			ConnectionID: conn.ID,
			ExternalID:   a.ID,
			Name:         a.Name,
			Mask:         a.Mask,
			Type:         a.Type,
			Balance:      a.Balance,
			Currency:     a.Currency,
			UpdatedAt:    now,
		}
		if err := s.banks.UpsertAccount(ctx, account); err != nil {
			return nil, err
		}
		accountIDs[a.ID] = account.ID
		result.Accounts++
	}

	start := now.Add(-initialSyncWindow)
	if conn.LastSyncedAt != nil {
		// Overlap the previous window; duplicates are dropped by external id
		start = conn.LastSyncedAt.AddDate(0, 0, -7)
	}
	txs, err := s.client.Transactions(ctx, conn.AccessToken, start, now)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUpstream, err)
	}

	for _, tx := range txs {
		t, err := toTransaction(conn, tx, accountIDs, now)
		if err != nil {
			s.logger.WarnContext(ctx, "skipping malformed bank transaction", "external_id", tx.ID, log.FieldError, err)
			continue
		}
		inserted, err := s.transactions.InsertExternal(ctx, t)
		if err != nil {
			return nil, err
		}
		if inserted {
			result.Transactions++
		} else {
			result.Duplicates++
		}
	}

	if err := s.banks.TouchConnectionSynced(ctx, conn.ID, now); err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "bank synced",
		log.FieldFamilyID, conn.FamilyID,
		log.FieldOperation, log.OpSync,
		"connection_id", conn.ID,
		"accounts", result.Accounts,
		"transactions", result.Transactions,
		"duplicates", result.Duplicates)
	return result, nil
}

func toTransaction(conn *models.BankConnection, tx banking.Transaction, accountIDs map[string]int64, now time.Time) (*models.Transaction, error) {
	if tx.ID == "" {
		return nil, fmt.Errorf("missing transaction id")
	}
	date, err := tx.ParsedDate()
	if err != nil {
		return nil, err
	}
	if tx.Amount.IsZero() {
		return nil, fmt.Errorf("zero amount")
	}

	kind := models.KindExpense
	if tx.Amount.IsNegative() {
		kind = models.KindIncome
	}
	externalID := tx.ID
	t := &models.Transaction{
		FamilyID:    conn.FamilyID,
		Amount:      tx.Amount.Abs(),
		Kind:        kind,
		Description: tx.Name,
		Date:        date,
		ExternalID:  &externalID,
		CreatedAt:   now,
	}
	if id, ok := accountIDs[tx.AccountID]; ok {
		t.AccountID = &id
	}
	return t, nil
}

// ListConnections returns the family's linked institutions
func (s *BankService) ListConnections(ctx context.Context, familyID int64) ([]models.BankConnection, error) {
	return s.banks.ListConnections(ctx, familyID)
}

// ListAccounts returns the family's bank accounts
func (s *BankService) ListAccounts(ctx context.Context, familyID int64) ([]models.BankAccount, error) {
	return s.banks.ListAccounts(ctx, familyID)
}
