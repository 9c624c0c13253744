package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"famfinance/internal/banking"
	"famfinance/internal/models"
	"famfinance/internal/repository"
	"famfinance/internal/testutil"
)

type fakeBank struct {
	accounts     []banking.Account
	transactions []banking.Transaction
	err          error
	windows      [][2]time.Time
}

func (b *fakeBank) ExchangePublicToken(ctx context.Context, publicToken string) (*banking.Link, error) {
	if publicToken == "rejected" {
		return nil, errors.New("invalid public token")
	}
	return &banking.Link{AccessToken: "access-" + publicToken, InstitutionName: "First Savings"}, nil
}

func (b *fakeBank) Accounts(ctx context.Context, accessToken string) ([]banking.Account, error) {
	if b.err != nil {
		return nil, b.err
	}
	return b.accounts, nil
}

func (b *fakeBank) Transactions(ctx context.Context, accessToken string, start, end time.Time) ([]banking.Transaction, error) {
	b.windows = append(b.windows, [2]time.Time{start, end})
	return b.transactions, nil
}

var syncNow = time.Date(2024, time.April, 20, 8, 0, 0, 0, time.UTC)

func newBankService(t *testing.T, h *harness, client banking.Client) *BankService {
	t.Helper()
	s := NewBankService(client, h.banks, h.transactions, h.logger)
	s.now = fixedClock(syncNow)
	return s
}

func TestBankLinkAndSync(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	owner := testutil.CreateUser(t, h.db, "Owner")
	familyID := testutil.CreateFamily(t, h.db, "Household", owner)

	bank := &fakeBank{
		accounts: []banking.Account{
			{ID: "acc-1", Name: "Checking", Mask: "0001", Type: "depository", Balance: decimal.RequireFromString("1520.33"), Currency: "USD"},
		},
		transactions: []banking.Transaction{
			{ID: "t-1", AccountID: "acc-1", Amount: decimal.RequireFromString("42.10"), Date: "2024-04-18", Name: "Grocer"},
			{ID: "t-2", AccountID: "acc-1", Amount: decimal.RequireFromString("-2500"), Date: "2024-04-15", Name: "Payroll"},
			{ID: "t-3", AccountID: "acc-1", Amount: decimal.RequireFromString("9.99"), Date: "not-a-date", Name: "Broken"},
		},
	}
	s := newBankService(t, h, bank)

	conn, result, err := s.Link(ctx, familyID, owner.ID, "public-1")
	require.NoError(t, err)
	assert.Equal(t, "First Savings", conn.InstitutionName)
	assert.Equal(t, &models.SyncResult{Accounts: 1, Transactions: 2}, result)
	require.Len(t, bank.windows, 1)
	assert.True(t, bank.windows[0][0].Equal(syncNow.Add(-90*24*time.Hour)))

	txs, err := h.transactions.ListTransactions(ctx, familyID, repository.TransactionFilter{})
	require.NoError(t, err)
	require.Len(t, txs, 2)
	byExternal := map[string]models.Transaction{}
	for _, tx := range txs {
		byExternal[*tx.ExternalID] = tx
	}
	assert.Equal(t, models.KindExpense, byExternal["t-1"].Kind)
	assert.Equal(t, "42.1", byExternal["t-1"].Amount.String())
	assert.Equal(t, models.KindIncome, byExternal["t-2"].Kind)
	assert.Equal(t, "2500", byExternal["t-2"].Amount.String())
	assert.NotNil(t, byExternal["t-2"].AccountID)

	again, err := s.Sync(ctx, familyID, conn.ID)
	require.NoError(t, err)
	assert.Equal(t, &models.SyncResult{Accounts: 1, Duplicates: 2}, again)
	require.Len(t, bank.windows, 2)
	assert.True(t, bank.windows[1][0].Equal(syncNow.AddDate(0, 0, -7)), "later syncs overlap the previous window")

	accounts, err := s.ListAccounts(ctx, familyID)
	require.NoError(t, err)
	require.Len(t, accounts, 1)
	assert.Equal(t, "1520.33", accounts[0].Balance.String())

	_, err = s.Sync(ctx, familyID+1, conn.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestBankUpstreamFailures(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	owner := testutil.CreateUser(t, h.db, "Owner")
	familyID := testutil.CreateFamily(t, h.db, "Household", owner)

	bank := &fakeBank{err: errors.New("aggregator down")}
	s := newBankService(t, h, bank)

	_, _, err := s.Link(ctx, familyID, owner.ID, "rejected")
	assert.ErrorIs(t, err, ErrUpstream)

	conn, result, err := s.Link(ctx, familyID, owner.ID, "public-2")
	require.NoError(t, err, "a failed first sync keeps the connection")
	assert.Nil(t, result)

	_, err = s.Sync(ctx, familyID, conn.ID)
	assert.ErrorIs(t, err, ErrUpstream)

	_, _, err = s.Link(ctx, familyID, owner.ID, " ")
	assert.ErrorIs(t, err, ErrValidation)
}

func TestBankDisabled(t *testing.T) {
	h := newHarness(t)
	s := newBankService(t, h, nil)

	_, _, err := s.Link(context.Background(), 1, 1, "public")
	assert.ErrorIs(t, err, ErrBankingDisabled)
	_, err = s.Sync(context.Background(), 1, 1)
	assert.ErrorIs(t, err, ErrBankingDisabled)
}
