package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"famfinance/internal/database"
	"famfinance/internal/log"
	"famfinance/internal/repository"
	"famfinance/internal/security"
	"famfinance/internal/testutil"
)

type fakeMailer struct {
	mu     sync.Mutex
	sent   []Message
	failTo map[string]bool
	fail   bool
}

func (m *fakeMailer) Send(ctx context.Context, msg Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail || m.failTo[msg.To] {
		return errors.New("smtp unavailable")
	}
	m.sent = append(m.sent, msg)
	return nil
}

func (m *fakeMailer) Sent() []Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Message(nil), m.sent...)
}

type fakePublisher struct {
	mu  sync.Mutex
	ids []int64
}

func (p *fakePublisher) PublishEmailJob(ctx context.Context, jobID int64) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.ids = append(p.ids, jobID)
	return nil
}

type harness struct {
	db     *database.DB
	mailer *fakeMailer

	users        *repository.UserRepository
	families     *repository.FamilyRepository
	invitations  *repository.InvitationRepository
	categories   *repository.CategoryRepository
	budgets      *repository.BudgetRepository
	reminders    *repository.ReminderRepository
	transactions *repository.TransactionRepository
	banks        *repository.BankRepository
	jobs         *repository.EmailJobRepository

	queue       *EmailQueue
	access      *AccessService
	auth        *AuthService
	family      *FamilyService
	budget      *BudgetService
	reminder    *ReminderService
	transaction *TransactionService
	composer    *EmailComposer
	tokenIssuer *security.TokenIssuer
	logger      *log.Logger
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	db := testutil.NewTestDB(t)
	logger := log.Discard()
	h := &harness{
		db:           db,
		mailer:       &fakeMailer{failTo: map[string]bool{}},
		users:        repository.NewUserRepository(db),
		families:     repository.NewFamilyRepository(db),
		invitations:  repository.NewInvitationRepository(db),
		categories:   repository.NewCategoryRepository(db),
		budgets:      repository.NewBudgetRepository(db),
		reminders:    repository.NewReminderRepository(db),
		transactions: repository.NewTransactionRepository(db),
		banks:        repository.NewBankRepository(db),
		jobs:         repository.NewEmailJobRepository(db),
		composer:     NewEmailComposer("https://finance.example.com"),
		tokenIssuer:  security.NewTokenIssuer("0123456789abcdef0123456789abcdef", time.Hour),
		logger:       logger,
	}

	h.queue = NewEmailQueue(h.jobs, h.mailer, 20, 3, logger)
	h.access = NewAccessService(db, h.users, h.families, logger)
	h.auth = NewAuthService(db, h.users, h.tokenIssuer, h.mailer, h.queue, h.composer, logger)
	h.family = NewFamilyService(db, h.families, h.invitations, h.queue, h.composer, 0, logger)
	h.budget = NewBudgetService(db, h.budgets, h.categories, h.transactions, time.UTC, logger)
	h.reminder = NewReminderService(h.reminders, h.families, h.mailer, h.composer, 50, logger)
	h.transaction = NewTransactionService(h.transactions, h.categories, time.UTC, logger)
	return h
}

func (h *harness) count(t *testing.T, query string, args ...any) int {
	t.Helper()
	var n int
	if err := h.db.QueryRowContext(context.Background(), query, args...).Scan(&n); err != nil {
		t.Fatalf("count query failed: %v", err)
	}
	return n
}

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}
