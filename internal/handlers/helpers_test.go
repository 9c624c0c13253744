package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"famfinance/internal/database"
	"famfinance/internal/log"
	"famfinance/internal/models"
	"famfinance/internal/repository"
	"famfinance/internal/security"
	"famfinance/internal/service"
	"famfinance/internal/testutil"
)

const (
	testJWTSecret  = "0123456789abcdef0123456789abcdef"
	testCronSecret = "cron-secret"
	testPassword   = "correct horse battery"
)

type fakeMailer struct {
	mu   sync.Mutex
	sent []service.Message
	fail bool
}

func (m *fakeMailer) Send(ctx context.Context, msg service.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail {
		return errors.New("mail relay down")
	}
	m.sent = append(m.sent, msg)
	return nil
}

func (m *fakeMailer) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sent)
}

type testServer struct {
	handler  http.Handler
	db       *database.DB
	mailer   *fakeMailer
	csrf     *security.CSRFGenerator
	families *repository.FamilyRepository
	jobs     *repository.EmailJobRepository
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	db := testutil.NewTestDB(t)
	logger := log.Discard()
	mailer := &fakeMailer{}

	users := repository.NewUserRepository(db)
	families := repository.NewFamilyRepository(db)
	invitations := repository.NewInvitationRepository(db)
	categories := repository.NewCategoryRepository(db)
	budgets := repository.NewBudgetRepository(db)
	reminders := repository.NewReminderRepository(db)
	transactions := repository.NewTransactionRepository(db)
	banks := repository.NewBankRepository(db)
	jobs := repository.NewEmailJobRepository(db)

	tokens := security.NewTokenIssuer(testJWTSecret, time.Hour)
	csrf := security.NewCSRFGenerator(testJWTSecret)
	composer := service.NewEmailComposer("https://finance.example.com")

	queue := service.NewEmailQueue(jobs, mailer, 20, 3, logger)
	authService := service.NewAuthService(db, users, tokens, mailer, queue, composer, logger)
	accessService := service.NewAccessService(db, users, families, logger)
	familyService := service.NewFamilyService(db, families, invitations, queue, composer, 0, logger)
	budgetService := service.NewBudgetService(db, budgets, categories, transactions, time.UTC, logger)
	reminderService := service.NewReminderService(reminders, families, mailer, composer, 50, logger)
	transactionService := service.NewTransactionService(transactions, categories, time.UTC, logger)
	bankService := service.NewBankService(nil, banks, transactions, logger)

	h := &Handlers{
		Middleware:  NewMiddleware(authService, accessService, csrf, security.NewRateLimiter(1000, time.Minute), testCronSecret, false),
		Auth:        NewAuthHandler(authService, csrf, nil, "https://finance.example.com", "https://finance.example.com"),
		Family:      NewFamilyHandler(familyService, authService),
		Budget:      NewBudgetHandler(budgetService),
		Reminder:    NewReminderHandler(reminderService),
		Transaction: NewTransactionHandler(transactionService),
		Bank:        NewBankHandler(bankService),
		Cron:        NewCronHandler(reminderService, budgetService, queue),
	}
	mux := http.NewServeMux()
	h.Register(mux)

	return &testServer{
		handler:  h.Chain(mux, logger),
		db:       db,
		mailer:   mailer,
		csrf:     csrf,
		families: families,
		jobs:     jobs,
	}
}

type requestOption func(*http.Request)

func withBearer(token string) requestOption {
	return func(r *http.Request) { r.Header.Set("Authorization", "Bearer "+token) }
}

func withHeader(name, value string) requestOption {
	return func(r *http.Request) { r.Header.Set(name, value) }
}

func withContext(ctx context.Context) requestOption {
	return func(r *http.Request) { *r = *r.WithContext(ctx) }
}

func withCookie(name, value string) requestOption {
	return func(r *http.Request) { r.AddCookie(&http.Cookie{Name: name, Value: value}) }
}

func (s *testServer) do(t *testing.T, method, path string, body any, opts ...requestOption) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	for _, opt := range opts {
		opt(req)
	}
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	return rec
}

// register signs up a new account through the API and returns its session
func (s *testServer) register(t *testing.T, email, name string) sessionResponse {
	t.Helper()
	rec := s.do(t, http.MethodPost, "/api/auth/register",
		registerRequest{Email: email, Password: testPassword, Name: name})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	return decode[sessionResponse](t, rec)
}

// me resolves the caller's acting family, provisioning it on first use
func (s *testServer) me(t *testing.T, token string) meResponse {
	t.Helper()
	rec := s.do(t, http.MethodGet, "/api/auth/me", nil, withBearer(token))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	return decode[meResponse](t, rec)
}

// addMember joins an already registered user to familyID with role
func (s *testServer) addMember(t *testing.T, familyID, userID int64, role models.Role) {
	t.Helper()
	require.NoError(t, s.families.AddMember(context.Background(), familyID, userID, role, time.Now().UTC()))
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}
