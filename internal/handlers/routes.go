package handlers

import (
	"net/http"

	"famfinance/internal/log"
	"famfinance/internal/models"
)

// Handlers groups everything the router needs
type Handlers struct {
	Middleware  *Middleware
	Auth        *AuthHandler
	Family      *FamilyHandler
	Budget      *BudgetHandler
	Reminder    *ReminderHandler
	Transaction *TransactionHandler
	Bank        *BankHandler
	Cron        *CronHandler
}

// Register adds the API routes to mux
func (h *Handlers) Register(mux *http.ServeMux) {
	m := h.Middleware
	read := func(next http.HandlerFunc) http.HandlerFunc { return m.RequirePermission(models.PermissionRead, next) }
	write := func(next http.HandlerFunc) http.HandlerFunc { return m.RequirePermission(models.PermissionWrite, next) }
	admin := func(next http.HandlerFunc) http.HandlerFunc { return m.RequirePermission(models.PermissionAdmin, next) }

	// Public routes
	mux.HandleFunc("POST /api/auth/register", m.RateLimit(h.Auth.Register))
	mux.HandleFunc("POST /api/auth/login", m.RateLimit(h.Auth.Login))
	mux.HandleFunc("POST /api/auth/logout", h.Auth.Logout)
	mux.HandleFunc("POST /api/auth/forgot-password", m.RateLimit(h.Auth.ForgotPassword))
	mux.HandleFunc("POST /api/auth/reset-password", m.RateLimit(h.Auth.ResetPassword))
	mux.HandleFunc("GET /api/auth/providers", h.Auth.Providers)
	mux.HandleFunc("GET /auth/{provider}/start", h.Auth.StartOAuth)
	mux.HandleFunc("GET /auth/{provider}/callback", m.RateLimit(h.Auth.OAuthCallback))
	mux.HandleFunc("GET /api/invitations/{token}", m.RateLimit(h.Family.ShowInvitation))

	// Session routes that do not act on a particular family
	mux.HandleFunc("GET /api/auth/me", read(h.Auth.Me))
	mux.HandleFunc("GET /api/families", m.RequireAuth(h.Family.ListFamilies))
	mux.HandleFunc("POST /api/families", m.RequireAuth(h.Family.CreateFamily))
	mux.HandleFunc("POST /api/invitations/{token}/accept", m.RequireAuth(h.Family.AcceptInvitation))

	// Family administration
	mux.HandleFunc("PATCH /api/family", admin(h.Family.RenameFamily))
	mux.HandleFunc("GET /api/family/members", read(h.Family.ListMembers))
	mux.HandleFunc("PUT /api/family/members/{userId}/role", admin(h.Family.ChangeRole))
	mux.HandleFunc("DELETE /api/family/members/{userId}", admin(h.Family.RemoveMember))
	mux.HandleFunc("POST /api/family/leave", read(h.Family.Leave))
	mux.HandleFunc("GET /api/family/invitations", admin(h.Family.ListInvitations))
	mux.HandleFunc("POST /api/family/invitations", admin(h.Family.Invite))
	mux.HandleFunc("DELETE /api/family/invitations/{id}", admin(h.Family.RevokeInvitation))

	// Categories and budgets
	mux.HandleFunc("GET /api/categories", read(h.Budget.ListCategories))
	mux.HandleFunc("POST /api/categories", write(h.Budget.CreateCategory))
	mux.HandleFunc("DELETE /api/categories/{id}", admin(h.Budget.DeleteCategory))
	mux.HandleFunc("GET /api/budget-templates", read(h.Budget.ListTemplates))
	mux.HandleFunc("POST /api/budget-templates", write(h.Budget.CreateTemplate))
	mux.HandleFunc("GET /api/budget-templates/{id}", read(h.Budget.GetTemplate))
	mux.HandleFunc("PUT /api/budget-templates/{id}", write(h.Budget.UpdateTemplate))
	mux.HandleFunc("DELETE /api/budget-templates/{id}", write(h.Budget.DeleteTemplate))
	mux.HandleFunc("GET /api/budgets", read(h.Budget.ListBudgets))
	mux.HandleFunc("POST /api/budgets", write(h.Budget.CreateBudget))
	mux.HandleFunc("DELETE /api/budgets/{id}", write(h.Budget.DeleteBudget))
	mux.HandleFunc("GET /api/budgets/summary", read(h.Budget.Summary))
	mux.HandleFunc("GET /api/budgets/missing", read(h.Budget.MissingBudgets))
	mux.HandleFunc("POST /api/budgets/generate", write(h.Budget.Generate))

	// Reminders
	mux.HandleFunc("GET /api/reminders", read(h.Reminder.ListReminders))
	mux.HandleFunc("GET /api/reminders/upcoming", read(h.Reminder.ListUpcoming))
	mux.HandleFunc("POST /api/reminders", write(h.Reminder.CreateReminder))
	mux.HandleFunc("GET /api/reminders/{id}", read(h.Reminder.GetReminder))
	mux.HandleFunc("PUT /api/reminders/{id}", write(h.Reminder.UpdateReminder))
	mux.HandleFunc("DELETE /api/reminders/{id}", write(h.Reminder.DeleteReminder))
	mux.HandleFunc("POST /api/reminders/{id}/complete", write(h.Reminder.CompleteReminder))
	mux.HandleFunc("POST /api/reminders/{id}/reactivate", write(h.Reminder.ReactivateReminder))

	// Ledger. Delete checks row ownership in the service, so the route only needs read.
	mux.HandleFunc("GET /api/transactions", read(h.Transaction.ListTransactions))
	mux.HandleFunc("POST /api/transactions", write(h.Transaction.CreateTransaction))
	mux.HandleFunc("DELETE /api/transactions/{id}", read(h.Transaction.DeleteTransaction))
	mux.HandleFunc("GET /api/transactions/export", read(h.Transaction.ExportTransactions))

	// Banking
	mux.HandleFunc("POST /api/bank/link", admin(h.Bank.Link))
	mux.HandleFunc("GET /api/bank/connections", read(h.Bank.ListConnections))
	mux.HandleFunc("POST /api/bank/connections/{id}/sync", write(h.Bank.Sync))
	mux.HandleFunc("GET /api/bank/accounts", read(h.Bank.ListAccounts))

	// Scheduler
	mux.HandleFunc("POST /api/cron/reminders", m.RequireCron(h.Cron.Reminders))
	mux.HandleFunc("POST /api/cron/email-queue", m.RequireCron(h.Cron.EmailQueue))
	mux.HandleFunc("POST /api/cron/budgets", m.RequireCron(h.Cron.Budgets))
}

// Chain wraps mux with request-scoped logging. The order matters: Logging sits
// directly on the mux so it can read the matched pattern.
func (h *Handlers) Chain(mux http.Handler, logger *log.Logger) http.Handler {
	return log.Middleware(logger)(log.RequestIDMiddleware(RequestID)(h.Middleware.Logging(mux)))
}
