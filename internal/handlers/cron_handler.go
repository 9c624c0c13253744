package handlers

import (
	"context"
	"net/http"
	"time"

	"famfinance/internal/log"
	"famfinance/internal/service"
)

// CronHandler runs the scheduled sweeps on behalf of an external scheduler
type CronHandler struct {
	reminderService *service.ReminderService
	budgetService   *service.BudgetService
	emailQueue      *service.EmailQueue
	now             func() time.Time
}

// NewCronHandler creates a new cron handler
func NewCronHandler(reminderService *service.ReminderService, budgetService *service.BudgetService, emailQueue *service.EmailQueue) *CronHandler {
	return &CronHandler{
		reminderService: reminderService,
		budgetService:   budgetService,
		emailQueue:      emailQueue,
		now:             time.Now,
	}
}

// sweepContext detaches a sweep from the scheduler's connection. Reminders and jobs
// are claimed before they are sent, so a sweep abandoned halfway would drop sends.
func sweepContext(r *http.Request) context.Context {
	ctx := context.WithoutCancel(r.Context())
	return log.WithContext(ctx, log.FromContext(ctx).WithComponent(log.ComponentCron))
}

// Reminders notifies every reminder that is due
func (h *CronHandler) Reminders(w http.ResponseWriter, r *http.Request) {
	result, err := h.reminderService.Sweep(sweepContext(r), h.now())
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, result)
}

// EmailQueue delivers a batch of queued emails
func (h *CronHandler) EmailQueue(w http.ResponseWriter, r *http.Request) {
	result, err := h.emailQueue.Process(sweepContext(r))
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, result)
}

// Budgets generates the current month's budgets for every family
func (h *CronHandler) Budgets(w http.ResponseWriter, r *http.Request) {
	month, err := queryMonth(r)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}

	totals, err := h.budgetService.GenerateAll(sweepContext(r), month)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, totals)
}
