package handlers

import (
	"context"
	"net/http"
	"strconv"

	"github.com/shopspring/decimal"

	"famfinance/internal/models"
	"famfinance/internal/service"
	"famfinance/internal/validation"
)

// ReminderHandler serves reminder management
type ReminderHandler struct {
	reminderService *service.ReminderService
}

// NewReminderHandler creates a new reminder handler
func NewReminderHandler(reminderService *service.ReminderService) *ReminderHandler {
	return &ReminderHandler{reminderService: reminderService}
}

type reminderRequest struct {
	Title            string              `json:"title"`
	Description      string              `json:"description"`
	Amount           decimal.NullDecimal `json:"amount"`
	DueDate          string              `json:"dueDate"`
	Priority         models.Priority     `json:"priority"`
	IsRecurring      bool                `json:"isRecurring"`
	NotifyDaysBefore *int                `json:"notifyDaysBefore"`
}

func (req reminderRequest) input() (service.ReminderInput, error) {
	due, err := parseDateTime("dueDate", req.DueDate)
	if err != nil {
		return service.ReminderInput{}, err
	}
	return service.ReminderInput{
		Title:            req.Title,
		Description:      req.Description,
		Amount:           req.Amount,
		DueDate:          due,
		Priority:         req.Priority,
		IsRecurring:      req.IsRecurring,
		NotifyDaysBefore: req.NotifyDaysBefore,
	}, nil
}

// ListReminders lists reminders; ?completed=true includes completed ones
func (h *ReminderHandler) ListReminders(w http.ResponseWriter, r *http.Request) {
	ac := GetAccessFromContext(r.Context())
	includeCompleted, _ := strconv.ParseBool(r.URL.Query().Get("completed"))

	reminders, err := h.reminderService.ListReminders(r.Context(), ac.Family.ID, includeCompleted)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, reminders)
}

// ListUpcoming lists open reminders due within ?days (default 7)
func (h *ReminderHandler) ListUpcoming(w http.ResponseWriter, r *http.Request) {
	ac := GetAccessFromContext(r.Context())
	days := 0
	if v := r.URL.Query().Get("days"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > 365 {
			respondServiceError(w, r, validation.ValidationError{Field: "days", Message: "must be between 1 and 365"})
			return
		}
		days = n
	}

	reminders, err := h.reminderService.ListUpcoming(r.Context(), ac.Family.ID, days)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, reminders)
}

// GetReminder returns one reminder
func (h *ReminderHandler) GetReminder(w http.ResponseWriter, r *http.Request) {
	ac := GetAccessFromContext(r.Context())
	id, ok := pathID(r, "id")
	if !ok {
		respondWithError(w, r, http.StatusBadRequest, ErrInvalidIdentifier, "", nil)
		return
	}

	rem, err := h.reminderService.GetReminder(r.Context(), ac.Family.ID, id)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, rem)
}

// CreateReminder adds a reminder
func (h *ReminderHandler) CreateReminder(w http.ResponseWriter, r *http.Request) {
	ac := GetAccessFromContext(r.Context())

	var req reminderRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondWithError(w, r, http.StatusBadRequest, ErrInvalidRequestBody, "", err)
		return
	}
	in, err := req.input()
	if err != nil {
		respondServiceError(w, r, err)
		return
	}

	rem, err := h.reminderService.CreateReminder(r.Context(), ac.Family.ID, ac.User.ID, in)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, rem)
}

// UpdateReminder replaces a reminder's editable fields
func (h *ReminderHandler) UpdateReminder(w http.ResponseWriter, r *http.Request) {
	ac := GetAccessFromContext(r.Context())
	id, ok := pathID(r, "id")
	if !ok {
		respondWithError(w, r, http.StatusBadRequest, ErrInvalidIdentifier, "", nil)
		return
	}

	var req reminderRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondWithError(w, r, http.StatusBadRequest, ErrInvalidRequestBody, "", err)
		return
	}
	in, err := req.input()
	if err != nil {
		respondServiceError(w, r, err)
		return
	}

	rem, err := h.reminderService.UpdateReminder(r.Context(), ac.Family.ID, id, in)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, rem)
}

// DeleteReminder removes a reminder
func (h *ReminderHandler) DeleteReminder(w http.ResponseWriter, r *http.Request) {
	ac := GetAccessFromContext(r.Context())
	id, ok := pathID(r, "id")
	if !ok {
		respondWithError(w, r, http.StatusBadRequest, ErrInvalidIdentifier, "", nil)
		return
	}

	if err := h.reminderService.DeleteReminder(r.Context(), ac.Family.ID, id); err != nil {
		respondServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// CompleteReminder marks a reminder done
func (h *ReminderHandler) CompleteReminder(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.reminderService.CompleteReminder)
}

// ReactivateReminder reopens a completed reminder
func (h *ReminderHandler) ReactivateReminder(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.reminderService.ReactivateReminder)
}

func (h *ReminderHandler) transition(w http.ResponseWriter, r *http.Request,
	apply func(ctx context.Context, familyID, id int64) (*models.Reminder, error)) {
	ac := GetAccessFromContext(r.Context())
	id, ok := pathID(r, "id")
	if !ok {
		respondWithError(w, r, http.StatusBadRequest, ErrInvalidIdentifier, "", nil)
		return
	}

	rem, err := apply(r.Context(), ac.Family.ID, id)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, rem)
}
