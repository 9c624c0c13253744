package handlers

import (
	"net/http"
	"time"

	"github.com/shopspring/decimal"

	"famfinance/internal/models"
	"famfinance/internal/service"
	"famfinance/internal/validation"
)

// BudgetHandler serves categories, budget templates and budgets
type BudgetHandler struct {
	budgetService *service.BudgetService
}

// NewBudgetHandler creates a new budget handler
func NewBudgetHandler(budgetService *service.BudgetService) *BudgetHandler {
	return &BudgetHandler{budgetService: budgetService}
}

type categoryRequest struct {
	Name string                 `json:"name"`
	Kind models.TransactionKind `json:"kind"`
}

type templateRequest struct {
	CategoryID     int64               `json:"categoryId"`
	Name           string              `json:"name"`
	MonthlyLimit   decimal.Decimal     `json:"monthlyLimit"`
	AlertThreshold int                 `json:"alertThreshold"`
	Period         models.BudgetPeriod `json:"period"`
	AutoGenerate   *bool               `json:"autoGenerate"`
	IsActive       *bool               `json:"isActive"`
}

func (req templateRequest) input() service.TemplateInput {
	return service.TemplateInput{
		CategoryID:     req.CategoryID,
		Name:           req.Name,
		MonthlyLimit:   req.MonthlyLimit,
		AlertThreshold: req.AlertThreshold,
		Period:         req.Period,
		AutoGenerate:   req.AutoGenerate == nil || *req.AutoGenerate,
		IsActive:       req.IsActive == nil || *req.IsActive,
	}
}

type budgetRequest struct {
	CategoryID     int64           `json:"categoryId"`
	Name           string          `json:"name"`
	Amount         decimal.Decimal `json:"amount"`
	AlertThreshold int             `json:"alertThreshold"`
	Month          string          `json:"month"`
}

type periodResponse struct {
	Period string `json:"period"`
}

type budgetsResponse struct {
	periodResponse
	Budgets []models.Budget `json:"budgets"`
}

type summaryResponse struct {
	periodResponse
	Summaries []models.BudgetSummary `json:"summaries"`
}

type missingResponse struct {
	periodResponse
	Templates []models.BudgetTemplate `json:"templates"`
}

type generateResponse struct {
	periodResponse
	*models.GenerationResult
}

// ListCategories lists the acting family's categories
func (h *BudgetHandler) ListCategories(w http.ResponseWriter, r *http.Request) {
	ac := GetAccessFromContext(r.Context())
	categories, err := h.budgetService.ListCategories(r.Context(), ac.Family.ID)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, categories)
}

// CreateCategory adds a category
func (h *BudgetHandler) CreateCategory(w http.ResponseWriter, r *http.Request) {
	ac := GetAccessFromContext(r.Context())

	var req categoryRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondWithError(w, r, http.StatusBadRequest, ErrInvalidRequestBody, "", err)
		return
	}

	category, err := h.budgetService.CreateCategory(r.Context(), ac.Family.ID, req.Name, req.Kind)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, category)
}

// DeleteCategory removes a category
func (h *BudgetHandler) DeleteCategory(w http.ResponseWriter, r *http.Request) {
	ac := GetAccessFromContext(r.Context())
	id, ok := pathID(r, "id")
	if !ok {
		respondWithError(w, r, http.StatusBadRequest, ErrInvalidIdentifier, "", nil)
		return
	}

	if err := h.budgetService.DeleteCategory(r.Context(), ac.Family.ID, id); err != nil {
		respondServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ListTemplates lists the acting family's budget templates
func (h *BudgetHandler) ListTemplates(w http.ResponseWriter, r *http.Request) {
	ac := GetAccessFromContext(r.Context())
	templates, err := h.budgetService.ListTemplates(r.Context(), ac.Family.ID)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, templates)
}

// GetTemplate returns one template
func (h *BudgetHandler) GetTemplate(w http.ResponseWriter, r *http.Request) {
	ac := GetAccessFromContext(r.Context())
	id, ok := pathID(r, "id")
	if !ok {
		respondWithError(w, r, http.StatusBadRequest, ErrInvalidIdentifier, "", nil)
		return
	}

	t, err := h.budgetService.GetTemplate(r.Context(), ac.Family.ID, id)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, t)
}

// CreateTemplate adds a budget template
func (h *BudgetHandler) CreateTemplate(w http.ResponseWriter, r *http.Request) {
	ac := GetAccessFromContext(r.Context())

	var req templateRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondWithError(w, r, http.StatusBadRequest, ErrInvalidRequestBody, "", err)
		return
	}

	t, err := h.budgetService.CreateTemplate(r.Context(), ac.Family.ID, ac.User.ID, req.input())
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, t)
}

// UpdateTemplate replaces a template's editable fields
func (h *BudgetHandler) UpdateTemplate(w http.ResponseWriter, r *http.Request) {
	ac := GetAccessFromContext(r.Context())
	id, ok := pathID(r, "id")
	if !ok {
		respondWithError(w, r, http.StatusBadRequest, ErrInvalidIdentifier, "", nil)
		return
	}

	var req templateRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondWithError(w, r, http.StatusBadRequest, ErrInvalidRequestBody, "", err)
		return
	}

	t, err := h.budgetService.UpdateTemplate(r.Context(), ac.Family.ID, id, req.input())
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, t)
}

// DeleteTemplate removes a template. Budgets it generated are kept.
func (h *BudgetHandler) DeleteTemplate(w http.ResponseWriter, r *http.Request) {
	ac := GetAccessFromContext(r.Context())
	id, ok := pathID(r, "id")
	if !ok {
		respondWithError(w, r, http.StatusBadRequest, ErrInvalidIdentifier, "", nil)
		return
	}

	if err := h.budgetService.DeleteTemplate(r.Context(), ac.Family.ID, id); err != nil {
		respondServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ListBudgets lists the budgets of a month (?month=YYYY-MM, default current)
func (h *BudgetHandler) ListBudgets(w http.ResponseWriter, r *http.Request) {
	ac := GetAccessFromContext(r.Context())
	month, err := queryMonth(r)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}

	budgets, err := h.budgetService.ListBudgets(r.Context(), ac.Family.ID, month)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, budgetsResponse{
		periodResponse: h.period(month),
		Budgets:        budgets,
	})
}

// Summary reports spending against each budget of a month
func (h *BudgetHandler) Summary(w http.ResponseWriter, r *http.Request) {
	ac := GetAccessFromContext(r.Context())
	month, err := queryMonth(r)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}

	summaries, err := h.budgetService.Summary(r.Context(), ac.Family.ID, month)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, summaryResponse{
		periodResponse: h.period(month),
		Summaries:      summaries,
	})
}

// MissingBudgets lists generating templates with no budget for the month yet
func (h *BudgetHandler) MissingBudgets(w http.ResponseWriter, r *http.Request) {
	ac := GetAccessFromContext(r.Context())
	month, err := queryMonth(r)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}

	templates, err := h.budgetService.MissingBudgets(r.Context(), ac.Family.ID, month)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, missingResponse{
		periodResponse: h.period(month),
		Templates:      templates,
	})
}

// Generate materializes the month's budgets from templates
func (h *BudgetHandler) Generate(w http.ResponseWriter, r *http.Request) {
	ac := GetAccessFromContext(r.Context())
	month, err := queryMonth(r)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}

	result, err := h.budgetService.GenerateForPeriod(r.Context(), ac.Family.ID, month)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, generateResponse{
		periodResponse:   h.period(month),
		GenerationResult: result,
	})
}

// CreateBudget adds a one-off budget for a month
func (h *BudgetHandler) CreateBudget(w http.ResponseWriter, r *http.Request) {
	ac := GetAccessFromContext(r.Context())

	var req budgetRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondWithError(w, r, http.StatusBadRequest, ErrInvalidRequestBody, "", err)
		return
	}
	month, err := validation.ParseMonth(req.Month)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}

	budget, err := h.budgetService.CreateBudget(r.Context(), ac.Family.ID, ac.User.ID, service.BudgetInput{
		CategoryID:     req.CategoryID,
		Name:           req.Name,
		Amount:         req.Amount,
		AlertThreshold: req.AlertThreshold,
		Month:          month,
	})
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, budget)
}

// DeleteBudget removes a budget
func (h *BudgetHandler) DeleteBudget(w http.ResponseWriter, r *http.Request) {
	ac := GetAccessFromContext(r.Context())
	id, ok := pathID(r, "id")
	if !ok {
		respondWithError(w, r, http.StatusBadRequest, ErrInvalidIdentifier, "", nil)
		return
	}

	if err := h.budgetService.DeleteBudget(r.Context(), ac.Family.ID, id); err != nil {
		respondServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *BudgetHandler) period(month time.Time) periodResponse {
	return periodResponse{Period: h.budgetService.Period(month).Label()}
}
