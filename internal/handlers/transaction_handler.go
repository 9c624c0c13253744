package handlers

import (
	"bytes"
	"fmt"
	"net/http"
	"strconv"

	"github.com/shopspring/decimal"

	"famfinance/internal/models"
	"famfinance/internal/service"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// TransactionHandler serves the family ledger
type TransactionHandler struct {
	transactionService *service.TransactionService
}

// NewTransactionHandler creates a new transaction handler
func NewTransactionHandler(transactionService *service.TransactionService) *TransactionHandler {
	return &TransactionHandler{transactionService: transactionService}
}

type transactionRequest struct {
	CategoryID  *int64                 `json:"categoryId"`
	Amount      decimal.Decimal        `json:"amount"`
	Kind        models.TransactionKind `json:"kind"`
	Description string                 `json:"description"`
	Date        string                 `json:"date"`
}

// transactionQuery reads ?month=YYYY-MM, ?all=true, ?categoryId and ?kind
func transactionQuery(r *http.Request) (service.TransactionQuery, error) {
	var q service.TransactionQuery
	month, err := queryMonth(r)
	if err != nil {
		return q, err
	}
	categoryID, err := queryInt64(r, "categoryId")
	if err != nil {
		return q, err
	}
	q.Month = month
	q.CategoryID = categoryID
	q.AllTime, _ = strconv.ParseBool(r.URL.Query().Get("all"))
	q.Kind = models.TransactionKind(r.URL.Query().Get("kind"))
	return q, nil
}

// ListTransactions lists the ledger for a month
func (h *TransactionHandler) ListTransactions(w http.ResponseWriter, r *http.Request) {
	ac := GetAccessFromContext(r.Context())
	q, err := transactionQuery(r)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}

	transactions, err := h.transactionService.List(r.Context(), ac.Family.ID, q)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, transactions)
}

// CreateTransaction records a manual transaction
func (h *TransactionHandler) CreateTransaction(w http.ResponseWriter, r *http.Request) {
	ac := GetAccessFromContext(r.Context())

	var req transactionRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondWithError(w, r, http.StatusBadRequest, ErrInvalidRequestBody, "", err)
		return
	}
	date, err := parseDate("date", req.Date)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}

	t, err := h.transactionService.Create(r.Context(), ac, service.TransactionInput{
		CategoryID:  req.CategoryID,
		Amount:      req.Amount,
		Kind:        req.Kind,
		Description: req.Description,
		Date:        date,
	})
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, t)
}

// DeleteTransaction removes a transaction
func (h *TransactionHandler) DeleteTransaction(w http.ResponseWriter, r *http.Request) {
	ac := GetAccessFromContext(r.Context())
	id, ok := pathID(r, "id")
	if !ok {
		respondWithError(w, r, http.StatusBadRequest, ErrInvalidIdentifier, "", nil)
		return
	}

	if err := h.transactionService.Delete(r.Context(), ac, id); err != nil {
		respondServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ExportTransactions downloads the selected transactions as a workbook
func (h *TransactionHandler) ExportTransactions(w http.ResponseWriter, r *http.Request) {
	ac := GetAccessFromContext(r.Context())
	q, err := transactionQuery(r)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}

	// Rendered into memory first so a failure can still be reported as JSON
	var buf bytes.Buffer
	if err := h.transactionService.Export(r.Context(), ac.Family.ID, q, &buf); err != nil {
		respondServiceError(w, r, err)
		return
	}

	label := "all"
	if !q.AllTime {
		label = h.transactionService.Period(q.Month).Label()
	}
	w.Header().Set("Content-Type", xlsxContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="transactions-%s.xlsx"`, label))
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	w.WriteHeader(http.StatusOK)
	_, _ = buf.WriteTo(w)
}
