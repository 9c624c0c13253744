package handlers

import (
	"net/http"

	"famfinance/internal/models"
	"famfinance/internal/service"
)

// BankHandler serves bank linking and syncing
type BankHandler struct {
	bankService *service.BankService
}

// NewBankHandler creates a new bank handler
func NewBankHandler(bankService *service.BankService) *BankHandler {
	return &BankHandler{bankService: bankService}
}

type linkResponse struct {
	Connection *models.BankConnection `json:"connection"`
	// Sync is absent when the first sync failed; the connection is kept regardless
	Sync *models.SyncResult `json:"sync,omitempty"`
}

// Link exchanges the public token from the aggregator's link flow
func (h *BankHandler) Link(w http.ResponseWriter, r *http.Request) {
	ac := GetAccessFromContext(r.Context())

	var req struct {
		PublicToken string `json:"publicToken"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		respondWithError(w, r, http.StatusBadRequest, ErrInvalidRequestBody, "", err)
		return
	}

	conn, result, err := h.bankService.Link(r.Context(), ac.Family.ID, ac.User.ID, req.PublicToken)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, linkResponse{Connection: conn, Sync: result})
}

// Sync imports new accounts and transactions for one connection
func (h *BankHandler) Sync(w http.ResponseWriter, r *http.Request) {
	ac := GetAccessFromContext(r.Context())
	id, ok := pathID(r, "id")
	if !ok {
		respondWithError(w, r, http.StatusBadRequest, ErrInvalidIdentifier, "", nil)
		return
	}

	result, err := h.bankService.Sync(r.Context(), ac.Family.ID, id)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, result)
}

// ListConnections lists the acting family's linked institutions
func (h *BankHandler) ListConnections(w http.ResponseWriter, r *http.Request) {
	ac := GetAccessFromContext(r.Context())
	connections, err := h.bankService.ListConnections(r.Context(), ac.Family.ID)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, connections)
}

// ListAccounts lists the acting family's bank accounts
func (h *BankHandler) ListAccounts(w http.ResponseWriter, r *http.Request) {
	ac := GetAccessFromContext(r.Context())
	accounts, err := h.bankService.ListAccounts(r.Context(), ac.Family.ID)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, accounts)
}
