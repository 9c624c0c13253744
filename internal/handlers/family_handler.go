package handlers

import (
	"net/http"

	"famfinance/internal/models"
	"famfinance/internal/service"
	"famfinance/internal/validation"
)

// FamilyHandler serves families, memberships and invitations
type FamilyHandler struct {
	familyService *service.FamilyService
	authService   *service.AuthService
}

// NewFamilyHandler creates a new family handler
func NewFamilyHandler(familyService *service.FamilyService, authService *service.AuthService) *FamilyHandler {
	return &FamilyHandler{
		familyService: familyService,
		authService:   authService,
	}
}

type familyNameRequest struct {
	Name string `json:"name"`
}

type inviteRequest struct {
	Email string `json:"email"`
	Role  string `json:"role"`
}

type roleRequest struct {
	Role string `json:"role"`
}

// ListFamilies lists every family the caller is an active member of
func (h *FamilyHandler) ListFamilies(w http.ResponseWriter, r *http.Request) {
	session := GetSessionFromContext(r.Context())
	families, err := h.familyService.ListFamilies(r.Context(), session.Identity.UserID)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, families)
}

// CreateFamily creates a family with the caller as its admin
func (h *FamilyHandler) CreateFamily(w http.ResponseWriter, r *http.Request) {
	session := GetSessionFromContext(r.Context())

	var req familyNameRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondWithError(w, r, http.StatusBadRequest, ErrInvalidRequestBody, "", err)
		return
	}

	family, err := h.familyService.CreateFamily(r.Context(), session.Identity.UserID, req.Name)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, family)
}

// RenameFamily renames the acting family
func (h *FamilyHandler) RenameFamily(w http.ResponseWriter, r *http.Request) {
	ac := GetAccessFromContext(r.Context())

	var req familyNameRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondWithError(w, r, http.StatusBadRequest, ErrInvalidRequestBody, "", err)
		return
	}

	if err := h.familyService.RenameFamily(r.Context(), ac.Family.ID, req.Name); err != nil {
		respondServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ListMembers lists the acting family's active members
func (h *FamilyHandler) ListMembers(w http.ResponseWriter, r *http.Request) {
	ac := GetAccessFromContext(r.Context())
	members, err := h.familyService.ListMembers(r.Context(), ac.Family.ID)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, members)
}

// Invite sends an invitation to join the acting family
func (h *FamilyHandler) Invite(w http.ResponseWriter, r *http.Request) {
	ac := GetAccessFromContext(r.Context())

	var req inviteRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondWithError(w, r, http.StatusBadRequest, ErrInvalidRequestBody, "", err)
		return
	}

	role := models.RoleMember
	if req.Role != "" {
		parsed, err := models.ParseRole(req.Role)
		if err != nil {
			respondServiceError(w, r, validation.ValidationError{Field: "role", Message: err.Error()})
			return
		}
		role = parsed
	}

	inv, err := h.familyService.Invite(r.Context(), ac.User, ac.Family, req.Email, role)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, inv)
}

// ListInvitations lists the acting family's pending invitations
func (h *FamilyHandler) ListInvitations(w http.ResponseWriter, r *http.Request) {
	ac := GetAccessFromContext(r.Context())
	invitations, err := h.familyService.ListInvitations(r.Context(), ac.Family.ID)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, invitations)
}

// RevokeInvitation withdraws a pending invitation
func (h *FamilyHandler) RevokeInvitation(w http.ResponseWriter, r *http.Request) {
	ac := GetAccessFromContext(r.Context())
	id, ok := pathID(r, "id")
	if !ok {
		respondWithError(w, r, http.StatusBadRequest, ErrInvalidIdentifier, "", nil)
		return
	}

	if err := h.familyService.RevokeInvitation(r.Context(), ac.Family.ID, id); err != nil {
		respondServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ShowInvitation describes an invitation by its token so the invitee can decide
func (h *FamilyHandler) ShowInvitation(w http.ResponseWriter, r *http.Request) {
	inv, err := h.familyService.GetInvitation(r.Context(), r.PathValue("token"))
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, inv)
}

// AcceptInvitation joins the caller to the inviting family
func (h *FamilyHandler) AcceptInvitation(w http.ResponseWriter, r *http.Request) {
	session := GetSessionFromContext(r.Context())
	user, err := h.authService.GetUser(r.Context(), session.Identity.UserID)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}

	family, err := h.familyService.AcceptInvitation(r.Context(), user, r.PathValue("token"))
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, family)
}

// ChangeRole changes a member's role in the acting family
func (h *FamilyHandler) ChangeRole(w http.ResponseWriter, r *http.Request) {
	ac := GetAccessFromContext(r.Context())
	userID, ok := pathID(r, "userId")
	if !ok {
		respondWithError(w, r, http.StatusBadRequest, ErrInvalidIdentifier, "", nil)
		return
	}

	var req roleRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondWithError(w, r, http.StatusBadRequest, ErrInvalidRequestBody, "", err)
		return
	}
	role, err := models.ParseRole(req.Role)
	if err != nil {
		respondServiceError(w, r, validation.ValidationError{Field: "role", Message: err.Error()})
		return
	}

	if err := h.familyService.ChangeRole(r.Context(), ac.Family.ID, userID, role); err != nil {
		respondServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// RemoveMember removes a member from the acting family
func (h *FamilyHandler) RemoveMember(w http.ResponseWriter, r *http.Request) {
	ac := GetAccessFromContext(r.Context())
	userID, ok := pathID(r, "userId")
	if !ok {
		respondWithError(w, r, http.StatusBadRequest, ErrInvalidIdentifier, "", nil)
		return
	}

	if err := h.familyService.RemoveMember(r.Context(), ac.Family.ID, userID); err != nil {
		respondServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Leave removes the caller from the acting family
func (h *FamilyHandler) Leave(w http.ResponseWriter, r *http.Request) {
	ac := GetAccessFromContext(r.Context())
	if err := h.familyService.Leave(r.Context(), ac.Family.ID, ac.User.ID); err != nil {
		respondServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
