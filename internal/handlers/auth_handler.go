package handlers

import (
	"net/http"
	"time"

	"famfinance/internal/log"
	"famfinance/internal/models"
	"famfinance/internal/security"
	"famfinance/internal/service"
)

// AuthHandler handles authentication-related HTTP requests
type AuthHandler struct {
	authService          *service.AuthService
	csrf                 *security.CSRFGenerator
	oauthProviders       map[string]OAuthProvider
	oauthRedirectBaseURL string
	appBaseURL           string
}

// NewAuthHandler creates a new auth handler
func NewAuthHandler(authService *service.AuthService, csrf *security.CSRFGenerator,
	oauthProviders map[string]OAuthProvider, oauthRedirectBaseURL, appBaseURL string) *AuthHandler {
	return &AuthHandler{
		authService:          authService,
		csrf:                 csrf,
		oauthProviders:       oauthProviders,
		oauthRedirectBaseURL: oauthRedirectBaseURL,
		appBaseURL:           appBaseURL,
	}
}

type registerRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Name     string `json:"name"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type sessionResponse struct {
	Token     string       `json:"token"`
	ExpiresAt time.Time    `json:"expiresAt"`
	CSRFToken string       `json:"csrfToken"`
	User      *models.User `json:"user"`
}

type meResponse struct {
	User      *models.User         `json:"user"`
	Family    models.FamilyContext `json:"family"`
	CSRFToken string               `json:"csrfToken,omitempty"`
}

// Register creates a password account and signs it in
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondWithError(w, r, http.StatusBadRequest, ErrInvalidRequestBody, "", err)
		return
	}

	if _, err := h.authService.Register(r.Context(), req.Email, req.Password, req.Name); err != nil {
		respondServiceError(w, r, err)
		return
	}

	session, err := h.authService.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	h.startSession(w, r, http.StatusCreated, session)
}

// Login checks credentials and issues a session token
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondWithError(w, r, http.StatusBadRequest, ErrInvalidRequestBody, "", err)
		return
	}

	session, err := h.authService.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	h.startSession(w, r, http.StatusOK, session)
}

// startSession sets the session cookie and returns the token in the body for
// clients that prefer the Authorization header
func (h *AuthHandler) startSession(w http.ResponseWriter, r *http.Request, status int, session *service.Session) {
	csrfToken, err := h.csrf.GenerateToken(session.Claims.ID)
	if err != nil {
		respondWithError(w, r, http.StatusInternalServerError, ErrInternalServerError, "failed to generate CSRF token", err)
		return
	}

	expiresAt := session.Claims.ExpiresAt.Time
	http.SetCookie(w, security.CreateSessionCookie(r, session.Token, expiresAt))

	log.FromContext(r.Context()).WithComponent(log.ComponentAuth).InfoContext(r.Context(), "signed in", log.FieldUserID, session.User.ID)
	respondJSON(w, status, sessionResponse{
		Token:     session.Token,
		ExpiresAt: expiresAt,
		CSRFToken: csrfToken,
		User:      session.User,
	})
}

// Logout clears the session cookie. Tokens are stateless and expire on their own.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	http.SetCookie(w, security.CreateDeleteCookie(r, security.SessionCookieName))
	w.WriteHeader(http.StatusNoContent)
}

// Me returns the caller with their acting family
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	ac := GetAccessFromContext(r.Context())
	session := GetSessionFromContext(r.Context())

	resp := meResponse{User: ac.User, Family: ac.Family}
	if session != nil && session.FromCookie {
		resp.CSRFToken, _ = h.csrf.GenerateToken(session.Claims.ID)
	}
	respondJSON(w, http.StatusOK, resp)
}

// ForgotPassword queues a reset email. The response is the same whether or not
// the account exists.
func (h *AuthHandler) ForgotPassword(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email string `json:"email"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		respondWithError(w, r, http.StatusBadRequest, ErrInvalidRequestBody, "", err)
		return
	}

	h.authService.RequestPasswordReset(r.Context(), req.Email)
	respondJSON(w, http.StatusAccepted, map[string]string{"message": passwordResetRequestedOK})
}

// ResetPassword redeems a reset token
func (h *AuthHandler) ResetPassword(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Token    string `json:"token"`
		Password string `json:"password"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		respondWithError(w, r, http.StatusBadRequest, ErrInvalidRequestBody, "", err)
		return
	}

	if err := h.authService.ResetPassword(r.Context(), req.Token, req.Password); err != nil {
		respondServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
