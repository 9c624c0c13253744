package handlers

import (
	"errors"
	"net/http"
	"strings"

	"famfinance/internal/log"
	"famfinance/internal/service"
	"famfinance/internal/validation"
)

type errorResponse struct {
	Error string `json:"error"`
	Field string `json:"field,omitempty"`
}

func respondWithError(w http.ResponseWriter, r *http.Request, status int, userMsg, logMsg string, err error) {
	if err != nil {
		if logMsg == "" {
			logMsg = userMsg
		}
		logger := log.FromContext(r.Context())
		if status >= http.StatusInternalServerError {
			logger.ErrorContext(r.Context(), logMsg, log.FieldError, err, log.FieldPath, r.URL.Path)
		} else {
			logger.DebugContext(r.Context(), logMsg, log.FieldError, err, log.FieldPath, r.URL.Path)
		}
	}

	respondJSON(w, status, errorResponse{Error: userMsg})
}

// respondServiceError maps an error kind from the service layer to a status code.
// Authorization failures all read "Unauthorized"; unknown errors are logged and
// reported as a bare 500.
func respondServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var verr validation.ValidationError
	switch {
	case errors.As(err, &verr):
		logRejected(r, err)
		respondJSON(w, http.StatusBadRequest, errorResponse{Error: verr.Message, Field: verr.Field})
	case errors.Is(err, service.ErrUnauthenticated):
		logRejected(r, err)
		respondJSON(w, http.StatusUnauthorized, errorResponse{Error: ErrUnauthorized})
	case errors.Is(err, service.ErrForbidden):
		logRejected(r, err)
		respondJSON(w, http.StatusForbidden, errorResponse{Error: ErrUnauthorized})
	case errors.Is(err, service.ErrNotFound):
		logRejected(r, err)
		respondJSON(w, http.StatusNotFound, errorResponse{Error: publicMessage(err, service.ErrNotFound)})
	case errors.Is(err, service.ErrConflict):
		logRejected(r, err)
		respondJSON(w, http.StatusConflict, errorResponse{Error: publicMessage(err, service.ErrConflict)})
	case errors.Is(err, service.ErrValidation):
		logRejected(r, err)
		respondJSON(w, http.StatusBadRequest, errorResponse{Error: publicMessage(err, service.ErrValidation)})
	case errors.Is(err, service.ErrUpstream):
		log.FromContext(r.Context()).WarnContext(r.Context(), "upstream failure", log.FieldError, err, log.FieldPath, r.URL.Path)
		respondJSON(w, http.StatusBadGateway, errorResponse{Error: ErrUpstreamUnavailable})
	default:
		respondWithError(w, r, http.StatusInternalServerError, ErrInternalServerError, "unhandled error", err)
	}
}

// publicMessage drops the kind prefix from a domain error's message
func publicMessage(err, kind error) string {
	return strings.TrimPrefix(err.Error(), kind.Error()+": ")
}

func logRejected(r *http.Request, err error) {
	log.FromContext(r.Context()).DebugContext(r.Context(), "request rejected", log.FieldError, err, log.FieldPath, r.URL.Path)
}
