package response

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/AFixt/meetabl-api/internal/domain"
	"github.com/AFixt/meetabl-api/pkg/logger"
)

// ErrorResponse is the structured JSON error body every endpoint returns.
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details string `json:"details,omitempty"`
}

const (
	CodeInvalidInput  = "INVALID_INPUT"
	CodeUnauthorized  = "UNAUTHORIZED"
	CodeForbidden     = "FORBIDDEN"
	CodeNotFound      = "NOT_FOUND"
	CodeConflict      = "CONFLICT"
	CodeOutOfHours    = "OUT_OF_AVAILABILITY"
	CodeUnavailable   = "TEMPORARILY_UNAVAILABLE"
	CodeInternalError = "INTERNAL_ERROR"
	CodeEmailExists   = "EMAIL_EXISTS"
)

func WriteJSON(w http.ResponseWriter, statusCode int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		logger.Error("failed to encode response", "error", err)
	}
}

func WriteError(w http.ResponseWriter, statusCode int, message, code string) {
	WriteJSON(w, statusCode, ErrorResponse{Error: message, Code: code})
}

func BadRequest(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusBadRequest, message, CodeInvalidInput)
}

func Unauthorized(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusUnauthorized, message, CodeUnauthorized)
}

func NotFound(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusNotFound, message, CodeNotFound)
}

func InternalError(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusInternalServerError, message, CodeInternalError)
}

// DomainError maps the scheduling error taxonomy onto HTTP statuses:
// validation -> 400, availability rejection -> 422, conflict -> 409,
// transient store trouble -> 503, anything else -> 500.
func DomainError(w http.ResponseWriter, err error) {
	var verr *domain.ValidationError
	if errors.As(err, &verr) {
		WriteJSON(w, http.StatusBadRequest, ErrorResponse{
			Error: verr.Error(), Code: CodeInvalidInput, Details: verr.Field,
		})
		return
	}

	var oerr *domain.OutOfAvailabilityError
	if errors.As(err, &oerr) {
		WriteError(w, http.StatusUnprocessableEntity, oerr.Error(), CodeOutOfHours)
		return
	}

	var cerr *domain.ConflictError
	if errors.As(err, &cerr) {
		WriteError(w, http.StatusConflict, "requested time is no longer available", CodeConflict)
		return
	}

	if domain.IsTransient(err) {
		WriteError(w, http.StatusServiceUnavailable, "temporarily unable to process the request, please retry", CodeUnavailable)
		return
	}

	logger.Error("unhandled error", "error", err)
	InternalError(w, "internal error")
}
