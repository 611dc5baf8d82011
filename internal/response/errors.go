package response

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/huddlehq/huddle/internal/domain"
	"github.com/huddlehq/huddle/pkg/logger"
)

// ErrorResponse is the stable JSON error shape for all controller failures.
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details string `json:"details,omitempty"`
}

func WriteError(w http.ResponseWriter, statusCode int, message string, code string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	errResp := ErrorResponse{
		Error: message,
		Code:  code,
	}

	if err := json.NewEncoder(w).Encode(errResp); err != nil {
		logger.Error("failed to encode error response", "error", err)
	}
}

// Common error codes
const (
	CodeInvalidInput  = "INVALID_INPUT"
	CodeUnauthorized  = "UNAUTHORIZED"
	CodeForbidden     = "FORBIDDEN"
	CodeNotFound      = "NOT_FOUND"
	CodeConflict      = "CONFLICT"
	CodeMeetingEnded  = "MEETING_ENDED"
	CodeInternalError = "INTERNAL_ERROR"
	CodeUpstream      = "UPSTREAM_ERROR"
)

func BadRequest(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusBadRequest, message, CodeInvalidInput)
}

func Unauthorized(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusUnauthorized, message, CodeUnauthorized)
}

func Forbidden(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusForbidden, message, CodeForbidden)
}

func NotFound(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusNotFound, message, CodeNotFound)
}

func Conflict(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusConflict, message, CodeConflict)
}

func Gone(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusGone, message, CodeMeetingEnded)
}

func InternalError(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusInternalServerError, message, CodeInternalError)
}

// WriteJSON writes a success payload with the given status code.
func WriteJSON(w http.ResponseWriter, statusCode int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Error("failed to encode response", "error", err)
	}
}

// FromDomainError maps a domain error onto the HTTP error taxonomy.
func FromDomainError(w http.ResponseWriter, err error) {
	var vErr *domain.ValidationError
	switch {
	case errors.As(err, &vErr):
		BadRequest(w, vErr.Error())
	case errors.Is(err, domain.ErrNotFound):
		NotFound(w, "meeting not found")
	case errors.Is(err, domain.ErrNotPending):
		NotFound(w, "participant is not in the waiting room")
	case errors.Is(err, domain.ErrForbidden):
		Forbidden(w, "host privileges required")
	case errors.Is(err, domain.ErrEnded):
		Gone(w, "meeting has ended")
	case errors.Is(err, domain.ErrDuplicateMeeting):
		Conflict(w, "a meeting with this title and start time already exists")
	case errors.Is(err, domain.ErrCodeExhausted):
		Conflict(w, "could not allocate a meeting code, try again")
	default:
		InternalError(w, "internal error")
	}
}
