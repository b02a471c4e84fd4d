// Package httpx provides HTTP response utilities.
package httpx

import (
	"errors"
	"net/http"

	"github.com/odyssey-erp/odyssey-docflow/internal/shared"
)

// Sentinel errors for request decoding; domain failures use the shared taxonomy.
var (
	ErrBadRequest   = errors.New("bad request")
	ErrUnauthorized = errors.New("unauthorized")
)

// RespondError maps domain errors to HTTP responses using RFC7807.
func RespondError(w http.ResponseWriter, err error) {
	detail := err.Error()
	var code, field string
	if wfErr, ok := shared.AsWorkflowError(err); ok {
		detail = wfErr.Reason
		code = wfErr.Code
		field = wfErr.Field
	}
	switch {
	case errors.Is(err, shared.ErrNotFound):
		Problem(w, http.StatusNotFound, "Not Found", detail)
	case errors.Is(err, shared.ErrLockedDocument):
		Problem(w, http.StatusLocked, "Document Locked", detail)
	case errors.Is(err, shared.ErrInvalidTransition):
		Problem(w, http.StatusConflict, "Invalid Transition", detail)
	case errors.Is(err, shared.ErrPermissionDenied):
		// Never leak which capability was missing.
		Problem(w, http.StatusForbidden, "Forbidden", "")
	case errors.Is(err, shared.ErrValidation):
		write(w, ProblemDetail{Title: "Validation Failed", Status: http.StatusUnprocessableEntity, Detail: detail, Code: code, Field: field})
	case errors.Is(err, shared.ErrConcurrencyConflict):
		Problem(w, http.StatusConflict, "Concurrency Conflict", detail)
	case errors.Is(err, shared.ErrImmutableRole):
		Problem(w, http.StatusForbidden, "Immutable Role", detail)
	case errors.Is(err, shared.ErrThresholdViolation):
		Problem(w, http.StatusConflict, "Threshold Violation", detail)
	case errors.Is(err, ErrBadRequest):
		Problem(w, http.StatusBadRequest, "Bad Request", detail)
	case errors.Is(err, ErrUnauthorized):
		Problem(w, http.StatusUnauthorized, "Unauthorized", "")
	default:
		Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}
