package shared

import (
	"errors"
	"strings"

	"github.com/google/uuid"
)

// Workflow error taxonomy. Every failure surfaced by the engine, the matrix
// and the evaluator wraps exactly one of these.
var (
	// ErrNotFound indicates the document or record does not exist.
	ErrNotFound = errors.New("not found")
	// ErrLockedDocument indicates the document is locked by a dependent document.
	ErrLockedDocument = errors.New("document locked")
	// ErrInvalidTransition indicates no edge exists from the current status.
	ErrInvalidTransition = errors.New("invalid transition")
	// ErrPermissionDenied is a generic denial; it never names the capability.
	ErrPermissionDenied = errors.New("permission denied")
	// ErrValidation indicates a guard failed or the payload is incomplete.
	ErrValidation = errors.New("validation failed")
	// ErrConcurrencyConflict indicates the document changed between read and commit.
	ErrConcurrencyConflict = errors.New("concurrency conflict")
	// ErrImmutableRole indicates an attempted mutation of superuser grants.
	ErrImmutableRole = errors.New("immutable role")
	// ErrThresholdViolation indicates amount-dependent routing cannot be decided.
	ErrThresholdViolation = errors.New("threshold violation")
)

// WorkflowError carries structured detail for a taxonomy error so callers can
// render a user-facing message.
type WorkflowError struct {
	Kind       error
	DocumentID uuid.UUID
	Action     string
	Code       string
	Field      string
	Reason     string
}

// Error implements error.
func (e *WorkflowError) Error() string {
	if e == nil {
		return "<nil>"
	}
	parts := []string{e.Kind.Error()}
	if e.Action != "" {
		parts = append(parts, "action="+e.Action)
	}
	if e.DocumentID != uuid.Nil {
		parts = append(parts, "document="+e.DocumentID.String())
	}
	if e.Code != "" {
		parts = append(parts, "code="+e.Code)
	}
	if e.Reason != "" {
		parts = append(parts, e.Reason)
	}
	return strings.Join(parts, ": ")
}

// Unwrap exposes the taxonomy sentinel for errors.Is.
func (e *WorkflowError) Unwrap() error {
	return e.Kind
}

// NewError builds a WorkflowError of the given kind.
func NewError(kind error, docID uuid.UUID, action, reason string) *WorkflowError {
	return &WorkflowError{Kind: kind, DocumentID: docID, Action: action, Reason: reason}
}

// ValidationError builds a guard failure with a machine-readable code.
func ValidationError(code, field, reason string) *WorkflowError {
	return &WorkflowError{Kind: ErrValidation, Code: code, Field: field, Reason: reason}
}

// AsWorkflowError extracts the structured error when present.
func AsWorkflowError(err error) (*WorkflowError, bool) {
	var wfErr *WorkflowError
	if errors.As(err, &wfErr) {
		return wfErr, true
	}
	return nil, false
}

// WithTarget returns a copy of err annotated with document and action when err
// is a WorkflowError lacking them. Other errors are returned unchanged.
func WithTarget(err error, docID uuid.UUID, action string) error {
	wfErr, ok := AsWorkflowError(err)
	if !ok {
		return err
	}
	annotated := *wfErr
	if annotated.DocumentID == uuid.Nil {
		annotated.DocumentID = docID
	}
	if annotated.Action == "" {
		annotated.Action = action
	}
	return &annotated
}
