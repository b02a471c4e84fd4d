package httpx

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-docflow/internal/shared"
)

func TestRespondErrorStatusMapping(t *testing.T) {
	cases := []struct {
		err    error
		status int
	}{
		{shared.NewError(shared.ErrNotFound, uuid.New(), "", "missing"), http.StatusNotFound},
		{shared.NewError(shared.ErrLockedDocument, uuid.New(), "submit", "locked"), http.StatusLocked},
		{shared.NewError(shared.ErrInvalidTransition, uuid.New(), "accept", "no edge"), http.StatusConflict},
		{shared.NewError(shared.ErrPermissionDenied, uuid.New(), "accept", ""), http.StatusForbidden},
		{shared.ValidationError("reason_required", "reason", "a reason is required"), http.StatusUnprocessableEntity},
		{shared.NewError(shared.ErrConcurrencyConflict, uuid.New(), "accept", "stale"), http.StatusConflict},
		{shared.NewError(shared.ErrImmutableRole, uuid.Nil, "", "admin"), http.StatusForbidden},
		{shared.NewError(shared.ErrThresholdViolation, uuid.New(), "mark-paid", ""), http.StatusConflict},
		{ErrBadRequest, http.StatusBadRequest},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		rr := httptest.NewRecorder()
		RespondError(rr, tc.err)
		require.Equal(t, tc.status, rr.Code, tc.err.Error())
		require.Equal(t, "application/problem+json", rr.Header().Get("Content-Type"))
	}
}

func TestRespondErrorValidationCarriesCode(t *testing.T) {
	rr := httptest.NewRecorder()
	RespondError(rr, shared.ValidationError("justification_required", "lines[0].justification", "urgency above normal requires a justification"))

	var problem ProblemDetail
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &problem))
	require.Equal(t, "justification_required", problem.Code)
	require.Equal(t, "lines[0].justification", problem.Field)
}

func TestRespondErrorDeniedIsGeneric(t *testing.T) {
	rr := httptest.NewRecorder()
	RespondError(rr, shared.NewError(shared.ErrPermissionDenied, uuid.New(), "mark-paid", "purchase_request.mark-paid"))
	require.NotContains(t, rr.Body.String(), "mark-paid")
}

func TestDecodeJSONRejectsUnknownFields(t *testing.T) {
	var target struct {
		Name string `json:"name"`
	}
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"name":"a","extra":1}`))
	err := DecodeJSON(req, &target)
	require.ErrorIs(t, err, ErrBadRequest)
}
