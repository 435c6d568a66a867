package httpx

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"restaurant-sync/internal/domain"
)

func TestWriteError_Mapping(t *testing.T) {
	cases := []struct {
		err    error
		code   int
		typ    string
		reason string
	}{
		{&domain.ValidationError{Field: "table_number", Reason: domain.ReasonOutOfRange}, http.StatusUnprocessableEntity, "validation_error", domain.ReasonOutOfRange},
		{&domain.TransitionError{Code: domain.InvalidTransition, From: domain.StatusReady, To: domain.StatusActive}, http.StatusConflict, "transition_error", domain.ReasonInvalidTransition},
		{&domain.TransitionError{Code: domain.TerminalState, From: domain.StatusCompleted, To: domain.StatusReady}, http.StatusConflict, "transition_error", domain.ReasonTerminalState},
		{&domain.AuthorizationError{Scope: "s1", Reason: "token mismatch"}, http.StatusForbidden, "authorization_error", ""},
		{fmt.Errorf("lookup: %w", domain.ErrNotFound), http.StatusNotFound, "not_found", ""},
		{domain.ErrVersionConflict, http.StatusConflict, "version_conflict", ""},
		{fmt.Errorf("boom"), http.StatusInternalServerError, "internal_error", ""},
	}
	for _, tc := range cases {
		t.Run(tc.typ+"/"+tc.reason, func(t *testing.T) {
			rec := httptest.NewRecorder()
			WriteError(rec, tc.err)
			require.Equal(t, tc.code, rec.Code)

			var body domain.ErrorResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.Equal(t, tc.typ, body.Type)
			assert.Equal(t, tc.reason, body.Reason)
			assert.Equal(t, tc.code, body.Status)
		})
	}
}

func TestWriteError_SessionExpiredCarriesDeadline(t *testing.T) {
	exp := time.Date(2026, 3, 1, 21, 0, 0, 0, time.UTC)
	rec := httptest.NewRecorder()
	WriteError(rec, &domain.SessionExpiredError{SessionID: "s1", ExpiresAt: exp})

	require.Equal(t, http.StatusGone, rec.Code)
	var body domain.ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	got, err := time.Parse(time.RFC3339Nano, body.Reason)
	require.NoError(t, err)
	assert.True(t, exp.Equal(got))
}

func TestAtoiDefault(t *testing.T) {
	assert.Equal(t, 50, AtoiDefault("", 50))
	assert.Equal(t, 50, AtoiDefault("x", 50))
	assert.Equal(t, 7, AtoiDefault("7", 50))
}
