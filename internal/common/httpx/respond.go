package httpx

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"restaurant-sync/internal/domain"
)

// WriteJSON writes v with the given status code.
func WriteJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

// WriteProblem writes a simplified RFC 7807 body.
func WriteProblem(w http.ResponseWriter, code int, typ, detail, reason string) {
	WriteJSON(w, code, domain.ErrorResponse{
		Type:   typ,
		Title:  http.StatusText(code),
		Status: code,
		Detail: detail,
		Reason: reason,
	})
}

// WriteError maps the domain error taxonomy onto HTTP.
func WriteError(w http.ResponseWriter, err error) {
	var (
		ve *domain.ValidationError
		te *domain.TransitionError
		ae *domain.AuthorizationError
		se *domain.SessionExpiredError
	)
	switch {
	case errors.As(err, &ve):
		WriteJSON(w, http.StatusUnprocessableEntity, struct {
			domain.ErrorResponse
			FieldErrors map[string]string `json:"field_errors,omitempty"`
		}{
			ErrorResponse: domain.ErrorResponse{
				Type: "validation_error", Title: http.StatusText(http.StatusUnprocessableEntity),
				Status: http.StatusUnprocessableEntity, Detail: ve.Error(), Reason: ve.Reason,
			},
			FieldErrors: ve.Fields,
		})
	case errors.As(err, &te):
		WriteProblem(w, http.StatusConflict, "transition_error", te.Error(), te.Reason())
	case errors.As(err, &ae):
		WriteProblem(w, http.StatusForbidden, "authorization_error", ae.Error(), "")
	case errors.As(err, &se):
		WriteProblem(w, http.StatusGone, "session_expired", se.Error(), se.ExpiresAt.UTC().Format(time.RFC3339Nano))
	case errors.Is(err, domain.ErrNotFound):
		WriteProblem(w, http.StatusNotFound, "not_found", err.Error(), "")
	case errors.Is(err, domain.ErrVersionConflict):
		WriteProblem(w, http.StatusConflict, "version_conflict", err.Error(), "")
	default:
		WriteProblem(w, http.StatusInternalServerError, "internal_error", err.Error(), "")
	}
}

// AtoiDefault parses s, falling back to d.
func AtoiDefault(s string, d int) int {
	if s == "" {
		return d
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return d
	}
	return n
}

// BearerToken reads the token from the Authorization header, falling back to
// the token query parameter (browsers cannot set headers on websockets).
func BearerToken(r *http.Request) string {
	if h := r.Header.Get("Authorization"); strings.HasPrefix(h, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(h, "Bearer "))
	}
	return r.URL.Query().Get("token")
}
