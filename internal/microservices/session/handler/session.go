package handler

import (
	"context"
	"encoding/json"
	"io"
	"net/http"

	"restaurant-sync/internal/common/httpx"
	"restaurant-sync/internal/domain"
)

type Registry interface {
	Create(ctx context.Context, tableNumber int) (domain.GuestSession, error)
}

type Viewer interface {
	View(ctx context.Context, sessionID, token string) (domain.SessionView, error)
}

type SessionHandler struct {
	registry Registry
	viewer   Viewer
}

func NewSessionHandler(reg Registry, viewer Viewer) *SessionHandler {
	return &SessionHandler{registry: reg, viewer: viewer}
}

// Create handles POST /api/v1/sessions. The token in the response is the
// only time it is revealed.
func (h *SessionHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req domain.CreateSessionRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, 4<<10)).Decode(&req); err != nil {
		httpx.WriteProblem(w, http.StatusBadRequest, "bad_request", "Invalid JSON body", "")
		return
	}
	s, err := h.registry.Create(r.Context(), req.TableNumber)
	if err != nil {
		httpx.WriteError(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, domain.CreateSessionResponse{
		SessionID:   s.ID,
		TableNumber: s.TableNumber,
		StartedAt:   s.StartedAt,
		ExpiresAt:   s.ExpiresAt(),
		Token:       s.Token,
	})
}

func (h *SessionHandler) Get(w http.ResponseWriter, r *http.Request) {
	v, err := h.viewer.View(r.Context(), r.PathValue("session_id"), httpx.BearerToken(r))
	if err != nil {
		httpx.WriteError(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, v)
}

func (h *SessionHandler) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/v1/sessions", h.Create)
	mux.HandleFunc("GET /api/v1/sessions/{session_id}", h.Get)
}
