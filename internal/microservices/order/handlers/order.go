package handlers

import (
	"encoding/json"
	"io"
	"net/http"

	"restaurant-sync/internal/common/httpx"
	"restaurant-sync/internal/common/logger"
	"restaurant-sync/internal/common/validate"
	"restaurant-sync/internal/domain"
	"restaurant-sync/internal/microservices/order/service"
)

const maxBody = 64 << 10

type OrderHandler struct {
	service service.OrderServiceInterface
	gate    Gate
	schema  *validate.Schema
	lg      *logger.Logger
}

func NewOrderHandler(s service.OrderServiceInterface, gate Gate, schema *validate.Schema, lg *logger.Logger) *OrderHandler {
	if lg == nil {
		lg = logger.New("order-http")
	}
	return &OrderHandler{service: s, gate: gate, schema: schema, lg: lg}
}

// authorizeOrder loads the order and checks the caller against its scope.
func (h *OrderHandler) authorizeOrder(w http.ResponseWriter, r *http.Request) (domain.Order, string, bool) {
	o, err := h.service.Get(r.Context(), r.PathValue("order_id"))
	if err != nil {
		httpx.WriteError(w, err)
		return domain.Order{}, "", false
	}
	_, actor, err := h.gate.Authorize(r.Context(), o.SessionID, httpx.BearerToken(r))
	if err != nil {
		httpx.WriteError(w, err)
		return domain.Order{}, "", false
	}
	return o, actor, true
}

func (h *OrderHandler) authorizeSession(w http.ResponseWriter, r *http.Request) (string, string, bool) {
	id := r.PathValue("session_id")
	_, actor, err := h.gate.Authorize(r.Context(), id, httpx.BearerToken(r))
	if err != nil {
		httpx.WriteError(w, err)
		return "", "", false
	}
	return id, actor, true
}

// CreateOrder handles POST /api/v1/sessions/{session_id}/orders.
func (h *OrderHandler) CreateOrder(w http.ResponseWriter, r *http.Request) {
	sessionID, actor, ok := h.authorizeSession(w, r)
	if !ok {
		return
	}
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBody))
	if err != nil {
		httpx.WriteProblem(w, http.StatusBadRequest, "bad_request", "unreadable body", "")
		return
	}
	if res := validate.Validate(body, h.schema); !res.IsValid {
		httpx.WriteError(w, &domain.ValidationError{Reason: "invalid order", Fields: res.FieldErrors})
		return
	}
	var req domain.CreateOrderRequest
	if err := json.Unmarshal(body, &req); err != nil {
		httpx.WriteProblem(w, http.StatusBadRequest, "bad_request", "Invalid JSON body", "")
		return
	}

	o, err := h.service.Create(r.Context(), sessionID, req.Items, actor)
	if err != nil {
		httpx.WriteError(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, domain.NewOrderResponse(o))
}

// ListOrders handles GET /api/v1/sessions/{session_id}/orders, the poll
// response.
func (h *OrderHandler) ListOrders(w http.ResponseWriter, r *http.Request) {
	sessionID, _, ok := h.authorizeSession(w, r)
	if !ok {
		return
	}
	orders, err := h.service.List(r.Context(), sessionID)
	if err != nil {
		httpx.WriteError(w, err)
		return
	}
	events := make([]domain.OrderEvent, 0, len(orders))
	for _, o := range orders {
		events = append(events, o.Event())
	}
	httpx.WriteJSON(w, http.StatusOK, events)
}

func (h *OrderHandler) Stats(w http.ResponseWriter, r *http.Request) {
	sessionID, _, ok := h.authorizeSession(w, r)
	if !ok {
		return
	}
	st, err := h.service.Stats(r.Context(), sessionID)
	if err != nil {
		httpx.WriteError(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, st)
}

// SubmitStatus handles POST /api/v1/orders/{order_id}/status.
func (h *OrderHandler) SubmitStatus(w http.ResponseWriter, r *http.Request) {
	o, actor, ok := h.authorizeOrder(w, r)
	if !ok {
		return
	}
	var req domain.CommandRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBody)).Decode(&req); err != nil {
		httpx.WriteProblem(w, http.StatusBadRequest, "bad_request", "Invalid JSON body", "")
		return
	}
	requested, err := domain.ParseStatus(req.RequestedStatus)
	if err != nil {
		httpx.WriteError(w, err)
		return
	}

	next, err := h.service.Submit(r.Context(), o.ID, requested, actor)
	if err != nil {
		httpx.WriteError(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, domain.NewOrderResponse(next))
}

func (h *OrderHandler) Timeline(w http.ResponseWriter, r *http.Request) {
	o, _, ok := h.authorizeOrder(w, r)
	if !ok {
		return
	}
	entries, err := h.service.Timeline(r.Context(), o.ID)
	if err != nil {
		httpx.WriteError(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"order_id": o.ID, "events": entries})
}

// Register mounts the order endpoints.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/v1/sessions/{session_id}/orders", h.OrderHandler.CreateOrder)
	mux.HandleFunc("GET /api/v1/sessions/{session_id}/orders", h.OrderHandler.ListOrders)
	mux.HandleFunc("GET /api/v1/sessions/{session_id}/stats", h.OrderHandler.Stats)
	mux.HandleFunc("POST /api/v1/orders/{order_id}/status", h.OrderHandler.SubmitStatus)
	mux.HandleFunc("GET /api/v1/orders/{order_id}/timeline", h.OrderHandler.Timeline)
}
