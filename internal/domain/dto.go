package domain

import "time"

type CreateSessionRequest struct {
	TableNumber int `json:"table_number"`
}

type CreateSessionResponse struct {
	SessionID   string    `json:"session_id"`
	TableNumber int       `json:"table_number"`
	StartedAt   time.Time `json:"started_at"`
	ExpiresAt   time.Time `json:"expires_at"`
	Token       string    `json:"token"`
}

type SessionView struct {
	SessionID   string    `json:"session_id"`
	TableNumber int       `json:"table_number"`
	StartedAt   time.Time `json:"started_at"`
	ExpiresAt   time.Time `json:"expires_at"`
	Active      bool      `json:"active"`
}

type CreateOrderRequest struct {
	Items []OrderItem `json:"items"`
}

type CommandRequest struct {
	RequestedStatus string `json:"requested_status"`
}

// OrderResponse carries the order plus the statuses staff can move it to next.
type OrderResponse struct {
	Order       Order    `json:"order"`
	AllowedNext []Status `json:"allowed_next"`
}

func NewOrderResponse(o Order) OrderResponse {
	return OrderResponse{Order: o, AllowedNext: AllowedNext(o.Status)}
}

type ErrorResponse struct {
	Type   string `json:"type"`
	Title  string `json:"title"`
	Status int    `json:"status"`
	Detail string `json:"detail"`
	Reason string `json:"reason,omitempty"`
}
