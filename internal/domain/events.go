package domain

import "time"

type OrderEvent struct {
	OrderID   string    `json:"order_id"`
	Status    Status    `json:"status"`
	Version   int64     `json:"version"`
	UpdatedAt time.Time `json:"updated_at"`
	ScopeRef  string    `json:"scope_ref"`
}

type SessionExpiredNotice struct {
	SessionID string    `json:"session_id"`
	ExpiresAt time.Time `json:"expires_at"`
}

const (
	EnvelopeOrder          = "order"
	EnvelopeSessionExpired = "session_expired"
)

// Envelope is one frame on the push channel.
type Envelope struct {
	Type    string                `json:"type"`
	Order   *OrderEvent           `json:"order,omitempty"`
	Expired *SessionExpiredNotice `json:"expired,omitempty"`
}

func OrderEnvelope(ev OrderEvent) Envelope { return Envelope{Type: EnvelopeOrder, Order: &ev} }

func ExpiredEnvelope(n SessionExpiredNotice) Envelope {
	return Envelope{Type: EnvelopeSessionExpired, Expired: &n}
}
