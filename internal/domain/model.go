package domain

import "time"

type Status string

const (
	StatusActive    Status = "active"
	StatusPreparing Status = "preparing"
	StatusReady     Status = "ready"
	StatusCompleted Status = "completed"
	StatusCancelled Status = "cancelled"
)

// Statuses lists every status in lifecycle order.
var Statuses = []Status{StatusActive, StatusPreparing, StatusReady, StatusCompleted, StatusCancelled}

func (s Status) Valid() bool {
	switch s {
	case StatusActive, StatusPreparing, StatusReady, StatusCompleted, StatusCancelled:
		return true
	}
	return false
}

func (s Status) Terminal() bool { return s == StatusCompleted || s == StatusCancelled }

func (s Status) String() string { return string(s) }

// ParseStatus accepts only the closed set of statuses.
func ParseStatus(v string) (Status, error) {
	s := Status(v)
	if !s.Valid() {
		return "", &ValidationError{Field: "status", Reason: "unknown status " + `"` + v + `"`}
	}
	return s, nil
}

const (
	MinTable = 1
	MaxTable = 50
)

type OrderItem struct {
	Name     string  `json:"name"`
	Quantity int     `json:"quantity"`
	Price    float64 `json:"price"`
}

type Order struct {
	ID          string      `json:"id"`
	SessionID   string      `json:"session_id"`
	TableNumber int         `json:"table_number"`
	Items       []OrderItem `json:"items"`
	Status      Status      `json:"status"`
	CreatedAt   time.Time   `json:"created_at"`
	UpdatedAt   time.Time   `json:"updated_at"`
	Version     int64       `json:"version"`
}

// Event is the delta shape shared by the push channel and the poll response.
func (o Order) Event() OrderEvent {
	return OrderEvent{
		OrderID:   o.ID,
		Status:    o.Status,
		Version:   o.Version,
		UpdatedAt: o.UpdatedAt,
		ScopeRef:  o.SessionID,
	}
}

type GuestSession struct {
	ID          string        `json:"session_id"`
	TableNumber int           `json:"table_number"`
	StartedAt   time.Time     `json:"started_at"`
	Duration    time.Duration `json:"-"`
	Token       string        `json:"-"`
}

func (s GuestSession) ExpiresAt() time.Time { return s.StartedAt.Add(s.Duration) }

// ActiveAt reports liveness at the given instant; expiry is inclusive.
func (s GuestSession) ActiveAt(now time.Time) bool { return now.Before(s.ExpiresAt()) }

type StatusLogEntry struct {
	OrderID   string    `json:"order_id"`
	From      Status    `json:"from,omitempty"`
	Status    Status    `json:"status"`
	Version   int64     `json:"version"`
	ChangedBy string    `json:"changed_by"`
	ChangedAt time.Time `json:"changed_at"`
}
