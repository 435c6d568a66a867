package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestGuestSession_ExpiryIsInclusive(t *testing.T) {
	start := time.Date(2026, 3, 1, 18, 0, 0, 0, time.UTC)
	s := GuestSession{ID: "s", TableNumber: 12, StartedAt: start, Duration: 10800 * time.Second}

	assert.Equal(t, start.Add(3*time.Hour), s.ExpiresAt())
	assert.True(t, s.ActiveAt(start))
	assert.True(t, s.ActiveAt(s.ExpiresAt().Add(-time.Nanosecond)))
	assert.False(t, s.ActiveAt(s.ExpiresAt()))
}

func TestOrder_Event(t *testing.T) {
	now := time.Now().UTC()
	o := Order{ID: "o1", SessionID: "s1", Status: StatusReady, Version: 3, UpdatedAt: now}
	assert.Equal(t, OrderEvent{OrderID: "o1", Status: StatusReady, Version: 3, UpdatedAt: now, ScopeRef: "s1"}, o.Event())
}
