package syncclient

import (
	"sort"
	"sync"

	"restaurant-sync/internal/domain"
)

// State is the client-local view of a session's orders. Every merge is gated
// on version, so applying the same delta twice, or an older one after a newer
// one, leaves it unchanged.
type State struct {
	mu     sync.RWMutex
	orders map[string]domain.OrderEvent
}

func NewState() *State {
	return &State{orders: make(map[string]domain.OrderEvent)}
}

// Apply merges ev if it is strictly newer than what is held for the order.
func (s *State) Apply(ev domain.OrderEvent) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.applyLocked(ev)
}

func (s *State) applyLocked(ev domain.OrderEvent) bool {
	if cur, ok := s.orders[ev.OrderID]; ok && ev.Version <= cur.Version {
		return false
	}
	s.orders[ev.OrderID] = ev
	return true
}

// ApplySnapshot merges a full poll response and returns the entries that
// changed the state. Orders are never removed, so absence means nothing.
func (s *State) ApplySnapshot(evs []domain.OrderEvent) []domain.OrderEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	var changed []domain.OrderEvent
	for _, ev := range evs {
		if s.applyLocked(ev) {
			changed = append(changed, ev)
		}
	}
	return changed
}

func (s *State) Get(orderID string) (domain.OrderEvent, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ev, ok := s.orders[orderID]
	return ev, ok
}

// Version returns the last applied version, or 0 for an unknown order.
func (s *State) Version(orderID string) int64 {
	ev, _ := s.Get(orderID)
	return ev.Version
}

// Orders returns a copy sorted by order id.
func (s *State) Orders() []domain.OrderEvent {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.OrderEvent, 0, len(s.orders))
	for _, ev := range s.orders {
		out = append(out, ev)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].OrderID < out[j].OrderID })
	return out
}

func (s *State) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.orders)
}
