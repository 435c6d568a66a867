package repository

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"restaurant-sync/internal/domain"
)

// MemoryRepository keeps orders in process. The single mutex plays the role
// of the row lock.
type MemoryRepository struct {
	mu     sync.Mutex
	orders map[string]domain.Order
	log    map[string][]domain.StatusLogEntry
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		orders: make(map[string]domain.Order),
		log:    make(map[string][]domain.StatusLogEntry),
	}
}

func cloneOrder(o domain.Order) domain.Order {
	o.Items = append([]domain.OrderItem(nil), o.Items...)
	return o
}

func (r *MemoryRepository) Create(_ context.Context, o domain.Order, changedBy string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.orders[o.ID]; ok {
		return fmt.Errorf("order %s already exists", o.ID)
	}
	r.orders[o.ID] = cloneOrder(o)
	r.log[o.ID] = append(r.log[o.ID], domain.StatusLogEntry{
		OrderID: o.ID, Status: o.Status, Version: o.Version, ChangedBy: changedBy, ChangedAt: o.CreatedAt,
	})
	return nil
}

func (r *MemoryRepository) Get(_ context.Context, id string) (domain.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	o, ok := r.orders[id]
	if !ok {
		return domain.Order{}, fmt.Errorf("order %s: %w", id, domain.ErrNotFound)
	}
	return cloneOrder(o), nil
}

func (r *MemoryRepository) ListBySession(_ context.Context, sessionID string) ([]domain.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.Order
	for _, o := range r.orders {
		if o.SessionID == sessionID {
			out = append(out, cloneOrder(o))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

func (r *MemoryRepository) Transition(_ context.Context, id, changedBy string, fn MutateFunc) (domain.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cur, ok := r.orders[id]
	if !ok {
		return domain.Order{}, fmt.Errorf("order %s: %w", id, domain.ErrNotFound)
	}
	next, err := fn(cloneOrder(cur))
	if err != nil {
		return domain.Order{}, err
	}
	if next.Version != cur.Version+1 {
		return domain.Order{}, fmt.Errorf("order %s at version %d: %w", id, cur.Version, domain.ErrVersionConflict)
	}
	r.orders[id] = cloneOrder(next)
	r.log[id] = append(r.log[id], domain.StatusLogEntry{
		OrderID: id, From: cur.Status, Status: next.Status, Version: next.Version,
		ChangedBy: changedBy, ChangedAt: next.UpdatedAt,
	})
	return next, nil
}

func (r *MemoryRepository) Timeline(_ context.Context, id string) ([]domain.StatusLogEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.orders[id]; !ok {
		return nil, fmt.Errorf("order %s: %w", id, domain.ErrNotFound)
	}
	return append([]domain.StatusLogEntry(nil), r.log[id]...), nil
}
