package repository

import (
	"context"
	"fmt"
	"sync"
	"time"

	"restaurant-sync/internal/domain"
)

type memSession struct {
	s         domain.GuestSession
	expiredAt time.Time
}

type MemoryRepository struct {
	mu       sync.RWMutex
	sessions map[string]*memSession
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{sessions: make(map[string]*memSession)}
}

func (r *MemoryRepository) Create(_ context.Context, s domain.GuestSession) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.sessions[s.ID]; ok {
		return fmt.Errorf("session %s already exists", s.ID)
	}
	r.sessions[s.ID] = &memSession{s: s}
	return nil
}

func (r *MemoryRepository) Get(_ context.Context, id string) (domain.GuestSession, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ms, ok := r.sessions[id]
	if !ok {
		return domain.GuestSession{}, fmt.Errorf("session %s: %w", id, domain.ErrNotFound)
	}
	return ms.s, nil
}

func (r *MemoryRepository) MarkExpired(_ context.Context, id string, at time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	ms, ok := r.sessions[id]
	if !ok {
		return false, fmt.Errorf("session %s: %w", id, domain.ErrNotFound)
	}
	if !ms.expiredAt.IsZero() {
		return false, nil
	}
	ms.expiredAt = at
	return true, nil
}

func (r *MemoryRepository) ReleaseExpired(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	ms, ok := r.sessions[id]
	if !ok {
		return fmt.Errorf("session %s: %w", id, domain.ErrNotFound)
	}
	ms.expiredAt = time.Time{}
	return nil
}

func (r *MemoryRepository) ListUnexpired(_ context.Context) ([]domain.GuestSession, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]domain.GuestSession, 0, len(r.sessions))
	for _, ms := range r.sessions {
		if ms.expiredAt.IsZero() {
			out = append(out, ms.s)
		}
	}
	return out, nil
}
