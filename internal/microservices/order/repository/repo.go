package repository

import (
	"context"

	"restaurant-sync/internal/domain"
)

// MutateFunc computes the next state of a locked order. Returning an error
// aborts the change.
type MutateFunc func(cur domain.Order) (domain.Order, error)

type OrderRepositoryInterface interface {
	Create(ctx context.Context, o domain.Order, changedBy string) error
	Get(ctx context.Context, id string) (domain.Order, error)
	ListBySession(ctx context.Context, sessionID string) ([]domain.Order, error)
	// Transition locks the order, applies fn and persists the result together
	// with a status log entry. The stored version must still match the one fn
	// saw, otherwise domain.ErrVersionConflict is returned.
	Transition(ctx context.Context, id, changedBy string, fn MutateFunc) (domain.Order, error)
	Timeline(ctx context.Context, id string) ([]domain.StatusLogEntry, error)
}
