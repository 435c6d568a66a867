package repository

import (
	"context"
	"time"

	"restaurant-sync/internal/domain"
)

type SessionRepositoryInterface interface {
	Create(ctx context.Context, s domain.GuestSession) error
	Get(ctx context.Context, id string) (domain.GuestSession, error)
	// MarkExpired claims the expiry edge for a session. It returns true for
	// exactly one caller per session.
	MarkExpired(ctx context.Context, id string, at time.Time) (bool, error)
	// ReleaseExpired undoes a claim whose notice could not be delivered.
	ReleaseExpired(ctx context.Context, id string) error
	// ListUnexpired returns sessions whose expiry has not been claimed yet.
	ListUnexpired(ctx context.Context) ([]domain.GuestSession, error)
}
