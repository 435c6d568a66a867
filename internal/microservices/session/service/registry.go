package service

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"restaurant-sync/internal/common/clock"
	"restaurant-sync/internal/common/logger"
	"restaurant-sync/internal/domain"
	"restaurant-sync/internal/microservices/session/repository"
)

type RegistryInterface interface {
	Create(ctx context.Context, tableNumber int) (domain.GuestSession, error)
	Get(ctx context.Context, id string) (domain.GuestSession, error)
	IsActive(ctx context.Context, id string) (bool, error)
	Require(ctx context.Context, id string) (domain.GuestSession, error)
	Authenticate(ctx context.Context, id, token string) (domain.GuestSession, error)
}

// ExpiryListener receives the SessionExpired notice for a session. An error
// releases the expiry claim so a later check or sweep delivers it again.
type ExpiryListener func(ctx context.Context, n domain.SessionExpiredNotice) error

// Registry tracks guest sessions. Liveness is computed lazily from the wall
// clock on each check; there are no per-session timers.
type Registry struct {
	repo     repository.SessionRepositoryInterface
	clock    clock.Clock
	duration time.Duration
	lg       *logger.Logger

	mu        sync.RWMutex
	listeners []ExpiryListener
}

func NewRegistry(repo repository.SessionRepositoryInterface, duration time.Duration, clk clock.Clock, lg *logger.Logger) *Registry {
	if clk == nil {
		clk = clock.Real{}
	}
	if lg == nil {
		lg = logger.New("session-registry")
	}
	return &Registry{repo: repo, clock: clk, duration: duration, lg: lg}
}

func (r *Registry) OnExpired(fn ExpiryListener) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.listeners = append(r.listeners, fn)
}

func (r *Registry) Create(ctx context.Context, tableNumber int) (domain.GuestSession, error) {
	if tableNumber < domain.MinTable || tableNumber > domain.MaxTable {
		return domain.GuestSession{}, &domain.ValidationError{
			Field:  "table_number",
			Reason: domain.ReasonOutOfRange,
		}
	}
	s := domain.GuestSession{
		ID:          uuid.NewString(),
		TableNumber: tableNumber,
		StartedAt:   r.clock.Now().UTC(),
		Duration:    r.duration,
		Token:       uuid.NewString(),
	}
	if err := r.repo.Create(ctx, s); err != nil {
		return domain.GuestSession{}, err
	}
	r.lg.Info("session_created", map[string]any{
		"session_id": s.ID, "table_number": s.TableNumber, "expires_at": s.ExpiresAt(),
	})
	return s, nil
}

func (r *Registry) Get(ctx context.Context, id string) (domain.GuestSession, error) {
	return r.repo.Get(ctx, id)
}

func (r *Registry) IsActive(ctx context.Context, id string) (bool, error) {
	s, err := r.repo.Get(ctx, id)
	if err != nil {
		return false, err
	}
	return r.check(ctx, s)
}

// check compares against the clock and, on the first observation of expiry,
// claims the edge and notifies listeners.
func (r *Registry) check(ctx context.Context, s domain.GuestSession) (bool, error) {
	now := r.clock.Now()
	if s.ActiveAt(now) {
		return true, nil
	}
	first, err := r.repo.MarkExpired(ctx, s.ID, now.UTC())
	if err != nil {
		return false, err
	}
	if !first {
		return false, nil
	}

	// The claim outlives the request that observed the edge.
	ctx = context.WithoutCancel(ctx)
	n := domain.SessionExpiredNotice{SessionID: s.ID, ExpiresAt: s.ExpiresAt()}
	if err := r.fire(ctx, n); err != nil {
		r.lg.Warn("session_expiry_delivery_failed", err, map[string]any{"session_id": s.ID})
		if rerr := r.repo.ReleaseExpired(ctx, s.ID); rerr != nil {
			r.lg.Error("session_expiry_release_failed", rerr, map[string]any{"session_id": s.ID})
		}
	}
	return false, nil
}

func (r *Registry) fire(ctx context.Context, n domain.SessionExpiredNotice) error {
	r.lg.Info("session_expired", map[string]any{"session_id": n.SessionID, "expires_at": n.ExpiresAt})
	r.mu.RLock()
	ls := append([]ExpiryListener(nil), r.listeners...)
	r.mu.RUnlock()
	var errs []error
	for _, fn := range ls {
		if err := fn(ctx, n); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Require returns the session if it is still active, or a SessionExpiredError.
func (r *Registry) Require(ctx context.Context, id string) (domain.GuestSession, error) {
	s, err := r.repo.Get(ctx, id)
	if err != nil {
		return domain.GuestSession{}, err
	}
	active, err := r.check(ctx, s)
	if err != nil {
		return domain.GuestSession{}, err
	}
	if !active {
		return domain.GuestSession{}, &domain.SessionExpiredError{SessionID: s.ID, ExpiresAt: s.ExpiresAt()}
	}
	return s, nil
}

// Authenticate checks a guest token against an active session.
func (r *Registry) Authenticate(ctx context.Context, id, token string) (domain.GuestSession, error) {
	s, err := r.Require(ctx, id)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return domain.GuestSession{}, &domain.AuthorizationError{Scope: id, Reason: "unknown session"}
		}
		return domain.GuestSession{}, err
	}
	if token == "" || subtle.ConstantTimeCompare([]byte(token), []byte(s.Token)) != 1 {
		return domain.GuestSession{}, &domain.AuthorizationError{Scope: id, Reason: "token mismatch"}
	}
	return s, nil
}

// SweepOnce checks every session whose expiry has not been claimed yet and
// returns how many expired during this pass.
func (r *Registry) SweepOnce(ctx context.Context) (int, error) {
	sessions, err := r.repo.ListUnexpired(ctx)
	if err != nil {
		return 0, fmt.Errorf("sweep: %w", err)
	}
	expired := 0
	for _, s := range sessions {
		if s.ActiveAt(r.clock.Now()) {
			continue
		}
		if _, err := r.check(ctx, s); err != nil {
			r.lg.Error("sweep_check_failed", err, map[string]any{"session_id": s.ID})
			continue
		}
		expired++
	}
	return expired, nil
}

// Sweep runs SweepOnce on one registry-wide timer until ctx is done. It
// exists so subscriptions of sessions nobody touches still get closed. The
// timer is re-armed after each pass.
func (r *Registry) Sweep(ctx context.Context, every time.Duration) error {
	t := r.clock.NewTimer(every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-t.C():
			if n, err := r.SweepOnce(ctx); err != nil {
				r.lg.Error("sweep_failed", err, nil)
			} else if n > 0 {
				r.lg.Debug("sweep_expired", map[string]any{"count": n})
			}
			t.Reset(every)
		}
	}
}
