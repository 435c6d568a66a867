package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"restaurant-sync/internal/common/clock"
	"restaurant-sync/internal/common/logger"
	"restaurant-sync/internal/domain"
	"restaurant-sync/internal/microservices/broadcast"
	"restaurant-sync/internal/microservices/order/repository"
)

type OrderServiceInterface interface {
	Create(ctx context.Context, sessionID string, items []domain.OrderItem, actor string) (domain.Order, error)
	Submit(ctx context.Context, orderID string, requested domain.Status, actor string) (domain.Order, error)
	Get(ctx context.Context, orderID string) (domain.Order, error)
	List(ctx context.Context, sessionID string) ([]domain.Order, error)
	Stats(ctx context.Context, sessionID string) (domain.Stats, error)
	Timeline(ctx context.Context, orderID string) ([]domain.StatusLogEntry, error)
}

// Sessions is the part of the session registry commands depend on.
type Sessions interface {
	Require(ctx context.Context, id string) (domain.GuestSession, error)
}

type OrderService struct {
	repo     repository.OrderRepositoryInterface
	sessions Sessions
	sink     broadcast.Sink
	clock    clock.Clock
	lg       *logger.Logger
}

func NewOrderService(repo repository.OrderRepositoryInterface, sessions Sessions, sink broadcast.Sink, clk clock.Clock, lg *logger.Logger) *OrderService {
	if clk == nil {
		clk = clock.Real{}
	}
	if lg == nil {
		lg = logger.New("order-service")
	}
	return &OrderService{repo: repo, sessions: sessions, sink: sink, clock: clk, lg: lg}
}

func (s *OrderService) Create(ctx context.Context, sessionID string, items []domain.OrderItem, actor string) (domain.Order, error) {
	if len(items) == 0 {
		return domain.Order{}, &domain.ValidationError{Field: "items", Reason: "at least one item is required"}
	}
	sess, err := s.sessions.Require(ctx, sessionID)
	if err != nil {
		return domain.Order{}, err
	}

	now := s.clock.Now().UTC()
	o := domain.Order{
		ID:          uuid.NewString(),
		SessionID:   sess.ID,
		TableNumber: sess.TableNumber,
		Items:       append([]domain.OrderItem(nil), items...),
		Status:      domain.StatusActive,
		CreatedAt:   now,
		UpdatedAt:   now,
		Version:     1,
	}
	if err := s.repo.Create(ctx, o, actor); err != nil {
		return domain.Order{}, fmt.Errorf("failed to save order: %w", err)
	}
	s.lg.Info("order_created", map[string]any{
		"order_id": o.ID, "session_id": o.SessionID, "table_number": o.TableNumber, "items": len(o.Items),
	})
	s.publish(ctx, o)
	return o, nil
}

// Submit applies a requested status change. The session must be active, the
// change must be an edge of the transition graph, and the version moves by
// exactly one. The delta is published only after the store commits.
func (s *OrderService) Submit(ctx context.Context, orderID string, requested domain.Status, actor string) (domain.Order, error) {
	if !requested.Valid() {
		return domain.Order{}, &domain.ValidationError{Field: "requested_status", Reason: "unknown status " + `"` + string(requested) + `"`}
	}
	cur, err := s.repo.Get(ctx, orderID)
	if err != nil {
		return domain.Order{}, err
	}
	if _, err := s.sessions.Require(ctx, cur.SessionID); err != nil {
		return domain.Order{}, err
	}

	next, err := s.repo.Transition(ctx, orderID, actor, func(locked domain.Order) (domain.Order, error) {
		return domain.Validate(locked, requested, s.clock.Now().UTC())
	})
	if err != nil {
		if domain.IsTransition(err) {
			s.lg.Debug("transition_rejected", map[string]any{"order_id": orderID, "requested": requested, "error": err.Error()})
		}
		return domain.Order{}, err
	}
	s.lg.Info("order_status_changed", map[string]any{
		"order_id": next.ID, "status": next.Status, "version": next.Version, "changed_by": actor,
	})
	s.publish(ctx, next)
	return next, nil
}

// publish failures are logged only; the change is already durable and
// subscribers catch up through their next snapshot.
func (s *OrderService) publish(ctx context.Context, o domain.Order) {
	pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := s.sink.PublishOrder(pctx, o.Event()); err != nil {
		s.lg.Warn("order_publish_failed", err, map[string]any{"order_id": o.ID, "version": o.Version})
	}
}

func (s *OrderService) Get(ctx context.Context, orderID string) (domain.Order, error) {
	return s.repo.Get(ctx, orderID)
}

func (s *OrderService) List(ctx context.Context, sessionID string) ([]domain.Order, error) {
	return s.repo.ListBySession(ctx, sessionID)
}

func (s *OrderService) Stats(ctx context.Context, sessionID string) (domain.Stats, error) {
	orders, err := s.repo.ListBySession(ctx, sessionID)
	if err != nil {
		return domain.Stats{}, err
	}
	return domain.ComputeStats(orders), nil
}

func (s *OrderService) Timeline(ctx context.Context, orderID string) ([]domain.StatusLogEntry, error) {
	return s.repo.Timeline(ctx, orderID)
}

// OnSessionExpired leaves open orders as they are for staff follow-up and
// records how many there were.
func (s *OrderService) OnSessionExpired(ctx context.Context, n domain.SessionExpiredNotice) {
	orders, err := s.repo.ListBySession(ctx, n.SessionID)
	if err != nil {
		s.lg.Error("expired_session_orders_failed", err, map[string]any{"session_id": n.SessionID})
		return
	}
	open := 0
	for _, o := range orders {
		if !o.Status.Terminal() {
			open++
		}
	}
	s.lg.Info("session_orders_left_open", map[string]any{
		"session_id": n.SessionID, "open_orders": open, "total_orders": len(orders),
	})
}
