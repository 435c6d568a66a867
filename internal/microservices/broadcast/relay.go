package broadcast

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	amqp "github.com/rabbitmq/amqp091-go"

	"restaurant-sync/internal/common/logger"
	"restaurant-sync/internal/domain"
)

// ErrDLQ marks a delivery that can never be handled: nack(requeue=false).
var ErrDLQ = errors.New("dead_letter")

const (
	orderKeyPrefix   = "session."
	expiredKeyPrefix = "expired."
)

// Publisher is the slice of the mq client the relay publishes through.
type Publisher interface {
	Publish(ctx context.Context, exchange, key string, body []byte, headers amqp.Table) error
}

// Consumer is the slice of the mq client the relay consumes through.
type Consumer interface {
	ConsumeExclusive(exchange string, keys []string, consumer string, prefetch int) (<-chan amqp.Delivery, error)
	Cancel(consumer string) error
}

// Relay is a Sink that publishes to a topic exchange, and a consumer that
// feeds what it receives into the local broadcaster. A single consumer
// goroutine keeps per-scope order intact.
type Relay struct {
	pub      Publisher
	sub      Consumer
	exchange string
	consumer string
	prefetch int
	b        *Broadcaster
	lg       *logger.Logger
}

func NewRelay(pub Publisher, sub Consumer, exchange, consumer string, prefetch int, b *Broadcaster, lg *logger.Logger) *Relay {
	if lg == nil {
		lg = logger.New("broadcast-relay")
	}
	return &Relay{pub: pub, sub: sub, exchange: exchange, consumer: consumer, prefetch: prefetch, b: b, lg: lg}
}

func (r *Relay) PublishOrder(ctx context.Context, ev domain.OrderEvent) error {
	return r.publish(ctx, orderKeyPrefix+ev.ScopeRef, domain.OrderEnvelope(ev))
}

func (r *Relay) PublishExpired(ctx context.Context, n domain.SessionExpiredNotice) error {
	return r.publish(ctx, expiredKeyPrefix+n.SessionID, domain.ExpiredEnvelope(n))
}

func (r *Relay) publish(ctx context.Context, key string, env domain.Envelope) error {
	body, err := json.Marshal(env)
	if err != nil {
		return err
	}
	if err := r.pub.Publish(ctx, r.exchange, key, body, amqp.Table{"x-source": "sync-server"}); err != nil {
		return &domain.TransportError{Op: "publish " + key, Err: err}
	}
	return nil
}

// Run consumes until ctx is done or the delivery channel closes.
func (r *Relay) Run(ctx context.Context) error {
	msgs, err := r.sub.ConsumeExclusive(r.exchange, []string{orderKeyPrefix + "*", expiredKeyPrefix + "*"}, r.consumer, r.prefetch)
	if err != nil {
		return fmt.Errorf("relay consume: %w", err)
	}
	r.lg.Info("relay_started", map[string]any{"exchange": r.exchange, "consumer": r.consumer})

	for {
		select {
		case <-ctx.Done():
			_ = r.sub.Cancel(r.consumer)
			return nil
		case d, ok := <-msgs:
			if !ok {
				return errors.New("relay delivery channel closed")
			}
			switch err := r.handle(d.RoutingKey, d.Body); {
			case err == nil:
				_ = d.Ack(false)
			case errors.Is(err, ErrDLQ):
				r.lg.Error("relay_message_rejected", err, map[string]any{"routing_key": d.RoutingKey})
				_ = d.Nack(false, false)
			default:
				_ = d.Nack(false, true)
			}
		}
	}
}

func (r *Relay) handle(key string, body []byte) error {
	var env domain.Envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return fmt.Errorf("%w: %v", ErrDLQ, err)
	}
	switch {
	case strings.HasPrefix(key, orderKeyPrefix) && env.Type == domain.EnvelopeOrder && env.Order != nil:
		n := r.b.PublishOrder(*env.Order)
		r.lg.Debug("relay_order_delivered", map[string]any{
			"scope": env.Order.ScopeRef, "order_id": env.Order.OrderID, "version": env.Order.Version, "subscribers": n,
		})
		return nil
	case strings.HasPrefix(key, expiredKeyPrefix) && env.Type == domain.EnvelopeSessionExpired && env.Expired != nil:
		r.b.CloseScope(*env.Expired)
		return nil
	default:
		return fmt.Errorf("%w: unexpected %q on %q", ErrDLQ, env.Type, key)
	}
}
