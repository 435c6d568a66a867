package broadcast

import (
	"context"

	"restaurant-sync/internal/domain"
)

// Sink is where committed changes go. Local delivers in-process; Relay goes
// through RabbitMQ so every server instance's broadcaster receives them.
type Sink interface {
	PublishOrder(ctx context.Context, ev domain.OrderEvent) error
	PublishExpired(ctx context.Context, n domain.SessionExpiredNotice) error
}

type Local struct{ B *Broadcaster }

func (l Local) PublishOrder(_ context.Context, ev domain.OrderEvent) error {
	l.B.PublishOrder(ev)
	return nil
}

func (l Local) PublishExpired(_ context.Context, n domain.SessionExpiredNotice) error {
	l.B.CloseScope(n)
	return nil
}
