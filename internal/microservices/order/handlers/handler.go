package handlers

import (
	"context"
	_ "embed"

	"restaurant-sync/internal/common/logger"
	"restaurant-sync/internal/common/validate"
	"restaurant-sync/internal/domain"
	"restaurant-sync/internal/microservices/order/service"
)

//go:embed create_order.cue
var createOrderSchema string

// Gate authorises a bearer token for a session scope and names the actor.
type Gate interface {
	Authorize(ctx context.Context, sessionID, token string) (domain.GuestSession, string, error)
}

type Handler struct {
	OrderHandler *OrderHandler
}

func New(svc service.OrderServiceInterface, gate Gate, lg *logger.Logger) *Handler {
	return &Handler{
		OrderHandler: NewOrderHandler(svc, gate, validate.MustCompile(createOrderSchema), lg),
	}
}
