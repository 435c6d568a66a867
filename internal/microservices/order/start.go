package order

import (
	"restaurant-sync/internal/common/clock"
	"restaurant-sync/internal/common/logger"
	"restaurant-sync/internal/microservices/broadcast"
	"restaurant-sync/internal/microservices/order/handlers"
	"restaurant-sync/internal/microservices/order/repository"
	"restaurant-sync/internal/microservices/order/service"
)

type Deps struct {
	Repo     repository.OrderRepositoryInterface
	Sessions service.Sessions
	Sink     broadcast.Sink
	Gate     handlers.Gate
	Clock    clock.Clock
	Logger   *logger.Logger
}

// New wires the order service and its HTTP handlers.
func New(d Deps) (*service.OrderService, *handlers.Handler) {
	svc := service.NewOrderService(d.Repo, d.Sessions, d.Sink, d.Clock, d.Logger)
	return svc, handlers.New(svc, d.Gate, d.Logger)
}
