package session

import (
	"time"

	"restaurant-sync/internal/common/clock"
	"restaurant-sync/internal/common/logger"
	"restaurant-sync/internal/microservices/session/handler"
	"restaurant-sync/internal/microservices/session/repository"
	"restaurant-sync/internal/microservices/session/service"
)

type Module struct {
	Registry *service.Registry
	Gate     service.Gate
	Handler  *handler.SessionHandler
}

func New(repo repository.SessionRepositoryInterface, duration time.Duration, staffKey string, clk clock.Clock, lg *logger.Logger) *Module {
	reg := service.NewRegistry(repo, duration, clk, lg)
	gate := service.Gate{Registry: reg, StaffKey: staffKey}
	return &Module{Registry: reg, Gate: gate, Handler: handler.NewSessionHandler(reg, gate)}
}
