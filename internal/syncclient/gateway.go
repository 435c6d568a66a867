package syncclient

import (
	"context"

	"restaurant-sync/internal/domain"
)

// Commander sends mutating commands to the server.
type Commander interface {
	SubmitStatus(ctx context.Context, orderID string, requested domain.Status) (domain.Order, error)
}

// Gateway submits commands and folds the committed result into the
// controller's state. The delta that later arrives by push or poll for the
// same version is then dropped by the version gate.
type Gateway struct {
	cmd Commander
	ctl *Controller
}

func NewGateway(cmd Commander, ctl *Controller) *Gateway {
	return &Gateway{cmd: cmd, ctl: ctl}
}

func (g *Gateway) Submit(ctx context.Context, orderID string, requested domain.Status) (domain.Order, error) {
	if !requested.Valid() {
		return domain.Order{}, &domain.ValidationError{Field: "requested_status", Reason: "unknown status"}
	}
	o, err := g.cmd.SubmitStatus(ctx, orderID, requested)
	if err != nil {
		return domain.Order{}, err
	}
	g.ctl.Merge(o.Event(), true)
	return o, nil
}
