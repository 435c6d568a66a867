package domain

import "time"

var transitions = map[Status][]Status{
	StatusActive:    {StatusPreparing, StatusCancelled},
	StatusPreparing: {StatusReady, StatusCancelled},
	StatusReady:     {StatusCompleted},
}

// AllowedNext returns the statuses reachable from s in one step.
func AllowedNext(s Status) []Status {
	next := transitions[s]
	out := make([]Status, len(next))
	copy(out, next)
	return out
}

func CanTransition(from, to Status) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Validate applies requested to order. The input is not modified; an accepted
// transition bumps Version by exactly one and stamps UpdatedAt.
func Validate(order Order, requested Status, now time.Time) (Order, error) {
	if !requested.Valid() {
		return Order{}, &ValidationError{Field: "requested_status", Reason: "unknown status " + `"` + string(requested) + `"`}
	}
	if order.Status.Terminal() {
		return Order{}, &TransitionError{Code: TerminalState, From: order.Status, To: requested}
	}
	if !CanTransition(order.Status, requested) {
		return Order{}, &TransitionError{Code: InvalidTransition, From: order.Status, To: requested}
	}
	next := order
	next.Items = append([]OrderItem(nil), order.Items...)
	next.Status = requested
	next.Version = order.Version + 1
	next.UpdatedAt = now
	return next, nil
}
