package service

import (
	"context"
	"crypto/subtle"
	"errors"

	"restaurant-sync/internal/domain"
)

// ActorStaff is recorded as changed_by for commands made with the staff key.
const ActorStaff = "staff"

// Gate resolves which session scope a bearer token may act on. A guest token
// grants its own session only; the staff key grants any active session.
type Gate struct {
	Registry *Registry
	StaffKey string
}

// Authorize returns the session and the actor name to record for the caller.
func (g Gate) Authorize(ctx context.Context, sessionID, token string) (domain.GuestSession, string, error) {
	if g.isStaff(token) {
		s, err := g.Registry.Require(ctx, sessionID)
		return s, ActorStaff, err
	}
	s, err := g.Registry.Authenticate(ctx, sessionID, token)
	return s, "guest:" + sessionID, err
}

func (g Gate) IsActive(ctx context.Context, sessionID string) (bool, error) {
	return g.Registry.IsActive(ctx, sessionID)
}

func (g Gate) isStaff(token string) bool {
	return g.StaffKey != "" && subtle.ConstantTimeCompare([]byte(token), []byte(g.StaffKey)) == 1
}

// View returns the session with its current liveness. Unlike Authorize it
// also answers for sessions that have already expired.
func (g Gate) View(ctx context.Context, sessionID, token string) (domain.SessionView, error) {
	s, err := g.Registry.Get(ctx, sessionID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) && !g.isStaff(token) {
			return domain.SessionView{}, &domain.AuthorizationError{Scope: sessionID, Reason: "unknown session"}
		}
		return domain.SessionView{}, err
	}
	if !g.isStaff(token) && (token == "" || subtle.ConstantTimeCompare([]byte(token), []byte(s.Token)) != 1) {
		return domain.SessionView{}, &domain.AuthorizationError{Scope: sessionID, Reason: "token mismatch"}
	}
	active, err := g.Registry.IsActive(ctx, sessionID)
	if err != nil {
		return domain.SessionView{}, err
	}
	return domain.SessionView{
		SessionID:   s.ID,
		TableNumber: s.TableNumber,
		StartedAt:   s.StartedAt,
		ExpiresAt:   s.ExpiresAt(),
		Active:      active,
	}, nil
}
