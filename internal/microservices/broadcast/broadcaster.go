// Package broadcast fans order deltas out to the subscribers of one session
// scope. Each scope has its own group and lock; the group index is only
// touched when a group is created, reclaimed or force-closed.
package broadcast

import (
	"sync"
	"sync/atomic"

	"restaurant-sync/internal/common/logger"
	"restaurant-sync/internal/domain"
)

// Conn is one subscriber connection. Send is only ever called from the
// subscription's own write goroutine.
type Conn interface {
	// Scope is the session the connection authenticated for.
	Scope() string
	Send(env domain.Envelope) error
	Close() error
}

type group struct {
	mu   sync.Mutex
	subs map[uint64]*Subscription
	dead bool
}

type Subscription struct {
	id    uint64
	scope string
	conn  Conn
	g     *group
	b     *Broadcaster

	queue   chan domain.Envelope // guarded by g.mu for send/close
	removed bool                 // guarded by g.mu
	done    chan struct{}
}

func (s *Subscription) Scope() string { return s.scope }

// Done is closed once the connection has been closed.
func (s *Subscription) Done() <-chan struct{} { return s.done }

// Close unsubscribes immediately.
func (s *Subscription) Close() { s.b.Unsubscribe(s) }

type Broadcaster struct {
	mu     sync.RWMutex
	groups map[string]*group

	queueSize int
	nextID    atomic.Uint64
	lg        *logger.Logger
}

func New(queueSize int, lg *logger.Logger) *Broadcaster {
	if queueSize <= 0 {
		queueSize = 64
	}
	if lg == nil {
		lg = logger.New("broadcast")
	}
	return &Broadcaster{groups: make(map[string]*group), queueSize: queueSize, lg: lg}
}

// Subscribe joins conn to the group for scope, creating it on first use.
// conn must have authenticated for exactly that scope.
func (b *Broadcaster) Subscribe(scope string, conn Conn) (*Subscription, error) {
	if scope == "" {
		return nil, &domain.ValidationError{Field: "session_id", Reason: "required"}
	}
	if conn.Scope() != scope {
		return nil, &domain.AuthorizationError{Scope: scope, Reason: "connection authenticated for another scope"}
	}

	b.mu.Lock()
	g, ok := b.groups[scope]
	if !ok {
		g = &group{subs: make(map[uint64]*Subscription)}
		b.groups[scope] = g
	}
	g.mu.Lock()
	b.mu.Unlock()

	sub := &Subscription{
		id:    b.nextID.Add(1),
		scope: scope,
		conn:  conn,
		g:     g,
		b:     b,
		queue: make(chan domain.Envelope, b.queueSize),
		done:  make(chan struct{}),
	}
	g.subs[sub.id] = sub
	n := len(g.subs)
	g.mu.Unlock()

	go sub.pump()
	b.lg.Debug("subscribed", map[string]any{"scope": scope, "subscription": sub.id, "subscribers": n})
	return sub, nil
}

// pump drains the queue in order, then closes the connection.
func (s *Subscription) pump() {
	defer close(s.done)
	defer func() { _ = s.conn.Close() }()
	for env := range s.queue {
		if err := s.conn.Send(env); err != nil {
			s.b.lg.Debug("send_failed", map[string]any{"scope": s.scope, "subscription": s.id, "error": err.Error()})
			s.b.Unsubscribe(s)
			return
		}
	}
}

// removeLocked requires g.mu.
func (g *group) removeLocked(s *Subscription) bool {
	if s.removed {
		return false
	}
	s.removed = true
	delete(g.subs, s.id)
	close(s.queue)
	return true
}

// Unsubscribe removes the subscription right away; the group is reclaimed
// when its last subscriber leaves. Safe to call more than once.
func (b *Broadcaster) Unsubscribe(s *Subscription) {
	g := s.g
	g.mu.Lock()
	removed := g.removeLocked(s)
	empty := len(g.subs) == 0 && !g.dead
	g.mu.Unlock()

	if removed {
		b.lg.Debug("unsubscribed", map[string]any{"scope": s.scope, "subscription": s.id})
	}
	if removed && empty {
		b.reclaim(s.scope, g)
	}
}

func (b *Broadcaster) reclaim(scope string, g *group) {
	b.mu.Lock()
	defer b.mu.Unlock()
	g.mu.Lock()
	defer g.mu.Unlock()
	if len(g.subs) == 0 && !g.dead && b.groups[scope] == g {
		g.dead = true
		delete(b.groups, scope)
	}
}

func (b *Broadcaster) lookup(scope string) *group {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.groups[scope]
}

// Publish queues env for every current subscriber of scope and returns how
// many received it. Enqueueing happens under the scope lock, so all
// subscribers see one scope's events in publish order. A subscriber whose
// queue is full is dropped; it resynchronises with a snapshot on reconnect.
func (b *Broadcaster) Publish(scope string, env domain.Envelope) int {
	for {
		g := b.lookup(scope)
		if g == nil {
			return 0
		}
		g.mu.Lock()
		if g.dead {
			g.mu.Unlock()
			continue
		}
		delivered := 0
		var dropped []*Subscription
		for _, s := range g.subs {
			select {
			case s.queue <- env:
				delivered++
			default:
				dropped = append(dropped, s)
			}
		}
		for _, s := range dropped {
			g.removeLocked(s)
		}
		empty := len(g.subs) == 0
		g.mu.Unlock()

		for _, s := range dropped {
			b.lg.Info("slow_subscriber_dropped", map[string]any{"scope": scope, "subscription": s.id})
		}
		if len(dropped) > 0 && empty {
			b.reclaim(scope, g)
		}
		return delivered
	}
}

// PublishOrder publishes an order delta to the order's own scope.
func (b *Broadcaster) PublishOrder(ev domain.OrderEvent) int {
	return b.Publish(ev.ScopeRef, domain.OrderEnvelope(ev))
}

// CloseScope sends the expiry notice to every subscriber of the scope, closes
// them and removes the group. Returns the number of subscriptions closed.
func (b *Broadcaster) CloseScope(n domain.SessionExpiredNotice) int {
	b.mu.Lock()
	g, ok := b.groups[n.SessionID]
	if !ok {
		b.mu.Unlock()
		return 0
	}
	delete(b.groups, n.SessionID)
	g.mu.Lock()
	b.mu.Unlock()

	g.dead = true
	env := domain.ExpiredEnvelope(n)
	closed := 0
	for _, s := range g.subs {
		select {
		case s.queue <- env:
		default:
		}
		g.removeLocked(s)
		closed++
	}
	g.mu.Unlock()

	b.lg.Info("scope_closed", map[string]any{"scope": n.SessionID, "subscriptions": closed})
	return closed
}

// Subscribers returns the number of live subscriptions for scope.
func (b *Broadcaster) Subscribers(scope string) int {
	g := b.lookup(scope)
	if g == nil {
		return 0
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.subs)
}

// Groups returns the number of live broadcast groups.
func (b *Broadcaster) Groups() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.groups)
}

// CloseAll closes every subscription without a notice. Used on shutdown, when
// hijacked websocket connections are not drained by the HTTP server.
func (b *Broadcaster) CloseAll() int {
	b.mu.Lock()
	groups := b.groups
	b.groups = make(map[string]*group)
	b.mu.Unlock()

	closed := 0
	for _, g := range groups {
		g.mu.Lock()
		g.dead = true
		for _, s := range g.subs {
			g.removeLocked(s)
			closed++
		}
		g.mu.Unlock()
	}
	return closed
}
