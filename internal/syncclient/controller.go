// Package syncclient keeps a client-side view of one guest session's orders
// consistent with the server, over a push stream or by interval polling.
package syncclient

import (
	"context"
	"errors"
	"sync"
	"time"

	"restaurant-sync/internal/common/clock"
	"restaurant-sync/internal/common/logger"
	"restaurant-sync/internal/domain"
)

var ErrClosed = errors.New("sync controller closed")

// Snapshotter fetches the full current state of the session's orders.
type Snapshotter interface {
	Snapshot(ctx context.Context) ([]domain.OrderEvent, error)
}

// PushSource opens a push stream for the session.
type PushSource interface {
	Subscribe(ctx context.Context) (Stream, error)
}

type Stream interface {
	Recv() (domain.Envelope, error)
	Close() error
}

type fetchResult struct {
	gen    uint64
	events []domain.OrderEvent
	err    error
}

type pushMsg struct {
	gen uint64
	env domain.Envelope
	err error
}

type connResult struct {
	gen    uint64
	stream Stream
	err    error
}

type mergeReq struct {
	ev      domain.OrderEvent
	refresh bool
}

// Controller owns one scheduler goroutine. Timers, fetch completions, push
// deltas and caller requests are all serialised through it.
type Controller struct {
	cfg   Config
	snap  Snapshotter
	push  PushSource
	state *State
	clock clock.Clock
	lg    *logger.Logger
	hooks hooks

	refreshCh chan chan error
	modeCh    chan bool
	mergeCh   chan mergeReq
	fetchCh   chan fetchResult
	pushCh    chan pushMsg
	connCh    chan connResult

	startOnce sync.Once
	closeOnce sync.Once
	cancel    context.CancelFunc
	done      chan struct{}

	mu       sync.Mutex
	nextPoll time.Time
	fetching bool
	realtime bool
	err      error
}

// New builds a controller. push may be nil when only polling is used.
func New(cfg Config, snap Snapshotter, push PushSource, opts ...Option) *Controller {
	cfg = cfg.withDefaults()
	if push == nil {
		cfg.Realtime = false
	}
	c := &Controller{
		cfg:       cfg,
		snap:      snap,
		push:      push,
		refreshCh: make(chan chan error),
		modeCh:    make(chan bool),
		mergeCh:   make(chan mergeReq),
		fetchCh:   make(chan fetchResult),
		pushCh:    make(chan pushMsg),
		connCh:    make(chan connResult),
		done:      make(chan struct{}),
		realtime:  cfg.Realtime,
	}
	for _, o := range opts {
		o(c)
	}
	if c.state == nil {
		c.state = NewState()
	}
	if c.clock == nil {
		c.clock = clock.Real{}
	}
	if c.lg == nil {
		c.lg = logger.New("sync-controller")
	}
	return c
}

// Start launches the scheduler. The first fetch (or push connect) happens
// immediately.
func (c *Controller) Start(ctx context.Context) {
	c.startOnce.Do(func() {
		ctx, c.cancel = context.WithCancel(ctx)
		go c.run(ctx)
	})
}

// Close stops the scheduler and waits for it. Results of fetches still in
// flight are discarded when they arrive.
func (c *Controller) Close() {
	c.closeOnce.Do(func() {
		c.startOnce.Do(func() { close(c.done) })
		if c.cancel != nil {
			c.cancel()
		}
	})
	<-c.done
}

// Done is closed when the scheduler has stopped, by Close or by expiry.
func (c *Controller) Done() <-chan struct{} { return c.done }

func (c *Controller) State() *State { return c.state }

// Err returns why the controller stopped, or nil while it runs.
func (c *Controller) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

// Refresh fetches a snapshot now and waits for it. A refresh issued while a
// fetch is in flight joins that fetch instead of starting another. In poll
// mode the next tick moves to now plus the interval.
func (c *Controller) Refresh(ctx context.Context) error {
	reply := make(chan error, 1)
	select {
	case c.refreshCh <- reply:
	case <-c.done:
		return c.stoppedErr()
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-reply:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// SetRealtime switches between push and poll mode. Work belonging to the old
// mode is abandoned.
func (c *Controller) SetRealtime(on bool) {
	select {
	case c.modeCh <- on:
	case <-c.done:
	}
}

// Merge applies an event obtained outside the push/poll paths, such as a
// command response. With refresh set, poll mode also schedules a fetch
// without waiting for it.
func (c *Controller) Merge(ev domain.OrderEvent, refresh bool) {
	select {
	case c.mergeCh <- mergeReq{ev: ev, refresh: refresh}:
	case <-c.done:
	}
}

func (c *Controller) Realtime() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.realtime
}

// Fetching reports whether a snapshot fetch is in flight.
func (c *Controller) Fetching() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.fetching
}

// NextPollIn is the time left until the next scheduled fetch, or zero when
// none is scheduled.
func (c *Controller) NextPollIn() time.Duration {
	c.mu.Lock()
	next := c.nextPoll
	c.mu.Unlock()
	if next.IsZero() {
		return 0
	}
	if d := next.Sub(c.clock.Now()); d > 0 {
		return d
	}
	return 0
}

func (c *Controller) stoppedErr() error {
	if err := c.Err(); err != nil {
		return err
	}
	return ErrClosed
}

// scheduler is the state owned by the run goroutine.
type scheduler struct {
	c   *Controller
	ctx context.Context

	realtime bool
	gen      uint64

	timer     clock.Timer
	armed     bool
	countdown clock.Timer
	counting  bool

	inflight bool
	resnap   bool
	waiters  []chan error

	stream     Stream
	connecting bool
	// baseline is set once a snapshot taken after the current subscription
	// has been applied.
	baseline bool

	failures int
	degraded bool
	stopped  bool
}

func (c *Controller) run(ctx context.Context) {
	s := &scheduler{c: c, ctx: ctx, realtime: c.cfg.Realtime}
	defer close(c.done)
	defer s.teardown()

	s.enter()
	for !s.stopped {
		var tickC, countC <-chan time.Time
		if s.armed {
			tickC = s.timer.C()
		}
		if s.counting {
			countC = s.countdown.C()
		}

		select {
		case <-ctx.Done():
			s.stop(ErrClosed)
		case <-tickC:
			s.armed = false
			s.onTick()
		case <-countC:
			s.counting = false
			s.onCountdown()
		case reply := <-c.refreshCh:
			s.refresh(reply, true)
		case on := <-c.modeCh:
			s.setMode(on)
		case m := <-c.mergeCh:
			s.merge(m)
		case r := <-c.fetchCh:
			s.onFetch(r)
		case m := <-c.pushCh:
			s.onPush(m)
		case r := <-c.connCh:
			s.onConn(r)
		}
	}
}

// enter starts the current mode from scratch.
func (s *scheduler) enter() {
	if s.realtime {
		s.connect()
		return
	}
	s.arm(s.c.cfg.Interval)
	s.armCountdown()
	s.startFetch()
}

func (s *scheduler) setMode(on bool) {
	if on == s.realtime {
		return
	}
	if on && s.c.push == nil {
		s.c.lg.Warn("sync_realtime_unavailable", errors.New("no push source"), nil)
		return
	}
	s.c.lg.Info("sync_mode_changed", map[string]any{"realtime": on})
	s.realtime = on
	s.c.mu.Lock()
	s.c.realtime = on
	s.c.mu.Unlock()

	// Anything still running for the old mode reports under the old
	// generation and is dropped on arrival.
	s.gen++
	s.setFetching(false)
	s.resnap = false
	s.connecting = false
	s.closeStream()
	s.disarm()
	s.enter()
}

func (s *scheduler) arm(d time.Duration) {
	if s.armed {
		s.timer.Stop()
	}
	if s.timer == nil {
		s.timer = s.c.clock.NewTimer(d)
	} else {
		s.timer.Reset(d)
	}
	s.armed = true
	s.c.mu.Lock()
	s.c.nextPoll = s.c.clock.Now().Add(d)
	s.c.mu.Unlock()
}

func (s *scheduler) disarm() {
	if s.armed {
		s.timer.Stop()
		s.armed = false
	}
	if s.counting {
		s.countdown.Stop()
		s.counting = false
	}
	s.c.mu.Lock()
	s.c.nextPoll = time.Time{}
	s.c.mu.Unlock()
}

func (s *scheduler) armCountdown() {
	if s.c.hooks.countdown == nil {
		return
	}
	if s.countdown == nil {
		s.countdown = s.c.clock.NewTimer(countdownEvery)
	} else {
		s.countdown.Reset(countdownEvery)
	}
	s.counting = true
}

func (s *scheduler) onCountdown() {
	if s.realtime {
		return
	}
	s.c.hooks.countdown(s.c.NextPollIn())
	s.armCountdown()
}

func (s *scheduler) onTick() {
	if s.realtime {
		// In push mode the timer only schedules reconnects and baseline retries.
		switch {
		case s.stream == nil && !s.connecting:
			s.connect()
		case s.stream != nil && !s.baseline && !s.inflight:
			s.startFetch()
		}
		return
	}
	s.arm(s.c.cfg.Interval)
	if s.inflight {
		s.c.lg.Debug("poll_skipped_in_flight", nil)
		return
	}
	s.startFetch()
}

// refresh joins the in-flight fetch or starts one. reply may be nil.
func (s *scheduler) refresh(reply chan error, manual bool) {
	if reply != nil {
		s.waiters = append(s.waiters, reply)
	}
	if s.inflight {
		return
	}
	if s.realtime && s.connecting {
		// The snapshot follows the subscription.
		return
	}
	if !s.realtime && manual {
		s.arm(s.c.cfg.Interval)
	}
	s.startFetch()
}

func (s *scheduler) startFetch() {
	s.setFetching(true)
	if s.c.hooks.poll != nil {
		s.c.hooks.poll(s.c.clock.Now())
	}
	gen, c, ctx := s.gen, s.c, s.ctx
	go func() {
		evs, err := c.snap.Snapshot(ctx)
		select {
		case c.fetchCh <- fetchResult{gen: gen, events: evs, err: err}:
		case <-c.done:
		case <-ctx.Done():
		}
	}()
}

func (s *scheduler) setFetching(on bool) {
	s.inflight = on
	s.c.mu.Lock()
	s.c.fetching = on
	s.c.mu.Unlock()
}

func (s *scheduler) onFetch(r fetchResult) {
	if r.gen != s.gen {
		return
	}
	s.setFetching(false)

	if r.err != nil {
		if s.expireFrom(r.err) {
			return
		}
		s.fail(r.err)
		s.resolve(r.err)
		if s.realtime && s.stream != nil && !s.baseline {
			s.arm(s.c.cfg.Interval)
		}
	} else {
		s.succeed()
		if s.realtime && s.stream != nil && !s.resnap {
			s.baseline = true
			s.disarm()
		}
		if changed := s.c.state.ApplySnapshot(r.events); len(changed) > 0 && s.c.hooks.update != nil {
			s.c.hooks.update(changed)
		}
		s.resolve(nil)
	}

	if s.resnap {
		s.resnap = false
		s.startFetch()
	}
}

func (s *scheduler) resolve(err error) {
	for _, w := range s.waiters {
		w <- err
	}
	s.waiters = nil
}

func (s *scheduler) fail(err error) {
	s.failures++
	s.c.lg.Warn("sync_fetch_failed", err, map[string]any{"consecutive_failures": s.failures})
	if s.c.hooks.err != nil {
		s.c.hooks.err(err)
	}
	if !s.degraded && s.failures >= s.c.cfg.DegradedAfter {
		s.degraded = true
		if s.c.hooks.degraded != nil {
			s.c.hooks.degraded(true)
		}
	}
}

func (s *scheduler) succeed() {
	s.failures = 0
	if s.degraded {
		s.degraded = false
		if s.c.hooks.degraded != nil {
			s.c.hooks.degraded(false)
		}
	}
}

func (s *scheduler) merge(m mergeReq) {
	if s.c.state.Apply(m.ev) && s.c.hooks.update != nil {
		s.c.hooks.update([]domain.OrderEvent{m.ev})
	}
	if m.refresh && !s.realtime {
		s.refresh(nil, false)
	}
}

func (s *scheduler) connect() {
	s.connecting = true
	gen, c, ctx := s.gen, s.c, s.ctx
	go func() {
		st, err := c.push.Subscribe(ctx)
		select {
		case c.connCh <- connResult{gen: gen, stream: st, err: err}:
		case <-c.done:
			if st != nil {
				_ = st.Close()
			}
		case <-ctx.Done():
			if st != nil {
				_ = st.Close()
			}
		}
	}()
}

func (s *scheduler) onConn(r connResult) {
	if r.gen != s.gen {
		if r.stream != nil {
			_ = r.stream.Close()
		}
		return
	}
	s.connecting = false
	if r.err != nil {
		if s.expireFrom(r.err) {
			return
		}
		s.fail(r.err)
		s.resolve(r.err)
		s.arm(s.c.cfg.Interval)
		return
	}

	s.stream = r.stream
	s.baseline = false
	s.c.lg.Info("push_connected", nil)
	go s.read(s.gen, r.stream)

	// Subscribed first, so nothing committed from here on is missed by the
	// snapshot.
	if s.inflight {
		s.resnap = true
		return
	}
	s.startFetch()
}

func (s *scheduler) read(gen uint64, st Stream) {
	c, ctx := s.c, s.ctx
	for {
		env, err := st.Recv()
		select {
		case c.pushCh <- pushMsg{gen: gen, env: env, err: err}:
		case <-c.done:
			return
		case <-ctx.Done():
			return
		}
		if err != nil {
			return
		}
	}
}

func (s *scheduler) onPush(m pushMsg) {
	if m.gen != s.gen || s.stream == nil {
		return
	}
	if m.err != nil {
		s.closeStream()
		err := &domain.TransportError{Op: "push stream", Err: m.err}
		s.fail(err)
		s.arm(s.c.cfg.Interval)
		return
	}
	switch m.env.Type {
	case domain.EnvelopeOrder:
		if m.env.Order != nil && s.c.state.Apply(*m.env.Order) && s.c.hooks.update != nil {
			s.c.hooks.update([]domain.OrderEvent{*m.env.Order})
		}
	case domain.EnvelopeSessionExpired:
		if m.env.Expired != nil {
			s.expire(*m.env.Expired)
		}
	}
}

func (s *scheduler) closeStream() {
	s.baseline = false
	if s.stream != nil {
		_ = s.stream.Close()
		s.stream = nil
	}
}

func (s *scheduler) expireFrom(err error) bool {
	var se *domain.SessionExpiredError
	if !errors.As(err, &se) {
		return false
	}
	s.expire(domain.SessionExpiredNotice{SessionID: se.SessionID, ExpiresAt: se.ExpiresAt})
	return true
}

// expire is terminal: no more timers, fetches or reconnects.
func (s *scheduler) expire(n domain.SessionExpiredNotice) {
	s.c.lg.Info("session_expired", map[string]any{"session_id": n.SessionID, "expires_at": n.ExpiresAt})
	s.stop(&domain.SessionExpiredError{SessionID: n.SessionID, ExpiresAt: n.ExpiresAt})
	if s.c.hooks.expired != nil {
		s.c.hooks.expired(n)
	}
}

func (s *scheduler) stop(err error) {
	if s.stopped {
		return
	}
	s.stopped = true
	s.c.mu.Lock()
	s.c.err = err
	s.c.mu.Unlock()
	s.resolve(err)
}

func (s *scheduler) teardown() {
	s.gen++
	s.disarm()
	s.closeStream()
	s.setFetching(false)
	s.resolve(ErrClosed)
}
