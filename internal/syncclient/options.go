package syncclient

import (
	"time"

	"restaurant-sync/internal/common/clock"
	"restaurant-sync/internal/common/logger"
	"restaurant-sync/internal/domain"
)

const (
	DefaultInterval      = 15000 * time.Millisecond
	DefaultDegradedAfter = 3

	countdownEvery = time.Second
)

type Config struct {
	// Realtime selects push mode at start. It is decided by the embedding
	// application; the controller never probes connectivity itself.
	Realtime      bool
	Interval      time.Duration
	DegradedAfter int
}

func (c Config) withDefaults() Config {
	if c.Interval <= 0 {
		c.Interval = DefaultInterval
	}
	if c.DegradedAfter <= 0 {
		c.DegradedAfter = DefaultDegradedAfter
	}
	return c
}

// Hooks run on the scheduler goroutine. They must return quickly and must not
// call back into the controller synchronously.
type hooks struct {
	update    func([]domain.OrderEvent)
	poll      func(time.Time)
	err       func(error)
	degraded  func(bool)
	expired   func(domain.SessionExpiredNotice)
	countdown func(time.Duration)
}

type Option func(*Controller)

func WithClock(clk clock.Clock) Option { return func(c *Controller) { c.clock = clk } }

func WithLogger(lg *logger.Logger) Option { return func(c *Controller) { c.lg = lg } }

// WithState shares an existing state, for example with a Gateway.
func WithState(s *State) Option { return func(c *Controller) { c.state = s } }

// OnUpdate receives the deltas that changed the state.
func OnUpdate(fn func([]domain.OrderEvent)) Option { return func(c *Controller) { c.hooks.update = fn } }

// OnPoll fires whenever a snapshot fetch starts.
func OnPoll(fn func(at time.Time)) Option { return func(c *Controller) { c.hooks.poll = fn } }

func OnError(fn func(error)) Option { return func(c *Controller) { c.hooks.err = fn } }

func OnDegraded(fn func(bool)) Option { return func(c *Controller) { c.hooks.degraded = fn } }

func OnExpired(fn func(domain.SessionExpiredNotice)) Option {
	return func(c *Controller) { c.hooks.expired = fn }
}

// OnCountdown is called once a second in poll mode with the time left until
// the next scheduled fetch.
func OnCountdown(fn func(time.Duration)) Option { return func(c *Controller) { c.hooks.countdown = fn } }
