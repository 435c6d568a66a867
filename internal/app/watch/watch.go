// Package watch runs a sync controller against a server and logs what it
// sees. It is the command-line stand-in for an ordering client or staff view.
package watch

import (
	"context"
	"errors"
	"time"

	"restaurant-sync/internal/common/logger"
	"restaurant-sync/internal/domain"
	"restaurant-sync/internal/syncclient"
)

type Options struct {
	BaseURL       string
	SessionID     string
	Token         string
	Realtime      bool
	Interval      time.Duration
	DegradedAfter int
	Logger        *logger.Logger
}

func Run(ctx context.Context, opts Options) error {
	lg := opts.Logger
	if lg == nil {
		lg = logger.New("sync-watch")
	}
	lg = lg.With(map[string]any{"session_id": opts.SessionID})

	client := syncclient.NewClient(opts.BaseURL, opts.SessionID, opts.Token)
	var push syncclient.PushSource
	if opts.Realtime {
		push = syncclient.NewWSPushSource(opts.BaseURL, opts.SessionID, opts.Token)
	}

	ctl := syncclient.New(syncclient.Config{
		Realtime:      opts.Realtime,
		Interval:      opts.Interval,
		DegradedAfter: opts.DegradedAfter,
	}, client, push,
		syncclient.WithLogger(lg),
		syncclient.OnUpdate(func(evs []domain.OrderEvent) {
			for _, ev := range evs {
				lg.Info("order_updated", map[string]any{
					"order_id": ev.OrderID, "status": ev.Status, "version": ev.Version, "updated_at": ev.UpdatedAt,
				})
			}
		}),
		syncclient.OnPoll(func(time.Time) { lg.Debug("poll", nil) }),
		syncclient.OnDegraded(func(on bool) { lg.Info("sync_degraded", map[string]any{"degraded": on}) }),
	)
	ctl.Start(ctx)
	defer ctl.Close()

	lg.Info("watch_started", map[string]any{"server": opts.BaseURL, "realtime": opts.Realtime, "interval": opts.Interval.String()})
	select {
	case <-ctx.Done():
		return nil
	case <-ctl.Done():
		err := ctl.Err()
		if err == nil || errors.Is(err, syncclient.ErrClosed) || domain.IsSessionExpired(err) {
			return nil
		}
		return err
	}
}
