package main

import (
	"errors"
	"time"

	"github.com/spf13/cobra"

	"restaurant-sync/internal/app/watch"
)

func newWatchCommand(root *rootOptions) *cobra.Command {
	opts := watch.Options{}
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Follow a guest session's orders and log every change",
		Long: `Follow a guest session's orders the way an ordering client would.

With --realtime the websocket push channel is used; otherwise the server is
polled every --interval (default from sync.poll_interval).

Example:
  restaurant-sync watch --server http://localhost:3000 --session <id> --token <token>
  restaurant-sync watch --server http://localhost:3000 --session <id> --token <staff key> --realtime`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := root.load()
			if err != nil {
				return err
			}
			if opts.SessionID == "" {
				return errors.New("--session is required")
			}
			if !cmd.Flags().Changed("interval") {
				opts.Interval = cfg.Sync.PollInterval
			}
			opts.DegradedAfter = cfg.Sync.DegradedAfter

			ctx, cancel := signalContext()
			defer cancel()
			return watch.Run(ctx, opts)
		},
	}
	cmd.Flags().StringVar(&opts.BaseURL, "server", "http://localhost:3000", "sync server base URL")
	cmd.Flags().StringVar(&opts.SessionID, "session", "", "guest session id")
	cmd.Flags().StringVar(&opts.Token, "token", "", "guest token or staff key")
	cmd.Flags().BoolVar(&opts.Realtime, "realtime", false, "use the websocket push channel")
	cmd.Flags().DurationVar(&opts.Interval, "interval", 15*time.Second, "poll interval")
	return cmd
}
