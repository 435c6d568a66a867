package main

import (
	"github.com/spf13/cobra"

	"restaurant-sync/internal/app/syncserver"
	"restaurant-sync/internal/common/logger"
)

func newServeCommand(root *rootOptions) *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the sync server (REST, websocket push, expiry sweeper)",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := root.load()
			if err != nil {
				return err
			}
			if addr != "" {
				cfg.Server.Addr = addr
			}

			ctx, cancel := signalContext()
			defer cancel()

			lg := logger.New("bootstrap")
			app, err := syncserver.New(ctx, cfg, nil)
			if err != nil {
				lg.Error("startup_failed", err, nil)
				return err
			}
			lg.Info("service_started", map[string]any{
				"addr": cfg.Server.Addr, "postgres": cfg.Database.Enabled(), "rabbitmq": cfg.Rabbit.Enabled(),
			})
			if err := app.Run(ctx); err != nil {
				lg.Error("fatal", err, nil)
				return err
			}
			lg.Info("service_stopped", nil)
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (overrides server.addr)")
	return cmd
}
