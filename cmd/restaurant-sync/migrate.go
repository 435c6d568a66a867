package main

import (
	"errors"

	"github.com/spf13/cobra"

	"restaurant-sync/internal/common/db"
	"restaurant-sync/internal/common/logger"
)

func newMigrateCommand(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply the embedded Postgres schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := root.load()
			if err != nil {
				return err
			}
			if !cfg.Database.Enabled() {
				return errors.New("database.host is not configured")
			}
			ctx, cancel := signalContext()
			defer cancel()

			conn, err := db.Connect(ctx, cfg.Database.DSN())
			if err != nil {
				return err
			}
			defer conn.Close()
			if err := conn.Migrate(ctx); err != nil {
				return err
			}
			logger.New("migrate").Info("schema_applied", map[string]any{"database": cfg.Database.Name})
			return nil
		},
	}
}
