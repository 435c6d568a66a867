package main

import (
	"context"
	"errors"
	"io/fs"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"restaurant-sync/internal/common/config"
	"restaurant-sync/internal/common/logger"
)

// rootOptions holds flags shared by every subcommand.
type rootOptions struct {
	ConfigPath string
	LogLevel   string
}

func newRootCommand() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:           "restaurant-sync",
		Short:         "Order status sync server and client",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringVar(&opts.ConfigPath, "config", "", "path to YAML config (default: ./config.yaml if present)")
	cmd.PersistentFlags().StringVar(&opts.LogLevel, "log-level", "", "override log level (debug|info|warn|error)")

	cmd.AddCommand(newServeCommand(opts))
	cmd.AddCommand(newWatchCommand(opts))
	cmd.AddCommand(newMigrateCommand(opts))
	return cmd
}

// load resolves and reads the config, then applies the log level.
func (o *rootOptions) load() (config.App, error) {
	path := o.ConfigPath
	if path == "" {
		found, err := config.FindConfig()
		if err != nil && !errors.Is(err, fs.ErrNotExist) {
			return config.App{}, err
		}
		path = found
	}
	cfg, err := config.Load(path)
	if err != nil {
		return config.App{}, err
	}
	if o.LogLevel != "" {
		cfg.LogLevel = o.LogLevel
	}
	logger.SetLevel(cfg.LogLevel)
	return cfg, nil
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}
