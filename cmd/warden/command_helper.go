package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/warden-dev/warden/internal/infrastructure/container"
	"github.com/warden-dev/warden/internal/infrastructure/system"
)

// CommandContext provides common command dependencies.
type CommandContext struct {
	Container *container.Container
	Logger    *slog.Logger
	Context   context.Context
}

// CommandHandler is a function that executes with initialized dependencies.
type CommandHandler func(*CommandContext, *cobra.Command, []string) error

// containerOptions tweak the container a command gets.
type containerOptions struct {
	skipWasm bool
}

// withContainer wraps a command handler with config loading and container
// setup, and closes the container when the handler returns.
func withContainer(handler CommandHandler, opts ...func(*containerOptions)) func(*cobra.Command, []string) error {
	var o containerOptions
	for _, opt := range opts {
		opt(&o)
	}

	return func(cmd *cobra.Command, args []string) error {
		logger := slog.Default()

		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		c, err := container.New(cmd.Context(), container.Options{
			Config:    cfg,
			Ephemeral: ephemeral,
			SkipWasm:  o.skipWasm,
			Logger:    logger,
		})
		if err != nil {
			return fmt.Errorf("failed to initialize application: %w", err)
		}
		defer func() {
			if err := c.Close(context.WithoutCancel(cmd.Context())); err != nil {
				logger.Debug("failed to close container", "error", err)
			}
		}()

		return handler(&CommandContext{
			Container: c,
			Logger:    logger,
			Context:   cmd.Context(),
		}, cmd, args)
	}
}

// withoutWasm is for commands that only read manifests.
func withoutWasm(o *containerOptions) {
	o.skipWasm = true
}

func loadConfig() (*system.Config, error) {
	path := cfgFile
	if path == "" {
		path = system.DefaultPath()
	}
	cfg, err := system.NewConfigLoader().Load(path)
	if err != nil {
		return nil, err
	}
	applyOverrides(viper.GetViper(), cfg)
	cfg.ApplyDefaults()
	return cfg, nil
}
