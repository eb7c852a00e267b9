package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/warden-dev/warden/internal/plugins/activity"
)

func init() {
	rootCmd.AddCommand(newServeCmd())
}

func newServeCmd() *cobra.Command {
	var (
		addr      string
		enable    []string
		enableAll bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the plugin host and the WebSocket bridge",
		Long: `Discover plugins under the plugin root, enable the requested ones and
serve them to UI clients until interrupted. The built-in activity plugin is
enabled whenever it is configured.`,
		Example: `  warden serve
  warden serve --addr 127.0.0.1:9000 --enable notes,weather
  WARDEN_VAULT_BASE=/tmp/vault warden serve --enable-all --ephemeral`,
		Args: cobra.NoArgs,
		RunE: withContainer(func(cc *CommandContext, _ *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cc.Context, os.Interrupt, syscall.SIGTERM)
			defer stop()

			h := cc.Container.Host()
			srv := cc.Container.NewBridge(addr)

			loaded, err := h.LoadAll(ctx)
			if err != nil {
				return fmt.Errorf("failed to load plugins: %w", err)
			}
			cc.Logger.Info("plugins discovered", "count", loaded, "root", cc.Container.SystemConfig().PluginRoot, "runtimes", cc.Container.Registry().Extensions())

			ids := enable
			if enableAll {
				ids = ids[:0]
				for _, s := range h.GetAll() {
					ids = append(ids, s.Manifest.ID)
				}
			} else if _, ok := h.Get(activity.ID); ok {
				ids = append(ids, activity.ID)
			}

			for _, id := range ids {
				if err := h.EnablePlugin(ctx, id); err != nil {
					cc.Logger.Warn("failed to enable plugin", "plugin", id, "error", err)
				}
			}

			return srv.Run(ctx)
		}),
	}

	cmd.Flags().StringVar(&addr, "addr", "", "listen address (default from config, 127.0.0.1:7420)")
	cmd.Flags().StringSliceVar(&enable, "enable", nil, "plugin ids to enable at startup")
	cmd.Flags().BoolVar(&enableAll, "enable-all", false, "enable every discovered plugin")

	return cmd
}
