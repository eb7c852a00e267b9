package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func init() {
	pluginsCmd.AddCommand(newPluginsCheckCmd())
}

func newPluginsCheckCmd() *cobra.Command {
	opts := DefaultCommonOptions()

	cmd := &cobra.Command{
		Use:   "check <id>",
		Short: "Enable and disable a plugin to verify it loads",
		Long: `Run a plugin's full lifecycle once: approval check, runtime load, settings
declaration, init and destroy. Panels and events go nowhere.`,
		Example: `  warden plugins check notes --timeout 10s`,
		Args:    cobra.ExactArgs(1),
		RunE: withContainer(func(cc *CommandContext, _ *cobra.Command, args []string) error {
			h := cc.Container.Host()
			if _, err := h.LoadAll(cc.Context); err != nil {
				return fmt.Errorf("failed to load plugins: %w", err)
			}

			ctx, cancel := opts.ApplyToContext(cc.Context)
			defer cancel()

			id := args[0]
			if err := h.EnablePlugin(ctx, id); err != nil {
				return fmt.Errorf("plugin %s failed to enable: %w", id, err)
			}
			if err := h.DisablePlugin(ctx, id); err != nil {
				return fmt.Errorf("plugin %s failed to disable: %w", id, err)
			}
			fmt.Printf("%s: ok\n", id)
			return nil
		}),
	}

	opts.RegisterFlags(cmd)
	return cmd
}
