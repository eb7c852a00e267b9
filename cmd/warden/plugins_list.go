package main

import (
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/warden-dev/warden/internal/domain/plugin"
)

func init() {
	pluginsCmd.AddCommand(newPluginsListCmd())
}

// pluginRow is one line of plugins list.
type pluginRow struct {
	ID          string   `json:"id" yaml:"id"`
	Name        string   `json:"name" yaml:"name"`
	Version     string   `json:"version" yaml:"version"`
	Tier        int      `json:"tier" yaml:"tier"`
	Status      string   `json:"status" yaml:"status"`
	Entry       string   `json:"entryPoint,omitempty" yaml:"entryPoint,omitempty"`
	Runtime     bool     `json:"hasRuntime" yaml:"hasRuntime"`
	Permissions []string `json:"permissions" yaml:"permissions"`
}

func newRow(s plugin.State) pluginRow {
	return pluginRow{
		ID:          s.Manifest.ID,
		Name:        s.Manifest.Name,
		Version:     s.Manifest.Version,
		Tier:        int(s.Manifest.Tier),
		Status:      string(s.Status()),
		Entry:       s.Manifest.EntryPoint,
		Runtime:     s.HasRuntime,
		Permissions: s.Permissions,
	}
}

func newPluginsListCmd() *cobra.Command {
	opts := DefaultCommonOptions()

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List discovered plugins",
		Long:  `List every plugin under the plugin root, plus built-in plugins.`,
		Example: `  warden plugins list
  warden plugins list -o json`,
		Args: cobra.NoArgs,
		PreRunE: func(_ *cobra.Command, _ []string) error {
			return opts.ValidateFlags()
		},
		RunE: withContainer(func(cc *CommandContext, _ *cobra.Command, _ []string) error {
			h := cc.Container.Host()
			if _, err := h.LoadAll(cc.Context); err != nil {
				return fmt.Errorf("failed to load plugins: %w", err)
			}

			states := h.GetAll()
			rows := make([]pluginRow, 0, len(states))
			for _, s := range states {
				rows = append(rows, newRow(s))
			}

			if ok, err := opts.writeStructured(os.Stdout, rows); ok {
				return err
			}

			if len(rows) == 0 {
				fmt.Println("No plugins found.")
				return nil
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', 0)
			if _, err := fmt.Fprintln(w, "ID\tNAME\tVERSION\tTIER\tSTATUS\tPERMISSIONS"); err != nil {
				return fmt.Errorf("failed to write header: %w", err)
			}
			for _, r := range rows {
				perms := strings.Join(r.Permissions, ", ")
				if perms == "" {
					perms = "-"
				}
				if _, err := fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\t%s\n",
					r.ID, r.Name, r.Version, r.Tier, r.Status, perms,
				); err != nil {
					return fmt.Errorf("failed to write plugin info: %w", err)
				}
			}
			if err := w.Flush(); err != nil {
				return fmt.Errorf("failed to flush writer: %w", err)
			}
			return nil
		}, withoutWasm),
	}

	opts.RegisterFlags(cmd)
	return cmd
}
