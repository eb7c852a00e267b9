package main

import (
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/warden-dev/warden/internal/domain/capabilities"
	"github.com/warden-dev/warden/internal/domain/manifest"
	infracaps "github.com/warden-dev/warden/internal/infrastructure/capabilities"
)

func init() {
	pluginsCmd.AddCommand(newPluginsInspectCmd())
}

// capabilityView describes one resolved capability.
type capabilityView struct {
	Kind        string `json:"kind" yaml:"kind"`
	Pattern     string `json:"pattern" yaml:"pattern"`
	Risk        string `json:"risk" yaml:"risk"`
	Description string `json:"description" yaml:"description"`
}

// inspectView is the output of plugins inspect.
type inspectView struct {
	Manifest     *manifest.Manifest `json:"manifest" yaml:"manifest"`
	Status       string             `json:"status" yaml:"status"`
	Approved     bool               `json:"approved" yaml:"approved"`
	Subprocess   bool               `json:"subprocess" yaml:"subprocess"`
	Risk         string             `json:"risk" yaml:"risk"`
	Capabilities []capabilityView   `json:"capabilities" yaml:"capabilities"`
	// Objections are capabilities the configured security level warns about or refuses.
	Objections []string `json:"objections,omitempty" yaml:"objections,omitempty"`
}

func newPluginsInspectCmd() *cobra.Command {
	opts := DefaultCommonOptions()

	cmd := &cobra.Command{
		Use:     "inspect <id>",
		Short:   "Show a plugin's manifest and effective capabilities",
		Example: `  warden plugins inspect notes`,
		Args:    cobra.ExactArgs(1),
		PreRunE: func(_ *cobra.Command, _ []string) error {
			return opts.ValidateFlags()
		},
		RunE: withContainer(func(cc *CommandContext, _ *cobra.Command, args []string) error {
			h := cc.Container.Host()
			if _, err := h.LoadAll(cc.Context); err != nil {
				return fmt.Errorf("failed to load plugins: %w", err)
			}

			id := args[0]
			state, ok := h.Get(id)
			if !ok {
				return fmt.Errorf("plugin %q not found", id)
			}
			profile, err := h.Profile(id)
			if err != nil {
				return err
			}

			caps := profile.Capabilities()
			approved := state.Manifest.Tier < manifest.TierVerified
			if !approved {
				approved, err = cc.Container.Approvals().IsApproved(id, state.Manifest.Version, caps)
				if err != nil {
					return fmt.Errorf("failed to read approvals: %w", err)
				}
			}

			view := inspectView{
				Manifest:     state.Manifest,
				Status:       string(state.Status()),
				Approved:     approved,
				Subprocess:   profile.Subprocess,
				Risk:         capabilities.Grant(caps).MaxRisk().String(),
				Capabilities: make([]capabilityView, 0, len(caps)),
			}
			for _, c := range caps {
				view.Capabilities = append(view.Capabilities, capabilityView{
					Kind:        c.Kind,
					Pattern:     c.Pattern,
					Risk:        c.RiskLevel().String(),
					Description: infracaps.Describe(c),
				})
			}

			security := cc.Container.SystemConfig().Security
			for _, c := range security.BroadCapabilities(caps) {
				view.Objections = append(view.Objections, c.String())
			}

			if ok, err := opts.writeStructured(os.Stdout, view); ok {
				return err
			}

			m := state.Manifest
			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			_, _ = fmt.Fprintf(w, "ID:\t%s\n", m.ID)
			_, _ = fmt.Fprintf(w, "Name:\t%s\n", m.Name)
			_, _ = fmt.Fprintf(w, "Version:\t%s\n", m.Version)
			_, _ = fmt.Fprintf(w, "Tier:\t%d (%s)\n", m.Tier, m.Tier)
			_, _ = fmt.Fprintf(w, "Status:\t%s\n", view.Status)
			_, _ = fmt.Fprintf(w, "Approved:\t%t\n", view.Approved)
			_, _ = fmt.Fprintf(w, "Risk:\t%s\n", view.Risk)
			if m.EntryPoint != "" {
				_, _ = fmt.Fprintf(w, "Entry:\t%s\n", m.EntryPath())
			}
			if m.EventFilter != "" {
				_, _ = fmt.Fprintf(w, "Event filter:\t%s\n", m.EventFilter)
			}
			if err := w.Flush(); err != nil {
				return err
			}
			fmt.Println()
			fmt.Println(infracaps.Summary(caps))
			if len(view.Objections) > 0 {
				fmt.Printf("\nSecurity level %q flags: %s\n", security.GetSecurityLevel(), strings.Join(view.Objections, ", "))
			}
			return nil
		}, withoutWasm),
	}

	opts.RegisterFlags(cmd)
	return cmd
}
