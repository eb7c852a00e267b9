package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/warden-dev/warden/internal/application/services"
	infracaps "github.com/warden-dev/warden/internal/infrastructure/capabilities"
)

func init() {
	pluginsCmd.AddCommand(newPluginsApproveCmd())
	pluginsCmd.AddCommand(newPluginsRevokeCmd())
}

func newGatekeeper(cc *CommandContext) *services.ApprovalGatekeeper {
	cfg := cc.Container.SystemConfig()
	return services.NewApprovalGatekeeper(
		cc.Container.Host(),
		cc.Container.Approvals(),
		infracaps.NewTerminalPrompter(),
		string(cfg.Security.GetSecurityLevel()),
		cc.Logger,
	)
}

func newPluginsApproveCmd() *cobra.Command {
	var yes bool

	cmd := &cobra.Command{
		Use:   "approve <id>",
		Short: "Approve a plugin's capabilities",
		Long: `Show the capabilities a tier 2 or 3 plugin would receive and record
the approval. An approval covers one plugin version and the capabilities
shown; a new version or a wider profile needs a new approval.`,
		Example: `  warden plugins approve notes
  warden plugins approve notes --yes`,
		Args: cobra.ExactArgs(1),
		RunE: withContainer(func(cc *CommandContext, _ *cobra.Command, args []string) error {
			if _, err := cc.Container.Host().LoadAll(cc.Context); err != nil {
				return fmt.Errorf("failed to load plugins: %w", err)
			}

			outcome, err := newGatekeeper(cc).Approve(args[0], yes)
			if err != nil {
				return err
			}
			switch outcome {
			case services.OutcomeNotRequired:
				fmt.Printf("%s is sandboxed and needs no approval.\n", args[0])
			case services.OutcomeAlreadyApproved:
				fmt.Printf("%s is already approved.\n", args[0])
			default:
				fmt.Printf("Approved %s.\n", args[0])
			}
			return nil
		}, withoutWasm),
	}

	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "approve without prompting (the security level still applies)")
	return cmd
}

func newPluginsRevokeCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "revoke <id>",
		Short:   "Remove a plugin's approval",
		Example: `  warden plugins revoke notes`,
		Args:    cobra.ExactArgs(1),
		RunE: withContainer(func(cc *CommandContext, _ *cobra.Command, args []string) error {
			if _, err := cc.Container.Host().LoadAll(cc.Context); err != nil {
				return fmt.Errorf("failed to load plugins: %w", err)
			}
			if err := newGatekeeper(cc).Revoke(args[0]); err != nil {
				return err
			}
			fmt.Printf("Revoked approval for %s.\n", args[0])
			return nil
		}, withoutWasm),
	}
}
