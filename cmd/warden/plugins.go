package main

import (
	"github.com/spf13/cobra"
)

// pluginsCmd represents the plugins command
var pluginsCmd = &cobra.Command{
	Use:   "plugins",
	Short: "Manage plugins",
	Long:  `Inspect the plugins under the plugin root and manage their capability approvals.`,
}

func init() {
	rootCmd.AddCommand(pluginsCmd)
}
