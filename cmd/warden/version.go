package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/warden-dev/warden/internal/version"
)

func init() {
	var asJSON bool
	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Print the version number of warden",
		RunE: func(_ *cobra.Command, _ []string) error {
			info := version.Get()
			if asJSON {
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				return enc.Encode(info)
			}
			fmt.Printf("warden version %s\n", info.Full())
			return nil
		},
	}
	versionCmd.Flags().BoolVar(&asJSON, "json", false, "print build information as JSON")
	rootCmd.AddCommand(versionCmd)
}
