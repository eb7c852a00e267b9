package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/warden-dev/warden/internal/application/schema"
)

func init() {
	schemaCmd := &cobra.Command{
		Use:   "schema",
		Short: "Print JSON Schemas for warden files",
	}
	schemaCmd.AddCommand(&cobra.Command{
		Use:     "manifest",
		Short:   "Print the plugin manifest JSON Schema",
		Example: `  warden schema manifest > manifest.schema.json`,
		Args:    cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			out, err := schema.Manifest()
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(os.Stdout, string(out))
			return err
		},
	})
	rootCmd.AddCommand(schemaCmd)
}
