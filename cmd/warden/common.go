package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/goccy/go-yaml"
	"github.com/spf13/cobra"
)

// CommonOptions contains flags shared across commands that print results.
type CommonOptions struct {
	Format  string
	Timeout time.Duration
}

// DefaultCommonOptions returns sensible defaults.
func DefaultCommonOptions() CommonOptions {
	return CommonOptions{
		Format:  "table",
		Timeout: 30 * time.Second,
	}
}

// RegisterFlags adds common flags to a cobra command.
func (opts *CommonOptions) RegisterFlags(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&opts.Format, "format", "o", opts.Format,
		"Output format: table, json, yaml")
	cmd.Flags().DurationVar(&opts.Timeout, "timeout", opts.Timeout,
		"Timeout for plugin lifecycle calls (0 to disable)")
}

// ApplyToContext applies the timeout to ctx.
func (opts *CommonOptions) ApplyToContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if opts.Timeout > 0 {
		return context.WithTimeout(ctx, opts.Timeout)
	}
	return ctx, func() {}
}

// ValidateFlags validates common options.
func (opts *CommonOptions) ValidateFlags() error {
	switch opts.Format {
	case "table", "json", "yaml":
		return nil
	default:
		return fmt.Errorf("invalid format: %s (valid: table, json, yaml)", opts.Format)
	}
}

// writeStructured renders v as JSON or YAML. It returns false for table output.
func (opts *CommonOptions) writeStructured(w io.Writer, v any) (bool, error) {
	switch opts.Format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return true, enc.Encode(v)
	case "yaml":
		data, err := yaml.MarshalWithOptions(v, yaml.IndentSequence(true))
		if err != nil {
			return true, fmt.Errorf("failed to encode yaml: %w", err)
		}
		_, err = w.Write(data)
		return true, err
	default:
		return false, nil
	}
}
