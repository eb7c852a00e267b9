package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/warden-dev/warden/internal/domain/manifest"
	"github.com/warden-dev/warden/internal/templates"
	"github.com/warden-dev/warden/internal/version"
)

func init() {
	pluginsCmd.AddCommand(newPluginsNewCmd())
}

// scaffoldOptions are the flags of plugins new.
type scaffoldOptions struct {
	lang   string
	name   string
	author string
	tier   int
	dir    string
	read   []string
	write  []string
	net    []string
}

func newPluginsNewCmd() *cobra.Command {
	opts := scaffoldOptions{lang: "js", tier: 1}

	cmd := &cobra.Command{
		Use:   "new <id>",
		Short: "Scaffold a script plugin",
		Long: `Create a plugin directory with a manifest, an entry script and a README.
The directory is created under the plugin root unless --dir is given.`,
		Example: `  warden plugins new my-panel
  warden plugins new weather --lang lua --tier 2 --net api.weather.example`,
		Args: cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			dir := opts.dir
			if dir == "" {
				cfg, err := loadConfig()
				if err != nil {
					return err
				}
				dir = cfg.PluginRoot
			}

			target, err := scaffold(dir, args[0], opts)
			if err != nil {
				return err
			}
			fmt.Printf("Created %s\n", target)
			return nil
		},
	}

	cmd.Flags().StringVar(&opts.lang, "lang", opts.lang, fmt.Sprintf("entry language (%s)", strings.Join(templates.Languages(), ", ")))
	cmd.Flags().StringVar(&opts.name, "name", "", "display name (default derived from the id)")
	cmd.Flags().StringVar(&opts.author, "author", "", "author written into the manifest")
	cmd.Flags().IntVar(&opts.tier, "tier", opts.tier, "requested trust tier (1-3)")
	cmd.Flags().StringVar(&opts.dir, "dir", "", "parent directory (default: plugin root)")
	cmd.Flags().StringSliceVar(&opts.read, "read", nil, "vault paths to request read access to")
	cmd.Flags().StringSliceVar(&opts.write, "write", nil, "vault paths to request write access to")
	cmd.Flags().StringSliceVar(&opts.net, "net", nil, "hosts to request network access to")

	return cmd
}

// scaffold renders a plugin into parent/id and returns the directory.
func scaffold(parent, id string, opts scaffoldOptions) (string, error) {
	if !manifest.ValidID(id) {
		return "", fmt.Errorf("invalid plugin id %q: use lowercase letters, digits, '.', '_' and '-'", id)
	}
	if !manifest.Tier(opts.tier).Valid() {
		return "", fmt.Errorf("invalid tier %d: must be 1, 2 or 3", opts.tier)
	}

	name := opts.name
	if name == "" {
		name = titleFromID(id)
	}
	files, err := templates.Render(opts.lang, templates.PluginData{
		ID:             id,
		Name:           name,
		Author:         opts.author,
		Tier:           opts.tier,
		RuntimeVersion: version.Runtime,
		Read:           opts.read,
		Write:          opts.write,
		Net:            opts.net,
	})
	if err != nil {
		return "", err
	}

	target := filepath.Join(parent, id)
	if _, err := os.Stat(target); err == nil {
		return "", fmt.Errorf("directory %s already exists", target)
	} else if !errors.Is(err, fs.ErrNotExist) {
		return "", err
	}
	if err := os.MkdirAll(target, 0o750); err != nil {
		return "", fmt.Errorf("failed to create plugin directory: %w", err)
	}

	names := make([]string, 0, len(files))
	for n := range files {
		names = append(names, n)
	}
	sort.Strings(names)
	for _, n := range names {
		if err := os.WriteFile(filepath.Join(target, n), files[n], 0o600); err != nil {
			return "", fmt.Errorf("failed to write %s: %w", n, err)
		}
	}
	return target, nil
}

// titleFromID turns "my-panel" into "My Panel".
func titleFromID(id string) string {
	words := strings.FieldsFunc(id, func(r rune) bool { return r == '-' || r == '_' || r == '.' })
	for i, w := range words {
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}
