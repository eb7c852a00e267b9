// Package container wires the host, its runtimes and stores from configuration.
package container

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/warden-dev/warden/internal/application/ports"
	"github.com/warden-dev/warden/internal/bridge"
	"github.com/warden-dev/warden/internal/domain/plugin"
	"github.com/warden-dev/warden/internal/host"
	"github.com/warden-dev/warden/internal/infrastructure/capabilities"
	"github.com/warden-dev/warden/internal/infrastructure/persistence/file"
	"github.com/warden-dev/warden/internal/infrastructure/persistence/memory"
	"github.com/warden-dev/warden/internal/infrastructure/redaction"
	"github.com/warden-dev/warden/internal/infrastructure/scripting"
	"github.com/warden-dev/warden/internal/infrastructure/scripting/js"
	"github.com/warden-dev/warden/internal/infrastructure/scripting/lua"
	"github.com/warden-dev/warden/internal/infrastructure/system"
	"github.com/warden-dev/warden/internal/infrastructure/wasm"
	"github.com/warden-dev/warden/internal/plugins/activity"
	"github.com/warden-dev/warden/internal/version"
)

// Container holds all application dependencies.
type Container struct {
	cfg       *system.Config
	logger    *slog.Logger
	registry  *plugin.Registry
	host      *host.Host
	approvals ports.ApprovalStore
	vault     ports.VaultStore
	activity  ports.ActivityRepository
	wasm      *wasm.Runtime
}

// Options configure the container.
type Options struct {
	Logger           *slog.Logger
	SystemConfigPath string
	// Config replaces the file at SystemConfigPath when set.
	Config *system.Config
	// Ephemeral overrides the config's ephemeral flag when true.
	Ephemeral bool
	// SkipWasm leaves the WebAssembly runtime out. Commands that never
	// enable plugins use it to avoid compiling anything.
	SkipWasm bool
}

// New builds the dependency graph. The caller must Close the container.
func New(ctx context.Context, opts Options) (*Container, error) {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	cfg := opts.Config
	if cfg == nil {
		path := opts.SystemConfigPath
		if path == "" {
			path = system.DefaultPath()
		}
		loaded, err := system.NewConfigLoader().Load(path)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}
	cfg.ApplyDefaults()
	if opts.Ephemeral {
		cfg.Ephemeral = true
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	redactor, err := redaction.New(redaction.Config{
		Patterns:        cfg.Redaction.Patterns,
		Keys:            cfg.Redaction.Keys,
		HashMode:        cfg.Redaction.HashMode.Enabled,
		Salt:            cfg.Redaction.HashMode.Salt,
		DisableGitleaks: cfg.Redaction.DisableGitleaks,
	})
	if err != nil {
		return nil, err
	}

	c := &Container{
		cfg:      cfg,
		logger:   opts.Logger,
		registry: plugin.NewRegistry(),
		activity: memory.NewActivityRepository(cfg.Activity.History),
	}

	var settings ports.SettingsStore
	if cfg.Ephemeral {
		settings = memory.NewSettingsStore()
		c.approvals = memory.NewApprovalStore()
		c.vault = memory.NewVaultStore()
	} else {
		vault := file.NewVaultStore(cfg.VaultBase)
		if err := vault.EnsurePartitions(); err != nil {
			return nil, err
		}
		settings = file.NewSettingsStore(cfg.SettingsDir())
		c.approvals = capabilities.NewFileStore(cfg.ApprovalsPath())
		c.vault = vault
	}

	pluginLogger := slog.New(redaction.NewHandler(opts.Logger.Handler(), redactor))

	if !opts.SkipWasm {
		c.wasm, err = wasm.NewRuntime(ctx, wasm.Options{
			MemoryLimitMB: cfg.Wasm.MemoryLimitMB,
			VaultBase:     cfg.VaultBase,
			CacheDir:      cfg.Wasm.CacheDir,
			Redactor:      redactor,
			Output:        os.Stderr,
			Logger:        opts.Logger,
		})
		if err != nil {
			return nil, err
		}
		c.registry.RegisterLoader(wasm.Extension, c.wasm)
	}

	scriptOpts := scripting.Options{CallTimeout: cfg.Scripts.CallTimeout}
	c.registry.RegisterLoader(js.Extension, js.NewRuntime(scriptOpts, opts.Logger))
	c.registry.RegisterLoader(lua.Extension, lua.NewRuntime(scriptOpts, opts.Logger))

	c.host = host.New(host.Options{
		PluginRoot:      cfg.PluginRoot,
		VaultBase:       cfg.VaultBase,
		RuntimeVersion:  version.Runtime,
		RequireApproval: cfg.RequireApproval,
		MailboxSize:     cfg.MailboxSize,
		Registry:        c.registry,
		Settings:        settings,
		Approvals:       c.approvals,
		Vault:           c.vault,
		Logger:          opts.Logger,
		PluginLogger:    pluginLogger,
	})

	if cfg.Activity.Enabled {
		if err := activity.Register(c.registry, c.host.AddManifest, c.activity, cfg.Activity.MaxDataBytes); err != nil {
			_ = c.Close(ctx)
			return nil, fmt.Errorf("failed to register activity plugin: %w", err)
		}
	}

	return c, nil
}

// NewBridge creates the WebSocket server for the host and installs it as the
// host's publisher.
func (c *Container) NewBridge(addr string) *bridge.Server {
	if addr == "" {
		addr = c.cfg.Bridge.Addr
	}
	srv := bridge.New(c.host, bridge.Config{
		Addr:            addr,
		AllowedOrigins:  c.cfg.Bridge.AllowedOrigins,
		MaxMessageBytes: c.cfg.Bridge.MaxMessageBytes,
	}, c.logger)
	c.host.SetPublisher(srv)
	return srv
}

// Close disables every plugin and releases the runtimes.
func (c *Container) Close(ctx context.Context) error {
	c.host.Shutdown(ctx)
	var errs []error
	if c.wasm != nil {
		errs = append(errs, c.wasm.Close(ctx))
	}
	return errors.Join(errs...)
}

// Host returns the plugin host.
func (c *Container) Host() *host.Host {
	return c.host
}

// Registry returns the runtime registry.
func (c *Container) Registry() *plugin.Registry {
	return c.registry
}

// Approvals returns the approval store.
func (c *Container) Approvals() ports.ApprovalStore {
	return c.approvals
}

// Vault returns the vault store.
func (c *Container) Vault() ports.VaultStore {
	return c.vault
}

// Activity returns the activity repository.
func (c *Container) Activity() ports.ActivityRepository {
	return c.activity
}

// SystemConfig returns the system configuration.
func (c *Container) SystemConfig() *system.Config {
	return c.cfg
}

// Logger returns the configured logger.
func (c *Container) Logger() *slog.Logger {
	return c.logger
}
