// Package host owns the plugin roster: it discovers and loads manifests,
// enables and disables plugins, and fans backend events out to them.
package host

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/expr-lang/expr/vm"
	"golang.org/x/sync/errgroup"

	"github.com/warden-dev/warden/internal/application/ports"
	"github.com/warden-dev/warden/internal/domain/capabilities"
	"github.com/warden-dev/warden/internal/domain/manifest"
	"github.com/warden-dev/warden/internal/domain/plugin"
	"github.com/warden-dev/warden/internal/protocol"
)

// DefaultMailboxSize is the per-plugin event buffer used when Options leaves it unset.
const DefaultMailboxSize = 64

// Options configures a Host.
type Options struct {
	// PluginRoot is scanned by Discover. Each immediate sub-directory holding a
	// manifest file is a candidate.
	PluginRoot string
	// VaultBase is the directory vault partitions resolve under.
	VaultBase string
	// RuntimeVersion is compared against manifest minRuntimeVersion.
	RuntimeVersion string
	// RequireApproval gates enabling tier 2 and 3 plugins on a stored approval.
	RequireApproval bool
	// MailboxSize bounds each plugin's pending events.
	MailboxSize int
	// LoadConcurrency bounds parallel manifest parsing in LoadAll. Zero means unbounded.
	LoadConcurrency int

	Registry  *plugin.Registry
	Settings  ports.SettingsStore
	Approvals ports.ApprovalStore
	Vault     ports.VaultStore

	// Logger receives host diagnostics.
	Logger *slog.Logger
	// PluginLogger is the parent of every plugin's logger. Defaults to Logger.
	PluginLogger *slog.Logger
	// Transport is wrapped by each plugin's guarded HTTP client.
	Transport http.RoundTripper
}

// entry is one roster slot. Fields below life are guarded by Host.mu;
// life serializes enable and disable for this id.
type entry struct {
	manifest *manifest.Manifest
	guard    *capabilities.Guard
	filter   *vm.Program
	settings *settings

	life sync.Mutex

	enabled   bool
	loaded    bool
	lastError string
	instance  plugin.Plugin
	pctx      *pluginContext
}

// Host is the single plugin runtime of a process.
type Host struct {
	opts   Options
	logger *slog.Logger

	mu        sync.RWMutex
	plugins   map[string]*entry
	order     []string
	publisher ports.Publisher
}

// New creates a Host. Registry defaults to an empty one.
func New(opts Options) *Host {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.PluginLogger == nil {
		opts.PluginLogger = opts.Logger
	}
	if opts.Registry == nil {
		opts.Registry = plugin.NewRegistry()
	}
	if opts.MailboxSize <= 0 {
		opts.MailboxSize = DefaultMailboxSize
	}
	if opts.Transport == nil {
		opts.Transport = http.DefaultTransport
	}
	return &Host{
		opts:    opts,
		logger:  opts.Logger,
		plugins: make(map[string]*entry),
	}
}

// SetPublisher installs the outbound event sink. The bridge calls this once it exists.
func (h *Host) SetPublisher(p ports.Publisher) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.publisher = p
}

func (h *Host) publish(eventType string, payload any) {
	h.mu.RLock()
	p := h.publisher
	h.mu.RUnlock()
	if p != nil {
		p.Publish(eventType, payload)
	}
}

func (h *Host) publishRoster() {
	h.publish(protocol.EventPluginsRoster, protocol.Roster{Plugins: h.GetAll()})
}

// Discover lists manifest files in the immediate sub-directories of the plugin root.
// A missing root yields no candidates.
func (h *Host) Discover() ([]string, error) {
	if h.opts.PluginRoot == "" {
		return nil, nil
	}

	dirs, err := os.ReadDir(h.opts.PluginRoot)
	if errors.Is(err, os.ErrNotExist) {
		h.logger.Debug("plugin root does not exist", "path", h.opts.PluginRoot)
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read plugin root: %w", err)
	}

	var paths []string
	for _, d := range dirs {
		if !d.IsDir() {
			continue
		}
		for _, name := range manifest.FileNames {
			path := filepath.Join(h.opts.PluginRoot, d.Name(), name)
			if info, err := os.Stat(path); err == nil && info.Mode().IsRegular() {
				paths = append(paths, path)
				break
			}
		}
	}
	return paths, nil
}

// LoadPlugin parses the manifest at path and adds it to the roster as Discovered.
func (h *Host) LoadPlugin(path string) error {
	m, err := manifest.Load(path)
	if err != nil {
		h.logger.Warn("rejected plugin manifest", "path", path, "error", err)
		return wrapManifestErr(err)
	}
	if err := h.AddManifest(m); err != nil {
		h.logger.Warn("rejected plugin manifest", "path", path, "error", err)
		return err
	}
	return nil
}

// AddManifest adds an already-parsed manifest, e.g. a built-in plugin's.
func (h *Host) AddManifest(m *manifest.Manifest) error {
	e, err := h.prepare(m)
	if err != nil {
		return err
	}
	if err := h.insert(e); err != nil {
		return err
	}
	h.publishRoster()
	return nil
}

func (h *Host) prepare(m *manifest.Manifest) (*entry, error) {
	if err := m.CheckCompatibility(h.opts.RuntimeVersion); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidManifest, err)
	}
	filter, err := compileFilter(m.EventFilter)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrInvalidManifest, m.ID, err)
	}

	logger := h.opts.PluginLogger.With("plugin", m.ID)
	return &entry{
		manifest: m,
		guard:    capabilities.NewGuard(m, h.opts.VaultBase),
		filter:   filter,
		settings: newSettings(m.ID, h.opts.Settings, logger),
	}, nil
}

func (h *Host) insert(e *entry) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	id := e.manifest.ID
	if _, exists := h.plugins[id]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicatePlugin, id)
	}
	h.plugins[id] = e
	h.order = append(h.order, id)
	h.logger.Info("plugin discovered", "plugin", id, "version", e.manifest.Version, "tier", int(e.manifest.Tier))
	return nil
}

// LoadAll discovers and loads every plugin under the root. Manifests are parsed
// in parallel and inserted in path order; rejected manifests are logged and skipped.
func (h *Host) LoadAll(ctx context.Context) (int, error) {
	paths, err := h.Discover()
	if err != nil {
		return 0, err
	}
	sort.Strings(paths)

	prepared := make([]*entry, len(paths))
	g, _ := errgroup.WithContext(ctx)
	if h.opts.LoadConcurrency > 0 {
		g.SetLimit(h.opts.LoadConcurrency)
	}
	for i, path := range paths {
		g.Go(func() error {
			m, err := manifest.Load(path)
			if err != nil {
				h.logger.Warn("rejected plugin manifest", "path", path, "error", err)
				return nil
			}
			e, err := h.prepare(m)
			if err != nil {
				h.logger.Warn("rejected plugin manifest", "path", path, "error", err)
				return nil
			}
			prepared[i] = e
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return 0, err
	}
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	loaded := 0
	for i, e := range prepared {
		if e == nil {
			continue
		}
		if err := h.insert(e); err != nil {
			h.logger.Warn("rejected plugin manifest", "path", paths[i], "error", err)
			continue
		}
		loaded++
	}
	if loaded > 0 {
		h.publishRoster()
	}
	return loaded, nil
}

func wrapManifestErr(err error) error {
	var verr *manifest.ValidationError
	if errors.As(err, &verr) {
		return fmt.Errorf("%w: %w", ErrInvalidManifest, err)
	}
	return err
}

func (h *Host) lookup(id string) (*entry, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	e, ok := h.plugins[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrPluginNotFound, id)
	}
	return e, nil
}

// GetAll returns a snapshot of the roster in load order.
func (h *Host) GetAll() []plugin.State {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]plugin.State, 0, len(h.order))
	for _, id := range h.order {
		out = append(out, h.stateLocked(h.plugins[id]))
	}
	return out
}

// Get returns a snapshot of one plugin.
func (h *Host) Get(id string) (plugin.State, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	e, ok := h.plugins[id]
	if !ok {
		return plugin.State{}, false
	}
	return h.stateLocked(e), true
}

func (h *Host) stateLocked(e *entry) plugin.State {
	return plugin.State{
		Manifest:    e.manifest,
		Enabled:     e.enabled,
		Loaded:      e.loaded,
		HasRuntime:  e.instance != nil,
		LastError:   e.lastError,
		Permissions: e.guard.Summarize(),
	}
}

// Profile returns the resolved capability profile of a plugin.
func (h *Host) Profile(id string) (capabilities.Profile, error) {
	e, err := h.lookup(id)
	if err != nil {
		return capabilities.Profile{}, err
	}
	return e.guard.ResolveProfile(), nil
}

// Shutdown disables every enabled plugin, newest first.
func (h *Host) Shutdown(ctx context.Context) {
	h.mu.RLock()
	ids := make([]string, len(h.order))
	copy(ids, h.order)
	h.mu.RUnlock()

	for i := len(ids) - 1; i >= 0; i-- {
		if err := h.DisablePlugin(ctx, ids[i]); err != nil {
			h.logger.Warn("failed to disable plugin during shutdown", "plugin", ids[i], "error", err)
		}
	}
}
