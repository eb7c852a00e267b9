// Package wasm runs WebAssembly plugins on wazero. Each enabled plugin gets one
// long-lived module instance whose filesystem view is built from its profile.
package wasm

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/imports/wasi_snapshot_preview1"

	"github.com/warden-dev/warden/internal/domain/plugin"
	"github.com/warden-dev/warden/internal/infrastructure/redaction"
	"github.com/warden-dev/warden/internal/infrastructure/wasm/hostfuncs"
)

// Extension is the entry point suffix this runtime loads.
const Extension = ".wasm"

// DefaultMemoryLimitMB applies when Options.MemoryLimitMB is zero.
const DefaultMemoryLimitMB = 256

// Options configures a Runtime.
type Options struct {
	// MemoryLimitMB caps each module's linear memory. 0 means the default,
	// -1 means unlimited.
	MemoryLimitMB int
	// VaultBase is the host vault directory; mounts are named relative to it.
	VaultBase string
	// CacheDir persists compiled modules across runs when set.
	CacheDir string
	// Redactor scrubs guest stdout and stderr. Optional.
	Redactor *redaction.Redactor
	// Output receives guest stdout and stderr. Defaults to os.Stderr.
	Output io.Writer
	Logger *slog.Logger
}

type compiledEntry struct {
	module  wazero.CompiledModule
	modTime time.Time
	size    int64
}

// Runtime is one wazero runtime shared by every WASM plugin of a host.
type Runtime struct {
	runtime   wazero.Runtime
	cache     wazero.CompilationCache
	logger    *slog.Logger
	output    io.Writer
	frozenEnv []string
	vaultBase string

	mu       sync.Mutex
	compiled map[string]compiledEntry
}

var _ plugin.Loader = (*Runtime)(nil)

// NewRuntime creates the wazero runtime with WASI and the warden_host module.
func NewRuntime(ctx context.Context, opts Options) (*Runtime, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	limit := opts.MemoryLimitMB
	switch {
	case limit == 0:
		limit = DefaultMemoryLimitMB
	case limit == -1:
		logger.Warn("WASM memory limit disabled (unlimited memory)")
	case limit > 0:
		if limit < 64 {
			logger.Warn("WASM memory limit very low, plugins may fail", "mb", limit)
		}
	default:
		return nil, fmt.Errorf("invalid WASM memory limit: %d (must be >= -1)", limit)
	}

	var cache wazero.CompilationCache
	if opts.CacheDir != "" {
		dirCache, err := wazero.NewCompilationCacheWithDir(opts.CacheDir)
		if err != nil {
			return nil, fmt.Errorf("failed to open compilation cache %s: %w", opts.CacheDir, err)
		}
		cache = dirCache
	} else {
		cache = wazero.NewCompilationCache()
	}

	config := wazero.NewRuntimeConfig().
		WithCompilationCache(cache).
		WithCloseOnContextDone(true)
	if limit > 0 {
		// One page is 64KiB.
		config = config.WithMemoryLimitPages(uint32(limit * 16)) //nolint:gosec // G115: limit is validated above
	}

	r := wazero.NewRuntimeWithConfig(ctx, config)
	if _, err := wasi_snapshot_preview1.Instantiate(ctx, r); err != nil {
		_ = r.Close(ctx)
		return nil, fmt.Errorf("failed to instantiate WASI: %w", err)
	}
	if err := hostfuncs.Register(ctx, r); err != nil {
		_ = r.Close(ctx)
		return nil, fmt.Errorf("failed to register host functions: %w", err)
	}

	output := opts.Output
	if output == nil {
		output = os.Stderr
	}
	if opts.Redactor != nil {
		output = redaction.NewWriter(output, opts.Redactor)
	}

	return &Runtime{
		runtime:   r,
		cache:     cache,
		logger:    logger.With("component", "wasm"),
		output:    output,
		frozenEnv: os.Environ(),
		vaultBase: opts.VaultBase,
		compiled:  make(map[string]compiledEntry),
	}, nil
}

// Load implements plugin.Loader: it compiles the plugin's entry module (reusing
// a previous compilation while the file is unchanged) and instantiates it.
func (r *Runtime) Load(ctx context.Context, pc plugin.Context) (plugin.Plugin, error) {
	path := pc.Manifest().EntryPath()
	compiled, err := r.compile(ctx, path)
	if err != nil {
		return nil, err
	}
	return newPlugin(ctx, r, compiled, pc)
}

func (r *Runtime) compile(ctx context.Context, path string) (wazero.CompiledModule, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("failed to stat module: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if e, ok := r.compiled[path]; ok {
		if e.modTime.Equal(info.ModTime()) && e.size == info.Size() {
			return e.module, nil
		}
		_ = e.module.Close(ctx)
		delete(r.compiled, path)
	}

	data, err := os.ReadFile(path) //nolint:gosec // G304: path comes from a validated manifest
	if err != nil {
		return nil, fmt.Errorf("failed to read module: %w", err)
	}
	module, err := r.runtime.CompileModule(ctx, data)
	if err != nil {
		return nil, fmt.Errorf("failed to compile %s: %w", path, err)
	}

	r.compiled[path] = compiledEntry{module: module, modTime: info.ModTime(), size: info.Size()}
	return module, nil
}

// Close releases every compiled module and instance.
func (r *Runtime) Close(ctx context.Context) error {
	r.mu.Lock()
	clear(r.compiled)
	r.mu.Unlock()

	err := r.runtime.Close(ctx)
	if cerr := r.cache.Close(ctx); err == nil {
		err = cerr
	}
	return err
}
