package plugin

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/warden-dev/warden/internal/domain/manifest"
)

// ErrNoRuntime is returned when neither a native factory nor a loader matches a manifest.
var ErrNoRuntime = errors.New("no runtime for plugin entry point")

// Loader builds plugins from entry files of one kind (".wasm", ".js", ...).
type Loader interface {
	Load(ctx context.Context, pc Context) (Plugin, error)
}

// Registry maps plugin ids to native factories and entry extensions to loaders.
type Registry struct {
	mu      sync.RWMutex
	natives map[string]Factory
	loaders map[string]Loader
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		natives: make(map[string]Factory),
		loaders: make(map[string]Loader),
	}
}

// RegisterNative binds a compiled-in factory to a plugin id. It replaces any
// previous registration.
func (r *Registry) RegisterNative(id string, f Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.natives[id] = f
}

// RegisterLoader binds a loader to an entry point extension such as ".wasm".
func (r *Registry) RegisterLoader(ext string, l Loader) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.loaders[strings.ToLower(ext)] = l
}

// Extensions lists the entry extensions with a loader.
func (r *Registry) Extensions() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	exts := make([]string, 0, len(r.loaders))
	for ext := range r.loaders {
		exts = append(exts, ext)
	}
	sort.Strings(exts)
	return exts
}

// Resolve picks the factory for m. A native factory for the id wins over the
// entry point extension.
func (r *Registry) Resolve(m *manifest.Manifest) (Factory, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if f, ok := r.natives[m.ID]; ok {
		return f, nil
	}

	kind := m.EntryKind()
	l, ok := r.loaders[kind]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrNoRuntime, m.EntryPoint)
	}
	return l.Load, nil
}
