package host

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"maps"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/warden-dev/warden/internal/domain/capabilities"
	"github.com/warden-dev/warden/internal/domain/manifest"
	"github.com/warden-dev/warden/internal/domain/plugin"
)

type published struct {
	eventType string
	payload   any
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []published
}

func (p *recordingPublisher) Publish(eventType string, payload any) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, published{eventType: eventType, payload: payload})
}

func (p *recordingPublisher) ofType(eventType string) []published {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []published
	for _, e := range p.events {
		if e.eventType == eventType {
			out = append(out, e)
		}
	}
	return out
}

type memorySettings struct {
	mu   sync.Mutex
	data map[string]map[string]any
}

func (s *memorySettings) Load(id string) (map[string]any, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return maps.Clone(s.data[id]), nil
}

func (s *memorySettings) Save(id string, values map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.data == nil {
		s.data = make(map[string]map[string]any)
	}
	s.data[id] = maps.Clone(values)
	return nil
}

type memoryVault struct {
	mu    sync.Mutex
	files map[string][]byte
}

func (v *memoryVault) Read(_ context.Context, path string) ([]byte, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	b, ok := v.files[path]
	if !ok {
		return nil, os.ErrNotExist
	}
	return b, nil
}

func (v *memoryVault) Write(_ context.Context, path string, data []byte) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.files == nil {
		v.files = make(map[string][]byte)
	}
	v.files[path] = data
	return nil
}

type staticApprovals struct {
	approved bool
}

func (a staticApprovals) IsApproved(string, string, []capabilities.Capability) (bool, error) {
	return a.approved, nil
}
func (a staticApprovals) Approve(string, string, []capabilities.Capability) error { return nil }
func (a staticApprovals) Revoke(string) error                                     { return nil }

// fakePlugin records lifecycle calls and can be told to fail.
type fakePlugin struct {
	pc plugin.Context

	inits    atomic.Int32
	destroys atomic.Int32
	closes   atomic.Int32

	initErr      error
	initPanic    bool
	destroyPanic bool
	settings     []plugin.SettingDescriptor
	changes      chan string
	onInit       func(pc plugin.Context)
}

func (p *fakePlugin) Init(context.Context) error {
	p.inits.Add(1)
	if p.initPanic {
		panic("init exploded")
	}
	if p.onInit != nil {
		p.onInit(p.pc)
	}
	return p.initErr
}

func (p *fakePlugin) Destroy(context.Context) error {
	p.destroys.Add(1)
	if p.destroyPanic {
		panic("destroy exploded")
	}
	return errors.New("destroy always complains")
}

func (p *fakePlugin) Close(context.Context) error {
	p.closes.Add(1)
	return nil
}

func (p *fakePlugin) Settings() []plugin.SettingDescriptor { return p.settings }

func (p *fakePlugin) OnSettingChange(key string, _ any) {
	if p.changes != nil {
		p.changes <- key
	}
}

type testHost struct {
	*Host
	publisher *recordingPublisher
	settings  *memorySettings
	vault     *memoryVault
	registry  *plugin.Registry
	vaultBase string
}

func newTestHost(t *testing.T, mutate ...func(*Options)) *testHost {
	t.Helper()

	th := &testHost{
		publisher: &recordingPublisher{},
		settings:  &memorySettings{},
		vault:     &memoryVault{},
		registry:  plugin.NewRegistry(),
		vaultBase: t.TempDir(),
	}
	opts := Options{
		PluginRoot:     t.TempDir(),
		VaultBase:      th.vaultBase,
		RuntimeVersion: "1.0.0",
		Registry:       th.registry,
		Settings:       th.settings,
		Vault:          th.vault,
		Logger:         slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, m := range mutate {
		m(&opts)
	}
	th.Host = New(opts)
	th.SetPublisher(th.publisher)
	return th
}

// add registers p as the native runtime of a new plugin and loads its manifest.
func (th *testHost) add(t *testing.T, m *manifest.Manifest, p *fakePlugin) {
	t.Helper()
	th.registry.RegisterNative(m.ID, func(_ context.Context, pc plugin.Context) (plugin.Plugin, error) {
		p.pc = pc
		return p, nil
	})
	require.NoError(t, th.AddManifest(m))
}

func tier1(id string) *manifest.Manifest {
	return &manifest.Manifest{ID: id, Name: id, Version: "1.0.0", Tier: manifest.TierSandboxed}
}

func tier2(id string, perms manifest.Permissions) *manifest.Manifest {
	return &manifest.Manifest{ID: id, Name: id, Version: "1.0.0", Tier: manifest.TierVerified, Permissions: &perms}
}

func writeManifest(t *testing.T, root, dir, name, body string) string {
	t.Helper()
	pluginDir := filepath.Join(root, dir)
	require.NoError(t, os.MkdirAll(pluginDir, 0o750))
	path := filepath.Join(pluginDir, name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}
