package host

import (
	"context"
	"runtime"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warden-dev/warden/internal/domain/plugin"
	"github.com/warden-dev/warden/internal/infrastructure/scripting"
	"github.com/warden-dev/warden/internal/infrastructure/scripting/js"
	"github.com/warden-dev/warden/internal/infrastructure/scripting/lua"
)

// capturingLoader remembers every plugin its runtime produced.
type capturingLoader struct {
	plugin.Loader

	mu     sync.Mutex
	loaded []plugin.Plugin
}

func (l *capturingLoader) Load(ctx context.Context, pc plugin.Context) (plugin.Plugin, error) {
	p, err := l.Loader.Load(ctx, pc)
	if err == nil {
		l.mu.Lock()
		l.loaded = append(l.loaded, p)
		l.mu.Unlock()
	}
	return p, err
}

func (l *capturingLoader) plugins() []plugin.Plugin {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]plugin.Plugin(nil), l.loaded...)
}

func scriptHost(t *testing.T) (*testHost, map[string]*capturingLoader) {
	t.Helper()

	th := newTestHost(t)
	opts := scripting.Options{CallTimeout: time.Second}
	loaders := map[string]*capturingLoader{
		js.Extension:  {Loader: js.NewRuntime(opts, th.logger)},
		lua.Extension: {Loader: lua.NewRuntime(opts, th.logger)},
	}
	for ext, l := range loaders {
		th.registry.RegisterLoader(ext, l)
	}

	root := th.opts.PluginRoot
	writeManifest(t, root, "js-broken", "manifest.json", `{"id":"js-broken","name":"JS","version":"1.0.0","tier":1,"entryPoint":"index.js"}`)
	writeManifest(t, root, "js-broken", "index.js", `function init() { throw new Error("no database"); }`)
	writeManifest(t, root, "lua-broken", "manifest.json", `{"id":"lua-broken","name":"Lua","version":"1.0.0","tier":1,"entryPoint":"main.lua"}`)
	writeManifest(t, root, "lua-broken", "main.lua", `function init() error("no database") end`)
	_, err := th.LoadAll(context.Background())
	require.NoError(t, err)
	return th, loaders
}

func TestEnablePlugin_FailedScriptInitReleasesRuntime(t *testing.T) {
	t.Parallel()

	th, loaders := scriptHost(t)
	ctx := context.Background()

	for _, id := range []string{"js-broken", "lua-broken"} {
		err := th.EnablePlugin(ctx, id)
		require.Error(t, err, id)
		assert.Contains(t, err.Error(), "no database", id)
	}

	for ext, l := range loaders {
		loaded := l.plugins()
		require.Len(t, loaded, 1, ext)
		err := loaded[0].Init(ctx)
		require.Error(t, err, ext)
		assert.Contains(t, err.Error(), "closed", ext)
	}
}

func TestEnablePlugin_FailedScriptRetriesDoNotLeakGoroutines(t *testing.T) {
	th, _ := scriptHost(t)
	ctx := context.Background()

	// Warm up once so lazily started runtime goroutines are not counted.
	require.Error(t, th.EnablePlugin(ctx, "js-broken"))
	require.Error(t, th.EnablePlugin(ctx, "lua-broken"))
	baseline := runtime.NumGoroutine()

	const attempts = 25
	for range attempts {
		require.Error(t, th.EnablePlugin(ctx, "js-broken"))
		require.Error(t, th.EnablePlugin(ctx, "lua-broken"))
	}

	assert.Eventually(t, func() bool {
		return runtime.NumGoroutine() < baseline+attempts
	}, 2*time.Second, 20*time.Millisecond)
}
