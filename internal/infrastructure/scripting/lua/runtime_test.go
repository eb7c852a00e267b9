package lua

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	lua "github.com/yuin/gopher-lua"

	"github.com/warden-dev/warden/internal/domain/capabilities"
	"github.com/warden-dev/warden/internal/domain/manifest"
	"github.com/warden-dev/warden/internal/domain/plugin"
	"github.com/warden-dev/warden/internal/infrastructure/scripting"
	"github.com/warden-dev/warden/internal/infrastructure/scripting/scriptingtest"
)

func writeScript(t *testing.T, src string) *manifest.Manifest {
	t.Helper()
	path := filepath.Join(t.TempDir(), "main.lua")
	require.NoError(t, os.WriteFile(path, []byte(src), 0o600))
	return &manifest.Manifest{ID: "script", Name: "Script", Version: "1.0.0", Tier: manifest.TierVerified, EntryPoint: path}
}

func load(t *testing.T, src string, profile capabilities.Profile) (*Plugin, *scriptingtest.Context) {
	t.Helper()
	pc := scriptingtest.New(writeScript(t, src), profile)
	p, err := NewRuntime(scripting.Options{CallTimeout: time.Second}, nil).Load(context.Background(), pc)
	require.NoError(t, err)
	return p.(*Plugin), pc
}

func TestLoad_Errors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		src  string
		want string
	}{
		{name: "syntax", src: "function init(", want: "failed to evaluate"},
		{name: "no init", src: "x = 1", want: "does not define init()"},
		{name: "runtime error", src: "error('boom')", want: "boom"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			pc := scriptingtest.New(writeScript(t, tt.src), capabilities.Profile{})
			_, err := NewRuntime(scripting.Options{}, nil).Load(context.Background(), pc)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestSandbox_BlocksEscapes(t *testing.T) {
	t.Parallel()

	for _, expr := range []string{"io", "os", "debug", "package", "dofile", "loadfile", "load", "loadstring", "require"} {
		t.Run(expr, func(t *testing.T) {
			t.Parallel()
			p, _ := load(t, "function init() assert("+expr+" == nil, '"+expr+" is reachable') end", capabilities.Profile{})
			assert.NoError(t, p.Init(context.Background()))
		})
	}
}

func TestPlugin_Lifecycle(t *testing.T) {
	t.Parallel()

	p, pc := load(t, `
local tab
function init()
  tab = warden.panel.create_tab("Activity", { count = 0 })
  warden.events.on("tool", function(ev)
    warden.panel.update_tab(tab, { count = ev.data.count, type = ev.type })
  end)
  print("ready", warden.id)
end
function destroy()
  warden.panel.close_tab(tab)
end
`, capabilities.Profile{})

	require.NoError(t, p.Init(context.Background()))
	require.Len(t, pc.Tabs(), 1)
	assert.Equal(t, 1, pc.Subscriptions())
	assert.Contains(t, pc.Logs(), "ready\\tscript")

	pc.Emit(plugin.Event{Type: "tool", Data: map[string]any{"count": 3}})
	for _, tab := range pc.Tabs() {
		assert.Equal(t, map[string]any{"count": int64(3), "type": "tool"}, tab.Content)
	}

	require.NoError(t, p.Destroy(context.Background()))
	assert.Empty(t, pc.Tabs())
	assert.Error(t, p.Init(context.Background()))
}

func TestPlugin_CloseWithoutDestroy(t *testing.T) {
	t.Parallel()

	p, _ := load(t, `function init() end`, capabilities.Profile{})
	require.NoError(t, p.Close(context.Background()))
	require.NoError(t, p.Close(context.Background()))

	err := p.Init(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "closed")
	p.OnSettingChange("k", 1)
}

func TestPlugin_Timeout(t *testing.T) {
	t.Parallel()

	pc := scriptingtest.New(writeScript(t, `function init() while true do end end`), capabilities.Profile{})
	loaded, err := NewRuntime(scripting.Options{CallTimeout: 50 * time.Millisecond}, nil).Load(context.Background(), pc)
	require.NoError(t, err)

	err = loaded.Init(context.Background())
	require.ErrorIs(t, err, scripting.ErrTimeout)
	assert.NoError(t, loaded.Destroy(context.Background()))
}

func TestPlugin_Settings(t *testing.T) {
	t.Parallel()

	p, _ := load(t, `
function init() end
settings = {
  { key = "limit", label = "Limit", type = "number", default = 10 },
  { key = "theme", label = "Theme", type = "select", options = { "dark", "light" } },
}`, capabilities.Profile{})

	descs := p.Settings()
	require.Len(t, descs, 2)
	assert.Equal(t, plugin.SettingNumber, descs[0].Type)
	assert.InDelta(t, 10, descs[0].Default, 0)
	assert.Equal(t, []string{"dark", "light"}, descs[1].Options)

	empty, _ := load(t, `function init() end`, capabilities.Profile{})
	assert.Empty(t, empty.Settings())
}

func TestPlugin_SettingChangeIsQueued(t *testing.T) {
	t.Parallel()

	p, pc := load(t, `
seen = ""
function init() warden.settings.set("limit", 5) end
function on_setting_change(key, value) seen = key .. "=" .. tostring(value) end
`, capabilities.Profile{})
	pc.OnSet = p.OnSettingChange

	require.NoError(t, p.Init(context.Background()))

	assert.Eventually(t, func() bool {
		var seen string
		_ = p.locked(context.Background(), func() error {
			seen = lua.LVAsString(p.L.GetGlobal("seen"))
			return nil
		})
		return seen == "limit=5"
	}, time.Second, 10*time.Millisecond)
}

func TestPlugin_CapabilityGates(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		call string
		want error
	}{
		{name: "vault read", call: `warden.vault.read("memory-store/a")`, want: scripting.ErrNoVault},
		{name: "vault write", call: `warden.vault.write("memory-store/a", "x")`, want: scripting.ErrNoVault},
		{name: "fetch", call: `warden.fetch("http://example.com")`, want: scripting.ErrNoNetwork},
		{name: "env", call: `warden.env("HOME")`, want: scripting.ErrNoEnv},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			p, _ := load(t, "function init() "+tt.call+" end", capabilities.DenyAll(manifest.TierSandboxed))
			err := p.Init(context.Background())
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want.Error())
		})
	}
}

func TestPlugin_PcallCatchesDenial(t *testing.T) {
	t.Parallel()

	p, pc := load(t, `
function init()
  local ok, err = pcall(warden.vault.read, "memory-store/a")
  warden.log.warn("denied", { ok = ok, err = err })
end`, capabilities.DenyAll(manifest.TierSandboxed))

	require.NoError(t, p.Init(context.Background()))
	assert.Contains(t, pc.Logs(), "ok=false")
	assert.Contains(t, pc.Logs(), "vault access not granted")
}

func TestPlugin_VaultAndFetch(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(r.Method + " ok"))
	}))
	t.Cleanup(srv.Close)

	m := writeScript(t, `
function init()
  local res = warden.fetch({ method = "put", url = "`+srv.URL+`" })
  warden.vault.write("memory-store/out.txt", res.status .. " " .. res.body)
  warden.settings.set("echo", warden.vault.read("memory-store/out.txt"))
end`)
	pc := scriptingtest.New(m, capabilities.Profile{Tier: manifest.TierVerified, Write: []string{"/v"}, Net: []string{"127.0.0.1"}})
	pc.Client = srv.Client()

	loaded, err := NewRuntime(scripting.Options{}, nil).Load(context.Background(), pc)
	require.NoError(t, err)
	require.NoError(t, loaded.Init(context.Background()))

	got, ok := pc.Files().Get("memory-store/out.txt")
	require.True(t, ok)
	assert.Equal(t, "200 PUT ok", got)
	echo, _ := pc.Settings().Get("echo")
	assert.Equal(t, got, echo)
}

func TestConvert(t *testing.T) {
	t.Parallel()

	L := lua.NewState()
	defer L.Close()

	in := map[string]any{
		"name":  "x",
		"n":     int64(2),
		"f":     1.5,
		"list":  []any{"a", true},
		"empty": nil,
	}
	back := toGo(toLua(L, in))
	assert.Equal(t, map[string]any{"name": "x", "n": int64(2), "f": 1.5, "list": []any{"a", true}}, back)

	cyclic := L.NewTable()
	cyclic.RawSetString("self", cyclic)
	assert.Equal(t, map[string]any{"self": nil}, toGo(cyclic))
}
