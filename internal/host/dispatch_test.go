package host

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warden-dev/warden/internal/domain/manifest"
	"github.com/warden-dev/warden/internal/domain/plugin"
	"github.com/warden-dev/warden/internal/infrastructure/persistence/file"
	"github.com/warden-dev/warden/internal/protocol"
)

func receive(t *testing.T, ch <-chan plugin.Event) plugin.Event {
	t.Helper()
	select {
	case ev := <-ch:
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event")
		return plugin.Event{}
	}
}

func subscribing(eventType string, ch chan<- plugin.Event) *fakePlugin {
	return &fakePlugin{onInit: func(pc plugin.Context) {
		pc.Events().On(eventType, func(ev plugin.Event) { ch <- ev })
	}}
}

func TestDispatchBackendEvent_PanickingHandlerIsIsolated(t *testing.T) {
	t.Parallel()

	th := newTestHost(t)
	ctx := context.Background()

	first := make(chan plugin.Event, 1)
	third := make(chan plugin.Event, 1)
	th.add(t, tier1("first"), subscribing("thinking", first))
	th.add(t, tier1("panicky"), &fakePlugin{onInit: func(pc plugin.Context) {
		pc.Events().On("thinking", func(plugin.Event) { panic("handler exploded") })
	}})
	th.add(t, tier1("third"), subscribing("thinking", third))

	for _, id := range []string{"first", "panicky", "third"} {
		require.NoError(t, th.EnablePlugin(ctx, id))
	}

	assert.Equal(t, 3, th.DispatchBackendEvent("thinking", map[string]any{"step": 1}))

	assert.Equal(t, "thinking", receive(t, first).Type)
	ev := receive(t, third)
	assert.Equal(t, map[string]any{"step": 1}, ev.Data)
}

func TestDispatchBackendEvent_SkipsDisabled(t *testing.T) {
	t.Parallel()

	th := newTestHost(t)
	ch := make(chan plugin.Event, 1)
	th.add(t, tier1("demo"), subscribing(plugin.WildcardEvent, ch))

	assert.Zero(t, th.DispatchBackendEvent("output", nil))

	require.NoError(t, th.EnablePlugin(context.Background(), "demo"))
	assert.Equal(t, 1, th.DispatchBackendEvent("output", "hi"))
	assert.Equal(t, "hi", receive(t, ch).Data)

	require.NoError(t, th.DisablePlugin(context.Background(), "demo"))
	assert.Zero(t, th.DispatchBackendEvent("output", "again"))
}

func TestDispatchBackendEvent_EventFilter(t *testing.T) {
	t.Parallel()

	th := newTestHost(t)
	ch := make(chan plugin.Event, 4)
	m := tier1("tools")
	m.EventFilter = `type == "tool" && data.name != "shell"`
	th.add(t, m, subscribing(plugin.WildcardEvent, ch))
	require.NoError(t, th.EnablePlugin(context.Background(), "tools"))

	assert.Zero(t, th.DispatchBackendEvent("output", map[string]any{"name": "x"}))
	assert.Zero(t, th.DispatchBackendEvent("tool", map[string]any{"name": "shell"}))
	assert.Zero(t, th.DispatchBackendEvent("tool", nil))
	assert.Equal(t, 1, th.DispatchBackendEvent("tool", map[string]any{"name": "search"}))

	assert.Equal(t, map[string]any{"name": "search"}, receive(t, ch).Data)
}

func TestDispatchBackendEvent_FullMailboxDrops(t *testing.T) {
	t.Parallel()

	th := newTestHost(t, func(o *Options) { o.MailboxSize = 1 })
	release := make(chan struct{})
	started := make(chan struct{}, 1)
	th.add(t, tier1("slow"), &fakePlugin{onInit: func(pc plugin.Context) {
		pc.Events().On("tick", func(plugin.Event) {
			started <- struct{}{}
			<-release
		})
	}})
	require.NoError(t, th.EnablePlugin(context.Background(), "slow"))
	defer close(release)

	require.Equal(t, 1, th.DispatchBackendEvent("tick", 1))
	<-started
	assert.Equal(t, 1, th.DispatchBackendEvent("tick", 2))
	assert.Zero(t, th.DispatchBackendEvent("tick", 3))
}

func TestEvents_OffStopsDelivery(t *testing.T) {
	t.Parallel()

	th := newTestHost(t)
	var (
		mu   sync.Mutex
		seen []string
	)
	done := make(chan plugin.Event, 2)
	th.add(t, tier1("demo"), &fakePlugin{onInit: func(pc plugin.Context) {
		id := pc.Events().On("a", func(ev plugin.Event) {
			mu.Lock()
			seen = append(seen, "first")
			mu.Unlock()
		})
		pc.Events().On("a", func(ev plugin.Event) { done <- ev })
		pc.Events().Off(id)
	}})
	require.NoError(t, th.EnablePlugin(context.Background(), "demo"))

	th.DispatchBackendEvent("a", nil)
	receive(t, done)

	mu.Lock()
	defer mu.Unlock()
	assert.Empty(t, seen)
}

func TestDeliverPanelAction(t *testing.T) {
	t.Parallel()

	th := newTestHost(t)
	ch := make(chan plugin.Event, 1)
	th.add(t, tier1("demo"), subscribing("panel.update", ch))

	err := th.DeliverPanelAction("demo", PanelActionUpdate, protocol.PanelEvent{TabID: "t1"})
	assert.ErrorIs(t, err, ErrNotEnabled)

	require.NoError(t, th.EnablePlugin(context.Background(), "demo"))
	require.NoError(t, th.DeliverPanelAction("demo", PanelActionUpdate, protocol.PanelEvent{TabID: "t1", Content: "x"}))

	ev := receive(t, ch)
	assert.Equal(t, protocol.PanelEvent{PluginID: "demo", TabID: "t1", Content: "x"}, ev.Data)

	assert.ErrorIs(t, th.DeliverPanelAction("demo", "explode", protocol.PanelEvent{}), ErrUnknownPanelVerb)
	assert.ErrorIs(t, th.DeliverPanelAction("ghost", PanelActionClose, protocol.PanelEvent{}), ErrPluginNotFound)
}

func TestVaultAccessOnBehalfOfPlugin(t *testing.T) {
	t.Parallel()

	th := newTestHost(t)
	th.add(t, tier1("sandboxed"), &fakePlugin{})
	th.add(t, tier2("notes", manifest.Permissions{
		Read:  []string{"memory-store", "plugin-private"},
		Write: []string{"plugin-private"},
	}), &fakePlugin{})
	ctx := context.Background()

	_, err := th.ReadVault(ctx, "sandboxed", "memory-store/x")
	assert.ErrorIs(t, err, ErrAccessDenied)

	require.NoError(t, th.WriteVault(ctx, "notes", "plugin-private/notes/today.md", []byte("# today")))
	got, err := th.ReadVault(ctx, "notes", "plugin-private/notes/today.md")
	require.NoError(t, err)
	assert.Equal(t, "# today", string(got))

	assert.ErrorIs(t, th.WriteVault(ctx, "notes", "memory-store/x", []byte("x")), ErrAccessDenied)
	assert.ErrorIs(t, th.WriteVault(ctx, "notes", "audit-log/x", []byte("x")), ErrAccessDenied)
	_, err = th.ReadVault(ctx, "ghost", "memory-store/x")
	assert.ErrorIs(t, err, ErrPluginNotFound)
}

func TestVaultAccess_RelativeBase(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)

	th := newTestHost(t, func(o *Options) {
		o.VaultBase = "vault"
		o.Vault = file.NewVaultStore("vault")
	})
	th.add(t, tier2("notes", manifest.Permissions{
		Read:  []string{"memory-store"},
		Write: []string{"memory-store"},
	}), &fakePlugin{})
	ctx := context.Background()

	require.NoError(t, th.WriteVault(ctx, "notes", "memory-store/a.txt", []byte("relative")))
	got, err := th.ReadVault(ctx, "notes", "memory-store/a.txt")
	require.NoError(t, err)
	assert.Equal(t, "relative", string(got))

	onDisk, err := os.ReadFile(filepath.Join(dir, "vault", "memory-store", "a.txt"))
	require.NoError(t, err)
	assert.Equal(t, "relative", string(onDisk))
}

func TestLifecycle_ConcurrentCallsOnOneID(t *testing.T) {
	t.Parallel()

	th := newTestHost(t)
	p := &fakePlugin{}
	th.add(t, tier1("demo"), p)
	ctx := context.Background()

	const workers, rounds = 9, 40
	var wg sync.WaitGroup
	for w := range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range rounds {
				switch w % 3 {
				case 0:
					assert.NoError(t, th.EnablePlugin(ctx, "demo"))
				case 1:
					assert.NoError(t, th.DisablePlugin(ctx, "demo"))
				default:
					th.DispatchBackendEvent("tool", map[string]any{"worker": w})
				}
			}
		}()
	}
	wg.Wait()

	st, ok := th.Get("demo")
	require.True(t, ok)
	live := p.inits.Load() - p.destroys.Load()
	if st.Enabled {
		assert.Equal(t, int32(1), live)
		assert.True(t, st.HasRuntime)
	} else {
		assert.Equal(t, int32(0), live)
		assert.False(t, st.HasRuntime)
	}
	assert.Equal(t, p.destroys.Load(), p.closes.Load())
}
