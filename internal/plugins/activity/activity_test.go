package activity

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warden-dev/warden/internal/domain/capabilities"
	"github.com/warden-dev/warden/internal/domain/manifest"
	"github.com/warden-dev/warden/internal/domain/plugin"
	"github.com/warden-dev/warden/internal/infrastructure/persistence/memory"
	"github.com/warden-dev/warden/internal/infrastructure/scripting/scriptingtest"
	"github.com/warden-dev/warden/internal/protocol"
)

func TestManifest(t *testing.T) {
	t.Parallel()

	m, err := Manifest()
	require.NoError(t, err)
	assert.Equal(t, ID, m.ID)
	assert.Equal(t, manifest.TierSandboxed, m.Tier)
	assert.False(t, m.HasPermissions())
	assert.NotEmpty(t, m.EventFilter)
}

func TestRegister(t *testing.T) {
	t.Parallel()

	registry := plugin.NewRegistry()
	var added *manifest.Manifest
	err := Register(registry, func(m *manifest.Manifest) error {
		added = m
		return nil
	}, memory.NewActivityRepository(10), 0)
	require.NoError(t, err)
	require.NotNil(t, added)

	factory, err := registry.Resolve(added)
	require.NoError(t, err)
	p, err := factory(context.Background(), scriptingtest.New(added, capabilities.DenyAll(manifest.TierSandboxed)))
	require.NoError(t, err)
	assert.IsType(t, &Plugin{}, p)
}

type fixture struct {
	pc     *scriptingtest.Context
	plugin *Plugin
}

func newFixture(t *testing.T, maxDataBytes int) *fixture {
	t.Helper()

	m, err := Manifest()
	require.NoError(t, err)
	pc := scriptingtest.New(m, capabilities.DenyAll(manifest.TierSandboxed))
	p, err := Factory(memory.NewActivityRepository(100), maxDataBytes)(context.Background(), pc)
	require.NoError(t, err)
	require.NoError(t, p.Init(context.Background()))
	return &fixture{pc: pc, plugin: p.(*Plugin)}
}

func (f *fixture) content(t *testing.T) Content {
	t.Helper()
	tabs := f.pc.Tabs()
	require.Len(t, tabs, 1)
	for _, tab := range tabs {
		assert.Equal(t, TabTitle, tab.Title)
		c, ok := tab.Content.(Content)
		require.True(t, ok)
		return c
	}
	return Content{}
}

func (f *fixture) emit(eventType string, data any, at time.Time) {
	f.pc.Emit(plugin.Event{Type: eventType, Data: data, Time: at})
}

func TestPlugin_RecordsEventsNewestFirst(t *testing.T) {
	t.Parallel()

	f := newFixture(t, 0)
	assert.Empty(t, f.content(t).Entries)
	assert.Equal(t, 1, f.pc.Subscriptions())

	now := time.Now()
	f.emit("file.saved", map[string]any{"path": "a.md"}, now)
	f.emit("build.done", 42, now.Add(time.Second))
	f.emit(protocol.TypePanelUpdate, protocol.PanelEvent{TabID: "x"}, now.Add(2*time.Second))

	entries := f.content(t).Entries
	require.Len(t, entries, 2)
	assert.Equal(t, "build.done", entries[0].Type)
	assert.Equal(t, map[string]any{"value": 42}, entries[0].Data)
	assert.Equal(t, "file.saved", entries[1].Type)
	assert.Equal(t, "a.md", entries[1].Data["path"])
}

func TestPlugin_Settings(t *testing.T) {
	t.Parallel()

	f := newFixture(t, 0)
	descs := f.plugin.Settings()
	require.Len(t, descs, 3)
	for _, d := range descs {
		require.NoError(t, d.Check())
	}

	now := time.Now()
	for i := range 5 {
		f.emit("tick", nil, now.Add(time.Duration(i)*time.Second))
	}
	assert.Len(t, f.content(t).Entries, 5)

	require.NoError(t, f.pc.Settings().Set(SettingMaxEntries, float64(2)))
	f.plugin.OnSettingChange(SettingMaxEntries, float64(2))
	assert.Len(t, f.content(t).Entries, 2)

	require.NoError(t, f.pc.Settings().Set(SettingPaused, true))
	f.emit("ignored", nil, now.Add(time.Minute))
	assert.Equal(t, "tick", f.content(t).Entries[0].Type)
}

func TestPlugin_TruncatesLargeData(t *testing.T) {
	t.Parallel()

	f := newFixture(t, 64)
	f.emit("log", map[string]any{"line": strings.Repeat("z", 500)}, time.Now())

	entries := f.content(t).Entries
	require.Len(t, entries, 1)
	assert.True(t, entries[0].Truncated)
	assert.Less(t, len(entries[0].Data["line"].(string)), 500)
}

func TestPlugin_TabClosedByUser(t *testing.T) {
	t.Parallel()

	f := newFixture(t, 0)
	var tabID string
	for id := range f.pc.Tabs() {
		tabID = id
	}

	f.emit(protocol.TypePanelClose, protocol.PanelEvent{PluginID: ID, TabID: tabID}, time.Now())
	f.emit("after.close", nil, time.Now())

	// The stale tab is no longer updated.
	assert.Empty(t, f.content(t).Entries)
	require.NoError(t, f.plugin.Destroy(context.Background()))
	assert.Len(t, f.pc.Tabs(), 1)
	assert.Zero(t, f.pc.Subscriptions())
}

func TestPlugin_Destroy(t *testing.T) {
	t.Parallel()

	f := newFixture(t, 0)
	require.NoError(t, f.plugin.Destroy(context.Background()))
	assert.Empty(t, f.pc.Tabs())
	assert.Zero(t, f.pc.Subscriptions())
}

func TestPlugin_TimeWindow(t *testing.T) {
	t.Parallel()

	f := newFixture(t, 0)
	now := time.Now()
	f.emit("old", nil, now.Add(-2*time.Hour))
	f.emit("recent", nil, now.Add(-time.Minute))
	require.Len(t, f.content(t).Entries, 2)

	require.NoError(t, f.pc.Settings().Set(SettingWindow, float64(60)))
	f.plugin.OnSettingChange(SettingWindow, float64(60))

	entries := f.content(t).Entries
	require.Len(t, entries, 1)
	assert.Equal(t, "recent", entries[0].Type)
}

func TestPlugin_SelectEntry(t *testing.T) {
	t.Parallel()

	f := newFixture(t, 0)
	var tabID string
	for id := range f.pc.Tabs() {
		tabID = id
	}

	f.emit("file.saved", map[string]any{"path": "a.md"}, time.Now())
	entries := f.content(t).Entries
	require.Len(t, entries, 1)
	assert.Nil(t, f.content(t).Selected)

	selectIn := func(tab, value string) {
		f.emit(protocol.TypePanelUpdate, protocol.PanelEvent{
			PluginID: ID,
			TabID:    tab,
			Content:  map[string]any{SelectKey: value},
		}, time.Now())
	}

	selectIn("another-tab", entries[0].ID)
	assert.Nil(t, f.content(t).Selected)

	selectIn(tabID, entries[0].ID)
	selected := f.content(t).Selected
	require.NotNil(t, selected)
	assert.Equal(t, "file.saved", selected.Type)
	assert.Equal(t, "a.md", selected.Data["path"])

	selectIn(tabID, "not-a-uuid")
	assert.NotNil(t, f.content(t).Selected, "malformed selections are ignored")

	selectIn(tabID, "")
	assert.Nil(t, f.content(t).Selected)
}
