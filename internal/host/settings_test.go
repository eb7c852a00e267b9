package host

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warden-dev/warden/internal/domain/plugin"
)

func settingsPlugin() *fakePlugin {
	return &fakePlugin{
		changes: make(chan string, 4),
		settings: []plugin.SettingDescriptor{
			{Key: "limit", Label: "Limit", Type: plugin.SettingNumber, Default: 10, Constraints: map[string]any{"minimum": 1, "maximum": 100}},
			{Key: "theme", Label: "Theme", Type: plugin.SettingSelect, Default: "dark", Options: []string{"dark", "light"}},
			{Key: "token", Label: "Token", Type: plugin.SettingString},
		},
	}
}

func TestSettings_DefaultsAndValidation(t *testing.T) {
	t.Parallel()

	th := newTestHost(t)
	p := settingsPlugin()
	th.add(t, tier1("demo"), p)
	require.NoError(t, th.EnablePlugin(context.Background(), "demo"))

	view, err := th.Settings("demo")
	require.NoError(t, err)
	assert.Len(t, view.Descriptors, 3)
	assert.Equal(t, map[string]any{"limit": 10, "theme": "dark"}, view.Values)

	tests := []struct {
		name  string
		key   string
		value any
		err   error
	}{
		{"below minimum", "limit", 0, ErrInvalidSetting},
		{"wrong type", "limit", "ten", ErrInvalidSetting},
		{"not an option", "theme", "neon", ErrInvalidSetting},
		{"undeclared key", "color", "red", ErrUnknownSetting},
	}
	for _, tt := range tests {
		assert.ErrorIs(t, th.SetSetting("demo", tt.key, tt.value), tt.err, tt.name)
	}

	require.NoError(t, th.SetSetting("demo", "limit", 42))
	select {
	case key := <-p.changes:
		assert.Equal(t, "limit", key)
	case <-time.After(time.Second):
		t.Fatal("OnSettingChange not called")
	}

	v, ok := p.pc.Settings().Get("limit")
	require.True(t, ok)
	assert.Equal(t, float64(42), v)
	assert.Equal(t, float64(42), th.settings.data["demo"]["limit"])
}

func TestSettings_PersistedValuesSurviveReenable(t *testing.T) {
	t.Parallel()

	th := newTestHost(t)
	require.NoError(t, th.settings.Save("demo", map[string]any{"limit": 7, "theme": "neon"}))
	p := settingsPlugin()
	th.add(t, tier1("demo"), p)
	ctx := context.Background()
	require.NoError(t, th.EnablePlugin(ctx, "demo"))

	all := p.pc.Settings().All()
	assert.Equal(t, 7, all["limit"])
	assert.Equal(t, "dark", all["theme"], "invalid stored value falls back to default")

	require.NoError(t, th.DisablePlugin(ctx, "demo"))
	require.NoError(t, th.SetSetting("demo", "theme", "light"))
	assert.Empty(t, p.changes, "disabled plugin is not notified")

	require.NoError(t, th.EnablePlugin(ctx, "demo"))
	v, _ := p.pc.Settings().Get("theme")
	assert.Equal(t, "light", v)
}

func TestSettings_PanickingChangeHandler(t *testing.T) {
	t.Parallel()

	th := newTestHost(t)
	p := &panickySettings{fakePlugin: settingsPlugin()}
	th.registry.RegisterNative("demo", func(_ context.Context, pc plugin.Context) (plugin.Plugin, error) {
		p.pc = pc
		return p, nil
	})
	require.NoError(t, th.AddManifest(tier1("demo")))
	require.NoError(t, th.EnablePlugin(context.Background(), "demo"))

	assert.NoError(t, th.SetSetting("demo", "token", "abc"))
}

type panickySettings struct {
	*fakePlugin
}

func (p *panickySettings) OnSettingChange(string, any) { panic("change handler exploded") }

func TestSettings_InvalidDescriptorFailsEnable(t *testing.T) {
	t.Parallel()

	th := newTestHost(t)
	p := &fakePlugin{settings: []plugin.SettingDescriptor{{Key: "x", Type: "date"}}}
	th.add(t, tier1("demo"), p)

	require.Error(t, th.EnablePlugin(context.Background(), "demo"))
	assert.Zero(t, p.inits.Load())
}
