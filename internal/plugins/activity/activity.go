// Package activity is the built-in plugin that lists backend events in an
// "Activity" tab.
package activity

import (
	"context"
	_ "embed"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/warden-dev/warden/internal/application/ports"
	domain "github.com/warden-dev/warden/internal/domain/activity"
	"github.com/warden-dev/warden/internal/domain/manifest"
	"github.com/warden-dev/warden/internal/domain/plugin"
	"github.com/warden-dev/warden/internal/protocol"
)

// ID is the plugin id.
const ID = "activity"

// TabTitle is the title of the panel tab.
const TabTitle = "Activity"

// Settings keys.
const (
	SettingMaxEntries = "maxEntries"
	SettingPaused     = "paused"
	SettingWindow     = "windowMinutes"
)

// SelectKey is the panel.update content field naming the record to expand.
// An empty value clears the selection.
const SelectKey = "select"

const defaultMaxEntries = 50

//go:embed manifest.yaml
var manifestData []byte

// Manifest returns the built-in manifest.
func Manifest() (*manifest.Manifest, error) {
	m, err := manifest.Parse(manifestData, manifest.FormatYAML)
	if err != nil {
		return nil, fmt.Errorf("invalid built-in activity manifest: %w", err)
	}
	return m, nil
}

// Register adds the plugin to registry and its manifest to the roster.
func Register(registry *plugin.Registry, add func(*manifest.Manifest) error, repo ports.ActivityRepository, maxDataBytes int) error {
	m, err := Manifest()
	if err != nil {
		return err
	}
	registry.RegisterNative(ID, Factory(repo, maxDataBytes))
	return add(m)
}

// Factory builds the plugin. Records go to repo; event data above
// maxDataBytes is truncated first.
func Factory(repo ports.ActivityRepository, maxDataBytes int) plugin.Factory {
	return func(_ context.Context, pc plugin.Context) (plugin.Plugin, error) {
		return &Plugin{
			pc:        pc,
			repo:      repo,
			truncator: domain.GreedyTruncator{},
			limit:     maxDataBytes,
			logger:    pc.Logger(),
		}, nil
	}
}

// Plugin records events and renders the most recent ones.
type Plugin struct {
	pc        plugin.Context
	repo      ports.ActivityRepository
	truncator domain.Truncator
	limit     int
	logger    *slog.Logger

	mu       sync.Mutex
	tabID    string
	sub      plugin.SubscriptionID
	selected uuid.UUID
}

var (
	_ plugin.Plugin               = (*Plugin)(nil)
	_ plugin.SettingsProvider     = (*Plugin)(nil)
	_ plugin.SettingChangeHandler = (*Plugin)(nil)
)

// Settings declares the view options.
func (p *Plugin) Settings() []plugin.SettingDescriptor {
	return []plugin.SettingDescriptor{
		{
			Key:         SettingMaxEntries,
			Label:       "Entries shown",
			Type:        plugin.SettingNumber,
			Default:     defaultMaxEntries,
			Constraints: map[string]any{"minimum": 1, "maximum": 1000},
		},
		{
			Key:         SettingPaused,
			Label:       "Pause recording",
			Type:        plugin.SettingBoolean,
			Default:     false,
			Description: "Stop recording new events until unpaused.",
		},
		{
			Key:         SettingWindow,
			Label:       "Time window (minutes)",
			Type:        plugin.SettingNumber,
			Default:     0,
			Description: "Only show events from the last N minutes. 0 shows the most recent regardless of age.",
			Constraints: map[string]any{"minimum": 0, "maximum": 1440},
		},
	}
}

// Init opens the tab and subscribes to every event.
func (p *Plugin) Init(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	content, err := p.render(ctx)
	if err != nil {
		return err
	}
	tabID, err := p.pc.Panel().CreateTab(TabTitle, content)
	if err != nil {
		return fmt.Errorf("failed to open activity tab: %w", err)
	}
	p.tabID = tabID
	p.sub = p.pc.Events().On(plugin.WildcardEvent, p.handle)
	return nil
}

// Destroy unsubscribes and closes the tab.
func (p *Plugin) Destroy(_ context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.pc.Events().Off(p.sub)
	if p.tabID == "" {
		return nil
	}
	tabID := p.tabID
	p.tabID = ""
	return p.pc.Panel().CloseTab(tabID)
}

// OnSettingChange re-renders the tab.
func (p *Plugin) OnSettingChange(key string, _ any) {
	if key != SettingMaxEntries && key != SettingWindow {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.refresh(context.Background())
}

func (p *Plugin) handle(ev plugin.Event) {
	ctx := context.Background()

	// The UI closing our tab arrives as a panel action; stop updating it.
	if ev.Type == protocol.TypePanelClose {
		p.closed(ev)
		return
	}
	if ev.Type == protocol.TypePanelUpdate {
		p.selectEntry(ev)
		return
	}
	if strings.HasPrefix(ev.Type, "panel.") {
		return
	}
	if paused, _ := p.pc.Settings().Get(SettingPaused); paused == true {
		return
	}

	data, meta, err := p.truncator.Truncate(asMap(ev.Data), p.limit)
	if err != nil {
		p.logger.Warn("failed to truncate event data", "event", ev.Type, "error", err)
		return
	}
	rec := domain.NewRecord(ev.Type, ev.Time, data)
	rec.Meta = meta
	if err := p.repo.Save(ctx, rec); err != nil {
		p.logger.Warn("failed to record event", "event", ev.Type, "error", err)
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.refresh(ctx)
}

func (p *Plugin) closed(ev plugin.Event) {
	pe, ok := ev.Data.(protocol.PanelEvent)
	if !ok {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if pe.TabID == p.tabID {
		p.tabID = ""
	}
}

// selectEntry expands the record named by a UI panel.update on our tab.
func (p *Plugin) selectEntry(ev plugin.Event) {
	pe, ok := ev.Data.(protocol.PanelEvent)
	if !ok {
		return
	}
	content, ok := pe.Content.(map[string]any)
	if !ok {
		return
	}
	raw, ok := content[SelectKey].(string)
	if !ok {
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if pe.TabID != p.tabID {
		return
	}
	id := uuid.Nil
	if raw != "" {
		parsed, err := uuid.Parse(raw)
		if err != nil {
			p.logger.Debug("ignoring malformed selection", "value", raw)
			return
		}
		id = parsed
	}
	p.selected = id
	p.refresh(context.Background())
}

// refresh updates the tab. Callers hold mu.
func (p *Plugin) refresh(ctx context.Context) {
	if p.tabID == "" {
		return
	}
	content, err := p.render(ctx)
	if err != nil {
		p.logger.Warn("failed to render activity", "error", err)
		return
	}
	if err := p.pc.Panel().UpdateTab(p.tabID, content); err != nil {
		p.logger.Debug("failed to update activity tab", "error", err)
	}
}

// Entry is one rendered row.
type Entry struct {
	ID        string         `json:"id"`
	Type      string         `json:"type"`
	Time      time.Time      `json:"time"`
	Data      map[string]any `json:"data,omitempty"`
	Truncated bool           `json:"truncated,omitempty"`
}

// Content is the tab body.
type Content struct {
	Entries  []Entry `json:"entries"`
	Selected *Entry  `json:"selected,omitempty"`
}

func newEntry(r *domain.Record) Entry {
	return Entry{
		ID:        r.ID.String(),
		Type:      r.Type,
		Time:      r.Time,
		Data:      r.Data,
		Truncated: r.Meta != nil && r.Meta.Truncated,
	}
}

// render builds the tab body. Callers hold mu.
func (p *Plugin) render(ctx context.Context) (Content, error) {
	records, err := p.records(ctx)
	if err != nil {
		return Content{}, fmt.Errorf("failed to load activity: %w", err)
	}
	out := Content{Entries: make([]Entry, 0, len(records))}
	for _, r := range records {
		out.Entries = append(out.Entries, newEntry(r))
	}

	if p.selected != uuid.Nil {
		r, err := p.repo.FindByID(ctx, p.selected)
		if err != nil {
			// Evicted from the history.
			p.selected = uuid.Nil
		} else {
			e := newEntry(r)
			out.Selected = &e
		}
	}
	return out, nil
}

func (p *Plugin) records(ctx context.Context) ([]*domain.Record, error) {
	limit := p.intSetting(SettingMaxEntries, defaultMaxEntries)
	window := p.intSetting(SettingWindow, 0)
	if window <= 0 {
		return p.repo.FindRecent(ctx, limit)
	}

	end := time.Now()
	records, err := p.repo.FindBetween(ctx, end.Add(-time.Duration(window)*time.Minute), end)
	if err != nil {
		return nil, err
	}
	if len(records) > limit {
		records = records[:limit]
	}
	return records, nil
}

func (p *Plugin) intSetting(key string, fallback int) int {
	v, ok := p.pc.Settings().Get(key)
	if !ok {
		return fallback
	}
	switch n := v.(type) {
	case int:
		return n
	case int64:
		return int(n)
	case float64:
		return int(n)
	default:
		return fallback
	}
}

func asMap(data any) map[string]any {
	switch d := data.(type) {
	case nil:
		return nil
	case map[string]any:
		return d
	default:
		return map[string]any{"value": d}
	}
}
