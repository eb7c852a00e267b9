package host

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"path/filepath"
	"sync"

	"github.com/google/uuid"

	"github.com/warden-dev/warden/internal/application/ports"
	"github.com/warden-dev/warden/internal/domain/capabilities"
	"github.com/warden-dev/warden/internal/domain/manifest"
	"github.com/warden-dev/warden/internal/domain/plugin"
	"github.com/warden-dev/warden/internal/protocol"
)

// pluginContext is the plugin.Context handed to one enabled plugin.
type pluginContext struct {
	manifest *manifest.Manifest
	profile  capabilities.Profile
	panel    *panel
	events   *mailbox
	settings *settings
	logger   *slog.Logger
	vault    plugin.Vault
	client   *http.Client
}

var _ plugin.Context = (*pluginContext)(nil)

func (c *pluginContext) ID() string                    { return c.manifest.ID }
func (c *pluginContext) Manifest() *manifest.Manifest  { return c.manifest }
func (c *pluginContext) Profile() capabilities.Profile { return c.profile }
func (c *pluginContext) Panel() plugin.Panel           { return c.panel }
func (c *pluginContext) Events() plugin.Events         { return c.events }
func (c *pluginContext) Settings() plugin.Settings     { return c.settings }
func (c *pluginContext) Logger() *slog.Logger          { return c.logger }
func (c *pluginContext) Vault() plugin.Vault           { return c.vault }
func (c *pluginContext) HTTP() *http.Client            { return c.client }

// panel forwards tab operations to connected clients and remembers open tabs
// so they can be closed when the plugin is disabled.
type panel struct {
	pluginID string
	publish  func(eventType string, payload any)

	mu   sync.Mutex
	tabs map[string]string
}

func newPanel(pluginID string, publish func(string, any)) *panel {
	return &panel{pluginID: pluginID, publish: publish, tabs: make(map[string]string)}
}

func (p *panel) CreateTab(title string, content any) (string, error) {
	id := uuid.NewString()
	p.mu.Lock()
	p.tabs[id] = title
	p.mu.Unlock()

	p.publish(protocol.EventPanelCreate, protocol.PanelEvent{PluginID: p.pluginID, TabID: id, Title: title, Content: content})
	return id, nil
}

func (p *panel) UpdateTab(tabID string, content any) error {
	p.mu.Lock()
	title, ok := p.tabs[tabID]
	p.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownTab, tabID)
	}

	p.publish(protocol.EventPanelUpdate, protocol.PanelEvent{PluginID: p.pluginID, TabID: tabID, Title: title, Content: content})
	return nil
}

func (p *panel) CloseTab(tabID string) error {
	p.mu.Lock()
	_, ok := p.tabs[tabID]
	delete(p.tabs, tabID)
	p.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownTab, tabID)
	}

	p.publish(protocol.EventPanelClose, protocol.PanelEvent{PluginID: p.pluginID, TabID: tabID})
	return nil
}

func (p *panel) closeAll() {
	p.mu.Lock()
	ids := make([]string, 0, len(p.tabs))
	for id := range p.tabs {
		ids = append(ids, id)
	}
	clear(p.tabs)
	p.mu.Unlock()

	for _, id := range ids {
		p.publish(protocol.EventPanelClose, protocol.PanelEvent{PluginID: p.pluginID, TabID: id})
	}
}

// guardedVault routes every access through the plugin's guard.
type guardedVault struct {
	guard *capabilities.Guard
	store ports.VaultStore
}

func (v *guardedVault) resolve(rel string, mode capabilities.Mode) (string, error) {
	abs := filepath.Join(v.guard.VaultBase(), filepath.FromSlash(rel))
	if !v.guard.CanAccess(abs, mode) {
		return "", fmt.Errorf("%w: %s %s", ErrAccessDenied, mode, rel)
	}
	return abs, nil
}

func (v *guardedVault) Read(rel string) ([]byte, error) {
	return v.ReadContext(context.Background(), rel)
}

func (v *guardedVault) Write(rel string, data []byte) error {
	return v.WriteContext(context.Background(), rel, data)
}

func (v *guardedVault) ReadContext(ctx context.Context, rel string) ([]byte, error) {
	abs, err := v.resolve(rel, capabilities.ModeRead)
	if err != nil {
		return nil, err
	}
	return v.store.Read(ctx, abs)
}

func (v *guardedVault) WriteContext(ctx context.Context, rel string, data []byte) error {
	abs, err := v.resolve(rel, capabilities.ModeWrite)
	if err != nil {
		return err
	}
	return v.store.Write(ctx, abs, data)
}

// guardedTransport refuses requests to hosts the profile does not grant.
type guardedTransport struct {
	guard *capabilities.Guard
	base  http.RoundTripper
}

func (t *guardedTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if !t.guard.CanAccessNetwork(req.URL.Hostname()) {
		return nil, fmt.Errorf("%w: %s", ErrNetworkDenied, req.URL.Host)
	}
	return t.base.RoundTrip(req)
}
