package host

import (
	"context"
	"fmt"
	"time"

	"github.com/warden-dev/warden/internal/domain/manifest"
	"github.com/warden-dev/warden/internal/domain/plugin"
	"github.com/warden-dev/warden/internal/protocol"
)

// Panel actions a UI may send to a plugin.
const (
	PanelActionCreate = "create"
	PanelActionUpdate = "update"
	PanelActionClose  = "close"
)

type target struct {
	id    string
	entry *entry
	box   *mailbox
}

func (h *Host) enabledTargets() []target {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]target, 0, len(h.order))
	for _, id := range h.order {
		e := h.plugins[id]
		if e.enabled && e.pctx != nil {
			out = append(out, target{id: id, entry: e, box: e.pctx.events})
		}
	}
	return out
}

// DispatchBackendEvent posts an event to every enabled plugin whose eventFilter
// accepts it and returns how many mailboxes took it. Delivery is at most once:
// a full mailbox drops the event.
func (h *Host) DispatchBackendEvent(eventType string, data any) int {
	ev := plugin.Event{Type: eventType, Data: data, Time: time.Now().UTC()}

	delivered := 0
	for _, t := range h.enabledTargets() {
		ok, err := matches(t.entry.filter, eventType, data)
		if err != nil {
			h.logger.Debug("event filter failed", "plugin", t.id, "event", eventType, "error", err)
			continue
		}
		if !ok {
			continue
		}
		if !t.box.post(ev) {
			h.logger.Warn("dropped event for plugin", "plugin", t.id, "event", eventType)
			continue
		}
		delivered++
	}
	return delivered
}

// DeliverPanelAction forwards a UI-originated panel request to the owning plugin
// as a "panel.<action>" event.
func (h *Host) DeliverPanelAction(id, action string, payload protocol.PanelEvent) error {
	switch action {
	case PanelActionCreate, PanelActionUpdate, PanelActionClose:
	default:
		return fmt.Errorf("%w: %q", ErrUnknownPanelVerb, action)
	}

	e, err := h.lookup(id)
	if err != nil {
		return err
	}

	h.mu.RLock()
	var box *mailbox
	if e.enabled && e.pctx != nil {
		box = e.pctx.events
	}
	h.mu.RUnlock()
	if box == nil {
		return fmt.Errorf("%w: %s", ErrNotEnabled, id)
	}

	payload.PluginID = id
	if !box.post(plugin.Event{Type: "panel." + action, Data: payload, Time: time.Now().UTC()}) {
		return fmt.Errorf("%w: %s", ErrMailboxFull, id)
	}
	return nil
}

func (h *Host) vaultFor(id string) (*guardedVault, error) {
	e, err := h.lookup(id)
	if err != nil {
		return nil, err
	}
	if e.manifest.Tier < manifest.TierVerified || h.opts.Vault == nil {
		return nil, fmt.Errorf("%w: %s has no vault access", ErrAccessDenied, id)
	}
	return &guardedVault{guard: e.guard, store: h.opts.Vault}, nil
}

// ReadVault reads a vault file on behalf of a plugin, subject to its read grants.
func (h *Host) ReadVault(ctx context.Context, id, path string) ([]byte, error) {
	v, err := h.vaultFor(id)
	if err != nil {
		return nil, err
	}
	return v.ReadContext(ctx, path)
}

// WriteVault writes a vault file on behalf of a plugin, subject to its write grants.
func (h *Host) WriteVault(ctx context.Context, id, path string, data []byte) error {
	v, err := h.vaultFor(id)
	if err != nil {
		return err
	}
	return v.WriteContext(ctx, path, data)
}

// Settings returns a plugin's declared settings and current values.
func (h *Host) Settings(id string) (protocol.SettingsView, error) {
	e, err := h.lookup(id)
	if err != nil {
		return protocol.SettingsView{}, err
	}
	return protocol.SettingsView{
		PluginID:    id,
		Descriptors: e.settings.Descriptors(),
		Values:      e.settings.All(),
	}, nil
}

// SetSetting validates and persists one setting. An enabled plugin is notified
// through OnSettingChange.
func (h *Host) SetSetting(id, key string, value any) error {
	e, err := h.lookup(id)
	if err != nil {
		return err
	}
	return e.settings.Set(key, value)
}
