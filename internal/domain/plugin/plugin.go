// Package plugin defines the contract between the host and plugin code:
// the entry object every runtime produces and the context it is handed.
package plugin

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/warden-dev/warden/internal/domain/capabilities"
	"github.com/warden-dev/warden/internal/domain/manifest"
)

// Plugin is the entry object of an enabled plugin.
type Plugin interface {
	Init(ctx context.Context) error
	Destroy(ctx context.Context) error
}

// SettingsProvider is implemented by plugins that declare user-facing settings.
type SettingsProvider interface {
	Settings() []SettingDescriptor
}

// SettingChangeHandler is implemented by plugins that react to setting updates.
type SettingChangeHandler interface {
	OnSettingChange(key string, value any)
}

// Factory constructs a plugin bound to its context.
type Factory func(ctx context.Context, pc Context) (Plugin, error)

// Event is a backend or panel notification delivered to a plugin.
type Event struct {
	Type string    `json:"type"`
	Data any       `json:"data,omitempty"`
	Time time.Time `json:"timestamp"`
}

// EventHandler receives events from a plugin's private subscription.
type EventHandler func(Event)

// SubscriptionID identifies one registered handler.
type SubscriptionID uint64

// WildcardEvent subscribes a handler to every event type.
const WildcardEvent = "*"

// Context is everything a plugin may touch. One is created per enable and
// discarded on disable.
type Context interface {
	ID() string
	Manifest() *manifest.Manifest
	Profile() capabilities.Profile
	Panel() Panel
	Events() Events
	Settings() Settings
	Logger() *slog.Logger
	// Vault is nil for tier 1 plugins.
	Vault() Vault
	// HTTP is nil when the profile denies network access.
	HTTP() *http.Client
}

// Panel proxies UI tab operations to connected clients.
type Panel interface {
	CreateTab(title string, content any) (string, error)
	UpdateTab(tabID string, content any) error
	CloseTab(tabID string) error
}

// Events is a plugin's private subscription surface.
type Events interface {
	On(eventType string, h EventHandler) SubscriptionID
	Off(id SubscriptionID)
}

// Settings reads and writes the plugin's persisted settings.
type Settings interface {
	Get(key string) (any, bool)
	Set(key string, value any) error
	All() map[string]any
}

// Vault gives guarded access to vault files. Paths are relative to the vault
// base, e.g. "memory-store/notes.json".
type Vault interface {
	Read(path string) ([]byte, error)
	Write(path string, data []byte) error
}
