package protocol

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/go-playground/validator/v10"

	"github.com/warden-dev/warden/internal/domain/plugin"
)

// validate is a package-level singleton; validators cache struct metadata.
var validate = validator.New(validator.WithRequiredStructEnabled())

// PluginRef names the plugin a request targets.
type PluginRef struct {
	PluginID string `json:"pluginId" validate:"required"`
}

// BackendEvent forwards a pipeline notification into the host.
type BackendEvent struct {
	EventType string `json:"eventType" validate:"required"`
	Data      any    `json:"data,omitempty"`
}

// VaultRead asks for a vault file on behalf of a plugin.
type VaultRead struct {
	PluginID string `json:"pluginId" validate:"required"`
	Path     string `json:"path" validate:"required"`
}

// VaultWrite stores a vault file on behalf of a plugin.
type VaultWrite struct {
	PluginID string `json:"pluginId" validate:"required"`
	Path     string `json:"path" validate:"required"`
	Content  string `json:"content"`
	Encoding string `json:"encoding,omitempty" validate:"omitempty,oneof=utf8 base64"`
}

// VaultContent is the data of a vault.read response.
type VaultContent struct {
	Path     string `json:"path"`
	Content  string `json:"content"`
	Encoding string `json:"encoding"`
}

// PanelCreate asks a plugin to open a tab from the UI side.
type PanelCreate struct {
	PluginID string `json:"pluginId" validate:"required"`
	Title    string `json:"title" validate:"required"`
	Content  any    `json:"content,omitempty"`
}

// PanelTab addresses an existing tab for panel.update and panel.close.
type PanelTab struct {
	PluginID string `json:"pluginId" validate:"required"`
	TabID    string `json:"tabId" validate:"required"`
	Content  any    `json:"content,omitempty"`
}

// SettingsSet changes one plugin setting.
type SettingsSet struct {
	PluginID string `json:"pluginId" validate:"required"`
	Key      string `json:"key" validate:"required"`
	Value    any    `json:"value"`
}

// SettingsView is the data of a plugin.settings.get response.
type SettingsView struct {
	PluginID    string                     `json:"pluginId"`
	Descriptors []plugin.SettingDescriptor `json:"descriptors"`
	Values      map[string]any             `json:"values"`
}

// Roster is the payload of plugins.roster and the data of plugins.list.
type Roster struct {
	Plugins []plugin.State `json:"plugins"`
}

// PanelEvent is emitted when a plugin creates, updates or closes a tab.
type PanelEvent struct {
	PluginID string `json:"pluginId"`
	TabID    string `json:"tabId"`
	Title    string `json:"title,omitempty"`
	Content  any    `json:"content,omitempty"`
}

// PluginError is emitted when a plugin fails a lifecycle step.
type PluginError struct {
	PluginID string `json:"pluginId"`
	Phase    string `json:"phase"`
	Error    string `json:"error"`
}

// DecodePayload unmarshals msg's payload into v and runs tag validation.
// Unknown fields are rejected.
func DecodePayload(msg Message, v any) error {
	if len(msg.Payload) == 0 {
		return fmt.Errorf("%w: %s requires a payload", ErrInvalidPayload, msg.Type)
	}

	dec := json.NewDecoder(bytes.NewReader(msg.Payload))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}

	if err := validate.Struct(v); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	return nil
}
