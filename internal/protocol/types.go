package protocol

import "strings"

// Request types.
const (
	TypePluginsList   = "plugins.list"
	TypePluginEnable  = "plugin.enable"
	TypePluginDisable = "plugin.disable"
	TypeBackendEvent  = "backend.event"
	TypeVaultRead     = "vault.read"
	TypeVaultWrite    = "vault.write"
	TypePanelCreate   = "panel.create"
	TypePanelUpdate   = "panel.update"
	TypePanelClose    = "panel.close"
	TypeSettingsGet   = "plugin.settings.get"
	TypeSettingsSet   = "plugin.settings.set"
)

// Event types. Panel events reuse the request names: a panel request comes from
// a UI, a panel event comes from a plugin.
const (
	EventPluginsRoster = "plugins.roster"
	EventPanelCreate   = TypePanelCreate
	EventPanelUpdate   = TypePanelUpdate
	EventPanelClose    = TypePanelClose
	EventPluginError   = "plugin.error"
)

const resultSuffix = ".result"

var requestTypes = []string{
	TypePluginsList,
	TypePluginEnable,
	TypePluginDisable,
	TypeBackendEvent,
	TypeVaultRead,
	TypeVaultWrite,
	TypePanelCreate,
	TypePanelUpdate,
	TypePanelClose,
	TypeSettingsGet,
	TypeSettingsSet,
}

// RequestTypes returns every request type in declaration order.
func RequestTypes() []string {
	out := make([]string, len(requestTypes))
	copy(out, requestTypes)
	return out
}

// IsRequestType reports whether t names a request.
func IsRequestType(t string) bool {
	for _, rt := range requestTypes {
		if rt == t {
			return true
		}
	}
	return false
}

// ResponseType returns the single response type paired with a request type.
func ResponseType(requestType string) string {
	return requestType + resultSuffix
}

// RequestTypeOf maps a response type back to its request type.
func RequestTypeOf(responseType string) (string, bool) {
	rt, ok := strings.CutSuffix(responseType, resultSuffix)
	if !ok || !IsRequestType(rt) {
		return "", false
	}
	return rt, true
}
