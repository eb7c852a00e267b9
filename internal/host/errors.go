package host

import "errors"

// Host errors.
var (
	ErrPluginNotFound   = errors.New("plugin not found")
	ErrDuplicatePlugin  = errors.New("plugin already loaded")
	ErrInvalidManifest  = errors.New("invalid manifest")
	ErrInvalidFilter    = errors.New("invalid event filter")
	ErrNotApproved      = errors.New("plugin capabilities not approved")
	ErrNotEnabled       = errors.New("plugin not enabled")
	ErrAccessDenied     = errors.New("vault access denied")
	ErrNetworkDenied    = errors.New("network access denied")
	ErrUnknownTab       = errors.New("unknown panel tab")
	ErrUnknownSetting   = errors.New("unknown setting")
	ErrInvalidSetting   = errors.New("invalid setting value")
	ErrMailboxFull      = errors.New("plugin mailbox full")
	ErrUnknownPanelVerb = errors.New("unknown panel action")
)
