package plugin

import (
	"github.com/warden-dev/warden/internal/domain/manifest"
)

// Status is the lifecycle position of a plugin.
type Status string

// Plugin statuses.
const (
	StatusDiscovered Status = "discovered"
	StatusEnabled    Status = "enabled"
	StatusDisabled   Status = "disabled"
	StatusFailed     Status = "failed"
)

// State is a read-only snapshot of one roster entry.
type State struct {
	Manifest    *manifest.Manifest `json:"manifest"`
	Enabled     bool               `json:"enabled"`
	Loaded      bool               `json:"loaded"`
	HasRuntime  bool               `json:"hasRuntime"`
	LastError   string             `json:"lastError,omitempty"`
	Permissions []string           `json:"permissions"`
}

// Status derives the display status from the snapshot.
func (s State) Status() Status {
	switch {
	case s.Enabled:
		return StatusEnabled
	case s.LastError != "":
		return StatusFailed
	case s.Loaded:
		return StatusDisabled
	default:
		return StatusDiscovered
	}
}
