// Package ports defines interfaces for infrastructure dependencies.
// These are the "ports" in hexagonal architecture - abstractions that
// the host depends on but doesn't implement.
package ports

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/warden-dev/warden/internal/domain/activity"
	"github.com/warden-dev/warden/internal/domain/capabilities"
	"github.com/warden-dev/warden/internal/domain/manifest"
)

// Publisher delivers unsolicited events to every connected UI client.
// The bridge implements it; the host never talks to connections directly.
type Publisher interface {
	Publish(eventType string, payload any)
}

// SettingsStore persists per-plugin setting values.
type SettingsStore interface {
	// Load returns the stored values for a plugin, or an empty map if none exist.
	Load(pluginID string) (map[string]any, error)

	// Save replaces the stored values for a plugin.
	Save(pluginID string, values map[string]any) error
}

// ApprovalStore records which capability sets a user approved per plugin version.
type ApprovalStore interface {
	// IsApproved reports whether caps are covered by the approval for id@version.
	IsApproved(pluginID, version string, caps []capabilities.Capability) (bool, error)

	// Approve stores an approval for id@version covering caps.
	Approve(pluginID, version string, caps []capabilities.Capability) error

	// Revoke removes any approval for id.
	Revoke(pluginID string) error
}

// ApprovalPrompter asks the user to approve a plugin's capabilities.
type ApprovalPrompter interface {
	IsInteractive() bool
	ConfirmPlugin(m *manifest.Manifest, caps []capabilities.Capability) (bool, error)
}

// VaultStore reads and writes vault files by absolute path. Callers check
// access before calling.
type VaultStore interface {
	Read(ctx context.Context, path string) ([]byte, error)
	Write(ctx context.Context, path string, data []byte) error
}

// ActivityRepository keeps the backend events the activity view shows.
type ActivityRepository interface {
	Save(ctx context.Context, record *activity.Record) error
	FindByID(ctx context.Context, id uuid.UUID) (*activity.Record, error)
	// FindRecent returns up to limit records, newest first. Zero means no limit.
	FindRecent(ctx context.Context, limit int) ([]*activity.Record, error)
	// FindBetween returns records with start <= Time <= end, newest first.
	FindBetween(ctx context.Context, start, end time.Time) ([]*activity.Record, error)
}
