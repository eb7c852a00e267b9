// Package manifest defines the plugin descriptor and its structural invariants.
package manifest

import (
	"path/filepath"
	"strings"
)

// Tier is a plugin's trust classification. It floors every capability derivation.
type Tier int

const (
	// TierSandboxed plugins get no capabilities at all.
	TierSandboxed Tier = 1
	// TierVerified plugins get the capabilities their manifest lists, minus system partitions.
	TierVerified Tier = 2
	// TierSystem plugins may reference system partitions and are the only tier allowed subprocesses.
	TierSystem Tier = 3
)

// String returns a human-readable representation of the tier.
func (t Tier) String() string {
	switch t {
	case TierSandboxed:
		return "sandboxed"
	case TierVerified:
		return "verified"
	case TierSystem:
		return "system"
	default:
		return "unknown"
	}
}

// Valid reports whether t is one of the three defined tiers.
func (t Tier) Valid() bool {
	return t >= TierSandboxed && t <= TierSystem
}

// Permissions lists the capabilities a plugin requests.
type Permissions struct {
	Read  []string `json:"read,omitempty" yaml:"read,omitempty" jsonschema:"description=Vault paths the plugin may read"`
	Write []string `json:"write,omitempty" yaml:"write,omitempty" jsonschema:"description=Vault paths the plugin may write"`
	Net   []string `json:"net,omitempty" yaml:"net,omitempty" jsonschema:"description=Hosts the plugin may contact or * for any host"`
	Env   bool     `json:"env,omitempty" yaml:"env,omitempty" jsonschema:"description=Whether the plugin may read environment variables"`
}

// Manifest describes a plugin's identity, entry point and requested capabilities.
// A Manifest is immutable once parsed.
type Manifest struct {
	ID                string       `json:"id" yaml:"id" jsonschema:"required,minLength=1,pattern=^[a-z0-9][a-z0-9._-]*$"`
	Name              string       `json:"name" yaml:"name" jsonschema:"required,minLength=1"`
	Version           string       `json:"version" yaml:"version" jsonschema:"required,minLength=1,description=Semantic version"`
	Description       string       `json:"description,omitempty" yaml:"description,omitempty"`
	Author            string       `json:"author,omitempty" yaml:"author,omitempty"`
	Icon              string       `json:"icon,omitempty" yaml:"icon,omitempty"`
	Tier              Tier         `json:"tier" yaml:"tier" jsonschema:"required,enum=1,enum=2,enum=3"`
	Permissions       *Permissions `json:"permissions,omitempty" yaml:"permissions,omitempty"`
	EntryPoint        string       `json:"entryPoint" yaml:"entryPoint" jsonschema:"description=Entry file (.wasm, .js or .lua); ignored for built-in plugins"`
	MinRuntimeVersion string       `json:"minRuntimeVersion,omitempty" yaml:"minRuntimeVersion,omitempty"`
	EventFilter       string       `json:"eventFilter,omitempty" yaml:"eventFilter,omitempty" jsonschema:"description=expr-lang boolean expression over type and data"`

	// dir is the plugin directory the manifest was read from.
	dir string
}

// Dir returns the directory the manifest was loaded from. Empty for in-memory manifests.
func (m *Manifest) Dir() string {
	return m.dir
}

// EntryPath returns the absolute location of the entry point.
func (m *Manifest) EntryPath() string {
	if m.EntryPoint == "" {
		return ""
	}
	if filepath.IsAbs(m.EntryPoint) {
		return m.EntryPoint
	}
	return filepath.Join(m.dir, m.EntryPoint)
}

// EntryKind returns the lowercased entry point extension, e.g. ".wasm".
func (m *Manifest) EntryKind() string {
	return strings.ToLower(filepath.Ext(m.EntryPoint))
}

// HasPermissions reports whether the manifest carries a permissions object.
func (m *Manifest) HasPermissions() bool {
	return m.Permissions != nil
}
