package memory

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"sync"

	"github.com/warden-dev/warden/internal/application/ports"
	"github.com/warden-dev/warden/internal/domain/capabilities"
)

// ErrNotFound is returned by VaultStore.Read for a path never written.
var ErrNotFound = errors.New("vault file not found")

var (
	_ ports.SettingsStore = (*SettingsStore)(nil)
	_ ports.ApprovalStore = (*ApprovalStore)(nil)
	_ ports.VaultStore    = (*VaultStore)(nil)
)

// SettingsStore keeps setting values for the life of the process.
type SettingsStore struct {
	mu     sync.Mutex
	values map[string]map[string]any
}

// NewSettingsStore creates an empty SettingsStore.
func NewSettingsStore() *SettingsStore {
	return &SettingsStore{values: make(map[string]map[string]any)}
}

// Load returns a copy of the stored values.
func (s *SettingsStore) Load(pluginID string) (map[string]any, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := maps.Clone(s.values[pluginID])
	if out == nil {
		out = make(map[string]any)
	}
	return out, nil
}

// Save replaces the stored values with a copy of values.
func (s *SettingsStore) Save(pluginID string, values map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[pluginID] = maps.Clone(values)
	return nil
}

type approval struct {
	version string
	grant   capabilities.Grant
}

// ApprovalStore keeps approvals for the life of the process.
type ApprovalStore struct {
	mu        sync.Mutex
	approvals map[string]approval
}

// NewApprovalStore creates an empty ApprovalStore.
func NewApprovalStore() *ApprovalStore {
	return &ApprovalStore{approvals: make(map[string]approval)}
}

// IsApproved reports whether id@version was approved for a superset of caps.
func (s *ApprovalStore) IsApproved(pluginID, version string, caps []capabilities.Capability) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.approvals[pluginID]
	if !ok || a.version != version {
		return false, nil
	}
	return a.grant.ContainsAll(caps), nil
}

// Approve records an approval, replacing any earlier one.
func (s *ApprovalStore) Approve(pluginID, version string, caps []capabilities.Capability) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.approvals[pluginID] = approval{version: version, grant: slices.Clone(caps)}
	return nil
}

// Revoke drops the plugin's approval.
func (s *ApprovalStore) Revoke(pluginID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.approvals, pluginID)
	return nil
}

// VaultStore keeps vault files in memory, keyed by absolute path.
type VaultStore struct {
	mu    sync.RWMutex
	files map[string][]byte
}

// NewVaultStore creates an empty VaultStore.
func NewVaultStore() *VaultStore {
	return &VaultStore{files: make(map[string][]byte)}
}

// Read returns a copy of the content at path.
func (s *VaultStore) Read(ctx context.Context, path string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	data, ok := s.files[path]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, path)
	}
	return slices.Clone(data), nil
}

// Write stores a copy of data at path.
func (s *VaultStore) Write(ctx context.Context, path string, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.files[path] = slices.Clone(data)
	return nil
}
