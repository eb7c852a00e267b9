package file

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/goccy/go-yaml"

	"github.com/warden-dev/warden/internal/application/ports"
	"github.com/warden-dev/warden/internal/domain/manifest"
)

// SettingsStore keeps each plugin's values in <dir>/<id>.yaml.
type SettingsStore struct {
	dir string
	mu  sync.Mutex
}

var _ ports.SettingsStore = (*SettingsStore)(nil)

// NewSettingsStore creates a store writing under dir.
func NewSettingsStore(dir string) *SettingsStore {
	return &SettingsStore{dir: dir}
}

// Load returns the stored values, or an empty map when none were saved.
func (s *SettingsStore) Load(pluginID string) (map[string]any, error) {
	path, err := s.path(pluginID)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	values := make(map[string]any)
	data, err := os.ReadFile(path) //nolint:gosec // G304: file name is a validated plugin id
	if errors.Is(err, fs.ErrNotExist) {
		return values, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read settings for %s: %w", pluginID, err)
	}
	if err := yaml.Unmarshal(data, &values); err != nil {
		return nil, fmt.Errorf("failed to parse settings for %s: %w", pluginID, err)
	}
	if values == nil {
		values = make(map[string]any)
	}
	return values, nil
}

// Save replaces the stored values.
func (s *SettingsStore) Save(pluginID string, values map[string]any) error {
	path, err := s.path(pluginID)
	if err != nil {
		return err
	}
	if values == nil {
		values = map[string]any{}
	}
	data, err := yaml.Marshal(values)
	if err != nil {
		return fmt.Errorf("failed to encode settings for %s: %w", pluginID, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := writeFileAtomic(path, data, 0o600); err != nil {
		return fmt.Errorf("failed to save settings for %s: %w", pluginID, err)
	}
	return nil
}

func (s *SettingsStore) path(pluginID string) (string, error) {
	if !manifest.ValidID(pluginID) {
		return "", fmt.Errorf("invalid plugin id %q", pluginID)
	}
	return filepath.Join(s.dir, pluginID+".yaml"), nil
}
