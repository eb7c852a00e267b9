// Package capabilities persists plugin approvals and asks the user for them.
package capabilities

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/goccy/go-yaml"

	"github.com/warden-dev/warden/internal/application/ports"
	"github.com/warden-dev/warden/internal/domain/capabilities"
)

// FileStore keeps approvals in one YAML file. An approval covers a plugin
// version and the capabilities shown when it was given.
type FileStore struct {
	path string
	now  func() time.Time
	mu   sync.Mutex
}

var _ ports.ApprovalStore = (*FileStore)(nil)

// NewFileStore creates a store backed by path, usually <state_dir>/approvals.yaml.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path, now: time.Now}
}

// Path returns the backing file.
func (s *FileStore) Path() string {
	return s.path
}

// Approval is one stored approval.
type Approval struct {
	PluginID     string                    `yaml:"plugin"`
	Version      string                    `yaml:"version"`
	ApprovedAt   time.Time                 `yaml:"approvedAt"`
	Capabilities []capabilities.Capability `yaml:"capabilities"`
}

type approvalFile struct {
	Approvals []Approval `yaml:"approvals"`
}

// IsApproved reports whether id@version was approved for a superset of caps.
func (s *FileStore) IsApproved(pluginID, version string, caps []capabilities.Capability) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	file, err := s.load()
	if err != nil {
		return false, err
	}
	for _, a := range file.Approvals {
		if a.PluginID == pluginID && a.Version == version {
			return capabilities.Grant(a.Capabilities).ContainsAll(caps), nil
		}
	}
	return false, nil
}

// Approve records an approval, replacing any earlier one for the plugin.
func (s *FileStore) Approve(pluginID, version string, caps []capabilities.Capability) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	file, err := s.load()
	if err != nil {
		return err
	}
	file.Approvals = remove(file.Approvals, pluginID)
	file.Approvals = append(file.Approvals, Approval{
		PluginID:     pluginID,
		Version:      version,
		ApprovedAt:   s.now().UTC().Truncate(time.Second),
		Capabilities: append([]capabilities.Capability{}, caps...),
	})
	sort.Slice(file.Approvals, func(i, j int) bool { return file.Approvals[i].PluginID < file.Approvals[j].PluginID })
	return s.save(file)
}

// Revoke drops the plugin's approval. Revoking an unknown plugin is not an error.
func (s *FileStore) Revoke(pluginID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	file, err := s.load()
	if err != nil {
		return err
	}
	before := len(file.Approvals)
	file.Approvals = remove(file.Approvals, pluginID)
	if len(file.Approvals) == before {
		return nil
	}
	return s.save(file)
}

// List returns every stored approval.
func (s *FileStore) List() ([]Approval, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	file, err := s.load()
	if err != nil {
		return nil, err
	}
	return file.Approvals, nil
}

func (s *FileStore) load() (approvalFile, error) {
	var file approvalFile
	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return file, nil
	}
	if err != nil {
		return file, fmt.Errorf("failed to read approvals: %w", err)
	}
	if err := yaml.Unmarshal(data, &file); err != nil {
		return file, fmt.Errorf("failed to parse approvals %s: %w", s.path, err)
	}
	return file, nil
}

func (s *FileStore) save(file approvalFile) error {
	data, err := yaml.MarshalWithOptions(file, yaml.IndentSequence(true))
	if err != nil {
		return fmt.Errorf("failed to marshal approvals: %w", err)
	}
	return writeFileAtomic(s.path, data)
}

func remove(approvals []Approval, pluginID string) []Approval {
	out := approvals[:0]
	for _, a := range approvals {
		if a.PluginID != pluginID {
			out = append(out, a)
		}
	}
	return out
}

// writeFileAtomic writes through a temp file in the same directory and renames it.
func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("failed to create state directory: %w", err)
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	defer func() { _ = os.Remove(tmp.Name()) }()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}
