// Package file persists vault content and plugin settings on the local disk.
package file

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/warden-dev/warden/internal/application/ports"
	"github.com/warden-dev/warden/internal/domain/capabilities"
)

// ErrNotFound is returned when a vault file does not exist.
var ErrNotFound = errors.New("vault file not found")

// VaultStore reads and writes vault files directly on disk. Access checks
// happen in the host before a path reaches the store.
type VaultStore struct {
	base string
}

var _ ports.VaultStore = (*VaultStore)(nil)

// NewVaultStore creates a store rooted at base. A relative base is resolved
// against the working directory so it matches the absolute paths the guard
// hands out.
func NewVaultStore(base string) *VaultStore {
	base = filepath.Clean(base)
	if abs, err := filepath.Abs(base); err == nil {
		base = abs
	}
	return &VaultStore{base: base}
}

// Base returns the vault root.
func (s *VaultStore) Base() string {
	return s.base
}

// EnsurePartitions creates the shared partitions and the private root.
func (s *VaultStore) EnsurePartitions() error {
	for _, name := range capabilities.Partitions {
		if err := os.MkdirAll(filepath.Join(s.base, name), 0o750); err != nil {
			return fmt.Errorf("failed to create vault partition %s: %w", name, err)
		}
	}
	return nil
}

// Read returns the content of path.
func (s *VaultStore) Read(ctx context.Context, path string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := s.within(path); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path) //nolint:gosec // G304: path is checked against the plugin profile and vault base
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, s.rel(path))
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", s.rel(path), err)
	}
	return data, nil
}

// Write replaces the content of path, creating parent directories.
func (s *VaultStore) Write(ctx context.Context, path string, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := s.within(path); err != nil {
		return err
	}
	if err := writeFileAtomic(path, data, 0o600); err != nil {
		return fmt.Errorf("failed to write %s: %w", s.rel(path), err)
	}
	return nil
}

func (s *VaultStore) within(path string) error {
	rel, err := filepath.Rel(s.base, path)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return fmt.Errorf("path %s is outside the vault", path)
	}
	return nil
}

func (s *VaultStore) rel(path string) string {
	if rel, err := filepath.Rel(s.base, path); err == nil {
		return filepath.ToSlash(rel)
	}
	return path
}

// writeFileAtomic writes through a temp file in the target directory and
// renames it into place.
func writeFileAtomic(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*")
	if err != nil {
		return err
	}
	defer func() { _ = os.Remove(tmp.Name()) }()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Chmod(perm); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}
