package manifest

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/Masterminds/semver/v3"
	"github.com/goccy/go-yaml"
)

// Format identifies the encoding of a manifest file.
type Format string

// Supported manifest formats.
const (
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
)

// FileNames are the descriptor names that mark a directory as a plugin candidate,
// in lookup order.
var FileNames = []string{"manifest.json", "manifest.yaml", "manifest.yml"}

var idPattern = regexp.MustCompile(`^[a-z0-9][a-z0-9._-]*$`)

// ValidID reports whether id is usable as a plugin id, which also makes it
// safe as a single path element.
func ValidID(id string) bool {
	return idPattern.MatchString(id)
}

// FormatFor returns the manifest format implied by a file name.
func FormatFor(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return FormatJSON, nil
	case ".yaml", ".yml":
		return FormatYAML, nil
	default:
		return "", fmt.Errorf("%w: %s", ErrUnsupportedFormat, filepath.Base(path))
	}
}

// Parse decodes and validates a manifest. The structural invariants run on the
// untyped document first so that a mistyped field is reported as a violation
// rather than a decode error.
func Parse(data []byte, format Format) (*Manifest, error) {
	var raw any
	switch format {
	case FormatJSON:
		if err := json.Unmarshal(data, &raw); err != nil {
			return nil, fmt.Errorf("failed to parse manifest: %w", err)
		}
	case FormatYAML:
		if err := yaml.Unmarshal(data, &raw); err != nil {
			return nil, fmt.Errorf("failed to parse manifest: %w", err)
		}
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, format)
	}

	if err := Check(raw); err != nil {
		return nil, err
	}

	var m Manifest
	var err error
	if format == FormatJSON {
		err = json.Unmarshal(data, &m)
	} else {
		err = yaml.Unmarshal(data, &m)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to decode manifest: %w", err)
	}

	if !ValidID(m.ID) {
		return nil, invalid("id", fmt.Errorf("%w: %q", ErrInvalidID, m.ID))
	}
	if _, err := semver.NewVersion(m.Version); err != nil {
		return nil, invalid("version", fmt.Errorf("%w: %q", ErrInvalidVersion, m.Version))
	}
	if m.MinRuntimeVersion != "" {
		if _, err := semver.NewVersion(m.MinRuntimeVersion); err != nil {
			return nil, invalid("minRuntimeVersion", fmt.Errorf("%w: %q", ErrInvalidVersion, m.MinRuntimeVersion))
		}
	}

	return &m, nil
}

// Load reads and parses the manifest file at path.
func Load(path string) (*Manifest, error) {
	format, err := FormatFor(path)
	if err != nil {
		return nil, err
	}

	//nolint:gosec // G304: path comes from plugin root discovery
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read manifest: %w", err)
	}

	m, err := Parse(data, format)
	if err != nil {
		return nil, err
	}

	dir, err := filepath.Abs(filepath.Dir(path))
	if err != nil {
		return nil, fmt.Errorf("failed to resolve plugin directory: %w", err)
	}
	m.dir = dir

	return m, nil
}

// WithDir returns a copy of m rooted at dir. Used for built-in plugins and tests.
func (m Manifest) WithDir(dir string) *Manifest {
	m.dir = dir
	return &m
}

// CheckCompatibility verifies the running version satisfies minRuntimeVersion.
// Unparseable runtime versions (development builds) always pass.
func (m *Manifest) CheckCompatibility(runtimeVersion string) error {
	if m.MinRuntimeVersion == "" {
		return nil
	}

	current, err := semver.NewVersion(runtimeVersion)
	if err != nil {
		return nil
	}
	required, err := semver.NewVersion(m.MinRuntimeVersion)
	if err != nil {
		return invalid("minRuntimeVersion", fmt.Errorf("%w: %q", ErrInvalidVersion, m.MinRuntimeVersion))
	}

	if current.LessThan(required) {
		return fmt.Errorf("%w: %s needs %s, running %s", ErrIncompatibleRuntime, m.ID, required, current)
	}
	return nil
}
