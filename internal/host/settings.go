package host

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"maps"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/warden-dev/warden/internal/application/ports"
	"github.com/warden-dev/warden/internal/domain/plugin"
)

// settings holds one plugin's setting values. It outlives enable/disable so
// the UI can read and change settings of a disabled plugin.
type settings struct {
	id     string
	store  ports.SettingsStore
	logger *slog.Logger

	mu          sync.RWMutex
	loaded      bool
	descriptors []plugin.SettingDescriptor
	schemas     map[string]*jsonschema.Schema
	values      map[string]any
	onChange    func(key string, value any)
}

func newSettings(id string, store ports.SettingsStore, logger *slog.Logger) *settings {
	return &settings{
		id:      id,
		store:   store,
		logger:  logger,
		schemas: make(map[string]*jsonschema.Schema),
		values:  make(map[string]any),
	}
}

// declare installs the descriptors a plugin exposes and merges persisted values
// with defaults. Persisted values that no longer validate fall back to the default.
func (s *settings) declare(descs []plugin.SettingDescriptor) error {
	schemas := make(map[string]*jsonschema.Schema, len(descs))
	for _, d := range descs {
		if err := d.Check(); err != nil {
			return err
		}
		if _, dup := schemas[d.Key]; dup {
			return fmt.Errorf("duplicate setting %q", d.Key)
		}
		schema, err := compileSetting(s.id, d)
		if err != nil {
			return err
		}
		schemas[d.Key] = schema
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.loadLocked(); err != nil {
		return err
	}

	for _, d := range descs {
		v, ok := s.values[d.Key]
		if ok {
			if err := validateValue(schemas[d.Key], v); err == nil {
				continue
			}
			s.logger.Warn("stored setting no longer valid, using default", "key", d.Key)
		}
		if d.Default != nil {
			s.values[d.Key] = d.Default
		} else {
			delete(s.values, d.Key)
		}
	}

	s.descriptors = descs
	s.schemas = schemas
	return nil
}

func (s *settings) loadLocked() error {
	if s.loaded || s.store == nil {
		s.loaded = true
		return nil
	}
	stored, err := s.store.Load(s.id)
	if err != nil {
		return fmt.Errorf("failed to load settings: %w", err)
	}
	maps.Copy(s.values, stored)
	s.loaded = true
	return nil
}

func (s *settings) setHandler(fn func(key string, value any)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onChange = fn
}

// Get implements plugin.Settings.
func (s *settings) Get(key string) (any, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.values[key]
	return v, ok
}

// All implements plugin.Settings.
func (s *settings) All() map[string]any {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.loadLocked(); err != nil {
		s.logger.Warn("failed to load settings", "error", err)
	}
	return maps.Clone(s.values)
}

// Descriptors returns the last declared descriptors.
func (s *settings) Descriptors() []plugin.SettingDescriptor {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]plugin.SettingDescriptor(nil), s.descriptors...)
}

// Set implements plugin.Settings. Only declared keys are accepted.
func (s *settings) Set(key string, value any) error {
	s.mu.Lock()
	schema, ok := s.schemas[key]
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("%w: %q", ErrUnknownSetting, key)
	}

	normalized, err := normalize(value)
	if err != nil {
		s.mu.Unlock()
		return fmt.Errorf("%w: %s: %v", ErrInvalidSetting, key, err)
	}
	if err := validateValue(schema, normalized); err != nil {
		s.mu.Unlock()
		return fmt.Errorf("%w: %s: %v", ErrInvalidSetting, key, err)
	}

	if err := s.loadLocked(); err != nil {
		s.mu.Unlock()
		return err
	}
	s.values[key] = normalized
	snapshot := maps.Clone(s.values)
	handler := s.onChange
	s.mu.Unlock()

	if s.store != nil {
		if err := s.store.Save(s.id, snapshot); err != nil {
			return fmt.Errorf("failed to persist setting %s: %w", key, err)
		}
	}

	if handler != nil {
		handler(key, normalized)
	}
	return nil
}

func compileSetting(pluginID string, d plugin.SettingDescriptor) (*jsonschema.Schema, error) {
	b, err := json.Marshal(d.Schema())
	if err != nil {
		return nil, fmt.Errorf("setting %q: failed to encode schema: %w", d.Key, err)
	}

	url := fmt.Sprintf("warden://%s/settings/%s.json", pluginID, d.Key)
	compiler := jsonschema.NewCompiler()
	compiler.Draft = jsonschema.Draft2020
	if err := compiler.AddResource(url, bytes.NewReader(b)); err != nil {
		return nil, fmt.Errorf("setting %q: failed to add schema: %w", d.Key, err)
	}
	schema, err := compiler.Compile(url)
	if err != nil {
		return nil, fmt.Errorf("setting %q: invalid constraints: %w", d.Key, err)
	}
	return schema, nil
}

func validateValue(schema *jsonschema.Schema, v any) error {
	normalized, err := normalize(v)
	if err != nil {
		return err
	}
	return schema.Validate(normalized)
}

// normalize round-trips v through JSON so typed Go values validate like decoded ones.
func normalize(v any) (any, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var out any
	if err := json.Unmarshal(b, &out); err != nil {
		return nil, err
	}
	return out, nil
}
