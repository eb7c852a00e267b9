package manifest

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decode(t *testing.T, doc string) any {
	t.Helper()
	var v any
	require.NoError(t, json.Unmarshal([]byte(doc), &v))
	return v
}

func TestCheck(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		doc     string
		wantErr error
		field   string
	}{
		{
			name:    "not an object",
			doc:     `["demo"]`,
			wantErr: ErrNotObject,
		},
		{
			name:    "missing id",
			doc:     `{"name":"Demo","version":"1.0.0","tier":1}`,
			wantErr: ErrMissingField,
			field:   "id",
		},
		{
			name:    "empty name",
			doc:     `{"id":"demo","name":"","version":"1.0.0","tier":1}`,
			wantErr: ErrMissingField,
			field:   "name",
		},
		{
			name:    "numeric version",
			doc:     `{"id":"demo","name":"Demo","version":1,"tier":1}`,
			wantErr: ErrMissingField,
			field:   "version",
		},
		{
			name:    "tier out of range",
			doc:     `{"id":"demo","name":"Demo","version":"1.0.0","tier":4}`,
			wantErr: ErrInvalidTier,
			field:   "tier",
		},
		{
			name:    "fractional tier",
			doc:     `{"id":"demo","name":"Demo","version":"1.0.0","tier":2.5}`,
			wantErr: ErrInvalidTier,
			field:   "tier",
		},
		{
			name:    "string tier",
			doc:     `{"id":"demo","name":"Demo","version":"1.0.0","tier":"2"}`,
			wantErr: ErrInvalidTier,
			field:   "tier",
		},
		{
			name:    "tier 2 without permissions",
			doc:     `{"id":"demo","name":"Demo","version":"1.0.0","tier":2}`,
			wantErr: ErrPermissionsRequired,
			field:   "permissions",
		},
		{
			name:    "tier 3 with null permissions",
			doc:     `{"id":"demo","name":"Demo","version":"1.0.0","tier":3,"permissions":null}`,
			wantErr: ErrPermissionsRequired,
			field:   "permissions",
		},
		{
			name:    "tier 1 with permissions",
			doc:     `{"id":"demo","name":"Demo","version":"1.0.0","tier":1,"permissions":{"read":["memory-store"]}}`,
			wantErr: ErrPermissionsForbidden,
			field:   "permissions",
		},
		{
			name: "tier 1 without permissions",
			doc:  `{"id":"demo","name":"Demo","version":"1.0.0","tier":1}`,
		},
		{
			name: "tier 2 with any permissions shape",
			doc:  `{"id":"demo","name":"Demo","version":"1.0.0","tier":2,"permissions":"anything"}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			err := Check(decode(t, tt.doc))
			if tt.wantErr == nil {
				assert.NoError(t, err)
				return
			}

			require.Error(t, err)
			assert.ErrorIs(t, err, tt.wantErr)

			var verr *ValidationError
			require.True(t, errors.As(err, &verr))
			assert.Equal(t, tt.field, verr.Field)
		})
	}
}

func TestValidate_RejectsTierOneWithPermissions(t *testing.T) {
	t.Parallel()

	raw := map[string]any{
		"id":          "demo",
		"name":        "Demo",
		"version":     "1.0.0",
		"tier":        1,
		"permissions": map[string]any{"read": []any{"memory-store"}},
	}
	assert.False(t, Validate(raw))
}

func TestValidate_NeverPanics(t *testing.T) {
	t.Parallel()

	inputs := []any{nil, 42, "manifest", []any{}, map[string]any{}, map[string]any{"tier": nil}}
	for _, in := range inputs {
		assert.NotPanics(t, func() { Validate(in) })
		assert.False(t, Validate(in))
	}
}

func TestIntegral(t *testing.T) {
	t.Parallel()

	for _, v := range []any{2, int64(2), int32(2), uint64(2), float64(2), json.Number("2")} {
		n, ok := integral(v)
		assert.True(t, ok, "%T", v)
		assert.Equal(t, int64(2), n)
	}

	for _, v := range []any{2.1, "2", json.Number("2.5"), true} {
		_, ok := integral(v)
		assert.False(t, ok, "%v", v)
	}
}

func TestParse_YAML(t *testing.T) {
	t.Parallel()

	doc := `
id: notes
name: Notes
version: 1.2.0
tier: 2
entryPoint: plugin.wasm
eventFilter: type == "output"
permissions:
  read: [memory-store, plugin-private]
  write: [plugin-private/cache]
  net: [api.example.com]
  env: true
`
	m, err := Parse([]byte(doc), FormatYAML)
	require.NoError(t, err)

	assert.Equal(t, "notes", m.ID)
	assert.Equal(t, TierVerified, m.Tier)
	require.NotNil(t, m.Permissions)
	assert.Equal(t, []string{"memory-store", "plugin-private"}, m.Permissions.Read)
	assert.Equal(t, []string{"plugin-private/cache"}, m.Permissions.Write)
	assert.Equal(t, []string{"api.example.com"}, m.Permissions.Net)
	assert.True(t, m.Permissions.Env)
	assert.Equal(t, ".wasm", m.EntryKind())
	assert.Equal(t, `type == "output"`, m.EventFilter)
}

func TestParse_Rejections(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		doc     string
		wantErr error
	}{
		{"invalid json", `{`, nil},
		{"invariant violation", `{"id":"demo","name":"Demo","version":"1.0.0","tier":2}`, ErrPermissionsRequired},
		{"uppercase id", `{"id":"Demo","name":"Demo","version":"1.0.0","tier":1}`, ErrInvalidID},
		{"non semver version", `{"id":"demo","name":"Demo","version":"latest","tier":1}`, ErrInvalidVersion},
		{"bad runtime floor", `{"id":"demo","name":"Demo","version":"1.0.0","tier":1,"minRuntimeVersion":"soon"}`, ErrInvalidVersion},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			_, err := Parse([]byte(tt.doc), FormatJSON)
			require.Error(t, err)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			}
		})
	}
}

func TestLoad(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "manifest.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"id":"demo","name":"Demo","version":"0.1.0","tier":1,"entryPoint":"index.js"}`), 0o600))

	m, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, dir, m.Dir())
	assert.Equal(t, filepath.Join(dir, "index.js"), m.EntryPath())
	assert.False(t, m.HasPermissions())

	_, err = Load(filepath.Join(dir, "manifest.toml"))
	assert.ErrorIs(t, err, ErrUnsupportedFormat)
}

func TestCheckCompatibility(t *testing.T) {
	t.Parallel()

	m := &Manifest{ID: "demo", MinRuntimeVersion: "1.2.0"}

	assert.NoError(t, m.CheckCompatibility("1.2.0"))
	assert.NoError(t, m.CheckCompatibility("2.0.0"))
	assert.NoError(t, m.CheckCompatibility("dev"))
	assert.ErrorIs(t, m.CheckCompatibility("1.1.9"), ErrIncompatibleRuntime)

	none := &Manifest{ID: "demo"}
	assert.NoError(t, none.CheckCompatibility("0.0.1"))
}
