package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warden-dev/warden/internal/domain/manifest"
)

func TestScaffold(t *testing.T) {
	t.Parallel()

	parent := t.TempDir()
	target, err := scaffold(parent, "my-panel", scaffoldOptions{lang: "lua", tier: 2, net: []string{"api.example.com"}})
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(parent, "my-panel"), target)

	m, err := manifest.Load(filepath.Join(target, "manifest.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "My Panel", m.Name)
	assert.Equal(t, manifest.TierVerified, m.Tier)
	assert.FileExists(t, m.EntryPath())
	assert.FileExists(t, filepath.Join(target, "README.md"))

	_, err = scaffold(parent, "my-panel", scaffoldOptions{lang: "lua", tier: 2})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already exists")
}

func TestScaffold_Invalid(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		id   string
		opts scaffoldOptions
		want string
	}{
		{name: "bad id", id: "My Panel", opts: scaffoldOptions{lang: "js", tier: 1}, want: "invalid plugin id"},
		{name: "bad tier", id: "ok", opts: scaffoldOptions{lang: "js", tier: 4}, want: "invalid tier"},
		{name: "bad lang", id: "ok", opts: scaffoldOptions{lang: "rust", tier: 1}, want: "unsupported language"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			parent := t.TempDir()
			_, err := scaffold(parent, tt.id, tt.opts)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)

			entries, err := os.ReadDir(parent)
			require.NoError(t, err)
			assert.Empty(t, entries)
		})
	}
}

func TestTitleFromID(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "My Panel", titleFromID("my-panel"))
	assert.Equal(t, "Notes V2", titleFromID("notes.v2"))
	assert.Equal(t, "A B C", titleFromID("a_b-c"))
}
