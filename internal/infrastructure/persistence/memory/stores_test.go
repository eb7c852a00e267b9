package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warden-dev/warden/internal/domain/capabilities"
)

func TestSettingsStore_CopiesValues(t *testing.T) {
	t.Parallel()

	s := NewSettingsStore()
	empty, err := s.Load("notes")
	require.NoError(t, err)
	assert.NotNil(t, empty)
	assert.Empty(t, empty)

	values := map[string]any{"theme": "dark"}
	require.NoError(t, s.Save("notes", values))
	values["theme"] = "light"

	got, err := s.Load("notes")
	require.NoError(t, err)
	assert.Equal(t, "dark", got["theme"])

	got["theme"] = "blue"
	again, err := s.Load("notes")
	require.NoError(t, err)
	assert.Equal(t, "dark", again["theme"])
}

func TestApprovalStore(t *testing.T) {
	t.Parallel()

	net := capabilities.Capability{Kind: capabilities.KindNetwork, Pattern: "api.example.com"}
	env := capabilities.Capability{Kind: capabilities.KindEnv, Pattern: "*"}

	s := NewApprovalStore()
	require.NoError(t, s.Approve("notes", "1.0.0", []capabilities.Capability{net}))

	ok, err := s.IsApproved("notes", "1.0.0", []capabilities.Capability{net})
	require.NoError(t, err)
	assert.True(t, ok)

	ok, _ = s.IsApproved("notes", "1.0.0", []capabilities.Capability{net, env})
	assert.False(t, ok)

	ok, _ = s.IsApproved("notes", "2.0.0", []capabilities.Capability{net})
	assert.False(t, ok)

	require.NoError(t, s.Revoke("notes"))
	ok, _ = s.IsApproved("notes", "1.0.0", nil)
	assert.False(t, ok)
}

func TestVaultStore(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := NewVaultStore()

	_, err := s.Read(ctx, "/v/memory-store/a.txt")
	require.ErrorIs(t, err, ErrNotFound)

	data := []byte("hello")
	require.NoError(t, s.Write(ctx, "/v/memory-store/a.txt", data))
	data[0] = 'j'

	got, err := s.Read(ctx, "/v/memory-store/a.txt")
	require.NoError(t, err)
	assert.Equal(t, "hello", string(got))

	require.NoError(t, s.Write(ctx, "/v/image-store/b.png", nil))
	got, err = s.Read(ctx, "/v/image-store/b.png")
	require.NoError(t, err)
	assert.Empty(t, got)

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	require.ErrorIs(t, s.Write(cancelled, "/v/x", nil), context.Canceled)
}
