package activity

import (
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGreedyTruncator(t *testing.T) {
	t.Parallel()

	long := strings.Repeat("x", 200)
	tests := []struct {
		name      string
		data      map[string]any
		limit     int
		truncated bool
		check     func(t *testing.T, out map[string]any)
	}{
		{
			name:  "disabled",
			data:  map[string]any{"body": long},
			limit: 0,
		},
		{
			name:  "fits",
			data:  map[string]any{"tabId": "t1"},
			limit: 100,
		},
		{
			name:      "long string keeps head",
			data:      map[string]any{"body": long, "tabId": "t1"},
			limit:     100,
			truncated: true,
			check: func(t *testing.T, out map[string]any) {
				assert.Equal(t, strings.Repeat("x", 50)+TruncatedMarker, out["body"])
				assert.Equal(t, "t1", out["tabId"])
			},
		},
		{
			name:      "large object replaced",
			data:      map[string]any{"items": []any{long, long}},
			limit:     100,
			truncated: true,
			check: func(t *testing.T, out map[string]any) {
				assert.Equal(t, map[string]string{"_truncated": "value exceeded size limit", "_type": "[]interface {}"}, out["items"])
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			out, meta, err := GreedyTruncator{}.Truncate(tt.data, tt.limit)
			require.NoError(t, err)
			if !tt.truncated {
				assert.Nil(t, meta)
				assert.Equal(t, tt.data, out)
				return
			}
			require.NotNil(t, meta)
			assert.True(t, meta.Truncated)
			assert.Equal(t, tt.limit, meta.TruncatedAt)
			assert.Greater(t, meta.OriginalSize, tt.limit)
			tt.check(t, out)
		})
	}
}

func TestGreedyTruncator_DoesNotMutateInput(t *testing.T) {
	t.Parallel()

	long := strings.Repeat("y", 300)
	data := map[string]any{"body": long}
	_, _, err := GreedyTruncator{}.Truncate(data, 50)
	require.NoError(t, err)
	assert.Equal(t, long, data["body"])
}

func TestNewRecord(t *testing.T) {
	t.Parallel()

	at := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	r := NewRecord("plugin.enabled", at, map[string]any{"pluginId": "notes"})
	assert.NotEqual(t, uuid.Nil, r.ID)
	assert.Equal(t, at, r.Time)

	assert.False(t, NewRecord("x", time.Time{}, nil).Time.IsZero())
}
