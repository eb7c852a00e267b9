package capabilities

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/warden-dev/warden/internal/domain/capabilities"
)

func TestTerminalPrompter_IsInteractive(t *testing.T) {
	// Reads os.Stdin; not parallel.
	assert.IsType(t, true, NewTerminalPrompter().IsInteractive())
}

func TestDescribe(t *testing.T) {
	t.Parallel()

	tests := []struct {
		capability capabilities.Capability
		want       string
	}{
		{capabilities.Capability{Kind: capabilities.KindFS, Pattern: "read:/v/memory-store"}, "Read vault files under /v/memory-store"},
		{capabilities.Capability{Kind: capabilities.KindFS, Pattern: "write:/v/plugin-private/notes"}, "Write vault files under /v/plugin-private/notes"},
		{capabilities.Capability{Kind: capabilities.KindNetwork, Pattern: "*"}, "Connect to any host"},
		{capabilities.Capability{Kind: capabilities.KindNetwork, Pattern: "api.example.com"}, "Connect to api.example.com"},
		{capabilities.Capability{Kind: capabilities.KindEnv, Pattern: "*"}, "Read environment variables"},
		{capabilities.Capability{Kind: capabilities.KindExec, Pattern: "*"}, "Run subprocesses"},
		{capabilities.Capability{Kind: "custom", Pattern: "x"}, "custom:x"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, Describe(tt.capability))
		})
	}
}

func TestSummary(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "No capabilities requested.", Summary(nil))

	got := Summary([]capabilities.Capability{
		{Kind: capabilities.KindNetwork, Pattern: "*"},
		{Kind: capabilities.KindFS, Pattern: "read:/v/memory-store"},
	})
	assert.Equal(t, "This plugin will be able to:\n"+
		"  - Connect to any host [high risk]\n"+
		"  - Read vault files under /v/memory-store [low risk]", got)
}
