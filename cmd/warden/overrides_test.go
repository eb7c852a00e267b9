package main

import (
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"

	"github.com/warden-dev/warden/internal/infrastructure/system"
)

func TestApplyOverrides(t *testing.T) {
	t.Parallel()

	v := viper.New()
	v.Set("vault_base", "/tmp/vault")
	v.Set("bridge.addr", "127.0.0.1:9999")
	v.Set("ephemeral", true)
	v.Set("require_approval", false)
	v.Set("wasm.memory_limit_mb", 128)
	v.Set("scripts.call_timeout", "2s")
	v.Set("bridge.allowed_origins", []string{"http://localhost:3000"})

	cfg := system.DefaultConfig()
	pluginRoot := cfg.PluginRoot
	applyOverrides(v, cfg)

	assert.Equal(t, "/tmp/vault", cfg.VaultBase)
	assert.Equal(t, "127.0.0.1:9999", cfg.Bridge.Addr)
	assert.True(t, cfg.Ephemeral)
	assert.False(t, cfg.RequireApproval)
	assert.Equal(t, 128, cfg.Wasm.MemoryLimitMB)
	assert.Equal(t, 2*time.Second, cfg.Scripts.CallTimeout)
	assert.Equal(t, []string{"http://localhost:3000"}, cfg.Bridge.AllowedOrigins)
	assert.Equal(t, pluginRoot, cfg.PluginRoot, "unset keys keep their value")
}

func TestApplyOverrides_NothingSet(t *testing.T) {
	t.Parallel()

	cfg := system.DefaultConfig()
	want := *cfg
	applyOverrides(viper.New(), cfg)
	assert.Equal(t, want, *cfg)
}

func TestCommandTree(t *testing.T) {
	t.Parallel()

	for _, path := range [][]string{
		{"serve"},
		{"plugins", "list"},
		{"plugins", "inspect"},
		{"plugins", "approve"},
		{"plugins", "revoke"},
		{"plugins", "check"},
		{"plugins", "new"},
		{"schema", "manifest"},
		{"version"},
	} {
		cmd, rest, err := rootCmd.Find(path)
		if assert.NoError(t, err, path) {
			assert.Empty(t, rest)
			assert.Equal(t, path[len(path)-1], cmd.Name())
		}
	}
}
