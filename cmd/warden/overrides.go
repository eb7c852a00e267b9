package main

import (
	"github.com/spf13/viper"

	"github.com/warden-dev/warden/internal/infrastructure/system"
)

// applyOverrides copies environment values viper knows about onto cfg.
// The config file itself is parsed by system.ConfigLoader; viper only layers
// WARDEN_* variables on top.
func applyOverrides(v *viper.Viper, cfg *system.Config) {
	strs := map[string]*string{
		"vault_base":               &cfg.VaultBase,
		"plugin_root":              &cfg.PluginRoot,
		"state_dir":                &cfg.StateDir,
		"bridge.addr":              &cfg.Bridge.Addr,
		"wasm.cache_dir":           &cfg.Wasm.CacheDir,
		"security.level":           &cfg.Security.Level,
		"redaction.hash_mode.salt": &cfg.Redaction.HashMode.Salt,
	}
	for key, dst := range strs {
		if v.IsSet(key) {
			*dst = v.GetString(key)
		}
	}

	bools := map[string]*bool{
		"ephemeral":                   &cfg.Ephemeral,
		"require_approval":            &cfg.RequireApproval,
		"activity.enabled":            &cfg.Activity.Enabled,
		"redaction.hash_mode.enabled": &cfg.Redaction.HashMode.Enabled,
		"redaction.disable_gitleaks":  &cfg.Redaction.DisableGitleaks,
	}
	for key, dst := range bools {
		if v.IsSet(key) {
			*dst = v.GetBool(key)
		}
	}

	if v.IsSet("wasm.memory_limit_mb") {
		cfg.Wasm.MemoryLimitMB = v.GetInt("wasm.memory_limit_mb")
	}
	if v.IsSet("mailbox_size") {
		cfg.MailboxSize = v.GetInt("mailbox_size")
	}
	if v.IsSet("scripts.call_timeout") {
		cfg.Scripts.CallTimeout = v.GetDuration("scripts.call_timeout")
	}
	if v.IsSet("bridge.allowed_origins") {
		cfg.Bridge.AllowedOrigins = v.GetStringSlice("bridge.allowed_origins")
	}
}
