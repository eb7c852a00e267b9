// Package system loads the process-wide configuration (~/.warden/config.yaml).
package system

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/goccy/go-yaml"

	apperrors "github.com/warden-dev/warden/internal/application/errors"
	"github.com/warden-dev/warden/internal/domain/capabilities"
)

// DirName is the per-user directory holding config and state.
const DirName = ".warden"

// Config is the global configuration file.
type Config struct {
	VaultBase  string `yaml:"vault_base"`
	PluginRoot string `yaml:"plugin_root"`
	StateDir   string `yaml:"state_dir"`
	// Ephemeral keeps settings, approvals and the vault in memory.
	Ephemeral       bool `yaml:"ephemeral"`
	RequireApproval bool `yaml:"require_approval"`
	// MailboxSize bounds each plugin's pending events. 0 means the host default.
	MailboxSize int `yaml:"mailbox_size"`

	Bridge    BridgeConfig    `yaml:"bridge"`
	Wasm      WasmConfig      `yaml:"wasm"`
	Scripts   ScriptConfig    `yaml:"scripts"`
	Activity  ActivityConfig  `yaml:"activity"`
	Redaction RedactionConfig `yaml:"redaction"`
	Security  SecurityConfig  `yaml:"security"`
}

// BridgeConfig configures the WebSocket listener.
type BridgeConfig struct {
	Addr string `yaml:"addr"`
	// AllowedOrigins lists accepted Origin headers. Empty allows all.
	AllowedOrigins  []string `yaml:"allowed_origins"`
	MaxMessageBytes int64    `yaml:"max_message_bytes"`
}

// WasmConfig configures the WebAssembly runtime.
type WasmConfig struct {
	// MemoryLimitMB caps guest memory. 0 is the runtime default, -1 unlimited.
	MemoryLimitMB int    `yaml:"memory_limit_mb"`
	CacheDir      string `yaml:"cache_dir"`
}

// ScriptConfig configures the JavaScript and Lua runtimes.
type ScriptConfig struct {
	CallTimeout time.Duration `yaml:"call_timeout"`
}

// ActivityConfig configures the built-in activity plugin.
type ActivityConfig struct {
	Enabled      bool `yaml:"enabled"`
	History      int  `yaml:"history"`
	MaxDataBytes int  `yaml:"max_data_bytes"`
}

// RedactionConfig configures how secrets are scrubbed from plugin output.
type RedactionConfig struct {
	HashMode        HashModeConfig `yaml:"hash_mode"`
	Patterns        []string       `yaml:"patterns"`
	Keys            []string       `yaml:"keys"`
	DisableGitleaks bool           `yaml:"disable_gitleaks"`
}

// HashModeConfig controls hash-based redaction.
type HashModeConfig struct {
	Salt    string `yaml:"salt"`
	Enabled bool   `yaml:"enabled"`
}

// SecurityConfig configures how broad capabilities are treated at approval time.
type SecurityConfig struct {
	// Level is "strict", "standard" or "permissive".
	// - strict: refuse to approve broad capabilities
	// - standard: warn about broad capabilities (default)
	// - permissive: approve without warnings
	Level string `yaml:"level"`
}

// SecurityLevel represents the security enforcement level.
type SecurityLevel string

const (
	// SecurityLevelStrict refuses broad capabilities.
	SecurityLevelStrict SecurityLevel = "strict"

	// SecurityLevelStandard warns about broad capabilities.
	SecurityLevelStandard SecurityLevel = "standard"

	// SecurityLevelPermissive allows all capabilities without warnings.
	SecurityLevelPermissive SecurityLevel = "permissive"
)

// GetSecurityLevel returns the configured level, defaulting to standard.
func (c *SecurityConfig) GetSecurityLevel() SecurityLevel {
	switch SecurityLevel(c.Level) {
	case SecurityLevelStrict, SecurityLevelPermissive:
		return SecurityLevel(c.Level)
	default:
		return SecurityLevelStandard
	}
}

// BroadCapabilities returns the capabilities the level objects to.
func (c *SecurityConfig) BroadCapabilities(caps []capabilities.Capability) []capabilities.Capability {
	if c.GetSecurityLevel() == SecurityLevelPermissive {
		return nil
	}
	var broad []capabilities.Capability
	for _, c := range caps {
		if c.IsBroad() {
			broad = append(broad, c)
		}
	}
	return broad
}

// Default values.
const (
	DefaultScriptTimeout   = 5 * time.Second
	DefaultActivityHistory = 200
	DefaultActivityBytes   = 4096
)

// HomeDir returns ~/.warden, or .warden when the home directory is unknown.
func HomeDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return DirName
	}
	return filepath.Join(home, DirName)
}

// DefaultPath returns ~/.warden/config.yaml.
func DefaultPath() string {
	return filepath.Join(HomeDir(), "config.yaml")
}

// DefaultConfig returns a Config with safe defaults for all fields.
func DefaultConfig() *Config {
	cfg := &Config{
		RequireApproval: true,
		Activity:        ActivityConfig{Enabled: true},
		Redaction: RedactionConfig{
			Patterns: []string{},
			Keys:     []string{},
		},
		Security: SecurityConfig{Level: string(SecurityLevelStandard)},
	}
	cfg.ApplyDefaults()
	return cfg
}

// ApplyDefaults fills every zero field that has a default. Directories left
// empty resolve under HomeDir.
func (c *Config) ApplyDefaults() {
	home := HomeDir()
	if c.VaultBase == "" {
		c.VaultBase = filepath.Join(home, "vault")
	}
	if c.PluginRoot == "" {
		c.PluginRoot = filepath.Join(home, "plugins")
	}
	if c.StateDir == "" {
		c.StateDir = filepath.Join(home, "state")
	}
	if c.Wasm.CacheDir == "" {
		c.Wasm.CacheDir = filepath.Join(home, "cache", "wasm")
	}
	c.VaultBase = absPath(c.VaultBase)
	c.PluginRoot = absPath(c.PluginRoot)
	c.StateDir = absPath(c.StateDir)
	if c.Scripts.CallTimeout <= 0 {
		c.Scripts.CallTimeout = DefaultScriptTimeout
	}
	if c.Activity.History <= 0 {
		c.Activity.History = DefaultActivityHistory
	}
	if c.Activity.MaxDataBytes <= 0 {
		c.Activity.MaxDataBytes = DefaultActivityBytes
	}
	if c.Security.Level == "" {
		c.Security.Level = string(SecurityLevelStandard)
	}
}

// Validate rejects values no default can repair.
func (c *Config) Validate() error {
	switch SecurityLevel(c.Security.Level) {
	case SecurityLevelStrict, SecurityLevelStandard, SecurityLevelPermissive:
	default:
		return apperrors.NewConfigurationError("security.level",
			fmt.Sprintf("unknown level %q (want strict, standard or permissive)", c.Security.Level), nil)
	}
	if c.Wasm.MemoryLimitMB < -1 {
		return apperrors.NewConfigurationError("wasm.memory_limit_mb",
			fmt.Sprintf("%d is invalid (must be >= -1)", c.Wasm.MemoryLimitMB), nil)
	}
	if c.MailboxSize < 0 {
		return apperrors.NewConfigurationError("mailbox_size", "must not be negative", nil)
	}
	if c.Ephemeral {
		return nil
	}
	if absPath(c.VaultBase) == absPath(c.StateDir) {
		return apperrors.NewConfigurationError("vault_base", "must differ from state_dir", nil)
	}
	return nil
}

// absPath cleans path and anchors it at the working directory when relative.
func absPath(path string) string {
	path = filepath.Clean(path)
	if abs, err := filepath.Abs(path); err == nil {
		return abs
	}
	return path
}

// SettingsDir is where per-plugin setting files live.
func (c *Config) SettingsDir() string {
	return filepath.Join(c.StateDir, "settings")
}

// ApprovalsPath is the approval store file.
func (c *Config) ApprovalsPath() string {
	return filepath.Join(c.StateDir, "approvals.yaml")
}

// ConfigLoader loads system configuration from disk.
type ConfigLoader struct{}

// NewConfigLoader creates a new system config loader.
func NewConfigLoader() *ConfigLoader {
	return &ConfigLoader{}
}

// Load reads the configuration at path. A missing file yields DefaultConfig.
// Keys absent from the file keep their defaults.
func (l *ConfigLoader) Load(path string) (*Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return DefaultConfig(), nil
	}

	//nolint:gosec // G304: path is the user-provided config file
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read system config: %w", err)
	}

	config := DefaultConfig()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse system config: %w", err)
	}
	config.ApplyDefaults()
	return config, nil
}
