// Package redaction scrubs secrets from plugin output before it reaches logs
// or connected clients.
package redaction

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"regexp"
	"slices"
	"strings"

	"github.com/spf13/viper"
	"github.com/zricethezav/gitleaks/v8/config"
	"github.com/zricethezav/gitleaks/v8/detect"
)

// Placeholder replaces a secret when hash mode is off.
const Placeholder = "[REDACTED]"

// DefaultKeys are field names whose values are always masked.
var DefaultKeys = []string{"password", "passwd", "secret", "token", "api_key", "apikey", "authorization"}

// builtinPatterns are high-confidence secret shapes checked even without gitleaks.
var builtinPatterns = []string{
	`\b((?:AKIA|ABIA|ACCA|ASIA)[0-9A-Z]{16})\b`,
	`-----BEGIN [A-Z ]+ PRIVATE KEY-----`,
	`gh[pousr]_[A-Za-z0-9_]{36,255}`,
	`xox[baprs]-([0-9a-zA-Z]{10,48})?`,
}

// Config configures a Redactor.
type Config struct {
	// Patterns are extra regular expressions to scrub.
	Patterns []string
	// Keys are extra field names masked wholesale in structured data and log attributes.
	Keys []string
	// HashMode replaces secrets with a keyed hash so repeats can be correlated.
	HashMode bool
	// Salt keys the hash.
	Salt string
	// DisableGitleaks skips the gitleaks rule set and uses only regular expressions.
	DisableGitleaks bool
}

// Redactor is immutable after New and safe for concurrent use.
type Redactor struct {
	patterns []*regexp.Regexp
	keys     []string
	hashMode bool
	salt     string
	detector *detect.Detector
}

// New compiles cfg. A gitleaks rule set that fails to load leaves the
// redactor on regular expressions alone.
func New(cfg Config) (*Redactor, error) {
	r := &Redactor{
		hashMode: cfg.HashMode,
		salt:     cfg.Salt,
		patterns: make([]*regexp.Regexp, 0, len(builtinPatterns)+len(cfg.Patterns)),
	}

	for _, k := range slices.Concat(DefaultKeys, cfg.Keys) {
		r.keys = append(r.keys, strings.ToLower(k))
	}

	for _, p := range builtinPatterns {
		r.patterns = append(r.patterns, regexp.MustCompile(p))
	}
	for _, p := range cfg.Patterns {
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("invalid redaction pattern %q: %w", p, err)
		}
		r.patterns = append(r.patterns, re)
	}

	if !cfg.DisableGitleaks {
		if d, err := newGitleaksDetector(); err == nil {
			r.detector = d
		}
	}
	return r, nil
}

// newGitleaksDetector loads the rule set gitleaks ships with.
func newGitleaksDetector() (*detect.Detector, error) {
	v := viper.New()
	v.SetConfigType("toml")
	if err := v.ReadConfig(strings.NewReader(config.DefaultConfig)); err != nil {
		return nil, fmt.Errorf("failed to read gitleaks config: %w", err)
	}

	var vc config.ViperConfig
	if err := v.Unmarshal(&vc); err != nil {
		return nil, fmt.Errorf("failed to unmarshal gitleaks config: %w", err)
	}
	cfg, err := vc.Translate()
	if err != nil {
		return nil, fmt.Errorf("failed to translate gitleaks config: %w", err)
	}
	return detect.NewDetector(cfg), nil
}

// ScrubString replaces every detected secret in s.
func (r *Redactor) ScrubString(s string) string {
	if s == "" {
		return ""
	}

	if r.detector != nil {
		for _, f := range r.detector.Detect(detect.Fragment{Raw: s}) {
			if f.Secret != "" {
				s = strings.ReplaceAll(s, f.Secret, r.mask(f.Secret))
			}
		}
	}
	for _, re := range r.patterns {
		s = re.ReplaceAllStringFunc(s, r.mask)
	}
	return s
}

// SensitiveKey reports whether values stored under key are masked wholesale.
// Matching ignores case and accepts suffixes such as "github_token".
func (r *Redactor) SensitiveKey(key string) bool {
	key = strings.ToLower(key)
	for _, k := range r.keys {
		if key == k || strings.HasSuffix(key, "_"+k) || strings.HasSuffix(key, "-"+k) || strings.HasSuffix(key, "."+k) {
			return true
		}
	}
	return false
}

// Redact returns a copy of v with secrets scrubbed. Strings under a sensitive
// key are masked entirely. Only JSON-shaped values are walked.
func (r *Redactor) Redact(v any) any {
	switch t := v.(type) {
	case string:
		return r.ScrubString(t)
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			if s, ok := val.(string); ok && r.SensitiveKey(k) {
				out[k] = r.mask(s)
				continue
			}
			out[k] = r.Redact(val)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, val := range t {
			out[i] = r.Redact(val)
		}
		return out
	default:
		return v
	}
}

func (r *Redactor) mask(secret string) string {
	if !r.hashMode {
		return Placeholder
	}
	mac := hmac.New(sha256.New, []byte(r.salt))
	mac.Write([]byte(secret))
	return "[hmac:" + hex.EncodeToString(mac.Sum(nil))[:16] + "]"
}
