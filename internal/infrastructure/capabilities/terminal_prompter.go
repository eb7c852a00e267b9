package capabilities

import (
	"fmt"
	"os"
	"strings"

	"github.com/charmbracelet/huh"

	"github.com/warden-dev/warden/internal/application/ports"
	"github.com/warden-dev/warden/internal/domain/capabilities"
	"github.com/warden-dev/warden/internal/domain/manifest"
)

// TerminalPrompter asks for approval with a huh confirm form.
type TerminalPrompter struct{}

var _ ports.ApprovalPrompter = (*TerminalPrompter)(nil)

// NewTerminalPrompter creates a TerminalPrompter.
func NewTerminalPrompter() *TerminalPrompter {
	return &TerminalPrompter{}
}

// IsInteractive reports whether stdin is a terminal.
func (p *TerminalPrompter) IsInteractive() bool {
	info, err := os.Stdin.Stat()
	if err != nil {
		return false
	}
	return info.Mode()&os.ModeCharDevice != 0
}

// ConfirmPlugin shows the plugin and its capabilities and returns the answer.
// Denial is the default.
func (p *TerminalPrompter) ConfirmPlugin(m *manifest.Manifest, caps []capabilities.Capability) (bool, error) {
	var approved bool
	err := huh.NewConfirm().
		Title(fmt.Sprintf("Approve %s %s (%s)?", m.Name, m.Version, m.Tier)).
		Description(Summary(caps)).
		Affirmative("Approve").
		Negative("Deny").
		Value(&approved).
		Run()
	if err != nil {
		return false, fmt.Errorf("approval prompt failed: %w", err)
	}
	return approved, nil
}

// Summary renders caps one per line with their risk, highest first in input order.
func Summary(caps []capabilities.Capability) string {
	if len(caps) == 0 {
		return "No capabilities requested."
	}
	var b strings.Builder
	b.WriteString("This plugin will be able to:\n")
	for _, c := range caps {
		fmt.Fprintf(&b, "  - %s [%s risk]\n", Describe(c), c.RiskLevel())
	}
	return strings.TrimRight(b.String(), "\n")
}

// Describe returns a human-readable description of a capability.
func Describe(c capabilities.Capability) string {
	switch c.Kind {
	case capabilities.KindFS:
		if path, ok := strings.CutPrefix(c.Pattern, string(capabilities.ModeRead)+":"); ok {
			return "Read vault files under " + path
		}
		if path, ok := strings.CutPrefix(c.Pattern, string(capabilities.ModeWrite)+":"); ok {
			return "Write vault files under " + path
		}
		return "Vault: " + c.Pattern
	case capabilities.KindNetwork:
		if c.Pattern == capabilities.AnyHost {
			return "Connect to any host"
		}
		return "Connect to " + c.Pattern
	case capabilities.KindEnv:
		return "Read environment variables"
	case capabilities.KindExec:
		return "Run subprocesses"
	default:
		return c.String()
	}
}
