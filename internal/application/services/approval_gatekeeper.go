// Package services holds application workflows that span the host and its stores.
package services

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/warden-dev/warden/internal/application/ports"
	"github.com/warden-dev/warden/internal/domain/capabilities"
	"github.com/warden-dev/warden/internal/domain/manifest"
	"github.com/warden-dev/warden/internal/domain/plugin"
)

// Approval errors.
var (
	ErrDeniedByUser   = errors.New("approval denied by user")
	ErrDeniedByPolicy = errors.New("broad capability denied by strict security policy")
	ErrNonInteractive = errors.New("approval needs an interactive terminal (use --yes to approve without a prompt)")
	ErrUnknownPlugin  = errors.New("plugin not found")
)

// Security levels.
const (
	SecurityStrict     = "strict"
	SecurityStandard   = "standard"
	SecurityPermissive = "permissive"
)

// Outcome says what Approve did.
type Outcome string

// Approval outcomes.
const (
	OutcomeApproved        Outcome = "approved"
	OutcomeAlreadyApproved Outcome = "already-approved"
	OutcomeNotRequired     Outcome = "not-required"
)

// PluginLookup is the part of the host the gatekeeper reads.
type PluginLookup interface {
	Get(id string) (plugin.State, bool)
	Profile(id string) (capabilities.Profile, error)
}

// ApprovalGatekeeper decides whether a plugin's capabilities get approved:
// it applies the security level, prompts when needed and persists the result.
type ApprovalGatekeeper struct {
	plugins       PluginLookup
	store         ports.ApprovalStore
	prompter      ports.ApprovalPrompter
	securityLevel string
	logger        *slog.Logger
}

// NewApprovalGatekeeper creates a gatekeeper.
func NewApprovalGatekeeper(plugins PluginLookup, store ports.ApprovalStore, prompter ports.ApprovalPrompter, securityLevel string, logger *slog.Logger) *ApprovalGatekeeper {
	if logger == nil {
		logger = slog.Default()
	}
	return &ApprovalGatekeeper{
		plugins:       plugins,
		store:         store,
		prompter:      prompter,
		securityLevel: securityLevel,
		logger:        logger,
	}
}

// Approve runs the approval workflow for id. assumeYes skips the prompt but
// not the security policy.
func (g *ApprovalGatekeeper) Approve(id string, assumeYes bool) (Outcome, error) {
	state, ok := g.plugins.Get(id)
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnknownPlugin, id)
	}
	m := state.Manifest
	if m.Tier < manifest.TierVerified {
		return OutcomeNotRequired, nil
	}

	profile, err := g.plugins.Profile(id)
	if err != nil {
		return "", err
	}
	caps := profile.Capabilities()

	approved, err := g.store.IsApproved(m.ID, m.Version, caps)
	if err != nil {
		return "", fmt.Errorf("failed to read approvals: %w", err)
	}
	if approved {
		return OutcomeAlreadyApproved, nil
	}

	prompt, err := g.applyPolicy(m, caps)
	if err != nil {
		return "", err
	}
	if prompt && !assumeYes {
		if err := g.confirm(m, caps); err != nil {
			return "", err
		}
	}

	if err := g.store.Approve(m.ID, m.Version, caps); err != nil {
		return "", fmt.Errorf("failed to save approval: %w", err)
	}
	g.logger.Info("plugin approved", "plugin", m.ID, "version", m.Version, "capabilities", len(caps))
	return OutcomeApproved, nil
}

// Revoke removes the stored approval for id.
func (g *ApprovalGatekeeper) Revoke(id string) error {
	if _, ok := g.plugins.Get(id); !ok {
		return fmt.Errorf("%w: %s", ErrUnknownPlugin, id)
	}
	return g.store.Revoke(id)
}

// applyPolicy reports whether the user must still be asked.
func (g *ApprovalGatekeeper) applyPolicy(m *manifest.Manifest, caps []capabilities.Capability) (bool, error) {
	var broad []capabilities.Capability
	for _, c := range caps {
		if c.IsBroad() {
			broad = append(broad, c)
		}
	}

	switch g.securityLevel {
	case SecurityStrict:
		if len(broad) > 0 {
			for _, c := range broad {
				g.logger.Error("broad capability denied by security policy",
					"level", SecurityStrict,
					"plugin", m.ID,
					"capability", c.String(),
					"risk", c.RiskDescription())
			}
			return false, fmt.Errorf("%w: %s", ErrDeniedByPolicy, broad[0].String())
		}
		return true, nil
	case SecurityPermissive:
		if len(broad) > 0 {
			g.logger.Warn("auto-approving broad capabilities (permissive mode)", "plugin", m.ID, "count", len(broad))
		}
		return false, nil
	default:
		for _, c := range broad {
			g.logger.Warn("plugin requests a broad capability", "plugin", m.ID, "capability", c.String(), "risk", c.RiskDescription())
		}
		return true, nil
	}
}

func (g *ApprovalGatekeeper) confirm(m *manifest.Manifest, caps []capabilities.Capability) error {
	if g.prompter == nil || !g.prompter.IsInteractive() {
		return ErrNonInteractive
	}
	ok, err := g.prompter.ConfirmPlugin(m, caps)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: %s", ErrDeniedByUser, m.ID)
	}
	return nil
}
