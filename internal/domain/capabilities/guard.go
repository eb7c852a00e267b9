package capabilities

import (
	"net"
	"path/filepath"
	"slices"
	"strings"

	"github.com/warden-dev/warden/internal/domain/manifest"
)

// Guard answers capability questions for one plugin. It is immutable and safe
// for concurrent use.
type Guard struct {
	id    string
	tier  manifest.Tier
	perms *manifest.Permissions
	base  string
}

// NewGuard binds a guard to a validated manifest and the vault base directory.
func NewGuard(m *manifest.Manifest, vaultBase string) *Guard {
	base := filepath.Clean(vaultBase)
	if abs, err := filepath.Abs(base); err == nil {
		base = abs
	}

	g := &Guard{id: m.ID, tier: m.Tier, base: base}
	if m.Permissions != nil {
		p := *m.Permissions
		p.Read = slices.Clone(p.Read)
		p.Write = slices.Clone(p.Write)
		p.Net = slices.Clone(p.Net)
		g.perms = &p
	}
	return g
}

// Tier returns the plugin's tier.
func (g *Guard) Tier() manifest.Tier { return g.tier }

// VaultBase returns the absolute vault base directory.
func (g *Guard) VaultBase() string { return g.base }

// ResolveProfile derives the capability profile. Tier 1 and tier 2/3 manifests
// without permissions get the deny-all profile. Otherwise subprocess access
// follows the tier alone.
func (g *Guard) ResolveProfile() Profile {
	if g.tier == manifest.TierSandboxed || !g.tier.Valid() || g.perms == nil {
		return DenyAll(g.tier)
	}

	p := DenyAll(g.tier)
	p.Subprocess = g.tier == manifest.TierSystem
	p.Read = g.resolvePaths(g.perms.Read)
	p.Write = g.resolvePaths(g.perms.Write)
	p.Net = resolveHosts(g.perms.Net)
	p.Env = g.perms.Env
	return p
}

func (g *Guard) resolvePaths(entries []string) []string {
	var out []string
	for _, entry := range entries {
		abs, ok := ResolveVaultPath(g.base, g.id, g.tier, entry)
		if !ok || slices.Contains(out, abs) {
			continue
		}
		out = append(out, abs)
	}
	return out
}

func resolveHosts(entries []string) []string {
	var out []string
	for _, entry := range entries {
		host := normalizeHost(entry)
		if host == "" || slices.Contains(out, host) {
			continue
		}
		out = append(out, host)
	}
	return out
}

// CanAccess reports whether path lies under a granted prefix for mode.
func (g *Guard) CanAccess(path string, mode Mode) bool {
	if g.tier == manifest.TierSandboxed {
		return false
	}
	for _, prefix := range g.ResolveProfile().Prefixes(mode) {
		if HasPrefix(path, prefix) {
			return true
		}
	}
	return false
}

// CanAccessNetwork reports whether host is granted, either literally or via the wildcard.
// Comparison ignores case and any port.
func (g *Guard) CanAccessNetwork(host string) bool {
	if g.tier == manifest.TierSandboxed {
		return false
	}
	host = normalizeHost(host)
	if host == "" {
		return false
	}
	for _, granted := range g.ResolveProfile().Net {
		if granted == AnyHost || granted == host {
			return true
		}
	}
	return false
}

// Summarize renders the profile as ordered audit lines: read, write, network,
// environment, then subprocess for tier 3.
func (g *Guard) Summarize() []string {
	if g.tier == manifest.TierSandboxed {
		return []string{"No permissions"}
	}

	p := g.ResolveProfile()
	lines := []string{
		"Read: " + g.describePaths(p.Read),
		"Write: " + g.describePaths(p.Write),
	}

	switch {
	case p.AnyHost():
		lines = append(lines, "Network: any host")
	case p.NetworkDenied():
		lines = append(lines, "Network: denied")
	default:
		lines = append(lines, "Network: "+strings.Join(p.Net, ", "))
	}

	if p.Env {
		lines = append(lines, "Environment: allowed")
	} else {
		lines = append(lines, "Environment: denied")
	}

	if p.Subprocess {
		lines = append(lines, "Subprocess: allowed")
	}
	return lines
}

func (g *Guard) describePaths(prefixes []string) string {
	if len(prefixes) == 0 {
		return "denied"
	}
	names := make([]string, 0, len(prefixes))
	for _, prefix := range prefixes {
		rel, err := filepath.Rel(g.base, prefix)
		if err != nil {
			rel = prefix
		}
		names = append(names, filepath.ToSlash(rel))
	}
	return strings.Join(names, ", ")
}

func normalizeHost(host string) string {
	host = strings.ToLower(strings.TrimSpace(host))
	if host == AnyHost {
		return host
	}
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}
	return strings.Trim(host, "[]")
}
