package capabilities

import (
	"slices"

	"github.com/warden-dev/warden/internal/domain/manifest"
)

// Mode is the kind of vault access being checked.
type Mode string

// Access modes.
const (
	ModeRead  Mode = "read"
	ModeWrite Mode = "write"
)

// AnyHost is the network wildcard token.
const AnyHost = "*"

// Profile is the resolved, confinement-ready projection of a manifest's permissions.
// An empty list denies its category outright. Profiles are values and never mutated
// after resolution.
type Profile struct {
	Tier       manifest.Tier
	Read       []string
	Write      []string
	Net        []string
	Env        bool
	Subprocess bool
}

// DenyAll returns the profile granted when nothing may be trusted. It denies
// subprocess access too, even for tier 3.
func DenyAll(tier manifest.Tier) Profile {
	return Profile{Tier: tier}
}

// ReadDenied reports whether no read prefix was granted.
func (p Profile) ReadDenied() bool { return len(p.Read) == 0 }

// WriteDenied reports whether no write prefix was granted.
func (p Profile) WriteDenied() bool { return len(p.Write) == 0 }

// NetworkDenied reports whether no host was granted.
func (p Profile) NetworkDenied() bool { return len(p.Net) == 0 }

// AnyHost reports whether the wildcard host was granted.
func (p Profile) AnyHost() bool { return slices.Contains(p.Net, AnyHost) }

// Prefixes returns the granted prefixes for mode.
func (p Profile) Prefixes(mode Mode) []string {
	switch mode {
	case ModeRead:
		return p.Read
	case ModeWrite:
		return p.Write
	default:
		return nil
	}
}

// Capabilities projects the profile onto Capability values for risk display
// and approval bookkeeping.
func (p Profile) Capabilities() []Capability {
	grant := NewGrant()
	for _, prefix := range p.Read {
		grant.Add(Capability{Kind: KindFS, Pattern: string(ModeRead) + ":" + prefix})
	}
	for _, prefix := range p.Write {
		grant.Add(Capability{Kind: KindFS, Pattern: string(ModeWrite) + ":" + prefix})
	}
	for _, host := range p.Net {
		grant.Add(Capability{Kind: KindNetwork, Pattern: host})
	}
	if p.Env {
		grant.Add(Capability{Kind: KindEnv, Pattern: "*"})
	}
	if p.Subprocess {
		grant.Add(Capability{Kind: KindExec, Pattern: "*"})
	}
	return grant
}
