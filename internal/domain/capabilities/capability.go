// Package capabilities derives least-privilege profiles from plugin manifests
// and answers point-in-time access checks against them.
package capabilities

import "strings"

// Capability kinds.
const (
	KindFS      = "fs"
	KindNetwork = "network"
	KindEnv     = "env"
	KindExec    = "exec"
)

// RiskLevel represents the security risk level of a capability.
type RiskLevel int

const (
	// RiskLevelLow represents minimal security risk (a shared partition, read-only).
	RiskLevelLow RiskLevel = iota
	// RiskLevelMedium represents moderate security risk (network hosts, vault writes).
	RiskLevelMedium
	// RiskLevelHigh represents high security risk (any host, whole environment, subprocesses).
	RiskLevelHigh
)

// String returns a human-readable representation of the risk level.
func (r RiskLevel) String() string {
	switch r {
	case RiskLevelLow:
		return "low"
	case RiskLevelMedium:
		return "medium"
	case RiskLevelHigh:
		return "high"
	default:
		return "unknown"
	}
}

// Capability is one granted permission in display form.
type Capability struct {
	Kind    string `json:"kind" yaml:"kind"`       // fs, network, env, exec
	Pattern string `json:"pattern" yaml:"pattern"` // e.g. "read:/vault/memory-store", "api.example.com", "*"
}

// Equals checks if two capabilities are equal (value object equality).
func (c Capability) Equals(other Capability) bool {
	return c.Kind == other.Kind && c.Pattern == other.Pattern
}

// String returns a human-readable representation of the capability.
func (c Capability) String() string {
	return c.Kind + ":" + c.Pattern
}

// IsBroad returns true if this capability pattern is overly permissive.
func (c Capability) IsBroad() bool {
	switch c.Kind {
	case KindFS:
		return strings.HasSuffix(c.Pattern, "/"+PartitionAudit)
	case KindExec, KindEnv:
		return c.Pattern == "*"
	case KindNetwork:
		return c.Pattern == AnyHost
	default:
		return false
	}
}

// RiskLevel returns the security risk level of this capability.
func (c Capability) RiskLevel() RiskLevel {
	if c.IsBroad() {
		return RiskLevelHigh
	}

	switch c.Kind {
	case KindNetwork, KindEnv, KindExec:
		return RiskLevelMedium
	case KindFS:
		if strings.HasPrefix(c.Pattern, string(ModeWrite)+":") {
			return RiskLevelMedium
		}
	}
	return RiskLevelLow
}

// RiskDescription returns a human-readable explanation of the security risk.
func (c Capability) RiskDescription() string {
	switch c.Kind {
	case KindFS:
		mode, path, _ := strings.Cut(c.Pattern, ":")
		switch {
		case strings.HasSuffix(path, "/"+PartitionAudit):
			return "Plugin can access the audit log"
		case strings.Contains(path, "/"+PartitionPrivate+"/"):
			if mode == string(ModeWrite) {
				return "Plugin can modify private plugin data at " + path
			}
			return "Plugin can read private plugin data at " + path
		case mode == string(ModeWrite):
			return "Plugin can modify vault data at " + path
		default:
			return "Plugin can read vault data at " + path
		}

	case KindExec:
		return "Plugin can spawn subprocesses"

	case KindNetwork:
		if c.Pattern == AnyHost {
			return "Plugin can connect to any host on the internet"
		}
		return "Plugin can make network requests to: " + c.Pattern

	case KindEnv:
		return "Plugin can read environment variables, including secrets and API keys"

	default:
		return "Plugin requires capability: " + c.String()
	}
}
