package capabilities

// Grant is a set of capabilities a user approved for a plugin.
type Grant []Capability

// NewGrant creates a new empty Grant.
func NewGrant() Grant {
	return make(Grant, 0)
}

// Add adds a capability to the grant if it's not already present.
func (g *Grant) Add(c Capability) {
	if g.Contains(c) {
		return
	}
	*g = append(*g, c)
}

// Contains checks if the grant contains a specific capability.
func (g Grant) Contains(c Capability) bool {
	for _, existing := range g {
		if existing.Equals(c) {
			return true
		}
	}
	return false
}

// ContainsAll checks if every capability in caps is part of the grant.
// An approval stays valid only while the profile does not grow.
func (g Grant) ContainsAll(caps []Capability) bool {
	for _, c := range caps {
		if !g.Contains(c) {
			return false
		}
	}
	return true
}

// Remove removes a capability from the grant.
func (g *Grant) Remove(c Capability) {
	for i, existing := range *g {
		if existing.Equals(c) {
			*g = append((*g)[:i], (*g)[i+1:]...)
			return
		}
	}
}

// MaxRisk returns the highest risk level in the grant.
func (g Grant) MaxRisk() RiskLevel {
	highest := RiskLevelLow
	for _, c := range g {
		if r := c.RiskLevel(); r > highest {
			highest = r
		}
	}
	return highest
}
