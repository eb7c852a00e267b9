package manifest

import (
	"encoding/json"
	"math"
)

// Validate reports whether raw, an arbitrary decoded structure, satisfies the
// structural manifest invariants. It never panics; a false result means the
// manifest must be rejected and never loaded.
func Validate(raw any) bool {
	return Check(raw) == nil
}

// Check is Validate with the reason attached. Invariants are checked in order
// and the first violation is returned:
//  1. raw is an object
//  2. id, name and version are non-empty strings
//  3. tier is an integer in [1,3]
//  4. tier >= 2 carries a permissions object; tier 1 carries none
//
// The shape of permissions is not inspected here.
func Check(raw any) error {
	obj, ok := raw.(map[string]any)
	if !ok {
		return invalid("", ErrNotObject)
	}

	for _, field := range []string{"id", "name", "version"} {
		s, ok := obj[field].(string)
		if !ok || s == "" {
			return invalid(field, ErrMissingField)
		}
	}

	tier, ok := integral(obj["tier"])
	if !ok || !Tier(tier).Valid() {
		return invalid("tier", ErrInvalidTier)
	}

	perms, present := obj["permissions"]
	hasPerms := present && perms != nil
	switch {
	case Tier(tier) >= TierVerified && !hasPerms:
		return invalid("permissions", ErrPermissionsRequired)
	case Tier(tier) == TierSandboxed && hasPerms:
		return invalid("permissions", ErrPermissionsForbidden)
	}

	return nil
}

// integral extracts an integer from the numeric types JSON and YAML decoders produce.
func integral(v any) (int64, bool) {
	switch n := v.(type) {
	case int:
		return int64(n), true
	case int64:
		return n, true
	case int32:
		return int64(n), true
	case uint64:
		if n > math.MaxInt64 {
			return 0, false
		}
		return int64(n), true
	case float64:
		if n != math.Trunc(n) || math.IsInf(n, 0) {
			return 0, false
		}
		return int64(n), true
	case json.Number:
		i, err := n.Int64()
		return i, err == nil
	default:
		return 0, false
	}
}
