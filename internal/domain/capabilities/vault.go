package capabilities

import (
	"path/filepath"
	"strings"

	"github.com/warden-dev/warden/internal/domain/manifest"
)

// Named vault partitions.
const (
	PartitionMemory   = "memory-store"
	PartitionImage    = "image-store"
	PartitionDocument = "document-store"
	PartitionAudit    = "audit-log"
	PartitionPrivate  = "plugin-private"
)

// Partitions lists every named partition in a stable order.
var Partitions = []string{
	PartitionMemory,
	PartitionImage,
	PartitionDocument,
	PartitionAudit,
	PartitionPrivate,
}

// ResolveVaultPath expands a manifest vault path into an absolute prefix under base.
//
// Accepted forms:
//
//	memory-store | image-store | document-store | audit-log
//	plugin-private[/<sub>]              the caller's own private area
//	plugin-private:<other-id>[/<sub>]   another plugin's private area
//
// audit-log and foreign private areas resolve only for tier 3. Unknown names,
// sub-paths on shared partitions and sub-paths containing ".." do not resolve.
func ResolveVaultPath(base, ownerID string, tier manifest.Tier, entry string) (string, bool) {
	entry = strings.TrimSpace(entry)
	name, sub, _ := strings.Cut(entry, "/")

	switch name {
	case PartitionMemory, PartitionImage, PartitionDocument:
		if sub != "" {
			return "", false
		}
		return filepath.Join(base, name), true

	case PartitionAudit:
		if sub != "" || tier != manifest.TierSystem {
			return "", false
		}
		return filepath.Join(base, name), true
	}

	target := ownerID
	if other, ok := strings.CutPrefix(name, PartitionPrivate+":"); ok {
		if !manifest.ValidID(other) {
			return "", false
		}
		if other != ownerID && tier != manifest.TierSystem {
			return "", false
		}
		target = other
	} else if name != PartitionPrivate {
		return "", false
	}

	if !manifest.ValidID(target) {
		return "", false
	}

	root := filepath.Join(base, PartitionPrivate, target)
	if sub == "" {
		return root, true
	}

	for _, seg := range strings.Split(sub, "/") {
		if seg == ".." {
			return "", false
		}
	}
	return filepath.Join(root, filepath.FromSlash(sub)), true
}

// HasPrefix reports whether path is prefix itself or lies beneath it.
// Both arguments are cleaned first so "a/b/../../c" cannot pass as "a/...".
func HasPrefix(path, prefix string) bool {
	path = filepath.Clean(path)
	prefix = filepath.Clean(prefix)
	if path == prefix {
		return true
	}
	if !strings.HasSuffix(prefix, string(filepath.Separator)) {
		prefix += string(filepath.Separator)
	}
	return strings.HasPrefix(path, prefix)
}
