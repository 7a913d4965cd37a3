// Package cache provides keyed get/set/delete with TTL against a primary
// Redis store, transparently degrading to an in-process secondary store
// when the primary is unreachable.
package cache

import (
	"fmt"
	"sort"
	"strings"
)

// BuildKey builds the deterministic composite key for a cached value:
// a type tag, the org identifier, then every parameter sorted by name.
// Two logically identical requests with differently ordered parameter
// maps collide to the same key.
//
// Shape: "<type>:<orgId>:<key1>:<val1>|<key2>:<val2>".
func BuildKey(typeTag, orgID string, params map[string]any) string {
	names := make([]string, 0, len(params))
	for name := range params {
		names = append(names, name)
	}
	sort.Strings(names)

	parts := make([]string, 0, len(names))
	for _, name := range names {
		parts = append(parts, name+":"+serializeParam(params[name]))
	}

	return typeTag + ":" + orgID + ":" + strings.Join(parts, "|")
}

func serializeParam(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case []string:
		sorted := make([]string, len(x))
		copy(sorted, x)
		sort.Strings(sorted)
		return strings.Join(sorted, ",")
	case map[string]any:
		// Nested maps (dimension filters) serialize recursively, sorted.
		names := make([]string, 0, len(x))
		for name := range x {
			names = append(names, name)
		}
		sort.Strings(names)
		parts := make([]string, 0, len(names))
		for _, name := range names {
			parts = append(parts, name+"="+serializeParam(x[name]))
		}
		return strings.Join(parts, ",")
	case map[string]string:
		names := make([]string, 0, len(x))
		for name := range x {
			names = append(names, name)
		}
		sort.Strings(names)
		parts := make([]string, 0, len(names))
		for _, name := range names {
			parts = append(parts, name+"="+x[name])
		}
		return strings.Join(parts, ",")
	default:
		return fmt.Sprintf("%v", x)
	}
}
