package lens

import (
	"fmt"
	"strings"

	"github.com/roach88/simkernel/internal/value"
	"github.com/roach88/simkernel/internal/world"
)

// TablePrefix marks a reference into the world's environment tables:
//
//	table:archetypes/slime
const TablePrefix = "table:"

// Table projects one entry of an environment table. Tables are immutable,
// so the lens is read-only and has no change patterns.
func Table(table, key string) Lens {
	return Lens{
		name: TablePrefix + table + "/" + key,
		get: func(w *world.World) (value.Value, error) {
			v, ok := w.Environment().Lookup(table, key)
			if !ok {
				return nil, fmt.Errorf("table %s has no entry %q: %w", table, key, ErrNoElement)
			}
			return v, nil
		},
	}
}

// IsTableRef reports whether s uses the table: prefix.
func IsTableRef(s string) bool {
	return strings.HasPrefix(s, TablePrefix)
}

// ParseTableRef splits "table:<table>/<key>". The key may contain "/".
func ParseTableRef(s string) (table, key string, err error) {
	rest, ok := strings.CutPrefix(s, TablePrefix)
	if !ok {
		return "", "", fmt.Errorf("table ref %q: missing %q prefix", s, TablePrefix)
	}
	table, key, ok = strings.Cut(rest, "/")
	if !ok || table == "" || key == "" {
		return "", "", fmt.Errorf("table ref %q: expected table:<table>/<key>", s)
	}
	return table, key, nil
}
