package lens

import (
	"fmt"
	"strings"

	"github.com/roach88/simkernel/internal/world"
)

// Ref names a property by path, as written in descriptors:
//
//	Title/Gui/Hero.Health      absolute
//	../Hero.Health             relative to the referring simulant
//	.Health                    the referring simulant itself
//
// Addresses cannot contain ".", so the last dot separates the property.
type Ref struct {
	Path     string
	Property string
}

// ParseRef splits a reference string.
func ParseRef(s string) (Ref, error) {
	i := strings.LastIndex(s, ".")
	if i < 0 || i == len(s)-1 {
		return Ref{}, fmt.Errorf("lens ref %q: expected path.Property", s)
	}
	path := s[:i]
	if strings.HasSuffix(path, "..") || strings.HasSuffix(path, "/") {
		return Ref{}, fmt.Errorf("lens ref %q: path must name a simulant", s)
	}
	return Ref{Path: path, Property: s[i+1:]}, nil
}

// Resolve returns the referenced simulant address as seen from base.
// Paths without a leading "../" or "/" are absolute from the Game.
func (r Ref) Resolve(base world.Address) (world.Address, error) {
	if strings.HasPrefix(r.Path, "../") || strings.HasPrefix(r.Path, "/") {
		return base.Relative(r.Path)
	}
	if r.Path == "" {
		return base, nil
	}
	return world.ParseAddress(r.Path)
}

// Lens resolves the reference against base and projects its property.
func (r Ref) Lens(base world.Address) (Lens, error) {
	addr, err := r.Resolve(base)
	if err != nil {
		return Lens{}, fmt.Errorf("lens ref %s: %w", r, err)
	}
	return Property(addr, r.Property), nil
}

func (r Ref) String() string {
	return r.Path + "." + r.Property
}
