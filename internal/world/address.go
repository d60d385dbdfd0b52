package world

import (
	"fmt"
	"strings"
)

// Address identifies a simulant by its path of name segments.
// The Game has the empty address. Segments are joined with "/".
type Address string

// GameAddress is the address of the singleton root.
const GameAddress Address = ""

const addressSeparator = "/"

// NewAddress builds an address from segments, validating each.
func NewAddress(segments ...string) (Address, error) {
	for _, seg := range segments {
		if err := validateSegment(seg); err != nil {
			return "", err
		}
	}
	return Address(strings.Join(segments, addressSeparator)), nil
}

// MustAddress is like NewAddress but panics on error.
// Use only in tests or for known-good literals.
func MustAddress(segments ...string) Address {
	a, err := NewAddress(segments...)
	if err != nil {
		panic(err)
	}
	return a
}

// ParseAddress parses the "/"-joined form. The empty string is the Game.
func ParseAddress(s string) (Address, error) {
	if s == "" {
		return GameAddress, nil
	}
	return NewAddress(strings.Split(s, addressSeparator)...)
}

// validateSegment rejects names that would break addressing or pattern
// matching.
func validateSegment(seg string) error {
	switch {
	case seg == "":
		return &Error{Code: ErrCodeInvalidAddress, Message: "empty name segment"}
	case strings.ContainsAny(seg, "/*@."):
		return &Error{Code: ErrCodeInvalidAddress, Message: fmt.Sprintf("name %q contains a reserved character", seg)}
	}
	return nil
}

// Segments returns the name segments. The Game has none.
func (a Address) Segments() []string {
	if a == GameAddress {
		return nil
	}
	return strings.Split(string(a), addressSeparator)
}

// Depth is the number of segments: 0 Game, 1 Screen, 2 Layer, 3 Entity.
func (a Address) Depth() int {
	if a == GameAddress {
		return 0
	}
	return strings.Count(string(a), addressSeparator) + 1
}

// Name returns the last segment, or "" for the Game.
func (a Address) Name() string {
	if i := strings.LastIndex(string(a), addressSeparator); i >= 0 {
		return string(a[i+1:])
	}
	return string(a)
}

// Parent drops the last segment. The Game is its own parent.
func (a Address) Parent() Address {
	if i := strings.LastIndex(string(a), addressSeparator); i >= 0 {
		return a[:i]
	}
	return GameAddress
}

// Child appends a segment without validation.
func (a Address) Child(name string) Address {
	if a == GameAddress {
		return Address(name)
	}
	return a + addressSeparator + Address(name)
}

// IsAncestorOf reports whether a is a strict segment prefix of b.
func (a Address) IsAncestorOf(b Address) bool {
	if a == b {
		return false
	}
	if a == GameAddress {
		return true
	}
	return strings.HasPrefix(string(b), string(a)+addressSeparator)
}

// Contains reports whether b is a or one of its descendants.
func (a Address) Contains(b Address) bool {
	return a == b || a.IsAncestorOf(b)
}

// Relative resolves a relative path against a. An empty path is a itself;
// a leading "../" climbs one level per occurrence; a leading "/" is
// absolute.
func (a Address) Relative(path string) (Address, error) {
	if path == "" {
		return a, nil
	}
	if strings.HasPrefix(path, addressSeparator) {
		return ParseAddress(strings.TrimPrefix(path, addressSeparator))
	}
	base := a
	for strings.HasPrefix(path, "../") || path == ".." {
		if base == GameAddress {
			return "", &Error{Code: ErrCodeInvalidAddress, Message: fmt.Sprintf("path %q climbs above the game", path)}
		}
		base = base.Parent()
		path = strings.TrimPrefix(strings.TrimPrefix(path, ".."), addressSeparator)
	}
	if path == "" {
		return base, nil
	}
	rel, err := ParseAddress(path)
	if err != nil {
		return "", err
	}
	out := base
	for _, seg := range rel.Segments() {
		out = out.Child(seg)
	}
	return out, nil
}

// String renders the address; the Game renders as "/".
func (a Address) String() string {
	if a == GameAddress {
		return addressSeparator
	}
	return string(a)
}
