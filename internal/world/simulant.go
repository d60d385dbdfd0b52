package world

import (
	"fmt"

	"github.com/roach88/simkernel/internal/value"
)

// Kind is the simulant variant. It is fixed by address depth.
type Kind int

const (
	KindGame Kind = iota
	KindScreen
	KindLayer
	KindEntity
)

var kindNames = [...]string{"Game", "Screen", "Layer", "Entity"}

func (k Kind) String() string {
	if k >= 0 && int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// ParseKind maps "Screen", "Layer", ... to a Kind.
func ParseKind(s string) (Kind, error) {
	for i, name := range kindNames {
		if name == s {
			return Kind(i), nil
		}
	}
	return 0, fmt.Errorf("unknown simulant kind %q", s)
}

// MarshalText implements encoding.TextMarshaler.
func (k Kind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (k *Kind) UnmarshalText(text []byte) error {
	parsed, err := ParseKind(string(text))
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}

// KindAt returns the kind a simulant at addr must have.
func KindAt(addr Address) (Kind, bool) {
	d := addr.Depth()
	if d > int(KindEntity) {
		return 0, false
	}
	return Kind(d), true
}

// Simulant is a handle on a live (or formerly live) simulant.
//
// ID is the creation timestamp. Two handles with the same address but
// different IDs refer to different incarnations; a handle is current only
// while World.IsCurrent reports true.
type Simulant struct {
	Address Address
	ID      int64
}

// Kind derives the variant from the address depth.
func (s Simulant) Kind() Kind {
	k, _ := KindAt(s.Address)
	return k
}

// Name returns the last address segment.
func (s Simulant) Name() string {
	return s.Address.Name()
}

func (s Simulant) String() string {
	return fmt.Sprintf("%s#%d", s.Address, s.ID)
}

// entry is the live record behind a Simulant.
type entry struct {
	id         int64
	address    Address
	kind       Kind
	dispatcher Dispatcher
	defs       map[string]PropertyDefinition
	props      map[string]value.Value

	// children in creation order
	children []Address

	// subscriptions owned by this simulant
	owned map[SubscriptionID]struct{}

	// set while destroyEntry is working on this simulant
	destroying bool
}

func (e *entry) handle() Simulant {
	return Simulant{Address: e.address, ID: e.id}
}

func (e *entry) removeChild(addr Address) {
	for i, c := range e.children {
		if c == addr {
			e.children = append(e.children[:i], e.children[i+1:]...)
			return
		}
	}
}
