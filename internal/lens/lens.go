package lens

import (
	"errors"
	"fmt"
	"slices"

	"github.com/roach88/simkernel/internal/value"
	"github.com/roach88/simkernel/internal/world"
)

var (
	// ErrReadOnly is returned by Set on a lens without a write path.
	ErrReadOnly = errors.New("lens is read-only")

	// ErrNoElement is returned when a collection lens holds no element
	// selected by an element lens.
	ErrNoElement = errors.New("no matching element")
)

// Getter reads a lens value.
type Getter func(w *world.World) (value.Value, error)

// Setter writes a lens value.
type Setter func(w *world.World, v value.Value) error

// Lens is a read (and optionally write) projection onto world state.
type Lens struct {
	name    string
	get     Getter
	set     Setter
	changes []world.Pattern
}

// New builds a lens from its parts. A nil set makes it read-only.
func New(name string, get Getter, set Setter, changes ...world.Pattern) Lens {
	return Lens{name: name, get: get, set: set, changes: changes}
}

// Property projects one property of the simulant at addr. It is writable
// and changes with the property's change event.
func Property(addr world.Address, name string) Lens {
	return Lens{
		name: addr.String() + "." + name,
		get: func(w *world.World) (value.Value, error) {
			return w.Get(addr, name)
		},
		set: func(w *world.World, v value.Value) error {
			return w.Set(addr, name, v)
		},
		changes: []world.Pattern{world.Exact(world.ChangeEventName(name), addr)},
	}
}

// Constant always yields v and never changes.
func Constant(v value.Value) Lens {
	v = value.Clone(v)
	return Lens{
		name: value.Format(v),
		get: func(*world.World) (value.Value, error) {
			return v, nil
		},
	}
}

// Map derives a read-only lens by applying fn to l's value.
func Map(l Lens, fn func(value.Value) (value.Value, error)) Lens {
	return Lens{
		name: "map(" + l.name + ")",
		get: func(w *world.World) (value.Value, error) {
			v, err := l.Get(w)
			if err != nil {
				return nil, err
			}
			return fn(v)
		},
		changes: l.changes,
	}
}

// Map2 derives a read-only lens from two lenses. It changes whenever
// either source does.
func Map2(a, b Lens, fn func(x, y value.Value) (value.Value, error)) Lens {
	return Lens{
		name: "map2(" + a.name + ", " + b.name + ")",
		get: func(w *world.World) (value.Value, error) {
			x, err := a.Get(w)
			if err != nil {
				return nil, err
			}
			y, err := b.Get(w)
			if err != nil {
				return nil, err
			}
			return fn(x, y)
		},
		changes: mergePatterns(a.changes, b.changes),
	}
}

// Field projects key of an object-valued lens. A missing key reads as
// Null. Setting writes a modified copy of the whole object back through l.
func Field(l Lens, key string) Lens {
	out := Lens{
		name: l.name + "[" + key + "]",
		get: func(w *world.World) (value.Value, error) {
			v, err := l.Get(w)
			if err != nil {
				return nil, err
			}
			if _, isNull := v.(value.Null); isNull {
				return value.Null{}, nil
			}
			obj, ok := v.(value.Object)
			if !ok {
				return nil, fmt.Errorf("lens %s: field %q of %s value", l.name, key, value.TypeOf(v))
			}
			f, ok := obj[key]
			if !ok {
				return value.Null{}, nil
			}
			return f, nil
		},
		changes: l.changes,
	}
	if l.set != nil {
		out.set = func(w *world.World, v value.Value) error {
			cur, err := l.Get(w)
			if err != nil {
				return err
			}
			obj, _ := value.Clone(cur).(value.Object)
			if obj == nil {
				obj = value.Object{}
			}
			obj[key] = v
			return l.Set(w, obj)
		}
	}
	return out
}

// Find projects the first element of an array-valued lens for which match
// returns true. Reading fails with ErrNoElement if nothing matches.
// Setting replaces that element in a copy written back through l.
func Find(l Lens, desc string, match func(value.Value) bool) Lens {
	locate := func(w *world.World) (value.Array, int, error) {
		v, err := l.Get(w)
		if err != nil {
			return nil, -1, err
		}
		arr, ok := v.(value.Array)
		if !ok {
			return nil, -1, fmt.Errorf("lens %s: expected array, got %s", l.name, value.TypeOf(v))
		}
		for i, elem := range arr {
			if match(elem) {
				return arr, i, nil
			}
		}
		return arr, -1, fmt.Errorf("lens %s[%s]: %w", l.name, desc, ErrNoElement)
	}
	out := Lens{
		name: l.name + "[" + desc + "]",
		get: func(w *world.World) (value.Value, error) {
			arr, i, err := locate(w)
			if err != nil {
				return nil, err
			}
			return arr[i], nil
		},
		changes: l.changes,
	}
	if l.set != nil {
		out.set = func(w *world.World, v value.Value) error {
			arr, i, err := locate(w)
			if err != nil {
				return err
			}
			next := value.Clone(arr).(value.Array)
			next[i] = v
			return l.Set(w, next)
		}
	}
	return out
}

// Get evaluates the lens against the current world state.
func (l Lens) Get(w *world.World) (value.Value, error) {
	if l.get == nil {
		return nil, fmt.Errorf("lens %q has no getter", l.name)
	}
	return l.get(w)
}

// Set writes through the lens.
func (l Lens) Set(w *world.World, v value.Value) error {
	if l.set == nil {
		return fmt.Errorf("lens %s: %w", l.name, ErrReadOnly)
	}
	return l.set(w, v)
}

// Writable reports whether Set is supported.
func (l Lens) Writable() bool {
	return l.set != nil
}

// Changes returns the event patterns after which the value may differ.
func (l Lens) Changes() []world.Pattern {
	return slices.Clone(l.changes)
}

func (l Lens) String() string {
	return l.name
}

func mergePatterns(a, b []world.Pattern) []world.Pattern {
	out := slices.Clone(a)
	for _, p := range b {
		dup := slices.ContainsFunc(out, func(q world.Pattern) bool {
			return q.Name == p.Name && slices.Equal(q.Subject, p.Subject)
		})
		if !dup {
			out = append(out, p)
		}
	}
	return out
}
