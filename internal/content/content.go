package content

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/roach88/simkernel/internal/lens"
	"github.com/roach88/simkernel/internal/value"
	"github.com/roach88/simkernel/internal/world"
)

// Content is one of Static, Stream or File.
type Content interface {
	content()
}

// Static describes a single simulant and its nested content.
type Static struct {
	// Kind, when not KindGame, must match the kind implied by the parent.
	Kind world.Kind

	// Name is the address segment. Empty asks the world for a name.
	Name string

	// Dispatcher is resolved in the world's registry. Empty uses the
	// kind's default.
	Dispatcher string

	Properties value.Object
	Bindings   []Binding
	Handlers   []Handler

	// Children are expanded in order after the simulant is set up.
	Children []Content
}

// Stream derives children from an array-valued lens.
type Stream struct {
	Source Source

	// Key identifies an element across collection changes. Nil uses
	// DigestKey.
	Key KeyFunc

	// Map builds the content for one element. elem reads the element
	// with that key from the current collection.
	Map func(key string, elem lens.Lens) (Content, error)
}

// File splices in a descriptor loaded from Path.
type File struct {
	// Name overrides the loaded descriptor's name when set.
	Name string
	Path string
}

func (*Static) content() {}
func (*Stream) content() {}
func (*File) content()   {}

// Source yields a lens for the simulant at self. Relative references are
// resolved against self.
type Source func(self world.Address) (lens.Lens, error)

// Fixed returns a Source that ignores self.
func Fixed(l lens.Lens) Source {
	return func(world.Address) (lens.Lens, error) { return l, nil }
}

// Ref returns a Source for a "path.Property" reference or a
// "table:<table>/<key>" environment entry.
func Ref(ref string) Source {
	return func(self world.Address) (lens.Lens, error) {
		if lens.IsTableRef(ref) {
			table, key, err := lens.ParseTableRef(ref)
			if err != nil {
				return lens.Lens{}, err
			}
			return lens.Table(table, key), nil
		}
		r, err := lens.ParseRef(ref)
		if err != nil {
			return lens.Lens{}, err
		}
		return r.Lens(self)
	}
}

// Binding pushes Source's value into Property on every distinct change,
// starting with the current value.
type Binding struct {
	Property string
	Source   Source
}

// Handler reacts to events published to Subject.
type Handler struct {
	// Event is an event name, "*" or a "Prefix*" pattern.
	Event string

	// Subject is a path relative to the simulant; empty is the simulant
	// itself. A trailing "/..." also matches descendants.
	Subject string

	// Signal, when set, is delivered to the simulant's dispatcher. A
	// string signal is wrapped as {signal, value} with the event data.
	Signal value.Value

	// Callback, when set, runs after the signal.
	Callback world.Callback

	// Handles marks the event handled after the handler runs.
	Handles bool
}

func (h Handler) pattern(self world.Address) (world.Pattern, error) {
	subject, under := h.Subject, false
	if subject == "..." {
		subject, under = "", true
	} else if s, ok := strings.CutSuffix(subject, "/..."); ok {
		subject, under = s, true
	}
	addr, err := self.Relative(subject)
	if err != nil {
		return world.Pattern{}, fmt.Errorf("handler %s: %w", h.Event, err)
	}
	if h.Event == "" {
		return world.Pattern{}, fmt.Errorf("handler on %s: empty event name", addr)
	}
	if under {
		return world.Under(h.Event, addr), nil
	}
	return world.Exact(h.Event, addr), nil
}

// KeyFunc derives the identity key of a collection element.
type KeyFunc func(elem value.Value) (string, error)

// DigestKey keys an element by the digest of its canonical encoding, so
// equal elements share a key.
func DigestKey(elem value.Value) (string, error) {
	return value.Digest(value.DomainElement, elem)
}

// FieldKey keys object elements by a string or int field.
func FieldKey(field string) KeyFunc {
	return func(elem value.Value) (string, error) {
		f, ok := value.Field(elem, field)
		if !ok {
			return "", fmt.Errorf("element has no key field %q", field)
		}
		switch k := f.(type) {
		case value.String:
			return string(k), nil
		case value.Int:
			return strconv.FormatInt(int64(k), 10), nil
		default:
			return "", fmt.Errorf("key field %q is %s, want string or int", field, value.TypeOf(f))
		}
	}
}
