package world

import (
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"github.com/roach88/simkernel/internal/value"
)

// Intrinsic property names carried by every simulant.
const (
	PropName              = "Name"
	PropDispatcher        = "Dispatcher"
	PropCreationTimeStamp = "CreationTimeStamp"
	PropPersistent        = "Persistent"
	PropEnabled           = "Enabled"
)

// PropertyDefinition declares one legal property name for a simulant.
//
// The set of definitions is fixed at creation: the intrinsic set plus the
// dispatcher's declared set. The store is not a free-form dictionary.
type PropertyDefinition struct {
	Name string     `json:"name"`
	Type value.Type `json:"type"`

	// Default is the initial value. Nil means Type.Zero().
	Default value.Value `json:"default,omitempty"`

	// Persistent properties are written by subtree serialization.
	Persistent bool `json:"persistent,omitempty"`

	// ReadOnly properties are assigned at creation and rejected by Set.
	ReadOnly bool `json:"read_only,omitempty"`
}

func (d PropertyDefinition) initial() value.Value {
	if d.Default == nil {
		return d.Type.Zero()
	}
	return value.Clone(d.Default)
}

// intrinsicDefinitions is the property set every simulant carries.
// Name and Dispatcher are serialized as descriptor fields, not properties.
func intrinsicDefinitions() []PropertyDefinition {
	return []PropertyDefinition{
		{Name: PropName, Type: value.TypeString, ReadOnly: true},
		{Name: PropDispatcher, Type: value.TypeString, ReadOnly: true},
		{Name: PropCreationTimeStamp, Type: value.TypeInt, ReadOnly: true},
		{Name: PropPersistent, Type: value.TypeBool, Default: value.Bool(true)},
		{Name: PropEnabled, Type: value.TypeBool, Default: value.Bool(true), Persistent: true},
	}
}

// IsIntrinsic reports whether name is one of the intrinsic properties.
func IsIntrinsic(name string) bool {
	switch name {
	case PropName, PropDispatcher, PropCreationTimeStamp, PropPersistent, PropEnabled:
		return true
	}
	return false
}

// ChangeEventName is the event published when property name changes.
func ChangeEventName(name string) string {
	return EventChangePrefix + name
}

// ChangedProperty extracts the property name from a change event name.
func ChangedProperty(eventName string) (string, bool) {
	if !strings.HasPrefix(eventName, EventChangePrefix) {
		return "", false
	}
	return strings.TrimPrefix(eventName, EventChangePrefix), true
}

// TryGet returns the stored value, or false if the simulant is not live or
// the property is not declared. The returned value must not be mutated.
func (w *World) TryGet(addr Address, name string) (value.Value, bool) {
	e, ok := w.entries[addr]
	if !ok {
		return nil, false
	}
	v, ok := e.props[name]
	return v, ok
}

// Get returns the stored value or a PropertyNotFound / InvalidAddress error.
// The returned value must not be mutated.
func (w *World) Get(addr Address, name string) (value.Value, error) {
	e, ok := w.entries[addr]
	if !ok {
		return nil, notLive(addr)
	}
	v, ok := e.props[name]
	if !ok {
		return nil, propertyNotFound(addr, name)
	}
	return v, nil
}

// MustGet is like Get but panics on error.
func (w *World) MustGet(addr Address, name string) value.Value {
	v, err := w.Get(addr, name)
	if err != nil {
		panic(err)
	}
	return v
}

// Set stores v if the property is declared, writable and v conforms to the
// declared type. Values are never coerced and undeclared names are never
// created.
//
// When the stored value changes, a Change/<name> event is published
// (notify-all) with the simulant as subject before Set returns, so
// bindings observe the new value within the same tick. Errors raised by
// change subscribers are returned.
func (w *World) Set(addr Address, name string, v value.Value) error {
	e, ok := w.entries[addr]
	if !ok {
		return notLive(addr)
	}
	def, ok := e.defs[name]
	if !ok {
		return propertyNotFound(addr, name)
	}
	if def.ReadOnly {
		return &Error{
			Code:     ErrCodePropertyReadOnly,
			Message:  "property is read-only",
			Address:  addr,
			Property: name,
		}
	}
	if !def.Type.Accepts(v) {
		return typeMismatch(addr, def, describeType(v))
	}

	prev := e.props[name]
	if value.Equal(prev, v) {
		return nil
	}
	e.props[name] = value.Clone(v)

	w.logger.Debug("property changed",
		slog.String("address", addr.String()),
		slog.String("property", name),
	)

	data := value.Obj(
		value.P("property", value.String(name)),
		value.P("value", value.Clone(v)),
		value.P("previous", prev),
	)
	if _, err := w.Publish(EventAddress{Name: ChangeEventName(name), Subject: addr}, data, nil, NotifyAll); err != nil {
		return fmt.Errorf("set %s.%s: %w", addr, name, err)
	}
	return nil
}

// MustSet is like Set but panics on error.
func (w *World) MustSet(addr Address, name string, v value.Value) {
	if err := w.Set(addr, name, v); err != nil {
		panic(err)
	}
}

// Definition returns the declaration of name on the simulant at addr.
func (w *World) Definition(addr Address, name string) (PropertyDefinition, bool) {
	e, ok := w.entries[addr]
	if !ok {
		return PropertyDefinition{}, false
	}
	def, ok := e.defs[name]
	return def, ok
}

// Properties lists the simulant's declarations ordered by name.
func (w *World) Properties(addr Address) ([]PropertyDefinition, error) {
	e, ok := w.entries[addr]
	if !ok {
		return nil, notLive(addr)
	}
	defs := make([]PropertyDefinition, 0, len(e.defs))
	for _, d := range e.defs {
		defs = append(defs, d)
	}
	slices.SortFunc(defs, func(a, b PropertyDefinition) int {
		return strings.Compare(a.Name, b.Name)
	})
	return defs, nil
}

// buildProperties merges intrinsic and dispatcher declarations and applies
// the initial values. Nothing is published.
func buildProperties(addr Address, d Dispatcher, id int64, initial value.Object) (map[string]PropertyDefinition, map[string]value.Value, error) {
	defs := make(map[string]PropertyDefinition)
	for _, def := range intrinsicDefinitions() {
		defs[def.Name] = def
	}
	for _, def := range d.Properties() {
		if IsIntrinsic(def.Name) {
			return nil, nil, fmt.Errorf("dispatcher %s redeclares intrinsic property %q", d.Name(), def.Name)
		}
		if def.Default != nil && !def.Type.Accepts(def.Default) {
			return nil, nil, typeMismatch(addr, def, describeType(def.Default))
		}
		defs[def.Name] = def
	}

	props := make(map[string]value.Value, len(defs))
	for name, def := range defs {
		props[name] = def.initial()
	}
	props[PropName] = value.String(addr.Name())
	props[PropDispatcher] = value.String(d.Name())
	props[PropCreationTimeStamp] = value.Int(id)

	for _, name := range initial.SortedKeys() {
		v := initial[name]
		def, ok := defs[name]
		if !ok {
			return nil, nil, propertyNotFound(addr, name)
		}
		if def.ReadOnly {
			return nil, nil, &Error{
				Code:     ErrCodePropertyReadOnly,
				Message:  "read-only property cannot be initialized",
				Address:  addr,
				Property: name,
			}
		}
		if !def.Type.Accepts(v) {
			return nil, nil, typeMismatch(addr, def, describeType(v))
		}
		props[name] = value.Clone(v)
	}
	return defs, props, nil
}

func describeType(v value.Value) string {
	if v == nil {
		return "nil"
	}
	return value.TypeOf(v).String()
}
