package world

import "github.com/roach88/simkernel/internal/value"

// Typed accessors over Get/Set. A stored value of another type (possible
// for TypeAny declarations) yields a TypeMismatch error.

func getTyped[T value.Value](w *World, addr Address, name string, want value.Type) (T, error) {
	var zero T
	v, err := w.Get(addr, name)
	if err != nil {
		return zero, err
	}
	t, ok := v.(T)
	if !ok {
		return zero, typeMismatch(addr, PropertyDefinition{Name: name, Type: want}, describeType(v))
	}
	return t, nil
}

// GetString reads a string property.
func (w *World) GetString(addr Address, name string) (string, error) {
	v, err := getTyped[value.String](w, addr, name, value.TypeString)
	return string(v), err
}

// GetInt reads an int property.
func (w *World) GetInt(addr Address, name string) (int64, error) {
	v, err := getTyped[value.Int](w, addr, name, value.TypeInt)
	return int64(v), err
}

// GetBool reads a bool property.
func (w *World) GetBool(addr Address, name string) (bool, error) {
	v, err := getTyped[value.Bool](w, addr, name, value.TypeBool)
	return bool(v), err
}

// GetArray reads an array property. The result must not be mutated.
func (w *World) GetArray(addr Address, name string) (value.Array, error) {
	return getTyped[value.Array](w, addr, name, value.TypeArray)
}

// GetObject reads an object property. The result must not be mutated.
func (w *World) GetObject(addr Address, name string) (value.Object, error) {
	return getTyped[value.Object](w, addr, name, value.TypeObject)
}

// SetString writes a string property.
func (w *World) SetString(addr Address, name, v string) error {
	return w.Set(addr, name, value.String(v))
}

// SetInt writes an int property.
func (w *World) SetInt(addr Address, name string, v int64) error {
	return w.Set(addr, name, value.Int(v))
}

// SetBool writes a bool property.
func (w *World) SetBool(addr Address, name string, v bool) error {
	return w.Set(addr, name, value.Bool(v))
}

// Enabled reports the Enabled intrinsic; non-live simulants are disabled.
func (w *World) Enabled(addr Address) bool {
	v, ok := w.TryGet(addr, PropEnabled)
	if !ok {
		return false
	}
	b, _ := v.(value.Bool)
	return bool(b)
}
