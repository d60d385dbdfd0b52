package value

import (
	"fmt"
	"slices"
	"unicode/utf16"
)

// Value is a sealed interface over the dynamic values a property or event
// payload can hold. Only Null, String, Int, Bool, Array, and Object
// implement it.
//
// There is no float variant. Quantities use integer units so that
// canonical encoding and digests stay deterministic across platforms.
type Value interface {
	value()
}

// Null is the explicit absence of a value.
type Null struct{}

func (Null) value() {}

// String is a UTF-8 string value.
type String string

func (String) value() {}

// Int is a 64-bit signed integer value.
type Int int64

func (Int) value() {}

// Bool is a boolean value.
type Bool bool

func (Bool) value() {}

// Array is an ordered sequence of values.
type Array []Value

func (Array) value() {}

// Object maps string keys to values.
// Use SortedKeys for deterministic iteration.
type Object map[string]Value

func (Object) value() {}

// Pair is a key/value entry used to build an Object.
type Pair struct {
	Key   string
	Value Value
}

// P is shorthand for Pair.
//
//	value.Obj(value.P("x", value.Int(3)), value.P("label", value.String("hp")))
func P(key string, v Value) Pair {
	return Pair{Key: key, Value: v}
}

// Obj builds an Object from pairs. Later pairs overwrite earlier ones.
func Obj(pairs ...Pair) Object {
	obj := make(Object, len(pairs))
	for _, p := range pairs {
		obj[p.Key] = p.Value
	}
	return obj
}

// Arr builds an Array from values.
func Arr(vals ...Value) Array {
	if vals == nil {
		return Array{}
	}
	return Array(vals)
}

// SortedKeys returns keys in canonical order (UTF-16 code units).
func (o Object) SortedKeys() []string {
	keys := make([]string, 0, len(o))
	for k := range o {
		keys = append(keys, k)
	}
	slices.SortFunc(keys, compareUTF16)
	return keys
}

// compareUTF16 orders strings by UTF-16 code units, which differs from
// Go's byte-wise UTF-8 comparison for characters outside the BMP.
func compareUTF16(a, b string) int {
	a16 := utf16.Encode([]rune(a))
	b16 := utf16.Encode([]rune(b))
	n := min(len(a16), len(b16))
	for i := 0; i < n; i++ {
		if a16[i] != b16[i] {
			if a16[i] < b16[i] {
				return -1
			}
			return 1
		}
	}
	switch {
	case len(a16) < len(b16):
		return -1
	case len(a16) > len(b16):
		return 1
	}
	return 0
}

// Type is the declared type tag carried alongside a property value.
type Type int

const (
	// TypeAny accepts every value, including Null.
	TypeAny Type = iota
	TypeNull
	TypeString
	TypeInt
	TypeBool
	TypeArray
	TypeObject
)

var typeNames = map[Type]string{
	TypeAny:    "any",
	TypeNull:   "null",
	TypeString: "string",
	TypeInt:    "int",
	TypeBool:   "bool",
	TypeArray:  "array",
	TypeObject: "object",
}

func (t Type) String() string {
	if name, ok := typeNames[t]; ok {
		return name
	}
	return fmt.Sprintf("type(%d)", int(t))
}

// ParseType maps a type name ("string", "int", ...) to its Type.
func ParseType(name string) (Type, error) {
	for t, n := range typeNames {
		if n == name {
			return t, nil
		}
	}
	return TypeAny, fmt.Errorf("unknown value type %q", name)
}

// MarshalText implements encoding.TextMarshaler.
func (t Type) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (t *Type) UnmarshalText(text []byte) error {
	parsed, err := ParseType(string(text))
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// TypeOf returns the type tag of v. A nil interface reports TypeNull.
func TypeOf(v Value) Type {
	switch v.(type) {
	case String:
		return TypeString
	case Int:
		return TypeInt
	case Bool:
		return TypeBool
	case Array:
		return TypeArray
	case Object:
		return TypeObject
	default:
		return TypeNull
	}
}

// Accepts reports whether v conforms to t. Values are never coerced.
func (t Type) Accepts(v Value) bool {
	if v == nil {
		return false
	}
	if t == TypeAny {
		return true
	}
	return TypeOf(v) == t
}

// Zero returns the zero value for t. TypeAny and TypeNull yield Null.
func (t Type) Zero() Value {
	switch t {
	case TypeString:
		return String("")
	case TypeInt:
		return Int(0)
	case TypeBool:
		return Bool(false)
	case TypeArray:
		return Array{}
	case TypeObject:
		return Object{}
	default:
		return Null{}
	}
}

// Equal reports deep structural equality. Nil and Null are equal.
func Equal(a, b Value) bool {
	if TypeOf(a) != TypeOf(b) {
		return false
	}
	switch av := a.(type) {
	case String:
		return av == b.(String)
	case Int:
		return av == b.(Int)
	case Bool:
		return av == b.(Bool)
	case Array:
		bv := b.(Array)
		if len(av) != len(bv) {
			return false
		}
		for i := range av {
			if !Equal(av[i], bv[i]) {
				return false
			}
		}
		return true
	case Object:
		bv := b.(Object)
		if len(av) != len(bv) {
			return false
		}
		for k, x := range av {
			y, ok := bv[k]
			if !ok || !Equal(x, y) {
				return false
			}
		}
		return true
	default:
		return true
	}
}

// Clone returns a deep copy of v. Scalars are returned as-is.
func Clone(v Value) Value {
	switch val := v.(type) {
	case Array:
		out := make(Array, len(val))
		for i, elem := range val {
			out[i] = Clone(elem)
		}
		return out
	case Object:
		out := make(Object, len(val))
		for k, elem := range val {
			out[k] = Clone(elem)
		}
		return out
	case nil:
		return Null{}
	default:
		return v
	}
}

// Field returns obj[key] when v is an Object holding that key.
func Field(v Value, key string) (Value, bool) {
	obj, ok := v.(Object)
	if !ok {
		return nil, false
	}
	f, ok := obj[key]
	return f, ok
}

// Format renders v as canonical JSON for logs and error messages.
// Unencodable values render with their Go representation.
func Format(v Value) string {
	b, err := Canonical(v)
	if err != nil {
		return fmt.Sprintf("%#v", v)
	}
	return string(b)
}
