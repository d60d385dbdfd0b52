package compiler

import (
	"fmt"
	"slices"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/token"

	"github.com/roach88/simkernel/internal/value"
	"github.com/roach88/simkernel/internal/world"
)

// CompileDispatcher parses a CUE value into a SchemaDispatcher.
// Uses CUE SDK's Go API directly (not CLI subprocess).
//
// The CUE value should be the dispatcher struct itself, e.g.:
//
//	ctx := cuecontext.New()
//	v := ctx.CompileString(`dispatcher: Label: { properties: Text: string | *"" }`)
//	d, err := CompileDispatcher(v.LookupPath(cue.ParsePath("dispatcher.Label")))
//
// Each property is a CUE type expression; its default (or concrete value)
// becomes the initial value. The persistent and read_only lists name
// properties that carry those flags.
func CompileDispatcher(v cue.Value) (*world.SchemaDispatcher, error) {
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}

	d := &world.SchemaDispatcher{}

	labels := v.Path().Selectors()
	if len(labels) > 0 {
		d.DispatcherName = unquote(labels[len(labels)-1].String())
	}

	persistent, err := stringList(v, "persistent")
	if err != nil {
		return nil, err
	}
	readOnly, err := stringList(v, "read_only")
	if err != nil {
		return nil, err
	}

	d.Props, err = parseProperties(v)
	if err != nil {
		return nil, err
	}
	for _, names := range []struct {
		field string
		list  []string
	}{{"persistent", persistent}, {"read_only", readOnly}} {
		for _, name := range names.list {
			if !slices.ContainsFunc(d.Props, func(p world.PropertyDefinition) bool { return p.Name == name }) {
				return nil, &CompileError{
					Field:   names.field,
					Message: fmt.Sprintf("%q is not a declared property", name),
					Pos:     v.LookupPath(cue.ParsePath(names.field)).Pos(),
				}
			}
		}
	}
	for i := range d.Props {
		d.Props[i].Persistent = slices.Contains(persistent, d.Props[i].Name)
		d.Props[i].ReadOnly = slices.Contains(readOnly, d.Props[i].Name)
	}

	d.Signals, err = parseSignals(v)
	if err != nil {
		return nil, err
	}

	if onUpdate := v.LookupPath(cue.ParsePath("on_update")); onUpdate.Exists() {
		d.OnUpdate, err = parseEffects(onUpdate, "on_update")
		if err != nil {
			return nil, err
		}
	}

	if visual := v.LookupPath(cue.ParsePath("visual")); visual.Exists() {
		d.Visual, err = visual.Bool()
		if err != nil {
			return nil, formatCUEError(err)
		}
	}

	return d, nil
}

// parseProperties extracts property definitions in declaration order.
func parseProperties(v cue.Value) ([]world.PropertyDefinition, error) {
	var props []world.PropertyDefinition

	propsVal := v.LookupPath(cue.ParsePath("properties"))
	if !propsVal.Exists() {
		return props, nil
	}

	iter, err := propsVal.Fields()
	if err != nil {
		return nil, formatCUEError(err)
	}

	for iter.Next() {
		name := iter.Label()
		if world.IsIntrinsic(name) {
			return nil, &CompileError{
				Field:   "properties." + name,
				Message: "intrinsic properties cannot be redeclared",
				Pos:     iter.Value().Pos(),
			}
		}
		typ, err := extractType(iter.Value())
		if err != nil {
			return nil, err
		}
		def, err := defaultValue(iter.Value())
		if err != nil {
			return nil, err
		}
		if def != nil && !typ.Accepts(def) {
			return nil, &CompileError{
				Field:   "properties." + name,
				Message: fmt.Sprintf("default %s is not a %s", value.Format(def), typ),
				Pos:     iter.Value().Pos(),
			}
		}
		props = append(props, world.PropertyDefinition{Name: name, Type: typ, Default: def})
	}

	return props, nil
}

// parseSignals extracts the effect list for each named signal.
func parseSignals(v cue.Value) (map[string][]world.Effect, error) {
	signalsVal := v.LookupPath(cue.ParsePath("signals"))
	if !signalsVal.Exists() {
		return nil, nil
	}

	iter, err := signalsVal.Fields()
	if err != nil {
		return nil, formatCUEError(err)
	}

	signals := make(map[string][]world.Effect)
	for iter.Next() {
		name := iter.Label()
		effects, err := parseEffects(iter.Value(), "signals."+name)
		if err != nil {
			return nil, err
		}
		signals[name] = effects
	}
	return signals, nil
}

// parseEffects reads a list of effect structs.
func parseEffects(v cue.Value, field string) ([]world.Effect, error) {
	iter, err := v.List()
	if err != nil {
		return nil, formatCUEError(err)
	}

	var effects []world.Effect
	for i := 0; iter.Next(); i++ {
		ev := iter.Value()
		where := fmt.Sprintf("%s[%d]", field, i)

		op, err := ev.LookupPath(cue.ParsePath("op")).String()
		if err != nil {
			return nil, &CompileError{Field: where + ".op", Message: "op is required", Pos: ev.Pos()}
		}
		eff := world.Effect{Op: world.EffectOp(op)}

		for _, f := range []struct {
			name string
			dst  *string
		}{
			{"property", &eff.Property},
			{"event", &eff.Event},
			{"target", &eff.Target},
			{"table", &eff.Table},
			{"key", &eff.Key},
		} {
			fv := ev.LookupPath(cue.ParsePath(f.name))
			if !fv.Exists() {
				continue
			}
			if *f.dst, err = fv.String(); err != nil {
				return nil, formatCUEError(err)
			}
		}

		if vv := ev.LookupPath(cue.ParsePath("value")); vv.Exists() {
			eff.Value, err = toValue(vv)
			if err != nil {
				return nil, err
			}
		}

		effects = append(effects, eff)
	}
	return effects, nil
}

// extractType converts a CUE kind to a property type.
// Floats are forbidden: values are integers end to end.
func extractType(v cue.Value) (value.Type, error) {
	switch v.IncompleteKind() {
	case cue.StringKind:
		return value.TypeString, nil
	case cue.IntKind:
		return value.TypeInt, nil
	case cue.BoolKind:
		return value.TypeBool, nil
	case cue.ListKind:
		return value.TypeArray, nil
	case cue.StructKind:
		return value.TypeObject, nil
	case cue.NullKind:
		return value.TypeNull, nil
	case cue.TopKind:
		return value.TypeAny, nil
	case cue.FloatKind, cue.NumberKind:
		return value.TypeAny, &CompileError{
			Field:   "type",
			Message: "float types are forbidden - use int instead",
			Pos:     v.Pos(),
		}
	default:
		return value.TypeAny, &CompileError{
			Field:   "type",
			Message: fmt.Sprintf("unsupported type kind: %v", v.IncompleteKind()),
			Pos:     v.Pos(),
		}
	}
}

// defaultValue returns the default or concrete value of v, or nil when v
// is only a type.
func defaultValue(v cue.Value) (value.Value, error) {
	if d, ok := v.Default(); ok {
		v = d
	}
	if v.Validate(cue.Concrete(true)) != nil {
		return nil, nil
	}
	return toValue(v)
}

// toValue converts a concrete CUE value through its JSON form, which
// rejects floats and keeps large integers exact.
func toValue(v cue.Value) (value.Value, error) {
	raw, err := v.MarshalJSON()
	if err != nil {
		return nil, formatCUEError(err)
	}
	out, err := value.Parse(raw)
	if err != nil {
		return nil, &CompileError{Field: "value", Message: err.Error(), Pos: v.Pos()}
	}
	return out, nil
}

func stringList(v cue.Value, field string) ([]string, error) {
	lv := v.LookupPath(cue.ParsePath(field))
	if !lv.Exists() {
		return nil, nil
	}
	iter, err := lv.List()
	if err != nil {
		return nil, formatCUEError(err)
	}
	var out []string
	for iter.Next() {
		s, err := iter.Value().String()
		if err != nil {
			return nil, formatCUEError(err)
		}
		out = append(out, s)
	}
	return out, nil
}

// unquote strips the quotes CUE keeps on labels that are not identifiers.
func unquote(label string) string {
	if len(label) >= 2 && label[0] == '"' && label[len(label)-1] == '"' {
		return label[1 : len(label)-1]
	}
	return label
}

// CompileError represents a compilation error with source position.
type CompileError struct {
	Field   string
	Message string
	Pos     token.Pos
}

func (e *CompileError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s",
			e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(),
			e.Field, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// formatCUEError extracts position info from CUE errors.
func formatCUEError(err error) error {
	if err == nil {
		return nil
	}

	// CUE errors may contain multiple errors
	errs := errors.Errors(err)
	if len(errs) == 0 {
		return err
	}

	firstErr := errs[0]
	positions := errors.Positions(firstErr)
	if len(positions) > 0 {
		return &CompileError{
			Field:   "cue",
			Message: firstErr.Error(),
			Pos:     positions[0],
		}
	}

	return err
}
