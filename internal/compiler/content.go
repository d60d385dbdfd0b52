package compiler

import (
	"fmt"

	"cuelang.org/go/cue"

	"github.com/roach88/simkernel/internal/content"
	"github.com/roach88/simkernel/internal/value"
)

// CompileContent parses a CUE value into a content descriptor.
//
// The descriptor's name is the struct label; children are a struct keyed
// by child name and keep their CUE declaration order:
//
//	content: Hud: {
//		kind: "Screen"
//		children: Gui: {
//			kind: "Layer"
//			children: Score: {
//				dispatcher: "Label"
//				bindings: Text: "/Model/State.Title"
//				handlers: [{event: "Click", signal: "Clicked"}]
//			}
//		}
//	}
func CompileContent(v cue.Value) (content.Descriptor, error) {
	if err := v.Err(); err != nil {
		return content.Descriptor{}, formatCUEError(err)
	}

	var name string
	labels := v.Path().Selectors()
	if len(labels) > 0 {
		name = unquote(labels[len(labels)-1].String())
	}
	return compileDescriptor(v, name)
}

func compileDescriptor(v cue.Value, name string) (content.Descriptor, error) {
	d := content.Descriptor{Name: name}

	var err error
	for _, f := range []struct {
		name string
		dst  *string
	}{
		{"name", &d.Name},
		{"kind", &d.Kind},
		{"dispatcher", &d.Dispatcher},
		{"file", &d.File},
	} {
		if *f.dst, err = optionalString(v, f.name, *f.dst); err != nil {
			return d, err
		}
	}

	if propsVal := v.LookupPath(cue.ParsePath("properties")); propsVal.Exists() {
		d.Properties, err = parsePropertyValues(propsVal)
		if err != nil {
			return d, err
		}
	}

	if d.Bindings, err = parseBindings(v); err != nil {
		return d, err
	}
	if d.Handlers, err = parseHandlers(v); err != nil {
		return d, err
	}
	if d.Children, err = parseChildren(v); err != nil {
		return d, err
	}
	if d.Streams, err = parseStreams(v); err != nil {
		return d, err
	}

	return d, nil
}

// parsePropertyValues reads initial property values, which must be concrete.
func parsePropertyValues(v cue.Value) (value.Object, error) {
	iter, err := v.Fields()
	if err != nil {
		return nil, formatCUEError(err)
	}
	props := value.Object{}
	for iter.Next() {
		pv := iter.Value()
		if d, ok := pv.Default(); ok {
			pv = d
		}
		if err := pv.Validate(cue.Concrete(true)); err != nil {
			return nil, &CompileError{
				Field:   "properties." + iter.Label(),
				Message: "property values must be concrete",
				Pos:     pv.Pos(),
			}
		}
		if props[iter.Label()], err = toValue(pv); err != nil {
			return nil, err
		}
	}
	return props, nil
}

// parseBindings reads a struct of property to source reference.
func parseBindings(v cue.Value) ([]content.BindingDescriptor, error) {
	bindVal := v.LookupPath(cue.ParsePath("bindings"))
	if !bindVal.Exists() {
		return nil, nil
	}
	iter, err := bindVal.Fields()
	if err != nil {
		return nil, formatCUEError(err)
	}
	var bindings []content.BindingDescriptor
	for iter.Next() {
		src, err := iter.Value().String()
		if err != nil {
			return nil, &CompileError{
				Field:   "bindings." + iter.Label(),
				Message: "binding source must be a string reference",
				Pos:     iter.Value().Pos(),
			}
		}
		bindings = append(bindings, content.BindingDescriptor{Property: iter.Label(), Source: src})
	}
	return bindings, nil
}

func parseHandlers(v cue.Value) ([]content.HandlerDescriptor, error) {
	handlersVal := v.LookupPath(cue.ParsePath("handlers"))
	if !handlersVal.Exists() {
		return nil, nil
	}
	iter, err := handlersVal.List()
	if err != nil {
		return nil, formatCUEError(err)
	}
	var handlers []content.HandlerDescriptor
	for i := 0; iter.Next(); i++ {
		hv := iter.Value()
		var h content.HandlerDescriptor
		h.Event, err = hv.LookupPath(cue.ParsePath("event")).String()
		if err != nil {
			return nil, &CompileError{
				Field:   fmt.Sprintf("handlers[%d].event", i),
				Message: "handler event is required",
				Pos:     hv.Pos(),
			}
		}
		if h.Subject, err = optionalString(hv, "subject", ""); err != nil {
			return nil, err
		}
		if h.Signal, err = optionalString(hv, "signal", ""); err != nil {
			return nil, err
		}
		if hs := hv.LookupPath(cue.ParsePath("handles")); hs.Exists() {
			if h.Handles, err = hs.Bool(); err != nil {
				return nil, formatCUEError(err)
			}
		}
		handlers = append(handlers, h)
	}
	return handlers, nil
}

func parseChildren(v cue.Value) ([]content.Descriptor, error) {
	childrenVal := v.LookupPath(cue.ParsePath("children"))
	if !childrenVal.Exists() {
		return nil, nil
	}
	iter, err := childrenVal.Fields()
	if err != nil {
		return nil, formatCUEError(err)
	}
	var children []content.Descriptor
	for iter.Next() {
		child, err := compileDescriptor(iter.Value(), iter.Label())
		if err != nil {
			return nil, err
		}
		children = append(children, child)
	}
	return children, nil
}

func parseStreams(v cue.Value) ([]content.StreamDescriptor, error) {
	streamsVal := v.LookupPath(cue.ParsePath("streams"))
	if !streamsVal.Exists() {
		return nil, nil
	}
	iter, err := streamsVal.List()
	if err != nil {
		return nil, formatCUEError(err)
	}
	var streams []content.StreamDescriptor
	for i := 0; iter.Next(); i++ {
		sv := iter.Value()
		field := fmt.Sprintf("streams[%d]", i)

		var sd content.StreamDescriptor
		if sd.Source, err = sv.LookupPath(cue.ParsePath("source")).String(); err != nil {
			return nil, &CompileError{Field: field + ".source", Message: "stream source is required", Pos: sv.Pos()}
		}
		if sd.KeyField, err = optionalString(sv, "key_field", ""); err != nil {
			return nil, err
		}

		if elemVal := sv.LookupPath(cue.ParsePath("element")); elemVal.Exists() {
			elemIter, err := elemVal.Fields()
			if err != nil {
				return nil, formatCUEError(err)
			}
			sd.Element = make(map[string]string)
			for elemIter.Next() {
				f, err := elemIter.Value().String()
				if err != nil {
					return nil, formatCUEError(err)
				}
				sd.Element[elemIter.Label()] = f
			}
		}

		tmplVal := sv.LookupPath(cue.ParsePath("template"))
		if !tmplVal.Exists() {
			return nil, &CompileError{Field: field + ".template", Message: "stream template is required", Pos: sv.Pos()}
		}
		if sd.Template, err = compileDescriptor(tmplVal, ""); err != nil {
			return nil, err
		}

		streams = append(streams, sd)
	}
	return streams, nil
}

func optionalString(v cue.Value, field, fallback string) (string, error) {
	fv := v.LookupPath(cue.ParsePath(field))
	if !fv.Exists() {
		return fallback, nil
	}
	s, err := fv.String()
	if err != nil {
		return "", formatCUEError(err)
	}
	return s, nil
}
