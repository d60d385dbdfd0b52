package compiler

import (
	"fmt"
	"slices"
	"strings"

	"github.com/roach88/simkernel/internal/content"
	"github.com/roach88/simkernel/internal/lens"
	"github.com/roach88/simkernel/internal/value"
	"github.com/roach88/simkernel/internal/world"
)

// Validation error codes (E200-E299)
const (
	// General validation errors (E200)
	ErrUnsupportedType = "E200" // unsupported type for validation

	// Dispatcher errors (E201-E209)
	ErrDispatcherNoName    = "E201" // dispatcher name is required
	ErrDuplicateProperty   = "E202" // duplicate property name
	ErrIntrinsicRedeclared = "E203" // intrinsic property redeclared
	ErrDefaultMismatch     = "E204" // default value does not match type
	ErrUnknownEffectOp     = "E205" // unknown effect op
	ErrEffectProperty      = "E206" // effect property missing or undeclared
	ErrEffectNotInt        = "E207" // add effect on a non-int property
	ErrEffectNoEvent       = "E208" // publish effect without event
	ErrEffectTableKey      = "E209" // table effect without key

	// Descriptor errors (E210-E219)
	ErrInvalidKind         = "E210" // unknown simulant kind
	ErrInvalidName         = "E211" // name not usable as an address segment
	ErrInvalidSource       = "E212" // binding or stream source is malformed
	ErrHandlerNoEvent      = "E213" // handler event is required
	ErrDuplicateChild      = "E214" // duplicate child name
	ErrFileWithContent     = "E215" // file reference carries other content
	ErrStreamTemplateFile  = "E216" // stream template is a file reference
	ErrUnknownDispatcher   = "E217" // dispatcher reference not declared
	ErrDuplicateDispatcher = "E218" // dispatcher declared twice
	ErrBindingNoProperty   = "E219" // binding without property
)

// ValidationError represents a schema validation error.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code"`
	Line    int    `json:"line,omitempty"`
}

// Error implements the error interface.
func (e ValidationError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("[%s] line %d: %s: %s", e.Code, e.Line, e.Field, e.Message)
	}
	return fmt.Sprintf("[%s] %s: %s", e.Code, e.Field, e.Message)
}

// Validate validates compiled dispatchers, descriptors and programs.
// Returns all errors found (does not fail-fast).
func Validate(v any) []ValidationError {
	switch t := v.(type) {
	case *world.SchemaDispatcher:
		return validateDispatcher(t)
	case world.SchemaDispatcher:
		return validateDispatcher(&t)
	case content.Descriptor:
		return validateDescriptor(t)
	case *content.Descriptor:
		return validateDescriptor(*t)
	case *Program:
		return validateProgram(t)
	default:
		return []ValidationError{{
			Field:   "type",
			Message: fmt.Sprintf("unsupported type: %T", v),
			Code:    ErrUnsupportedType,
		}}
	}
}

func validateDispatcher(d *world.SchemaDispatcher) []ValidationError {
	var errs []ValidationError

	if strings.TrimSpace(d.DispatcherName) == "" {
		errs = append(errs, ValidationError{
			Field:   "name",
			Message: "dispatcher name is required and must be non-empty",
			Code:    ErrDispatcherNoName,
		})
	}

	declared := make(map[string]value.Type)
	for i, p := range d.Props {
		field := fmt.Sprintf("properties[%d]", i)
		if world.IsIntrinsic(p.Name) {
			errs = append(errs, ValidationError{
				Field:   field,
				Message: fmt.Sprintf("intrinsic property %q cannot be redeclared", p.Name),
				Code:    ErrIntrinsicRedeclared,
			})
			continue
		}
		if _, dup := declared[p.Name]; dup {
			errs = append(errs, ValidationError{
				Field:   field,
				Message: fmt.Sprintf("duplicate property name: %q", p.Name),
				Code:    ErrDuplicateProperty,
			})
		}
		declared[p.Name] = p.Type
		if p.Default != nil && !p.Type.Accepts(p.Default) {
			errs = append(errs, ValidationError{
				Field:   field + ".default",
				Message: fmt.Sprintf("default %s is not a %s", value.Format(p.Default), p.Type),
				Code:    ErrDefaultMismatch,
			})
		}
	}

	// Effects on self may only touch declared properties or Enabled.
	for _, name := range sortedKeys(d.Signals) {
		errs = append(errs, validateEffects(d.Signals[name], "signals."+name, declared)...)
	}
	errs = append(errs, validateEffects(d.OnUpdate, "on_update", declared)...)

	return errs
}

func validateEffects(effects []world.Effect, field string, declared map[string]value.Type) []ValidationError {
	var errs []ValidationError
	for i, eff := range effects {
		where := fmt.Sprintf("%s[%d]", field, i)
		switch eff.Op {
		case world.EffectSet, world.EffectAdd:
			if eff.Property == "" {
				errs = append(errs, ValidationError{
					Field:   where + ".property",
					Message: fmt.Sprintf("%s effect requires a property", eff.Op),
					Code:    ErrEffectProperty,
				})
				continue
			}
			if eff.Target != "" {
				continue
			}
			typ, ok := declared[eff.Property]
			if !ok && eff.Property == world.PropEnabled {
				typ, ok = value.TypeBool, true
			}
			if !ok {
				errs = append(errs, ValidationError{
					Field:   where + ".property",
					Message: fmt.Sprintf("property %q is not declared", eff.Property),
					Code:    ErrEffectProperty,
				})
				continue
			}
			if eff.Op == world.EffectAdd && typ != value.TypeInt {
				errs = append(errs, ValidationError{
					Field:   where + ".property",
					Message: fmt.Sprintf("add requires an int property, %q is %s", eff.Property, typ),
					Code:    ErrEffectNotInt,
				})
			}
		case world.EffectPublish:
			if eff.Event == "" {
				errs = append(errs, ValidationError{
					Field:   where + ".event",
					Message: "publish effect requires an event",
					Code:    ErrEffectNoEvent,
				})
			}
		case world.EffectDestroy:
		default:
			errs = append(errs, ValidationError{
				Field:   where + ".op",
				Message: fmt.Sprintf("unknown effect op %q", eff.Op),
				Code:    ErrUnknownEffectOp,
			})
		}
		if eff.Table != "" && eff.Key == "" {
			errs = append(errs, ValidationError{
				Field:   where + ".key",
				Message: fmt.Sprintf("table %q lookup requires a key", eff.Table),
				Code:    ErrEffectTableKey,
			})
		}
	}
	return errs
}

func validateDescriptor(d content.Descriptor) []ValidationError {
	var errs []ValidationError
	walkDescriptor(d, displayName(d.Name), func(path string, d content.Descriptor) {
		errs = append(errs, checkDescriptor(path, d)...)
	})
	return errs
}

// walkDescriptor visits d and every child and stream template, depth first.
func walkDescriptor(d content.Descriptor, path string, visit func(string, content.Descriptor)) {
	visit(path, d)
	for _, c := range d.Children {
		walkDescriptor(c, path+"/"+displayName(c.Name), visit)
	}
	for i, sd := range d.Streams {
		walkDescriptor(sd.Template, fmt.Sprintf("%s/streams[%d]", path, i), visit)
	}
}

func checkDescriptor(path string, d content.Descriptor) []ValidationError {
	var errs []ValidationError
	add := func(code, field, format string, args ...any) {
		errs = append(errs, ValidationError{Field: path + field, Message: fmt.Sprintf(format, args...), Code: code})
	}

	if d.Kind != "" {
		if _, err := world.ParseKind(d.Kind); err != nil {
			add(ErrInvalidKind, ".kind", "unknown kind %q", d.Kind)
		}
	}
	if d.Name != "" {
		if _, err := world.NewAddress(d.Name); err != nil {
			add(ErrInvalidName, ".name", "invalid name %q", d.Name)
		}
	}
	if d.IsFile() {
		if d.Dispatcher != "" || len(d.Properties) > 0 || len(d.Bindings) > 0 ||
			len(d.Handlers) > 0 || len(d.Children) > 0 || len(d.Streams) > 0 {
			add(ErrFileWithContent, ".file", "file reference %q cannot carry other content", d.File)
		}
		return errs
	}

	for i, b := range d.Bindings {
		if b.Property == "" {
			add(ErrBindingNoProperty, fmt.Sprintf(".bindings[%d]", i), "binding without property")
		}
		if err := checkSource(b.Source); err != nil {
			add(ErrInvalidSource, fmt.Sprintf(".bindings[%d]", i), "%v", err)
		}
	}
	for i, h := range d.Handlers {
		if h.Event == "" {
			add(ErrHandlerNoEvent, fmt.Sprintf(".handlers[%d]", i), "handler event is required")
		}
	}

	seen := make(map[string]bool)
	for _, c := range d.Children {
		if c.Name == "" {
			continue
		}
		if seen[c.Name] {
			add(ErrDuplicateChild, ".children", "duplicate child name %q", c.Name)
		}
		seen[c.Name] = true
	}

	for i, sd := range d.Streams {
		if err := checkSource(sd.Source); err != nil {
			add(ErrInvalidSource, fmt.Sprintf(".streams[%d]", i), "%v", err)
		}
		if sd.Template.IsFile() {
			add(ErrStreamTemplateFile, fmt.Sprintf(".streams[%d].template", i), "stream template cannot be a file reference")
		}
	}
	return errs
}

func validateProgram(p *Program) []ValidationError {
	var errs []ValidationError

	known := make(map[string]bool)
	for _, k := range []world.Kind{world.KindGame, world.KindScreen, world.KindLayer, world.KindEntity} {
		known[k.String()] = true
	}
	declared := make(map[string]bool)
	for _, d := range p.Dispatchers {
		if declared[d.DispatcherName] {
			errs = append(errs, ValidationError{
				Field:   "dispatchers." + d.DispatcherName,
				Message: fmt.Sprintf("dispatcher %q declared twice", d.DispatcherName),
				Code:    ErrDuplicateDispatcher,
			})
		}
		declared[d.DispatcherName] = true
		for _, e := range validateDispatcher(d) {
			e.Field = "dispatchers." + d.DispatcherName + "." + e.Field
			errs = append(errs, e)
		}
	}

	for _, d := range p.Content {
		errs = append(errs, validateDescriptor(d)...)
		walkDescriptor(d, displayName(d.Name), func(path string, d content.Descriptor) {
			if d.Dispatcher == "" || declared[d.Dispatcher] || known[d.Dispatcher] ||
				slices.Contains(p.External, d.Dispatcher) {
				return
			}
			errs = append(errs, ValidationError{
				Field:   path + ".dispatcher",
				Message: fmt.Sprintf("dispatcher %q is not declared", d.Dispatcher),
				Code:    ErrUnknownDispatcher,
			})
		})
	}

	return errs
}

func checkSource(s string) error {
	if lens.IsTableRef(s) {
		_, _, err := lens.ParseTableRef(s)
		return err
	}
	_, err := lens.ParseRef(s)
	return err
}

func displayName(name string) string {
	if name == "" {
		return "<unnamed>"
	}
	return name
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
