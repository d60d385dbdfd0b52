package content

import (
	"errors"
	"fmt"
	"slices"

	"github.com/roach88/simkernel/internal/lens"
	"github.com/roach88/simkernel/internal/value"
	"github.com/roach88/simkernel/internal/world"
)

// Descriptor is the data-only form of content. It is what WriteSubtree
// produces, what ReadSubtree consumes, and what the compiler emits.
type Descriptor struct {
	Kind       string              `json:"kind,omitempty" yaml:"kind,omitempty"`
	Name       string              `json:"name,omitempty" yaml:"name,omitempty"`
	Dispatcher string              `json:"dispatcher,omitempty" yaml:"dispatcher,omitempty"`
	Properties value.Object        `json:"properties,omitempty" yaml:"properties,omitempty"`
	Bindings   []BindingDescriptor `json:"bindings,omitempty" yaml:"bindings,omitempty"`
	Handlers   []HandlerDescriptor `json:"handlers,omitempty" yaml:"handlers,omitempty"`
	Children   []Descriptor        `json:"children,omitempty" yaml:"children,omitempty"`
	Streams    []StreamDescriptor  `json:"streams,omitempty" yaml:"streams,omitempty"`

	// File makes this a file reference; only Name may accompany it.
	File string `json:"file,omitempty" yaml:"file,omitempty"`
}

// BindingDescriptor binds Property to a "path.Property" source reference.
type BindingDescriptor struct {
	Property string `json:"property" yaml:"property"`
	Source   string `json:"source" yaml:"source"`
}

// HandlerDescriptor delivers Signal to the dispatcher when Event is
// published to Subject.
type HandlerDescriptor struct {
	Event   string `json:"event" yaml:"event"`
	Subject string `json:"subject,omitempty" yaml:"subject,omitempty"`
	Signal  string `json:"signal,omitempty" yaml:"signal,omitempty"`
	Handles bool   `json:"handles,omitempty" yaml:"handles,omitempty"`
}

// StreamDescriptor expands Template once per element of the array at
// Source.
//
// With KeyField set, elements are keyed by that field and each child is
// named Template.Name followed by the key. Without it, elements are keyed
// by digest and children get generated names. Element binds template
// properties to element fields; an empty field binds the whole element.
type StreamDescriptor struct {
	Source   string            `json:"source" yaml:"source"`
	KeyField string            `json:"key_field,omitempty" yaml:"key_field,omitempty"`
	Element  map[string]string `json:"element,omitempty" yaml:"element,omitempty"`
	Template Descriptor        `json:"template" yaml:"template"`
}

// IsFile reports whether d is a file reference.
func (d Descriptor) IsFile() bool {
	return d.File != ""
}

// Validate checks names, kinds and references throughout d. All problems
// are reported together.
func (d Descriptor) Validate() error {
	var errs []error
	d.validate(d.Name, &errs)
	return errors.Join(errs...)
}

func (d Descriptor) validate(path string, errs *[]error) {
	fail := func(format string, args ...any) {
		*errs = append(*errs, fmt.Errorf("%s: %s", displayPath(path), fmt.Sprintf(format, args...)))
	}
	if d.Kind != "" {
		if _, err := world.ParseKind(d.Kind); err != nil {
			fail("%v", err)
		}
	}
	if d.Name != "" {
		if _, err := world.NewAddress(d.Name); err != nil {
			fail("invalid name %q", d.Name)
		}
	}
	if d.IsFile() {
		if d.Dispatcher != "" || len(d.Properties) > 0 || len(d.Bindings) > 0 ||
			len(d.Handlers) > 0 || len(d.Children) > 0 || len(d.Streams) > 0 {
			fail("file reference %q cannot carry other content", d.File)
		}
		return
	}
	for _, b := range d.Bindings {
		if b.Property == "" {
			fail("binding without property")
		}
		if err := checkSource(b.Source); err != nil {
			fail("binding %s: %v", b.Property, err)
		}
	}
	for _, h := range d.Handlers {
		if h.Event == "" {
			fail("handler without event")
		}
	}
	names := make(map[string]struct{})
	for _, c := range d.Children {
		if c.Name != "" {
			if _, dup := names[c.Name]; dup {
				fail("duplicate child name %q", c.Name)
			}
			names[c.Name] = struct{}{}
		}
		c.validate(path+"/"+c.Name, errs)
	}
	for i, sd := range d.Streams {
		if err := checkSource(sd.Source); err != nil {
			fail("stream %d: %v", i, err)
		}
		if sd.Template.IsFile() {
			fail("stream %d: template cannot be a file reference", i)
		}
		sd.Template.validate(fmt.Sprintf("%s/<stream %d>", path, i), errs)
	}
}

func displayPath(p string) string {
	if p == "" {
		return "<root>"
	}
	return p
}

// FromDescriptor converts d into expandable content after validating it.
func FromDescriptor(d Descriptor) (Content, error) {
	if err := d.Validate(); err != nil {
		return nil, fmt.Errorf("invalid descriptor: %w", err)
	}
	return fromDescriptor(d)
}

func fromDescriptor(d Descriptor) (Content, error) {
	if d.IsFile() {
		return &File{Name: d.Name, Path: d.File}, nil
	}
	st := &Static{
		Name:       d.Name,
		Dispatcher: d.Dispatcher,
		Properties: d.Properties,
	}
	if d.Kind != "" {
		k, err := world.ParseKind(d.Kind)
		if err != nil {
			return nil, err
		}
		st.Kind = k
	}
	for _, b := range d.Bindings {
		st.Bindings = append(st.Bindings, Binding{Property: b.Property, Source: Ref(b.Source)})
	}
	for _, h := range d.Handlers {
		handler := Handler{Event: h.Event, Subject: h.Subject, Handles: h.Handles}
		if h.Signal != "" {
			handler.Signal = value.String(h.Signal)
		}
		st.Handlers = append(st.Handlers, handler)
	}
	for _, c := range d.Children {
		child, err := fromDescriptor(c)
		if err != nil {
			return nil, err
		}
		st.Children = append(st.Children, child)
	}
	for _, sd := range d.Streams {
		st.Children = append(st.Children, streamFromDescriptor(sd))
	}
	return st, nil
}

func streamFromDescriptor(sd StreamDescriptor) *Stream {
	stream := &Stream{Source: Ref(sd.Source)}
	if sd.KeyField != "" {
		stream.Key = FieldKey(sd.KeyField)
	}
	props := make([]string, 0, len(sd.Element))
	for p := range sd.Element {
		props = append(props, p)
	}
	slices.Sort(props)

	stream.Map = func(key string, elem lens.Lens) (Content, error) {
		c, err := fromDescriptor(sd.Template)
		if err != nil {
			return nil, err
		}
		st := c.(*Static)
		st.Name = ""
		if sd.KeyField != "" {
			name := sd.Template.Name + key
			if _, err := world.NewAddress(name); err == nil {
				st.Name = name
			}
		}
		for _, p := range props {
			src := elem
			if field := sd.Element[p]; field != "" {
				src = lens.Field(elem, field)
			}
			st.Bindings = append(st.Bindings, Binding{Property: p, Source: Fixed(src)})
		}
		return st, nil
	}
	return stream
}

func checkSource(s string) error {
	if lens.IsTableRef(s) {
		_, _, err := lens.ParseTableRef(s)
		return err
	}
	_, err := lens.ParseRef(s)
	return err
}
