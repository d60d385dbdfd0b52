package content

import (
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/roach88/simkernel/internal/lens"
	"github.com/roach88/simkernel/internal/value"
	"github.com/roach88/simkernel/internal/world"
)

// Loader reads descriptors for File content.
type Loader interface {
	Load(path string) (Descriptor, error)
}

// LoaderFunc adapts a function to Loader.
type LoaderFunc func(path string) (Descriptor, error)

// Load implements Loader.
func (f LoaderFunc) Load(path string) (Descriptor, error) { return f(path) }

// Origin records where content came from. Relative File paths resolve
// against Dir.
type Origin struct {
	Source string
	Dir    string
}

// Synchronizer expands content into a world.
type Synchronizer struct {
	loader    Loader
	logger    *slog.Logger
	fileDepth int
}

const maxFileDepth = 32

// Option configures a Synchronizer.
type Option func(*Synchronizer)

// WithLoader sets the loader used for File content.
func WithLoader(l Loader) Option {
	return func(s *Synchronizer) { s.loader = l }
}

// WithLogger sets the logger. The default is slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(s *Synchronizer) { s.logger = l }
}

// New creates a Synchronizer.
func New(opts ...Option) *Synchronizer {
	s := &Synchronizer{logger: slog.Default()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Expand materializes c under parent.
//
// Static content returns the simulant it created. Stream content installs
// itself on parent and returns parent. File content returns the root of
// the spliced subtree. If setting up a static simulant fails after it was
// created, the simulant is destroyed again before the error is returned.
func (s *Synchronizer) Expand(w *world.World, c Content, parent world.Address, origin Origin) (world.Simulant, error) {
	switch c := c.(type) {
	case *Static:
		return s.expandStatic(w, c, parent, origin)
	case *Stream:
		return s.expandStream(w, c, parent, origin)
	case *File:
		return s.expandFile(w, c, parent, origin)
	case nil:
		return world.Simulant{}, errors.New("expand: nil content")
	default:
		return world.Simulant{}, fmt.Errorf("expand: unsupported content %T", c)
	}
}

// Expand is New().Expand.
func Expand(w *world.World, c Content, parent world.Address, origin Origin) (world.Simulant, error) {
	return New(WithLogger(w.Logger())).Expand(w, c, parent, origin)
}

func childKind(w *world.World, parent world.Address) (world.Kind, error) {
	p, ok := w.Lookup(parent)
	if !ok {
		return 0, &world.Error{Code: world.ErrCodeInvalidParent, Message: "parent does not exist", Address: parent}
	}
	if p.Kind() == world.KindEntity {
		return 0, &world.Error{Code: world.ErrCodeInvalidParent, Message: "entities have no children", Address: parent}
	}
	return p.Kind() + 1, nil
}

// resolveDispatcher looks name up in the registry. An unregistered name
// equal to the kind's own name falls back to the kind default.
func resolveDispatcher(w *world.World, name string, kind world.Kind) (world.Dispatcher, error) {
	if name == "" {
		return nil, nil
	}
	d, err := w.Dispatcher(name)
	if err != nil {
		if name == kind.String() {
			return nil, nil
		}
		return nil, err
	}
	return d, nil
}

func (s *Synchronizer) expandStatic(w *world.World, c *Static, parent world.Address, origin Origin) (world.Simulant, error) {
	kind, err := childKind(w, parent)
	if err != nil {
		return world.Simulant{}, err
	}
	if c.Kind != world.KindGame && c.Kind != kind {
		return world.Simulant{}, &world.Error{
			Code:    world.ErrCodeInvalidParent,
			Message: fmt.Sprintf("%s content cannot be expanded where a %s belongs", c.Kind, kind),
			Address: parent,
		}
	}
	d, err := resolveDispatcher(w, c.Dispatcher, kind)
	if err != nil {
		return world.Simulant{}, fmt.Errorf("expand %s: %w", parent.Child(c.Name), err)
	}
	sim, err := w.Create(kind, parent, c.Name, d, c.Properties)
	if err != nil {
		return world.Simulant{}, err
	}

	if err := s.setup(w, c, sim, origin); err != nil {
		if w.IsCurrent(sim) {
			if derr := w.DestroyImmediate(sim.Address); derr != nil {
				s.logger.Error("rollback of partial content failed",
					slog.String("address", sim.Address.String()),
					slog.String("error", derr.Error()),
				)
			}
		}
		return world.Simulant{}, fmt.Errorf("expand %s: %w", sim.Address, err)
	}

	s.logger.Debug("content expanded",
		slog.String("address", sim.Address.String()),
		slog.String("origin", origin.Source),
	)
	return sim, nil
}

func (s *Synchronizer) setup(w *world.World, c *Static, sim world.Simulant, origin Origin) error {
	for _, b := range c.Bindings {
		if err := bind(w, sim, b); err != nil {
			return err
		}
	}
	for _, h := range c.Handlers {
		if err := handle(w, sim, h); err != nil {
			return err
		}
	}
	for _, child := range c.Children {
		if _, err := s.Expand(w, child, sim.Address, origin); err != nil {
			return err
		}
	}
	return nil
}

func bind(w *world.World, sim world.Simulant, b Binding) error {
	if b.Source == nil {
		return fmt.Errorf("binding %s: no source", b.Property)
	}
	src, err := b.Source(sim.Address)
	if err != nil {
		return fmt.Errorf("binding %s: %w", b.Property, err)
	}
	target := sim.Address
	_, err = src.Stream().Bind(w, target, func(w *world.World, v value.Value) error {
		return w.Set(target, b.Property, v)
	})
	if err != nil {
		return fmt.Errorf("binding %s <- %s: %w", b.Property, src, err)
	}
	return nil
}

func handle(w *world.World, sim world.Simulant, h Handler) error {
	p, err := h.pattern(sim.Address)
	if err != nil {
		return err
	}
	self := sim.Address
	_, err = w.Monitor(p, self, func(w *world.World, ev *world.Event) error {
		if h.Signal != nil {
			sig := h.Signal
			if name, ok := sig.(value.String); ok {
				sig = value.Obj(value.P("signal", name), value.P("value", ev.Data))
			}
			if err := w.Signal(self, sig); err != nil {
				return err
			}
		}
		if h.Callback != nil {
			if err := h.Callback(w, ev); err != nil {
				return err
			}
		}
		if h.Handles {
			ev.Handled = true
		}
		return nil
	})
	return err
}

func (s *Synchronizer) expandFile(w *world.World, f *File, parent world.Address, origin Origin) (world.Simulant, error) {
	if s.loader == nil {
		return world.Simulant{}, fmt.Errorf("expand file %s: no loader configured", f.Path)
	}
	path := f.Path
	if !filepath.IsAbs(path) && origin.Dir != "" {
		path = filepath.Join(origin.Dir, path)
	}
	d, err := s.loader.Load(path)
	if err != nil {
		return world.Simulant{}, fmt.Errorf("expand file %s: %w", path, err)
	}
	if f.Name != "" {
		d.Name = f.Name
	}
	c, err := FromDescriptor(d)
	if err != nil {
		return world.Simulant{}, fmt.Errorf("expand file %s: %w", path, err)
	}
	if s.fileDepth >= maxFileDepth {
		return world.Simulant{}, fmt.Errorf("expand file %s: file references nested deeper than %d", path, maxFileDepth)
	}
	s.fileDepth++
	defer func() { s.fileDepth-- }()
	return s.Expand(w, c, parent, Origin{Source: path, Dir: filepath.Dir(path)})
}

// streamState tracks the live children of one stream, keyed by element.
type streamState struct {
	owner    world.Address
	stream   *Stream
	source   lens.Lens
	key      KeyFunc
	origin   Origin
	children map[string]world.Simulant
	order    []string
}

func (s *Synchronizer) expandStream(w *world.World, st *Stream, parent world.Address, origin Origin) (world.Simulant, error) {
	owner, ok := w.Lookup(parent)
	if !ok {
		return world.Simulant{}, &world.Error{Code: world.ErrCodeInvalidParent, Message: "stream owner does not exist", Address: parent}
	}
	if st.Source == nil || st.Map == nil {
		return world.Simulant{}, fmt.Errorf("stream under %s: source and map are required", parent)
	}
	src, err := st.Source(parent)
	if err != nil {
		return world.Simulant{}, fmt.Errorf("stream under %s: %w", parent, err)
	}
	state := &streamState{
		owner:    parent,
		stream:   st,
		source:   src,
		key:      st.Key,
		origin:   origin,
		children: make(map[string]world.Simulant),
	}
	if state.key == nil {
		state.key = DigestKey
	}

	// The subscription is owned by the parent and installed before the
	// first sync, so it ranks before every child's own bindings under
	// either sort policy and removes children before they react.
	_, err = src.Stream().Bind(w, parent, func(w *world.World, v value.Value) error {
		return s.sync(w, state, v)
	})
	if err != nil {
		return world.Simulant{}, fmt.Errorf("stream %s under %s: %w", src, parent, err)
	}
	return owner, nil
}

// sync reconciles the stream's children with collection v. Children of
// removed keys are destroyed immediately, new keys are expanded in
// collection order, and children of kept keys are left untouched.
func (s *Synchronizer) sync(w *world.World, state *streamState, v value.Value) error {
	var elems value.Array
	switch coll := v.(type) {
	case value.Array:
		elems = coll
	case value.Null:
	default:
		return fmt.Errorf("stream %s: expected array, got %s", state.source, value.TypeOf(v))
	}

	keys := make([]string, 0, len(elems))
	seen := make(map[string]struct{}, len(elems))
	for i, elem := range elems {
		k, err := state.key(elem)
		if err != nil {
			return fmt.Errorf("stream %s: element %d: %w", state.source, i, err)
		}
		if _, dup := seen[k]; dup {
			return fmt.Errorf("stream %s: duplicate element key %q", state.source, k)
		}
		seen[k] = struct{}{}
		keys = append(keys, k)
	}

	removed := 0
	for _, k := range state.order {
		if _, keep := seen[k]; keep {
			continue
		}
		child := state.children[k]
		delete(state.children, k)
		removed++
		if !w.IsCurrent(child) {
			continue
		}
		if err := w.DestroyImmediate(child.Address); err != nil {
			return fmt.Errorf("stream %s: remove %s: %w", state.source, child.Address, err)
		}
	}

	added := 0
	for _, k := range keys {
		if child, ok := state.children[k]; ok && w.IsCurrent(child) {
			continue
		}
		child, err := s.expandElement(w, state, k)
		if err != nil {
			return err
		}
		state.children[k] = child
		added++
	}
	state.order = keys

	if added > 0 || removed > 0 {
		s.logger.Debug("stream synced",
			slog.String("owner", state.owner.String()),
			slog.String("source", state.source.String()),
			slog.Int("added", added),
			slog.Int("removed", removed),
		)
	}
	return nil
}

func (s *Synchronizer) expandElement(w *world.World, state *streamState, key string) (world.Simulant, error) {
	keyOf := state.key
	elem := lens.Find(state.source, key, func(e value.Value) bool {
		k, err := keyOf(e)
		return err == nil && k == key
	})
	c, err := state.stream.Map(key, elem)
	if err != nil {
		return world.Simulant{}, fmt.Errorf("stream %s: map %q: %w", state.source, key, err)
	}
	if _, nested := c.(*Stream); nested {
		return world.Simulant{}, fmt.Errorf("stream %s: map %q returned stream content", state.source, key)
	}
	child, err := s.Expand(w, c, state.owner, state.origin)
	if err != nil {
		return world.Simulant{}, fmt.Errorf("stream %s: element %q: %w", state.source, key, err)
	}
	return child, nil
}
