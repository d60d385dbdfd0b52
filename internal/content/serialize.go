package content

import (
	"fmt"

	"github.com/roach88/simkernel/internal/value"
	"github.com/roach88/simkernel/internal/world"
)

// WriteSubtree captures the simulant at addr and its descendants.
//
// Only properties declared persistent are written; Name and Dispatcher
// become descriptor fields. Children follow creation order, and children
// whose Persistent property is false are skipped with their subtrees.
// Stream children keep the order they were first expanded in: reordering
// the source collection does not move them.
// Bindings, handlers and streams are live wiring and are not captured.
func WriteSubtree(w *world.World, addr world.Address) (Descriptor, error) {
	s, ok := w.Lookup(addr)
	if !ok {
		return Descriptor{}, &world.Error{Code: world.ErrCodeInvalidAddress, Message: "no live simulant at address", Address: addr}
	}
	return writeSimulant(w, s)
}

func writeSimulant(w *world.World, s world.Simulant) (Descriptor, error) {
	d, err := w.DispatcherOf(s.Address)
	if err != nil {
		return Descriptor{}, err
	}
	defs, err := w.Properties(s.Address)
	if err != nil {
		return Descriptor{}, err
	}
	out := Descriptor{
		Kind:       s.Kind().String(),
		Name:       s.Name(),
		Dispatcher: d.Name(),
	}
	for _, def := range defs {
		if !def.Persistent || def.Name == world.PropName || def.Name == world.PropDispatcher {
			continue
		}
		v, err := w.Get(s.Address, def.Name)
		if err != nil {
			return Descriptor{}, err
		}
		if out.Properties == nil {
			out.Properties = value.Object{}
		}
		out.Properties[def.Name] = value.Clone(v)
	}
	for _, c := range w.Children(s.Address) {
		persistent, err := w.GetBool(c.Address, world.PropPersistent)
		if err != nil {
			return Descriptor{}, err
		}
		if !persistent {
			continue
		}
		cd, err := writeSimulant(w, c)
		if err != nil {
			return Descriptor{}, err
		}
		out.Children = append(out.Children, cd)
	}
	return out, nil
}

// ReadSubtree materializes d under parent and returns its root.
//
// A Game descriptor restores onto the existing Game instead: its
// properties are set on the Game and its children are expanded under it.
func ReadSubtree(w *world.World, d Descriptor, parent world.Address) (world.Simulant, error) {
	return New(WithLogger(w.Logger())).ReadSubtree(w, d, parent)
}

// ReadSubtree is the package-level ReadSubtree using s's loader.
func (s *Synchronizer) ReadSubtree(w *world.World, d Descriptor, parent world.Address) (world.Simulant, error) {
	if d.Kind == world.KindGame.String() {
		return s.restoreGame(w, d)
	}
	c, err := FromDescriptor(d)
	if err != nil {
		return world.Simulant{}, err
	}
	return s.Expand(w, c, parent, Origin{Source: "descriptor"})
}

func (s *Synchronizer) restoreGame(w *world.World, d Descriptor) (world.Simulant, error) {
	if err := d.Validate(); err != nil {
		return world.Simulant{}, fmt.Errorf("invalid descriptor: %w", err)
	}
	game := w.Game()
	for _, name := range d.Properties.SortedKeys() {
		if err := w.Set(game.Address, name, d.Properties[name]); err != nil {
			return world.Simulant{}, fmt.Errorf("restore game: %w", err)
		}
	}
	for _, cd := range d.Children {
		c, err := fromDescriptor(cd)
		if err != nil {
			return world.Simulant{}, err
		}
		if _, err := s.Expand(w, c, game.Address, Origin{Source: "descriptor"}); err != nil {
			return world.Simulant{}, err
		}
	}
	return game, nil
}
