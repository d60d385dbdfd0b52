package world

import (
	"fmt"
	"log/slog"

	"github.com/roach88/simkernel/internal/value"
)

// Exists reports whether a live simulant has address addr.
func (w *World) Exists(addr Address) bool {
	_, ok := w.entries[addr]
	return ok
}

// Create adds a simulant of kind under parent.
//
// The parent must be live and exactly one level above kind (Game holds
// Screens, Screens hold Layers, Layers hold Entities); otherwise Create
// fails with InvalidParent. An empty name is replaced by the world's name
// generator. A nil dispatcher resolves to the registration named after
// the kind. Initial properties are checked like Set but publish nothing.
//
// After the simulant is inserted its Register hook runs and a Register
// event is published. If either fails, the simulant is removed again
// without running Unregister and the error is returned.
func (w *World) Create(kind Kind, parent Address, name string, d Dispatcher, initial value.Object) (Simulant, error) {
	pe, ok := w.entries[parent]
	if !ok {
		return Simulant{}, &Error{
			Code:    ErrCodeInvalidParent,
			Message: fmt.Sprintf("parent of %s does not exist", kind),
			Address: parent,
		}
	}
	if kind <= KindGame || kind > KindEntity || pe.kind != kind-1 {
		return Simulant{}, &Error{
			Code:    ErrCodeInvalidParent,
			Message: fmt.Sprintf("%s cannot contain %s", pe.kind, kind),
			Address: parent,
		}
	}

	if name == "" {
		name = w.names.Generate()
	}
	if err := validateSegment(name); err != nil {
		return Simulant{}, err
	}
	addr := parent.Child(name)
	if _, exists := w.entries[addr]; exists {
		return Simulant{}, &Error{
			Code:    ErrCodeNameCollision,
			Message: "a live sibling already has this name",
			Address: addr,
		}
	}
	if d == nil {
		d = w.defaultDispatcher(kind)
	}

	id := w.clock.Next()
	defs, props, err := buildProperties(addr, d, id, initial)
	if err != nil {
		return Simulant{}, err
	}

	e := &entry{
		id:         id,
		address:    addr,
		kind:       kind,
		dispatcher: d,
		defs:       defs,
		props:      props,
		owned:      make(map[SubscriptionID]struct{}),
	}
	w.entries[addr] = e
	pe.children = append(pe.children, addr)

	w.logger.Debug("simulant created",
		slog.String("address", addr.String()),
		slog.String("kind", kind.String()),
		slog.String("dispatcher", d.Name()),
		slog.Int64("id", id),
	)

	if err := w.invokeHook(e, HookRegister, func() error { return d.Register(w, e.handle()) }); err != nil {
		w.discard(addr)
		return Simulant{}, err
	}
	if err := w.PublishAll(EventRegister, addr, nil); err != nil {
		w.discard(addr)
		return Simulant{}, fmt.Errorf("create %s: %w", addr, err)
	}
	return e.handle(), nil
}

// Children returns the live children of addr in creation order.
func (w *World) Children(addr Address) []Simulant {
	e, ok := w.entries[addr]
	if !ok {
		return nil
	}
	out := make([]Simulant, 0, len(e.children))
	for _, c := range e.children {
		out = append(out, w.entries[c].handle())
	}
	return out
}

// Walk visits addr and its descendants in pre-order, children in creation
// order. The visit list is fixed before the first call to fn.
func (w *World) Walk(addr Address, fn func(Simulant) error) error {
	for _, s := range w.preorder(addr) {
		if err := fn(s); err != nil {
			return err
		}
	}
	return nil
}

func (w *World) preorder(addr Address) []Simulant {
	e, ok := w.entries[addr]
	if !ok {
		return nil
	}
	out := []Simulant{e.handle()}
	for _, c := range e.children {
		out = append(out, w.preorder(c)...)
	}
	return out
}

// Count returns the number of live simulants, including the Game.
func (w *World) Count() int {
	return len(w.entries)
}

// DestroyImmediate removes the simulant at addr and its whole subtree now.
//
// Descendants go first (post-order, children in creation order). For
// each simulant an Unregistering event is published (notify-all), then
// the dispatcher's Unregister hook runs, then its subscriptions,
// properties and address are dropped. When DestroyImmediate returns
// nothing in the subtree is reachable.
//
// Calling it during a dispatch pass is safe: the pass skips removed
// subscriptions. A hook or callback failure aborts the destruction and
// leaves the rest of the subtree live.
func (w *World) DestroyImmediate(addr Address) error {
	if addr == GameAddress {
		return &Error{Code: ErrCodeInvalidAddress, Message: "the game cannot be destroyed"}
	}
	e, ok := w.entries[addr]
	if !ok {
		return notLive(addr)
	}
	return w.destroyEntry(e)
}

func (w *World) destroyEntry(e *entry) error {
	// A handler reacting to this destruction may destroy an ancestor; the
	// call already working on e finishes it.
	if e.destroying {
		return nil
	}
	e.destroying = true
	if err := w.unregister(e); err != nil {
		e.destroying = false
		return err
	}
	return nil
}

func (w *World) unregister(e *entry) error {
	children := append([]Address(nil), e.children...)
	for _, c := range children {
		ce, ok := w.entries[c]
		if !ok {
			// Already removed by a nested Unregistering handler.
			continue
		}
		if err := w.destroyEntry(ce); err != nil {
			return err
		}
	}

	if !w.IsCurrent(e.handle()) {
		return nil
	}
	if err := w.PublishAll(EventUnregistering, e.address, nil); err != nil {
		return fmt.Errorf("destroy %s: %w", e.address, err)
	}
	if err := w.invokeHook(e, HookUnregister, func() error { return e.dispatcher.Unregister(w, e.handle()) }); err != nil {
		return err
	}
	if !w.IsCurrent(e.handle()) {
		return nil
	}
	w.discard(e.address)
	w.logger.Debug("simulant destroyed", slog.String("address", e.address.String()), slog.Int64("id", e.id))
	return nil
}

// discard drops a simulant and its subtree without hooks or events.
// Descendants an outer destroyEntry is still working on are left for it
// to remove once their Unregister hook has run.
func (w *World) discard(addr Address) {
	e, ok := w.entries[addr]
	if !ok {
		return
	}
	for _, c := range append([]Address(nil), e.children...) {
		if ce, ok := w.entries[c]; ok && ce.destroying {
			continue
		}
		w.discard(c)
	}
	for id := range e.owned {
		w.Unsubscribe(id)
	}
	delete(w.entries, addr)
	if pe, ok := w.entries[addr.Parent()]; ok && addr != GameAddress {
		pe.removeChild(addr)
	}
}
