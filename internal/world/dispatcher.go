package world

import (
	"fmt"
	"runtime/debug"

	"github.com/roach88/simkernel/internal/value"
)

// Dispatcher supplies behavior for a simulant's lifecycle hooks.
//
// Each simulant holds exactly one dispatcher, assigned at creation and
// never replaced; its Name is exposed as the read-only Dispatcher
// property. Hooks are called synchronously with the World threaded
// through. A returned error or a panic is fatal for the current pass.
type Dispatcher interface {
	// Name identifies the dispatcher in descriptors and the registry.
	Name() string

	// Properties declares the dispatcher's legal property names.
	Properties() []PropertyDefinition

	// Register runs once after the simulant is created.
	Register(w *World, s Simulant) error

	// Unregister runs once before the simulant is removed.
	Unregister(w *World, s Simulant) error

	// Update runs in the tick's first phase.
	Update(w *World, s Simulant) error

	// PostUpdate runs in the tick's second phase.
	PostUpdate(w *World, s Simulant) error

	// Actualize submits draw messages for the tick.
	Actualize(w *World, s Simulant, r Renderer) error

	// Signal handles a content-bound signal.
	Signal(w *World, s Simulant, signal value.Value) error
}

// BaseDispatcher implements every hook as a no-op. Embed it and override
// the hooks a dispatcher needs.
type BaseDispatcher struct {
	DispatcherName string
	Props          []PropertyDefinition
}

func (d BaseDispatcher) Name() string                             { return d.DispatcherName }
func (d BaseDispatcher) Properties() []PropertyDefinition         { return d.Props }
func (BaseDispatcher) Register(*World, Simulant) error            { return nil }
func (BaseDispatcher) Unregister(*World, Simulant) error          { return nil }
func (BaseDispatcher) Update(*World, Simulant) error              { return nil }
func (BaseDispatcher) PostUpdate(*World, Simulant) error          { return nil }
func (BaseDispatcher) Actualize(*World, Simulant, Renderer) error { return nil }
func (BaseDispatcher) Signal(*World, Simulant, value.Value) error { return nil }

// Hook names recorded in event-context frames.
const (
	HookRegister   = "Register"
	HookUnregister = "Unregister"
	HookUpdate     = "Update"
	HookPostUpdate = "PostUpdate"
	HookActualize  = "Actualize"
	HookSignal     = "Signal"
)

// RegisterDispatcher makes d resolvable by name for content expansion.
func (w *World) RegisterDispatcher(d Dispatcher) error {
	name := d.Name()
	if name == "" {
		return fmt.Errorf("register dispatcher: empty name")
	}
	if _, exists := w.dispatchers[name]; exists {
		return fmt.Errorf("register dispatcher: %q already registered", name)
	}
	w.dispatchers[name] = d
	return nil
}

// Dispatcher resolves a registered dispatcher by name.
func (w *World) Dispatcher(name string) (Dispatcher, error) {
	d, ok := w.dispatchers[name]
	if !ok {
		return nil, &Error{
			Code:    ErrCodeUnknownDispatcher,
			Message: fmt.Sprintf("no dispatcher registered as %q", name),
		}
	}
	return d, nil
}

// DispatcherOf returns the dispatcher attached to the simulant at addr.
func (w *World) DispatcherOf(addr Address) (Dispatcher, error) {
	e, ok := w.entries[addr]
	if !ok {
		return nil, notLive(addr)
	}
	return e.dispatcher, nil
}

// defaultDispatcher is used when Create receives nil: the registration
// named after the kind, else a no-op dispatcher with that name.
func (w *World) defaultDispatcher(k Kind) Dispatcher {
	if d, ok := w.dispatchers[k.String()]; ok {
		return d
	}
	return BaseDispatcher{DispatcherName: k.String()}
}

// invokeHook runs fn inside a hook frame, converting panics and errors
// into DispatchFailed.
func (w *World) invokeHook(e *entry, hook string, fn func() error) (err error) {
	w.pushFrame(Frame{Kind: FrameHook, Hook: hook, Simulant: e.address})
	defer w.popFrame()
	defer func() {
		if r := recover(); r != nil {
			w.logger.Error("dispatcher hook panicked",
				"hook", hook,
				"dispatcher", e.dispatcher.Name(),
				"address", e.address.String(),
				"panic", r,
				"stack", string(debug.Stack()),
			)
			err = dispatchFailed(fmt.Sprintf("%s hook of %s panicked", hook, e.dispatcher.Name()), e.address, fmt.Errorf("panic: %v", r))
		}
	}()
	if hookErr := fn(); hookErr != nil {
		return dispatchFailed(fmt.Sprintf("%s hook of %s failed", hook, e.dispatcher.Name()), e.address, hookErr)
	}
	return nil
}

// Signal delivers a signal to the dispatcher of the simulant at addr.
func (w *World) Signal(addr Address, signal value.Value) error {
	e, ok := w.entries[addr]
	if !ok {
		return notLive(addr)
	}
	return w.invokeHook(e, HookSignal, func() error {
		return e.dispatcher.Signal(w, e.handle(), signal)
	})
}
