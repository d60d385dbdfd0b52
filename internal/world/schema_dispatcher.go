package world

import (
	"fmt"

	"github.com/roach88/simkernel/internal/value"
)

// EffectOp names a data-driven reaction step.
type EffectOp string

const (
	// EffectSet assigns Value (or the signal payload) to Property.
	EffectSet EffectOp = "set"
	// EffectAdd adds an Int Value (or payload) to an Int Property.
	EffectAdd EffectOp = "add"
	// EffectPublish publishes Event (notify-all) at the target with the
	// payload as data.
	EffectPublish EffectOp = "publish"
	// EffectDestroy schedules the target for deferred destruction.
	EffectDestroy EffectOp = "destroy"
)

// Effect is one step of a SchemaDispatcher reaction.
type Effect struct {
	Op       EffectOp    `json:"op"`
	Property string      `json:"property,omitempty"`
	Value    value.Value `json:"value,omitempty"`
	Event    string      `json:"event,omitempty"`

	// Target is a path relative to the simulant ("" self, "../x" sibling).
	Target string `json:"target,omitempty"`

	// Table and Key take the value from the world's environment instead
	// of Value or the payload.
	Table string `json:"table,omitempty"`
	Key   string `json:"key,omitempty"`
}

// SchemaDispatcher is a dispatcher defined entirely by data, so content
// can declare behavior without Go code.
//
// A signal is either a String naming the reaction, or an Object with a
// "signal" name and an optional "value" payload.
type SchemaDispatcher struct {
	DispatcherName string               `json:"name"`
	Props          []PropertyDefinition `json:"properties,omitempty"`
	Signals        map[string][]Effect  `json:"signals,omitempty"`
	OnUpdate       []Effect             `json:"on_update,omitempty"`
	Visual         bool                 `json:"visual,omitempty"`
}

var _ Dispatcher = (*SchemaDispatcher)(nil)

func (d *SchemaDispatcher) Name() string                      { return d.DispatcherName }
func (d *SchemaDispatcher) Properties() []PropertyDefinition  { return d.Props }
func (d *SchemaDispatcher) Register(*World, Simulant) error   { return nil }
func (d *SchemaDispatcher) Unregister(*World, Simulant) error { return nil }
func (d *SchemaDispatcher) PostUpdate(*World, Simulant) error { return nil }

// Update runs the OnUpdate effects.
func (d *SchemaDispatcher) Update(w *World, s Simulant) error {
	return d.apply(w, s, d.OnUpdate, nil)
}

// Actualize submits the simulant's declared properties when Visual is set.
func (d *SchemaDispatcher) Actualize(w *World, s Simulant, r Renderer) error {
	if !d.Visual {
		return nil
	}
	data := make(value.Object, len(d.Props))
	for _, def := range d.Props {
		if v, ok := w.TryGet(s.Address, def.Name); ok {
			data[def.Name] = value.Clone(v)
		}
	}
	r.Submit(Submission{Subject: s.Address, Kind: d.DispatcherName, Data: data})
	return nil
}

// Signal runs the effects registered for the signal's name.
func (d *SchemaDispatcher) Signal(w *World, s Simulant, signal value.Value) error {
	name, payload, err := splitSignal(signal)
	if err != nil {
		return err
	}
	effects, ok := d.Signals[name]
	if !ok {
		return fmt.Errorf("dispatcher %s has no reaction to signal %q", d.DispatcherName, name)
	}
	return d.apply(w, s, effects, payload)
}

func splitSignal(signal value.Value) (string, value.Value, error) {
	switch sig := signal.(type) {
	case value.String:
		return string(sig), nil, nil
	case value.Object:
		name, ok := sig["signal"].(value.String)
		if !ok {
			return "", nil, fmt.Errorf("signal object needs a string \"signal\" field")
		}
		return string(name), sig["value"], nil
	default:
		return "", nil, fmt.Errorf("signal must be a string or object, got %s", value.TypeOf(signal))
	}
}

func (d *SchemaDispatcher) apply(w *World, s Simulant, effects []Effect, payload value.Value) error {
	for i, eff := range effects {
		target, err := s.Address.Relative(eff.Target)
		if err != nil {
			return fmt.Errorf("effect %d: %w", i, err)
		}
		arg := eff.Value
		if arg == nil {
			arg = payload
		}
		if eff.Table != "" {
			v, ok := w.env.Lookup(eff.Table, eff.Key)
			if !ok {
				return fmt.Errorf("effect %d: table %s has no entry %q", i, eff.Table, eff.Key)
			}
			arg = v
		}
		switch eff.Op {
		case EffectSet:
			if arg == nil {
				return fmt.Errorf("effect %d: set %s needs a value", i, eff.Property)
			}
			if err := w.Set(target, eff.Property, arg); err != nil {
				return fmt.Errorf("effect %d: %w", i, err)
			}
		case EffectAdd:
			delta, ok := arg.(value.Int)
			if !ok {
				return fmt.Errorf("effect %d: add %s needs an int value", i, eff.Property)
			}
			cur, err := w.GetInt(target, eff.Property)
			if err != nil {
				return fmt.Errorf("effect %d: %w", i, err)
			}
			if err := w.SetInt(target, eff.Property, cur+int64(delta)); err != nil {
				return fmt.Errorf("effect %d: %w", i, err)
			}
		case EffectPublish:
			if err := w.PublishAll(eff.Event, target, arg); err != nil {
				return fmt.Errorf("effect %d: %w", i, err)
			}
		case EffectDestroy:
			if err := w.Destroy(target); err != nil {
				return fmt.Errorf("effect %d: %w", i, err)
			}
		default:
			return fmt.Errorf("effect %d: unknown op %q", i, eff.Op)
		}
	}
	return nil
}
