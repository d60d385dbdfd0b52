package testutil

import (
	"fmt"
	"sync"

	"github.com/roach88/simkernel/internal/value"
	"github.com/roach88/simkernel/internal/world"
)

// RecordingDispatcher logs every hook call as "Hook address" (signals
// append the formatted signal) and can be
// told to fail a hook.
//
// Thread-safety: the call log is guarded by a mutex.
type RecordingDispatcher struct {
	world.BaseDispatcher

	// FailOn names a hook that returns an error instead of succeeding.
	FailOn string

	mu    sync.Mutex
	calls []string
}

var _ world.Dispatcher = (*RecordingDispatcher)(nil)

// NewRecordingDispatcher creates a dispatcher named name declaring props.
func NewRecordingDispatcher(name string, props ...world.PropertyDefinition) *RecordingDispatcher {
	return &RecordingDispatcher{BaseDispatcher: world.BaseDispatcher{DispatcherName: name, Props: props}}
}

func (d *RecordingDispatcher) record(hook string, s world.Simulant, detail ...string) error {
	entry := hook + " " + string(s.Address)
	for _, x := range detail {
		entry += " " + x
	}
	d.mu.Lock()
	d.calls = append(d.calls, entry)
	d.mu.Unlock()
	if hook == d.FailOn {
		return fmt.Errorf("%s failed on %s", hook, s.Address)
	}
	return nil
}

func (d *RecordingDispatcher) Register(_ *world.World, s world.Simulant) error {
	return d.record(world.HookRegister, s)
}

func (d *RecordingDispatcher) Unregister(_ *world.World, s world.Simulant) error {
	return d.record(world.HookUnregister, s)
}

func (d *RecordingDispatcher) Update(_ *world.World, s world.Simulant) error {
	return d.record(world.HookUpdate, s)
}

func (d *RecordingDispatcher) PostUpdate(_ *world.World, s world.Simulant) error {
	return d.record(world.HookPostUpdate, s)
}

func (d *RecordingDispatcher) Actualize(_ *world.World, s world.Simulant, _ world.Renderer) error {
	return d.record(world.HookActualize, s)
}

func (d *RecordingDispatcher) Signal(_ *world.World, s world.Simulant, sig value.Value) error {
	return d.record(world.HookSignal, s, value.Format(sig))
}

// Calls returns a copy of the call log.
func (d *RecordingDispatcher) Calls() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.calls...)
}

// Reset empties the call log.
func (d *RecordingDispatcher) Reset() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls = nil
}
