package world

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/roach88/simkernel/internal/value"
)

// newTestWorld creates a world with deterministic names and silent logs.
func newTestWorld(t *testing.T, opts ...Option) *World {
	t.Helper()
	base := []Option{
		WithLogger(NewDiscardLogger()),
		WithNameGenerator(NewSequenceNameGenerator("gen")),
	}
	w, err := New(append(base, opts...)...)
	require.NoError(t, err)
	return w
}

// recorder is a dispatcher that logs every hook call into a shared slice.
type recorder struct {
	BaseDispatcher
	log *[]string

	failOn string
}

func newRecorder(name string, log *[]string, props ...PropertyDefinition) *recorder {
	return &recorder{BaseDispatcher: BaseDispatcher{DispatcherName: name, Props: props}, log: log}
}

func (r *recorder) record(hook string, s Simulant) error {
	*r.log = append(*r.log, fmt.Sprintf("%s %s", hook, s.Address))
	if r.failOn == hook {
		return fmt.Errorf("%s refused", hook)
	}
	return nil
}

func (r *recorder) Register(_ *World, s Simulant) error   { return r.record(HookRegister, s) }
func (r *recorder) Unregister(_ *World, s Simulant) error { return r.record(HookUnregister, s) }
func (r *recorder) Update(_ *World, s Simulant) error     { return r.record(HookUpdate, s) }
func (r *recorder) PostUpdate(_ *World, s Simulant) error { return r.record(HookPostUpdate, s) }
func (r *recorder) Actualize(_ *World, s Simulant, rr Renderer) error {
	rr.Submit(Submission{Subject: s.Address, Kind: r.DispatcherName})
	return r.record(HookActualize, s)
}
func (r *recorder) Signal(_ *World, s Simulant, sig value.Value) error {
	return r.record(HookSignal+":"+value.Format(sig), s)
}

// healthDispatcher declares an Int Health and a String Label.
func healthDispatcher() BaseDispatcher {
	return BaseDispatcher{
		DispatcherName: "Health",
		Props: []PropertyDefinition{
			{Name: "Health", Type: value.TypeInt, Default: value.Int(10), Persistent: true},
			{Name: "Label", Type: value.TypeString, Persistent: true},
			{Name: "Scratch", Type: value.TypeAny},
		},
	}
}

// buildTree creates Title/Gui/{Hero,Slime} and returns the entity handles.
func buildTree(t *testing.T, w *World, d Dispatcher) (screen, layer, hero, slime Simulant) {
	t.Helper()
	var err error
	screen, err = w.Create(KindScreen, GameAddress, "Title", nil, nil)
	require.NoError(t, err)
	layer, err = w.Create(KindLayer, screen.Address, "Gui", nil, nil)
	require.NoError(t, err)
	hero, err = w.Create(KindEntity, layer.Address, "Hero", d, nil)
	require.NoError(t, err)
	slime, err = w.Create(KindEntity, layer.Address, "Slime", d, nil)
	require.NoError(t, err)
	return screen, layer, hero, slime
}

// appendTo returns a callback that records tag and never fails.
func appendTo(log *[]string, tag string) Callback {
	return func(_ *World, _ *Event) error {
		*log = append(*log, tag)
		return nil
	}
}
