package world

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/simkernel/internal/value"
)

type recordingSink struct {
	ticks []int64
	subs  [][]Submission
}

func (s *recordingSink) Flush(tick int64, subs []Submission) error {
	s.ticks = append(s.ticks, tick)
	s.subs = append(s.subs, subs)
	return nil
}

func TestTickPhaseOrder(t *testing.T) {
	var log []string
	sink := &recordingSink{}
	w := newTestWorld(t, WithSink(sink))
	_, _, _, _ = buildTree(t, w, newRecorder("Rec", &log))
	w.Subscribe(MustPattern("Update@Title/Gui/*"), func(_ *World, ev *Event) error {
		log = append(log, "event "+ev.Address.Subject.String())
		return nil
	})
	log = nil

	require.NoError(t, w.Tick())

	assert.Equal(t, []string{
		"Update Title/Gui/Hero",
		"event Title/Gui/Hero",
		"Update Title/Gui/Slime",
		"event Title/Gui/Slime",
		"PostUpdate Title/Gui/Hero",
		"PostUpdate Title/Gui/Slime",
		"Actualize Title/Gui/Hero",
		"Actualize Title/Gui/Slime",
	}, log)
	assert.Equal(t, int64(1), w.TickCount())
	assert.Equal(t, []int64{1}, sink.ticks)
	require.Len(t, sink.subs[0], 2)
	assert.Equal(t, MustAddress("Title", "Gui", "Hero"), sink.subs[0][0].Subject)
}

func TestTickSkipsDisabled(t *testing.T) {
	var log []string
	w := newTestWorld(t)
	_, _, hero, _ := buildTree(t, w, newRecorder("Rec", &log))
	require.NoError(t, w.SetBool(hero.Address, PropEnabled, false))
	log = nil

	require.NoError(t, w.Tick())
	for _, line := range log {
		assert.NotContains(t, line, "Hero")
	}
	assert.Contains(t, log, "Update Title/Gui/Slime")
}

func TestTickSkipsSimulantDestroyedEarlierInPhase(t *testing.T) {
	var log []string
	w := newTestWorld(t)
	_, _, hero, slime := buildTree(t, w, newRecorder("Rec", &log))
	_, err := w.Monitor(MustPattern("Update"), hero.Address, func(w *World, ev *Event) error {
		if ev.Address.Subject == hero.Address {
			return w.DestroyImmediate(slime.Address)
		}
		return nil
	})
	require.NoError(t, err)
	log = nil

	require.NoError(t, w.Tick())
	assert.NotContains(t, log, "Update Title/Gui/Slime")
}

func TestTickHookFailureStopsTick(t *testing.T) {
	var log []string
	w := newTestWorld(t)
	rec := newRecorder("Rec", &log)
	rec.failOn = HookUpdate
	_, _, hero, _ := buildTree(t, w, rec)
	require.NoError(t, w.Destroy(hero.Address))

	err := w.Tick()
	require.Error(t, err)
	assert.True(t, IsDispatchFailed(err))
	assert.Contains(t, err.Error(), "tick 1")
	assert.True(t, w.Exists(hero.Address), "deferred work waits for a successful tick")
}

func TestTickDestroysAfterActualize(t *testing.T) {
	sink := &recordingSink{}
	w := newTestWorld(t, WithSink(sink))
	blob := &SchemaDispatcher{
		DispatcherName: "Blob",
		Props:          []PropertyDefinition{{Name: "Size", Type: value.TypeInt, Default: value.Int(2)}},
		OnUpdate:       []Effect{{Op: EffectDestroy}},
		Visual:         true,
	}
	_, _, hero, _ := buildTree(t, w, blob)

	require.NoError(t, w.Tick())

	assert.False(t, w.Exists(hero.Address))
	require.Len(t, sink.subs[0], 2, "destroyed simulants still draw in the tick that destroyed them")
	assert.Equal(t, value.Obj(value.P("Size", value.Int(2))), sink.subs[0][0].Data)
}
