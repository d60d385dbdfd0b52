package testutil

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/simkernel/internal/value"
	"github.com/roach88/simkernel/internal/world"
)

func TestRecordingDispatcher_LogsHooks(t *testing.T) {
	w, _ := NewWorld(t)
	d := NewRecordingDispatcher("Rec", world.PropertyDefinition{Name: "HP", Type: value.TypeInt})
	screen := Tree(t, w, "Main")

	sim, err := w.Create(world.KindLayer, screen.Address, "Gui", d, nil)
	require.NoError(t, err)
	require.NoError(t, w.Signal(sim.Address, value.String("Poke")))
	require.NoError(t, w.Tick())

	calls := d.Calls()
	assert.Equal(t, "Register Main/Gui", calls[0])
	assert.Contains(t, calls, `Signal Main/Gui "Poke"`)
	assert.Contains(t, calls, "Update Main/Gui")
	assert.Contains(t, calls, "PostUpdate Main/Gui")
	assert.Contains(t, calls, "Actualize Main/Gui")

	d.Reset()
	assert.Empty(t, d.Calls())

	n, err := w.GetInt(sim.Address, "HP")
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)
}

func TestRecordingDispatcher_FailOn(t *testing.T) {
	w, _ := NewWorld(t)
	d := NewRecordingDispatcher("Rec")
	d.FailOn = world.HookSignal
	screen := Tree(t, w, "Main")

	sim, err := w.Create(world.KindLayer, screen.Address, "Gui", d, nil)
	require.NoError(t, err)

	err = w.Signal(sim.Address, value.String("Poke"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Signal failed")
}
