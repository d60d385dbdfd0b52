package content

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/roach88/simkernel/internal/testutil"
	"github.com/roach88/simkernel/internal/value"
	"github.com/roach88/simkernel/internal/world"
)

var (
	model = world.MustAddress("Game", "Model", "State")
	gui   = world.MustAddress("Game", "Gui")
)

func labelDispatcher() *world.SchemaDispatcher {
	return &world.SchemaDispatcher{
		DispatcherName: "Label",
		Props: []world.PropertyDefinition{
			{Name: "Text", Type: value.TypeString, Persistent: true},
			{Name: "Size", Type: value.TypeInt, Default: value.Int(12), Persistent: true},
			{Name: "Clicks", Type: value.TypeInt, Persistent: true},
			{Name: "Cache", Type: value.TypeAny},
		},
		Signals: map[string][]world.Effect{
			"Click": {{Op: world.EffectAdd, Property: "Clicks", Value: value.Int(1)}},
		},
	}
}

func stateDispatcher() world.BaseDispatcher {
	return world.BaseDispatcher{
		DispatcherName: "State",
		Props: []world.PropertyDefinition{
			{Name: "Title", Type: value.TypeString},
			{Name: "Items", Type: value.TypeArray},
			{Name: "Score", Type: value.TypeInt},
		},
	}
}

// newWorld builds Game/{Model/State, Gui} with the Label and State
// dispatchers registered.
func newWorld(t *testing.T, opts ...world.Option) *world.World {
	t.Helper()
	opts = append([]world.Option{world.WithNameGenerator(world.NewSequenceNameGenerator("item"))}, opts...)
	w, _ := testutil.NewWorld(t, opts...)
	require.NoError(t, w.RegisterDispatcher(labelDispatcher()))
	require.NoError(t, w.RegisterDispatcher(stateDispatcher()))

	layer := testutil.Tree(t, w, "Game", "Model")
	_, err := w.Create(world.KindEntity, layer.Address, "State", stateDispatcher(), nil)
	require.NoError(t, err)
	return w
}

func names(w *world.World, addr world.Address) []string {
	var out []string
	for _, c := range w.Children(addr) {
		out = append(out, c.Name())
	}
	return out
}
