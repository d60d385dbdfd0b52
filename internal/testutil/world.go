package testutil

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/roach88/simkernel/internal/world"
)

// NewWorld creates a world for tests: logs discarded, simulant names
// generated as sim-1, sim-2, ... and every publish captured in the
// returned TraceLog. Extra options apply after the defaults.
//
// The same sequence of calls against two worlds from NewWorld produces
// identical names, seqs and traces.
func NewWorld(tb testing.TB, opts ...world.Option) (*world.World, *TraceLog) {
	tb.Helper()
	log := NewTraceLog()
	base := []world.Option{
		world.WithLogger(world.NewDiscardLogger()),
		world.WithNameGenerator(world.NewSequenceNameGenerator("sim")),
		world.WithTracer(log.Tracer()),
	}
	w, err := world.New(append(base, opts...)...)
	require.NoError(tb, err)
	return w, log
}

// Tree creates Screen/Layer/Entity simulants along path under the Game,
// one per segment, with default dispatchers. It returns the deepest one.
func Tree(tb testing.TB, w *world.World, segments ...string) world.Simulant {
	tb.Helper()
	require.LessOrEqual(tb, len(segments), 3, "tree is at most Screen/Layer/Entity")

	parent := w.Game()
	kinds := []world.Kind{world.KindScreen, world.KindLayer, world.KindEntity}
	for i, name := range segments {
		addr, err := world.NewAddress(append(parent.Address.Segments(), name)...)
		require.NoError(tb, err)
		if existing, ok := w.Lookup(addr); ok {
			parent = existing
			continue
		}
		sim, err := w.Create(kinds[i], parent.Address, name, nil, nil)
		require.NoError(tb, err)
		parent = sim
	}
	return parent
}
