package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/simkernel/internal/testutil"
	"github.com/roach88/simkernel/internal/value"
	"github.com/roach88/simkernel/internal/world"
)

func TestRecorder_FlushesWorldTrace(t *testing.T) {
	s := createTestStore(t)
	createTestRun(t, s, "run-1")
	ctx := context.Background()

	rec := NewRecorder(s, "run-1", nil)
	w, log := testutil.NewWorld(t, world.WithTracer(rec.Trace))

	require.NoError(t, w.PublishAll("Ping", world.GameAddress, value.Int(1)))
	require.NoError(t, w.PublishAll("Pong", world.GameAddress, value.Int(2)))
	assert.Equal(t, 0, rec.Written())

	require.NoError(t, rec.Flush(ctx))
	assert.Equal(t, 2, rec.Written())

	evs, err := s.ReadEvents(ctx, "run-1", EventFilter{})
	require.NoError(t, err)
	require.Len(t, evs, 2)
	assert.Equal(t, "Ping", evs[0].Name)
	assert.Equal(t, "Pong", evs[1].Name)
	assert.Equal(t, value.Int(2), evs[1].Data)
	assert.Less(t, evs[0].Seq, evs[1].Seq)
	assert.Equal(t, log.Names(), []string{evs[0].Name, evs[1].Name}, "recorder sees what every tracer sees")

	// A second flush with nothing pending writes nothing.
	require.NoError(t, rec.Flush(ctx))
	assert.Equal(t, 2, rec.Written())
}

func TestRecorder_KeepsPendingOnFailure(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	rec := NewRecorder(s, "unregistered", nil)
	rec.Trace(world.TraceRecord{Tick: 1, Seq: 1, Name: "Update", Data: value.Null{}})

	require.Error(t, rec.Flush(ctx))
	assert.Equal(t, 0, rec.Written())

	createTestRun(t, s, "unregistered")
	require.NoError(t, rec.Flush(ctx))
	assert.Equal(t, 1, rec.Written())
}
