package lens

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/simkernel/internal/value"
	"github.com/roach88/simkernel/internal/world"
)

func TestBindPushesInitialAndChanges(t *testing.T) {
	w := newWorld(t)
	var got []value.Value
	sub, err := Property(hero, "Health").Stream().Bind(w, bar, func(_ *world.World, v value.Value) error {
		got = append(got, v)
		return nil
	})
	require.NoError(t, err)

	require.NoError(t, w.SetInt(hero, "Health", 3))
	require.NoError(t, w.SetInt(hero, "Health", 3))
	require.NoError(t, w.SetInt(hero, "Health", 1))

	assert.Equal(t, []value.Value{value.Int(10), value.Int(3), value.Int(1)}, got)
	last, ok := sub.Last()
	assert.True(t, ok)
	assert.Equal(t, value.Int(1), last)
}

func TestBindSubscribesBeforeInitialDelivery(t *testing.T) {
	w := newWorld(t)
	var order []string
	_, err := Property(hero, "Health").Stream().Bind(w, bar, func(w *world.World, v value.Value) error {
		order = append(order, "stream")
		if v == value.Int(10) {
			// Registered during the initial delivery, after the stream.
			_, err := w.Monitor(world.Exact(world.ChangeEventName("Health"), hero), bar, func(*world.World, *world.Event) error {
				order = append(order, "inner")
				return nil
			})
			return err
		}
		return nil
	})
	require.NoError(t, err)

	order = nil
	require.NoError(t, w.SetInt(hero, "Health", 3))
	assert.Equal(t, []string{"stream", "inner"}, order)
}

func TestBindCancelsWhenInitialDeliveryFails(t *testing.T) {
	w := newWorld(t)
	calls := 0
	_, err := Property(hero, "Health").Stream().Bind(w, bar, func(*world.World, value.Value) error {
		calls++
		return assert.AnError
	})
	require.ErrorIs(t, err, assert.AnError)

	require.NoError(t, w.SetInt(hero, "Health", 3))
	assert.Equal(t, 1, calls)
}

func TestStreamDeliversDistinctDerivedValues(t *testing.T) {
	w := newWorld(t)
	alive := Map(Property(hero, "Health"), func(v value.Value) (value.Value, error) {
		return value.Bool(v.(value.Int) > 0), nil
	})

	var got []value.Value
	_, err := alive.Stream().Subscribe(w, bar, func(_ *world.World, v value.Value) error {
		got = append(got, v)
		return nil
	})
	require.NoError(t, err)

	for _, hp := range []int64{8, 5, 0, 0, 2} {
		require.NoError(t, w.SetInt(hero, "Health", hp))
	}
	assert.Equal(t, []value.Value{value.Bool(false), value.Bool(true)}, got)
}

func TestStreamEndsWithOwner(t *testing.T) {
	w := newWorld(t)
	calls := 0
	_, err := Property(hero, "Health").Stream().Subscribe(w, bar, func(*world.World, value.Value) error {
		calls++
		return nil
	})
	require.NoError(t, err)

	require.NoError(t, w.DestroyImmediate(bar))
	require.NoError(t, w.SetInt(hero, "Health", 1))
	assert.Zero(t, calls)
}

func TestStreamCancel(t *testing.T) {
	w := newWorld(t)
	before := w.SubscriptionCount()
	sub, err := Property(hero, "Health").Stream().Subscribe(w, bar, func(*world.World, value.Value) error {
		t.Fatal("cancelled stream delivered a value")
		return nil
	})
	require.NoError(t, err)

	sub.Cancel(w)
	assert.Equal(t, before, w.SubscriptionCount())
	require.NoError(t, w.SetInt(hero, "Health", 2))
}

func TestStreamHandlerErrorAbortsPublish(t *testing.T) {
	w := newWorld(t)
	_, err := Property(hero, "Health").Stream().Subscribe(w, bar, func(*world.World, value.Value) error {
		return assert.AnError
	})
	require.NoError(t, err)

	err = w.SetInt(hero, "Health", 2)
	assert.ErrorIs(t, err, assert.AnError)
}

func TestSubscribeRequiresLiveOwner(t *testing.T) {
	w := newWorld(t)
	_, err := Property(hero, "Health").Stream().Subscribe(w, world.MustAddress("Ghost"), func(*world.World, value.Value) error {
		return nil
	})
	assert.True(t, world.IsInvalidAddress(err))
}
