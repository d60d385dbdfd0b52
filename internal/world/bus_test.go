package world

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/simkernel/internal/value"
)

func TestPatternMatches(t *testing.T) {
	hero := EventAddress{Name: "Click", Subject: MustAddress("Title", "Gui", "Hero")}
	game := EventAddress{Name: "Click", Subject: GameAddress}

	tests := []struct {
		pattern string
		addr    EventAddress
		want    bool
	}{
		{"Click", hero, true},
		{"Click", game, true},
		{"Click@Title/Gui/Hero", hero, true},
		{"Click@Title/Gui", hero, false},
		{"Click@Title/*/Hero", hero, true},
		{"Click@Title/...", hero, true},
		{"Click@Title/Gui/Hero/...", hero, true},
		{"Click@/", game, true},
		{"Click@/", hero, false},
		{"Cl*", hero, true},
		{"*@Title/Gui/Hero", hero, true},
		{"Change/*", EventAddress{Name: "Change/Health", Subject: GameAddress}, true},
		{"Change/*", hero, false},
		{"Hover", hero, false},
	}
	for _, tt := range tests {
		t.Run(tt.pattern, func(t *testing.T) {
			p := MustPattern(tt.pattern)
			assert.Equal(t, tt.want, p.Matches(tt.addr))
		})
	}
}

func TestParsePatternErrors(t *testing.T) {
	for _, s := range []string{"", "@Title", "X@Title/.../Gui", "X@Ti@tle"} {
		_, err := ParsePattern(s)
		assert.Error(t, err, s)
	}
}

func TestPublishAncestorFirstThenRegistration(t *testing.T) {
	w := newTestWorld(t)
	screen, layer, hero, slime := buildTree(t, w, healthDispatcher())

	var log []string
	p := MustPattern("Ping")
	// Registered deepest first so that ordering cannot come from sequence alone.
	_, err := w.Monitor(p, slime.Address, appendTo(&log, "slime"))
	require.NoError(t, err)
	_, err = w.Monitor(p, hero.Address, appendTo(&log, "hero"))
	require.NoError(t, err)
	_, err = w.Monitor(p, layer.Address, appendTo(&log, "layer"))
	require.NoError(t, err)
	_, err = w.Monitor(p, screen.Address, appendTo(&log, "screen"))
	require.NoError(t, err)
	w.Subscribe(p, appendTo(&log, "external"))

	require.NoError(t, w.PublishAll("Ping", hero.Address, nil))
	assert.Equal(t, []string{"external", "screen", "layer", "slime", "hero"}, log)
}

func TestPublishRegistrationSortPolicy(t *testing.T) {
	w := newTestWorld(t, WithSortPolicy(SortRegistration))
	screen, _, hero, _ := buildTree(t, w, healthDispatcher())

	var log []string
	p := MustPattern("Ping")
	_, err := w.Monitor(p, hero.Address, appendTo(&log, "hero"))
	require.NoError(t, err)
	_, err = w.Monitor(p, screen.Address, appendTo(&log, "screen"))
	require.NoError(t, err)

	require.NoError(t, w.PublishAll("Ping", hero.Address, nil))
	assert.Equal(t, []string{"hero", "screen"}, log)
}

func TestNotifyAllIgnoresHandled(t *testing.T) {
	w := newTestWorld(t)
	var log []string
	w.Subscribe(MustPattern("Ping"), func(_ *World, ev *Event) error {
		ev.Handled = true
		log = append(log, "first")
		return nil
	})
	w.Subscribe(MustPattern("Ping"), appendTo(&log, "second"))

	ev, err := w.Publish(EventAddress{Name: "Ping"}, nil, nil, NotifyAll)
	require.NoError(t, err)
	assert.True(t, ev.Handled)
	assert.Equal(t, []string{"first", "second"}, log)
}

func TestStopOnHandled(t *testing.T) {
	w := newTestWorld(t)
	var log []string
	w.Subscribe(MustPattern("Click"), appendTo(&log, "first"))
	w.Subscribe(MustPattern("Click"), func(_ *World, ev *Event) error {
		ev.Handled = true
		log = append(log, "handler")
		return nil
	})
	w.Subscribe(MustPattern("Click"), appendTo(&log, "never"))

	ev, err := w.Publish(EventAddress{Name: "Click"}, value.String("left"), nil, StopOnHandled)
	require.NoError(t, err)
	assert.True(t, ev.Handled)
	assert.Equal(t, value.String("left"), ev.Data)
	assert.Equal(t, []string{"first", "handler"}, log)
}

func TestPublishWithoutSubscribers(t *testing.T) {
	w := newTestWorld(t)
	ev, err := w.Publish(EventAddress{Name: "Nobody"}, nil, nil, NotifyAll)
	require.NoError(t, err)
	assert.Equal(t, value.Null{}, ev.Data)
	assert.False(t, ev.Handled)
}

func TestMonitorRequiresLiveOwner(t *testing.T) {
	w := newTestWorld(t)
	_, err := w.Monitor(MustPattern("Ping"), MustAddress("Ghost"), func(*World, *Event) error { return nil })
	assert.True(t, IsInvalidAddress(err))
}

func TestMonitorEndsWithOwner(t *testing.T) {
	w := newTestWorld(t)
	_, _, hero, _ := buildTree(t, w, healthDispatcher())

	calls := 0
	_, err := w.Monitor(MustPattern("Ping"), hero.Address, func(*World, *Event) error {
		calls++
		return nil
	})
	require.NoError(t, err)

	require.NoError(t, w.PublishAll("Ping", GameAddress, nil))
	require.NoError(t, w.DestroyImmediate(hero.Address))
	require.NoError(t, w.PublishAll("Ping", GameAddress, nil))

	assert.Equal(t, 1, calls)
}

func TestOwnerDestroyedMidDispatchSkipsItsCallback(t *testing.T) {
	w := newTestWorld(t)
	_, _, hero, slime := buildTree(t, w, healthDispatcher())

	var log []string
	_, err := w.Monitor(MustPattern("Ping"), hero.Address, func(w *World, _ *Event) error {
		log = append(log, "hero")
		return w.DestroyImmediate(slime.Address)
	})
	require.NoError(t, err)
	_, err = w.Monitor(MustPattern("Ping"), slime.Address, appendTo(&log, "slime"))
	require.NoError(t, err)

	require.NoError(t, w.PublishAll("Ping", GameAddress, nil))
	assert.Equal(t, []string{"hero"}, log)
}

func TestSubscriptionsAddedDuringDispatchWaitForNextPublish(t *testing.T) {
	w := newTestWorld(t)
	var log []string
	added := false
	w.Subscribe(MustPattern("Ping"), func(w *World, _ *Event) error {
		log = append(log, "first")
		if !added {
			added = true
			w.Subscribe(MustPattern("Ping"), appendTo(&log, "late"))
		}
		return nil
	})

	require.NoError(t, w.PublishAll("Ping", GameAddress, nil))
	assert.Equal(t, []string{"first"}, log)

	require.NoError(t, w.PublishAll("Ping", GameAddress, nil))
	assert.Equal(t, []string{"first", "first", "late"}, log)
}

func TestUnsubscribe(t *testing.T) {
	w := newTestWorld(t)
	var log []string
	id := w.Subscribe(MustPattern("Ping"), appendTo(&log, "x"))

	assert.True(t, w.Unsubscribe(id))
	assert.False(t, w.Unsubscribe(id))
	require.NoError(t, w.PublishAll("Ping", GameAddress, nil))
	assert.Empty(t, log)
	assert.Zero(t, w.SubscriptionCount())
}

func TestNestedPublishTraceAndDepth(t *testing.T) {
	var records []TraceRecord
	w := newTestWorld(t, WithTracer(func(rec TraceRecord) { records = append(records, rec) }))
	_, _, hero, _ := buildTree(t, w, healthDispatcher())
	records = nil

	var inner *Event
	_, err := w.Monitor(MustPattern("Click"), hero.Address, func(w *World, ev *Event) error {
		cur, ok := w.CurrentEvent()
		require.True(t, ok)
		assert.Same(t, ev, cur)
		return w.SetInt(hero.Address, "Health", 3)
	})
	require.NoError(t, err)
	w.Subscribe(MustPattern("Change/Health"), func(_ *World, ev *Event) error {
		inner = ev
		return nil
	})

	outer, err := w.Publish(EventAddress{Name: "Click", Subject: hero.Address}, nil, Trace{{Component: "Input", Kind: "Mouse"}}, StopOnHandled)
	require.NoError(t, err)
	require.NotNil(t, inner)

	assert.Equal(t, 0, outer.Depth)
	assert.Equal(t, 1, inner.Depth)
	assert.Equal(t, Trace{
		{Component: "Input", Kind: "Mouse"},
		{Component: "World", Kind: "Click"},
	}, outer.Trace)
	assert.Equal(t, Trace{
		{Component: "Input", Kind: "Mouse"},
		{Component: "World", Kind: "Click"},
		{Component: "Title/Gui/Hero", Kind: "Change/Health"},
	}, inner.Trace)
	assert.Equal(t, "Input:Mouse > World:Click > Title/Gui/Hero:Change/Health", inner.Trace.String())

	require.Len(t, records, 2)
	assert.Equal(t, "Change/Health", records[0].Name, "tracers see a publish when it completes")
	assert.Equal(t, "Click", records[1].Name)
	assert.Less(t, records[1].Seq, records[0].Seq)
	assert.Equal(t, 1, records[1].Notified)

	_, ok := w.CurrentEvent()
	assert.False(t, ok, "context is empty outside a dispatch")
}

func TestHookTraceComponent(t *testing.T) {
	w := newTestWorld(t)
	var trace Trace
	w.Subscribe(MustPattern("Register"), func(_ *World, ev *Event) error {
		trace = ev.Trace
		return nil
	})
	_, err := w.Create(KindScreen, GameAddress, "Title", nil, nil)
	require.NoError(t, err)
	assert.Equal(t, Trace{{Component: "World", Kind: "Register"}}, trace)
}

func TestPublishDepthExceeded(t *testing.T) {
	w := newTestWorld(t, WithMaxPublishDepth(4))
	calls := 0
	w.Subscribe(MustPattern("Echo"), func(w *World, _ *Event) error {
		calls++
		return w.PublishAll("Echo", GameAddress, nil)
	})

	err := w.PublishAll("Echo", GameAddress, nil)
	require.Error(t, err)
	assert.True(t, IsPublishDepthExceeded(err))
	assert.Equal(t, 4, calls)
}

func TestCallbackPanicBecomesDispatchFailed(t *testing.T) {
	w := newTestWorld(t)
	var log []string
	w.Subscribe(MustPattern("Ping"), func(*World, *Event) error { panic("boom") })
	w.Subscribe(MustPattern("Ping"), appendTo(&log, "after"))

	err := w.PublishAll("Ping", GameAddress, nil)
	require.Error(t, err)
	assert.True(t, IsDispatchFailed(err))
	assert.Contains(t, err.Error(), "boom")
	assert.Empty(t, log, "a failing callback aborts the pass")

	_, ok := w.CurrentFrame()
	assert.False(t, ok, "frames are unwound after a panic")
}

func TestCallbackErrorKeepsCause(t *testing.T) {
	w := newTestWorld(t)
	cause := errors.New("nope")
	w.Subscribe(MustPattern("Ping"), func(*World, *Event) error { return cause })

	err := w.PublishAll("Ping", GameAddress, nil)
	assert.ErrorIs(t, err, cause)
}

func TestContextFrames(t *testing.T) {
	var log []string
	w := newTestWorld(t)
	rec := newRecorder("Rec", &log)
	_, _, hero, _ := buildTree(t, w, rec)

	var frames []Frame
	_, err := w.Monitor(MustPattern("Ping"), hero.Address, func(w *World, _ *Event) error {
		frames = w.Context()
		return nil
	})
	require.NoError(t, err)

	require.NoError(t, w.PublishAll("Ping", hero.Address, nil))
	require.Len(t, frames, 1)
	assert.Equal(t, FrameCallback, frames[0].Kind)
	assert.Equal(t, hero.Address, frames[0].Simulant)
	assert.Equal(t, "Ping", frames[0].Event.Address.Name)
}
