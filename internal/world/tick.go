package world

import (
	"fmt"
	"log/slog"
)

// Tick advances the simulation by one frame.
//
// Phases, each visiting simulants in pre-order:
//  1. Update hook then Update event (notify-all) for every enabled simulant
//  2. PostUpdate hook then PostUpdate event, likewise
//  3. Actualize hook for every enabled simulant; collected submissions
//     are flushed to the sink
//  4. the deferred queue drains: scheduled destructions and continuations
//     run FIFO
//
// A simulant destroyed earlier in a phase is skipped. Any failure aborts
// the tick and is returned; the world is then in a partially-applied state
// and the caller is expected to stop.
func (w *World) Tick() error {
	w.tick++
	tick := w.tick
	w.logger.Debug("tick starting", slog.Int64("tick", tick))

	if err := w.updatePhase(HookUpdate, EventUpdate, Dispatcher.Update); err != nil {
		return fmt.Errorf("tick %d: %w", tick, err)
	}
	if err := w.updatePhase(HookPostUpdate, EventPostUpdate, Dispatcher.PostUpdate); err != nil {
		return fmt.Errorf("tick %d: %w", tick, err)
	}
	if err := w.actualizePhase(tick); err != nil {
		return fmt.Errorf("tick %d: %w", tick, err)
	}
	if err := w.RunDeferred(); err != nil {
		return fmt.Errorf("tick %d: %w", tick, err)
	}

	w.logger.Debug("tick finished", slog.Int64("tick", tick), slog.Int("simulants", len(w.entries)))
	return nil
}

func (w *World) updatePhase(hook, event string, call func(Dispatcher, *World, Simulant) error) error {
	for _, s := range w.preorder(GameAddress) {
		if !w.IsCurrent(s) || !w.Enabled(s.Address) {
			continue
		}
		e := w.entries[s.Address]
		if err := w.invokeHook(e, hook, func() error { return call(e.dispatcher, w, s) }); err != nil {
			return err
		}
		if !w.IsCurrent(s) {
			continue
		}
		if err := w.PublishAll(event, s.Address, nil); err != nil {
			return err
		}
	}
	return nil
}

func (w *World) actualizePhase(tick int64) error {
	c := &collector{}
	for _, s := range w.preorder(GameAddress) {
		if !w.IsCurrent(s) || !w.Enabled(s.Address) {
			continue
		}
		e := w.entries[s.Address]
		if err := w.invokeHook(e, HookActualize, func() error { return e.dispatcher.Actualize(w, s, c) }); err != nil {
			return err
		}
	}
	if err := w.sink.Flush(tick, c.subs); err != nil {
		return fmt.Errorf("flush submissions: %w", err)
	}
	return nil
}
