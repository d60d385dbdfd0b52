package lens

import (
	"log/slog"

	"github.com/roach88/simkernel/internal/value"
	"github.com/roach88/simkernel/internal/world"
)

// Handler receives each distinct value of a stream.
type Handler func(w *world.World, v value.Value) error

// Stream is the sequence of values a lens takes over time.
type Stream struct {
	lens Lens
}

// Stream returns the change stream of l.
func (l Lens) Stream() Stream {
	return Stream{lens: l}
}

// Lens returns the projection the stream observes.
func (s Stream) Lens() Lens {
	return s.lens
}

// Subscription is a live stream subscription.
type Subscription struct {
	ids  []world.SubscriptionID
	last value.Value
	has  bool
}

// Subscribe calls fn after each change event of the lens whose re-read
// value differs from the last value seen. The subscriptions are owned by
// owner and end when it is destroyed. The current value is recorded but
// not delivered.
func (s Stream) Subscribe(w *world.World, owner world.Address, fn Handler) (*Subscription, error) {
	sub := &Subscription{}
	if v, err := s.lens.Get(w); err == nil {
		sub.last, sub.has = value.Clone(v), true
	}
	return sub, s.install(w, owner, sub, fn)
}

// Bind subscribes like Subscribe, then delivers the current value to fn.
// The subscriptions exist before fn runs, so anything fn creates under
// owner registers after them and ranks behind them in dispatch order.
// If fn fails the subscriptions are cancelled.
func (s Stream) Bind(w *world.World, owner world.Address, fn Handler) (*Subscription, error) {
	v, err := s.lens.Get(w)
	if err != nil {
		return nil, err
	}
	sub := &Subscription{last: value.Clone(v), has: true}
	if err := s.install(w, owner, sub, fn); err != nil {
		return nil, err
	}
	if err := fn(w, v); err != nil {
		sub.Cancel(w)
		return nil, err
	}
	return sub, nil
}

func (s Stream) install(w *world.World, owner world.Address, sub *Subscription, fn Handler) error {
	for _, p := range s.lens.changes {
		id, err := w.Monitor(p, owner, func(w *world.World, _ *world.Event) error {
			return sub.deliver(w, s.lens, fn)
		})
		if err != nil {
			sub.Cancel(w)
			return err
		}
		sub.ids = append(sub.ids, id)
	}
	w.Logger().Debug("stream subscribed",
		slog.String("lens", s.lens.name),
		slog.String("owner", owner.String()),
		slog.Int("patterns", len(sub.ids)),
	)
	return nil
}

func (sub *Subscription) deliver(w *world.World, l Lens, fn Handler) error {
	v, err := l.Get(w)
	if err != nil {
		return err
	}
	if sub.has && value.Equal(sub.last, v) {
		return nil
	}
	sub.last, sub.has = value.Clone(v), true
	return fn(w, v)
}

// Last returns the most recently observed value.
func (sub *Subscription) Last() (value.Value, bool) {
	return sub.last, sub.has
}

// Cancel removes the subscription's world subscriptions. Subscriptions
// already removed with their owner are ignored.
func (sub *Subscription) Cancel(w *world.World) {
	for _, id := range sub.ids {
		w.Unsubscribe(id)
	}
	sub.ids = nil
}
