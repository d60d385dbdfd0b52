package world

import (
	"fmt"
	"log/slog"
	"runtime/debug"
	"slices"
	"strings"

	"github.com/roach88/simkernel/internal/value"
)

// Built-in event names.
const (
	EventRegister      = "Register"
	EventUnregistering = "Unregistering"
	EventUpdate        = "Update"
	EventPostUpdate    = "PostUpdate"
	EventChangePrefix  = "Change/"
)

// EventAddress is the (name, subject) pair an event is published to.
type EventAddress struct {
	Name    string
	Subject Address
}

func (a EventAddress) String() string {
	return a.Name + "@" + a.Subject.String()
}

// Policy selects how a publish treats the handled flag.
type Policy int

const (
	// NotifyAll invokes every matching subscriber regardless of Handled.
	// Lifecycle and change events use it.
	NotifyAll Policy = iota
	// StopOnHandled stops after the first subscriber that sets Handled.
	// Input and interaction events use it.
	StopOnHandled
)

func (p Policy) String() string {
	if p == StopOnHandled {
		return "stop-on-handled"
	}
	return "notify-all"
}

// SortPolicy orders matching subscribers.
type SortPolicy int

const (
	// SortHierarchy orders by owner depth (ancestors first), then by
	// registration sequence. External subscriptions rank with the Game.
	SortHierarchy SortPolicy = iota
	// SortRegistration orders by registration sequence only.
	SortRegistration
)

// Event is one publish in flight. Subscribers may set Handled.
type Event struct {
	Address EventAddress
	Data    value.Value
	Trace   Trace
	Handled bool
	Policy  Policy

	// Seq is drawn from the world clock at publish time.
	Seq int64

	// Depth counts enclosing publishes; 0 for a top-level publish.
	Depth int
}

// Callback is invoked for each matching event.
type Callback func(w *World, ev *Event) error

// SubscriptionID identifies a subscription for Unsubscribe.
type SubscriptionID int64

// Pattern selects event addresses.
//
// Name is an exact name, "*" for any, or a prefix followed by "*"
// ("Change/*"). Subject segments match one-to-one, "*" matches any single
// segment, and a final "..." matches any remaining segments (including
// none).
type Pattern struct {
	Name    string
	Subject []string
}

// Exact matches a single name at a single subject.
func Exact(name string, subject Address) Pattern {
	return Pattern{Name: name, Subject: subject.Segments()}
}

// Under matches name at subject and every descendant of subject.
func Under(name string, subject Address) Pattern {
	return Pattern{Name: name, Subject: append(subject.Segments(), "...")}
}

// ParsePattern parses "Name@Subject". A missing "@Subject" matches every
// subject; "/" or an empty subject is the Game.
func ParsePattern(s string) (Pattern, error) {
	name, subject, found := strings.Cut(s, "@")
	if name == "" {
		return Pattern{}, fmt.Errorf("pattern %q: empty event name", s)
	}
	if !found {
		return Pattern{Name: name, Subject: []string{"..."}}, nil
	}
	subject = strings.TrimPrefix(subject, addressSeparator)
	if subject == "" {
		return Pattern{Name: name}, nil
	}
	segs := strings.Split(subject, addressSeparator)
	for i, seg := range segs {
		switch {
		case seg == "*":
		case seg == "...":
			if i != len(segs)-1 {
				return Pattern{}, fmt.Errorf("pattern %q: \"...\" must be the last segment", s)
			}
		default:
			if err := validateSegment(seg); err != nil {
				return Pattern{}, fmt.Errorf("pattern %q: %w", s, err)
			}
		}
	}
	return Pattern{Name: name, Subject: segs}, nil
}

// MustPattern is like ParsePattern but panics on error.
func MustPattern(s string) Pattern {
	p, err := ParsePattern(s)
	if err != nil {
		panic(err)
	}
	return p
}

func (p Pattern) String() string {
	return p.Name + "@/" + strings.Join(p.Subject, addressSeparator)
}

// Matches reports whether a is selected by p.
func (p Pattern) Matches(a EventAddress) bool {
	if !matchName(p.Name, a.Name) {
		return false
	}
	segs := a.Subject.Segments()
	for i, ps := range p.Subject {
		if ps == "..." {
			return true
		}
		if i >= len(segs) {
			return false
		}
		if ps != "*" && ps != segs[i] {
			return false
		}
	}
	return len(segs) == len(p.Subject)
}

func matchName(pattern, name string) bool {
	if pattern == "*" {
		return true
	}
	if prefix, ok := strings.CutSuffix(pattern, "*"); ok {
		return strings.HasPrefix(name, prefix)
	}
	return pattern == name
}

type subscription struct {
	id         SubscriptionID
	pattern    Pattern
	owner      Address
	owned      bool
	ownerDepth int
	cb         Callback
	removed    bool
}

// Subscribe registers an external callback. It lives until Unsubscribe.
func (w *World) Subscribe(p Pattern, cb Callback) SubscriptionID {
	return w.addSubscription(p, GameAddress, false, cb)
}

// Monitor registers a callback owned by the simulant at owner. The
// subscription is removed when the owner is destroyed, so cb never runs
// for a dead owner.
func (w *World) Monitor(p Pattern, owner Address, cb Callback) (SubscriptionID, error) {
	if _, ok := w.entries[owner]; !ok {
		return 0, notLive(owner)
	}
	return w.addSubscription(p, owner, true, cb), nil
}

func (w *World) addSubscription(p Pattern, owner Address, owned bool, cb Callback) SubscriptionID {
	// IDs come from the world clock, so they double as registration order.
	id := SubscriptionID(w.clock.Next())
	sub := &subscription{
		id:         id,
		pattern:    p,
		owner:      owner,
		owned:      owned,
		ownerDepth: owner.Depth(),
		cb:         cb,
	}
	w.subs = append(w.subs, sub)
	w.subsByID[id] = sub
	if owned {
		w.entries[owner].owned[id] = struct{}{}
	}
	return id
}

// Unsubscribe removes a subscription. A dispatch pass already in flight
// skips it from then on. Returns false if id is unknown.
func (w *World) Unsubscribe(id SubscriptionID) bool {
	sub, ok := w.subsByID[id]
	if !ok {
		return false
	}
	sub.removed = true
	delete(w.subsByID, id)
	if sub.owned {
		if e, ok := w.entries[sub.owner]; ok {
			delete(e.owned, id)
		}
	}
	w.subs = slices.DeleteFunc(w.subs, func(s *subscription) bool { return s.id == id })
	return true
}

// SubscriptionCount returns the number of live subscriptions.
func (w *World) SubscriptionCount() int {
	return len(w.subs)
}

// Publish synchronously dispatches an event to every matching subscriber
// in deterministic order and returns once all nested effects are resolved.
//
// A nil trace inherits the trace of the event currently being dispatched.
// The subscriber list is fixed when the publish starts: subscriptions
// added during dispatch do not receive this event, and subscriptions
// removed during dispatch (including by destroying their owner) are
// skipped. The first callback error aborts the pass and is returned.
func (w *World) Publish(addr EventAddress, data value.Value, trace Trace, policy Policy) (*Event, error) {
	if w.publishDepth >= w.maxPublishDepth {
		return nil, &Error{
			Code:    ErrCodePublishDepthExceeded,
			Message: fmt.Sprintf("nested publish depth %d reached publishing %s", w.maxPublishDepth, addr),
			Address: addr.Subject,
		}
	}
	if data == nil {
		data = value.Null{}
	}
	if trace == nil {
		if parent, ok := w.CurrentEvent(); ok {
			trace = parent.Trace
		}
	}

	ev := &Event{
		Address: addr,
		Data:    data,
		Trace:   trace.With(w.component(), addr.Name),
		Policy:  policy,
		Seq:     w.clock.Next(),
		Depth:   w.publishDepth,
	}

	matches := w.matching(addr)

	w.publishDepth++
	notified, err := w.dispatch(ev, matches)
	w.publishDepth--

	for _, tr := range w.tracers {
		tr(TraceRecord{
			Tick:     w.tick,
			Seq:      ev.Seq,
			Name:     addr.Name,
			Subject:  addr.Subject,
			Data:     ev.Data,
			Trace:    ev.Trace,
			Handled:  ev.Handled,
			Notified: notified,
			Depth:    ev.Depth,
		})
	}
	return ev, err
}

// PublishAll is Publish with NotifyAll and an inherited trace.
func (w *World) PublishAll(name string, subject Address, data value.Value) error {
	_, err := w.Publish(EventAddress{Name: name, Subject: subject}, data, nil, NotifyAll)
	return err
}

// matching snapshots the live subscriptions selecting addr, sorted by the
// world's sort policy.
func (w *World) matching(addr EventAddress) []*subscription {
	var out []*subscription
	for _, sub := range w.subs {
		if sub.pattern.Matches(addr) {
			out = append(out, sub)
		}
	}
	if w.sortPolicy == SortHierarchy {
		// w.subs is in registration order; a stable sort keeps it as the
		// tie-break between subscribers at the same depth.
		slices.SortStableFunc(out, func(a, b *subscription) int {
			return a.ownerDepth - b.ownerDepth
		})
	}
	return out
}

func (w *World) dispatch(ev *Event, matches []*subscription) (int, error) {
	notified := 0
	for _, sub := range matches {
		if sub.removed {
			continue
		}
		notified++
		if err := w.invokeCallback(ev, sub); err != nil {
			return notified, err
		}
		if ev.Policy == StopOnHandled && ev.Handled {
			break
		}
	}
	return notified, nil
}

func (w *World) invokeCallback(ev *Event, sub *subscription) (err error) {
	w.pushFrame(Frame{
		Kind:         FrameCallback,
		Simulant:     sub.owner,
		Event:        ev,
		Subscription: sub.id,
	})
	defer w.popFrame()
	defer func() {
		if r := recover(); r != nil {
			w.logger.Error("event callback panicked",
				slog.String("event", ev.Address.String()),
				slog.String("owner", sub.owner.String()),
				slog.Any("panic", r),
				slog.String("stack", string(debug.Stack())),
			)
			err = dispatchFailed(fmt.Sprintf("callback for %s panicked", ev.Address), sub.owner, fmt.Errorf("panic: %v", r))
		}
	}()
	if cbErr := sub.cb(w, ev); cbErr != nil {
		// Already-wrapped failures from deeper passes keep their message.
		if IsDispatchFailed(cbErr) {
			return fmt.Errorf("dispatch %s: %w", ev.Address, cbErr)
		}
		return dispatchFailed(fmt.Sprintf("callback for %s failed", ev.Address), sub.owner, cbErr)
	}
	return nil
}
