package world

// FrameKind distinguishes event-context frames.
type FrameKind int

const (
	// FrameHook wraps a dispatcher hook invocation.
	FrameHook FrameKind = iota + 1
	// FrameCallback wraps a subscription callback invocation.
	FrameCallback
)

// Frame is one entry of the event-context stack.
//
// A frame is pushed before every hook or callback runs and popped when it
// returns, so a publish issued from inside knows on whose behalf it runs.
type Frame struct {
	Kind FrameKind

	// Simulant is the hooked simulant, or the subscription owner
	// (GameAddress for external subscriptions).
	Simulant Address

	// Hook is set for FrameHook.
	Hook string

	// Event and Subscription are set for FrameCallback.
	Event        *Event
	Subscription SubscriptionID
}

func (w *World) pushFrame(f Frame) {
	w.frames = append(w.frames, f)
}

func (w *World) popFrame() {
	w.frames[len(w.frames)-1] = Frame{}
	w.frames = w.frames[:len(w.frames)-1]
}

// CurrentFrame returns the innermost frame, if any.
func (w *World) CurrentFrame() (Frame, bool) {
	if len(w.frames) == 0 {
		return Frame{}, false
	}
	return w.frames[len(w.frames)-1], true
}

// Context returns a copy of the stack, outermost first.
func (w *World) Context() []Frame {
	out := make([]Frame, len(w.frames))
	copy(out, w.frames)
	return out
}

// CurrentEvent returns the innermost event being dispatched, if any.
func (w *World) CurrentEvent() (*Event, bool) {
	for i := len(w.frames) - 1; i >= 0; i-- {
		if w.frames[i].Event != nil {
			return w.frames[i].Event, true
		}
	}
	return nil, false
}

// component names the publisher for trace tags.
func (w *World) component() string {
	if f, ok := w.CurrentFrame(); ok {
		if f.Kind == FrameHook {
			return f.Hook + " " + f.Simulant.String()
		}
		return f.Simulant.String()
	}
	return "World"
}
