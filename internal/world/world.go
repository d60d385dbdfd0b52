package world

import (
	"fmt"
	"io"
	"log/slog"
)

// DefaultMaxPublishDepth bounds re-entrant publishing so runaway
// change-event loops fail instead of overflowing the stack.
const DefaultMaxPublishDepth = 64

// World is the simulation state: the simulant tree, property store,
// subscription table and deferred queue.
//
// A World is not safe for concurrent use, with the single exception of
// Schedule.
type World struct {
	clock   *Clock
	entries map[Address]*entry

	subs     []*subscription // registration order
	subsByID map[SubscriptionID]*subscription

	frames       []Frame
	publishDepth int

	deferred    *deferredQueue
	dispatchers map[string]Dispatcher
	tick        int64

	// configuration
	logger          *slog.Logger
	names           NameGenerator
	sortPolicy      SortPolicy
	maxPublishDepth int
	tracers         []Tracer
	sink            Sink
	env             Environment
	gameDispatcher  Dispatcher
}

// Option configures a World.
type Option func(*World)

// WithLogger sets the structured logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(w *World) { w.logger = l }
}

// WithNameGenerator sets the generator for unnamed simulants.
// Defaults to UUIDNameGenerator.
func WithNameGenerator(g NameGenerator) Option {
	return func(w *World) { w.names = g }
}

// WithSortPolicy sets subscriber ordering. Defaults to SortHierarchy.
func WithSortPolicy(p SortPolicy) Option {
	return func(w *World) { w.sortPolicy = p }
}

// WithMaxPublishDepth bounds nested publishing.
// Defaults to DefaultMaxPublishDepth.
func WithMaxPublishDepth(n int) Option {
	return func(w *World) { w.maxPublishDepth = n }
}

// WithTracer adds an observer of completed publishes.
func WithTracer(t Tracer) Option {
	return func(w *World) { w.tracers = append(w.tracers, t) }
}

// WithSink sets the actualization sink. Defaults to discarding.
func WithSink(s Sink) Option {
	return func(w *World) { w.sink = s }
}

// WithEnvironment attaches read-only lookup tables.
func WithEnvironment(env Environment) Option {
	return func(w *World) { w.env = env }
}

// WithGameDispatcher sets the dispatcher of the Game root.
func WithGameDispatcher(d Dispatcher) Option {
	return func(w *World) { w.gameDispatcher = d }
}

// WithClock resumes from an existing logical clock.
func WithClock(c *Clock) Option {
	return func(w *World) { w.clock = c }
}

// New creates a World holding only the Game root.
func New(opts ...Option) (*World, error) {
	w := &World{
		clock:           NewClock(),
		entries:         make(map[Address]*entry),
		subsByID:        make(map[SubscriptionID]*subscription),
		deferred:        newDeferredQueue(),
		dispatchers:     make(map[string]Dispatcher),
		logger:          slog.Default(),
		names:           UUIDNameGenerator{},
		sortPolicy:      SortHierarchy,
		maxPublishDepth: DefaultMaxPublishDepth,
		sink:            discardSink{},
		env:             emptyEnvironment{},
		gameDispatcher:  BaseDispatcher{DispatcherName: KindGame.String()},
	}
	for _, opt := range opts {
		opt(w)
	}
	if w.maxPublishDepth <= 0 {
		return nil, fmt.Errorf("max publish depth must be positive, got %d", w.maxPublishDepth)
	}

	id := w.clock.Next()
	defs, props, err := buildProperties(GameAddress, w.gameDispatcher, id, nil)
	if err != nil {
		return nil, fmt.Errorf("create game: %w", err)
	}
	w.entries[GameAddress] = &entry{
		id:         id,
		address:    GameAddress,
		kind:       KindGame,
		dispatcher: w.gameDispatcher,
		defs:       defs,
		props:      props,
		owned:      make(map[SubscriptionID]struct{}),
	}
	return w, nil
}

// MustNew is like New but panics on error.
func MustNew(opts ...Option) *World {
	w, err := New(opts...)
	if err != nil {
		panic(err)
	}
	return w
}

// NewDiscardLogger returns a logger that drops everything.
func NewDiscardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// Game returns the handle of the root.
func (w *World) Game() Simulant {
	return w.entries[GameAddress].handle()
}

// TickCount returns the number of the tick in progress, or of the last
// tick once it has finished. It is 0 before the first tick.
func (w *World) TickCount() int64 {
	return w.tick
}

// Clock exposes the logical clock.
func (w *World) Clock() *Clock {
	return w.clock
}

// Logger returns the world's logger.
func (w *World) Logger() *slog.Logger {
	return w.logger
}

// Environment returns the read-only lookup tables.
func (w *World) Environment() Environment {
	return w.env
}

// IsCurrent reports whether s still names the live incarnation at its
// address.
func (w *World) IsCurrent(s Simulant) bool {
	e, ok := w.entries[s.Address]
	return ok && e.id == s.ID
}

// Lookup returns the handle of the live simulant at addr.
func (w *World) Lookup(addr Address) (Simulant, bool) {
	e, ok := w.entries[addr]
	if !ok {
		return Simulant{}, false
	}
	return e.handle(), true
}
