// Package world is the simulation kernel: the simulant tree, the property
// store, the event bus and the tick runtime.
//
// A World is a single mutable aggregate passed explicitly to every hook,
// callback and lens. There is no package-level state.
//
// # Threading
//
// The kernel is single-threaded and synchronous. Every operation runs to
// completion before returning, including all nested publishes it causes.
// Schedule is the only entry point that may be called from other
// goroutines; scheduled continuations run in the tick's deferred phase.
//
// # Ordering
//
//   - Subscribers run ordered by owner depth (ancestors first), then by
//     registration sequence
//   - Children are kept in creation order
//   - Tick phases visit simulants in pre-order: Game, then each screen
//     followed by its layers and their entities
//   - Every simulant ID and event seq comes from one logical clock
//
// # Errors
//
// Tree and property violations come back as *Error values with a Code.
// A failure inside a hook or callback aborts the current dispatch pass and
// is returned to the caller; the runtime treats it as fatal for the tick.
package world
