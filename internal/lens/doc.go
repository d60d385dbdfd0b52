// Package lens provides read and write projections over world state.
//
// A Lens is a pure description: Get evaluates against the world at the
// moment of the call and nothing is cached. Each lens also reports the
// event patterns that signal its value may have changed, which is what a
// Stream subscribes to.
//
//	hp := lens.Property(hero, "Health")
//	label := lens.Map(hp, func(v value.Value) (value.Value, error) {
//		return value.String(fmt.Sprintf("HP %d", v.(value.Int))), nil
//	})
//	sub, err := label.Stream().Bind(w, bar, func(w *world.World, v value.Value) error {
//		return w.Set(bar, "Text", v)
//	})
//
// Streams deliver only distinct values, so a write that leaves a derived
// value unchanged does not propagate further.
package lens
