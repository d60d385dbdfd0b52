// Package content materializes declarative content into a live world and
// keeps stream-driven children in sync with their backing collections.
//
// Content comes in three shapes:
//
//   - Static describes one simulant: its dispatcher, initial properties,
//     property bindings, event handlers and nested content.
//   - Stream derives one child per element of a collection lens. Children
//     are keyed, so an element that survives a collection change keeps its
//     live simulant.
//   - File splices in a subtree loaded through a Loader.
//
// Descriptor is the data-only form of static content. WriteSubtree and
// ReadSubtree convert between live subtrees and descriptors.
package content
