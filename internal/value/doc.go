// Package value provides the dynamically-typed values stored in simulant
// properties and carried by event payloads.
//
// This package imports nothing internal. Every other kernel package builds
// on it.
//
// Key constraints:
//   - NO float values anywhere; use integer units
//   - Every value carries a Type tag that is checked on write, never coerced
//   - Canonical encoding (RFC 8785) is the only input to digests
package value
