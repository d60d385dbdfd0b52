// Package store provides durable storage for simulation runs.
//
// The SQLite database holds three tables:
//   - runs: one row per recorded run, keyed by a UUIDv7
//   - events: every completed publish of a run, as reported by the world's
//     tracer
//   - snapshots: named subtree descriptors, zstd-compressed
//
// All ordering uses the world's logical seq, never wall-clock time, so two
// replays of the same scenario produce byte-identical logs. Reads return
// rows ORDER BY seq ASC and empty slices rather than nil.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity
//
// # Descriptor Files
//
// LoadDescriptorFile and WriteDescriptorFile move content descriptors
// between disk and memory. The format follows the extension: .json files
// are checked against an embedded JSON Schema, .yaml files reject unknown
// fields, and .simz files are a zstd stream holding a header line and the
// descriptor body. FileLoader exposes the same reader as a content.Loader.
package store
