package world

import (
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// NameGenerator produces names for simulants created without one.
// Implemented by UUIDNameGenerator (default) and SequenceNameGenerator
// (tests and golden traces).
type NameGenerator interface {
	Generate() string
}

// UUIDNameGenerator generates time-sortable UUIDv7 names.
//
// Thread-safety: stateless and safe for concurrent use.
type UUIDNameGenerator struct{}

// Generate returns a hyphenated UUIDv7 string.
// Panics if the random source fails.
func (UUIDNameGenerator) Generate() string {
	return uuid.Must(uuid.NewV7()).String()
}

// SequenceNameGenerator yields prefix-1, prefix-2, ... in order.
//
// Thread-safety: guarded by a mutex.
type SequenceNameGenerator struct {
	mu     sync.Mutex
	prefix string
	next   int
}

// NewSequenceNameGenerator creates a generator. An empty prefix means "sim".
func NewSequenceNameGenerator(prefix string) *SequenceNameGenerator {
	if prefix == "" {
		prefix = "sim"
	}
	return &SequenceNameGenerator{prefix: prefix}
}

// Generate returns the next name in the sequence.
func (g *SequenceNameGenerator) Generate() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.next++
	return fmt.Sprintf("%s-%d", g.prefix, g.next)
}
