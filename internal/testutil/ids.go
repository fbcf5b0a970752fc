package testutil

import (
	"fmt"
	"sync"
)

// DefaultIDPrefix is used by NewSequentialIDs when no prefix is given.
const DefaultIDPrefix = "op"

// SequentialIDs hands out operation IDs "<prefix>-0001", "<prefix>-0002",
// and so on. Unlike engine.FixedGenerator it never runs out, so a scenario
// need not know in advance how many operations it commits.
//
// Thread-safety: safe for concurrent use.
type SequentialIDs struct {
	mu     sync.Mutex
	prefix string
	n      int
}

// NewSequentialIDs creates a generator. An empty prefix means
// DefaultIDPrefix.
func NewSequentialIDs(prefix string) *SequentialIDs {
	if prefix == "" {
		prefix = DefaultIDPrefix
	}
	return &SequentialIDs{prefix: prefix}
}

// Generate returns the next ID.
func (g *SequentialIDs) Generate() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.n++
	return fmt.Sprintf("%s-%04d", g.prefix, g.n)
}

// Last returns the most recent ID, or "" before the first Generate.
func (g *SequentialIDs) Last() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.n == 0 {
		return ""
	}
	return fmt.Sprintf("%s-%04d", g.prefix, g.n)
}
