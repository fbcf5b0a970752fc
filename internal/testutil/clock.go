// Package testutil holds deterministic stand-ins for the controller's
// sequence and operation ID sources.
package testutil

import "sync"

// DeterministicClock is a resettable journal sequence source.
// It satisfies engine.SeqSource, so identical scenarios stamp identical
// seq values run after run.
//
// Thread-safety: all methods are safe for concurrent use.
type DeterministicClock struct {
	mu  sync.Mutex
	seq int64
}

// NewDeterministicClock creates a clock at 0. The first Next returns 1.
func NewDeterministicClock() *DeterministicClock {
	return &DeterministicClock{}
}

// Next increments and returns the sequence number.
func (c *DeterministicClock) Next() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.seq++
	return c.seq
}

// Current returns the last sequence number handed out.
func (c *DeterministicClock) Current() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.seq
}

// Set moves the clock to seq, for example past a journal loaded from disk.
func (c *DeterministicClock) Set(seq int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.seq = seq
}

// Reset moves the clock back to 0.
func (c *DeterministicClock) Reset() {
	c.Set(0)
}
