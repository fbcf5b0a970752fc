package testutil

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/roach88/resmodel/internal/engine"
)

var _ engine.IDGenerator = (*SequentialIDs)(nil)

func TestSequentialIDs(t *testing.T) {
	g := NewSequentialIDs("scenario")
	assert.Equal(t, "scenario-0001", g.Generate())
	assert.Equal(t, "scenario-0002", g.Generate())
}

func TestSequentialIDs_DefaultPrefix(t *testing.T) {
	g := NewSequentialIDs("")
	assert.Equal(t, "op-0001", g.Generate())
}

func TestSequentialIDs_Last(t *testing.T) {
	g := NewSequentialIDs("")
	assert.Empty(t, g.Last())
	g.Generate()
	id := g.Generate()
	assert.Equal(t, id, g.Last())
	assert.Equal(t, "op-0002", g.Last(), "Last does not advance")
}

func TestSequentialIDs_ThreadSafe(t *testing.T) {
	g := NewSequentialIDs("")
	const n = 200

	ids := make(chan string, n)
	var wg sync.WaitGroup
	for range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ids <- g.Generate()
		}()
	}
	wg.Wait()
	close(ids)

	unique := make(map[string]bool)
	for id := range ids {
		unique[id] = true
	}
	assert.Len(t, unique, n)
}
