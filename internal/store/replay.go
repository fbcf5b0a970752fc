package store

import (
	"context"
	"fmt"

	"github.com/roach88/resmodel/internal/ir"
)

// ReplayResult compares the state rebuilt from the journal with the stored
// snapshot.
type ReplayResult struct {
	Operations   int    // journal entries applied
	LastSeq      int64  // seq of the last entry applied
	SnapshotSeq  int64  // seq the snapshot reflects; 0 without a snapshot
	SnapshotHash string // document hash stored with the snapshot
	ReplayHash   string // document hash of the rebuilt state
	Match        bool
}

// Replay feeds every journal entry to apply in seq order, then hashes the
// document returned by rebuilt and compares it with the snapshot.
//
// Replay is deterministic: entries carry the current-schema operations
// they were applied as, so the transformation rules in force at replay
// time do not matter.
func (s *Store) Replay(ctx context.Context, apply func(Entry) error, rebuilt func() (ir.Object, error)) (*ReplayResult, error) {
	entries, err := s.ReadOperations(ctx, 0)
	if err != nil {
		return nil, fmt.Errorf("replay: %w", err)
	}

	result := &ReplayResult{}
	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("replay: %w", err)
		}
		if err := apply(e); err != nil {
			return nil, fmt.Errorf("replay seq %d (%s): %w", e.Seq, e.ID, err)
		}
		result.Operations++
		result.LastSeq = e.Seq
	}

	doc, err := rebuilt()
	if err != nil {
		return nil, fmt.Errorf("replay: %w", err)
	}
	if result.ReplayHash, err = ir.DocumentHash(doc); err != nil {
		return nil, fmt.Errorf("replay: %w", err)
	}

	snap, ok, err := s.LoadSnapshot(ctx)
	if err != nil {
		return nil, fmt.Errorf("replay: %w", err)
	}
	if !ok {
		// An empty journal rebuilds the empty tree.
		empty, err := ir.DocumentHash(ir.Object{})
		if err != nil {
			return nil, fmt.Errorf("replay: %w", err)
		}
		result.SnapshotHash = empty
		result.Match = result.Operations == 0 && result.ReplayHash == empty
		return result, nil
	}

	result.SnapshotSeq = snap.Seq
	result.SnapshotHash = snap.DocumentHash
	result.Match = snap.Seq == result.LastSeq && snap.DocumentHash == result.ReplayHash
	return result, nil
}
