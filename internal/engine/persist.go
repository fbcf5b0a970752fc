package engine

import (
	"context"
	"fmt"

	"github.com/roach88/resmodel/internal/ir"
	"github.com/roach88/resmodel/internal/store"
	"github.com/roach88/resmodel/internal/tree"
)

// commit stamps the batch and, with a store configured, journals the
// operation together with the snapshot of the staged tree.
func (c *Controller) commit(ctx context.Context, tx *tree.Txn, b *batch, op ir.Operation) error {
	b.seq = c.clock.Next()
	b.id = c.ids.Generate()
	if c.store == nil {
		return nil
	}

	hash, err := ir.OperationHash(op)
	if err != nil {
		return NewCommitError(b.seq, err)
	}
	snap, err := snapshot(tx, b.seq)
	if err != nil {
		return NewCommitError(b.seq, err)
	}
	entry := store.Entry{
		Seq:             b.seq,
		ID:              b.id,
		Request:         op,
		Applied:         b.applied,
		Hash:            hash,
		DefinitionsHash: c.defsHash,
		EngineVersion:   ir.EngineVersion,
	}
	if err := c.store.Commit(ctx, entry, snap); err != nil {
		return NewCommitError(b.seq, err)
	}
	return nil
}

// snapshot captures the staged tree. The root only gets a row when it
// carries attributes.
func snapshot(tx *tree.Txn, seq int64) (store.Snapshot, error) {
	snap := store.Snapshot{Seq: seq}
	err := tx.Walk(func(addr ir.Address, model ir.Object) error {
		if addr.IsRoot() && len(model) == 0 {
			return nil
		}
		snap.Resources = append(snap.Resources, store.ResourceRow{Address: addr, Model: model})
		return nil
	})
	if err != nil {
		return snap, err
	}

	doc, err := tx.Document(ir.Address{})
	if err != nil {
		return snap, err
	}
	if snap.DocumentHash, err = ir.DocumentHash(doc); err != nil {
		return snap, err
	}
	return snap, nil
}

// Restore loads the stored snapshot into the tree, runs the builders of
// the restored resources and moves the clock past the journal. It must run
// before the first operation. Returns the number of resources restored.
func (c *Controller) Restore(ctx context.Context) (int, error) {
	if c.store == nil {
		return 0, nil
	}

	snap, ok, err := c.store.LoadSnapshot(ctx)
	if err != nil {
		return 0, fmt.Errorf("restore: %w", err)
	}
	last, err := c.store.LastSeq(ctx)
	if err != nil {
		return 0, fmt.Errorf("restore: %w", err)
	}
	if err := c.resume(last); err != nil {
		return 0, fmt.Errorf("restore: %w", err)
	}
	if !ok {
		return 0, nil
	}

	b := &batch{}
	var stale []built
	err = c.tree.Update(func(tx *tree.Txn) error {
		for _, row := range snap.Resources {
			if row.Address.IsRoot() {
				for _, name := range row.Model.SortedKeys() {
					if err := tx.WriteAttribute(row.Address, name, row.Model[name]); err != nil {
						return err
					}
				}
				continue
			}
			if err := tx.Add(row.Address, row.Model); err != nil {
				return fmt.Errorf("restore %s: %w", row.Address, err)
			}
			b.change(row.Address)
		}
		if err := c.build(ctx, tx, b); err != nil {
			return err
		}
		stale = c.handles.install(b.built, nil)
		return nil
	})
	if err != nil {
		closeAll(c.logger, b.built)
		return 0, err
	}
	closeAll(c.logger, stale)

	c.logger.Info("state restored",
		"resources", len(snap.Resources),
		"seq", snap.Seq,
		"builders_run", len(b.built),
	)
	return len(snap.Resources), nil
}

// resume makes sure the next seq lies past the journal.
func (c *Controller) resume(last int64) error {
	if c.clock.Current() >= last {
		return nil
	}
	if clk, ok := c.clock.(*Clock); ok {
		clk.advance(last)
		return nil
	}
	return fmt.Errorf("clock at seq %d is behind the journal (seq %d)", c.clock.Current(), last)
}

// Replay rebuilds a tree from the journal alone and compares it with the
// stored snapshot. The controller's own tree is not touched and no
// builders run.
func (c *Controller) Replay(ctx context.Context) (*store.ReplayResult, error) {
	if c.store == nil {
		return nil, fmt.Errorf("replay: no store configured")
	}

	rebuilt := tree.New(c.reg)
	return c.store.Replay(ctx,
		func(e store.Entry) error {
			if e.DefinitionsHash != "" && e.DefinitionsHash != c.defsHash {
				c.logger.Warn("journal entry was written against other definitions",
					"seq", e.Seq,
					"id", e.ID,
				)
			}
			return rebuilt.Update(func(tx *tree.Txn) error {
				b := &batch{}
				for _, op := range e.Applied {
					if err := c.apply(tx, b, op); err != nil {
						return err
					}
				}
				return nil
			})
		},
		func() (ir.Object, error) {
			return rebuilt.Document(ir.Address{})
		},
	)
}
