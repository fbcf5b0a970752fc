package store

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/resmodel/internal/ir"
)

const storeAddr = "/subsystem=infinispan/cache-container=web/store=jdbc"

func addStore(seq int64, id string) Entry {
	req := ir.Operation{
		Name:    ir.OpAdd,
		Address: ir.MustAddress(storeAddr),
		Version: "1.4.0",
		Params: ir.Object{
			"data-source":  ir.String("ExampleDS"),
			"binary-table": ir.Object{"prefix": ir.String("ispn_bucket")},
		},
	}
	applied := []ir.Operation{
		{Name: ir.OpAdd, Address: ir.MustAddress(storeAddr), Params: ir.Object{"data-source": ir.String("ExampleDS")}},
		{Name: ir.OpAdd, Address: ir.MustAddress(storeAddr + "/table=binary"), Params: ir.Object{"prefix": ir.String("ispn_bucket")}},
	}
	hash, _ := ir.OperationHash(req)
	return Entry{Seq: seq, ID: id, Request: req, Applied: applied, Hash: hash, DefinitionsHash: "defs"}
}

func TestWriteOperation_RoundTrip(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	e := addStore(1, "op-1")
	require.NoError(t, s.WriteOperation(ctx, e))

	got, err := s.ReadOperation(ctx, "op-1")
	require.NoError(t, err)

	assert.Equal(t, int64(1), got.Seq)
	assert.Equal(t, e.Hash, got.Hash)
	assert.Equal(t, "defs", got.DefinitionsHash)
	assert.Equal(t, ir.EngineVersion, got.EngineVersion)
	assert.Equal(t, ir.OpAdd, got.Request.Name)
	assert.Equal(t, storeAddr, got.Request.Address.String())
	assert.Equal(t, "1.4.0", got.Request.Version)
	assert.True(t, ir.Equal(e.Request.Params, got.Request.Params))
	require.Len(t, got.Applied, 2)
	assert.Equal(t, storeAddr+"/table=binary", got.Applied[1].Address.String())

	gotHash, err := ir.OperationHash(got.Request)
	require.NoError(t, err)
	assert.Equal(t, e.Hash, gotHash, "request must survive storage byte-for-byte")
}

func TestWriteOperation_Idempotent(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.WriteOperation(ctx, addStore(1, "op-1")))
	require.NoError(t, s.WriteOperation(ctx, addStore(1, "op-1")))

	entries, err := s.ReadOperations(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestWriteOperation_SeqCollision(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.WriteOperation(ctx, addStore(1, "op-1")))
	err := s.WriteOperation(ctx, addStore(1, "op-2"))
	assert.Error(t, err)
}

func TestWriteOperation_Invalid(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	assert.Error(t, s.WriteOperation(ctx, addStore(1, "")))
	assert.Error(t, s.WriteOperation(ctx, addStore(0, "op-1")))
}

func TestReadOperations_Ordering(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	// Written out of order on purpose.
	for _, e := range []Entry{addStore(3, "c"), addStore(1, "a"), addStore(2, "b")} {
		require.NoError(t, s.WriteOperation(ctx, e))
	}

	entries, err := s.ReadOperations(ctx, 0)
	require.NoError(t, err)
	require.Len(t, entries, 3)
	assert.Equal(t, []string{"a", "b", "c"}, []string{entries[0].ID, entries[1].ID, entries[2].ID})

	tail, err := s.ReadOperations(ctx, 2)
	require.NoError(t, err)
	require.Len(t, tail, 1)
	assert.Equal(t, "c", tail[0].ID)

	last, err := s.LastSeq(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), last)
}

func TestReadOperations_Empty(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	entries, err := s.ReadOperations(ctx, 0)
	require.NoError(t, err)
	assert.NotNil(t, entries)
	assert.Empty(t, entries)

	last, err := s.LastSeq(ctx)
	require.NoError(t, err)
	assert.Zero(t, last)
}

func TestReadOperation_NotFound(t *testing.T) {
	s := createTestStore(t)

	_, err := s.ReadOperation(context.Background(), "missing")
	assert.True(t, errors.Is(err, sql.ErrNoRows))
}

func TestReadHistory(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.WriteOperation(ctx, addStore(1, "op-1")))
	other := Entry{
		Seq:     2,
		ID:      "op-2",
		Request: ir.Operation{Name: ir.OpRemove, Address: ir.MustAddress("/subsystem=infinispan")},
	}
	require.NoError(t, s.WriteOperation(ctx, other))

	history, err := s.ReadHistory(ctx, ir.MustAddress(storeAddr))
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, "op-1", history[0].ID)
}

func TestComposite_RoundTrip(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	req := ir.Operation{
		Name: ir.OpComposite,
		Steps: []ir.Operation{
			{Name: ir.OpWriteAttribute, Address: ir.MustAddress(storeAddr), Attribute: "fetch-size", Value: ir.Int(200)},
			{Name: ir.OpUndefineAttribute, Address: ir.MustAddress(storeAddr), Attribute: "dialect"},
		},
	}
	require.NoError(t, s.WriteOperation(ctx, Entry{Seq: 1, ID: "op-1", Request: req, Applied: req.Steps}))

	got, err := s.ReadOperation(ctx, "op-1")
	require.NoError(t, err)
	assert.Equal(t, "/", got.Request.Address.String())
	require.Len(t, got.Request.Steps, 2)
	assert.Equal(t, ir.Int(200), got.Request.Steps[0].Value)
	assert.Equal(t, "dialect", got.Applied[1].Attribute)
}

func snapshotAt(seq int64, rows ...ResourceRow) Snapshot {
	return Snapshot{Seq: seq, DocumentHash: "hash", Resources: rows}
}

func TestSnapshot_SaveLoad(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	_, ok, err := s.LoadSnapshot(ctx)
	require.NoError(t, err)
	assert.False(t, ok, "fresh store has no snapshot")

	snap := snapshotAt(4,
		ResourceRow{Address: ir.MustAddress(storeAddr + "/table=binary"), Model: ir.Object{"prefix": ir.String("ispn_bucket")}},
		ResourceRow{Address: ir.MustAddress("/subsystem=infinispan"), Model: nil},
		ResourceRow{Address: ir.MustAddress(storeAddr), Model: ir.Object{"fetch-size": ir.Int(1 << 60)}},
	)
	require.NoError(t, s.SaveSnapshot(ctx, snap))

	got, ok, err := s.LoadSnapshot(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, int64(4), got.Seq)
	assert.Equal(t, "hash", got.DocumentHash)

	require.Len(t, got.Resources, 3)
	assert.Equal(t, "/subsystem=infinispan", got.Resources[0].Address.String(), "parents sort first")
	assert.Equal(t, storeAddr, got.Resources[1].Address.String())
	assert.Equal(t, storeAddr+"/table=binary", got.Resources[2].Address.String())
	assert.Equal(t, ir.Object{}, got.Resources[0].Model)
	assert.Equal(t, ir.Int(1<<60), got.Resources[1].Model["fetch-size"], "large integers stay exact")
}

func TestSnapshot_Replaces(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.SaveSnapshot(ctx, snapshotAt(1,
		ResourceRow{Address: ir.MustAddress("/subsystem=infinispan")},
		ResourceRow{Address: ir.MustAddress(storeAddr)},
	)))
	require.NoError(t, s.SaveSnapshot(ctx, snapshotAt(2,
		ResourceRow{Address: ir.MustAddress("/subsystem=infinispan")},
	)))

	got, _, err := s.LoadSnapshot(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), got.Seq)
	assert.Len(t, got.Resources, 1)
}

func TestCommit_Atomic(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Commit(ctx, addStore(1, "op-1"), snapshotAt(1,
		ResourceRow{Address: ir.MustAddress(storeAddr)},
	)))

	// Seq collision aborts the whole commit; the old snapshot stays.
	err := s.Commit(ctx, addStore(1, "op-2"), snapshotAt(1))
	require.Error(t, err)

	got, _, err := s.LoadSnapshot(ctx)
	require.NoError(t, err)
	assert.Len(t, got.Resources, 1)

	entries, err := s.ReadOperations(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestCommit_SeqMismatch(t *testing.T) {
	s := createTestStore(t)

	err := s.Commit(context.Background(), addStore(2, "op-1"), snapshotAt(1))
	assert.ErrorContains(t, err, "does not match")
}

func TestReplay(t *testing.T) {
	ctx := context.Background()
	doc := ir.Object{"subsystem": ir.Object{"infinispan": ir.Object{}}}
	docHash, err := ir.DocumentHash(doc)
	require.NoError(t, err)

	t.Run("empty journal", func(t *testing.T) {
		s := createTestStore(t)
		result, err := s.Replay(ctx,
			func(Entry) error { return nil },
			func() (ir.Object, error) { return ir.Object{}, nil },
		)
		require.NoError(t, err)
		assert.True(t, result.Match)
		assert.Zero(t, result.Operations)
	})

	t.Run("match", func(t *testing.T) {
		s := createTestStore(t)
		require.NoError(t, s.Commit(ctx, addStore(1, "op-1"), Snapshot{Seq: 1, DocumentHash: docHash}))

		var applied []string
		result, err := s.Replay(ctx,
			func(e Entry) error { applied = append(applied, e.ID); return nil },
			func() (ir.Object, error) { return doc, nil },
		)
		require.NoError(t, err)
		assert.Equal(t, []string{"op-1"}, applied)
		assert.Equal(t, 1, result.Operations)
		assert.Equal(t, int64(1), result.LastSeq)
		assert.Equal(t, docHash, result.ReplayHash)
		assert.True(t, result.Match)
	})

	t.Run("mismatch", func(t *testing.T) {
		s := createTestStore(t)
		require.NoError(t, s.Commit(ctx, addStore(1, "op-1"), Snapshot{Seq: 1, DocumentHash: "stale"}))

		result, err := s.Replay(ctx,
			func(Entry) error { return nil },
			func() (ir.Object, error) { return doc, nil },
		)
		require.NoError(t, err)
		assert.False(t, result.Match)
	})

	t.Run("apply error", func(t *testing.T) {
		s := createTestStore(t)
		require.NoError(t, s.WriteOperation(ctx, addStore(1, "op-1")))

		_, err := s.Replay(ctx,
			func(Entry) error { return errors.New("boom") },
			func() (ir.Object, error) { return doc, nil },
		)
		assert.ErrorContains(t, err, "replay seq 1 (op-1): boom")
	})
}
