package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/roach88/resmodel/internal/ir"
)

// Entry is one journaled management operation.
type Entry struct {
	Seq             int64
	ID              string
	Request         ir.Operation   // as the client sent it
	Applied         []ir.Operation // current-schema operations, in apply order
	Hash            string         // ir.OperationHash of Request
	DefinitionsHash string
	EngineVersion   string
}

// ResourceRow is one resource of a snapshot.
type ResourceRow struct {
	Address ir.Address
	Model   ir.Object
}

// Snapshot is the persisted state of the tree after the journal entry Seq.
// Rows are ordered by address, so a parent precedes its children.
type Snapshot struct {
	Seq          int64
	DocumentHash string
	Resources    []ResourceRow
}

// WriteOperation appends an entry to the journal.
// Uses ON CONFLICT(id) DO NOTHING for idempotency - duplicate IDs are
// silently ignored. A different entry reusing a seq is an error.
func (s *Store) WriteOperation(ctx context.Context, e Entry) error {
	if err := writeOperation(ctx, s.db, e); err != nil {
		return fmt.Errorf("write operation: %w", err)
	}
	return nil
}

// SaveSnapshot replaces the stored snapshot.
func (s *Store) SaveSnapshot(ctx context.Context, snap Snapshot) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("save snapshot: begin: %w", err)
	}
	defer tx.Rollback()

	if err := writeSnapshot(ctx, tx, snap); err != nil {
		return fmt.Errorf("save snapshot: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("save snapshot: commit: %w", err)
	}
	return nil
}

// Commit journals e and replaces the snapshot in one transaction. Either
// both are stored or neither is.
func (s *Store) Commit(ctx context.Context, e Entry, snap Snapshot) error {
	if snap.Seq != e.Seq {
		return fmt.Errorf("commit: snapshot seq %d does not match entry seq %d", snap.Seq, e.Seq)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("commit: begin: %w", err)
	}
	defer tx.Rollback()

	if err := writeOperation(ctx, tx, e); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	if err := writeSnapshot(ctx, tx, snap); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// dbtx is satisfied by both *sql.DB and *sql.Tx.
type dbtx interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func writeOperation(ctx context.Context, db dbtx, e Entry) error {
	if e.ID == "" {
		return fmt.Errorf("entry id is required")
	}
	if e.Seq <= 0 {
		return fmt.Errorf("entry seq must be positive, got %d", e.Seq)
	}

	// A rewritten entry is a no-op. Checked up front so that a seq
	// collision is never mistaken for a duplicate.
	var existing int64
	err := db.QueryRowContext(ctx, `SELECT seq FROM operations WHERE id = ?`, e.ID).Scan(&existing)
	switch {
	case err == nil:
		return nil
	case !errors.Is(err, sql.ErrNoRows):
		return err
	}

	request, err := marshalOperation(e.Request)
	if err != nil {
		return err
	}
	applied, err := marshalOperations(e.Applied)
	if err != nil {
		return err
	}
	engineVersion := e.EngineVersion
	if engineVersion == "" {
		engineVersion = ir.EngineVersion
	}

	_, err = db.ExecContext(ctx, `
		INSERT INTO operations
		(seq, id, name, address, version, request, applied, hash, definitions_hash, engine_version)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`,
		e.Seq,
		e.ID,
		string(e.Request.Name),
		e.Request.Address.String(),
		e.Request.Version,
		request,
		applied,
		e.Hash,
		e.DefinitionsHash,
		engineVersion,
	)
	return err
}

func writeSnapshot(ctx context.Context, db dbtx, snap Snapshot) error {
	if _, err := db.ExecContext(ctx, `DELETE FROM resources`); err != nil {
		return fmt.Errorf("clear resources: %w", err)
	}
	for _, row := range snap.Resources {
		model, err := marshalModel(row.Model)
		if err != nil {
			return fmt.Errorf("resource %s: %w", row.Address, err)
		}
		if _, err := db.ExecContext(ctx, `
			INSERT INTO resources (address, model) VALUES (?, ?)
		`, row.Address.String(), model); err != nil {
			return fmt.Errorf("resource %s: %w", row.Address, err)
		}
	}
	_, err := db.ExecContext(ctx, `
		INSERT INTO snapshot (id, seq, document_hash) VALUES (1, ?, ?)
		ON CONFLICT(id) DO UPDATE SET seq = excluded.seq, document_hash = excluded.document_hash
	`, snap.Seq, snap.DocumentHash)
	if err != nil {
		return fmt.Errorf("snapshot header: %w", err)
	}
	return nil
}
