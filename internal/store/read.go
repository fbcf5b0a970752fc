package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/roach88/resmodel/internal/ir"
)

const selectOperations = `
	SELECT seq, id, request, applied, hash, definitions_hash, engine_version
	FROM operations
`

// ReadOperations returns the journal entries with seq greater than
// afterSeq, ordered by seq. Returns an empty slice (not nil) when there are
// none.
func (s *Store) ReadOperations(ctx context.Context, afterSeq int64) ([]Entry, error) {
	rows, err := s.db.QueryContext(ctx, selectOperations+`
		WHERE seq > ?
		ORDER BY seq ASC
	`, afterSeq)
	if err != nil {
		return nil, fmt.Errorf("query operations: %w", err)
	}
	return scanEntries(rows)
}

// ReadHistory returns the journal entries whose request addressed addr,
// ordered by seq.
func (s *Store) ReadHistory(ctx context.Context, addr ir.Address) ([]Entry, error) {
	rows, err := s.db.QueryContext(ctx, selectOperations+`
		WHERE address = ?
		ORDER BY seq ASC
	`, addr.String())
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	return scanEntries(rows)
}

// ReadOperation retrieves a single entry by ID.
// Returns sql.ErrNoRows if not found.
func (s *Store) ReadOperation(ctx context.Context, id string) (Entry, error) {
	row := s.db.QueryRowContext(ctx, selectOperations+`WHERE id = ?`, id)
	return scanEntry(row)
}

// LastSeq returns the highest journaled seq, or 0 for an empty journal.
func (s *Store) LastSeq(ctx context.Context) (int64, error) {
	var seq sql.NullInt64
	if err := s.db.QueryRowContext(ctx, `SELECT MAX(seq) FROM operations`).Scan(&seq); err != nil {
		return 0, fmt.Errorf("last seq: %w", err)
	}
	return seq.Int64, nil
}

// LoadSnapshot returns the stored snapshot. ok is false when nothing was
// ever committed.
func (s *Store) LoadSnapshot(ctx context.Context) (snap Snapshot, ok bool, err error) {
	err = s.db.QueryRowContext(ctx, `
		SELECT seq, document_hash FROM snapshot WHERE id = 1
	`).Scan(&snap.Seq, &snap.DocumentHash)
	if errors.Is(err, sql.ErrNoRows) {
		return Snapshot{}, false, nil
	}
	if err != nil {
		return Snapshot{}, false, fmt.Errorf("load snapshot: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT address, model FROM resources
		ORDER BY address COLLATE BINARY ASC
	`)
	if err != nil {
		return Snapshot{}, false, fmt.Errorf("load snapshot: %w", err)
	}
	defer rows.Close()

	snap.Resources = []ResourceRow{}
	for rows.Next() {
		var rawAddr, rawModel string
		if err := rows.Scan(&rawAddr, &rawModel); err != nil {
			return Snapshot{}, false, fmt.Errorf("scan resource: %w", err)
		}
		addr, err := ir.ParseAddress(rawAddr)
		if err != nil {
			return Snapshot{}, false, fmt.Errorf("resource address: %w", err)
		}
		model, err := unmarshalModel(rawModel)
		if err != nil {
			return Snapshot{}, false, fmt.Errorf("resource %s: %w", rawAddr, err)
		}
		snap.Resources = append(snap.Resources, ResourceRow{Address: addr, Model: model})
	}
	if err := rows.Err(); err != nil {
		return Snapshot{}, false, fmt.Errorf("iterate resources: %w", err)
	}
	return snap, true, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanEntries(rows *sql.Rows) ([]Entry, error) {
	defer rows.Close()

	entries := []Entry{}
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate operations: %w", err)
	}
	return entries, nil
}

func scanEntry(row scanner) (Entry, error) {
	var (
		e       Entry
		request string
		applied string
	)
	if err := row.Scan(&e.Seq, &e.ID, &request, &applied, &e.Hash, &e.DefinitionsHash, &e.EngineVersion); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Entry{}, err
		}
		return Entry{}, fmt.Errorf("scan operation: %w", err)
	}

	var err error
	if e.Request, err = unmarshalOperation(request); err != nil {
		return Entry{}, err
	}
	if e.Applied, err = unmarshalOperations(applied); err != nil {
		return Entry{}, err
	}
	return e, nil
}
