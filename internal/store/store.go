package store

import (
	"database/sql"
	_ "embed"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

//go:embed schema.sql
var schemaSQL string

// MemoryPath opens a private in-memory database. Nothing survives Close,
// which suits tests and the harness.
const MemoryPath = ":memory:"

// migrations upgrade a database from user_version i to i+1. schema.sql only
// creates the tables, so a fresh database runs every migration and ends at
// len(migrations).
var migrations = []func(*sql.DB) error{
	// 1: the journal is read back per resource
	func(db *sql.DB) error {
		_, err := db.Exec(`CREATE INDEX IF NOT EXISTS idx_operations_address ON operations(address, seq)`)
		return err
	},
}

// Store keeps the operation journal and the latest tree snapshot in one
// SQLite database. A file database runs in WAL mode so snapshot reads do not
// block journal appends; an in-memory database keeps SQLite's memory
// journal.
type Store struct {
	db   *sql.DB
	path string
}

// Open opens the database at path, creating it when missing, and brings
// its schema up to date. Opening an existing store again is harmless.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// One connection: the controller is the only writer, and each new
	// connection to :memory: would see an empty database.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	for _, stmt := range pragmas(path) {
		if _, err := db.Exec(stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to apply %q: %w", stmt, err)
		}
	}
	if err := migrate(db); err != nil {
		db.Close()
		return nil, err
	}
	return &Store{db: db, path: path}, nil
}

// pragmas returns the connection settings for path. Commits sync at NORMAL,
// which loses at most the last few operations on power failure; replay
// from the snapshot tolerates that.
func pragmas(path string) []string {
	list := []string{
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys = ON",
	}
	if path == MemoryPath {
		return list
	}
	return append([]string{"PRAGMA journal_mode = WAL"}, list...)
}

// migrate creates missing tables and runs the migrations past the stored
// user_version.
func migrate(db *sql.DB) error {
	if _, err := db.Exec(schemaSQL); err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}

	var version int
	if err := db.QueryRow("PRAGMA user_version").Scan(&version); err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}
	for v := version; v < len(migrations); v++ {
		if err := migrations[v](db); err != nil {
			return fmt.Errorf("migrate to v%d: %w", v+1, err)
		}
	}
	if _, err := db.Exec(fmt.Sprintf("PRAGMA user_version = %d", len(migrations))); err != nil {
		return fmt.Errorf("write schema version: %w", err)
	}
	return nil
}

// Close releases the database. An in-memory store is gone afterwards.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Path returns the path the store was opened with, MemoryPath included.
func (s *Store) Path() string {
	return s.path
}

// DB exposes the connection for inspection tools.
func (s *Store) DB() *sql.DB {
	return s.db
}

// verifyPragma reports whether pragma name reads back as expected.
func (s *Store) verifyPragma(name, expected string) error {
	var value string
	if err := s.db.QueryRow("PRAGMA " + name).Scan(&value); err != nil {
		return fmt.Errorf("failed to query %s: %w", name, err)
	}
	if value != expected {
		return fmt.Errorf("%s = %q, expected %q", name, value, expected)
	}
	return nil
}
