// Package store provides SQLite-backed durable storage for the resource
// tree.
//
// The store keeps two things:
//   - Operations: an append-only journal of committed management
//     operations, ordered by the logical clock's seq
//   - Resources: a snapshot of the tree after the last commit, one row per
//     resource keyed by canonical address
//
// Commit writes a journal entry and the new snapshot in one transaction, so
// the snapshot always reflects exactly the journal prefix up to its seq.
//
// # Ordering
//
// All ordering uses seq INTEGER (logical clock), NEVER timestamps. Queries
// that return several rows order by seq ASC or address ASC COLLATE BINARY.
//
// # Serialization
//
// Models and operations are stored as RFC 8785 canonical JSON (see
// ir.MarshalCanonical), so equal trees produce byte-identical snapshots.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity
package store
