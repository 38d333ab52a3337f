// Package store provides SQLite-backed document collections.
//
// Every collection lives in one documents table keyed by (collection, id).
// Bodies are stored with ir.Marshal, a deterministic JSON encoding that
// SQLite's json1 functions can evaluate query predicates against (see
// internal/querysql). Documents read back Equal to what was written: strings
// keep their normalization form and integral floats stay floats.
//
// # Critical Patterns
//
// Deterministic reads
//   - Every multi-row query ends in ORDER BY id ASC COLLATE BINARY
//
// Hooks after durability
//   - Change hooks fire only after the statement or transaction committed
//   - Rows are fully read and closed before hooks run; the pool has a single
//     connection and a hook that reads would otherwise block forever
//
// Versioning
//   - version starts at 1 and increments on every update or replacing upsert
//   - content_hash is ir.DocumentHash (canonical, NFC) of the body
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON
package store
