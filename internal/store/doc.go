// Package store provides SQLite-backed durable storage for swimport.
//
// Two tables live in one database:
//   - microtransactions: the import queue, one row per pending or done record
//   - entities: the permanent store the resolver finds and creates rows in
//
// # Concurrency Patterns
//
// Conditional depth writes
//   - AdvanceDepth and MarkDone only apply while the row still carries the
//     depths the caller read; a lost race reports false instead of an error
//   - CHECK constraints reject any row breaking solvable <= processed <= requested
//
// Find-or-create by natural key
//   - lookup and insert run in one BEGIN IMMEDIATE transaction
//   - the natural-key index is not unique, several matches are an AmbiguousError
//
// Deterministic reads
//   - pending records are read ORDER BY requested_depth ASC, seq ASC
//   - entities are read ORDER BY id ASC
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//
// Payload columns hold RFC 8785 canonical JSON produced by internal/ir.
package store
