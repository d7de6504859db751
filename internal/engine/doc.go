// Package engine implements the microtransaction depth resolver.
//
// An import fact (a meeting, a result, a lap) is queued as a
// microtransaction record and resolved one dependency depth at a time by
// repeated, independent passes until its target entity can be committed.
//
// ARCHITECTURE:
//
// Record Lifecycle:
// 1. Enqueue validates the payload against the dependency graph and stores
// the record with requested = depth of its kind, processed = solvable = 0
// 2. RunPass selects pending records ordered by requested depth, then seq
// 3. Each record attempts depth solvable+1: the solver of every closure kind
// at that depth runs, and the IDs merge into the solved payload only if all
// of them succeed
// 4. When solvable reaches requested, Commit writes the target and flips done
// 5. Digest deletes done records whose entity exists and reports stuck ones
//
// Passes keep no state between invocations. A record that cannot progress
// (a parent not imported yet, an ambiguous natural key) keeps its last
// written depths and is retried by the next pass.
//
// CRITICAL PATTERNS:
//
// Monotonic Depths:
// processed and solvable never decrease and solvable <= processed <=
// requested holds after every write. The store rejects any other move.
//
// Optimistic Writes:
// Every depth write is conditional on the progress the pass read, and
// MarkDone is conditional on done = 0. A pass that loses a race skips the
// record; it never retries with stale data.
//
// Idempotent Commit:
// Commit finds the target by natural key before creating it. Re-running a
// commit returns the entity the first run created.
//
// Failure Isolation:
// Solver errors and panics are recorded on the record. They never abort a
// pass.
package engine
