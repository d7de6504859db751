// Package solver defines the contract between the pass orchestrator and the
// per-kind resolution strategies, plus the default natural-key solver.
//
// Solvers are looked up in a Registry keyed by (depth, kind), so the engine
// never needs to know how a particular kind matches its natural key.
package solver
