// Package harness runs import scenarios against the real engine.
//
// Every scenario gets a fresh database, a manual clock starting at
// testutil.Epoch and "mt-N" record IDs, so two runs of one scenario produce
// the same trace. Solvers run one at a time unless the scenario raises
// workers.
//
// # Scenario Format
//
// Scenarios are defined in YAML files with the following structure:
//
//	name: scenario_name
//	description: "What this scenario validates"
//	workers: 1                # optional, parallel solvers per depth group
//	stuck_after: 24h          # optional stall threshold
//	seed:                     # optional, entities inserted up front
//	  - kind: team
//	    fields: { name: "CSI Nuoto Ober Ferrari" }
//	    count: 2
//	steps:
//	  - enqueue:
//	      - as: result
//	        kind: meeting_individual_result
//	        payload: { ... }
//	  - passes: 6
//	  - advance: 25h
//	  - digest: true
//	assertions:
//	  - type: record
//	    record: result
//	    expect: { done: true, solvable: 6 }
//	  - type: entity_count
//	    kind: swimmer
//	    count: 1
//
// Each step performs exactly one action: enqueue (add batch: true to submit
// the requests as one batch), passes, until_idle, advance or digest.
//
// # Assertion Types
//
//   - record: subset match on a record's done flag, depths, attempts,
//     last outcome and solved payload fields
//   - entity_count: number of permanent entities of a kind
//   - same_ref: records resolved the same ID for a reference field
//   - stuck: exactly these records are stuck when the run ends
//   - removed: these records were digested out of the queue
//
// # Golden Files
//
// RunWithGolden snapshots the trace as canonical JSON under
// testdata/golden. Regenerate with go test ./internal/harness -update.
package harness
