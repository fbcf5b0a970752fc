// Package harness runs conformance scenarios against the resource registry.
//
// A scenario bootstraps a registry from a directory of CUE definitions,
// executes management operations at chosen client versions and checks
// both the per-operation outcomes and the final tree.
//
// # Scenario Format
//
//	name: legacy_write_creates_child
//	description: "What this scenario validates"
//	specs: ../specs/infinispan
//	builders: [jdbc-store]
//	setup:
//	  - op: add
//	    address: /subsystem=infinispan
//	flow:
//	  - op: write-attribute
//	    address: /subsystem=infinispan/cache-container=web/store=jdbc
//	    version: 1.4.0
//	    name: binary-table
//	    value: {columns: [{name: id, type: VARCHAR}]}
//	    expect:
//	      outcome: success
//	  - op: read-resource
//	    address: /subsystem=infinispan/cache-container=web/store=jdbc/table=binary
//	    expect:
//	      outcome: failure
//	      error_kind: NotFound
//	assertions:
//	  - type: resource_exists
//	    address: /subsystem=infinispan/cache-container=web/store=jdbc/table=binary
//	  - type: model_equals
//	    address: /subsystem=infinispan/cache-container=web/store=jdbc/table=binary
//	    model: {columns: [{name: id, type: VARCHAR}]}
//	  - type: error_kind
//	    step: 2
//	    kind: NotFound
//
// # Assertion Types
//
//   - resource_exists / resource_absent: a resource is (not) present at a
//     canonical address
//   - model_equals: the stored model at an address equals the given one
//   - error_kind: a flow step failed with the given error kind
//   - replay_matches: the journal replays to the stored snapshot
//
// # Deterministic Testing
//
// Every scenario runs on its own in-memory SQLite store with a
// testutil.DeterministicClock and testutil.SequentialIDs, so seq numbers
// and operation IDs in the trace are identical across runs. Traces are
// compared with golden files under testdata/golden.
package harness
