// Package harness runs end-to-end scenarios against the real pipeline.
//
// A scenario supplies the input CSV, the data contract, the run settings
// and a script of remote responses. The harness runs every stage against
// an in-memory store and a scripted HTTP server, then checks the outcome
// and the assertions.
//
// # Scenario Format
//
// Scenarios are YAML files with the following structure:
//
//	name: retry_then_success
//	description: "429 twice, then 200"
//	run_id: run-retry
//	api_function: update
//	max_batch_size: 100
//	retry:
//	  max_retries: 3
//	  min_delay: 30s
//	  max_delay: 300s
//	contract:
//	  name: scenario
//	  id_field: Asset ID
//	  attributes:
//	    - { source: Business, key: Business }
//	csv: |
//	  Asset ID,Business
//	  1,Payments
//	responses:
//	  - { status: 429 }
//	  - { status: 429 }
//	expect:
//	  outcome: completed
//	assertions:
//	  - type: delays
//	    delays: [30s, 165s]
//	  - type: final_state
//	    table: execution_log
//	    where: { group_number: 1, batch_number: 1 }
//	    expect: { status: "200", attempts: 3 }
//
// A contract_file path, relative to the scenario file, may replace the
// inline contract. Responses beyond the script are answered with 200.
//
// # Assertion Types
//
//   - trace_contains: an event with the given event type, group, batch and status exists
//   - trace_order: execution records appear in the given "group/batch" order
//   - trace_count: exactly count events match the filter
//   - final_state: exactly one row of a table matches where, and carries expect
//   - row_count: a table holds exactly count rows
//   - delays: the retry delays requested, in order
//
// # Deterministic Testing
//
// Every scenario runs with a fixed run id, a fixed clock and a recording
// sleeper, so its trace is identical across runs and can be compared with
// a golden file.
package harness
