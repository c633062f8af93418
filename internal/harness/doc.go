// Package harness runs rule scenarios against a real engine.
//
// A scenario loads status chunks, expressions and scripted handlers,
// feeds writes through update cycles, and asserts on the recorded trace
// and the final statuses.
//
// # Scenario Format
//
// Scenarios are defined in YAML files with the following structure:
//
//	name: low_hp_alarm
//	description: "Alarm goes up when hp drops below 30"
//	specs:
//	  - rules/ui.cue
//	chunks:
//	  - name: hero
//	    statuses:
//	      - { name: hp, kind: UNSIGNED_8, value: "100" }
//	    expressions:
//	      - name: low_hp
//	        comparisons: [{ status: hp, op: "<", value: "30" }]
//	handlers:
//	  - name: raise_alarm
//	    chunk: ui
//	    expression: low_hp
//	    now: [true]
//	    writes: [{ status: alarm, value: "true" }]
//	steps:
//	  - writes: [{ status: hp, op: "-=", value: "80" }]
//	assertions:
//	  - type: fired
//	    handler: raise_alarm
//	    now: "true"
//	  - type: status_equals
//	    status: alarm
//	    value: "true"
//
// A .cue scenario holds the same content under a top-level scenario field;
// chunk and handler fields beside it use the rule file form.
//
// # Assertion Types
//
//   - status_equals: Compares a final status value
//   - evaluation_equals: Evaluates an expression against final values
//   - fired / not_fired: Checks whether a matching handler call was recorded
//   - fire_count: Checks the exact number of matching handler calls
//   - fire_order: Checks the order in which handlers first fired
//
// # Deterministic Testing
//
// All scenarios execute with a fixed run id and the engine's logical cycle
// clock, and record into an in-memory SQLite trace store. Traces are read
// back from the store, so golden snapshots compare exactly what a real run
// would persist.
//
// # Usage
//
//	scenario, err := harness.LoadScenario("testdata/scenarios/low_hp.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	result, err := harness.Run(ctx, scenario)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if !result.Pass {
//	    for _, err := range result.Errors {
//	        log.Println(err)
//	    }
//	}
package harness
