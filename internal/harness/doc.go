// Package harness runs end-to-end notification scenarios.
//
// A scenario loads a catalog, subscribes recording webhooks to events,
// ingests a sequence of data points and asserts on what was delivered.
// Everything runs in-process against an in-memory database, a virtual
// clock and sequential job ids, so traces are reproducible and can be
// compared with golden files.
//
// # Scenario Format
//
//	name: too_hot_notifies
//	description: "A reading above the threshold notifies both subscribers"
//	catalog: catalogs/greenhouse
//	subscriptions:
//	  - event: greenhouse/too-hot
//	    path: /first
//	  - event: greenhouse/too-hot
//	    path: /second
//	responses:
//	  /second: 500
//	dispatch:
//	  pacing: 1s
//	  max_attempts: 2
//	  retry_backoff: 2s
//	flow:
//	  - ingest: greenhouse/sensor
//	    data: { temp: 101.5 }
//	  - ingest: greenhouse/sensor
//	    data: { temp: "abc" }
//	    expect:
//	      error: type_mismatch
//	assertions:
//	  - type: delivery_count
//	    count: 3
//	  - type: delivery_order
//	    paths: [/first, /second, /second]
//
// The catalog directory is relative to the scenario file. Subscriptions
// are created by the harness because their URLs point at the recorder.
//
// # Assertion Types
//
//   - delivery_count: exactly N webhook requests arrived
//   - delivery_order: request paths arrived in this order
//   - delivery_gap: consecutive requests were at least a duration apart
//   - stored_points: a resource holds exactly N data points
//   - job_states: final notification job states, counted by state
package harness
