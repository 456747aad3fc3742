// Package harness runs subscription lifecycle scenarios end to end.
//
// A scenario drives the real store, manager, verifier, callback handler and
// lease scheduler against a scripted hub, then asserts on the final
// subscription record and the lifecycle events observed along the way.
//
// # Scenario Format
//
// Scenarios are YAML files:
//
//	name: async_subscribe_then_verify
//	description: "Hub accepts asynchronously and verifies later"
//	topic: https://blog.example/feed.xml
//	lease_seconds: 86400
//	steps:
//	  - action: subscribe
//	    hub_status: 202
//	    expect: { accepted: true, state: pending }
//	  - action: verify
//	    mode: subscribe
//	    lease_seconds: 3600
//	    expect: { http_status: 200, state: verified }
//	assertions:
//	  - type: final_state
//	    expect: { state: verified, last_status: 202 }
//	  - type: event_order
//	    events: [pre_subscribe, verified]
//
// # Step Actions
//
//   - subscribe: Manager.Subscribe against the scripted hub
//   - unsubscribe: Manager.Unsubscribe against the scripted hub
//   - verify: a hub GET to the callback URL (subscribe, unsubscribe or denied)
//   - content: a hub POST to the callback URL
//   - advance: moves the clock forward by duration
//   - renew: one lease scheduler pass
//
// # Assertion Types
//
//   - final_state: compares fields of the final subscription record
//   - event_order: observer events appear in the given relative order
//   - event_count: an observer event appears exactly N times
//   - hub_requests: the hub received exactly N requests, optionally of one mode
//
// # Deterministic Testing
//
// Every scenario starts at the same fake wall clock in a fresh SQLite
// database. Traces omit subscription IDs and hub addresses so they can be
// compared against golden files:
//
//	go test ./internal/harness -update
package harness
