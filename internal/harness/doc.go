// Package harness replays scripted offline sessions against the queue, the
// form interceptor and the sync engine, and checks what the user and the
// server would have seen.
//
// # Scenario Format
//
// Scenarios are YAML files:
//
//	name: offline_submit_then_sync
//	description: "Forms submitted offline reach the server once it is back"
//	initial_online: false
//	server:
//	  reject: ["tolak"]
//	flow:
//	  - submit: { type: income, amount: "45.50", description: "Kek lapis", channel: shopee }
//	    expect: { status: 202 }
//	  - online: true
//	  - server: down
//	  - drain: true
//	assertions:
//	  - type: notice_order
//	    kinds: [stored, online, syncing, synced]
//	  - type: received
//	    descriptions: ["Kek lapis"]
//	  - type: queue_state
//	    total: 1
//	    unsynced: 0
//
// Each flow step does exactly one thing: submit a form to the interceptor,
// flip connectivity, take the fake server down or up, or run a drain.
//
// # Assertion Types
//
//   - notice_order: the notice kinds appear in this order (gaps allowed)
//   - notice_count: a notice kind appears exactly N times
//   - received: the server accepted exactly these descriptions, in order
//   - queue_state: final queue totals
//
// # Deterministic Testing
//
// Every run uses a manual clock and sequential idempotency keys ("key-1",
// "key-2", ...) and its own queue database, so traces are identical across
// runs and can be compared with golden files in testdata/golden.
package harness
