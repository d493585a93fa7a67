// Package harness runs scripted kitchen sessions against the order queue.
//
// A scenario builds a fresh engine (catalog, stock ledger, queue and KDS
// dispatcher) on either in-memory stores or an in-memory SQLite database,
// replays a list of station operations, and checks each step's outcome and
// the final queue and stock state. Order ids are "order-1", "order-2", ...
// and the clock steps deterministically, so traces can be compared against
// golden files.
//
// # Scenario Format
//
//	name: latte_to_completion
//	description: "A latte is bumped to completion and deducted once"
//	tenant: cafe-a
//	policy: hard            # or soft
//	store: memory           # or sqlite
//	catalog: menu.yaml      # optional; defaults to the cafe fixture
//	stock:
//	  - item: milk
//	    quantity: 300
//	steps:
//	  - op: submit
//	    ref: first
//	    lines:
//	      - { menu_item_id: latte, quantity: 1, modifier_ids: [oat] }
//	  - op: bump
//	    order: first
//	    expect: { status: in_progress }
//	  - op: advance
//	    order: first
//	    status: completed
//	    expect: { error: INVALID_TRANSITION }
//	assertions:
//	  - type: queue_order
//	    orders: [first]
//	  - type: stock_level
//	    item: milk
//	    quantity: 300
//
// Ops are submit, edit, reorder (prev/next), advance (status), bump and
// cancel. Assertion types are trace_contains, trace_order, trace_count,
// queue_order, order_status, stock_level, movement_count, transition_count
// and ticket_labels.
package harness
