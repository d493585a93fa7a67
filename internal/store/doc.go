// Package store provides SQLite-backed durable storage for galley.
//
// One database file holds every tenant's rows:
//   - Catalog: menu items, modifier groups and values, recipes, inventory
//   - Orders: the queue entries with their line snapshots
//   - Status log: one row per status transition, keyed by transition identity
//   - Fulfillments: one row per applied deduction batch (UNIQUE key)
//   - Stock movements: one row per inventory row changed by a batch
//
// *Store implements catalog.Reader, queue.Store and ledger.StockStore.
//
// # Invariants
//
// Tenant scoping: every read is built with rowquery, which refuses a select
// without a tenant filter and always ends ORDER BY with a unique tiebreaker.
//
// At-most-once deduction: ApplyDeductions inserts the fulfillment key, checks
// every row, updates stock and appends movements in one transaction. A
// duplicate key or any failed row rolls the whole batch back.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity
//
// SQLITE_BUSY and SQLITE_LOCKED are reported as STORE_UNAVAILABLE so callers
// may retry.
package store
