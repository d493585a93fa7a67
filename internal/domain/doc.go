// Package domain holds the types shared by every galley component: tenants,
// orders and their line snapshots, the read-only menu/recipe catalog, inventory
// rows, and the structured error taxonomy.
//
// # Tenancy
//
// Every entity carries a TenantID. No operation in galley reads or writes
// across tenant ids; a reference that does not resolve inside the caller's
// tenant is reported as TENANT_MISMATCH rather than looked up elsewhere.
//
// # Order lifecycle
//
//	queued -> in_progress -> ready -> completed
//	queued | in_progress  -> cancelled
//
// completed and cancelled are terminal. CanTransition is the single source of
// truth for the state machine; the queue and the HTTP boundary both defer to it.
package domain
