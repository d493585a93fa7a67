// Package ident produces identifiers: time-sortable order ids and
// content-addressed idempotency keys.
//
// Idempotency keys are SHA-256 over RFC 8785 canonical JSON with a domain
// prefix, so the same logical operation always yields the same key no matter
// which process computes it. The fulfillment key (tenant, order, target
// status) guards the completed-transition deduction.
package ident
