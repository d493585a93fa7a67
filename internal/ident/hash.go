package ident

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Domain prefixes for content-addressed keys. The version suffix allows the
// key derivation to change without colliding with stored keys.
const (
	DomainFulfillment = "galley/fulfillment/v1"
	DomainTransition  = "galley/transition/v1"
)

// hashWithDomain computes SHA256(domain + 0x00 + data).
func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// FulfillmentKey is the idempotency key for deducting stock when an order
// reaches status. Computing it twice for the same order and status yields
// the same key.
func FulfillmentKey(tenant, orderID, status string) (string, error) {
	canonical, err := MarshalCanonical(map[string]any{
		"tenant_id": tenant,
		"order_id":  orderID,
		"status":    status,
	})
	if err != nil {
		return "", fmt.Errorf("fulfillment key: %w", err)
	}
	return hashWithDomain(DomainFulfillment, canonical), nil
}

// TransitionKey identifies one status change of an order, used to make the
// status log idempotent.
func TransitionKey(tenant, orderID, from, to string, seq int64) (string, error) {
	canonical, err := MarshalCanonical(map[string]any{
		"tenant_id": tenant,
		"order_id":  orderID,
		"from":      from,
		"to":        to,
		"seq":       seq,
	})
	if err != nil {
		return "", fmt.Errorf("transition key: %w", err)
	}
	return hashWithDomain(DomainTransition, canonical), nil
}

// MustFulfillmentKey is like FulfillmentKey but panics on error.
// The inputs are plain strings, so it cannot fail in practice.
func MustFulfillmentKey(tenant, orderID, status string) string {
	key, err := FulfillmentKey(tenant, orderID, status)
	if err != nil {
		panic(err)
	}
	return key
}
