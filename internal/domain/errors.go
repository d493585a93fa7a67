package domain

import (
	"context"
	"database/sql/driver"
	"errors"
	"fmt"
	"net"
)

// Error is the structured error returned by every galley operation.
//
// Codes fall into three groups:
//   - Validation: TENANT_MISMATCH, EMPTY_ORDER, ORDER_NOT_FOUND, IMMUTABLE_ORDER,
//     INVALID_TRANSITION, INVALID_LINE, INVALID_PLACEMENT, MODIFIER_NOT_APPLICABLE.
//     Surfaced immediately, never retried.
//   - Fulfillment: DANGLING_INGREDIENT_REFERENCE, INSUFFICIENT_STOCK, and the
//     non-fatal LOW_STOCK_WARNING.
//   - Infrastructure: STORE_UNAVAILABLE, the only retryable code.
type Error struct {
	// Code identifies the error category.
	Code ErrorCode

	// Message is a human-readable description.
	Message string

	TenantID TenantID
	OrderID  string

	// ItemID identifies the inventory item, menu item or modifier involved.
	ItemID string

	// Details contains additional context.
	Details map[string]string

	// Err is the underlying cause, if any.
	Err error
}

// ErrorCode categorizes galley errors.
type ErrorCode string

const (
	ErrCodeTenantMismatch        ErrorCode = "TENANT_MISMATCH"
	ErrCodeEmptyOrder            ErrorCode = "EMPTY_ORDER"
	ErrCodeOrderNotFound         ErrorCode = "ORDER_NOT_FOUND"
	ErrCodeImmutableOrder        ErrorCode = "IMMUTABLE_ORDER"
	ErrCodeInvalidTransition     ErrorCode = "INVALID_TRANSITION"
	ErrCodeInvalidLine           ErrorCode = "INVALID_LINE"
	ErrCodeInvalidPlacement      ErrorCode = "INVALID_PLACEMENT"
	ErrCodeModifierNotApplicable ErrorCode = "MODIFIER_NOT_APPLICABLE"
	ErrCodeDanglingReference     ErrorCode = "DANGLING_INGREDIENT_REFERENCE"
	ErrCodeInsufficientStock     ErrorCode = "INSUFFICIENT_STOCK"
	ErrCodeLowStockWarning       ErrorCode = "LOW_STOCK_WARNING"
	ErrCodeStoreUnavailable      ErrorCode = "STORE_UNAVAILABLE"
)

// Error implements the error interface.
func (e *Error) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Code, e.Message)
	switch {
	case e.OrderID != "" && e.ItemID != "":
		msg = fmt.Sprintf("%s (tenant=%s, order=%s, item=%s)", msg, e.TenantID, e.OrderID, e.ItemID)
	case e.OrderID != "":
		msg = fmt.Sprintf("%s (tenant=%s, order=%s)", msg, e.TenantID, e.OrderID)
	case e.ItemID != "":
		msg = fmt.Sprintf("%s (tenant=%s, item=%s)", msg, e.TenantID, e.ItemID)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// CodeOf returns the code of the first *Error in err's chain, or "".
func CodeOf(err error) ErrorCode {
	var de *Error
	if errors.As(err, &de) {
		return de.Code
	}
	return ""
}

func hasCode(err error, code ErrorCode) bool {
	return err != nil && CodeOf(err) == code
}

func IsTenantMismatch(err error) bool    { return hasCode(err, ErrCodeTenantMismatch) }
func IsEmptyOrder(err error) bool        { return hasCode(err, ErrCodeEmptyOrder) }
func IsOrderNotFound(err error) bool     { return hasCode(err, ErrCodeOrderNotFound) }
func IsImmutableOrder(err error) bool    { return hasCode(err, ErrCodeImmutableOrder) }
func IsInvalidTransition(err error) bool { return hasCode(err, ErrCodeInvalidTransition) }
func IsDanglingReference(err error) bool { return hasCode(err, ErrCodeDanglingReference) }
func IsInsufficientStock(err error) bool { return hasCode(err, ErrCodeInsufficientStock) }
func IsLowStockWarning(err error) bool   { return hasCode(err, ErrCodeLowStockWarning) }
func IsStoreUnavailable(err error) bool  { return hasCode(err, ErrCodeStoreUnavailable) }

// IsRetryable reports whether the operation may succeed if retried.
// Only STORE_UNAVAILABLE is retryable.
func IsRetryable(err error) bool {
	return IsStoreUnavailable(err)
}

// NewTenantMismatch reports a reference that does not resolve inside tenant.
func NewTenantMismatch(tenant TenantID, kind, id string) *Error {
	return &Error{
		Code:     ErrCodeTenantMismatch,
		Message:  fmt.Sprintf("%s %q does not belong to tenant", kind, id),
		TenantID: tenant,
		ItemID:   id,
		Details:  map[string]string{"kind": kind},
	}
}

// NewEmptyOrder reports a submit or edit with no lines.
func NewEmptyOrder(tenant TenantID, orderID string) *Error {
	return &Error{
		Code:     ErrCodeEmptyOrder,
		Message:  "order has no lines",
		TenantID: tenant,
		OrderID:  orderID,
	}
}

// NewOrderNotFound reports an order id absent from the tenant's queue.
func NewOrderNotFound(tenant TenantID, orderID string) *Error {
	return &Error{
		Code:     ErrCodeOrderNotFound,
		Message:  "order not found",
		TenantID: tenant,
		OrderID:  orderID,
	}
}

// NewImmutableOrder reports a mutation of a completed or cancelled order.
func NewImmutableOrder(tenant TenantID, orderID string, status Status) *Error {
	return &Error{
		Code:     ErrCodeImmutableOrder,
		Message:  fmt.Sprintf("order is %s", status),
		TenantID: tenant,
		OrderID:  orderID,
		Details:  map[string]string{"status": string(status)},
	}
}

// NewInvalidTransition reports a transition the state machine forbids.
func NewInvalidTransition(tenant TenantID, orderID string, from, to Status) *Error {
	return &Error{
		Code:     ErrCodeInvalidTransition,
		Message:  fmt.Sprintf("cannot move from %s to %s", from, to),
		TenantID: tenant,
		OrderID:  orderID,
		Details: map[string]string{
			"from": string(from),
			"to":   string(to),
		},
	}
}

// NewInvalidLine reports a malformed order line.
func NewInvalidLine(tenant TenantID, index int, reason string) *Error {
	return &Error{
		Code:     ErrCodeInvalidLine,
		Message:  fmt.Sprintf("line %d: %s", index, reason),
		TenantID: tenant,
		Details:  map[string]string{"line": fmt.Sprintf("%d", index)},
	}
}

// NewInvalidPlacement reports reorder neighbors that cannot bracket the order.
func NewInvalidPlacement(tenant TenantID, orderID, reason string) *Error {
	return &Error{
		Code:     ErrCodeInvalidPlacement,
		Message:  reason,
		TenantID: tenant,
		OrderID:  orderID,
	}
}

// NewModifierNotApplicable reports a modifier whose group is not assigned to the item.
func NewModifierNotApplicable(tenant TenantID, menuItemID, modifierID string) *Error {
	return &Error{
		Code:     ErrCodeModifierNotApplicable,
		Message:  fmt.Sprintf("modifier %q is not offered on menu item %q", modifierID, menuItemID),
		TenantID: tenant,
		ItemID:   modifierID,
		Details:  map[string]string{"menu_item_id": menuItemID},
	}
}

// NewDanglingReference reports an inventory id that does not exist for tenant.
func NewDanglingReference(tenant TenantID, menuItemID, inventoryItemID string) *Error {
	return &Error{
		Code:     ErrCodeDanglingReference,
		Message:  fmt.Sprintf("ingredient %q referenced by %q does not exist", inventoryItemID, menuItemID),
		TenantID: tenant,
		ItemID:   inventoryItemID,
		Details:  map[string]string{"menu_item_id": menuItemID},
	}
}

// NewMissingStockRow reports a deduction against an inventory row that does
// not exist for tenant. It carries the dangling-reference code.
func NewMissingStockRow(tenant TenantID, inventoryItemID string) *Error {
	return &Error{
		Code:     ErrCodeDanglingReference,
		Message:  fmt.Sprintf("inventory item %q does not exist", inventoryItemID),
		TenantID: tenant,
		ItemID:   inventoryItemID,
	}
}

// NewInsufficientStock reports a hard-policy deduction that would go negative.
func NewInsufficientStock(tenant TenantID, itemID string, stock, requested float64) *Error {
	return &Error{
		Code:     ErrCodeInsufficientStock,
		Message:  fmt.Sprintf("stock %g is less than requested %g", stock, requested),
		TenantID: tenant,
		ItemID:   itemID,
		Details: map[string]string{
			"stock":     fmt.Sprintf("%g", stock),
			"requested": fmt.Sprintf("%g", requested),
		},
	}
}

// NewLowStockWarning reports stock driven below zero under the soft policy.
func NewLowStockWarning(tenant TenantID, itemID string, stockAfter float64) *Error {
	return &Error{
		Code:     ErrCodeLowStockWarning,
		Message:  fmt.Sprintf("stock is %g", stockAfter),
		TenantID: tenant,
		ItemID:   itemID,
		Details:  map[string]string{"stock_after": fmt.Sprintf("%g", stockAfter)},
	}
}

// NewStoreUnavailable wraps a store failure that may succeed on retry.
func NewStoreUnavailable(op string, err error) *Error {
	return &Error{
		Code:    ErrCodeStoreUnavailable,
		Message: op,
		Err:     err,
	}
}

// ClassifyStoreError maps timeouts, cancellation and connection failures to
// STORE_UNAVAILABLE. Galley errors and other failures pass through unchanged.
func ClassifyStoreError(op string, err error) error {
	if err == nil {
		return nil
	}
	if CodeOf(err) != "" {
		return err
	}
	var netErr net.Error
	switch {
	case errors.Is(err, context.DeadlineExceeded),
		errors.Is(err, context.Canceled),
		errors.Is(err, driver.ErrBadConn),
		errors.As(err, &netErr):
		return NewStoreUnavailable(op, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}
