// Package ledger applies completed orders' ingredient deductions to stock.
//
// A batch of deductions is one all-or-nothing unit keyed by an idempotency
// key: either every row changes or none does, and a key that was already
// applied changes nothing. The stock policy decides what happens when a row
// would go negative:
//
//   - hard: the batch is rejected with INSUFFICIENT_STOCK{item}
//   - soft: the batch is applied, stock goes negative, and a
//     LOW_STOCK_WARNING is returned for each negative row
package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/roach88/galley/internal/domain"
	"github.com/roach88/galley/internal/metrics"
)

// Policy controls whether stock may go negative.
type Policy string

const (
	PolicyHard Policy = "hard"
	PolicySoft Policy = "soft"
)

// ParsePolicy validates a configured policy name.
func ParsePolicy(s string) (Policy, error) {
	switch Policy(s) {
	case PolicyHard, PolicySoft:
		return Policy(s), nil
	case "":
		return PolicyHard, nil
	}
	return "", fmt.Errorf("invalid stock policy %q: must be hard or soft", s)
}

// ApplyRequest is one order's deduction batch.
type ApplyRequest struct {
	Tenant  domain.TenantID
	OrderID string

	// Key makes the batch idempotent. A key already applied is a no-op.
	Key string

	Deductions    []domain.Deduction
	AllowNegative bool
}

// Outcome reports what a StockStore did with a batch.
type Outcome struct {
	// Applied is false when Key had already been applied.
	Applied bool

	// Levels are the stock levels of the deducted items after the batch,
	// in the order of the request's deductions. Empty when not applied.
	Levels []domain.StockLevel
}

// Movement is one applied deduction in the stock history.
type Movement struct {
	Tenant     domain.TenantID `json:"tenant_id"`
	ItemID     string          `json:"item_id"`
	OrderID    string          `json:"order_id"`
	Delta      float64         `json:"delta"`
	StockAfter float64         `json:"stock_after"`
	Seq        int64           `json:"seq"`
}

// StockStore is the row-level stock backend. ApplyDeductions must be atomic:
// the idempotency key and every row update commit together or not at all.
// It returns INSUFFICIENT_STOCK when AllowNegative is false and a row would
// go negative, and DANGLING_INGREDIENT_REFERENCE when a row does not exist
// for the tenant.
type StockStore interface {
	ApplyDeductions(ctx context.Context, req ApplyRequest) (Outcome, error)
	StockLevels(ctx context.Context, tenant domain.TenantID, itemIDs []string) ([]domain.StockLevel, error)
}

// HistoryReader is implemented by stock stores that keep a movement log.
// An empty itemID returns every item's movements.
type HistoryReader interface {
	History(ctx context.Context, tenant domain.TenantID, itemID string) ([]Movement, error)
}

// ErrNoHistory is returned by Ledger.History when the store keeps no log.
var ErrNoHistory = errors.New("stock store keeps no movement history")

// Result is the ledger's view of an applied batch.
type Result struct {
	Applied  bool
	Levels   []domain.StockLevel
	Warnings []*domain.Error
}

// Ledger applies deduction batches under a stock policy.
type Ledger struct {
	store   StockStore
	policy  Policy
	logger  *slog.Logger
	metrics *metrics.Metrics
}

// Option configures a Ledger.
type Option func(*Ledger)

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(led *Ledger) { led.logger = l }
}

// WithMetrics records stock levels and warnings.
func WithMetrics(m *metrics.Metrics) Option {
	return func(led *Ledger) { led.metrics = m }
}

// New creates a ledger.
func New(store StockStore, policy Policy, opts ...Option) *Ledger {
	led := &Ledger{store: store, policy: policy, logger: slog.Default()}
	for _, opt := range opts {
		opt(led)
	}
	return led
}

// Policy returns the configured stock policy.
func (l *Ledger) Policy() Policy {
	return l.policy
}

// Apply deducts a batch for tenant. Under the soft policy negative levels are
// returned as warnings on the Result, never as an error.
func (l *Ledger) Apply(ctx context.Context, tenant domain.TenantID, orderID, key string, deductions []domain.Deduction) (Result, error) {
	out, err := l.store.ApplyDeductions(ctx, ApplyRequest{
		Tenant:        tenant,
		OrderID:       orderID,
		Key:           key,
		Deductions:    deductions,
		AllowNegative: l.policy == PolicySoft,
	})
	if err != nil {
		return Result{}, domain.ClassifyStoreError("apply deductions", err)
	}

	res := Result{Applied: out.Applied, Levels: out.Levels}
	if !out.Applied {
		l.logger.Debug("deduction already applied", "tenant_id", tenant, "order_id", orderID)
		return res, nil
	}

	for _, lvl := range out.Levels {
		l.metrics.SetStock(string(tenant), lvl.ItemID, lvl.Stock)
		if lvl.Stock < 0 {
			w := domain.NewLowStockWarning(tenant, lvl.ItemID, lvl.Stock)
			w.OrderID = orderID
			res.Warnings = append(res.Warnings, w)
			l.metrics.LowStock(string(tenant), lvl.ItemID)
			l.logger.Warn("stock below zero", "tenant_id", tenant, "order_id", orderID, "item_id", lvl.ItemID, "stock", lvl.Stock)
		}
	}
	l.logger.Info("deductions applied", "tenant_id", tenant, "order_id", orderID, "items", len(out.Levels))
	return res, nil
}

// Levels returns current stock for the given items.
func (l *Ledger) Levels(ctx context.Context, tenant domain.TenantID, itemIDs []string) ([]domain.StockLevel, error) {
	levels, err := l.store.StockLevels(ctx, tenant, itemIDs)
	if err != nil {
		return nil, domain.ClassifyStoreError("stock levels", err)
	}
	return levels, nil
}

// History returns the tenant's stock movements, oldest first.
func (l *Ledger) History(ctx context.Context, tenant domain.TenantID, itemID string) ([]Movement, error) {
	h, ok := l.store.(HistoryReader)
	if !ok {
		return nil, ErrNoHistory
	}
	mv, err := h.History(ctx, tenant, itemID)
	if err != nil {
		return nil, domain.ClassifyStoreError("stock history", err)
	}
	return mv, nil
}
