package queue

import (
	"context"
	"errors"
	"time"

	"github.com/roach88/galley/internal/domain"
	"github.com/roach88/galley/internal/ident"
	"github.com/roach88/galley/internal/ledger"
)

// AdvanceResult describes the outcome of Advance.
type AdvanceResult struct {
	Order domain.Order

	// Duplicate is set when the order was already in the target terminal
	// status; nothing changed.
	Duplicate bool

	// Deducted is set when this call applied the order's stock deductions.
	Deducted   bool
	Deductions []domain.Deduction
	Levels     []domain.StockLevel

	// Warnings are non-fatal conditions: LOW_STOCK_WARNING, and
	// DANGLING_INGREDIENT_REFERENCE under the soft policy.
	Warnings []*domain.Error
}

// Advance moves an order along the status state machine.
//
// Entering completed resolves the order's recipes and applies the deductions
// exactly once, keyed by order id and target status, inside the tenant's
// critical section. If resolution, deduction or the status write fails, the
// order keeps its previous status. Advancing a terminal order to the status
// it already has is a no-op reported as Duplicate.
func (q *Queue) Advance(ctx context.Context, tenant domain.TenantID, orderID string, to domain.Status) (AdvanceResult, error) {
	tq, release, err := q.acquire(ctx, tenant)
	if err != nil {
		return AdvanceResult{}, err
	}
	defer release()

	o, idx, err := q.lookup(ctx, tq, orderID)
	if err != nil {
		return AdvanceResult{}, err
	}
	if o.Status.Terminal() && o.Status == to {
		if to == domain.StatusCompleted {
			q.metrics.Fulfillment(string(tenant), "duplicate")
		}
		q.logger.Debug("duplicate advance ignored", "tenant_id", tenant, "order_id", orderID, "status", to)
		return AdvanceResult{Order: o, Duplicate: true}, nil
	}
	if !domain.CanTransition(o.Status, to) {
		return AdvanceResult{}, domain.NewInvalidTransition(tenant, orderID, o.Status, to)
	}

	var res AdvanceResult
	if to == domain.StatusCompleted {
		res, err = q.fulfil(ctx, o)
		if err != nil {
			q.metrics.Fulfillment(string(tenant), "rejected")
			q.logger.Warn("fulfillment rejected",
				"tenant_id", tenant,
				"order_id", orderID,
				"error", err,
			)
			return AdvanceResult{}, err
		}
	}

	from := o.Status
	o = o.Clone()
	o.Status = to
	o.Seq++
	tr, err := q.transition(o, from)
	if err != nil {
		return AdvanceResult{}, err
	}
	if err := q.save(ctx, o, tr); err != nil {
		return AdvanceResult{}, err
	}

	if to.Terminal() {
		tq.remove(idx)
	} else {
		tq.active[idx] = o
	}
	q.publish(tq)
	q.metrics.Transition(string(tenant), string(to))
	q.logger.Debug("order advanced",
		"tenant_id", tenant,
		"order_id", orderID,
		"from", from,
		"status", to,
	)

	res.Order = o.Clone()
	return res, nil
}

// Cancel moves a queued or in-progress order to cancelled. No stock moves.
func (q *Queue) Cancel(ctx context.Context, tenant domain.TenantID, orderID string) (domain.Order, error) {
	res, err := q.Advance(ctx, tenant, orderID, domain.StatusCancelled)
	if err != nil {
		return domain.Order{}, err
	}
	return res.Order, nil
}

// fulfil resolves and deducts stock for o. Caller holds the tenant lock.
//
// Under the hard policy a dangling ingredient rejects the completion. Under
// the soft policy it becomes a warning and the resolvable deductions apply.
func (q *Queue) fulfil(ctx context.Context, o domain.Order) (AdvanceResult, error) {
	key, err := ident.FulfillmentKey(string(o.TenantID), o.ID, string(domain.StatusCompleted))
	if err != nil {
		return AdvanceResult{}, err
	}

	sctx, cancel := q.storeContext(ctx)
	defer cancel()

	var res AdvanceResult
	var deductions []domain.Deduction
	if !o.SkipDeduction {
		resolved, err := q.resolver.ExpandOrder(sctx, o.TenantID, o.Lines)
		if err != nil {
			if !domain.IsDanglingReference(err) {
				return AdvanceResult{}, domain.ClassifyStoreError("resolve recipes", err)
			}
			q.metrics.Dangling(string(o.TenantID), len(resolved.Dangling))
			q.logger.Warn("dangling ingredient references",
				"tenant_id", o.TenantID,
				"order_id", o.ID,
				"items", resolved.Dangling,
			)
			if q.ledger.Policy() == ledger.PolicyHard {
				return AdvanceResult{}, withOrder(err, o.ID)
			}
			var de *domain.Error
			if errors.As(withOrder(err, o.ID), &de) {
				res.Warnings = append(res.Warnings, de)
			}
		}
		deductions = resolved.Deductions
	}

	defer q.metrics.TrackStore("apply_deductions")(time.Now())
	applied, err := q.ledger.Apply(sctx, o.TenantID, o.ID, key, deductions)
	if err != nil {
		return AdvanceResult{}, withOrder(err, o.ID)
	}

	res.Deductions = deductions
	res.Levels = applied.Levels
	res.Deducted = applied.Applied && len(deductions) > 0
	res.Warnings = append(res.Warnings, applied.Warnings...)

	outcome := "applied"
	switch {
	case !applied.Applied:
		outcome = "duplicate"
	case o.SkipDeduction:
		outcome = "skipped"
	}
	q.metrics.Fulfillment(string(o.TenantID), outcome)
	return res, nil
}

// withOrder stamps orderID onto a galley error that lacks one.
func withOrder(err error, orderID string) error {
	var de *domain.Error
	if errors.As(err, &de) && de.OrderID == "" {
		cp := *de
		cp.OrderID = orderID
		return &cp
	}
	return err
}
