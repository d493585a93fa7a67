package queue

import (
	"context"
	"errors"
	"fmt"

	"github.com/roach88/galley/internal/domain"
	"github.com/roach88/galley/internal/position"
)

// SubmitOption configures one Submit call.
type SubmitOption func(*domain.Order)

// WithCustomerRef attaches an opaque customer reference.
func WithCustomerRef(ref string) SubmitOption {
	return func(o *domain.Order) { o.CustomerRef = ref }
}

// WithSkipDeduction marks the order as a prep task: completing it records
// fulfillment but deducts no stock.
func WithSkipDeduction() SubmitOption {
	return func(o *domain.Order) { o.SkipDeduction = true }
}

// Submit validates lines against tenant's catalog and adds a queued order at
// the tail (or head, per the append policy).
func (q *Queue) Submit(ctx context.Context, tenant domain.TenantID, lines []domain.OrderLine, opts ...SubmitOption) (domain.Order, error) {
	snap, err := q.snapshotLines(ctx, tenant, "", lines)
	if err != nil {
		return domain.Order{}, err
	}

	tq, release, err := q.acquire(ctx, tenant)
	if err != nil {
		return domain.Order{}, err
	}
	defer release()

	pos, err := q.allocateEnd(ctx, tq)
	if err != nil {
		return domain.Order{}, err
	}

	o := domain.Order{
		ID:        q.ids.Generate(),
		TenantID:  tenant,
		Lines:     snap,
		Status:    domain.StatusQueued,
		Position:  pos,
		CreatedAt: q.now().UTC(),
		Seq:       1,
	}
	for _, opt := range opts {
		opt(&o)
	}

	tr, err := q.transition(o, "")
	if err != nil {
		return domain.Order{}, err
	}
	if err := q.save(ctx, o, tr); err != nil {
		return domain.Order{}, err
	}

	tq.insert(o)
	q.publish(tq)
	q.metrics.OrderSubmitted(string(tenant))
	q.logger.Debug("order submitted",
		"tenant_id", tenant,
		"order_id", o.ID,
		"position", o.Position,
		"lines", len(o.Lines),
	)
	return o.Clone(), nil
}

// allocateEnd picks a position at the end chosen by the append policy.
func (q *Queue) allocateEnd(ctx context.Context, tq *tenantQueue) (float64, error) {
	return q.allocateWithCompaction(ctx, tq, func() (*float64, *float64) {
		if len(tq.active) == 0 {
			return nil, nil
		}
		if q.appendPolicy == AppendHead {
			return nil, position.Ptr(tq.active[0].Position)
		}
		return position.Ptr(tq.active[len(tq.active)-1].Position), nil
	})
}

// allocateWithCompaction allocates between the neighbors returned by bounds.
// If the gap is exhausted the tenant's queue is compacted and bounds is
// evaluated again against the new positions. A gap that is still exhausted
// after compaction means epsilon is at least the unit spacing.
func (q *Queue) allocateWithCompaction(ctx context.Context, tq *tenantQueue, bounds func() (*float64, *float64)) (float64, error) {
	prev, next := bounds()
	pos, err := q.allocator.Allocate(prev, next)
	if !errors.Is(err, position.ErrGapExhausted) {
		return pos, err
	}

	if err := q.compact(ctx, tq); err != nil {
		return 0, err
	}
	prev, next = bounds()
	pos, err = q.allocator.Allocate(prev, next)
	if errors.Is(err, position.ErrGapExhausted) {
		return 0, domain.NewInvalidPlacement(tq.tenant, "",
			fmt.Sprintf("no room between neighbors after compaction (epsilon %g)", q.allocator.Epsilon()))
	}
	return pos, err
}

// compact renumbers the active queue to 1, 2, 3, ... in current order.
// Caller holds tq.lock.
func (q *Queue) compact(ctx context.Context, tq *tenantQueue) error {
	fresh := position.Compact(len(tq.active))
	updates := make(map[string]float64, len(fresh))
	for i, o := range tq.active {
		updates[o.ID] = fresh[i]
	}

	sctx, cancel := q.storeContext(ctx)
	defer cancel()
	if err := q.store.SavePositions(sctx, tq.tenant, updates); err != nil {
		return domain.ClassifyStoreError("save positions", err)
	}

	for i := range tq.active {
		tq.active[i].Position = fresh[i]
	}
	q.publish(tq)
	q.metrics.Compaction(string(tq.tenant))
	q.logger.Info("queue compacted", "tenant_id", tq.tenant, "orders", len(fresh))
	return nil
}

// Edit replaces the lines of an active order in place. Position and status
// are untouched, and no stock is deducted.
func (q *Queue) Edit(ctx context.Context, tenant domain.TenantID, orderID string, lines []domain.OrderLine) (domain.Order, error) {
	snap, err := q.snapshotLines(ctx, tenant, orderID, lines)
	if err != nil {
		return domain.Order{}, err
	}

	tq, release, err := q.acquire(ctx, tenant)
	if err != nil {
		return domain.Order{}, err
	}
	defer release()

	o, idx, err := q.lookup(ctx, tq, orderID)
	if err != nil {
		return domain.Order{}, err
	}
	if idx < 0 {
		return domain.Order{}, domain.NewImmutableOrder(tenant, orderID, o.Status)
	}

	o = o.Clone()
	o.Lines = snap
	o.Seq++
	if err := q.save(ctx, o, nil); err != nil {
		return domain.Order{}, err
	}

	tq.active[idx] = o
	q.publish(tq)
	q.logger.Debug("order edited", "tenant_id", tenant, "order_id", orderID, "lines", len(o.Lines))
	return o.Clone(), nil
}

// Reorder moves an active order between two neighbors.
//
// prevID is the order that should come immediately before it, nextID the one
// immediately after. Either may be empty: with only prevID the order lands
// right after prevID, with only nextID right before nextID, and with neither
// it moves to the tail. When both are given they must be adjacent once the
// moved order is set aside.
func (q *Queue) Reorder(ctx context.Context, tenant domain.TenantID, orderID, prevID, nextID string) (domain.Order, error) {
	if orderID == prevID || orderID == nextID {
		return domain.Order{}, domain.NewInvalidPlacement(tenant, orderID, "an order cannot be its own neighbor")
	}
	if prevID != "" && prevID == nextID {
		return domain.Order{}, domain.NewInvalidPlacement(tenant, orderID, "neighbors must be distinct")
	}

	tq, release, err := q.acquire(ctx, tenant)
	if err != nil {
		return domain.Order{}, err
	}
	defer release()

	o, idx, err := q.lookup(ctx, tq, orderID)
	if err != nil {
		return domain.Order{}, err
	}
	if idx < 0 {
		return domain.Order{}, domain.NewImmutableOrder(tenant, orderID, o.Status)
	}

	// Neighbors are located among the other active orders.
	others := tq.indexExcept(orderID)
	ids := make([]string, len(others))
	for i, ai := range others {
		ids[i] = tq.active[ai].ID
	}
	pi, ni, err := placement(tenant, orderID, ids, prevID, nextID)
	if err != nil {
		return domain.Order{}, err
	}

	pos, err := q.allocateWithCompaction(ctx, tq, func() (*float64, *float64) {
		var prev, next *float64
		if pi >= 0 {
			prev = position.Ptr(tq.active[others[pi]].Position)
		}
		if ni >= 0 {
			next = position.Ptr(tq.active[others[ni]].Position)
		}
		return prev, next
	})
	if err != nil {
		return domain.Order{}, withOrder(err, orderID)
	}

	o = tq.active[idx].Clone()
	o.Position = pos
	o.Seq++
	if err := q.save(ctx, o, nil); err != nil {
		return domain.Order{}, err
	}

	tq.remove(idx)
	tq.insert(o)
	q.publish(tq)
	q.logger.Debug("order reordered",
		"tenant_id", tenant,
		"order_id", orderID,
		"prev_id", prevID,
		"next_id", nextID,
		"position", pos,
	)
	return o.Clone(), nil
}

// placement resolves neighbor ids to indexes into ids, the queue order of
// every active order except the moved one. -1 means no neighbor on that side.
func placement(tenant domain.TenantID, orderID string, ids []string, prevID, nextID string) (int, int, error) {
	indexOf := func(id string) (int, error) {
		for i, other := range ids {
			if other == id {
				return i, nil
			}
		}
		return -1, domain.NewOrderNotFound(tenant, id)
	}

	switch {
	case prevID == "" && nextID == "":
		return len(ids) - 1, -1, nil

	case nextID == "":
		pi, err := indexOf(prevID)
		if err != nil {
			return 0, 0, err
		}
		if pi+1 < len(ids) {
			return pi, pi + 1, nil
		}
		return pi, -1, nil

	case prevID == "":
		ni, err := indexOf(nextID)
		if err != nil {
			return 0, 0, err
		}
		return ni - 1, ni, nil
	}

	pi, err := indexOf(prevID)
	if err != nil {
		return 0, 0, err
	}
	ni, err := indexOf(nextID)
	if err != nil {
		return 0, 0, err
	}
	if ni != pi+1 {
		return 0, 0, domain.NewInvalidPlacement(tenant, orderID,
			"neighbors "+prevID+" and "+nextID+" are not adjacent")
	}
	return pi, ni, nil
}
