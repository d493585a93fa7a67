package kds

import (
	"context"

	"github.com/roach88/galley/internal/domain"
)

// EditSession is a station operator's edit of an existing order. It is bound
// to the order id it was opened for, so committing it always edits that queue
// entry and never submits a new order.
type EditSession struct {
	d *Dispatcher

	Tenant  domain.TenantID
	OrderID string

	// Lines are the order's lines when the session opened, for the editor to
	// start from.
	Lines []domain.OrderLine

	// Seq is the order's mutation counter when the session opened.
	Seq int64
}

// OpenEdit starts an edit of an active order.
func (d *Dispatcher) OpenEdit(ctx context.Context, tenant domain.TenantID, orderID string) (*EditSession, error) {
	o, err := d.queue.Get(ctx, tenant, orderID)
	if err != nil {
		return nil, err
	}
	if o.Status.Terminal() {
		return nil, domain.NewImmutableOrder(tenant, orderID, o.Status)
	}
	return &EditSession{
		d:       d,
		Tenant:  tenant,
		OrderID: o.ID,
		Lines:   domain.CloneLines(o.Lines),
		Seq:     o.Seq,
	}, nil
}

// Commit replaces the order's lines. Position and status are kept by the
// queue.
func (s *EditSession) Commit(ctx context.Context, lines []domain.OrderLine) (domain.Order, error) {
	o, err := s.d.Edit(ctx, s.Tenant, s.OrderID, lines)
	if err != nil {
		return domain.Order{}, err
	}
	if o.Seq != s.Seq+1 {
		s.d.logger.Warn("order changed while being edited",
			"tenant_id", s.Tenant,
			"order_id", s.OrderID,
			"opened_seq", s.Seq,
			"committed_seq", o.Seq,
		)
	}
	s.Lines = domain.CloneLines(o.Lines)
	s.Seq = o.Seq
	return o, nil
}
