package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/roach88/galley/internal/domain"
	"github.com/roach88/galley/internal/queue"
	"github.com/roach88/galley/internal/rowquery"
)

var orderColumns = []string{
	"id", "status", "position", "lines", "skip_deduction", "customer_ref", "created_at", "seq",
}

var activeStatuses = []any{
	domain.StatusQueued, domain.StatusInProgress, domain.StatusReady,
}

// SaveOrder upserts o and, when tr is non-nil, appends tr to the status log
// in the same transaction. A transition whose key is already logged is
// ignored, so a retried save is idempotent.
func (s *Store) SaveOrder(ctx context.Context, o domain.Order, tr *queue.Transition) error {
	lines, err := marshalLines(o.Lines)
	if err != nil {
		return fmt.Errorf("save order: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return classify("save order: begin tx", err)
	}
	defer tx.Rollback() // No-op if committed

	_, err = tx.ExecContext(ctx, `
		INSERT INTO orders
		(tenant_id, id, status, position, lines, skip_deduction, customer_ref, created_at, seq)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(tenant_id, id) DO UPDATE SET
			status = excluded.status,
			position = excluded.position,
			lines = excluded.lines,
			skip_deduction = excluded.skip_deduction,
			customer_ref = excluded.customer_ref,
			seq = excluded.seq
	`,
		string(o.TenantID),
		o.ID,
		string(o.Status),
		o.Position,
		lines,
		boolInt(o.SkipDeduction),
		o.CustomerRef,
		formatTime(o.CreatedAt),
		o.Seq,
	)
	if err != nil {
		return classify("save order", err)
	}

	if tr != nil {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO order_status_log
			(key, tenant_id, order_id, from_status, to_status, seq, at)
			VALUES (?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(key) DO NOTHING
		`,
			tr.Key,
			string(tr.TenantID),
			tr.OrderID,
			string(tr.From),
			string(tr.To),
			tr.Seq,
			formatTime(tr.At),
		)
		if err != nil {
			return classify("save order: status log", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return classify("save order: commit", err)
	}
	return nil
}

// SavePositions rewrites positions in one transaction. Unknown ids are ignored.
func (s *Store) SavePositions(ctx context.Context, tenant domain.TenantID, positions map[string]float64) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return classify("save positions: begin tx", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `UPDATE orders SET position = ? WHERE tenant_id = ? AND id = ?`)
	if err != nil {
		return classify("save positions: prepare", err)
	}
	defer stmt.Close()

	for id, p := range positions {
		if _, err := stmt.ExecContext(ctx, p, string(tenant), id); err != nil {
			return classify("save positions", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return classify("save positions: commit", err)
	}
	return nil
}

// ActiveOrders returns the tenant's non-terminal orders by position, ties
// broken by id.
func (s *Store) ActiveOrders(ctx context.Context, tenant domain.TenantID) ([]domain.Order, error) {
	rows, err := query(ctx, s.db, rowquery.Select{
		From:    "orders",
		Columns: orderColumns,
		Tenant:  tenant,
		Filter:  rowquery.In{Column: "status", Values: activeStatuses},
		OrderBy: []rowquery.Order{{Column: "position"}},
	})
	if err != nil {
		return nil, classify("read active orders", err)
	}
	defer rows.Close()

	out := []domain.Order{}
	for rows.Next() {
		o, err := scanOrder(rows, tenant)
		if err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	if err := rows.Err(); err != nil {
		return nil, classify("iterate active orders", err)
	}
	return out, nil
}

// Order returns one order of any status, or ORDER_NOT_FOUND.
func (s *Store) Order(ctx context.Context, tenant domain.TenantID, id string) (domain.Order, error) {
	rows, err := query(ctx, s.db, rowquery.Select{
		From:    "orders",
		Columns: orderColumns,
		Tenant:  tenant,
		Filter:  rowquery.Equals{Column: "id", Value: id},
	})
	if err != nil {
		return domain.Order{}, classify("read order", err)
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return domain.Order{}, classify("read order", err)
		}
		return domain.Order{}, domain.NewOrderNotFound(tenant, id)
	}
	return scanOrder(rows, tenant)
}

// Transitions returns an order's status log in seq order.
func (s *Store) Transitions(ctx context.Context, tenant domain.TenantID, orderID string) ([]queue.Transition, error) {
	rows, err := query(ctx, s.db, rowquery.Select{
		From:       "order_status_log",
		Columns:    []string{"key", "order_id", "from_status", "to_status", "seq", "at"},
		Tenant:     tenant,
		Filter:     rowquery.Equals{Column: "order_id", Value: orderID},
		OrderBy:    []rowquery.Order{{Column: "seq"}},
		Tiebreaker: "key",
	})
	if err != nil {
		return nil, classify("read status log", err)
	}
	defer rows.Close()

	out := []queue.Transition{}
	for rows.Next() {
		tr := queue.Transition{TenantID: tenant}
		var from, to, at string
		if err := rows.Scan(&tr.Key, &tr.OrderID, &from, &to, &tr.Seq, &at); err != nil {
			return nil, fmt.Errorf("scan transition: %w", err)
		}
		tr.From = domain.Status(from)
		tr.To = domain.Status(to)
		if tr.At, err = parseTime(at); err != nil {
			return nil, fmt.Errorf("scan transition: %w", err)
		}
		out = append(out, tr)
	}
	if err := rows.Err(); err != nil {
		return nil, classify("iterate status log", err)
	}
	return out, nil
}

func scanOrder(rows *sql.Rows, tenant domain.TenantID) (domain.Order, error) {
	o := domain.Order{TenantID: tenant}
	var status, lines, createdAt string
	if err := rows.Scan(&o.ID, &status, &o.Position, &lines, &o.SkipDeduction, &o.CustomerRef, &createdAt, &o.Seq); err != nil {
		return domain.Order{}, fmt.Errorf("scan order: %w", err)
	}
	o.Status = domain.Status(status)

	var err error
	if o.Lines, err = unmarshalLines(lines); err != nil {
		return domain.Order{}, fmt.Errorf("scan order %s: %w", o.ID, err)
	}
	if o.CreatedAt, err = parseTime(createdAt); err != nil {
		return domain.Order{}, fmt.Errorf("scan order %s: %w", o.ID, err)
	}
	return o, nil
}
