package store

import (
	"context"
	"fmt"

	"github.com/roach88/galley/internal/domain"
	"github.com/roach88/galley/internal/ledger"
	"github.com/roach88/galley/internal/rowquery"
)

// ApplyDeductions implements ledger.StockStore.
//
// The fulfillment key is inserted first with ON CONFLICT DO NOTHING; zero
// rows affected means the batch was already applied and nothing else runs.
// Every row is then checked against the running total of the batch before
// any UPDATE, and the transaction commits only if all rows pass.
func (s *Store) ApplyDeductions(ctx context.Context, req ledger.ApplyRequest) (ledger.Outcome, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return ledger.Outcome{}, classify("apply deductions: begin tx", err)
	}
	defer tx.Rollback() // No-op if committed

	if req.Key != "" {
		res, err := tx.ExecContext(ctx, `
			INSERT INTO fulfillments (key, tenant_id, order_id)
			VALUES (?, ?, ?)
			ON CONFLICT(key) DO NOTHING
		`, req.Key, string(req.Tenant), req.OrderID)
		if err != nil {
			return ledger.Outcome{}, classify("apply deductions: fulfillment", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return ledger.Outcome{}, classify("apply deductions: rows affected", err)
		}
		if n == 0 {
			return ledger.Outcome{Applied: false}, nil
		}
	}

	ids := make([]string, 0, len(req.Deductions))
	for _, d := range req.Deductions {
		ids = append(ids, d.ItemID)
	}
	rows, err := s.inventory(ctx, tx, req.Tenant, ids)
	if err != nil {
		return ledger.Outcome{}, err
	}
	stock := make(map[string]float64, len(rows))
	for _, it := range rows {
		stock[it.ID] = it.Stock
	}

	// Validate the whole batch before touching any row.
	next := make(map[string]float64, len(stock))
	for _, d := range req.Deductions {
		cur, ok := next[d.ItemID]
		if !ok {
			cur, ok = stock[d.ItemID]
			if !ok {
				return ledger.Outcome{}, domain.NewMissingStockRow(req.Tenant, d.ItemID)
			}
		}
		if !req.AllowNegative && cur < d.Quantity {
			return ledger.Outcome{}, domain.NewInsufficientStock(req.Tenant, d.ItemID, cur, d.Quantity)
		}
		next[d.ItemID] = cur - d.Quantity
	}

	levels := make([]domain.StockLevel, 0, len(req.Deductions))
	for _, d := range req.Deductions {
		after := stock[d.ItemID] - d.Quantity
		stock[d.ItemID] = after

		if _, err := tx.ExecContext(ctx,
			`UPDATE inventory_items SET stock = ? WHERE tenant_id = ? AND id = ?`,
			after, string(req.Tenant), d.ItemID); err != nil {
			return ledger.Outcome{}, classify("apply deductions: update stock", err)
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO stock_movements (tenant_id, item_id, order_id, fulfillment_key, delta, stock_after)
			VALUES (?, ?, ?, ?, ?, ?)
		`, string(req.Tenant), d.ItemID, req.OrderID, req.Key, -d.Quantity, after); err != nil {
			return ledger.Outcome{}, classify("apply deductions: movement", err)
		}
		levels = append(levels, domain.StockLevel{ItemID: d.ItemID, Stock: after})
	}

	if err := tx.Commit(); err != nil {
		return ledger.Outcome{}, classify("apply deductions: commit", err)
	}
	return ledger.Outcome{Applied: true, Levels: levels}, nil
}

// StockLevels implements ledger.StockStore. Unknown ids are omitted; no ids
// means every row of the tenant. Sorted by item id.
func (s *Store) StockLevels(ctx context.Context, tenant domain.TenantID, itemIDs []string) ([]domain.StockLevel, error) {
	items, err := s.inventory(ctx, s.db, tenant, itemIDs)
	if err != nil {
		return nil, err
	}
	out := make([]domain.StockLevel, len(items))
	for i, it := range items {
		out[i] = domain.StockLevel{ItemID: it.ID, Stock: it.Stock}
	}
	return out, nil
}

// History implements ledger.HistoryReader.
func (s *Store) History(ctx context.Context, tenant domain.TenantID, itemID string) ([]ledger.Movement, error) {
	sel := rowquery.Select{
		From:       "stock_movements",
		Columns:    []string{"seq", "item_id", "order_id", "delta", "stock_after"},
		Tenant:     tenant,
		OrderBy:    []rowquery.Order{{Column: "seq"}},
		Tiebreaker: "seq",
	}
	if itemID != "" {
		sel.Filter = rowquery.Equals{Column: "item_id", Value: itemID}
	}
	rows, err := query(ctx, s.db, sel)
	if err != nil {
		return nil, classify("read stock history", err)
	}
	defer rows.Close()

	out := []ledger.Movement{}
	for rows.Next() {
		m := ledger.Movement{Tenant: tenant}
		if err := rows.Scan(&m.Seq, &m.ItemID, &m.OrderID, &m.Delta, &m.StockAfter); err != nil {
			return nil, fmt.Errorf("scan movement: %w", err)
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, classify("iterate stock history", err)
	}
	return out, nil
}
