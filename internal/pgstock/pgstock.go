// Package pgstock is a Postgres stock backend for the inventory ledger.
//
// It keeps the same three tables as the SQLite row-store (inventory_items,
// fulfillments, stock_movements) and applies a batch in one transaction:
// the fulfillment key is inserted first, the batch's rows are locked with
// SELECT ... FOR UPDATE in id order, checked, and then updated. Locking in a
// fixed order keeps two batches touching the same rows from deadlocking.
package pgstock

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/roach88/galley/internal/domain"
	"github.com/roach88/galley/internal/ledger"
	"github.com/roach88/galley/internal/rowquery"
)

const schema = `
CREATE TABLE IF NOT EXISTS inventory_items (
    tenant_id         TEXT NOT NULL,
    id                TEXT NOT NULL,
    name              TEXT NOT NULL,
    unit              TEXT NOT NULL DEFAULT '',
    stock             DOUBLE PRECISION NOT NULL DEFAULT 0,
    decaf_counterpart TEXT NOT NULL DEFAULT '',
    PRIMARY KEY (tenant_id, id)
);

CREATE TABLE IF NOT EXISTS fulfillments (
    seq        BIGSERIAL PRIMARY KEY,
    key        TEXT NOT NULL UNIQUE,
    tenant_id  TEXT NOT NULL,
    order_id   TEXT NOT NULL,
    applied_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS stock_movements (
    seq             BIGSERIAL PRIMARY KEY,
    tenant_id       TEXT NOT NULL,
    item_id         TEXT NOT NULL,
    order_id        TEXT NOT NULL,
    fulfillment_key TEXT NOT NULL DEFAULT '',
    delta           DOUBLE PRECISION NOT NULL,
    stock_after     DOUBLE PRECISION NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_stock_movements_item
    ON stock_movements(tenant_id, item_id, seq);
`

// Store is a ledger.StockStore backed by a pgx connection pool.
//
// Thread-safety: safe for concurrent use; row locks serialize batches that
// touch the same items.
type Store struct {
	pool     *pgxpool.Pool
	compiler *rowquery.Compiler
}

var (
	_ ledger.StockStore    = (*Store)(nil)
	_ ledger.HistoryReader = (*Store)(nil)
)

// Connect opens a pool, pings it and creates the tables.
func Connect(ctx context.Context, dsn string) (*Store, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("pgstock: open pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pgstock: ping: %w", err)
	}
	s := New(pool)
	if err := s.Migrate(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

// New wraps an existing pool. The caller owns the pool.
func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool, compiler: rowquery.NewCompiler(rowquery.Dollar)}
}

// Close closes the pool.
func (s *Store) Close() {
	if s != nil && s.pool != nil {
		s.pool.Close()
	}
}

// Migrate creates the tables if they do not exist.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("pgstock: migrate: %w", err)
	}
	return nil
}

// SeedInventory upserts inventory rows. Existing rows keep their stock.
func (s *Store) SeedInventory(ctx context.Context, items []domain.InventoryItem) error {
	batch := &pgx.Batch{}
	for _, it := range items {
		batch.Queue(`
			INSERT INTO inventory_items (tenant_id, id, name, unit, stock, decaf_counterpart)
			VALUES ($1, $2, $3, $4, $5, $6)
			ON CONFLICT (tenant_id, id) DO UPDATE SET
				name = EXCLUDED.name,
				unit = EXCLUDED.unit,
				decaf_counterpart = EXCLUDED.decaf_counterpart
		`, string(it.TenantID), it.ID, it.Name, it.Unit, it.Stock, it.DecafCounterpart)
	}
	if err := s.pool.SendBatch(ctx, batch).Close(); err != nil {
		return classify("seed inventory", err)
	}
	return nil
}

// ApplyDeductions implements ledger.StockStore.
func (s *Store) ApplyDeductions(ctx context.Context, req ledger.ApplyRequest) (ledger.Outcome, error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return ledger.Outcome{}, classify("apply deductions: begin tx", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if req.Key != "" {
		tag, err := tx.Exec(ctx, `
			INSERT INTO fulfillments (key, tenant_id, order_id)
			VALUES ($1, $2, $3)
			ON CONFLICT (key) DO NOTHING
		`, req.Key, string(req.Tenant), req.OrderID)
		if err != nil {
			return ledger.Outcome{}, classify("apply deductions: fulfillment", err)
		}
		if tag.RowsAffected() == 0 {
			return ledger.Outcome{Applied: false}, nil
		}
	}

	stock, err := lockRows(ctx, tx, req)
	if err != nil {
		return ledger.Outcome{}, err
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

		if _, err := tx.Exec(ctx,
			`UPDATE inventory_items SET stock = $1 WHERE tenant_id = $2 AND id = $3`,
			after, string(req.Tenant), d.ItemID); err != nil {
			return ledger.Outcome{}, classify("apply deductions: update stock", err)
		}
		if _, err := tx.Exec(ctx, `
			INSERT INTO stock_movements (tenant_id, item_id, order_id, fulfillment_key, delta, stock_after)
			VALUES ($1, $2, $3, $4, $5, $6)
		`, string(req.Tenant), d.ItemID, req.OrderID, req.Key, -d.Quantity, after); err != nil {
			return ledger.Outcome{}, classify("apply deductions: movement", err)
		}
		levels = append(levels, domain.StockLevel{ItemID: d.ItemID, Stock: after})
	}

	if err := tx.Commit(ctx); err != nil {
		return ledger.Outcome{}, classify("apply deductions: commit", err)
	}
	return ledger.Outcome{Applied: true, Levels: levels}, nil
}

// lockRows locks the batch's inventory rows in id order and returns their
// current stock.
func lockRows(ctx context.Context, tx pgx.Tx, req ledger.ApplyRequest) (map[string]float64, error) {
	seen := make(map[string]bool, len(req.Deductions))
	ids := make([]string, 0, len(req.Deductions))
	for _, d := range req.Deductions {
		if !seen[d.ItemID] {
			seen[d.ItemID] = true
			ids = append(ids, d.ItemID)
		}
	}
	sort.Strings(ids)

	rows, err := tx.Query(ctx, `
		SELECT id, stock FROM inventory_items
		WHERE tenant_id = $1 AND id = ANY($2)
		ORDER BY id
		FOR UPDATE
	`, string(req.Tenant), ids)
	if err != nil {
		return nil, classify("apply deductions: lock rows", err)
	}
	defer rows.Close()

	stock := make(map[string]float64, len(ids))
	for rows.Next() {
		var id string
		var v float64
		if err := rows.Scan(&id, &v); err != nil {
			return nil, fmt.Errorf("scan stock row: %w", err)
		}
		stock[id] = v
	}
	if err := rows.Err(); err != nil {
		return nil, classify("apply deductions: lock rows", err)
	}
	return stock, nil
}

// StockLevels implements ledger.StockStore.
func (s *Store) StockLevels(ctx context.Context, tenant domain.TenantID, itemIDs []string) ([]domain.StockLevel, error) {
	sel := rowquery.Select{
		From:    "inventory_items",
		Columns: []string{"id", "stock"},
		Tenant:  tenant,
	}
	if len(itemIDs) > 0 {
		sel.Filter = rowquery.In{Column: "id", Values: rowquery.Strings(itemIDs)}
	}
	text, params, err := s.compiler.Compile(sel)
	if err != nil {
		return nil, err
	}
	rows, err := s.pool.Query(ctx, text, params...)
	if err != nil {
		return nil, classify("stock levels", err)
	}
	defer rows.Close()

	out := []domain.StockLevel{}
	for rows.Next() {
		var lvl domain.StockLevel
		if err := rows.Scan(&lvl.ItemID, &lvl.Stock); err != nil {
			return nil, fmt.Errorf("scan stock level: %w", err)
		}
		out = append(out, lvl)
	}
	if err := rows.Err(); err != nil {
		return nil, classify("stock levels", err)
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
	text, params, err := s.compiler.Compile(sel)
	if err != nil {
		return nil, err
	}
	rows, err := s.pool.Query(ctx, text, params...)
	if err != nil {
		return nil, classify("stock history", err)
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
		return nil, classify("stock history", err)
	}
	return out, nil
}

// retryableStates are SQLSTATEs that succeed on retry: serialization
// failure, deadlock, and admin/crash shutdown.
var retryableStates = map[string]bool{
	"40001": true,
	"40P01": true,
	"57P01": true,
	"57P02": true,
	"57P03": true,
}

func classify(op string, err error) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && (retryableStates[pgErr.Code] || strings.HasPrefix(pgErr.Code, "08")) {
		return domain.NewStoreUnavailable(op, err)
	}
	if pgconn.Timeout(err) || pgconn.SafeToRetry(err) {
		return domain.NewStoreUnavailable(op, err)
	}
	return domain.ClassifyStoreError(op, err)
}
