package store

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/mattn/go-sqlite3"

	"github.com/roach88/galley/internal/domain"
)

func TestOpen_CreatesNewDatabase(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")

	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	defer s.Close()

	if _, err := os.Stat(path); os.IsNotExist(err) {
		t.Error("database file was not created")
	}
}

func TestOpen_Idempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")

	for i := 0; i < 3; i++ {
		s, err := Open(path)
		if err != nil {
			t.Fatalf("Open() iteration %d failed: %v", i, err)
		}
		s.Close()
	}

	s, err := Open(path)
	if err != nil {
		t.Fatalf("final Open() failed: %v", err)
	}
	defer s.Close()

	tables := []string{
		"menu_items", "modifier_groups", "menu_item_groups", "modifier_values",
		"recipes", "recipe_ingredients", "inventory_items",
		"orders", "order_status_log", "fulfillments", "stock_movements",
	}
	for _, table := range tables {
		var name string
		err := s.db.QueryRow(
			"SELECT name FROM sqlite_master WHERE type='table' AND name=?",
			table,
		).Scan(&name)
		if err != nil {
			t.Errorf("table %q not found after idempotent opens: %v", table, err)
		}
	}
}

func TestOpen_InvalidPath(t *testing.T) {
	_, err := Open("/nonexistent/dir/test.db")
	if err == nil {
		t.Error("expected error for invalid path, got nil")
	}
}

func TestClose_NilDB(t *testing.T) {
	s := &Store{db: nil}
	if err := s.Close(); err != nil {
		t.Errorf("Close() on nil db should not error: %v", err)
	}
}

func TestPragmas(t *testing.T) {
	s := createTestStore(t)

	tests := []struct {
		name, want string
	}{
		{"journal_mode", "wal"},
		{"synchronous", "1"}, // NORMAL
		{"busy_timeout", "5000"},
		{"foreign_keys", "1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := s.verifyPragma(tt.name, tt.want); err != nil {
				t.Error(err)
			}
		})
	}
}

func TestSchema_OrdersTable(t *testing.T) {
	s := createTestStore(t)

	columns := getTableColumns(t, s.db, "orders")
	expected := []string{
		"tenant_id", "id", "status", "position", "lines",
		"skip_deduction", "customer_ref", "created_at", "seq",
	}
	for _, col := range expected {
		if !contains(columns, col) {
			t.Errorf("orders table missing column %q", col)
		}
	}
}

func TestSchema_Indexes(t *testing.T) {
	s := createTestStore(t)

	if !contains(getTableIndexes(t, s.db, "orders"), "idx_orders_active") {
		t.Error("orders table missing index idx_orders_active")
	}
	if !contains(getTableIndexes(t, s.db, "order_status_log"), "idx_status_log_order") {
		t.Error("order_status_log table missing index idx_status_log_order")
	}
}

func TestConstraint_FulfillmentKeyUnique(t *testing.T) {
	s := createTestStore(t)

	if _, err := s.db.Exec(`INSERT INTO fulfillments (key, tenant_id, order_id) VALUES ('k', 'a', 'o1')`); err != nil {
		t.Fatalf("first insert failed: %v", err)
	}
	if _, err := s.db.Exec(`INSERT INTO fulfillments (key, tenant_id, order_id) VALUES ('k', 'a', 'o1')`); err == nil {
		t.Error("expected UNIQUE violation for repeated fulfillment key")
	}
}

func TestConstraint_StatusCheck(t *testing.T) {
	s := createTestStore(t)

	_, err := s.db.Exec(`
		INSERT INTO orders (tenant_id, id, status, position, lines, created_at, seq)
		VALUES ('a', 'o1', 'burnt', 1, '[]', '', 1)
	`)
	if err == nil {
		t.Error("expected CHECK violation for unknown status")
	}
}

func TestConstraint_MenuItemGroupForeignKey(t *testing.T) {
	s := createTestStore(t)

	_, err := s.db.Exec(`INSERT INTO menu_item_groups (tenant_id, menu_item_id, group_id, ord) VALUES ('a', 'latte', 'nope', 0)`)
	if err == nil {
		t.Error("expected foreign key violation")
	}
}

func TestMigration_SchemaVersion(t *testing.T) {
	s := createTestStore(t)

	var version int
	if err := s.db.QueryRow("PRAGMA user_version").Scan(&version); err != nil {
		t.Fatalf("failed to get user_version: %v", err)
	}
	if version != currentSchemaVersion {
		t.Errorf("user_version = %d, want %d", version, currentSchemaVersion)
	}
}

func TestMigration_UpgradeFromV0(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	if _, err := db.Exec(schemaSQL); err != nil {
		t.Fatalf("failed to apply schema: %v", err)
	}
	if _, err := db.Exec("PRAGMA user_version = 0"); err != nil {
		t.Fatalf("failed to set user_version: %v", err)
	}
	db.Close()

	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	defer s.Close()

	var version int
	if err := s.db.QueryRow("PRAGMA user_version").Scan(&version); err != nil {
		t.Fatalf("failed to get user_version: %v", err)
	}
	if version != currentSchemaVersion {
		t.Errorf("user_version = %d, want %d after migration", version, currentSchemaVersion)
	}
	if !contains(getTableIndexes(t, s.db, "stock_movements"), "idx_stock_movements_item") {
		t.Error("stock_movements missing idx_stock_movements_item after migration")
	}
}

func TestClassify(t *testing.T) {
	busy := sqlite3.Error{Code: sqlite3.ErrBusy}
	if !domain.IsStoreUnavailable(classify("save order", busy)) {
		t.Error("SQLITE_BUSY should be STORE_UNAVAILABLE")
	}

	if !domain.IsStoreUnavailable(classify("save order", context.DeadlineExceeded)) {
		t.Error("deadline should be STORE_UNAVAILABLE")
	}

	nf := domain.NewOrderNotFound("a", "o1")
	if got := classify("read order", nf); got != error(nf) {
		t.Errorf("galley errors must pass through, got %v", got)
	}

	other := errors.New("disk on fire")
	got := classify("save order", other)
	if domain.IsStoreUnavailable(got) || !errors.Is(got, other) {
		t.Errorf("unexpected classification %v", got)
	}

	if classify("noop", nil) != nil {
		t.Error("nil must stay nil")
	}
}

func getTableColumns(t *testing.T, db *sql.DB, table string) []string {
	t.Helper()

	rows, err := db.Query("PRAGMA table_info(" + table + ")")
	if err != nil {
		t.Fatalf("failed to get table info for %q: %v", table, err)
	}
	defer rows.Close()

	var columns []string
	for rows.Next() {
		var cid int
		var name, ctype string
		var notnull, pk int
		var dfltValue interface{}
		if err := rows.Scan(&cid, &name, &ctype, &notnull, &dfltValue, &pk); err != nil {
			t.Fatalf("failed to scan column info: %v", err)
		}
		columns = append(columns, name)
	}
	return columns
}

func getTableIndexes(t *testing.T, db *sql.DB, table string) []string {
	t.Helper()

	rows, err := db.Query("SELECT name FROM sqlite_master WHERE type='index' AND tbl_name=?", table)
	if err != nil {
		t.Fatalf("failed to get indexes for %q: %v", table, err)
	}
	defer rows.Close()

	var indexes []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			t.Fatalf("failed to scan index name: %v", err)
		}
		indexes = append(indexes, name)
	}
	return indexes
}

func contains(slice []string, item string) bool {
	for _, s := range slice {
		if s == item {
			return true
		}
	}
	return false
}
