package harness

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/galley/internal/domain"
	"github.com/roach88/galley/internal/ledger"
)

func line(item string, qty int, mods ...string) domain.OrderLine {
	return domain.OrderLine{MenuItemID: item, Quantity: qty, ModifierIDs: mods}
}

func boolPtr(b bool) *bool { return &b }

func floatPtr(f float64) *float64 { return &f }

func latteFlow(store string) *Scenario {
	return &Scenario{
		Name:   "latte_flow",
		Tenant: "cafe-a",
		Store:  store,
		Steps: []Step{
			{Op: OpSubmit, Ref: "a", Lines: []domain.OrderLine{line("latte", 1)}},
			{Op: OpSubmit, Ref: "b", Lines: []domain.OrderLine{line("steamer", 2)}},
			{Op: OpReorder, Order: "b", Next: "a"},
			{Op: OpBump, Order: "a"},
			{Op: OpBump, Order: "a"},
			{Op: OpBump, Order: "a", Expect: &Expect{Status: domain.StatusCompleted, Deducted: boolPtr(true)}},
			{Op: OpCancel, Order: "b", Expect: &Expect{Status: domain.StatusCancelled}},
		},
		Assertions: []Assertion{
			{Type: AssertQueueOrder, Orders: []string{}},
			{Type: AssertStockLevel, Item: "milk", Quantity: floatPtr(800)},
			{Type: AssertStockLevel, Item: "espresso_beans", Quantity: floatPtr(482)},
			{Type: AssertMovementCount, Count: 2},
			{Type: AssertTransitionCount, Order: "a", Count: 4},
			{Type: AssertTransitionCount, Order: "b", Count: 2},
			{Type: AssertOrderStatus, Order: "b", Status: domain.StatusCancelled},
		},
	}
}

func TestRun_MemoryStore(t *testing.T) {
	result, err := Run(context.Background(), latteFlow(StoreMemory))
	require.NoError(t, err)

	assert.True(t, result.Pass, "errors: %v", result.Errors)
	assert.Empty(t, result.Errors)
	require.Len(t, result.Trace, 7)
	assert.Equal(t, map[string]string{"a": "order-1", "b": "order-2"}, result.Refs)

	reorder := result.Trace[2]
	assert.Equal(t, OpReorder, reorder.Op)
	assert.Equal(t, "order-2", reorder.OrderID)
	assert.Equal(t, "0.5", reorder.Result["position"])

	done := result.Trace[5]
	assert.Equal(t, OutcomeOK, done.Outcome)
	assert.Equal(t, true, done.Result["deducted"])
	assert.Equal(t, map[string]any{"espresso_beans": "482", "milk": "800"}, done.Result["levels"])
}

// The SQLite backend must produce the same trace as the in-memory stores.
func TestRun_StoresAgree(t *testing.T) {
	mem, err := Run(context.Background(), latteFlow(StoreMemory))
	require.NoError(t, err)
	lite, err := Run(context.Background(), latteFlow(StoreSQLite))
	require.NoError(t, err)

	assert.True(t, lite.Pass, "errors: %v", lite.Errors)
	assert.Equal(t, mem.Trace, lite.Trace)
}

func TestRun_ScenariosAreIsolated(t *testing.T) {
	first, err := Run(context.Background(), latteFlow(StoreMemory))
	require.NoError(t, err)
	second, err := Run(context.Background(), latteFlow(StoreMemory))
	require.NoError(t, err)

	assert.True(t, second.Pass, "errors: %v", second.Errors)
	assert.Equal(t, first.Trace, second.Trace, "ids and stock restart for every run")
}

func TestRun_UnexpectedErrorFailsScenario(t *testing.T) {
	s := &Scenario{
		Name:   "unexpected",
		Tenant: "cafe-a",
		Steps: []Step{
			{Op: OpSubmit, Lines: []domain.OrderLine{line("latte", 1, "cream-cheese")}},
			{Op: OpSubmit, Lines: []domain.OrderLine{line("latte", 1)}},
		},
	}

	result, err := Run(context.Background(), s)
	require.NoError(t, err)

	assert.False(t, result.Pass)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], "steps[0] submit: unexpected error")
	require.Len(t, result.Trace, 2, "later steps still run")
	assert.NotEqual(t, OutcomeOK, result.Trace[0].Outcome)
	assert.Equal(t, OutcomeOK, result.Trace[1].Outcome)
}

func TestRun_ExpectationMismatches(t *testing.T) {
	s := &Scenario{
		Name:   "mismatch",
		Tenant: "cafe-a",
		Steps: []Step{
			{Op: OpSubmit, Ref: "a", Lines: []domain.OrderLine{line("steamer", 1)},
				Expect: &Expect{Error: domain.ErrCodeEmptyOrder}},
			{Op: OpBump, Order: "a", Expect: &Expect{Status: domain.StatusReady}},
			{Op: OpAdvance, Order: "a", Status: domain.StatusCompleted,
				Expect: &Expect{Error: domain.ErrCodeInsufficientStock}},
			{Op: OpBump, Order: "a", Expect: &Expect{Warnings: []domain.ErrorCode{domain.ErrCodeLowStockWarning}}},
		},
	}

	result, err := Run(context.Background(), s)
	require.NoError(t, err)
	assert.False(t, result.Pass)
	require.Len(t, result.Errors, 4)
	assert.Contains(t, result.Errors[0], "expected error EMPTY_ORDER, got success")
	assert.Contains(t, result.Errors[1], "expected status ready, got in_progress")
	assert.Contains(t, result.Errors[2], "expected error INSUFFICIENT_STOCK, got INVALID_TRANSITION")
	assert.Contains(t, result.Errors[3], "expected warnings [LOW_STOCK_WARNING], got []")
}

func TestRun_UnknownOrderRef(t *testing.T) {
	s := &Scenario{
		Name:   "unknown",
		Tenant: "cafe-a",
		Steps: []Step{
			{Op: OpBump, Order: "ghost", Expect: &Expect{Error: domain.ErrCodeOrderNotFound}},
		},
	}

	result, err := Run(context.Background(), s)
	require.NoError(t, err)

	assert.True(t, result.Pass, "errors: %v", result.Errors)
	require.Len(t, result.Trace, 1)
	ev := result.Trace[0]
	assert.Equal(t, "ghost", ev.OrderID, "unknown refs are literal ids")
	assert.Empty(t, ev.Ref)
	assert.Equal(t, string(domain.ErrCodeOrderNotFound), ev.Outcome)
}

func TestRun_HardPolicyDanglingRejects(t *testing.T) {
	s := &Scenario{
		Name:   "dangling",
		Tenant: "cafe-a",
		Policy: ledger.PolicyHard,
		Steps: []Step{
			{Op: OpSubmit, Ref: "m", Lines: []domain.OrderLine{line("muffin", 1)}},
			{Op: OpBump, Order: "m"},
			{Op: OpBump, Order: "m"},
			{Op: OpBump, Order: "m", Expect: &Expect{
				Error: domain.ErrCodeDanglingReference,
				Item:  "muffin_batter",
			}},
		},
		Assertions: []Assertion{
			{Type: AssertOrderStatus, Order: "m", Status: domain.StatusReady},
			{Type: AssertMovementCount, Count: 0},
		},
	}

	result, err := Run(context.Background(), s)
	require.NoError(t, err)
	assert.True(t, result.Pass, "errors: %v", result.Errors)
}

func TestRun_StockOverrides(t *testing.T) {
	s := &Scenario{
		Name:   "overrides",
		Tenant: "cafe-a",
		Stock: []StockOverride{
			{Item: "milk", Quantity: 150},
			{Tenant: "cafe-b", Item: "bagel_dough", Quantity: 1},
		},
		Steps: []Step{
			{Op: OpSubmit, Lines: []domain.OrderLine{line("steamer", 1)}},
		},
		Assertions: []Assertion{
			{Type: AssertStockLevel, Item: "milk", Quantity: floatPtr(150)},
			{Type: AssertStockLevel, Tenant: "cafe-b", Item: "bagel_dough", Quantity: floatPtr(1)},
		},
	}

	result, err := Run(context.Background(), s)
	require.NoError(t, err)
	assert.True(t, result.Pass, "errors: %v", result.Errors)
}

func TestRun_StockOverrideUnknownItem(t *testing.T) {
	s := &Scenario{
		Name:   "bad_override",
		Tenant: "cafe-a",
		Stock:  []StockOverride{{Item: "bagel_dough", Quantity: 1}},
		Steps:  []Step{{Op: OpSubmit, Lines: []domain.OrderLine{line("steamer", 1)}}},
	}

	_, err := Run(context.Background(), s)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `no inventory row "bagel_dough" for tenant "cafe-a"`)
}

func TestRun_InvalidScenario(t *testing.T) {
	_, err := Run(context.Background(), &Scenario{Name: "no_tenant", Steps: []Step{{Op: OpSubmit}}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "tenant is required")
}

func TestRun_CatalogFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "menu.yaml"), []byte(`
menu_items:
  - { id: toast, tenant_id: diner, name: Toast, price_cents: 500 }
recipes:
  - menu_item_id: toast
    tenant_id: diner
    ingredients:
      - { inventory_item_id: bread, quantity: 2 }
inventory:
  - { id: bread, tenant_id: diner, name: Bread, unit: slices, stock: 10 }
`), 0644))

	path := writeScenario(t, dir, "toast.yaml", `
name: toast
tenant: diner
catalog: menu.yaml
steps:
  - op: submit
    ref: t
    lines: [{ menu_item_id: toast, quantity: 3 }]
  - { op: bump, order: t }
  - { op: bump, order: t }
  - { op: bump, order: t, expect: { deducted: true } }
assertions:
  - type: stock_level
    item: bread
    quantity: 4
`)
	s, err := LoadScenario(path)
	require.NoError(t, err)

	result, err := Run(context.Background(), s)
	require.NoError(t, err)
	assert.True(t, result.Pass, "errors: %v", result.Errors)
}
