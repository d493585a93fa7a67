package harness

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/galley/internal/domain"
	"github.com/roach88/galley/internal/ledger"
	"github.com/roach88/galley/internal/queue"
)

const minimalYAML = `
name: minimal
description: one submit
tenant: cafe-a
steps:
  - op: submit
    ref: first
    lines:
      - { menu_item_id: latte, quantity: 1, modifier_ids: [oat], note: "no foam" }
assertions:
  - type: queue_order
    orders: [first]
`

func writeScenario(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0644))
	return path
}

func TestParseScenario_Minimal(t *testing.T) {
	s, err := ParseScenario([]byte(minimalYAML))
	require.NoError(t, err)

	assert.Equal(t, "minimal", s.Name)
	assert.Equal(t, domain.TenantID("cafe-a"), s.Tenant)
	assert.Equal(t, ledger.PolicyHard, s.Policy, "policy defaults to hard")
	assert.Equal(t, StoreMemory, s.Store)
	assert.Equal(t, queue.AppendTail, s.Append)

	require.Len(t, s.Steps, 1)
	step := s.Steps[0]
	assert.Equal(t, OpSubmit, step.Op)
	assert.Equal(t, "first", step.Ref)
	require.Len(t, step.Lines, 1)
	assert.Equal(t, domain.OrderLine{
		MenuItemID:  "latte",
		Quantity:    1,
		ModifierIDs: []string{"oat"},
		Note:        "no foam",
	}, step.Lines[0])

	require.Len(t, s.Assertions, 1)
	assert.Equal(t, []string{"first"}, s.Assertions[0].Orders)
}

func TestParseScenario_Expect(t *testing.T) {
	s, err := ParseScenario([]byte(`
name: expect
tenant: cafe-a
policy: soft
store: sqlite
append: head
stock:
  - item: milk
    quantity: 12.5
steps:
  - op: submit
    ref: a
    lines: [{ menu_item_id: steamer, quantity: 1 }]
  - op: advance
    order: a
    status: in_progress
    expect:
      status: in_progress
      deducted: false
      warnings: [LOW_STOCK_WARNING]
  - op: bump
    order: a
    expect: { error: INSUFFICIENT_STOCK, item: milk }
assertions:
  - type: stock_level
    item: milk
    quantity: 0
`))
	require.NoError(t, err)

	assert.Equal(t, ledger.PolicySoft, s.Policy)
	assert.Equal(t, StoreSQLite, s.Store)
	assert.Equal(t, queue.AppendHead, s.Append)
	assert.Equal(t, []StockOverride{{Item: "milk", Quantity: 12.5}}, s.Stock)

	exp := s.Steps[1].Expect
	require.NotNil(t, exp)
	assert.Equal(t, domain.StatusInProgress, exp.Status)
	require.NotNil(t, exp.Deducted)
	assert.False(t, *exp.Deducted)
	assert.Nil(t, exp.Duplicate)
	assert.Equal(t, []domain.ErrorCode{domain.ErrCodeLowStockWarning}, exp.Warnings)

	assert.Equal(t, domain.ErrCodeInsufficientStock, s.Steps[2].Expect.Error)
	assert.Equal(t, "milk", s.Steps[2].Expect.Item)

	require.NotNil(t, s.Assertions[0].Quantity)
	assert.Equal(t, 0.0, *s.Assertions[0].Quantity)
}

func TestParseScenario_RejectsUnknownFields(t *testing.T) {
	_, err := ParseScenario([]byte(`
name: typo
tenant: cafe-a
steps:
  - op: submit
    lines: [{ menu_item_id: latte, quantity: 1 }]
assertion:
  - type: queue_order
`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse YAML")
}

func TestParseScenario_Validation(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		want string
	}{
		{
			name: "missing name",
			yaml: "tenant: cafe-a\nsteps: [{op: submit}]\n",
			want: "name is required",
		},
		{
			name: "missing tenant",
			yaml: "name: x\nsteps: [{op: submit}]\n",
			want: "tenant is required",
		},
		{
			name: "no steps",
			yaml: "name: x\ntenant: cafe-a\n",
			want: "steps list is required",
		},
		{
			name: "bad policy",
			yaml: "name: x\ntenant: cafe-a\npolicy: lenient\nsteps: [{op: submit}]\n",
			want: "lenient",
		},
		{
			name: "bad store",
			yaml: "name: x\ntenant: cafe-a\nstore: mysql\nsteps: [{op: submit}]\n",
			want: `unknown store "mysql"`,
		},
		{
			name: "bad append",
			yaml: "name: x\ntenant: cafe-a\nappend: middle\nsteps: [{op: submit}]\n",
			want: `unknown append policy "middle"`,
		},
		{
			name: "missing op",
			yaml: "name: x\ntenant: cafe-a\nsteps: [{order: a}]\n",
			want: "steps[0]: op is required",
		},
		{
			name: "unknown op",
			yaml: "name: x\ntenant: cafe-a\nsteps: [{op: refund, order: a}]\n",
			want: `steps[0]: unknown op "refund"`,
		},
		{
			name: "bump without order",
			yaml: "name: x\ntenant: cafe-a\nsteps: [{op: bump}]\n",
			want: "steps[0]: order is required for bump",
		},
		{
			name: "advance without status",
			yaml: "name: x\ntenant: cafe-a\nsteps: [{op: advance, order: a}]\n",
			want: "steps[0]: status is required for advance",
		},
		{
			name: "advance to unknown status",
			yaml: "name: x\ntenant: cafe-a\nsteps: [{op: advance, order: a, status: plated}]\n",
			want: `steps[0]: unknown status "plated"`,
		},
		{
			name: "duplicate ref",
			yaml: "name: x\ntenant: cafe-a\nsteps: [{op: submit, ref: a}, {op: submit, ref: a}]\n",
			want: `steps[1]: ref "a" is already used`,
		},
		{
			name: "ref on bump",
			yaml: "name: x\ntenant: cafe-a\nsteps: [{op: bump, order: a, ref: b}]\n",
			want: "steps[0]: ref is only valid on submit",
		},
		{
			name: "stock override without item",
			yaml: "name: x\ntenant: cafe-a\nstock: [{quantity: 3}]\nsteps: [{op: submit}]\n",
			want: "stock[0]: item is required",
		},
		{
			name: "assertion without type",
			yaml: "name: x\ntenant: cafe-a\nsteps: [{op: submit}]\nassertions: [{op: submit}]\n",
			want: "assertions[0]: type is required",
		},
		{
			name: "unknown assertion",
			yaml: "name: x\ntenant: cafe-a\nsteps: [{op: submit}]\nassertions: [{type: final_state}]\n",
			want: `unknown assertion type "final_state"`,
		},
		{
			name: "stock_level without quantity",
			yaml: "name: x\ntenant: cafe-a\nsteps: [{op: submit}]\nassertions: [{type: stock_level, item: milk}]\n",
			want: "item and quantity are required",
		},
		{
			name: "queue_order without orders",
			yaml: "name: x\ntenant: cafe-a\nsteps: [{op: submit}]\nassertions: [{type: queue_order}]\n",
			want: "orders is required for queue_order",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseScenario([]byte(tt.yaml))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestLoadScenario_ResolvesCatalogPath(t *testing.T) {
	dir := t.TempDir()
	path := writeScenario(t, dir, "menu.yaml", `
name: custom_catalog
tenant: cafe-a
catalog: menus/cafe.yaml
steps:
  - op: submit
    lines: [{ menu_item_id: latte, quantity: 1 }]
`)

	s, err := LoadScenario(path)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "menus", "cafe.yaml"), s.Catalog)

	s, err = LoadScenarioWithBasePath(path, "/srv/galley")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join("/srv/galley", "menus", "cafe.yaml"), s.Catalog)
}

func TestLoadScenario_MissingFile(t *testing.T) {
	_, err := LoadScenario(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read scenario file")
}
