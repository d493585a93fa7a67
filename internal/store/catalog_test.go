package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/galley/internal/catalog"
	"github.com/roach88/galley/internal/domain"
	"github.com/roach88/galley/internal/recipe"
	"github.com/roach88/galley/internal/testutil"
)

func TestCatalog_MatchesMemoryIndex(t *testing.T) {
	s := createCafeStore(t)
	mem := testutil.CafeCatalog()
	ctx := context.Background()

	for _, want := range testutil.CafeData().MenuItems {
		got, err := s.MenuItem(ctx, want.TenantID, want.ID)
		require.NoError(t, err, want.ID)
		fromMem, err := mem.MenuItem(ctx, want.TenantID, want.ID)
		require.NoError(t, err)
		assert.Equal(t, fromMem, got)
	}

	for _, want := range testutil.CafeData().ModifierValues {
		got, err := s.ModifierValue(ctx, want.TenantID, want.ID)
		require.NoError(t, err, want.ID)
		assert.Equal(t, want, got)
	}

	for _, want := range testutil.CafeData().ModifierGroups {
		got, err := s.ModifierGroup(ctx, want.TenantID, want.ID)
		require.NoError(t, err, want.ID)
		assert.Equal(t, want, got)
	}
}

func TestCatalog_LookupsAreTenantScoped(t *testing.T) {
	s := createCafeStore(t)
	ctx := context.Background()

	_, err := s.MenuItem(ctx, testutil.CafeA, "bagel")
	assert.True(t, domain.IsTenantMismatch(err))

	_, err = s.ModifierValue(ctx, testutil.CafeB, "oat")
	assert.True(t, domain.IsTenantMismatch(err))

	_, err = s.ModifierGroup(ctx, testutil.CafeB, "extras")
	assert.True(t, domain.IsTenantMismatch(err))

	_, ok, err := s.InventoryItem(ctx, testutil.CafeB, "milk")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestCatalog_RecipeFallsBackToTemplate(t *testing.T) {
	s := createCafeStore(t)
	ctx := context.Background()

	own, ok, err := s.Recipe(ctx, testutil.CafeA, "latte")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, testutil.CafeA, own.TenantID)
	assert.Equal(t, []domain.Ingredient{
		{InventoryItemID: "espresso_beans", Quantity: 18},
		{InventoryItemID: "milk", Quantity: 200},
	}, own.Ingredients)

	tmpl, ok, err := s.Recipe(ctx, testutil.CafeA, "americano")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, domain.TenantID(""), tmpl.TenantID)
	assert.Equal(t, []domain.Ingredient{{InventoryItemID: "espresso_beans", Quantity: 18}}, tmpl.Ingredients)

	_, ok, err = s.Recipe(ctx, testutil.CafeA, "scone")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestCatalog_ResolverOverStore(t *testing.T) {
	s := createCafeStore(t)
	r := recipe.NewResolver(s, recipe.NewNameMatcher(recipe.DefaultDecafMarkers...))

	res, err := r.Expand(context.Background(), testutil.CafeA, domain.OrderLine{
		MenuItemID: "latte", Quantity: 2, ModifierIDs: []string{"decaf", "oat"},
	})
	require.NoError(t, err)
	assert.True(t, res.Decaf)
	assert.Equal(t, []domain.Deduction{
		{ItemID: "decaf_beans", Quantity: 36},
		{ItemID: "oat_milk", Quantity: 400},
	}, res.Deductions)
}

func TestImportCatalog_PreservesStockAndReplacesAssignments(t *testing.T) {
	s := createCafeStore(t)
	ctx := context.Background()

	d := testutil.CafeData()
	for i := range d.Inventory {
		d.Inventory[i].Stock = 1
		if d.Inventory[i].ID == "milk" {
			d.Inventory[i].Name = "Whole milk"
		}
	}
	for i := range d.MenuItems {
		if d.MenuItems[i].ID == "latte" {
			d.MenuItems[i].GroupIDs = []string{"extras"}
		}
	}
	d.Inventory = append(d.Inventory, domain.InventoryItem{ID: "cocoa", TenantID: testutil.CafeA, Name: "Cocoa", Unit: "g", Stock: 40})
	require.NoError(t, s.ImportCatalog(ctx, d))

	milk, ok, err := s.InventoryItem(ctx, testutil.CafeA, "milk")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "Whole milk", milk.Name)
	assert.Equal(t, 1000.0, milk.Stock, "re-import must not reset stock")

	cocoa, ok, err := s.InventoryItem(ctx, testutil.CafeA, "cocoa")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 40.0, cocoa.Stock)

	latte, err := s.MenuItem(ctx, testutil.CafeA, "latte")
	require.NoError(t, err)
	assert.Equal(t, []string{"extras"}, latte.GroupIDs)
}

func TestImportCatalog_RejectsInvalidData(t *testing.T) {
	s := createTestStore(t)
	err := s.ImportCatalog(context.Background(), catalog.Data{
		MenuItems: []domain.MenuItem{{ID: "latte", TenantID: "a", GroupIDs: []string{"missing"}}},
	})
	assert.Error(t, err)

	_, err = s.MenuItem(context.Background(), "a", "latte")
	assert.True(t, domain.IsTenantMismatch(err), "nothing may be written")
}

func TestInventory_SortedByID(t *testing.T) {
	s := createCafeStore(t)

	items, err := s.Inventory(context.Background(), testutil.CafeA)
	require.NoError(t, err)
	ids := make([]string, len(items))
	for i, it := range items {
		ids[i] = it.ID
	}
	assert.Equal(t, []string{"decaf_beans", "decaf_coffee", "espresso_beans", "milk", "oat_milk", "vanilla_syrup"}, ids)
}
