package testutil

import (
	"github.com/roach88/galley/internal/catalog"
	"github.com/roach88/galley/internal/domain"
)

// Tenants used by the cafe fixture.
const (
	CafeA domain.TenantID = "cafe-a"
	CafeB domain.TenantID = "cafe-b"
)

// CafeData returns a two-tenant catalog shared by package tests.
//
// cafe-a sells a latte (espresso + 200ml milk), a steamer (200ml milk), an
// americano (shared template recipe) and a muffin whose recipe points at a
// missing inventory row. cafe-b sells only a bagel. Espresso beans have a
// decaf counterpart.
func CafeData() catalog.Data {
	return catalog.Data{
		MenuItems: []domain.MenuItem{
			{ID: "latte", TenantID: CafeA, Name: "Latte", PriceCents: 1400, Category: "coffee", GroupIDs: []string{"milk-options", "coffee-options", "extras"}},
			{ID: "steamer", TenantID: CafeA, Name: "Steamed milk", PriceCents: 900, Category: "milk", GroupIDs: []string{"extras"}},
			{ID: "americano", TenantID: CafeA, Name: "Americano", PriceCents: 1000, Category: "coffee", GroupIDs: []string{"coffee-options"}},
			{ID: "muffin", TenantID: CafeA, Name: "Muffin", PriceCents: 1200, Category: "pastry"},
			{ID: "bagel", TenantID: CafeB, Name: "Bagel", PriceCents: 1500, Category: "pastry"},
		},
		ModifierGroups: []domain.ModifierGroup{
			{ID: "milk-options", TenantID: CafeA, Name: "Milk", Cardinality: domain.CardinalitySingle},
			{ID: "coffee-options", TenantID: CafeA, Name: "Coffee", Cardinality: domain.CardinalitySingle},
			{ID: "extras", TenantID: CafeA, Name: "Extras", Cardinality: domain.CardinalityMulti},
			{ID: "bagel-spread", TenantID: CafeB, Name: "Spread", Cardinality: domain.CardinalitySingle, MenuItemID: "bagel"},
		},
		ModifierValues: []domain.ModifierValue{
			{ID: "oat", TenantID: CafeA, GroupID: "milk-options", Name: "Oat milk", Delta: []domain.Ingredient{
				{InventoryItemID: "milk", Quantity: -200},
				{InventoryItemID: "oat_milk", Quantity: 200},
			}},
			{ID: "decaf", TenantID: CafeA, GroupID: "coffee-options", Name: "נטול קפאין"},
			{ID: "decaf-extra-milk", TenantID: CafeA, GroupID: "extras", Name: "Decaf shot, extra milk", Delta: []domain.Ingredient{
				{InventoryItemID: "milk", Quantity: 50},
				{InventoryItemID: "decaf_coffee", Quantity: 18},
			}},
			{ID: "vanilla", TenantID: CafeA, GroupID: "extras", Name: "Vanilla syrup", Delta: []domain.Ingredient{
				{InventoryItemID: "vanilla_syrup", Quantity: 10},
			}},
			{ID: "cream-cheese", TenantID: CafeB, GroupID: "bagel-spread", Name: "Cream cheese"},
		},
		Recipes: []domain.Recipe{
			{MenuItemID: "latte", TenantID: CafeA, Ingredients: []domain.Ingredient{
				{InventoryItemID: "espresso_beans", Quantity: 18},
				{InventoryItemID: "milk", Quantity: 200},
			}},
			{MenuItemID: "steamer", TenantID: CafeA, Ingredients: []domain.Ingredient{
				{InventoryItemID: "milk", Quantity: 200},
			}},
			{MenuItemID: "americano", Ingredients: []domain.Ingredient{
				{InventoryItemID: "espresso_beans", Quantity: 18},
			}},
			{MenuItemID: "muffin", TenantID: CafeA, Ingredients: []domain.Ingredient{
				{InventoryItemID: "muffin_batter", Quantity: 1},
			}},
			{MenuItemID: "bagel", TenantID: CafeB, Ingredients: []domain.Ingredient{
				{InventoryItemID: "bagel_dough", Quantity: 1},
			}},
		},
		Inventory: []domain.InventoryItem{
			{ID: "milk", TenantID: CafeA, Name: "Milk", Unit: "ml", Stock: 1000},
			{ID: "oat_milk", TenantID: CafeA, Name: "Oat milk", Unit: "ml", Stock: 500},
			{ID: "espresso_beans", TenantID: CafeA, Name: "Espresso beans", Unit: "g", Stock: 500, DecafCounterpart: "decaf_beans"},
			{ID: "decaf_beans", TenantID: CafeA, Name: "Decaf beans", Unit: "g", Stock: 200},
			{ID: "decaf_coffee", TenantID: CafeA, Name: "Decaf coffee", Unit: "g", Stock: 100},
			{ID: "vanilla_syrup", TenantID: CafeA, Name: "Vanilla syrup", Unit: "ml", Stock: 100},
			{ID: "bagel_dough", TenantID: CafeB, Name: "Bagel dough", Unit: "pcs", Stock: 20},
		},
	}
}

// CafeCatalog returns the fixture as an in-memory catalog. It panics if the
// fixture is invalid.
func CafeCatalog() *catalog.Memory {
	m, err := catalog.NewMemory(CafeData())
	if err != nil {
		panic(err)
	}
	return m
}
