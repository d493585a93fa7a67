package domain

// Cardinality is how many values of a modifier group may be selected on one line.
type Cardinality string

const (
	CardinalitySingle Cardinality = "single"
	CardinalityMulti  Cardinality = "multi"
)

// MenuItem is a sellable item. GroupIDs lists the modifier groups assigned to
// it, whether private to the item or shared across items.
type MenuItem struct {
	ID         string   `json:"id" yaml:"id"`
	TenantID   TenantID `json:"tenant_id" yaml:"tenant_id"`
	Name       string   `json:"name" yaml:"name"`
	PriceCents int64    `json:"price_cents" yaml:"price_cents"`
	Category   string   `json:"category,omitempty" yaml:"category,omitempty"`
	GroupIDs   []string `json:"group_ids,omitempty" yaml:"group_ids,omitempty"`
}

// HasGroup reports whether the modifier group is assigned to the item.
func (m MenuItem) HasGroup(groupID string) bool {
	for _, id := range m.GroupIDs {
		if id == groupID {
			return true
		}
	}
	return false
}

// ModifierGroup groups alternative or additive modifier values.
// An empty MenuItemID marks a group shared across items.
type ModifierGroup struct {
	ID          string      `json:"id" yaml:"id"`
	TenantID    TenantID    `json:"tenant_id" yaml:"tenant_id"`
	Name        string      `json:"name" yaml:"name"`
	Cardinality Cardinality `json:"cardinality" yaml:"cardinality"`
	MenuItemID  string      `json:"menu_item_id,omitempty" yaml:"menu_item_id,omitempty"`
}

// ModifierValue is one selectable option inside a group. Delta is added on top
// of the menu item's base recipe.
type ModifierValue struct {
	ID       string       `json:"id" yaml:"id"`
	TenantID TenantID     `json:"tenant_id" yaml:"tenant_id"`
	GroupID  string       `json:"group_id" yaml:"group_id"`
	Name     string       `json:"name" yaml:"name"`
	Decaf    bool         `json:"decaf,omitempty" yaml:"decaf,omitempty"`
	Delta    []Ingredient `json:"delta,omitempty" yaml:"delta,omitempty"`
}

// Ingredient is an inventory quantity used per unit of a menu item.
type Ingredient struct {
	InventoryItemID string  `json:"inventory_item_id" yaml:"inventory_item_id"`
	Quantity        float64 `json:"quantity" yaml:"quantity"`
}

// Recipe is the base ingredient list of a menu item. An empty TenantID marks a
// shared template recipe; it is still resolved against the ordering tenant's
// inventory.
type Recipe struct {
	MenuItemID  string       `json:"menu_item_id" yaml:"menu_item_id"`
	TenantID    TenantID     `json:"tenant_id,omitempty" yaml:"tenant_id,omitempty"`
	Ingredients []Ingredient `json:"ingredients" yaml:"ingredients"`
}

// InventoryItem is a stock row. DecafCounterpart names the inventory item that
// replaces this one when a decaf modifier is applied.
type InventoryItem struct {
	ID               string   `json:"id" yaml:"id"`
	TenantID         TenantID `json:"tenant_id" yaml:"tenant_id"`
	Name             string   `json:"name" yaml:"name"`
	Unit             string   `json:"unit" yaml:"unit"`
	Stock            float64  `json:"stock" yaml:"stock"`
	DecafCounterpart string   `json:"decaf_counterpart,omitempty" yaml:"decaf_counterpart,omitempty"`
}

// Deduction is a quantity to subtract from one inventory item.
type Deduction struct {
	ItemID   string  `json:"item_id"`
	Quantity float64 `json:"quantity"`
}

// StockLevel is an inventory item's stock after a ledger operation.
type StockLevel struct {
	ItemID string  `json:"item_id"`
	Stock  float64 `json:"stock"`
}
