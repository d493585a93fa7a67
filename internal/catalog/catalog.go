// Package catalog is the read-only view of a tenant's menu, modifiers,
// recipes and inventory rows.
//
// Catalog data is loaded from YAML or CUE files (see Load) into a Memory
// index, or read from the SQLite row-store. Every lookup takes the caller's
// tenant; a miss is reported as TENANT_MISMATCH because galley never looks
// outside the caller's tenant to find out where an id actually lives.
package catalog

import (
	"context"
	"fmt"

	"github.com/roach88/galley/internal/domain"
)

// Reader is the lookup surface used by the queue and the recipe resolver.
type Reader interface {
	MenuItem(ctx context.Context, tenant domain.TenantID, id string) (domain.MenuItem, error)
	ModifierGroup(ctx context.Context, tenant domain.TenantID, id string) (domain.ModifierGroup, error)
	ModifierValue(ctx context.Context, tenant domain.TenantID, id string) (domain.ModifierValue, error)

	// Recipe returns the tenant's recipe for the menu item, falling back to
	// a shared template. ok is false when neither exists.
	Recipe(ctx context.Context, tenant domain.TenantID, menuItemID string) (recipe domain.Recipe, ok bool, err error)

	// InventoryItem returns the tenant's inventory row. ok is false when the
	// id does not exist for the tenant.
	InventoryItem(ctx context.Context, tenant domain.TenantID, id string) (item domain.InventoryItem, ok bool, err error)
}

// Data is the on-disk catalog format shared by the YAML and CUE loaders.
type Data struct {
	MenuItems      []domain.MenuItem      `json:"menu_items,omitempty" yaml:"menu_items,omitempty"`
	ModifierGroups []domain.ModifierGroup `json:"modifier_groups,omitempty" yaml:"modifier_groups,omitempty"`
	ModifierValues []domain.ModifierValue `json:"modifier_values,omitempty" yaml:"modifier_values,omitempty"`
	Recipes        []domain.Recipe        `json:"recipes,omitempty" yaml:"recipes,omitempty"`
	Inventory      []domain.InventoryItem `json:"inventory,omitempty" yaml:"inventory,omitempty"`
}

// Orphan is an ingredient reference that does not resolve inside its tenant.
// Orphans are legal catalog data; they surface as
// DANGLING_INGREDIENT_REFERENCE when an order using them completes.
type Orphan struct {
	TenantID        domain.TenantID `json:"tenant_id"`
	Source          string          `json:"source"` // "recipe:<menu item>", "modifier:<value>" or "decaf:<item>"
	InventoryItemID string          `json:"inventory_item_id"`
}

type key struct {
	tenant domain.TenantID
	id     string
}

// Validate checks structural integrity: unique ids per tenant, modifier values
// pointing at groups of the same tenant, menu items referencing existing groups,
// and private groups assigned only to their own item.
func (d *Data) Validate() error {
	items := make(map[key]domain.MenuItem)
	for _, m := range d.MenuItems {
		if m.ID == "" || m.TenantID == "" {
			return fmt.Errorf("menu item %q: id and tenant_id are required", m.ID)
		}
		k := key{m.TenantID, m.ID}
		if _, dup := items[k]; dup {
			return fmt.Errorf("menu item %q: duplicate id in tenant %s", m.ID, m.TenantID)
		}
		items[k] = m
	}

	groups := make(map[key]domain.ModifierGroup)
	for _, g := range d.ModifierGroups {
		if g.ID == "" || g.TenantID == "" {
			return fmt.Errorf("modifier group %q: id and tenant_id are required", g.ID)
		}
		switch g.Cardinality {
		case domain.CardinalitySingle, domain.CardinalityMulti:
		default:
			return fmt.Errorf("modifier group %q: cardinality must be single or multi, got %q", g.ID, g.Cardinality)
		}
		k := key{g.TenantID, g.ID}
		if _, dup := groups[k]; dup {
			return fmt.Errorf("modifier group %q: duplicate id in tenant %s", g.ID, g.TenantID)
		}
		groups[k] = g
	}

	for _, m := range d.MenuItems {
		for _, gid := range m.GroupIDs {
			g, ok := groups[key{m.TenantID, gid}]
			if !ok {
				return fmt.Errorf("menu item %q: unknown modifier group %q", m.ID, gid)
			}
			if g.MenuItemID != "" && g.MenuItemID != m.ID {
				return fmt.Errorf("menu item %q: group %q is private to %q", m.ID, gid, g.MenuItemID)
			}
		}
	}

	values := make(map[key]bool)
	for _, v := range d.ModifierValues {
		if v.ID == "" || v.TenantID == "" {
			return fmt.Errorf("modifier value %q: id and tenant_id are required", v.ID)
		}
		if _, ok := groups[key{v.TenantID, v.GroupID}]; !ok {
			return fmt.Errorf("modifier value %q: unknown group %q", v.ID, v.GroupID)
		}
		k := key{v.TenantID, v.ID}
		if values[k] {
			return fmt.Errorf("modifier value %q: duplicate id in tenant %s", v.ID, v.TenantID)
		}
		values[k] = true
	}

	recipes := make(map[key]bool)
	for _, r := range d.Recipes {
		k := key{r.TenantID, r.MenuItemID}
		if recipes[k] {
			return fmt.Errorf("recipe for %q: duplicate in tenant %q", r.MenuItemID, r.TenantID)
		}
		recipes[k] = true
		if r.TenantID != "" {
			if _, ok := items[k]; !ok {
				return fmt.Errorf("recipe for %q: unknown menu item in tenant %s", r.MenuItemID, r.TenantID)
			}
		}
	}

	inventory := make(map[key]bool)
	for _, inv := range d.Inventory {
		if inv.ID == "" || inv.TenantID == "" {
			return fmt.Errorf("inventory item %q: id and tenant_id are required", inv.ID)
		}
		k := key{inv.TenantID, inv.ID}
		if inventory[k] {
			return fmt.Errorf("inventory item %q: duplicate id in tenant %s", inv.ID, inv.TenantID)
		}
		inventory[k] = true
	}
	return nil
}

// Orphans lists ingredient references that do not resolve in their tenant.
// Template recipes are checked against every tenant that sells the item
// without its own recipe.
func (d *Data) Orphans() []Orphan {
	inventory := make(map[key]bool, len(d.Inventory))
	for _, inv := range d.Inventory {
		inventory[key{inv.TenantID, inv.ID}] = true
	}
	own := make(map[key]bool, len(d.Recipes))
	for _, r := range d.Recipes {
		own[key{r.TenantID, r.MenuItemID}] = true
	}

	var out []Orphan
	check := func(tenant domain.TenantID, source string, ings []domain.Ingredient) {
		for _, ing := range ings {
			if !inventory[key{tenant, ing.InventoryItemID}] {
				out = append(out, Orphan{TenantID: tenant, Source: source, InventoryItemID: ing.InventoryItemID})
			}
		}
	}

	for _, r := range d.Recipes {
		if r.TenantID != "" {
			check(r.TenantID, "recipe:"+r.MenuItemID, r.Ingredients)
			continue
		}
		for _, m := range d.MenuItems {
			if m.ID == r.MenuItemID && !own[key{m.TenantID, m.ID}] {
				check(m.TenantID, "recipe:"+r.MenuItemID, r.Ingredients)
			}
		}
	}
	for _, v := range d.ModifierValues {
		check(v.TenantID, "modifier:"+v.ID, v.Delta)
	}
	for _, inv := range d.Inventory {
		if inv.DecafCounterpart != "" && !inventory[key{inv.TenantID, inv.DecafCounterpart}] {
			out = append(out, Orphan{TenantID: inv.TenantID, Source: "decaf:" + inv.ID, InventoryItemID: inv.DecafCounterpart})
		}
	}
	return out
}
