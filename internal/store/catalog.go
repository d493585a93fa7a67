package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/roach88/galley/internal/catalog"
	"github.com/roach88/galley/internal/domain"
	"github.com/roach88/galley/internal/rowquery"
)

// ImportCatalog upserts every row of d in one transaction.
//
// Menu item group assignments and recipe ingredients are replaced wholesale.
// Existing inventory rows keep their current stock; only new rows take the
// stock given in d.
func (s *Store) ImportCatalog(ctx context.Context, d catalog.Data) error {
	if err := d.Validate(); err != nil {
		return fmt.Errorf("import catalog: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return classify("import catalog: begin tx", err)
	}
	defer tx.Rollback()

	// Groups first: menu_item_groups and modifier_values reference them.
	for _, g := range d.ModifierGroups {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO modifier_groups (tenant_id, id, name, cardinality, menu_item_id)
			VALUES (?, ?, ?, ?, ?)
			ON CONFLICT(tenant_id, id) DO UPDATE SET
				name = excluded.name,
				cardinality = excluded.cardinality,
				menu_item_id = excluded.menu_item_id
		`, string(g.TenantID), g.ID, g.Name, string(g.Cardinality), g.MenuItemID); err != nil {
			return classify("import modifier group "+g.ID, err)
		}
	}

	for _, m := range d.MenuItems {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO menu_items (tenant_id, id, name, price_cents, category)
			VALUES (?, ?, ?, ?, ?)
			ON CONFLICT(tenant_id, id) DO UPDATE SET
				name = excluded.name,
				price_cents = excluded.price_cents,
				category = excluded.category
		`, string(m.TenantID), m.ID, m.Name, m.PriceCents, m.Category); err != nil {
			return classify("import menu item "+m.ID, err)
		}
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM menu_item_groups WHERE tenant_id = ? AND menu_item_id = ?`,
			string(m.TenantID), m.ID); err != nil {
			return classify("import menu item "+m.ID, err)
		}
		for i, gid := range m.GroupIDs {
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO menu_item_groups (tenant_id, menu_item_id, group_id, ord)
				VALUES (?, ?, ?, ?)
			`, string(m.TenantID), m.ID, gid, i); err != nil {
				return classify("import menu item "+m.ID, err)
			}
		}
	}

	for _, v := range d.ModifierValues {
		delta, err := marshalDelta(v.Delta)
		if err != nil {
			return fmt.Errorf("import modifier %s: %w", v.ID, err)
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO modifier_values (tenant_id, id, group_id, name, decaf, delta)
			VALUES (?, ?, ?, ?, ?, ?)
			ON CONFLICT(tenant_id, id) DO UPDATE SET
				group_id = excluded.group_id,
				name = excluded.name,
				decaf = excluded.decaf,
				delta = excluded.delta
		`, string(v.TenantID), v.ID, v.GroupID, v.Name, boolInt(v.Decaf), delta); err != nil {
			return classify("import modifier "+v.ID, err)
		}
	}

	for _, r := range d.Recipes {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO recipes (tenant_id, menu_item_id) VALUES (?, ?)
			ON CONFLICT(tenant_id, menu_item_id) DO NOTHING
		`, string(r.TenantID), r.MenuItemID); err != nil {
			return classify("import recipe "+r.MenuItemID, err)
		}
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM recipe_ingredients WHERE tenant_id = ? AND menu_item_id = ?`,
			string(r.TenantID), r.MenuItemID); err != nil {
			return classify("import recipe "+r.MenuItemID, err)
		}
		for i, ing := range r.Ingredients {
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO recipe_ingredients (tenant_id, menu_item_id, ord, inventory_item_id, quantity)
				VALUES (?, ?, ?, ?, ?)
			`, string(r.TenantID), r.MenuItemID, i, ing.InventoryItemID, ing.Quantity); err != nil {
				return classify("import recipe "+r.MenuItemID, err)
			}
		}
	}

	for _, inv := range d.Inventory {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO inventory_items (tenant_id, id, name, unit, stock, decaf_counterpart)
			VALUES (?, ?, ?, ?, ?, ?)
			ON CONFLICT(tenant_id, id) DO UPDATE SET
				name = excluded.name,
				unit = excluded.unit,
				decaf_counterpart = excluded.decaf_counterpart
		`, string(inv.TenantID), inv.ID, inv.Name, inv.Unit, inv.Stock, inv.DecafCounterpart); err != nil {
			return classify("import inventory item "+inv.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return classify("import catalog: commit", err)
	}
	return nil
}

// MenuItem implements catalog.Reader.
func (s *Store) MenuItem(ctx context.Context, tenant domain.TenantID, id string) (domain.MenuItem, error) {
	rows, err := query(ctx, s.db, rowquery.Select{
		From:    "menu_items",
		Columns: []string{"id", "name", "price_cents", "category"},
		Tenant:  tenant,
		Filter:  rowquery.Equals{Column: "id", Value: id},
	})
	if err != nil {
		return domain.MenuItem{}, classify("read menu item", err)
	}
	m := domain.MenuItem{TenantID: tenant}
	found, err := scanOne(rows, &m.ID, &m.Name, &m.PriceCents, &m.Category)
	if err != nil {
		return domain.MenuItem{}, classify("read menu item", err)
	}
	if !found {
		return domain.MenuItem{}, domain.NewTenantMismatch(tenant, "menu item", id)
	}

	rows, err = query(ctx, s.db, rowquery.Select{
		From:       "menu_item_groups",
		Columns:    []string{"group_id"},
		Tenant:     tenant,
		Filter:     rowquery.Equals{Column: "menu_item_id", Value: id},
		OrderBy:    []rowquery.Order{{Column: "ord"}},
		Tiebreaker: "group_id",
	})
	if err != nil {
		return domain.MenuItem{}, classify("read menu item groups", err)
	}
	defer rows.Close()
	for rows.Next() {
		var gid string
		if err := rows.Scan(&gid); err != nil {
			return domain.MenuItem{}, fmt.Errorf("scan menu item group: %w", err)
		}
		m.GroupIDs = append(m.GroupIDs, gid)
	}
	if err := rows.Err(); err != nil {
		return domain.MenuItem{}, classify("iterate menu item groups", err)
	}
	return m, nil
}

// ModifierGroup implements catalog.Reader.
func (s *Store) ModifierGroup(ctx context.Context, tenant domain.TenantID, id string) (domain.ModifierGroup, error) {
	rows, err := query(ctx, s.db, rowquery.Select{
		From:    "modifier_groups",
		Columns: []string{"id", "name", "cardinality", "menu_item_id"},
		Tenant:  tenant,
		Filter:  rowquery.Equals{Column: "id", Value: id},
	})
	if err != nil {
		return domain.ModifierGroup{}, classify("read modifier group", err)
	}
	g := domain.ModifierGroup{TenantID: tenant}
	var card string
	found, err := scanOne(rows, &g.ID, &g.Name, &card, &g.MenuItemID)
	if err != nil {
		return domain.ModifierGroup{}, classify("read modifier group", err)
	}
	if !found {
		return domain.ModifierGroup{}, domain.NewTenantMismatch(tenant, "modifier group", id)
	}
	g.Cardinality = domain.Cardinality(card)
	return g, nil
}

// ModifierValue implements catalog.Reader.
func (s *Store) ModifierValue(ctx context.Context, tenant domain.TenantID, id string) (domain.ModifierValue, error) {
	rows, err := query(ctx, s.db, rowquery.Select{
		From:    "modifier_values",
		Columns: []string{"id", "group_id", "name", "decaf", "delta"},
		Tenant:  tenant,
		Filter:  rowquery.Equals{Column: "id", Value: id},
	})
	if err != nil {
		return domain.ModifierValue{}, classify("read modifier", err)
	}
	v := domain.ModifierValue{TenantID: tenant}
	var delta string
	found, err := scanOne(rows, &v.ID, &v.GroupID, &v.Name, &v.Decaf, &delta)
	if err != nil {
		return domain.ModifierValue{}, classify("read modifier", err)
	}
	if !found {
		return domain.ModifierValue{}, domain.NewTenantMismatch(tenant, "modifier", id)
	}
	if v.Delta, err = unmarshalDelta(delta); err != nil {
		return domain.ModifierValue{}, fmt.Errorf("read modifier %s: %w", id, err)
	}
	return v, nil
}

// Recipe implements catalog.Reader. The tenant's own recipe wins over the
// shared template.
func (s *Store) Recipe(ctx context.Context, tenant domain.TenantID, menuItemID string) (domain.Recipe, bool, error) {
	for _, scope := range []rowquery.Select{
		{Tenant: tenant},
		{Shared: true},
	} {
		r, ok, err := s.recipe(ctx, scope, menuItemID)
		if err != nil || ok {
			return r, ok, err
		}
	}
	return domain.Recipe{}, false, nil
}

func (s *Store) recipe(ctx context.Context, scope rowquery.Select, menuItemID string) (domain.Recipe, bool, error) {
	rows, err := query(ctx, s.db, rowquery.Select{
		From:       "recipes",
		Columns:    []string{"menu_item_id"},
		Tenant:     scope.Tenant,
		Shared:     scope.Shared,
		Filter:     rowquery.Equals{Column: "menu_item_id", Value: menuItemID},
		Tiebreaker: "menu_item_id",
	})
	if err != nil {
		return domain.Recipe{}, false, classify("read recipe", err)
	}
	var id string
	found, err := scanOne(rows, &id)
	if err != nil {
		return domain.Recipe{}, false, classify("read recipe", err)
	}
	if !found {
		return domain.Recipe{}, false, nil
	}

	rows, err = query(ctx, s.db, rowquery.Select{
		From:       "recipe_ingredients",
		Columns:    []string{"inventory_item_id", "quantity"},
		Tenant:     scope.Tenant,
		Shared:     scope.Shared,
		Filter:     rowquery.Equals{Column: "menu_item_id", Value: menuItemID},
		OrderBy:    []rowquery.Order{{Column: "ord"}},
		Tiebreaker: "ord",
	})
	if err != nil {
		return domain.Recipe{}, false, classify("read recipe ingredients", err)
	}
	defer rows.Close()

	r := domain.Recipe{MenuItemID: menuItemID, TenantID: scope.Tenant, Ingredients: []domain.Ingredient{}}
	for rows.Next() {
		var ing domain.Ingredient
		if err := rows.Scan(&ing.InventoryItemID, &ing.Quantity); err != nil {
			return domain.Recipe{}, false, fmt.Errorf("scan recipe ingredient: %w", err)
		}
		r.Ingredients = append(r.Ingredients, ing)
	}
	if err := rows.Err(); err != nil {
		return domain.Recipe{}, false, classify("iterate recipe ingredients", err)
	}
	return r, true, nil
}

// InventoryItem implements catalog.Reader.
func (s *Store) InventoryItem(ctx context.Context, tenant domain.TenantID, id string) (domain.InventoryItem, bool, error) {
	items, err := s.inventory(ctx, s.db, tenant, []string{id})
	if err != nil {
		return domain.InventoryItem{}, false, err
	}
	if len(items) == 0 {
		return domain.InventoryItem{}, false, nil
	}
	return items[0], true, nil
}

// Inventory returns the tenant's inventory rows sorted by id. With no ids it
// returns every row.
func (s *Store) Inventory(ctx context.Context, tenant domain.TenantID, ids ...string) ([]domain.InventoryItem, error) {
	return s.inventory(ctx, s.db, tenant, ids)
}

func (s *Store) inventory(ctx context.Context, q queryer, tenant domain.TenantID, ids []string) ([]domain.InventoryItem, error) {
	sel := rowquery.Select{
		From:    "inventory_items",
		Columns: []string{"id", "name", "unit", "stock", "decaf_counterpart"},
		Tenant:  tenant,
	}
	if len(ids) > 0 {
		sel.Filter = rowquery.In{Column: "id", Values: rowquery.Strings(ids)}
	}
	rows, err := query(ctx, q, sel)
	if err != nil {
		return nil, classify("read inventory", err)
	}
	defer rows.Close()

	out := []domain.InventoryItem{}
	for rows.Next() {
		it := domain.InventoryItem{TenantID: tenant}
		if err := rows.Scan(&it.ID, &it.Name, &it.Unit, &it.Stock, &it.DecafCounterpart); err != nil {
			return nil, fmt.Errorf("scan inventory item: %w", err)
		}
		out = append(out, it)
	}
	if err := rows.Err(); err != nil {
		return nil, classify("iterate inventory", err)
	}
	return out, nil
}

// scanOne scans the first row into dest and closes rows. found is false when
// there are no rows.
func scanOne(rows *sql.Rows, dest ...any) (found bool, err error) {
	defer rows.Close()
	if !rows.Next() {
		return false, rows.Err()
	}
	if err := rows.Scan(dest...); err != nil {
		return false, fmt.Errorf("scan: %w", err)
	}
	return true, rows.Err()
}
