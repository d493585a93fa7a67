package catalog

import (
	"context"

	"github.com/roach88/galley/internal/domain"
)

// Memory is an immutable in-memory catalog index. It is safe for concurrent use.
type Memory struct {
	menuItems map[key]domain.MenuItem
	groups    map[key]domain.ModifierGroup
	values    map[key]domain.ModifierValue
	recipes   map[key]domain.Recipe
	inventory map[key]domain.InventoryItem
	data      Data
}

var _ Reader = (*Memory)(nil)

// NewMemory validates d and indexes it.
func NewMemory(d Data) (*Memory, error) {
	if err := d.Validate(); err != nil {
		return nil, err
	}
	m := &Memory{
		menuItems: make(map[key]domain.MenuItem, len(d.MenuItems)),
		groups:    make(map[key]domain.ModifierGroup, len(d.ModifierGroups)),
		values:    make(map[key]domain.ModifierValue, len(d.ModifierValues)),
		recipes:   make(map[key]domain.Recipe, len(d.Recipes)),
		inventory: make(map[key]domain.InventoryItem, len(d.Inventory)),
		data:      d,
	}
	for _, v := range d.MenuItems {
		m.menuItems[key{v.TenantID, v.ID}] = v
	}
	for _, v := range d.ModifierGroups {
		m.groups[key{v.TenantID, v.ID}] = v
	}
	for _, v := range d.ModifierValues {
		m.values[key{v.TenantID, v.ID}] = v
	}
	for _, v := range d.Recipes {
		m.recipes[key{v.TenantID, v.MenuItemID}] = v
	}
	for _, v := range d.Inventory {
		m.inventory[key{v.TenantID, v.ID}] = v
	}
	return m, nil
}

// Data returns the catalog the index was built from.
func (m *Memory) Data() Data {
	return m.data
}

func (m *Memory) MenuItem(_ context.Context, tenant domain.TenantID, id string) (domain.MenuItem, error) {
	v, ok := m.menuItems[key{tenant, id}]
	if !ok {
		return domain.MenuItem{}, domain.NewTenantMismatch(tenant, "menu item", id)
	}
	return v, nil
}

func (m *Memory) ModifierGroup(_ context.Context, tenant domain.TenantID, id string) (domain.ModifierGroup, error) {
	v, ok := m.groups[key{tenant, id}]
	if !ok {
		return domain.ModifierGroup{}, domain.NewTenantMismatch(tenant, "modifier group", id)
	}
	return v, nil
}

func (m *Memory) ModifierValue(_ context.Context, tenant domain.TenantID, id string) (domain.ModifierValue, error) {
	v, ok := m.values[key{tenant, id}]
	if !ok {
		return domain.ModifierValue{}, domain.NewTenantMismatch(tenant, "modifier", id)
	}
	return v, nil
}

func (m *Memory) Recipe(_ context.Context, tenant domain.TenantID, menuItemID string) (domain.Recipe, bool, error) {
	if r, ok := m.recipes[key{tenant, menuItemID}]; ok {
		return r, true, nil
	}
	if r, ok := m.recipes[key{"", menuItemID}]; ok {
		return r, true, nil
	}
	return domain.Recipe{}, false, nil
}

func (m *Memory) InventoryItem(_ context.Context, tenant domain.TenantID, id string) (domain.InventoryItem, bool, error) {
	v, ok := m.inventory[key{tenant, id}]
	return v, ok, nil
}
