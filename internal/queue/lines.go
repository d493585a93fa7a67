package queue

import (
	"context"

	"github.com/roach88/galley/internal/domain"
	"github.com/roach88/galley/internal/recipe"
)

// snapshotLines validates caller-supplied lines against tenant's catalog and
// returns copies carrying the display snapshot (item name, price, modifier
// names). Lines that are all voided count as an empty order. It reads only the
// catalog, so it runs outside the critical section.
func (q *Queue) snapshotLines(ctx context.Context, tenant domain.TenantID, orderID string, lines []domain.OrderLine) ([]domain.OrderLine, error) {
	if len(lines) == 0 {
		return nil, domain.NewEmptyOrder(tenant, orderID)
	}

	var matcher recipe.Matcher
	if q.resolver != nil {
		matcher = q.resolver.Matcher()
	}

	out := make([]domain.OrderLine, 0, len(lines))
	live := 0
	for i, in := range lines {
		if in.MenuItemID == "" {
			return nil, domain.NewInvalidLine(tenant, i, "menu item id is required")
		}
		if in.Quantity <= 0 {
			return nil, domain.NewInvalidLine(tenant, i, "quantity must be positive")
		}

		item, err := q.catalog.MenuItem(ctx, tenant, in.MenuItemID)
		if err != nil {
			return nil, domain.ClassifyStoreError("load menu item", err)
		}

		line := domain.OrderLine{
			MenuItemID:     item.ID,
			ModifierIDs:    append([]string(nil), in.ModifierIDs...),
			Quantity:       in.Quantity,
			Note:           in.Note,
			Voided:         in.Voided,
			ItemName:       item.Name,
			UnitPriceCents: item.PriceCents,
		}

		seen := make(map[string]bool, len(in.ModifierIDs))
		perGroup := make(map[string]int)
		for _, modID := range in.ModifierIDs {
			if seen[modID] {
				return nil, domain.NewInvalidLine(tenant, i, "modifier "+modID+" selected twice")
			}
			seen[modID] = true

			value, err := q.catalog.ModifierValue(ctx, tenant, modID)
			if err != nil {
				return nil, domain.ClassifyStoreError("load modifier value", err)
			}
			if !item.HasGroup(value.GroupID) {
				return nil, domain.NewModifierNotApplicable(tenant, item.ID, modID)
			}
			group, err := q.catalog.ModifierGroup(ctx, tenant, value.GroupID)
			if err != nil {
				return nil, domain.ClassifyStoreError("load modifier group", err)
			}
			perGroup[group.ID]++
			if group.Cardinality == domain.CardinalitySingle && perGroup[group.ID] > 1 {
				return nil, domain.NewInvalidLine(tenant, i, "group "+group.ID+" allows a single selection")
			}

			line.Modifiers = append(line.Modifiers, domain.ModifierSnapshot{
				ID:    value.ID,
				Name:  value.Name,
				Decaf: recipe.IsDecaf(item, value, matcher),
			})
		}
		if !line.Voided {
			live++
		}
		out = append(out, line)
	}
	if live == 0 {
		return nil, domain.NewEmptyOrder(tenant, orderID)
	}
	return out, nil
}
