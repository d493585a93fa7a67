// Package recipe expands order lines into inventory deductions.
//
// A line's deductions are its menu item's base recipe plus the recipe deltas
// of every selected modifier, accumulated by inventory item id and scaled by
// the line quantity. Resolution is tenant-scoped and fails closed: an
// ingredient that does not exist in the tenant's inventory is reported as
// DANGLING_INGREDIENT_REFERENCE, never skipped silently.
package recipe

import (
	"context"
	"sort"
	"strings"

	"github.com/roach88/galley/internal/catalog"
	"github.com/roach88/galley/internal/domain"
)

// Resolution is the flattened ingredient usage of one line or one order.
type Resolution struct {
	// Deductions are sorted by item id and exclude dangling references.
	Deductions []domain.Deduction

	// Dangling lists inventory ids that do not exist for the tenant.
	Dangling []string

	// Decaf is set when a decaf modifier applied to any resolved line.
	Decaf bool
}

// Resolver expands lines against a catalog.
type Resolver struct {
	catalog catalog.Reader
	matcher Matcher
}

// NewResolver creates a resolver. A nil matcher only honors explicit decaf flags.
func NewResolver(c catalog.Reader, m Matcher) *Resolver {
	return &Resolver{catalog: c, matcher: m}
}

// Matcher returns the decaf matcher in use.
func (r *Resolver) Matcher() Matcher {
	return r.matcher
}

// Expand resolves one line for tenant.
//
// When some ingredients dangle, Expand returns the partial Resolution together
// with a DANGLING_INGREDIENT_REFERENCE error so the caller can decide whether
// the reference is fatal. Voided lines resolve to nothing.
func (r *Resolver) Expand(ctx context.Context, tenant domain.TenantID, line domain.OrderLine) (Resolution, error) {
	totals, decaf, err := r.accumulate(ctx, tenant, line)
	if err != nil {
		return Resolution{}, err
	}
	res, err := r.finish(ctx, tenant, totals, float64(line.Quantity))
	if err != nil {
		return Resolution{}, err
	}
	res.Decaf = decaf
	if len(res.Dangling) > 0 {
		return res, danglingError(tenant, line.MenuItemID, res.Dangling)
	}
	return res, nil
}

// ExpandOrder resolves every line and merges the deductions by item id.
// Dangling references from all lines are collected before the error is returned.
func (r *Resolver) ExpandOrder(ctx context.Context, tenant domain.TenantID, lines []domain.OrderLine) (Resolution, error) {
	merged := make(map[string]float64)
	var dangling []string
	var decaf bool
	var source string

	for _, line := range lines {
		res, err := r.Expand(ctx, tenant, line)
		if err != nil && !domain.IsDanglingReference(err) {
			return Resolution{}, err
		}
		if err != nil && source == "" {
			source = line.MenuItemID
		}
		for _, d := range res.Deductions {
			merged[d.ItemID] += d.Quantity
		}
		dangling = append(dangling, res.Dangling...)
		decaf = decaf || res.Decaf
	}

	out := Resolution{Deductions: sortedDeductions(merged), Dangling: dedupe(dangling), Decaf: decaf}
	if len(out.Dangling) > 0 {
		return out, danglingError(tenant, source, out.Dangling)
	}
	return out, nil
}

// accumulate builds per-unit totals for a line keyed by inventory item id.
func (r *Resolver) accumulate(ctx context.Context, tenant domain.TenantID, line domain.OrderLine) (map[string]float64, bool, error) {
	totals := make(map[string]float64)
	if line.Voided || line.Quantity <= 0 {
		return totals, false, nil
	}

	item, err := r.catalog.MenuItem(ctx, tenant, line.MenuItemID)
	if err != nil {
		return nil, false, err
	}

	values := make([]domain.ModifierValue, 0, len(line.ModifierIDs))
	decaf := false
	for _, id := range line.ModifierIDs {
		v, err := r.catalog.ModifierValue(ctx, tenant, id)
		if err != nil {
			return nil, false, err
		}
		if !item.HasGroup(v.GroupID) {
			return nil, false, domain.NewModifierNotApplicable(tenant, item.ID, v.ID)
		}
		values = append(values, v)
		decaf = decaf || IsDecaf(item, v, r.matcher)
	}

	recipe, ok, err := r.catalog.Recipe(ctx, tenant, item.ID)
	if err != nil {
		return nil, false, err
	}
	if ok {
		for _, ing := range recipe.Ingredients {
			id := ing.InventoryItemID
			if decaf {
				id, err = r.decafCounterpart(ctx, tenant, id)
				if err != nil {
					return nil, false, err
				}
			}
			totals[id] += ing.Quantity
		}
	}

	for _, v := range values {
		for _, d := range v.Delta {
			totals[d.InventoryItemID] += d.Quantity
		}
	}
	return totals, decaf, nil
}

// decafCounterpart returns the replacement for id under a decaf modifier, or
// id itself when the item has no counterpart or does not exist (the existence
// check later reports it).
func (r *Resolver) decafCounterpart(ctx context.Context, tenant domain.TenantID, id string) (string, error) {
	inv, ok, err := r.catalog.InventoryItem(ctx, tenant, id)
	if err != nil {
		return "", err
	}
	if ok && inv.DecafCounterpart != "" {
		return inv.DecafCounterpart, nil
	}
	return id, nil
}

// finish scales totals, drops non-positive quantities and checks every
// remaining id against the tenant's inventory.
func (r *Resolver) finish(ctx context.Context, tenant domain.TenantID, totals map[string]float64, quantity float64) (Resolution, error) {
	scaled := make(map[string]float64, len(totals))
	var dangling []string
	for id, qty := range totals {
		if qty <= 0 {
			continue
		}
		_, ok, err := r.catalog.InventoryItem(ctx, tenant, id)
		if err != nil {
			return Resolution{}, err
		}
		if !ok {
			dangling = append(dangling, id)
			continue
		}
		scaled[id] = qty * quantity
	}

	sort.Strings(dangling)
	return Resolution{Deductions: sortedDeductions(scaled), Dangling: dangling}, nil
}

func danglingError(tenant domain.TenantID, menuItemID string, ids []string) error {
	err := domain.NewDanglingReference(tenant, menuItemID, ids[0])
	if len(ids) > 1 {
		err.Details["all"] = strings.Join(ids, ",")
	}
	return err
}

func sortedDeductions(m map[string]float64) []domain.Deduction {
	out := make([]domain.Deduction, 0, len(m))
	for id, qty := range m {
		out = append(out, domain.Deduction{ItemID: id, Quantity: qty})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ItemID < out[j].ItemID })
	return out
}

func dedupe(ids []string) []string {
	if len(ids) == 0 {
		return nil
	}
	seen := make(map[string]bool, len(ids))
	out := ids[:0:0]
	for _, id := range ids {
		if !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	sort.Strings(out)
	return out
}
