package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/galley/internal/catalog"
)

// CatalogSummary describes a validated catalog file.
type CatalogSummary struct {
	Path           string           `json:"path"`
	Tenants        []string         `json:"tenants"`
	MenuItems      int              `json:"menu_items"`
	ModifierGroups int              `json:"modifier_groups"`
	ModifierValues int              `json:"modifier_values"`
	Recipes        int              `json:"recipes"`
	Inventory      int              `json:"inventory"`
	Orphans        []catalog.Orphan `json:"orphans,omitempty"`
}

func (s CatalogSummary) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s: %d menu items, %d modifier groups, %d modifier values, %d recipes, %d inventory rows (tenants: %s)",
		s.Path, s.MenuItems, s.ModifierGroups, s.ModifierValues, s.Recipes, s.Inventory, strings.Join(s.Tenants, ", "))
	for _, o := range s.Orphans {
		fmt.Fprintf(&b, "\n  orphan: %s %s -> %s", o.TenantID, o.Source, o.InventoryItemID)
	}
	return b.String()
}

func summarize(path string, d *catalog.Data) CatalogSummary {
	seen := make(map[string]bool)
	var tenants []string
	add := func(t string) {
		if !seen[t] {
			seen[t] = true
			tenants = append(tenants, t)
		}
	}
	for _, m := range d.MenuItems {
		add(string(m.TenantID))
	}
	for _, it := range d.Inventory {
		add(string(it.TenantID))
	}

	return CatalogSummary{
		Path:           path,
		Tenants:        tenants,
		MenuItems:      len(d.MenuItems),
		ModifierGroups: len(d.ModifierGroups),
		ModifierValues: len(d.ModifierValues),
		Recipes:        len(d.Recipes),
		Inventory:      len(d.Inventory),
		Orphans:        d.Orphans(),
	}
}

// NewCatalogCommand creates the catalog command group.
func NewCatalogCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "catalog",
		Short: "Validate and import menu catalogs",
	}
	cmd.AddCommand(newCatalogValidateCommand(rootOpts))
	cmd.AddCommand(newCatalogImportCommand(rootOpts))
	return cmd
}

func newCatalogValidateCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "validate <catalog-file>",
		Short: "Check a YAML or CUE catalog without importing it",
		Long: `Check a catalog file's structure and list orphaned references.

An orphan is a recipe ingredient, modifier delta or decaf counterpart that
names an inventory row the tenant does not have. Orders using it fail at
completion under the hard policy, so validate exits 1 when any exist.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			f := rootOpts.formatter(cmd)

			d, err := catalog.Load(args[0])
			if err != nil {
				return f.Fail(ExitCommandError, ErrCodeCatalog, "invalid catalog", err)
			}
			summary := summarize(args[0], d)
			if len(summary.Orphans) > 0 {
				if err := f.Error(ErrCodeOrphanedItems,
					fmt.Sprintf("%d orphaned inventory reference(s)", len(summary.Orphans)), summary); err != nil {
					return err
				}
				if rootOpts.Format != "json" {
					fmt.Fprintln(f.Writer, summary)
				}
				return NewExitError(ExitFailure, "catalog has orphaned references")
			}
			return f.Success(summary)
		},
	}
}

func newCatalogImportCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "import <catalog-file>",
		Short: "Import a catalog into the configured store",
		Long: `Import a catalog into the configured order store and stock backend.

Rows are upserted. Inventory rows that already exist keep their stock level.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			f := rootOpts.formatter(cmd)
			ctx := commandContext(cmd)

			e, err := loadEngine(ctx, rootOpts, f, engineOptions{catalogPath: args[0]})
			if err != nil {
				return err
			}
			defer e.Close()

			return f.Success(summarize(args[0], e.data))
		},
	}
}
