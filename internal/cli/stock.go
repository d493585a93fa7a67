package cli

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/galley/internal/domain"
	"github.com/roach88/galley/internal/ledger"
)

// NewStockCommand creates the stock command group.
func NewStockCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stock",
		Short: "Inspect inventory levels and movements",
	}
	cmd.AddCommand(newStockLevelsCommand(rootOpts))
	cmd.AddCommand(newStockHistoryCommand(rootOpts))
	return cmd
}

type levelTable []domain.StockLevel

func (t levelTable) String() string {
	if len(t) == 0 {
		return "no inventory rows"
	}
	width := 0
	for _, l := range t {
		width = max(width, len(l.ItemID))
	}
	var b strings.Builder
	for i, l := range t {
		if i > 0 {
			b.WriteByte('\n')
		}
		fmt.Fprintf(&b, "%-*s  %s", width, l.ItemID, strconv.FormatFloat(l.Stock, 'f', -1, 64))
	}
	return b.String()
}

func newStockLevelsCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "levels <tenant> [item...]",
		Short: "Print current stock levels",
		Long: `Print current stock levels for a tenant.

With no items, every inventory row of the tenant is listed. Unknown items
are left out of the output.`,
		Args:          cobra.MinimumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			f := rootOpts.formatter(cmd)
			ctx := commandContext(cmd)
			e, err := loadEngine(ctx, rootOpts, f, engineOptions{})
			if err != nil {
				return err
			}
			defer e.Close()

			tenant := domain.TenantID(args[0])
			ids := args[1:]
			if len(ids) == 0 {
				if ids, err = e.inventoryIDs(ctx, tenant); err != nil {
					return f.Fail(ExitFailure, errorCode(err, ErrCodeBackend), "list inventory", err)
				}
			}

			levels := []domain.StockLevel{}
			if len(ids) > 0 {
				if levels, err = e.ledger.Levels(ctx, tenant, ids); err != nil {
					return f.Fail(ExitFailure, errorCode(err, ErrCodeBackend), "read stock levels", err)
				}
			}
			if rootOpts.Format == "json" {
				return f.Success(levels)
			}
			return f.Success(levelTable(levels))
		},
	}
}

type movementTable []ledger.Movement

func (t movementTable) String() string {
	if len(t) == 0 {
		return "no movements"
	}
	var b strings.Builder
	for i, m := range t {
		if i > 0 {
			b.WriteByte('\n')
		}
		fmt.Fprintf(&b, "%d  %s  %s  %s -> %s", m.Seq, m.OrderID, m.ItemID,
			strconv.FormatFloat(m.Delta, 'f', -1, 64),
			strconv.FormatFloat(m.StockAfter, 'f', -1, 64))
	}
	return b.String()
}

func newStockHistoryCommand(rootOpts *RootOptions) *cobra.Command {
	var item string

	cmd := &cobra.Command{
		Use:           "history <tenant>",
		Short:         "Print applied deductions, oldest first",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			f := rootOpts.formatter(cmd)
			ctx := commandContext(cmd)
			e, err := loadEngine(ctx, rootOpts, f, engineOptions{})
			if err != nil {
				return err
			}
			defer e.Close()

			mv, err := e.ledger.History(ctx, domain.TenantID(args[0]), item)
			if errors.Is(err, ledger.ErrNoHistory) {
				return f.Fail(ExitCommandError, ErrCodeBackend, "stock history unavailable", err)
			}
			if err != nil {
				return f.Fail(ExitFailure, errorCode(err, ErrCodeBackend), "read stock history", err)
			}
			if rootOpts.Format == "json" {
				return f.Success(mv)
			}
			return f.Success(movementTable(mv))
		},
	}

	cmd.Flags().StringVar(&item, "item", "", "only show movements of this inventory item")

	return cmd
}
