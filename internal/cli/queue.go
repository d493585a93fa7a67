package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/galley/internal/domain"
	"github.com/roach88/galley/internal/kds"
	"github.com/roach88/galley/internal/queue"
)

// NewQueueCommand creates the queue command group.
func NewQueueCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "queue",
		Short: "Inspect a tenant's order queue",
	}
	cmd.AddCommand(newQueueViewCommand(rootOpts))
	cmd.AddCommand(newQueueHistoryCommand(rootOpts))
	return cmd
}

// stationView renders a kds.View as station text.
type stationView kds.View

func (v stationView) String() string {
	if len(v.Tickets) == 0 {
		return fmt.Sprintf("%s: queue is empty", v.Tenant)
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%s (version %d)", v.Tenant, v.Version)
	for _, t := range v.Tickets {
		fmt.Fprintf(&b, "\n%d. %s [%s]", t.Rank, t.OrderID, t.Status)
		if t.CustomerRef != "" {
			fmt.Fprintf(&b, " %s", t.CustomerRef)
		}
		for _, it := range t.Items {
			void := ""
			if it.Voided {
				void = " (void)"
			}
			fmt.Fprintf(&b, "\n   %dx %s%s", it.Quantity, it.Name, void)
			for _, l := range it.Labels {
				fmt.Fprintf(&b, "\n      - %s", l.Text)
			}
		}
	}
	return b.String()
}

func parseStatuses(raw []string) ([]domain.Status, error) {
	var out []domain.Status
	for _, r := range raw {
		s := domain.Status(r)
		if !s.Valid() {
			return nil, fmt.Errorf("unknown status %q", r)
		}
		out = append(out, s)
	}
	return out, nil
}

func newQueueViewCommand(rootOpts *RootOptions) *cobra.Command {
	var statuses []string

	cmd := &cobra.Command{
		Use:   "view <tenant>",
		Short: "Print the station view of the active queue",
		Example: `  galley queue view cafe-a
  galley queue view cafe-a --status queued,in_progress --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			f := rootOpts.formatter(cmd)
			filter, err := parseStatuses(statuses)
			if err != nil {
				return f.Fail(ExitCommandError, ErrCodeGeneric, "invalid --status", err)
			}

			ctx := commandContext(cmd)
			e, err := loadEngine(ctx, rootOpts, f, engineOptions{})
			if err != nil {
				return err
			}
			defer e.Close()

			v, err := e.dispatcher.View(ctx, domain.TenantID(args[0]), filter...)
			if err != nil {
				return f.Fail(ExitFailure, errorCode(err, ErrCodeBackend), "read queue", err)
			}
			if rootOpts.Format == "json" {
				return f.Success(v)
			}
			return f.Success(stationView(v))
		},
	}

	cmd.Flags().StringSliceVar(&statuses, "status", nil, "only show orders in these statuses")

	return cmd
}

// transitionLog renders an order's transitions as text.
type transitionLog []queue.Transition

func (l transitionLog) String() string {
	var b strings.Builder
	for i, tr := range l {
		if i > 0 {
			b.WriteByte('\n')
		}
		from := string(tr.From)
		if from == "" {
			from = "-"
		}
		fmt.Fprintf(&b, "%d  %s  %s -> %s", tr.Seq, tr.At.UTC().Format("2006-01-02T15:04:05Z"), from, tr.To)
	}
	return b.String()
}

func newQueueHistoryCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "history <tenant> <order-id>",
		Short:         "Print an order's status transitions",
		Args:          cobra.ExactArgs(2),
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

			log, err := e.queue.History(ctx, domain.TenantID(args[0]), args[1])
			if err != nil {
				return f.Fail(ExitFailure, errorCode(err, ErrCodeBackend), "read history", err)
			}
			if rootOpts.Format == "json" {
				return f.Success(log)
			}
			return f.Success(transitionLog(log))
		},
	}
}

func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
