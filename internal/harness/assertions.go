package harness

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/roach88/galley/internal/domain"
	"github.com/roach88/galley/internal/kds"
	"github.com/roach88/galley/internal/ledger"
	"github.com/roach88/galley/internal/queue"
)

// AssertionError is returned when an assertion fails.
// It includes detailed context to help debug the failure.
type AssertionError struct {
	Type     string       // Assertion type for categorization
	Expected string       // Human-readable expected outcome
	Actual   string       // Human-readable actual outcome
	Trace    []TraceEvent // Full trace for debugging context
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	if len(e.Trace) > 0 {
		fmt.Fprintf(&buf, "\nFull trace:\n")
		for _, ev := range e.Trace {
			fmt.Fprintf(&buf, "  [%d] %s %s %s\n", ev.Seq, ev.Op, ev.OrderID, ev.Outcome)
		}
	}
	return buf.String()
}

// AssertionContext gives assertions access to the engine a scenario ran
// against.
type AssertionContext struct {
	Ctx        context.Context
	Tenant     domain.TenantID
	Queue      *queue.Queue
	Dispatcher *kds.Dispatcher
	Ledger     *ledger.Ledger

	// Refs maps scenario refs to order ids.
	Refs map[string]string
}

func (a *AssertionContext) tenant(t domain.TenantID) domain.TenantID {
	if t != "" {
		return t
	}
	return a.Tenant
}

func (a *AssertionContext) resolve(ref string) string {
	if id, ok := a.Refs[ref]; ok {
		return id
	}
	return ref
}

// refOf maps an order id back to its ref, for readable messages.
func (a *AssertionContext) refOf(id string) string {
	for ref, rid := range a.Refs {
		if rid == id {
			return ref
		}
	}
	return id
}

func matchEvent(ev TraceEvent, a Assertion) bool {
	if ev.Op != a.Op {
		return false
	}
	return a.Outcome == "" || ev.Outcome == a.Outcome
}

// assertTraceContains checks that some step ran the op with the outcome.
func assertTraceContains(trace []TraceEvent, a Assertion) error {
	for _, ev := range trace {
		if matchEvent(ev, a) {
			return nil
		}
	}
	return &AssertionError{
		Type:     AssertTraceContains,
		Expected: fmt.Sprintf("op %s with outcome %q", a.Op, a.Outcome),
		Actual:   "not found in trace",
		Trace:    trace,
	}
}

// assertTraceOrder checks that ops first appear in the given order.
// Intervening ops are allowed.
func assertTraceOrder(trace []TraceEvent, a Assertion) error {
	positions := make(map[string]int)
	for i, ev := range trace {
		if _, seen := positions[ev.Op]; !seen {
			positions[ev.Op] = i + 1
		}
	}

	for _, op := range a.Ops {
		if positions[op] == 0 {
			return &AssertionError{
				Type:     AssertTraceOrder,
				Expected: fmt.Sprintf("all ops present: %v", a.Ops),
				Actual:   fmt.Sprintf("missing op: %s", op),
				Trace:    trace,
			}
		}
	}
	for i := 1; i < len(a.Ops); i++ {
		prev, curr := a.Ops[i-1], a.Ops[i]
		if positions[prev] >= positions[curr] {
			return &AssertionError{
				Type:     AssertTraceOrder,
				Expected: fmt.Sprintf("ops in order: %v", a.Ops),
				Actual: fmt.Sprintf("%s (pos %d) should be before %s (pos %d)",
					prev, positions[prev], curr, positions[curr]),
				Trace: trace,
			}
		}
	}
	return nil
}

// assertTraceCount checks that exactly Count steps match op and outcome.
func assertTraceCount(trace []TraceEvent, a Assertion) error {
	count := 0
	for _, ev := range trace {
		if matchEvent(ev, a) {
			count++
		}
	}
	if count != a.Count {
		return &AssertionError{
			Type:     AssertTraceCount,
			Expected: fmt.Sprintf("%d occurrences of %s", a.Count, a.Op),
			Actual:   fmt.Sprintf("%d occurrences", count),
			Trace:    trace,
		}
	}
	return nil
}

// assertQueueOrder compares the tenant's active queue with the expected refs.
func assertQueueOrder(actx *AssertionContext, a Assertion) error {
	snap, err := actx.Queue.Snapshot(actx.Ctx, actx.tenant(a.Tenant))
	if err != nil {
		return fmt.Errorf("queue_order: %w", err)
	}
	got := make([]string, 0, len(snap.Orders))
	for _, o := range snap.Orders {
		got = append(got, actx.refOf(o.ID))
	}
	if !slices.Equal(got, a.Orders) {
		return &AssertionError{
			Type:     AssertQueueOrder,
			Expected: fmt.Sprintf("%v", a.Orders),
			Actual:   fmt.Sprintf("%v", got),
		}
	}
	return nil
}

func assertOrderStatus(actx *AssertionContext, a Assertion) error {
	o, err := actx.Queue.Get(actx.Ctx, actx.tenant(a.Tenant), actx.resolve(a.Order))
	if err != nil {
		return &AssertionError{
			Type:     AssertOrderStatus,
			Expected: fmt.Sprintf("order %s in status %s", a.Order, a.Status),
			Actual:   err.Error(),
		}
	}
	if o.Status != a.Status {
		return &AssertionError{
			Type:     AssertOrderStatus,
			Expected: fmt.Sprintf("order %s in status %s", a.Order, a.Status),
			Actual:   string(o.Status),
		}
	}
	return nil
}

func assertStockLevel(actx *AssertionContext, a Assertion) error {
	levels, err := actx.Ledger.Levels(actx.Ctx, actx.tenant(a.Tenant), []string{a.Item})
	if err != nil {
		return fmt.Errorf("stock_level: %w", err)
	}
	if len(levels) == 0 {
		return &AssertionError{
			Type:     AssertStockLevel,
			Expected: fmt.Sprintf("%s = %g", a.Item, *a.Quantity),
			Actual:   "no such inventory row",
		}
	}
	if levels[0].Stock != *a.Quantity {
		return &AssertionError{
			Type:     AssertStockLevel,
			Expected: fmt.Sprintf("%s = %g", a.Item, *a.Quantity),
			Actual:   fmt.Sprintf("%s = %g", a.Item, levels[0].Stock),
		}
	}
	return nil
}

// assertMovementCount counts ledger movements, for one item or all of them.
func assertMovementCount(actx *AssertionContext, a Assertion) error {
	mv, err := actx.Ledger.History(actx.Ctx, actx.tenant(a.Tenant), a.Item)
	if err != nil {
		return fmt.Errorf("movement_count: %w", err)
	}
	if len(mv) != a.Count {
		what := "all items"
		if a.Item != "" {
			what = a.Item
		}
		return &AssertionError{
			Type:     AssertMovementCount,
			Expected: fmt.Sprintf("%d movements for %s", a.Count, what),
			Actual:   fmt.Sprintf("%d movements", len(mv)),
		}
	}
	return nil
}

func assertTransitionCount(actx *AssertionContext, a Assertion) error {
	log, err := actx.Queue.History(actx.Ctx, actx.tenant(a.Tenant), actx.resolve(a.Order))
	if err != nil {
		return fmt.Errorf("transition_count: %w", err)
	}
	if len(log) != a.Count {
		steps := make([]string, len(log))
		for i, tr := range log {
			steps[i] = string(tr.To)
		}
		return &AssertionError{
			Type:     AssertTransitionCount,
			Expected: fmt.Sprintf("%d transitions for %s", a.Count, a.Order),
			Actual:   fmt.Sprintf("%d transitions %v", len(log), steps),
		}
	}
	return nil
}

// assertTicketLabels checks the station labels of the order's first item.
func assertTicketLabels(actx *AssertionContext, a Assertion) error {
	v, err := actx.Dispatcher.View(actx.Ctx, actx.tenant(a.Tenant))
	if err != nil {
		return fmt.Errorf("ticket_labels: %w", err)
	}
	id := actx.resolve(a.Order)
	for _, t := range v.Tickets {
		if t.OrderID != id {
			continue
		}
		var got []string
		if len(t.Items) > 0 {
			for _, l := range t.Items[0].Labels {
				got = append(got, l.Text)
			}
		}
		if !slices.Equal(got, a.Labels) {
			return &AssertionError{
				Type:     AssertTicketLabels,
				Expected: fmt.Sprintf("%q", a.Labels),
				Actual:   fmt.Sprintf("%q", got),
			}
		}
		return nil
	}
	return &AssertionError{
		Type:     AssertTicketLabels,
		Expected: fmt.Sprintf("ticket for %s", a.Order),
		Actual:   "not on the station view",
	}
}

// EvaluateAssertions evaluates all assertions against the result.
// Returns a slice of error messages for failed assertions.
func EvaluateAssertions(result *Result, assertions []Assertion, actx *AssertionContext) []string {
	var errors []string

	for i, a := range assertions {
		var err error

		switch a.Type {
		case AssertTraceContains:
			err = assertTraceContains(result.Trace, a)
		case AssertTraceOrder:
			err = assertTraceOrder(result.Trace, a)
		case AssertTraceCount:
			err = assertTraceCount(result.Trace, a)
		default:
			if actx == nil || actx.Queue == nil {
				err = fmt.Errorf("assertion[%d]: %s requires an engine context", i, a.Type)
				break
			}
			err = evaluateState(actx, a)
		}

		if err != nil {
			errors = append(errors, err.Error())
		}
	}
	return errors
}

func evaluateState(actx *AssertionContext, a Assertion) error {
	switch a.Type {
	case AssertQueueOrder:
		return assertQueueOrder(actx, a)
	case AssertOrderStatus:
		return assertOrderStatus(actx, a)
	case AssertStockLevel:
		return assertStockLevel(actx, a)
	case AssertMovementCount:
		return assertMovementCount(actx, a)
	case AssertTransitionCount:
		return assertTransitionCount(actx, a)
	case AssertTicketLabels:
		return assertTicketLabels(actx, a)
	}
	return fmt.Errorf("unknown assertion type %q", a.Type)
}
