package harness

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"strconv"

	"github.com/roach88/galley/internal/catalog"
	"github.com/roach88/galley/internal/domain"
	"github.com/roach88/galley/internal/kds"
	"github.com/roach88/galley/internal/ledger"
	"github.com/roach88/galley/internal/queue"
	"github.com/roach88/galley/internal/recipe"
	"github.com/roach88/galley/internal/store"
	"github.com/roach88/galley/internal/testutil"
)

// Harness drives one scenario against a fresh engine with deterministic
// order ids and a stepping clock.
type Harness struct {
	scenario   *Scenario
	queue      *queue.Queue
	dispatcher *kds.Dispatcher
	ledger     *ledger.Ledger
	logger     *slog.Logger
	refs       map[string]string
	closers    []func() error
}

// Option configures Run.
type Option func(*runConfig)

type runConfig struct {
	logger *slog.Logger
}

// WithLogger routes engine logs to l. By default they are discarded.
func WithLogger(l *slog.Logger) Option {
	return func(c *runConfig) { c.logger = l }
}

// Run executes a scenario and returns the result.
//
// Each run builds its own catalog, stores, queue and dispatcher, so scenarios
// never share state. Expectation and assertion failures are reported on the
// Result; the error is reserved for invalid scenarios, scenarios that cannot
// be set up, and steps that fail outside the domain (store faults). Missing
// defaults on scenario are filled in.
func Run(ctx context.Context, scenario *Scenario, opts ...Option) (*Result, error) {
	cfg := runConfig{logger: slog.New(slog.NewTextHandler(io.Discard, nil))}
	for _, opt := range opts {
		opt(&cfg)
	}

	if err := validateScenario(scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}

	h, err := newHarness(ctx, scenario, cfg.logger)
	if err != nil {
		return nil, err
	}
	defer h.close()

	result := NewResult()
	for i, step := range scenario.Steps {
		if err := h.executeStep(ctx, i, step, result); err != nil {
			return nil, fmt.Errorf("step %d (%s): %w", i, step.Op, err)
		}
	}
	for ref, id := range h.refs {
		result.Refs[ref] = id
	}

	actx := &AssertionContext{
		Ctx:        ctx,
		Tenant:     scenario.Tenant,
		Queue:      h.queue,
		Dispatcher: h.dispatcher,
		Ledger:     h.ledger,
		Refs:       result.Refs,
	}
	for _, msg := range EvaluateAssertions(result, scenario.Assertions, actx) {
		result.AddError(msg)
	}
	return result, nil
}

func newHarness(ctx context.Context, s *Scenario, logger *slog.Logger) (*Harness, error) {
	data, err := scenarioCatalog(s)
	if err != nil {
		return nil, err
	}

	h := &Harness{
		scenario: s,
		logger:   logger,
		refs:     make(map[string]string),
	}

	var (
		cat    catalog.Reader
		stock  ledger.StockStore
		orders queue.Store
	)
	switch s.Store {
	case StoreSQLite:
		st, err := store.Open(":memory:")
		if err != nil {
			return nil, fmt.Errorf("failed to create in-memory store: %w", err)
		}
		h.closers = append(h.closers, st.Close)
		if err := st.ImportCatalog(ctx, data); err != nil {
			h.close()
			return nil, fmt.Errorf("import catalog: %w", err)
		}
		cat, stock, orders = st, st, st
	default:
		mem, err := catalog.NewMemory(data)
		if err != nil {
			return nil, fmt.Errorf("load catalog: %w", err)
		}
		cat, stock, orders = mem, ledger.NewMemoryStore(data.Inventory), queue.NewMemoryStore()
	}

	h.ledger = ledger.New(stock, s.Policy, ledger.WithLogger(logger))
	h.queue = queue.New(cat,
		recipe.NewResolver(cat, recipe.NewNameMatcher(recipe.DefaultDecafMarkers...)),
		h.ledger,
		queue.WithStore(orders),
		queue.WithAppendPolicy(s.Append),
		queue.WithIDGenerator(testutil.NewSequenceIDs("order")),
		queue.WithClock(testutil.NewStepClock().Now),
		queue.WithLogger(logger),
	)
	h.dispatcher = kds.New(h.queue, kds.WithLogger(logger))
	return h, nil
}

// scenarioCatalog loads the scenario's catalog and applies stock overrides.
func scenarioCatalog(s *Scenario) (catalog.Data, error) {
	data := testutil.CafeData()
	if s.Catalog != "" {
		d, err := catalog.Load(s.Catalog)
		if err != nil {
			return catalog.Data{}, err
		}
		data = *d
	}

	for _, o := range s.Stock {
		tenant := o.Tenant
		if tenant == "" {
			tenant = s.Tenant
		}
		i := slices.IndexFunc(data.Inventory, func(it domain.InventoryItem) bool {
			return it.TenantID == tenant && it.ID == o.Item
		})
		if i < 0 {
			return catalog.Data{}, fmt.Errorf("stock override: no inventory row %q for tenant %q", o.Item, tenant)
		}
		data.Inventory[i].Stock = o.Quantity
	}
	return data, nil
}

func (h *Harness) close() {
	for i := len(h.closers) - 1; i >= 0; i-- {
		if err := h.closers[i](); err != nil {
			h.logger.Warn("close harness resource", "error", err)
		}
	}
}

func (h *Harness) tenant(t domain.TenantID) domain.TenantID {
	if t != "" {
		return t
	}
	return h.scenario.Tenant
}

// resolve maps a ref to its order id. Unknown refs are used as literal ids.
func (h *Harness) resolve(ref string) string {
	if id, ok := h.refs[ref]; ok {
		return id
	}
	return ref
}

// observed is what a step produced, for expectation checks.
type observed struct {
	status    domain.Status
	deducted  bool
	duplicate bool
	warnings  []*domain.Error
}

// executeStep runs one step, records it in the trace and checks its
// expectation.
func (h *Harness) executeStep(ctx context.Context, i int, step Step, result *Result) error {
	tenant := h.tenant(step.Tenant)
	ev := TraceEvent{Op: step.Op, Tenant: string(tenant)}
	if step.Op != OpSubmit {
		ev.Ref = step.Order
		ev.OrderID = h.resolve(step.Order)
		if ev.Ref == ev.OrderID {
			ev.Ref = ""
		}
	}

	var (
		obs observed
		err error
	)
	switch step.Op {
	case OpSubmit:
		var opts []queue.SubmitOption
		if step.CustomerRef != "" {
			opts = append(opts, queue.WithCustomerRef(step.CustomerRef))
		}
		if step.SkipDeduction {
			opts = append(opts, queue.WithSkipDeduction())
		}
		var o domain.Order
		o, err = h.queue.Submit(ctx, tenant, step.Lines, opts...)
		if err == nil {
			if step.Ref != "" {
				h.refs[step.Ref] = o.ID
			}
			ev.Ref, ev.OrderID = step.Ref, o.ID
			obs.status = o.Status
			ev.Result = map[string]any{
				"status":   string(o.Status),
				"position": formatFloat(o.Position),
			}
		}

	case OpEdit:
		var o domain.Order
		o, err = h.dispatcher.Edit(ctx, tenant, ev.OrderID, step.Lines)
		if err == nil {
			obs.status = o.Status
			ev.Result = map[string]any{
				"status": string(o.Status),
				"lines":  len(o.Lines),
			}
		}

	case OpReorder:
		var o domain.Order
		o, err = h.dispatcher.Reorder(ctx, tenant, ev.OrderID, h.resolve(step.Prev), h.resolve(step.Next))
		if err == nil {
			obs.status = o.Status
			ev.Result = map[string]any{"position": formatFloat(o.Position)}
		}

	case OpAdvance, OpBump:
		var res queue.AdvanceResult
		if step.Op == OpBump {
			res, err = h.dispatcher.Bump(ctx, tenant, ev.OrderID)
		} else {
			res, err = h.dispatcher.Advance(ctx, tenant, ev.OrderID, step.Status)
		}
		if err == nil {
			obs = observed{
				status:    res.Order.Status,
				deducted:  res.Deducted,
				duplicate: res.Duplicate,
				warnings:  res.Warnings,
			}
			ev.Result = advanceTrace(res)
		}

	case OpCancel:
		var o domain.Order
		o, err = h.dispatcher.Cancel(ctx, tenant, ev.OrderID)
		if err == nil {
			obs.status = o.Status
			ev.Result = map[string]any{"status": string(o.Status)}
		}

	default:
		return fmt.Errorf("unknown op %q", step.Op)
	}

	var de *domain.Error
	switch {
	case err == nil:
		ev.Outcome = OutcomeOK
	case errors.As(err, &de) && !domain.IsStoreUnavailable(err):
		ev.Outcome = string(de.Code)
		if de.ItemID != "" {
			ev.Result = map[string]any{"item": de.ItemID}
		}
	default:
		return err
	}
	result.AddTrace(ev)

	h.logger.Debug("scenario step",
		"step", i,
		"op", step.Op,
		"order_id", ev.OrderID,
		"outcome", ev.Outcome,
	)

	for _, msg := range checkExpect(step, de, obs) {
		result.AddError(fmt.Sprintf("steps[%d] %s: %s", i, step.Op, msg))
	}
	return nil
}

func advanceTrace(res queue.AdvanceResult) map[string]any {
	out := map[string]any{"status": string(res.Order.Status)}
	if res.Deducted {
		out["deducted"] = true
	}
	if res.Duplicate {
		out["duplicate"] = true
	}
	if len(res.Warnings) > 0 {
		ws := make([]any, len(res.Warnings))
		for i, w := range res.Warnings {
			ws[i] = string(w.Code) + ":" + w.ItemID
		}
		out["warnings"] = ws
	}
	if len(res.Levels) > 0 {
		levels := make(map[string]any, len(res.Levels))
		for _, l := range res.Levels {
			levels[l.ItemID] = formatFloat(l.Stock)
		}
		out["levels"] = levels
	}
	return out
}

// checkExpect compares a step's outcome with its expect clause. A step
// without one must succeed.
func checkExpect(step Step, failure *domain.Error, obs observed) []string {
	exp := step.Expect
	if exp == nil {
		exp = &Expect{}
	}

	if exp.Error == "" {
		if failure != nil {
			return []string{fmt.Sprintf("unexpected error %s: %s", failure.Code, failure.Message)}
		}
	} else {
		if failure == nil {
			return []string{fmt.Sprintf("expected error %s, got success", exp.Error)}
		}
		var msgs []string
		if failure.Code != exp.Error {
			msgs = append(msgs, fmt.Sprintf("expected error %s, got %s: %s", exp.Error, failure.Code, failure.Message))
		}
		if exp.Item != "" && failure.ItemID != exp.Item {
			msgs = append(msgs, fmt.Sprintf("expected error on item %q, got %q", exp.Item, failure.ItemID))
		}
		return msgs
	}

	var msgs []string
	if exp.Status != "" && obs.status != exp.Status {
		msgs = append(msgs, fmt.Sprintf("expected status %s, got %s", exp.Status, obs.status))
	}
	if exp.Deducted != nil && obs.deducted != *exp.Deducted {
		msgs = append(msgs, fmt.Sprintf("expected deducted=%t, got %t", *exp.Deducted, obs.deducted))
	}
	if exp.Duplicate != nil && obs.duplicate != *exp.Duplicate {
		msgs = append(msgs, fmt.Sprintf("expected duplicate=%t, got %t", *exp.Duplicate, obs.duplicate))
	}
	if exp.Warnings != nil {
		got := make([]domain.ErrorCode, len(obs.warnings))
		for i, w := range obs.warnings {
			got[i] = w.Code
		}
		if !slices.Equal(got, exp.Warnings) {
			msgs = append(msgs, fmt.Sprintf("expected warnings %v, got %v", exp.Warnings, got))
		}
	}
	return msgs
}

// formatFloat renders a number without trailing zeros so traces stay stable.
func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}
