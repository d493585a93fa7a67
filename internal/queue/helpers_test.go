package queue

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/roach88/galley/internal/domain"
	"github.com/roach88/galley/internal/ledger"
	"github.com/roach88/galley/internal/recipe"
	"github.com/roach88/galley/internal/testutil"
)

type fixture struct {
	q      *Queue
	stock  *ledger.MemoryStore
	orders *MemoryStore
}

func newFixture(t *testing.T, policy ledger.Policy, opts ...Option) *fixture {
	t.Helper()
	return newFixtureWithStock(t, policy, ledger.NewMemoryStore(testutil.CafeData().Inventory), opts...)
}

func newFixtureWithStock(t *testing.T, policy ledger.Policy, stock ledger.StockStore, opts ...Option) *fixture {
	t.Helper()
	cat := testutil.CafeCatalog()
	orders := NewMemoryStore()
	base := []Option{
		WithStore(orders),
		WithIDGenerator(testutil.NewSequenceIDs("order")),
		WithClock(testutil.NewStepClock().Now),
	}
	q := New(cat,
		recipe.NewResolver(cat, recipe.NewNameMatcher(recipe.DefaultDecafMarkers...)),
		ledger.New(stock, policy),
		append(base, opts...)...,
	)
	f := &fixture{q: q, orders: orders}
	if ms, ok := stock.(*ledger.MemoryStore); ok {
		f.stock = ms
	}
	return f
}

func (f *fixture) submit(t *testing.T, lines ...domain.OrderLine) domain.Order {
	t.Helper()
	o, err := f.q.Submit(context.Background(), testutil.CafeA, lines)
	require.NoError(t, err)
	return o
}

func (f *fixture) advance(t *testing.T, id string, statuses ...domain.Status) AdvanceResult {
	t.Helper()
	var res AdvanceResult
	for _, s := range statuses {
		var err error
		res, err = f.q.Advance(context.Background(), testutil.CafeA, id, s)
		require.NoError(t, err, "advance %s to %s", id, s)
	}
	return res
}

func (f *fixture) snapshot(t *testing.T, tenant domain.TenantID) Snapshot {
	t.Helper()
	s, err := f.q.Snapshot(context.Background(), tenant)
	require.NoError(t, err)
	return s
}

func (f *fixture) stockOf(t *testing.T, tenant domain.TenantID, item string) float64 {
	t.Helper()
	lv, err := f.stock.StockLevels(context.Background(), tenant, []string{item})
	require.NoError(t, err)
	require.Len(t, lv, 1)
	return lv[0].Stock
}

func positions(s Snapshot) []float64 {
	out := make([]float64, len(s.Orders))
	for i, o := range s.Orders {
		out[i] = o.Position
	}
	return out
}

func latte(mods ...string) domain.OrderLine {
	return domain.OrderLine{MenuItemID: "latte", Quantity: 1, ModifierIDs: mods}
}

func steamer() domain.OrderLine {
	return domain.OrderLine{MenuItemID: "steamer", Quantity: 1}
}

// recordingNotifier collects published snapshots.
type recordingNotifier struct {
	mu    sync.Mutex
	snaps []Snapshot
}

func (r *recordingNotifier) Notify(s Snapshot) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.snaps = append(r.snaps, s)
}

func (r *recordingNotifier) all() []Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Snapshot(nil), r.snaps...)
}

// blockingStock stalls ApplyDeductions until the context ends.
type blockingStock struct {
	*ledger.MemoryStore
}

func (b blockingStock) ApplyDeductions(ctx context.Context, _ ledger.ApplyRequest) (ledger.Outcome, error) {
	<-ctx.Done()
	return ledger.Outcome{}, ctx.Err()
}

// flakyOrders fails SaveOrder for status changes into failTo, and for writes
// without a transition (moves and edits) while failMoves is set.
type flakyOrders struct {
	*MemoryStore
	mu        sync.Mutex
	failTo    domain.Status
	failMoves bool
}

func (f *flakyOrders) SaveOrder(ctx context.Context, o domain.Order, tr *Transition) error {
	f.mu.Lock()
	fail := tr != nil && tr.To == f.failTo
	failMove := tr == nil && f.failMoves
	f.mu.Unlock()
	if failMove {
		return errors.New("disk full")
	}
	if fail {
		<-ctx.Done()
		return ctx.Err()
	}
	return f.MemoryStore.SaveOrder(ctx, o, tr)
}

func (f *flakyOrders) heal() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failTo = ""
	f.failMoves = false
}

func (f *flakyOrders) breakMoves() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failMoves = true
}
