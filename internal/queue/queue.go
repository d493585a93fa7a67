// Package queue owns each tenant's ordered collection of active orders.
//
// Every mutation of one tenant (submit, edit, reorder, advance, cancel) runs
// inside that tenant's critical section; tenants never share a lock. After a
// mutation commits to the Store, the queue publishes an immutable Snapshot
// that readers load without locking, and hands it to every registered
// Notifier.
//
// Thread-safety model:
//   - all exported methods are safe from any goroutine
//   - Notifier.Notify is called with the tenant lock held and must not block
//     or call back into the Queue
package queue

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/roach88/galley/internal/catalog"
	"github.com/roach88/galley/internal/domain"
	"github.com/roach88/galley/internal/ident"
	"github.com/roach88/galley/internal/ledger"
	"github.com/roach88/galley/internal/metrics"
	"github.com/roach88/galley/internal/position"
	"github.com/roach88/galley/internal/recipe"
)

// AppendPolicy decides where Submit places new orders.
type AppendPolicy string

const (
	AppendTail AppendPolicy = "tail"
	AppendHead AppendPolicy = "head"
)

// DefaultStoreTimeout bounds each Store call.
const DefaultStoreTimeout = 2 * time.Second

// Notifier receives a tenant's snapshot after every committed mutation.
type Notifier interface {
	Notify(s Snapshot)
}

// Queue is the per-tenant order queue.
type Queue struct {
	store    Store
	catalog  catalog.Reader
	resolver *recipe.Resolver
	ledger   *ledger.Ledger

	allocator    position.Allocator
	appendPolicy AppendPolicy
	storeTimeout time.Duration
	ids          ident.Generator
	now          func() time.Time
	logger       *slog.Logger
	metrics      *metrics.Metrics

	mu        sync.Mutex
	tenants   map[domain.TenantID]*tenantQueue
	notifiers []Notifier
}

// tenantQueue is one tenant's critical section and live state.
//
// lock is a one-slot semaphore so that waiting for it honors ctx.
// active and loaded are guarded by lock; snap is read without it.
type tenantQueue struct {
	tenant  domain.TenantID
	lock    chan struct{}
	loaded  bool
	active  []domain.Order
	version int64
	snap    atomic.Pointer[Snapshot]
}

// Option configures a Queue.
type Option func(*Queue)

// WithStore sets the order store. Defaults to a MemoryStore.
func WithStore(s Store) Option {
	return func(q *Queue) { q.store = s }
}

// WithEpsilon sets the position compaction threshold.
func WithEpsilon(eps float64) Option {
	return func(q *Queue) { q.allocator = position.NewAllocator(eps) }
}

// WithAppendPolicy sets where new orders join the queue. Defaults to tail.
func WithAppendPolicy(p AppendPolicy) Option {
	return func(q *Queue) { q.appendPolicy = p }
}

// WithStoreTimeout bounds each store call. Expiry surfaces as STORE_UNAVAILABLE.
func WithStoreTimeout(d time.Duration) Option {
	return func(q *Queue) { q.storeTimeout = d }
}

// WithIDGenerator sets the order id source. Defaults to UUIDv7.
func WithIDGenerator(g ident.Generator) Option {
	return func(q *Queue) { q.ids = g }
}

// WithClock sets the wall clock used for created_at and the status log.
func WithClock(now func() time.Time) Option {
	return func(q *Queue) { q.now = now }
}

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(q *Queue) { q.logger = l }
}

// WithMetrics records queue metrics.
func WithMetrics(m *metrics.Metrics) Option {
	return func(q *Queue) { q.metrics = m }
}

// New creates a queue. The catalog validates submitted lines, the resolver
// expands them at completion, and the ledger applies the deductions.
func New(c catalog.Reader, r *recipe.Resolver, l *ledger.Ledger, opts ...Option) *Queue {
	q := &Queue{
		catalog:      c,
		resolver:     r,
		ledger:       l,
		allocator:    position.NewAllocator(position.DefaultEpsilon),
		appendPolicy: AppendTail,
		storeTimeout: DefaultStoreTimeout,
		ids:          ident.UUIDv7Generator{},
		now:          time.Now,
		logger:       slog.Default(),
		tenants:      make(map[domain.TenantID]*tenantQueue),
	}
	for _, opt := range opts {
		opt(q)
	}
	if q.store == nil {
		q.store = NewMemoryStore()
	}
	return q
}

// AddNotifier registers n for every tenant's snapshots.
func (q *Queue) AddNotifier(n Notifier) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.notifiers = append(q.notifiers, n)
}

// Store returns the order store.
func (q *Queue) Store() Store {
	return q.store
}

func (q *Queue) tenantQueue(tenant domain.TenantID) *tenantQueue {
	q.mu.Lock()
	defer q.mu.Unlock()

	tq, ok := q.tenants[tenant]
	if !ok {
		tq = &tenantQueue{tenant: tenant, lock: make(chan struct{}, 1)}
		tq.snap.Store(&Snapshot{Tenant: tenant, Orders: []domain.Order{}})
		q.tenants[tenant] = tq
	}
	return tq
}

// acquire enters tenant's critical section and hydrates it from the store on
// first use. The returned release must be called exactly once.
func (q *Queue) acquire(ctx context.Context, tenant domain.TenantID) (*tenantQueue, func(), error) {
	tq := q.tenantQueue(tenant)
	select {
	case tq.lock <- struct{}{}:
	case <-ctx.Done():
		return nil, nil, domain.NewStoreUnavailable("acquire tenant queue", ctx.Err())
	}
	release := func() { <-tq.lock }

	if !tq.loaded {
		if err := q.hydrate(ctx, tq); err != nil {
			release()
			return nil, nil, err
		}
	}
	return tq, release, nil
}

func (q *Queue) hydrate(ctx context.Context, tq *tenantQueue) error {
	sctx, cancel := q.storeContext(ctx)
	defer cancel()

	defer q.metrics.TrackStore("active_orders")(time.Now())
	orders, err := q.store.ActiveOrders(sctx, tq.tenant)
	if err != nil {
		return domain.ClassifyStoreError("load active orders", err)
	}
	sortByPosition(orders)
	tq.active = orders
	tq.loaded = true
	q.publish(tq)
	q.logger.Debug("tenant queue loaded", "tenant_id", tq.tenant, "orders", len(orders))
	return nil
}

// storeContext bounds a store call.
func (q *Queue) storeContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if q.storeTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, q.storeTimeout)
}

// save persists o and its transition under the store timeout.
func (q *Queue) save(ctx context.Context, o domain.Order, tr *Transition) error {
	sctx, cancel := q.storeContext(ctx)
	defer cancel()

	defer q.metrics.TrackStore("save_order")(time.Now())
	if err := q.store.SaveOrder(sctx, o, tr); err != nil {
		return domain.ClassifyStoreError("save order", err)
	}
	return nil
}

// transition builds a status log entry for o entering its current status.
func (q *Queue) transition(o domain.Order, from domain.Status) (*Transition, error) {
	key, err := ident.TransitionKey(string(o.TenantID), o.ID, string(from), string(o.Status), o.Seq)
	if err != nil {
		return nil, err
	}
	return &Transition{
		TenantID: o.TenantID,
		OrderID:  o.ID,
		From:     from,
		To:       o.Status,
		Seq:      o.Seq,
		At:       q.now().UTC(),
		Key:      key,
	}, nil
}

// lookup finds an order in the active list, falling back to the store for
// terminal orders. It returns the index in active, or -1.
func (q *Queue) lookup(ctx context.Context, tq *tenantQueue, id string) (domain.Order, int, error) {
	for i := range tq.active {
		if tq.active[i].ID == id {
			return tq.active[i], i, nil
		}
	}

	sctx, cancel := q.storeContext(ctx)
	defer cancel()
	o, err := q.store.Order(sctx, tq.tenant, id)
	if err != nil {
		return domain.Order{}, -1, domain.ClassifyStoreError("load order", err)
	}
	return o, -1, nil
}

// publish swaps in a new snapshot and hands it to the notifiers.
// Caller holds tq.lock.
func (q *Queue) publish(tq *tenantQueue) {
	tq.version++
	orders := make([]domain.Order, len(tq.active))
	for i, o := range tq.active {
		orders[i] = o.Clone()
	}
	s := &Snapshot{Tenant: tq.tenant, Version: tq.version, Orders: orders}
	tq.snap.Store(s)
	q.metrics.SetQueueDepth(string(tq.tenant), len(orders))

	q.mu.Lock()
	notifiers := append([]Notifier(nil), q.notifiers...)
	q.mu.Unlock()
	for _, n := range notifiers {
		n.Notify(*s)
	}
}

// Snapshot returns tenant's active orders in position order, loading them
// from the store on first use. The result is a point-in-time copy.
func (q *Queue) Snapshot(ctx context.Context, tenant domain.TenantID) (Snapshot, error) {
	tq := q.tenantQueue(tenant)
	if s := tq.snap.Load(); s.Version > 0 {
		return s.clone(), nil
	}
	_, release, err := q.acquire(ctx, tenant)
	if err != nil {
		return Snapshot{}, err
	}
	release()
	return tq.snap.Load().clone(), nil
}

// Get returns one order, active or terminal.
func (q *Queue) Get(ctx context.Context, tenant domain.TenantID, orderID string) (domain.Order, error) {
	s, err := q.Snapshot(ctx, tenant)
	if err != nil {
		return domain.Order{}, err
	}
	if o, ok := s.Find(orderID); ok {
		return o, nil
	}

	sctx, cancel := q.storeContext(ctx)
	defer cancel()
	o, err := q.store.Order(sctx, tenant, orderID)
	if err != nil {
		return domain.Order{}, domain.ClassifyStoreError("load order", err)
	}
	return o, nil
}

// History returns the status log of one order. Every order has at least its
// queued entry, so an empty log is ORDER_NOT_FOUND.
func (q *Queue) History(ctx context.Context, tenant domain.TenantID, orderID string) ([]Transition, error) {
	sctx, cancel := q.storeContext(ctx)
	defer cancel()
	h, err := q.store.Transitions(sctx, tenant, orderID)
	if err != nil {
		return nil, domain.ClassifyStoreError("load transitions", err)
	}
	if len(h) == 0 {
		return nil, domain.NewOrderNotFound(tenant, orderID)
	}
	return h, nil
}
