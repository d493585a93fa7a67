// Package kds is the kitchen display boundary.
//
// A Dispatcher registers with the order queue as a Notifier. Every committed
// queue mutation reaches it as a position-ordered snapshot, which it projects
// into station views for in-process subscribers and for external sinks such
// as a RabbitMQ exchange. Station actions (bump, advance, reorder, edit) go
// back through the queue's public methods; the dispatcher keeps no queue
// state of its own.
//
// Thread-safety model:
//   - Notify never blocks: subscribers and sink outboxes coalesce to the
//     newest view
//   - station actions run outside any tenant lock and retry STORE_UNAVAILABLE
//     with the configured backoff
//   - Run drives sink delivery and must be called from exactly one goroutine
package kds

import (
	"context"
	"log/slog"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/roach88/galley/internal/domain"
	"github.com/roach88/galley/internal/metrics"
	"github.com/roach88/galley/internal/queue"
	"github.com/roach88/galley/internal/retry"
)

// Sink publishes station views outside the process.
type Sink interface {
	Name() string
	Publish(ctx context.Context, v View) error
}

type sinkWorker struct {
	sink Sink
	box  *outbox
}

// Dispatcher fans queue snapshots out to stations.
type Dispatcher struct {
	queue   *queue.Queue
	labeler Labeler
	retry   retry.Policy
	logger  *slog.Logger
	metrics *metrics.Metrics

	mu     sync.Mutex
	subs   map[domain.TenantID]map[int64]*Subscription
	nextID int64
	sinks  []sinkWorker
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithLabeler sets the label projection. Defaults to DefaultLabeler().
func WithLabeler(l Labeler) Option {
	return func(d *Dispatcher) { d.labeler = l }
}

// WithRetry sets the backoff for station actions and sink publishes.
func WithRetry(p retry.Policy) Option {
	return func(d *Dispatcher) { d.retry = p }
}

// WithSink adds an external sink. Views reach it once Run is started.
func WithSink(s Sink) Option {
	return func(d *Dispatcher) {
		d.sinks = append(d.sinks, sinkWorker{sink: s, box: newOutbox()})
	}
}

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(d *Dispatcher) { d.logger = l }
}

// WithMetrics counts delivered notifications.
func WithMetrics(m *metrics.Metrics) Option {
	return func(d *Dispatcher) { d.metrics = m }
}

// New creates a dispatcher and registers it with q.
func New(q *queue.Queue, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		queue:   q,
		labeler: DefaultLabeler(),
		retry:   retry.DefaultPolicy(),
		logger:  slog.Default(),
		subs:    make(map[domain.TenantID]map[int64]*Subscription),
	}
	for _, opt := range opts {
		opt(d)
	}
	if d.retry.Logger == nil {
		d.retry.Logger = d.logger
	}
	if d.retry.Metrics == nil {
		d.retry.Metrics = d.metrics
	}
	q.AddNotifier(d)
	return d
}

// Subscribe attaches a station to tenant. With statuses set, the station
// only sees orders in those statuses. The current queue state is delivered
// immediately.
func (d *Dispatcher) Subscribe(ctx context.Context, tenant domain.TenantID, statuses ...domain.Status) (*Subscription, error) {
	d.mu.Lock()
	d.nextID++
	sub := newSubscription(d.nextID, tenant, statuses)
	if d.subs[tenant] == nil {
		d.subs[tenant] = make(map[int64]*Subscription)
	}
	d.subs[tenant][sub.id] = sub
	d.mu.Unlock()

	sub.cancel = func() { d.unsubscribe(sub) }

	snap, err := d.queue.Snapshot(ctx, tenant)
	if err != nil {
		sub.Close()
		return nil, err
	}
	sub.deliver(d.labeler.Project(snap, sub.statuses...))
	d.logger.Debug("station subscribed", "tenant_id", tenant, "subscription", sub.id)
	return sub, nil
}

func (d *Dispatcher) unsubscribe(sub *Subscription) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if m := d.subs[sub.tenant]; m != nil {
		delete(m, sub.id)
		if len(m) == 0 {
			delete(d.subs, sub.tenant)
		}
	}
}

// Subscribers reports how many stations watch tenant.
func (d *Dispatcher) Subscribers(tenant domain.TenantID) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.subs[tenant])
}

// Notify implements queue.Notifier.
func (d *Dispatcher) Notify(s queue.Snapshot) {
	d.mu.Lock()
	subs := make([]*Subscription, 0, len(d.subs[s.Tenant]))
	for _, sub := range d.subs[s.Tenant] {
		subs = append(subs, sub)
	}
	sinks := d.sinks
	d.mu.Unlock()

	full := d.labeler.Project(s)
	for _, sub := range subs {
		v := full
		if len(sub.statuses) > 0 {
			v = d.labeler.Project(s, sub.statuses...)
		}
		if sub.deliver(v) {
			d.metrics.KDSNotified(string(s.Tenant), "station")
		}
	}
	for _, w := range sinks {
		w.box.put(full)
	}
}

// Run delivers views to every sink until ctx is done.
func (d *Dispatcher) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	for _, w := range d.sinks {
		g.Go(func() error {
			d.runSink(ctx, w)
			return nil
		})
	}
	return g.Wait()
}

func (d *Dispatcher) runSink(ctx context.Context, w sinkWorker) {
	defer w.box.close()
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.box.wait():
		}

		for _, v := range w.box.drain() {
			err := retry.Do(ctx, d.retry.Named("publish_"+w.sink.Name()), func(ctx context.Context) error {
				return w.sink.Publish(ctx, v)
			})
			if err != nil {
				d.logger.Error("sink publish failed",
					"sink", w.sink.Name(),
					"tenant_id", v.Tenant,
					"version", v.Version,
					"error", err,
				)
				continue
			}
			d.metrics.KDSNotified(string(v.Tenant), w.sink.Name())
		}
	}
}

// Advance moves an order to status on behalf of a station.
func (d *Dispatcher) Advance(ctx context.Context, tenant domain.TenantID, orderID string, status domain.Status) (queue.AdvanceResult, error) {
	return retry.Value(ctx, d.retry.Named("advance"), func(ctx context.Context) (queue.AdvanceResult, error) {
		return d.queue.Advance(ctx, tenant, orderID, status)
	})
}

// Bump advances an order to the next status of the kitchen flow:
// queued, in_progress, ready, completed.
func (d *Dispatcher) Bump(ctx context.Context, tenant domain.TenantID, orderID string) (queue.AdvanceResult, error) {
	o, err := retry.Value(ctx, d.retry.Named("get_order"), func(ctx context.Context) (domain.Order, error) {
		return d.queue.Get(ctx, tenant, orderID)
	})
	if err != nil {
		return queue.AdvanceResult{}, err
	}
	next, ok := nextStatus[o.Status]
	if !ok {
		return queue.AdvanceResult{}, domain.NewImmutableOrder(tenant, orderID, o.Status)
	}
	return d.Advance(ctx, tenant, orderID, next)
}

var nextStatus = map[domain.Status]domain.Status{
	domain.StatusQueued:     domain.StatusInProgress,
	domain.StatusInProgress: domain.StatusReady,
	domain.StatusReady:      domain.StatusCompleted,
}

// Reorder moves an order between two neighbors on behalf of a station.
func (d *Dispatcher) Reorder(ctx context.Context, tenant domain.TenantID, orderID, prevID, nextID string) (domain.Order, error) {
	return retry.Value(ctx, d.retry.Named("reorder"), func(ctx context.Context) (domain.Order, error) {
		return d.queue.Reorder(ctx, tenant, orderID, prevID, nextID)
	})
}

// Cancel cancels an order on behalf of a station.
func (d *Dispatcher) Cancel(ctx context.Context, tenant domain.TenantID, orderID string) (domain.Order, error) {
	return retry.Value(ctx, d.retry.Named("cancel"), func(ctx context.Context) (domain.Order, error) {
		return d.queue.Cancel(ctx, tenant, orderID)
	})
}

// Edit replaces an order's lines on behalf of a station.
func (d *Dispatcher) Edit(ctx context.Context, tenant domain.TenantID, orderID string, lines []domain.OrderLine) (domain.Order, error) {
	return retry.Value(ctx, d.retry.Named("edit"), func(ctx context.Context) (domain.Order, error) {
		return d.queue.Edit(ctx, tenant, orderID, lines)
	})
}

// View returns the current projection of tenant's queue.
func (d *Dispatcher) View(ctx context.Context, tenant domain.TenantID, statuses ...domain.Status) (View, error) {
	snap, err := retry.Value(ctx, d.retry.Named("snapshot"), func(ctx context.Context) (queue.Snapshot, error) {
		return d.queue.Snapshot(ctx, tenant)
	})
	if err != nil {
		return View{}, err
	}
	return d.labeler.Project(snap, statuses...), nil
}
