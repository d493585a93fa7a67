package kds

import (
	"sync"

	"github.com/roach88/galley/internal/domain"
)

// outbox buffers views for one sink between Notify and the sink's worker.
//
// Only the newest view per tenant is kept: a sink that falls behind skips
// intermediate versions instead of replaying them. Tenants drain in the order
// they first became pending.
//
// The outbox uses a channel for signaling so the worker can wait on it
// together with its context.
type outbox struct {
	mu      sync.Mutex
	pending map[domain.TenantID]View
	order   []domain.TenantID
	closed  bool
	signal  chan struct{} // buffered, size 1
}

func newOutbox() *outbox {
	return &outbox{
		pending: make(map[domain.TenantID]View),
		signal:  make(chan struct{}, 1),
	}
}

// put stores v, replacing any older pending view of the same tenant.
// Returns false if the outbox is closed.
func (o *outbox) put(v View) bool {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.closed {
		return false
	}
	prev, ok := o.pending[v.Tenant]
	if !ok {
		o.order = append(o.order, v.Tenant)
	}
	if !ok || v.Version >= prev.Version {
		o.pending[v.Tenant] = v
	}

	// Non-blocking: the size-1 buffer coalesces signals.
	select {
	case o.signal <- struct{}{}:
	default:
	}
	return true
}

// drain removes and returns every pending view.
func (o *outbox) drain() []View {
	o.mu.Lock()
	defer o.mu.Unlock()

	out := make([]View, 0, len(o.order))
	for _, t := range o.order {
		out = append(out, o.pending[t])
	}
	o.pending = make(map[domain.TenantID]View)
	o.order = o.order[:0]
	return out
}

// wait returns the signal channel. It fires at least once after each put.
func (o *outbox) wait() <-chan struct{} {
	return o.signal
}

// close rejects further puts. Pending views can still be drained.
func (o *outbox) close() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.closed = true
}

// len reports the number of pending tenants.
func (o *outbox) len() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.order)
}
