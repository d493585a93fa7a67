package kds

import (
	"sync"

	"github.com/roach88/galley/internal/domain"
)

// Subscription delivers station views for one tenant.
//
// C holds at most one view. When a newer view arrives before the station has
// read the previous one, the older view is replaced, so a slow station always
// catches up to the latest queue state.
type Subscription struct {
	C <-chan View

	id       int64
	tenant   domain.TenantID
	statuses []domain.Status
	ch       chan View
	cancel   func()

	mu     sync.Mutex
	closed bool
	last   int64
}

func newSubscription(id int64, tenant domain.TenantID, statuses []domain.Status) *Subscription {
	ch := make(chan View, 1)
	return &Subscription{
		C:        ch,
		id:       id,
		tenant:   tenant,
		statuses: append([]domain.Status(nil), statuses...),
		ch:       ch,
	}
}

// Tenant returns the subscribed tenant.
func (s *Subscription) Tenant() domain.TenantID {
	return s.tenant
}

// deliver hands v to the station without blocking. Views older than the
// last delivered one are dropped.
func (s *Subscription) deliver(v View) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed || v.Version < s.last {
		return false
	}
	s.last = v.Version
	select {
	case <-s.ch:
	default:
	}
	select {
	case s.ch <- v:
	default:
	}
	return true
}

// Close detaches the subscription and closes C.
func (s *Subscription) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	close(s.ch)
	s.mu.Unlock()

	if s.cancel != nil {
		s.cancel()
	}
}
