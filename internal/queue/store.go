package queue

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/roach88/galley/internal/domain"
)

// Transition is one row of an order's status history.
type Transition struct {
	TenantID domain.TenantID `json:"tenant_id"`
	OrderID  string          `json:"order_id"`

	// From is empty for the initial queued entry.
	From domain.Status `json:"from,omitempty"`
	To   domain.Status `json:"to"`

	Seq int64     `json:"seq"`
	At  time.Time `json:"at"`

	// Key uniquely identifies the transition; stores reject a repeated key.
	Key string `json:"key"`
}

// Store persists orders. Every method is scoped to one tenant.
//
// SaveOrder upserts the order and, when tr is non-nil, appends tr to the
// status log in the same unit of work. SavePositions rewrites positions of
// the listed orders atomically (compaction).
type Store interface {
	ActiveOrders(ctx context.Context, tenant domain.TenantID) ([]domain.Order, error)
	Order(ctx context.Context, tenant domain.TenantID, id string) (domain.Order, error)
	SaveOrder(ctx context.Context, o domain.Order, tr *Transition) error
	SavePositions(ctx context.Context, tenant domain.TenantID, positions map[string]float64) error
	Transitions(ctx context.Context, tenant domain.TenantID, orderID string) ([]Transition, error)
}

type orderKey struct {
	tenant domain.TenantID
	id     string
}

// MemoryStore is a Store held in process memory.
//
// Thread-safety: all methods are safe for concurrent use via internal mutex.
type MemoryStore struct {
	mu      sync.Mutex
	orders  map[orderKey]domain.Order
	history map[orderKey][]Transition
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		orders:  make(map[orderKey]domain.Order),
		history: make(map[orderKey][]Transition),
	}
}

// ActiveOrders returns non-terminal orders sorted by position.
func (s *MemoryStore) ActiveOrders(ctx context.Context, tenant domain.TenantID) ([]domain.Order, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	out := []domain.Order{}
	for k, o := range s.orders {
		if k.tenant == tenant && o.Active() {
			out = append(out, o.Clone())
		}
	}
	sortByPosition(out)
	return out, nil
}

// Order returns one order or ORDER_NOT_FOUND.
func (s *MemoryStore) Order(ctx context.Context, tenant domain.TenantID, id string) (domain.Order, error) {
	if err := ctx.Err(); err != nil {
		return domain.Order{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	o, ok := s.orders[orderKey{tenant, id}]
	if !ok {
		return domain.Order{}, domain.NewOrderNotFound(tenant, id)
	}
	return o.Clone(), nil
}

// SaveOrder implements Store.
func (s *MemoryStore) SaveOrder(ctx context.Context, o domain.Order, tr *Transition) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	k := orderKey{o.TenantID, o.ID}
	s.orders[k] = o.Clone()
	if tr != nil {
		s.history[k] = append(s.history[k], *tr)
	}
	return nil
}

// SavePositions implements Store. Unknown ids are ignored.
func (s *MemoryStore) SavePositions(ctx context.Context, tenant domain.TenantID, positions map[string]float64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	for id, p := range positions {
		k := orderKey{tenant, id}
		if o, ok := s.orders[k]; ok {
			o.Position = p
			s.orders[k] = o
		}
	}
	return nil
}

// Transitions returns the status log of one order, oldest first.
func (s *MemoryStore) Transitions(ctx context.Context, tenant domain.TenantID, orderID string) ([]Transition, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	h := s.history[orderKey{tenant, orderID}]
	out := make([]Transition, len(h))
	copy(out, h)
	return out, nil
}

// sortByPosition orders by position, breaking ties by id.
func sortByPosition(orders []domain.Order) {
	sort.SliceStable(orders, func(i, j int) bool {
		if orders[i].Position != orders[j].Position {
			return orders[i].Position < orders[j].Position
		}
		return orders[i].ID < orders[j].ID
	})
}
