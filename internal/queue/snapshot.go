package queue

import "github.com/roach88/galley/internal/domain"

// Snapshot is a consistent view of one tenant's active orders, sorted by
// position ascending. Version increases with every published mutation.
type Snapshot struct {
	Tenant  domain.TenantID `json:"tenant_id"`
	Version int64           `json:"version"`
	Orders  []domain.Order  `json:"orders"`
}

// Find returns the active order with the given id.
func (s Snapshot) Find(id string) (domain.Order, bool) {
	for _, o := range s.Orders {
		if o.ID == id {
			return o.Clone(), true
		}
	}
	return domain.Order{}, false
}

// IDs returns order ids in queue order.
func (s Snapshot) IDs() []string {
	out := make([]string, len(s.Orders))
	for i, o := range s.Orders {
		out[i] = o.ID
	}
	return out
}

func (s Snapshot) clone() Snapshot {
	out := s
	out.Orders = make([]domain.Order, len(s.Orders))
	for i, o := range s.Orders {
		out.Orders[i] = o.Clone()
	}
	return out
}
