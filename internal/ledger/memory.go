package ledger

import (
	"context"
	"sort"
	"sync"

	"github.com/roach88/galley/internal/domain"
)

type stockKey struct {
	tenant domain.TenantID
	id     string
}

// MemoryStore is an in-process StockStore. A single mutex makes each batch
// atomic.
type MemoryStore struct {
	mu        sync.Mutex
	stock     map[stockKey]float64
	applied   map[string]bool
	movements []Movement
	seq       int64
}

var (
	_ StockStore    = (*MemoryStore)(nil)
	_ HistoryReader = (*MemoryStore)(nil)
)

// NewMemoryStore seeds stock from inventory rows.
func NewMemoryStore(items []domain.InventoryItem) *MemoryStore {
	s := &MemoryStore{
		stock:   make(map[stockKey]float64, len(items)),
		applied: make(map[string]bool),
	}
	for _, it := range items {
		s.stock[stockKey{it.TenantID, it.ID}] = it.Stock
	}
	return s
}

// ApplyDeductions implements StockStore.
func (s *MemoryStore) ApplyDeductions(ctx context.Context, req ApplyRequest) (Outcome, error) {
	if err := ctx.Err(); err != nil {
		return Outcome{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if req.Key != "" && s.applied[req.Key] {
		return Outcome{Applied: false}, nil
	}

	// Validate the whole batch before touching any row.
	next := make(map[stockKey]float64, len(req.Deductions))
	for _, d := range req.Deductions {
		k := stockKey{req.Tenant, d.ItemID}
		cur, ok := next[k]
		if !ok {
			cur, ok = s.stock[k]
			if !ok {
				return Outcome{}, domain.NewMissingStockRow(req.Tenant, d.ItemID)
			}
		}
		if !req.AllowNegative && cur < d.Quantity {
			return Outcome{}, domain.NewInsufficientStock(req.Tenant, d.ItemID, cur, d.Quantity)
		}
		next[k] = cur - d.Quantity
	}

	levels := make([]domain.StockLevel, 0, len(req.Deductions))
	for _, d := range req.Deductions {
		k := stockKey{req.Tenant, d.ItemID}
		s.stock[k] -= d.Quantity
		s.seq++
		s.movements = append(s.movements, Movement{
			Tenant:     req.Tenant,
			ItemID:     d.ItemID,
			OrderID:    req.OrderID,
			Delta:      -d.Quantity,
			StockAfter: s.stock[k],
			Seq:        s.seq,
		})
		levels = append(levels, domain.StockLevel{ItemID: d.ItemID, Stock: s.stock[k]})
	}
	if req.Key != "" {
		s.applied[req.Key] = true
	}
	return Outcome{Applied: true, Levels: levels}, nil
}

// StockLevels implements StockStore. Unknown ids are omitted. With no ids it
// returns every item of the tenant. Results are sorted by item id.
func (s *MemoryStore) StockLevels(ctx context.Context, tenant domain.TenantID, itemIDs []string) ([]domain.StockLevel, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	out := []domain.StockLevel{}
	if len(itemIDs) == 0 {
		for k, v := range s.stock {
			if k.tenant == tenant {
				out = append(out, domain.StockLevel{ItemID: k.id, Stock: v})
			}
		}
	} else {
		for _, id := range itemIDs {
			if v, ok := s.stock[stockKey{tenant, id}]; ok {
				out = append(out, domain.StockLevel{ItemID: id, Stock: v})
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ItemID < out[j].ItemID })
	return out, nil
}

// Movements returns the tenant's stock history in application order.
func (s *MemoryStore) Movements(tenant domain.TenantID) []Movement {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []Movement{}
	for _, m := range s.movements {
		if m.Tenant == tenant {
			out = append(out, m)
		}
	}
	return out
}

// History implements HistoryReader.
func (s *MemoryStore) History(ctx context.Context, tenant domain.TenantID, itemID string) ([]Movement, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	out := []Movement{}
	for _, m := range s.Movements(tenant) {
		if itemID == "" || m.ItemID == itemID {
			out = append(out, m)
		}
	}
	return out, nil
}
