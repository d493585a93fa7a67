package queue

import (
	"sort"

	"github.com/roach88/galley/internal/domain"
)

// insert places o in position order. Caller holds tq.lock.
func (tq *tenantQueue) insert(o domain.Order) {
	i := sort.Search(len(tq.active), func(i int) bool {
		a := tq.active[i]
		if a.Position != o.Position {
			return a.Position > o.Position
		}
		return a.ID > o.ID
	})
	tq.active = append(tq.active, domain.Order{})
	copy(tq.active[i+1:], tq.active[i:])
	tq.active[i] = o
}

// remove drops the order at index i. Caller holds tq.lock.
func (tq *tenantQueue) remove(i int) {
	tq.active = append(tq.active[:i], tq.active[i+1:]...)
}

// indexExcept returns the indexes of every active order but id, in order.
func (tq *tenantQueue) indexExcept(id string) []int {
	out := make([]int, 0, len(tq.active))
	for i, o := range tq.active {
		if o.ID != id {
			out = append(out, i)
		}
	}
	return out
}
