// Package position computes fractional sort keys for queue entries.
//
// A position is a float64 used only for ordering. Inserting between two
// neighbors takes their midpoint, so reordering never renumbers the queue.
// Repeated insertion at the same boundary halves the gap each time; once the
// gap drops below the allocator's epsilon (or the midpoint can no longer be
// represented strictly between the neighbors) Allocate returns
// ErrGapExhausted and the owner of the queue compacts it with Compact and
// retries.
package position

import "errors"

// Baseline is the position given to the first entry of an empty queue.
const Baseline = 1.0

// DefaultEpsilon is the minimum gap between neighbors before compaction.
const DefaultEpsilon = 1e-9

// ErrGapExhausted means the neighbors are too close to split. The caller must
// compact the queue and allocate again.
var ErrGapExhausted = errors.New("position gap exhausted")

// Allocator computes positions between neighbors.
type Allocator struct {
	epsilon float64
}

// NewAllocator returns an allocator with the given compaction threshold.
// A non-positive epsilon falls back to DefaultEpsilon.
func NewAllocator(epsilon float64) Allocator {
	if epsilon <= 0 {
		epsilon = DefaultEpsilon
	}
	return Allocator{epsilon: epsilon}
}

// Epsilon returns the compaction threshold.
func (a Allocator) Epsilon() float64 {
	return a.epsilon
}

// Allocate returns a position strictly between prev and next.
//
//   - both nil: Baseline
//   - next nil (append): prev + 1
//   - prev nil (prepend): next / 2, i.e. the midpoint against an implicit 0
//   - both set: the midpoint
func (a Allocator) Allocate(prev, next *float64) (float64, error) {
	if next == nil {
		if prev == nil {
			return Baseline, nil
		}
		return *prev + 1.0, nil
	}

	lo := 0.0
	if prev != nil {
		lo = *prev
	}
	hi := *next

	if hi-lo < a.epsilon {
		return 0, ErrGapExhausted
	}
	mid := lo + (hi-lo)/2
	if mid <= lo || mid >= hi {
		return 0, ErrGapExhausted
	}
	return mid, nil
}

// Compact returns n integer-spaced positions (1, 2, ..., n). Assigning them to
// a queue in its current sort order preserves relative order.
func Compact(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = float64(i + 1)
	}
	return out
}

// Ptr returns a pointer to p. Convenience for Allocate call sites.
func Ptr(p float64) *float64 {
	return &p
}
