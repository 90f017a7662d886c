// Package entityid hands out process-unique entity ids. Free ids are kept as
// an ordered set of disjoint, non-adjacent intervals so the pool costs
// memory proportional to fragmentation rather than to its size.
package entityid

import (
	"errors"
	"fmt"
	"math"
	"sync"

	"github.com/google/btree"
)

var (
	// ErrExhausted is returned when every id in the pool is in use.
	ErrExhausted = errors.New("resource exhausted")
	// ErrOutOfRange is returned when releasing an id the pool never owned.
	ErrOutOfRange = errors.New("id outside allocator range")
)

// Interval is an inclusive range of free ids.
type Interval struct {
	Start int32
	End   int32
}

// Len returns the number of ids in the interval.
func (iv Interval) Len() int64 {
	return int64(iv.End) - int64(iv.Start) + 1
}

func lessByStart(a, b Interval) bool {
	return a.Start < b.Start
}

// Allocator is safe for concurrent use.
type Allocator struct {
	mu   sync.Mutex
	min  int32
	max  int32
	free *btree.BTreeG[Interval]
}

// New creates an allocator over [0, math.MaxInt32].
func New() *Allocator {
	return NewRange(0, math.MaxInt32)
}

// NewRange creates an allocator over the inclusive range [min, max].
func NewRange(min, max int32) *Allocator {
	if min > max {
		panic(fmt.Sprintf("entityid: empty range [%d, %d]", min, max))
	}
	a := &Allocator{
		min:  min,
		max:  max,
		free: btree.NewG(8, lessByStart),
	}
	a.free.ReplaceOrInsert(Interval{Start: min, End: max})
	return a
}

// Acquire returns the lowest free id.
func (a *Allocator) Acquire() (int32, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	lowest, ok := a.free.DeleteMin()
	if !ok {
		return 0, ErrExhausted
	}
	if lowest.Start < lowest.End {
		a.free.ReplaceOrInsert(Interval{Start: lowest.Start + 1, End: lowest.End})
	}
	return lowest.Start, nil
}

// Release returns id to the pool, merging it with adjacent free intervals.
// Releasing an id that is already free does nothing.
func (a *Allocator) Release(id int32) error {
	if id < a.min || id > a.max {
		return fmt.Errorf("%w: %d not in [%d, %d]", ErrOutOfRange, id, a.min, a.max)
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	merged := Interval{Start: id, End: id}

	// The interval starting at or below id is the only one that can contain
	// it or end right before it.
	var left Interval
	hasLeft := false
	a.free.DescendLessOrEqual(Interval{Start: id}, func(iv Interval) bool {
		left, hasLeft = iv, true
		return false
	})
	if hasLeft {
		if left.End >= id {
			return nil
		}
		if left.End == id-1 {
			a.free.Delete(left)
			merged.Start = left.Start
		}
	}

	if id < a.max {
		if right, ok := a.free.Get(Interval{Start: id + 1}); ok {
			a.free.Delete(right)
			merged.End = right.End
		}
	}

	a.free.ReplaceOrInsert(merged)
	return nil
}

// Intervals returns a snapshot of the free intervals in ascending order.
func (a *Allocator) Intervals() []Interval {
	a.mu.Lock()
	defer a.mu.Unlock()

	out := make([]Interval, 0, a.free.Len())
	a.free.Ascend(func(iv Interval) bool {
		out = append(out, iv)
		return true
	})
	return out
}

// FreeCount returns how many ids are free.
func (a *Allocator) FreeCount() int64 {
	a.mu.Lock()
	defer a.mu.Unlock()

	var n int64
	a.free.Ascend(func(iv Interval) bool {
		n += iv.Len()
		return true
	})
	return n
}

// InUse returns how many ids are currently allocated.
func (a *Allocator) InUse() int64 {
	total := int64(a.max) - int64(a.min) + 1
	return total - a.FreeCount()
}

// Fragments returns the number of free intervals.
func (a *Allocator) Fragments() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.free.Len()
}
