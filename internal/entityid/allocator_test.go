package entityid

import (
	"math"
	"math/rand"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// checkInvariants asserts the free set is sorted, disjoint, non-adjacent
// and within range.
func checkInvariants(t *testing.T, a *Allocator) {
	t.Helper()
	ivs := a.Intervals()
	for i, iv := range ivs {
		require.LessOrEqual(t, iv.Start, iv.End)
		require.GreaterOrEqual(t, iv.Start, a.min)
		require.LessOrEqual(t, iv.End, a.max)
		if i > 0 {
			prev := ivs[i-1]
			require.Greater(t, int64(iv.Start), int64(prev.End)+1, "intervals %v and %v overlap or touch", prev, iv)
		}
	}
}

func TestNew_FullRange(t *testing.T) {
	a := New()
	assert.Equal(t, []Interval{{Start: 0, End: math.MaxInt32}}, a.Intervals())
	assert.Equal(t, int64(math.MaxInt32)+1, a.FreeCount())
	assert.Zero(t, a.InUse())
}

func TestAcquire_LowestFirst(t *testing.T) {
	a := New()
	for want := int32(0); want < 5; want++ {
		got, err := a.Acquire()
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
	assert.Equal(t, []Interval{{Start: 5, End: math.MaxInt32}}, a.Intervals())
}

func TestRelease_ReusesLowest(t *testing.T) {
	a := New()
	for i := 0; i < 10; i++ {
		_, err := a.Acquire()
		require.NoError(t, err)
	}
	require.NoError(t, a.Release(7))
	require.NoError(t, a.Release(3))

	got, err := a.Acquire()
	require.NoError(t, err)
	assert.Equal(t, int32(3), got)

	got, err = a.Acquire()
	require.NoError(t, err)
	assert.Equal(t, int32(7), got)

	got, err = a.Acquire()
	require.NoError(t, err)
	assert.Equal(t, int32(10), got)
}

func TestRelease_MergesNeighbours(t *testing.T) {
	a := NewRange(0, 9)
	for i := 0; i < 10; i++ {
		_, err := a.Acquire()
		require.NoError(t, err)
	}

	require.NoError(t, a.Release(2))
	require.NoError(t, a.Release(4))
	assert.Equal(t, []Interval{{2, 2}, {4, 4}}, a.Intervals())

	// 3 bridges both sides.
	require.NoError(t, a.Release(3))
	assert.Equal(t, []Interval{{2, 4}}, a.Intervals())

	require.NoError(t, a.Release(1))
	require.NoError(t, a.Release(5))
	assert.Equal(t, []Interval{{1, 5}}, a.Intervals())

	require.NoError(t, a.Release(9))
	require.NoError(t, a.Release(0))
	assert.Equal(t, []Interval{{0, 5}, {9, 9}}, a.Intervals())
	checkInvariants(t, a)
}

func TestRelease_AlreadyFree(t *testing.T) {
	a := NewRange(0, 9)
	_, err := a.Acquire()
	require.NoError(t, err)

	require.NoError(t, a.Release(5))
	assert.Equal(t, []Interval{{1, 9}}, a.Intervals())

	require.NoError(t, a.Release(0))
	require.NoError(t, a.Release(0))
	assert.Equal(t, []Interval{{0, 9}}, a.Intervals())
}

func TestRelease_OutOfRange(t *testing.T) {
	a := NewRange(10, 20)
	assert.ErrorIs(t, a.Release(9), ErrOutOfRange)
	assert.ErrorIs(t, a.Release(21), ErrOutOfRange)
	assert.ErrorIs(t, New().Release(-1), ErrOutOfRange)
}

func TestAcquire_Exhausted(t *testing.T) {
	a := NewRange(0, 2)
	for i := 0; i < 3; i++ {
		_, err := a.Acquire()
		require.NoError(t, err)
	}

	_, err := a.Acquire()
	require.ErrorIs(t, err, ErrExhausted)
	assert.Equal(t, "resource exhausted", err.Error())
	assert.Empty(t, a.Intervals())

	require.NoError(t, a.Release(1))
	got, err := a.Acquire()
	require.NoError(t, err)
	assert.Equal(t, int32(1), got)

	_, err = a.Acquire()
	assert.ErrorIs(t, err, ErrExhausted)
}

func TestAllocator_UpperBound(t *testing.T) {
	a := NewRange(math.MaxInt32-1, math.MaxInt32)
	x, err := a.Acquire()
	require.NoError(t, err)
	y, err := a.Acquire()
	require.NoError(t, err)
	assert.Equal(t, int32(math.MaxInt32), y)

	require.NoError(t, a.Release(y))
	require.NoError(t, a.Release(x))
	assert.Equal(t, []Interval{{math.MaxInt32 - 1, math.MaxInt32}}, a.Intervals())
}

func TestAllocator_RandomizedInvariants(t *testing.T) {
	a := NewRange(0, 199)
	rng := rand.New(rand.NewSource(1))
	held := map[int32]bool{}

	for step := 0; step < 5000; step++ {
		if rng.Intn(2) == 0 {
			id, err := a.Acquire()
			if len(held) == 200 {
				require.ErrorIs(t, err, ErrExhausted)
				continue
			}
			require.NoError(t, err)
			require.False(t, held[id], "id %d handed out twice", id)
			held[id] = true
		} else {
			id := int32(rng.Intn(200))
			require.NoError(t, a.Release(id))
			delete(held, id)
		}
		if step%100 == 0 {
			checkInvariants(t, a)
			assert.Equal(t, int64(len(held)), a.InUse())
		}
	}
	checkInvariants(t, a)
}

func TestAllocator_ConcurrentDistinct(t *testing.T) {
	a := New()
	const workers, perWorker = 8, 500

	var mu sync.Mutex
	seen := make(map[int32]bool, workers*perWorker)
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perWorker; i++ {
				id, err := a.Acquire()
				if !assert.NoError(t, err) {
					return
				}
				mu.Lock()
				assert.False(t, seen[id])
				seen[id] = true
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Len(t, seen, workers*perWorker)
	assert.Equal(t, []Interval{{Start: workers * perWorker, End: math.MaxInt32}}, a.Intervals())
}
