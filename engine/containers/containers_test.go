package containers

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRingQueueFIFO(t *testing.T) {
	rq := NewRingQueue[int](3)
	require.True(t, rq.IsEmpty())

	for i := 1; i <= 3; i++ {
		require.NoError(t, rq.Enqueue(i))
	}
	assert.True(t, rq.IsFull())
	assert.ErrorIs(t, rq.Enqueue(4), ErrQueueFull)

	head, err := rq.Peek()
	require.NoError(t, err)
	assert.Equal(t, 1, head)

	v, err := rq.Dequeue()
	require.NoError(t, err)
	assert.Equal(t, 1, v)

	require.NoError(t, rq.Enqueue(4))
	var got []int
	for !rq.IsEmpty() {
		v, err := rq.Dequeue()
		require.NoError(t, err)
		got = append(got, v)
	}
	assert.Equal(t, []int{2, 3, 4}, got)

	_, err = rq.Dequeue()
	assert.ErrorIs(t, err, ErrQueueEmpty)
	_, err = rq.Peek()
	assert.ErrorIs(t, err, ErrQueueEmpty)
}

func TestLockPoolSerializesGroup(t *testing.T) {
	lp := NewLockPool()
	counter := 0

	var wg sync.WaitGroup
	for i := 0; i < 64; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = lp.SafeCall(DescriptorAllocation, func() error {
				counter++
				return nil
			})
		}()
	}
	wg.Wait()
	assert.Equal(t, 64, counter)
}

func TestLockPoolGroupsAreIndependent(t *testing.T) {
	lp := NewLockPool()
	err := lp.SafeCall(DescriptorAllocation, func() error {
		// A different group must not block while the first is held.
		return lp.SafeCall(AccelerationManagement, func() error { return nil })
	})
	assert.NoError(t, err)
}

func TestBitSet32(t *testing.T) {
	var b BitSet32
	assert.False(t, b.Any())

	b.Set(0)
	b.Set(3)
	b.Set(31)
	assert.True(t, b.Has(3))
	assert.False(t, b.Has(2))
	assert.Equal(t, 3, b.Count())
	assert.Equal(t, []uint32{0, 3, 31}, b.Indices())
	assert.Equal(t, uint32(32), b.HighestSet())

	b.Clear(31)
	assert.Equal(t, uint32(4), b.HighestSet())

	assert.Equal(t, BitSet32(0b111), MaskUpTo(3))
	assert.Equal(t, BitSet32(0), MaskUpTo(0))
	assert.Equal(t, BitSet32(^uint32(0)), MaskUpTo(32))

	b.Reset()
	assert.Equal(t, uint32(0), b.HighestSet())
}
