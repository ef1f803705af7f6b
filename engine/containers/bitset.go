package containers

import "math/bits"

// BitSet32 is a small fixed-width set of indices in [0, 32).
type BitSet32 uint32

func (b BitSet32) Has(i uint32) bool {
	return b&(1<<i) != 0
}

func (b *BitSet32) Set(i uint32) {
	*b |= 1 << i
}

func (b *BitSet32) Clear(i uint32) {
	*b &^= 1 << i
}

func (b *BitSet32) Reset() {
	*b = 0
}

func (b BitSet32) Any() bool {
	return b != 0
}

func (b BitSet32) Count() int {
	return bits.OnesCount32(uint32(b))
}

// Each calls fn for every set index in ascending order.
func (b BitSet32) Each(fn func(i uint32)) {
	for v := uint32(b); v != 0; v &= v - 1 {
		fn(uint32(bits.TrailingZeros32(v)))
	}
}

// Indices returns the set indices in ascending order.
func (b BitSet32) Indices() []uint32 {
	out := make([]uint32, 0, b.Count())
	b.Each(func(i uint32) { out = append(out, i) })
	return out
}

// MaskUpTo returns the set with indices [0, n) present.
func MaskUpTo(n uint32) BitSet32 {
	if n >= 32 {
		return BitSet32(^uint32(0))
	}
	return BitSet32(1<<n - 1)
}

// HighestSet returns one past the highest set index, or zero for an empty set.
func (b BitSet32) HighestSet() uint32 {
	return uint32(32 - bits.LeadingZeros32(uint32(b)))
}
