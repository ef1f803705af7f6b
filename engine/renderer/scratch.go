package renderer

import (
	"fmt"
	"sync"

	"github.com/gogpu/gputypes"

	"github.com/zxgjxc/dawn-ray-tracing/engine/core"
	"github.com/zxgjxc/dawn-ray-tracing/engine/gpu"
	"github.com/zxgjxc/dawn-ray-tracing/engine/math"
)

// Acceleration structure memory must be 256-byte aligned on both APIs.
const scratchAlignment = 256

/**
 * @brief A host-visible bump allocator handing out acceleration-structure
 * memory from one large buffer. Released entries are only reclaimed when
 * the arena is reset.
 */
type ScratchArena struct {
	mu sync.Mutex

	buffer *gpu.Buffer
	memory []byte
	head   uint64
	live   int
}

func NewScratchArena(label string, size uint64, baseAddress uint64) *ScratchArena {
	return &ScratchArena{
		buffer: &gpu.Buffer{
			Label:      label,
			Size:       size,
			Usage:      gpu.BufferUsageAccelerationContainer | gputypes.BufferUsageStorage,
			GPUAddress: baseAddress,
		},
		memory: make([]byte, size),
	}
}

func (a *ScratchArena) AllocateScratch(label string, size uint64, usage gputypes.BufferUsage) (gpu.MemoryEntry, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	offset := math.AlignUp(a.head, scratchAlignment)
	if size == 0 || offset+size > a.buffer.Size {
		return gpu.MemoryEntry{}, fmt.Errorf("scratch arena %s cannot fit %d bytes for %s", a.buffer.Label, size, label)
	}
	a.head = offset + size
	a.live++
	core.LogDebug("scratch %s: %d bytes at %#x", label, size, a.buffer.GPUAddress+offset)
	return gpu.MemoryEntry{
		Buffer:  a.buffer,
		Offset:  offset,
		Size:    size,
		Address: a.buffer.GPUAddress + offset,
	}, nil
}

func (a *ScratchArena) ReleaseScratch(entry gpu.MemoryEntry) {
	a.mu.Lock()
	defer a.mu.Unlock()
	core.Assert(entry.Buffer == a.buffer, "entry of %s released to arena %s", entry.Buffer.Label, a.buffer.Label)
	a.live--
}

func (a *ScratchArena) WriteScratch(entry gpu.MemoryEntry, data []byte) error {
	if entry.Buffer != a.buffer {
		return fmt.Errorf("entry does not belong to scratch arena %s", a.buffer.Label)
	}
	if uint64(len(data)) > entry.Size {
		return fmt.Errorf("%d bytes do not fit an entry of %d bytes", len(data), entry.Size)
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	copy(a.memory[entry.Offset:], data)
	return nil
}

// Bytes returns the arena contents backing entry.
func (a *ScratchArena) Bytes(entry gpu.MemoryEntry) []byte {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]byte(nil), a.memory[entry.Offset:entry.Offset+entry.Size]...)
}

// Used returns the bytes handed out and the entries not yet released.
func (a *ScratchArena) Used() (uint64, int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.head, a.live
}

// Reset reclaims every entry. Nothing allocated before may still be in use.
func (a *ScratchArena) Reset() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.head = 0
	a.live = 0
	clear(a.memory)
}
