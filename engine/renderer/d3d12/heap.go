package d3d12

import (
	"fmt"

	"github.com/zxgjxc/dawn-ray-tracing/engine/containers"
	"github.com/zxgjxc/dawn-ray-tracing/engine/core"
	"github.com/zxgjxc/dawn-ray-tracing/engine/gpu"
)

type DescriptorHeapType uint32

const (
	DescriptorHeapTypeCbvSrvUav DescriptorHeapType = 0
	DescriptorHeapTypeSampler   DescriptorHeapType = 1
	DescriptorHeapTypeRTV       DescriptorHeapType = 2
	DescriptorHeapTypeDSV       DescriptorHeapType = 3
)

func (t DescriptorHeapType) String() string {
	switch t {
	case DescriptorHeapTypeCbvSrvUav:
		return "cbv-srv-uav"
	case DescriptorHeapTypeSampler:
		return "sampler"
	case DescriptorHeapTypeRTV:
		return "rtv"
	case DescriptorHeapTypeDSV:
		return "dsv"
	}
	return fmt.Sprintf("DescriptorHeapType(%d)", uint32(t))
}

// DescriptorHeap is an ID3D12DescriptorHeap and the handles of its first
// slot. GPUStart is zero for heaps that are not shader visible.
type DescriptorHeap struct {
	Label    string
	Type     DescriptorHeapType
	Capacity uint32
	CPUStart CPUDescriptorHandle
	GPUStart GPUDescriptorHandle
	Native   interface{}
}

// DescriptorDevice is the part of ID3D12Device used for descriptor
// management.
type DescriptorDevice interface {
	CreateDescriptorHeap(heapType DescriptorHeapType, capacity uint32, shaderVisible bool) (*DescriptorHeap, error)
	DescriptorHandleIncrementSize(heapType DescriptorHeapType) uint32
	CopyDescriptorsSimple(count uint32, dst, src CPUDescriptorHandle, heapType DescriptorHeapType)
	CreateRenderTargetView(view *gpu.TextureView, dst CPUDescriptorHandle)
	CreateDepthStencilView(view *gpu.TextureView, dst CPUDescriptorHandle)
}

// SerialSource reports the serial of the submission being recorded and the
// last one the GPU finished.
type SerialSource interface {
	PendingSerial() uint64
	CompletedSerial() uint64
}

// GPUDescriptorHeapAllocation is a range of a shader-visible heap. It stays
// usable while its heap is current and its submission is still pending.
type GPUDescriptorHeapAllocation struct {
	BaseDescriptor  GPUDescriptorHandle
	LastUsageSerial uint64
	HeapSerial      uint64
}

type retiredHeap struct {
	heap   *DescriptorHeap
	serial uint64
}

const retiredHeapPoolSize = 8

/**
 * @brief Bump allocator over one shader-visible heap at a time. When the
 * heap is full, allocation fails and the caller switches to another heap;
 * the old one is recycled once the GPU is done with it.
 */
type ShaderVisibleDescriptorAllocator struct {
	heapType      DescriptorHeapType
	capacity      uint32
	incrementSize uint32
	device        DescriptorDevice
	serials       SerialSource
	locks         *containers.LockPool

	heap       *DescriptorHeap
	heapSerial uint64
	offset     uint32
	pool       *containers.RingQueue[retiredHeap]
}

func NewShaderVisibleDescriptorAllocator(device DescriptorDevice, serials SerialSource, heapType DescriptorHeapType, capacity uint32) (*ShaderVisibleDescriptorAllocator, error) {
	core.Assert(heapType == DescriptorHeapTypeCbvSrvUav || heapType == DescriptorHeapTypeSampler,
		"%s heaps cannot be shader visible", heapType)
	a := &ShaderVisibleDescriptorAllocator{
		heapType:      heapType,
		capacity:      capacity,
		incrementSize: device.DescriptorHandleIncrementSize(heapType),
		device:        device,
		serials:       serials,
		locks:         gpu.SharedLocks(),
		pool:          containers.NewRingQueue[retiredHeap](retiredHeapPoolSize),
	}
	if err := a.AllocateAndSwitchShaderVisibleHeap(); err != nil {
		return nil, err
	}
	return a, nil
}

// AllocateGPUDescriptors reserves count consecutive descriptors. It reports
// false when the current heap has no room left, which is not an error.
func (a *ShaderVisibleDescriptorAllocator) AllocateGPUDescriptors(count uint32) (CPUDescriptorHandle, GPUDescriptorHeapAllocation, bool) {
	var cpu CPUDescriptorHandle
	var alloc GPUDescriptorHeapAllocation
	ok := false
	_ = a.locks.SafeCall(containers.DescriptorAllocation, func() error {
		if count > a.capacity-a.offset {
			return nil
		}
		cpu = a.heap.CPUStart.Offset(a.offset, a.incrementSize)
		alloc = GPUDescriptorHeapAllocation{
			BaseDescriptor:  a.heap.GPUStart.Offset(a.offset, a.incrementSize),
			LastUsageSerial: a.serials.PendingSerial(),
			HeapSerial:      a.heapSerial,
		}
		a.offset += count
		ok = true
		return nil
	})
	return cpu, alloc, ok
}

/**
 * @brief Retires the current heap and makes a fresh one current. A retired
 * heap is reused once the submission that last used it has completed,
 * otherwise a new heap is created.
 */
func (a *ShaderVisibleDescriptorAllocator) AllocateAndSwitchShaderVisibleHeap() error {
	return a.locks.SafeCall(containers.DescriptorAllocation, func() error {
		var next *DescriptorHeap
		if front, err := a.pool.Peek(); err == nil && front.serial <= a.serials.CompletedSerial() {
			_, _ = a.pool.Dequeue()
			next = front.heap
		}
		if next == nil {
			heap, err := a.device.CreateDescriptorHeap(a.heapType, a.capacity, true)
			if err != nil {
				return core.NewDeviceError("CreateDescriptorHeap", err)
			}
			next = heap
		}

		rotated := a.heap != nil
		if rotated {
			a.retire(retiredHeap{heap: a.heap, serial: a.serials.PendingSerial()})
			core.Metrics().HeapRotations.Add(1)
		}
		a.heap = next
		a.offset = 0
		a.heapSerial++
		if rotated {
			core.EventFire(core.EVENT_CODE_DESCRIPTOR_HEAP_SWITCHED, a, core.EventContext{
				Label:  a.heapType.String(),
				Serial: a.heapSerial,
			})
		}
		core.LogDebug("switched %s shader-visible heap to %s (serial %d, %d retired)",
			a.heapType, next.Label, a.heapSerial, a.pool.Len())
		return nil
	})
}

func (a *ShaderVisibleDescriptorAllocator) retire(h retiredHeap) {
	if a.pool.IsFull() {
		grown := containers.NewRingQueue[retiredHeap](a.pool.Len() * 2)
		for !a.pool.IsEmpty() {
			v, _ := a.pool.Dequeue()
			_ = grown.Enqueue(v)
		}
		a.pool = grown
	}
	_ = a.pool.Enqueue(h)
}

// IsAllocationStillValid reports whether alloc lives in the current heap
// and belongs to a submission that has not completed.
func (a *ShaderVisibleDescriptorAllocator) IsAllocationStillValid(alloc GPUDescriptorHeapAllocation) bool {
	valid := false
	_ = a.locks.SafeCall(containers.DescriptorAllocation, func() error {
		valid = alloc.LastUsageSerial > a.serials.CompletedSerial() && alloc.HeapSerial == a.heapSerial
		return nil
	})
	return valid
}

func (a *ShaderVisibleDescriptorAllocator) ShaderVisibleHeap() *DescriptorHeap {
	heap, _ := a.CurrentHeap()
	return heap
}

// CurrentHeap returns the current heap and its serial, which changes with
// every switch.
func (a *ShaderVisibleDescriptorAllocator) CurrentHeap() (*DescriptorHeap, uint64) {
	var heap *DescriptorHeap
	var serial uint64
	_ = a.locks.SafeCall(containers.DescriptorAllocation, func() error {
		heap, serial = a.heap, a.heapSerial
		return nil
	})
	return heap, serial
}

func (a *ShaderVisibleDescriptorAllocator) HeapType() DescriptorHeapType {
	return a.heapType
}

func (a *ShaderVisibleDescriptorAllocator) Capacity() uint32 {
	return a.capacity
}

// StagingDescriptorAllocator hands out CPU-only descriptors in fixed size
// heaps. Render target views are staged per recording and released with
// Reset; bind group descriptors live until the device goes away.
// It is not safe for concurrent use.
type StagingDescriptorAllocator struct {
	heapType      DescriptorHeapType
	heapSize      uint32
	incrementSize uint32
	device        DescriptorDevice

	heaps   []*DescriptorHeap
	current int
	offset  uint32
}

func NewStagingDescriptorAllocator(device DescriptorDevice, heapType DescriptorHeapType, heapSize uint32) *StagingDescriptorAllocator {
	return &StagingDescriptorAllocator{
		heapType:      heapType,
		heapSize:      heapSize,
		incrementSize: device.DescriptorHandleIncrementSize(heapType),
		device:        device,
		current:       -1,
	}
}

func (s *StagingDescriptorAllocator) IncrementSize() uint32 {
	return s.incrementSize
}

// Allocate returns the first of count consecutive descriptors.
func (s *StagingDescriptorAllocator) Allocate(count uint32) (CPUDescriptorHandle, error) {
	core.Assert(count <= s.heapSize, "%d %s descriptors do not fit a staging heap of %d", count, s.heapType, s.heapSize)
	if s.current < 0 || count > s.heapSize-s.offset {
		s.current++
		if s.current == len(s.heaps) {
			heap, err := s.device.CreateDescriptorHeap(s.heapType, s.heapSize, false)
			if err != nil {
				return CPUDescriptorHandle{}, core.NewDeviceError("CreateDescriptorHeap", err)
			}
			s.heaps = append(s.heaps, heap)
		}
		s.offset = 0
	}
	handle := s.heaps[s.current].CPUStart.Offset(s.offset, s.incrementSize)
	s.offset += count
	return handle, nil
}

// Reset makes every heap available again, keeping them alive.
func (s *StagingDescriptorAllocator) Reset() {
	s.current = -1
	s.offset = 0
}
