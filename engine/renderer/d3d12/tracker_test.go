package d3d12

import (
	"testing"

	"github.com/gogpu/gputypes"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zxgjxc/dawn-ray-tracing/engine/gpu"
)

func TestVertexBufferTrackerBatchesSlots(t *testing.T) {
	tracker := NewVertexBufferTracker()
	rec := NewRecordingCommandList(false)

	pipeline := &gpu.RenderPipeline{VertexBuffers: map[uint32]gpu.VertexBufferInfo{
		0: {ArrayStride: 12}, 1: {ArrayStride: 16}, 2: {ArrayStride: 8}, 3: {ArrayStride: 4},
	}}
	tracker.OnSetVertexBuffer(2, &gpu.Buffer{Size: 64, GPUAddress: 0x100}, 16, 0)
	tracker.OnSetVertexBuffer(5, &gpu.Buffer{Size: 64, GPUAddress: 0x200}, 0, 32)
	tracker.OnSetPipeline(pipeline)
	tracker.Apply(rec)

	require.Equal(t, []string{"IASetVertexBuffers(0,6)"}, rec.Calls)
	require.Len(t, rec.VertexBuffers, 6)
	assert.Equal(t, VertexBufferView{BufferLocation: 0x110, SizeInBytes: 48, StrideInBytes: 8}, rec.VertexBuffers[2])
	assert.Equal(t, VertexBufferView{BufferLocation: 0x200, SizeInBytes: 32}, rec.VertexBuffers[5])

	// Nothing changed since the last apply.
	tracker.Apply(rec)
	assert.Len(t, rec.Calls, 1)

	tracker.OnSetVertexBuffer(3, &gpu.Buffer{Size: 16}, 0, 0)
	tracker.Apply(rec)
	assert.Equal(t, "IASetVertexBuffers(3,1)", rec.Calls[1])
	assert.Equal(t, uint32(4), rec.VertexBuffers[6].StrideInBytes)
}

func TestIndexBufferTrackerFormatChanges(t *testing.T) {
	tracker := NewIndexBufferTracker()
	rec := NewRecordingCommandList(false)

	assert.Panics(t, func() { tracker.Apply(rec) })

	tracker.OnSetIndexBuffer(&gpu.Buffer{Size: 96, GPUAddress: 0x3000}, 32, 0)
	tracker.OnSetPipeline(&gpu.RenderPipeline{IndexFormat: gputypes.IndexFormatUint16})
	tracker.Apply(rec)
	tracker.Apply(rec)
	require.Equal(t, []string{"IASetIndexBuffer(0x3020,64,57)"}, rec.Calls)

	// The same format from another pipeline keeps the binding.
	tracker.OnSetPipeline(&gpu.RenderPipeline{IndexFormat: gputypes.IndexFormatUint16})
	tracker.Apply(rec)
	assert.Len(t, rec.Calls, 1)

	// No strip index format reads 32-bit indices.
	tracker.OnSetPipeline(&gpu.RenderPipeline{})
	tracker.Apply(rec)
	assert.Equal(t, "IASetIndexBuffer(0x3020,64,42)", rec.Calls[1])

	tracker.OnSetIndexBuffer(&gpu.Buffer{Size: 12, GPUAddress: 0x4000}, 0, 0)
	tracker.Apply(rec)
	assert.Equal(t, "IASetIndexBuffer(0x4000,12,42)", rec.Calls[2])
	assert.Equal(t, DXGIFormatR32Uint, rec.IndexBuffers[2].Format)
}

func TestPipelineLayoutRootParameters(t *testing.T) {
	g0 := gpu.NewBindGroupLayout("g0", []gpu.BindingInfo{
		{Binding: 0, Type: gpu.BindingTypeSampledTexture, Visibility: gputypes.ShaderStageFragment},
		{Binding: 1, Type: gpu.BindingTypeUniformBuffer, Visibility: gputypes.ShaderStageVertex, HasDynamicOffset: true},
	})
	g2 := gpu.NewBindGroupLayout("g2", []gpu.BindingInfo{
		{Binding: 0, Type: gpu.BindingTypeSampler, Visibility: gputypes.ShaderStageFragment},
	})
	layout := NewPipelineLayout(&gpu.PipelineLayout{Label: "mixed", BindGroupLayouts: []*gpu.BindGroupLayout{g0, nil, g2}}, nil)

	assert.Equal(t, uint32(0), layout.CbvUavSrvRootParameterIndex(0))
	assert.Equal(t, uint32(1), layout.DynamicRootParameterIndex(0, 0))
	assert.Equal(t, uint32(2), layout.SamplerRootParameterIndex(2))
	assert.Equal(t, uint32(3), layout.RootParameterCount())

	assert.Panics(t, func() { layout.SamplerRootParameterIndex(0) })
	assert.Panics(t, func() { layout.CbvUavSrvRootParameterIndex(1) })
	assert.Panics(t, func() { layout.DynamicRootParameterIndex(0, 1) })
}

type testSerials struct {
	pending, completed uint64
}

func (s *testSerials) PendingSerial() uint64   { return s.pending }
func (s *testSerials) CompletedSerial() uint64 { return s.completed }

func TestShaderVisibleDescriptorAllocator(t *testing.T) {
	rd := NewRecordingDevice(false)
	serials := &testSerials{pending: 1}
	allocator, err := NewShaderVisibleDescriptorAllocator(rd, serials, DescriptorHeapTypeSampler, 4)
	require.NoError(t, err)
	first := allocator.ShaderVisibleHeap()
	assert.Equal(t, "sampler-0", first.Label)

	cpu, alloc, ok := allocator.AllocateGPUDescriptors(3)
	require.True(t, ok)
	assert.Equal(t, first.CPUStart, cpu)
	assert.Equal(t, first.GPUStart, alloc.BaseDescriptor)
	assert.True(t, allocator.IsAllocationStillValid(alloc))

	cpu, second, ok := allocator.AllocateGPUDescriptors(1)
	require.True(t, ok)
	assert.Equal(t, first.CPUStart.Offset(3, rd.IncrementSize), cpu)

	_, _, ok = allocator.AllocateGPUDescriptors(1)
	assert.False(t, ok)

	// The first heap is still in use by serial 1, a new one is created.
	require.NoError(t, allocator.AllocateAndSwitchShaderVisibleHeap())
	assert.Equal(t, "sampler-1", allocator.ShaderVisibleHeap().Label)
	assert.False(t, allocator.IsAllocationStillValid(second))

	// Once serial 1 completes the first heap comes back.
	serials.pending = 2
	serials.completed = 1
	require.NoError(t, allocator.AllocateAndSwitchShaderVisibleHeap())
	assert.Same(t, first, allocator.ShaderVisibleHeap())
	assert.Len(t, rd.Heaps, 2)

	_, alloc, ok = allocator.AllocateGPUDescriptors(4)
	require.True(t, ok)
	assert.True(t, allocator.IsAllocationStillValid(alloc))
	serials.completed = 2
	assert.False(t, allocator.IsAllocationStillValid(alloc))
}

func TestStagingDescriptorAllocator(t *testing.T) {
	rd := NewRecordingDevice(false)
	staging := NewStagingDescriptorAllocator(rd, DescriptorHeapTypeRTV, 4)
	assert.Empty(t, rd.Heaps)

	a, err := staging.Allocate(3)
	require.NoError(t, err)
	b, err := staging.Allocate(2)
	require.NoError(t, err)
	require.Len(t, rd.Heaps, 2)
	assert.Equal(t, rd.Heaps[0].CPUStart, a)
	assert.Equal(t, rd.Heaps[1].CPUStart, b)

	// Reset reuses the heaps already created.
	staging.Reset()
	c, err := staging.Allocate(1)
	require.NoError(t, err)
	assert.Equal(t, a, c)
	assert.Len(t, rd.Heaps, 2)
	assert.Panics(t, func() { _, _ = staging.Allocate(5) })
}
