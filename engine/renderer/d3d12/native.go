package d3d12

import (
	"sync"

	"github.com/zxgjxc/dawn-ray-tracing/engine/core"
	"github.com/zxgjxc/dawn-ray-tracing/engine/gpu"
)

// Native objects stored in the Native field of the neutral resources.
// Resource, RootSignature and PipelineState hold the driver interface
// pointers; the command list implementation knows their concrete type.

type Buffer struct {
	Resource interface{}
}

type Texture struct {
	Resource interface{}
}

/**
 * @brief Descriptors of a bind group. Views and samplers are written once
 * into CPU staging heaps when the group is created, then copied into the
 * current shader-visible heaps on demand while recording.
 */
type BindGroup struct {
	CPUViews    CPUDescriptorHandle
	CPUSamplers CPUDescriptorHandle

	mu                sync.Mutex
	viewAllocation    GPUDescriptorHeapAllocation
	samplerAllocation GPUDescriptorHeapAllocation
}

// populate copies count staged descriptors into the shader-visible heap of
// allocator unless the cached copy is still valid. It reports false when
// the heap is full.
func (g *BindGroup) populate(device DescriptorDevice, allocator *ShaderVisibleDescriptorAllocator, count uint32, staged CPUDescriptorHandle, cached *GPUDescriptorHeapAllocation) bool {
	if count == 0 {
		return true
	}
	g.mu.Lock()
	defer g.mu.Unlock()

	if allocator.IsAllocationStillValid(*cached) {
		return true
	}
	dst, alloc, ok := allocator.AllocateGPUDescriptors(count)
	if !ok {
		return false
	}
	device.CopyDescriptorsSimple(count, dst, staged, allocator.HeapType())
	*cached = alloc
	return true
}

func (g *BindGroup) PopulateViews(device DescriptorDevice, allocator *ShaderVisibleDescriptorAllocator, layout *gpu.BindGroupLayout) bool {
	return g.populate(device, allocator, layout.ViewCount(), g.CPUViews, &g.viewAllocation)
}

func (g *BindGroup) PopulateSamplers(device DescriptorDevice, allocator *ShaderVisibleDescriptorAllocator, layout *gpu.BindGroupLayout) bool {
	return g.populate(device, allocator, layout.SamplerCount(), g.CPUSamplers, &g.samplerAllocation)
}

// HeapSerials returns the serials of the heaps the views and samplers were
// last populated into.
func (g *BindGroup) HeapSerials() (views, samplers uint64) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.viewAllocation.HeapSerial, g.samplerAllocation.HeapSerial
}

func (g *BindGroup) BaseViewDescriptor() GPUDescriptorHandle {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.viewAllocation.BaseDescriptor
}

func (g *BindGroup) BaseSamplerDescriptor() GPUDescriptorHandle {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.samplerAllocation.BaseDescriptor
}

const noRootParameter = ^uint32(0)

/**
 * @brief Root signature of a pipeline layout and where each group lives in
 * it. Groups are laid out in order: the view table, the sampler table, then
 * one root descriptor per dynamic buffer.
 */
type PipelineLayout struct {
	RootSignature interface{}

	viewTableParameters    [gpu.MaxBindGroups]uint32
	samplerTableParameters [gpu.MaxBindGroups]uint32
	dynamicRootParameters  [gpu.MaxBindGroups][gpu.MaxBindingsPerGroup]uint32
	parameterCount         uint32
}

func NewPipelineLayout(layout *gpu.PipelineLayout, rootSignature interface{}) *PipelineLayout {
	native := &PipelineLayout{RootSignature: rootSignature}
	for group := range native.viewTableParameters {
		native.viewTableParameters[group] = noRootParameter
		native.samplerTableParameters[group] = noRootParameter
		for binding := range native.dynamicRootParameters[group] {
			native.dynamicRootParameters[group][binding] = noRootParameter
		}
	}

	parameter := uint32(0)
	for group, bgl := range layout.BindGroupLayouts {
		if bgl == nil {
			continue
		}
		if bgl.ViewCount() > 0 {
			native.viewTableParameters[group] = parameter
			parameter++
		}
		if bgl.SamplerCount() > 0 {
			native.samplerTableParameters[group] = parameter
			parameter++
		}
		for binding := uint32(0); binding < bgl.DynamicBufferCount(); binding++ {
			native.dynamicRootParameters[group][binding] = parameter
			parameter++
		}
	}
	native.parameterCount = parameter
	return native
}

func (l *PipelineLayout) CbvUavSrvRootParameterIndex(group uint32) uint32 {
	index := l.viewTableParameters[group]
	core.Assert(index != noRootParameter, "group %d has no view table", group)
	return index
}

func (l *PipelineLayout) SamplerRootParameterIndex(group uint32) uint32 {
	index := l.samplerTableParameters[group]
	core.Assert(index != noRootParameter, "group %d has no sampler table", group)
	return index
}

func (l *PipelineLayout) DynamicRootParameterIndex(group, bindingIndex uint32) uint32 {
	index := l.dynamicRootParameters[group][bindingIndex]
	core.Assert(index != noRootParameter, "binding %d of group %d is not dynamic", bindingIndex, group)
	return index
}

func (l *PipelineLayout) RootParameterCount() uint32 {
	return l.parameterCount
}

type Pipeline struct {
	PipelineState interface{}
}

// Container keeps the build inputs of an acceleration structure so builds
// and updates replay the same description.
type Container struct {
	Inputs BuildRaytracingAccelerationStructureInputs
}

func ToBackendBuffer(b *gpu.Buffer) *Buffer {
	native, ok := b.Native.(*Buffer)
	core.Assert(ok, "buffer %s has no d3d12 object", b.Label)
	return native
}

func ToBackendTexture(t *gpu.Texture) *Texture {
	native, ok := t.Native.(*Texture)
	core.Assert(ok, "texture %s has no d3d12 object", t.Label)
	return native
}

func ToBackendBindGroup(g *gpu.BindGroup) *BindGroup {
	native, ok := g.Native.(*BindGroup)
	core.Assert(ok, "bind group %s has no d3d12 object", g.Label)
	return native
}

func ToBackendPipelineLayout(l *gpu.PipelineLayout) *PipelineLayout {
	native, ok := l.Native.(*PipelineLayout)
	core.Assert(ok, "pipeline layout %s has no d3d12 object", l.Label)
	return native
}

func ToBackendPipeline(p gpu.Pipeline) *Pipeline {
	var n interface{}
	switch pipeline := p.(type) {
	case *gpu.RenderPipeline:
		n = pipeline.Native
	case *gpu.ComputePipeline:
		n = pipeline.Native
	case *gpu.RayTracingPipeline:
		n = pipeline.Native
	}
	native, ok := n.(*Pipeline)
	core.Assert(ok, "pipeline %s has no d3d12 object", p.GetLabel())
	return native
}

func ToBackendContainer(c *gpu.AccelerationContainer) *Container {
	native, ok := c.Native.(*Container)
	core.Assert(ok, "container %s has no d3d12 object", c.Label)
	return native
}
