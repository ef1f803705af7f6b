package d3d12

import (
	"fmt"
	"sync"

	"github.com/zxgjxc/dawn-ray-tracing/engine/core"
	"github.com/zxgjxc/dawn-ray-tracing/engine/gpu"
)

// RecordingCommandList is a command list that keeps a textual log of every
// call instead of talking to a driver. It implements every optional list
// interface; the demo binary and the tests record against it.
type RecordingCommandList struct {
	Calls []string

	Barriers      []ResourceBarrier
	TextureCopies []RecordedTextureCopy
	VertexBuffers []VertexBufferView
	IndexBuffers  []IndexBufferView
	RenderPasses  []RecordedRenderPass
	Builds        []BuildRaytracingAccelerationStructureDesc
	Dispatches    []DispatchRaysDesc

	// RayTracing exposes the ray-tracing calls.
	RayTracing bool
	// CloseError is returned from Close to simulate a failing driver.
	CloseError error
	// Verbose mirrors every call to the debug log.
	Verbose bool
}

type RecordedTextureCopy struct {
	Dst              TextureCopyLocation
	DstX, DstY, DstZ uint32
	Src              TextureCopyLocation
	SrcBox           Box
}

type RecordedRenderPass struct {
	RenderTargets []RenderPassRenderTargetDesc
	DepthStencil  *RenderPassDepthStencilDesc
	Flags         RenderPassFlags
}

func NewRecordingCommandList(rayTracing bool) *RecordingCommandList {
	return &RecordingCommandList{RayTracing: rayTracing}
}

func (r *RecordingCommandList) record(format string, args ...interface{}) {
	call := fmt.Sprintf(format, args...)
	r.Calls = append(r.Calls, call)
	if r.Verbose {
		core.LogDebug("d3d12: %s", call)
	}
}

func (r *RecordingCommandList) Reset() {
	*r = RecordingCommandList{RayTracing: r.RayTracing, CloseError: r.CloseError, Verbose: r.Verbose}
}

func (r *RecordingCommandList) Close() error {
	if r.CloseError != nil {
		return core.NewDeviceError("ID3D12GraphicsCommandList::Close", r.CloseError)
	}
	r.record("Close")
	return nil
}

func (r *RecordingCommandList) ResourceBarrier(barriers []ResourceBarrier) {
	r.Barriers = append(r.Barriers, barriers...)
	r.record("ResourceBarrier(%d)", len(barriers))
}

func (r *RecordingCommandList) SetDescriptorHeaps(heaps []*DescriptorHeap) {
	labels := make([]string, len(heaps))
	for i, heap := range heaps {
		labels[i] = heap.Label
	}
	r.record("SetDescriptorHeaps(%v)", labels)
}

func (r *RecordingCommandList) SetComputeRootSignature(layout *gpu.PipelineLayout) {
	r.record("SetComputeRootSignature(%s)", layout.Label)
}

func (r *RecordingCommandList) SetGraphicsRootSignature(layout *gpu.PipelineLayout) {
	r.record("SetGraphicsRootSignature(%s)", layout.Label)
}

func (r *RecordingCommandList) SetPipelineState(pipeline gpu.Pipeline) {
	r.record("SetPipelineState(%s)", pipeline.GetLabel())
}

func (r *RecordingCommandList) SetComputeRootDescriptorTable(parameterIndex uint32, base GPUDescriptorHandle) {
	r.record("SetComputeRootDescriptorTable(%d,%#x)", parameterIndex, base.Ptr)
}

func (r *RecordingCommandList) SetGraphicsRootDescriptorTable(parameterIndex uint32, base GPUDescriptorHandle) {
	r.record("SetGraphicsRootDescriptorTable(%d,%#x)", parameterIndex, base.Ptr)
}

func (r *RecordingCommandList) SetComputeRootConstantBufferView(parameterIndex uint32, address uint64) {
	r.record("SetComputeRootConstantBufferView(%d,%#x)", parameterIndex, address)
}

func (r *RecordingCommandList) SetGraphicsRootConstantBufferView(parameterIndex uint32, address uint64) {
	r.record("SetGraphicsRootConstantBufferView(%d,%#x)", parameterIndex, address)
}

func (r *RecordingCommandList) SetComputeRootUnorderedAccessView(parameterIndex uint32, address uint64) {
	r.record("SetComputeRootUnorderedAccessView(%d,%#x)", parameterIndex, address)
}

func (r *RecordingCommandList) SetGraphicsRootUnorderedAccessView(parameterIndex uint32, address uint64) {
	r.record("SetGraphicsRootUnorderedAccessView(%d,%#x)", parameterIndex, address)
}

func (r *RecordingCommandList) SetComputeRootShaderResourceView(parameterIndex uint32, address uint64) {
	r.record("SetComputeRootShaderResourceView(%d,%#x)", parameterIndex, address)
}

func (r *RecordingCommandList) SetGraphicsRootShaderResourceView(parameterIndex uint32, address uint64) {
	r.record("SetGraphicsRootShaderResourceView(%d,%#x)", parameterIndex, address)
}

func (r *RecordingCommandList) IASetPrimitiveTopology(topology PrimitiveTopology) {
	r.record("IASetPrimitiveTopology(%d)", topology)
}

func (r *RecordingCommandList) IASetVertexBuffers(startSlot uint32, views []VertexBufferView) {
	r.VertexBuffers = append(r.VertexBuffers, views...)
	r.record("IASetVertexBuffers(%d,%d)", startSlot, len(views))
}

func (r *RecordingCommandList) IASetIndexBuffer(view *IndexBufferView) {
	r.IndexBuffers = append(r.IndexBuffers, *view)
	r.record("IASetIndexBuffer(%#x,%d,%d)", view.BufferLocation, view.SizeInBytes, view.Format)
}

func (r *RecordingCommandList) RSSetViewports(viewports []Viewport) {
	v := viewports[0]
	r.record("RSSetViewports(%g,%g,%g,%g,%g,%g)", v.TopLeftX, v.TopLeftY, v.Width, v.Height, v.MinDepth, v.MaxDepth)
}

func (r *RecordingCommandList) RSSetScissorRects(rects []Rect) {
	s := rects[0]
	r.record("RSSetScissorRects(%d,%d,%d,%d)", s.Left, s.Top, s.Right, s.Bottom)
}

func (r *RecordingCommandList) OMSetBlendFactor(factor [4]float32) {
	r.record("OMSetBlendFactor(%g,%g,%g,%g)", factor[0], factor[1], factor[2], factor[3])
}

func (r *RecordingCommandList) OMSetStencilRef(reference uint32) {
	r.record("OMSetStencilRef(%d)", reference)
}

func (r *RecordingCommandList) OMSetRenderTargets(renderTargets []CPUDescriptorHandle, depthStencil *CPUDescriptorHandle) {
	r.record("OMSetRenderTargets(%d,depth=%t)", len(renderTargets), depthStencil != nil)
}

func (r *RecordingCommandList) ClearRenderTargetView(renderTarget CPUDescriptorHandle, color [4]float32) {
	r.record("ClearRenderTargetView(%#x,%g,%g,%g,%g)", renderTarget.Ptr, color[0], color[1], color[2], color[3])
}

func (r *RecordingCommandList) ClearDepthStencilView(depthStencil CPUDescriptorHandle, flags ClearFlags, depth float32, stencil uint8) {
	r.record("ClearDepthStencilView(%#x,flags=%d,%g,%d)", depthStencil.Ptr, flags, depth, stencil)
}

func (r *RecordingCommandList) DrawInstanced(vertexCountPerInstance, instanceCount, startVertex, startInstance uint32) {
	r.record("DrawInstanced(%d,%d,%d,%d)", vertexCountPerInstance, instanceCount, startVertex, startInstance)
}

func (r *RecordingCommandList) DrawIndexedInstanced(indexCountPerInstance, instanceCount, startIndex uint32, baseVertex int32, startInstance uint32) {
	r.record("DrawIndexedInstanced(%d,%d,%d,%d,%d)", indexCountPerInstance, instanceCount, startIndex, baseVertex, startInstance)
}

func (r *RecordingCommandList) Dispatch(x, y, z uint32) {
	r.record("Dispatch(%d,%d,%d)", x, y, z)
}

func (r *RecordingCommandList) ExecuteIndirect(signature IndirectSignature, argumentBuffer *gpu.Buffer, argumentOffset uint64) {
	r.record("ExecuteIndirect(%s,%s,%d)", signature, argumentBuffer.Label, argumentOffset)
}

func (r *RecordingCommandList) CopyBufferRegion(dst *gpu.Buffer, dstOffset uint64, src *gpu.Buffer, srcOffset, numBytes uint64) {
	r.record("CopyBufferRegion(%s+%d<-%s+%d,%d)", dst.Label, dstOffset, src.Label, srcOffset, numBytes)
}

func (r *RecordingCommandList) CopyTextureRegion(dst *TextureCopyLocation, dstX, dstY, dstZ uint32, src *TextureCopyLocation, srcBox *Box) {
	r.TextureCopies = append(r.TextureCopies, RecordedTextureCopy{
		Dst: *dst, DstX: dstX, DstY: dstY, DstZ: dstZ,
		Src: *src, SrcBox: *srcBox,
	})
	r.record("CopyTextureRegion(%s@%d,%d,%d<-%s)", copyLocationLabel(dst), dstX, dstY, dstZ, copyLocationLabel(src))
}

func copyLocationLabel(l *TextureCopyLocation) string {
	if l.Type == TextureCopyTypePlacedFootprint {
		return fmt.Sprintf("%s+%d", l.Buffer.Label, l.PlacedFootprint.Offset)
	}
	return fmt.Sprintf("%s[%d]", l.Texture.Label, l.SubresourceIndex)
}

func (r *RecordingCommandList) CopyResource(dst, src *gpu.Texture) {
	r.record("CopyResource(%s<-%s)", dst.Label, src.Label)
}

func (r *RecordingCommandList) ResolveSubresource(dst *gpu.Texture, dstSubresource uint32, src *gpu.Texture, srcSubresource uint32, format DXGIFormat) {
	r.record("ResolveSubresource(%s[%d]<-%s[%d],%d)", dst.Label, dstSubresource, src.Label, srcSubresource, format)
}

func (r *RecordingCommandList) BeginRenderPass(renderTargets []RenderPassRenderTargetDesc, depthStencil *RenderPassDepthStencilDesc, flags RenderPassFlags) {
	r.RenderPasses = append(r.RenderPasses, RecordedRenderPass{RenderTargets: renderTargets, DepthStencil: depthStencil, Flags: flags})
	r.record("BeginRenderPass(%d,depth=%t,flags=%d)", len(renderTargets), depthStencil != nil, flags)
}

func (r *RecordingCommandList) EndRenderPass() {
	r.record("EndRenderPass")
}

func (r *RecordingCommandList) BuildRaytracingAccelerationStructure(desc *BuildRaytracingAccelerationStructureDesc) error {
	if !r.RayTracing {
		return invalidCall("BuildRaytracingAccelerationStructure")
	}
	r.Builds = append(r.Builds, *desc)
	r.record("BuildRaytracingAccelerationStructure(dst=%#x,src=%#x,scratch=%#x,flags=%#x)",
		desc.DestAccelerationStructureData, desc.SourceAccelerationStructureData,
		desc.ScratchAccelerationStructureData, desc.Inputs.Flags)
	return nil
}

func (r *RecordingCommandList) CopyRaytracingAccelerationStructure(dst, src uint64, mode AccelerationStructureCopyMode) error {
	if !r.RayTracing {
		return invalidCall("CopyRaytracingAccelerationStructure")
	}
	r.record("CopyRaytracingAccelerationStructure(%#x<-%#x,%d)", dst, src, mode)
	return nil
}

func (r *RecordingCommandList) SetPipelineState1(pipeline *gpu.RayTracingPipeline) error {
	if !r.RayTracing {
		return invalidCall("SetPipelineState1")
	}
	r.record("SetPipelineState1(%s)", pipeline.Label)
	return nil
}

func (r *RecordingCommandList) DispatchRays(desc *DispatchRaysDesc) error {
	if !r.RayTracing {
		return invalidCall("DispatchRays")
	}
	r.Dispatches = append(r.Dispatches, *desc)
	r.record("DispatchRays(raygen=%#x,miss=%#x,hit=%#x,%dx%dx%d)",
		desc.RayGenerationShaderRecord.StartAddress, desc.MissShaderTable.StartAddress,
		desc.HitGroupTable.StartAddress, desc.Width, desc.Height, desc.Depth)
	return nil
}

func (r *RecordingCommandList) BeginEvent(label string) {
	r.record("BeginEvent(%s)", label)
}

func (r *RecordingCommandList) EndEvent() {
	r.record("EndEvent")
}

func (r *RecordingCommandList) SetMarker(label string) {
	r.record("SetMarker(%s)", label)
}

// BasicCommandList exposes only the core methods of a list, the way a
// driver without ID3D12GraphicsCommandList4 or PIX looks.
type BasicCommandList struct {
	CommandList
}

// RecordingDevice hands out fake descriptor heaps with distinct address
// ranges and reports fixed prebuild sizes.
type RecordingDevice struct {
	Heaps         []*DescriptorHeap
	Copies        []string
	RayTracing    bool
	IncrementSize uint32
	// FailHeapCreation makes CreateDescriptorHeap fail.
	FailHeapCreation error

	mu      sync.Mutex
	nextCPU uintptr
	nextGPU uint64
}

func NewRecordingDevice(rayTracing bool) *RecordingDevice {
	return &RecordingDevice{
		RayTracing:    rayTracing,
		IncrementSize: 32,
		nextCPU:       0x10000,
		nextGPU:       0x100000000,
	}
}

func (d *RecordingDevice) CreateDescriptorHeap(heapType DescriptorHeapType, capacity uint32, shaderVisible bool) (*DescriptorHeap, error) {
	if d.FailHeapCreation != nil {
		return nil, d.FailHeapCreation
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	span := uintptr(capacity) * uintptr(d.IncrementSize)
	heap := &DescriptorHeap{
		Label:    fmt.Sprintf("%s-%d", heapType, len(d.Heaps)),
		Type:     heapType,
		Capacity: capacity,
		CPUStart: CPUDescriptorHandle{Ptr: d.nextCPU},
	}
	d.nextCPU += span
	if shaderVisible {
		heap.GPUStart = GPUDescriptorHandle{Ptr: d.nextGPU}
		d.nextGPU += uint64(span)
	}
	d.Heaps = append(d.Heaps, heap)
	return heap, nil
}

func (d *RecordingDevice) DescriptorHandleIncrementSize(heapType DescriptorHeapType) uint32 {
	return d.IncrementSize
}

func (d *RecordingDevice) CopyDescriptorsSimple(count uint32, dst, src CPUDescriptorHandle, heapType DescriptorHeapType) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.Copies = append(d.Copies, fmt.Sprintf("%s:%d:%#x<-%#x", heapType, count, dst.Ptr, src.Ptr))
}

func (d *RecordingDevice) CreateRenderTargetView(view *gpu.TextureView, dst CPUDescriptorHandle) {}

func (d *RecordingDevice) CreateDepthStencilView(view *gpu.TextureView, dst CPUDescriptorHandle) {}

// GetRaytracingAccelerationStructurePrebuildInfo sizes memory per
// description: 256 result bytes, 128 build and 64 update scratch bytes.
func (d *RecordingDevice) GetRaytracingAccelerationStructurePrebuildInfo(inputs *BuildRaytracingAccelerationStructureInputs) (RaytracingAccelerationStructurePrebuildInfo, error) {
	if !d.RayTracing {
		return RaytracingAccelerationStructurePrebuildInfo{}, invalidCall("GetRaytracingAccelerationStructurePrebuildInfo")
	}
	n := uint64(max(inputs.NumDescs, 1))
	info := RaytracingAccelerationStructurePrebuildInfo{
		ResultDataMaxSizeInBytes: 256 * n,
		ScratchDataSizeInBytes:   128 * n,
	}
	if inputs.Flags&AccelerationStructureBuildFlagAllowUpdate != 0 {
		info.UpdateScratchDataSizeInBytes = 64 * n
	}
	return info, nil
}
