package d3d12

import (
	"github.com/zxgjxc/dawn-ray-tracing/engine/core"
	"github.com/zxgjxc/dawn-ray-tracing/engine/gpu"
)

type AccelerationStructureType uint32

const (
	AccelerationStructureTypeTopLevel    AccelerationStructureType = 0
	AccelerationStructureTypeBottomLevel AccelerationStructureType = 1
)

type AccelerationStructureBuildFlags uint32

const (
	AccelerationStructureBuildFlagNone            AccelerationStructureBuildFlags = 0
	AccelerationStructureBuildFlagAllowUpdate     AccelerationStructureBuildFlags = 0x1
	AccelerationStructureBuildFlagAllowCompaction AccelerationStructureBuildFlags = 0x2
	AccelerationStructureBuildFlagPreferFastTrace AccelerationStructureBuildFlags = 0x4
	AccelerationStructureBuildFlagPreferFastBuild AccelerationStructureBuildFlags = 0x8
	AccelerationStructureBuildFlagMinimizeMemory  AccelerationStructureBuildFlags = 0x10
	AccelerationStructureBuildFlagPerformUpdate   AccelerationStructureBuildFlags = 0x20
)

type RayTracingGeometryType uint32

const (
	RayTracingGeometryTypeTriangles                RayTracingGeometryType = 0
	RayTracingGeometryTypeProceduralPrimitiveAABBs RayTracingGeometryType = 1
)

type RayTracingGeometryFlags uint32

const (
	RayTracingGeometryFlagNone                        RayTracingGeometryFlags = 0
	RayTracingGeometryFlagOpaque                      RayTracingGeometryFlags = 0x1
	RayTracingGeometryFlagNoDuplicateAnyHitInvocation RayTracingGeometryFlags = 0x2
)

type RayTracingInstanceFlags uint32

const (
	RayTracingInstanceFlagNone                          RayTracingInstanceFlags = 0
	RayTracingInstanceFlagTriangleCullDisable           RayTracingInstanceFlags = 0x1
	RayTracingInstanceFlagTriangleFrontCounterclockwise RayTracingInstanceFlags = 0x2
	RayTracingInstanceFlagForceOpaque                   RayTracingInstanceFlags = 0x4
	RayTracingInstanceFlagForceNonOpaque                RayTracingInstanceFlags = 0x8
)

type HitGroupType uint32

const (
	HitGroupTypeTriangles           HitGroupType = 0
	HitGroupTypeProceduralPrimitive HitGroupType = 1
)

type AccelerationStructureCopyMode uint32

const (
	AccelerationStructureCopyModeClone   AccelerationStructureCopyMode = 0
	AccelerationStructureCopyModeCompact AccelerationStructureCopyMode = 1
)

type GPUVirtualAddressAndStride struct {
	StartAddress  uint64
	StrideInBytes uint64
}

type RayTracingGeometryTrianglesDesc struct {
	IndexFormat  DXGIFormat
	VertexFormat DXGIFormat
	IndexCount   uint32
	VertexCount  uint32
	IndexBuffer  uint64
	VertexBuffer GPUVirtualAddressAndStride
}

type RayTracingGeometryAABBsDesc struct {
	AABBCount uint64
	AABBs     GPUVirtualAddressAndStride
}

type RayTracingGeometryDesc struct {
	Type      RayTracingGeometryType
	Flags     RayTracingGeometryFlags
	Triangles RayTracingGeometryTrianglesDesc
	AABBs     RayTracingGeometryAABBsDesc
}

// BuildRaytracingAccelerationStructureInputs describes either the geometry
// list of a bottom-level structure or the instance array of a top-level one.
type BuildRaytracingAccelerationStructureInputs struct {
	Type          AccelerationStructureType
	Flags         AccelerationStructureBuildFlags
	NumDescs      uint32
	InstanceDescs uint64
	GeometryDescs []RayTracingGeometryDesc
}

// BuildRaytracingAccelerationStructureDesc has no source for a build and
// source == dest for an in-place update.
type BuildRaytracingAccelerationStructureDesc struct {
	DestAccelerationStructureData    uint64
	Inputs                           BuildRaytracingAccelerationStructureInputs
	SourceAccelerationStructureData  uint64
	ScratchAccelerationStructureData uint64
}

// CommandList is the part of ID3D12GraphicsCommandList every driver has.
// Buffers, textures, pipelines and layouts are passed as neutral objects,
// the implementation resolves their native counterpart.
type CommandList interface {
	Close() error

	ResourceBarrier(barriers []ResourceBarrier)
	SetDescriptorHeaps(heaps []*DescriptorHeap)

	SetComputeRootSignature(layout *gpu.PipelineLayout)
	SetGraphicsRootSignature(layout *gpu.PipelineLayout)
	SetPipelineState(pipeline gpu.Pipeline)
	SetComputeRootDescriptorTable(parameterIndex uint32, base GPUDescriptorHandle)
	SetGraphicsRootDescriptorTable(parameterIndex uint32, base GPUDescriptorHandle)

	IASetPrimitiveTopology(topology PrimitiveTopology)
	IASetVertexBuffers(startSlot uint32, views []VertexBufferView)
	IASetIndexBuffer(view *IndexBufferView)
	RSSetViewports(viewports []Viewport)
	RSSetScissorRects(rects []Rect)
	OMSetBlendFactor(factor [4]float32)
	OMSetStencilRef(reference uint32)
	OMSetRenderTargets(renderTargets []CPUDescriptorHandle, depthStencil *CPUDescriptorHandle)
	ClearRenderTargetView(renderTarget CPUDescriptorHandle, color [4]float32)
	ClearDepthStencilView(depthStencil CPUDescriptorHandle, flags ClearFlags, depth float32, stencil uint8)

	DrawInstanced(vertexCountPerInstance, instanceCount, startVertex, startInstance uint32)
	DrawIndexedInstanced(indexCountPerInstance, instanceCount, startIndex uint32, baseVertex int32, startInstance uint32)
	Dispatch(x, y, z uint32)
	ExecuteIndirect(signature IndirectSignature, argumentBuffer *gpu.Buffer, argumentOffset uint64)

	CopyBufferRegion(dst *gpu.Buffer, dstOffset uint64, src *gpu.Buffer, srcOffset, numBytes uint64)
	CopyTextureRegion(dst *TextureCopyLocation, dstX, dstY, dstZ uint32, src *TextureCopyLocation, srcBox *Box)
	CopyResource(dst, src *gpu.Texture)
	ResolveSubresource(dst *gpu.Texture, dstSubresource uint32, src *gpu.Texture, srcSubresource uint32, format DXGIFormat)
}

// RootDescriptorCommandList binds buffers straight into the root signature.
// Dynamic offsets are applied through it.
type RootDescriptorCommandList interface {
	SetComputeRootConstantBufferView(parameterIndex uint32, address uint64)
	SetGraphicsRootConstantBufferView(parameterIndex uint32, address uint64)
	SetComputeRootUnorderedAccessView(parameterIndex uint32, address uint64)
	SetGraphicsRootUnorderedAccessView(parameterIndex uint32, address uint64)
	SetComputeRootShaderResourceView(parameterIndex uint32, address uint64)
	SetGraphicsRootShaderResourceView(parameterIndex uint32, address uint64)
}

// CommandList4 covers ID3D12GraphicsCommandList4: native render passes and
// ray tracing. Implementations without driver support return a
// validation error from the ray-tracing calls.
type CommandList4 interface {
	BeginRenderPass(renderTargets []RenderPassRenderTargetDesc, depthStencil *RenderPassDepthStencilDesc, flags RenderPassFlags)
	EndRenderPass()

	BuildRaytracingAccelerationStructure(desc *BuildRaytracingAccelerationStructureDesc) error
	CopyRaytracingAccelerationStructure(dst, src uint64, mode AccelerationStructureCopyMode) error
	SetPipelineState1(pipeline *gpu.RayTracingPipeline) error
	DispatchRays(desc *DispatchRaysDesc) error
}

// MarkerCommandList forwards debug groups to PIX.
type MarkerCommandList interface {
	BeginEvent(label string)
	EndEvent()
	SetMarker(label string)
}

func invalidCall(name string) error {
	return core.NewValidationError("ray-tracing-call", "Invalid Call to %s", name)
}
