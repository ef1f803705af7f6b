package d3d12

import (
	"io"
	"testing"

	"github.com/gogpu/gputypes"
	"github.com/stretchr/testify/assert"

	"github.com/zxgjxc/dawn-ray-tracing/engine/core"
	"github.com/zxgjxc/dawn-ray-tracing/engine/gpu"
)

func TestMain(m *testing.M) {
	core.SetLogOutput(io.Discard)
	m.Run()
}

func TestToD3D12ComparisonFunc(t *testing.T) {
	tests := []struct {
		in   gputypes.CompareFunction
		want ComparisonFunc
	}{
		{gputypes.CompareFunctionNever, ComparisonFuncNever},
		{gputypes.CompareFunctionLess, ComparisonFuncLess},
		{gputypes.CompareFunctionLessEqual, ComparisonFuncLessEqual},
		{gputypes.CompareFunctionGreater, ComparisonFuncGreater},
		{gputypes.CompareFunctionGreaterEqual, ComparisonFuncGreaterEqual},
		{gputypes.CompareFunctionEqual, ComparisonFuncEqual},
		{gputypes.CompareFunctionNotEqual, ComparisonFuncNotEqual},
		{gputypes.CompareFunctionAlways, ComparisonFuncAlways},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ToD3D12ComparisonFunc(tt.in))
	}
	assert.Panics(t, func() { ToD3D12ComparisonFunc(gputypes.CompareFunctionUndefined) })
}

func TestD3D12TextureFormat(t *testing.T) {
	assert.Equal(t, DXGIFormatR8G8B8A8Unorm, D3D12TextureFormat(gputypes.TextureFormatRGBA8Unorm))
	assert.Equal(t, DXGIFormatB8G8R8A8UnormSrgb, D3D12TextureFormat(gputypes.TextureFormatBGRA8UnormSrgb))
	assert.Equal(t, DXGIFormatD24UnormS8Uint, D3D12TextureFormat(gputypes.TextureFormatDepth24PlusStencil8))
	assert.Equal(t, DXGIFormatD32Float, D3D12TextureFormat(gputypes.TextureFormatDepth24Plus))
	assert.Equal(t, DXGIFormatBC7UnormSrgb, D3D12TextureFormat(gputypes.TextureFormatBC7RGBAUnormSrgb))
	assert.Panics(t, func() { D3D12TextureFormat(gputypes.TextureFormatStencil8) })
}

func TestIndexFormats(t *testing.T) {
	assert.Equal(t, DXGIFormatR16Uint, DXGIIndexFormat(gputypes.IndexFormatUint16))
	assert.Equal(t, DXGIFormatR32Uint, DXGIIndexFormat(gputypes.IndexFormatUint32))
	assert.Panics(t, func() { DXGIIndexFormat(gputypes.IndexFormatUndefined) })

	// Geometry without indices is not an error for acceleration structures.
	assert.Equal(t, DXGIFormatUnknown, ToD3D12AccelerationIndexFormat(gpu.IndexFormatNone))
	assert.Equal(t, DXGIFormatR16Uint, ToD3D12AccelerationIndexFormat(gputypes.IndexFormatUint16))
	assert.Equal(t, DXGIFormatR32G32B32Float, ToD3D12AccelerationVertexFormat(gputypes.VertexFormatFloat32x3))
	assert.Panics(t, func() { ToD3D12AccelerationVertexFormat(gputypes.VertexFormatUint8x4) })
}

func TestToD3D12ShaderVisibility(t *testing.T) {
	assert.Equal(t, ShaderVisibilityVertex, ToD3D12ShaderVisibility(gputypes.ShaderStageVertex))
	assert.Equal(t, ShaderVisibilityPixel, ToD3D12ShaderVisibility(gputypes.ShaderStageFragment))
	assert.Equal(t, ShaderVisibilityAll, ToD3D12ShaderVisibility(gputypes.ShaderStageVertex|gputypes.ShaderStageFragment))
	assert.Equal(t, ShaderVisibilityAll, ToD3D12ShaderVisibility(gputypes.ShaderStageCompute))
}

func TestRayTracingFlags(t *testing.T) {
	assert.Equal(t, AccelerationStructureBuildFlagNone, ToD3D12RayTracingAccelerationStructureBuildFlags(gpu.ContainerFlagNone))
	assert.Equal(t,
		AccelerationStructureBuildFlagAllowUpdate|AccelerationStructureBuildFlagPreferFastTrace|AccelerationStructureBuildFlagMinimizeMemory,
		ToD3D12RayTracingAccelerationStructureBuildFlags(gpu.ContainerFlagAllowUpdate|gpu.ContainerFlagPreferFastTrace|gpu.ContainerFlagLowMemory))
	assert.Equal(t,
		AccelerationStructureBuildFlagPreferFastBuild|AccelerationStructureBuildFlagAllowCompaction,
		ToD3D12RayTracingAccelerationStructureBuildFlags(gpu.ContainerFlagPreferFastBuild|gpu.ContainerFlagAllowCompaction))

	assert.Equal(t, RayTracingGeometryFlagOpaque, ToD3D12RayTracingGeometryFlags(gpu.GeometryFlagOpaque))
	assert.Equal(t, RayTracingGeometryFlagNoDuplicateAnyHitInvocation, ToD3D12RayTracingGeometryFlags(gpu.GeometryFlagAllowAnyHit))

	assert.Equal(t, RayTracingInstanceFlagNone, ToD3D12RayTracingInstanceFlags(gpu.InstanceFlagNone))
	assert.Equal(t,
		RayTracingInstanceFlagTriangleCullDisable|RayTracingInstanceFlagForceNonOpaque,
		ToD3D12RayTracingInstanceFlags(gpu.InstanceFlagTriangleCullDisable|gpu.InstanceFlagForceNoOpaque))
	assert.Equal(t,
		RayTracingInstanceFlagTriangleFrontCounterclockwise|RayTracingInstanceFlagForceOpaque,
		ToD3D12RayTracingInstanceFlags(gpu.InstanceFlagTriangleFrontCounterclockwise|gpu.InstanceFlagForceOpaque))
}

func TestRayTracingEnums(t *testing.T) {
	assert.Equal(t, AccelerationStructureTypeBottomLevel, ToD3D12RayTracingAccelerationContainerLevel(gpu.ContainerLevelBottom))
	assert.Equal(t, AccelerationStructureTypeTopLevel, ToD3D12RayTracingAccelerationContainerLevel(gpu.ContainerLevelTop))
	assert.Panics(t, func() { ToD3D12RayTracingAccelerationContainerLevel(gpu.ContainerLevelUndefined) })

	assert.Equal(t, RayTracingGeometryTypeTriangles, ToD3D12RayTracingGeometryType(gpu.GeometryTypeTriangles))
	assert.Equal(t, RayTracingGeometryTypeProceduralPrimitiveAABBs, ToD3D12RayTracingGeometryType(gpu.GeometryTypeAabbs))

	assert.Equal(t, HitGroupTypeTriangles, ToD3D12HitGroupType(gpu.ShaderGroupTypeTrianglesHitGroup))
	assert.Equal(t, HitGroupTypeProceduralPrimitive, ToD3D12HitGroupType(gpu.ShaderGroupTypeProceduralHitGroup))
	assert.Panics(t, func() { ToD3D12HitGroupType(gpu.ShaderGroupTypeGeneral) })
}

func TestRenderPassAccess(t *testing.T) {
	assert.Equal(t, RenderPassBeginningAccessTypeClear, D3D12BeginningAccessType(gputypes.LoadOpClear))
	assert.Equal(t, RenderPassBeginningAccessTypePreserve, D3D12BeginningAccessType(gputypes.LoadOpLoad))
	assert.Equal(t, RenderPassEndingAccessTypePreserve, D3D12EndingAccessType(gputypes.StoreOpStore))
	assert.Equal(t, RenderPassEndingAccessTypeDiscard, D3D12EndingAccessType(gputypes.StoreOpDiscard))
	assert.Equal(t, PrimitiveTopologyTriangleStrip, D3D12PrimitiveTopology(gputypes.PrimitiveTopologyTriangleStrip))
}

func TestResourceStates(t *testing.T) {
	assert.Equal(t, ResourceStateCopySource|ResourceStateVertexAndConstantBuffer,
		D3D12BufferUsage(gputypes.BufferUsageCopySrc|gputypes.BufferUsageVertex))
	assert.Equal(t, ResourceStateVertexAndConstantBuffer, D3D12BufferUsage(gputypes.BufferUsageUniform))
	assert.Equal(t, ResourceStateUnorderedAccess|ResourceStateIndirectArgument,
		D3D12BufferUsage(gputypes.BufferUsageStorage|gputypes.BufferUsageIndirect))
	assert.Equal(t, ResourceStateRaytracingAccelerationStructure, D3D12BufferUsage(gpu.BufferUsageAccelerationContainer))
	assert.Equal(t, ResourceStateNonPixelShaderResource|ResourceStatePixelShaderResource, D3D12BufferUsage(gpu.BufferUsageShaderBindingTable))

	assert.Equal(t, ResourceStateRenderTarget, D3D12TextureUsage(gputypes.TextureUsageRenderAttachment, gputypes.TextureFormatRGBA8Unorm))
	assert.Equal(t, ResourceStateDepthWrite, D3D12TextureUsage(gputypes.TextureUsageRenderAttachment, gputypes.TextureFormatDepth32Float))
	assert.Equal(t, ResourceStatePresent, D3D12TextureUsage(gpu.TextureUsagePresent, gputypes.TextureFormatBGRA8Unorm))
	assert.Equal(t, ResourceStateNonPixelShaderResource|ResourceStatePixelShaderResource,
		D3D12TextureUsage(gpu.TextureUsageReadonlyStorage, gputypes.TextureFormatRGBA8Unorm))
	assert.Equal(t, ResourceStateResolveSource, D3D12TextureUsage(gpu.TextureUsageResolveSource, gputypes.TextureFormatRGBA8Unorm))
}

func TestBarrierFor(t *testing.T) {
	buffer := &gpu.Buffer{Label: "particles"}
	barrier := bufferBarrierFor(gpu.BufferTransition{Buffer: buffer, From: gputypes.BufferUsageCopyDst, To: gputypes.BufferUsageStorage})
	assert.Equal(t, ResourceBarrier{
		Type:        ResourceBarrierTypeTransition,
		Buffer:      buffer,
		Subresource: AllSubresources,
		StateBefore: ResourceStateCopyDest,
		StateAfter:  ResourceStateUnorderedAccess,
	}, barrier)

	// Storage to storage only orders the writes.
	barrier = bufferBarrierFor(gpu.BufferTransition{Buffer: buffer, From: gputypes.BufferUsageStorage, To: gputypes.BufferUsageStorage})
	assert.Equal(t, ResourceBarrier{Type: ResourceBarrierTypeUAV, Buffer: buffer}, barrier)
}
