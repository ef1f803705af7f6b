package d3d12

import (
	"github.com/gogpu/gputypes"

	"github.com/zxgjxc/dawn-ray-tracing/engine/core"
	"github.com/zxgjxc/dawn-ray-tracing/engine/gpu"
)

type DXGIFormat uint32

const (
	DXGIFormatUnknown           DXGIFormat = 0
	DXGIFormatR32G32B32A32Float DXGIFormat = 2
	DXGIFormatR32G32B32A32Uint  DXGIFormat = 3
	DXGIFormatR32G32B32A32Sint  DXGIFormat = 4
	DXGIFormatR32G32B32Float    DXGIFormat = 6
	DXGIFormatR16G16B16A16Float DXGIFormat = 10
	DXGIFormatR16G16B16A16Unorm DXGIFormat = 11
	DXGIFormatR16G16B16A16Uint  DXGIFormat = 12
	DXGIFormatR16G16B16A16Snorm DXGIFormat = 13
	DXGIFormatR16G16B16A16Sint  DXGIFormat = 14
	DXGIFormatR32G32Float       DXGIFormat = 16
	DXGIFormatR32G32Uint        DXGIFormat = 17
	DXGIFormatR32G32Sint        DXGIFormat = 18
	DXGIFormatD32FloatS8X24Uint DXGIFormat = 20
	DXGIFormatR10G10B10A2Unorm  DXGIFormat = 24
	DXGIFormatR10G10B10A2Uint   DXGIFormat = 25
	DXGIFormatR11G11B10Float    DXGIFormat = 26
	DXGIFormatR8G8B8A8Unorm     DXGIFormat = 28
	DXGIFormatR8G8B8A8UnormSrgb DXGIFormat = 29
	DXGIFormatR8G8B8A8Uint      DXGIFormat = 30
	DXGIFormatR8G8B8A8Snorm     DXGIFormat = 31
	DXGIFormatR8G8B8A8Sint      DXGIFormat = 32
	DXGIFormatR16G16Float       DXGIFormat = 34
	DXGIFormatR16G16Unorm       DXGIFormat = 35
	DXGIFormatR16G16Uint        DXGIFormat = 36
	DXGIFormatR16G16Snorm       DXGIFormat = 37
	DXGIFormatR16G16Sint        DXGIFormat = 38
	DXGIFormatD32Float          DXGIFormat = 40
	DXGIFormatR32Float          DXGIFormat = 41
	DXGIFormatR32Uint           DXGIFormat = 42
	DXGIFormatR32Sint           DXGIFormat = 43
	DXGIFormatD24UnormS8Uint    DXGIFormat = 45
	DXGIFormatR8G8Unorm         DXGIFormat = 49
	DXGIFormatR8G8Uint          DXGIFormat = 50
	DXGIFormatR8G8Snorm         DXGIFormat = 51
	DXGIFormatR8G8Sint          DXGIFormat = 52
	DXGIFormatR16Float          DXGIFormat = 54
	DXGIFormatD16Unorm          DXGIFormat = 55
	DXGIFormatR16Unorm          DXGIFormat = 56
	DXGIFormatR16Uint           DXGIFormat = 57
	DXGIFormatR16Snorm          DXGIFormat = 58
	DXGIFormatR16Sint           DXGIFormat = 59
	DXGIFormatR8Unorm           DXGIFormat = 61
	DXGIFormatR8Uint            DXGIFormat = 62
	DXGIFormatR8Snorm           DXGIFormat = 63
	DXGIFormatR8Sint            DXGIFormat = 64
	DXGIFormatR9G9B9E5SharedExp DXGIFormat = 67
	DXGIFormatBC1Unorm          DXGIFormat = 71
	DXGIFormatBC1UnormSrgb      DXGIFormat = 72
	DXGIFormatBC2Unorm          DXGIFormat = 74
	DXGIFormatBC2UnormSrgb      DXGIFormat = 75
	DXGIFormatBC3Unorm          DXGIFormat = 77
	DXGIFormatBC3UnormSrgb      DXGIFormat = 78
	DXGIFormatBC4Unorm          DXGIFormat = 80
	DXGIFormatBC4Snorm          DXGIFormat = 81
	DXGIFormatBC5Unorm          DXGIFormat = 83
	DXGIFormatBC5Snorm          DXGIFormat = 84
	DXGIFormatB8G8R8A8Unorm     DXGIFormat = 87
	DXGIFormatB8G8R8A8UnormSrgb DXGIFormat = 91
	DXGIFormatBC6HUF16          DXGIFormat = 95
	DXGIFormatBC6HSF16          DXGIFormat = 96
	DXGIFormatBC7Unorm          DXGIFormat = 98
	DXGIFormatBC7UnormSrgb      DXGIFormat = 99
)

func ToD3D12ComparisonFunc(fn gputypes.CompareFunction) ComparisonFunc {
	switch fn {
	case gputypes.CompareFunctionAlways:
		return ComparisonFuncAlways
	case gputypes.CompareFunctionEqual:
		return ComparisonFuncEqual
	case gputypes.CompareFunctionGreater:
		return ComparisonFuncGreater
	case gputypes.CompareFunctionGreaterEqual:
		return ComparisonFuncGreaterEqual
	case gputypes.CompareFunctionLess:
		return ComparisonFuncLess
	case gputypes.CompareFunctionLessEqual:
		return ComparisonFuncLessEqual
	case gputypes.CompareFunctionNever:
		return ComparisonFuncNever
	case gputypes.CompareFunctionNotEqual:
		return ComparisonFuncNotEqual
	}
	core.Unreachable("compare function %d", uint32(fn))
	return 0
}

func DXGIIndexFormat(format gputypes.IndexFormat) DXGIFormat {
	switch format {
	case gputypes.IndexFormatUint16:
		return DXGIFormatR16Uint
	case gputypes.IndexFormatUint32:
		return DXGIFormatR32Uint
	}
	core.Unreachable("index format %d", uint32(format))
	return 0
}

// ToD3D12AccelerationIndexFormat maps geometry without indices to UNKNOWN.
func ToD3D12AccelerationIndexFormat(format gputypes.IndexFormat) DXGIFormat {
	if format == gpu.IndexFormatNone {
		return DXGIFormatUnknown
	}
	return DXGIIndexFormat(format)
}

func ToD3D12AccelerationVertexFormat(format gputypes.VertexFormat) DXGIFormat {
	switch format {
	case gputypes.VertexFormatFloat32x2:
		return DXGIFormatR32G32Float
	case gputypes.VertexFormatFloat32x3:
		return DXGIFormatR32G32B32Float
	}
	core.Unreachable("acceleration vertex format %d", uint32(format))
	return 0
}

// ToD3D12ShaderVisibility picks the narrowest root parameter visibility.
// Anything but a single graphics stage is visible to all stages.
func ToD3D12ShaderVisibility(stages gputypes.ShaderStage) ShaderVisibility {
	switch stages {
	case gputypes.ShaderStageVertex:
		return ShaderVisibilityVertex
	case gputypes.ShaderStageFragment:
		return ShaderVisibilityPixel
	}
	return ShaderVisibilityAll
}

func ToD3D12RayTracingAccelerationStructureBuildFlags(flags gpu.ContainerFlags) AccelerationStructureBuildFlags {
	out := AccelerationStructureBuildFlagNone
	if flags&gpu.ContainerFlagAllowUpdate != 0 {
		out |= AccelerationStructureBuildFlagAllowUpdate
	}
	if flags&gpu.ContainerFlagPreferFastBuild != 0 {
		out |= AccelerationStructureBuildFlagPreferFastBuild
	}
	if flags&gpu.ContainerFlagPreferFastTrace != 0 {
		out |= AccelerationStructureBuildFlagPreferFastTrace
	}
	if flags&gpu.ContainerFlagLowMemory != 0 {
		out |= AccelerationStructureBuildFlagMinimizeMemory
	}
	if flags&gpu.ContainerFlagAllowCompaction != 0 {
		out |= AccelerationStructureBuildFlagAllowCompaction
	}
	return out
}

func ToD3D12RayTracingGeometryFlags(flags gpu.GeometryFlags) RayTracingGeometryFlags {
	out := RayTracingGeometryFlagNone
	if flags&gpu.GeometryFlagOpaque != 0 {
		out |= RayTracingGeometryFlagOpaque
	}
	if flags&gpu.GeometryFlagAllowAnyHit != 0 {
		out |= RayTracingGeometryFlagNoDuplicateAnyHitInvocation
	}
	return out
}

func ToD3D12RayTracingInstanceFlags(flags gpu.InstanceFlags) RayTracingInstanceFlags {
	out := RayTracingInstanceFlagNone
	if flags&gpu.InstanceFlagTriangleCullDisable != 0 {
		out |= RayTracingInstanceFlagTriangleCullDisable
	}
	if flags&gpu.InstanceFlagTriangleFrontCounterclockwise != 0 {
		out |= RayTracingInstanceFlagTriangleFrontCounterclockwise
	}
	if flags&gpu.InstanceFlagForceOpaque != 0 {
		out |= RayTracingInstanceFlagForceOpaque
	}
	if flags&gpu.InstanceFlagForceNoOpaque != 0 {
		out |= RayTracingInstanceFlagForceNonOpaque
	}
	return out
}

func ToD3D12RayTracingAccelerationContainerLevel(level gpu.ContainerLevel) AccelerationStructureType {
	switch level {
	case gpu.ContainerLevelBottom:
		return AccelerationStructureTypeBottomLevel
	case gpu.ContainerLevelTop:
		return AccelerationStructureTypeTopLevel
	}
	core.Unreachable("container level %d", uint32(level))
	return 0
}

func ToD3D12RayTracingGeometryType(geometryType gpu.GeometryType) RayTracingGeometryType {
	switch geometryType {
	case gpu.GeometryTypeTriangles:
		return RayTracingGeometryTypeTriangles
	case gpu.GeometryTypeAabbs:
		return RayTracingGeometryTypeProceduralPrimitiveAABBs
	}
	core.Unreachable("geometry type %d", uint32(geometryType))
	return 0
}

// ToD3D12HitGroupType only accepts hit groups, general groups are plain
// exports in a D3D12 state object.
func ToD3D12HitGroupType(groupType gpu.ShaderGroupType) HitGroupType {
	switch groupType {
	case gpu.ShaderGroupTypeTrianglesHitGroup:
		return HitGroupTypeTriangles
	case gpu.ShaderGroupTypeProceduralHitGroup:
		return HitGroupTypeProceduralPrimitive
	}
	core.Unreachable("shader group type %d", uint32(groupType))
	return 0
}

func D3D12BeginningAccessType(op gputypes.LoadOp) RenderPassBeginningAccessType {
	switch op {
	case gputypes.LoadOpClear:
		return RenderPassBeginningAccessTypeClear
	case gputypes.LoadOpLoad:
		return RenderPassBeginningAccessTypePreserve
	}
	core.Unreachable("load op %d", uint32(op))
	return 0
}

func D3D12EndingAccessType(op gputypes.StoreOp) RenderPassEndingAccessType {
	switch op {
	case gputypes.StoreOpStore:
		return RenderPassEndingAccessTypePreserve
	case gputypes.StoreOpDiscard:
		return RenderPassEndingAccessTypeDiscard
	}
	core.Unreachable("store op %d", uint32(op))
	return 0
}

func D3D12PrimitiveTopology(topology gputypes.PrimitiveTopology) PrimitiveTopology {
	switch topology {
	case gputypes.PrimitiveTopologyPointList:
		return PrimitiveTopologyPointList
	case gputypes.PrimitiveTopologyLineList:
		return PrimitiveTopologyLineList
	case gputypes.PrimitiveTopologyLineStrip:
		return PrimitiveTopologyLineStrip
	case gputypes.PrimitiveTopologyTriangleList:
		return PrimitiveTopologyTriangleList
	case gputypes.PrimitiveTopologyTriangleStrip:
		return PrimitiveTopologyTriangleStrip
	}
	core.Unreachable("primitive topology %d", uint32(topology))
	return 0
}

var dxgiTextureFormats = map[gputypes.TextureFormat]DXGIFormat{
	gputypes.TextureFormatR8Unorm:              DXGIFormatR8Unorm,
	gputypes.TextureFormatR8Snorm:              DXGIFormatR8Snorm,
	gputypes.TextureFormatR8Uint:               DXGIFormatR8Uint,
	gputypes.TextureFormatR8Sint:               DXGIFormatR8Sint,
	gputypes.TextureFormatR16Unorm:             DXGIFormatR16Unorm,
	gputypes.TextureFormatR16Snorm:             DXGIFormatR16Snorm,
	gputypes.TextureFormatR16Uint:              DXGIFormatR16Uint,
	gputypes.TextureFormatR16Sint:              DXGIFormatR16Sint,
	gputypes.TextureFormatR16Float:             DXGIFormatR16Float,
	gputypes.TextureFormatRG8Unorm:             DXGIFormatR8G8Unorm,
	gputypes.TextureFormatRG8Snorm:             DXGIFormatR8G8Snorm,
	gputypes.TextureFormatRG8Uint:              DXGIFormatR8G8Uint,
	gputypes.TextureFormatRG8Sint:              DXGIFormatR8G8Sint,
	gputypes.TextureFormatR32Float:             DXGIFormatR32Float,
	gputypes.TextureFormatR32Uint:              DXGIFormatR32Uint,
	gputypes.TextureFormatR32Sint:              DXGIFormatR32Sint,
	gputypes.TextureFormatRG16Unorm:            DXGIFormatR16G16Unorm,
	gputypes.TextureFormatRG16Snorm:            DXGIFormatR16G16Snorm,
	gputypes.TextureFormatRG16Uint:             DXGIFormatR16G16Uint,
	gputypes.TextureFormatRG16Sint:             DXGIFormatR16G16Sint,
	gputypes.TextureFormatRG16Float:            DXGIFormatR16G16Float,
	gputypes.TextureFormatRGBA8Unorm:           DXGIFormatR8G8B8A8Unorm,
	gputypes.TextureFormatRGBA8UnormSrgb:       DXGIFormatR8G8B8A8UnormSrgb,
	gputypes.TextureFormatRGBA8Snorm:           DXGIFormatR8G8B8A8Snorm,
	gputypes.TextureFormatRGBA8Uint:            DXGIFormatR8G8B8A8Uint,
	gputypes.TextureFormatRGBA8Sint:            DXGIFormatR8G8B8A8Sint,
	gputypes.TextureFormatBGRA8Unorm:           DXGIFormatB8G8R8A8Unorm,
	gputypes.TextureFormatBGRA8UnormSrgb:       DXGIFormatB8G8R8A8UnormSrgb,
	gputypes.TextureFormatRGB10A2Uint:          DXGIFormatR10G10B10A2Uint,
	gputypes.TextureFormatRGB10A2Unorm:         DXGIFormatR10G10B10A2Unorm,
	gputypes.TextureFormatRG11B10Ufloat:        DXGIFormatR11G11B10Float,
	gputypes.TextureFormatRGB9E5Ufloat:         DXGIFormatR9G9B9E5SharedExp,
	gputypes.TextureFormatRG32Float:            DXGIFormatR32G32Float,
	gputypes.TextureFormatRG32Uint:             DXGIFormatR32G32Uint,
	gputypes.TextureFormatRG32Sint:             DXGIFormatR32G32Sint,
	gputypes.TextureFormatRGBA16Unorm:          DXGIFormatR16G16B16A16Unorm,
	gputypes.TextureFormatRGBA16Snorm:          DXGIFormatR16G16B16A16Snorm,
	gputypes.TextureFormatRGBA16Uint:           DXGIFormatR16G16B16A16Uint,
	gputypes.TextureFormatRGBA16Sint:           DXGIFormatR16G16B16A16Sint,
	gputypes.TextureFormatRGBA16Float:          DXGIFormatR16G16B16A16Float,
	gputypes.TextureFormatRGBA32Float:          DXGIFormatR32G32B32A32Float,
	gputypes.TextureFormatRGBA32Uint:           DXGIFormatR32G32B32A32Uint,
	gputypes.TextureFormatRGBA32Sint:           DXGIFormatR32G32B32A32Sint,
	gputypes.TextureFormatDepth16Unorm:         DXGIFormatD16Unorm,
	gputypes.TextureFormatDepth24Plus:          DXGIFormatD32Float,
	gputypes.TextureFormatDepth24PlusStencil8:  DXGIFormatD24UnormS8Uint,
	gputypes.TextureFormatDepth32Float:         DXGIFormatD32Float,
	gputypes.TextureFormatDepth32FloatStencil8: DXGIFormatD32FloatS8X24Uint,
	gputypes.TextureFormatBC1RGBAUnorm:         DXGIFormatBC1Unorm,
	gputypes.TextureFormatBC1RGBAUnormSrgb:     DXGIFormatBC1UnormSrgb,
	gputypes.TextureFormatBC2RGBAUnorm:         DXGIFormatBC2Unorm,
	gputypes.TextureFormatBC2RGBAUnormSrgb:     DXGIFormatBC2UnormSrgb,
	gputypes.TextureFormatBC3RGBAUnorm:         DXGIFormatBC3Unorm,
	gputypes.TextureFormatBC3RGBAUnormSrgb:     DXGIFormatBC3UnormSrgb,
	gputypes.TextureFormatBC4RUnorm:            DXGIFormatBC4Unorm,
	gputypes.TextureFormatBC4RSnorm:            DXGIFormatBC4Snorm,
	gputypes.TextureFormatBC5RGUnorm:           DXGIFormatBC5Unorm,
	gputypes.TextureFormatBC5RGSnorm:           DXGIFormatBC5Snorm,
	gputypes.TextureFormatBC6HRGBUfloat:        DXGIFormatBC6HUF16,
	gputypes.TextureFormatBC6HRGBFloat:         DXGIFormatBC6HSF16,
	gputypes.TextureFormatBC7RGBAUnorm:         DXGIFormatBC7Unorm,
	gputypes.TextureFormatBC7RGBAUnormSrgb:     DXGIFormatBC7UnormSrgb,
}

// D3D12TextureFormat has no entry for Stencil8, ETC2, EAC and ASTC, which
// D3D12 cannot sample.
func D3D12TextureFormat(format gputypes.TextureFormat) DXGIFormat {
	if f, ok := dxgiTextureFormats[format]; ok {
		return f
	}
	core.Unreachable("texture format %s", format)
	return 0
}
