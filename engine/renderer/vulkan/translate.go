package vulkan

import (
	"github.com/gogpu/gputypes"
	vk "github.com/goki/vulkan"

	"github.com/zxgjxc/dawn-ray-tracing/engine/core"
	"github.com/zxgjxc/dawn-ray-tracing/engine/gpu"
)

func ToVulkanCompareOp(op gputypes.CompareFunction) vk.CompareOp {
	switch op {
	case gputypes.CompareFunctionNever:
		return vk.CompareOpNever
	case gputypes.CompareFunctionLess:
		return vk.CompareOpLess
	case gputypes.CompareFunctionLessEqual:
		return vk.CompareOpLessOrEqual
	case gputypes.CompareFunctionGreater:
		return vk.CompareOpGreater
	case gputypes.CompareFunctionGreaterEqual:
		return vk.CompareOpGreaterOrEqual
	case gputypes.CompareFunctionEqual:
		return vk.CompareOpEqual
	case gputypes.CompareFunctionNotEqual:
		return vk.CompareOpNotEqual
	case gputypes.CompareFunctionAlways:
		return vk.CompareOpAlways
	}
	core.Unreachable("compare function %d", uint32(op))
	return 0
}

func VulkanIndexType(format gputypes.IndexFormat) vk.IndexType {
	switch format {
	case gputypes.IndexFormatUint16:
		return vk.IndexTypeUint16
	case gputypes.IndexFormatUint32:
		return vk.IndexTypeUint32
	}
	core.Unreachable("index format %d", uint32(format))
	return 0
}

// ToVulkanAccelerationIndexType also accepts geometry without indices.
func ToVulkanAccelerationIndexType(format gputypes.IndexFormat) vk.IndexType {
	if format == gpu.IndexFormatNone {
		return indexTypeNone
	}
	return VulkanIndexType(format)
}

func ToVulkanAccelerationVertexFormat(format gputypes.VertexFormat) vk.Format {
	switch format {
	case gputypes.VertexFormatFloat32x2:
		return vk.FormatR32g32Sfloat
	case gputypes.VertexFormatFloat32x3:
		return vk.FormatR32g32b32Sfloat
	}
	core.Unreachable("acceleration vertex format %d", uint32(format))
	return 0
}

func ToVulkanShaderStageFlags(stages gputypes.ShaderStage) vk.ShaderStageFlags {
	var flags vk.ShaderStageFlags
	if stages&gputypes.ShaderStageVertex != 0 {
		flags |= vk.ShaderStageFlags(vk.ShaderStageVertexBit)
	}
	if stages&gputypes.ShaderStageFragment != 0 {
		flags |= vk.ShaderStageFlags(vk.ShaderStageFragmentBit)
	}
	if stages&gputypes.ShaderStageCompute != 0 {
		flags |= vk.ShaderStageFlags(vk.ShaderStageComputeBit)
	}
	if stages&gpu.ShaderStageRayGeneration != 0 {
		flags |= vk.ShaderStageFlags(shaderStageRaygenBit)
	}
	if stages&gpu.ShaderStageRayClosestHit != 0 {
		flags |= vk.ShaderStageFlags(shaderStageClosestHitBit)
	}
	if stages&gpu.ShaderStageRayAnyHit != 0 {
		flags |= vk.ShaderStageFlags(shaderStageAnyHitBit)
	}
	if stages&gpu.ShaderStageRayMiss != 0 {
		flags |= vk.ShaderStageFlags(shaderStageMissBit)
	}
	if stages&gpu.ShaderStageRayIntersection != 0 {
		flags |= vk.ShaderStageFlags(shaderStageIntersectionBit)
	}
	if stages&gpu.ShaderStageRayCallable != 0 {
		flags |= vk.ShaderStageFlags(shaderStageCallableBit)
	}
	return flags
}

func ToVulkanBuildAccelerationContainerFlags(flags gpu.ContainerFlags) BuildAccelerationStructureFlags {
	var out BuildAccelerationStructureFlags
	if flags&gpu.ContainerFlagAllowUpdate != 0 {
		out |= BuildAccelerationStructureAllowUpdateBit
	}
	if flags&gpu.ContainerFlagPreferFastTrace != 0 {
		out |= BuildAccelerationStructurePreferFastTraceBit
	}
	if flags&gpu.ContainerFlagPreferFastBuild != 0 {
		out |= BuildAccelerationStructurePreferFastBuildBit
	}
	if flags&gpu.ContainerFlagLowMemory != 0 {
		out |= BuildAccelerationStructureLowMemoryBit
	}
	if flags&gpu.ContainerFlagAllowCompaction != 0 {
		out |= BuildAccelerationStructureAllowCompactionBit
	}
	return out
}

func ToVulkanGeometryFlags(flags gpu.GeometryFlags) GeometryFlags {
	var out GeometryFlags
	if flags&gpu.GeometryFlagOpaque != 0 {
		out |= GeometryOpaqueBit
	}
	if flags&gpu.GeometryFlagAllowAnyHit != 0 {
		out |= GeometryNoDuplicateAnyHitInvocationBit
	}
	return out
}

func ToVulkanGeometryInstanceFlags(flags gpu.InstanceFlags) GeometryInstanceFlags {
	var out GeometryInstanceFlags
	if flags&gpu.InstanceFlagTriangleCullDisable != 0 {
		out |= GeometryInstanceTriangleCullDisableBit
	}
	if flags&gpu.InstanceFlagTriangleFrontCounterclockwise != 0 {
		out |= GeometryInstanceTriangleFrontCounterclockwiseBit
	}
	if flags&gpu.InstanceFlagForceOpaque != 0 {
		out |= GeometryInstanceForceOpaqueBit
	}
	if flags&gpu.InstanceFlagForceNoOpaque != 0 {
		out |= GeometryInstanceForceNoOpaqueBit
	}
	return out
}

func ToVulkanAccelerationContainerLevel(level gpu.ContainerLevel) AccelerationStructureType {
	switch level {
	case gpu.ContainerLevelBottom:
		return AccelerationStructureTypeBottomLevel
	case gpu.ContainerLevelTop:
		return AccelerationStructureTypeTopLevel
	}
	core.Unreachable("container level %d", uint32(level))
	return 0
}

func ToVulkanGeometryType(geometryType gpu.GeometryType) GeometryType {
	switch geometryType {
	case gpu.GeometryTypeTriangles:
		return GeometryTypeTriangles
	case gpu.GeometryTypeAabbs:
		return GeometryTypeAabbs
	}
	core.Unreachable("geometry type %d", uint32(geometryType))
	return 0
}

func ToVulkanShaderBindingTableGroupType(groupType gpu.ShaderGroupType) RayTracingShaderGroupType {
	switch groupType {
	case gpu.ShaderGroupTypeGeneral:
		return RayTracingShaderGroupTypeGeneral
	case gpu.ShaderGroupTypeTrianglesHitGroup:
		return RayTracingShaderGroupTypeTrianglesHitGroup
	case gpu.ShaderGroupTypeProceduralHitGroup:
		return RayTracingShaderGroupTypeProceduralHitGroup
	}
	core.Unreachable("shader group type %d", uint32(groupType))
	return 0
}

func VulkanAttachmentLoadOp(op gputypes.LoadOp) vk.AttachmentLoadOp {
	switch op {
	case gputypes.LoadOpLoad:
		return vk.AttachmentLoadOpLoad
	case gputypes.LoadOpClear:
		return vk.AttachmentLoadOpClear
	}
	core.Unreachable("load op %d", uint32(op))
	return 0
}

func VulkanAttachmentStoreOp(op gputypes.StoreOp) vk.AttachmentStoreOp {
	switch op {
	case gputypes.StoreOpStore:
		return vk.AttachmentStoreOpStore
	case gputypes.StoreOpDiscard:
		return vk.AttachmentStoreOpDontCare
	}
	core.Unreachable("store op %d", uint32(op))
	return 0
}

func VulkanSampleCount(count uint32) vk.SampleCountFlagBits {
	switch count {
	case 0, 1:
		return vk.SampleCount1Bit
	case 4:
		return vk.SampleCount4Bit
	}
	core.Unreachable("sample count %d", count)
	return 0
}

func VulkanImageAspectFlags(format gputypes.TextureFormat, aspect gputypes.TextureAspect) vk.ImageAspectFlags {
	switch aspect {
	case gputypes.TextureAspectDepthOnly:
		return vk.ImageAspectFlags(vk.ImageAspectDepthBit)
	case gputypes.TextureAspectStencilOnly:
		return vk.ImageAspectFlags(vk.ImageAspectStencilBit)
	}
	var flags vk.ImageAspectFlags
	if format.HasDepth() {
		flags |= vk.ImageAspectFlags(vk.ImageAspectDepthBit)
	}
	if format.HasStencil() {
		flags |= vk.ImageAspectFlags(vk.ImageAspectStencilBit)
	}
	if flags == 0 {
		flags = vk.ImageAspectFlags(vk.ImageAspectColorBit)
	}
	return flags
}

var vulkanTextureFormats = map[gputypes.TextureFormat]vk.Format{
	gputypes.TextureFormatR8Unorm:              vk.FormatR8Unorm,
	gputypes.TextureFormatR8Snorm:              vk.FormatR8Snorm,
	gputypes.TextureFormatR8Uint:               vk.FormatR8Uint,
	gputypes.TextureFormatR8Sint:               vk.FormatR8Sint,
	gputypes.TextureFormatR16Unorm:             vk.FormatR16Unorm,
	gputypes.TextureFormatR16Snorm:             vk.FormatR16Snorm,
	gputypes.TextureFormatR16Uint:              vk.FormatR16Uint,
	gputypes.TextureFormatR16Sint:              vk.FormatR16Sint,
	gputypes.TextureFormatR16Float:             vk.FormatR16Sfloat,
	gputypes.TextureFormatRG8Unorm:             vk.FormatR8g8Unorm,
	gputypes.TextureFormatRG8Snorm:             vk.FormatR8g8Snorm,
	gputypes.TextureFormatRG8Uint:              vk.FormatR8g8Uint,
	gputypes.TextureFormatRG8Sint:              vk.FormatR8g8Sint,
	gputypes.TextureFormatR32Float:             vk.FormatR32Sfloat,
	gputypes.TextureFormatR32Uint:              vk.FormatR32Uint,
	gputypes.TextureFormatR32Sint:              vk.FormatR32Sint,
	gputypes.TextureFormatRG16Unorm:            vk.FormatR16g16Unorm,
	gputypes.TextureFormatRG16Snorm:            vk.FormatR16g16Snorm,
	gputypes.TextureFormatRG16Uint:             vk.FormatR16g16Uint,
	gputypes.TextureFormatRG16Sint:             vk.FormatR16g16Sint,
	gputypes.TextureFormatRG16Float:            vk.FormatR16g16Sfloat,
	gputypes.TextureFormatRGBA8Unorm:           vk.FormatR8g8b8a8Unorm,
	gputypes.TextureFormatRGBA8UnormSrgb:       vk.FormatR8g8b8a8Srgb,
	gputypes.TextureFormatRGBA8Snorm:           vk.FormatR8g8b8a8Snorm,
	gputypes.TextureFormatRGBA8Uint:            vk.FormatR8g8b8a8Uint,
	gputypes.TextureFormatRGBA8Sint:            vk.FormatR8g8b8a8Sint,
	gputypes.TextureFormatBGRA8Unorm:           vk.FormatB8g8r8a8Unorm,
	gputypes.TextureFormatBGRA8UnormSrgb:       vk.FormatB8g8r8a8Srgb,
	gputypes.TextureFormatRGB10A2Uint:          vk.FormatA2b10g10r10UintPack32,
	gputypes.TextureFormatRGB10A2Unorm:         vk.FormatA2b10g10r10UnormPack32,
	gputypes.TextureFormatRG11B10Ufloat:        vk.FormatB10g11r11UfloatPack32,
	gputypes.TextureFormatRGB9E5Ufloat:         vk.FormatE5b9g9r9UfloatPack32,
	gputypes.TextureFormatRG32Float:            vk.FormatR32g32Sfloat,
	gputypes.TextureFormatRG32Uint:             vk.FormatR32g32Uint,
	gputypes.TextureFormatRG32Sint:             vk.FormatR32g32Sint,
	gputypes.TextureFormatRGBA16Unorm:          vk.FormatR16g16b16a16Unorm,
	gputypes.TextureFormatRGBA16Snorm:          vk.FormatR16g16b16a16Snorm,
	gputypes.TextureFormatRGBA16Uint:           vk.FormatR16g16b16a16Uint,
	gputypes.TextureFormatRGBA16Sint:           vk.FormatR16g16b16a16Sint,
	gputypes.TextureFormatRGBA16Float:          vk.FormatR16g16b16a16Sfloat,
	gputypes.TextureFormatRGBA32Float:          vk.FormatR32g32b32a32Sfloat,
	gputypes.TextureFormatRGBA32Uint:           vk.FormatR32g32b32a32Uint,
	gputypes.TextureFormatRGBA32Sint:           vk.FormatR32g32b32a32Sint,
	gputypes.TextureFormatStencil8:             vk.FormatS8Uint,
	gputypes.TextureFormatDepth16Unorm:         vk.FormatD16Unorm,
	gputypes.TextureFormatDepth24Plus:          vk.FormatD32Sfloat,
	gputypes.TextureFormatDepth24PlusStencil8:  vk.FormatD32SfloatS8Uint,
	gputypes.TextureFormatDepth32Float:         vk.FormatD32Sfloat,
	gputypes.TextureFormatDepth32FloatStencil8: vk.FormatD32SfloatS8Uint,
	gputypes.TextureFormatBC1RGBAUnorm:         vk.FormatBc1RgbaUnormBlock,
	gputypes.TextureFormatBC1RGBAUnormSrgb:     vk.FormatBc1RgbaSrgbBlock,
	gputypes.TextureFormatBC2RGBAUnorm:         vk.FormatBc2UnormBlock,
	gputypes.TextureFormatBC2RGBAUnormSrgb:     vk.FormatBc2SrgbBlock,
	gputypes.TextureFormatBC3RGBAUnorm:         vk.FormatBc3UnormBlock,
	gputypes.TextureFormatBC3RGBAUnormSrgb:     vk.FormatBc3SrgbBlock,
	gputypes.TextureFormatBC4RUnorm:            vk.FormatBc4UnormBlock,
	gputypes.TextureFormatBC4RSnorm:            vk.FormatBc4SnormBlock,
	gputypes.TextureFormatBC5RGUnorm:           vk.FormatBc5UnormBlock,
	gputypes.TextureFormatBC5RGSnorm:           vk.FormatBc5SnormBlock,
	gputypes.TextureFormatBC6HRGBUfloat:        vk.FormatBc6hUfloatBlock,
	gputypes.TextureFormatBC6HRGBFloat:         vk.FormatBc6hSfloatBlock,
	gputypes.TextureFormatBC7RGBAUnorm:         vk.FormatBc7UnormBlock,
	gputypes.TextureFormatBC7RGBAUnormSrgb:     vk.FormatBc7SrgbBlock,
}

// VulkanTextureFormat panics on formats the device layer never creates
// textures for (ETC2, EAC and ASTC).
func VulkanTextureFormat(format gputypes.TextureFormat) vk.Format {
	if f, ok := vulkanTextureFormats[format]; ok {
		return f
	}
	core.Unreachable("texture format %s", format)
	return 0
}
