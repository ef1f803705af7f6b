package vulkan

import vk "github.com/goki/vulkan"

// Ray-tracing enums from VK_NV_ray_tracing / VK_KHR_ray_tracing that the
// core bindings do not carry. Values match the registry.
const (
	shaderStageRaygenBit       vk.ShaderStageFlagBits = 0x00000100
	shaderStageAnyHitBit       vk.ShaderStageFlagBits = 0x00000200
	shaderStageClosestHitBit   vk.ShaderStageFlagBits = 0x00000400
	shaderStageMissBit         vk.ShaderStageFlagBits = 0x00000800
	shaderStageIntersectionBit vk.ShaderStageFlagBits = 0x00001000
	shaderStageCallableBit     vk.ShaderStageFlagBits = 0x00002000

	indexTypeNone vk.IndexType = 1000165000

	accessAccelerationStructureReadBit  vk.AccessFlagBits = 0x00200000
	accessAccelerationStructureWriteBit vk.AccessFlagBits = 0x00400000

	pipelineStageRayTracingShaderBit           vk.PipelineStageFlagBits = 0x00200000
	pipelineStageAccelerationStructureBuildBit vk.PipelineStageFlagBits = 0x02000000

	pipelineBindPointRayTracing vk.PipelineBindPoint = 1000165000
)

type AccelerationStructureType uint32

const (
	AccelerationStructureTypeTopLevel    AccelerationStructureType = 0
	AccelerationStructureTypeBottomLevel AccelerationStructureType = 1
)

type BuildAccelerationStructureFlags uint32

const (
	BuildAccelerationStructureAllowUpdateBit     BuildAccelerationStructureFlags = 0x00000001
	BuildAccelerationStructureAllowCompactionBit BuildAccelerationStructureFlags = 0x00000002
	BuildAccelerationStructurePreferFastTraceBit BuildAccelerationStructureFlags = 0x00000004
	BuildAccelerationStructurePreferFastBuildBit BuildAccelerationStructureFlags = 0x00000008
	BuildAccelerationStructureLowMemoryBit       BuildAccelerationStructureFlags = 0x00000010
)

type GeometryType uint32

const (
	GeometryTypeTriangles GeometryType = 0
	GeometryTypeAabbs     GeometryType = 1
)

type GeometryFlags uint32

const (
	GeometryOpaqueBit                      GeometryFlags = 0x00000001
	GeometryNoDuplicateAnyHitInvocationBit GeometryFlags = 0x00000002
)

type GeometryInstanceFlags uint32

const (
	GeometryInstanceTriangleCullDisableBit           GeometryInstanceFlags = 0x00000001
	GeometryInstanceTriangleFrontCounterclockwiseBit GeometryInstanceFlags = 0x00000002
	GeometryInstanceForceOpaqueBit                   GeometryInstanceFlags = 0x00000004
	GeometryInstanceForceNoOpaqueBit                 GeometryInstanceFlags = 0x00000008
)

type RayTracingShaderGroupType uint32

const (
	RayTracingShaderGroupTypeGeneral            RayTracingShaderGroupType = 0
	RayTracingShaderGroupTypeTrianglesHitGroup  RayTracingShaderGroupType = 1
	RayTracingShaderGroupTypeProceduralHitGroup RayTracingShaderGroupType = 2
)

type CopyAccelerationStructureMode uint32

const (
	CopyAccelerationStructureModeClone   CopyAccelerationStructureMode = 0
	CopyAccelerationStructureModeCompact CopyAccelerationStructureMode = 1
)

type AccelerationStructureMemoryRequirementsType uint32

const (
	AccelerationStructureMemoryRequirementsTypeObject        AccelerationStructureMemoryRequirementsType = 0
	AccelerationStructureMemoryRequirementsTypeBuildScratch  AccelerationStructureMemoryRequirementsType = 1
	AccelerationStructureMemoryRequirementsTypeUpdateScratch AccelerationStructureMemoryRequirementsType = 2
)

// Size in bytes of one VkGeometryInstance record.
const geometryInstanceSize = 64
