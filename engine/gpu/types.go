package gpu

import "github.com/gogpu/gputypes"

const (
	MaxBindGroups       = 4
	MaxBindingsPerGroup = 16
	MaxVertexBuffers    = 16
	MaxColorAttachments = 8
)

// Ray-tracing stages extend the neutral shader stage bit set.
const (
	ShaderStageRayGeneration   gputypes.ShaderStage = 0x00000008
	ShaderStageRayClosestHit   gputypes.ShaderStage = 0x00000010
	ShaderStageRayAnyHit       gputypes.ShaderStage = 0x00000020
	ShaderStageRayMiss         gputypes.ShaderStage = 0x00000040
	ShaderStageRayIntersection gputypes.ShaderStage = 0x00000080
	ShaderStageRayCallable     gputypes.ShaderStage = 0x00000100
)

// IndexFormatNone marks acceleration geometry without an index buffer.
const IndexFormatNone = gputypes.IndexFormatUndefined

// Internal usages the recorder transitions to on its own.
const (
	TextureUsageReadonlyStorage gputypes.TextureUsage = 1 << 32
	TextureUsageResolveSource   gputypes.TextureUsage = 1 << 33
	TextureUsageResolveDest     gputypes.TextureUsage = 1 << 34
	TextureUsagePresent         gputypes.TextureUsage = 1 << 35

	BufferUsageAccelerationContainer gputypes.BufferUsage = 1 << 32
	BufferUsageShaderBindingTable    gputypes.BufferUsage = 1 << 33
)

const (
	writableBufferUsages  = gputypes.BufferUsageCopyDst | gputypes.BufferUsageStorage | gputypes.BufferUsageMapWrite | BufferUsageAccelerationContainer
	writableTextureUsages = gputypes.TextureUsageCopyDst | gputypes.TextureUsageStorageBinding | gputypes.TextureUsageRenderAttachment | TextureUsageResolveDest
)

type BindingType uint32

const (
	BindingTypeUndefined BindingType = iota
	BindingTypeUniformBuffer
	BindingTypeStorageBuffer
	BindingTypeReadonlyStorageBuffer
	BindingTypeSampler
	BindingTypeComparisonSampler
	BindingTypeSampledTexture
	BindingTypeReadonlyStorageTexture
	BindingTypeWriteonlyStorageTexture
	BindingTypeAccelerationContainer
)

func (t BindingType) String() string {
	switch t {
	case BindingTypeUniformBuffer:
		return "UniformBuffer"
	case BindingTypeStorageBuffer:
		return "StorageBuffer"
	case BindingTypeReadonlyStorageBuffer:
		return "ReadonlyStorageBuffer"
	case BindingTypeSampler:
		return "Sampler"
	case BindingTypeComparisonSampler:
		return "ComparisonSampler"
	case BindingTypeSampledTexture:
		return "SampledTexture"
	case BindingTypeReadonlyStorageTexture:
		return "ReadonlyStorageTexture"
	case BindingTypeWriteonlyStorageTexture:
		return "WriteonlyStorageTexture"
	case BindingTypeAccelerationContainer:
		return "AccelerationContainer"
	}
	return "Undefined"
}

// IsBuffer reports whether the binding references a buffer range.
func (t BindingType) IsBuffer() bool {
	switch t {
	case BindingTypeUniformBuffer, BindingTypeStorageBuffer, BindingTypeReadonlyStorageBuffer:
		return true
	}
	return false
}

// NeedsStorageBarrier reports whether a dispatch must transition the bound
// resource before the shader writes it.
func (t BindingType) NeedsStorageBarrier() bool {
	switch t {
	case BindingTypeStorageBuffer, BindingTypeReadonlyStorageTexture, BindingTypeWriteonlyStorageTexture:
		return true
	}
	return false
}

// IsSampler reports whether the binding lives in the sampler descriptor table.
func (t BindingType) IsSampler() bool {
	return t == BindingTypeSampler || t == BindingTypeComparisonSampler
}

type ContainerLevel uint32

const (
	ContainerLevelUndefined ContainerLevel = iota
	ContainerLevelBottom
	ContainerLevelTop
)

func (l ContainerLevel) String() string {
	switch l {
	case ContainerLevelBottom:
		return "bottom"
	case ContainerLevelTop:
		return "top"
	}
	return "undefined"
}

type GeometryType uint32

const (
	GeometryTypeUndefined GeometryType = iota
	GeometryTypeTriangles
	GeometryTypeAabbs
)

// ContainerFlags are the build hints of an acceleration container.
type ContainerFlags uint32

const (
	ContainerFlagNone            ContainerFlags = 0
	ContainerFlagAllowUpdate     ContainerFlags = 1 << 0
	ContainerFlagPreferFastTrace ContainerFlags = 1 << 1
	ContainerFlagPreferFastBuild ContainerFlags = 1 << 2
	ContainerFlagLowMemory       ContainerFlags = 1 << 3
	ContainerFlagAllowCompaction ContainerFlags = 1 << 4
)

type GeometryFlags uint32

const (
	GeometryFlagNone        GeometryFlags = 0
	GeometryFlagOpaque      GeometryFlags = 1 << 0
	GeometryFlagAllowAnyHit GeometryFlags = 1 << 1
)

type InstanceFlags uint32

const (
	InstanceFlagNone                          InstanceFlags = 0
	InstanceFlagTriangleCullDisable           InstanceFlags = 1 << 0
	InstanceFlagTriangleFrontCounterclockwise InstanceFlags = 1 << 1
	InstanceFlagForceOpaque                   InstanceFlags = 1 << 2
	InstanceFlagForceNoOpaque                 InstanceFlags = 1 << 3
)

type ShaderGroupType uint32

const (
	ShaderGroupTypeUndefined ShaderGroupType = iota
	ShaderGroupTypeGeneral
	ShaderGroupTypeTrianglesHitGroup
	ShaderGroupTypeProceduralHitGroup
)

// PassKind identifies the pass the recorder is currently inside.
type PassKind uint8

const (
	PassNone PassKind = iota
	PassCompute
	PassRender
	PassRayTracing
)

func (k PassKind) String() string {
	switch k {
	case PassCompute:
		return "compute"
	case PassRender:
		return "render"
	case PassRayTracing:
		return "ray-tracing"
	}
	return "none"
}
