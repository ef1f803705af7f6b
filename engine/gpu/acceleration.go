package gpu

import (
	"fmt"

	"github.com/gogpu/gputypes"

	"github.com/zxgjxc/dawn-ray-tracing/engine/containers"
	"github.com/zxgjxc/dawn-ray-tracing/engine/core"
	"github.com/zxgjxc/dawn-ray-tracing/engine/math"
)

type ContainerState uint8

const (
	ContainerStateUnbuilt ContainerState = iota
	ContainerStateBuilt
	ContainerStateUpdated
)

func (s ContainerState) String() string {
	switch s {
	case ContainerStateBuilt:
		return "built"
	case ContainerStateUpdated:
		return "updated"
	}
	return "unbuilt"
}

// MemoryEntry is a range of a buffer used by an acceleration container.
// Address is the GPU virtual address of the first byte.
type MemoryEntry struct {
	Buffer  *Buffer
	Offset  uint64
	Size    uint64
	Address uint64
}

func (m MemoryEntry) IsAllocated() bool {
	return m.Buffer != nil
}

type ScratchMemory struct {
	Result MemoryEntry
	Build  MemoryEntry
	Update MemoryEntry
}

// MemoryRequirements are the byte sizes the native API reports for the
// three memory regions of a container.
type MemoryRequirements struct {
	Result uint64
	Build  uint64
	Update uint64
}

// ScratchPolicy decides how a top-level container folds the scratch
// requirements of the bottom-level containers it references into its own.
type ScratchPolicy uint8

const (
	// ScratchPolicyMax sizes scratch for the largest single requirement.
	ScratchPolicyMax ScratchPolicy = iota
	// ScratchPolicySum sizes scratch for all requirements side by side.
	ScratchPolicySum
)

func (p ScratchPolicy) Combine(a, b uint64) uint64 {
	if p == ScratchPolicySum {
		return a + b
	}
	return max(a, b)
}

func (p ScratchPolicy) String() string {
	if p == ScratchPolicySum {
		return "sum"
	}
	return "max"
}

// ScratchAllocator hands out and takes back container memory. Allocation
// lives outside the recorder; implementations must be safe for concurrent use.
type ScratchAllocator interface {
	AllocateScratch(label string, size uint64, usage gputypes.BufferUsage) (MemoryEntry, error)
	ReleaseScratch(entry MemoryEntry)
}

type AccelerationGeometry struct {
	Type  GeometryType
	Flags GeometryFlags

	VertexBuffer *Buffer
	VertexOffset uint64
	VertexCount  uint32
	VertexStride uint64
	VertexFormat gputypes.VertexFormat

	// IndexFormat is IndexFormatNone when the geometry is not indexed.
	IndexBuffer *Buffer
	IndexOffset uint64
	IndexCount  uint32
	IndexFormat gputypes.IndexFormat

	AABBBuffer *Buffer
	AABBOffset uint64
	AABBCount  uint32
	AABBStride uint64
}

type AccelerationInstance struct {
	GeometryContainer *AccelerationContainer
	Transform         math.Transform3D
	InstanceID        uint32
	Mask              uint8
	InstanceOffset    uint32
	Flags             InstanceFlags
}

// TransformRows is the 3x4 row-major object-to-world matrix.
func (i *AccelerationInstance) TransformRows() [12]float32 {
	return i.Transform.Matrix().AffineRows()
}

type AccelerationContainerDescriptor struct {
	Label      string
	Level      ContainerLevel
	Flags      ContainerFlags
	Geometries []AccelerationGeometry
	Instances  []AccelerationInstance
}

// AccelerationContainer is a bottom-level (geometry) or top-level (instance)
// acceleration structure. It moves from unbuilt to built exactly once and to
// updated on its first update, at which point the build scratch is released.
type AccelerationContainer struct {
	Label      string
	Level      ContainerLevel
	Flags      ContainerFlags
	Geometries []AccelerationGeometry
	Instances  []AccelerationInstance
	// InstanceBuffer holds the native instance descriptors of a top-level
	// container. It is written by the backend when the container is created.
	InstanceBuffer MemoryEntry
	Native         interface{}

	state        ContainerState
	scratch      ScratchMemory
	requirements MemoryRequirements
	allocator    ScratchAllocator
}

var sharedLocks = containers.NewLockPool()

// SharedLocks is the lock pool guarding objects shared between recorders.
func SharedLocks() *containers.LockPool {
	return sharedLocks
}

func NewAccelerationContainer(desc *AccelerationContainerDescriptor) (*AccelerationContainer, error) {
	label := desc.Label
	if label == "" {
		label = core.NewLabel("container")
	}

	switch desc.Level {
	case ContainerLevelBottom:
		for i, g := range desc.Geometries {
			switch g.Type {
			case GeometryTypeTriangles:
				if g.VertexBuffer == nil {
					return nil, core.NewValidationError("acceleration-geometry", "geometry %d of %s has no vertex buffer", i, label)
				}
				if g.IndexFormat != IndexFormatNone && g.IndexBuffer == nil {
					return nil, core.NewValidationError("acceleration-geometry", "geometry %d of %s has no index buffer", i, label)
				}
			case GeometryTypeAabbs:
				if g.AABBBuffer == nil {
					return nil, core.NewValidationError("acceleration-geometry", "geometry %d of %s has no aabb buffer", i, label)
				}
			default:
				return nil, core.NewValidationError("acceleration-geometry", "geometry %d of %s has no type", i, label)
			}
		}
	case ContainerLevelTop:
		for i, inst := range desc.Instances {
			if inst.GeometryContainer == nil {
				return nil, core.NewValidationError("acceleration-reference", "Invalid Reference to RayTracingAccelerationContainer in instance %d of %s", i, label)
			}
			if inst.GeometryContainer.Level != ContainerLevelBottom {
				return nil, core.NewValidationError("acceleration-reference", "instance %d of %s references %s container %s", i, label, inst.GeometryContainer.Level, inst.GeometryContainer.Label)
			}
		}
	default:
		return nil, core.NewValidationError("acceleration-level", "container %s has no level", label)
	}

	return &AccelerationContainer{
		Label:      label,
		Level:      desc.Level,
		Flags:      desc.Flags,
		Geometries: desc.Geometries,
		Instances:  desc.Instances,
	}, nil
}

// BottomLevelContainers returns the distinct containers referenced by the
// instances, in first-reference order.
func (c *AccelerationContainer) BottomLevelContainers() []*AccelerationContainer {
	seen := make(map[*AccelerationContainer]struct{}, len(c.Instances))
	var out []*AccelerationContainer
	for _, inst := range c.Instances {
		if _, ok := seen[inst.GeometryContainer]; ok {
			continue
		}
		seen[inst.GeometryContainer] = struct{}{}
		out = append(out, inst.GeometryContainer)
	}
	return out
}

// ScratchRequirements folds the requirements of every referenced
// bottom-level container into own. Result memory is never shared.
func (c *AccelerationContainer) ScratchRequirements(own MemoryRequirements, policy ScratchPolicy) MemoryRequirements {
	out := own
	if c.Level != ContainerLevelTop {
		return out
	}
	for _, blas := range c.BottomLevelContainers() {
		out.Build = policy.Combine(out.Build, blas.requirements.Build)
		out.Update = policy.Combine(out.Update, blas.requirements.Update)
	}
	return out
}

// AllocateMemory sizes and allocates the three regions. Bottom-level
// containers must be allocated before the top-level ones referencing them.
func (c *AccelerationContainer) AllocateMemory(own MemoryRequirements, policy ScratchPolicy, allocator ScratchAllocator) error {
	reqs := c.ScratchRequirements(own, policy)

	var scratch ScratchMemory
	var err error
	release := func() {
		for _, e := range []MemoryEntry{scratch.Result, scratch.Build, scratch.Update} {
			if e.IsAllocated() {
				allocator.ReleaseScratch(e)
			}
		}
	}

	scratch.Result, err = allocator.AllocateScratch(c.Label+"-result", reqs.Result, BufferUsageAccelerationContainer)
	if err != nil {
		return fmt.Errorf("failed to allocate result memory of %s: %w", c.Label, err)
	}
	if reqs.Build > 0 {
		scratch.Build, err = allocator.AllocateScratch(c.Label+"-build", reqs.Build, gputypes.BufferUsageStorage)
		if err != nil {
			release()
			return fmt.Errorf("failed to allocate build scratch of %s: %w", c.Label, err)
		}
	}
	if reqs.Update > 0 {
		scratch.Update, err = allocator.AllocateScratch(c.Label+"-update", reqs.Update, gputypes.BufferUsageStorage)
		if err != nil {
			release()
			return fmt.Errorf("failed to allocate update scratch of %s: %w", c.Label, err)
		}
	}

	core.LogDebug("container %s memory: result=%d build=%d update=%d (%s)", c.Label, reqs.Result, reqs.Build, reqs.Update, policy)
	c.requirements = reqs
	c.scratch = scratch
	c.allocator = allocator
	return nil
}

func (c *AccelerationContainer) Requirements() MemoryRequirements {
	return c.requirements
}

func (c *AccelerationContainer) Scratch() ScratchMemory {
	return c.scratch
}

func (c *AccelerationContainer) State() ContainerState {
	return c.state
}

func (c *AccelerationContainer) IsBuilt() bool {
	return c.state != ContainerStateUnbuilt
}

func (c *AccelerationContainer) IsUpdated() bool {
	return c.state == ContainerStateUpdated
}

// SetBuilt is called once a build has been recorded.
func (c *AccelerationContainer) SetBuilt() {
	if c.state == ContainerStateUnbuilt {
		c.state = ContainerStateBuilt
	}
}

// SetUpdated is called before an update is recorded. The first update
// releases the build scratch, it is never needed again.
func (c *AccelerationContainer) SetUpdated() {
	core.Assert(c.IsBuilt(), "update of unbuilt container %s", c.Label)
	if c.state == ContainerStateBuilt {
		c.ReleaseBuildScratch()
		c.state = ContainerStateUpdated
	}
}

func (c *AccelerationContainer) ReleaseBuildScratch() {
	_ = sharedLocks.SafeCall(containers.AccelerationManagement, func() error {
		if !c.scratch.Build.IsAllocated() {
			return nil
		}
		core.LogDebug("releasing build scratch of %s (%d bytes)", c.Label, c.scratch.Build.Size)
		if c.allocator != nil {
			c.allocator.ReleaseScratch(c.scratch.Build)
		}
		c.scratch.Build = MemoryEntry{}
		return nil
	})
}

// Destroy gives every region back to the allocator.
func (c *AccelerationContainer) Destroy() {
	_ = sharedLocks.SafeCall(containers.AccelerationManagement, func() error {
		if c.allocator == nil {
			return nil
		}
		for _, e := range []MemoryEntry{c.scratch.Result, c.scratch.Build, c.scratch.Update, c.InstanceBuffer} {
			if e.IsAllocated() {
				c.allocator.ReleaseScratch(e)
			}
		}
		c.scratch = ScratchMemory{}
		c.InstanceBuffer = MemoryEntry{}
		return nil
	})
}

// BuildScope enforces the ordering rules of acceleration commands recorded
// into one command buffer: builds and updates are never mixed, and all
// builds (or all updates) target the same level.
type BuildScope struct {
	buildLevel  ContainerLevel
	updateLevel ContainerLevel
}

const (
	ruleBuildUpdateSeparation = "acceleration-build-update-separation"
	ruleContainerLevel        = "acceleration-container-level"
	ruleUpdateBeforeBuild     = "acceleration-update-before-build"
)

func (s *BuildScope) CheckBuild(c *AccelerationContainer) error {
	if s.updateLevel != ContainerLevelUndefined {
		return core.NewValidationError(ruleBuildUpdateSeparation,
			"cannot build %s after an update, build and update passes for acceleration containers must be separated", c.Label)
	}
	if s.buildLevel != ContainerLevelUndefined && s.buildLevel != c.Level {
		return core.NewValidationError(ruleContainerLevel,
			"cannot build %s level container %s together with %s level containers", c.Level, c.Label, s.buildLevel)
	}
	if c.IsUpdated() {
		return core.NewValidationError(ruleBuildUpdateSeparation,
			"container %s was updated and released its build memory", c.Label)
	}
	s.buildLevel = c.Level
	return nil
}

func (s *BuildScope) CheckUpdate(c *AccelerationContainer) error {
	if !c.IsBuilt() {
		return core.NewValidationError(ruleUpdateBeforeBuild,
			"container %s must be built before it can be updated", c.Label)
	}
	if s.buildLevel != ContainerLevelUndefined {
		return core.NewValidationError(ruleBuildUpdateSeparation,
			"cannot update %s after a build, build and update passes for acceleration containers must be separated", c.Label)
	}
	if s.updateLevel != ContainerLevelUndefined && s.updateLevel != c.Level {
		return core.NewValidationError(ruleContainerLevel,
			"cannot update %s level container %s together with %s level containers", c.Level, c.Label, s.updateLevel)
	}
	s.updateLevel = c.Level
	return nil
}
