package vulkan

import (
	"fmt"

	vk "github.com/goki/vulkan"

	"github.com/zxgjxc/dawn-ray-tracing/engine/core"
	"github.com/zxgjxc/dawn-ray-tracing/engine/gpu"
)

/**
 * @brief Entry points of the ray-tracing extension. The logging sink
 * provides all of them. The native renderer has none, its bindings carry
 * no ray-tracing commands.
 */
type RayTracingFunctions struct {
	CreateAccelerationStructure                func(device vk.Device, info *AccelerationStructureInfo) (AccelerationStructureHandle, error)
	DestroyAccelerationStructure               func(device vk.Device, handle AccelerationStructureHandle)
	GetAccelerationStructureMemoryRequirements func(device vk.Device, handle AccelerationStructureHandle, kind AccelerationStructureMemoryRequirementsType) uint64
	BindAccelerationStructureMemory            func(device vk.Device, handle AccelerationStructureHandle, memory gpu.MemoryEntry) error
	GetAccelerationStructureHandle             func(device vk.Device, handle AccelerationStructureHandle) (uint64, error)

	CmdBuildAccelerationStructure func(cmd vk.CommandBuffer, info *AccelerationStructureInfo, instances gpu.MemoryEntry, update bool, dst, src AccelerationStructureHandle, scratch gpu.MemoryEntry)
	CmdCopyAccelerationStructure  func(cmd vk.CommandBuffer, dst, src AccelerationStructureHandle, mode CopyAccelerationStructureMode)
	CmdTraceRays                  func(cmd vk.CommandBuffer, raygen, miss, hit, callable ShaderBindingRegion, width, height, depth uint32)
}

// Supported reports whether every entry point was loaded.
func (f *RayTracingFunctions) Supported() bool {
	return f != nil && len(f.missing()) == 0
}

func (f *RayTracingFunctions) missing() []string {
	if f == nil {
		return []string{"vkCreateAccelerationStructure"}
	}
	var out []string
	entries := []struct {
		name   string
		loaded bool
	}{
		{"vkCreateAccelerationStructure", f.CreateAccelerationStructure != nil},
		{"vkDestroyAccelerationStructure", f.DestroyAccelerationStructure != nil},
		{"vkGetAccelerationStructureMemoryRequirements", f.GetAccelerationStructureMemoryRequirements != nil},
		{"vkBindAccelerationStructureMemory", f.BindAccelerationStructureMemory != nil},
		{"vkGetAccelerationStructureHandle", f.GetAccelerationStructureHandle != nil},
		{"vkCmdBuildAccelerationStructure", f.CmdBuildAccelerationStructure != nil},
		{"vkCmdCopyAccelerationStructure", f.CmdCopyAccelerationStructure != nil},
		{"vkCmdTraceRays", f.CmdTraceRays != nil},
	}
	for _, e := range entries {
		if !e.loaded {
			out = append(out, e.name)
		}
	}
	return out
}

func invalidCall(name string) error {
	return core.NewValidationError("ray-tracing-call", "Invalid Call to %s", name)
}

// AccelerationStructureInfoFor translates the geometry or instance list of
// a container.
func AccelerationStructureInfoFor(c *gpu.AccelerationContainer) AccelerationStructureInfo {
	info := AccelerationStructureInfo{
		Type:  ToVulkanAccelerationContainerLevel(c.Level),
		Flags: ToVulkanBuildAccelerationContainerFlags(c.Flags),
	}
	if c.Level == gpu.ContainerLevelTop {
		info.InstanceCount = uint32(len(c.Instances))
		return info
	}

	for _, g := range c.Geometries {
		geometry := Geometry{
			Type:  ToVulkanGeometryType(g.Type),
			Flags: ToVulkanGeometryFlags(g.Flags),
		}
		switch g.Type {
		case gpu.GeometryTypeTriangles:
			geometry.Triangles = GeometryTriangles{
				VertexData:   g.VertexBuffer,
				VertexOffset: g.VertexOffset,
				VertexCount:  g.VertexCount,
				VertexStride: g.VertexStride,
				VertexFormat: ToVulkanAccelerationVertexFormat(g.VertexFormat),
				IndexType:    ToVulkanAccelerationIndexType(g.IndexFormat),
			}
			if g.IndexFormat != gpu.IndexFormatNone {
				geometry.Triangles.IndexData = g.IndexBuffer
				geometry.Triangles.IndexOffset = g.IndexOffset
				geometry.Triangles.IndexCount = g.IndexCount
			}
		case gpu.GeometryTypeAabbs:
			geometry.AABBs = GeometryAABBs{
				AABBData: g.AABBBuffer,
				NumAABBs: g.AABBCount,
				Stride:   uint32(g.AABBStride),
				Offset:   g.AABBOffset,
			}
		}
		info.Geometries = append(info.Geometries, geometry)
	}
	return info
}

/**
 * @brief Creates the native acceleration structure of a container,
 * allocates its memory and, for top-level containers, uploads the
 * instance records referencing the bottom-level handles.
 */
func CreateAccelerationContainer(device vk.Device, fns *RayTracingFunctions, desc *gpu.AccelerationContainerDescriptor, allocator gpu.ScratchAllocator) (*gpu.AccelerationContainer, error) {
	if missing := fns.missing(); len(missing) > 0 {
		return nil, invalidCall(missing[0])
	}

	container, err := gpu.NewAccelerationContainer(desc)
	if err != nil {
		return nil, err
	}

	native := &Container{Info: AccelerationStructureInfoFor(container)}
	native.Handle, err = fns.CreateAccelerationStructure(device, &native.Info)
	if err != nil {
		return nil, core.NewDeviceError("vkCreateAccelerationStructure", err)
	}

	reqs := gpu.MemoryRequirements{
		Result: fns.GetAccelerationStructureMemoryRequirements(device, native.Handle, AccelerationStructureMemoryRequirementsTypeObject),
		Build:  fns.GetAccelerationStructureMemoryRequirements(device, native.Handle, AccelerationStructureMemoryRequirementsTypeBuildScratch),
		Update: fns.GetAccelerationStructureMemoryRequirements(device, native.Handle, AccelerationStructureMemoryRequirementsTypeUpdateScratch),
	}
	if err := container.AllocateMemory(reqs, gpu.ScratchPolicyMax, allocator); err != nil {
		native.Destroy(device, fns)
		return nil, err
	}
	container.Native = native

	fail := func(err error) (*gpu.AccelerationContainer, error) {
		container.Destroy()
		native.Destroy(device, fns)
		return nil, err
	}

	if err := fns.BindAccelerationStructureMemory(device, native.Handle, container.Scratch().Result); err != nil {
		return fail(core.NewDeviceError("vkBindAccelerationStructureMemory", err))
	}
	native.Reference, err = fns.GetAccelerationStructureHandle(device, native.Handle)
	if err != nil {
		return fail(core.NewDeviceError("vkGetAccelerationStructureHandle", err))
	}

	if container.Level == gpu.ContainerLevelTop && len(container.Instances) > 0 {
		records, err := gpu.EncodeInstances(container.Instances,
			func(blas *gpu.AccelerationContainer) uint64 { return ToBackendContainer(blas).Reference },
			func(flags gpu.InstanceFlags) uint8 { return uint8(ToVulkanGeometryInstanceFlags(flags)) })
		if err != nil {
			return fail(fmt.Errorf("failed to encode instances of %s: %w", container.Label, err))
		}
		if err := container.UploadInstances(allocator, records); err != nil {
			return fail(err)
		}
	}

	core.LogDebug("created %s level container %s", container.Level, container.Label)
	return container, nil
}

func (c *CommandBuffer) buildAccelerationContainer(container *gpu.AccelerationContainer) error {
	if err := c.scope.CheckBuild(container); err != nil {
		return err
	}
	native := ToBackendContainer(container)
	scratch := container.Scratch()

	if err := c.cmds.BuildAccelerationStructure(&native.Info, container.InstanceBuffer, false, container, nil, scratch.Build); err != nil {
		return err
	}
	accelerationBarrier(c.cmds)

	container.SetBuilt()
	core.Metrics().AccelerationBuilds.Add(1)
	return nil
}

func (c *CommandBuffer) updateAccelerationContainer(container *gpu.AccelerationContainer) error {
	if err := c.scope.CheckUpdate(container); err != nil {
		return err
	}
	container.SetUpdated()

	native := ToBackendContainer(container)
	scratch := container.Scratch()
	if err := c.cmds.BuildAccelerationStructure(&native.Info, container.InstanceBuffer, true, container, container, scratch.Update); err != nil {
		return err
	}
	accelerationBarrier(c.cmds)

	core.Metrics().AccelerationUpdate.Add(1)
	return nil
}

func (c *CommandBuffer) copyAccelerationContainer(src, dst *gpu.AccelerationContainer) error {
	if !src.IsBuilt() {
		return core.NewValidationError("acceleration-copy", "cannot copy unbuilt container %s", src.Label)
	}
	if src.Level != dst.Level {
		return core.NewValidationError("acceleration-copy", "cannot copy %s level container %s into %s level container %s", src.Level, src.Label, dst.Level, dst.Label)
	}
	if err := c.cmds.CopyAccelerationStructure(dst, src, CopyAccelerationStructureModeClone); err != nil {
		return err
	}
	accelerationBarrier(c.cmds)
	dst.SetBuilt()
	return nil
}
