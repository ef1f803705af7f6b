package d3d12

import (
	"fmt"

	"github.com/zxgjxc/dawn-ray-tracing/engine/core"
	"github.com/zxgjxc/dawn-ray-tracing/engine/gpu"
)

// RaytracingAccelerationStructurePrebuildInfo is what the driver reports
// for a set of build inputs.
type RaytracingAccelerationStructurePrebuildInfo struct {
	ResultDataMaxSizeInBytes     uint64
	ScratchDataSizeInBytes       uint64
	UpdateScratchDataSizeInBytes uint64
}

// AccelerationDevice is the part of ID3D12Device5 containers need. Devices
// without ray tracing return a validation error.
type AccelerationDevice interface {
	GetRaytracingAccelerationStructurePrebuildInfo(inputs *BuildRaytracingAccelerationStructureInputs) (RaytracingAccelerationStructurePrebuildInfo, error)
}

// BuildInputsFor translates the geometry of a bottom-level container. The
// instance buffer of a top-level container is filled in once it is uploaded.
func BuildInputsFor(c *gpu.AccelerationContainer) BuildRaytracingAccelerationStructureInputs {
	inputs := BuildRaytracingAccelerationStructureInputs{
		Type:  ToD3D12RayTracingAccelerationContainerLevel(c.Level),
		Flags: ToD3D12RayTracingAccelerationStructureBuildFlags(c.Flags),
	}
	if c.Level == gpu.ContainerLevelTop {
		inputs.NumDescs = uint32(len(c.Instances))
		inputs.InstanceDescs = c.InstanceBuffer.Address
		return inputs
	}

	for _, g := range c.Geometries {
		desc := RayTracingGeometryDesc{
			Type:  ToD3D12RayTracingGeometryType(g.Type),
			Flags: ToD3D12RayTracingGeometryFlags(g.Flags),
		}
		switch g.Type {
		case gpu.GeometryTypeTriangles:
			desc.Triangles = RayTracingGeometryTrianglesDesc{
				VertexFormat: ToD3D12AccelerationVertexFormat(g.VertexFormat),
				VertexCount:  g.VertexCount,
				VertexBuffer: GPUVirtualAddressAndStride{
					StartAddress:  g.VertexBuffer.GPUAddress + g.VertexOffset,
					StrideInBytes: g.VertexStride,
				},
				IndexFormat: ToD3D12AccelerationIndexFormat(g.IndexFormat),
			}
			if g.IndexFormat != gpu.IndexFormatNone {
				desc.Triangles.IndexBuffer = g.IndexBuffer.GPUAddress + g.IndexOffset
				desc.Triangles.IndexCount = g.IndexCount
			}
		case gpu.GeometryTypeAabbs:
			desc.AABBs = RayTracingGeometryAABBsDesc{
				AABBCount: uint64(g.AABBCount),
				AABBs: GPUVirtualAddressAndStride{
					StartAddress:  g.AABBBuffer.GPUAddress + g.AABBOffset,
					StrideInBytes: g.AABBStride,
				},
			}
		}
		inputs.GeometryDescs = append(inputs.GeometryDescs, desc)
	}
	inputs.NumDescs = uint32(len(inputs.GeometryDescs))
	return inputs
}

/**
 * @brief Creates a container and allocates its memory from the prebuild
 * info. Top-level containers size their scratch for all referenced
 * bottom-level containers side by side and upload instance records
 * pointing at the result memory of those containers.
 */
func CreateAccelerationContainer(device AccelerationDevice, desc *gpu.AccelerationContainerDescriptor, allocator gpu.ScratchAllocator) (*gpu.AccelerationContainer, error) {
	container, err := gpu.NewAccelerationContainer(desc)
	if err != nil {
		return nil, err
	}

	native := &Container{Inputs: BuildInputsFor(container)}
	info, err := device.GetRaytracingAccelerationStructurePrebuildInfo(&native.Inputs)
	if err != nil {
		return nil, err
	}

	reqs := gpu.MemoryRequirements{
		Result: info.ResultDataMaxSizeInBytes,
		Build:  info.ScratchDataSizeInBytes,
		Update: info.UpdateScratchDataSizeInBytes,
	}
	if err := container.AllocateMemory(reqs, gpu.ScratchPolicySum, allocator); err != nil {
		return nil, err
	}
	container.Native = native

	if container.Level == gpu.ContainerLevelTop && len(container.Instances) > 0 {
		records, err := gpu.EncodeInstances(container.Instances,
			func(blas *gpu.AccelerationContainer) uint64 { return blas.Scratch().Result.Address },
			func(flags gpu.InstanceFlags) uint8 { return uint8(ToD3D12RayTracingInstanceFlags(flags)) })
		if err != nil {
			container.Destroy()
			return nil, fmt.Errorf("failed to encode instances of %s: %w", container.Label, err)
		}
		if err := container.UploadInstances(allocator, records); err != nil {
			container.Destroy()
			return nil, err
		}
		native.Inputs.InstanceDescs = container.InstanceBuffer.Address
	}

	core.LogDebug("created %s level container %s", container.Level, container.Label)
	return container, nil
}

func (c *CommandBuffer) commandList4(call string) (CommandList4, error) {
	list4, ok := c.list.(CommandList4)
	if !ok {
		return nil, invalidCall(call)
	}
	return list4, nil
}

func (c *CommandBuffer) buildAccelerationContainer(container *gpu.AccelerationContainer) error {
	if err := c.scope.CheckBuild(container); err != nil {
		return err
	}
	list4, err := c.commandList4("BuildRaytracingAccelerationStructure")
	if err != nil {
		return err
	}

	native := ToBackendContainer(container)
	scratch := container.Scratch()
	desc := BuildRaytracingAccelerationStructureDesc{
		DestAccelerationStructureData:    scratch.Result.Address,
		Inputs:                           native.Inputs,
		ScratchAccelerationStructureData: scratch.Build.Address,
	}
	if err := list4.BuildRaytracingAccelerationStructure(&desc); err != nil {
		return err
	}
	uavBarrier(c.list, container)

	container.SetBuilt()
	core.Metrics().AccelerationBuilds.Add(1)
	return nil
}

func (c *CommandBuffer) updateAccelerationContainer(container *gpu.AccelerationContainer) error {
	if err := c.scope.CheckUpdate(container); err != nil {
		return err
	}
	list4, err := c.commandList4("BuildRaytracingAccelerationStructure")
	if err != nil {
		return err
	}
	container.SetUpdated()

	native := ToBackendContainer(container)
	scratch := container.Scratch()
	desc := BuildRaytracingAccelerationStructureDesc{
		DestAccelerationStructureData:    scratch.Result.Address,
		Inputs:                           native.Inputs,
		SourceAccelerationStructureData:  scratch.Result.Address,
		ScratchAccelerationStructureData: scratch.Update.Address,
	}
	desc.Inputs.Flags |= AccelerationStructureBuildFlagPerformUpdate
	if err := list4.BuildRaytracingAccelerationStructure(&desc); err != nil {
		return err
	}
	uavBarrier(c.list, container)

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
	list4, err := c.commandList4("CopyRaytracingAccelerationStructure")
	if err != nil {
		return err
	}
	if err := list4.CopyRaytracingAccelerationStructure(dst.Scratch().Result.Address, src.Scratch().Result.Address, AccelerationStructureCopyModeClone); err != nil {
		return err
	}
	uavBarrier(c.list, dst)
	dst.SetBuilt()
	return nil
}
