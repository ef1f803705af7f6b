package vulkan

import (
	"github.com/gogpu/gputypes"
	vk "github.com/goki/vulkan"

	"github.com/zxgjxc/dawn-ray-tracing/engine/core"
	"github.com/zxgjxc/dawn-ray-tracing/engine/gpu"
)

const shaderStages = vk.PipelineStageFlags(vk.PipelineStageVertexShaderBit) |
	vk.PipelineStageFlags(vk.PipelineStageFragmentShaderBit) |
	vk.PipelineStageFlags(vk.PipelineStageComputeShaderBit) |
	vk.PipelineStageFlags(pipelineStageRayTracingShaderBit)

func bufferAccessFlags(usage gputypes.BufferUsage) vk.AccessFlags {
	var flags vk.AccessFlags
	if usage&gputypes.BufferUsageMapRead != 0 {
		flags |= vk.AccessFlags(vk.AccessHostReadBit)
	}
	if usage&gputypes.BufferUsageMapWrite != 0 {
		flags |= vk.AccessFlags(vk.AccessHostWriteBit)
	}
	if usage&gputypes.BufferUsageCopySrc != 0 {
		flags |= vk.AccessFlags(vk.AccessTransferReadBit)
	}
	if usage&gputypes.BufferUsageCopyDst != 0 {
		flags |= vk.AccessFlags(vk.AccessTransferWriteBit)
	}
	if usage&gputypes.BufferUsageIndex != 0 {
		flags |= vk.AccessFlags(vk.AccessIndexReadBit)
	}
	if usage&gputypes.BufferUsageVertex != 0 {
		flags |= vk.AccessFlags(vk.AccessVertexAttributeReadBit)
	}
	if usage&gputypes.BufferUsageUniform != 0 {
		flags |= vk.AccessFlags(vk.AccessUniformReadBit)
	}
	if usage&gputypes.BufferUsageStorage != 0 {
		flags |= vk.AccessFlags(vk.AccessShaderReadBit) | vk.AccessFlags(vk.AccessShaderWriteBit)
	}
	if usage&gputypes.BufferUsageIndirect != 0 {
		flags |= vk.AccessFlags(vk.AccessIndirectCommandReadBit)
	}
	if usage&gpu.BufferUsageAccelerationContainer != 0 {
		flags |= vk.AccessFlags(accessAccelerationStructureReadBit) | vk.AccessFlags(accessAccelerationStructureWriteBit)
	}
	if usage&gpu.BufferUsageShaderBindingTable != 0 {
		flags |= vk.AccessFlags(vk.AccessShaderReadBit)
	}
	return flags
}

func bufferPipelineStages(usage gputypes.BufferUsage) vk.PipelineStageFlags {
	var stages vk.PipelineStageFlags
	if usage&(gputypes.BufferUsageMapRead|gputypes.BufferUsageMapWrite) != 0 {
		stages |= vk.PipelineStageFlags(vk.PipelineStageHostBit)
	}
	if usage&(gputypes.BufferUsageCopySrc|gputypes.BufferUsageCopyDst) != 0 {
		stages |= vk.PipelineStageFlags(vk.PipelineStageTransferBit)
	}
	if usage&(gputypes.BufferUsageIndex|gputypes.BufferUsageVertex) != 0 {
		stages |= vk.PipelineStageFlags(vk.PipelineStageVertexInputBit)
	}
	if usage&(gputypes.BufferUsageUniform|gputypes.BufferUsageStorage) != 0 {
		stages |= shaderStages
	}
	if usage&gputypes.BufferUsageIndirect != 0 {
		stages |= vk.PipelineStageFlags(vk.PipelineStageDrawIndirectBit)
	}
	if usage&gpu.BufferUsageAccelerationContainer != 0 {
		stages |= vk.PipelineStageFlags(pipelineStageAccelerationStructureBuildBit) |
			vk.PipelineStageFlags(pipelineStageRayTracingShaderBit)
	}
	if usage&gpu.BufferUsageShaderBindingTable != 0 {
		stages |= vk.PipelineStageFlags(pipelineStageRayTracingShaderBit)
	}
	if stages == 0 {
		stages = vk.PipelineStageFlags(vk.PipelineStageTopOfPipeBit)
	}
	return stages
}

func textureAccessFlags(usage gputypes.TextureUsage, format gputypes.TextureFormat) vk.AccessFlags {
	var flags vk.AccessFlags
	if usage&(gputypes.TextureUsageCopySrc|gpu.TextureUsageResolveSource) != 0 {
		flags |= vk.AccessFlags(vk.AccessTransferReadBit)
	}
	if usage&(gputypes.TextureUsageCopyDst|gpu.TextureUsageResolveDest) != 0 {
		flags |= vk.AccessFlags(vk.AccessTransferWriteBit)
	}
	if usage&(gputypes.TextureUsageTextureBinding|gpu.TextureUsageReadonlyStorage) != 0 {
		flags |= vk.AccessFlags(vk.AccessShaderReadBit)
	}
	if usage&gputypes.TextureUsageStorageBinding != 0 {
		flags |= vk.AccessFlags(vk.AccessShaderReadBit) | vk.AccessFlags(vk.AccessShaderWriteBit)
	}
	if usage&gputypes.TextureUsageRenderAttachment != 0 {
		if format.IsDepthStencil() {
			flags |= vk.AccessFlags(vk.AccessDepthStencilAttachmentReadBit) | vk.AccessFlags(vk.AccessDepthStencilAttachmentWriteBit)
		} else {
			flags |= vk.AccessFlags(vk.AccessColorAttachmentReadBit) | vk.AccessFlags(vk.AccessColorAttachmentWriteBit)
		}
	}
	return flags
}

func texturePipelineStages(usage gputypes.TextureUsage, format gputypes.TextureFormat) vk.PipelineStageFlags {
	var stages vk.PipelineStageFlags
	if usage&(gputypes.TextureUsageCopySrc|gputypes.TextureUsageCopyDst|gpu.TextureUsageResolveSource|gpu.TextureUsageResolveDest) != 0 {
		stages |= vk.PipelineStageFlags(vk.PipelineStageTransferBit)
	}
	if usage&(gputypes.TextureUsageTextureBinding|gputypes.TextureUsageStorageBinding|gpu.TextureUsageReadonlyStorage) != 0 {
		stages |= shaderStages
	}
	if usage&gputypes.TextureUsageRenderAttachment != 0 {
		if format.IsDepthStencil() {
			stages |= vk.PipelineStageFlags(vk.PipelineStageEarlyFragmentTestsBit) | vk.PipelineStageFlags(vk.PipelineStageLateFragmentTestsBit)
		} else {
			stages |= vk.PipelineStageFlags(vk.PipelineStageColorAttachmentOutputBit)
		}
	}
	if usage&gpu.TextureUsagePresent != 0 {
		stages |= vk.PipelineStageFlags(vk.PipelineStageBottomOfPipeBit)
	}
	if stages == 0 {
		stages = vk.PipelineStageFlags(vk.PipelineStageTopOfPipeBit)
	}
	return stages
}

// VulkanImageLayout picks the layout a texture must be in for usage. Mixed
// usages fall back to the general layout.
func VulkanImageLayout(usage gputypes.TextureUsage, format gputypes.TextureFormat) vk.ImageLayout {
	switch usage {
	case 0:
		return vk.ImageLayoutUndefined
	case gputypes.TextureUsageCopySrc, gpu.TextureUsageResolveSource:
		return vk.ImageLayoutTransferSrcOptimal
	case gputypes.TextureUsageCopyDst, gpu.TextureUsageResolveDest:
		return vk.ImageLayoutTransferDstOptimal
	case gputypes.TextureUsageTextureBinding:
		return vk.ImageLayoutShaderReadOnlyOptimal
	case gputypes.TextureUsageStorageBinding, gpu.TextureUsageReadonlyStorage:
		return vk.ImageLayoutGeneral
	case gputypes.TextureUsageRenderAttachment:
		if format.IsDepthStencil() {
			return vk.ImageLayoutDepthStencilAttachmentOptimal
		}
		return vk.ImageLayoutColorAttachmentOptimal
	case gpu.TextureUsagePresent:
		return vk.ImageLayoutPresentSrc
	}
	return vk.ImageLayoutGeneral
}

func bufferBarrierFor(tr gpu.BufferTransition) (BufferBarrier, vk.PipelineStageFlags, vk.PipelineStageFlags) {
	barrier := BufferBarrier{
		Buffer:        tr.Buffer,
		SrcAccessMask: bufferAccessFlags(tr.From),
		DstAccessMask: bufferAccessFlags(tr.To),
	}
	return barrier, bufferPipelineStages(tr.From), bufferPipelineStages(tr.To)
}

func imageBarrierFor(tr gpu.TextureTransition) (ImageBarrier, vk.PipelineStageFlags, vk.PipelineStageFlags) {
	format := tr.Texture.Format
	barrier := ImageBarrier{
		Texture:       tr.Texture,
		SrcAccessMask: textureAccessFlags(tr.From, format),
		DstAccessMask: textureAccessFlags(tr.To, format),
		OldLayout:     VulkanImageLayout(tr.From, format),
		NewLayout:     VulkanImageLayout(tr.To, format),
		AspectMask:    VulkanImageAspectFlags(format, gputypes.TextureAspectAll),
	}
	return barrier, texturePipelineStages(tr.From, format), texturePipelineStages(tr.To, format)
}

// TransitionBufferNow emits a barrier on its own if buffer changes usage.
func TransitionBufferNow(cmds Commands, buffer *gpu.Buffer, usage gputypes.BufferUsage) {
	tr, needed := buffer.TrackUsage(usage)
	if !needed {
		return
	}
	barrier, src, dst := bufferBarrierFor(tr)
	cmds.PipelineBarrier(src, dst, nil, []BufferBarrier{barrier}, nil)
}

func TransitionTextureNow(cmds Commands, texture *gpu.Texture, usage gputypes.TextureUsage) {
	tr, needed := texture.TrackUsage(usage)
	if !needed {
		return
	}
	barrier, src, dst := imageBarrierFor(tr)
	cmds.PipelineBarrier(src, dst, nil, nil, []ImageBarrier{barrier})
}

// PrepareResourcesForPass transitions every resource of a pass with one
// batched barrier and reports whether the pass writes storage resources.
func PrepareResourcesForPass(cmds Commands, usage *gpu.PassResourceUsage) bool {
	var srcStages, dstStages vk.PipelineStageFlags
	var buffers []BufferBarrier
	var images []ImageBarrier

	for i, buffer := range usage.Buffers {
		tr, needed := buffer.TrackUsage(usage.BufferUsages[i])
		if !needed {
			continue
		}
		barrier, src, dst := bufferBarrierFor(tr)
		buffers = append(buffers, barrier)
		srcStages |= src
		dstStages |= dst
	}
	for i, texture := range usage.Textures {
		tr, needed := texture.TrackUsage(usage.TextureUsages[i])
		if !needed {
			continue
		}
		barrier, src, dst := imageBarrierFor(tr)
		images = append(images, barrier)
		srcStages |= src
		dstStages |= dst
	}

	if len(buffers)+len(images) > 0 {
		cmds.PipelineBarrier(srcStages, dstStages, nil, buffers, images)
		core.Metrics().BarrierBatches.Add(1)
	}
	return usage.HasStorageUsage()
}

// accelerationBarrier makes a build or update visible to later builds and
// trace calls.
func accelerationBarrier(cmds Commands) {
	stages := vk.PipelineStageFlags(pipelineStageAccelerationStructureBuildBit) | vk.PipelineStageFlags(pipelineStageRayTracingShaderBit)
	access := vk.AccessFlags(accessAccelerationStructureReadBit) | vk.AccessFlags(accessAccelerationStructureWriteBit)
	cmds.PipelineBarrier(stages, stages, []vk.MemoryBarrier{{
		SType:         vk.StructureTypeMemoryBarrier,
		SrcAccessMask: access,
		DstAccessMask: access,
	}}, nil, nil)
}
