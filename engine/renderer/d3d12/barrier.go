package d3d12

import (
	"github.com/gogpu/gputypes"

	"github.com/zxgjxc/dawn-ray-tracing/engine/core"
	"github.com/zxgjxc/dawn-ray-tracing/engine/gpu"
)

// D3D12BufferUsage maps a buffer usage to the resource state it needs.
func D3D12BufferUsage(usage gputypes.BufferUsage) ResourceStates {
	var states ResourceStates
	if usage&gputypes.BufferUsageCopySrc != 0 {
		states |= ResourceStateCopySource
	}
	if usage&gputypes.BufferUsageCopyDst != 0 {
		states |= ResourceStateCopyDest
	}
	if usage&(gputypes.BufferUsageVertex|gputypes.BufferUsageUniform) != 0 {
		states |= ResourceStateVertexAndConstantBuffer
	}
	if usage&gputypes.BufferUsageIndex != 0 {
		states |= ResourceStateIndexBuffer
	}
	if usage&gputypes.BufferUsageStorage != 0 {
		states |= ResourceStateUnorderedAccess
	}
	if usage&gputypes.BufferUsageIndirect != 0 {
		states |= ResourceStateIndirectArgument
	}
	if usage&gpu.BufferUsageAccelerationContainer != 0 {
		states |= ResourceStateRaytracingAccelerationStructure
	}
	if usage&gpu.BufferUsageShaderBindingTable != 0 {
		states |= ResourceStateNonPixelShaderResource | ResourceStatePixelShaderResource
	}
	return states
}

func D3D12TextureUsage(usage gputypes.TextureUsage, format gputypes.TextureFormat) ResourceStates {
	// Present is Common, which is also the state of an unused texture.
	if usage == gpu.TextureUsagePresent {
		return ResourceStatePresent
	}

	var states ResourceStates
	if usage&gputypes.TextureUsageCopySrc != 0 {
		states |= ResourceStateCopySource
	}
	if usage&gputypes.TextureUsageCopyDst != 0 {
		states |= ResourceStateCopyDest
	}
	if usage&(gputypes.TextureUsageTextureBinding|gpu.TextureUsageReadonlyStorage) != 0 {
		states |= ResourceStateNonPixelShaderResource | ResourceStatePixelShaderResource
	}
	if usage&gputypes.TextureUsageStorageBinding != 0 {
		states |= ResourceStateUnorderedAccess
	}
	if usage&gputypes.TextureUsageRenderAttachment != 0 {
		if format.IsDepthStencil() {
			states |= ResourceStateDepthWrite
		} else {
			states |= ResourceStateRenderTarget
		}
	}
	if usage&gpu.TextureUsageResolveSource != 0 {
		states |= ResourceStateResolveSource
	}
	if usage&gpu.TextureUsageResolveDest != 0 {
		states |= ResourceStateResolveDest
	}
	return states
}

// bufferBarrierFor turns a transition into a barrier. A storage buffer that
// stays in the unordered access state only needs its writes flushed.
func bufferBarrierFor(tr gpu.BufferTransition) ResourceBarrier {
	before, after := D3D12BufferUsage(tr.From), D3D12BufferUsage(tr.To)
	if before == after {
		return ResourceBarrier{Type: ResourceBarrierTypeUAV, Buffer: tr.Buffer}
	}
	return ResourceBarrier{
		Type:        ResourceBarrierTypeTransition,
		Buffer:      tr.Buffer,
		Subresource: AllSubresources,
		StateBefore: before,
		StateAfter:  after,
	}
}

func textureBarrierFor(tr gpu.TextureTransition) ResourceBarrier {
	format := tr.Texture.Format
	before, after := D3D12TextureUsage(tr.From, format), D3D12TextureUsage(tr.To, format)
	if before == after {
		return ResourceBarrier{Type: ResourceBarrierTypeUAV, Texture: tr.Texture}
	}
	return ResourceBarrier{
		Type:        ResourceBarrierTypeTransition,
		Texture:     tr.Texture,
		Subresource: AllSubresources,
		StateBefore: before,
		StateAfter:  after,
	}
}

// TransitionBufferNow emits a barrier on its own if buffer changes usage.
func TransitionBufferNow(list CommandList, buffer *gpu.Buffer, usage gputypes.BufferUsage) {
	tr, needed := buffer.TrackUsage(usage)
	if !needed {
		return
	}
	list.ResourceBarrier([]ResourceBarrier{bufferBarrierFor(tr)})
}

func TransitionTextureNow(list CommandList, texture *gpu.Texture, usage gputypes.TextureUsage) {
	tr, needed := texture.TrackUsage(usage)
	if !needed {
		return
	}
	list.ResourceBarrier([]ResourceBarrier{textureBarrierFor(tr)})
}

// PrepareResourcesForPass transitions every resource of a pass with one
// ResourceBarrier call and reports whether the pass writes storage
// resources.
func PrepareResourcesForPass(list CommandList, usage *gpu.PassResourceUsage) bool {
	var barriers []ResourceBarrier
	for i, buffer := range usage.Buffers {
		if tr, needed := buffer.TrackUsage(usage.BufferUsages[i]); needed {
			barriers = append(barriers, bufferBarrierFor(tr))
		}
	}
	for i, texture := range usage.Textures {
		if tr, needed := texture.TrackUsage(usage.TextureUsages[i]); needed {
			barriers = append(barriers, textureBarrierFor(tr))
		}
	}

	if len(barriers) > 0 {
		list.ResourceBarrier(barriers)
		core.Metrics().BarrierBatches.Add(1)
	}
	return usage.HasStorageUsage()
}

// uavBarrier orders a build, update or copy against every later access to
// the result memory of the container.
func uavBarrier(list CommandList, container *gpu.AccelerationContainer) {
	list.ResourceBarrier([]ResourceBarrier{{
		Type:   ResourceBarrierTypeUAV,
		Buffer: container.Scratch().Result.Buffer,
	}})
}
