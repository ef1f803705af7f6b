package vulkan

import (
	vk "github.com/goki/vulkan"

	"github.com/zxgjxc/dawn-ray-tracing/engine/gpu"
)

/**
 * @brief The production Commands sink: every call becomes a vkCmd* on
 * one primary VkCommandBuffer.
 */
type NativeCommands struct {
	Handle vk.CommandBuffer

	device       vk.Device
	pool         vk.CommandPool
	renderPasses *RenderPassCache
	framebuffers []*VulkanFramebuffer
}

func NewNativeCommands(device vk.Device, pool vk.CommandPool, renderPasses *RenderPassCache) (*NativeCommands, error) {
	allocate_info := vk.CommandBufferAllocateInfo{
		SType:              vk.StructureTypeCommandBufferAllocateInfo,
		CommandPool:        pool,
		CommandBufferCount: 1,
		Level:              vk.CommandBufferLevelPrimary,
	}

	handles := make([]vk.CommandBuffer, 1)
	if res := vk.AllocateCommandBuffers(device, &allocate_info, handles); res != vk.Success {
		return nil, CheckResult("vkAllocateCommandBuffers", res)
	}
	return &NativeCommands{
		Handle:       handles[0],
		device:       device,
		pool:         pool,
		renderPasses: renderPasses,
	}, nil
}

// Free releases the command buffer and the framebuffers its render passes
// used. Call it once the GPU is done with the commands.
func (n *NativeCommands) Free() {
	n.releaseFramebuffers()
	if n.Handle != nil {
		vk.FreeCommandBuffers(n.device, n.pool, 1, []vk.CommandBuffer{n.Handle})
		n.Handle = nil
	}
}

func (n *NativeCommands) releaseFramebuffers() {
	for _, fb := range n.framebuffers {
		fb.Destroy(n.device)
	}
	n.framebuffers = nil
}

func (n *NativeCommands) Begin() error {
	n.releaseFramebuffers()
	vBeginInfo := &vk.CommandBufferBeginInfo{
		SType: vk.StructureTypeCommandBufferBeginInfo,
		Flags: vk.CommandBufferUsageFlags(vk.CommandBufferUsageOneTimeSubmitBit),
	}
	if res := vk.BeginCommandBuffer(n.Handle, vBeginInfo); res != vk.Success {
		return CheckResult("vkBeginCommandBuffer", res)
	}
	return nil
}

func (n *NativeCommands) End() error {
	if res := vk.EndCommandBuffer(n.Handle); res != vk.Success {
		return CheckResult("vkEndCommandBuffer", res)
	}
	return nil
}

// SubmitAndWait submits the recorded commands and blocks on fence until
// they finish executing.
func (n *NativeCommands) SubmitAndWait(queue vk.Queue, fence *VulkanFence) error {
	if err := fence.Reset(); err != nil {
		return err
	}
	submit_info := vk.SubmitInfo{
		SType:              vk.StructureTypeSubmitInfo,
		CommandBufferCount: 1,
		PCommandBuffers:    []vk.CommandBuffer{n.Handle},
	}
	if res := vk.QueueSubmit(queue, 1, []vk.SubmitInfo{submit_info}, fence.Handle); res != vk.Success {
		return CheckResult("vkQueueSubmit", res)
	}
	for {
		signaled, err := fence.Wait(waitForever)
		if err != nil || signaled {
			return err
		}
	}
}

func (n *NativeCommands) PipelineBarrier(srcStages, dstStages vk.PipelineStageFlags, memory []vk.MemoryBarrier, buffers []BufferBarrier, images []ImageBarrier) {
	bufferBarriers := make([]vk.BufferMemoryBarrier, 0, len(buffers))
	for _, b := range buffers {
		bufferBarriers = append(bufferBarriers, vk.BufferMemoryBarrier{
			SType:               vk.StructureTypeBufferMemoryBarrier,
			SrcAccessMask:       b.SrcAccessMask,
			DstAccessMask:       b.DstAccessMask,
			SrcQueueFamilyIndex: vk.QueueFamilyIgnored,
			DstQueueFamilyIndex: vk.QueueFamilyIgnored,
			Buffer:              ToBackendBuffer(b.Buffer).Handle,
			Offset:              0,
			Size:                vk.DeviceSize(vk.WholeSize),
		})
	}
	imageBarriers := make([]vk.ImageMemoryBarrier, 0, len(images))
	for _, b := range images {
		imageBarriers = append(imageBarriers, vk.ImageMemoryBarrier{
			SType:               vk.StructureTypeImageMemoryBarrier,
			SrcAccessMask:       b.SrcAccessMask,
			DstAccessMask:       b.DstAccessMask,
			OldLayout:           b.OldLayout,
			NewLayout:           b.NewLayout,
			SrcQueueFamilyIndex: vk.QueueFamilyIgnored,
			DstQueueFamilyIndex: vk.QueueFamilyIgnored,
			Image:               ToBackendTexture(b.Texture).Handle,
			SubresourceRange: vk.ImageSubresourceRange{
				AspectMask:     b.AspectMask,
				BaseMipLevel:   0,
				LevelCount:     b.Texture.MipLevelCount,
				BaseArrayLayer: 0,
				LayerCount:     b.Texture.ArrayLayers(),
			},
		})
	}
	vk.CmdPipelineBarrier(n.Handle, srcStages, dstStages, vk.DependencyFlags(0),
		uint32(len(memory)), memory,
		uint32(len(bufferBarriers)), bufferBarriers,
		uint32(len(imageBarriers)), imageBarriers)
}

func (n *NativeCommands) CopyBuffer(src, dst *gpu.Buffer, regions []vk.BufferCopy) {
	vk.CmdCopyBuffer(n.Handle, ToBackendBuffer(src).Handle, ToBackendBuffer(dst).Handle, uint32(len(regions)), regions)
}

func (n *NativeCommands) CopyBufferToImage(src *gpu.Buffer, dst *gpu.Texture, dstLayout vk.ImageLayout, regions []vk.BufferImageCopy) {
	vk.CmdCopyBufferToImage(n.Handle, ToBackendBuffer(src).Handle, ToBackendTexture(dst).Handle, dstLayout, uint32(len(regions)), regions)
}

func (n *NativeCommands) CopyImageToBuffer(src *gpu.Texture, srcLayout vk.ImageLayout, dst *gpu.Buffer, regions []vk.BufferImageCopy) {
	vk.CmdCopyImageToBuffer(n.Handle, ToBackendTexture(src).Handle, srcLayout, ToBackendBuffer(dst).Handle, uint32(len(regions)), regions)
}

func (n *NativeCommands) CopyImage(src *gpu.Texture, srcLayout vk.ImageLayout, dst *gpu.Texture, dstLayout vk.ImageLayout, regions []vk.ImageCopy) {
	vk.CmdCopyImage(n.Handle, ToBackendTexture(src).Handle, srcLayout, ToBackendTexture(dst).Handle, dstLayout, uint32(len(regions)), regions)
}

func (n *NativeCommands) BeginRenderPass(info *RenderPassBeginInfo) error {
	renderPass, err := n.renderPasses.GetRenderPass(NewRenderPassKey(info))
	if err != nil {
		return err
	}
	framebuffer, err := FramebufferCreate(n.device, renderPass, info.Width, info.Height, attachmentViews(info))
	if err != nil {
		return err
	}
	n.framebuffers = append(n.framebuffers, framebuffer)

	values := clearValues(info)
	beginInfo := vk.RenderPassBeginInfo{
		SType:       vk.StructureTypeRenderPassBeginInfo,
		RenderPass:  renderPass,
		Framebuffer: framebuffer.Handle,
		RenderArea: vk.Rect2D{
			Offset: vk.Offset2D{X: 0, Y: 0},
			Extent: vk.Extent2D{Width: info.Width, Height: info.Height},
		},
		ClearValueCount: uint32(len(values)),
		PClearValues:    values,
	}
	beginInfo.Deref()

	vk.CmdBeginRenderPass(n.Handle, &beginInfo, vk.SubpassContentsInline)
	return nil
}

func (n *NativeCommands) EndRenderPass() {
	vk.CmdEndRenderPass(n.Handle)
}

func (n *NativeCommands) BindPipeline(bindPoint vk.PipelineBindPoint, pipeline gpu.Pipeline) {
	vk.CmdBindPipeline(n.Handle, bindPoint, ToBackendPipeline(pipeline).Handle)
}

func (n *NativeCommands) BindDescriptorSets(bindPoint vk.PipelineBindPoint, layout *gpu.PipelineLayout, firstSet uint32, groups []*gpu.BindGroup, dynamicOffsets []uint32) {
	sets := make([]vk.DescriptorSet, len(groups))
	for i, group := range groups {
		sets[i] = ToBackendBindGroup(group).Set
	}
	vk.CmdBindDescriptorSets(n.Handle, bindPoint, ToBackendPipelineLayout(layout).Handle, firstSet,
		uint32(len(sets)), sets, uint32(len(dynamicOffsets)), dynamicOffsets)
}

func (n *NativeCommands) BindVertexBuffers(firstBinding uint32, buffers []*gpu.Buffer, offsets []uint64) {
	handles := make([]vk.Buffer, len(buffers))
	sizes := make([]vk.DeviceSize, len(offsets))
	for i := range buffers {
		handles[i] = ToBackendBuffer(buffers[i]).Handle
		sizes[i] = vk.DeviceSize(offsets[i])
	}
	vk.CmdBindVertexBuffers(n.Handle, firstBinding, uint32(len(handles)), handles, sizes)
}

func (n *NativeCommands) BindIndexBuffer(buffer *gpu.Buffer, offset uint64, indexType vk.IndexType) {
	vk.CmdBindIndexBuffer(n.Handle, ToBackendBuffer(buffer).Handle, vk.DeviceSize(offset), indexType)
}

func (n *NativeCommands) SetViewport(viewport vk.Viewport) {
	vk.CmdSetViewport(n.Handle, 0, 1, []vk.Viewport{viewport})
}

func (n *NativeCommands) SetScissor(scissor vk.Rect2D) {
	vk.CmdSetScissor(n.Handle, 0, 1, []vk.Rect2D{scissor})
}

func (n *NativeCommands) SetBlendConstants(constants [4]float32) {
	vk.CmdSetBlendConstants(n.Handle, &constants)
}

func (n *NativeCommands) SetStencilReference(reference uint32) {
	faces := vk.StencilFaceFlags(vk.StencilFaceFrontBit) | vk.StencilFaceFlags(vk.StencilFaceBackBit)
	vk.CmdSetStencilReference(n.Handle, faces, reference)
}

func (n *NativeCommands) Draw(vertexCount, instanceCount, firstVertex, firstInstance uint32) {
	vk.CmdDraw(n.Handle, vertexCount, instanceCount, firstVertex, firstInstance)
}

func (n *NativeCommands) DrawIndexed(indexCount, instanceCount, firstIndex uint32, vertexOffset int32, firstInstance uint32) {
	vk.CmdDrawIndexed(n.Handle, indexCount, instanceCount, firstIndex, vertexOffset, firstInstance)
}

func (n *NativeCommands) DrawIndirect(buffer *gpu.Buffer, offset uint64) {
	vk.CmdDrawIndirect(n.Handle, ToBackendBuffer(buffer).Handle, vk.DeviceSize(offset), 1, 0)
}

func (n *NativeCommands) DrawIndexedIndirect(buffer *gpu.Buffer, offset uint64) {
	vk.CmdDrawIndexedIndirect(n.Handle, ToBackendBuffer(buffer).Handle, vk.DeviceSize(offset), 1, 0)
}

func (n *NativeCommands) Dispatch(x, y, z uint32) {
	vk.CmdDispatch(n.Handle, x, y, z)
}

func (n *NativeCommands) DispatchIndirect(buffer *gpu.Buffer, offset uint64) {
	vk.CmdDispatchIndirect(n.Handle, ToBackendBuffer(buffer).Handle, vk.DeviceSize(offset))
}

// Debug labels need VK_EXT_debug_utils, which the bindings do not carry.

func (n *NativeCommands) BeginDebugLabel(label string) {}

func (n *NativeCommands) EndDebugLabel() {}

func (n *NativeCommands) InsertDebugLabel(label string) {}

func (n *NativeCommands) BuildAccelerationStructure(info *AccelerationStructureInfo, instances gpu.MemoryEntry, update bool, dst, src *gpu.AccelerationContainer, scratch gpu.MemoryEntry) error {
	return invalidCall("vkCmdBuildAccelerationStructure")
}

func (n *NativeCommands) CopyAccelerationStructure(dst, src *gpu.AccelerationContainer, mode CopyAccelerationStructureMode) error {
	return invalidCall("vkCmdCopyAccelerationStructure")
}

func (n *NativeCommands) TraceRays(raygen, miss, hit, callable ShaderBindingRegion, width, height, depth uint32) error {
	return invalidCall("vkCmdTraceRays")
}

var _ Commands = (*NativeCommands)(nil)
var _ Commands = (*RecordingCommands)(nil)
