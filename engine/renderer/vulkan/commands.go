package vulkan

import (
	vk "github.com/goki/vulkan"

	"github.com/zxgjxc/dawn-ray-tracing/engine/gpu"
)

type BufferBarrier struct {
	Buffer        *gpu.Buffer
	SrcAccessMask vk.AccessFlags
	DstAccessMask vk.AccessFlags
}

// ImageBarrier covers every subresource of the texture.
type ImageBarrier struct {
	Texture       *gpu.Texture
	SrcAccessMask vk.AccessFlags
	DstAccessMask vk.AccessFlags
	OldLayout     vk.ImageLayout
	NewLayout     vk.ImageLayout
	AspectMask    vk.ImageAspectFlags
}

type ColorAttachmentInfo struct {
	View          *gpu.TextureView
	ResolveTarget *gpu.TextureView
	Format        vk.Format
	LoadOp        vk.AttachmentLoadOp
	StoreOp       vk.AttachmentStoreOp
	ClearColor    [4]float32
}

type DepthStencilAttachmentInfo struct {
	View           *gpu.TextureView
	Format         vk.Format
	DepthLoadOp    vk.AttachmentLoadOp
	DepthStoreOp   vk.AttachmentStoreOp
	StencilLoadOp  vk.AttachmentLoadOp
	StencilStoreOp vk.AttachmentStoreOp
	ClearDepth     float32
	ClearStencil   uint32
}

// RenderPassBeginInfo is everything needed to look up a compatible
// VkRenderPass, build its framebuffer and begin it.
type RenderPassBeginInfo struct {
	ColorAttachments []ColorAttachmentInfo
	DepthStencil     *DepthStencilAttachmentInfo
	SampleCount      vk.SampleCountFlagBits
	Width            uint32
	Height           uint32
}

// ShaderBindingRegion is one table of a shader binding table.
type ShaderBindingRegion struct {
	Buffer *gpu.Buffer
	Offset uint64
	Stride uint64
}

type GeometryTriangles struct {
	VertexData   *gpu.Buffer
	VertexOffset uint64
	VertexCount  uint32
	VertexStride uint64
	VertexFormat vk.Format
	IndexData    *gpu.Buffer
	IndexOffset  uint64
	IndexCount   uint32
	IndexType    vk.IndexType
}

type GeometryAABBs struct {
	AABBData *gpu.Buffer
	NumAABBs uint32
	Stride   uint32
	Offset   uint64
}

type Geometry struct {
	Type      GeometryType
	Triangles GeometryTriangles
	AABBs     GeometryAABBs
	Flags     GeometryFlags
}

type AccelerationStructureInfo struct {
	Type          AccelerationStructureType
	Flags         BuildAccelerationStructureFlags
	InstanceCount uint32
	Geometries    []Geometry
}

// Commands is the native command sink a CommandBuffer records into. The
// production implementation forwards to vkCmd* on a VkCommandBuffer.
type Commands interface {
	Begin() error
	End() error

	PipelineBarrier(srcStages, dstStages vk.PipelineStageFlags, memory []vk.MemoryBarrier, buffers []BufferBarrier, images []ImageBarrier)

	CopyBuffer(src, dst *gpu.Buffer, regions []vk.BufferCopy)
	CopyBufferToImage(src *gpu.Buffer, dst *gpu.Texture, dstLayout vk.ImageLayout, regions []vk.BufferImageCopy)
	CopyImageToBuffer(src *gpu.Texture, srcLayout vk.ImageLayout, dst *gpu.Buffer, regions []vk.BufferImageCopy)
	CopyImage(src *gpu.Texture, srcLayout vk.ImageLayout, dst *gpu.Texture, dstLayout vk.ImageLayout, regions []vk.ImageCopy)

	BeginRenderPass(info *RenderPassBeginInfo) error
	EndRenderPass()

	BindPipeline(bindPoint vk.PipelineBindPoint, pipeline gpu.Pipeline)
	BindDescriptorSets(bindPoint vk.PipelineBindPoint, layout *gpu.PipelineLayout, firstSet uint32, groups []*gpu.BindGroup, dynamicOffsets []uint32)
	BindVertexBuffers(firstBinding uint32, buffers []*gpu.Buffer, offsets []uint64)
	BindIndexBuffer(buffer *gpu.Buffer, offset uint64, indexType vk.IndexType)

	SetViewport(viewport vk.Viewport)
	SetScissor(scissor vk.Rect2D)
	SetBlendConstants(constants [4]float32)
	SetStencilReference(reference uint32)

	Draw(vertexCount, instanceCount, firstVertex, firstInstance uint32)
	DrawIndexed(indexCount, instanceCount, firstIndex uint32, vertexOffset int32, firstInstance uint32)
	DrawIndirect(buffer *gpu.Buffer, offset uint64)
	DrawIndexedIndirect(buffer *gpu.Buffer, offset uint64)
	Dispatch(x, y, z uint32)
	DispatchIndirect(buffer *gpu.Buffer, offset uint64)

	BeginDebugLabel(label string)
	EndDebugLabel()
	InsertDebugLabel(label string)

	// Ray-tracing entry points come from an extension and may be missing,
	// in which case they return a validation error.
	BuildAccelerationStructure(info *AccelerationStructureInfo, instances gpu.MemoryEntry, update bool, dst, src *gpu.AccelerationContainer, scratch gpu.MemoryEntry) error
	CopyAccelerationStructure(dst, src *gpu.AccelerationContainer, mode CopyAccelerationStructureMode) error
	TraceRays(raygen, miss, hit, callable ShaderBindingRegion, width, height, depth uint32) error
}
