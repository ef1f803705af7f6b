package vulkan

import (
	"fmt"

	vk "github.com/goki/vulkan"

	"github.com/zxgjxc/dawn-ray-tracing/engine/core"
	"github.com/zxgjxc/dawn-ray-tracing/engine/gpu"
)

// RecordingCommands is a Commands sink that keeps a textual log of every
// call instead of talking to a driver. The demo binary and the tests record
// against it.
type RecordingCommands struct {
	Calls []string

	BufferBarriers    []BufferBarrier
	ImageBarriers     []ImageBarrier
	BufferImageCopies []vk.BufferImageCopy
	ImageCopies       []vk.ImageCopy
	RenderPasses      []RenderPassBeginInfo

	// RayTracing exposes the ray-tracing entry points.
	RayTracing bool
	// EndError is returned from End to simulate a failing driver.
	EndError error
	// Verbose mirrors every call to the debug log.
	Verbose bool
}

func NewRecordingCommands(rayTracing bool) *RecordingCommands {
	return &RecordingCommands{RayTracing: rayTracing}
}

func (r *RecordingCommands) record(format string, args ...interface{}) {
	call := fmt.Sprintf(format, args...)
	r.Calls = append(r.Calls, call)
	if r.Verbose {
		core.LogDebug("vk: %s", call)
	}
}

func (r *RecordingCommands) Reset() {
	*r = RecordingCommands{RayTracing: r.RayTracing, EndError: r.EndError, Verbose: r.Verbose}
}

func (r *RecordingCommands) Begin() error {
	r.record("Begin")
	return nil
}

func (r *RecordingCommands) End() error {
	if r.EndError != nil {
		return core.NewDeviceError("vkEndCommandBuffer", r.EndError)
	}
	r.record("End")
	return nil
}

func (r *RecordingCommands) PipelineBarrier(srcStages, dstStages vk.PipelineStageFlags, memory []vk.MemoryBarrier, buffers []BufferBarrier, images []ImageBarrier) {
	r.BufferBarriers = append(r.BufferBarriers, buffers...)
	r.ImageBarriers = append(r.ImageBarriers, images...)
	r.record("PipelineBarrier(memory=%d,buffers=%d,images=%d)", len(memory), len(buffers), len(images))
}

func (r *RecordingCommands) CopyBuffer(src, dst *gpu.Buffer, regions []vk.BufferCopy) {
	r.record("CopyBuffer(%s->%s,size=%d)", src.Label, dst.Label, regions[0].Size)
}

func (r *RecordingCommands) CopyBufferToImage(src *gpu.Buffer, dst *gpu.Texture, dstLayout vk.ImageLayout, regions []vk.BufferImageCopy) {
	r.BufferImageCopies = append(r.BufferImageCopies, regions...)
	r.record("CopyBufferToImage(%s->%s,regions=%d)", src.Label, dst.Label, len(regions))
}

func (r *RecordingCommands) CopyImageToBuffer(src *gpu.Texture, srcLayout vk.ImageLayout, dst *gpu.Buffer, regions []vk.BufferImageCopy) {
	r.BufferImageCopies = append(r.BufferImageCopies, regions...)
	r.record("CopyImageToBuffer(%s->%s,regions=%d)", src.Label, dst.Label, len(regions))
}

func (r *RecordingCommands) CopyImage(src *gpu.Texture, srcLayout vk.ImageLayout, dst *gpu.Texture, dstLayout vk.ImageLayout, regions []vk.ImageCopy) {
	r.ImageCopies = append(r.ImageCopies, regions...)
	r.record("CopyImage(%s->%s)", src.Label, dst.Label)
}

func (r *RecordingCommands) BeginRenderPass(info *RenderPassBeginInfo) error {
	r.RenderPasses = append(r.RenderPasses, *info)
	r.record("BeginRenderPass(colors=%d,depth=%t,%dx%d)", len(info.ColorAttachments), info.DepthStencil != nil, info.Width, info.Height)
	return nil
}

func (r *RecordingCommands) EndRenderPass() {
	r.record("EndRenderPass")
}

func (r *RecordingCommands) BindPipeline(bindPoint vk.PipelineBindPoint, pipeline gpu.Pipeline) {
	r.record("BindPipeline(%s)", pipeline.GetLabel())
}

func (r *RecordingCommands) BindDescriptorSets(bindPoint vk.PipelineBindPoint, layout *gpu.PipelineLayout, firstSet uint32, groups []*gpu.BindGroup, dynamicOffsets []uint32) {
	r.record("BindDescriptorSets(set=%d,%s,offsets=%v)", firstSet, groups[0].Label, dynamicOffsets)
}

func (r *RecordingCommands) BindVertexBuffers(firstBinding uint32, buffers []*gpu.Buffer, offsets []uint64) {
	r.record("BindVertexBuffers(first=%d,count=%d)", firstBinding, len(buffers))
}

func (r *RecordingCommands) BindIndexBuffer(buffer *gpu.Buffer, offset uint64, indexType vk.IndexType) {
	r.record("BindIndexBuffer(%s,offset=%d,type=%d)", buffer.Label, offset, indexType)
}

func (r *RecordingCommands) SetViewport(viewport vk.Viewport) {
	r.record("SetViewport(%g,%g,%g,%g,%g,%g)", viewport.X, viewport.Y, viewport.Width, viewport.Height, viewport.MinDepth, viewport.MaxDepth)
}

func (r *RecordingCommands) SetScissor(scissor vk.Rect2D) {
	r.record("SetScissor(%d,%d,%d,%d)", scissor.Offset.X, scissor.Offset.Y, scissor.Extent.Width, scissor.Extent.Height)
}

func (r *RecordingCommands) SetBlendConstants(constants [4]float32) {
	r.record("SetBlendConstants(%g,%g,%g,%g)", constants[0], constants[1], constants[2], constants[3])
}

func (r *RecordingCommands) SetStencilReference(reference uint32) {
	r.record("SetStencilReference(%d)", reference)
}

func (r *RecordingCommands) Draw(vertexCount, instanceCount, firstVertex, firstInstance uint32) {
	r.record("Draw(%d,%d,%d,%d)", vertexCount, instanceCount, firstVertex, firstInstance)
}

func (r *RecordingCommands) DrawIndexed(indexCount, instanceCount, firstIndex uint32, vertexOffset int32, firstInstance uint32) {
	r.record("DrawIndexed(%d,%d,%d,%d,%d)", indexCount, instanceCount, firstIndex, vertexOffset, firstInstance)
}

func (r *RecordingCommands) DrawIndirect(buffer *gpu.Buffer, offset uint64) {
	r.record("DrawIndirect(%s,%d)", buffer.Label, offset)
}

func (r *RecordingCommands) DrawIndexedIndirect(buffer *gpu.Buffer, offset uint64) {
	r.record("DrawIndexedIndirect(%s,%d)", buffer.Label, offset)
}

func (r *RecordingCommands) Dispatch(x, y, z uint32) {
	r.record("Dispatch(%d,%d,%d)", x, y, z)
}

func (r *RecordingCommands) DispatchIndirect(buffer *gpu.Buffer, offset uint64) {
	r.record("DispatchIndirect(%s,%d)", buffer.Label, offset)
}

func (r *RecordingCommands) BeginDebugLabel(label string) {
	r.record("BeginDebugLabel(%s)", label)
}

func (r *RecordingCommands) EndDebugLabel() {
	r.record("EndDebugLabel")
}

func (r *RecordingCommands) InsertDebugLabel(label string) {
	r.record("InsertDebugLabel(%s)", label)
}

func (r *RecordingCommands) BuildAccelerationStructure(info *AccelerationStructureInfo, instances gpu.MemoryEntry, update bool, dst, src *gpu.AccelerationContainer, scratch gpu.MemoryEntry) error {
	if !r.RayTracing {
		return invalidCall("vkCmdBuildAccelerationStructure")
	}
	srcLabel := "none"
	if src != nil {
		srcLabel = src.Label
	}
	r.record("BuildAccelerationStructure(%s,update=%t,src=%s,scratch=%d)", dst.Label, update, srcLabel, scratch.Size)
	return nil
}

func (r *RecordingCommands) CopyAccelerationStructure(dst, src *gpu.AccelerationContainer, mode CopyAccelerationStructureMode) error {
	if !r.RayTracing {
		return invalidCall("vkCmdCopyAccelerationStructure")
	}
	r.record("CopyAccelerationStructure(%s->%s)", src.Label, dst.Label)
	return nil
}

func (r *RecordingCommands) TraceRays(raygen, miss, hit, callable ShaderBindingRegion, width, height, depth uint32) error {
	if !r.RayTracing {
		return invalidCall("vkCmdTraceRays")
	}
	r.record("TraceRays(raygen=%d,miss=%d,hit=%d,%dx%dx%d)", raygen.Offset, miss.Offset, hit.Offset, width, height, depth)
	return nil
}

// NewRecordingRayTracingFunctions returns entry points that hand out
// sequential handles and fixed memory requirements, for recording without a
// driver. Handles are unique per returned value.
func NewRecordingRayTracingFunctions() *RayTracingFunctions {
	var next AccelerationStructureHandle
	return &RayTracingFunctions{
		CreateAccelerationStructure: func(vk.Device, *AccelerationStructureInfo) (AccelerationStructureHandle, error) {
			next++
			return next, nil
		},
		DestroyAccelerationStructure: func(vk.Device, AccelerationStructureHandle) {},
		GetAccelerationStructureMemoryRequirements: func(_ vk.Device, _ AccelerationStructureHandle, kind AccelerationStructureMemoryRequirementsType) uint64 {
			switch kind {
			case AccelerationStructureMemoryRequirementsTypeObject:
				return 256
			case AccelerationStructureMemoryRequirementsTypeBuildScratch:
				return 128
			}
			return 64
		},
		BindAccelerationStructureMemory: func(vk.Device, AccelerationStructureHandle, gpu.MemoryEntry) error { return nil },
		GetAccelerationStructureHandle: func(_ vk.Device, h AccelerationStructureHandle) (uint64, error) {
			return uint64(h) << 32, nil
		},
		CmdBuildAccelerationStructure: func(vk.CommandBuffer, *AccelerationStructureInfo, gpu.MemoryEntry, bool, AccelerationStructureHandle, AccelerationStructureHandle, gpu.MemoryEntry) {
		},
		CmdCopyAccelerationStructure: func(vk.CommandBuffer, AccelerationStructureHandle, AccelerationStructureHandle, CopyAccelerationStructureMode) {
		},
		CmdTraceRays: func(vk.CommandBuffer, ShaderBindingRegion, ShaderBindingRegion, ShaderBindingRegion, ShaderBindingRegion, uint32, uint32, uint32) {
		},
	}
}
