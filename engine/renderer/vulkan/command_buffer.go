package vulkan

import (
	"github.com/gogpu/gputypes"
	vk "github.com/goki/vulkan"

	"github.com/zxgjxc/dawn-ray-tracing/engine/core"
	"github.com/zxgjxc/dawn-ray-tracing/engine/gpu"
)

type VulkanCommandBufferState int

const (
	COMMAND_BUFFER_STATE_READY VulkanCommandBufferState = iota
	COMMAND_BUFFER_STATE_RECORDING
	COMMAND_BUFFER_STATE_IN_RENDER_PASS
	COMMAND_BUFFER_STATE_RECORDING_ENDED
	COMMAND_BUFFER_STATE_SUBMITTED
	// Recording stopped on an error, the native command buffer is unusable.
	COMMAND_BUFFER_STATE_INVALID
)

/**
 * @brief Translates a finished command stream into calls on a native
 * command sink. One CommandBuffer records on one goroutine.
 */
type CommandBuffer struct {
	Label string
	State VulkanCommandBufferState

	cmds   Commands
	config core.VulkanConfig
	scope  gpu.BuildScope
	clock  *core.Clock
}

func NewCommandBuffer(cmds Commands, config core.VulkanConfig) *CommandBuffer {
	return &CommandBuffer{
		Label:  core.NewLabel("vk-cmdbuf"),
		State:  COMMAND_BUFFER_STATE_READY,
		cmds:   cmds,
		config: config,
		clock:  core.NewClock(),
	}
}

func (c *CommandBuffer) UpdateSubmitted() {
	c.State = COMMAND_BUFFER_STATE_SUBMITTED
}

// Reset makes the command buffer ready for another recording.
func (c *CommandBuffer) Reset() {
	c.State = COMMAND_BUFFER_STATE_READY
	c.scope = gpu.BuildScope{}
}

/**
 * @brief Records every command of cb. Recording stops at the first error,
 * which is returned and leaves the command buffer invalid.
 */
func (c *CommandBuffer) RecordCommands(cb *gpu.CommandBuffer) error {
	core.Assert(c.State == COMMAND_BUFFER_STATE_READY, "command buffer %s is not ready for recording", c.Label)

	c.clock.Start()
	defer c.clock.Stop()

	if err := c.record(cb); err != nil {
		c.State = COMMAND_BUFFER_STATE_INVALID
		return err
	}
	core.MetricsRecordingFinished(c.clock)
	core.LogDebug("recorded %s into %s", cb.Label, c.Label)
	return nil
}

func (c *CommandBuffer) record(cb *gpu.CommandBuffer) error {
	if err := c.cmds.Begin(); err != nil {
		return err
	}
	c.State = COMMAND_BUFFER_STATE_RECORDING

	passIndex := 0
	nextPass := func() *gpu.PassResourceUsage {
		core.Assert(passIndex < len(cb.ResourceUsages.PerPass), "%s has no resource usage for pass %d", cb.Label, passIndex)
		usage := &cb.ResourceUsages.PerPass[passIndex]
		passIndex++
		return usage
	}

	it := cb.Commands.Iterator()
	for {
		if _, ok := it.NextCommandType(); !ok {
			break
		}
		command := it.NextCommand()
		core.Metrics().Commands.Add(1)

		var err error
		switch cmd := command.(type) {
		case *gpu.BeginComputePassCmd:
			PrepareResourcesForPass(c.cmds, nextPass())
			err = c.recordComputePass(it)

		case *gpu.BeginRayTracingPassCmd:
			PrepareResourcesForPass(c.cmds, nextPass())
			err = c.recordRayTracingPass(it)

		case *gpu.BeginRenderPassCmd:
			PrepareResourcesForPass(c.cmds, nextPass())
			err = c.recordRenderPass(it, cmd)

		case *gpu.BuildRayTracingAccelerationContainerCmd:
			err = c.buildAccelerationContainer(cmd.Container)

		case *gpu.UpdateRayTracingAccelerationContainerCmd:
			err = c.updateAccelerationContainer(cmd.Container)

		case *gpu.CopyRayTracingAccelerationContainerCmd:
			err = c.copyAccelerationContainer(cmd.Source, cmd.Destination)

		case *gpu.CopyBufferToBufferCmd:
			TransitionBufferNow(c.cmds, cmd.Source, gputypes.BufferUsageCopySrc)
			TransitionBufferNow(c.cmds, cmd.Destination, gputypes.BufferUsageCopyDst)
			c.cmds.CopyBuffer(cmd.Source, cmd.Destination, []vk.BufferCopy{{
				SrcOffset: vk.DeviceSize(cmd.SourceOffset),
				DstOffset: vk.DeviceSize(cmd.DestinationOffset),
				Size:      vk.DeviceSize(cmd.Size),
			}})

		case *gpu.CopyBufferToTextureCmd:
			TransitionBufferNow(c.cmds, cmd.Source.Buffer, gputypes.BufferUsageCopySrc)
			TransitionTextureNow(c.cmds, cmd.Destination.Texture, gputypes.TextureUsageCopyDst)
			regions := SplitCopyIntoSubresourceRegions(cmd.Source, cmd.Destination, cmd.CopySize)
			c.cmds.CopyBufferToImage(cmd.Source.Buffer, cmd.Destination.Texture, vk.ImageLayoutTransferDstOptimal, regions)

		case *gpu.CopyTextureToBufferCmd:
			TransitionTextureNow(c.cmds, cmd.Source.Texture, gputypes.TextureUsageCopySrc)
			TransitionBufferNow(c.cmds, cmd.Destination.Buffer, gputypes.BufferUsageCopyDst)
			regions := SplitCopyIntoSubresourceRegions(cmd.Destination, cmd.Source, cmd.CopySize)
			c.cmds.CopyImageToBuffer(cmd.Source.Texture, vk.ImageLayoutTransferSrcOptimal, cmd.Destination.Buffer, regions)

		case *gpu.CopyTextureToTextureCmd:
			TransitionTextureNow(c.cmds, cmd.Source.Texture, gputypes.TextureUsageCopySrc)
			TransitionTextureNow(c.cmds, cmd.Destination.Texture, gputypes.TextureUsageCopyDst)
			region := ComputeImageCopyRegion(cmd.Source, cmd.Destination, cmd.CopySize)
			c.cmds.CopyImage(cmd.Source.Texture, vk.ImageLayoutTransferSrcOptimal,
				cmd.Destination.Texture, vk.ImageLayoutTransferDstOptimal, []vk.ImageCopy{region})

		default:
			if !c.debugMarker(command) {
				core.Unreachable("unexpected top level command %s", command.Type())
			}
		}
		if err != nil {
			return err
		}
	}

	if err := c.cmds.End(); err != nil {
		return err
	}
	c.State = COMMAND_BUFFER_STATE_RECORDING_ENDED
	return nil
}

// debugMarker handles the marker commands every pass accepts.
func (c *CommandBuffer) debugMarker(command gpu.Command) bool {
	switch cmd := command.(type) {
	case *gpu.PushDebugGroupCmd:
		if c.config.EnableDebugMarkers {
			c.cmds.BeginDebugLabel(cmd.Label)
		}
	case *gpu.PopDebugGroupCmd:
		if c.config.EnableDebugMarkers {
			c.cmds.EndDebugLabel()
		}
	case *gpu.InsertDebugMarkerCmd:
		if c.config.EnableDebugMarkers {
			c.cmds.InsertDebugLabel(cmd.Label)
		}
	default:
		return false
	}
	return true
}

func (c *CommandBuffer) recordComputePass(it *gpu.CommandIterator) error {
	tracker := NewDescriptorSetTracker()
	for {
		command := it.NextCommand()
		core.Metrics().Commands.Add(1)

		switch cmd := command.(type) {
		case *gpu.EndComputePassCmd:
			return nil

		case *gpu.DispatchCmd:
			tracker.Apply(c.cmds, gpu.PassCompute)
			c.cmds.Dispatch(cmd.X, cmd.Y, cmd.Z)

		case *gpu.DispatchIndirectCmd:
			tracker.Apply(c.cmds, gpu.PassCompute)
			c.cmds.DispatchIndirect(cmd.IndirectBuffer, cmd.IndirectOffset)

		case *gpu.SetComputePipelineCmd:
			c.cmds.BindPipeline(vk.PipelineBindPointCompute, cmd.Pipeline)
			tracker.OnSetPipeline(cmd.Pipeline)

		case *gpu.SetBindGroupCmd:
			tracker.OnSetBindGroup(cmd.Index, cmd.Group, cmd.DynamicOffsets)

		default:
			if !c.debugMarker(command) {
				core.Unreachable("unexpected compute pass command %s", command.Type())
			}
		}
	}
}

func (c *CommandBuffer) recordRayTracingPass(it *gpu.CommandIterator) error {
	tracker := NewDescriptorSetTracker()
	var pipeline *gpu.RayTracingPipeline
	for {
		command := it.NextCommand()
		core.Metrics().Commands.Add(1)

		switch cmd := command.(type) {
		case *gpu.EndRayTracingPassCmd:
			return nil

		case *gpu.TraceRaysCmd:
			core.Assert(pipeline != nil, "trace rays without a ray-tracing pipeline")
			tracker.Apply(c.cmds, gpu.PassRayTracing)

			sbt := pipeline.ShaderBindingTable
			region := func(group uint32) ShaderBindingRegion {
				return ShaderBindingRegion{Buffer: sbt.Buffer, Offset: sbt.RecordOffset(group), Stride: sbt.GroupStride}
			}
			err := c.cmds.TraceRays(region(cmd.RayGenerationOffset), region(cmd.RayMissOffset), region(cmd.RayHitOffset),
				ShaderBindingRegion{}, cmd.Width, cmd.Height, cmd.Depth)
			if err != nil {
				return err
			}

		case *gpu.SetRayTracingPipelineCmd:
			pipeline = cmd.Pipeline
			c.cmds.BindPipeline(vk.PipelineBindPoint(pipelineBindPointRayTracing), cmd.Pipeline)
			tracker.OnSetPipeline(cmd.Pipeline)

		case *gpu.SetBindGroupCmd:
			tracker.OnSetBindGroup(cmd.Index, cmd.Group, cmd.DynamicOffsets)

		default:
			if !c.debugMarker(command) {
				core.Unreachable("unexpected ray-tracing pass command %s", command.Type())
			}
		}
	}
}

func renderPassBeginInfo(begin *gpu.BeginRenderPassCmd) *RenderPassBeginInfo {
	info := &RenderPassBeginInfo{
		SampleCount: VulkanSampleCount(begin.SampleCount),
		Width:       begin.Width,
		Height:      begin.Height,
	}
	for _, attachment := range begin.ColorAttachments {
		info.ColorAttachments = append(info.ColorAttachments, ColorAttachmentInfo{
			View:          attachment.View,
			ResolveTarget: attachment.ResolveTarget,
			Format:        VulkanTextureFormat(attachment.View.Format),
			LoadOp:        VulkanAttachmentLoadOp(attachment.LoadOp),
			StoreOp:       VulkanAttachmentStoreOp(attachment.StoreOp),
			ClearColor: [4]float32{
				float32(attachment.ClearColor.R), float32(attachment.ClearColor.G),
				float32(attachment.ClearColor.B), float32(attachment.ClearColor.A),
			},
		})
	}
	if ds := begin.DepthStencilAttachment; ds != nil {
		info.DepthStencil = &DepthStencilAttachmentInfo{
			View:           ds.View,
			Format:         VulkanTextureFormat(ds.View.Format),
			DepthLoadOp:    VulkanAttachmentLoadOp(ds.DepthLoadOp),
			DepthStoreOp:   VulkanAttachmentStoreOp(ds.DepthStoreOp),
			StencilLoadOp:  VulkanAttachmentLoadOp(ds.StencilLoadOp),
			StencilStoreOp: VulkanAttachmentStoreOp(ds.StencilStoreOp),
			ClearDepth:     ds.ClearDepth,
			ClearStencil:   ds.ClearStencil,
		}
	}
	return info
}

// renderEncoder holds the state shared by a render pass and the bundles it
// executes.
type renderEncoder struct {
	c        *CommandBuffer
	tracker  *DescriptorSetTracker
	pipeline *gpu.RenderPipeline

	indexBuffer      *gpu.Buffer
	indexOffset      uint64
	indexFormat      gputypes.IndexFormat
	indexBufferDirty bool
}

func (e *renderEncoder) applyIndexBuffer() {
	core.Assert(e.indexBuffer != nil, "indexed draw without an index buffer")
	if e.indexBufferDirty || e.indexFormat != e.pipeline.IndexFormat {
		e.indexFormat = e.pipeline.IndexFormat
		e.c.cmds.BindIndexBuffer(e.indexBuffer, e.indexOffset, VulkanIndexType(e.indexFormat))
		e.indexBufferDirty = false
	}
}

// encode records one draw-class command. It reports false for commands
// that are not allowed in bundles.
func (e *renderEncoder) encode(command gpu.Command) bool {
	cmds := e.c.cmds
	switch cmd := command.(type) {
	case *gpu.DrawCmd:
		e.tracker.Apply(cmds, gpu.PassRender)
		cmds.Draw(cmd.VertexCount, cmd.InstanceCount, cmd.FirstVertex, cmd.FirstInstance)

	case *gpu.DrawIndexedCmd:
		e.tracker.Apply(cmds, gpu.PassRender)
		e.applyIndexBuffer()
		cmds.DrawIndexed(cmd.IndexCount, cmd.InstanceCount, cmd.FirstIndex, cmd.BaseVertex, cmd.FirstInstance)

	case *gpu.DrawIndirectCmd:
		e.tracker.Apply(cmds, gpu.PassRender)
		cmds.DrawIndirect(cmd.IndirectBuffer, cmd.IndirectOffset)

	case *gpu.DrawIndexedIndirectCmd:
		e.tracker.Apply(cmds, gpu.PassRender)
		e.applyIndexBuffer()
		cmds.DrawIndexedIndirect(cmd.IndirectBuffer, cmd.IndirectOffset)

	case *gpu.SetRenderPipelineCmd:
		e.pipeline = cmd.Pipeline
		cmds.BindPipeline(vk.PipelineBindPointGraphics, cmd.Pipeline)
		e.tracker.OnSetPipeline(cmd.Pipeline)

	case *gpu.SetBindGroupCmd:
		e.tracker.OnSetBindGroup(cmd.Index, cmd.Group, cmd.DynamicOffsets)

	case *gpu.SetIndexBufferCmd:
		e.indexBuffer = cmd.Buffer
		e.indexOffset = cmd.Offset
		e.indexBufferDirty = true

	case *gpu.SetVertexBufferCmd:
		cmds.BindVertexBuffers(cmd.Slot, []*gpu.Buffer{cmd.Buffer}, []uint64{cmd.Offset})

	default:
		return e.c.debugMarker(command)
	}
	return true
}

func (c *CommandBuffer) setDefaultDynamicState(width, height uint32) {
	c.cmds.SetStencilReference(0)
	c.cmds.SetBlendConstants([4]float32{0, 0, 0, 0})
	c.cmds.SetViewport(vk.Viewport{
		X:        0,
		Y:        0,
		Width:    float32(width),
		Height:   float32(height),
		MinDepth: 0,
		MaxDepth: 1,
	})
	c.cmds.SetScissor(vk.Rect2D{
		Offset: vk.Offset2D{X: 0, Y: 0},
		Extent: vk.Extent2D{Width: width, Height: height},
	})
}

func (c *CommandBuffer) recordRenderPass(it *gpu.CommandIterator, begin *gpu.BeginRenderPassCmd) error {
	if err := c.cmds.BeginRenderPass(renderPassBeginInfo(begin)); err != nil {
		return err
	}
	c.State = COMMAND_BUFFER_STATE_IN_RENDER_PASS
	c.setDefaultDynamicState(begin.Width, begin.Height)

	encoder := &renderEncoder{c: c, tracker: NewDescriptorSetTracker()}
	for {
		command := it.NextCommand()
		core.Metrics().Commands.Add(1)

		switch cmd := command.(type) {
		case *gpu.EndRenderPassCmd:
			c.cmds.EndRenderPass()
			c.State = COMMAND_BUFFER_STATE_RECORDING
			return nil

		case *gpu.SetViewportCmd:
			c.cmds.SetViewport(vk.Viewport{
				X:        cmd.X,
				Y:        cmd.Y,
				Width:    cmd.Width,
				Height:   cmd.Height,
				MinDepth: cmd.MinDepth,
				MaxDepth: cmd.MaxDepth,
			})

		case *gpu.SetScissorRectCmd:
			c.cmds.SetScissor(vk.Rect2D{
				Offset: vk.Offset2D{X: int32(cmd.X), Y: int32(cmd.Y)},
				Extent: vk.Extent2D{Width: cmd.Width, Height: cmd.Height},
			})

		case *gpu.SetBlendConstantCmd:
			c.cmds.SetBlendConstants([4]float32{
				float32(cmd.Color.R), float32(cmd.Color.G), float32(cmd.Color.B), float32(cmd.Color.A),
			})

		case *gpu.SetStencilReferenceCmd:
			c.cmds.SetStencilReference(cmd.Reference)

		case *gpu.ExecuteBundlesCmd:
			for _, bundle := range cmd.Bundles {
				bundleIt := bundle.Commands.Iterator()
				for {
					if _, ok := bundleIt.NextCommandType(); !ok {
						break
					}
					bundleCommand := bundleIt.NextCommand()
					if !encoder.encode(bundleCommand) {
						core.Unreachable("unexpected bundle command %s", bundleCommand.Type())
					}
				}
			}

		default:
			if !encoder.encode(command) {
				core.Unreachable("unexpected render pass command %s", command.Type())
			}
		}
	}
}
