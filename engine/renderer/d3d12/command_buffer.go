package d3d12

import (
	"github.com/gogpu/gputypes"

	"github.com/zxgjxc/dawn-ray-tracing/engine/core"
	"github.com/zxgjxc/dawn-ray-tracing/engine/gpu"
)

type D3D12CommandBufferState int

const (
	COMMAND_BUFFER_STATE_READY D3D12CommandBufferState = iota
	COMMAND_BUFFER_STATE_RECORDING
	COMMAND_BUFFER_STATE_IN_RENDER_PASS
	COMMAND_BUFFER_STATE_RECORDING_ENDED
	COMMAND_BUFFER_STATE_SUBMITTED
	// Recording stopped on an error, the command list must be reset.
	COMMAND_BUFFER_STATE_INVALID
)

/**
 * @brief Translates a finished command stream into calls on a D3D12
 * command list. The list is expected open; it is closed when recording
 * succeeds. One CommandBuffer records on one goroutine.
 */
type CommandBuffer struct {
	Label string
	State D3D12CommandBufferState

	device *Device
	list   CommandList
	config core.D3D12Config
	scope  gpu.BuildScope
	clock  *core.Clock

	bindings     *BindGroupStateTracker
	rtvAllocator *StagingDescriptorAllocator
	dsvAllocator *StagingDescriptorAllocator
}

func newCommandBuffer(device *Device, list CommandList, config core.D3D12Config) *CommandBuffer {
	descriptors := device.Descriptors()
	return &CommandBuffer{
		Label:        core.NewLabel("d3d12-cmdbuf"),
		State:        COMMAND_BUFFER_STATE_READY,
		device:       device,
		list:         list,
		config:       config,
		clock:        core.NewClock(),
		bindings:     NewBindGroupStateTracker(device),
		rtvAllocator: NewStagingDescriptorAllocator(descriptors, DescriptorHeapTypeRTV, renderTargetHeapSize),
		dsvAllocator: NewStagingDescriptorAllocator(descriptors, DescriptorHeapTypeDSV, depthStencilHeapSize),
	}
}

func (c *CommandBuffer) UpdateSubmitted() {
	c.State = COMMAND_BUFFER_STATE_SUBMITTED
}

// Reset makes the command buffer ready for another recording into list.
func (c *CommandBuffer) Reset(list CommandList) {
	c.State = COMMAND_BUFFER_STATE_READY
	c.list = list
	c.scope = gpu.BuildScope{}
	c.bindings.Reset()
	c.rtvAllocator.Reset()
	c.dsvAllocator.Reset()
}

// useNativeRenderPass reports whether render passes go through
// BeginRenderPass rather than clears and OMSetRenderTargets.
func (c *CommandBuffer) useNativeRenderPass() (CommandList4, bool) {
	if !c.config.UseNativeRenderPass {
		return nil, false
	}
	list4, ok := c.list.(CommandList4)
	return list4, ok
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
	c.State = COMMAND_BUFFER_STATE_RECORDING
	c.bindings.SetDescriptorHeaps(c.list)

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
			PrepareResourcesForPass(c.list, nextPass())
			err = c.recordComputePass(it)

		case *gpu.BeginRayTracingPassCmd:
			PrepareResourcesForPass(c.list, nextPass())
			err = c.recordRayTracingPass(it)

		case *gpu.BeginRenderPassCmd:
			hasUAV := PrepareResourcesForPass(c.list, nextPass())
			err = c.recordRenderPass(it, cmd, hasUAV)

		case *gpu.BuildRayTracingAccelerationContainerCmd:
			err = c.buildAccelerationContainer(cmd.Container)

		case *gpu.UpdateRayTracingAccelerationContainerCmd:
			err = c.updateAccelerationContainer(cmd.Container)

		case *gpu.CopyRayTracingAccelerationContainerCmd:
			err = c.copyAccelerationContainer(cmd.Source, cmd.Destination)

		case *gpu.CopyBufferToBufferCmd:
			TransitionBufferNow(c.list, cmd.Source, gputypes.BufferUsageCopySrc)
			TransitionBufferNow(c.list, cmd.Destination, gputypes.BufferUsageCopyDst)
			c.list.CopyBufferRegion(cmd.Destination, cmd.DestinationOffset, cmd.Source, cmd.SourceOffset, cmd.Size)

		case *gpu.CopyBufferToTextureCmd:
			TransitionBufferNow(c.list, cmd.Source.Buffer, gputypes.BufferUsageCopySrc)
			TransitionTextureNow(c.list, cmd.Destination.Texture, gputypes.TextureUsageCopyDst)
			for _, region := range SplitCopyIntoSubresourceRegions(cmd.Source, cmd.Destination, cmd.CopySize) {
				c.copyBufferToTexture(region)
			}

		case *gpu.CopyTextureToBufferCmd:
			TransitionTextureNow(c.list, cmd.Source.Texture, gputypes.TextureUsageCopySrc)
			TransitionBufferNow(c.list, cmd.Destination.Buffer, gputypes.BufferUsageCopyDst)
			for _, region := range SplitCopyIntoSubresourceRegions(cmd.Destination, cmd.Source, cmd.CopySize) {
				c.copyTextureToBuffer(region)
			}

		case *gpu.CopyTextureToTextureCmd:
			TransitionTextureNow(c.list, cmd.Source.Texture, gputypes.TextureUsageCopySrc)
			TransitionTextureNow(c.list, cmd.Destination.Texture, gputypes.TextureUsageCopyDst)
			c.copyTextureToTexture(cmd)

		default:
			if !c.debugMarker(command) {
				core.Unreachable("unexpected top level command %s", command.Type())
			}
		}
		if err != nil {
			return err
		}
	}

	if err := c.list.Close(); err != nil {
		return err
	}
	c.State = COMMAND_BUFFER_STATE_RECORDING_ENDED
	return nil
}

func (c *CommandBuffer) copyBufferToTexture(region BufferTextureCopy) {
	texture := region.Texture
	textureLocation := ComputeTextureCopyLocationForTexture(texture.Texture, texture.MipLevel, texture.ArrayLayer)
	split := ComputeTextureCopySplit(texture.Origin, region.CopySize, texture.Texture.FormatInfo(),
		region.Buffer.Offset, region.Buffer.BytesPerRow, region.Buffer.RowsPerImage)

	for i := uint32(0); i < split.Count; i++ {
		info := &split.Copies[i]
		bufferLocation := ComputeBufferLocationForCopyTextureRegion(texture.Texture, region.Buffer.Buffer,
			info.BufferSize, split.Offset, region.Buffer.BytesPerRow)
		box := ComputeD3D12BoxFromOffsetAndSize(info.BufferOffset, info.CopySize)
		c.list.CopyTextureRegion(&textureLocation, info.TextureOffset.X, info.TextureOffset.Y, info.TextureOffset.Z,
			&bufferLocation, &box)
	}
}

func (c *CommandBuffer) copyTextureToBuffer(region BufferTextureCopy) {
	texture := region.Texture
	textureLocation := ComputeTextureCopyLocationForTexture(texture.Texture, texture.MipLevel, texture.ArrayLayer)
	split := ComputeTextureCopySplit(texture.Origin, region.CopySize, texture.Texture.FormatInfo(),
		region.Buffer.Offset, region.Buffer.BytesPerRow, region.Buffer.RowsPerImage)

	for i := uint32(0); i < split.Count; i++ {
		info := &split.Copies[i]
		bufferLocation := ComputeBufferLocationForCopyTextureRegion(texture.Texture, region.Buffer.Buffer,
			info.BufferSize, split.Offset, region.Buffer.BytesPerRow)
		box := ComputeD3D12BoxFromOffsetAndSize(info.TextureOffset, info.CopySize)
		c.list.CopyTextureRegion(&bufferLocation, info.BufferOffset.X, info.BufferOffset.Y, info.BufferOffset.Z,
			&textureLocation, &box)
	}
}

// copyTextureToTexture copies whole resources in one call when it can,
// otherwise one region per array layer.
func (c *CommandBuffer) copyTextureToTexture(cmd *gpu.CopyTextureToTextureCmd) {
	src, dst := cmd.Source, cmd.Destination
	if CanUseCopyResource(src.Texture, dst.Texture, cmd.CopySize) {
		c.list.CopyResource(dst.Texture, src.Texture)
		return
	}

	if src.Texture.Dimension == gputypes.TextureDimension3D {
		srcLocation := ComputeTextureCopyLocationForTexture(src.Texture, src.MipLevel, 0)
		dstLocation := ComputeTextureCopyLocationForTexture(dst.Texture, dst.MipLevel, 0)
		box := ComputeD3D12BoxFromOffsetAndSize(src.Origin, cmd.CopySize)
		c.list.CopyTextureRegion(&dstLocation, dst.Origin.X, dst.Origin.Y, dst.Origin.Z, &srcLocation, &box)
		return
	}

	slice := cmd.CopySize
	slice.DepthOrArrayLayers = 1
	srcOrigin := src.Origin
	srcOrigin.Z = 0
	box := ComputeD3D12BoxFromOffsetAndSize(srcOrigin, slice)
	for layer := uint32(0); layer < max(cmd.CopySize.DepthOrArrayLayers, 1); layer++ {
		srcLocation := ComputeTextureCopyLocationForTexture(src.Texture, src.MipLevel, src.ArrayLayer+layer)
		dstLocation := ComputeTextureCopyLocationForTexture(dst.Texture, dst.MipLevel, dst.ArrayLayer+layer)
		c.list.CopyTextureRegion(&dstLocation, dst.Origin.X, dst.Origin.Y, 0, &srcLocation, &box)
	}
}

// debugMarker handles the marker commands every pass accepts. Lists
// without PIX support drop them.
func (c *CommandBuffer) debugMarker(command gpu.Command) bool {
	markers, ok := c.list.(MarkerCommandList)
	switch cmd := command.(type) {
	case *gpu.PushDebugGroupCmd:
		if ok {
			markers.BeginEvent(cmd.Label)
		}
	case *gpu.PopDebugGroupCmd:
		if ok {
			markers.EndEvent()
		}
	case *gpu.InsertDebugMarkerCmd:
		if ok {
			markers.SetMarker(cmd.Label)
		}
	default:
		return false
	}
	return true
}

func (c *CommandBuffer) recordComputePass(it *gpu.CommandIterator) error {
	c.bindings.Reset()
	for {
		command := it.NextCommand()
		core.Metrics().Commands.Add(1)

		switch cmd := command.(type) {
		case *gpu.EndComputePassCmd:
			return nil

		case *gpu.DispatchCmd:
			if err := c.bindings.Apply(c.list, gpu.PassCompute); err != nil {
				return err
			}
			c.list.Dispatch(cmd.X, cmd.Y, cmd.Z)

		case *gpu.DispatchIndirectCmd:
			if err := c.bindings.Apply(c.list, gpu.PassCompute); err != nil {
				return err
			}
			c.list.ExecuteIndirect(IndirectSignatureDispatch, cmd.IndirectBuffer, cmd.IndirectOffset)

		case *gpu.SetComputePipelineCmd:
			c.list.SetComputeRootSignature(cmd.Pipeline.Layout)
			c.list.SetPipelineState(cmd.Pipeline)
			c.bindings.OnSetPipeline(cmd.Pipeline)

		case *gpu.SetBindGroupCmd:
			c.bindings.OnSetBindGroup(cmd.Index, cmd.Group, cmd.DynamicOffsets)

		default:
			if !c.debugMarker(command) {
				core.Unreachable("unexpected compute pass command %s", command.Type())
			}
		}
	}
}

func (c *CommandBuffer) recordRayTracingPass(it *gpu.CommandIterator) error {
	c.bindings.Reset()
	var pipeline *gpu.RayTracingPipeline
	for {
		command := it.NextCommand()
		core.Metrics().Commands.Add(1)

		switch cmd := command.(type) {
		case *gpu.EndRayTracingPassCmd:
			return nil

		case *gpu.TraceRaysCmd:
			core.Assert(pipeline != nil, "trace rays without a ray-tracing pipeline")
			list4, err := c.commandList4("DispatchRays")
			if err != nil {
				return err
			}
			if err := c.bindings.Apply(c.list, gpu.PassRayTracing); err != nil {
				return err
			}
			desc := dispatchRaysDesc(pipeline.ShaderBindingTable, cmd)
			if err := list4.DispatchRays(&desc); err != nil {
				return err
			}

		case *gpu.SetRayTracingPipelineCmd:
			list4, err := c.commandList4("SetPipelineState1")
			if err != nil {
				return err
			}
			pipeline = cmd.Pipeline
			c.list.SetComputeRootSignature(cmd.Pipeline.Layout)
			if err := list4.SetPipelineState1(cmd.Pipeline); err != nil {
				return err
			}
			c.bindings.OnSetPipeline(cmd.Pipeline)

		case *gpu.SetBindGroupCmd:
			c.bindings.OnSetBindGroup(cmd.Index, cmd.Group, cmd.DynamicOffsets)

		default:
			if !c.debugMarker(command) {
				core.Unreachable("unexpected ray-tracing pass command %s", command.Type())
			}
		}
	}
}

// dispatchRaysDesc points each table at the record of the group index the
// command names. Callable shaders are not supported.
func dispatchRaysDesc(sbt *gpu.ShaderBindingTable, cmd *gpu.TraceRaysCmd) DispatchRaysDesc {
	base := sbt.Buffer.GPUAddress
	stride := sbt.GroupStride
	table := func(group uint32) GPUVirtualAddressRangeAndStride {
		return GPUVirtualAddressRangeAndStride{
			StartAddress:  base + sbt.RecordOffset(group),
			SizeInBytes:   stride,
			StrideInBytes: stride,
		}
	}
	return DispatchRaysDesc{
		RayGenerationShaderRecord: GPUVirtualAddressRange{
			StartAddress: base + sbt.RecordOffset(cmd.RayGenerationOffset),
			SizeInBytes:  stride,
		},
		MissShaderTable: table(cmd.RayMissOffset),
		HitGroupTable:   table(cmd.RayHitOffset),
		Width:           cmd.Width,
		Height:          cmd.Height,
		Depth:           cmd.Depth,
	}
}

// renderEncoder holds the state shared by a render pass and the bundles it
// executes.
type renderEncoder struct {
	c        *CommandBuffer
	bindings *BindGroupStateTracker
	vertices *VertexBufferTracker
	indices  *IndexBufferTracker
}

func (e *renderEncoder) applyDraw(indexed bool) error {
	if err := e.bindings.Apply(e.c.list, gpu.PassRender); err != nil {
		return err
	}
	e.vertices.Apply(e.c.list)
	if indexed {
		e.indices.Apply(e.c.list)
	}
	return nil
}

// encode records one draw-class command. It reports false for commands
// that are not allowed in bundles.
func (e *renderEncoder) encode(command gpu.Command) (bool, error) {
	list := e.c.list
	switch cmd := command.(type) {
	case *gpu.DrawCmd:
		if err := e.applyDraw(false); err != nil {
			return true, err
		}
		list.DrawInstanced(cmd.VertexCount, cmd.InstanceCount, cmd.FirstVertex, cmd.FirstInstance)

	case *gpu.DrawIndexedCmd:
		if err := e.applyDraw(true); err != nil {
			return true, err
		}
		list.DrawIndexedInstanced(cmd.IndexCount, cmd.InstanceCount, cmd.FirstIndex, cmd.BaseVertex, cmd.FirstInstance)

	case *gpu.DrawIndirectCmd:
		if err := e.applyDraw(false); err != nil {
			return true, err
		}
		list.ExecuteIndirect(IndirectSignatureDraw, cmd.IndirectBuffer, cmd.IndirectOffset)

	case *gpu.DrawIndexedIndirectCmd:
		if err := e.applyDraw(true); err != nil {
			return true, err
		}
		list.ExecuteIndirect(IndirectSignatureDrawIndexed, cmd.IndirectBuffer, cmd.IndirectOffset)

	case *gpu.SetRenderPipelineCmd:
		pipeline := cmd.Pipeline
		list.SetGraphicsRootSignature(pipeline.Layout)
		list.SetPipelineState(pipeline)
		list.IASetPrimitiveTopology(D3D12PrimitiveTopology(pipeline.Topology))
		e.bindings.OnSetPipeline(pipeline)
		e.vertices.OnSetPipeline(pipeline)
		e.indices.OnSetPipeline(pipeline)

	case *gpu.SetBindGroupCmd:
		e.bindings.OnSetBindGroup(cmd.Index, cmd.Group, cmd.DynamicOffsets)

	case *gpu.SetIndexBufferCmd:
		e.indices.OnSetIndexBuffer(cmd.Buffer, cmd.Offset, cmd.Size)

	case *gpu.SetVertexBufferCmd:
		e.vertices.OnSetVertexBuffer(cmd.Slot, cmd.Buffer, cmd.Offset, cmd.Size)

	default:
		return e.c.debugMarker(command), nil
	}
	return true, nil
}

func (c *CommandBuffer) setDefaultDynamicState(width, height uint32) {
	c.list.RSSetViewports([]Viewport{{
		TopLeftX: 0,
		TopLeftY: 0,
		Width:    float32(width),
		Height:   float32(height),
		MinDepth: 0,
		MaxDepth: 1,
	}})
	c.list.RSSetScissorRects([]Rect{{Left: 0, Top: 0, Right: int32(width), Bottom: int32(height)}})
	c.list.OMSetBlendFactor([4]float32{0, 0, 0, 0})
	c.list.OMSetStencilRef(0)
}

/**
 * @brief Records a render pass body between a native BeginRenderPass and
 * EndRenderPass when the list supports it and the configuration allows it,
 * otherwise between emulated clears and an explicit resolve.
 */
func (c *CommandBuffer) recordRenderPass(it *gpu.CommandIterator, begin *gpu.BeginRenderPassCmd, hasUAV bool) error {
	builder, err := c.newRenderPassBuilder(begin, hasUAV)
	if err != nil {
		return err
	}

	list4, native := c.useNativeRenderPass()
	if native {
		for _, rt := range builder.RenderTargets {
			if rt.EndingAccess.Type == RenderPassEndingAccessTypeResolve {
				TransitionTextureNow(c.list, rt.EndingAccess.Resolve.Destination, gpu.TextureUsageResolveDest)
			}
		}
		list4.BeginRenderPass(builder.RenderTargets, builder.DepthStencil, builder.Flags)
	} else {
		c.emulateBeginRenderPass(builder)
	}
	c.State = COMMAND_BUFFER_STATE_IN_RENDER_PASS
	c.setDefaultDynamicState(begin.Width, begin.Height)

	c.bindings.Reset()
	encoder := &renderEncoder{
		c:        c,
		bindings: c.bindings,
		vertices: NewVertexBufferTracker(),
		indices:  NewIndexBufferTracker(),
	}
	for {
		command := it.NextCommand()
		core.Metrics().Commands.Add(1)

		switch cmd := command.(type) {
		case *gpu.EndRenderPassCmd:
			if native {
				list4.EndRenderPass()
			} else {
				c.emulateEndRenderPass(builder)
			}
			c.State = COMMAND_BUFFER_STATE_RECORDING
			return nil

		case *gpu.SetViewportCmd:
			c.list.RSSetViewports([]Viewport{{
				TopLeftX: cmd.X,
				TopLeftY: cmd.Y,
				Width:    cmd.Width,
				Height:   cmd.Height,
				MinDepth: cmd.MinDepth,
				MaxDepth: cmd.MaxDepth,
			}})

		case *gpu.SetScissorRectCmd:
			c.list.RSSetScissorRects([]Rect{{
				Left:   int32(cmd.X),
				Top:    int32(cmd.Y),
				Right:  int32(cmd.X + cmd.Width),
				Bottom: int32(cmd.Y + cmd.Height),
			}})

		case *gpu.SetBlendConstantCmd:
			c.list.OMSetBlendFactor(clearColor(cmd.Color))

		case *gpu.SetStencilReferenceCmd:
			c.list.OMSetStencilRef(cmd.Reference)

		case *gpu.ExecuteBundlesCmd:
			for _, bundle := range cmd.Bundles {
				bundleIt := bundle.Commands.Iterator()
				for {
					if _, ok := bundleIt.NextCommandType(); !ok {
						break
					}
					bundleCommand := bundleIt.NextCommand()
					ok, err := encoder.encode(bundleCommand)
					if err != nil {
						return err
					}
					if !ok {
						core.Unreachable("unexpected bundle command %s", bundleCommand.Type())
					}
				}
			}

		default:
			ok, err := encoder.encode(command)
			if err != nil {
				return err
			}
			if !ok {
				core.Unreachable("unexpected render pass command %s", command.Type())
			}
		}
	}
}
