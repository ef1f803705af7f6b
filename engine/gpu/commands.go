package gpu

import (
	"fmt"

	"github.com/gogpu/gputypes"
)

type CommandType uint32

const (
	CommandBeginComputePass CommandType = iota
	CommandBeginRenderPass
	CommandBeginRayTracingPass
	CommandBuildRayTracingAccelerationContainer
	CommandUpdateRayTracingAccelerationContainer
	CommandCopyRayTracingAccelerationContainer
	CommandCopyBufferToBuffer
	CommandCopyBufferToTexture
	CommandCopyTextureToBuffer
	CommandCopyTextureToTexture
	CommandDispatch
	CommandDispatchIndirect
	CommandDraw
	CommandDrawIndexed
	CommandDrawIndirect
	CommandDrawIndexedIndirect
	CommandEndComputePass
	CommandEndRenderPass
	CommandEndRayTracingPass
	CommandExecuteBundles
	CommandInsertDebugMarker
	CommandPopDebugGroup
	CommandPushDebugGroup
	CommandSetComputePipeline
	CommandSetRenderPipeline
	CommandSetRayTracingPipeline
	CommandSetBindGroup
	CommandSetIndexBuffer
	CommandSetVertexBuffer
	CommandSetViewport
	CommandSetScissorRect
	CommandSetBlendConstant
	CommandSetStencilReference
	CommandTraceRays
)

var commandNames = [...]string{
	"BeginComputePass",
	"BeginRenderPass",
	"BeginRayTracingPass",
	"BuildRayTracingAccelerationContainer",
	"UpdateRayTracingAccelerationContainer",
	"CopyRayTracingAccelerationContainer",
	"CopyBufferToBuffer",
	"CopyBufferToTexture",
	"CopyTextureToBuffer",
	"CopyTextureToTexture",
	"Dispatch",
	"DispatchIndirect",
	"Draw",
	"DrawIndexed",
	"DrawIndirect",
	"DrawIndexedIndirect",
	"EndComputePass",
	"EndRenderPass",
	"EndRayTracingPass",
	"ExecuteBundles",
	"InsertDebugMarker",
	"PopDebugGroup",
	"PushDebugGroup",
	"SetComputePipeline",
	"SetRenderPipeline",
	"SetRayTracingPipeline",
	"SetBindGroup",
	"SetIndexBuffer",
	"SetVertexBuffer",
	"SetViewport",
	"SetScissorRect",
	"SetBlendConstant",
	"SetStencilReference",
	"TraceRays",
}

func (t CommandType) String() string {
	if int(t) < len(commandNames) {
		return commandNames[t]
	}
	return fmt.Sprintf("CommandType(%d)", uint32(t))
}

// Command is one record of a command stream.
type Command interface {
	Type() CommandType
}

type RenderPassColorAttachment struct {
	View          *TextureView
	ResolveTarget *TextureView
	LoadOp        gputypes.LoadOp
	StoreOp       gputypes.StoreOp
	ClearColor    gputypes.Color
}

type RenderPassDepthStencilAttachment struct {
	View           *TextureView
	DepthLoadOp    gputypes.LoadOp
	DepthStoreOp   gputypes.StoreOp
	ClearDepth     float32
	StencilLoadOp  gputypes.LoadOp
	StencilStoreOp gputypes.StoreOp
	ClearStencil   uint32
}

type BeginComputePassCmd struct{}

type BeginRenderPassCmd struct {
	ColorAttachments       []RenderPassColorAttachment
	DepthStencilAttachment *RenderPassDepthStencilAttachment
	Width                  uint32
	Height                 uint32
	SampleCount            uint32
}

type BeginRayTracingPassCmd struct{}

type BuildRayTracingAccelerationContainerCmd struct {
	Container *AccelerationContainer
}

type UpdateRayTracingAccelerationContainerCmd struct {
	Container *AccelerationContainer
}

type CopyRayTracingAccelerationContainerCmd struct {
	Source      *AccelerationContainer
	Destination *AccelerationContainer
}

type CopyBufferToBufferCmd struct {
	Source            *Buffer
	SourceOffset      uint64
	Destination       *Buffer
	DestinationOffset uint64
	Size              uint64
}

// BufferCopy is the linear side of a buffer/texture copy.
type BufferCopy struct {
	Buffer       *Buffer
	Offset       uint64
	BytesPerRow  uint32
	RowsPerImage uint32
}

// TextureCopy is the texel side of a copy. Origin.Z is unused for 2D
// textures, ArrayLayer selects the first layer instead.
type TextureCopy struct {
	Texture    *Texture
	MipLevel   uint32
	ArrayLayer uint32
	Origin     gputypes.Origin3D
	Aspect     gputypes.TextureAspect
}

type CopyBufferToTextureCmd struct {
	Source      BufferCopy
	Destination TextureCopy
	CopySize    gputypes.Extent3D
}

type CopyTextureToBufferCmd struct {
	Source      TextureCopy
	Destination BufferCopy
	CopySize    gputypes.Extent3D
}

type CopyTextureToTextureCmd struct {
	Source      TextureCopy
	Destination TextureCopy
	CopySize    gputypes.Extent3D
}

type DispatchCmd struct {
	X, Y, Z uint32
}

type DispatchIndirectCmd struct {
	IndirectBuffer *Buffer
	IndirectOffset uint64
}

type DrawCmd struct {
	VertexCount   uint32
	InstanceCount uint32
	FirstVertex   uint32
	FirstInstance uint32
}

type DrawIndexedCmd struct {
	IndexCount    uint32
	InstanceCount uint32
	FirstIndex    uint32
	BaseVertex    int32
	FirstInstance uint32
}

type DrawIndirectCmd struct {
	IndirectBuffer *Buffer
	IndirectOffset uint64
}

type DrawIndexedIndirectCmd struct {
	IndirectBuffer *Buffer
	IndirectOffset uint64
}

type EndComputePassCmd struct{}

type EndRenderPassCmd struct{}

type EndRayTracingPassCmd struct{}

type ExecuteBundlesCmd struct {
	Bundles []*RenderBundle
}

type InsertDebugMarkerCmd struct {
	Label string
}

type PopDebugGroupCmd struct{}

type PushDebugGroupCmd struct {
	Label string
}

type SetComputePipelineCmd struct {
	Pipeline *ComputePipeline
}

type SetRenderPipelineCmd struct {
	Pipeline *RenderPipeline
}

type SetRayTracingPipelineCmd struct {
	Pipeline *RayTracingPipeline
}

type SetBindGroupCmd struct {
	Index          uint32
	Group          *BindGroup
	DynamicOffsets []uint32
}

// SetIndexBufferCmd binds an index buffer. The format comes from the
// render pipeline; a zero Size means the rest of the buffer.
type SetIndexBufferCmd struct {
	Buffer *Buffer
	Offset uint64
	Size   uint64
}

type SetVertexBufferCmd struct {
	Slot   uint32
	Buffer *Buffer
	Offset uint64
	Size   uint64
}

type SetViewportCmd struct {
	X, Y, Width, Height float32
	MinDepth, MaxDepth  float32
}

type SetScissorRectCmd struct {
	X, Y, Width, Height uint32
}

type SetBlendConstantCmd struct {
	Color gputypes.Color
}

type SetStencilReferenceCmd struct {
	Reference uint32
}

// TraceRaysCmd offsets are group indices into the shader binding table.
type TraceRaysCmd struct {
	RayGenerationOffset uint32
	RayHitOffset        uint32
	RayMissOffset       uint32
	Width               uint32
	Height              uint32
	Depth               uint32
}

func (*BeginComputePassCmd) Type() CommandType    { return CommandBeginComputePass }
func (*BeginRenderPassCmd) Type() CommandType     { return CommandBeginRenderPass }
func (*BeginRayTracingPassCmd) Type() CommandType { return CommandBeginRayTracingPass }
func (*BuildRayTracingAccelerationContainerCmd) Type() CommandType {
	return CommandBuildRayTracingAccelerationContainer
}
func (*UpdateRayTracingAccelerationContainerCmd) Type() CommandType {
	return CommandUpdateRayTracingAccelerationContainer
}
func (*CopyRayTracingAccelerationContainerCmd) Type() CommandType {
	return CommandCopyRayTracingAccelerationContainer
}
func (*CopyBufferToBufferCmd) Type() CommandType    { return CommandCopyBufferToBuffer }
func (*CopyBufferToTextureCmd) Type() CommandType   { return CommandCopyBufferToTexture }
func (*CopyTextureToBufferCmd) Type() CommandType   { return CommandCopyTextureToBuffer }
func (*CopyTextureToTextureCmd) Type() CommandType  { return CommandCopyTextureToTexture }
func (*DispatchCmd) Type() CommandType              { return CommandDispatch }
func (*DispatchIndirectCmd) Type() CommandType      { return CommandDispatchIndirect }
func (*DrawCmd) Type() CommandType                  { return CommandDraw }
func (*DrawIndexedCmd) Type() CommandType           { return CommandDrawIndexed }
func (*DrawIndirectCmd) Type() CommandType          { return CommandDrawIndirect }
func (*DrawIndexedIndirectCmd) Type() CommandType   { return CommandDrawIndexedIndirect }
func (*EndComputePassCmd) Type() CommandType        { return CommandEndComputePass }
func (*EndRenderPassCmd) Type() CommandType         { return CommandEndRenderPass }
func (*EndRayTracingPassCmd) Type() CommandType     { return CommandEndRayTracingPass }
func (*ExecuteBundlesCmd) Type() CommandType        { return CommandExecuteBundles }
func (*InsertDebugMarkerCmd) Type() CommandType     { return CommandInsertDebugMarker }
func (*PopDebugGroupCmd) Type() CommandType         { return CommandPopDebugGroup }
func (*PushDebugGroupCmd) Type() CommandType        { return CommandPushDebugGroup }
func (*SetComputePipelineCmd) Type() CommandType    { return CommandSetComputePipeline }
func (*SetRenderPipelineCmd) Type() CommandType     { return CommandSetRenderPipeline }
func (*SetRayTracingPipelineCmd) Type() CommandType { return CommandSetRayTracingPipeline }
func (*SetBindGroupCmd) Type() CommandType          { return CommandSetBindGroup }
func (*SetIndexBufferCmd) Type() CommandType        { return CommandSetIndexBuffer }
func (*SetVertexBufferCmd) Type() CommandType       { return CommandSetVertexBuffer }
func (*SetViewportCmd) Type() CommandType           { return CommandSetViewport }
func (*SetScissorRectCmd) Type() CommandType        { return CommandSetScissorRect }
func (*SetBlendConstantCmd) Type() CommandType      { return CommandSetBlendConstant }
func (*SetStencilReferenceCmd) Type() CommandType   { return CommandSetStencilReference }
func (*TraceRaysCmd) Type() CommandType             { return CommandTraceRays }

// CommandStream is an append-only list of commands. Once finished it is
// immutable and may be iterated any number of times.
type CommandStream struct {
	commands []Command
	finished bool
}

func NewCommandStream() *CommandStream {
	return &CommandStream{}
}

func (s *CommandStream) Push(cmds ...Command) {
	if s.finished {
		panic("push on a finished command stream")
	}
	s.commands = append(s.commands, cmds...)
}

func (s *CommandStream) Finish() *CommandStream {
	s.finished = true
	return s
}

func (s *CommandStream) IsFinished() bool {
	return s.finished
}

func (s *CommandStream) Len() int {
	return len(s.commands)
}

func (s *CommandStream) Iterator() *CommandIterator {
	if !s.finished {
		panic("iterating a command stream that is still being encoded")
	}
	return &CommandIterator{stream: s}
}

type CommandIterator struct {
	stream *CommandStream
	pos    int
}

// NextCommandType peeks at the next command without consuming it.
func (it *CommandIterator) NextCommandType() (CommandType, bool) {
	if it.pos >= len(it.stream.commands) {
		return 0, false
	}
	return it.stream.commands[it.pos].Type(), true
}

// NextCommand consumes the next command.
func (it *CommandIterator) NextCommand() Command {
	if it.pos >= len(it.stream.commands) {
		panic("command iterator read past the end of the stream")
	}
	cmd := it.stream.commands[it.pos]
	it.pos++
	return cmd
}

func (it *CommandIterator) Reset() {
	it.pos = 0
}

// CommandBuffer is a finished stream together with the usages computed for
// each of its passes, in pass order.
type CommandBuffer struct {
	Label          string
	Commands       *CommandStream
	ResourceUsages CommandBufferResourceUsage
}
