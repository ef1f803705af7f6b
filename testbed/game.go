package testbed

import (
	"github.com/gogpu/gputypes"

	"github.com/zxgjxc/dawn-ray-tracing/engine"
	"github.com/zxgjxc/dawn-ray-tracing/engine/core"
	"github.com/zxgjxc/dawn-ray-tracing/engine/gpu"
	"github.com/zxgjxc/dawn-ray-tracing/engine/math"
	"github.com/zxgjxc/dawn-ray-tracing/engine/renderer"
)

const (
	targetWidth  = 64
	targetHeight = 32

	scratchArenaSize = 1 << 20
	scratchBase      = 0x10000000
)

type TestGame struct {
	*engine.Game
}

type gameState struct {
	frame uint64

	target   *gpu.TextureView
	vertices *gpu.Buffer
	indices  *gpu.Buffer
	uniforms *gpu.Buffer
	camera   *gpu.BindGroup
	triangle *gpu.RenderPipeline

	particles *gpu.Buffer
	params    *gpu.BindGroup
	simulate  *gpu.ComputePipeline

	// Nil when the backend has no ray tracing.
	arena *renderer.ScratchArena
	blas  *gpu.AccelerationContainer
	tlas  *gpu.AccelerationContainer
	trace *gpu.RayTracingPipeline
}

func NewTestGame(configPath string) *TestGame {
	tg := &TestGame{
		Game: &engine.Game{
			ApplicationConfig: &engine.ApplicationConfig{
				Name:       "dawn-ray-tracing testbed",
				ConfigPath: configPath,
			},
			State: &gameState{},
		},
	}
	tg.FnInitialize = tg.Initialize
	tg.FnRecord = tg.Record
	tg.FnShutdown = tg.Shutdown
	return tg
}

func (g *TestGame) state() *gameState {
	return g.State.(*gameState)
}

func uniformLayout(label string, visibility gputypes.ShaderStage) *gpu.BindGroupLayout {
	return gpu.NewBindGroupLayout(label, []gpu.BindingInfo{
		{Binding: 0, Type: gpu.BindingTypeUniformBuffer, Visibility: visibility},
	})
}

// Initialize creates the resources every sample stream refers to.
func (g *TestGame) Initialize(r *renderer.Renderer) error {
	s := g.state()

	texture := &gpu.Texture{
		Label:         "backbuffer",
		Format:        gputypes.TextureFormatRGBA8Unorm,
		Dimension:     gputypes.TextureDimension2D,
		Size:          gputypes.Extent3D{Width: targetWidth, Height: targetHeight, DepthOrArrayLayers: 1},
		MipLevelCount: 1,
		SampleCount:   1,
	}
	s.target = &gpu.TextureView{Label: "backbuffer", Texture: texture, Format: texture.Format, MipLevelCount: 1, ArrayLayerCount: 1}
	s.vertices = &gpu.Buffer{Label: "triangle-vertices", Size: 36, Usage: gputypes.BufferUsageVertex, GPUAddress: 0x2000}
	s.indices = &gpu.Buffer{Label: "triangle-indices", Size: 12, Usage: gputypes.BufferUsageIndex, GPUAddress: 0x3000}
	s.uniforms = &gpu.Buffer{Label: "camera", Size: 256, Usage: gputypes.BufferUsageUniform, GPUAddress: 0x1000}

	cameraLayout := uniformLayout("camera", gputypes.ShaderStageVertex)
	triangleLayout := &gpu.PipelineLayout{Label: "triangle", BindGroupLayouts: []*gpu.BindGroupLayout{cameraLayout}}
	if err := r.CreatePipelineLayout(triangleLayout); err != nil {
		return err
	}
	s.camera = gpu.NewBindGroup("camera", cameraLayout, []gpu.BindGroupEntry{
		{Binding: 0, Buffer: gpu.BufferBinding{Buffer: s.uniforms, Size: 256}},
	})
	if err := r.CreateBindGroup(s.camera); err != nil {
		return err
	}
	s.triangle = &gpu.RenderPipeline{
		Label:         "triangle",
		Layout:        triangleLayout,
		Topology:      gputypes.PrimitiveTopologyTriangleList,
		IndexFormat:   gputypes.IndexFormatUint32,
		VertexBuffers: map[uint32]gpu.VertexBufferInfo{0: {ArrayStride: 12}},
		SampleCount:   1,
	}

	s.particles = &gpu.Buffer{Label: "particles", Size: 4096, Usage: gputypes.BufferUsageStorage, GPUAddress: 0x4000}
	paramsLayout := uniformLayout("params", gputypes.ShaderStageCompute)
	simulateLayout := &gpu.PipelineLayout{Label: "simulate", BindGroupLayouts: []*gpu.BindGroupLayout{paramsLayout}}
	if err := r.CreatePipelineLayout(simulateLayout); err != nil {
		return err
	}
	s.params = gpu.NewBindGroup("params", paramsLayout, []gpu.BindGroupEntry{
		{Binding: 0, Buffer: gpu.BufferBinding{Buffer: s.uniforms, Size: 256}},
	})
	if err := r.CreateBindGroup(s.params); err != nil {
		return err
	}
	s.simulate = &gpu.ComputePipeline{Label: "simulate", Layout: simulateLayout}

	if !r.Backend().SupportsRayTracing() {
		core.LogWarn("backend has no ray tracing, skipping the ray-tracing sample")
		return nil
	}
	return g.initializeRayTracing(r)
}

func (g *TestGame) initializeRayTracing(r *renderer.Renderer) error {
	s := g.state()
	s.arena = renderer.NewScratchArena("acceleration-scratch", scratchArenaSize, scratchBase)

	var err error
	s.blas, err = r.CreateAccelerationContainer(&gpu.AccelerationContainerDescriptor{
		Label: "triangle-blas",
		Level: gpu.ContainerLevelBottom,
		Flags: gpu.ContainerFlagAllowUpdate,
		Geometries: []gpu.AccelerationGeometry{{
			Type:         gpu.GeometryTypeTriangles,
			Flags:        gpu.GeometryFlagOpaque,
			VertexBuffer: s.vertices,
			VertexCount:  3,
			VertexStride: 12,
			VertexFormat: gputypes.VertexFormatFloat32x3,
			IndexBuffer:  s.indices,
			IndexCount:   3,
			IndexFormat:  gputypes.IndexFormatUint32,
		}},
	}, s.arena)
	if err != nil {
		return err
	}

	s.tlas, err = r.CreateAccelerationContainer(&gpu.AccelerationContainerDescriptor{
		Label: "scene-tlas",
		Level: gpu.ContainerLevelTop,
		Flags: gpu.ContainerFlagAllowUpdate,
		Instances: []gpu.AccelerationInstance{{
			GeometryContainer: s.blas,
			Transform:         math.NewTransform3DIdentity(),
			Mask:              0xFF,
		}},
	}, s.arena)
	if err != nil {
		return err
	}

	traceLayout := &gpu.PipelineLayout{Label: "trace"}
	if err := r.CreatePipelineLayout(traceLayout); err != nil {
		return err
	}
	// Groups: 0 ray generation, 1 closest hit, 2 miss.
	sbt := &gpu.ShaderBindingTable{
		Label:       "trace-sbt",
		Buffer:      &gpu.Buffer{Label: "trace-sbt", Size: 3 * 64, Usage: gputypes.BufferUsageStorage, GPUAddress: 0x8000},
		GroupStride: 64,
	}
	s.trace = &gpu.RayTracingPipeline{Label: "trace", Layout: traceLayout, ShaderBindingTable: sbt}
	return nil
}

func finish(label string, usages []gpu.PassResourceUsage, cmds ...gpu.Command) *gpu.CommandBuffer {
	stream := gpu.NewCommandStream()
	stream.Push(cmds...)
	return &gpu.CommandBuffer{
		Label:          label,
		Commands:       stream.Finish(),
		ResourceUsages: gpu.CommandBufferResourceUsage{PerPass: usages},
	}
}

// TriangleStream clears the backbuffer and draws one indexed triangle.
func (g *TestGame) TriangleStream() *gpu.CommandBuffer {
	s := g.state()
	usage := gpu.NewPassResourceUsageTracker()
	usage.BufferUsedAs(s.vertices, gputypes.BufferUsageVertex)
	usage.BufferUsedAs(s.indices, gputypes.BufferUsageIndex)
	usage.TextureUsedAs(s.target.Texture, gputypes.TextureUsageRenderAttachment)

	return finish("triangle", []gpu.PassResourceUsage{usage.AcquireResourceUsage()},
		&gpu.PushDebugGroupCmd{Label: "triangle"},
		&gpu.BeginRenderPassCmd{
			ColorAttachments: []gpu.RenderPassColorAttachment{{
				View: s.target, LoadOp: gputypes.LoadOpClear, StoreOp: gputypes.StoreOpStore,
				ClearColor: gputypes.Color{R: 0.1, G: 0.1, B: 0.1, A: 1},
			}},
			Width: targetWidth, Height: targetHeight, SampleCount: 1,
		},
		&gpu.SetRenderPipelineCmd{Pipeline: s.triangle},
		&gpu.SetVertexBufferCmd{Slot: 0, Buffer: s.vertices},
		&gpu.SetIndexBufferCmd{Buffer: s.indices},
		&gpu.SetBindGroupCmd{Index: 0, Group: s.camera},
		&gpu.DrawIndexedCmd{IndexCount: 3, InstanceCount: 1},
		&gpu.EndRenderPassCmd{},
		&gpu.PopDebugGroupCmd{},
	)
}

// ComputeStream runs one dispatch over the particle buffer.
func (g *TestGame) ComputeStream() *gpu.CommandBuffer {
	s := g.state()
	usage := gpu.NewPassResourceUsageTracker()
	usage.BufferUsedAs(s.particles, gputypes.BufferUsageStorage)

	return finish("simulate", []gpu.PassResourceUsage{usage.AcquireResourceUsage()},
		&gpu.BeginComputePassCmd{},
		&gpu.SetComputePipelineCmd{Pipeline: s.simulate},
		&gpu.SetBindGroupCmd{Index: 0, Group: s.params},
		&gpu.DispatchCmd{X: 64, Y: 1, Z: 1},
		&gpu.EndComputePassCmd{},
	)
}

// RayTracingStreams builds the containers on the first frame and updates
// them afterwards, then traces one 64x32 image. Each level is built in its
// own command buffer.
func (g *TestGame) RayTracingStreams() []*gpu.CommandBuffer {
	s := g.state()
	if s.trace == nil {
		return nil
	}

	var streams []*gpu.CommandBuffer
	if !s.blas.IsBuilt() {
		streams = append(streams,
			finish("build-blas", nil, &gpu.BuildRayTracingAccelerationContainerCmd{Container: s.blas}),
			finish("build-tlas", nil, &gpu.BuildRayTracingAccelerationContainerCmd{Container: s.tlas}),
		)
	} else {
		streams = append(streams,
			finish("update-blas", nil, &gpu.UpdateRayTracingAccelerationContainerCmd{Container: s.blas}),
			finish("update-tlas", nil, &gpu.UpdateRayTracingAccelerationContainerCmd{Container: s.tlas}),
		)
	}
	return append(streams, finish("trace", []gpu.PassResourceUsage{{}},
		&gpu.InsertDebugMarkerCmd{Label: "trace"},
		&gpu.BeginRayTracingPassCmd{},
		&gpu.SetRayTracingPipelineCmd{Pipeline: s.trace},
		&gpu.TraceRaysCmd{
			RayGenerationOffset: 0, RayHitOffset: 1, RayMissOffset: 2,
			Width: targetWidth, Height: targetHeight, Depth: 1,
		},
		&gpu.EndRayTracingPassCmd{},
	))
}

// Record returns the stages of one frame. The triangle and compute streams
// touch disjoint resources and share a stage; every ray tracing stream
// depends on the one before it.
func (g *TestGame) Record(r *renderer.Renderer) ([][]*gpu.CommandBuffer, error) {
	s := g.state()
	s.frame++
	core.LogDebug("testbed frame %d", s.frame)

	stages := [][]*gpu.CommandBuffer{{g.TriangleStream(), g.ComputeStream()}}
	for _, cb := range g.RayTracingStreams() {
		stages = append(stages, []*gpu.CommandBuffer{cb})
	}
	return stages, nil
}

func (g *TestGame) Shutdown(r *renderer.Renderer) error {
	s := g.state()
	if s.tlas != nil {
		r.DestroyAccelerationContainer(s.tlas)
	}
	if s.blas != nil {
		r.DestroyAccelerationContainer(s.blas)
	}
	if s.arena != nil {
		used, live := s.arena.Used()
		core.LogInfo("scratch arena: %d bytes handed out, %d entries still live", used, live)
	}
	return nil
}
