package renderer

import (
	"github.com/zxgjxc/dawn-ray-tracing/engine/core"
	"github.com/zxgjxc/dawn-ray-tracing/engine/gpu"
)

// RendererBackend is implemented by every native command recorder.
type RendererBackend interface {
	Initialize(appName string) error
	Shutdown() error
	// UpdateConfig applies a reloaded configuration to later recordings.
	UpdateConfig(config *core.RecorderConfig)
	SupportsRayTracing() bool
	CreatePipelineLayout(layout *gpu.PipelineLayout) error
	CreateBindGroup(group *gpu.BindGroup) error
	CreateAccelerationContainer(desc *gpu.AccelerationContainerDescriptor, allocator gpu.ScratchAllocator) (*gpu.AccelerationContainer, error)
	DestroyAccelerationContainer(container *gpu.AccelerationContainer)
	Record(cb *gpu.CommandBuffer) error
	// LastCalls returns the native calls of the last recording on a
	// logging sink, nil on a native device.
	LastCalls() []string
}
