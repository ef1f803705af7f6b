package d3d12

import (
	"sync"

	"github.com/zxgjxc/dawn-ray-tracing/engine/core"
	"github.com/zxgjxc/dawn-ray-tracing/engine/gpu"
)

/**
 * @brief Records command buffers through the D3D12 translation against a
 * logging command list. Each recording is treated as submitted and
 * completed immediately, so retired descriptor heaps come back on the next
 * rotation.
 */
type D3D12Renderer struct {
	config      core.D3D12Config
	descriptors *RecordingDevice
	device      *Device

	// Calls of the last recording.
	mu        sync.Mutex
	lastCalls []string
}

func New(config core.D3D12Config) *D3D12Renderer {
	return &D3D12Renderer{config: config}
}

func (r *D3D12Renderer) Initialize(appName string) error {
	r.descriptors = NewRecordingDevice(true)
	device, err := NewDevice(r.descriptors, r.config)
	if err != nil {
		return err
	}
	r.device = device
	core.LogInfo("D3D12 recorder for %s initialized with the logging command list.", appName)
	return nil
}

func (r *D3D12Renderer) Shutdown() error {
	r.device = nil
	r.descriptors = nil
	return nil
}

func (r *D3D12Renderer) UpdateConfig(config *core.RecorderConfig) {
	if config.D3D12.ViewHeapSize != r.config.ViewHeapSize || config.D3D12.SamplerHeapSize != r.config.SamplerHeapSize {
		core.LogWarn("shader-visible heap sizes change on restart only")
	}
	r.device.UpdateConfig(config.D3D12)
}

func (r *D3D12Renderer) SupportsRayTracing() bool {
	return r.descriptors.RayTracing
}

// CreatePipelineLayout assigns the root parameters of layout. The root
// signature itself is not created on the logging list.
func (r *D3D12Renderer) CreatePipelineLayout(layout *gpu.PipelineLayout) error {
	layout.Native = NewPipelineLayout(layout, nil)
	return nil
}

// CreateBindGroup reserves the staging descriptors of group.
func (r *D3D12Renderer) CreateBindGroup(group *gpu.BindGroup) error {
	return r.device.NewBindGroup(group, func(views, samplers CPUDescriptorHandle) error {
		core.LogDebug("staged %s: views at %#x, samplers at %#x", group.Label, views.Ptr, samplers.Ptr)
		return nil
	})
}

func (r *D3D12Renderer) CreateAccelerationContainer(desc *gpu.AccelerationContainerDescriptor, allocator gpu.ScratchAllocator) (*gpu.AccelerationContainer, error) {
	return CreateAccelerationContainer(r.descriptors, desc, allocator)
}

func (r *D3D12Renderer) DestroyAccelerationContainer(container *gpu.AccelerationContainer) {
	container.Destroy()
}

// Record may run concurrently for command buffers that share no resources.
// Heap allocation and bind group population lock internally.
func (r *D3D12Renderer) Record(cb *gpu.CommandBuffer) (err error) {
	begin := r.device.BeginRecording()
	defer func() {
		r.device.EndRecording(begin, err == nil)
	}()

	list := NewRecordingCommandList(true)
	list.Verbose = true
	recorder := r.device.NewCommandBuffer(list)
	if err := recorder.RecordCommands(cb); err != nil {
		return err
	}
	recorder.UpdateSubmitted()
	r.mu.Lock()
	r.lastCalls = list.Calls
	r.mu.Unlock()
	return nil
}

// LastCalls returns the calls of the last recording.
func (r *D3D12Renderer) LastCalls() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lastCalls
}
