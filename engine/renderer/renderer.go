package renderer

import (
	"errors"
	"fmt"
	"sync"

	"github.com/zxgjxc/dawn-ray-tracing/engine/core"
	"github.com/zxgjxc/dawn-ray-tracing/engine/gpu"
	"github.com/zxgjxc/dawn-ray-tracing/engine/jobs"
	"github.com/zxgjxc/dawn-ray-tracing/engine/renderer/d3d12"
	"github.com/zxgjxc/dawn-ray-tracing/engine/renderer/vulkan"
)

type RendererType uint8

const (
	Vulkan RendererType = iota
	DirectX
)

func (t RendererType) String() string {
	switch t {
	case Vulkan:
		return "vulkan"
	case DirectX:
		return "d3d12"
	}
	return fmt.Sprintf("RendererType(%d)", uint8(t))
}

func RendererTypeFor(name core.BackendName) (RendererType, error) {
	switch name {
	case core.BackendVulkan:
		return Vulkan, nil
	case core.BackendD3D12:
		return DirectX, nil
	}
	return 0, fmt.Errorf("unknown backend %q", name)
}

// NewBackend returns the recorder selected by config, not yet initialized.
func NewBackend(config *core.RecorderConfig) (RendererBackend, error) {
	rendererType, err := RendererTypeFor(config.Backend)
	if err != nil {
		return nil, err
	}
	switch rendererType {
	case DirectX:
		return d3d12.New(config.D3D12), nil
	default:
		return vulkan.New(config.Vulkan), nil
	}
}

/**
 * @brief Owns the selected backend. Recordings may overlap each other,
 * object creation and config reloads are applied between them.
 */
type Renderer struct {
	mu      sync.RWMutex
	kind    RendererType
	backend RendererBackend
	jobs    *jobs.JobSystem
}

func New(appName string, config *core.RecorderConfig) (*Renderer, error) {
	backend, err := NewBackend(config)
	if err != nil {
		return nil, err
	}
	kind, _ := RendererTypeFor(config.Backend)
	if err := backend.Initialize(appName); err != nil {
		return nil, fmt.Errorf("failed to initialize the %s backend: %w", kind, err)
	}
	js, err := jobs.NewJobSystem(config.RecordWorkers, config.RecordWorkers)
	if err != nil {
		_ = backend.Shutdown()
		return nil, err
	}
	r := &Renderer{kind: kind, backend: backend, jobs: js}
	core.EventRegister(core.EVENT_CODE_CONFIG_CHANGED, r, r.onConfigChanged)
	core.LogInfo("%s renderer ready (ray tracing %t)", kind, backend.SupportsRayTracing())
	return r, nil
}

func (r *Renderer) Type() RendererType {
	return r.kind
}

func (r *Renderer) Backend() RendererBackend {
	return r.backend
}

func (r *Renderer) Shutdown() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	core.EventUnregister(core.EVENT_CODE_CONFIG_CHANGED, r)
	return errors.Join(r.jobs.Shutdown(), r.backend.Shutdown())
}

func (r *Renderer) CreatePipelineLayout(layout *gpu.PipelineLayout) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.backend.CreatePipelineLayout(layout)
}

func (r *Renderer) CreateBindGroup(group *gpu.BindGroup) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.backend.CreateBindGroup(group)
}

func (r *Renderer) CreateAccelerationContainer(desc *gpu.AccelerationContainerDescriptor, allocator gpu.ScratchAllocator) (*gpu.AccelerationContainer, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.backend.SupportsRayTracing() {
		return nil, core.ErrRayTracingUnsupported
	}
	return r.backend.CreateAccelerationContainer(desc, allocator)
}

func (r *Renderer) DestroyAccelerationContainer(container *gpu.AccelerationContainer) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.backend.DestroyAccelerationContainer(container)
}

// Record translates cb on the backend. Device failures are broadcast as
// EVENT_CODE_DEVICE_LOST, successful recordings as
// EVENT_CODE_COMMAND_BUFFER_RECORDED.
func (r *Renderer) Record(cb *gpu.CommandBuffer) error {
	r.mu.RLock()
	err := r.backend.Record(cb)
	r.mu.RUnlock()

	if err != nil {
		if errors.Is(err, core.ErrDeviceLost) {
			core.EventFire(core.EVENT_CODE_DEVICE_LOST, r, core.EventContext{Label: cb.Label, Err: err})
		}
		return fmt.Errorf("failed to record %s: %w", cb.Label, err)
	}
	core.EventFire(core.EVENT_CODE_COMMAND_BUFFER_RECORDED, r, core.EventContext{
		Label: cb.Label,
		Count: uint32(cb.Commands.Len()),
	})
	return nil
}

// RecordConcurrently records cbs on the worker pool and waits for all of
// them. The command buffers must not use the same resources or bind groups.
func (r *Renderer) RecordConcurrently(cbs []*gpu.CommandBuffer) error {
	if len(cbs) == 1 {
		return r.Record(cbs[0])
	}
	work := make([]jobs.Job, len(cbs))
	for i, cb := range cbs {
		work[i] = jobs.Job{
			Label: cb.Label,
			Run:   func() error { return r.Record(cb) },
		}
	}
	return r.jobs.RunAll(work)
}

// LastCalls returns the native calls of the last recording to finish.
func (r *Renderer) LastCalls() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.backend.LastCalls()
}

func (r *Renderer) UpdateConfig(config *core.RecorderConfig) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if kind, err := RendererTypeFor(config.Backend); err == nil && kind != r.kind {
		core.LogWarn("backend changes need a restart, keeping %s", r.kind)
	}
	if config.RecordWorkers != r.jobs.Workers() {
		core.LogWarn("record_workers changes need a restart, keeping %d", r.jobs.Workers())
	}
	core.SetLogLevel(config.Level())
	r.backend.UpdateConfig(config)
}

func (r *Renderer) onConfigChanged(code core.SystemEventCode, sender interface{}, listener interface{}, data core.EventContext) bool {
	config, ok := data.Payload.(*core.RecorderConfig)
	if !ok {
		core.LogError("wrong payload associated with the event code `%d`", code)
		return false
	}
	r.UpdateConfig(config)
	return false
}

var initRenderer sync.Once
var renderer *Renderer

// Initialize creates the process-wide renderer. Later calls return the
// result of the first one.
func Initialize(appName string, config *core.RecorderConfig) error {
	var err error
	initRenderer.Do(func() {
		renderer, err = New(appName, config)
	})
	if err != nil {
		return err
	}
	if renderer == nil {
		return errors.New("renderer failed to initialize")
	}
	return nil
}

func Get() *Renderer {
	return renderer
}

func Shutdown() error {
	if renderer == nil {
		return nil
	}
	return renderer.Shutdown()
}

func Record(cb *gpu.CommandBuffer) error {
	return renderer.Record(cb)
}

func RecordConcurrently(cbs []*gpu.CommandBuffer) error {
	return renderer.RecordConcurrently(cbs)
}
