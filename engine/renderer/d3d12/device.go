package d3d12

import (
	"sync"
	"sync/atomic"

	"github.com/zxgjxc/dawn-ray-tracing/engine/containers"
	"github.com/zxgjxc/dawn-ray-tracing/engine/core"
	"github.com/zxgjxc/dawn-ray-tracing/engine/gpu"
)

const (
	stagingViewHeapSize    = 1024
	stagingSamplerHeapSize = 1024
	renderTargetHeapSize   = gpu.MaxColorAttachments * 4
	depthStencilHeapSize   = 4
)

/**
 * @brief The state command buffers of one device share: the shader-visible
 * descriptor heaps, the staging heaps bind groups are written into, and the
 * submission serials deciding when heaps can be recycled.
 */
type Device struct {
	Label string

	descriptors DescriptorDevice
	config      atomic.Pointer[core.D3D12Config]

	viewAllocator    *ShaderVisibleDescriptorAllocator
	samplerAllocator *ShaderVisibleDescriptorAllocator

	stagingViews   *StagingDescriptorAllocator
	stagingSampler *StagingDescriptorAllocator

	pendingSerial   atomic.Uint64
	completedSerial atomic.Uint64

	mu sync.Mutex
	// Pending serial at the start of each open recording, counted.
	recording map[uint64]int
}

func NewDevice(descriptors DescriptorDevice, config core.D3D12Config) (*Device, error) {
	d := &Device{
		Label:          core.NewLabel("d3d12-device"),
		descriptors:    descriptors,
		stagingViews:   NewStagingDescriptorAllocator(descriptors, DescriptorHeapTypeCbvSrvUav, stagingViewHeapSize),
		stagingSampler: NewStagingDescriptorAllocator(descriptors, DescriptorHeapTypeSampler, stagingSamplerHeapSize),
		recording:      make(map[uint64]int),
	}
	d.pendingSerial.Store(1)
	d.config.Store(&config)

	var err error
	d.viewAllocator, err = NewShaderVisibleDescriptorAllocator(descriptors, d, DescriptorHeapTypeCbvSrvUav, config.ViewHeapSize)
	if err != nil {
		return nil, err
	}
	d.samplerAllocator, err = NewShaderVisibleDescriptorAllocator(descriptors, d, DescriptorHeapTypeSampler, config.SamplerHeapSize)
	if err != nil {
		return nil, err
	}
	core.LogInfo("created %s (view heap %d, sampler heap %d, native render pass %t)",
		d.Label, config.ViewHeapSize, config.SamplerHeapSize, config.UseNativeRenderPass)
	return d, nil
}

func (d *Device) PendingSerial() uint64 {
	return d.pendingSerial.Load()
}

func (d *Device) CompletedSerial() uint64 {
	return d.completedSerial.Load()
}

// NextSerial is called once a command list is submitted. Descriptors used
// by it stay in use until SetCompletedSerial reaches the returned serial.
func (d *Device) NextSerial() uint64 {
	return d.pendingSerial.Add(1) - 1
}

func (d *Device) SetCompletedSerial(serial uint64) {
	for {
		current := d.completedSerial.Load()
		if serial <= current || d.completedSerial.CompareAndSwap(current, serial) {
			return
		}
	}
}

// BeginRecording opens a recording window. Heaps retired while it is open
// are not recycled before EndRecording, since the recording may still have
// them bound.
func (d *Device) BeginRecording() uint64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	serial := d.PendingSerial()
	d.recording[serial]++
	return serial
}

// EndRecording closes the window opened at begin. A submitted recording
// takes a serial; completion then advances up to the oldest recording still
// open.
func (d *Device) EndRecording(begin uint64, submitted bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if submitted {
		d.NextSerial()
	}
	if d.recording[begin]--; d.recording[begin] <= 0 {
		delete(d.recording, begin)
	}

	completed := d.PendingSerial() - 1
	for serial := range d.recording {
		completed = min(completed, serial-1)
	}
	d.SetCompletedSerial(completed)
}

// UpdateConfig takes effect for command buffers created afterwards. Heap
// sizes are fixed when the device is created.
func (d *Device) UpdateConfig(config core.D3D12Config) {
	d.config.Store(&config)
	core.LogDebug("%s config updated (native render pass %t)", d.Label, config.UseNativeRenderPass)
}

func (d *Device) Config() core.D3D12Config {
	return *d.config.Load()
}

func (d *Device) Descriptors() DescriptorDevice {
	return d.descriptors
}

func (d *Device) ViewAllocator() *ShaderVisibleDescriptorAllocator {
	return d.viewAllocator
}

func (d *Device) SamplerAllocator() *ShaderVisibleDescriptorAllocator {
	return d.samplerAllocator
}

/**
 * @brief Reserves staging descriptors for group and calls write with the
 * first view and sampler slot so the caller can create the descriptors
 * themselves. The group is populated into the shader-visible heaps the
 * first time a command buffer applies it.
 */
func (d *Device) NewBindGroup(group *gpu.BindGroup, write func(views, samplers CPUDescriptorHandle) error) error {
	native := &BindGroup{}
	err := gpu.SharedLocks().SafeCall(containers.StagingDescriptors, func() error {
		var err error
		if count := group.Layout.ViewCount(); count > 0 {
			if native.CPUViews, err = d.stagingViews.Allocate(count); err != nil {
				return err
			}
		}
		if count := group.Layout.SamplerCount(); count > 0 {
			if native.CPUSamplers, err = d.stagingSampler.Allocate(count); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	if write != nil {
		if err := write(native.CPUViews, native.CPUSamplers); err != nil {
			return err
		}
	}
	group.Native = native
	return nil
}

// NewCommandBuffer returns a command buffer recording into list with the
// current configuration.
func (d *Device) NewCommandBuffer(list CommandList) *CommandBuffer {
	return newCommandBuffer(d, list, d.Config())
}
