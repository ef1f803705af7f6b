package d3d12

import (
	"github.com/gogpu/gputypes"

	"github.com/zxgjxc/dawn-ray-tracing/engine/core"
	"github.com/zxgjxc/dawn-ray-tracing/engine/gpu"
)

/**
 * @brief Tracks the bind groups of a command buffer and copies their
 * descriptors into the shader-visible heaps before a draw, dispatch or
 * trace call. When a heap runs out it is switched and every group of the
 * layout is populated again. Heaps switched by other command buffers of the
 * device are picked up the same way.
 */
type BindGroupStateTracker struct {
	gpu.BindGroupTrackerBase

	device           *Device
	viewAllocator    *ShaderVisibleDescriptorAllocator
	samplerAllocator *ShaderVisibleDescriptorAllocator

	// Serials of the heaps bound on the command list.
	boundViewHeap    uint64
	boundSamplerHeap uint64
}

func NewBindGroupStateTracker(device *Device) *BindGroupStateTracker {
	// Root signatures change as a whole, nothing is inherited.
	return &BindGroupStateTracker{
		BindGroupTrackerBase: gpu.NewBindGroupTrackerBase(false),
		device:               device,
		viewAllocator:        device.ViewAllocator(),
		samplerAllocator:     device.SamplerAllocator(),
	}
}

// SetDescriptorHeaps binds the current shader-visible heaps on list.
func (t *BindGroupStateTracker) SetDescriptorHeaps(list CommandList) {
	views, viewSerial := t.viewAllocator.CurrentHeap()
	samplers, samplerSerial := t.samplerAllocator.CurrentHeap()
	list.SetDescriptorHeaps([]*DescriptorHeap{views, samplers})
	t.boundViewHeap, t.boundSamplerHeap = viewSerial, samplerSerial
}

// heapsSwitched reports whether a heap was switched since the heaps were
// bound on the list, by this command buffer or another one.
func (t *BindGroupStateTracker) heapsSwitched() bool {
	_, views := t.viewAllocator.CurrentHeap()
	_, samplers := t.samplerAllocator.CurrentHeap()
	return views != t.boundViewHeap || samplers != t.boundSamplerHeap
}

// populatedInBoundHeaps reports whether every dirty group lives in the
// heaps bound on the list.
func (t *BindGroupStateTracker) populatedInBoundHeaps() bool {
	for _, index := range t.DirtyBindGroups.Indices() {
		group := t.BindGroups[index]
		views, samplers := ToBackendBindGroup(group).HeapSerials()
		if group.Layout.ViewCount() > 0 && views != t.boundViewHeap {
			return false
		}
		if group.Layout.SamplerCount() > 0 && samplers != t.boundSamplerHeap {
			return false
		}
	}
	return true
}

func (t *BindGroupStateTracker) assertLayoutFits() {
	var views, samplers uint32
	t.BindGroupLayoutsMask.Each(func(index uint32) {
		if group := t.BindGroups[index]; group != nil {
			views += group.Layout.ViewCount()
			samplers += group.Layout.SamplerCount()
		}
	})
	core.Assert(views <= t.viewAllocator.Capacity() && samplers <= t.samplerAllocator.Capacity(),
		"%s needs %d views and %d samplers, more than a descriptor heap holds", t.PipelineLayout.Label, views, samplers)
}

// Reset forgets every bound group, as at the start of a pass. The heaps
// stay bound on the list.
func (t *BindGroupStateTracker) Reset() {
	t.BindGroupTrackerBase = gpu.NewBindGroupTrackerBase(false)
}

func (t *BindGroupStateTracker) populate(index uint32) (bool, bool) {
	group := t.BindGroups[index]
	native := ToBackendBindGroup(group)
	descriptors := t.device.Descriptors()
	views := native.PopulateViews(descriptors, t.viewAllocator, group.Layout)
	samplers := native.PopulateSamplers(descriptors, t.samplerAllocator, group.Layout)
	return views, samplers
}

/**
 * @brief Makes the descriptors of the dirty groups visible to the shaders of
 * pass and binds them. Compute and ray-tracing passes then transition the
 * storage resources of every group in the layout.
 */
func (t *BindGroupStateTracker) Apply(list CommandList, pass gpu.PassKind) error {
	core.Assert(t.PipelineLayout != nil, "bind groups applied without a pipeline")

	for {
		if t.heapsSwitched() {
			// Groups bound so far may live in the old heaps, bind all again.
			t.MarkAllBoundDirty()
			t.SetDescriptorHeaps(list)
		}

		viewsOK, samplersOK := true, true
		for _, index := range t.DirtyBindGroups.Indices() {
			views, samplers := t.populate(index)
			viewsOK = viewsOK && views
			samplersOK = samplersOK && samplers
			if !viewsOK && !samplersOK {
				break
			}
		}

		if viewsOK && samplersOK {
			// Another command buffer may have switched heaps while the
			// groups were populated.
			if t.populatedInBoundHeaps() {
				break
			}
			continue
		}

		t.assertLayoutFits()
		if !viewsOK {
			if err := t.viewAllocator.AllocateAndSwitchShaderVisibleHeap(); err != nil {
				return err
			}
		}
		if !samplersOK {
			if err := t.samplerAllocator.AllocateAndSwitchShaderVisibleHeap(); err != nil {
				return err
			}
		}
	}

	layout := ToBackendPipelineLayout(t.PipelineLayout)
	for _, index := range t.DirtyGroupsToApply().Indices() {
		if err := t.applyBindGroup(list, layout, pass, index); err != nil {
			return err
		}
	}

	if pass == gpu.PassCompute || pass == gpu.PassRayTracing {
		t.BindGroupLayoutsMask.Each(func(index uint32) {
			t.transitionStorageBindings(list, index)
		})
	}

	t.DidApply()
	return nil
}

func (t *BindGroupStateTracker) applyBindGroup(list CommandList, layout *PipelineLayout, pass gpu.PassKind, index uint32) error {
	group := t.BindGroups[index]
	core.Assert(group != nil, "bind group %d of %s is not set", index, t.PipelineLayout.Label)
	bgl := group.Layout
	compute := pass != gpu.PassRender

	if dynamicCount := bgl.DynamicBufferCount(); dynamicCount > 0 {
		offsets := t.DynamicOffsetsFor(index)
		core.Assert(uint32(len(offsets)) == dynamicCount, "bind group %s has %d dynamic offsets, wants %d", group.Label, len(offsets), dynamicCount)

		rootViews, ok := list.(RootDescriptorCommandList)
		if !ok {
			return invalidCall("SetGraphicsRootConstantBufferView")
		}
		for binding := uint32(0); binding < dynamicCount; binding++ {
			buffer := group.BufferBinding(binding)
			address := buffer.Buffer.GPUAddress + buffer.Offset + uint64(offsets[binding])
			parameter := layout.DynamicRootParameterIndex(index, binding)
			setRootView(rootViews, compute, bgl.Entries[binding].Type, parameter, address)
		}
	}

	if !t.DirtyBindGroups.Has(index) {
		return nil
	}

	native := ToBackendBindGroup(group)
	if bgl.ViewCount() > 0 {
		parameter := layout.CbvUavSrvRootParameterIndex(index)
		if compute {
			list.SetComputeRootDescriptorTable(parameter, native.BaseViewDescriptor())
		} else {
			list.SetGraphicsRootDescriptorTable(parameter, native.BaseViewDescriptor())
		}
	}
	if bgl.SamplerCount() > 0 {
		parameter := layout.SamplerRootParameterIndex(index)
		if compute {
			list.SetComputeRootDescriptorTable(parameter, native.BaseSamplerDescriptor())
		} else {
			list.SetGraphicsRootDescriptorTable(parameter, native.BaseSamplerDescriptor())
		}
	}
	return nil
}

func setRootView(list RootDescriptorCommandList, compute bool, binding gpu.BindingType, parameter uint32, address uint64) {
	switch binding {
	case gpu.BindingTypeUniformBuffer:
		if compute {
			list.SetComputeRootConstantBufferView(parameter, address)
		} else {
			list.SetGraphicsRootConstantBufferView(parameter, address)
		}
	case gpu.BindingTypeStorageBuffer:
		if compute {
			list.SetComputeRootUnorderedAccessView(parameter, address)
		} else {
			list.SetGraphicsRootUnorderedAccessView(parameter, address)
		}
	case gpu.BindingTypeReadonlyStorageBuffer:
		if compute {
			list.SetComputeRootShaderResourceView(parameter, address)
		} else {
			list.SetGraphicsRootShaderResourceView(parameter, address)
		}
	default:
		core.Unreachable("%s bindings cannot have a dynamic offset", binding)
	}
}

func (t *BindGroupStateTracker) transitionStorageBindings(list CommandList, index uint32) {
	group := t.BindGroups[index]
	if group == nil {
		return
	}
	t.BindingsNeedingBarrier[index].Each(func(binding uint32) {
		entry := &group.Entries[binding]
		switch group.Layout.Entries[binding].Type {
		case gpu.BindingTypeStorageBuffer:
			TransitionBufferNow(list, entry.Buffer.Buffer, gputypes.BufferUsageStorage)
		case gpu.BindingTypeReadonlyStorageTexture:
			TransitionTextureNow(list, entry.TextureView.Texture, gpu.TextureUsageReadonlyStorage)
		case gpu.BindingTypeWriteonlyStorageTexture:
			TransitionTextureNow(list, entry.TextureView.Texture, gputypes.TextureUsageStorageBinding)
		default:
			core.Unreachable("binding %d of %s needs no barrier", binding, group.Label)
		}
	})
}
