package vulkan

import (
	"github.com/gogpu/gputypes"
	vk "github.com/goki/vulkan"

	"github.com/zxgjxc/dawn-ray-tracing/engine/core"
	"github.com/zxgjxc/dawn-ray-tracing/engine/gpu"
)

/**
 * @brief Tracks the descriptor sets bound for one pass. Sets are bound
 * lazily right before a draw, dispatch or trace call.
 */
type DescriptorSetTracker struct {
	gpu.BindGroupTrackerBase
}

func NewDescriptorSetTracker() *DescriptorSetTracker {
	// Vulkan keeps compatible leading sets bound across layout changes.
	return &DescriptorSetTracker{BindGroupTrackerBase: gpu.NewBindGroupTrackerBase(true)}
}

func bindPointFor(pass gpu.PassKind) vk.PipelineBindPoint {
	switch pass {
	case gpu.PassRender:
		return vk.PipelineBindPointGraphics
	case gpu.PassCompute:
		return vk.PipelineBindPointCompute
	case gpu.PassRayTracing:
		return vk.PipelineBindPoint(pipelineBindPointRayTracing)
	}
	core.Unreachable("no bind point outside of a pass")
	return 0
}

/**
 * @brief Binds every dirty set of the current layout. Compute and
 * ray-tracing passes also transition the storage resources of every set in
 * the layout so writes of a previous dispatch are visible.
 */
func (t *DescriptorSetTracker) Apply(cmds Commands, pass gpu.PassKind) {
	core.Assert(t.PipelineLayout != nil, "bind groups applied without a pipeline")

	bindPoint := bindPointFor(pass)
	t.DirtyGroupsToApply().Each(func(index uint32) {
		cmds.BindDescriptorSets(bindPoint, t.PipelineLayout, index,
			[]*gpu.BindGroup{t.BindGroups[index]}, t.DynamicOffsetsFor(index))
	})

	if pass == gpu.PassCompute || pass == gpu.PassRayTracing {
		t.BindGroupLayoutsMask.Each(func(index uint32) {
			t.transitionStorageBindings(cmds, index)
		})
	}

	t.DidApply()
}

func (t *DescriptorSetTracker) transitionStorageBindings(cmds Commands, index uint32) {
	group := t.BindGroups[index]
	if group == nil {
		return
	}
	t.BindingsNeedingBarrier[index].Each(func(binding uint32) {
		entry := &group.Entries[binding]
		switch group.Layout.Entries[binding].Type {
		case gpu.BindingTypeStorageBuffer:
			TransitionBufferNow(cmds, entry.Buffer.Buffer, gputypes.BufferUsageStorage)
		case gpu.BindingTypeReadonlyStorageTexture:
			TransitionTextureNow(cmds, entry.TextureView.Texture, gpu.TextureUsageReadonlyStorage)
		case gpu.BindingTypeWriteonlyStorageTexture:
			TransitionTextureNow(cmds, entry.TextureView.Texture, gputypes.TextureUsageStorageBinding)
		default:
			core.Unreachable("binding %d of %s needs no barrier", binding, group.Label)
		}
	})
}
