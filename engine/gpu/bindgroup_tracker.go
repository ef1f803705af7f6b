package gpu

import (
	"github.com/zxgjxc/dawn-ray-tracing/engine/containers"
)

// BindGroupTrackerBase is the backend independent half of bind group
// tracking. Backends embed it and implement Apply on top.
//
// Two dirty sets are kept on purpose. DirtyBindGroups marks groups whose
// descriptor contents must be populated again. DirtyBindGroupsObjectChangedOrIsDynamic
// marks groups that need a new bind call, which also happens when only the
// dynamic offsets moved.
type BindGroupTrackerBase struct {
	DirtyBindGroups                         containers.BitSet32
	DirtyBindGroupsObjectChangedOrIsDynamic containers.BitSet32
	BindGroupLayoutsMask                    containers.BitSet32

	BindGroups          [MaxBindGroups]*BindGroup
	DynamicOffsetCounts [MaxBindGroups]uint32
	DynamicOffsets      [MaxBindGroups][MaxBindingsPerGroup]uint32

	// Bindings a dispatch has to transition before the shader runs.
	BindingsNeedingBarrier [MaxBindGroups]containers.BitSet32

	PipelineLayout            *PipelineLayout
	LastAppliedPipelineLayout *PipelineLayout

	canInheritBindGroups bool
}

// NewBindGroupTrackerBase returns an empty tracker. With canInherit, a
// layout change keeps the leading groups the two layouts share bound.
func NewBindGroupTrackerBase(canInherit bool) BindGroupTrackerBase {
	return BindGroupTrackerBase{canInheritBindGroups: canInherit}
}

func (t *BindGroupTrackerBase) OnSetBindGroup(index uint32, group *BindGroup, dynamicOffsets []uint32) {
	if t.BindGroups[index] != group {
		t.DirtyBindGroups.Set(index)
		t.DirtyBindGroupsObjectChangedOrIsDynamic.Set(index)
	} else if len(dynamicOffsets) > 0 {
		t.DirtyBindGroupsObjectChangedOrIsDynamic.Set(index)
	}

	t.BindGroups[index] = group
	t.DynamicOffsetCounts[index] = uint32(len(dynamicOffsets))
	copy(t.DynamicOffsets[index][:], dynamicOffsets)

	var needBarrier containers.BitSet32
	for i, info := range group.Layout.Entries {
		if info.Type.NeedsStorageBarrier() {
			needBarrier.Set(uint32(i))
		}
	}
	t.BindingsNeedingBarrier[index] = needBarrier
}

func (t *BindGroupTrackerBase) OnSetPipeline(pipeline Pipeline) {
	t.PipelineLayout = pipeline.GetLayout()
	if t.LastAppliedPipelineLayout == t.PipelineLayout {
		return
	}

	// Groups outside the layout are not marked, they could not be applied.
	t.BindGroupLayoutsMask = t.PipelineLayout.BindGroupLayoutsMask()

	dirtied := t.BindGroupLayoutsMask
	if t.canInheritBindGroups && t.LastAppliedPipelineLayout != nil {
		inherited := t.LastAppliedPipelineLayout.GroupsInheritUpTo(t.PipelineLayout)
		dirtied &^= containers.MaskUpTo(inherited)
	}
	t.DirtyBindGroups |= dirtied
	t.DirtyBindGroupsObjectChangedOrIsDynamic |= dirtied
}

// DirtyGroupsToApply are the groups both in the pipeline layout and in need
// of a bind call.
func (t *BindGroupTrackerBase) DirtyGroupsToApply() containers.BitSet32 {
	return t.DirtyBindGroupsObjectChangedOrIsDynamic & t.BindGroupLayoutsMask
}

// MarkAllBoundDirty forces every group of the layout to be populated and
// bound again.
func (t *BindGroupTrackerBase) MarkAllBoundDirty() {
	t.DirtyBindGroups |= t.BindGroupLayoutsMask
	t.DirtyBindGroupsObjectChangedOrIsDynamic |= t.BindGroupLayoutsMask
}

func (t *BindGroupTrackerBase) DynamicOffsetsFor(index uint32) []uint32 {
	return t.DynamicOffsets[index][:t.DynamicOffsetCounts[index]]
}

func (t *BindGroupTrackerBase) DidApply() {
	t.DirtyBindGroups.Reset()
	t.DirtyBindGroupsObjectChangedOrIsDynamic.Reset()
	t.LastAppliedPipelineLayout = t.PipelineLayout
}
