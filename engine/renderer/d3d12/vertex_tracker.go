package d3d12

import (
	"github.com/gogpu/gputypes"

	"github.com/zxgjxc/dawn-ray-tracing/engine/core"
	"github.com/zxgjxc/dawn-ray-tracing/engine/gpu"
)

// VertexBufferTracker batches vertex buffer bindings: the slots touched
// since the last draw are applied with a single IASetVertexBuffers call
// covering [startSlot, endSlot).
type VertexBufferTracker struct {
	views     [gpu.MaxVertexBuffers]VertexBufferView
	startSlot uint32
	endSlot   uint32
}

func NewVertexBufferTracker() *VertexBufferTracker {
	return &VertexBufferTracker{startSlot: gpu.MaxVertexBuffers}
}

func (t *VertexBufferTracker) OnSetVertexBuffer(slot uint32, buffer *gpu.Buffer, offset, size uint64) {
	core.Assert(slot < gpu.MaxVertexBuffers, "vertex buffer slot %d out of range", slot)
	if size == 0 {
		size = buffer.Size - offset
	}
	t.views[slot].BufferLocation = buffer.GPUAddress + offset
	t.views[slot].SizeInBytes = uint32(size)
	t.startSlot = min(t.startSlot, slot)
	t.endSlot = max(t.endSlot, slot+1)
}

// OnSetPipeline takes the strides from the pipeline. Strides are part of
// the views, so every slot the pipeline reads has to be applied again.
func (t *VertexBufferTracker) OnSetPipeline(pipeline *gpu.RenderPipeline) {
	used := pipeline.VertexBufferSlotsUsed()
	used.Each(func(slot uint32) {
		t.views[slot].StrideInBytes = uint32(pipeline.VertexBuffers[slot].ArrayStride)
		t.startSlot = min(t.startSlot, slot)
		t.endSlot = max(t.endSlot, slot+1)
	})
}

func (t *VertexBufferTracker) Apply(list CommandList) {
	if t.endSlot <= t.startSlot {
		return
	}
	views := make([]VertexBufferView, t.endSlot-t.startSlot)
	copy(views, t.views[t.startSlot:t.endSlot])
	list.IASetVertexBuffers(t.startSlot, views)

	t.startSlot = gpu.MaxVertexBuffers
	t.endSlot = 0
}

// IndexBufferTracker sets the index buffer only when its format, which
// comes from the pipeline, changed since the last indexed draw.
type IndexBufferTracker struct {
	view              IndexBufferView
	format            DXGIFormat
	lastAppliedFormat DXGIFormat
	bound             bool
}

func NewIndexBufferTracker() *IndexBufferTracker {
	return &IndexBufferTracker{}
}

func (t *IndexBufferTracker) OnSetIndexBuffer(buffer *gpu.Buffer, offset, size uint64) {
	if size == 0 {
		size = buffer.Size - offset
	}
	t.view.BufferLocation = buffer.GPUAddress + offset
	t.view.SizeInBytes = uint32(size)
	t.lastAppliedFormat = DXGIFormatUnknown
	t.bound = true
}

func (t *IndexBufferTracker) OnSetPipeline(pipeline *gpu.RenderPipeline) {
	format := pipeline.IndexFormat
	if format == gputypes.IndexFormatUndefined {
		format = gputypes.IndexFormatUint32
	}
	t.format = DXGIIndexFormat(format)
}

func (t *IndexBufferTracker) Apply(list CommandList) {
	core.Assert(t.bound, "indexed draw without an index buffer")
	if t.format == t.lastAppliedFormat {
		return
	}
	t.view.Format = t.format
	view := t.view
	list.IASetIndexBuffer(&view)
	t.lastAppliedFormat = t.format
}
