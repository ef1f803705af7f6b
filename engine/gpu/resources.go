package gpu

import (
	"github.com/gogpu/gputypes"
	"golang.org/x/exp/slices"

	"github.com/zxgjxc/dawn-ray-tracing/engine/containers"
	"github.com/zxgjxc/dawn-ray-tracing/engine/core"
)

// Buffer is a linear GPU allocation. Native holds the backend object
// allocated for it; the recorder never creates or destroys it.
type Buffer struct {
	Label      string
	Size       uint64
	Usage      gputypes.BufferUsage
	GPUAddress uint64
	Native     interface{}

	lastUsage gputypes.BufferUsage
}

type BufferTransition struct {
	Buffer   *Buffer
	From, To gputypes.BufferUsage
}

// TrackUsage records that the buffer is about to be used as usage and
// reports the transition a barrier has to cover. Read-only usages that
// repeat need nothing; writable ones always do so writes become visible.
func (b *Buffer) TrackUsage(usage gputypes.BufferUsage) (BufferTransition, bool) {
	last := b.lastUsage
	if last == usage && usage&writableBufferUsages == 0 {
		return BufferTransition{}, false
	}
	b.lastUsage = usage
	return BufferTransition{Buffer: b, From: last, To: usage}, true
}

func (b *Buffer) LastUsage() gputypes.BufferUsage {
	return b.lastUsage
}

type Texture struct {
	Label         string
	Format        gputypes.TextureFormat
	Dimension     gputypes.TextureDimension
	Size          gputypes.Extent3D
	MipLevelCount uint32
	SampleCount   uint32
	Usage         gputypes.TextureUsage
	Native        interface{}

	lastUsage gputypes.TextureUsage
}

type TextureTransition struct {
	Texture  *Texture
	From, To gputypes.TextureUsage
}

func (t *Texture) TrackUsage(usage gputypes.TextureUsage) (TextureTransition, bool) {
	last := t.lastUsage
	if last == usage && usage&writableTextureUsages == 0 {
		return TextureTransition{}, false
	}
	t.lastUsage = usage
	return TextureTransition{Texture: t, From: last, To: usage}, true
}

func (t *Texture) LastUsage() gputypes.TextureUsage {
	return t.lastUsage
}

func (t *Texture) FormatInfo() FormatInfo {
	return GetFormatInfo(t.Format)
}

func (t *Texture) ArrayLayers() uint32 {
	if t.Dimension == gputypes.TextureDimension2D {
		return t.Size.DepthOrArrayLayers
	}
	return 1
}

// CopyDepth is the extent a whole-resource copy covers along z.
func (t *Texture) CopyDepth() uint32 {
	switch t.Dimension {
	case gputypes.TextureDimension1D:
		return 1
	case gputypes.TextureDimension2D:
		return t.ArrayLayers()
	case gputypes.TextureDimension3D:
		return t.Size.DepthOrArrayLayers
	}
	core.Unreachable("texture %s has no dimension", t.Label)
	return 0
}

// MipLevelVirtualSize is the size of a mip level as the native API sees it,
// without rounding up to whole compression blocks.
func (t *Texture) MipLevelVirtualSize(level uint32) gputypes.Extent3D {
	size := gputypes.Extent3D{
		Width:              max(t.Size.Width>>level, 1),
		Height:             max(t.Size.Height>>level, 1),
		DepthOrArrayLayers: 1,
	}
	if t.Dimension == gputypes.TextureDimension1D {
		size.Height = 1
	}
	if t.Dimension == gputypes.TextureDimension3D {
		size.DepthOrArrayLayers = max(t.Size.DepthOrArrayLayers>>level, 1)
	}
	return size
}

// MipLevelPhysicalSize rounds the virtual size up to whole blocks, which is
// what front-end validation checks copies against.
func (t *Texture) MipLevelPhysicalSize(level uint32) gputypes.Extent3D {
	size := t.MipLevelVirtualSize(level)
	info := t.FormatInfo()
	size.Width = (size.Width + info.BlockWidth - 1) / info.BlockWidth * info.BlockWidth
	size.Height = (size.Height + info.BlockHeight - 1) / info.BlockHeight * info.BlockHeight
	return size
}

func (t *Texture) SubresourceIndex(mipLevel, arrayLayer uint32) uint32 {
	return mipLevel + arrayLayer*t.MipLevelCount
}

type TextureView struct {
	Label           string
	Texture         *Texture
	Format          gputypes.TextureFormat
	Aspect          gputypes.TextureAspect
	BaseMipLevel    uint32
	MipLevelCount   uint32
	BaseArrayLayer  uint32
	ArrayLayerCount uint32
	Native          interface{}
}

type Sampler struct {
	Label   string
	Compare gputypes.CompareFunction
	Native  interface{}
}

type BindingInfo struct {
	Binding          uint32
	Type             BindingType
	Visibility       gputypes.ShaderStage
	HasDynamicOffset bool
}

// BindGroupLayout keeps its entries packed: dynamic buffers first, the rest
// after, each run ordered by binding number. The position of an entry is
// its binding index.
type BindGroupLayout struct {
	Label   string
	Entries []BindingInfo
	Native  interface{}

	dynamicBufferCount uint32
}

func NewBindGroupLayout(label string, entries []BindingInfo) *BindGroupLayout {
	core.Assert(len(entries) <= MaxBindingsPerGroup, "bind group layout %s has %d bindings", label, len(entries))

	packed := slices.Clone(entries)
	slices.SortStableFunc(packed, func(a, b BindingInfo) int {
		if a.HasDynamicOffset != b.HasDynamicOffset {
			if a.HasDynamicOffset {
				return -1
			}
			return 1
		}
		return int(a.Binding) - int(b.Binding)
	})

	layout := &BindGroupLayout{Label: label, Entries: packed}
	for _, e := range packed {
		if e.HasDynamicOffset {
			core.Assert(e.Type.IsBuffer(), "dynamic offset on non-buffer binding %d", e.Binding)
			layout.dynamicBufferCount++
		}
	}
	return layout
}

func (l *BindGroupLayout) DynamicBufferCount() uint32 {
	return l.dynamicBufferCount
}

// BindingIndex returns the packed index of a binding number.
func (l *BindGroupLayout) BindingIndex(binding uint32) (uint32, bool) {
	i := slices.IndexFunc(l.Entries, func(e BindingInfo) bool { return e.Binding == binding })
	if i < 0 {
		return 0, false
	}
	return uint32(i), true
}

// ViewCount is the number of CBV/SRV/UAV style descriptors a group of this
// layout occupies; dynamic buffers use root descriptors instead.
func (l *BindGroupLayout) ViewCount() uint32 {
	count := uint32(0)
	for _, e := range l.Entries {
		if !e.HasDynamicOffset && !e.Type.IsSampler() {
			count++
		}
	}
	return count
}

func (l *BindGroupLayout) SamplerCount() uint32 {
	count := uint32(0)
	for _, e := range l.Entries {
		if e.Type.IsSampler() {
			count++
		}
	}
	return count
}

type BufferBinding struct {
	Buffer *Buffer
	Offset uint64
	Size   uint64
}

// BindGroupEntry binds exactly one resource to a binding number.
type BindGroupEntry struct {
	Binding     uint32
	Buffer      BufferBinding
	TextureView *TextureView
	Sampler     *Sampler
	Container   *AccelerationContainer
}

type BindGroup struct {
	Label  string
	Layout *BindGroupLayout
	// Entries follow the packed order of the layout.
	Entries []BindGroupEntry
	Native  interface{}
}

func NewBindGroup(label string, layout *BindGroupLayout, entries []BindGroupEntry) *BindGroup {
	core.Assert(len(entries) == len(layout.Entries), "bind group %s has %d entries, layout wants %d", label, len(entries), len(layout.Entries))

	packed := make([]BindGroupEntry, len(entries))
	for _, e := range entries {
		index, ok := layout.BindingIndex(e.Binding)
		core.Assert(ok, "binding %d is not part of layout %s", e.Binding, layout.Label)
		packed[index] = e
	}
	return &BindGroup{Label: label, Layout: layout, Entries: packed, Native: nil}
}

func (g *BindGroup) BufferBinding(bindingIndex uint32) BufferBinding {
	core.Assert(g.Layout.Entries[bindingIndex].Type.IsBuffer(), "binding index %d of %s is not a buffer", bindingIndex, g.Label)
	return g.Entries[bindingIndex].Buffer
}

type PipelineLayout struct {
	Label            string
	BindGroupLayouts []*BindGroupLayout
	Native           interface{}
}

func (l *PipelineLayout) BindGroupLayoutsMask() containers.BitSet32 {
	var mask containers.BitSet32
	for i, bgl := range l.BindGroupLayouts {
		if bgl != nil {
			mask.Set(uint32(i))
		}
	}
	return mask
}

// Pipeline is what every pipeline kind shares with the binding tracker.
type Pipeline interface {
	GetLabel() string
	GetLayout() *PipelineLayout
}

type VertexBufferInfo struct {
	ArrayStride uint64
	StepMode    gputypes.VertexStepMode
}

type RenderPipeline struct {
	Label         string
	Layout        *PipelineLayout
	Topology      gputypes.PrimitiveTopology
	IndexFormat   gputypes.IndexFormat
	VertexBuffers map[uint32]VertexBufferInfo
	SampleCount   uint32
	Native        interface{}
}

func (p *RenderPipeline) GetLabel() string           { return p.Label }
func (p *RenderPipeline) GetLayout() *PipelineLayout { return p.Layout }

func (p *RenderPipeline) VertexBufferSlotsUsed() containers.BitSet32 {
	var used containers.BitSet32
	for slot := range p.VertexBuffers {
		used.Set(slot)
	}
	return used
}

type ComputePipeline struct {
	Label  string
	Layout *PipelineLayout
	Native interface{}
}

func (p *ComputePipeline) GetLabel() string           { return p.Label }
func (p *ComputePipeline) GetLayout() *PipelineLayout { return p.Layout }

type ShaderBindingTableStage struct {
	Stage gputypes.ShaderStage
}

// ShaderBindingTableGroup indices point into the stage list, -1 for unused.
type ShaderBindingTableGroup struct {
	Type              ShaderGroupType
	GeneralIndex      int32
	ClosestHitIndex   int32
	AnyHitIndex       int32
	IntersectionIndex int32
}

// ShaderBindingTable holds one shader record per group, GroupStride bytes apart.
type ShaderBindingTable struct {
	Label       string
	Stages      []ShaderBindingTableStage
	Groups      []ShaderBindingTableGroup
	Buffer      *Buffer
	GroupStride uint64
	Native      interface{}
}

// RecordOffset is the byte offset of the record for group index.
func (s *ShaderBindingTable) RecordOffset(group uint32) uint64 {
	return uint64(group) * s.GroupStride
}

type RayTracingPipeline struct {
	Label              string
	Layout             *PipelineLayout
	ShaderBindingTable *ShaderBindingTable
	Native             interface{}
}

func (p *RayTracingPipeline) GetLabel() string           { return p.Label }
func (p *RayTracingPipeline) GetLayout() *PipelineLayout { return p.Layout }

// RenderBundle is a finished stream of draw-class commands.
type RenderBundle struct {
	Label    string
	Commands *CommandStream
}

// GroupsInheritUpTo returns how many leading groups keep compatible layouts
// when switching from l to other.
func (l *PipelineLayout) GroupsInheritUpTo(other *PipelineLayout) uint32 {
	n := min(len(l.BindGroupLayouts), len(other.BindGroupLayouts))
	for i := 0; i < n; i++ {
		if l.BindGroupLayouts[i] != other.BindGroupLayouts[i] {
			return uint32(i)
		}
	}
	return uint32(n)
}
