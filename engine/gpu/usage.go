package gpu

import "github.com/gogpu/gputypes"

// PassResourceUsage lists every resource a pass touches with the union of
// its usages in that pass. Buffers and BufferUsages are parallel slices, as
// are Textures and TextureUsages.
type PassResourceUsage struct {
	Buffers       []*Buffer
	BufferUsages  []gputypes.BufferUsage
	Textures      []*Texture
	TextureUsages []gputypes.TextureUsage
}

type CommandBufferResourceUsage struct {
	PerPass []PassResourceUsage
}

// PassResourceUsageTracker accumulates usages while a pass is encoded.
type PassResourceUsageTracker struct {
	bufferUsages  map[*Buffer]gputypes.BufferUsage
	textureUsages map[*Texture]gputypes.TextureUsage
	buffers       []*Buffer
	textures      []*Texture
}

func NewPassResourceUsageTracker() *PassResourceUsageTracker {
	return &PassResourceUsageTracker{
		bufferUsages:  make(map[*Buffer]gputypes.BufferUsage),
		textureUsages: make(map[*Texture]gputypes.TextureUsage),
	}
}

func (t *PassResourceUsageTracker) BufferUsedAs(buffer *Buffer, usage gputypes.BufferUsage) {
	if _, ok := t.bufferUsages[buffer]; !ok {
		t.buffers = append(t.buffers, buffer)
	}
	t.bufferUsages[buffer] |= usage
}

func (t *PassResourceUsageTracker) TextureUsedAs(texture *Texture, usage gputypes.TextureUsage) {
	if _, ok := t.textureUsages[texture]; !ok {
		t.textures = append(t.textures, texture)
	}
	t.textureUsages[texture] |= usage
}

// AddBindGroup records the usage implied by every binding of group.
func (t *PassResourceUsageTracker) AddBindGroup(group *BindGroup) {
	for i, info := range group.Layout.Entries {
		entry := group.Entries[i]
		switch info.Type {
		case BindingTypeUniformBuffer:
			t.BufferUsedAs(entry.Buffer.Buffer, gputypes.BufferUsageUniform)
		case BindingTypeStorageBuffer:
			t.BufferUsedAs(entry.Buffer.Buffer, gputypes.BufferUsageStorage)
		case BindingTypeReadonlyStorageBuffer:
			t.BufferUsedAs(entry.Buffer.Buffer, gputypes.BufferUsageStorage)
		case BindingTypeSampledTexture:
			t.TextureUsedAs(entry.TextureView.Texture, gputypes.TextureUsageTextureBinding)
		case BindingTypeReadonlyStorageTexture:
			t.TextureUsedAs(entry.TextureView.Texture, TextureUsageReadonlyStorage)
		case BindingTypeWriteonlyStorageTexture:
			t.TextureUsedAs(entry.TextureView.Texture, gputypes.TextureUsageStorageBinding)
		case BindingTypeAccelerationContainer:
			if buf := entry.Container.scratch.Result.Buffer; buf != nil {
				t.BufferUsedAs(buf, BufferUsageAccelerationContainer)
			}
		case BindingTypeSampler, BindingTypeComparisonSampler:
		}
	}
}

// AcquireResourceUsage returns the accumulated table and resets the tracker
// for the next pass.
func (t *PassResourceUsageTracker) AcquireResourceUsage() PassResourceUsage {
	usage := PassResourceUsage{
		Buffers:       t.buffers,
		BufferUsages:  make([]gputypes.BufferUsage, len(t.buffers)),
		Textures:      t.textures,
		TextureUsages: make([]gputypes.TextureUsage, len(t.textures)),
	}
	for i, b := range t.buffers {
		usage.BufferUsages[i] = t.bufferUsages[b]
	}
	for i, tex := range t.textures {
		usage.TextureUsages[i] = t.textureUsages[tex]
	}
	*t = *NewPassResourceUsageTracker()
	return usage
}

// HasStorageUsage reports whether any resource of the pass is written by
// shaders.
func (u *PassResourceUsage) HasStorageUsage() bool {
	for _, usage := range u.BufferUsages {
		if usage&gputypes.BufferUsageStorage != 0 {
			return true
		}
	}
	for _, usage := range u.TextureUsages {
		if usage&gputypes.TextureUsageStorageBinding != 0 {
			return true
		}
	}
	return false
}
