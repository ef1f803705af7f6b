package vulkan

import (
	vk "github.com/goki/vulkan"

	"github.com/zxgjxc/dawn-ray-tracing/engine/core"
	"github.com/zxgjxc/dawn-ray-tracing/engine/gpu"
)

// Native objects stored in the Native field of the neutral resources. The
// device layer creates them; Destroy releases the handle they own.

type Buffer struct {
	Handle vk.Buffer
	Memory vk.DeviceMemory
}

func (b *Buffer) Destroy(device vk.Device) {
	if b.Handle != nil {
		vk.DestroyBuffer(device, b.Handle, nil)
		b.Handle = nil
	}
	if b.Memory != nil {
		vk.FreeMemory(device, b.Memory, nil)
		b.Memory = nil
	}
}

type Texture struct {
	Handle vk.Image
	Memory vk.DeviceMemory
}

func (t *Texture) Destroy(device vk.Device) {
	if t.Handle != nil {
		vk.DestroyImage(device, t.Handle, nil)
		t.Handle = nil
	}
	if t.Memory != nil {
		vk.FreeMemory(device, t.Memory, nil)
		t.Memory = nil
	}
}

type TextureView struct {
	Handle vk.ImageView
}

func (v *TextureView) Destroy(device vk.Device) {
	if v.Handle != nil {
		vk.DestroyImageView(device, v.Handle, nil)
		v.Handle = nil
	}
}

// BindGroup sets are owned by their descriptor pool.
type BindGroup struct {
	Set vk.DescriptorSet
}

type PipelineLayout struct {
	Handle vk.PipelineLayout
}

func (l *PipelineLayout) Destroy(device vk.Device) {
	if l.Handle != nil {
		vk.DestroyPipelineLayout(device, l.Handle, nil)
		l.Handle = nil
	}
}

type Pipeline struct {
	Handle vk.Pipeline
}

func (p *Pipeline) Destroy(device vk.Device) {
	if p.Handle != nil {
		vk.DestroyPipeline(device, p.Handle, nil)
		p.Handle = nil
	}
}

// AccelerationStructureHandle is a non-dispatchable VkAccelerationStructureNV.
type AccelerationStructureHandle uint64

type Container struct {
	Handle AccelerationStructureHandle
	// Opaque handle referenced by instance records of top-level containers.
	Reference uint64
	Info      AccelerationStructureInfo
}

func (c *Container) Destroy(device vk.Device, fns *RayTracingFunctions) {
	if c.Handle != 0 && fns != nil && fns.DestroyAccelerationStructure != nil {
		fns.DestroyAccelerationStructure(device, c.Handle)
		c.Handle = 0
	}
}

func ToBackendBuffer(b *gpu.Buffer) *Buffer {
	native, ok := b.Native.(*Buffer)
	core.Assert(ok, "buffer %s has no vulkan object", b.Label)
	return native
}

func ToBackendTexture(t *gpu.Texture) *Texture {
	native, ok := t.Native.(*Texture)
	core.Assert(ok, "texture %s has no vulkan object", t.Label)
	return native
}

func ToBackendTextureView(v *gpu.TextureView) *TextureView {
	native, ok := v.Native.(*TextureView)
	core.Assert(ok, "texture view %s has no vulkan object", v.Label)
	return native
}

func ToBackendBindGroup(g *gpu.BindGroup) *BindGroup {
	native, ok := g.Native.(*BindGroup)
	core.Assert(ok, "bind group %s has no vulkan object", g.Label)
	return native
}

func ToBackendPipelineLayout(l *gpu.PipelineLayout) *PipelineLayout {
	native, ok := l.Native.(*PipelineLayout)
	core.Assert(ok, "pipeline layout %s has no vulkan object", l.Label)
	return native
}

func ToBackendPipeline(p gpu.Pipeline) *Pipeline {
	var n interface{}
	switch pipeline := p.(type) {
	case *gpu.RenderPipeline:
		n = pipeline.Native
	case *gpu.ComputePipeline:
		n = pipeline.Native
	case *gpu.RayTracingPipeline:
		n = pipeline.Native
	}
	native, ok := n.(*Pipeline)
	core.Assert(ok, "pipeline %s has no vulkan object", p.GetLabel())
	return native
}

func ToBackendContainer(c *gpu.AccelerationContainer) *Container {
	native, ok := c.Native.(*Container)
	core.Assert(ok, "container %s has no vulkan object", c.Label)
	return native
}
