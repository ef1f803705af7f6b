package d3d12

import (
	"github.com/gogpu/gputypes"

	"github.com/zxgjxc/dawn-ray-tracing/engine/gpu"
)

// RenderPassBuilder collects the descriptors of a render pass in the shape
// both the native BeginRenderPass and the emulated path consume.
type RenderPassBuilder struct {
	RenderTargets    []RenderPassRenderTargetDesc
	DepthStencil     *RenderPassDepthStencilDesc
	Flags            RenderPassFlags
	ColorAttachments []gpu.RenderPassColorAttachment
	DepthAttachment  *gpu.RenderPassDepthStencilAttachment
}

func clearColor(c gputypes.Color) [4]float32 {
	return [4]float32{float32(c.R), float32(c.G), float32(c.B), float32(c.A)}
}

func beginningAccess(op gputypes.LoadOp, clear ClearValue) RenderPassBeginningAccess {
	access := RenderPassBeginningAccess{Type: D3D12BeginningAccessType(op)}
	if access.Type == RenderPassBeginningAccessTypeClear {
		access.Clear = clear
	}
	return access
}

// newRenderPassBuilder writes a render target view for every color
// attachment and a depth stencil view for the depth attachment into the
// staging heaps of the command buffer.
func (c *CommandBuffer) newRenderPassBuilder(begin *gpu.BeginRenderPassCmd, hasUAV bool) (*RenderPassBuilder, error) {
	descriptors := c.device.Descriptors()
	b := &RenderPassBuilder{
		ColorAttachments: begin.ColorAttachments,
		DepthAttachment:  begin.DepthStencilAttachment,
	}
	if hasUAV {
		b.Flags |= RenderPassFlagAllowUAVWrites
	}

	for _, attachment := range begin.ColorAttachments {
		handle, err := c.rtvAllocator.Allocate(1)
		if err != nil {
			return nil, err
		}
		descriptors.CreateRenderTargetView(attachment.View, handle)

		format := D3D12TextureFormat(attachment.View.Format)
		desc := RenderPassRenderTargetDesc{
			CPUDescriptor:   handle,
			BeginningAccess: beginningAccess(attachment.LoadOp, ClearValue{Format: format, Color: clearColor(attachment.ClearColor)}),
			EndingAccess:    RenderPassEndingAccess{Type: D3D12EndingAccessType(attachment.StoreOp)},
		}
		if resolve := attachment.ResolveTarget; resolve != nil && begin.SampleCount > 1 {
			src := attachment.View
			desc.EndingAccess = RenderPassEndingAccess{
				Type: RenderPassEndingAccessTypeResolve,
				Resolve: RenderPassEndingAccessResolve{
					Source:      src.Texture,
					Destination: resolve.Texture,
					Subresource: ResolveSubresourceParameters{
						SrcSubresource: src.Texture.SubresourceIndex(src.BaseMipLevel, src.BaseArrayLayer),
						DstSubresource: resolve.Texture.SubresourceIndex(resolve.BaseMipLevel, resolve.BaseArrayLayer),
					},
					Format: D3D12TextureFormat(resolve.Format),
				},
			}
		}
		b.RenderTargets = append(b.RenderTargets, desc)
	}

	if ds := begin.DepthStencilAttachment; ds != nil {
		handle, err := c.dsvAllocator.Allocate(1)
		if err != nil {
			return nil, err
		}
		descriptors.CreateDepthStencilView(ds.View, handle)

		format := ds.View.Format
		clear := ClearValue{Format: D3D12TextureFormat(format), Depth: ds.ClearDepth, Stencil: uint8(ds.ClearStencil)}
		desc := &RenderPassDepthStencilDesc{
			CPUDescriptor:          handle,
			DepthBeginningAccess:   RenderPassBeginningAccess{Type: RenderPassBeginningAccessTypeNoAccess},
			StencilBeginningAccess: RenderPassBeginningAccess{Type: RenderPassBeginningAccessTypeNoAccess},
			DepthEndingAccess:      RenderPassEndingAccess{Type: RenderPassEndingAccessTypeNoAccess},
			StencilEndingAccess:    RenderPassEndingAccess{Type: RenderPassEndingAccessTypeNoAccess},
		}
		if format.HasDepth() {
			desc.DepthBeginningAccess = beginningAccess(ds.DepthLoadOp, clear)
			desc.DepthEndingAccess = RenderPassEndingAccess{Type: D3D12EndingAccessType(ds.DepthStoreOp)}
		}
		if format.HasStencil() {
			desc.StencilBeginningAccess = beginningAccess(ds.StencilLoadOp, clear)
			desc.StencilEndingAccess = RenderPassEndingAccess{Type: D3D12EndingAccessType(ds.StencilStoreOp)}
		}
		b.DepthStencil = desc
	}
	return b, nil
}

func (b *RenderPassBuilder) renderTargetHandles() []CPUDescriptorHandle {
	handles := make([]CPUDescriptorHandle, len(b.RenderTargets))
	for i := range b.RenderTargets {
		handles[i] = b.RenderTargets[i].CPUDescriptor
	}
	return handles
}

// emulateBeginRenderPass clears what the pass loads with a clear op and
// binds the render targets.
func (c *CommandBuffer) emulateBeginRenderPass(b *RenderPassBuilder) {
	for i := range b.RenderTargets {
		rt := &b.RenderTargets[i]
		if rt.BeginningAccess.Type == RenderPassBeginningAccessTypeClear {
			c.list.ClearRenderTargetView(rt.CPUDescriptor, rt.BeginningAccess.Clear.Color)
		}
	}

	var dsHandle *CPUDescriptorHandle
	if ds := b.DepthStencil; ds != nil {
		var flags ClearFlags
		if ds.DepthBeginningAccess.Type == RenderPassBeginningAccessTypeClear {
			flags |= ClearFlagDepth
		}
		if ds.StencilBeginningAccess.Type == RenderPassBeginningAccessTypeClear {
			flags |= ClearFlagStencil
		}
		if flags != 0 {
			clear := b.DepthAttachment
			c.list.ClearDepthStencilView(ds.CPUDescriptor, flags, clear.ClearDepth, uint8(clear.ClearStencil))
		}
		handle := ds.CPUDescriptor
		dsHandle = &handle
	}

	c.list.OMSetRenderTargets(b.renderTargetHandles(), dsHandle)
}

// emulateEndRenderPass resolves multisampled color attachments that have a
// resolve target.
func (c *CommandBuffer) emulateEndRenderPass(b *RenderPassBuilder) {
	for i := range b.RenderTargets {
		end := &b.RenderTargets[i].EndingAccess
		if end.Type != RenderPassEndingAccessTypeResolve {
			continue
		}
		resolve := &end.Resolve
		TransitionTextureNow(c.list, resolve.Source, gpu.TextureUsageResolveSource)
		TransitionTextureNow(c.list, resolve.Destination, gpu.TextureUsageResolveDest)
		c.list.ResolveSubresource(resolve.Destination, resolve.Subresource.DstSubresource,
			resolve.Source, resolve.Subresource.SrcSubresource, resolve.Format)
	}
}
