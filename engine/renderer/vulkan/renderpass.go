package vulkan

import (
	vk "github.com/goki/vulkan"

	"github.com/zxgjxc/dawn-ray-tracing/engine/containers"
	"github.com/zxgjxc/dawn-ray-tracing/engine/gpu"
)

/**
 * @brief Everything that makes two render passes incompatible. Clear
 * values and views are not part of it, they come with the begin info.
 */
type RenderPassKey struct {
	ColorCount     uint32
	ColorFormats   [gpu.MaxColorAttachments]vk.Format
	ColorLoadOps   [gpu.MaxColorAttachments]vk.AttachmentLoadOp
	ColorStoreOps  [gpu.MaxColorAttachments]vk.AttachmentStoreOp
	HasResolve     [gpu.MaxColorAttachments]bool
	HasDepth       bool
	DepthFormat    vk.Format
	DepthLoadOp    vk.AttachmentLoadOp
	DepthStoreOp   vk.AttachmentStoreOp
	StencilLoadOp  vk.AttachmentLoadOp
	StencilStoreOp vk.AttachmentStoreOp
	SampleCount    vk.SampleCountFlagBits
}

func NewRenderPassKey(info *RenderPassBeginInfo) RenderPassKey {
	key := RenderPassKey{
		ColorCount:  uint32(len(info.ColorAttachments)),
		SampleCount: info.SampleCount,
	}
	for i, attachment := range info.ColorAttachments {
		key.ColorFormats[i] = attachment.Format
		key.ColorLoadOps[i] = attachment.LoadOp
		key.ColorStoreOps[i] = attachment.StoreOp
		key.HasResolve[i] = attachment.ResolveTarget != nil
	}
	if ds := info.DepthStencil; ds != nil {
		key.HasDepth = true
		key.DepthFormat = ds.Format
		key.DepthLoadOp = ds.DepthLoadOp
		key.DepthStoreOp = ds.DepthStoreOp
		key.StencilLoadOp = ds.StencilLoadOp
		key.StencilStoreOp = ds.StencilStoreOp
	}
	return key
}

// RenderPassCache creates each compatible VkRenderPass once per device.
// Recorders on different goroutines share it.
type RenderPassCache struct {
	device vk.Device
	passes map[RenderPassKey]vk.RenderPass
}

func NewRenderPassCache(device vk.Device) *RenderPassCache {
	return &RenderPassCache{
		device: device,
		passes: make(map[RenderPassKey]vk.RenderPass),
	}
}

func (rc *RenderPassCache) GetRenderPass(key RenderPassKey) (vk.RenderPass, error) {
	var pass vk.RenderPass
	err := gpu.SharedLocks().SafeCall(containers.RenderPassManagement, func() error {
		if cached, ok := rc.passes[key]; ok {
			pass = cached
			return nil
		}
		created, err := rc.createRenderPass(key)
		if err != nil {
			return err
		}
		rc.passes[key] = created
		pass = created
		return nil
	})
	return pass, err
}

func (rc *RenderPassCache) createRenderPass(key RenderPassKey) (vk.RenderPass, error) {
	// Main subpass
	subpass := vk.SubpassDescription{
		PipelineBindPoint: vk.PipelineBindPointGraphics,
	}

	var attachmentDescriptions []vk.AttachmentDescription
	var colorAttachmentReferences []vk.AttachmentReference
	for i := uint32(0); i < key.ColorCount; i++ {
		colorAttachment := vk.AttachmentDescription{
			Format:         key.ColorFormats[i],
			Samples:        key.SampleCount,
			LoadOp:         key.ColorLoadOps[i],
			StoreOp:        key.ColorStoreOps[i],
			StencilLoadOp:  vk.AttachmentLoadOpDontCare,
			StencilStoreOp: vk.AttachmentStoreOpDontCare,
			// The pass barrier already moved the view into this layout.
			InitialLayout: vk.ImageLayoutColorAttachmentOptimal,
			FinalLayout:   vk.ImageLayoutColorAttachmentOptimal,
		}
		colorAttachment.Deref()
		colorAttachmentReferences = append(colorAttachmentReferences, vk.AttachmentReference{
			Attachment: uint32(len(attachmentDescriptions)),
			Layout:     vk.ImageLayoutColorAttachmentOptimal,
		})
		attachmentDescriptions = append(attachmentDescriptions, colorAttachment)
	}
	subpass.ColorAttachmentCount = key.ColorCount
	subpass.PColorAttachments = colorAttachmentReferences

	// Depth attachment, if there is one
	if key.HasDepth {
		depthAttachment := vk.AttachmentDescription{
			Format:         key.DepthFormat,
			Samples:        key.SampleCount,
			LoadOp:         key.DepthLoadOp,
			StoreOp:        key.DepthStoreOp,
			StencilLoadOp:  key.StencilLoadOp,
			StencilStoreOp: key.StencilStoreOp,
			InitialLayout:  vk.ImageLayoutDepthStencilAttachmentOptimal,
			FinalLayout:    vk.ImageLayoutDepthStencilAttachmentOptimal,
		}
		depthAttachment.Deref()

		depthAttachmentReference := vk.AttachmentReference{
			Attachment: uint32(len(attachmentDescriptions)),
			Layout:     vk.ImageLayoutDepthStencilAttachmentOptimal,
		}
		depthAttachmentReference.Deref()
		subpass.PDepthStencilAttachment = &depthAttachmentReference
		attachmentDescriptions = append(attachmentDescriptions, depthAttachment)
	}

	// Attachments used for multisampling colour attachments
	var resolveReferences []vk.AttachmentReference
	hasResolve := false
	for i := uint32(0); i < key.ColorCount; i++ {
		if !key.HasResolve[i] {
			resolveReferences = append(resolveReferences, vk.AttachmentReference{Attachment: vk.AttachmentUnused})
			continue
		}
		hasResolve = true
		resolveAttachment := vk.AttachmentDescription{
			Format:         key.ColorFormats[i],
			Samples:        vk.SampleCount1Bit,
			LoadOp:         vk.AttachmentLoadOpDontCare,
			StoreOp:        vk.AttachmentStoreOpStore,
			StencilLoadOp:  vk.AttachmentLoadOpDontCare,
			StencilStoreOp: vk.AttachmentStoreOpDontCare,
			InitialLayout:  vk.ImageLayoutColorAttachmentOptimal,
			FinalLayout:    vk.ImageLayoutColorAttachmentOptimal,
		}
		resolveAttachment.Deref()
		resolveReferences = append(resolveReferences, vk.AttachmentReference{
			Attachment: uint32(len(attachmentDescriptions)),
			Layout:     vk.ImageLayoutColorAttachmentOptimal,
		})
		attachmentDescriptions = append(attachmentDescriptions, resolveAttachment)
	}
	if hasResolve {
		subpass.PResolveAttachments = resolveReferences
	}
	subpass.Deref()

	// Render pass create.
	renderpassCreateInfo := vk.RenderPassCreateInfo{
		SType:           vk.StructureTypeRenderPassCreateInfo,
		AttachmentCount: uint32(len(attachmentDescriptions)),
		PAttachments:    attachmentDescriptions,
		SubpassCount:    1,
		PSubpasses:      []vk.SubpassDescription{subpass},
	}
	renderpassCreateInfo.Deref()

	var pRenderPass vk.RenderPass
	if res := vk.CreateRenderPass(rc.device, &renderpassCreateInfo, nil, &pRenderPass); res != vk.Success {
		return nil, CheckResult("vkCreateRenderPass", res)
	}
	return pRenderPass, nil
}

func (rc *RenderPassCache) Destroy() {
	_ = gpu.SharedLocks().SafeCall(containers.RenderPassManagement, func() error {
		for key, pass := range rc.passes {
			vk.DestroyRenderPass(rc.device, pass, nil)
			delete(rc.passes, key)
		}
		return nil
	})
}

// attachmentViews lists the views of info in the attachment order the
// render pass of NewRenderPassKey uses.
func attachmentViews(info *RenderPassBeginInfo) []vk.ImageView {
	var views []vk.ImageView
	for _, attachment := range info.ColorAttachments {
		views = append(views, ToBackendTextureView(attachment.View).Handle)
	}
	if info.DepthStencil != nil {
		views = append(views, ToBackendTextureView(info.DepthStencil.View).Handle)
	}
	for _, attachment := range info.ColorAttachments {
		if attachment.ResolveTarget != nil {
			views = append(views, ToBackendTextureView(attachment.ResolveTarget).Handle)
		}
	}
	return views
}

// clearValues follows the same order as attachmentViews.
func clearValues(info *RenderPassBeginInfo) []vk.ClearValue {
	var values []vk.ClearValue
	for _, attachment := range info.ColorAttachments {
		var value vk.ClearValue
		value.SetColor(attachment.ClearColor[:])
		values = append(values, value)
	}
	if ds := info.DepthStencil; ds != nil {
		var value vk.ClearValue
		value.SetDepthStencil(ds.ClearDepth, ds.ClearStencil)
		values = append(values, value)
	}
	for _, attachment := range info.ColorAttachments {
		if attachment.ResolveTarget != nil {
			values = append(values, vk.ClearValue{})
		}
	}
	return values
}
