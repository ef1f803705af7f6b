package vulkan

import (
	"math"

	vk "github.com/goki/vulkan"

	"github.com/zxgjxc/dawn-ray-tracing/engine/core"
)

/**
 * @brief The native objects a headless recorder needs: the instance, one
 * device with its queue and command pool, the render pass cache and the
 * fence submissions wait on.
 */
type VulkanContext struct {
	Instance  vk.Instance
	Allocator *vk.AllocationCallbacks

	debugReport vk.DebugReportCallback

	Device *VulkanDevice

	RenderPasses *RenderPassCache

	SubmitFence *VulkanFence
}

// NewNativeCommands allocates a primary command buffer from the device pool.
func (vc *VulkanContext) NewNativeCommands() (*NativeCommands, error) {
	return NewNativeCommands(vc.Device.LogicalDevice, vc.Device.CommandPool, vc.RenderPasses)
}

// Submit executes cmds on the device queue and blocks until they finish.
func (vc *VulkanContext) Submit(cmds *NativeCommands) error {
	return cmds.SubmitAndWait(vc.Device.Queue, vc.SubmitFence)
}

// Destroy releases everything in the opposite order of creation.
func (vc *VulkanContext) Destroy() {
	if vc.Device != nil && vc.Device.LogicalDevice != nil {
		vk.DeviceWaitIdle(vc.Device.LogicalDevice)
	}
	if vc.SubmitFence != nil {
		vc.SubmitFence.Destroy()
		vc.SubmitFence = nil
	}
	if vc.RenderPasses != nil {
		vc.RenderPasses.Destroy()
		vc.RenderPasses = nil
	}
	DeviceDestroy(vc)
	if vc.debugReport != vk.NullDebugReportCallback {
		vk.DestroyDebugReportCallback(vc.Instance, vc.debugReport, vc.Allocator)
		vc.debugReport = vk.NullDebugReportCallback
	}
	if vc.Instance != nil {
		vk.DestroyInstance(vc.Instance, vc.Allocator)
		vc.Instance = nil
	}
	core.LogInfo("Vulkan context destroyed.")
}

// waitForever is the fence timeout of blocking submissions.
const waitForever = uint64(math.MaxUint64)
