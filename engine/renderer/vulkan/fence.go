package vulkan

import (
	vk "github.com/goki/vulkan"

	"github.com/zxgjxc/dawn-ray-tracing/engine/core"
)

type VulkanFence struct {
	Handle     vk.Fence
	IsSignaled bool

	device vk.Device
}

func NewFence(device vk.Device, createSignaled bool) (*VulkanFence, error) {
	fence := &VulkanFence{
		// Make sure to signal the fence if required.
		IsSignaled: createSignaled,
		device:     device,
	}

	fenceCreateInfo := vk.FenceCreateInfo{
		SType: vk.StructureTypeFenceCreateInfo,
	}
	if fence.IsSignaled {
		fenceCreateInfo.Flags = vk.FenceCreateFlags(vk.FenceCreateSignaledBit)
	}

	var pFence vk.Fence
	if res := vk.CreateFence(device, &fenceCreateInfo, nil, &pFence); res != vk.Success {
		err := CheckResult("vkCreateFence", res)
		core.LogError("%s", err.Error())
		return nil, err
	}
	fence.Handle = pFence
	return fence, nil
}

func (vf *VulkanFence) Destroy() {
	if vf.Handle != vk.NullFence {
		vk.DestroyFence(vf.device, vf.Handle, nil)
		vf.Handle = vk.NullFence
	}
	vf.IsSignaled = false
}

// Wait blocks until the fence is signaled. A timeout is not an error, the
// caller can wait again.
func (vf *VulkanFence) Wait(timeoutNs uint64) (bool, error) {
	if vf.IsSignaled {
		// If already signaled, do not wait.
		return true, nil
	}
	result := vk.WaitForFences(vf.device, 1, []vk.Fence{vf.Handle}, vk.True, timeoutNs)
	switch result {
	case vk.Success:
		vf.IsSignaled = true
		return true, nil
	case vk.Timeout:
		core.LogWarn("vkWaitForFences timed out")
		return false, nil
	}
	err := CheckResult("vkWaitForFences", result)
	core.LogError("%s", err.Error())
	return false, err
}

func (vf *VulkanFence) Reset() error {
	if vf.IsSignaled {
		if res := vk.ResetFences(vf.device, 1, []vk.Fence{vf.Handle}); res != vk.Success {
			return CheckResult("vkResetFences", res)
		}
		vf.IsSignaled = false
	}
	return nil
}
