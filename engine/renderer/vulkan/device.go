package vulkan

import (
	"fmt"

	vk "github.com/goki/vulkan"
	"golang.org/x/exp/slices"

	"github.com/zxgjxc/dawn-ray-tracing/engine/core"
)

const RayTracingExtensionName = "VK_NV_ray_tracing"

type VulkanDevice struct {
	PhysicalDevice vk.PhysicalDevice
	LogicalDevice  vk.Device

	// One family records graphics, compute and ray tracing.
	QueueIndex int32
	Queue      vk.Queue

	CommandPool vk.CommandPool

	Properties vk.PhysicalDeviceProperties
	Extensions []string
}

type VulkanPhysicalDeviceRequirements struct {
	Graphics bool
	Compute  bool
	// Extensions the device must expose.
	DeviceExtensionNames []string
	DiscreteGPU          bool
}

// HasExtension reports whether the physical device exposes name.
func (d *VulkanDevice) HasExtension(name string) bool {
	return slices.Contains(d.Extensions, name)
}

func DeviceCreate(context *VulkanContext) error {
	if err := SelectPhysicalDevice(context); err != nil {
		return err
	}

	core.LogInfo("Creating logical device...")

	var queuePriority float32 = 1.0
	queueCreateInfos := []vk.DeviceQueueCreateInfo{{
		SType:            vk.StructureTypeDeviceQueueCreateInfo,
		QueueFamilyIndex: uint32(context.Device.QueueIndex),
		QueueCount:       1,
		PQueuePriorities: []float32{queuePriority},
	}}

	extensionNames := []string{}
	if context.Device.HasExtension("VK_KHR_portability_subset") {
		core.LogInfo("Adding required extension 'VK_KHR_portability_subset'.")
		extensionNames = append(extensionNames, "VK_KHR_portability_subset")
	}

	deviceCreateInfo := vk.DeviceCreateInfo{
		SType:                   vk.StructureTypeDeviceCreateInfo,
		QueueCreateInfoCount:    uint32(len(queueCreateInfos)),
		PQueueCreateInfos:       queueCreateInfos,
		EnabledExtensionCount:   uint32(len(extensionNames)),
		PpEnabledExtensionNames: VulkanSafeStrings(extensionNames),
	}

	var device vk.Device
	if res := vk.CreateDevice(context.Device.PhysicalDevice, &deviceCreateInfo, context.Allocator, &device); res != vk.Success {
		return CheckResult("vkCreateDevice", res)
	}
	context.Device.LogicalDevice = device
	core.LogInfo("Logical device created.")

	var queue vk.Queue
	vk.GetDeviceQueue(device, uint32(context.Device.QueueIndex), 0, &queue)
	context.Device.Queue = queue

	poolCreateInfo := vk.CommandPoolCreateInfo{
		SType:            vk.StructureTypeCommandPoolCreateInfo,
		QueueFamilyIndex: uint32(context.Device.QueueIndex),
		Flags:            vk.CommandPoolCreateFlags(vk.CommandPoolCreateResetCommandBufferBit),
	}
	var pool vk.CommandPool
	if res := vk.CreateCommandPool(device, &poolCreateInfo, context.Allocator, &pool); res != vk.Success {
		return CheckResult("vkCreateCommandPool", res)
	}
	context.Device.CommandPool = pool
	core.LogInfo("Command pool created.")
	return nil
}

func DeviceDestroy(context *VulkanContext) {
	if context.Device == nil {
		return
	}
	context.Device.Queue = nil

	if context.Device.CommandPool != vk.NullCommandPool {
		core.LogInfo("Destroying command pool...")
		vk.DestroyCommandPool(context.Device.LogicalDevice, context.Device.CommandPool, context.Allocator)
		context.Device.CommandPool = vk.NullCommandPool
	}

	if context.Device.LogicalDevice != nil {
		core.LogInfo("Destroying logical device...")
		vk.DestroyDevice(context.Device.LogicalDevice, context.Allocator)
		context.Device.LogicalDevice = nil
	}

	// Physical devices are not destroyed.
	context.Device.PhysicalDevice = nil
	context.Device.QueueIndex = -1
}

func SelectPhysicalDevice(context *VulkanContext) error {
	var physicalDeviceCount uint32
	if res := vk.EnumeratePhysicalDevices(context.Instance, &physicalDeviceCount, nil); res != vk.Success {
		return CheckResult("vkEnumeratePhysicalDevices", res)
	}
	if physicalDeviceCount == 0 {
		return fmt.Errorf("no devices which support Vulkan were found")
	}

	physicalDevices := make([]vk.PhysicalDevice, physicalDeviceCount)
	if res := vk.EnumeratePhysicalDevices(context.Instance, &physicalDeviceCount, physicalDevices); res != vk.Success {
		return CheckResult("vkEnumeratePhysicalDevices", res)
	}

	requirements := VulkanPhysicalDeviceRequirements{
		Graphics: true,
		Compute:  true,
	}

	for _, physicalDevice := range physicalDevices {
		properties := vk.PhysicalDeviceProperties{}
		vk.GetPhysicalDeviceProperties(physicalDevice, &properties)
		properties.Deref()

		if requirements.DiscreteGPU && properties.DeviceType != vk.PhysicalDeviceTypeDiscreteGpu {
			core.LogInfo("Device is not a discrete GPU, and one is required. Skipping.")
			continue
		}

		var queueFamilyCount uint32
		vk.GetPhysicalDeviceQueueFamilyProperties(physicalDevice, &queueFamilyCount, nil)
		queueFamilies := make([]vk.QueueFamilyProperties, queueFamilyCount)
		vk.GetPhysicalDeviceQueueFamilyProperties(physicalDevice, &queueFamilyCount, queueFamilies)
		flags := make([]vk.QueueFlags, len(queueFamilies))
		for i := range queueFamilies {
			queueFamilies[i].Deref()
			flags[i] = queueFamilies[i].QueueFlags
		}

		queueIndex, ok := SelectQueueFamily(flags, &requirements)
		if !ok {
			core.LogInfo("Device has no queue family meeting the requirements, skipping.")
			continue
		}

		extensions, err := deviceExtensions(physicalDevice)
		if err != nil {
			return err
		}
		if missing := MissingExtensions(extensions, requirements.DeviceExtensionNames); len(missing) > 0 {
			core.LogInfo("Required extension not found: '%s', skipping device.", missing[0])
			continue
		}

		context.Device = &VulkanDevice{
			PhysicalDevice: physicalDevice,
			QueueIndex:     queueIndex,
			Properties:     properties,
			Extensions:     extensions,
		}
		name := vk.ToString(properties.DeviceName[:])
		core.LogInfo("Selected device: '%s'.", name)
		core.LogInfo(
			"Vulkan API version: %d.%d.%d",
			vk.Version.Major(vk.Version(properties.ApiVersion)),
			vk.Version.Minor(vk.Version(properties.ApiVersion)),
			vk.Version.Patch(vk.Version(properties.ApiVersion)),
		)
		core.LogInfo("Ray tracing extension present: %t", context.Device.HasExtension(RayTracingExtensionName))
		return nil
	}
	return fmt.Errorf("no physical devices were found which meet the requirements")
}

/**
 * @brief Picks the first queue family supporting every required capability.
 * Transfer is implied by graphics and compute.
 * @returns the family index and true, or -1 and false.
 */
func SelectQueueFamily(families []vk.QueueFlags, requirements *VulkanPhysicalDeviceRequirements) (int32, bool) {
	for i, flags := range families {
		if requirements.Graphics && flags&vk.QueueFlags(vk.QueueGraphicsBit) == 0 {
			continue
		}
		if requirements.Compute && flags&vk.QueueFlags(vk.QueueComputeBit) == 0 {
			continue
		}
		return int32(i), true
	}
	return -1, false
}

// MissingExtensions lists the required extension names absent from available.
func MissingExtensions(available, required []string) []string {
	var missing []string
	for _, name := range required {
		if !slices.Contains(available, name) {
			missing = append(missing, name)
		}
	}
	return missing
}

func deviceExtensions(physicalDevice vk.PhysicalDevice) ([]string, error) {
	var count uint32
	if res := vk.EnumerateDeviceExtensionProperties(physicalDevice, "", &count, nil); res != vk.Success {
		return nil, CheckResult("vkEnumerateDeviceExtensionProperties", res)
	}
	list := make([]vk.ExtensionProperties, count)
	if res := vk.EnumerateDeviceExtensionProperties(physicalDevice, "", &count, list); res != vk.Success {
		return nil, CheckResult("vkEnumerateDeviceExtensionProperties", res)
	}
	names := make([]string, 0, count)
	for _, ext := range list {
		ext.Deref()
		names = append(names, vk.ToString(ext.ExtensionName[:]))
	}
	return names, nil
}
