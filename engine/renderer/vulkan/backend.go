package vulkan

import (
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"
	"unsafe"

	vk "github.com/goki/vulkan"

	"github.com/zxgjxc/dawn-ray-tracing/engine/containers"
	"github.com/zxgjxc/dawn-ray-tracing/engine/core"
	"github.com/zxgjxc/dawn-ray-tracing/engine/gpu"
)

/**
 * @brief Records command buffers through the Vulkan translation. With
 * native off every recording goes to a logging RecordingCommands sink,
 * otherwise into a headless device created by Initialize.
 */
type VulkanRenderer struct {
	config atomic.Pointer[core.VulkanConfig]
	native bool

	context    *VulkanContext
	rayTracing *RayTracingFunctions

	// Calls of the last recording on the logging sink.
	mu        sync.Mutex
	lastCalls []string
}

func New(config core.VulkanConfig) *VulkanRenderer {
	vr := &VulkanRenderer{native: config.Native}
	vr.config.Store(&config)
	return vr
}

func (vr *VulkanRenderer) Initialize(appName string) error {
	if !vr.native {
		vr.rayTracing = NewRecordingRayTracingFunctions()
		core.LogInfo("Vulkan recorder initialized with the logging command sink.")
		return nil
	}

	if err := vk.SetDefaultGetInstanceProcAddr(); err != nil {
		return fmt.Errorf("failed to load the Vulkan library: %w", err)
	}
	if err := vk.Init(); err != nil {
		return fmt.Errorf("failed to initialize vk: %w", err)
	}

	vr.context = &VulkanContext{}
	if err := vr.createInstance(appName); err != nil {
		return err
	}
	if err := DeviceCreate(vr.context); err != nil {
		vr.context.Destroy()
		return err
	}
	vr.context.RenderPasses = NewRenderPassCache(vr.context.Device.LogicalDevice)

	fence, err := NewFence(vr.context.Device.LogicalDevice, false)
	if err != nil {
		vr.context.Destroy()
		return err
	}
	vr.context.SubmitFence = fence

	// The bindings carry no ray-tracing commands, so ray-tracing calls fail
	// validation on the native device.
	core.LogInfo("Vulkan renderer initialized successfully.")
	return nil
}

func (vr *VulkanRenderer) createInstance(appName string) error {
	debug := vr.config.Load().EnableDebugMarkers

	appInfo := &vk.ApplicationInfo{
		SType:              vk.StructureTypeApplicationInfo,
		ApiVersion:         uint32(vk.MakeVersion(1, 1, 0)),
		ApplicationVersion: uint32(vk.MakeVersion(1, 0, 0)),
		PApplicationName:   VulkanSafeString(appName),
		PEngineName:        VulkanSafeString("dawn-ray-tracing"),
	}
	createInfo := vk.InstanceCreateInfo{
		SType:            vk.StructureTypeInstanceCreateInfo,
		PApplicationInfo: appInfo,
	}

	// Headless: no surface extensions.
	requiredExtensions := []string{}
	if runtime.GOOS == "darwin" {
		requiredExtensions = append(requiredExtensions,
			"VK_KHR_portability_enumeration",
			"VK_KHR_get_physical_device_properties2",
		)
		createInfo.Flags |= 1
	}

	requiredLayers := []string{}
	if debug {
		requiredExtensions = append(requiredExtensions, vk.ExtDebugReportExtensionName)
		if hasInstanceLayer("VK_LAYER_KHRONOS_validation") {
			requiredLayers = append(requiredLayers, "VK_LAYER_KHRONOS_validation")
		} else {
			core.LogWarn("Validation layer VK_LAYER_KHRONOS_validation is missing, continuing without it.")
		}
	}

	createInfo.EnabledExtensionCount = uint32(len(requiredExtensions))
	createInfo.PpEnabledExtensionNames = VulkanSafeStrings(requiredExtensions)
	createInfo.EnabledLayerCount = uint32(len(requiredLayers))
	createInfo.PpEnabledLayerNames = VulkanSafeStrings(requiredLayers)

	if res := vk.CreateInstance(&createInfo, vr.context.Allocator, &vr.context.Instance); res != vk.Success {
		err := fmt.Errorf("failed in creating the Vulkan Instance with error `%s`", VulkanResultString(res, true))
		core.LogError("%s", err.Error())
		return err
	}
	if err := vk.InitInstance(vr.context.Instance); err != nil {
		core.LogError("%s", err.Error())
		return err
	}
	core.LogInfo("Vulkan Instance created.")

	if debug {
		debugCreateInfo := vk.DebugReportCallbackCreateInfo{
			SType:       vk.StructureTypeDebugReportCallbackCreateInfo,
			Flags:       vk.DebugReportFlags(vk.DebugReportErrorBit | vk.DebugReportWarningBit),
			PfnCallback: dbgCallbackFunc,
		}
		var dbg vk.DebugReportCallback
		if err := vk.Error(vk.CreateDebugReportCallback(vr.context.Instance, &debugCreateInfo, nil, &dbg)); err != nil {
			core.LogError("vk.CreateDebugReportCallback failed with %s", err)
			return err
		}
		vr.context.debugReport = dbg
		core.LogDebug("Vulkan debugger created.")
	}
	return nil
}

func hasInstanceLayer(name string) bool {
	var count uint32
	if res := vk.EnumerateInstanceLayerProperties(&count, nil); res != vk.Success {
		return false
	}
	layers := make([]vk.LayerProperties, count)
	if res := vk.EnumerateInstanceLayerProperties(&count, layers); res != vk.Success {
		return false
	}
	for i := range layers {
		layers[i].Deref()
		if vk.ToString(layers[i].LayerName[:]) == name {
			return true
		}
	}
	return false
}

func (vr *VulkanRenderer) Shutdown() error {
	if vr.context != nil {
		vr.context.Destroy()
		vr.context = nil
	}
	return nil
}

func (vr *VulkanRenderer) UpdateConfig(config *core.RecorderConfig) {
	next := config.Vulkan
	if next.Native != vr.native {
		core.LogWarn("vulkan.native changes need a restart, keeping native=%t", vr.native)
		next.Native = vr.native
	}
	vr.config.Store(&next)
}

func (vr *VulkanRenderer) SupportsRayTracing() bool {
	return vr.rayTracing.Supported()
}

// CreatePipelineLayout has nothing to do, the logging sink prints labels.
func (vr *VulkanRenderer) CreatePipelineLayout(layout *gpu.PipelineLayout) error {
	return nil
}

// CreateBindGroup has nothing to stage, descriptor sets are written when
// the group is created.
func (vr *VulkanRenderer) CreateBindGroup(group *gpu.BindGroup) error {
	return nil
}

func (vr *VulkanRenderer) device() vk.Device {
	if vr.context == nil || vr.context.Device == nil {
		return nil
	}
	return vr.context.Device.LogicalDevice
}

func (vr *VulkanRenderer) CreateAccelerationContainer(desc *gpu.AccelerationContainerDescriptor, allocator gpu.ScratchAllocator) (*gpu.AccelerationContainer, error) {
	return CreateAccelerationContainer(vr.device(), vr.rayTracing, desc, allocator)
}

func (vr *VulkanRenderer) DestroyAccelerationContainer(container *gpu.AccelerationContainer) {
	ToBackendContainer(container).Destroy(vr.device(), vr.rayTracing)
	container.Destroy()
}

// Record translates cb and, on a native device, submits it and waits.
// Command buffers that share no resources may be recorded concurrently.
func (vr *VulkanRenderer) Record(cb *gpu.CommandBuffer) error {
	config := *vr.config.Load()
	if !vr.native {
		sink := NewRecordingCommands(true)
		sink.Verbose = true
		recorder := NewCommandBuffer(sink, config)
		if err := recorder.RecordCommands(cb); err != nil {
			return err
		}
		recorder.UpdateSubmitted()
		vr.mu.Lock()
		vr.lastCalls = sink.Calls
		vr.mu.Unlock()
		return nil
	}

	// The pool and the queue are externally synchronized objects.
	return gpu.SharedLocks().SafeCall(containers.CommandListManagement, func() error {
		sink, err := vr.context.NewNativeCommands()
		if err != nil {
			return err
		}
		defer sink.Free()
		recorder := NewCommandBuffer(sink, config)
		if err := recorder.RecordCommands(cb); err != nil {
			return err
		}
		if err := vr.context.Submit(sink); err != nil {
			return err
		}
		recorder.UpdateSubmitted()
		return nil
	})
}

// LastCalls returns the calls of the last recording on the logging sink.
func (vr *VulkanRenderer) LastCalls() []string {
	vr.mu.Lock()
	defer vr.mu.Unlock()
	return vr.lastCalls
}

func dbgCallbackFunc(flags vk.DebugReportFlags, objectType vk.DebugReportObjectType, object uint64, location uint64, messageCode int32, pLayerPrefix string, pMessage string, pUserData unsafe.Pointer) vk.Bool32 {
	switch {
	case flags&vk.DebugReportFlags(vk.DebugReportErrorBit) != 0:
		core.LogError("[%s] Code %d : %s", pLayerPrefix, messageCode, pMessage)
	case flags&vk.DebugReportFlags(vk.DebugReportWarningBit) != 0:
		core.LogWarn("[%s] Code %d : %s", pLayerPrefix, messageCode, pMessage)
	default:
		core.LogInfo("[%s] Code %d : %s", pLayerPrefix, messageCode, pMessage)
	}
	return vk.Bool32(vk.False)
}
