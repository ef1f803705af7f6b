package vulkan

import (
	"testing"

	vk "github.com/goki/vulkan"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zxgjxc/dawn-ray-tracing/engine/core"
	"github.com/zxgjxc/dawn-ray-tracing/engine/gpu"
)

func TestVulkanRendererRecordsOnLoggingSink(t *testing.T) {
	vr := New(core.VulkanConfig{EnableDebugMarkers: true})
	require.NoError(t, vr.Initialize("test"))
	defer vr.Shutdown()
	assert.True(t, vr.SupportsRayTracing())

	sbt := &gpu.ShaderBindingTable{Label: "sbt", Buffer: &gpu.Buffer{Label: "sbt"}, GroupStride: 32}
	pipeline := &gpu.RayTracingPipeline{Label: "rt", Layout: &gpu.PipelineLayout{Label: "empty"}, ShaderBindingTable: sbt}
	cb := finish("trace", []gpu.PassResourceUsage{{}},
		&gpu.InsertDebugMarkerCmd{Label: "frame"},
		&gpu.BeginRayTracingPassCmd{},
		&gpu.SetRayTracingPipelineCmd{Pipeline: pipeline},
		&gpu.TraceRaysCmd{RayGenerationOffset: 0, RayHitOffset: 1, RayMissOffset: 2, Width: 8, Height: 8, Depth: 1},
		&gpu.EndRayTracingPassCmd{},
	)
	require.NoError(t, vr.Record(cb))

	calls := vr.LastCalls()
	require.NotEmpty(t, calls)
	assert.Equal(t, "Begin", calls[0])
	assert.Equal(t, "End", calls[len(calls)-1])
	assert.Contains(t, calls, "InsertDebugLabel(frame)")
	assert.Contains(t, calls, "TraceRays(raygen=0,miss=64,hit=32,8x8x1)")

	// Markers are dropped once the reloaded config disables them.
	cfg := core.DefaultRecorderConfig()
	cfg.Vulkan.EnableDebugMarkers = false
	vr.UpdateConfig(cfg)
	require.NoError(t, vr.Record(cb))
	assert.NotContains(t, vr.LastCalls(), "InsertDebugLabel(frame)")
}

func TestVulkanRendererKeepsNativeMode(t *testing.T) {
	vr := New(core.VulkanConfig{})
	cfg := core.DefaultRecorderConfig()
	cfg.Vulkan.Native = true
	vr.UpdateConfig(cfg)
	assert.False(t, vr.config.Load().Native)
}

func TestVulkanRendererAccelerationContainers(t *testing.T) {
	vr := New(core.VulkanConfig{})
	require.NoError(t, vr.Initialize("test"))

	alloc := &testAllocator{}
	blas, err := vr.CreateAccelerationContainer(&gpu.AccelerationContainerDescriptor{
		Label: "blas",
		Level: gpu.ContainerLevelBottom,
		Geometries: []gpu.AccelerationGeometry{{
			Type:        gpu.GeometryTypeAabbs,
			AABBBuffer:  &gpu.Buffer{Label: "aabbs"},
			AABBCount:   1,
			AABBStride:  24,
			IndexFormat: gpu.IndexFormatNone,
		}},
	}, alloc)
	require.NoError(t, err)
	assert.NotZero(t, ToBackendContainer(blas).Reference)

	vr.DestroyAccelerationContainer(blas)
	assert.Zero(t, ToBackendContainer(blas).Handle)
	assert.NotEmpty(t, alloc.released)
}

func TestNativeRendererRejectsRayTracing(t *testing.T) {
	vr := New(core.VulkanConfig{Native: true})
	assert.False(t, vr.SupportsRayTracing())
	_, err := vr.CreateAccelerationContainer(&gpu.AccelerationContainerDescriptor{Label: "tlas", Level: gpu.ContainerLevelTop}, &testAllocator{})
	require.Error(t, err)
	assert.True(t, core.IsValidationError(err))
	assert.Contains(t, err.Error(), "vkCreateAccelerationStructure")

	var native NativeCommands
	for name, call := range map[string]func() error{
		"vkCmdBuildAccelerationStructure": func() error {
			return native.BuildAccelerationStructure(&AccelerationStructureInfo{}, gpu.MemoryEntry{}, false, nil, nil, gpu.MemoryEntry{})
		},
		"vkCmdCopyAccelerationStructure": func() error {
			return native.CopyAccelerationStructure(nil, nil, CopyAccelerationStructureModeClone)
		},
		"vkCmdTraceRays": func() error {
			return native.TraceRays(ShaderBindingRegion{}, ShaderBindingRegion{}, ShaderBindingRegion{}, ShaderBindingRegion{}, 1, 1, 1)
		},
	} {
		err := call()
		require.Error(t, err, name)
		assert.True(t, core.IsValidationError(err), name)
		assert.Contains(t, err.Error(), name)
	}

	// Labels are dropped without touching the command buffer.
	assert.NotPanics(t, func() {
		native.BeginDebugLabel("frame")
		native.InsertDebugLabel("step")
		native.EndDebugLabel()
	})
}

func TestSelectQueueFamily(t *testing.T) {
	graphics := vk.QueueFlags(vk.QueueGraphicsBit)
	compute := vk.QueueFlags(vk.QueueComputeBit)
	transfer := vk.QueueFlags(vk.QueueTransferBit)
	requirements := &VulkanPhysicalDeviceRequirements{Graphics: true, Compute: true}

	index, ok := SelectQueueFamily([]vk.QueueFlags{transfer, compute | transfer, graphics | compute | transfer}, requirements)
	require.True(t, ok)
	assert.Equal(t, int32(2), index)

	index, ok = SelectQueueFamily([]vk.QueueFlags{transfer, graphics}, requirements)
	assert.False(t, ok)
	assert.Equal(t, int32(-1), index)

	index, ok = SelectQueueFamily([]vk.QueueFlags{compute}, &VulkanPhysicalDeviceRequirements{Compute: true})
	require.True(t, ok)
	assert.Equal(t, int32(0), index)
}

func TestMissingExtensions(t *testing.T) {
	available := []string{"VK_KHR_swapchain", RayTracingExtensionName}
	assert.Empty(t, MissingExtensions(available, []string{RayTracingExtensionName}))
	assert.Equal(t, []string{"VK_KHR_maintenance3"}, MissingExtensions(available, []string{"VK_KHR_maintenance3", "VK_KHR_swapchain"}))

	device := &VulkanDevice{Extensions: available}
	assert.True(t, device.HasExtension(RayTracingExtensionName))
	assert.False(t, device.HasExtension("VK_KHR_portability_subset"))
}
