package vulkan

import (
	"io"
	"testing"

	"github.com/gogpu/gputypes"
	vk "github.com/goki/vulkan"
	"github.com/stretchr/testify/assert"

	"github.com/zxgjxc/dawn-ray-tracing/engine/core"
	"github.com/zxgjxc/dawn-ray-tracing/engine/gpu"
)

func TestMain(m *testing.M) {
	core.SetLogOutput(io.Discard)
	m.Run()
}

func TestToVulkanCompareOp(t *testing.T) {
	tests := []struct {
		in   gputypes.CompareFunction
		want vk.CompareOp
	}{
		{gputypes.CompareFunctionNever, vk.CompareOpNever},
		{gputypes.CompareFunctionLess, vk.CompareOpLess},
		{gputypes.CompareFunctionLessEqual, vk.CompareOpLessOrEqual},
		{gputypes.CompareFunctionGreater, vk.CompareOpGreater},
		{gputypes.CompareFunctionGreaterEqual, vk.CompareOpGreaterOrEqual},
		{gputypes.CompareFunctionEqual, vk.CompareOpEqual},
		{gputypes.CompareFunctionNotEqual, vk.CompareOpNotEqual},
		{gputypes.CompareFunctionAlways, vk.CompareOpAlways},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ToVulkanCompareOp(tt.in))
	}
	assert.Panics(t, func() { ToVulkanCompareOp(gputypes.CompareFunctionUndefined) })
}

func TestToVulkanShaderStageFlags(t *testing.T) {
	assert.Equal(t, vk.ShaderStageFlags(0), ToVulkanShaderStageFlags(gputypes.ShaderStageNone))

	got := ToVulkanShaderStageFlags(gputypes.ShaderStageVertex | gpu.ShaderStageRayGeneration | gpu.ShaderStageRayMiss)
	want := vk.ShaderStageFlags(vk.ShaderStageVertexBit) | vk.ShaderStageFlags(shaderStageRaygenBit) | vk.ShaderStageFlags(shaderStageMissBit)
	assert.Equal(t, want, got)

	// Every neutral bit maps on its own.
	stages := []gputypes.ShaderStage{
		gputypes.ShaderStageVertex, gputypes.ShaderStageFragment, gputypes.ShaderStageCompute,
		gpu.ShaderStageRayGeneration, gpu.ShaderStageRayClosestHit, gpu.ShaderStageRayAnyHit,
		gpu.ShaderStageRayMiss, gpu.ShaderStageRayIntersection, gpu.ShaderStageRayCallable,
	}
	seen := map[vk.ShaderStageFlags]bool{}
	for _, stage := range stages {
		flags := ToVulkanShaderStageFlags(stage)
		assert.NotZero(t, flags)
		assert.False(t, seen[flags], "stage %d maps to a bit already used", stage)
		seen[flags] = true
	}
}

func TestAccelerationTranslators(t *testing.T) {
	assert.Equal(t, indexTypeNone, ToVulkanAccelerationIndexType(gpu.IndexFormatNone))
	assert.Equal(t, vk.IndexTypeUint32, ToVulkanAccelerationIndexType(gputypes.IndexFormatUint32))
	assert.Equal(t, vk.FormatR32g32b32Sfloat, ToVulkanAccelerationVertexFormat(gputypes.VertexFormatFloat32x3))
	assert.Panics(t, func() { ToVulkanAccelerationVertexFormat(gputypes.VertexFormatUint8x2) })

	assert.Equal(t, AccelerationStructureTypeBottomLevel, ToVulkanAccelerationContainerLevel(gpu.ContainerLevelBottom))
	assert.Equal(t, AccelerationStructureTypeTopLevel, ToVulkanAccelerationContainerLevel(gpu.ContainerLevelTop))
	assert.Equal(t, GeometryTypeAabbs, ToVulkanGeometryType(gpu.GeometryTypeAabbs))

	flags := ToVulkanBuildAccelerationContainerFlags(gpu.ContainerFlagAllowUpdate | gpu.ContainerFlagPreferFastTrace)
	assert.Equal(t, BuildAccelerationStructureAllowUpdateBit|BuildAccelerationStructurePreferFastTraceBit, flags)
	assert.Equal(t, BuildAccelerationStructureFlags(0), ToVulkanBuildAccelerationContainerFlags(gpu.ContainerFlagNone))

	assert.Equal(t, GeometryInstanceForceOpaqueBit|GeometryInstanceTriangleCullDisableBit,
		ToVulkanGeometryInstanceFlags(gpu.InstanceFlagForceOpaque|gpu.InstanceFlagTriangleCullDisable))
}

func TestVulkanTextureFormat(t *testing.T) {
	assert.Equal(t, vk.FormatB8g8r8a8Unorm, VulkanTextureFormat(gputypes.TextureFormatBGRA8Unorm))
	assert.Equal(t, vk.FormatBc1RgbaUnormBlock, VulkanTextureFormat(gputypes.TextureFormatBC1RGBAUnorm))
	assert.Panics(t, func() { VulkanTextureFormat(gputypes.TextureFormatASTC4x4Unorm) })
}

func TestVulkanImageLayout(t *testing.T) {
	tests := []struct {
		name   string
		usage  gputypes.TextureUsage
		format gputypes.TextureFormat
		want   vk.ImageLayout
	}{
		{"none", 0, gputypes.TextureFormatRGBA8Unorm, vk.ImageLayoutUndefined},
		{"copy src", gputypes.TextureUsageCopySrc, gputypes.TextureFormatRGBA8Unorm, vk.ImageLayoutTransferSrcOptimal},
		{"copy dst", gputypes.TextureUsageCopyDst, gputypes.TextureFormatRGBA8Unorm, vk.ImageLayoutTransferDstOptimal},
		{"sampled", gputypes.TextureUsageTextureBinding, gputypes.TextureFormatRGBA8Unorm, vk.ImageLayoutShaderReadOnlyOptimal},
		{"storage", gputypes.TextureUsageStorageBinding, gputypes.TextureFormatRGBA8Unorm, vk.ImageLayoutGeneral},
		{"color", gputypes.TextureUsageRenderAttachment, gputypes.TextureFormatRGBA8Unorm, vk.ImageLayoutColorAttachmentOptimal},
		{"depth", gputypes.TextureUsageRenderAttachment, gputypes.TextureFormatDepth32Float, vk.ImageLayoutDepthStencilAttachmentOptimal},
		{"present", gpu.TextureUsagePresent, gputypes.TextureFormatBGRA8Unorm, vk.ImageLayoutPresentSrc},
		{"mixed", gputypes.TextureUsageCopySrc | gputypes.TextureUsageTextureBinding, gputypes.TextureFormatRGBA8Unorm, vk.ImageLayoutGeneral},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, VulkanImageLayout(tt.usage, tt.format))
		})
	}
}

func TestCheckResult(t *testing.T) {
	err := CheckResult("vkQueueSubmit", vk.ErrorDeviceLost)
	assert.ErrorIs(t, err, core.ErrDeviceLost)
	assert.Contains(t, err.Error(), "vkQueueSubmit")
}

func TestVulkanResultString(t *testing.T) {
	assert.Equal(t, "VK_ERROR_DEVICE_LOST", VulkanResultString(vk.ErrorDeviceLost, false))
	assert.Equal(t, "VK_TIMEOUT a wait operation has not completed in the specified time", VulkanResultString(vk.Timeout, true))
	assert.Equal(t, "VkResult(-12345)", VulkanResultString(vk.Result(-12345), true))

	assert.True(t, VulkanResultIsSuccess(vk.Suboptimal))
	assert.False(t, VulkanResultIsSuccess(vk.ErrorOutOfPoolMemory))
	assert.NoError(t, CheckResult("vkWaitForFences", vk.Timeout))
}

func TestVulkanSafeStrings(t *testing.T) {
	assert.Equal(t, "\x00", VulkanSafeString(""))
	assert.Equal(t, "main\x00", VulkanSafeString("main"))
	assert.Equal(t, "main\x00", VulkanSafeString("main\x00"))
	assert.Equal(t, []string{"a\x00", "b\x00"}, VulkanSafeStrings([]string{"a", "b\x00"}))
}
