package vulkan

import (
	"testing"

	"github.com/gogpu/gputypes"
	vk "github.com/goki/vulkan"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zxgjxc/dawn-ray-tracing/engine/gpu"
)

func newTexture(format gputypes.TextureFormat, dimension gputypes.TextureDimension, w, h, depthOrLayers, mips uint32) *gpu.Texture {
	return &gpu.Texture{
		Label:         "texture",
		Format:        format,
		Dimension:     dimension,
		Size:          gputypes.Extent3D{Width: w, Height: h, DepthOrArrayLayers: depthOrLayers},
		MipLevelCount: mips,
		SampleCount:   1,
	}
}

func TestComputeTextureCopyExtent(t *testing.T) {
	bc1 := newTexture(gputypes.TextureFormatBC1RGBAUnorm, gputypes.TextureDimension2D, 60, 60, 1, 3)

	// Mip 2 is 15x15 virtual, 16x16 physical.
	got := ComputeTextureCopyExtent(gpu.TextureCopy{Texture: bc1, MipLevel: 2}, gputypes.Extent3D{Width: 16, Height: 16, DepthOrArrayLayers: 1})
	assert.Equal(t, gputypes.Extent3D{Width: 15, Height: 15, DepthOrArrayLayers: 1}, got)

	// Only the overflowing dimension is clamped.
	got = ComputeTextureCopyExtent(gpu.TextureCopy{Texture: bc1, MipLevel: 2}, gputypes.Extent3D{Width: 16, Height: 8, DepthOrArrayLayers: 1})
	assert.Equal(t, gputypes.Extent3D{Width: 15, Height: 8, DepthOrArrayLayers: 1}, got)

	got = ComputeTextureCopyExtent(gpu.TextureCopy{Texture: bc1, MipLevel: 2, Origin: gputypes.Origin3D{X: 8, Y: 4}}, gputypes.Extent3D{Width: 8, Height: 12, DepthOrArrayLayers: 1})
	assert.Equal(t, gputypes.Extent3D{Width: 7, Height: 11, DepthOrArrayLayers: 1}, got)

	rgba := newTexture(gputypes.TextureFormatRGBA8Unorm, gputypes.TextureDimension2D, 60, 60, 1, 3)
	assert.Panics(t, func() {
		ComputeTextureCopyExtent(gpu.TextureCopy{Texture: rgba, MipLevel: 2}, gputypes.Extent3D{Width: 16, Height: 16, DepthOrArrayLayers: 1})
	})
}

func TestComputeBufferImageCopyRegion(t *testing.T) {
	bc1 := newTexture(gputypes.TextureFormatBC1RGBAUnorm, gputypes.TextureDimension2D, 64, 64, 1, 1)
	region := ComputeBufferImageCopyRegion(
		gpu.BufferCopy{Offset: 256, BytesPerRow: 256, RowsPerImage: 64},
		gpu.TextureCopy{Texture: bc1, Origin: gputypes.Origin3D{X: 4, Y: 8}},
		gputypes.Extent3D{Width: 64, Height: 56, DepthOrArrayLayers: 1})

	// 256 bytes are 32 blocks of 8 bytes, 4 texels wide each.
	assert.Equal(t, uint32(128), region.BufferRowLength)
	assert.Equal(t, uint32(64), region.BufferImageHeight)
	assert.Equal(t, vk.DeviceSize(256), region.BufferOffset)
	assert.Equal(t, int32(4), region.ImageOffset.X)
	assert.Equal(t, int32(8), region.ImageOffset.Y)
	assert.Equal(t, uint32(1), region.ImageExtent.Depth)
	assert.Equal(t, uint32(1), region.ImageSubresource.LayerCount)

	rgba := newTexture(gputypes.TextureFormatRGBA8Unorm, gputypes.TextureDimension2D, 64, 64, 1, 1)
	region = ComputeBufferImageCopyRegion(
		gpu.BufferCopy{BytesPerRow: 512},
		gpu.TextureCopy{Texture: rgba},
		gputypes.Extent3D{Width: 64, Height: 64, DepthOrArrayLayers: 1})
	assert.Equal(t, uint32(128), region.BufferRowLength)

	assert.Panics(t, func() {
		ComputeBufferImageCopyRegion(gpu.BufferCopy{BytesPerRow: 258}, gpu.TextureCopy{Texture: rgba},
			gputypes.Extent3D{Width: 64, Height: 64, DepthOrArrayLayers: 1})
	})
}

func TestComputeBufferImageCopyRegion3D(t *testing.T) {
	volume := newTexture(gputypes.TextureFormatR8Unorm, gputypes.TextureDimension3D, 32, 32, 16, 1)
	region := ComputeBufferImageCopyRegion(
		gpu.BufferCopy{BytesPerRow: 256, RowsPerImage: 32},
		gpu.TextureCopy{Texture: volume, Origin: gputypes.Origin3D{Z: 2}},
		gputypes.Extent3D{Width: 32, Height: 32, DepthOrArrayLayers: 8})
	assert.Equal(t, uint32(8), region.ImageExtent.Depth)
	assert.Equal(t, int32(2), region.ImageOffset.Z)

	regions := SplitCopyIntoSubresourceRegions(
		gpu.BufferCopy{BytesPerRow: 256, RowsPerImage: 32},
		gpu.TextureCopy{Texture: volume},
		gputypes.Extent3D{Width: 32, Height: 32, DepthOrArrayLayers: 8})
	assert.Len(t, regions, 1)
}

func TestSplitCopyIntoSubresourceRegions(t *testing.T) {
	array := newTexture(gputypes.TextureFormatRGBA8Unorm, gputypes.TextureDimension2D, 16, 16, 4, 1)
	regions := SplitCopyIntoSubresourceRegions(
		gpu.BufferCopy{Offset: 512, BytesPerRow: 256, RowsPerImage: 16},
		gpu.TextureCopy{Texture: array, ArrayLayer: 1},
		gputypes.Extent3D{Width: 16, Height: 16, DepthOrArrayLayers: 3})

	require.Len(t, regions, 3)
	for i, region := range regions {
		assert.Equal(t, vk.DeviceSize(512+uint64(i)*256*16), region.BufferOffset)
		assert.Equal(t, uint32(1+i), region.ImageSubresource.BaseArrayLayer)
		assert.Equal(t, uint32(1), region.ImageSubresource.LayerCount)
		assert.Equal(t, uint32(1), region.ImageExtent.Depth)
	}

	// Slices of compressed formats advance by block rows.
	bc1 := newTexture(gputypes.TextureFormatBC1RGBAUnorm, gputypes.TextureDimension2D, 16, 16, 2, 1)
	regions = SplitCopyIntoSubresourceRegions(
		gpu.BufferCopy{BytesPerRow: 256},
		gpu.TextureCopy{Texture: bc1},
		gputypes.Extent3D{Width: 16, Height: 16, DepthOrArrayLayers: 2})
	require.Len(t, regions, 2)
	assert.Equal(t, vk.DeviceSize(256*4), regions[1].BufferOffset)
}

func TestComputeImageCopyRegion(t *testing.T) {
	src := newTexture(gputypes.TextureFormatBC1RGBAUnorm, gputypes.TextureDimension2D, 60, 60, 2, 3)
	dst := newTexture(gputypes.TextureFormatBC1RGBAUnorm, gputypes.TextureDimension2D, 64, 64, 2, 3)

	region := ComputeImageCopyRegion(
		gpu.TextureCopy{Texture: src, MipLevel: 2},
		gpu.TextureCopy{Texture: dst, MipLevel: 2},
		gputypes.Extent3D{Width: 16, Height: 16, DepthOrArrayLayers: 2})

	assert.Equal(t, uint32(15), region.Extent.Width)
	assert.Equal(t, uint32(15), region.Extent.Height)
	assert.Equal(t, uint32(1), region.Extent.Depth)
	assert.Equal(t, uint32(2), region.SrcSubresource.LayerCount)
	assert.Equal(t, uint32(2), region.DstSubresource.LayerCount)
}
