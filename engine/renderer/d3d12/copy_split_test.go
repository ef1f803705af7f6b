package d3d12

import (
	"testing"

	"github.com/gogpu/gputypes"
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

func rgba8() gpu.FormatInfo {
	return gpu.GetFormatInfo(gputypes.TextureFormatRGBA8Unorm)
}

func TestComputeTextureCopySplitAligned(t *testing.T) {
	origin := gputypes.Origin3D{X: 4, Y: 2}
	size := gputypes.Extent3D{Width: 16, Height: 4, DepthOrArrayLayers: 1}

	split := ComputeTextureCopySplit(origin, size, rgba8(), 1024, 256, 0)
	assert.Equal(t, uint64(1024), split.Offset)
	require.Equal(t, uint32(1), split.Count)
	assert.Equal(t, TextureCopyInfo{TextureOffset: origin, CopySize: size, BufferSize: size}, split.Copies[0])
}

func TestComputeTextureCopySplitUnalignedSingleCopy(t *testing.T) {
	size := gputypes.Extent3D{Width: 16, Height: 4, DepthOrArrayLayers: 1}

	// 64 bytes into the first row: the footprint starts 16 texels early.
	split := ComputeTextureCopySplit(gputypes.Origin3D{}, size, rgba8(), 512+64, 256, 4)
	assert.Equal(t, uint64(512), split.Offset)
	require.Equal(t, uint32(1), split.Count)
	assert.Equal(t, gputypes.Origin3D{X: 16}, split.Copies[0].BufferOffset)
	assert.Equal(t, gputypes.Extent3D{Width: 32, Height: 4, DepthOrArrayLayers: 1}, split.Copies[0].BufferSize)
	assert.Equal(t, size, split.Copies[0].CopySize)

	// One row and 64 bytes in: the footprint also starts a row early.
	split = ComputeTextureCopySplit(gputypes.Origin3D{}, size, rgba8(), 512+256+64, 256, 4)
	assert.Equal(t, uint64(512), split.Offset)
	require.Equal(t, uint32(1), split.Count)
	assert.Equal(t, gputypes.Origin3D{X: 16, Y: 1}, split.Copies[0].BufferOffset)
	assert.Equal(t, gputypes.Extent3D{Width: 32, Height: 5, DepthOrArrayLayers: 1}, split.Copies[0].BufferSize)
}

func TestComputeTextureCopySplitTwoCopies(t *testing.T) {
	origin := gputypes.Origin3D{X: 2, Y: 3}
	size := gputypes.Extent3D{Width: 32, Height: 4, DepthOrArrayLayers: 1}

	// 192 bytes into a 256 byte row leaves room for 16 of the 32 texels.
	split := ComputeTextureCopySplit(origin, size, rgba8(), 512+192, 256, 4)
	assert.Equal(t, uint64(512), split.Offset)
	require.Equal(t, uint32(2), split.Count)

	first := split.Copies[0]
	assert.Equal(t, origin, first.TextureOffset)
	assert.Equal(t, gputypes.Extent3D{Width: 16, Height: 4, DepthOrArrayLayers: 1}, first.CopySize)
	assert.Equal(t, gputypes.Origin3D{X: 48}, first.BufferOffset)
	assert.Equal(t, gputypes.Extent3D{Width: 64, Height: 4, DepthOrArrayLayers: 1}, first.BufferSize)

	second := split.Copies[1]
	assert.Equal(t, gputypes.Origin3D{X: 18, Y: 3}, second.TextureOffset)
	assert.Equal(t, gputypes.Extent3D{Width: 16, Height: 4, DepthOrArrayLayers: 1}, second.CopySize)
	assert.Equal(t, gputypes.Origin3D{Y: 1}, second.BufferOffset)
	assert.Equal(t, gputypes.Extent3D{Width: 16, Height: 5, DepthOrArrayLayers: 1}, second.BufferSize)

	// Both halves together cover the requested width.
	assert.Equal(t, size.Width, first.CopySize.Width+second.CopySize.Width)
}

func TestSplitCopyIntoSubresourceRegions(t *testing.T) {
	buffer := &gpu.Buffer{Label: "staging", Size: 1 << 16}

	t.Run("array layers", func(t *testing.T) {
		texture := newTexture(gputypes.TextureFormatBC1RGBAUnorm, gputypes.TextureDimension2D, 16, 16, 6, 1)
		regions := SplitCopyIntoSubresourceRegions(
			gpu.BufferCopy{Buffer: buffer, Offset: 512, BytesPerRow: 256},
			gpu.TextureCopy{Texture: texture, ArrayLayer: 2, Origin: gputypes.Origin3D{Z: 2}},
			gputypes.Extent3D{Width: 16, Height: 16, DepthOrArrayLayers: 3},
		)
		require.Len(t, regions, 3)
		for i, region := range regions {
			// 16 rows of texels are 4 rows of blocks.
			assert.Equal(t, uint64(512+i*1024), region.Buffer.Offset)
			assert.Equal(t, uint32(2+i), region.Texture.ArrayLayer)
			assert.Equal(t, uint32(0), region.Texture.Origin.Z)
			assert.Equal(t, uint32(1), region.CopySize.DepthOrArrayLayers)
		}
	})

	t.Run("volume", func(t *testing.T) {
		texture := newTexture(gputypes.TextureFormatRGBA8Unorm, gputypes.TextureDimension3D, 8, 8, 8, 1)
		size := gputypes.Extent3D{Width: 8, Height: 8, DepthOrArrayLayers: 4}
		regions := SplitCopyIntoSubresourceRegions(
			gpu.BufferCopy{Buffer: buffer, BytesPerRow: 256, RowsPerImage: 8},
			gpu.TextureCopy{Texture: texture, Origin: gputypes.Origin3D{Z: 3}},
			size,
		)
		require.Len(t, regions, 1)
		assert.Equal(t, uint32(3), regions[0].Texture.Origin.Z)
		assert.Equal(t, size, regions[0].CopySize)
	})
}

func TestCanUseCopyResource(t *testing.T) {
	src := newTexture(gputypes.TextureFormatRGBA8Unorm, gputypes.TextureDimension2D, 32, 32, 2, 1)
	dst := newTexture(gputypes.TextureFormatRGBA8Unorm, gputypes.TextureDimension2D, 32, 32, 2, 1)
	assert.True(t, CanUseCopyResource(src, dst, gputypes.Extent3D{Width: 32, Height: 32, DepthOrArrayLayers: 2}))
	assert.False(t, CanUseCopyResource(src, dst, gputypes.Extent3D{Width: 32, Height: 32, DepthOrArrayLayers: 1}))
	assert.False(t, CanUseCopyResource(src, dst, gputypes.Extent3D{Width: 16, Height: 32, DepthOrArrayLayers: 2}))

	mipped := newTexture(gputypes.TextureFormatRGBA8Unorm, gputypes.TextureDimension2D, 32, 32, 2, 3)
	assert.False(t, CanUseCopyResource(src, mipped, gputypes.Extent3D{Width: 32, Height: 32, DepthOrArrayLayers: 2}))
}

func TestCopyLocations(t *testing.T) {
	texture := newTexture(gputypes.TextureFormatRGBA8Unorm, gputypes.TextureDimension2D, 32, 32, 4, 3)
	location := ComputeTextureCopyLocationForTexture(texture, 1, 2)
	assert.Equal(t, TextureCopyTypeSubresourceIndex, location.Type)
	assert.Equal(t, uint32(7), location.SubresourceIndex)

	buffer := &gpu.Buffer{Label: "readback"}
	location = ComputeBufferLocationForCopyTextureRegion(texture, buffer, gputypes.Extent3D{Width: 32, Height: 5, DepthOrArrayLayers: 1}, 1024, 256)
	assert.Equal(t, TextureCopyTypePlacedFootprint, location.Type)
	assert.Equal(t, PlacedSubresourceFootprint{
		Offset: 1024,
		Footprint: SubresourceFootprint{
			Format:   DXGIFormatR8G8B8A8Unorm,
			Width:    32,
			Height:   5,
			Depth:    1,
			RowPitch: 256,
		},
	}, location.PlacedFootprint)

	box := ComputeD3D12BoxFromOffsetAndSize(gputypes.Origin3D{X: 1, Y: 2, Z: 3}, gputypes.Extent3D{Width: 4, Height: 5, DepthOrArrayLayers: 6})
	assert.Equal(t, Box{Left: 1, Top: 2, Front: 3, Right: 5, Bottom: 7, Back: 9}, box)
}
