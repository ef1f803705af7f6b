package d3d12

import (
	"github.com/gogpu/gputypes"

	"github.com/zxgjxc/dawn-ray-tracing/engine/core"
	"github.com/zxgjxc/dawn-ray-tracing/engine/gpu"
	"github.com/zxgjxc/dawn-ray-tracing/engine/math"
)

// TextureDataPlacementAlignment is the alignment of a placed footprint
// offset inside a buffer.
const TextureDataPlacementAlignment = 512

// TextureCopyInfo is one CopyTextureRegion call of a split. Buffer offset
// and size are in texels, relative to the aligned footprint.
type TextureCopyInfo struct {
	TextureOffset gputypes.Origin3D
	CopySize      gputypes.Extent3D
	BufferOffset  gputypes.Origin3D
	BufferSize    gputypes.Extent3D
}

// TextureCopySplit holds at most two copies sharing one aligned buffer
// offset.
type TextureCopySplit struct {
	Offset uint64
	Count  uint32
	Copies [2]TextureCopyInfo
}

func computeTexelOffsets(info gpu.FormatInfo, offset, bytesPerRow, slicePitch uint32) gputypes.Origin3D {
	byteOffsetX := offset % bytesPerRow
	offset -= byteOffsetX
	byteOffsetY := offset
	byteOffsetZ := uint32(0)
	if slicePitch != 0 {
		byteOffsetY = offset % slicePitch
		byteOffsetZ = offset - byteOffsetY
	}

	texel := gputypes.Origin3D{
		X: byteOffsetX / info.BlockByteSize * info.BlockWidth,
		Y: byteOffsetY / bytesPerRow * info.BlockHeight,
	}
	if slicePitch != 0 {
		texel.Z = byteOffsetZ / slicePitch
	}
	return texel
}

// ComputeTextureCopySplit places a buffer/texture copy on a 512 byte aligned
// footprint. When the unaligned start pushes the rows of the region past
// bytesPerRow, the region is split in two: the part that still fits the
// first row, and the rest starting one block row further down.
func ComputeTextureCopySplit(origin gputypes.Origin3D, copySize gputypes.Extent3D, info gpu.FormatInfo, offset uint64, bytesPerRow, rowsPerImage uint32) TextureCopySplit {
	core.Assert(bytesPerRow%info.BlockByteSize == 0, "bytes per row %d is not a multiple of the %d byte block", bytesPerRow, info.BlockByteSize)
	if rowsPerImage == 0 {
		rowsPerImage = copySize.Height
	}

	var split TextureCopySplit
	alignedOffset := math.AlignDown(offset, uint64(TextureDataPlacementAlignment))
	split.Offset = alignedOffset

	if offset == alignedOffset {
		split.Count = 1
		split.Copies[0] = TextureCopyInfo{
			TextureOffset: origin,
			CopySize:      copySize,
			BufferSize:    copySize,
		}
		return split
	}

	slicePitch := bytesPerRow * (rowsPerImage / info.BlockHeight)
	texel := computeTexelOffsets(info, uint32(offset-alignedOffset), bytesPerRow, slicePitch)

	copyBytesPerRowPitch := copySize.Width / info.BlockWidth * info.BlockByteSize
	byteOffsetInRowPitch := texel.X / info.BlockWidth * info.BlockByteSize
	if copyBytesPerRowPitch+byteOffsetInRowPitch <= bytesPerRow {
		split.Count = 1
		split.Copies[0] = TextureCopyInfo{
			TextureOffset: origin,
			CopySize:      copySize,
			BufferOffset:  texel,
			BufferSize: gputypes.Extent3D{
				Width:              copySize.Width + texel.X,
				Height:             rowsPerImage + texel.Y,
				DepthOrArrayLayers: copySize.DepthOrArrayLayers + texel.Z,
			},
		}
		return split
	}

	core.Assert(bytesPerRow > byteOffsetInRowPitch, "row offset %d is past bytes per row %d", byteOffsetInRowPitch, bytesPerRow)
	split.Count = 2

	first := &split.Copies[0]
	first.TextureOffset = origin
	first.CopySize = gputypes.Extent3D{
		Width:              (bytesPerRow - byteOffsetInRowPitch) / info.BlockByteSize * info.BlockWidth,
		Height:             copySize.Height,
		DepthOrArrayLayers: copySize.DepthOrArrayLayers,
	}
	first.BufferOffset = texel
	first.BufferSize = gputypes.Extent3D{
		Width:              bytesPerRow / info.BlockByteSize * info.BlockWidth,
		Height:             rowsPerImage + texel.Y,
		DepthOrArrayLayers: copySize.DepthOrArrayLayers + texel.Z,
	}

	core.Assert(copySize.Width > first.CopySize.Width, "split copy has nothing left for the second half")
	second := &split.Copies[1]
	second.TextureOffset = gputypes.Origin3D{
		X: origin.X + first.CopySize.Width,
		Y: origin.Y,
		Z: origin.Z,
	}
	second.CopySize = gputypes.Extent3D{
		Width:              copySize.Width - first.CopySize.Width,
		Height:             copySize.Height,
		DepthOrArrayLayers: copySize.DepthOrArrayLayers,
	}
	second.BufferOffset = gputypes.Origin3D{
		X: 0,
		Y: texel.Y + info.BlockHeight,
		Z: texel.Z,
	}
	second.BufferSize = gputypes.Extent3D{
		Width:              second.CopySize.Width,
		Height:             rowsPerImage + texel.Y + info.BlockHeight,
		DepthOrArrayLayers: copySize.DepthOrArrayLayers + texel.Z,
	}
	return split
}

// BufferTextureCopy is a buffer/texture copy limited to one subresource.
type BufferTextureCopy struct {
	Buffer   gpu.BufferCopy
	Texture  gpu.TextureCopy
	CopySize gputypes.Extent3D
}

// SplitCopyIntoSubresourceRegions turns a copy over several array layers
// into one copy per layer, each reading the next slice of the buffer. 3D
// textures stay a single copy. The texture origin z is zeroed for
// everything but 3D textures.
func SplitCopyIntoSubresourceRegions(bufferCopy gpu.BufferCopy, textureCopy gpu.TextureCopy, copySize gputypes.Extent3D) []BufferTextureCopy {
	texture := textureCopy.Texture
	if texture.Dimension == gputypes.TextureDimension3D {
		return []BufferTextureCopy{{Buffer: bufferCopy, Texture: textureCopy, CopySize: copySize}}
	}
	textureCopy.Origin.Z = 0

	layers := max(copySize.DepthOrArrayLayers, 1)
	slice := copySize
	slice.DepthOrArrayLayers = 1
	if layers == 1 {
		return []BufferTextureCopy{{Buffer: bufferCopy, Texture: textureCopy, CopySize: slice}}
	}

	info := texture.FormatInfo()
	rowsPerImage := bufferCopy.RowsPerImage
	if rowsPerImage == 0 {
		rowsPerImage = copySize.Height
	}
	blockRows := (rowsPerImage + info.BlockHeight - 1) / info.BlockHeight
	sliceBytes := uint64(bufferCopy.BytesPerRow) * uint64(blockRows)

	out := make([]BufferTextureCopy, 0, layers)
	for layer := uint32(0); layer < layers; layer++ {
		bc := bufferCopy
		bc.Offset += uint64(layer) * sliceBytes
		tc := textureCopy
		tc.ArrayLayer += layer
		out = append(out, BufferTextureCopy{Buffer: bc, Texture: tc, CopySize: slice})
	}
	return out
}

// CanUseCopyResource reports whether a texture to texture copy covers both
// resources entirely, so a single CopyResource can replace the region copy.
func CanUseCopyResource(src, dst *gpu.Texture, copySize gputypes.Extent3D) bool {
	return src.Dimension == dst.Dimension &&
		dst.MipLevelCount == 1 &&
		src.MipLevelCount == 1 &&
		copySize.Width == dst.Size.Width &&
		copySize.Width == src.Size.Width &&
		copySize.Height == dst.Size.Height &&
		copySize.Height == src.Size.Height &&
		copySize.DepthOrArrayLayers == dst.CopyDepth() &&
		copySize.DepthOrArrayLayers == src.CopyDepth()
}

func ComputeTextureCopyLocationForTexture(texture *gpu.Texture, mipLevel, arrayLayer uint32) TextureCopyLocation {
	return TextureCopyLocation{
		Type:             TextureCopyTypeSubresourceIndex,
		Texture:          texture,
		SubresourceIndex: texture.SubresourceIndex(mipLevel, arrayLayer),
	}
}

func ComputeBufferLocationForCopyTextureRegion(texture *gpu.Texture, buffer *gpu.Buffer, bufferSize gputypes.Extent3D, offset uint64, rowPitch uint32) TextureCopyLocation {
	return TextureCopyLocation{
		Type:   TextureCopyTypePlacedFootprint,
		Buffer: buffer,
		PlacedFootprint: PlacedSubresourceFootprint{
			Offset: offset,
			Footprint: SubresourceFootprint{
				Format:   D3D12TextureFormat(texture.Format),
				Width:    bufferSize.Width,
				Height:   bufferSize.Height,
				Depth:    bufferSize.DepthOrArrayLayers,
				RowPitch: rowPitch,
			},
		},
	}
}

func ComputeD3D12BoxFromOffsetAndSize(offset gputypes.Origin3D, copySize gputypes.Extent3D) Box {
	return Box{
		Left:   offset.X,
		Top:    offset.Y,
		Front:  offset.Z,
		Right:  offset.X + copySize.Width,
		Bottom: offset.Y + copySize.Height,
		Back:   offset.Z + copySize.DepthOrArrayLayers,
	}
}
