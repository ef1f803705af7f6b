package vulkan

import (
	"github.com/gogpu/gputypes"
	vk "github.com/goki/vulkan"

	"github.com/zxgjxc/dawn-ray-tracing/engine/core"
	"github.com/zxgjxc/dawn-ray-tracing/engine/gpu"
)

// ComputeTextureCopyExtent clamps a copy to the virtual size of the mip level.
// Front-end validation checks copies against the physical size, which is
// larger only for block-compressed formats whose mips are not block aligned.
func ComputeTextureCopyExtent(textureCopy gpu.TextureCopy, copySize gputypes.Extent3D) gputypes.Extent3D {
	validSize := copySize
	texture := textureCopy.Texture
	virtualSize := texture.MipLevelVirtualSize(textureCopy.MipLevel)

	if textureCopy.Origin.X+copySize.Width > virtualSize.Width {
		core.Assert(texture.FormatInfo().IsCompressed, "copy on %s overflows mip %d width", texture.Label, textureCopy.MipLevel)
		validSize.Width = virtualSize.Width - textureCopy.Origin.X
	}
	if textureCopy.Origin.Y+copySize.Height > virtualSize.Height {
		core.Assert(texture.FormatInfo().IsCompressed, "copy on %s overflows mip %d height", texture.Label, textureCopy.MipLevel)
		validSize.Height = virtualSize.Height - textureCopy.Origin.Y
	}
	return validSize
}

func imageSubresourceLayers(textureCopy gpu.TextureCopy, layerCount uint32) vk.ImageSubresourceLayers {
	texture := textureCopy.Texture
	return vk.ImageSubresourceLayers{
		AspectMask:     VulkanImageAspectFlags(texture.Format, textureCopy.Aspect),
		MipLevel:       textureCopy.MipLevel,
		BaseArrayLayer: textureCopy.ArrayLayer,
		LayerCount:     layerCount,
	}
}

func imageOffset(textureCopy gpu.TextureCopy) vk.Offset3D {
	offset := vk.Offset3D{
		X: int32(textureCopy.Origin.X),
		Y: int32(textureCopy.Origin.Y),
	}
	if textureCopy.Texture.Dimension == gputypes.TextureDimension3D {
		offset.Z = int32(textureCopy.Origin.Z)
	}
	return offset
}

// ComputeBufferImageCopyRegion describes a copy between a buffer and a
// single array layer (or a 3D box) of a texture.
func ComputeBufferImageCopyRegion(bufferCopy gpu.BufferCopy, textureCopy gpu.TextureCopy, copySize gputypes.Extent3D) vk.BufferImageCopy {
	texture := textureCopy.Texture
	info := texture.FormatInfo()
	core.Assert(bufferCopy.BytesPerRow%info.BlockByteSize == 0,
		"bytes per row %d is not a multiple of the %d byte block of %s", bufferCopy.BytesPerRow, info.BlockByteSize, texture.Label)

	imageExtentDepth := uint32(1)
	if texture.Dimension == gputypes.TextureDimension3D {
		imageExtentDepth = copySize.DepthOrArrayLayers
	}
	imageExtent := ComputeTextureCopyExtent(textureCopy, copySize)

	return vk.BufferImageCopy{
		BufferOffset:      vk.DeviceSize(bufferCopy.Offset),
		BufferRowLength:   bufferCopy.BytesPerRow / info.BlockByteSize * info.BlockWidth,
		BufferImageHeight: bufferCopy.RowsPerImage,
		ImageSubresource:  imageSubresourceLayers(textureCopy, 1),
		ImageOffset:       imageOffset(textureCopy),
		ImageExtent: vk.Extent3D{
			Width:  imageExtent.Width,
			Height: imageExtent.Height,
			Depth:  imageExtentDepth,
		},
	}
}

// SplitCopyIntoSubresourceRegions emits one region per array layer touched
// by the copy. Each layer reads its own slice of the buffer.
func SplitCopyIntoSubresourceRegions(bufferCopy gpu.BufferCopy, textureCopy gpu.TextureCopy, copySize gputypes.Extent3D) []vk.BufferImageCopy {
	texture := textureCopy.Texture
	if texture.Dimension == gputypes.TextureDimension3D || copySize.DepthOrArrayLayers <= 1 {
		return []vk.BufferImageCopy{ComputeBufferImageCopyRegion(bufferCopy, textureCopy, copySize)}
	}

	info := texture.FormatInfo()
	rowsPerImage := bufferCopy.RowsPerImage
	if rowsPerImage == 0 {
		rowsPerImage = copySize.Height
	}
	blockRows := (rowsPerImage + info.BlockHeight - 1) / info.BlockHeight
	sliceBytes := uint64(bufferCopy.BytesPerRow) * uint64(blockRows)

	slice := copySize
	slice.DepthOrArrayLayers = 1

	regions := make([]vk.BufferImageCopy, 0, copySize.DepthOrArrayLayers)
	for layer := uint32(0); layer < copySize.DepthOrArrayLayers; layer++ {
		bc := bufferCopy
		bc.Offset += uint64(layer) * sliceBytes
		tc := textureCopy
		tc.ArrayLayer += layer
		regions = append(regions, ComputeBufferImageCopyRegion(bc, tc, slice))
	}
	return regions
}

// ComputeImageCopyRegion copies between two textures. Array layers are
// copied in one region, the extent is clamped on both sides.
func ComputeImageCopyRegion(src, dst gpu.TextureCopy, copySize gputypes.Extent3D) vk.ImageCopy {
	layerCount := uint32(1)
	depth := uint32(1)
	if dst.Texture.Dimension == gputypes.TextureDimension3D {
		depth = copySize.DepthOrArrayLayers
	} else {
		layerCount = max(copySize.DepthOrArrayLayers, 1)
	}

	srcExtent := ComputeTextureCopyExtent(src, copySize)
	dstExtent := ComputeTextureCopyExtent(dst, copySize)

	return vk.ImageCopy{
		SrcSubresource: imageSubresourceLayers(src, layerCount),
		SrcOffset:      imageOffset(src),
		DstSubresource: imageSubresourceLayers(dst, layerCount),
		DstOffset:      imageOffset(dst),
		Extent: vk.Extent3D{
			Width:  min(srcExtent.Width, dstExtent.Width),
			Height: min(srcExtent.Height, dstExtent.Height),
			Depth:  depth,
		},
	}
}
