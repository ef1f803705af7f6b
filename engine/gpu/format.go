package gpu

import (
	"github.com/gogpu/gputypes"

	"github.com/zxgjxc/dawn-ray-tracing/engine/core"
)

// FormatInfo describes the texel block layout of a texture format.
type FormatInfo struct {
	BlockByteSize uint32
	BlockWidth    uint32
	BlockHeight   uint32
	IsCompressed  bool
}

func uncompressed(size uint32) FormatInfo {
	return FormatInfo{BlockByteSize: size, BlockWidth: 1, BlockHeight: 1}
}

func compressed(size, width, height uint32) FormatInfo {
	return FormatInfo{BlockByteSize: size, BlockWidth: width, BlockHeight: height, IsCompressed: true}
}

var astcBlocks = map[gputypes.TextureFormat][2]uint32{
	gputypes.TextureFormatASTC4x4Unorm:       {4, 4},
	gputypes.TextureFormatASTC4x4UnormSrgb:   {4, 4},
	gputypes.TextureFormatASTC5x4Unorm:       {5, 4},
	gputypes.TextureFormatASTC5x4UnormSrgb:   {5, 4},
	gputypes.TextureFormatASTC5x5Unorm:       {5, 5},
	gputypes.TextureFormatASTC5x5UnormSrgb:   {5, 5},
	gputypes.TextureFormatASTC6x5Unorm:       {6, 5},
	gputypes.TextureFormatASTC6x5UnormSrgb:   {6, 5},
	gputypes.TextureFormatASTC6x6Unorm:       {6, 6},
	gputypes.TextureFormatASTC6x6UnormSrgb:   {6, 6},
	gputypes.TextureFormatASTC8x5Unorm:       {8, 5},
	gputypes.TextureFormatASTC8x5UnormSrgb:   {8, 5},
	gputypes.TextureFormatASTC8x6Unorm:       {8, 6},
	gputypes.TextureFormatASTC8x6UnormSrgb:   {8, 6},
	gputypes.TextureFormatASTC8x8Unorm:       {8, 8},
	gputypes.TextureFormatASTC8x8UnormSrgb:   {8, 8},
	gputypes.TextureFormatASTC10x5Unorm:      {10, 5},
	gputypes.TextureFormatASTC10x5UnormSrgb:  {10, 5},
	gputypes.TextureFormatASTC10x6Unorm:      {10, 6},
	gputypes.TextureFormatASTC10x6UnormSrgb:  {10, 6},
	gputypes.TextureFormatASTC10x8Unorm:      {10, 8},
	gputypes.TextureFormatASTC10x8UnormSrgb:  {10, 8},
	gputypes.TextureFormatASTC10x10Unorm:     {10, 10},
	gputypes.TextureFormatASTC10x10UnormSrgb: {10, 10},
	gputypes.TextureFormatASTC12x10Unorm:     {12, 10},
	gputypes.TextureFormatASTC12x10UnormSrgb: {12, 10},
	gputypes.TextureFormatASTC12x12Unorm:     {12, 12},
	gputypes.TextureFormatASTC12x12UnormSrgb: {12, 12},
}

// GetFormatInfo returns the block layout of format. Undefined formats never
// reach the recorder and abort.
func GetFormatInfo(format gputypes.TextureFormat) FormatInfo {
	switch format {
	case gputypes.TextureFormatR8Unorm, gputypes.TextureFormatR8Snorm,
		gputypes.TextureFormatR8Uint, gputypes.TextureFormatR8Sint,
		gputypes.TextureFormatStencil8:
		return uncompressed(1)

	case gputypes.TextureFormatR16Unorm, gputypes.TextureFormatR16Snorm,
		gputypes.TextureFormatR16Uint, gputypes.TextureFormatR16Sint,
		gputypes.TextureFormatR16Float,
		gputypes.TextureFormatRG8Unorm, gputypes.TextureFormatRG8Snorm,
		gputypes.TextureFormatRG8Uint, gputypes.TextureFormatRG8Sint,
		gputypes.TextureFormatDepth16Unorm:
		return uncompressed(2)

	case gputypes.TextureFormatR32Float, gputypes.TextureFormatR32Uint,
		gputypes.TextureFormatR32Sint,
		gputypes.TextureFormatRG16Unorm, gputypes.TextureFormatRG16Snorm,
		gputypes.TextureFormatRG16Uint, gputypes.TextureFormatRG16Sint,
		gputypes.TextureFormatRG16Float,
		gputypes.TextureFormatRGBA8Unorm, gputypes.TextureFormatRGBA8UnormSrgb,
		gputypes.TextureFormatRGBA8Snorm, gputypes.TextureFormatRGBA8Uint,
		gputypes.TextureFormatRGBA8Sint,
		gputypes.TextureFormatBGRA8Unorm, gputypes.TextureFormatBGRA8UnormSrgb,
		gputypes.TextureFormatRGB10A2Uint, gputypes.TextureFormatRGB10A2Unorm,
		gputypes.TextureFormatRG11B10Ufloat, gputypes.TextureFormatRGB9E5Ufloat,
		gputypes.TextureFormatDepth24Plus, gputypes.TextureFormatDepth24PlusStencil8,
		gputypes.TextureFormatDepth32Float:
		return uncompressed(4)

	case gputypes.TextureFormatRG32Float, gputypes.TextureFormatRG32Uint,
		gputypes.TextureFormatRG32Sint,
		gputypes.TextureFormatRGBA16Unorm, gputypes.TextureFormatRGBA16Snorm,
		gputypes.TextureFormatRGBA16Uint, gputypes.TextureFormatRGBA16Sint,
		gputypes.TextureFormatRGBA16Float,
		gputypes.TextureFormatDepth32FloatStencil8:
		return uncompressed(8)

	case gputypes.TextureFormatRGBA32Float, gputypes.TextureFormatRGBA32Uint,
		gputypes.TextureFormatRGBA32Sint:
		return uncompressed(16)

	case gputypes.TextureFormatBC1RGBAUnorm, gputypes.TextureFormatBC1RGBAUnormSrgb,
		gputypes.TextureFormatBC4RUnorm, gputypes.TextureFormatBC4RSnorm:
		return compressed(8, 4, 4)

	case gputypes.TextureFormatBC2RGBAUnorm, gputypes.TextureFormatBC2RGBAUnormSrgb,
		gputypes.TextureFormatBC3RGBAUnorm, gputypes.TextureFormatBC3RGBAUnormSrgb,
		gputypes.TextureFormatBC5RGUnorm, gputypes.TextureFormatBC5RGSnorm,
		gputypes.TextureFormatBC6HRGBUfloat, gputypes.TextureFormatBC6HRGBFloat,
		gputypes.TextureFormatBC7RGBAUnorm, gputypes.TextureFormatBC7RGBAUnormSrgb:
		return compressed(16, 4, 4)

	case gputypes.TextureFormatETC2RGB8Unorm, gputypes.TextureFormatETC2RGB8UnormSrgb,
		gputypes.TextureFormatETC2RGB8A1Unorm, gputypes.TextureFormatETC2RGB8A1UnormSrgb,
		gputypes.TextureFormatEACR11Unorm, gputypes.TextureFormatEACR11Snorm:
		return compressed(8, 4, 4)

	case gputypes.TextureFormatETC2RGBA8Unorm, gputypes.TextureFormatETC2RGBA8UnormSrgb,
		gputypes.TextureFormatEACRG11Unorm, gputypes.TextureFormatEACRG11Snorm:
		return compressed(16, 4, 4)
	}

	if block, ok := astcBlocks[format]; ok {
		return compressed(16, block[0], block[1])
	}

	core.Unreachable("texture format %s has no block layout", format)
	return FormatInfo{}
}
