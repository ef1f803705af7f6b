package d3d12

import (
	"github.com/zxgjxc/dawn-ray-tracing/engine/gpu"
)

// The values below match the D3D12 headers so the Windows command list can
// cast them straight through.

type ResourceStates uint32

const (
	ResourceStateCommon                          ResourceStates = 0
	ResourceStateVertexAndConstantBuffer         ResourceStates = 0x1
	ResourceStateIndexBuffer                     ResourceStates = 0x2
	ResourceStateRenderTarget                    ResourceStates = 0x4
	ResourceStateUnorderedAccess                 ResourceStates = 0x8
	ResourceStateDepthWrite                      ResourceStates = 0x10
	ResourceStateDepthRead                       ResourceStates = 0x20
	ResourceStateNonPixelShaderResource          ResourceStates = 0x40
	ResourceStatePixelShaderResource             ResourceStates = 0x80
	ResourceStateIndirectArgument                ResourceStates = 0x200
	ResourceStateCopyDest                        ResourceStates = 0x400
	ResourceStateCopySource                      ResourceStates = 0x800
	ResourceStateResolveDest                     ResourceStates = 0x1000
	ResourceStateResolveSource                   ResourceStates = 0x2000
	ResourceStateRaytracingAccelerationStructure ResourceStates = 0x400000
	ResourceStateGenericRead                     ResourceStates = 0x1 | 0x2 | 0x40 | 0x80 | 0x200 | 0x800
	ResourceStatePresent                         ResourceStates = 0
)

type ResourceBarrierType uint32

const (
	ResourceBarrierTypeTransition ResourceBarrierType = 0
	ResourceBarrierTypeUAV        ResourceBarrierType = 2
)

const AllSubresources uint32 = 0xffffffff

// ResourceBarrier references exactly one of Buffer or Texture.
type ResourceBarrier struct {
	Type        ResourceBarrierType
	Buffer      *gpu.Buffer
	Texture     *gpu.Texture
	Subresource uint32
	StateBefore ResourceStates
	StateAfter  ResourceStates
}

type CPUDescriptorHandle struct {
	Ptr uintptr
}

func (h CPUDescriptorHandle) Offset(index, incrementSize uint32) CPUDescriptorHandle {
	return CPUDescriptorHandle{Ptr: h.Ptr + uintptr(index)*uintptr(incrementSize)}
}

type GPUDescriptorHandle struct {
	Ptr uint64
}

func (h GPUDescriptorHandle) Offset(index, incrementSize uint32) GPUDescriptorHandle {
	return GPUDescriptorHandle{Ptr: h.Ptr + uint64(index)*uint64(incrementSize)}
}

type Viewport struct {
	TopLeftX, TopLeftY float32
	Width, Height      float32
	MinDepth, MaxDepth float32
}

type Rect struct {
	Left, Top, Right, Bottom int32
}

type Box struct {
	Left, Top, Front    uint32
	Right, Bottom, Back uint32
}

type VertexBufferView struct {
	BufferLocation uint64
	SizeInBytes    uint32
	StrideInBytes  uint32
}

type IndexBufferView struct {
	BufferLocation uint64
	SizeInBytes    uint32
	Format         DXGIFormat
}

type TextureCopyType uint32

const (
	TextureCopyTypeSubresourceIndex TextureCopyType = 0
	TextureCopyTypePlacedFootprint  TextureCopyType = 1
)

type SubresourceFootprint struct {
	Format   DXGIFormat
	Width    uint32
	Height   uint32
	Depth    uint32
	RowPitch uint32
}

type PlacedSubresourceFootprint struct {
	Offset    uint64
	Footprint SubresourceFootprint
}

// TextureCopyLocation is either a subresource of Texture or a placed
// footprint inside Buffer.
type TextureCopyLocation struct {
	Type             TextureCopyType
	Texture          *gpu.Texture
	Buffer           *gpu.Buffer
	SubresourceIndex uint32
	PlacedFootprint  PlacedSubresourceFootprint
}

type PrimitiveTopology uint32

const (
	PrimitiveTopologyUndefined     PrimitiveTopology = 0
	PrimitiveTopologyPointList     PrimitiveTopology = 1
	PrimitiveTopologyLineList      PrimitiveTopology = 2
	PrimitiveTopologyLineStrip     PrimitiveTopology = 3
	PrimitiveTopologyTriangleList  PrimitiveTopology = 4
	PrimitiveTopologyTriangleStrip PrimitiveTopology = 5
)

type ClearFlags uint32

const (
	ClearFlagDepth   ClearFlags = 0x1
	ClearFlagStencil ClearFlags = 0x2
)

type ComparisonFunc uint32

const (
	ComparisonFuncNever        ComparisonFunc = 1
	ComparisonFuncLess         ComparisonFunc = 2
	ComparisonFuncEqual        ComparisonFunc = 3
	ComparisonFuncLessEqual    ComparisonFunc = 4
	ComparisonFuncGreater      ComparisonFunc = 5
	ComparisonFuncNotEqual     ComparisonFunc = 6
	ComparisonFuncGreaterEqual ComparisonFunc = 7
	ComparisonFuncAlways       ComparisonFunc = 8
)

type ShaderVisibility uint32

const (
	ShaderVisibilityAll    ShaderVisibility = 0
	ShaderVisibilityVertex ShaderVisibility = 1
	ShaderVisibilityPixel  ShaderVisibility = 5
)

type RenderPassBeginningAccessType uint32

const (
	RenderPassBeginningAccessTypeDiscard  RenderPassBeginningAccessType = 0
	RenderPassBeginningAccessTypePreserve RenderPassBeginningAccessType = 1
	RenderPassBeginningAccessTypeClear    RenderPassBeginningAccessType = 2
	RenderPassBeginningAccessTypeNoAccess RenderPassBeginningAccessType = 3
)

type RenderPassEndingAccessType uint32

const (
	RenderPassEndingAccessTypeDiscard  RenderPassEndingAccessType = 0
	RenderPassEndingAccessTypePreserve RenderPassEndingAccessType = 1
	RenderPassEndingAccessTypeResolve  RenderPassEndingAccessType = 2
	RenderPassEndingAccessTypeNoAccess RenderPassEndingAccessType = 3
)

type RenderPassFlags uint32

const (
	RenderPassFlagNone           RenderPassFlags = 0
	RenderPassFlagAllowUAVWrites RenderPassFlags = 0x1
)

type ClearValue struct {
	Format  DXGIFormat
	Color   [4]float32
	Depth   float32
	Stencil uint8
}

type RenderPassBeginningAccess struct {
	Type  RenderPassBeginningAccessType
	Clear ClearValue
}

type ResolveSubresourceParameters struct {
	SrcSubresource uint32
	DstSubresource uint32
}

type RenderPassEndingAccessResolve struct {
	Source      *gpu.Texture
	Destination *gpu.Texture
	Subresource ResolveSubresourceParameters
	Format      DXGIFormat
}

type RenderPassEndingAccess struct {
	Type    RenderPassEndingAccessType
	Resolve RenderPassEndingAccessResolve
}

type RenderPassRenderTargetDesc struct {
	CPUDescriptor   CPUDescriptorHandle
	BeginningAccess RenderPassBeginningAccess
	EndingAccess    RenderPassEndingAccess
}

type RenderPassDepthStencilDesc struct {
	CPUDescriptor          CPUDescriptorHandle
	DepthBeginningAccess   RenderPassBeginningAccess
	StencilBeginningAccess RenderPassBeginningAccess
	DepthEndingAccess      RenderPassEndingAccess
	StencilEndingAccess    RenderPassEndingAccess
}

type GPUVirtualAddressRange struct {
	StartAddress uint64
	SizeInBytes  uint64
}

type GPUVirtualAddressRangeAndStride struct {
	StartAddress  uint64
	SizeInBytes   uint64
	StrideInBytes uint64
}

type DispatchRaysDesc struct {
	RayGenerationShaderRecord GPUVirtualAddressRange
	MissShaderTable           GPUVirtualAddressRangeAndStride
	HitGroupTable             GPUVirtualAddressRangeAndStride
	CallableShaderTable       GPUVirtualAddressRangeAndStride
	Width, Height, Depth      uint32
}

// IndirectSignature selects one of the command signatures the device
// creates up front.
type IndirectSignature uint8

const (
	IndirectSignatureDraw IndirectSignature = iota
	IndirectSignatureDrawIndexed
	IndirectSignatureDispatch
)

func (s IndirectSignature) String() string {
	switch s {
	case IndirectSignatureDraw:
		return "draw"
	case IndirectSignatureDrawIndexed:
		return "draw-indexed"
	}
	return "dispatch"
}
