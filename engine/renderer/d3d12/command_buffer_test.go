package d3d12

import (
	"encoding/binary"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"testing"

	"github.com/gogpu/gputypes"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zxgjxc/dawn-ray-tracing/engine/core"
	"github.com/zxgjxc/dawn-ray-tracing/engine/gpu"
	"github.com/zxgjxc/dawn-ray-tracing/engine/math"
)

type testAllocator struct {
	next     uint64
	released []gpu.MemoryEntry
	written  map[*gpu.Buffer][]byte
}

func (a *testAllocator) AllocateScratch(label string, size uint64, usage gputypes.BufferUsage) (gpu.MemoryEntry, error) {
	buf := &gpu.Buffer{Label: label, Size: size, Usage: usage, GPUAddress: 0x1000 + a.next}
	a.next += size
	return gpu.MemoryEntry{Buffer: buf, Size: size, Address: buf.GPUAddress}, nil
}

func (a *testAllocator) ReleaseScratch(entry gpu.MemoryEntry) {
	a.released = append(a.released, entry)
}

func (a *testAllocator) WriteScratch(entry gpu.MemoryEntry, data []byte) error {
	if a.written == nil {
		a.written = map[*gpu.Buffer][]byte{}
	}
	a.written[entry.Buffer] = append([]byte(nil), data...)
	return nil
}

func finish(label string, usages []gpu.PassResourceUsage, cmds ...gpu.Command) *gpu.CommandBuffer {
	stream := gpu.NewCommandStream()
	stream.Push(cmds...)
	return &gpu.CommandBuffer{
		Label:          label,
		Commands:       stream.Finish(),
		ResourceUsages: gpu.CommandBufferResourceUsage{PerPass: usages},
	}
}

func testConfig() core.D3D12Config {
	return core.D3D12Config{UseNativeRenderPass: true, ViewHeapSize: 64, SamplerHeapSize: 16}
}

func newTestDevice(t *testing.T, config core.D3D12Config, rayTracing bool) (*Device, *RecordingDevice) {
	t.Helper()
	descriptors := NewRecordingDevice(rayTracing)
	device, err := NewDevice(descriptors, config)
	require.NoError(t, err)
	return device, descriptors
}

func newPipelineLayout(label string, layouts ...*gpu.BindGroupLayout) *gpu.PipelineLayout {
	layout := &gpu.PipelineLayout{Label: label, BindGroupLayouts: layouts}
	layout.Native = NewPipelineLayout(layout, nil)
	return layout
}

func newBindGroup(t *testing.T, device *Device, label string, layout *gpu.BindGroupLayout, entries ...gpu.BindGroupEntry) *gpu.BindGroup {
	t.Helper()
	group := gpu.NewBindGroup(label, layout, entries)
	require.NoError(t, device.NewBindGroup(group, nil))
	return group
}

func uniformBindGroupLayout() *gpu.BindGroupLayout {
	return gpu.NewBindGroupLayout("uniforms", []gpu.BindingInfo{
		{Binding: 0, Type: gpu.BindingTypeUniformBuffer, Visibility: gputypes.ShaderStageVertex},
	})
}

func countCalls(calls []string, prefix string) int {
	n := 0
	for _, call := range calls {
		if strings.HasPrefix(call, prefix) {
			n++
		}
	}
	return n
}

func TestRecordRenderPassNative(t *testing.T) {
	device, descriptors := newTestDevice(t, testConfig(), false)

	bgl := uniformBindGroupLayout()
	layout := newPipelineLayout("layout", bgl)
	camera := &gpu.Buffer{Label: "camera", Size: 256, GPUAddress: 0x1000}
	group := newBindGroup(t, device, "camera", bgl, gpu.BindGroupEntry{Binding: 0, Buffer: gpu.BufferBinding{Buffer: camera, Size: 256}})

	vertices := &gpu.Buffer{Label: "vertices", Size: 36, GPUAddress: 0x2000}
	indices := &gpu.Buffer{Label: "indices", Size: 12, GPUAddress: 0x3000}
	texture := newTexture(gputypes.TextureFormatRGBA8Unorm, gputypes.TextureDimension2D, 64, 32, 1, 1)
	view := &gpu.TextureView{Label: "backbuffer", Texture: texture, Format: texture.Format}
	pipeline := &gpu.RenderPipeline{
		Label:         "triangle",
		Layout:        layout,
		Topology:      gputypes.PrimitiveTopologyTriangleList,
		VertexBuffers: map[uint32]gpu.VertexBufferInfo{0: {ArrayStride: 12}},
	}

	usage := gpu.NewPassResourceUsageTracker()
	usage.BufferUsedAs(vertices, gputypes.BufferUsageVertex)
	usage.BufferUsedAs(indices, gputypes.BufferUsageIndex)
	usage.TextureUsedAs(texture, gputypes.TextureUsageRenderAttachment)

	cb := finish("frame", []gpu.PassResourceUsage{usage.AcquireResourceUsage()},
		&gpu.BeginRenderPassCmd{
			ColorAttachments: []gpu.RenderPassColorAttachment{{
				View: view, LoadOp: gputypes.LoadOpClear, StoreOp: gputypes.StoreOpStore,
				ClearColor: gputypes.Color{R: 0, G: 0, B: 0, A: 1},
			}},
			Width: 64, Height: 32, SampleCount: 1,
		},
		&gpu.SetRenderPipelineCmd{Pipeline: pipeline},
		&gpu.SetVertexBufferCmd{Slot: 0, Buffer: vertices},
		&gpu.SetIndexBufferCmd{Buffer: indices},
		&gpu.SetBindGroupCmd{Index: 0, Group: group},
		&gpu.DrawIndexedCmd{IndexCount: 3, InstanceCount: 1},
		&gpu.EndRenderPassCmd{},
	)

	before := core.MetricsSnapshotNow()
	rec := NewRecordingCommandList(false)
	cmdbuf := device.NewCommandBuffer(rec)
	require.NoError(t, cmdbuf.RecordCommands(cb))

	viewHeap := descriptors.Heaps[0]
	assert.Equal(t, []string{
		"SetDescriptorHeaps([cbv-srv-uav-0 sampler-1])",
		"ResourceBarrier(3)",
		"BeginRenderPass(1,depth=false,flags=0)",
		"RSSetViewports(0,0,64,32,0,1)",
		"RSSetScissorRects(0,0,64,32)",
		"OMSetBlendFactor(0,0,0,0)",
		"OMSetStencilRef(0)",
		"SetGraphicsRootSignature(layout)",
		"SetPipelineState(triangle)",
		fmt.Sprintf("IASetPrimitiveTopology(%d)", PrimitiveTopologyTriangleList),
		fmt.Sprintf("SetGraphicsRootDescriptorTable(0,%#x)", viewHeap.GPUStart.Ptr),
		"IASetVertexBuffers(0,1)",
		fmt.Sprintf("IASetIndexBuffer(0x3000,12,%d)", DXGIFormatR32Uint),
		"DrawIndexedInstanced(3,1,0,0,0)",
		"EndRenderPass",
		"Close",
	}, rec.Calls)

	require.Len(t, rec.RenderPasses, 1)
	rt := rec.RenderPasses[0].RenderTargets[0]
	assert.Equal(t, RenderPassBeginningAccessTypeClear, rt.BeginningAccess.Type)
	assert.Equal(t, [4]float32{0, 0, 0, 1}, rt.BeginningAccess.Clear.Color)
	assert.Equal(t, DXGIFormatR8G8B8A8Unorm, rt.BeginningAccess.Clear.Format)
	assert.Equal(t, RenderPassEndingAccessTypePreserve, rt.EndingAccess.Type)
	assert.NotZero(t, rt.CPUDescriptor.Ptr)

	require.Len(t, rec.VertexBuffers, 1)
	assert.Equal(t, VertexBufferView{BufferLocation: 0x2000, SizeInBytes: 36, StrideInBytes: 12}, rec.VertexBuffers[0])

	// The staged descriptor of the group was copied to the start of the
	// shader-visible heap.
	require.Len(t, descriptors.Copies, 1)
	assert.True(t, strings.HasPrefix(descriptors.Copies[0], fmt.Sprintf("cbv-srv-uav:1:%#x<-", viewHeap.CPUStart.Ptr)))

	require.Len(t, rec.Barriers, 3)
	assert.Equal(t, ResourceStateCommon, rec.Barriers[2].StateBefore)
	assert.Equal(t, ResourceStateRenderTarget, rec.Barriers[2].StateAfter)

	assert.Equal(t, COMMAND_BUFFER_STATE_RECORDING_ENDED, cmdbuf.State)
	delta := core.MetricsSnapshotNow().Sub(before)
	assert.Equal(t, uint64(1), delta.CommandBuffers)
	assert.Equal(t, uint64(1), delta.BarrierBatches)
	assert.Equal(t, uint64(7), delta.Commands)
}

type msaaFixture struct {
	msaa, resolved, depth *gpu.Texture
	cb                    *gpu.CommandBuffer
}

func newMSAAFixture() msaaFixture {
	msaa := newTexture(gputypes.TextureFormatRGBA8Unorm, gputypes.TextureDimension2D, 16, 16, 1, 1)
	msaa.Label = "msaa"
	msaa.SampleCount = 4
	resolved := newTexture(gputypes.TextureFormatRGBA8Unorm, gputypes.TextureDimension2D, 16, 16, 1, 1)
	resolved.Label = "resolved"
	depth := newTexture(gputypes.TextureFormatDepth24PlusStencil8, gputypes.TextureDimension2D, 16, 16, 1, 1)
	depth.Label = "depth"
	depth.SampleCount = 4

	usage := gpu.NewPassResourceUsageTracker()
	usage.TextureUsedAs(msaa, gputypes.TextureUsageRenderAttachment)
	usage.TextureUsedAs(resolved, gputypes.TextureUsageRenderAttachment)
	usage.TextureUsedAs(depth, gputypes.TextureUsageRenderAttachment)

	cb := finish("msaa", []gpu.PassResourceUsage{usage.AcquireResourceUsage()},
		&gpu.BeginRenderPassCmd{
			ColorAttachments: []gpu.RenderPassColorAttachment{{
				View:          &gpu.TextureView{Texture: msaa, Format: msaa.Format},
				ResolveTarget: &gpu.TextureView{Texture: resolved, Format: resolved.Format},
				LoadOp:        gputypes.LoadOpClear,
				StoreOp:       gputypes.StoreOpDiscard,
				ClearColor:    gputypes.Color{R: 1, A: 1},
			}},
			DepthStencilAttachment: &gpu.RenderPassDepthStencilAttachment{
				View:           &gpu.TextureView{Texture: depth, Format: depth.Format},
				DepthLoadOp:    gputypes.LoadOpClear,
				DepthStoreOp:   gputypes.StoreOpStore,
				ClearDepth:     1,
				StencilLoadOp:  gputypes.LoadOpLoad,
				StencilStoreOp: gputypes.StoreOpStore,
			},
			Width: 16, Height: 16, SampleCount: 4,
		},
		&gpu.SetScissorRectCmd{X: 2, Y: 4, Width: 8, Height: 6},
		&gpu.EndRenderPassCmd{},
	)
	return msaaFixture{msaa: msaa, resolved: resolved, depth: depth, cb: cb}
}

func TestRecordRenderPassNativeResolve(t *testing.T) {
	device, _ := newTestDevice(t, testConfig(), false)
	f := newMSAAFixture()

	rec := NewRecordingCommandList(false)
	require.NoError(t, device.NewCommandBuffer(rec).RecordCommands(f.cb))
	assert.Equal(t, []string{
		"SetDescriptorHeaps([cbv-srv-uav-0 sampler-1])",
		"ResourceBarrier(3)",
		"ResourceBarrier(1)",
		"BeginRenderPass(1,depth=true,flags=0)",
		"RSSetViewports(0,0,16,16,0,1)",
		"RSSetScissorRects(0,0,16,16)",
		"OMSetBlendFactor(0,0,0,0)",
		"OMSetStencilRef(0)",
		"RSSetScissorRects(2,4,10,10)",
		"EndRenderPass",
		"Close",
	}, rec.Calls)

	// The resolve destination is moved to its resolve state up front.
	resolveBarrier := rec.Barriers[3]
	assert.Equal(t, f.resolved, resolveBarrier.Texture)
	assert.Equal(t, ResourceStateResolveDest, resolveBarrier.StateAfter)

	require.Len(t, rec.RenderPasses, 1)
	pass := rec.RenderPasses[0]
	end := pass.RenderTargets[0].EndingAccess
	assert.Equal(t, RenderPassEndingAccessTypeResolve, end.Type)
	assert.Equal(t, f.msaa, end.Resolve.Source)
	assert.Equal(t, f.resolved, end.Resolve.Destination)
	assert.Equal(t, DXGIFormatR8G8B8A8Unorm, end.Resolve.Format)

	require.NotNil(t, pass.DepthStencil)
	assert.Equal(t, RenderPassBeginningAccessTypeClear, pass.DepthStencil.DepthBeginningAccess.Type)
	assert.Equal(t, float32(1), pass.DepthStencil.DepthBeginningAccess.Clear.Depth)
	assert.Equal(t, RenderPassBeginningAccessTypePreserve, pass.DepthStencil.StencilBeginningAccess.Type)
	assert.Equal(t, RenderPassEndingAccessTypePreserve, pass.DepthStencil.StencilEndingAccess.Type)
}

func TestRecordRenderPassEmulated(t *testing.T) {
	config := testConfig()
	config.UseNativeRenderPass = false
	device, descriptors := newTestDevice(t, config, false)
	f := newMSAAFixture()

	rec := NewRecordingCommandList(false)
	require.NoError(t, device.NewCommandBuffer(rec).RecordCommands(f.cb))

	// Heaps 0 and 1 are shader visible, then the render target and depth
	// staging heaps follow.
	rtv, dsv := descriptors.Heaps[2], descriptors.Heaps[3]
	require.Equal(t, DescriptorHeapTypeRTV, rtv.Type)
	require.Equal(t, DescriptorHeapTypeDSV, dsv.Type)

	assert.Equal(t, []string{
		"SetDescriptorHeaps([cbv-srv-uav-0 sampler-1])",
		"ResourceBarrier(3)",
		fmt.Sprintf("ClearRenderTargetView(%#x,1,0,0,1)", rtv.CPUStart.Ptr),
		fmt.Sprintf("ClearDepthStencilView(%#x,flags=%d,1,0)", dsv.CPUStart.Ptr, ClearFlagDepth),
		"OMSetRenderTargets(1,depth=true)",
		"RSSetViewports(0,0,16,16,0,1)",
		"RSSetScissorRects(0,0,16,16)",
		"OMSetBlendFactor(0,0,0,0)",
		"OMSetStencilRef(0)",
		"RSSetScissorRects(2,4,10,10)",
		"ResourceBarrier(1)",
		"ResourceBarrier(1)",
		fmt.Sprintf("ResolveSubresource(resolved[0]<-msaa[0],%d)", DXGIFormatR8G8B8A8Unorm),
		"Close",
	}, rec.Calls)
	assert.Empty(t, rec.RenderPasses)

	n := len(rec.Barriers)
	assert.Equal(t, ResourceStateResolveSource, rec.Barriers[n-2].StateAfter)
	assert.Equal(t, ResourceStateResolveDest, rec.Barriers[n-1].StateAfter)
	assert.Equal(t, gpu.TextureUsageResolveSource, f.msaa.LastUsage())
}

func TestRecordRenderPassWithoutCommandList4(t *testing.T) {
	// Native render passes are configured but the list cannot do them.
	device, _ := newTestDevice(t, testConfig(), false)
	f := newMSAAFixture()

	rec := NewRecordingCommandList(false)
	require.NoError(t, device.NewCommandBuffer(BasicCommandList{rec}).RecordCommands(f.cb))
	assert.Contains(t, rec.Calls, "OMSetRenderTargets(1,depth=true)")
	assert.Equal(t, 1, countCalls(rec.Calls, "ResolveSubresource"))
	assert.Equal(t, 0, countCalls(rec.Calls, "BeginRenderPass"))
}

func TestUpdateConfigAffectsNewCommandBuffers(t *testing.T) {
	device, _ := newTestDevice(t, testConfig(), false)

	rec := NewRecordingCommandList(false)
	require.NoError(t, device.NewCommandBuffer(rec).RecordCommands(newMSAAFixture().cb))
	assert.Equal(t, 1, countCalls(rec.Calls, "BeginRenderPass"))

	config := testConfig()
	config.UseNativeRenderPass = false
	device.UpdateConfig(config)

	rec = NewRecordingCommandList(false)
	require.NoError(t, device.NewCommandBuffer(rec).RecordCommands(newMSAAFixture().cb))
	assert.Equal(t, 0, countCalls(rec.Calls, "BeginRenderPass"))
	assert.Equal(t, 1, countCalls(rec.Calls, "OMSetRenderTargets"))
}

func TestRecordRenderBundles(t *testing.T) {
	device, _ := newTestDevice(t, testConfig(), false)
	texture := newTexture(gputypes.TextureFormatRGBA8Unorm, gputypes.TextureDimension2D, 8, 8, 1, 1)
	view := &gpu.TextureView{Label: "target", Texture: texture, Format: texture.Format}
	pipeline := &gpu.RenderPipeline{
		Label:    "bundled",
		Layout:   newPipelineLayout("empty"),
		Topology: gputypes.PrimitiveTopologyTriangleList,
	}

	bundle := gpu.NewCommandStream()
	bundle.Push(
		&gpu.SetRenderPipelineCmd{Pipeline: pipeline},
		&gpu.PushDebugGroupCmd{Label: "bundle"},
		&gpu.DrawCmd{VertexCount: 6, InstanceCount: 2},
		&gpu.PopDebugGroupCmd{},
	)

	cb := finish("bundles", []gpu.PassResourceUsage{{}},
		&gpu.BeginRenderPassCmd{
			ColorAttachments: []gpu.RenderPassColorAttachment{{View: view, LoadOp: gputypes.LoadOpLoad, StoreOp: gputypes.StoreOpStore}},
			Width:            8, Height: 8,
		},
		&gpu.SetStencilReferenceCmd{Reference: 7},
		&gpu.SetBlendConstantCmd{Color: gputypes.Color{R: 0.5, G: 0.25, B: 1, A: 1}},
		&gpu.ExecuteBundlesCmd{Bundles: []*gpu.RenderBundle{{Label: "b", Commands: bundle.Finish()}}},
		&gpu.DrawCmd{VertexCount: 3, InstanceCount: 1},
		&gpu.EndRenderPassCmd{},
	)

	rec := NewRecordingCommandList(false)
	require.NoError(t, device.NewCommandBuffer(rec).RecordCommands(cb))
	assert.Equal(t, []string{
		"OMSetStencilRef(7)",
		"OMSetBlendFactor(0.5,0.25,1,1)",
		"SetGraphicsRootSignature(empty)",
		"SetPipelineState(bundled)",
		fmt.Sprintf("IASetPrimitiveTopology(%d)", PrimitiveTopologyTriangleList),
		"BeginEvent(bundle)",
		"DrawInstanced(6,2,0,0)",
		"EndEvent",
		"DrawInstanced(3,1,0,0)",
		"EndRenderPass",
		"Close",
	}, rec.Calls[len(rec.Calls)-11:])
}

func TestRecordDebugMarkersWithoutPIX(t *testing.T) {
	device, _ := newTestDevice(t, testConfig(), false)
	cb := finish("markers", []gpu.PassResourceUsage{{}},
		&gpu.BeginComputePassCmd{},
		&gpu.PushDebugGroupCmd{Label: "simulate"},
		&gpu.InsertDebugMarkerCmd{Label: "step"},
		&gpu.PopDebugGroupCmd{},
		&gpu.EndComputePassCmd{},
	)

	rec := NewRecordingCommandList(false)
	require.NoError(t, device.NewCommandBuffer(BasicCommandList{rec}).RecordCommands(cb))
	assert.Equal(t, []string{"SetDescriptorHeaps([cbv-srv-uav-0 sampler-1])", "Close"}, rec.Calls)
}

// recordDispatches records two compute passes binding three single-view
// groups each, and returns the calls.
func recordDispatches(t *testing.T, viewHeapSize uint32) (*RecordingDevice, *RecordingCommandList) {
	t.Helper()
	config := testConfig()
	config.ViewHeapSize = viewHeapSize
	device, descriptors := newTestDevice(t, config, false)

	bgl := uniformBindGroupLayout()
	layout := newPipelineLayout("layout", bgl, bgl, bgl)
	pipeline := &gpu.ComputePipeline{Label: "simulate", Layout: layout}
	buffer := &gpu.Buffer{Label: "params", Size: 256, GPUAddress: 0x1000}

	pass := func(prefix string, x uint32) []gpu.Command {
		cmds := []gpu.Command{&gpu.BeginComputePassCmd{}, &gpu.SetComputePipelineCmd{Pipeline: pipeline}}
		for i := uint32(0); i < 3; i++ {
			group := newBindGroup(t, device, fmt.Sprintf("%s%d", prefix, i), bgl,
				gpu.BindGroupEntry{Binding: 0, Buffer: gpu.BufferBinding{Buffer: buffer, Size: 256}})
			cmds = append(cmds, &gpu.SetBindGroupCmd{Index: i, Group: group})
		}
		return append(cmds, &gpu.DispatchCmd{X: x, Y: 1, Z: 1}, &gpu.EndComputePassCmd{})
	}

	cb := finish("dispatches", []gpu.PassResourceUsage{{}, {}}, append(pass("a", 1), pass("b", 2)...)...)
	rec := NewRecordingCommandList(false)
	require.NoError(t, device.NewCommandBuffer(rec).RecordCommands(cb))
	return descriptors, rec
}

func tableCalls(base uint64, increment uint32) []string {
	calls := make([]string, 3)
	for i := range calls {
		calls[i] = fmt.Sprintf("SetComputeRootDescriptorTable(%d,%#x)", i, base+uint64(i)*uint64(increment))
	}
	return calls
}

// resolveTables maps every compute descriptor table in calls back to the
// staging descriptor that was copied into it, as heap label and slot. Each
// table must lie in the view heap bound on the list at that point.
func resolveTables(t *testing.T, descriptors *RecordingDevice, calls []string) []string {
	t.Helper()
	heaps := map[string]*DescriptorHeap{}
	for _, heap := range descriptors.Heaps {
		heaps[heap.Label] = heap
	}
	staged := map[uintptr]uintptr{}
	for _, c := range descriptors.Copies {
		parts := strings.SplitN(c, ":", 3)
		require.Len(t, parts, 3, c)
		if parts[0] != DescriptorHeapTypeCbvSrvUav.String() {
			continue
		}
		count, err := strconv.ParseUint(parts[1], 10, 32)
		require.NoError(t, err)
		dst, src, ok := strings.Cut(parts[2], "<-")
		require.True(t, ok, c)
		dstPtr, err := strconv.ParseUint(dst, 0, 64)
		require.NoError(t, err)
		srcPtr, err := strconv.ParseUint(src, 0, 64)
		require.NoError(t, err)
		for i := uint64(0); i < count; i++ {
			staged[uintptr(dstPtr+i*uint64(descriptors.IncrementSize))] = uintptr(srcPtr + i*uint64(descriptors.IncrementSize))
		}
	}

	var bound *DescriptorHeap
	slot := func(ptr uintptr) string {
		for _, heap := range descriptors.Heaps {
			offset := ptr - heap.CPUStart.Ptr
			if ptr >= heap.CPUStart.Ptr && offset < uintptr(heap.Capacity)*uintptr(descriptors.IncrementSize) {
				return fmt.Sprintf("%s[%d]", heap.Label, offset/uintptr(descriptors.IncrementSize))
			}
		}
		return fmt.Sprintf("%#x", ptr)
	}
	var sources []string
	for _, call := range calls {
		if rest, ok := strings.CutPrefix(call, "SetDescriptorHeaps(["); ok {
			bound = heaps[strings.Fields(strings.TrimSuffix(rest, "])"))[0]]
			require.NotNil(t, bound, call)
			continue
		}
		rest, ok := strings.CutPrefix(call, "SetComputeRootDescriptorTable(")
		if !ok {
			continue
		}
		_, addr, _ := strings.Cut(strings.TrimSuffix(rest, ")"), ",")
		ptr, err := strconv.ParseUint(addr, 0, 64)
		require.NoError(t, err)
		require.NotNil(t, bound, "table bound before any heap")
		offset := ptr - bound.GPUStart.Ptr
		require.True(t, ptr >= bound.GPUStart.Ptr && offset < uint64(bound.Capacity)*uint64(descriptors.IncrementSize),
			"%s outside %s", call, bound.Label)
		src, ok := staged[bound.CPUStart.Ptr+uintptr(offset)]
		require.True(t, ok, "%s was never written", call)
		sources = append(sources, slot(src))
	}
	return sources
}

func TestBindGroupHeapRotation(t *testing.T) {
	descriptors, baseline := recordDispatches(t, 4096)
	viewHeap := descriptors.Heaps[0].GPUStart.Ptr
	increment := descriptors.IncrementSize

	assert.Equal(t, 1, countCalls(baseline.Calls, "SetDescriptorHeaps"))
	var want []string
	want = append(want, "SetDescriptorHeaps([cbv-srv-uav-0 sampler-1])", "SetComputeRootSignature(layout)", "SetPipelineState(simulate)")
	want = append(want, tableCalls(viewHeap, increment)...)
	want = append(want, "Dispatch(1,1,1)", "SetComputeRootSignature(layout)", "SetPipelineState(simulate)")
	want = append(want, tableCalls(viewHeap+3*uint64(increment), increment)...)
	want = append(want, "Dispatch(2,1,1)", "Close")
	assert.Equal(t, want, baseline.Calls)
	staged := resolveTables(t, descriptors, baseline.Calls)
	require.Len(t, staged, 6)

	// The first pass fills three views, the second runs out at group
	// heapSize-3.
	tests := []struct {
		heapSize  uint32
		rotations uint64
		copies    int
	}{
		{heapSize: 3, rotations: 1, copies: 6},
		{heapSize: 4, rotations: 1, copies: 7},
		{heapSize: 5, rotations: 1, copies: 8},
		{heapSize: 6, rotations: 0, copies: 6},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("heap size %d", tt.heapSize), func(t *testing.T) {
			before := core.MetricsSnapshotNow()
			descriptors, rotated := recordDispatches(t, tt.heapSize)
			assert.Equal(t, tt.rotations, core.MetricsSnapshotNow().Sub(before).HeapRotations)
			assert.Equal(t, int(tt.rotations)+1, countCalls(rotated.Calls, "SetDescriptorHeaps"))
			assert.Equal(t, 6, countCalls(rotated.Calls, "SetComputeRootDescriptorTable"))
			assert.Len(t, descriptors.Copies, tt.copies)
			assert.Equal(t, staged, resolveTables(t, descriptors, rotated.Calls))
		})
	}

	// With room for four views the second pass is copied again into a
	// fresh heap.
	descriptors, rotated := recordDispatches(t, 4)
	require.Len(t, descriptors.Heaps, 4)
	fresh := descriptors.Heaps[3]
	assert.Equal(t, "cbv-srv-uav-3", fresh.Label)
	want = want[:0]
	want = append(want, "SetDescriptorHeaps([cbv-srv-uav-0 sampler-1])", "SetComputeRootSignature(layout)", "SetPipelineState(simulate)")
	want = append(want, tableCalls(descriptors.Heaps[0].GPUStart.Ptr, increment)...)
	want = append(want, "Dispatch(1,1,1)", "SetComputeRootSignature(layout)", "SetPipelineState(simulate)")
	want = append(want, "SetDescriptorHeaps([cbv-srv-uav-3 sampler-1])")
	want = append(want, tableCalls(fresh.GPUStart.Ptr, increment)...)
	want = append(want, "Dispatch(2,1,1)", "Close")
	assert.Equal(t, want, rotated.Calls)
}

func TestBindGroupHeapSwitchedByAnotherCommandBuffer(t *testing.T) {
	config := testConfig()
	config.ViewHeapSize = 3
	device, descriptors := newTestDevice(t, config, false)

	bgl := uniformBindGroupLayout()
	buffer := &gpu.Buffer{Label: "params", Size: 256, GPUAddress: 0x1000}
	bind := func(tracker *BindGroupStateTracker, prefix string, groups int) {
		layouts := make([]*gpu.BindGroupLayout, groups)
		for i := range layouts {
			layouts[i] = bgl
		}
		tracker.OnSetPipeline(&gpu.ComputePipeline{Label: prefix, Layout: newPipelineLayout(prefix, layouts...)})
		for i := range groups {
			group := newBindGroup(t, device, fmt.Sprintf("%s%d", prefix, i), bgl,
				gpu.BindGroupEntry{Binding: 0, Buffer: gpu.BufferBinding{Buffer: buffer, Size: 256}})
			tracker.OnSetBindGroup(uint32(i), group, nil)
		}
	}

	listA, listB := NewRecordingCommandList(false), NewRecordingCommandList(false)
	a, b := NewBindGroupStateTracker(device), NewBindGroupStateTracker(device)
	a.SetDescriptorHeaps(listA)
	b.SetDescriptorHeaps(listB)

	// A fills the first heap, then switches to a fresh one holding one view.
	bind(a, "a", 3)
	require.NoError(t, a.Apply(listA, gpu.PassCompute))
	bind(a, "c", 1)
	require.NoError(t, a.Apply(listA, gpu.PassCompute))
	require.Len(t, descriptors.Heaps, 4)
	fresh := descriptors.Heaps[3]
	assert.Equal(t, "cbv-srv-uav-3", fresh.Label)

	// B still has the first heap bound and must follow the switch.
	bind(b, "b", 2)
	require.NoError(t, b.Apply(listB, gpu.PassCompute))
	increment := uint64(descriptors.IncrementSize)
	assert.Equal(t, []string{
		"SetDescriptorHeaps([cbv-srv-uav-0 sampler-1])",
		"SetDescriptorHeaps([cbv-srv-uav-3 sampler-1])",
		fmt.Sprintf("SetComputeRootDescriptorTable(0,%#x)", fresh.GPUStart.Ptr+increment),
		fmt.Sprintf("SetComputeRootDescriptorTable(1,%#x)", fresh.GPUStart.Ptr+2*increment),
	}, listB.Calls)
	assert.Len(t, resolveTables(t, descriptors, listB.Calls), 2)
	assert.Len(t, resolveTables(t, descriptors, listA.Calls), 4)

	// A notices nothing: the heap it bound is still current.
	bind(a, "d", 0)
	require.NoError(t, a.Apply(listA, gpu.PassCompute))
	assert.Equal(t, 2, countCalls(listA.Calls, "SetDescriptorHeaps"))
}

func TestRetiredHeapWaitsForOpenRecordings(t *testing.T) {
	config := testConfig()
	config.ViewHeapSize = 1
	device, _ := newTestDevice(t, config, false)
	views := device.ViewAllocator()
	first := views.ShaderVisibleHeap()

	b := device.BeginRecording()
	a := device.BeginRecording()
	require.NoError(t, views.AllocateAndSwitchShaderVisibleHeap())
	device.EndRecording(a, true)

	// B may still have the first heap bound.
	assert.Equal(t, uint64(0), device.CompletedSerial())
	require.NoError(t, views.AllocateAndSwitchShaderVisibleHeap())
	assert.NotSame(t, first, views.ShaderVisibleHeap())

	device.EndRecording(b, true)
	assert.Equal(t, device.PendingSerial()-1, device.CompletedSerial())
	require.NoError(t, views.AllocateAndSwitchShaderVisibleHeap())
	assert.Same(t, first, views.ShaderVisibleHeap())

	// A recording that fails takes no serial.
	pending := device.PendingSerial()
	device.EndRecording(device.BeginRecording(), false)
	assert.Equal(t, pending, device.PendingSerial())
}

func TestBindGroupHeapCreationFailure(t *testing.T) {
	config := testConfig()
	config.ViewHeapSize = 2
	device, descriptors := newTestDevice(t, config, false)

	bgl := uniformBindGroupLayout()
	layout := newPipelineLayout("layout", bgl, bgl)
	buffer := &gpu.Buffer{Label: "params", Size: 256}
	entry := gpu.BindGroupEntry{Binding: 0, Buffer: gpu.BufferBinding{Buffer: buffer, Size: 256}}

	// The second dispatch needs a fresh heap.
	cb := finish("oom", []gpu.PassResourceUsage{{}},
		&gpu.BeginComputePassCmd{},
		&gpu.SetComputePipelineCmd{Pipeline: &gpu.ComputePipeline{Label: "simulate", Layout: layout}},
		&gpu.SetBindGroupCmd{Index: 0, Group: newBindGroup(t, device, "g0", bgl, entry)},
		&gpu.SetBindGroupCmd{Index: 1, Group: newBindGroup(t, device, "g1", bgl, entry)},
		&gpu.DispatchCmd{X: 1, Y: 1, Z: 1},
		&gpu.SetBindGroupCmd{Index: 0, Group: newBindGroup(t, device, "g2", bgl, entry)},
		&gpu.SetBindGroupCmd{Index: 1, Group: newBindGroup(t, device, "g3", bgl, entry)},
		&gpu.DispatchCmd{X: 1, Y: 1, Z: 1},
		&gpu.EndComputePassCmd{},
	)

	descriptors.FailHeapCreation = errors.New("out of memory")
	cmdbuf := device.NewCommandBuffer(NewRecordingCommandList(false))
	err := cmdbuf.RecordCommands(cb)
	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrDeviceLost)
	assert.Equal(t, COMMAND_BUFFER_STATE_INVALID, cmdbuf.State)
}

func dynamicFixture(t *testing.T, device *Device) (*gpu.BindGroup, *gpu.PipelineLayout, *gpu.Buffer) {
	t.Helper()
	bgl := gpu.NewBindGroupLayout("dynamic", []gpu.BindingInfo{
		{Binding: 3, Type: gpu.BindingTypeSampler, Visibility: gputypes.ShaderStageCompute},
		{Binding: 2, Type: gpu.BindingTypeSampledTexture, Visibility: gputypes.ShaderStageCompute},
		{Binding: 1, Type: gpu.BindingTypeStorageBuffer, Visibility: gputypes.ShaderStageCompute, HasDynamicOffset: true},
		{Binding: 0, Type: gpu.BindingTypeUniformBuffer, Visibility: gputypes.ShaderStageCompute, HasDynamicOffset: true},
	})
	uniforms := &gpu.Buffer{Label: "uniforms", Size: 4096, GPUAddress: 0x4000}
	particles := &gpu.Buffer{Label: "particles", Size: 4096, GPUAddress: 0x8000}
	texture := newTexture(gputypes.TextureFormatRGBA8Unorm, gputypes.TextureDimension2D, 4, 4, 1, 1)

	group := newBindGroup(t, device, "dynamic", bgl,
		gpu.BindGroupEntry{Binding: 0, Buffer: gpu.BufferBinding{Buffer: uniforms, Size: 256}},
		gpu.BindGroupEntry{Binding: 1, Buffer: gpu.BufferBinding{Buffer: particles, Offset: 64, Size: 1024}},
		gpu.BindGroupEntry{Binding: 2, TextureView: &gpu.TextureView{Texture: texture, Format: texture.Format}},
		gpu.BindGroupEntry{Binding: 3, Sampler: &gpu.Sampler{Label: "linear"}},
	)
	return group, newPipelineLayout("dynamic", bgl), particles
}

func TestBindGroupLayoutLargerThanHeap(t *testing.T) {
	config := testConfig()
	config.ViewHeapSize = 1
	device, _ := newTestDevice(t, config, false)

	bgl := uniformBindGroupLayout()
	entry := gpu.BindGroupEntry{Binding: 0, Buffer: gpu.BufferBinding{Buffer: &gpu.Buffer{Label: "params", Size: 256}, Size: 256}}
	tracker := NewBindGroupStateTracker(device)
	list := NewRecordingCommandList(false)
	tracker.SetDescriptorHeaps(list)
	tracker.OnSetPipeline(&gpu.ComputePipeline{Label: "simulate", Layout: newPipelineLayout("layout", bgl, bgl)})
	tracker.OnSetBindGroup(0, newBindGroup(t, device, "g0", bgl, entry), nil)
	tracker.OnSetBindGroup(1, newBindGroup(t, device, "g1", bgl, entry), nil)
	assert.Panics(t, func() { _ = tracker.Apply(list, gpu.PassCompute) })
}

func TestBindGroupDynamicRootViews(t *testing.T) {
	device, descriptors := newTestDevice(t, testConfig(), false)
	group, layout, particles := dynamicFixture(t, device)
	pipeline := &gpu.ComputePipeline{Label: "simulate", Layout: layout}

	cb := finish("dynamic", []gpu.PassResourceUsage{{}},
		&gpu.BeginComputePassCmd{},
		&gpu.SetComputePipelineCmd{Pipeline: pipeline},
		&gpu.SetBindGroupCmd{Index: 0, Group: group, DynamicOffsets: []uint32{256, 512}},
		&gpu.DispatchCmd{X: 1, Y: 1, Z: 1},
		&gpu.SetBindGroupCmd{Index: 0, Group: group, DynamicOffsets: []uint32{0, 0}},
		&gpu.DispatchCmd{X: 2, Y: 1, Z: 1},
		&gpu.EndComputePassCmd{},
	)

	rec := NewRecordingCommandList(false)
	require.NoError(t, device.NewCommandBuffer(rec).RecordCommands(cb))
	assert.Equal(t, []string{
		"SetDescriptorHeaps([cbv-srv-uav-0 sampler-1])",
		"SetComputeRootSignature(dynamic)",
		"SetPipelineState(simulate)",
		"SetComputeRootConstantBufferView(2,0x4100)",
		"SetComputeRootUnorderedAccessView(3,0x8240)",
		fmt.Sprintf("SetComputeRootDescriptorTable(0,%#x)", descriptors.Heaps[0].GPUStart.Ptr),
		fmt.Sprintf("SetComputeRootDescriptorTable(1,%#x)", descriptors.Heaps[1].GPUStart.Ptr),
		"ResourceBarrier(1)",
		"Dispatch(1,1,1)",
		// Only the offsets moved: root views again, tables stay.
		"SetComputeRootConstantBufferView(2,0x4000)",
		"SetComputeRootUnorderedAccessView(3,0x8040)",
		"ResourceBarrier(1)",
		"Dispatch(2,1,1)",
		"Close",
	}, rec.Calls)

	require.Len(t, rec.Barriers, 2)
	assert.Equal(t, ResourceBarrierTypeTransition, rec.Barriers[0].Type)
	assert.Equal(t, ResourceStateUnorderedAccess, rec.Barriers[0].StateAfter)
	assert.Equal(t, ResourceBarrier{Type: ResourceBarrierTypeUAV, Buffer: particles}, rec.Barriers[1])
}

func TestBindGroupDynamicRootViewsUnsupported(t *testing.T) {
	device, _ := newTestDevice(t, testConfig(), false)
	group, layout, _ := dynamicFixture(t, device)

	cb := finish("dynamic", []gpu.PassResourceUsage{{}},
		&gpu.BeginComputePassCmd{},
		&gpu.SetComputePipelineCmd{Pipeline: &gpu.ComputePipeline{Label: "simulate", Layout: layout}},
		&gpu.SetBindGroupCmd{Index: 0, Group: group, DynamicOffsets: []uint32{0, 0}},
		&gpu.DispatchCmd{X: 1, Y: 1, Z: 1},
		&gpu.EndComputePassCmd{},
	)

	rec := NewRecordingCommandList(false)
	cmdbuf := device.NewCommandBuffer(BasicCommandList{rec})
	err := cmdbuf.RecordCommands(cb)
	require.Error(t, err)
	assert.True(t, core.IsValidationError(err))
	assert.Contains(t, err.Error(), "Invalid Call to SetGraphicsRootConstantBufferView")
	assert.NotContains(t, rec.Calls, "Dispatch(1,1,1)")
	assert.Equal(t, COMMAND_BUFFER_STATE_INVALID, cmdbuf.State)
}

func TestRecordDispatchIndirect(t *testing.T) {
	device, _ := newTestDevice(t, testConfig(), false)
	args := &gpu.Buffer{Label: "args", Size: 64}
	usage := gpu.NewPassResourceUsageTracker()
	usage.BufferUsedAs(args, gputypes.BufferUsageIndirect)

	cb := finish("indirect", []gpu.PassResourceUsage{usage.AcquireResourceUsage()},
		&gpu.BeginComputePassCmd{},
		&gpu.SetComputePipelineCmd{Pipeline: &gpu.ComputePipeline{Label: "cull", Layout: newPipelineLayout("empty")}},
		&gpu.DispatchIndirectCmd{IndirectBuffer: args, IndirectOffset: 16},
		&gpu.EndComputePassCmd{},
	)

	rec := NewRecordingCommandList(false)
	require.NoError(t, device.NewCommandBuffer(rec).RecordCommands(cb))
	assert.Equal(t, []string{
		"SetDescriptorHeaps([cbv-srv-uav-0 sampler-1])",
		"ResourceBarrier(1)",
		"SetComputeRootSignature(empty)",
		"SetPipelineState(cull)",
		"ExecuteIndirect(dispatch,args,16)",
		"Close",
	}, rec.Calls)
	assert.Equal(t, ResourceStateIndirectArgument, rec.Barriers[0].StateAfter)
}

func TestRecordCopies(t *testing.T) {
	device, _ := newTestDevice(t, testConfig(), false)
	src := &gpu.Buffer{Label: "staging", Size: 1 << 16}
	dst := &gpu.Buffer{Label: "dst", Size: 4096}
	texture := newTexture(gputypes.TextureFormatRGBA8Unorm, gputypes.TextureDimension2D, 16, 16, 2, 1)

	cb := finish("copies", nil,
		&gpu.CopyBufferToBufferCmd{Source: src, Destination: dst, Size: 128, DestinationOffset: 64},
		&gpu.CopyBufferToTextureCmd{
			Source:      gpu.BufferCopy{Buffer: src, BytesPerRow: 256, RowsPerImage: 16},
			Destination: gpu.TextureCopy{Texture: texture},
			CopySize:    gputypes.Extent3D{Width: 16, Height: 16, DepthOrArrayLayers: 2},
		},
	)

	rec := NewRecordingCommandList(false)
	require.NoError(t, device.NewCommandBuffer(rec).RecordCommands(cb))
	assert.Equal(t, []string{
		"SetDescriptorHeaps([cbv-srv-uav-0 sampler-1])",
		"ResourceBarrier(1)",
		"ResourceBarrier(1)",
		"CopyBufferRegion(dst+64<-staging+0,128)",
		"ResourceBarrier(1)",
		"CopyTextureRegion(texture[0]@0,0,0<-staging+0)",
		"CopyTextureRegion(texture[1]@0,0,0<-staging+4096)",
		"Close",
	}, rec.Calls)
	assert.Equal(t, gputypes.TextureUsageCopyDst, texture.LastUsage())

	require.Len(t, rec.TextureCopies, 2)
	footprint := rec.TextureCopies[1].Src.PlacedFootprint.Footprint
	assert.Equal(t, uint32(256), footprint.RowPitch)
	assert.Equal(t, uint32(16), footprint.Width)
	assert.Equal(t, Box{Right: 16, Bottom: 16, Back: 1}, rec.TextureCopies[1].SrcBox)
}

func TestRecordCopyTextureToBufferSplit(t *testing.T) {
	device, _ := newTestDevice(t, testConfig(), false)
	texture := newTexture(gputypes.TextureFormatRGBA8Unorm, gputypes.TextureDimension2D, 64, 4, 1, 1)
	readback := &gpu.Buffer{Label: "readback", Size: 4096}

	cb := finish("readback", nil,
		&gpu.CopyTextureToBufferCmd{
			Source:      gpu.TextureCopy{Texture: texture},
			Destination: gpu.BufferCopy{Buffer: readback, Offset: 512 + 192, BytesPerRow: 256, RowsPerImage: 4},
			CopySize:    gputypes.Extent3D{Width: 32, Height: 4, DepthOrArrayLayers: 1},
		},
	)

	rec := NewRecordingCommandList(false)
	require.NoError(t, device.NewCommandBuffer(rec).RecordCommands(cb))
	assert.Equal(t, []string{
		"CopyTextureRegion(readback+512@48,0,0<-texture[0])",
		"CopyTextureRegion(readback+512@0,1,0<-texture[0])",
	}, rec.Calls[3:5])
	assert.Equal(t, Box{Right: 16, Bottom: 4, Back: 1}, rec.TextureCopies[0].SrcBox)
	assert.Equal(t, Box{Left: 16, Right: 32, Bottom: 4, Back: 1}, rec.TextureCopies[1].SrcBox)
}

func TestRecordCopyTextureToTexture(t *testing.T) {
	device, _ := newTestDevice(t, testConfig(), false)
	a := newTexture(gputypes.TextureFormatRGBA8Unorm, gputypes.TextureDimension2D, 32, 32, 3, 1)
	a.Label = "a"
	b := newTexture(gputypes.TextureFormatRGBA8Unorm, gputypes.TextureDimension2D, 32, 32, 3, 1)
	b.Label = "b"

	cb := finish("t2t", nil,
		&gpu.CopyTextureToTextureCmd{
			Source:      gpu.TextureCopy{Texture: a},
			Destination: gpu.TextureCopy{Texture: b},
			CopySize:    gputypes.Extent3D{Width: 32, Height: 32, DepthOrArrayLayers: 3},
		},
		&gpu.CopyTextureToTextureCmd{
			Source:      gpu.TextureCopy{Texture: a, ArrayLayer: 1},
			Destination: gpu.TextureCopy{Texture: b, Origin: gputypes.Origin3D{X: 8}},
			CopySize:    gputypes.Extent3D{Width: 8, Height: 8, DepthOrArrayLayers: 2},
		},
	)

	rec := NewRecordingCommandList(false)
	require.NoError(t, device.NewCommandBuffer(rec).RecordCommands(cb))
	assert.Equal(t, []string{
		"SetDescriptorHeaps([cbv-srv-uav-0 sampler-1])",
		"ResourceBarrier(1)",
		"ResourceBarrier(1)",
		"CopyResource(b<-a)",
		"ResourceBarrier(1)",
		"CopyTextureRegion(b[0]@8,0,0<-a[1])",
		"CopyTextureRegion(b[1]@8,0,0<-a[2])",
		"Close",
	}, rec.Calls)
}

func TestRecordCloseFailure(t *testing.T) {
	device, _ := newTestDevice(t, testConfig(), false)
	rec := NewRecordingCommandList(false)
	rec.CloseError = errors.New("device removed")

	cmdbuf := device.NewCommandBuffer(rec)
	err := cmdbuf.RecordCommands(finish("empty", nil))
	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrDeviceLost)
	assert.Equal(t, COMMAND_BUFFER_STATE_INVALID, cmdbuf.State)

	// A reset command buffer records again.
	rec = NewRecordingCommandList(false)
	cmdbuf.Reset(rec)
	require.NoError(t, cmdbuf.RecordCommands(finish("empty", nil)))
	assert.Equal(t, COMMAND_BUFFER_STATE_RECORDING_ENDED, cmdbuf.State)
	cmdbuf.UpdateSubmitted()
	assert.Equal(t, COMMAND_BUFFER_STATE_SUBMITTED, cmdbuf.State)
}

func TestRecordTraceRays(t *testing.T) {
	device, _ := newTestDevice(t, testConfig(), true)
	sbt := &gpu.ShaderBindingTable{Label: "sbt", Buffer: &gpu.Buffer{Label: "sbt", GPUAddress: 0x10000}, GroupStride: 64}
	pipeline := &gpu.RayTracingPipeline{Label: "rt", Layout: newPipelineLayout("empty"), ShaderBindingTable: sbt}

	cb := finish("trace", []gpu.PassResourceUsage{{}},
		&gpu.BeginRayTracingPassCmd{},
		&gpu.SetRayTracingPipelineCmd{Pipeline: pipeline},
		&gpu.TraceRaysCmd{RayGenerationOffset: 0, RayHitOffset: 1, RayMissOffset: 2, Width: 4, Height: 4, Depth: 1},
		&gpu.EndRayTracingPassCmd{},
	)

	rec := NewRecordingCommandList(true)
	require.NoError(t, device.NewCommandBuffer(rec).RecordCommands(cb))
	assert.Equal(t, []string{
		"SetDescriptorHeaps([cbv-srv-uav-0 sampler-1])",
		"SetComputeRootSignature(empty)",
		"SetPipelineState1(rt)",
		"DispatchRays(raygen=0x10000,miss=0x10080,hit=0x10040,4x4x1)",
		"Close",
	}, rec.Calls)
	require.Len(t, rec.Dispatches, 1)
	assert.Equal(t, GPUVirtualAddressRangeAndStride{StartAddress: 0x10080, SizeInBytes: 64, StrideInBytes: 64}, rec.Dispatches[0].MissShaderTable)
	assert.Equal(t, GPUVirtualAddressRange{StartAddress: 0x10000, SizeInBytes: 64}, rec.Dispatches[0].RayGenerationShaderRecord)

	// Without driver support or without CommandList4 the call is rejected.
	for _, list := range []CommandList{NewRecordingCommandList(false), BasicCommandList{NewRecordingCommandList(true)}} {
		cmdbuf := device.NewCommandBuffer(list)
		err := cmdbuf.RecordCommands(cb)
		require.Error(t, err)
		assert.True(t, core.IsValidationError(err))
		assert.Contains(t, err.Error(), "Invalid Call to SetPipelineState1")
		assert.Equal(t, COMMAND_BUFFER_STATE_INVALID, cmdbuf.State)
	}
}

func newTestContainers(t *testing.T, device AccelerationDevice, alloc *testAllocator) (*gpu.AccelerationContainer, *gpu.AccelerationContainer) {
	t.Helper()
	blas, err := CreateAccelerationContainer(device, &gpu.AccelerationContainerDescriptor{
		Label: "blas",
		Level: gpu.ContainerLevelBottom,
		Flags: gpu.ContainerFlagAllowUpdate,
		Geometries: []gpu.AccelerationGeometry{{
			Type:         gpu.GeometryTypeTriangles,
			Flags:        gpu.GeometryFlagOpaque,
			VertexBuffer: &gpu.Buffer{Label: "vertices", GPUAddress: 0x40000},
			VertexOffset: 12,
			VertexCount:  3,
			VertexStride: 12,
			VertexFormat: gputypes.VertexFormatFloat32x3,
			IndexFormat:  gpu.IndexFormatNone,
		}},
	}, alloc)
	require.NoError(t, err)

	tlas, err := CreateAccelerationContainer(device, &gpu.AccelerationContainerDescriptor{
		Label: "tlas",
		Level: gpu.ContainerLevelTop,
		Instances: []gpu.AccelerationInstance{{
			GeometryContainer: blas,
			Transform:         math.NewTransform3DIdentity(),
			Mask:              0xFF,
		}},
	}, alloc)
	require.NoError(t, err)
	return blas, tlas
}

func TestCreateAccelerationContainer(t *testing.T) {
	alloc := &testAllocator{}
	blas, tlas := newTestContainers(t, NewRecordingDevice(true), alloc)

	inputs := ToBackendContainer(blas).Inputs
	assert.Equal(t, AccelerationStructureTypeBottomLevel, inputs.Type)
	assert.Equal(t, AccelerationStructureBuildFlagAllowUpdate, inputs.Flags)
	require.Len(t, inputs.GeometryDescs, 1)
	triangles := inputs.GeometryDescs[0].Triangles
	assert.Equal(t, DXGIFormatUnknown, triangles.IndexFormat)
	assert.Equal(t, GPUVirtualAddressAndStride{StartAddress: 0x4000c, StrideInBytes: 12}, triangles.VertexBuffer)
	assert.Equal(t, RayTracingGeometryFlagOpaque, inputs.GeometryDescs[0].Flags)
	assert.Equal(t, gpu.MemoryRequirements{Result: 256, Build: 128, Update: 64}, blas.Requirements())

	// Scratch of the top level is summed with the bottom level it references.
	assert.Equal(t, gpu.MemoryRequirements{Result: 256, Build: 256, Update: 64}, tlas.Requirements())

	native := ToBackendContainer(tlas)
	assert.Equal(t, AccelerationStructureTypeTopLevel, native.Inputs.Type)
	assert.Equal(t, uint32(1), native.Inputs.NumDescs)
	require.True(t, tlas.InstanceBuffer.IsAllocated())
	assert.Equal(t, tlas.InstanceBuffer.Address, native.Inputs.InstanceDescs)

	records := alloc.written[tlas.InstanceBuffer.Buffer]
	require.Len(t, records, gpu.InstanceRecordSize)
	assert.Equal(t, byte(0xFF), records[51])
	assert.Equal(t, blas.Scratch().Result.Address, binary.LittleEndian.Uint64(records[56:]))
}

func TestCreateAccelerationContainerWithoutRayTracing(t *testing.T) {
	_, err := CreateAccelerationContainer(NewRecordingDevice(false),
		&gpu.AccelerationContainerDescriptor{Level: gpu.ContainerLevelBottom}, &testAllocator{})
	require.Error(t, err)
	assert.True(t, core.IsValidationError(err))
	assert.Contains(t, err.Error(), "Invalid Call to GetRaytracingAccelerationStructurePrebuildInfo")
}

func TestRecordAccelerationBuilds(t *testing.T) {
	device, _ := newTestDevice(t, testConfig(), true)
	alloc := &testAllocator{}
	blas, tlas := newTestContainers(t, NewRecordingDevice(true), alloc)
	scratch := blas.Scratch()
	before := core.MetricsSnapshotNow()

	rec := NewRecordingCommandList(true)
	require.NoError(t, device.NewCommandBuffer(rec).RecordCommands(
		finish("build-blas", nil, &gpu.BuildRayTracingAccelerationContainerCmd{Container: blas})))
	assert.Equal(t, []string{
		"SetDescriptorHeaps([cbv-srv-uav-0 sampler-1])",
		fmt.Sprintf("BuildRaytracingAccelerationStructure(dst=%#x,src=0x0,scratch=%#x,flags=0x1)", scratch.Result.Address, scratch.Build.Address),
		"ResourceBarrier(1)",
		"Close",
	}, rec.Calls)
	assert.Equal(t, ResourceBarrier{Type: ResourceBarrierTypeUAV, Buffer: scratch.Result.Buffer}, rec.Barriers[0])
	assert.True(t, blas.IsBuilt())
	assert.False(t, blas.IsUpdated())

	rec = NewRecordingCommandList(true)
	require.NoError(t, device.NewCommandBuffer(rec).RecordCommands(
		finish("build-tlas", nil, &gpu.BuildRayTracingAccelerationContainerCmd{Container: tlas})))
	require.Len(t, rec.Builds, 1)
	assert.Equal(t, tlas.InstanceBuffer.Address, rec.Builds[0].Inputs.InstanceDescs)
	assert.True(t, tlas.IsBuilt())

	rec = NewRecordingCommandList(true)
	require.NoError(t, device.NewCommandBuffer(rec).RecordCommands(
		finish("update-blas", nil, &gpu.UpdateRayTracingAccelerationContainerCmd{Container: blas})))
	assert.Equal(t,
		fmt.Sprintf("BuildRaytracingAccelerationStructure(dst=%#x,src=%#x,scratch=%#x,flags=0x21)",
			scratch.Result.Address, scratch.Result.Address, scratch.Update.Address),
		rec.Calls[1])
	assert.True(t, blas.IsUpdated())
	assert.False(t, blas.Scratch().Build.IsAllocated())
	assert.Contains(t, alloc.released, scratch.Build)

	delta := core.MetricsSnapshotNow().Sub(before)
	assert.Equal(t, uint64(2), delta.AccelerationBuilds)
	assert.Equal(t, uint64(1), delta.AccelerationUpdate)
}

func TestRecordAccelerationCopy(t *testing.T) {
	device, rd := newTestDevice(t, testConfig(), true)
	alloc := &testAllocator{}
	blas, tlas := newTestContainers(t, rd, alloc)
	clone, err := CreateAccelerationContainer(rd, &gpu.AccelerationContainerDescriptor{
		Label:      "clone",
		Level:      gpu.ContainerLevelBottom,
		Geometries: blas.Geometries,
	}, alloc)
	require.NoError(t, err)

	// Copying an unbuilt container is rejected.
	err = device.NewCommandBuffer(NewRecordingCommandList(true)).RecordCommands(
		finish("copy", nil, &gpu.CopyRayTracingAccelerationContainerCmd{Source: blas, Destination: clone}))
	var verr *core.ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Equal(t, "acceleration-copy", verr.Rule)

	rec := NewRecordingCommandList(true)
	require.NoError(t, device.NewCommandBuffer(rec).RecordCommands(finish("copy", nil,
		&gpu.BuildRayTracingAccelerationContainerCmd{Container: blas},
		&gpu.CopyRayTracingAccelerationContainerCmd{Source: blas, Destination: clone},
	)))
	assert.Equal(t,
		fmt.Sprintf("CopyRaytracingAccelerationStructure(%#x<-%#x,%d)", clone.Scratch().Result.Address, blas.Scratch().Result.Address, AccelerationStructureCopyModeClone),
		rec.Calls[3])
	assert.True(t, clone.IsBuilt())

	// Levels must match.
	err = device.NewCommandBuffer(NewRecordingCommandList(true)).RecordCommands(
		finish("copy", nil, &gpu.CopyRayTracingAccelerationContainerCmd{Source: blas, Destination: tlas}))
	require.True(t, errors.As(err, &verr))
	assert.Equal(t, "acceleration-copy", verr.Rule)
}

func TestRecordAccelerationWithoutCommandList4(t *testing.T) {
	device, rd := newTestDevice(t, testConfig(), true)
	blas, _ := newTestContainers(t, rd, &testAllocator{})

	for _, list := range []CommandList{NewRecordingCommandList(false), BasicCommandList{NewRecordingCommandList(true)}} {
		err := device.NewCommandBuffer(list).RecordCommands(
			finish("build", nil, &gpu.BuildRayTracingAccelerationContainerCmd{Container: blas}))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "Invalid Call to BuildRaytracingAccelerationStructure")
		assert.False(t, blas.IsBuilt())
	}
}

func TestRecordAccelerationScopeRules(t *testing.T) {
	tests := []struct {
		name     string
		commands func(blas, tlas *gpu.AccelerationContainer) []gpu.Command
		rule     string
		emitted  int
	}{
		{
			name: "update before build",
			commands: func(blas, _ *gpu.AccelerationContainer) []gpu.Command {
				return []gpu.Command{&gpu.UpdateRayTracingAccelerationContainerCmd{Container: blas}}
			},
			rule: "acceleration-update-before-build",
		},
		{
			name: "mixed levels",
			commands: func(blas, tlas *gpu.AccelerationContainer) []gpu.Command {
				return []gpu.Command{
					&gpu.BuildRayTracingAccelerationContainerCmd{Container: blas},
					&gpu.BuildRayTracingAccelerationContainerCmd{Container: tlas},
				}
			},
			rule:    "acceleration-container-level",
			emitted: 1,
		},
		{
			name: "update after build",
			commands: func(blas, _ *gpu.AccelerationContainer) []gpu.Command {
				return []gpu.Command{
					&gpu.BuildRayTracingAccelerationContainerCmd{Container: blas},
					&gpu.UpdateRayTracingAccelerationContainerCmd{Container: blas},
				}
			},
			rule:    "acceleration-build-update-separation",
			emitted: 1,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			device, rd := newTestDevice(t, testConfig(), true)
			blas, tlas := newTestContainers(t, rd, &testAllocator{})
			rec := NewRecordingCommandList(true)
			err := device.NewCommandBuffer(rec).RecordCommands(finish(tt.name, nil, tt.commands(blas, tlas)...))

			var verr *core.ValidationError
			require.True(t, errors.As(err, &verr))
			assert.Equal(t, tt.rule, verr.Rule)
			assert.Equal(t, tt.emitted, countCalls(rec.Calls, "BuildRaytracing"))
			assert.NotContains(t, rec.Calls, "Close")
		})
	}
}
