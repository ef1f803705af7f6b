package core

import (
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMain(m *testing.M) {
	SetLogOutput(io.Discard)
	os.Exit(m.Run())
}

func TestParseLogLevel(t *testing.T) {
	cases := map[string]LogLevel{
		"":        DebugLevel,
		"DEBUG":   DebugLevel,
		"info":    InfoLevel,
		"warning": WarnLevel,
		"error":   ErrorLevel,
		"fatal":   FatalLevel,
	}
	for in, want := range cases {
		got, err := ParseLogLevel(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	_, err := ParseLogLevel("verbose")
	assert.Error(t, err)
}

func TestValidationError(t *testing.T) {
	err := NewValidationError("acceleration-update", "container %s was never built", "blas-1")
	assert.True(t, IsValidationError(err))
	assert.Contains(t, err.Error(), "blas-1")
	assert.NotErrorIs(t, err, ErrDeviceLost)
}

func TestDeviceErrorUnwrapsToDeviceLost(t *testing.T) {
	cause := io.ErrUnexpectedEOF
	err := NewDeviceError("CreateDescriptorHeap", cause)
	assert.ErrorIs(t, err, ErrDeviceLost)
	assert.ErrorIs(t, err, cause)
	assert.False(t, IsValidationError(err))

	err = NewDeviceError("Close", nil)
	assert.ErrorIs(t, err, ErrUnknown)
}

func TestUnreachableAndAssertPanic(t *testing.T) {
	assert.Panics(t, func() { Unreachable("format %d", 3) })
	assert.Panics(t, func() { Assert(false, "broken") })
	assert.NotPanics(t, func() { Assert(true, "fine") })
}

func TestParseRecorderConfigDefaults(t *testing.T) {
	cfg, err := ParseRecorderConfig([]byte(`backend = "d3d12"`))
	require.NoError(t, err)
	assert.Equal(t, BackendD3D12, cfg.Backend)
	assert.True(t, cfg.D3D12.UseNativeRenderPass)
	assert.Equal(t, uint32(4096), cfg.D3D12.ViewHeapSize)
	assert.Equal(t, DebugLevel, cfg.Level())
	assert.Equal(t, 4, cfg.RecordWorkers)
}

func TestParseRecorderConfigOverrides(t *testing.T) {
	data := `
backend = "vulkan"
log_level = "warn"
record_workers = 2

[d3d12]
use_native_render_pass = false
view_heap_size = 16
sampler_heap_size = 8

[vulkan]
enable_debug_markers = false
native = true
`
	cfg, err := ParseRecorderConfig([]byte(data))
	require.NoError(t, err)
	assert.Equal(t, BackendVulkan, cfg.Backend)
	assert.Equal(t, WarnLevel, cfg.Level())
	assert.Equal(t, 2, cfg.RecordWorkers)
	assert.False(t, cfg.D3D12.UseNativeRenderPass)
	assert.Equal(t, uint32(16), cfg.D3D12.ViewHeapSize)
	assert.Equal(t, uint32(8), cfg.D3D12.SamplerHeapSize)
	assert.False(t, cfg.Vulkan.EnableDebugMarkers)
	assert.True(t, cfg.Vulkan.Native)
}

func TestParseRecorderConfigRejectsInvalid(t *testing.T) {
	_, err := ParseRecorderConfig([]byte(`backend = "metal"`))
	assert.Error(t, err)

	_, err = ParseRecorderConfig([]byte("[d3d12]\nview_heap_size = 0\n"))
	assert.Error(t, err)

	_, err = ParseRecorderConfig([]byte("record_workers = 0\n"))
	assert.Error(t, err)

	_, err = ParseRecorderConfig([]byte(`backend = `))
	assert.Error(t, err)
}

func TestRecorderConfigRoundTrip(t *testing.T) {
	cfg := DefaultRecorderConfig()
	cfg.Backend = BackendD3D12
	data, err := cfg.Marshal()
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(data), "use_native_render_pass"))

	back, err := ParseRecorderConfig(data)
	require.NoError(t, err)
	assert.Equal(t, cfg, back)
}

func TestWatchConfigReloads(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "recorder.toml")
	require.NoError(t, os.WriteFile(path, []byte(`backend = "vulkan"`), 0o644))

	changes := make(chan *RecorderConfig, 4)
	w, err := WatchConfig(path, func(cfg *RecorderConfig) { changes <- cfg })
	require.NoError(t, err)
	defer w.Close()

	require.NoError(t, os.WriteFile(path, []byte(`backend = "d3d12"`), 0o644))

	select {
	case cfg := <-changes:
		assert.Equal(t, BackendD3D12, cfg.Backend)
	case <-time.After(5 * time.Second):
		t.Fatal("config change was not observed")
	}
}

func TestNewLabel(t *testing.T) {
	a := NewLabel("cmdbuf")
	b := NewLabel("cmdbuf")
	assert.True(t, strings.HasPrefix(a, "cmdbuf-"))
	assert.Len(t, a, len("cmdbuf-")+8)
	assert.NotEqual(t, a, b)
}

func TestClock(t *testing.T) {
	now := time.Unix(100, 0)
	c := &Clock{now: func() time.Time { return now }}

	c.Update()
	assert.Zero(t, c.Elapsed())

	c.Start()
	now = now.Add(3 * time.Millisecond)
	c.Update()
	assert.Equal(t, 3*time.Millisecond, c.Elapsed())

	c.Stop()
	now = now.Add(time.Second)
	c.Update()
	assert.Equal(t, 3*time.Millisecond, c.Elapsed())
}

func TestMetricsSnapshot(t *testing.T) {
	before := MetricsSnapshotNow()

	Metrics().Commands.Add(5)
	Metrics().HeapRotations.Add(1)
	now := time.Unix(0, 0)
	c := &Clock{now: func() time.Time { return now }}
	c.Start()
	now = now.Add(time.Millisecond)
	MetricsRecordingFinished(c)

	delta := MetricsSnapshotNow().Sub(before)
	assert.Equal(t, uint64(5), delta.Commands)
	assert.Equal(t, uint64(1), delta.HeapRotations)
	assert.Equal(t, uint64(1), delta.CommandBuffers)
	assert.Equal(t, time.Millisecond, delta.RecordingTime)
}

func TestEventRegisterFireUnregister(t *testing.T) {
	defer EventShutdown()

	type listener struct{ name string }
	first := &listener{"first"}
	second := &listener{"second"}

	var seen []string
	handler := func(handled bool) FnOnEvent {
		return func(code SystemEventCode, sender, inst interface{}, data EventContext) bool {
			seen = append(seen, inst.(*listener).name+":"+data.Label)
			return handled
		}
	}

	require.True(t, EventRegister(EVENT_CODE_DESCRIPTOR_HEAP_SWITCHED, first, handler(false)))
	require.True(t, EventRegister(EVENT_CODE_DESCRIPTOR_HEAP_SWITCHED, second, handler(true)))
	assert.False(t, EventRegister(EVENT_CODE_DESCRIPTOR_HEAP_SWITCHED, first, handler(false)))

	handled := EventFire(EVENT_CODE_DESCRIPTOR_HEAP_SWITCHED, nil, EventContext{Label: "view"})
	assert.True(t, handled)
	assert.Equal(t, []string{"first:view", "second:view"}, seen)

	require.True(t, EventUnregister(EVENT_CODE_DESCRIPTOR_HEAP_SWITCHED, second))
	assert.False(t, EventUnregister(EVENT_CODE_DESCRIPTOR_HEAP_SWITCHED, second))

	seen = nil
	handled = EventFire(EVENT_CODE_DESCRIPTOR_HEAP_SWITCHED, nil, EventContext{Label: "sampler"})
	assert.False(t, handled)
	assert.Equal(t, []string{"first:sampler"}, seen)

	assert.False(t, EventFire(EVENT_CODE_DEVICE_LOST, nil, EventContext{}))
}
