package testbed

import (
	"io"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zxgjxc/dawn-ray-tracing/engine/core"
	"github.com/zxgjxc/dawn-ray-tracing/engine/renderer"
)

func TestMain(m *testing.M) {
	core.SetLogOutput(io.Discard)
	os.Exit(m.Run())
}

func labels(g *TestGame, r *renderer.Renderer, t *testing.T) ([]string, map[string][]string) {
	t.Helper()
	stages, err := g.Record(r)
	require.NoError(t, err)

	var names []string
	calls := map[string][]string{}
	for _, stage := range stages {
		for _, cb := range stage {
			require.NoError(t, r.Record(cb), cb.Label)
			names = append(names, cb.Label)
			calls[cb.Label] = r.LastCalls()
		}
	}
	return names, calls
}

func TestRecordStages(t *testing.T) {
	cfg := core.DefaultRecorderConfig()
	cfg.Backend = core.BackendD3D12
	r, err := renderer.New("testbed", cfg)
	require.NoError(t, err)
	defer r.Shutdown()

	g := NewTestGame("")
	require.NoError(t, g.Initialize(r))
	defer g.Shutdown(r)

	stages, err := g.Record(r)
	require.NoError(t, err)
	require.Len(t, stages, 4)
	assert.Len(t, stages[0], 2)

	before := core.MetricsSnapshotNow()
	for _, stage := range stages {
		require.NoError(t, r.RecordConcurrently(stage))
	}
	delta := core.MetricsSnapshotNow().Sub(before)
	assert.Equal(t, uint64(5), delta.CommandBuffers)
	assert.Equal(t, uint64(2), delta.AccelerationBuilds)
	assert.Contains(t, r.LastCalls(), "DispatchRays(raygen=0x8000,miss=0x8080,hit=0x8040,64x32x1)")
}

func TestSampleStreams(t *testing.T) {
	tests := []struct {
		backend  core.BackendName
		draw     string
		dispatch string
		trace    string
	}{
		{core.BackendVulkan, "DrawIndexed(3,1,0,0,0)", "Dispatch(64,1,1)", "TraceRays(raygen=0,miss=128,hit=64,64x32x1)"},
		{core.BackendD3D12, "DrawIndexedInstanced(3,1,0,0,0)", "Dispatch(64,1,1)", "DispatchRays(raygen=0x8000,miss=0x8080,hit=0x8040,64x32x1)"},
	}
	for _, tt := range tests {
		t.Run(string(tt.backend), func(t *testing.T) {
			cfg := core.DefaultRecorderConfig()
			cfg.Backend = tt.backend
			r, err := renderer.New("testbed", cfg)
			require.NoError(t, err)
			defer r.Shutdown()

			g := NewTestGame("")
			require.NoError(t, g.Initialize(r))

			before := core.MetricsSnapshotNow()
			names, calls := labels(g, r, t)
			assert.Equal(t, []string{"triangle", "simulate", "build-blas", "build-tlas", "trace"}, names)
			assert.Contains(t, calls["triangle"], tt.draw)
			assert.Contains(t, calls["simulate"], tt.dispatch)
			assert.Contains(t, calls["trace"], tt.trace)
			assert.Equal(t, uint64(2), core.MetricsSnapshotNow().Sub(before).AccelerationBuilds)

			// Later frames update the containers instead of building them.
			before = core.MetricsSnapshotNow()
			names, _ = labels(g, r, t)
			assert.Equal(t, []string{"triangle", "simulate", "update-blas", "update-tlas", "trace"}, names)
			delta := core.MetricsSnapshotNow().Sub(before)
			assert.Equal(t, uint64(0), delta.AccelerationBuilds)
			assert.Equal(t, uint64(2), delta.AccelerationUpdate)

			require.NoError(t, g.Shutdown(r))
			_, live := g.state().arena.Used()
			assert.Zero(t, live)
		})
	}
}
