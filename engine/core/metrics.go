package core

import (
	"sync"
	"sync/atomic"
	"time"
)

// MetricsState aggregates recording counters across every command buffer.
// Recorders on different goroutines update it concurrently.
type MetricsState struct {
	CommandBuffers     atomic.Uint64
	Commands           atomic.Uint64
	BarrierBatches     atomic.Uint64
	HeapRotations      atomic.Uint64
	AccelerationBuilds atomic.Uint64
	AccelerationUpdate atomic.Uint64
	recordingNanos     atomic.Int64
}

type MetricsSnapshot struct {
	CommandBuffers     uint64
	Commands           uint64
	BarrierBatches     uint64
	HeapRotations      uint64
	AccelerationBuilds uint64
	AccelerationUpdate uint64
	RecordingTime      time.Duration
}

var onceMetrics sync.Once
var metricsState *MetricsState = nil

func Metrics() *MetricsState {
	onceMetrics.Do(func() {
		metricsState = &MetricsState{}
	})
	return metricsState
}

// MetricsRecordingFinished accounts one command buffer and the time the
// clock measured for it.
func MetricsRecordingFinished(clock *Clock) {
	m := Metrics()
	m.CommandBuffers.Add(1)
	clock.Update()
	m.recordingNanos.Add(int64(clock.Elapsed()))
}

func MetricsSnapshotNow() MetricsSnapshot {
	m := Metrics()
	return MetricsSnapshot{
		CommandBuffers:     m.CommandBuffers.Load(),
		Commands:           m.Commands.Load(),
		BarrierBatches:     m.BarrierBatches.Load(),
		HeapRotations:      m.HeapRotations.Load(),
		AccelerationBuilds: m.AccelerationBuilds.Load(),
		AccelerationUpdate: m.AccelerationUpdate.Load(),
		RecordingTime:      time.Duration(m.recordingNanos.Load()),
	}
}

// Sub returns the counters accumulated since an earlier snapshot.
func (s MetricsSnapshot) Sub(earlier MetricsSnapshot) MetricsSnapshot {
	return MetricsSnapshot{
		CommandBuffers:     s.CommandBuffers - earlier.CommandBuffers,
		Commands:           s.Commands - earlier.Commands,
		BarrierBatches:     s.BarrierBatches - earlier.BarrierBatches,
		HeapRotations:      s.HeapRotations - earlier.HeapRotations,
		AccelerationBuilds: s.AccelerationBuilds - earlier.AccelerationBuilds,
		AccelerationUpdate: s.AccelerationUpdate - earlier.AccelerationUpdate,
		RecordingTime:      s.RecordingTime - earlier.RecordingTime,
	}
}
