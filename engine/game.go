package engine

import (
	"github.com/zxgjxc/dawn-ray-tracing/engine/gpu"
	"github.com/zxgjxc/dawn-ray-tracing/engine/renderer"
)

type Game struct {
	ApplicationConfig *ApplicationConfig
	State             interface{}
	FnInitialize      Initialize
	FnRecord          Record
	FnShutdown        Shutdown
}

type Initialize func(r *renderer.Renderer) error

// Record returns the command buffers of one frame as stages. Stages are
// recorded in order, the command buffers of one stage concurrently.
type Record func(r *renderer.Renderer) ([][]*gpu.CommandBuffer, error)
type Shutdown func(r *renderer.Renderer) error
