package engine

import (
	"errors"
	"fmt"
	"sync"

	"github.com/zxgjxc/dawn-ray-tracing/engine/core"
	"github.com/zxgjxc/dawn-ray-tracing/engine/renderer"
)

type Stage uint8

const (
	// Engine is in an uninitialized state
	EngineStageUninitialized Stage = iota
	// Engine is currently initializing
	EngineStageInitializing
	// Engine initialization is complete
	EngineStageInitialized
	// Engine is currently recording
	EngineStageRunning
	// Engine is in the process of shutting down
	EngineStageShuttingDown
)

type Engine struct {
	currentStage Stage
	gameInstance *Game
	config       *core.RecorderConfig
	renderer     *renderer.Renderer
	watcher      *core.ConfigWatcher
	frame        uint64

	reloads  chan struct{}
	quit     chan struct{}
	stopOnce sync.Once
}

func New(g *Game) (*Engine, error) {
	config := core.DefaultRecorderConfig()
	if path := g.ApplicationConfig.ConfigPath; path != "" {
		var err error
		if config, err = core.LoadRecorderConfig(path); err != nil {
			core.LogError("%s", err.Error())
			return nil, err
		}
	}
	core.SetLogLevel(config.Level())

	// The sample streams carry no native resources.
	if config.Vulkan.Native {
		core.LogWarn("vulkan.native is ignored, recording on the logging sink")
		config.Vulkan.Native = false
	}

	return &Engine{
		currentStage: EngineStageUninitialized,
		gameInstance: g,
		config:       config,
		reloads:      make(chan struct{}, 1),
		quit:         make(chan struct{}),
	}, nil
}

func (e *Engine) Initialize() error {
	e.currentStage = EngineStageInitializing

	core.EventRegister(core.EVENT_CODE_COMMAND_BUFFER_RECORDED, e, e.onRecorded)
	core.EventRegister(core.EVENT_CODE_DESCRIPTOR_HEAP_SWITCHED, e, e.onHeapSwitched)
	core.EventRegister(core.EVENT_CODE_DEVICE_LOST, e, e.onDeviceLost)

	if err := renderer.Initialize(e.gameInstance.ApplicationConfig.Name, e.config); err != nil {
		return err
	}
	e.renderer = renderer.Get()

	if err := e.gameInstance.FnInitialize(e.renderer); err != nil {
		return err
	}

	if path := e.gameInstance.ApplicationConfig.ConfigPath; path != "" {
		w, err := core.WatchConfig(path, e.onConfigFile)
		if err != nil {
			return fmt.Errorf("failed to watch %s: %w", path, err)
		}
		e.watcher = w
		core.LogInfo("watching %s for changes", path)
	}

	e.currentStage = EngineStageInitialized
	return nil
}

// Run records one frame and, while the config file is watched, records
// another one after every reload until Stop is called.
func (e *Engine) Run() error {
	e.currentStage = EngineStageRunning
	if err := e.recordFrame(); err != nil {
		return err
	}
	if e.watcher == nil {
		return nil
	}

	for {
		select {
		case <-e.quit:
			return nil
		case <-e.reloads:
			if err := e.recordFrame(); err != nil {
				return err
			}
		}
	}
}

func (e *Engine) recordFrame() error {
	e.frame++
	before := core.MetricsSnapshotNow()

	stages, err := e.gameInstance.FnRecord(e.renderer)
	if err != nil {
		core.LogError("Game record failed, shutting down.")
		return err
	}
	for i, stage := range stages {
		if err := e.renderer.RecordConcurrently(stage); err != nil {
			return fmt.Errorf("frame %d stage %d: %w", e.frame, i, err)
		}
	}

	printMetrics(e.frame, core.MetricsSnapshotNow().Sub(before))
	return nil
}

func printMetrics(frame uint64, m core.MetricsSnapshot) {
	core.LogInfo("frame %d: %d command buffers, %d commands, %d barrier batches, %d heap rotations, %d builds, %d updates in %s",
		frame, m.CommandBuffers, m.Commands, m.BarrierBatches, m.HeapRotations,
		m.AccelerationBuilds, m.AccelerationUpdate, m.RecordingTime)
}

// Stop makes Run return. Safe to call from a signal handler goroutine.
func (e *Engine) Stop() {
	e.stopOnce.Do(func() {
		close(e.quit)
	})
}

func (e *Engine) Shutdown() error {
	e.currentStage = EngineStageShuttingDown
	e.Stop()

	var errs []error
	if e.watcher != nil {
		errs = append(errs, e.watcher.Close())
	}
	if e.renderer != nil {
		errs = append(errs, e.gameInstance.FnShutdown(e.renderer))
	}
	errs = append(errs, renderer.Shutdown())

	core.EventUnregister(core.EVENT_CODE_COMMAND_BUFFER_RECORDED, e)
	core.EventUnregister(core.EVENT_CODE_DESCRIPTOR_HEAP_SWITCHED, e)
	core.EventUnregister(core.EVENT_CODE_DEVICE_LOST, e)
	core.EventShutdown()
	return errors.Join(errs...)
}

func (e *Engine) Stage() Stage {
	return e.currentStage
}

func (e *Engine) onConfigFile(config *core.RecorderConfig) {
	config.Vulkan.Native = false
	core.EventFire(core.EVENT_CODE_CONFIG_CHANGED, e, core.EventContext{Payload: config})
	select {
	case e.reloads <- struct{}{}:
	default:
	}
}

func (e *Engine) onRecorded(code core.SystemEventCode, sender interface{}, listener interface{}, data core.EventContext) bool {
	core.LogDebug("recorded %s (%d commands)", data.Label, data.Count)
	return false
}

func (e *Engine) onHeapSwitched(code core.SystemEventCode, sender interface{}, listener interface{}, data core.EventContext) bool {
	core.LogInfo("switched to a new %s heap at serial %d", data.Label, data.Serial)
	return false
}

func (e *Engine) onDeviceLost(code core.SystemEventCode, sender interface{}, listener interface{}, data core.EventContext) bool {
	core.LogError("device lost while recording %s: %v", data.Label, data.Err)
	e.Stop()
	return true
}
