package core

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/pelletier/go-toml/v2"
)

type BackendName string

const (
	BackendVulkan BackendName = "vulkan"
	BackendD3D12  BackendName = "d3d12"
)

type D3D12Config struct {
	// Use ID3D12GraphicsCommandList4::BeginRenderPass when the driver has it.
	UseNativeRenderPass bool `toml:"use_native_render_pass"`
	// Descriptors per shader-visible CBV/SRV/UAV heap.
	ViewHeapSize uint32 `toml:"view_heap_size"`
	// Descriptors per shader-visible sampler heap.
	SamplerHeapSize uint32 `toml:"sampler_heap_size"`
}

type VulkanConfig struct {
	EnableDebugMarkers bool `toml:"enable_debug_markers"`
	// Record into a real device instead of the logging sink.
	Native bool `toml:"native"`
}

type RecorderConfig struct {
	Backend  BackendName `toml:"backend"`
	LogLevel string      `toml:"log_level"`
	// Goroutines recording independent command buffers of one stage.
	RecordWorkers int          `toml:"record_workers"`
	D3D12         D3D12Config  `toml:"d3d12"`
	Vulkan        VulkanConfig `toml:"vulkan"`
}

func DefaultRecorderConfig() *RecorderConfig {
	return &RecorderConfig{
		Backend:       BackendVulkan,
		LogLevel:      "debug",
		RecordWorkers: 4,
		D3D12: D3D12Config{
			UseNativeRenderPass: true,
			ViewHeapSize:        4096,
			SamplerHeapSize:     2048,
		},
		Vulkan: VulkanConfig{
			EnableDebugMarkers: true,
		},
	}
}

// ParseRecorderConfig decodes TOML on top of the defaults.
func ParseRecorderConfig(data []byte) (*RecorderConfig, error) {
	cfg := DefaultRecorderConfig()
	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to decode recorder config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func LoadRecorderConfig(path string) (*RecorderConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read recorder config %s: %w", path, err)
	}
	return ParseRecorderConfig(data)
}

func (c *RecorderConfig) Validate() error {
	switch c.Backend {
	case BackendVulkan, BackendD3D12:
	default:
		return fmt.Errorf("unknown backend %q", c.Backend)
	}
	if _, err := ParseLogLevel(c.LogLevel); err != nil {
		return err
	}
	if c.RecordWorkers <= 0 {
		return errors.New("record_workers must be greater than zero")
	}
	if c.D3D12.ViewHeapSize == 0 || c.D3D12.SamplerHeapSize == 0 {
		return errors.New("shader-visible heap sizes must be greater than zero")
	}
	return nil
}

// Level returns the parsed log level; Validate has already checked it.
func (c *RecorderConfig) Level() LogLevel {
	level, _ := ParseLogLevel(c.LogLevel)
	return level
}

func (c *RecorderConfig) Marshal() ([]byte, error) {
	return toml.Marshal(c)
}

// ConfigWatcher reloads a config file whenever it is written and hands the
// new value to the callback. Files that fail to parse are logged and skipped.
type ConfigWatcher struct {
	watcher *fsnotify.Watcher
	path    string
	done    chan struct{}
	wg      sync.WaitGroup
}

func WatchConfig(path string, onChange func(*RecorderConfig)) (*ConfigWatcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	// Editors replace files on save, watching the directory survives that.
	if err := w.Add(filepath.Dir(path)); err != nil {
		w.Close()
		return nil, err
	}

	cw := &ConfigWatcher{
		watcher: w,
		path:    filepath.Clean(path),
		done:    make(chan struct{}),
	}
	cw.wg.Add(1)
	go cw.loop(onChange)
	return cw, nil
}

func (cw *ConfigWatcher) loop(onChange func(*RecorderConfig)) {
	defer cw.wg.Done()
	for {
		select {
		case <-cw.done:
			return
		case e, ok := <-cw.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(e.Name) != cw.path {
				continue
			}
			if e.Op&(fsnotify.Create|fsnotify.Write) == 0 {
				continue
			}
			cfg, err := LoadRecorderConfig(cw.path)
			if err != nil {
				LogWarn("ignoring config change: %s", err.Error())
				continue
			}
			LogInfo("reloaded recorder config from %s", cw.path)
			onChange(cfg)
		case err, ok := <-cw.watcher.Errors:
			if !ok {
				return
			}
			LogError("config watcher: %s", err.Error())
		}
	}
}

func (cw *ConfigWatcher) Close() error {
	close(cw.done)
	err := cw.watcher.Close()
	cw.wg.Wait()
	return err
}
