package engine

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/spaghettifunk/anima-renderer/engine/config"
	"github.com/spaghettifunk/anima-renderer/engine/core"
	"github.com/spaghettifunk/anima-renderer/engine/platform"
	"github.com/spaghettifunk/anima-renderer/engine/renderer"
	"github.com/spaghettifunk/anima-renderer/engine/renderer/vulkan"
	"github.com/spaghettifunk/anima-renderer/engine/systems"
)

type Stage uint8

const (
	// Engine is in an uninitialized state
	EngineStageUninitialized Stage = iota
	// Engine is currently booting up
	EngineStageBooting
	// Engine completed boot process and is ready to be initialized
	EngineStageBootComplete
	// Engine is currently initializing
	EngineStageInitializing
	// Engine initialization is complete
	EngineStageInitialized
	// Engine is currently running
	EngineStageRunning
	// Engine is in the process of shutting down
	EngineStageShuttingDown
)

type Engine struct {
	currentStage Stage
	gameInstance *Game
	config       config.Config
	stopping     atomic.Bool

	events   *core.Dispatcher
	metrics  *core.Metrics
	clock    *core.Clock
	lastTime float64

	platform      *platform.Platform
	device        *vulkan.Device
	renderer      *renderer.Renderer
	systemManager *systems.SystemManager

	watcher *config.Watcher
	cancel  context.CancelFunc
	reloads chan config.Config
}

// New loads the config and prepares the engine. Nothing touches the window or the GPU until
// Initialize.
func New(g *Game) (*Engine, error) {
	e := &Engine{
		currentStage: EngineStageBooting,
		gameInstance: g,
		events:       core.NewDispatcher(),
		metrics:      core.NewMetrics(),
		clock:        core.NewClock(),
		reloads:      make(chan config.Config, 1),
	}

	cfg, err := config.Load(g.ApplicationConfig.configPath())
	if err != nil {
		return nil, err
	}
	g.ApplicationConfig.apply(&cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if err := core.SetLogLevel(cfg.Log.Level); err != nil {
		core.LogWarn("keeping the default log level: %s", err)
	}
	e.config = cfg

	e.platform = platform.New(e.events)
	e.currentStage = EngineStageBootComplete
	return e, nil
}

func (e *Engine) Initialize() error {
	e.currentStage = EngineStageInitializing
	app := e.config.Application

	e.events.Register(core.EventCodeApplicationQuit, e, e.onEvent)
	e.events.Register(core.EventCodeResized, e, e.onResized)
	e.events.Register(core.EventCodeSwapchainRecreated, e, e.onEvent)

	if err := e.platform.Startup(app.Name, app.X, app.Y, app.Width, app.Height); err != nil {
		return err
	}

	device, err := vulkan.New(e.platform, vulkan.Config{
		ApplicationName:    app.Name,
		Validation:         e.config.Renderer.Validation,
		RequireDiscreteGPU: e.config.Renderer.RequireDiscreteGPU,
	})
	if err != nil {
		return err
	}
	e.device = device

	r, err := renderer.New(device, e.platform, rendererConfig(e.config), e.events)
	if err != nil {
		return err
	}
	e.renderer = r

	sm, err := systems.NewSystemManager(r, geometryConfig(e.config))
	if err != nil {
		return err
	}
	e.systemManager = sm

	ctx, cancel := context.WithCancel(context.Background())
	e.cancel = cancel
	watcher, err := config.Watch(ctx, e.gameInstance.ApplicationConfig.configPath(), e.onConfigChange)
	if err != nil {
		// Live reload is a convenience; the engine runs without it.
		core.LogWarn("config live reload disabled: %s", err)
	}
	e.watcher = watcher

	if e.gameInstance.FnInitialize != nil {
		if err := e.gameInstance.FnInitialize(r, sm); err != nil {
			return err
		}
	}
	if e.gameInstance.FnOnResize != nil {
		extent := r.Extent()
		if err := e.gameInstance.FnOnResize(extent.Width, extent.Height); err != nil {
			return err
		}
	}

	e.currentStage = EngineStageInitialized
	return nil
}

func rendererConfig(cfg config.Config) renderer.Config {
	rc := renderer.DefaultConfig()
	rc.FramesInFlight = cfg.Renderer.FramesInFlight
	rc.PresentMode = cfg.Renderer.Mode()
	rc.ClearColor = cfg.Renderer.ClearColor
	rc.Debug = cfg.Renderer.Debug
	rc.Descriptors.SetsPerPool = cfg.Descriptors.SetsPerPool
	rc.StorageArena.InitialCapacity = cfg.Renderer.StorageArenaSize
	return rc
}

func geometryConfig(cfg config.Config) systems.GeometryConfig {
	return systems.GeometryConfig{
		VertexCapacity: cfg.Geometry.VertexArenaSize,
		IndexCapacity:  cfg.Geometry.IndexArenaSize,
		MaxMeshes:      cfg.Geometry.MaxMeshes,
	}
}

func (e *Engine) Run() error {
	e.currentStage = EngineStageRunning
	e.clock.Start()
	e.clock.Update()
	e.lastTime = e.clock.Elapsed()

	for !e.stopping.Load() {
		if !e.platform.PumpMessages() {
			break
		}
		e.applyReloads()

		e.clock.Update()
		currentTime := e.clock.Elapsed()
		delta := currentTime - e.lastTime
		frameStartTime := e.platform.GetAbsoluteTime()

		if e.gameInstance.FnUpdate != nil {
			if err := e.gameInstance.FnUpdate(delta); err != nil {
				err = fmt.Errorf("game update failed, shutting down: %w", err)
				core.LogError(err.Error())
				return err
			}
		}

		if err := e.drawFrame(delta); err != nil {
			return err
		}

		e.metrics.Update(e.platform.GetAbsoluteTime() - frameStartTime)
		e.lastTime = currentTime
	}
	return nil
}

func (e *Engine) drawFrame(delta float64) error {
	cmd, err := e.renderer.BeginFrame()
	if err != nil {
		return err
	}
	if cmd == nil {
		return nil
	}
	if err := e.renderer.BeginRenderPass(cmd); err != nil {
		return err
	}
	if e.gameInstance.FnRender != nil {
		if err := e.gameInstance.FnRender(cmd, delta); err != nil {
			err = fmt.Errorf("game render failed, shutting down: %w", err)
			core.LogError(err.Error())
			return err
		}
	}
	e.systemManager.Render(cmd)
	if err := e.renderer.EndRenderPass(cmd); err != nil {
		return err
	}
	return e.renderer.EndFrame()
}

// Stop makes Run return after the current frame. It is safe to call from any goroutine.
func (e *Engine) Stop() {
	e.stopping.Store(true)
}

// Shutdown releases everything Initialize created, in reverse order. It tolerates a partial
// Initialize.
func (e *Engine) Shutdown() error {
	e.currentStage = EngineStageShuttingDown
	var errs []error

	if e.cancel != nil {
		e.cancel()
	}
	if e.watcher != nil {
		e.watcher.Close()
	}
	if e.gameInstance.FnShutdown != nil {
		errs = append(errs, e.gameInstance.FnShutdown())
	}
	if e.systemManager != nil {
		errs = append(errs, e.systemManager.Shutdown())
	}
	if e.renderer != nil {
		errs = append(errs, e.renderer.Shutdown())
	}
	if e.device != nil {
		e.device.Destroy()
	}
	errs = append(errs, e.platform.Shutdown())
	e.events.Shutdown()

	fps, frameTime := e.metrics.Frame()
	core.LogInfo("engine stopped (%.1f fps, %.2f ms per frame)", fps, frameTime)
	e.currentStage = EngineStageUninitialized
	return errors.Join(errs...)
}

func (e *Engine) Metrics() *core.Metrics {
	return e.metrics
}

func (e *Engine) Config() config.Config {
	return e.config
}

// onConfigChange runs on the watcher goroutine. The frame loop picks the change up.
func (e *Engine) onConfigChange(cfg config.Config) {
	select {
	case e.reloads <- cfg:
	default:
		// Drop the stale pending reload for the new one.
		select {
		case <-e.reloads:
		default:
		}
		e.reloads <- cfg
	}
}

// applyReloads applies the settings that can change while running. The rest needs a restart.
func (e *Engine) applyReloads() {
	select {
	case cfg := <-e.reloads:
		if cfg.Log.Level != e.config.Log.Level {
			if err := core.SetLogLevel(cfg.Log.Level); err != nil {
				core.LogWarn(err.Error())
			}
		}
		e.renderer.SetClearColor(cfg.Renderer.ClearColor)
		e.config.Log = cfg.Log
		e.config.Renderer.ClearColor = cfg.Renderer.ClearColor
	default:
	}
}

func (e *Engine) onEvent(code core.SystemEventCode, sender, listener interface{}, ctx core.EventContext) bool {
	switch code {
	case core.EventCodeApplicationQuit:
		core.LogInfo("EventCodeApplicationQuit received, shutting down")
		e.Stop()
		return true
	case core.EventCodeSwapchainRecreated:
		core.Logger().Debug("swapchain recreated",
			"width", ctx.Data.U32[0],
			"height", ctx.Data.U32[1],
			"images", ctx.Data.U32[2])
	}
	return false
}

func (e *Engine) onResized(code core.SystemEventCode, sender, listener interface{}, ctx core.EventContext) bool {
	width, height := ctx.Data.U32[0], ctx.Data.U32[1]
	if width == 0 || height == 0 {
		core.LogInfo("window minimized, frames are skipped until it is restored")
		return false
	}
	core.LogDebug("window resize: %d, %d", width, height)
	if e.gameInstance.FnOnResize != nil {
		if err := e.gameInstance.FnOnResize(width, height); err != nil {
			core.LogError(err.Error())
		}
	}
	return false
}
