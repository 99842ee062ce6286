// Package renderer drives frames: it paces CPU work against the GPU, acquires and presents
// swapchain images and hands out descriptor sets and arena space to render systems.
package renderer

import (
	"errors"
	"fmt"

	"github.com/spaghettifunk/anima-renderer/engine/core"
	"github.com/spaghettifunk/anima-renderer/engine/renderer/arena"
	"github.com/spaghettifunk/anima-renderer/engine/renderer/descriptor"
	"github.com/spaghettifunk/anima-renderer/engine/renderer/driver"
	"github.com/spaghettifunk/anima-renderer/engine/renderer/swapchain"
)

type Config struct {
	FramesInFlight int
	PresentMode    driver.PresentMode
	ClearColor     [4]float32
	// Debug turns frame state misuse into a panic.
	Debug        bool
	Descriptors  descriptor.AllocatorConfig
	StorageArena arena.Config
}

func DefaultConfig() Config {
	return Config{
		FramesInFlight: swapchain.DefaultFramesInFlight,
		PresentMode:    driver.PresentModeMailbox,
		ClearColor:     [4]float32{0.01, 0.01, 0.01, 1},
		StorageArena: arena.Config{
			Name:            "storage",
			Usage:           driver.BufferUsageStorage,
			InitialCapacity: 1 << 20,
			Alignment:       16,
		},
	}
}

type Renderer struct {
	device driver.Device
	window Window
	events *core.Dispatcher
	config Config

	swapchain      *swapchain.Swapchain
	commandBuffers []driver.CommandBuffer
	allocator      *descriptor.Allocator
	layouts        *descriptor.LayoutCache
	storage        *arena.Arena
	arenas         []*arena.Arena

	state           FrameState
	cmd             driver.CommandBuffer
	frameIndex      int
	imageIndex      uint32
	frameNumber     uint64
	recreatePending bool
	clear           driver.ClearValues
}

// New builds the swapchain and the shared resource managers. events may be nil.
func New(device driver.Device, window Window, config Config, events *core.Dispatcher) (*Renderer, error) {
	if config.FramesInFlight <= 0 {
		config.FramesInFlight = swapchain.DefaultFramesInFlight
	}

	extent := window.Extent()
	for extent.IsZero() {
		core.LogInfo("window has no drawable area yet, waiting")
		window.WaitEvents()
		extent = window.Extent()
	}

	sc, err := swapchain.New(device, extent, swapchain.Config{
		FramesInFlight: config.FramesInFlight,
		PresentMode:    config.PresentMode,
	})
	if err != nil {
		return nil, err
	}

	cmds, err := device.AllocateCommandBuffers(config.FramesInFlight)
	if err != nil {
		sc.Destroy()
		err = fmt.Errorf("failed to allocate frame command buffers: %w", err)
		core.LogError(err.Error())
		return nil, err
	}

	r := &Renderer{
		device:         device,
		window:         window,
		events:         events,
		config:         config,
		swapchain:      sc,
		commandBuffers: cmds,
		allocator:      descriptor.NewAllocator(device, config.Descriptors),
		layouts:        descriptor.NewLayoutCache(device),
		clear: driver.ClearValues{
			Color: config.ClearColor,
			Depth: 1.0,
		},
	}

	if config.StorageArena.InitialCapacity > 0 {
		storage, err := r.NewArena(config.StorageArena)
		if err != nil {
			r.Shutdown()
			return nil, err
		}
		r.storage = storage
	}

	core.LogInfo("renderer initialized: %d frames in flight, %d swapchain images at %s",
		config.FramesInFlight, sc.ImageCount(), sc.Extent())
	return r, nil
}

func (r *Renderer) misuse(op string) error {
	err := fmt.Errorf("%w: %s called while %s", core.ErrInvalidFrameState, op, r.state)
	if r.config.Debug {
		panic(err)
	}
	core.LogError(err.Error())
	return err
}

// BeginFrame waits for the current frame slot, acquires an image and starts recording.
// It returns a nil command buffer and no error when the frame must be skipped, e.g. while the
// window is minimized or right after the swapchain was rebuilt.
func (r *Renderer) BeginFrame() (driver.CommandBuffer, error) {
	if r.state != FrameStateIdle {
		return nil, r.misuse("BeginFrame")
	}

	extent := r.window.Extent()
	if extent.IsZero() {
		r.window.WaitEvents()
		r.recreatePending = true
		return nil, nil
	}

	if r.recreatePending {
		return nil, r.recreate(extent)
	}

	imageIndex, err := r.swapchain.Acquire(r.frameIndex)
	if errors.Is(err, core.ErrSwapchainBooting) {
		core.LogDebug("swapchain out of date at acquire, booting")
		return nil, r.recreate(extent)
	}
	if err != nil {
		return nil, err
	}
	r.imageIndex = imageIndex

	cmd := r.commandBuffers[r.frameIndex]
	if err := cmd.Begin(); err != nil {
		err = fmt.Errorf("failed to begin frame command buffer: %w", err)
		core.LogError(err.Error())
		return nil, err
	}
	r.cmd = cmd
	r.state = FrameStateStarted
	return cmd, nil
}

// BeginRenderPass starts the swapchain render pass on the acquired image and covers it with
// the viewport and scissor.
func (r *Renderer) BeginRenderPass(cmd driver.CommandBuffer) error {
	if r.state != FrameStateStarted || cmd != r.cmd {
		return r.misuse("BeginRenderPass")
	}
	cmd.BeginRenderPass(r.swapchain.RenderPass(), r.swapchain.Framebuffer(r.imageIndex), r.clear)
	cmd.SetViewport(r.swapchain.Extent())
	r.state = FrameStateRenderPassActive
	return nil
}

func (r *Renderer) EndRenderPass(cmd driver.CommandBuffer) error {
	if r.state != FrameStateRenderPassActive || cmd != r.cmd {
		return r.misuse("EndRenderPass")
	}
	cmd.EndRenderPass()
	r.state = FrameStateStarted
	return nil
}

// EndFrame submits and presents the frame, then moves to the next frame slot. A stale
// surface or a window resize triggers recreation before the next frame.
func (r *Renderer) EndFrame() error {
	if r.state != FrameStateStarted {
		return r.misuse("EndFrame")
	}

	cmd := r.cmd
	r.cmd = nil
	r.state = FrameStateIdle

	if err := cmd.End(); err != nil {
		err = fmt.Errorf("failed to end frame command buffer: %w", err)
		core.LogError(err.Error())
		return err
	}

	err := r.swapchain.Submit(r.frameIndex, cmd, r.imageIndex)
	// The slot was consumed by the submission whether or not present succeeded.
	r.frameIndex = (r.frameIndex + 1) % r.config.FramesInFlight
	r.frameNumber++

	stale := errors.Is(err, core.ErrSwapchainBooting)
	if err != nil && !stale {
		return err
	}

	if stale || r.window.WasResized() {
		extent := r.window.Extent()
		if extent.IsZero() {
			r.window.ClearResized()
			r.recreatePending = true
			return nil
		}
		return r.recreate(extent)
	}
	return nil
}

func (r *Renderer) recreate(extent driver.Extent2D) error {
	if err := r.swapchain.Recreate(extent); err != nil {
		return err
	}
	r.recreatePending = false
	r.window.ClearResized()

	core.Logger().Debug("swapchain recreated",
		"extent", r.swapchain.Extent(),
		"generation", r.swapchain.Generation())

	if r.events != nil {
		ctx := core.EventContext{}
		ctx.Data.U32[0] = r.swapchain.Extent().Width
		ctx.Data.U32[1] = r.swapchain.Extent().Height
		ctx.Data.U32[2] = uint32(r.swapchain.ImageCount())
		r.events.Fire(core.EventCodeSwapchainRecreated, r, ctx)
	}
	return nil
}

// AllocateDescriptorSet allocates from the shared pools. Sets live until ResetDescriptorPools.
func (r *Renderer) AllocateDescriptorSet(layout driver.DescriptorSetLayout) (driver.DescriptorSet, error) {
	return r.allocator.Allocate(layout)
}

func (r *Renderer) GetOrCreateLayout(bindings []driver.DescriptorBinding) (driver.DescriptorSetLayout, error) {
	return r.layouts.GetOrCreate(bindings)
}

// DescriptorBuilder starts a builder over the renderer's allocator and layout cache.
func (r *Renderer) DescriptorBuilder() *descriptor.Builder {
	return descriptor.NewBuilder(r.layouts, r.allocator)
}

// ResetDescriptorPools waits for the device and returns every descriptor set to the pools.
func (r *Renderer) ResetDescriptorPools() error {
	if r.state != FrameStateIdle {
		return r.misuse("ResetDescriptorPools")
	}
	if err := r.device.WaitIdle(); err != nil {
		err = fmt.Errorf("failed to wait for device idle before descriptor reset: %w", err)
		core.LogError(err.Error())
		return err
	}
	return r.allocator.ResetPools()
}

// ReserveArenaSpace reserves size bytes in the shared storage arena.
func (r *Renderer) ReserveArenaSpace(size uint64) (uint64, error) {
	if r.storage == nil {
		err := fmt.Errorf("renderer has no storage arena: %w", core.ErrInvalidArenaCapacity)
		core.LogError(err.Error())
		return 0, err
	}
	return r.storage.Reserve(size)
}

// StorageArena returns the shared storage arena, or nil when none was configured.
func (r *Renderer) StorageArena() *arena.Arena {
	return r.storage
}

// NewArena creates an arena owned and destroyed by the renderer.
func (r *Renderer) NewArena(config arena.Config) (*arena.Arena, error) {
	a, err := arena.New(r.device, config)
	if err != nil {
		return nil, err
	}
	r.arenas = append(r.arenas, a)
	return a, nil
}

func (r *Renderer) SetClearColor(rgba [4]float32) {
	r.clear.Color = rgba
}

func (r *Renderer) ClearColor() [4]float32 {
	return r.clear.Color
}

func (r *Renderer) Device() driver.Device {
	return r.device
}

func (r *Renderer) Extent() driver.Extent2D {
	return r.swapchain.Extent()
}

func (r *Renderer) Swapchain() *swapchain.Swapchain {
	return r.swapchain
}

func (r *Renderer) State() FrameState {
	return r.state
}

// FrameIndex is the frame slot the next (or current) frame uses.
func (r *Renderer) FrameIndex() int {
	return r.frameIndex
}

// ImageIndex is the swapchain image acquired by the current frame.
func (r *Renderer) ImageIndex() uint32 {
	return r.imageIndex
}

// FrameNumber counts submitted frames.
func (r *Renderer) FrameNumber() uint64 {
	return r.frameNumber
}

// Shutdown waits for the GPU and releases everything the renderer created.
func (r *Renderer) Shutdown() error {
	err := r.device.WaitIdle()
	if err != nil {
		err = fmt.Errorf("failed to wait for device idle on shutdown: %w", err)
		core.LogError(err.Error())
	}

	for i := len(r.arenas) - 1; i >= 0; i-- {
		r.arenas[i].Destroy()
	}
	r.arenas = nil
	r.storage = nil

	r.allocator.Destroy()
	r.layouts.Destroy()
	r.swapchain.Destroy()
	core.LogInfo("renderer shut down after %d frames", r.frameNumber)
	return err
}
