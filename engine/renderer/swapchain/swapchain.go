// Package swapchain owns the presentable images and the per-frame synchronization objects.
package swapchain

import (
	"errors"
	"fmt"
	"math"

	"github.com/google/uuid"
	"github.com/spaghettifunk/anima-renderer/engine/core"
	amath "github.com/spaghettifunk/anima-renderer/engine/math"
	"github.com/spaghettifunk/anima-renderer/engine/renderer/driver"
)

const DefaultFramesInFlight = 2

type Config struct {
	FramesInFlight int
	PresentMode    driver.PresentMode
}

// FrameSlot is the synchronization set of one CPU frame in flight.
type FrameSlot struct {
	ImageAvailable driver.Semaphore
	RenderFinished driver.Semaphore
	// InFlight is created signaled so the first wait on every slot returns at once.
	InFlight driver.Fence
}

// images is everything that depends on the surface extent. It is built and retired as a unit.
type images struct {
	generation   uuid.UUID
	handle       driver.Swapchain
	extent       driver.Extent2D
	views        []driver.ImageView
	depth        []driver.Image
	framebuffers []driver.Framebuffer
	scope        *driver.Scope
}

type Swapchain struct {
	device driver.Device
	config Config

	colorFormat driver.SurfaceFormat
	depthFormat driver.Format
	renderPass  driver.RenderPass
	slots       []FrameSlot
	// persistent holds the render pass and the frame slots. They survive recreation.
	persistent *driver.Scope

	current *images
	// imagesInFlight[i] is the slot fence of the last submission that rendered to image i.
	imagesInFlight []driver.Fence
}

// New creates the frame slots, the render pass and the first set of images at extent.
func New(device driver.Device, extent driver.Extent2D, config Config) (*Swapchain, error) {
	if config.FramesInFlight <= 0 {
		config.FramesInFlight = DefaultFramesInFlight
	}
	if extent.IsZero() {
		return nil, core.ErrZeroExtent
	}

	support, err := device.SurfaceSupport()
	if err != nil {
		err = fmt.Errorf("failed to query surface support: %w", err)
		core.LogError(err.Error())
		return nil, err
	}
	depthFormat, err := device.DepthFormat()
	if err != nil {
		err = fmt.Errorf("failed to find a supported depth format: %w", err)
		core.LogError(err.Error())
		return nil, err
	}

	sc := &Swapchain{
		device:      device,
		config:      config,
		colorFormat: ChooseSurfaceFormat(support.Formats),
		depthFormat: depthFormat,
		persistent:  driver.NewScope(),
	}

	if err := sc.createPersistent(); err != nil {
		sc.persistent.Destroy()
		return nil, err
	}

	built, err := sc.build(support, extent, nil)
	if err != nil {
		sc.persistent.Destroy()
		return nil, err
	}
	sc.adopt(built)
	return sc, nil
}

func (s *Swapchain) createPersistent() error {
	pass, err := s.device.CreateRenderPass(driver.RenderPassInfo{
		ColorFormat: s.colorFormat.Format,
		DepthFormat: s.depthFormat,
	})
	if err != nil {
		err = fmt.Errorf("failed to create main render pass: %w", err)
		core.LogError(err.Error())
		return err
	}
	s.persistent.Add(pass)
	s.renderPass = pass

	s.slots = make([]FrameSlot, s.config.FramesInFlight)
	for i := range s.slots {
		available, err := s.device.CreateSemaphore()
		if err != nil {
			err = fmt.Errorf("failed to create image available semaphore %d: %w", i, err)
			core.LogError(err.Error())
			return err
		}
		s.persistent.Add(available)

		finished, err := s.device.CreateSemaphore()
		if err != nil {
			err = fmt.Errorf("failed to create render finished semaphore %d: %w", i, err)
			core.LogError(err.Error())
			return err
		}
		s.persistent.Add(finished)

		fence, err := s.device.CreateFence(true)
		if err != nil {
			err = fmt.Errorf("failed to create in flight fence %d: %w", i, err)
			core.LogError(err.Error())
			return err
		}
		s.persistent.Add(fence)

		s.slots[i] = FrameSlot{
			ImageAvailable: available,
			RenderFinished: finished,
			InFlight:       fence,
		}
	}
	return nil
}

// build creates a swapchain with its views, depth attachments and framebuffers. Everything it
// creates lands in the returned scope; on failure that scope is already released.
func (s *Swapchain) build(support driver.SurfaceSupport, extent driver.Extent2D, old driver.Swapchain) (*images, error) {
	caps := support.Capabilities
	info := driver.SwapchainInfo{
		Format:      ChooseSurfaceFormat(support.Formats),
		PresentMode: ChoosePresentMode(support.PresentModes, s.config.PresentMode),
		Extent:      ChooseExtent(caps, extent),
		ImageCount:  ChooseImageCount(caps),
		Old:         old,
	}
	if info.Extent.IsZero() {
		return nil, core.ErrZeroExtent
	}

	out := &images{
		generation: uuid.New(),
		extent:     info.Extent,
		scope:      driver.NewScope(),
	}
	fail := func(what string, err error) (*images, error) {
		out.scope.Destroy()
		err = fmt.Errorf("failed to create %s: %w", what, err)
		core.LogError(err.Error())
		return nil, err
	}

	handle, err := s.device.CreateSwapchain(info)
	if err != nil {
		return fail("swapchain", err)
	}
	out.scope.Add(handle)
	out.handle = handle

	views, err := handle.CreateImageViews()
	if err != nil {
		return fail("swapchain image views", err)
	}
	for _, v := range views {
		out.scope.Add(v)
	}
	out.views = views

	// The depth format is chosen once per device but re-read here so a change is caught.
	depthFormat, err := s.device.DepthFormat()
	if err != nil {
		return fail("depth format", err)
	}

	if info.Format != s.colorFormat || depthFormat != s.depthFormat {
		out.scope.Destroy()
		err := fmt.Errorf("%w: colour %d->%d depth %d->%d", core.ErrSwapchainFormatChanged,
			s.colorFormat.Format, info.Format.Format, s.depthFormat, depthFormat)
		core.LogError(err.Error())
		return nil, err
	}

	// One depth attachment per image, so frames in flight never share one.
	out.depth = make([]driver.Image, len(views))
	for i := range views {
		depth, err := s.device.CreateDepthImage(out.extent, depthFormat)
		if err != nil {
			return fail(fmt.Sprintf("depth attachment %d", i), err)
		}
		out.scope.Add(depth)
		out.depth[i] = depth
	}

	out.framebuffers = make([]driver.Framebuffer, len(views))
	for i, v := range views {
		fb, err := s.device.CreateFramebuffer(s.renderPass, out.extent, []driver.ImageView{v, out.depth[i].View()})
		if err != nil {
			return fail(fmt.Sprintf("framebuffer %d", i), err)
		}
		out.scope.Add(fb)
		out.framebuffers[i] = fb
	}

	core.Logger().Info("swapchain created",
		"generation", out.generation,
		"extent", out.extent,
		"images", len(views),
		"present_mode", info.PresentMode)
	return out, nil
}

func (s *Swapchain) adopt(built *images) {
	s.current = built
	s.imagesInFlight = make([]driver.Fence, len(built.views))
}

// Acquire waits for the slot to retire its previous frame and acquires the next image.
// A stale surface returns core.ErrSwapchainBooting.
func (s *Swapchain) Acquire(slot int) (uint32, error) {
	fs := s.slots[slot]
	if err := fs.InFlight.Wait(math.MaxUint64); err != nil {
		err = fmt.Errorf("failed waiting on in flight fence of slot %d: %w", slot, err)
		core.LogError(err.Error())
		return 0, err
	}

	index, err := s.current.handle.AcquireNextImage(math.MaxUint64, fs.ImageAvailable)
	switch {
	case err == nil, errors.Is(err, driver.ErrSuboptimal):
		return index, nil
	case errors.Is(err, driver.ErrOutOfDate):
		return 0, core.ErrSwapchainBooting
	}
	err = fmt.Errorf("failed to acquire swapchain image: %w", err)
	core.LogError(err.Error())
	return 0, err
}

// Submit hands cmd to the graphics queue and presents imageIndex. A stale surface at present
// returns core.ErrSwapchainBooting; the submission itself has still happened.
func (s *Swapchain) Submit(slot int, cmd driver.CommandBuffer, imageIndex uint32) error {
	fs := s.slots[slot]

	// Another slot may still be rendering to this image.
	if owner := s.imagesInFlight[imageIndex]; owner != nil {
		if err := owner.Wait(math.MaxUint64); err != nil {
			err = fmt.Errorf("failed waiting on owner fence of image %d: %w", imageIndex, err)
			core.LogError(err.Error())
			return err
		}
	}
	s.imagesInFlight[imageIndex] = fs.InFlight

	if err := fs.InFlight.Reset(); err != nil {
		err = fmt.Errorf("failed to reset in flight fence of slot %d: %w", slot, err)
		core.LogError(err.Error())
		return err
	}

	if err := s.device.GraphicsQueue().Submit(driver.SubmitInfo{
		CommandBuffer: cmd,
		Wait:          fs.ImageAvailable,
		Signal:        fs.RenderFinished,
		Fence:         fs.InFlight,
	}); err != nil {
		err = fmt.Errorf("failed to submit frame: %w", err)
		core.LogError(err.Error())
		return err
	}

	err := s.device.PresentQueue().Present(s.current.handle, imageIndex, fs.RenderFinished)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, driver.ErrOutOfDate), errors.Is(err, driver.ErrSuboptimal):
		return core.ErrSwapchainBooting
	}
	err = fmt.Errorf("failed to present swapchain image: %w", err)
	core.LogError(err.Error())
	return err
}

// Recreate rebuilds every extent-dependent object for extent. The new set is fully built before
// the old one is released, and the frame slots and render pass are kept.
func (s *Swapchain) Recreate(extent driver.Extent2D) error {
	if extent.IsZero() {
		return core.ErrZeroExtent
	}

	if err := s.device.WaitIdle(); err != nil {
		err = fmt.Errorf("failed to wait for device idle before recreation: %w", err)
		core.LogError(err.Error())
		return err
	}

	support, err := s.device.SurfaceSupport()
	if err != nil {
		err = fmt.Errorf("failed to query surface support: %w", err)
		core.LogError(err.Error())
		return err
	}

	built, err := s.build(support, extent, s.current.handle)
	if err != nil {
		return err
	}

	old := s.current
	s.adopt(built)
	old.scope.Destroy()
	core.LogDebug("retired swapchain generation %s", old.generation)
	return nil
}

// Destroy waits for the device and releases everything, images first.
func (s *Swapchain) Destroy() {
	if err := s.device.WaitIdle(); err != nil {
		core.LogWarn("wait idle before swapchain destroy failed: %s", err)
	}
	if s.current != nil {
		s.current.scope.Destroy()
		s.current = nil
	}
	s.persistent.Destroy()
	s.slots = nil
	s.imagesInFlight = nil
}

func (s *Swapchain) Extent() driver.Extent2D {
	return s.current.extent
}

func (s *Swapchain) Format() driver.SurfaceFormat {
	return s.colorFormat
}

func (s *Swapchain) DepthFormat() driver.Format {
	return s.depthFormat
}

func (s *Swapchain) ImageCount() int {
	return len(s.current.views)
}

func (s *Swapchain) FramesInFlight() int {
	return len(s.slots)
}

func (s *Swapchain) Slot(i int) FrameSlot {
	return s.slots[i]
}

func (s *Swapchain) RenderPass() driver.RenderPass {
	return s.renderPass
}

func (s *Swapchain) Framebuffer(imageIndex uint32) driver.Framebuffer {
	return s.current.framebuffers[imageIndex]
}

// DepthImage is the depth attachment of image i.
func (s *Swapchain) DepthImage(i uint32) driver.Image {
	return s.current.depth[i]
}

// ImageOwner returns the fence guarding image i, or nil when no submission used it yet.
func (s *Swapchain) ImageOwner(i uint32) driver.Fence {
	return s.imagesInFlight[i]
}

// Generation identifies the current set of images.
func (s *Swapchain) Generation() uuid.UUID {
	return s.current.generation
}

// ChooseSurfaceFormat prefers 8-bit BGRA sRGB, then 8-bit BGRA UNORM, both in the sRGB
// non-linear colour space, and otherwise takes the first reported format.
func ChooseSurfaceFormat(formats []driver.SurfaceFormat) driver.SurfaceFormat {
	for _, want := range []driver.Format{driver.FormatB8G8R8A8Srgb, driver.FormatB8G8R8A8Unorm} {
		for _, f := range formats {
			if f.Format == want && f.ColorSpace == driver.ColorSpaceSrgbNonlinear {
				return f
			}
		}
	}
	if len(formats) == 0 {
		return driver.SurfaceFormat{Format: driver.FormatB8G8R8A8Srgb, ColorSpace: driver.ColorSpaceSrgbNonlinear}
	}
	return formats[0]
}

// ChoosePresentMode returns preferred when the surface supports it. FIFO is always available.
func ChoosePresentMode(modes []driver.PresentMode, preferred driver.PresentMode) driver.PresentMode {
	for _, m := range modes {
		if m == preferred {
			return m
		}
	}
	return driver.PresentModeFifo
}

// ChooseExtent takes the surface's extent when it defines one. An undefined or zero surface
// extent (some platforms report 0x0 while minimized) falls back to the clamped window extent.
func ChooseExtent(caps driver.SurfaceCapabilities, window driver.Extent2D) driver.Extent2D {
	if caps.CurrentExtent.Width != math.MaxUint32 && !caps.CurrentExtent.IsZero() {
		return caps.CurrentExtent
	}
	return driver.Extent2D{
		Width:  amath.Clamp(window.Width, caps.MinImageExtent.Width, caps.MaxImageExtent.Width),
		Height: amath.Clamp(window.Height, caps.MinImageExtent.Height, caps.MaxImageExtent.Height),
	}
}

// ChooseImageCount asks for one image more than the minimum so the driver never blocks us.
func ChooseImageCount(caps driver.SurfaceCapabilities) uint32 {
	count := caps.MinImageCount + 1
	if caps.MaxImageCount > 0 && count > caps.MaxImageCount {
		count = caps.MaxImageCount
	}
	return count
}
