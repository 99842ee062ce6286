package platform

import (
	"fmt"
	"runtime"
	"unsafe"

	"github.com/go-gl/glfw/v3.3/glfw"
	"github.com/spaghettifunk/anima-renderer/engine/core"
	"github.com/spaghettifunk/anima-renderer/engine/renderer/driver"
)

func init() {
	// GLFW event handling must run on the main OS thread
	runtime.LockOSThread()
}

// Platform is the GLFW window. It implements renderer.Window and vulkan.SurfaceProvider.
type Platform struct {
	Window *glfw.Window

	events    *core.Dispatcher
	resized   bool
	startTime float64
}

// New creates an unstarted platform. events may be nil.
func New(events *core.Dispatcher) *Platform {
	return &Platform{events: events}
}

func (p *Platform) Startup(applicationName string, x uint32, y uint32, width uint32, height uint32) error {
	if err := glfw.Init(); err != nil {
		err = fmt.Errorf("failed to initialize glfw: %w", err)
		core.LogError(err.Error())
		return err
	}
	if !glfw.VulkanSupported() {
		glfw.Terminate()
		err := fmt.Errorf("glfw reports no vulkan loader")
		core.LogError(err.Error())
		return err
	}

	glfw.WindowHint(glfw.Visible, glfw.False)
	glfw.WindowHint(glfw.Resizable, glfw.True)
	glfw.WindowHint(glfw.ClientAPI, glfw.NoAPI) // Required for Vulkan.

	window, err := glfw.CreateWindow(int(width), int(height), applicationName, nil, nil)
	if err != nil {
		glfw.Terminate()
		err = fmt.Errorf("failed to create window: %w", err)
		core.LogError(err.Error())
		return err
	}
	p.Window = window

	p.Window.SetKeyCallback(p.keyCallback)
	p.Window.SetFramebufferSizeCallback(p.framebufferSizeCallback)
	p.Window.SetPos(int(x), int(y))
	p.Window.Show()

	p.startTime = glfw.GetTime()
	core.LogInfo("window %q created at %dx%d", applicationName, width, height)
	return nil
}

func (p *Platform) Shutdown() error {
	if p.Window != nil {
		p.Window.Destroy()
		p.Window = nil
	}
	glfw.Terminate()
	return nil
}

// PumpMessages processes pending window events. It returns false once the window was asked to
// close.
func (p *Platform) PumpMessages() bool {
	glfw.PollEvents()
	return !p.Window.ShouldClose()
}

func (p *Platform) WaitEvents() {
	glfw.WaitEvents()
}

func (p *Platform) Extent() driver.Extent2D {
	w, h := p.Window.GetFramebufferSize()
	return driver.Extent2D{Width: uint32(w), Height: uint32(h)}
}

func (p *Platform) WasResized() bool {
	return p.resized
}

func (p *Platform) ClearResized() {
	p.resized = false
}

// RequestClose makes the next PumpMessages return false.
func (p *Platform) RequestClose() {
	p.Window.SetShouldClose(true)
}

// GetAbsoluteTime is the number of seconds since Startup.
func (p *Platform) GetAbsoluteTime() float64 {
	return glfw.GetTime() - p.startTime
}

func (p *Platform) GetRequiredInstanceExtensions() []string {
	return p.Window.GetRequiredInstanceExtensions()
}

func (p *Platform) CreateWindowSurface(instance interface{}, allocCallbacks unsafe.Pointer) (uintptr, error) {
	return p.Window.CreateWindowSurface(instance, allocCallbacks)
}

func (p *Platform) keyCallback(w *glfw.Window, key glfw.Key, scancode int, action glfw.Action, mods glfw.ModifierKey) {
	if key == glfw.KeyEscape && action == glfw.Press {
		if p.events == nil || !p.events.Fire(core.EventCodeApplicationQuit, p, core.EventContext{}) {
			w.SetShouldClose(true)
		}
	}
}

func (p *Platform) framebufferSizeCallback(w *glfw.Window, width, height int) {
	p.resized = true
	if p.events == nil {
		return
	}
	var ctx core.EventContext
	ctx.Data.U32[0] = uint32(width)
	ctx.Data.U32[1] = uint32(height)
	p.events.Fire(core.EventCodeResized, p, ctx)
}
