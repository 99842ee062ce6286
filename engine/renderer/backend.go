package renderer

import (
	"fmt"

	"github.com/spaghettifunk/anima-renderer/engine/renderer/driver"
)

// Window is what the renderer needs from the platform layer.
type Window interface {
	// Extent is the current drawable size in pixels. It is zero while minimized.
	Extent() driver.Extent2D
	WasResized() bool
	ClearResized()
	// WaitEvents blocks until the platform has at least one event to process.
	WaitEvents()
}

type RendererType uint8

const (
	Vulkan RendererType = iota
	DirectX
	Metal
	OpenGL
)

func (t RendererType) String() string {
	switch t {
	case Vulkan:
		return "vulkan"
	case DirectX:
		return "directx"
	case Metal:
		return "metal"
	case OpenGL:
		return "opengl"
	}
	return "unknown"
}

// ParseRendererType maps a config value to a RendererType. Only Vulkan has a backend.
func ParseRendererType(s string) (RendererType, error) {
	switch s {
	case "", "vulkan":
		return Vulkan, nil
	case "directx", "metal", "opengl":
		return Vulkan, fmt.Errorf("renderer backend %q is not implemented", s)
	}
	return Vulkan, fmt.Errorf("unknown renderer backend %q", s)
}

type FrameState uint8

const (
	FrameStateIdle FrameState = iota
	FrameStateStarted
	FrameStateRenderPassActive
)

func (s FrameState) String() string {
	switch s {
	case FrameStateIdle:
		return "idle"
	case FrameStateStarted:
		return "frame_started"
	case FrameStateRenderPassActive:
		return "render_pass_active"
	}
	return "unknown"
}
