package engine

import (
	"github.com/spaghettifunk/anima-renderer/engine/renderer"
	"github.com/spaghettifunk/anima-renderer/engine/renderer/driver"
	"github.com/spaghettifunk/anima-renderer/engine/systems"
)

type Game struct {
	ApplicationConfig *ApplicationConfig
	State             interface{}
	FnInitialize      Initialize
	FnUpdate          Update
	FnRender          Render
	FnOnResize        OnResize
	FnShutdown        Shutdown
}

// Initialize runs once the renderer is up. Geometry uploads and render systems belong here.
type Initialize func(r *renderer.Renderer, sm *systems.SystemManager) error
type Update func(deltaTime float64) error

// Render records the game's own commands inside the frame's render pass, before the render
// systems draw.
type Render func(cmd driver.CommandBuffer, deltaTime float64) error
type OnResize func(width uint32, height uint32) error
type Shutdown func() error
