package testbed

import (
	"encoding/binary"
	"math"

	"github.com/spaghettifunk/anima-renderer/engine"
	"github.com/spaghettifunk/anima-renderer/engine/core"
	amath "github.com/spaghettifunk/anima-renderer/engine/math"
	"github.com/spaghettifunk/anima-renderer/engine/renderer"
	"github.com/spaghettifunk/anima-renderer/engine/renderer/driver"
	"github.com/spaghettifunk/anima-renderer/engine/systems"
)

type TestGame struct {
	*engine.Game
}

type gameState struct {
	renderer *renderer.Renderer
	systems  *systems.SystemManager
	quad     *systems.Mesh

	elapsed float64
	width   uint32
	height  uint32
}

func NewTestGame() *TestGame {
	tg := &TestGame{
		Game: &engine.Game{
			ApplicationConfig: &engine.ApplicationConfig{
				Name: "Anima Testbed",
			},
			State: &gameState{},
		},
	}

	tg.FnInitialize = tg.Initialize
	tg.FnUpdate = tg.Update
	tg.FnRender = tg.Render
	tg.FnOnResize = tg.OnResize
	tg.FnShutdown = tg.Shutdown

	return tg
}

// quadVertices is a unit quad of position (vec3) and uv (vec2) vertices.
func quadVertices() []byte {
	verts := [][5]float32{
		{-0.5, -0.5, 0, 0, 0},
		{0.5, -0.5, 0, 1, 0},
		{0.5, 0.5, 0, 1, 1},
		{-0.5, 0.5, 0, 0, 1},
	}
	out := make([]byte, 0, len(verts)*5*4)
	for _, v := range verts {
		for _, f := range v {
			out = binary.LittleEndian.AppendUint32(out, math.Float32bits(f))
		}
	}
	return out
}

func (g *TestGame) Initialize(r *renderer.Renderer, sm *systems.SystemManager) error {
	core.LogDebug("TestGame Initialize fn....")
	state := g.State.(*gameState)
	state.renderer = r
	state.systems = sm

	prim, err := sm.Geometry().Upload(quadVertices(), 5*4, []uint32{0, 1, 2, 2, 3, 0}, 0)
	if err != nil {
		return err
	}
	quad, err := sm.Geometry().AddMesh("quad", prim)
	if err != nil {
		return err
	}
	state.quad = quad

	// Shaders are not part of the testbed, so the system draws nothing until a pipeline is
	// supplied. Its layout, set and bindless slot are still built.
	if _, err := sm.AddRenderSystem(systems.Capabilities{
		Name: "quads",
		Bindings: []driver.DescriptorBinding{
			{Binding: 0, Type: driver.DescriptorTypeStorageBuffer, Count: 1, Stages: driver.ShaderStageVertex},
		},
		Instanced:        true,
		BindlessTextures: true,
		MaxTextures:      16,
		PushConstantSize: 64,
	}, nil); err != nil {
		return err
	}
	return nil
}

func (g *TestGame) Update(deltaTime float64) error {
	state := g.State.(*gameState)
	state.elapsed += deltaTime

	// Slowly cycle the clear colour so dropped or stuck frames are visible.
	t := float32(state.elapsed)
	state.renderer.SetClearColor([4]float32{
		amath.Clamp(0.5+0.5*float32(math.Sin(float64(t))), 0, 1),
		amath.Clamp(0.5+0.5*float32(math.Sin(float64(t)+2.094)), 0, 1),
		amath.Clamp(0.5+0.5*float32(math.Sin(float64(t)+4.188)), 0, 1),
		1,
	})
	return nil
}

func (g *TestGame) Render(cmd driver.CommandBuffer, deltaTime float64) error {
	return nil
}

func (g *TestGame) OnResize(width uint32, height uint32) error {
	state := g.State.(*gameState)
	state.width = width
	state.height = height
	return nil
}

func (g *TestGame) Shutdown() error {
	core.LogInfo("testbed shutting down")
	return nil
}
