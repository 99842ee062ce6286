package systems

import (
	"fmt"

	"github.com/spaghettifunk/anima-renderer/engine/core"
	"github.com/spaghettifunk/anima-renderer/engine/renderer/driver"
)

// SystemManager owns the geometry store and the render systems, drawing them in registration
// order.
type SystemManager struct {
	resources Resources
	geometry  *GeometryStore
	systems   []*RenderSystem
	byName    map[string]*RenderSystem
}

func NewSystemManager(resources Resources, geometry GeometryConfig) (*SystemManager, error) {
	gs, err := NewGeometryStore(resources, geometry)
	if err != nil {
		return nil, err
	}
	return &SystemManager{
		resources: resources,
		geometry:  gs,
		byName:    make(map[string]*RenderSystem),
	}, nil
}

func (sm *SystemManager) Geometry() *GeometryStore {
	return sm.geometry
}

// AddRenderSystem creates and registers a render system. Names are unique.
func (sm *SystemManager) AddRenderSystem(caps Capabilities, factory PipelineFactory) (*RenderSystem, error) {
	if _, ok := sm.byName[caps.Name]; ok {
		err := fmt.Errorf("render system %q already registered", caps.Name)
		core.LogError(err.Error())
		return nil, err
	}
	rs, err := NewRenderSystem(sm.resources, sm.geometry, caps, factory)
	if err != nil {
		return nil, err
	}
	sm.systems = append(sm.systems, rs)
	sm.byName[caps.Name] = rs
	return rs, nil
}

func (sm *SystemManager) RenderSystem(name string) (*RenderSystem, bool) {
	rs, ok := sm.byName[name]
	return rs, ok
}

// Render draws the queued objects of every system. Must run inside the frame's render pass.
func (sm *SystemManager) Render(cmd driver.CommandBuffer) int {
	draws := 0
	for _, rs := range sm.systems {
		rs.RenderQueued(cmd)
		draws += rs.LastDrawCount()
	}
	return draws
}

// Shutdown destroys the systems in reverse registration order. The geometry arenas belong to
// the renderer.
func (sm *SystemManager) Shutdown() error {
	for i := len(sm.systems) - 1; i >= 0; i-- {
		sm.systems[i].Destroy()
	}
	sm.systems = nil
	sm.byName = make(map[string]*RenderSystem)
	return nil
}
