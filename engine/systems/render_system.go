package systems

import (
	"fmt"

	"github.com/spaghettifunk/anima-renderer/engine/core"
	"github.com/spaghettifunk/anima-renderer/engine/renderer/arena"
	"github.com/spaghettifunk/anima-renderer/engine/renderer/driver"
)

// Resources is what systems draw on from the renderer. *renderer.Renderer implements it.
type Resources interface {
	Device() driver.Device
	GetOrCreateLayout(bindings []driver.DescriptorBinding) (driver.DescriptorSetLayout, error)
	AllocateDescriptorSet(layout driver.DescriptorSetLayout) (driver.DescriptorSet, error)
	NewArena(config arena.Config) (*arena.Arena, error)
}

// Capabilities selects what a render system does. One RenderSystem type covers the mesh,
// instanced and bindless variants.
type Capabilities struct {
	Name     string
	Bindings []driver.DescriptorBinding
	// Instanced draws every object sharing a mesh in one call.
	Instanced bool
	// BindlessTextures appends a combined image sampler array of MaxTextures after the last
	// binding in Bindings.
	BindlessTextures bool
	MaxTextures      uint32
	PushConstantSize uint32
}

// PipelineFactory builds the graphics pipeline against layout. Shader and pipeline state are
// not managed here.
type PipelineFactory func(layout driver.PipelineLayout) (driver.Pipeline, error)

type RenderSystem struct {
	caps      Capabilities
	geometry  *GeometryStore
	scope     *driver.Scope
	setLayout driver.DescriptorSetLayout
	layout    driver.PipelineLayout
	pipeline  driver.Pipeline
	set       driver.DescriptorSet

	textureBinding uint32
	queued         []RenderObject
	order          []RenderObject
	draws          int
}

func NewRenderSystem(resources Resources, geometry *GeometryStore, caps Capabilities, factory PipelineFactory) (*RenderSystem, error) {
	bindings := append([]driver.DescriptorBinding(nil), caps.Bindings...)

	var textureBinding uint32
	if caps.BindlessTextures {
		if caps.MaxTextures == 0 {
			err := fmt.Errorf("render system %q: bindless textures need MaxTextures > 0", caps.Name)
			core.LogError(err.Error())
			return nil, err
		}
		for _, b := range bindings {
			if b.Binding >= textureBinding {
				textureBinding = b.Binding + 1
			}
		}
		bindings = append(bindings, driver.DescriptorBinding{
			Binding: textureBinding,
			Type:    driver.DescriptorTypeCombinedImageSampler,
			Count:   caps.MaxTextures,
			Stages:  driver.ShaderStageFragment,
		})
	}

	// Layouts belong to the cache and sets to the pool; the system owns only what it creates.
	setLayout, err := resources.GetOrCreateLayout(bindings)
	if err != nil {
		return nil, err
	}

	s := &RenderSystem{
		caps:           caps,
		geometry:       geometry,
		scope:          driver.NewScope(),
		setLayout:      setLayout,
		textureBinding: textureBinding,
	}

	layout, err := resources.Device().CreatePipelineLayout([]driver.DescriptorSetLayout{setLayout}, caps.PushConstantSize)
	if err != nil {
		err = fmt.Errorf("render system %q: failed to create pipeline layout: %w", caps.Name, err)
		core.LogError(err.Error())
		return nil, err
	}
	s.layout = layout
	s.scope.Add(layout)

	if factory != nil {
		pipeline, err := factory(layout)
		if err != nil {
			s.scope.Destroy()
			err = fmt.Errorf("render system %q: pipeline factory failed: %w", caps.Name, err)
			core.LogError(err.Error())
			return nil, err
		}
		s.pipeline = pipeline
		s.scope.Add(pipeline)
	}

	set, err := resources.AllocateDescriptorSet(setLayout)
	if err != nil {
		s.scope.Destroy()
		return nil, err
	}
	s.set = set

	core.Logger().Debug("render system created",
		"name", caps.Name,
		"bindings", len(bindings),
		"instanced", caps.Instanced,
		"bindless", caps.BindlessTextures)
	return s, nil
}

// Enqueue adds objects to be drawn by the next RenderQueued.
func (s *RenderSystem) Enqueue(objects ...RenderObject) {
	s.queued = append(s.queued, objects...)
}

// RenderQueued draws everything enqueued since the last call and clears the queue.
func (s *RenderSystem) RenderQueued(cmd driver.CommandBuffer) []RenderObject {
	order := s.Render(cmd, s.queued)
	s.queued = s.queued[:0]
	return order
}

// Render records the draws for objects and returns the instance order. It must be called
// inside the frame's render pass.
func (s *RenderSystem) Render(cmd driver.CommandBuffer, objects []RenderObject) []RenderObject {
	draws, order := BuildDrawCalls(objects, s.caps.Instanced)
	s.order = order
	s.draws = len(draws)
	if len(draws) == 0 {
		return order
	}

	if s.pipeline != nil {
		cmd.BindPipeline(s.pipeline)
	}
	cmd.BindDescriptorSets(s.layout, 0, s.set)
	s.geometry.Bind(cmd)
	for _, d := range draws {
		cmd.DrawIndexed(d.IndexCount, d.InstanceCount, d.FirstIndex, d.VertexOffset, d.FirstInstance)
	}
	return order
}

// PushConstants pushes data at offset 0 to the vertex and fragment stages.
func (s *RenderSystem) PushConstants(cmd driver.CommandBuffer, data []byte) error {
	if uint32(len(data)) > s.caps.PushConstantSize {
		err := fmt.Errorf("render system %q: %d bytes of push constants exceed the declared %d",
			s.caps.Name, len(data), s.caps.PushConstantSize)
		core.LogError(err.Error())
		return err
	}
	cmd.PushConstants(s.layout, driver.ShaderStageVertex|driver.ShaderStageFragment, 0, data)
	return nil
}

func (s *RenderSystem) Name() string {
	return s.caps.Name
}

func (s *RenderSystem) Capabilities() Capabilities {
	return s.caps
}

// DescriptorSet is the system's persistent set. It is never reset.
func (s *RenderSystem) DescriptorSet() driver.DescriptorSet {
	return s.set
}

func (s *RenderSystem) SetLayout() driver.DescriptorSetLayout {
	return s.setLayout
}

func (s *RenderSystem) PipelineLayout() driver.PipelineLayout {
	return s.layout
}

// TextureBinding is the binding index of the bindless texture array.
func (s *RenderSystem) TextureBinding() uint32 {
	return s.textureBinding
}

// LastDrawCount is the number of draw calls the last Render issued.
func (s *RenderSystem) LastDrawCount() int {
	return s.draws
}

func (s *RenderSystem) Destroy() {
	s.scope.Destroy()
	s.pipeline = nil
	s.layout = nil
	s.queued = nil
}
