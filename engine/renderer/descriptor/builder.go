package descriptor

import (
	"fmt"

	"github.com/spaghettifunk/anima-renderer/engine/core"
	"github.com/spaghettifunk/anima-renderer/engine/renderer/driver"
)

type pendingWrite struct {
	binding driver.DescriptorBinding
	buffers []driver.BufferRange
	images  []driver.ImageBinding
}

// Builder collects bindings and resources, then produces a written descriptor set whose layout
// comes from the shared cache.
//
//	set, layout, err := descriptor.NewBuilder(cache, alloc).
//		BindBuffer(0, ubo, driver.DescriptorTypeUniformBuffer, driver.ShaderStageVertex).
//		BindImage(1, albedo, driver.DescriptorTypeCombinedImageSampler, driver.ShaderStageFragment).
//		Build()
type Builder struct {
	cache     *LayoutCache
	allocator *Allocator
	writes    []pendingWrite
}

func NewBuilder(cache *LayoutCache, allocator *Allocator) *Builder {
	return &Builder{
		cache:     cache,
		allocator: allocator,
	}
}

func (b *Builder) BindBuffer(binding uint32, buffer driver.BufferRange, descriptorType driver.DescriptorType, stages driver.ShaderStage) *Builder {
	b.writes = append(b.writes, pendingWrite{
		binding: driver.DescriptorBinding{Binding: binding, Type: descriptorType, Count: 1, Stages: stages},
		buffers: []driver.BufferRange{buffer},
	})
	return b
}

func (b *Builder) BindImage(binding uint32, image driver.ImageBinding, descriptorType driver.DescriptorType, stages driver.ShaderStage) *Builder {
	return b.BindImages(binding, []driver.ImageBinding{image}, descriptorType, stages)
}

// BindImages binds an array of images to one binding, as used by bindless texture tables.
func (b *Builder) BindImages(binding uint32, images []driver.ImageBinding, descriptorType driver.DescriptorType, stages driver.ShaderStage) *Builder {
	b.writes = append(b.writes, pendingWrite{
		binding: driver.DescriptorBinding{Binding: binding, Type: descriptorType, Count: uint32(len(images)), Stages: stages},
		images:  images,
	})
	return b
}

func (b *Builder) BindSamplers(binding uint32, samplers []driver.Sampler, stages driver.ShaderStage) *Builder {
	images := make([]driver.ImageBinding, len(samplers))
	for i, s := range samplers {
		images[i] = driver.ImageBinding{Sampler: s}
	}
	return b.BindImages(binding, images, driver.DescriptorTypeSampler, stages)
}

func (b *Builder) bindings() []driver.DescriptorBinding {
	out := make([]driver.DescriptorBinding, len(b.writes))
	for i, w := range b.writes {
		out[i] = w.binding
	}
	return out
}

// BuildLayout returns the cached layout for the bindings collected so far without
// allocating a set.
func (b *Builder) BuildLayout() (driver.DescriptorSetLayout, error) {
	return b.cache.GetOrCreate(b.bindings())
}

func (b *Builder) Build() (driver.DescriptorSet, driver.DescriptorSetLayout, error) {
	layout, err := b.BuildLayout()
	if err != nil {
		return nil, nil, err
	}

	set, err := b.allocator.Allocate(layout)
	if err != nil {
		return nil, nil, err
	}

	writes := make([]driver.DescriptorWrite, 0, len(b.writes))
	for _, w := range b.writes {
		if len(w.buffers) == 0 && len(w.images) == 0 {
			continue
		}
		writes = append(writes, driver.DescriptorWrite{
			Set:     set,
			Binding: w.binding.Binding,
			Type:    w.binding.Type,
			Buffers: w.buffers,
			Images:  w.images,
		})
	}
	if len(writes) > 0 {
		b.cache.device.UpdateDescriptorSets(writes)
	}
	core.LogDebug("built descriptor set with %s", describe(b.writes))
	return set, layout, nil
}

func describe(writes []pendingWrite) string {
	s := ""
	for i, w := range writes {
		if i > 0 {
			s += ", "
		}
		s += fmt.Sprintf("%d:type%d[%d]", w.binding.Binding, w.binding.Type, w.binding.Count)
	}
	return s
}
