package vulkan

import (
	"fmt"

	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/anima-renderer/engine/core"
	"github.com/spaghettifunk/anima-renderer/engine/renderer/driver"
)

// maxPushConstantSize is the minimum every implementation guarantees.
const maxPushConstantSize = 128

type pipelineLayout struct {
	device *Device
	handle vk.PipelineLayout
}

// CreatePipelineLayout creates a layout over setLayouts with a single push constant range
// visible to the vertex and fragment stages.
func (d *Device) CreatePipelineLayout(setLayouts []driver.DescriptorSetLayout, pushConstantSize uint32) (driver.PipelineLayout, error) {
	if pushConstantSize > maxPushConstantSize {
		err := fmt.Errorf("push constant size %d exceeds the guaranteed %d bytes", pushConstantSize, maxPushConstantSize)
		core.LogError(err.Error())
		return nil, err
	}

	handles := make([]vk.DescriptorSetLayout, len(setLayouts))
	for i, l := range setLayouts {
		handles[i] = l.(*descriptorSetLayout).handle
	}

	info := vk.PipelineLayoutCreateInfo{
		SType:          vk.StructureTypePipelineLayoutCreateInfo,
		SetLayoutCount: uint32(len(handles)),
		PSetLayouts:    handles,
	}
	if pushConstantSize > 0 {
		info.PushConstantRangeCount = 1
		info.PPushConstantRanges = []vk.PushConstantRange{{
			StageFlags: vk.ShaderStageFlags(vk.ShaderStageVertexBit) | vk.ShaderStageFlags(vk.ShaderStageFragmentBit),
			Offset:     0,
			Size:       pushConstantSize,
		}}
	}

	var handle vk.PipelineLayout
	if err := resultError(vk.CreatePipelineLayout(d.logical, &info, d.allocator, &handle), "vkCreatePipelineLayout"); err != nil {
		core.LogError(err.Error())
		return nil, err
	}
	return &pipelineLayout{device: d, handle: handle}, nil
}

func (l *pipelineLayout) Destroy() {
	if l.handle != nil {
		vk.DestroyPipelineLayout(l.device.logical, l.handle, l.device.allocator)
		l.handle = nil
	}
}

// PipelineLayoutHandle unwraps a layout created by this device.
func (d *Device) PipelineLayoutHandle(layout driver.PipelineLayout) vk.PipelineLayout {
	return layout.(*pipelineLayout).handle
}

type pipeline struct {
	device *Device
	handle vk.Pipeline
}

// WrapPipeline takes ownership of a graphics pipeline built elsewhere against this device so it
// can be bound and destroyed through the driver interfaces.
func (d *Device) WrapPipeline(handle vk.Pipeline) driver.Pipeline {
	return &pipeline{device: d, handle: handle}
}

func (p *pipeline) Destroy() {
	if p.handle != vk.NullPipeline {
		vk.DestroyPipeline(p.device.logical, p.handle, p.device.allocator)
		p.handle = vk.NullPipeline
	}
}

type sampler struct {
	device *Device
	handle vk.Sampler
}

// CreateSampler creates a repeat-addressed sampler, linear or nearest filtered.
func (d *Device) CreateSampler(linear bool) (driver.Sampler, error) {
	filter := vk.FilterNearest
	if linear {
		filter = vk.FilterLinear
	}
	info := vk.SamplerCreateInfo{
		SType:            vk.StructureTypeSamplerCreateInfo,
		MagFilter:        filter,
		MinFilter:        filter,
		AddressModeU:     vk.SamplerAddressModeRepeat,
		AddressModeV:     vk.SamplerAddressModeRepeat,
		AddressModeW:     vk.SamplerAddressModeRepeat,
		AnisotropyEnable: vk.True,
		MaxAnisotropy:    16,
		BorderColor:      vk.BorderColorIntOpaqueBlack,
		CompareOp:        vk.CompareOpAlways,
		MipmapMode:       vk.SamplerMipmapModeLinear,
	}

	var handle vk.Sampler
	if err := resultError(vk.CreateSampler(d.logical, &info, d.allocator, &handle), "vkCreateSampler"); err != nil {
		core.LogError(err.Error())
		return nil, err
	}
	return &sampler{device: d, handle: handle}, nil
}

func (s *sampler) Destroy() {
	if s.handle != nil {
		vk.DestroySampler(s.device.logical, s.handle, s.device.allocator)
		s.handle = nil
	}
}
