package vulkan

import (
	"fmt"

	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/anima-renderer/engine/core"
	"github.com/spaghettifunk/anima-renderer/engine/renderer/driver"
)

type descriptorSetLayout struct {
	device *Device
	handle vk.DescriptorSetLayout
}

func (d *Device) CreateDescriptorSetLayout(bindings []driver.DescriptorBinding) (driver.DescriptorSetLayout, error) {
	vkBindings := make([]vk.DescriptorSetLayoutBinding, len(bindings))
	for i, b := range bindings {
		vkBindings[i] = vk.DescriptorSetLayoutBinding{
			Binding:         b.Binding,
			DescriptorType:  vk.DescriptorType(b.Type),
			DescriptorCount: b.Count,
			StageFlags:      vk.ShaderStageFlags(b.Stages),
		}
	}

	info := vk.DescriptorSetLayoutCreateInfo{
		SType:        vk.StructureTypeDescriptorSetLayoutCreateInfo,
		BindingCount: uint32(len(vkBindings)),
		PBindings:    vkBindings,
	}

	var handle vk.DescriptorSetLayout
	if err := resultError(vk.CreateDescriptorSetLayout(d.logical, &info, d.allocator, &handle), "vkCreateDescriptorSetLayout"); err != nil {
		err = fmt.Errorf("failed to create descriptor set layout with %d bindings: %w", len(bindings), err)
		core.LogError(err.Error())
		return nil, err
	}
	return &descriptorSetLayout{device: d, handle: handle}, nil
}

func (l *descriptorSetLayout) Destroy() {
	if l.handle != nil {
		vk.DestroyDescriptorSetLayout(l.device.logical, l.handle, l.device.allocator)
		l.handle = nil
	}
}

type descriptorSet struct {
	handle vk.DescriptorSet
}

type descriptorPool struct {
	device *Device
	handle vk.DescriptorPool
}

func (d *Device) CreateDescriptorPool(maxSets uint32, sizes []driver.PoolSize) (driver.DescriptorPool, error) {
	vkSizes := make([]vk.DescriptorPoolSize, len(sizes))
	for i, s := range sizes {
		vkSizes[i] = vk.DescriptorPoolSize{
			Type:            vk.DescriptorType(s.Type),
			DescriptorCount: s.Count,
		}
	}

	info := vk.DescriptorPoolCreateInfo{
		SType:         vk.StructureTypeDescriptorPoolCreateInfo,
		MaxSets:       maxSets,
		PoolSizeCount: uint32(len(vkSizes)),
		PPoolSizes:    vkSizes,
	}

	var handle vk.DescriptorPool
	if err := resultError(vk.CreateDescriptorPool(d.logical, &info, d.allocator, &handle), "vkCreateDescriptorPool"); err != nil {
		err = fmt.Errorf("failed to create descriptor pool for %d sets: %w", maxSets, err)
		core.LogError(err.Error())
		return nil, err
	}
	return &descriptorPool{device: d, handle: handle}, nil
}

// Allocate returns an error wrapping driver.ErrOutOfPoolMemory or driver.ErrFragmentedPool when the
// pool is full. It does not log those, the allocator decides whether they are fatal.
func (p *descriptorPool) Allocate(layout driver.DescriptorSetLayout) (driver.DescriptorSet, error) {
	info := vk.DescriptorSetAllocateInfo{
		SType:              vk.StructureTypeDescriptorSetAllocateInfo,
		DescriptorPool:     p.handle,
		DescriptorSetCount: 1,
		PSetLayouts:        []vk.DescriptorSetLayout{layout.(*descriptorSetLayout).handle},
	}
	sets := make([]vk.DescriptorSet, 1)
	if err := resultError(vk.AllocateDescriptorSets(p.device.logical, &info, &sets[0]), "vkAllocateDescriptorSets"); err != nil {
		return nil, err
	}
	return &descriptorSet{handle: sets[0]}, nil
}

func (p *descriptorPool) Reset() error {
	if err := resultError(vk.ResetDescriptorPool(p.device.logical, p.handle, 0), "vkResetDescriptorPool"); err != nil {
		core.LogError(err.Error())
		return err
	}
	return nil
}

func (p *descriptorPool) Destroy() {
	if p.handle != nil {
		vk.DestroyDescriptorPool(p.device.logical, p.handle, p.device.allocator)
		p.handle = nil
	}
}

// UpdateDescriptorSets writes buffers or sampled images into sets. Image descriptors are expected
// in the shader read-only layout.
func (d *Device) UpdateDescriptorSets(writes []driver.DescriptorWrite) {
	if len(writes) == 0 {
		return
	}
	vkWrites := make([]vk.WriteDescriptorSet, len(writes))
	for i, w := range writes {
		vkWrite := vk.WriteDescriptorSet{
			SType:           vk.StructureTypeWriteDescriptorSet,
			DstSet:          w.Set.(*descriptorSet).handle,
			DstBinding:      w.Binding,
			DstArrayElement: w.ArrayElement,
			DescriptorType:  vk.DescriptorType(w.Type),
		}
		if len(w.Buffers) > 0 {
			infos := make([]vk.DescriptorBufferInfo, len(w.Buffers))
			for j, r := range w.Buffers {
				infos[j] = vk.DescriptorBufferInfo{
					Buffer: r.Buffer.(*buffer).handle,
					Offset: vk.DeviceSize(r.Offset),
					Range:  vk.DeviceSize(r.Range),
				}
			}
			vkWrite.DescriptorCount = uint32(len(infos))
			vkWrite.PBufferInfo = infos
		} else {
			infos := make([]vk.DescriptorImageInfo, len(w.Images))
			for j, img := range w.Images {
				info := vk.DescriptorImageInfo{
					ImageLayout: vk.ImageLayoutShaderReadOnlyOptimal,
				}
				if img.View != nil {
					info.ImageView = img.View.(*imageView).handle
				}
				if img.Sampler != nil {
					info.Sampler = img.Sampler.(*sampler).handle
				}
				infos[j] = info
			}
			vkWrite.DescriptorCount = uint32(len(infos))
			vkWrite.PImageInfo = infos
		}
		vkWrites[i] = vkWrite
	}
	vk.UpdateDescriptorSets(d.logical, uint32(len(vkWrites)), vkWrites, 0, nil)
}
