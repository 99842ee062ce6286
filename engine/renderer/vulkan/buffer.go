package vulkan

import (
	"fmt"
	"unsafe"

	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/anima-renderer/engine/core"
	"github.com/spaghettifunk/anima-renderer/engine/renderer/driver"
)

type buffer struct {
	device   *Device
	handle   vk.Buffer
	memory   vk.DeviceMemory
	size     uint64
	location driver.MemoryLocation
}

func (d *Device) CreateBuffer(size uint64, usage driver.BufferUsage, location driver.MemoryLocation) (driver.Buffer, error) {
	info := vk.BufferCreateInfo{
		SType:       vk.StructureTypeBufferCreateInfo,
		Size:        vk.DeviceSize(size),
		Usage:       vk.BufferUsageFlags(usage),
		SharingMode: vk.SharingModeExclusive,
	}

	b := &buffer{device: d, size: size, location: location}
	if err := resultError(vk.CreateBuffer(d.logical, &info, d.allocator, &b.handle), "vkCreateBuffer"); err != nil {
		err = fmt.Errorf("failed to create buffer of %d bytes: %w", size, err)
		core.LogError(err.Error())
		return nil, err
	}

	var requirements vk.MemoryRequirements
	vk.GetBufferMemoryRequirements(d.logical, b.handle, &requirements)
	requirements.Deref()

	flags := vk.MemoryPropertyDeviceLocalBit
	if location == driver.MemoryHostVisible {
		flags = vk.MemoryPropertyHostVisibleBit | vk.MemoryPropertyHostCoherentBit
	}
	memoryType, err := d.FindMemoryIndex(requirements.MemoryTypeBits, flags)
	if err != nil {
		b.Destroy()
		return nil, err
	}

	allocInfo := vk.MemoryAllocateInfo{
		SType:           vk.StructureTypeMemoryAllocateInfo,
		AllocationSize:  requirements.Size,
		MemoryTypeIndex: memoryType,
	}
	if err := resultError(vk.AllocateMemory(d.logical, &allocInfo, d.allocator, &b.memory), "vkAllocateMemory"); err != nil {
		b.Destroy()
		err = fmt.Errorf("failed to allocate %d bytes of buffer memory: %w", requirements.Size, err)
		core.LogError(err.Error())
		return nil, err
	}
	if err := resultError(vk.BindBufferMemory(d.logical, b.handle, b.memory, 0), "vkBindBufferMemory"); err != nil {
		b.Destroy()
		core.LogError(err.Error())
		return nil, err
	}
	return b, nil
}

func (b *buffer) Size() uint64 {
	return b.size
}

func (b *buffer) Write(data []byte, offset uint64) error {
	if b.location != driver.MemoryHostVisible {
		err := fmt.Errorf("buffer write at %d: memory is not host visible", offset)
		core.LogError(err.Error())
		return err
	}
	if offset+uint64(len(data)) > b.size {
		err := fmt.Errorf("buffer write of %d bytes at %d overflows size %d", len(data), offset, b.size)
		core.LogError(err.Error())
		return err
	}
	if len(data) == 0 {
		return nil
	}

	var mapped unsafe.Pointer
	if err := resultError(vk.MapMemory(b.device.logical, b.memory, vk.DeviceSize(offset), vk.DeviceSize(len(data)), 0, &mapped), "vkMapMemory"); err != nil {
		core.LogError(err.Error())
		return err
	}
	vk.Memcopy(mapped, data)
	vk.UnmapMemory(b.device.logical, b.memory)
	return nil
}

func (b *buffer) Destroy() {
	if b.memory != nil {
		vk.FreeMemory(b.device.logical, b.memory, b.device.allocator)
		b.memory = nil
	}
	if b.handle != vk.NullBuffer {
		vk.DestroyBuffer(b.device.logical, b.handle, b.device.allocator)
		b.handle = vk.NullBuffer
	}
}
