package vulkan

import (
	"fmt"

	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/anima-renderer/engine/core"
	"github.com/spaghettifunk/anima-renderer/engine/renderer/driver"
)

type imageView struct {
	device *Device
	handle vk.ImageView
}

func (d *Device) createImageView(image vk.Image, format vk.Format, aspect vk.ImageAspectFlagBits) (*imageView, error) {
	info := vk.ImageViewCreateInfo{
		SType:    vk.StructureTypeImageViewCreateInfo,
		Image:    image,
		ViewType: vk.ImageViewType2d,
		Format:   format,
		SubresourceRange: vk.ImageSubresourceRange{
			AspectMask:     vk.ImageAspectFlags(aspect),
			BaseMipLevel:   0,
			LevelCount:     1,
			BaseArrayLayer: 0,
			LayerCount:     1,
		},
	}

	var handle vk.ImageView
	if err := resultError(vk.CreateImageView(d.logical, &info, d.allocator, &handle), "vkCreateImageView"); err != nil {
		core.LogError(err.Error())
		return nil, err
	}
	return &imageView{device: d, handle: handle}, nil
}

func (v *imageView) Destroy() {
	if v.handle != nil {
		vk.DestroyImageView(v.device.logical, v.handle, v.device.allocator)
		v.handle = nil
	}
}

// image is a device-local 2D image with its own memory and a default view.
type image struct {
	device *Device
	handle vk.Image
	memory vk.DeviceMemory
	view   *imageView
	extent driver.Extent2D
}

func (d *Device) createImage(extent driver.Extent2D, format vk.Format, usage vk.ImageUsageFlagBits, aspect vk.ImageAspectFlagBits) (*image, error) {
	info := vk.ImageCreateInfo{
		SType:     vk.StructureTypeImageCreateInfo,
		ImageType: vk.ImageType2d,
		Extent: vk.Extent3D{
			Width:  extent.Width,
			Height: extent.Height,
			Depth:  1,
		},
		MipLevels:     1,
		ArrayLayers:   1,
		Format:        format,
		Tiling:        vk.ImageTilingOptimal,
		InitialLayout: vk.ImageLayoutUndefined,
		Usage:         vk.ImageUsageFlags(usage),
		Samples:       vk.SampleCount1Bit,
		SharingMode:   vk.SharingModeExclusive,
	}

	img := &image{device: d, extent: extent}
	if err := resultError(vk.CreateImage(d.logical, &info, d.allocator, &img.handle), "vkCreateImage"); err != nil {
		core.LogError(err.Error())
		return nil, err
	}

	var requirements vk.MemoryRequirements
	vk.GetImageMemoryRequirements(d.logical, img.handle, &requirements)
	requirements.Deref()

	memoryType, err := d.FindMemoryIndex(requirements.MemoryTypeBits, vk.MemoryPropertyDeviceLocalBit)
	if err != nil {
		img.Destroy()
		return nil, err
	}

	allocInfo := vk.MemoryAllocateInfo{
		SType:           vk.StructureTypeMemoryAllocateInfo,
		AllocationSize:  requirements.Size,
		MemoryTypeIndex: memoryType,
	}
	if err := resultError(vk.AllocateMemory(d.logical, &allocInfo, d.allocator, &img.memory), "vkAllocateMemory"); err != nil {
		img.Destroy()
		err = fmt.Errorf("failed to allocate image memory: %w", err)
		core.LogError(err.Error())
		return nil, err
	}
	if err := resultError(vk.BindImageMemory(d.logical, img.handle, img.memory, 0), "vkBindImageMemory"); err != nil {
		img.Destroy()
		core.LogError(err.Error())
		return nil, err
	}

	view, err := d.createImageView(img.handle, format, aspect)
	if err != nil {
		img.Destroy()
		return nil, err
	}
	img.view = view
	return img, nil
}

// CreateDepthImage creates the depth attachment for one swapchain build.
func (d *Device) CreateDepthImage(extent driver.Extent2D, format driver.Format) (driver.Image, error) {
	img, err := d.createImage(extent, vk.Format(format), vk.ImageUsageDepthStencilAttachmentBit, vk.ImageAspectDepthBit)
	if err != nil {
		err = fmt.Errorf("failed to create depth image at %s: %w", extent, err)
		core.LogError(err.Error())
		return nil, err
	}
	return img, nil
}

func (i *image) View() driver.ImageView {
	return i.view
}

func (i *image) Extent() driver.Extent2D {
	return i.extent
}

func (i *image) Destroy() {
	if i.view != nil {
		i.view.Destroy()
		i.view = nil
	}
	if i.memory != nil {
		vk.FreeMemory(i.device.logical, i.memory, i.device.allocator)
		i.memory = nil
	}
	if i.handle != nil {
		vk.DestroyImage(i.device.logical, i.handle, i.device.allocator)
		i.handle = nil
	}
}
