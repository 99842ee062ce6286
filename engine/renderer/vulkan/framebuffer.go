package vulkan

import (
	"fmt"

	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/anima-renderer/engine/core"
	"github.com/spaghettifunk/anima-renderer/engine/renderer/driver"
)

type framebuffer struct {
	device *Device
	handle vk.Framebuffer
	extent driver.Extent2D
}

func (d *Device) CreateFramebuffer(pass driver.RenderPass, extent driver.Extent2D, attachments []driver.ImageView) (driver.Framebuffer, error) {
	views := make([]vk.ImageView, len(attachments))
	for i, attachment := range attachments {
		views[i] = attachment.(*imageView).handle
	}

	info := vk.FramebufferCreateInfo{
		SType:           vk.StructureTypeFramebufferCreateInfo,
		RenderPass:      pass.(*renderPass).handle,
		AttachmentCount: uint32(len(views)),
		PAttachments:    views,
		Width:           extent.Width,
		Height:          extent.Height,
		Layers:          1,
	}

	var handle vk.Framebuffer
	if err := resultError(vk.CreateFramebuffer(d.logical, &info, d.allocator, &handle), "vkCreateFramebuffer"); err != nil {
		err = fmt.Errorf("failed to create framebuffer at %s: %w", extent, err)
		core.LogError(err.Error())
		return nil, err
	}
	return &framebuffer{device: d, handle: handle, extent: extent}, nil
}

func (f *framebuffer) Extent() driver.Extent2D {
	return f.extent
}

func (f *framebuffer) Destroy() {
	if f.handle != nil {
		vk.DestroyFramebuffer(f.device.logical, f.handle, f.device.allocator)
		f.handle = nil
	}
}
