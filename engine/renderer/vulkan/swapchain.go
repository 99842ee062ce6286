package vulkan

import (
	"fmt"

	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/anima-renderer/engine/core"
	"github.com/spaghettifunk/anima-renderer/engine/renderer/driver"
)

type swapchain struct {
	device *Device
	handle vk.Swapchain
	format driver.SurfaceFormat
	extent driver.Extent2D
	images []vk.Image
}

// CreateSwapchain creates the KHR swapchain. The images belong to the swapchain and go away with
// it, only their views are handed out.
func (d *Device) CreateSwapchain(info driver.SwapchainInfo) (driver.Swapchain, error) {
	createInfo := vk.SwapchainCreateInfo{
		SType:            vk.StructureTypeSwapchainCreateInfo,
		Surface:          d.surface,
		MinImageCount:    info.ImageCount,
		ImageFormat:      vk.Format(info.Format.Format),
		ImageColorSpace:  vk.ColorSpace(info.Format.ColorSpace),
		ImageExtent:      vk.Extent2D{Width: info.Extent.Width, Height: info.Extent.Height},
		ImageArrayLayers: 1,
		ImageUsage:       vk.ImageUsageFlags(vk.ImageUsageColorAttachmentBit),
		PreTransform:     d.transform,
		CompositeAlpha:   vk.CompositeAlphaOpaqueBit,
		PresentMode:      vk.PresentMode(info.PresentMode),
		Clipped:          vk.True,
	}

	if d.graphicsFamily != d.presentFamily {
		createInfo.ImageSharingMode = vk.SharingModeConcurrent
		createInfo.QueueFamilyIndexCount = 2
		createInfo.PQueueFamilyIndices = []uint32{d.graphicsFamily, d.presentFamily}
	} else {
		createInfo.ImageSharingMode = vk.SharingModeExclusive
	}

	if info.Old != nil {
		createInfo.OldSwapchain = info.Old.(*swapchain).handle
	}

	sc := &swapchain{device: d, format: info.Format, extent: info.Extent}
	if err := resultError(vk.CreateSwapchain(d.logical, &createInfo, d.allocator, &sc.handle), "vkCreateSwapchainKHR"); err != nil {
		err = fmt.Errorf("failed to create swapchain at %s: %w", info.Extent, err)
		core.LogError(err.Error())
		return nil, err
	}

	var count uint32
	if err := resultError(vk.GetSwapchainImages(d.logical, sc.handle, &count, nil), "vkGetSwapchainImagesKHR"); err != nil {
		sc.Destroy()
		core.LogError(err.Error())
		return nil, err
	}
	sc.images = make([]vk.Image, count)
	if err := resultError(vk.GetSwapchainImages(d.logical, sc.handle, &count, sc.images), "vkGetSwapchainImagesKHR"); err != nil {
		sc.Destroy()
		core.LogError(err.Error())
		return nil, err
	}
	return sc, nil
}

func (s *swapchain) Format() driver.SurfaceFormat {
	return s.format
}

func (s *swapchain) Extent() driver.Extent2D {
	return s.extent
}

func (s *swapchain) ImageCount() int {
	return len(s.images)
}

func (s *swapchain) AcquireNextImage(timeout uint64, signal driver.Semaphore) (uint32, error) {
	var index uint32
	result := vk.AcquireNextImage(s.device.logical, s.handle, timeout, signal.(*semaphore).handle, vk.NullFence, &index)
	switch result {
	case vk.Success:
		return index, nil
	case vk.Suboptimal:
		return index, driver.ErrSuboptimal
	}
	return 0, resultError(result, "vkAcquireNextImageKHR")
}

func (s *swapchain) CreateImageViews() ([]driver.ImageView, error) {
	views := make([]driver.ImageView, 0, len(s.images))
	for _, img := range s.images {
		view, err := s.device.createImageView(img, vk.Format(s.format.Format), vk.ImageAspectColorBit)
		if err != nil {
			for _, v := range views {
				v.Destroy()
			}
			return nil, err
		}
		views = append(views, view)
	}
	return views, nil
}

func (s *swapchain) Destroy() {
	if s.handle != vk.NullSwapchain {
		vk.DestroySwapchain(s.device.logical, s.handle, s.device.allocator)
		s.handle = vk.NullSwapchain
	}
	s.images = nil
}
