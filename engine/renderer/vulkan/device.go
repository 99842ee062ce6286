package vulkan

import (
	"fmt"
	"runtime"
	"strings"

	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/anima-renderer/engine/core"
	"github.com/spaghettifunk/anima-renderer/engine/renderer/driver"
)

const portabilitySubset = "VK_KHR_portability_subset"

type physicalDeviceRequirements struct {
	DiscreteGPU       bool
	SamplerAnisotropy bool
	Extensions        []string
}

type queueFamilies struct {
	graphics int32
	present  int32
}

func (q queueFamilies) complete() bool {
	return q.graphics >= 0 && q.present >= 0
}

func (d *Device) selectPhysicalDevice() error {
	var count uint32
	if err := resultError(vk.EnumeratePhysicalDevices(d.instance, &count, nil), "vkEnumeratePhysicalDevices"); err != nil {
		core.LogError(err.Error())
		return err
	}
	if count == 0 {
		err := fmt.Errorf("no devices which support Vulkan were found")
		core.LogError(err.Error())
		return err
	}
	candidates := make([]vk.PhysicalDevice, count)
	if err := resultError(vk.EnumeratePhysicalDevices(d.instance, &count, candidates), "vkEnumeratePhysicalDevices"); err != nil {
		core.LogError(err.Error())
		return err
	}

	requirements := physicalDeviceRequirements{
		DiscreteGPU:       d.config.RequireDiscreteGPU && runtime.GOOS != "darwin",
		SamplerAnisotropy: true,
		Extensions:        []string{vk.KhrSwapchainExtensionName},
	}

	for _, candidate := range candidates {
		var properties vk.PhysicalDeviceProperties
		vk.GetPhysicalDeviceProperties(candidate, &properties)
		properties.Deref()

		var features vk.PhysicalDeviceFeatures
		vk.GetPhysicalDeviceFeatures(candidate, &features)
		features.Deref()

		families, ok := d.meetsRequirements(candidate, &properties, &features, &requirements)
		if !ok {
			continue
		}

		var memory vk.PhysicalDeviceMemoryProperties
		vk.GetPhysicalDeviceMemoryProperties(candidate, &memory)
		memory.Deref()

		d.physical = candidate
		d.properties = properties
		d.memory = memory
		d.graphicsFamily = uint32(families.graphics)
		d.presentFamily = uint32(families.present)
		d.logPhysicalDevice()
		return nil
	}

	err := fmt.Errorf("no physical device meets the requirements")
	core.LogError(err.Error())
	return err
}

func (d *Device) logPhysicalDevice() {
	kind := "unknown"
	switch d.properties.DeviceType {
	case vk.PhysicalDeviceTypeIntegratedGpu:
		kind = "integrated"
	case vk.PhysicalDeviceTypeDiscreteGpu:
		kind = "discrete"
	case vk.PhysicalDeviceTypeVirtualGpu:
		kind = "virtual"
	case vk.PhysicalDeviceTypeCpu:
		kind = "cpu"
	}
	driverVersion := vk.Version(d.properties.DriverVersion)
	apiVersion := vk.Version(d.properties.ApiVersion)

	core.Logger().Info("selected physical device",
		"name", d.DeviceName(),
		"type", kind,
		"driver", fmt.Sprintf("%d.%d.%d", driverVersion.Major(), driverVersion.Minor(), driverVersion.Patch()),
		"api", fmt.Sprintf("%d.%d.%d", apiVersion.Major(), apiVersion.Minor(), apiVersion.Patch()),
		"graphics_family", d.graphicsFamily,
		"present_family", d.presentFamily)

	for i := uint32(0); i < d.memory.MemoryHeapCount; i++ {
		heap := d.memory.MemoryHeaps[i]
		heap.Deref()
		gib := float64(heap.Size) / 1024 / 1024 / 1024
		if vk.MemoryHeapFlagBits(heap.Flags)&vk.MemoryHeapDeviceLocalBit != 0 {
			core.LogInfo("local GPU memory: %.2f GiB", gib)
		} else {
			core.LogInfo("shared system memory: %.2f GiB", gib)
		}
	}
}

func (d *Device) meetsRequirements(candidate vk.PhysicalDevice, properties *vk.PhysicalDeviceProperties, features *vk.PhysicalDeviceFeatures, requirements *physicalDeviceRequirements) (queueFamilies, bool) {
	name := vk.ToString(properties.DeviceName[:])
	families := queueFamilies{graphics: -1, present: -1}

	if requirements.DiscreteGPU && properties.DeviceType != vk.PhysicalDeviceTypeDiscreteGpu {
		core.LogInfo("%s is not a discrete GPU, skipping", name)
		return families, false
	}
	if requirements.SamplerAnisotropy && features.SamplerAnisotropy != vk.True {
		core.LogInfo("%s does not support sampler anisotropy, skipping", name)
		return families, false
	}

	var count uint32
	vk.GetPhysicalDeviceQueueFamilyProperties(candidate, &count, nil)
	props := make([]vk.QueueFamilyProperties, count)
	vk.GetPhysicalDeviceQueueFamilyProperties(candidate, &count, props)

	for i := range props {
		props[i].Deref()
		if families.graphics < 0 && vk.QueueFlagBits(props[i].QueueFlags)&vk.QueueGraphicsBit != 0 {
			families.graphics = int32(i)
		}

		var supported vk.Bool32
		if res := vk.GetPhysicalDeviceSurfaceSupport(candidate, uint32(i), d.surface, &supported); res != vk.Success {
			continue
		}
		if supported != vk.True {
			continue
		}
		// A family that does both is preferred so no ownership transfer is needed.
		if families.present < 0 || int32(i) == families.graphics {
			families.present = int32(i)
		}
	}
	if !families.complete() {
		core.LogInfo("%s lacks a graphics or present queue, skipping", name)
		return families, false
	}

	support, _, err := querySurfaceSupport(candidate, d.surface)
	if err != nil || len(support.Formats) == 0 || len(support.PresentModes) == 0 {
		core.LogInfo("%s has no usable swapchain support, skipping", name)
		return families, false
	}

	available, err := deviceExtensions(candidate)
	if err != nil {
		return families, false
	}
	for _, required := range requirements.Extensions {
		if _, ok := available[strings.TrimRight(required, nul)]; !ok {
			core.LogInfo("%s is missing extension %s, skipping", name, required)
			return families, false
		}
	}
	return families, true
}

func deviceExtensions(physical vk.PhysicalDevice) (map[string]struct{}, error) {
	var count uint32
	if err := resultError(vk.EnumerateDeviceExtensionProperties(physical, "", &count, nil), "vkEnumerateDeviceExtensionProperties"); err != nil {
		core.LogError(err.Error())
		return nil, err
	}
	props := make([]vk.ExtensionProperties, count)
	if count > 0 {
		if err := resultError(vk.EnumerateDeviceExtensionProperties(physical, "", &count, props), "vkEnumerateDeviceExtensionProperties"); err != nil {
			core.LogError(err.Error())
			return nil, err
		}
	}
	out := make(map[string]struct{}, count)
	for i := range props {
		props[i].Deref()
		out[vk.ToString(props[i].ExtensionName[:])] = struct{}{}
	}
	return out, nil
}

func (d *Device) createLogicalDevice() error {
	families := []uint32{d.graphicsFamily}
	if d.presentFamily != d.graphicsFamily {
		families = append(families, d.presentFamily)
	}

	queueInfos := make([]vk.DeviceQueueCreateInfo, len(families))
	for i, family := range families {
		queueInfos[i] = vk.DeviceQueueCreateInfo{
			SType:            vk.StructureTypeDeviceQueueCreateInfo,
			QueueFamilyIndex: family,
			QueueCount:       1,
			PQueuePriorities: []float32{1.0},
		}
	}

	extensions := []string{vk.KhrSwapchainExtensionName}
	available, err := deviceExtensions(d.physical)
	if err != nil {
		return err
	}
	if _, ok := available[portabilitySubset]; ok {
		core.LogInfo("adding required extension %s", portabilitySubset)
		extensions = append(extensions, portabilitySubset)
	}

	features := vk.PhysicalDeviceFeatures{
		SamplerAnisotropy: vk.True,
	}
	info := vk.DeviceCreateInfo{
		SType:                   vk.StructureTypeDeviceCreateInfo,
		QueueCreateInfoCount:    uint32(len(queueInfos)),
		PQueueCreateInfos:       queueInfos,
		PEnabledFeatures:        []vk.PhysicalDeviceFeatures{features},
		EnabledExtensionCount:   uint32(len(extensions)),
		PpEnabledExtensionNames: safeStrings(extensions),
	}

	var logical vk.Device
	if err := resultError(vk.CreateDevice(d.physical, &info, d.allocator, &logical), "vkCreateDevice"); err != nil {
		core.LogError(err.Error())
		return err
	}
	d.logical = logical
	core.LogInfo("logical device created")

	var graphics, present vk.Queue
	vk.GetDeviceQueue(d.logical, d.graphicsFamily, 0, &graphics)
	vk.GetDeviceQueue(d.logical, d.presentFamily, 0, &present)
	d.graphics = &queue{device: d, handle: graphics, family: d.graphicsFamily}
	d.present = &queue{device: d, handle: present, family: d.presentFamily}

	poolInfo := vk.CommandPoolCreateInfo{
		SType:            vk.StructureTypeCommandPoolCreateInfo,
		QueueFamilyIndex: d.graphicsFamily,
		Flags:            vk.CommandPoolCreateFlags(vk.CommandPoolCreateResetCommandBufferBit),
	}
	var pool vk.CommandPool
	if err := resultError(vk.CreateCommandPool(d.logical, &poolInfo, d.allocator, &pool), "vkCreateCommandPool"); err != nil {
		core.LogError(err.Error())
		return err
	}
	d.commandPool = pool
	core.LogInfo("graphics command pool created")
	return nil
}

func (d *Device) destroyLogicalDevice() {
	if d.logical == nil {
		return
	}
	if d.commandPool != nil {
		vk.DestroyCommandPool(d.logical, d.commandPool, d.allocator)
		d.commandPool = nil
	}
	d.graphics = nil
	d.present = nil
	vk.DestroyDevice(d.logical, d.allocator)
	d.logical = nil
	core.LogInfo("logical device destroyed")
}

func querySurfaceSupport(physical vk.PhysicalDevice, surface vk.Surface) (driver.SurfaceSupport, vk.SurfaceTransformFlagBits, error) {
	var support driver.SurfaceSupport

	var caps vk.SurfaceCapabilities
	if err := resultError(vk.GetPhysicalDeviceSurfaceCapabilities(physical, surface, &caps), "vkGetPhysicalDeviceSurfaceCapabilitiesKHR"); err != nil {
		return support, 0, err
	}
	caps.Deref()
	caps.CurrentExtent.Deref()
	caps.MinImageExtent.Deref()
	caps.MaxImageExtent.Deref()
	support.Capabilities = driver.SurfaceCapabilities{
		MinImageCount:  caps.MinImageCount,
		MaxImageCount:  caps.MaxImageCount,
		CurrentExtent:  driver.Extent2D{Width: caps.CurrentExtent.Width, Height: caps.CurrentExtent.Height},
		MinImageExtent: driver.Extent2D{Width: caps.MinImageExtent.Width, Height: caps.MinImageExtent.Height},
		MaxImageExtent: driver.Extent2D{Width: caps.MaxImageExtent.Width, Height: caps.MaxImageExtent.Height},
	}

	var formatCount uint32
	if err := resultError(vk.GetPhysicalDeviceSurfaceFormats(physical, surface, &formatCount, nil), "vkGetPhysicalDeviceSurfaceFormatsKHR"); err != nil {
		return support, 0, err
	}
	if formatCount > 0 {
		formats := make([]vk.SurfaceFormat, formatCount)
		if err := resultError(vk.GetPhysicalDeviceSurfaceFormats(physical, surface, &formatCount, formats), "vkGetPhysicalDeviceSurfaceFormatsKHR"); err != nil {
			return support, 0, err
		}
		for i := range formats {
			formats[i].Deref()
			support.Formats = append(support.Formats, driver.SurfaceFormat{
				Format:     driver.Format(formats[i].Format),
				ColorSpace: driver.ColorSpace(formats[i].ColorSpace),
			})
		}
	}

	var modeCount uint32
	if err := resultError(vk.GetPhysicalDeviceSurfacePresentModes(physical, surface, &modeCount, nil), "vkGetPhysicalDeviceSurfacePresentModesKHR"); err != nil {
		return support, 0, err
	}
	if modeCount > 0 {
		modes := make([]vk.PresentMode, modeCount)
		if err := resultError(vk.GetPhysicalDeviceSurfacePresentModes(physical, surface, &modeCount, modes), "vkGetPhysicalDeviceSurfacePresentModesKHR"); err != nil {
			return support, 0, err
		}
		for _, mode := range modes {
			support.PresentModes = append(support.PresentModes, driver.PresentMode(mode))
		}
	}
	return support, caps.CurrentTransform, nil
}

// SurfaceSupport re-queries the surface. Called before every swapchain build.
func (d *Device) SurfaceSupport() (driver.SurfaceSupport, error) {
	support, transform, err := querySurfaceSupport(d.physical, d.surface)
	if err != nil {
		err = fmt.Errorf("failed to query surface support: %w", err)
		core.LogError(err.Error())
		return support, err
	}
	d.transform = transform
	return support, nil
}

// DepthFormat picks the first depth format usable as an optimally tiled attachment.
func (d *Device) DepthFormat() (driver.Format, error) {
	candidates := []vk.Format{
		vk.FormatD32Sfloat,
		vk.FormatD32SfloatS8Uint,
		vk.FormatD24UnormS8Uint,
	}
	flags := vk.FormatFeatureDepthStencilAttachmentBit
	for _, candidate := range candidates {
		var properties vk.FormatProperties
		vk.GetPhysicalDeviceFormatProperties(d.physical, candidate, &properties)
		properties.Deref()
		if vk.FormatFeatureFlagBits(properties.OptimalTilingFeatures)&flags == flags {
			return driver.Format(candidate), nil
		}
	}
	err := fmt.Errorf("no supported depth format on %s", d.DeviceName())
	core.LogError(err.Error())
	return driver.FormatUndefined, err
}
