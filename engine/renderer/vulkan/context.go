// Package vulkan implements driver.Device on top of goki/vulkan.
package vulkan

import (
	"fmt"
	"unsafe"

	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/anima-renderer/engine/core"
	"github.com/spaghettifunk/anima-renderer/engine/renderer/driver"
)

type Config struct {
	ApplicationName string
	// Validation enables VK_LAYER_KHRONOS_validation and the debug report callback.
	Validation bool
	// RequireDiscreteGPU skips integrated devices. Ignored on darwin.
	RequireDiscreteGPU bool
}

// SurfaceProvider is the window side of instance and surface creation. *glfw.Window satisfies it.
type SurfaceProvider interface {
	GetRequiredInstanceExtensions() []string
	CreateWindowSurface(instance interface{}, allocCallbacks unsafe.Pointer) (uintptr, error)
}

// Device owns the instance, the surface and the logical device. It is the only driver.Device
// implementation that talks to a GPU.
type Device struct {
	config Config

	instance      vk.Instance
	allocator     *vk.AllocationCallbacks
	surface       vk.Surface
	debugCallback vk.DebugReportCallback

	physical   vk.PhysicalDevice
	logical    vk.Device
	properties vk.PhysicalDeviceProperties
	memory     vk.PhysicalDeviceMemoryProperties

	graphicsFamily uint32
	presentFamily  uint32
	graphics       *queue
	present        *queue
	commandPool    vk.CommandPool

	// transform is the surface transform reported by the last SurfaceSupport call.
	transform vk.SurfaceTransformFlagBits

	destroyed bool
}

var _ driver.Device = (*Device)(nil)

// FindMemoryIndex returns the first memory type allowed by typeFilter that has all of flags.
func (d *Device) FindMemoryIndex(typeFilter uint32, flags vk.MemoryPropertyFlagBits) (uint32, error) {
	for i := uint32(0); i < d.memory.MemoryTypeCount; i++ {
		memoryType := d.memory.MemoryTypes[i]
		memoryType.Deref()
		if typeFilter&(1<<i) != 0 && vk.MemoryPropertyFlagBits(memoryType.PropertyFlags)&flags == flags {
			return i, nil
		}
	}
	err := fmt.Errorf("no memory type matches filter %#x with flags %#x", typeFilter, uint32(flags))
	core.LogWarn(err.Error())
	return 0, err
}

// LogicalDevice exposes the raw handle for pipeline construction outside this package.
func (d *Device) LogicalDevice() vk.Device {
	return d.logical
}

// RenderPassHandle unwraps a render pass created by this device.
func (d *Device) RenderPassHandle(pass driver.RenderPass) vk.RenderPass {
	return pass.(*renderPass).handle
}

func (d *Device) GraphicsQueue() driver.Queue {
	return d.graphics
}

func (d *Device) PresentQueue() driver.Queue {
	return d.present
}

func (d *Device) WaitIdle() error {
	if err := resultError(vk.DeviceWaitIdle(d.logical), "vkDeviceWaitIdle"); err != nil {
		core.LogError(err.Error())
		return err
	}
	return nil
}

func (d *Device) DeviceName() string {
	return vk.ToString(d.properties.DeviceName[:])
}
