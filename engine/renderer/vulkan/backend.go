package vulkan

import (
	"errors"
	"fmt"
	"runtime"
	"unsafe"

	"github.com/go-gl/glfw/v3.3/glfw"
	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/anima-renderer/engine/core"
)

const validationLayer = "VK_LAYER_KHRONOS_validation"

// New loads the Vulkan loader through GLFW and brings up the instance, the window surface and
// the logical device. On failure everything created so far is released.
func New(provider SurfaceProvider, config Config) (*Device, error) {
	procAddr := glfw.GetVulkanGetInstanceProcAddress()
	if procAddr == nil {
		err := errors.New("GetInstanceProcAddress is nil, is GLFW initialized with Vulkan support?")
		core.LogError(err.Error())
		return nil, err
	}
	vk.SetGetInstanceProcAddr(procAddr)
	if err := vk.Init(); err != nil {
		err = fmt.Errorf("failed to initialize vulkan loader: %w", err)
		core.LogError(err.Error())
		return nil, err
	}

	d := &Device{config: config}
	steps := []func() error{
		func() error { return d.createInstance(provider.GetRequiredInstanceExtensions()) },
		d.createDebugCallback,
		func() error { return d.createSurface(provider) },
		d.selectPhysicalDevice,
		d.createLogicalDevice,
	}
	for _, step := range steps {
		if err := step(); err != nil {
			d.Destroy()
			return nil, err
		}
	}

	core.LogInfo("vulkan backend initialized on %s", d.DeviceName())
	return d, nil
}

func (d *Device) createInstance(windowExtensions []string) error {
	appInfo := &vk.ApplicationInfo{
		SType:              vk.StructureTypeApplicationInfo,
		ApiVersion:         uint32(vk.MakeVersion(1, 0, 0)),
		ApplicationVersion: uint32(vk.MakeVersion(1, 0, 0)),
		PApplicationName:   safeString(d.config.ApplicationName),
		PEngineName:        safeString("Anima Renderer"),
	}

	extensions := append([]string{"VK_KHR_surface"}, windowExtensions...)
	info := vk.InstanceCreateInfo{
		SType:            vk.StructureTypeInstanceCreateInfo,
		PApplicationInfo: appInfo,
	}
	if runtime.GOOS == "darwin" {
		extensions = append(extensions,
			"VK_KHR_portability_enumeration",
			"VK_KHR_get_physical_device_properties2",
		)
		// VK_INSTANCE_CREATE_ENUMERATE_PORTABILITY_BIT_KHR
		info.Flags |= 1
	}

	var layers []string
	if d.config.Validation {
		extensions = append(extensions, vk.ExtDebugReportExtensionName)
		if err := checkInstanceLayers([]string{validationLayer}); err != nil {
			return err
		}
		layers = append(layers, validationLayer)
	}
	core.LogDebug("instance extensions: %v", extensions)

	info.EnabledExtensionCount = uint32(len(extensions))
	info.PpEnabledExtensionNames = safeStrings(extensions)
	info.EnabledLayerCount = uint32(len(layers))
	info.PpEnabledLayerNames = safeStrings(layers)

	var instance vk.Instance
	if err := resultError(vk.CreateInstance(&info, d.allocator, &instance), "vkCreateInstance"); err != nil {
		err = fmt.Errorf("failed to create the vulkan instance: %w", err)
		core.LogError(err.Error())
		return err
	}
	d.instance = instance
	if err := vk.InitInstance(d.instance); err != nil {
		core.LogError(err.Error())
		return err
	}
	core.LogInfo("vulkan instance created")
	return nil
}

func checkInstanceLayers(required []string) error {
	var count uint32
	if err := resultError(vk.EnumerateInstanceLayerProperties(&count, nil), "vkEnumerateInstanceLayerProperties"); err != nil {
		core.LogError(err.Error())
		return err
	}
	available := make([]vk.LayerProperties, count)
	if err := resultError(vk.EnumerateInstanceLayerProperties(&count, available), "vkEnumerateInstanceLayerProperties"); err != nil {
		core.LogError(err.Error())
		return err
	}

	names := make(map[string]struct{}, count)
	for i := range available {
		available[i].Deref()
		names[vk.ToString(available[i].LayerName[:])] = struct{}{}
	}
	for _, layer := range required {
		if _, ok := names[layer]; !ok {
			err := fmt.Errorf("required validation layer is missing: %s", layer)
			core.LogError(err.Error())
			return err
		}
	}
	return nil
}

func (d *Device) createDebugCallback() error {
	if !d.config.Validation {
		return nil
	}
	info := vk.DebugReportCallbackCreateInfo{
		SType:       vk.StructureTypeDebugReportCallbackCreateInfo,
		Flags:       vk.DebugReportFlags(vk.DebugReportErrorBit | vk.DebugReportWarningBit | vk.DebugReportPerformanceWarningBit),
		PfnCallback: debugReport,
	}
	var callback vk.DebugReportCallback
	if err := vk.Error(vk.CreateDebugReportCallback(d.instance, &info, d.allocator, &callback)); err != nil {
		err = fmt.Errorf("vkCreateDebugReportCallbackEXT failed: %w", err)
		core.LogError(err.Error())
		return err
	}
	d.debugCallback = callback
	core.LogDebug("vulkan debug report callback created")
	return nil
}

func (d *Device) createSurface(provider SurfaceProvider) error {
	surface, err := provider.CreateWindowSurface(d.instance, nil)
	if err != nil {
		err = fmt.Errorf("failed to create window surface: %w", err)
		core.LogError(err.Error())
		return err
	}
	d.surface = vk.SurfaceFromPointer(surface)
	core.LogDebug("vulkan surface created")
	return nil
}

// Destroy waits for the device and releases it in reverse creation order. Every handle created
// from the device must be destroyed first.
func (d *Device) Destroy() {
	if d.destroyed {
		return
	}
	d.destroyed = true

	if d.logical != nil {
		vk.DeviceWaitIdle(d.logical)
	}
	d.destroyLogicalDevice()

	if d.surface != vk.NullSurface {
		vk.DestroySurface(d.instance, d.surface, d.allocator)
		d.surface = vk.NullSurface
	}
	if d.debugCallback != vk.NullDebugReportCallback {
		vk.DestroyDebugReportCallback(d.instance, d.debugCallback, d.allocator)
		d.debugCallback = vk.NullDebugReportCallback
	}
	if d.instance != nil {
		vk.DestroyInstance(d.instance, d.allocator)
		d.instance = nil
	}
	core.LogInfo("vulkan backend destroyed")
}

func debugReport(flags vk.DebugReportFlags, objectType vk.DebugReportObjectType, object uint64, location uint64, messageCode int32, pLayerPrefix string, pMessage string, pUserData unsafe.Pointer) vk.Bool32 {
	switch {
	case flags&vk.DebugReportFlags(vk.DebugReportErrorBit) != 0:
		core.LogError("[%s] code %d: %s", pLayerPrefix, messageCode, pMessage)
	case flags&vk.DebugReportFlags(vk.DebugReportWarningBit) != 0:
		core.LogWarn("[%s] code %d: %s", pLayerPrefix, messageCode, pMessage)
	case flags&vk.DebugReportFlags(vk.DebugReportPerformanceWarningBit) != 0:
		core.LogWarn("performance [%s] code %d: %s", pLayerPrefix, messageCode, pMessage)
	default:
		core.LogDebug("[%s] code %d: %s", pLayerPrefix, messageCode, pMessage)
	}
	return vk.Bool32(vk.False)
}
