package vulkan

import (
	"fmt"

	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/anima-renderer/engine/renderer/driver"
)

// ResultString returns the VK_* name of a result, with a short description when extended is set.
func ResultString(result vk.Result, extended bool) string {
	name, desc := "VK_UNKNOWN", "unrecognized result code"
	switch result {
	case vk.Success:
		name, desc = "VK_SUCCESS", "command successfully completed"
	case vk.NotReady:
		name, desc = "VK_NOT_READY", "a fence or query has not yet completed"
	case vk.Timeout:
		name, desc = "VK_TIMEOUT", "a wait operation has not completed in the specified time"
	case vk.EventSet:
		name, desc = "VK_EVENT_SET", "an event is signaled"
	case vk.EventReset:
		name, desc = "VK_EVENT_RESET", "an event is unsignaled"
	case vk.Incomplete:
		name, desc = "VK_INCOMPLETE", "a return array was too small for the result"
	case vk.Suboptimal:
		name, desc = "VK_SUBOPTIMAL_KHR", "the swapchain no longer matches the surface exactly but can still present"
	case vk.ErrorOutOfHostMemory:
		name, desc = "VK_ERROR_OUT_OF_HOST_MEMORY", "a host memory allocation has failed"
	case vk.ErrorOutOfDeviceMemory:
		name, desc = "VK_ERROR_OUT_OF_DEVICE_MEMORY", "a device memory allocation has failed"
	case vk.ErrorInitializationFailed:
		name, desc = "VK_ERROR_INITIALIZATION_FAILED", "initialization of an object could not be completed"
	case vk.ErrorDeviceLost:
		name, desc = "VK_ERROR_DEVICE_LOST", "the logical or physical device has been lost"
	case vk.ErrorMemoryMapFailed:
		name, desc = "VK_ERROR_MEMORY_MAP_FAILED", "mapping of a memory object has failed"
	case vk.ErrorLayerNotPresent:
		name, desc = "VK_ERROR_LAYER_NOT_PRESENT", "a requested layer is not present or could not be loaded"
	case vk.ErrorExtensionNotPresent:
		name, desc = "VK_ERROR_EXTENSION_NOT_PRESENT", "a requested extension is not supported"
	case vk.ErrorFeatureNotPresent:
		name, desc = "VK_ERROR_FEATURE_NOT_PRESENT", "a requested feature is not supported"
	case vk.ErrorIncompatibleDriver:
		name, desc = "VK_ERROR_INCOMPATIBLE_DRIVER", "the requested version of Vulkan is not supported by the driver"
	case vk.ErrorTooManyObjects:
		name, desc = "VK_ERROR_TOO_MANY_OBJECTS", "too many objects of the type have already been created"
	case vk.ErrorFormatNotSupported:
		name, desc = "VK_ERROR_FORMAT_NOT_SUPPORTED", "a requested format is not supported on this device"
	case vk.ErrorFragmentedPool:
		name, desc = "VK_ERROR_FRAGMENTED_POOL", "a pool allocation has failed due to fragmentation"
	case vk.ErrorOutOfPoolMemory:
		name, desc = "VK_ERROR_OUT_OF_POOL_MEMORY", "a pool memory allocation has failed"
	case vk.ErrorSurfaceLost:
		name, desc = "VK_ERROR_SURFACE_LOST_KHR", "the surface is no longer available"
	case vk.ErrorNativeWindowInUse:
		name, desc = "VK_ERROR_NATIVE_WINDOW_IN_USE_KHR", "the window is already in use"
	case vk.ErrorOutOfDate:
		name, desc = "VK_ERROR_OUT_OF_DATE_KHR", "the surface has changed and the swapchain must be recreated"
	}
	if extended {
		return name + " " + desc
	}
	return name
}

// IsSuccess reports whether result is one of the non-error codes.
func IsSuccess(result vk.Result) bool {
	switch result {
	case vk.Success, vk.NotReady, vk.Timeout, vk.EventSet, vk.EventReset, vk.Incomplete, vk.Suboptimal:
		return true
	}
	return false
}

// resultError maps a failing result to the matching driver sentinel so callers can
// errors.Is on it. It returns nil for vk.Success.
func resultError(result vk.Result, op string) error {
	var sentinel error
	switch result {
	case vk.Success:
		return nil
	case vk.Suboptimal:
		sentinel = driver.ErrSuboptimal
	case vk.ErrorOutOfDate:
		sentinel = driver.ErrOutOfDate
	case vk.ErrorOutOfPoolMemory:
		sentinel = driver.ErrOutOfPoolMemory
	case vk.ErrorFragmentedPool:
		sentinel = driver.ErrFragmentedPool
	case vk.ErrorDeviceLost:
		sentinel = driver.ErrDeviceLost
	case vk.Timeout:
		sentinel = driver.ErrTimeout
	case vk.ErrorOutOfDeviceMemory:
		sentinel = driver.ErrOutOfDeviceMemory
	case vk.ErrorOutOfHostMemory:
		sentinel = driver.ErrOutOfHostMemory
	default:
		return fmt.Errorf("%s failed: %s", op, ResultString(result, true))
	}
	return fmt.Errorf("%s: %w (%s)", op, sentinel, ResultString(result, false))
}

const nul = "\x00"

// safeString NUL-terminates s for the C side.
func safeString(s string) string {
	if len(s) == 0 || s[len(s)-1] != 0 {
		return s + nul
	}
	return s
}

func safeStrings(list []string) []string {
	out := make([]string, len(list))
	for i := range list {
		out[i] = safeString(list[i])
	}
	return out
}
