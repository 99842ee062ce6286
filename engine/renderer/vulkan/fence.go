package vulkan

import (
	"fmt"

	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/anima-renderer/engine/core"
	"github.com/spaghettifunk/anima-renderer/engine/renderer/driver"
)

type fence struct {
	device *Device
	handle vk.Fence
	// signaled mirrors the host's view of the fence so waits on a known-signaled fence return early.
	signaled bool
}

func (d *Device) CreateFence(signaled bool) (driver.Fence, error) {
	info := vk.FenceCreateInfo{
		SType: vk.StructureTypeFenceCreateInfo,
	}
	if signaled {
		info.Flags = vk.FenceCreateFlags(vk.FenceCreateSignaledBit)
	}

	var handle vk.Fence
	if err := resultError(vk.CreateFence(d.logical, &info, d.allocator, &handle), "vkCreateFence"); err != nil {
		core.LogError(err.Error())
		return nil, err
	}
	return &fence{device: d, handle: handle, signaled: signaled}, nil
}

func (f *fence) Wait(timeout uint64) error {
	if f.signaled {
		return nil
	}
	result := vk.WaitForFences(f.device.logical, 1, []vk.Fence{f.handle}, vk.True, timeout)
	switch result {
	case vk.Success:
		f.signaled = true
		return nil
	case vk.Timeout:
		core.LogWarn("fence wait timed out after %dns", timeout)
	}
	err := resultError(result, "vkWaitForFences")
	core.LogError(err.Error())
	return err
}

func (f *fence) Reset() error {
	if err := resultError(vk.ResetFences(f.device.logical, 1, []vk.Fence{f.handle}), "vkResetFences"); err != nil {
		err = fmt.Errorf("failed to reset fence: %w", err)
		core.LogError(err.Error())
		return err
	}
	f.signaled = false
	return nil
}

func (f *fence) Destroy() {
	if f.handle != vk.NullFence {
		vk.DestroyFence(f.device.logical, f.handle, f.device.allocator)
		f.handle = vk.NullFence
	}
	f.signaled = false
}

type semaphore struct {
	device *Device
	handle vk.Semaphore
}

func (d *Device) CreateSemaphore() (driver.Semaphore, error) {
	info := vk.SemaphoreCreateInfo{
		SType: vk.StructureTypeSemaphoreCreateInfo,
	}
	var handle vk.Semaphore
	if err := resultError(vk.CreateSemaphore(d.logical, &info, d.allocator, &handle), "vkCreateSemaphore"); err != nil {
		core.LogError(err.Error())
		return nil, err
	}
	return &semaphore{device: d, handle: handle}, nil
}

func (s *semaphore) Destroy() {
	if s.handle != vk.NullSemaphore {
		vk.DestroySemaphore(s.device.logical, s.handle, s.device.allocator)
		s.handle = vk.NullSemaphore
	}
}

// semaphoreHandle tolerates a nil semaphore for submissions that do not wait or signal.
func semaphoreHandle(s driver.Semaphore) []vk.Semaphore {
	if s == nil {
		return nil
	}
	return []vk.Semaphore{s.(*semaphore).handle}
}
