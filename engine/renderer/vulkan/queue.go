package vulkan

import (
	"fmt"

	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/anima-renderer/engine/core"
	"github.com/spaghettifunk/anima-renderer/engine/renderer/driver"
)

type queue struct {
	device *Device
	handle vk.Queue
	family uint32
}

// Submit waits on info.Wait at the colour attachment output stage.
func (q *queue) Submit(info driver.SubmitInfo) error {
	submit := vk.SubmitInfo{
		SType:              vk.StructureTypeSubmitInfo,
		CommandBufferCount: 1,
		PCommandBuffers:    []vk.CommandBuffer{info.CommandBuffer.(*commandBuffer).handle},
	}
	if wait := semaphoreHandle(info.Wait); wait != nil {
		submit.WaitSemaphoreCount = 1
		submit.PWaitSemaphores = wait
		submit.PWaitDstStageMask = []vk.PipelineStageFlags{vk.PipelineStageFlags(vk.PipelineStageColorAttachmentOutputBit)}
	}
	if signal := semaphoreHandle(info.Signal); signal != nil {
		submit.SignalSemaphoreCount = 1
		submit.PSignalSemaphores = signal
	}

	handle := vk.NullFence
	if info.Fence != nil {
		f := info.Fence.(*fence)
		handle = f.handle
		f.signaled = false
	}

	if err := resultError(vk.QueueSubmit(q.handle, 1, []vk.SubmitInfo{submit}, handle), "vkQueueSubmit"); err != nil {
		err = fmt.Errorf("failed to submit to queue family %d: %w", q.family, err)
		core.LogError(err.Error())
		return err
	}
	info.CommandBuffer.(*commandBuffer).state = commandBufferSubmitted
	return nil
}

func (q *queue) Present(sc driver.Swapchain, imageIndex uint32, wait driver.Semaphore) error {
	waits := semaphoreHandle(wait)
	info := vk.PresentInfo{
		SType:              vk.StructureTypePresentInfo,
		WaitSemaphoreCount: uint32(len(waits)),
		PWaitSemaphores:    waits,
		SwapchainCount:     1,
		PSwapchains:        []vk.Swapchain{sc.(*swapchain).handle},
		PImageIndices:      []uint32{imageIndex},
	}
	return resultError(vk.QueuePresent(q.handle, &info), "vkQueuePresentKHR")
}

func (q *queue) WaitIdle() error {
	if err := resultError(vk.QueueWaitIdle(q.handle), "vkQueueWaitIdle"); err != nil {
		core.LogError(err.Error())
		return err
	}
	return nil
}
