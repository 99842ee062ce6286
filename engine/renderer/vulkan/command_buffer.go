package vulkan

import (
	"fmt"
	"unsafe"

	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/anima-renderer/engine/core"
	"github.com/spaghettifunk/anima-renderer/engine/renderer/driver"
)

type commandBufferState int

const (
	commandBufferReady commandBufferState = iota
	commandBufferRecording
	commandBufferInRenderPass
	commandBufferRecordingEnded
	commandBufferSubmitted
	commandBufferNotAllocated
)

type commandBuffer struct {
	device *Device
	handle vk.CommandBuffer
	state  commandBufferState
	// singleUse sets the one-time-submit flag on Begin.
	singleUse bool
}

func (d *Device) AllocateCommandBuffers(count int) ([]driver.CommandBuffer, error) {
	handles, err := d.allocateCommandBuffers(count)
	if err != nil {
		return nil, err
	}
	out := make([]driver.CommandBuffer, count)
	for i, handle := range handles {
		out[i] = &commandBuffer{device: d, handle: handle, state: commandBufferReady}
	}
	return out, nil
}

func (d *Device) allocateCommandBuffers(count int) ([]vk.CommandBuffer, error) {
	info := vk.CommandBufferAllocateInfo{
		SType:              vk.StructureTypeCommandBufferAllocateInfo,
		CommandPool:        d.commandPool,
		Level:              vk.CommandBufferLevelPrimary,
		CommandBufferCount: uint32(count),
	}
	handles := make([]vk.CommandBuffer, count)
	if err := resultError(vk.AllocateCommandBuffers(d.logical, &info, handles), "vkAllocateCommandBuffers"); err != nil {
		err = fmt.Errorf("failed to allocate %d command buffers: %w", count, err)
		core.LogError(err.Error())
		return nil, err
	}
	return handles, nil
}

// ImmediateSubmit records fn into a one-time command buffer on the graphics queue and waits for
// the queue to drain before freeing it.
func (d *Device) ImmediateSubmit(fn func(cmd driver.CommandBuffer)) error {
	handles, err := d.allocateCommandBuffers(1)
	if err != nil {
		return err
	}
	cmd := &commandBuffer{device: d, handle: handles[0], state: commandBufferReady, singleUse: true}
	defer cmd.free()

	if err := cmd.Begin(); err != nil {
		return err
	}
	fn(cmd)
	if err := cmd.End(); err != nil {
		return err
	}
	if err := d.graphics.Submit(driver.SubmitInfo{CommandBuffer: cmd}); err != nil {
		return err
	}
	return d.graphics.WaitIdle()
}

func (c *commandBuffer) free() {
	if c.handle != nil {
		vk.FreeCommandBuffers(c.device.logical, c.device.commandPool, 1, []vk.CommandBuffer{c.handle})
		c.handle = nil
	}
	c.state = commandBufferNotAllocated
}

func (c *commandBuffer) Begin() error {
	if res := vk.ResetCommandBuffer(c.handle, 0); res != vk.Success {
		err := resultError(res, "vkResetCommandBuffer")
		core.LogError(err.Error())
		return err
	}
	c.state = commandBufferReady

	info := vk.CommandBufferBeginInfo{
		SType: vk.StructureTypeCommandBufferBeginInfo,
	}
	if c.singleUse {
		info.Flags |= vk.CommandBufferUsageFlags(vk.CommandBufferUsageOneTimeSubmitBit)
	}
	if err := resultError(vk.BeginCommandBuffer(c.handle, &info), "vkBeginCommandBuffer"); err != nil {
		core.LogError(err.Error())
		return err
	}
	c.state = commandBufferRecording
	return nil
}

func (c *commandBuffer) End() error {
	if err := resultError(vk.EndCommandBuffer(c.handle), "vkEndCommandBuffer"); err != nil {
		core.LogError(err.Error())
		return err
	}
	c.state = commandBufferRecordingEnded
	return nil
}

func (c *commandBuffer) BeginRenderPass(pass driver.RenderPass, fb driver.Framebuffer, clear driver.ClearValues) {
	rp := pass.(*renderPass)
	extent := fb.Extent()
	clearValues := rp.clearValues(clear)

	info := vk.RenderPassBeginInfo{
		SType:       vk.StructureTypeRenderPassBeginInfo,
		RenderPass:  rp.handle,
		Framebuffer: fb.(*framebuffer).handle,
		RenderArea: vk.Rect2D{
			Offset: vk.Offset2D{X: 0, Y: 0},
			Extent: vk.Extent2D{Width: extent.Width, Height: extent.Height},
		},
		ClearValueCount: uint32(len(clearValues)),
		PClearValues:    clearValues,
	}
	vk.CmdBeginRenderPass(c.handle, &info, vk.SubpassContentsInline)
	c.state = commandBufferInRenderPass
}

func (c *commandBuffer) EndRenderPass() {
	vk.CmdEndRenderPass(c.handle)
	c.state = commandBufferRecording
}

func (c *commandBuffer) SetViewport(extent driver.Extent2D) {
	viewport := vk.Viewport{
		X:        0,
		Y:        0,
		Width:    float32(extent.Width),
		Height:   float32(extent.Height),
		MinDepth: 0,
		MaxDepth: 1,
	}
	scissor := vk.Rect2D{
		Offset: vk.Offset2D{X: 0, Y: 0},
		Extent: vk.Extent2D{Width: extent.Width, Height: extent.Height},
	}
	vk.CmdSetViewport(c.handle, 0, 1, []vk.Viewport{viewport})
	vk.CmdSetScissor(c.handle, 0, 1, []vk.Rect2D{scissor})
}

func (c *commandBuffer) BindPipeline(p driver.Pipeline) {
	vk.CmdBindPipeline(c.handle, vk.PipelineBindPointGraphics, p.(*pipeline).handle)
}

func (c *commandBuffer) BindDescriptorSets(layout driver.PipelineLayout, firstSet uint32, sets ...driver.DescriptorSet) {
	handles := make([]vk.DescriptorSet, len(sets))
	for i, set := range sets {
		handles[i] = set.(*descriptorSet).handle
	}
	vk.CmdBindDescriptorSets(c.handle, vk.PipelineBindPointGraphics, layout.(*pipelineLayout).handle,
		firstSet, uint32(len(handles)), handles, 0, nil)
}

func (c *commandBuffer) BindVertexBuffer(b driver.Buffer, offset uint64) {
	vk.CmdBindVertexBuffers(c.handle, 0, 1, []vk.Buffer{b.(*buffer).handle}, []vk.DeviceSize{vk.DeviceSize(offset)})
}

func (c *commandBuffer) BindIndexBuffer(b driver.Buffer, offset uint64, indexType driver.IndexType) {
	vk.CmdBindIndexBuffer(c.handle, b.(*buffer).handle, vk.DeviceSize(offset), vk.IndexType(indexType))
}

func (c *commandBuffer) PushConstants(layout driver.PipelineLayout, stages driver.ShaderStage, offset uint32, data []byte) {
	if len(data) == 0 {
		return
	}
	vk.CmdPushConstants(c.handle, layout.(*pipelineLayout).handle, vk.ShaderStageFlags(stages),
		offset, uint32(len(data)), unsafe.Pointer(&data[0]))
}

func (c *commandBuffer) DrawIndexed(indexCount, instanceCount, firstIndex uint32, vertexOffset int32, firstInstance uint32) {
	vk.CmdDrawIndexed(c.handle, indexCount, instanceCount, firstIndex, vertexOffset, firstInstance)
}

func (c *commandBuffer) CopyBuffer(src, dst driver.Buffer, regions ...driver.BufferCopy) {
	copies := make([]vk.BufferCopy, len(regions))
	for i, r := range regions {
		copies[i] = vk.BufferCopy{
			SrcOffset: vk.DeviceSize(r.SrcOffset),
			DstOffset: vk.DeviceSize(r.DstOffset),
			Size:      vk.DeviceSize(r.Size),
		}
	}
	vk.CmdCopyBuffer(c.handle, src.(*buffer).handle, dst.(*buffer).handle, uint32(len(copies)), copies)
}
