package vulkan

import (
	"fmt"

	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/anima-renderer/engine/core"
	"github.com/spaghettifunk/anima-renderer/engine/renderer/driver"
)

type renderPass struct {
	device *Device
	handle vk.RenderPass
	// attachments is 2 when a depth attachment follows the colour one.
	attachments int
}

// CreateRenderPass builds the single-subpass pass the frames draw into: the colour attachment is
// cleared and ends in the present layout, the optional depth attachment is cleared and discarded.
func (d *Device) CreateRenderPass(info driver.RenderPassInfo) (driver.RenderPass, error) {
	subpass := vk.SubpassDescription{
		PipelineBindPoint:    vk.PipelineBindPointGraphics,
		ColorAttachmentCount: 1,
		PColorAttachments: []vk.AttachmentReference{{
			Attachment: 0,
			Layout:     vk.ImageLayoutColorAttachmentOptimal,
		}},
	}

	attachments := []vk.AttachmentDescription{{
		Format:         vk.Format(info.ColorFormat),
		Samples:        vk.SampleCount1Bit,
		LoadOp:         vk.AttachmentLoadOpClear,
		StoreOp:        vk.AttachmentStoreOpStore,
		StencilLoadOp:  vk.AttachmentLoadOpDontCare,
		StencilStoreOp: vk.AttachmentStoreOpDontCare,
		InitialLayout:  vk.ImageLayoutUndefined,
		FinalLayout:    vk.ImageLayoutPresentSrc,
	}}

	stages := vk.PipelineStageFlags(vk.PipelineStageColorAttachmentOutputBit)
	access := vk.AccessFlags(vk.AccessColorAttachmentReadBit) | vk.AccessFlags(vk.AccessColorAttachmentWriteBit)
	srcStages := stages
	srcAccess := vk.AccessFlags(0)

	if info.DepthFormat != driver.FormatUndefined {
		attachments = append(attachments, vk.AttachmentDescription{
			Format:         vk.Format(info.DepthFormat),
			Samples:        vk.SampleCount1Bit,
			LoadOp:         vk.AttachmentLoadOpClear,
			StoreOp:        vk.AttachmentStoreOpDontCare,
			StencilLoadOp:  vk.AttachmentLoadOpDontCare,
			StencilStoreOp: vk.AttachmentStoreOpDontCare,
			InitialLayout:  vk.ImageLayoutUndefined,
			FinalLayout:    vk.ImageLayoutDepthStencilAttachmentOptimal,
		})
		subpass.PDepthStencilAttachment = &vk.AttachmentReference{
			Attachment: 1,
			Layout:     vk.ImageLayoutDepthStencilAttachmentOptimal,
		}
		stages |= vk.PipelineStageFlags(vk.PipelineStageEarlyFragmentTestsBit)
		access |= vk.AccessFlags(vk.AccessDepthStencilAttachmentWriteBit)
		// Depth writes of the previous use finish in the late tests; the clear must wait for them.
		srcStages |= vk.PipelineStageFlags(vk.PipelineStageEarlyFragmentTestsBit) |
			vk.PipelineStageFlags(vk.PipelineStageLateFragmentTestsBit)
		srcAccess |= vk.AccessFlags(vk.AccessDepthStencilAttachmentWriteBit)
	}

	dependency := vk.SubpassDependency{
		SrcSubpass:    vk.SubpassExternal,
		DstSubpass:    0,
		SrcStageMask:  srcStages,
		SrcAccessMask: srcAccess,
		DstStageMask:  stages,
		DstAccessMask: access,
	}

	createInfo := vk.RenderPassCreateInfo{
		SType:           vk.StructureTypeRenderPassCreateInfo,
		AttachmentCount: uint32(len(attachments)),
		PAttachments:    attachments,
		SubpassCount:    1,
		PSubpasses:      []vk.SubpassDescription{subpass},
		DependencyCount: 1,
		PDependencies:   []vk.SubpassDependency{dependency},
	}

	var handle vk.RenderPass
	if err := resultError(vk.CreateRenderPass(d.logical, &createInfo, d.allocator, &handle), "vkCreateRenderPass"); err != nil {
		err = fmt.Errorf("failed to create render pass: %w", err)
		core.LogError(err.Error())
		return nil, err
	}
	return &renderPass{device: d, handle: handle, attachments: len(attachments)}, nil
}

func (p *renderPass) Destroy() {
	if p.handle != nil {
		vk.DestroyRenderPass(p.device.logical, p.handle, p.device.allocator)
		p.handle = nil
	}
}

// clearValues lays the clear colour and depth out in attachment order.
func (p *renderPass) clearValues(clear driver.ClearValues) []vk.ClearValue {
	values := make([]vk.ClearValue, p.attachments)
	values[0].SetColor(clear.Color[:])
	if p.attachments > 1 {
		values[1].SetDepthStencil(clear.Depth, clear.Stencil)
	}
	return values
}
