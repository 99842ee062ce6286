// Package driver is the backend-neutral view of the GPU used by the frame and resource core.
//
// Every handle type owns its GPU object and frees it in Destroy. Destroy must be idempotent so
// that handles can sit in a Scope and still be released early by their owner.
package driver

type Destroyer interface {
	Destroy()
}

type Fence interface {
	// Wait blocks until the fence is signaled or timeout nanoseconds pass.
	Wait(timeout uint64) error
	Reset() error
	Destroy()
}

type Semaphore interface {
	Destroy()
}

type ImageView interface {
	Destroy()
}

// Image is a device image with its memory and a default view.
type Image interface {
	View() ImageView
	Extent() Extent2D
	Destroy()
}

type Sampler interface {
	Destroy()
}

type RenderPass interface {
	Destroy()
}

type Framebuffer interface {
	Extent() Extent2D
	Destroy()
}

type DescriptorSetLayout interface {
	Destroy()
}

// DescriptorSet is owned by the pool it came from and has no Destroy.
type DescriptorSet interface{}

type DescriptorPool interface {
	Allocate(layout DescriptorSetLayout) (DescriptorSet, error)
	// Reset frees every set allocated from the pool.
	Reset() error
	Destroy()
}

type PipelineLayout interface {
	Destroy()
}

// Pipeline is built outside this module and consumed as an opaque handle.
type Pipeline interface {
	Destroy()
}

type Buffer interface {
	Size() uint64
	// Write copies data at offset. Only valid for MemoryHostVisible buffers.
	Write(data []byte, offset uint64) error
	Destroy()
}

type CommandBuffer interface {
	// Begin resets the buffer and starts recording.
	Begin() error
	End() error
	BeginRenderPass(pass RenderPass, framebuffer Framebuffer, clear ClearValues)
	EndRenderPass()
	// SetViewport sets both the viewport and the scissor to cover extent.
	SetViewport(extent Extent2D)
	BindPipeline(pipeline Pipeline)
	BindDescriptorSets(layout PipelineLayout, firstSet uint32, sets ...DescriptorSet)
	BindVertexBuffer(buffer Buffer, offset uint64)
	BindIndexBuffer(buffer Buffer, offset uint64, indexType IndexType)
	PushConstants(layout PipelineLayout, stages ShaderStage, offset uint32, data []byte)
	DrawIndexed(indexCount, instanceCount, firstIndex uint32, vertexOffset int32, firstInstance uint32)
	CopyBuffer(src, dst Buffer, regions ...BufferCopy)
}

type Queue interface {
	Submit(info SubmitInfo) error
	// Present returns ErrOutOfDate or ErrSuboptimal when the swapchain no longer matches the surface.
	Present(swapchain Swapchain, imageIndex uint32, wait Semaphore) error
	WaitIdle() error
}

type Swapchain interface {
	Format() SurfaceFormat
	Extent() Extent2D
	ImageCount() int
	// AcquireNextImage signals the semaphore once the image is usable. On ErrSuboptimal the
	// returned index is still valid.
	AcquireNextImage(timeout uint64, signal Semaphore) (uint32, error)
	// CreateImageViews creates one colour view per image. The caller owns them.
	CreateImageViews() ([]ImageView, error)
	Destroy()
}

// Device is the exclusively owned logical device together with its queues and command pool.
type Device interface {
	SurfaceSupport() (SurfaceSupport, error)
	DepthFormat() (Format, error)

	CreateSwapchain(info SwapchainInfo) (Swapchain, error)
	CreateDepthImage(extent Extent2D, format Format) (Image, error)
	CreateRenderPass(info RenderPassInfo) (RenderPass, error)
	CreateFramebuffer(pass RenderPass, extent Extent2D, attachments []ImageView) (Framebuffer, error)

	CreateFence(signaled bool) (Fence, error)
	CreateSemaphore() (Semaphore, error)
	AllocateCommandBuffers(count int) ([]CommandBuffer, error)

	CreateDescriptorPool(maxSets uint32, sizes []PoolSize) (DescriptorPool, error)
	CreateDescriptorSetLayout(bindings []DescriptorBinding) (DescriptorSetLayout, error)
	UpdateDescriptorSets(writes []DescriptorWrite)
	CreatePipelineLayout(setLayouts []DescriptorSetLayout, pushConstantSize uint32) (PipelineLayout, error)

	CreateBuffer(size uint64, usage BufferUsage, memory MemoryLocation) (Buffer, error)
	// ImmediateSubmit records with fn on a one-shot command buffer, submits it and blocks
	// until the queue is idle.
	ImmediateSubmit(fn func(cmd CommandBuffer)) error

	GraphicsQueue() Queue
	PresentQueue() Queue
	WaitIdle() error
}
