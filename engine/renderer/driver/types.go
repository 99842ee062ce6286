package driver

import "fmt"

// Extent2D is a drawable size in pixels.
type Extent2D struct {
	Width  uint32
	Height uint32
}

// IsZero reports whether either dimension is zero, e.g. a minimized window.
func (e Extent2D) IsZero() bool {
	return e.Width == 0 || e.Height == 0
}

func (e Extent2D) String() string {
	return fmt.Sprintf("%dx%d", e.Width, e.Height)
}

// Format is a backend pixel format value. The vulkan backend uses VkFormat values.
type Format uint32

const (
	FormatUndefined       Format = 0
	FormatB8G8R8A8Unorm   Format = 44
	FormatB8G8R8A8Srgb    Format = 50
	FormatD32Sfloat       Format = 126
	FormatD24UnormS8Uint  Format = 129
	FormatD32SfloatS8Uint Format = 130
)

type ColorSpace uint32

const ColorSpaceSrgbNonlinear ColorSpace = 0

type SurfaceFormat struct {
	Format     Format
	ColorSpace ColorSpace
}

type PresentMode uint32

const (
	PresentModeImmediate PresentMode = iota
	PresentModeMailbox
	PresentModeFifo
	PresentModeFifoRelaxed
)

// ParsePresentMode maps a config value to a PresentMode.
func ParsePresentMode(s string) (PresentMode, error) {
	switch s {
	case "immediate":
		return PresentModeImmediate, nil
	case "mailbox":
		return PresentModeMailbox, nil
	case "fifo":
		return PresentModeFifo, nil
	case "fifo_relaxed":
		return PresentModeFifoRelaxed, nil
	}
	return PresentModeFifo, fmt.Errorf("unknown present mode %q", s)
}

func (p PresentMode) String() string {
	switch p {
	case PresentModeImmediate:
		return "immediate"
	case PresentModeMailbox:
		return "mailbox"
	case PresentModeFifo:
		return "fifo"
	case PresentModeFifoRelaxed:
		return "fifo_relaxed"
	}
	return "unknown"
}

// SurfaceCapabilities mirrors the parts of VkSurfaceCapabilitiesKHR the swapchain needs.
type SurfaceCapabilities struct {
	MinImageCount uint32
	// MaxImageCount of 0 means unbounded.
	MaxImageCount uint32
	// CurrentExtent is undefined when Width is math.MaxUint32.
	CurrentExtent  Extent2D
	MinImageExtent Extent2D
	MaxImageExtent Extent2D
}

type SurfaceSupport struct {
	Capabilities SurfaceCapabilities
	Formats      []SurfaceFormat
	PresentModes []PresentMode
}

// SwapchainInfo is the fully resolved request for a new swapchain.
type SwapchainInfo struct {
	Format      SurfaceFormat
	PresentMode PresentMode
	Extent      Extent2D
	ImageCount  uint32
	// Old is handed to the backend so in-flight presents can complete. It is not destroyed by it.
	Old Swapchain
}

type RenderPassInfo struct {
	ColorFormat Format
	DepthFormat Format
}

type ClearValues struct {
	Color   [4]float32
	Depth   float32
	Stencil uint32
}

// DescriptorType values match VkDescriptorType.
type DescriptorType uint32

const (
	DescriptorTypeSampler DescriptorType = iota
	DescriptorTypeCombinedImageSampler
	DescriptorTypeSampledImage
	DescriptorTypeStorageImage
	DescriptorTypeUniformTexelBuffer
	DescriptorTypeStorageTexelBuffer
	DescriptorTypeUniformBuffer
	DescriptorTypeStorageBuffer
	DescriptorTypeUniformBufferDynamic
	DescriptorTypeStorageBufferDynamic
	DescriptorTypeInputAttachment
)

// ShaderStage values match VkShaderStageFlagBits.
type ShaderStage uint32

const (
	ShaderStageVertex      ShaderStage = 0x01
	ShaderStageFragment    ShaderStage = 0x10
	ShaderStageCompute     ShaderStage = 0x20
	ShaderStageAllGraphics ShaderStage = 0x1F
	ShaderStageAll         ShaderStage = 0x7FFFFFFF
)

type DescriptorBinding struct {
	Binding uint32
	Type    DescriptorType
	Count   uint32
	Stages  ShaderStage
}

type PoolSize struct {
	Type  DescriptorType
	Count uint32
}

type BufferRange struct {
	Buffer Buffer
	Offset uint64
	Range  uint64
}

type ImageBinding struct {
	View    ImageView
	Sampler Sampler
}

// DescriptorWrite updates one binding of a set. Exactly one of Buffers or Images is used,
// depending on Type.
type DescriptorWrite struct {
	Set          DescriptorSet
	Binding      uint32
	ArrayElement uint32
	Type         DescriptorType
	Buffers      []BufferRange
	Images       []ImageBinding
}

// BufferUsage values match VkBufferUsageFlagBits.
type BufferUsage uint32

const (
	BufferUsageTransferSrc BufferUsage = 0x001
	BufferUsageTransferDst BufferUsage = 0x002
	BufferUsageUniform     BufferUsage = 0x010
	BufferUsageStorage     BufferUsage = 0x020
	BufferUsageIndex       BufferUsage = 0x040
	BufferUsageVertex      BufferUsage = 0x080
	BufferUsageIndirect    BufferUsage = 0x100
)

type MemoryLocation uint8

const (
	// MemoryDeviceLocal is GPU-only memory. It cannot be written from the CPU.
	MemoryDeviceLocal MemoryLocation = iota
	// MemoryHostVisible is CPU-mappable and coherent. Used for staging.
	MemoryHostVisible
)

type BufferCopy struct {
	SrcOffset uint64
	DstOffset uint64
	Size      uint64
}

type IndexType uint32

const (
	IndexTypeUint16 IndexType = iota
	IndexTypeUint32
)

// SubmitInfo describes a single graphics submission of one frame.
type SubmitInfo struct {
	CommandBuffer CommandBuffer
	// Wait is waited on at the colour attachment output stage.
	Wait   Semaphore
	Signal Semaphore
	Fence  Fence
}
