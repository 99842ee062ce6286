// Package drivertest provides an in-memory driver.Device that records every call.
//
// The fake GPU completes work at submission time: a submitted fence is signaled at once and
// buffer copies are applied while they are recorded.
package drivertest

import (
	"fmt"
	"math"

	"github.com/spaghettifunk/anima-renderer/engine/renderer/driver"
)

// Object kinds tracked by Live.
const (
	KindSwapchain      = "swapchain"
	KindImageView      = "image_view"
	KindImage          = "image"
	KindRenderPass     = "render_pass"
	KindFramebuffer    = "framebuffer"
	KindFence          = "fence"
	KindSemaphore      = "semaphore"
	KindDescriptorPool = "descriptor_pool"
	KindSetLayout      = "set_layout"
	KindPipelineLayout = "pipeline_layout"
	KindPipeline       = "pipeline"
	KindBuffer         = "buffer"
	KindSampler        = "sampler"
)

type Present struct {
	Swapchain  *Swapchain
	ImageIndex uint32
	Wait       *Semaphore
}

// Submission is one frame submit as seen by the graphics queue.
type Submission struct {
	CommandBuffer *CommandBuffer
	Wait          *Semaphore
	Signal        *Semaphore
	Fence         *Fence
}

type Device struct {
	Support driver.SurfaceSupport
	Depth   driver.Format

	// Events is a chronological log of acquire, submit, present and fence wait calls.
	Events []string

	Acquires     int
	Submissions  []Submission
	Presents     []Present
	FenceWaits   []*Fence
	WaitIdles    int
	Immediate    int
	Swapchains   []*Swapchain
	Pools        []*DescriptorPool
	Layouts      []*DescriptorSetLayout
	Writes       []driver.DescriptorWrite
	CommandLists []*CommandBuffer

	// AcquireErrors, PresentErrors, AllocateErrors and ResetErrors are consumed one per call.
	// A nil entry means the call succeeds.
	AcquireErrors  []error
	PresentErrors  []error
	AllocateErrors []error
	ResetErrors    []error

	// MaxBufferSize bounds CreateBuffer; larger requests fail with ErrOutOfDeviceMemory.
	MaxBufferSize uint64

	live     map[string]int
	nextID   int
	graphics *Queue
	present  *Queue
}

// NewDevice returns a device whose surface yields three images per swapchain.
func NewDevice() *Device {
	d := &Device{
		Support: driver.SurfaceSupport{
			Capabilities: driver.SurfaceCapabilities{
				MinImageCount:  2,
				MaxImageCount:  3,
				CurrentExtent:  driver.Extent2D{Width: math.MaxUint32, Height: math.MaxUint32},
				MinImageExtent: driver.Extent2D{Width: 1, Height: 1},
				MaxImageExtent: driver.Extent2D{Width: 4096, Height: 4096},
			},
			Formats: []driver.SurfaceFormat{
				{Format: driver.FormatB8G8R8A8Srgb, ColorSpace: driver.ColorSpaceSrgbNonlinear},
			},
			PresentModes: []driver.PresentMode{driver.PresentModeFifo, driver.PresentModeMailbox},
		},
		Depth:         driver.FormatD32Sfloat,
		MaxBufferSize: 1 << 30,
		live:          make(map[string]int),
	}
	d.graphics = &Queue{dev: d, name: "graphics"}
	d.present = &Queue{dev: d, name: "present"}
	return d
}

// Live returns the number of objects of kind that were created and not destroyed.
func (d *Device) Live(kind string) int {
	return d.live[kind]
}

func (d *Device) logf(format string, args ...interface{}) {
	d.Events = append(d.Events, fmt.Sprintf(format, args...))
}

func (d *Device) create(kind string) int {
	d.live[kind]++
	d.nextID++
	return d.nextID
}

func (d *Device) destroy(kind string, destroyed *bool) {
	if *destroyed {
		return
	}
	*destroyed = true
	d.live[kind]--
}

func pop(errs *[]error) error {
	if len(*errs) == 0 {
		return nil
	}
	err := (*errs)[0]
	*errs = (*errs)[1:]
	return err
}

func (d *Device) SurfaceSupport() (driver.SurfaceSupport, error) {
	return d.Support, nil
}

func (d *Device) DepthFormat() (driver.Format, error) {
	return d.Depth, nil
}

func (d *Device) CreateSwapchain(info driver.SwapchainInfo) (driver.Swapchain, error) {
	sc := &Swapchain{ID: d.create(KindSwapchain), dev: d, Info: info}
	d.Swapchains = append(d.Swapchains, sc)
	return sc, nil
}

func (d *Device) CreateDepthImage(extent driver.Extent2D, format driver.Format) (driver.Image, error) {
	img := &Image{ID: d.create(KindImage), dev: d, extent: extent, Format: format}
	img.view = &ImageView{ID: d.create(KindImageView), dev: d}
	return img, nil
}

func (d *Device) CreateRenderPass(info driver.RenderPassInfo) (driver.RenderPass, error) {
	return &RenderPass{ID: d.create(KindRenderPass), dev: d, Info: info}, nil
}

func (d *Device) CreateFramebuffer(pass driver.RenderPass, extent driver.Extent2D, attachments []driver.ImageView) (driver.Framebuffer, error) {
	return &Framebuffer{
		ID:          d.create(KindFramebuffer),
		dev:         d,
		extent:      extent,
		Attachments: append([]driver.ImageView(nil), attachments...),
	}, nil
}

func (d *Device) CreateFence(signaled bool) (driver.Fence, error) {
	return &Fence{ID: d.create(KindFence), dev: d, Signaled: signaled}, nil
}

func (d *Device) CreateSemaphore() (driver.Semaphore, error) {
	return &Semaphore{ID: d.create(KindSemaphore), dev: d}, nil
}

func (d *Device) AllocateCommandBuffers(count int) ([]driver.CommandBuffer, error) {
	out := make([]driver.CommandBuffer, count)
	for i := range out {
		d.nextID++
		cb := &CommandBuffer{ID: d.nextID, dev: d}
		d.CommandLists = append(d.CommandLists, cb)
		out[i] = cb
	}
	return out, nil
}

func (d *Device) CreateDescriptorPool(maxSets uint32, sizes []driver.PoolSize) (driver.DescriptorPool, error) {
	p := &DescriptorPool{
		ID:      d.create(KindDescriptorPool),
		dev:     d,
		MaxSets: maxSets,
		Sizes:   append([]driver.PoolSize(nil), sizes...),
	}
	d.Pools = append(d.Pools, p)
	return p, nil
}

func (d *Device) CreateDescriptorSetLayout(bindings []driver.DescriptorBinding) (driver.DescriptorSetLayout, error) {
	l := &DescriptorSetLayout{
		ID:       d.create(KindSetLayout),
		dev:      d,
		Bindings: append([]driver.DescriptorBinding(nil), bindings...),
	}
	d.Layouts = append(d.Layouts, l)
	return l, nil
}

func (d *Device) UpdateDescriptorSets(writes []driver.DescriptorWrite) {
	d.Writes = append(d.Writes, writes...)
}

func (d *Device) CreatePipelineLayout(setLayouts []driver.DescriptorSetLayout, pushConstantSize uint32) (driver.PipelineLayout, error) {
	return &PipelineLayout{
		ID:               d.create(KindPipelineLayout),
		dev:              d,
		SetLayouts:       append([]driver.DescriptorSetLayout(nil), setLayouts...),
		PushConstantSize: pushConstantSize,
	}, nil
}

// NewPipeline stands in for a pipeline built by the shader collaborator.
func (d *Device) NewPipeline() *Pipeline {
	return &Pipeline{ID: d.create(KindPipeline), dev: d}
}

// NewSampler stands in for a sampler built by the texture collaborator.
func (d *Device) NewSampler() *Sampler {
	return &Sampler{ID: d.create(KindSampler), dev: d}
}

func (d *Device) CreateBuffer(size uint64, usage driver.BufferUsage, memory driver.MemoryLocation) (driver.Buffer, error) {
	if size > d.MaxBufferSize {
		return nil, fmt.Errorf("buffer of %d bytes: %w", size, driver.ErrOutOfDeviceMemory)
	}
	return &Buffer{
		ID:     d.create(KindBuffer),
		dev:    d,
		Data:   make([]byte, size),
		Usage:  usage,
		Memory: memory,
	}, nil
}

func (d *Device) ImmediateSubmit(fn func(cmd driver.CommandBuffer)) error {
	d.nextID++
	cb := &CommandBuffer{ID: d.nextID, dev: d}
	fn(cb)
	d.Immediate++
	return nil
}

func (d *Device) GraphicsQueue() driver.Queue {
	return d.graphics
}

func (d *Device) PresentQueue() driver.Queue {
	return d.present
}

func (d *Device) WaitIdle() error {
	d.WaitIdles++
	d.logf("wait idle")
	return nil
}
