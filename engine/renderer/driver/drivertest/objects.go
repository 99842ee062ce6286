package drivertest

import (
	"fmt"

	"github.com/spaghettifunk/anima-renderer/engine/renderer/driver"
)

type Fence struct {
	ID       int
	Signaled bool
	Waits    int

	dev       *Device
	destroyed bool
}

// Wait fails with driver.ErrTimeout on a fence that was reset and never submitted, which on a
// real GPU would hang forever.
func (f *Fence) Wait(timeout uint64) error {
	f.Waits++
	f.dev.FenceWaits = append(f.dev.FenceWaits, f)
	f.dev.logf("wait fence=%d", f.ID)
	if !f.Signaled {
		return driver.ErrTimeout
	}
	return nil
}

func (f *Fence) Reset() error {
	f.Signaled = false
	return nil
}

func (f *Fence) Destroy() {
	f.dev.destroy(KindFence, &f.destroyed)
}

type Semaphore struct {
	ID int

	dev       *Device
	destroyed bool
}

func (s *Semaphore) Destroy() {
	s.dev.destroy(KindSemaphore, &s.destroyed)
}

type ImageView struct {
	ID int

	dev       *Device
	destroyed bool
}

func (v *ImageView) Destroy() {
	v.dev.destroy(KindImageView, &v.destroyed)
}

func (v *ImageView) Destroyed() bool {
	return v.destroyed
}

type Image struct {
	ID     int
	Format driver.Format

	dev       *Device
	extent    driver.Extent2D
	view      *ImageView
	destroyed bool
}

func (i *Image) View() driver.ImageView {
	return i.view
}

func (i *Image) Extent() driver.Extent2D {
	return i.extent
}

func (i *Image) Destroyed() bool {
	return i.destroyed
}

func (i *Image) Destroy() {
	i.view.Destroy()
	i.dev.destroy(KindImage, &i.destroyed)
}

type Sampler struct {
	ID int

	dev       *Device
	destroyed bool
}

func (s *Sampler) Destroy() {
	s.dev.destroy(KindSampler, &s.destroyed)
}

type RenderPass struct {
	ID   int
	Info driver.RenderPassInfo

	dev       *Device
	destroyed bool
}

func (r *RenderPass) Destroy() {
	r.dev.destroy(KindRenderPass, &r.destroyed)
}

type Framebuffer struct {
	ID          int
	Attachments []driver.ImageView

	dev       *Device
	extent    driver.Extent2D
	destroyed bool
}

func (f *Framebuffer) Extent() driver.Extent2D {
	return f.extent
}

func (f *Framebuffer) Destroy() {
	f.dev.destroy(KindFramebuffer, &f.destroyed)
}

func (f *Framebuffer) Destroyed() bool {
	return f.destroyed
}

type Swapchain struct {
	ID   int
	Info driver.SwapchainInfo

	dev       *Device
	next      uint32
	destroyed bool
}

func (s *Swapchain) Format() driver.SurfaceFormat {
	return s.Info.Format
}

func (s *Swapchain) Extent() driver.Extent2D {
	return s.Info.Extent
}

func (s *Swapchain) ImageCount() int {
	return int(s.Info.ImageCount)
}

// AcquireNextImage hands out images round robin.
func (s *Swapchain) AcquireNextImage(timeout uint64, signal driver.Semaphore) (uint32, error) {
	s.dev.Acquires++
	err := pop(&s.dev.AcquireErrors)
	if err == driver.ErrOutOfDate {
		s.dev.logf("acquire swapchain=%d out of date", s.ID)
		return 0, err
	}
	index := s.next % s.Info.ImageCount
	s.next++
	s.dev.logf("acquire swapchain=%d image=%d signal=%d", s.ID, index, signal.(*Semaphore).ID)
	return index, err
}

func (s *Swapchain) CreateImageViews() ([]driver.ImageView, error) {
	views := make([]driver.ImageView, s.Info.ImageCount)
	for i := range views {
		views[i] = &ImageView{ID: s.dev.create(KindImageView), dev: s.dev}
	}
	return views, nil
}

func (s *Swapchain) Destroy() {
	s.dev.destroy(KindSwapchain, &s.destroyed)
}

func (s *Swapchain) Destroyed() bool {
	return s.destroyed
}

type Queue struct {
	dev  *Device
	name string
}

func (q *Queue) Submit(info driver.SubmitInfo) error {
	sub := Submission{CommandBuffer: info.CommandBuffer.(*CommandBuffer)}
	if info.Wait != nil {
		sub.Wait = info.Wait.(*Semaphore)
	}
	if info.Signal != nil {
		sub.Signal = info.Signal.(*Semaphore)
	}
	if info.Fence != nil {
		sub.Fence = info.Fence.(*Fence)
		sub.Fence.Signaled = true
	}
	q.dev.Submissions = append(q.dev.Submissions, sub)
	q.dev.logf("submit cmd=%d wait=%d signal=%d fence=%d", sub.CommandBuffer.ID, idOf(sub.Wait), idOf(sub.Signal), fenceID(sub.Fence))
	return nil
}

func (q *Queue) Present(swapchain driver.Swapchain, imageIndex uint32, wait driver.Semaphore) error {
	p := Present{Swapchain: swapchain.(*Swapchain), ImageIndex: imageIndex}
	if wait != nil {
		p.Wait = wait.(*Semaphore)
	}
	q.dev.Presents = append(q.dev.Presents, p)
	q.dev.logf("present swapchain=%d image=%d wait=%d", p.Swapchain.ID, imageIndex, idOf(p.Wait))
	return pop(&q.dev.PresentErrors)
}

func (q *Queue) WaitIdle() error {
	return nil
}

func idOf(s *Semaphore) int {
	if s == nil {
		return 0
	}
	return s.ID
}

func fenceID(f *Fence) int {
	if f == nil {
		return 0
	}
	return f.ID
}

type DescriptorSet struct {
	Pool   *DescriptorPool
	Layout *DescriptorSetLayout
}

type DescriptorPool struct {
	ID        int
	MaxSets   uint32
	Sizes     []driver.PoolSize
	Allocated uint32
	Resets    int

	dev       *Device
	destroyed bool
}

func (p *DescriptorPool) Allocate(layout driver.DescriptorSetLayout) (driver.DescriptorSet, error) {
	if err := pop(&p.dev.AllocateErrors); err != nil {
		return nil, err
	}
	if p.Allocated >= p.MaxSets {
		return nil, driver.ErrOutOfPoolMemory
	}
	p.Allocated++
	return &DescriptorSet{Pool: p, Layout: layout.(*DescriptorSetLayout)}, nil
}

func (p *DescriptorPool) Reset() error {
	if err := pop(&p.dev.ResetErrors); err != nil {
		return err
	}
	p.Allocated = 0
	p.Resets++
	return nil
}

func (p *DescriptorPool) Destroy() {
	p.dev.destroy(KindDescriptorPool, &p.destroyed)
}

func (p *DescriptorPool) Destroyed() bool {
	return p.destroyed
}

type DescriptorSetLayout struct {
	ID       int
	Bindings []driver.DescriptorBinding

	dev       *Device
	destroyed bool
}

func (l *DescriptorSetLayout) Destroy() {
	l.dev.destroy(KindSetLayout, &l.destroyed)
}

type PipelineLayout struct {
	ID               int
	SetLayouts       []driver.DescriptorSetLayout
	PushConstantSize uint32

	dev       *Device
	destroyed bool
}

func (l *PipelineLayout) Destroy() {
	l.dev.destroy(KindPipelineLayout, &l.destroyed)
}

type Pipeline struct {
	ID int

	dev       *Device
	destroyed bool
}

func (p *Pipeline) Destroy() {
	p.dev.destroy(KindPipeline, &p.destroyed)
}

type Buffer struct {
	ID     int
	Data   []byte
	Usage  driver.BufferUsage
	Memory driver.MemoryLocation

	dev       *Device
	destroyed bool
}

func (b *Buffer) Size() uint64 {
	return uint64(len(b.Data))
}

func (b *Buffer) Write(data []byte, offset uint64) error {
	if b.Memory != driver.MemoryHostVisible {
		return fmt.Errorf("buffer %d is not host visible", b.ID)
	}
	if offset+uint64(len(data)) > b.Size() {
		return fmt.Errorf("write of %d bytes at %d overflows buffer %d of %d bytes", len(data), offset, b.ID, b.Size())
	}
	copy(b.Data[offset:], data)
	return nil
}

func (b *Buffer) Destroy() {
	b.dev.destroy(KindBuffer, &b.destroyed)
}

func (b *Buffer) Destroyed() bool {
	return b.destroyed
}

// DrawIndexed is one recorded indexed draw.
type DrawIndexed struct {
	IndexCount    uint32
	InstanceCount uint32
	FirstIndex    uint32
	VertexOffset  int32
	FirstInstance uint32
}

type CommandBuffer struct {
	ID        int
	Recording bool
	Begins    int
	// Commands lists recorded command names since the last Begin.
	Commands []string
	Draws    []DrawIndexed
	Clear    driver.ClearValues
	Viewport driver.Extent2D
	Bound    []driver.DescriptorSet

	dev *Device
}

func (c *CommandBuffer) record(name string) {
	c.Commands = append(c.Commands, name)
}

func (c *CommandBuffer) Begin() error {
	c.Recording = true
	c.Begins++
	c.Commands = nil
	c.Draws = nil
	c.Bound = nil
	return nil
}

func (c *CommandBuffer) End() error {
	if !c.Recording {
		return fmt.Errorf("command buffer %d ended while not recording", c.ID)
	}
	c.Recording = false
	return nil
}

func (c *CommandBuffer) BeginRenderPass(pass driver.RenderPass, framebuffer driver.Framebuffer, clear driver.ClearValues) {
	c.Clear = clear
	c.record(fmt.Sprintf("begin_render_pass framebuffer=%d", framebuffer.(*Framebuffer).ID))
}

func (c *CommandBuffer) EndRenderPass() {
	c.record("end_render_pass")
}

func (c *CommandBuffer) SetViewport(extent driver.Extent2D) {
	c.Viewport = extent
	c.record("set_viewport")
}

func (c *CommandBuffer) BindPipeline(pipeline driver.Pipeline) {
	c.record("bind_pipeline")
}

func (c *CommandBuffer) BindDescriptorSets(layout driver.PipelineLayout, firstSet uint32, sets ...driver.DescriptorSet) {
	c.Bound = append(c.Bound, sets...)
	c.record("bind_descriptor_sets")
}

func (c *CommandBuffer) BindVertexBuffer(buffer driver.Buffer, offset uint64) {
	c.record(fmt.Sprintf("bind_vertex_buffer buffer=%d", buffer.(*Buffer).ID))
}

func (c *CommandBuffer) BindIndexBuffer(buffer driver.Buffer, offset uint64, indexType driver.IndexType) {
	c.record(fmt.Sprintf("bind_index_buffer buffer=%d", buffer.(*Buffer).ID))
}

func (c *CommandBuffer) PushConstants(layout driver.PipelineLayout, stages driver.ShaderStage, offset uint32, data []byte) {
	c.record("push_constants")
}

func (c *CommandBuffer) DrawIndexed(indexCount, instanceCount, firstIndex uint32, vertexOffset int32, firstInstance uint32) {
	c.Draws = append(c.Draws, DrawIndexed{indexCount, instanceCount, firstIndex, vertexOffset, firstInstance})
	c.record("draw_indexed")
}

func (c *CommandBuffer) CopyBuffer(src, dst driver.Buffer, regions ...driver.BufferCopy) {
	s, d := src.(*Buffer), dst.(*Buffer)
	for _, r := range regions {
		copy(d.Data[r.DstOffset:r.DstOffset+r.Size], s.Data[r.SrcOffset:r.SrcOffset+r.Size])
	}
	c.record("copy_buffer")
}
