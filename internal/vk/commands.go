package vk

import (
	"github.com/vkngwrapper/core/core1_0"

	"github.com/vkngwrapper/vulkan-renderer/internal/gpu"
)

type CommandPool struct {
	device core1_0.Device
	handle core1_0.CommandPool
}

// NewCommandPool creates a pool on queueFamily whose buffers can be reset
// individually, so per-frame buffers can be re-recorded.
func NewCommandPool(device *Device, queueFamily int) (*CommandPool, error) {
	pool, _, err := device.device.CreateCommandPool(nil, core1_0.CommandPoolCreateInfo{
		Flags:            core1_0.CommandPoolCreateResetBuffer,
		QueueFamilyIndex: queueFamily,
	})
	if err != nil {
		return nil, gpu.CreationFailed(err, "create command pool")
	}
	return &CommandPool{device: device.device, handle: pool}, nil
}

func (p *CommandPool) AllocateCommandBuffer() (gpu.CommandBuffer, error) {
	buffers, _, err := p.device.AllocateCommandBuffers(core1_0.CommandBufferAllocateInfo{
		CommandPool:        p.handle,
		Level:              core1_0.CommandBufferLevelPrimary,
		CommandBufferCount: 1,
	})
	if err != nil {
		return nil, err
	}
	return &CommandBuffer{handle: buffers[0]}, nil
}

func (p *CommandPool) FreeCommandBuffers(buffers ...gpu.CommandBuffer) {
	var handles []core1_0.CommandBuffer
	for _, buffer := range buffers {
		handles = append(handles, buffer.(*CommandBuffer).handle)
	}
	if len(handles) > 0 {
		p.device.FreeCommandBuffers(handles)
	}
}

func (p *CommandPool) Destroy() {
	p.handle.Destroy(nil)
}

type CommandBuffer struct {
	handle core1_0.CommandBuffer
}

func (c *CommandBuffer) Handle() core1_0.CommandBuffer {
	return c.handle
}

// Reset discards everything recorded so the buffer can be begun again.
func (c *CommandBuffer) Reset() error {
	_, err := c.handle.Reset(0)
	return err
}

func (c *CommandBuffer) Begin(oneTimeSubmit bool) error {
	info := core1_0.CommandBufferBeginInfo{}
	if oneTimeSubmit {
		info.Flags = core1_0.CommandBufferUsageOneTimeSubmit
	}
	_, err := c.handle.Begin(info)
	return err
}

func (c *CommandBuffer) End() error {
	_, err := c.handle.End()
	return err
}

func (c *CommandBuffer) CmdCopyBuffer(src, dst gpu.Buffer, size int) error {
	return c.handle.CmdCopyBuffer(src.(*Buffer).handle, dst.(*Buffer).handle, []core1_0.BufferCopy{
		{
			SrcOffset: 0,
			DstOffset: 0,
			Size:      size,
		},
	})
}

func (c *CommandBuffer) CmdCopyBufferToImage(src gpu.Buffer, dst gpu.Image, extent core1_0.Extent2D) error {
	return c.handle.CmdCopyBufferToImage(src.(*Buffer).handle, dst.(*Image).handle, core1_0.ImageLayoutTransferDstOptimal, []core1_0.BufferImageCopy{
		{
			BufferOffset:      0,
			BufferRowLength:   0,
			BufferImageHeight: 0,

			ImageSubresource: core1_0.ImageSubresourceLayers{
				AspectMask:     core1_0.ImageAspectColor,
				MipLevel:       0,
				BaseArrayLayer: 0,
				LayerCount:     1,
			},
			ImageOffset: core1_0.Offset3D{X: 0, Y: 0, Z: 0},
			ImageExtent: core1_0.Extent3D{Width: extent.Width, Height: extent.Height, Depth: 1},
		},
	})
}

func (c *CommandBuffer) CmdImageBarrier(barrier gpu.ImageBarrier) error {
	return c.handle.CmdPipelineBarrier(barrier.SrcStage, barrier.DstStage, 0, nil, nil, []core1_0.ImageMemoryBarrier{
		{
			OldLayout:           barrier.OldLayout,
			NewLayout:           barrier.NewLayout,
			SrcQueueFamilyIndex: -1,
			DstQueueFamilyIndex: -1,
			Image:               barrier.Image.(*Image).handle,
			SubresourceRange: core1_0.ImageSubresourceRange{
				AspectMask:     barrier.Aspect,
				BaseMipLevel:   0,
				LevelCount:     1,
				BaseArrayLayer: 0,
				LayerCount:     1,
			},
			SrcAccessMask: barrier.SrcAccess,
			DstAccessMask: barrier.DstAccess,
		},
	})
}

func (c *CommandBuffer) CmdBeginRenderPass(begin gpu.RenderPassBegin) error {
	return c.handle.CmdBeginRenderPass(core1_0.SubpassContentsInline,
		core1_0.RenderPassBeginInfo{
			RenderPass:  begin.RenderPass.(*RenderPass).handle,
			Framebuffer: begin.Framebuffer.(*Framebuffer).handle,
			RenderArea:  begin.Area,
			ClearValues: begin.ClearValues,
		})
}

func (c *CommandBuffer) CmdEndRenderPass() {
	c.handle.CmdEndRenderPass()
}

func (c *CommandBuffer) CmdBindPipeline(pipeline gpu.Pipeline) {
	c.handle.CmdBindPipeline(core1_0.PipelineBindPointGraphics, pipeline.(*Pipeline).handle)
}

func (c *CommandBuffer) CmdSetViewport(viewport core1_0.Viewport) {
	c.handle.CmdSetViewport([]core1_0.Viewport{viewport})
}

func (c *CommandBuffer) CmdSetScissor(scissor core1_0.Rect2D) {
	c.handle.CmdSetScissor([]core1_0.Rect2D{scissor})
}

func (c *CommandBuffer) CmdBindDescriptorSet(layout gpu.PipelineLayout, set gpu.DescriptorSet) {
	c.handle.CmdBindDescriptorSets(core1_0.PipelineBindPointGraphics, layout.(*PipelineLayout).handle, []core1_0.DescriptorSet{
		set.(*DescriptorSet).handle,
	}, nil)
}

func (c *CommandBuffer) CmdBindVertexBuffer(buffer gpu.Buffer) {
	c.handle.CmdBindVertexBuffers([]core1_0.Buffer{buffer.(*Buffer).handle}, []int{0})
}

func (c *CommandBuffer) CmdBindIndexBuffer(buffer gpu.Buffer, indexType core1_0.IndexType) {
	c.handle.CmdBindIndexBuffer(buffer.(*Buffer).handle, 0, indexType)
}

func (c *CommandBuffer) CmdDrawIndexed(indexCount int) {
	c.handle.CmdDrawIndexed(indexCount, 1, 0, 0, 0)
}

// Queue submits without synchronisation primitives and is used for blocking
// one-shot work. Frame submission with semaphores and fences goes through
// Handle.
type Queue struct {
	handle core1_0.Queue
}

func NewQueue(queue core1_0.Queue) *Queue {
	return &Queue{handle: queue}
}

func (q *Queue) Handle() core1_0.Queue {
	return q.handle
}

func (q *Queue) Submit(buffers ...gpu.CommandBuffer) error {
	var handles []core1_0.CommandBuffer
	for _, buffer := range buffers {
		handles = append(handles, buffer.(*CommandBuffer).handle)
	}
	_, err := q.handle.Submit(nil, []core1_0.SubmitInfo{
		{
			CommandBuffers: handles,
		},
	})
	return err
}

func (q *Queue) WaitIdle() error {
	_, err := q.handle.WaitIdle()
	return err
}
