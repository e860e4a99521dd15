package gputest

import (
	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/core/core1_0"

	"github.com/vkngwrapper/vulkan-renderer/internal/gpu"
)

// Command is one recorded command. Only the fields relevant to Name are set.
type Command struct {
	Name string

	Src, Dst   gpu.Buffer
	Image      gpu.Image
	Size       int
	Extent     core1_0.Extent2D
	Barrier    gpu.ImageBarrier
	Begin      gpu.RenderPassBegin
	Pipeline   gpu.Pipeline
	Layout     gpu.PipelineLayout
	Set        gpu.DescriptorSet
	Viewport   core1_0.Viewport
	Scissor    core1_0.Rect2D
	IndexType  core1_0.IndexType
	IndexCount int
}

type CommandPool struct {
	dev *Device
}

func NewCommandPool(dev *Device) *CommandPool {
	return &CommandPool{dev: dev}
}

func (p *CommandPool) AllocateCommandBuffer() (gpu.CommandBuffer, error) {
	if err := p.dev.call("AllocateCommandBuffer"); err != nil {
		return nil, err
	}
	return &CommandBuffer{handle: p.dev.newHandle("CommandBuffer")}, nil
}

func (p *CommandPool) FreeCommandBuffers(buffers ...gpu.CommandBuffer) {
	for _, b := range buffers {
		b.(*CommandBuffer).Destroy()
	}
}

type CommandBuffer struct {
	handle
	Commands  []Command
	recording bool
	ended     bool
	// OneTimeSubmit reports the flag passed to the last Begin.
	OneTimeSubmit bool
}

func (c *CommandBuffer) Begin(oneTimeSubmit bool) error {
	if err := c.dev.call("BeginCommandBuffer"); err != nil {
		return err
	}
	if c.recording {
		return errors.New("command buffer already recording")
	}
	c.Commands = nil
	c.recording = true
	c.ended = false
	c.OneTimeSubmit = oneTimeSubmit
	return nil
}

func (c *CommandBuffer) End() error {
	if err := c.dev.call("EndCommandBuffer"); err != nil {
		return err
	}
	if !c.recording {
		return errors.New("command buffer not recording")
	}
	c.recording = false
	c.ended = true
	return nil
}

func (c *CommandBuffer) record(cmd Command) {
	if !c.recording {
		c.dev.violate("%s recorded %s outside Begin/End", c.String(), cmd.Name)
	}
	c.Commands = append(c.Commands, cmd)
}

// Names lists recorded command names in order.
func (c *CommandBuffer) Names() []string {
	names := make([]string, len(c.Commands))
	for i, cmd := range c.Commands {
		names[i] = cmd.Name
	}
	return names
}

func (c *CommandBuffer) CmdCopyBuffer(src, dst gpu.Buffer, size int) error {
	c.record(Command{Name: "CopyBuffer", Src: src, Dst: dst, Size: size})
	return nil
}

func (c *CommandBuffer) CmdCopyBufferToImage(src gpu.Buffer, dst gpu.Image, extent core1_0.Extent2D) error {
	c.record(Command{Name: "CopyBufferToImage", Src: src, Image: dst, Extent: extent})
	return nil
}

func (c *CommandBuffer) CmdImageBarrier(barrier gpu.ImageBarrier) error {
	c.record(Command{Name: "ImageBarrier", Image: barrier.Image, Barrier: barrier})
	return nil
}

func (c *CommandBuffer) CmdBeginRenderPass(begin gpu.RenderPassBegin) error {
	c.record(Command{Name: "BeginRenderPass", Begin: begin})
	return nil
}

func (c *CommandBuffer) CmdEndRenderPass() {
	c.record(Command{Name: "EndRenderPass"})
}

func (c *CommandBuffer) CmdBindPipeline(pipeline gpu.Pipeline) {
	c.record(Command{Name: "BindPipeline", Pipeline: pipeline})
}

func (c *CommandBuffer) CmdSetViewport(viewport core1_0.Viewport) {
	c.record(Command{Name: "SetViewport", Viewport: viewport})
}

func (c *CommandBuffer) CmdSetScissor(scissor core1_0.Rect2D) {
	c.record(Command{Name: "SetScissor", Scissor: scissor})
}

func (c *CommandBuffer) CmdBindDescriptorSet(layout gpu.PipelineLayout, set gpu.DescriptorSet) {
	c.record(Command{Name: "BindDescriptorSet", Layout: layout, Set: set})
}

func (c *CommandBuffer) CmdBindVertexBuffer(buffer gpu.Buffer) {
	c.record(Command{Name: "BindVertexBuffer", Src: buffer})
}

func (c *CommandBuffer) CmdBindIndexBuffer(buffer gpu.Buffer, indexType core1_0.IndexType) {
	c.record(Command{Name: "BindIndexBuffer", Src: buffer, IndexType: indexType})
}

func (c *CommandBuffer) CmdDrawIndexed(indexCount int) {
	c.record(Command{Name: "DrawIndexed", IndexCount: indexCount})
}

// Queue executes transfer commands and layout transitions on the host when
// command buffers are submitted.
type Queue struct {
	dev *Device
	// OnSubmit, when set, runs before the submitted buffers execute.
	OnSubmit  func(buffers []*CommandBuffer)
	Submitted []*CommandBuffer
	WaitIdles int
}

func NewQueue(dev *Device) *Queue {
	return &Queue{dev: dev}
}

func (q *Queue) Submit(buffers ...gpu.CommandBuffer) error {
	if err := q.dev.call("Submit"); err != nil {
		return err
	}
	fakes := make([]*CommandBuffer, len(buffers))
	for i, b := range buffers {
		cb, ok := b.(*CommandBuffer)
		if !ok {
			return errors.Newf("foreign command buffer %T", b)
		}
		if !cb.ended {
			return errors.Newf("%s submitted before End", cb.String())
		}
		fakes[i] = cb
	}
	if q.OnSubmit != nil {
		q.OnSubmit(fakes)
	}
	for _, cb := range fakes {
		for _, cmd := range cb.Commands {
			if err := q.execute(cmd); err != nil {
				return err
			}
		}
	}
	q.Submitted = append(q.Submitted, fakes...)
	return nil
}

func (q *Queue) execute(cmd Command) error {
	switch cmd.Name {
	case "CopyBuffer":
		src, dst := cmd.Src.(*Buffer), cmd.Dst.(*Buffer)
		if src.memory == nil || dst.memory == nil {
			return errors.New("copy between unbound buffers")
		}
		copy(dst.contents(cmd.Size), src.contents(cmd.Size))
	case "CopyBufferToImage":
		src, dst := cmd.Src.(*Buffer), cmd.Image.(*Image)
		if dst.Layout != core1_0.ImageLayoutTransferDstOptimal {
			q.dev.violate("%s copied into while in layout %v", dst.String(), dst.Layout)
		}
		n := cmd.Extent.Width * cmd.Extent.Height * 4
		copy(dst.contents(n), src.contents(n))
	case "ImageBarrier":
		img := cmd.Barrier.Image.(*Image)
		if cmd.Barrier.OldLayout != core1_0.ImageLayoutUndefined && img.Layout != cmd.Barrier.OldLayout {
			q.dev.violate("%s transitioned from %v while in %v", img.String(), cmd.Barrier.OldLayout, img.Layout)
		}
		img.Layout = cmd.Barrier.NewLayout
	}
	return nil
}

func (q *Queue) WaitIdle() error {
	if err := q.dev.call("QueueWaitIdle"); err != nil {
		return err
	}
	q.WaitIdles++
	return nil
}
