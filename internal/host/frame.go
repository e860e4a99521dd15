package host

import (
	"github.com/cockroachdb/errors"
	"github.com/veandco/go-sdl2/sdl"
	"github.com/vkngwrapper/core/common"
	"github.com/vkngwrapper/core/core1_0"
	"github.com/vkngwrapper/extensions/khr_swapchain"
	"golang.org/x/exp/slog"

	"github.com/vkngwrapper/vulkan-renderer/internal/gpu"
	"github.com/vkngwrapper/vulkan-renderer/internal/renderer"
	"github.com/vkngwrapper/vulkan-renderer/internal/swapchain"
	"github.com/vkngwrapper/vulkan-renderer/internal/vk"
)

var _ renderer.Surface = (*Host)(nil)
var _ Renderer = (*renderer.Renderer)(nil)

// Renderer is driven by Run. It matches renderer.Renderer.
type Renderer interface {
	InitResources() error
	InitSwapchainResources() error
	RenderFrame() error
	ReleaseSwapchainResources()
	ReleaseResources()
}

type frameSync struct {
	commandBuffer  *vk.CommandBuffer
	imageAvailable core1_0.Semaphore
	renderFinished core1_0.Semaphore
	inFlight       core1_0.Fence
}

func (h *Host) createSyncObjects() error {
	device := h.device.Handle()
	for i := 0; i < h.opts.FramesInFlight; i++ {
		f := &frameSync{}
		h.frames = append(h.frames, f)

		buffer, err := h.commandPool.AllocateCommandBuffer()
		if err != nil {
			return gpu.CreationFailed(err, "allocate frame command buffer")
		}
		f.commandBuffer = buffer.(*vk.CommandBuffer)

		f.imageAvailable, _, err = device.CreateSemaphore(nil, core1_0.SemaphoreCreateInfo{})
		if err != nil {
			return gpu.CreationFailed(err, "create semaphore")
		}

		f.renderFinished, _, err = device.CreateSemaphore(nil, core1_0.SemaphoreCreateInfo{})
		if err != nil {
			return gpu.CreationFailed(err, "create semaphore")
		}

		f.inFlight, _, err = device.CreateFence(nil, core1_0.FenceCreateInfo{
			Flags: core1_0.FenceCreateSignaled,
		})
		if err != nil {
			return gpu.CreationFailed(err, "create fence")
		}
	}

	return nil
}

func (h *Host) destroySyncObjects() {
	for _, f := range h.frames {
		if f.commandBuffer != nil {
			h.commandPool.FreeCommandBuffers(f.commandBuffer)
		}
		if f.imageAvailable != nil {
			f.imageAvailable.Destroy(nil)
		}
		if f.renderFinished != nil {
			f.renderFinished.Destroy(nil)
		}
		if f.inFlight != nil {
			f.inFlight.Destroy(nil)
		}
	}
	h.frames = nil
}

// Run drives r until the window is closed. r's swapchain resources are
// released and recreated around every swapchain rebuild, and all of r's
// resources are released before Run returns.
func (h *Host) Run(r Renderer) (err error) {
	if err := r.InitResources(); err != nil {
		return err
	}
	defer func() {
		waitErr := h.device.WaitIdle()
		r.ReleaseSwapchainResources()
		r.ReleaseResources()
		if err == nil {
			err = waitErr
		}
	}()

	if err := r.InitSwapchainResources(); err != nil {
		return err
	}
	h.updateRequested = true

	for {
		quit := h.pollEvents()
		if quit {
			return nil
		}

		if h.needsRecreate {
			if err := h.recreateSwapchain(r); err != nil {
				return err
			}
		}

		if !h.presentable() {
			// Nothing worth presenting into; let the renderer see the surface
			// and wait for the window to come back.
			if err := r.RenderFrame(); err != nil {
				return err
			}
			sdl.Delay(10)
			continue
		}

		if !h.updateRequested {
			continue
		}
		h.updateRequested = false

		began, err := h.beginFrame()
		if err != nil {
			return err
		}
		if !began {
			continue
		}

		if err := r.RenderFrame(); err != nil {
			return err
		}
		if h.frameActive {
			return errors.AssertionFailedf("renderer returned without completing frame %d", h.currentFrame)
		}
	}
}

// presentable reports whether frames should acquire and present. Below the
// minimum extent the renderer draws nothing, so no image is acquired.
func (h *Host) presentable() bool {
	return h.swapchain != nil && !swapchain.TooSmall(h.swapchainExtent, h.opts.MinExtent)
}

// presentTransition moves an acquired image that nothing rendered into to a
// layout it can be presented from.
func presentTransition(image gpu.Image) gpu.ImageBarrier {
	return gpu.ImageBarrier{
		Image:     image,
		OldLayout: core1_0.ImageLayoutUndefined,
		NewLayout: khr_swapchain.ImageLayoutPresentSrc,
		SrcStage:  core1_0.PipelineStageColorAttachmentOutput,
		DstStage:  core1_0.PipelineStageBottomOfPipe,
		Aspect:    core1_0.ImageAspectColor,
	}
}

func (h *Host) pollEvents() bool {
	for event := sdl.PollEvent(); event != nil; event = sdl.PollEvent() {
		switch e := event.(type) {
		case *sdl.QuitEvent:
			return true
		case *sdl.WindowEvent:
			switch e.Event {
			case sdl.WINDOWEVENT_MINIMIZED, sdl.WINDOWEVENT_RESTORED, sdl.WINDOWEVENT_RESIZED, sdl.WINDOWEVENT_SIZE_CHANGED:
				h.needsRecreate = true
				h.updateRequested = true
			case sdl.WINDOWEVENT_EXPOSED:
				h.updateRequested = true
			}
		}
	}
	return false
}

func (h *Host) recreateSwapchain(r Renderer) error {
	h.needsRecreate = false

	if err := h.device.WaitIdle(); err != nil {
		return err
	}

	r.ReleaseSwapchainResources()
	h.releaseSwapchain()

	if err := h.createSwapchain(); err != nil {
		return errors.Wrap(err, "recreate swapchain")
	}
	h.updateRequested = true
	return r.InitSwapchainResources()
}

// beginFrame waits for the current frame slot, acquires a swapchain image
// and begins the slot's command buffer. It reports false when the swapchain
// went out of date and has to be rebuilt first.
func (h *Host) beginFrame() (bool, error) {
	f := h.frames[h.currentFrame]
	device := h.device.Handle()
	fences := []core1_0.Fence{f.inFlight}

	_, err := device.WaitForFences(true, common.NoTimeout, fences)
	if err != nil {
		return false, err
	}

	imageIndex, res, err := h.swapchain.AcquireNextImage(common.NoTimeout, f.imageAvailable, nil)
	if res == khr_swapchain.VKErrorOutOfDate {
		h.logger.Debug("swapchain out of date on acquire")
		h.needsRecreate = true
		h.updateRequested = true
		return false, nil
	} else if err != nil {
		return false, err
	}

	if h.imagesInFlight[imageIndex] != nil {
		_, err := h.imagesInFlight[imageIndex].Wait(common.NoTimeout)
		if err != nil {
			return false, err
		}
	}
	h.imagesInFlight[imageIndex] = f.inFlight

	_, err = device.ResetFences(fences)
	if err != nil {
		return false, err
	}

	if err := f.commandBuffer.Reset(); err != nil {
		return false, err
	}
	if err := f.commandBuffer.Begin(false); err != nil {
		return false, err
	}

	h.imageIndex = imageIndex
	h.frameActive = true
	return true, nil
}

// FrameReady ends the current command buffer, submits it and presents the
// acquired image. An empty command buffer gets a layout transition so the
// image is still presentable. It is a no-op when no frame was begun.
func (h *Host) FrameReady() error {
	if !h.frameActive {
		return nil
	}
	h.frameActive = false

	f := h.frames[h.currentFrame]
	if f.commandBuffer.Handle().CommandsRecorded() == 0 {
		if err := f.commandBuffer.CmdImageBarrier(presentTransition(h.swapchainImages[h.imageIndex])); err != nil {
			return err
		}
	}
	if err := f.commandBuffer.End(); err != nil {
		return err
	}

	_, err := h.graphicsQueue.Handle().Submit(f.inFlight, []core1_0.SubmitInfo{
		{
			WaitSemaphores:   []core1_0.Semaphore{f.imageAvailable},
			WaitDstStageMask: []core1_0.PipelineStageFlags{core1_0.PipelineStageColorAttachmentOutput},
			CommandBuffers:   []core1_0.CommandBuffer{f.commandBuffer.Handle()},
			SignalSemaphores: []core1_0.Semaphore{f.renderFinished},
		},
	})
	if err != nil {
		return err
	}

	res, err := h.swapchainExtension.QueuePresent(h.presentQueue, khr_swapchain.PresentInfo{
		WaitSemaphores: []core1_0.Semaphore{f.renderFinished},
		Swapchains:     []khr_swapchain.Swapchain{h.swapchain},
		ImageIndices:   []int{h.imageIndex},
	})
	if res == khr_swapchain.VKErrorOutOfDate || res == khr_swapchain.VKSuboptimal {
		h.logger.Debug("swapchain needs rebuilding after present", slog.Any("Result", res))
		h.needsRecreate = true
	} else if err != nil {
		return err
	}

	h.currentFrame = (h.currentFrame + 1) % len(h.frames)
	return nil
}

func (h *Host) RequestUpdate() {
	h.updateRequested = true
}

func (h *Host) Device() gpu.Device {
	return h.device
}

func (h *Host) CommandPool() gpu.CommandPool {
	return h.commandPool
}

func (h *Host) Queue() gpu.Queue {
	return h.graphicsQueue
}

func (h *Host) ColorFormat() core1_0.Format {
	return h.surfaceFormat.Format
}

func (h *Host) DepthStencilFormat() core1_0.Format {
	return h.depthFormat
}

func (h *Host) SampleCount() core1_0.SampleCountFlags {
	return h.samples
}

func (h *Host) ConcurrentFrameCount() int {
	return len(h.frames)
}

func (h *Host) CurrentFrame() int {
	return h.currentFrame
}

func (h *Host) CurrentSwapchainImageIndex() int {
	return h.imageIndex
}

func (h *Host) CurrentCommandBuffer() gpu.CommandBuffer {
	return h.frames[h.currentFrame].commandBuffer
}
