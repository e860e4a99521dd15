package renderer

import (
	"github.com/vkngwrapper/core/core1_0"

	"github.com/vkngwrapper/vulkan-renderer/internal/gpu"
	"github.com/vkngwrapper/vulkan-renderer/internal/swapchain"
)

// Surface is the presentation side the renderer draws into. It owns the
// device, the swapchain and frame pacing; the renderer only records into the
// command buffer it is handed and reports when the frame is complete.
type Surface interface {
	swapchain.Target

	Device() gpu.Device
	// CommandPool and Queue are used for blocking load-time uploads.
	CommandPool() gpu.CommandPool
	Queue() gpu.Queue

	ColorFormat() core1_0.Format
	DepthStencilFormat() core1_0.Format
	// SampleCount is the colour sample count of the surface's render
	// targets. Above Samples1 the surface provides MSAA colour views.
	SampleCount() core1_0.SampleCountFlags
	ConcurrentFrameCount() int

	CurrentFrame() int
	CurrentSwapchainImageIndex() int
	// CurrentCommandBuffer is already begun and is ended and submitted by
	// FrameReady.
	CurrentCommandBuffer() gpu.CommandBuffer

	// FrameReady marks the current frame complete. The surface submits and
	// presents whatever was recorded.
	FrameReady() error
	// RequestUpdate asks for another frame.
	RequestUpdate()
}
