package host

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vkngwrapper/core/core1_0"
	"github.com/vkngwrapper/extensions/khr_surface"
	"github.com/vkngwrapper/extensions/khr_swapchain"
	"golang.org/x/exp/slog"

	"github.com/vkngwrapper/vulkan-renderer/internal/gpu/gputest"
	"github.com/vkngwrapper/vulkan-renderer/internal/vk"
)

type stubSwapchain struct {
	khr_swapchain.Swapchain
}

func TestChooseSwapSurfaceFormatPrefersSRGB(t *testing.T) {
	other := khr_surface.Format{Format: core1_0.FormatR8G8B8A8SRGB, ColorSpace: khr_surface.ColorSpaceSRGBNonlinear}
	srgb := khr_surface.Format{Format: core1_0.FormatB8G8R8A8SRGB, ColorSpace: khr_surface.ColorSpaceSRGBNonlinear}

	assert.Equal(t, srgb, chooseSwapSurfaceFormat([]khr_surface.Format{other, srgb}))
	assert.Equal(t, other, chooseSwapSurfaceFormat([]khr_surface.Format{other}))
}

func TestChooseSwapPresentMode(t *testing.T) {
	assert.Equal(t, khr_surface.PresentModeMailbox, chooseSwapPresentMode([]khr_surface.PresentMode{khr_surface.PresentModeFIFO, khr_surface.PresentModeMailbox}))
	assert.Equal(t, khr_surface.PresentModeFIFO, chooseSwapPresentMode(nil))
}

func TestChooseSwapExtent(t *testing.T) {
	fixed := &khr_surface.Capabilities{
		CurrentExtent: core1_0.Extent2D{Width: 640, Height: 480},
	}
	assert.Equal(t, core1_0.Extent2D{Width: 640, Height: 480}, chooseSwapExtent(fixed, 1024, 768))

	free := &khr_surface.Capabilities{
		CurrentExtent:  core1_0.Extent2D{Width: -1, Height: -1},
		MinImageExtent: core1_0.Extent2D{Width: 16, Height: 16},
		MaxImageExtent: core1_0.Extent2D{Width: 1000, Height: 1000},
	}
	assert.Equal(t, core1_0.Extent2D{Width: 800, Height: 600}, chooseSwapExtent(free, 800, 600))
	assert.Equal(t, core1_0.Extent2D{Width: 1000, Height: 16}, chooseSwapExtent(free, 4096, 2))
}

func TestQueueFamiliesComplete(t *testing.T) {
	zero, one := 0, 1
	assert.False(t, queueFamilies{}.complete())
	assert.False(t, queueFamilies{graphics: &zero}.complete())
	assert.True(t, queueFamilies{graphics: &zero, present: &one}.complete())
}

func TestPresentableNeedsMinimumExtent(t *testing.T) {
	h := &Host{opts: Options{MinExtent: 5}}
	assert.False(t, h.presentable())

	h.swapchain = stubSwapchain{}
	h.swapchainExtent = core1_0.Extent2D{Width: 640, Height: 480}
	assert.True(t, h.presentable())

	h.swapchainExtent = core1_0.Extent2D{Width: 640, Height: 4}
	assert.False(t, h.presentable())

	h.swapchainExtent = core1_0.Extent2D{Width: 1, Height: 480}
	assert.False(t, h.presentable())

	h.swapchainExtent = core1_0.Extent2D{Width: 5, Height: 5}
	assert.True(t, h.presentable())
}

func TestPresentTransitionLeavesImagePresentable(t *testing.T) {
	image := vk.SwapchainImage(nil)
	barrier := presentTransition(image)

	assert.Same(t, image, barrier.Image)
	assert.Equal(t, core1_0.ImageLayoutUndefined, barrier.OldLayout)
	assert.Equal(t, khr_swapchain.ImageLayoutPresentSrc, barrier.NewLayout)
	assert.Equal(t, core1_0.PipelineStageColorAttachmentOutput, barrier.SrcStage)
	assert.Equal(t, core1_0.ImageAspectColor, barrier.Aspect)
}

func TestWaitIdleLogsFailure(t *testing.T) {
	buf := &bytes.Buffer{}
	logger := slog.New(slog.NewTextHandler(buf, nil))
	dev := gputest.NewDevice()

	waitIdle(dev, logger)
	require.Equal(t, 1, dev.WaitIdleCalls)
	assert.Empty(t, buf.String())

	dev.Fail("WaitIdle", 0)
	waitIdle(dev, logger)
	assert.Contains(t, buf.String(), "wait for device idle before teardown")
	assert.Contains(t, buf.String(), gputest.ErrInjected.Error())
}
