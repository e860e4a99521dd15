package host

import (
	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/core/core1_0"
	"github.com/vkngwrapper/extensions/khr_surface"
	"github.com/vkngwrapper/extensions/khr_swapchain"
	"golang.org/x/exp/slog"

	"github.com/vkngwrapper/vulkan-renderer/internal/gpu"
	"github.com/vkngwrapper/vulkan-renderer/internal/memory"
	"github.com/vkngwrapper/vulkan-renderer/internal/vk"
)

// swapchainResources is everything rebuilt when the window is resized. A
// nil swapchain means the drawable area is empty and nothing is presented.
type swapchainResources struct {
	swapchain       khr_swapchain.Swapchain
	swapchainExtent core1_0.Extent2D
	swapchainImages []gpu.Image
	swapchainViews  []gpu.ImageView
	depthImage      *memory.Image
	msaaImages      []*memory.Image
}

func (h *Host) querySwapchainSupport(device core1_0.PhysicalDevice) (swapchainSupport, error) {
	var details swapchainSupport
	var err error

	details.capabilities, _, err = h.surface.PhysicalDeviceSurfaceCapabilities(device)
	if err != nil {
		return details, err
	}

	details.formats, _, err = h.surface.PhysicalDeviceSurfaceFormats(device)
	if err != nil {
		return details, err
	}

	details.presentModes, _, err = h.surface.PhysicalDeviceSurfacePresentModes(device)
	return details, err
}

func chooseSwapSurfaceFormat(availableFormats []khr_surface.Format) khr_surface.Format {
	for _, format := range availableFormats {
		if format.Format == core1_0.FormatB8G8R8A8SRGB && format.ColorSpace == khr_surface.ColorSpaceSRGBNonlinear {
			return format
		}
	}

	return availableFormats[0]
}

func chooseSwapPresentMode(availablePresentModes []khr_surface.PresentMode) khr_surface.PresentMode {
	for _, presentMode := range availablePresentModes {
		if presentMode == khr_surface.PresentModeMailbox {
			return presentMode
		}
	}

	return khr_surface.PresentModeFIFO
}

func chooseSwapExtent(capabilities *khr_surface.Capabilities, width, height int) core1_0.Extent2D {
	if capabilities.CurrentExtent.Width != -1 {
		return capabilities.CurrentExtent
	}

	return core1_0.Extent2D{
		Width:  clamp(width, capabilities.MinImageExtent.Width, capabilities.MaxImageExtent.Width),
		Height: clamp(height, capabilities.MinImageExtent.Height, capabilities.MaxImageExtent.Height),
	}
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func (h *Host) createSwapchain() (err error) {
	defer func() {
		if err != nil {
			h.releaseSwapchain()
		}
	}()

	width, height := h.window.VulkanGetDrawableSize()
	if width <= 0 || height <= 0 {
		h.logger.Debug("drawable area is empty, not creating a swapchain")
		return nil
	}

	support, err := h.querySwapchainSupport(h.physicalDevice)
	if err != nil {
		return err
	}

	extent := chooseSwapExtent(support.capabilities, int(width), int(height))
	if extent.Width <= 0 || extent.Height <= 0 {
		return nil
	}
	presentMode := chooseSwapPresentMode(support.presentModes)

	imageCount := support.capabilities.MinImageCount + 1
	if support.capabilities.MaxImageCount > 0 && support.capabilities.MaxImageCount < imageCount {
		imageCount = support.capabilities.MaxImageCount
	}

	sharingMode := core1_0.SharingModeExclusive
	var queueFamilyIndices []int

	if *h.families.graphics != *h.families.present {
		sharingMode = core1_0.SharingModeConcurrent
		queueFamilyIndices = append(queueFamilyIndices, *h.families.graphics, *h.families.present)
	}

	swapchain, _, err := h.swapchainExtension.CreateSwapchain(h.device.Handle(), nil, khr_swapchain.SwapchainCreateInfo{
		Surface: h.surface,

		MinImageCount:    imageCount,
		ImageFormat:      h.surfaceFormat.Format,
		ImageColorSpace:  h.surfaceFormat.ColorSpace,
		ImageExtent:      extent,
		ImageArrayLayers: 1,
		ImageUsage:       core1_0.ImageUsageColorAttachment,

		ImageSharingMode:   sharingMode,
		QueueFamilyIndices: queueFamilyIndices,

		PreTransform:   support.capabilities.CurrentTransform,
		CompositeAlpha: khr_surface.CompositeAlphaOpaque,
		PresentMode:    presentMode,
		Clipped:        true,
	})
	if err != nil {
		return gpu.CreationFailed(err, "create swapchain")
	}
	h.swapchain = swapchain
	h.swapchainExtent = extent

	images, _, err := swapchain.SwapchainImages()
	if err != nil {
		return err
	}

	for _, image := range images {
		swapchainImage := vk.SwapchainImage(image)
		h.swapchainImages = append(h.swapchainImages, swapchainImage)

		view, err := h.device.CreateImageView(swapchainImage, h.surfaceFormat.Format, core1_0.ImageAspectColor)
		if err != nil {
			return gpu.CreationFailed(err, "create swapchain image view")
		}
		h.swapchainViews = append(h.swapchainViews, view)
	}

	if h.opts.Depth {
		h.depthImage, err = h.allocator.CreateViewedImage(gpu.ImageInfo{
			Extent:  extent,
			Format:  h.depthFormat,
			Usage:   core1_0.ImageUsageDepthStencilAttachment,
			Samples: h.samples,
			Tiling:  core1_0.ImageTilingOptimal,
		}, core1_0.ImageAspectDepth)
		if err != nil {
			return errors.Wrap(err, "depth image")
		}
	}

	if h.samples != core1_0.Samples1 {
		for range images {
			msaa, err := h.allocator.CreateViewedImage(gpu.ImageInfo{
				Extent:  extent,
				Format:  h.surfaceFormat.Format,
				Usage:   core1_0.ImageUsageColorAttachment | core1_0.ImageUsageTransientAttachment,
				Samples: h.samples,
				Tiling:  core1_0.ImageTilingOptimal,
			}, core1_0.ImageAspectColor)
			if err != nil {
				return errors.Wrap(err, "msaa color image")
			}
			h.msaaImages = append(h.msaaImages, msaa)
		}
	}

	h.imagesInFlight = make([]core1_0.Fence, len(images))
	h.logger.Info("created swapchain",
		slog.Int("Width", extent.Width),
		slog.Int("Height", extent.Height),
		slog.Int("Images", len(images)),
		slog.Any("PresentMode", presentMode),
	)
	return nil
}

func (h *Host) releaseSwapchain() {
	for _, msaa := range h.msaaImages {
		msaa.Destroy()
	}
	h.depthImage.Destroy()
	for _, view := range h.swapchainViews {
		view.Destroy()
	}
	if h.swapchain != nil {
		h.swapchain.Destroy(nil)
	}
	h.swapchainResources = swapchainResources{}
	h.imagesInFlight = nil
}

func (h *Host) SwapchainImageSize() core1_0.Extent2D {
	return h.swapchainExtent
}

func (h *Host) SwapchainImageCount() int {
	return len(h.swapchainViews)
}

func (h *Host) SwapchainImageView(index int) gpu.ImageView {
	return h.swapchainViews[index]
}

func (h *Host) DepthStencilImageView() gpu.ImageView {
	if h.depthImage == nil {
		return nil
	}
	return h.depthImage.View
}

func (h *Host) MSAAColorImageView(index int) gpu.ImageView {
	if index >= len(h.msaaImages) {
		return nil
	}
	return h.msaaImages[index].View
}
