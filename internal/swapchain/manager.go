// Package swapchain owns the resources that depend on the presentation
// surface's size and image count: one framebuffer per swapchain image.
package swapchain

import (
	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/core/core1_0"
	"golang.org/x/exp/slog"

	"github.com/vkngwrapper/vulkan-renderer/internal/gpu"
)

// DefaultMinExtent is the smallest width and height, in pixels, for which
// swapchain resources are created.
const DefaultMinExtent = 5

// Target is the part of the surface provider that describes the current
// swapchain. Depth and MSAA views are nil when the surface has none.
type Target interface {
	SwapchainImageSize() core1_0.Extent2D
	SwapchainImageCount() int
	SwapchainImageView(index int) gpu.ImageView
	DepthStencilImageView() gpu.ImageView
	MSAAColorImageView(index int) gpu.ImageView
}

type Outcome int

const (
	// Ready means one framebuffer exists per swapchain image.
	Ready Outcome = iota
	// Skipped means the surface was below the minimum extent and nothing was
	// created. It is not an error.
	Skipped
)

func (o Outcome) String() string {
	switch o {
	case Ready:
		return "Ready"
	case Skipped:
		return "Skipped"
	}
	return "Unknown"
}

// TooSmall reports whether extent is below min in either dimension.
func TooSmall(extent core1_0.Extent2D, min int) bool {
	return extent.Width < min || extent.Height < min
}

type Manager struct {
	device    gpu.Device
	minExtent int
	logger    *slog.Logger

	framebuffers []gpu.Framebuffer
	extent       core1_0.Extent2D
}

func NewManager(device gpu.Device, minExtent int, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{device: device, minExtent: minExtent, logger: logger}
}

func (m *Manager) MinExtent() int {
	return m.minExtent
}

// Ready reports whether framebuffers currently exist.
func (m *Manager) Ready() bool {
	return m.framebuffers != nil
}

func (m *Manager) Extent() core1_0.Extent2D {
	return m.extent
}

func (m *Manager) Len() int {
	return len(m.framebuffers)
}

func (m *Manager) Framebuffer(imageIndex int) gpu.Framebuffer {
	return m.framebuffers[imageIndex]
}

// Attachments lists the views for one framebuffer in render pass order:
// the colour target (the MSAA image when present, otherwise the swapchain
// image), then depth, then the swapchain image as resolve target.
func Attachments(target Target, imageIndex int) []gpu.ImageView {
	swapView := target.SwapchainImageView(imageIndex)
	depth := target.DepthStencilImageView()
	msaa := target.MSAAColorImageView(imageIndex)

	var views []gpu.ImageView
	if msaa != nil {
		views = append(views, msaa)
	} else {
		views = append(views, swapView)
	}
	if depth != nil {
		views = append(views, depth)
	}
	if msaa != nil {
		views = append(views, swapView)
	}
	return views
}

// Create builds one framebuffer per swapchain image. Existing framebuffers
// are released first, so a new size or image count replaces the whole set.
func (m *Manager) Create(renderPass gpu.RenderPass, target Target) (outcome Outcome, err error) {
	m.Release()

	extent := target.SwapchainImageSize()
	if TooSmall(extent, m.minExtent) {
		m.logger.Debug("skipped swapchain resources",
			slog.Int("Width", extent.Width),
			slog.Int("Height", extent.Height),
		)
		return Skipped, nil
	}

	count := target.SwapchainImageCount()
	if count <= 0 {
		return Skipped, errors.AssertionFailedf("swapchain reports %d images", count)
	}

	var scope gpu.Scope
	defer scope.ReleaseOnError(&err)

	framebuffers := make([]gpu.Framebuffer, 0, count)
	for i := 0; i < count; i++ {
		fb, err := m.device.CreateFramebuffer(gpu.FramebufferInfo{
			RenderPass:  renderPass,
			Attachments: Attachments(target, i),
			Extent:      extent,
		})
		if err != nil {
			return Skipped, gpu.CreationFailed(err, "create framebuffer %d of %d", i, count)
		}
		scope.Track(fb)
		framebuffers = append(framebuffers, fb)
	}
	scope.Keep()

	m.framebuffers = framebuffers
	m.extent = extent
	m.logger.Info("created swapchain resources",
		slog.Int("Width", extent.Width),
		slog.Int("Height", extent.Height),
		slog.Int("Images", count),
	)
	return Ready, nil
}

// Release destroys exactly the framebuffers Create built. Calling it again
// without an intervening Create is a no-op.
func (m *Manager) Release() {
	for _, fb := range m.framebuffers {
		fb.Destroy()
	}
	m.framebuffers = nil
	m.extent = core1_0.Extent2D{}
}
