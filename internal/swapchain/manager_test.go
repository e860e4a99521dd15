package swapchain

import (
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/vkngwrapper/core/core1_0"

	"github.com/vkngwrapper/vulkan-renderer/internal/gpu"
	"github.com/vkngwrapper/vulkan-renderer/internal/gpu/gputest"
)

type view struct {
	gputest.Handle
	name string
}

type fakeTarget struct {
	extent core1_0.Extent2D
	images []gpu.ImageView
	depth  gpu.ImageView
	msaa   []gpu.ImageView
}

func newTarget(width, height, count int, depth, msaa bool) *fakeTarget {
	t := &fakeTarget{extent: core1_0.Extent2D{Width: width, Height: height}}
	for i := 0; i < count; i++ {
		t.images = append(t.images, &view{name: "swap"})
		if msaa {
			t.msaa = append(t.msaa, &view{name: "msaa"})
		}
	}
	if depth {
		t.depth = &view{name: "depth"}
	}
	return t
}

func (t *fakeTarget) SwapchainImageSize() core1_0.Extent2D { return t.extent }
func (t *fakeTarget) SwapchainImageCount() int { return len(t.images) }
func (t *fakeTarget) SwapchainImageView(i int) gpu.ImageView { return t.images[i] }
func (t *fakeTarget) DepthStencilImageView() gpu.ImageView { return t.depth }
func (t *fakeTarget) MSAAColorImageView(i int) gpu.ImageView {
	if t.msaa == nil {
		return nil
	}
	return t.msaa[i]
}

func names(views []gpu.ImageView) []string {
	out := make([]string, len(views))
	for i, v := range views {
		out[i] = v.(*view).name
	}
	return out
}

func TestAttachmentOrder(t *testing.T) {
	require.Equal(t, []string{"swap"}, names(Attachments(newTarget(8, 8, 1, false, false), 0)))
	require.Equal(t, []string{"swap", "depth"}, names(Attachments(newTarget(8, 8, 1, true, false), 0)))
	require.Equal(t, []string{"msaa", "depth", "swap"}, names(Attachments(newTarget(8, 8, 1, true, true), 0)))
	require.Equal(t, []string{"msaa", "swap"}, names(Attachments(newTarget(8, 8, 1, false, true), 0)))
}

func TestCreateOneFramebufferPerImage(t *testing.T) {
	dev := gputest.NewDevice()
	mgr := NewManager(dev, DefaultMinExtent, nil)

	outcome, err := mgr.Create(nil, newTarget(640, 480, 3, true, false))
	require.NoError(t, err)
	require.Equal(t, Ready, outcome)
	require.True(t, mgr.Ready())
	require.Equal(t, 3, mgr.Len())
	require.Equal(t, 3, dev.Live("Framebuffer"))
	require.Equal(t, core1_0.Extent2D{Width: 640, Height: 480}, dev.Framebuffers[2].Extent)
}

func TestCreateSkipsTinySurface(t *testing.T) {
	for _, extent := range [][2]int{{0, 0}, {4, 100}, {100, 4}} {
		dev := gputest.NewDevice()
		mgr := NewManager(dev, DefaultMinExtent, nil)

		outcome, err := mgr.Create(nil, newTarget(extent[0], extent[1], 2, true, false))
		require.NoError(t, err)
		require.Equal(t, Skipped, outcome)
		require.False(t, mgr.Ready())
		require.Zero(t, dev.Calls("CreateFramebuffer"))
	}
}

func TestReleaseTwiceDoesNotDoubleFree(t *testing.T) {
	dev := gputest.NewDevice()
	mgr := NewManager(dev, DefaultMinExtent, nil)

	_, err := mgr.Create(nil, newTarget(100, 100, 2, false, false))
	require.NoError(t, err)

	mgr.Release()
	mgr.Release()
	require.False(t, mgr.Ready())
	require.Empty(t, dev.LiveTotal())
	require.Empty(t, dev.Violations())
}

func TestRecreateReplacesWholeSet(t *testing.T) {
	dev := gputest.NewDevice()
	mgr := NewManager(dev, DefaultMinExtent, nil)

	_, err := mgr.Create(nil, newTarget(100, 100, 2, true, false))
	require.NoError(t, err)
	first := mgr.Framebuffer(0)

	_, err = mgr.Create(nil, newTarget(200, 150, 3, true, false))
	require.NoError(t, err)
	require.Equal(t, 3, mgr.Len())
	require.Equal(t, 3, dev.Live("Framebuffer"))
	require.True(t, first.(*gputest.Framebuffer).Destroyed())
	require.Equal(t, core1_0.Extent2D{Width: 200, Height: 150}, mgr.Extent())

	outcome, err := mgr.Create(nil, newTarget(0, 0, 3, true, false))
	require.NoError(t, err)
	require.Equal(t, Skipped, outcome)
	require.Zero(t, dev.Live("Framebuffer"))
	require.Empty(t, dev.Violations())
}

func TestCreateFailureReleasesPartialSet(t *testing.T) {
	dev := gputest.NewDevice()
	dev.Fail("CreateFramebuffer", 2)
	mgr := NewManager(dev, DefaultMinExtent, nil)

	_, err := mgr.Create(nil, newTarget(100, 100, 3, false, false))
	require.Error(t, err)
	require.False(t, mgr.Ready())
	require.Zero(t, dev.Live("Framebuffer"))
}
