package renderer

import (
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"
	"testing/fstest"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vkngwrapper/core/core1_0"

	"github.com/vkngwrapper/vulkan-renderer/internal/frame"
	"github.com/vkngwrapper/vulkan-renderer/internal/gpu"
	"github.com/vkngwrapper/vulkan-renderer/internal/gpu/gputest"
	"github.com/vkngwrapper/vulkan-renderer/internal/model"
	"github.com/vkngwrapper/vulkan-renderer/internal/pipeline"
	"github.com/vkngwrapper/vulkan-renderer/internal/transfer"
)

type view struct {
	gputest.Handle
}

type fakeSurface struct {
	dev   *gputest.Device
	pool  *gputest.CommandPool
	queue *gputest.Queue

	extent  core1_0.Extent2D
	images  []gpu.ImageView
	depth   gpu.ImageView
	msaa    []gpu.ImageView
	samples core1_0.SampleCountFlags
	frames  int

	frame int
	cb    gpu.CommandBuffer

	// recorded keeps the command buffer of every completed frame, nil
	// entries being frames where nothing was recorded.
	recorded []*gputest.CommandBuffer
	updates  int
}

func newSurface(width, height int, depth bool) *fakeSurface {
	dev := gputest.NewDevice()
	s := &fakeSurface{
		dev:     dev,
		pool:    gputest.NewCommandPool(dev),
		queue:   gputest.NewQueue(dev),
		samples: core1_0.Samples1,
		frames:  2,
	}
	for i := 0; i < 3; i++ {
		s.images = append(s.images, &view{})
	}
	if depth {
		s.depth = &view{}
	}
	s.resize(width, height)
	return s
}

func (s *fakeSurface) resize(width, height int) {
	s.extent = core1_0.Extent2D{Width: width, Height: height}
}

func (s *fakeSurface) SwapchainImageSize() core1_0.Extent2D   { return s.extent }
func (s *fakeSurface) SwapchainImageCount() int               { return len(s.images) }
func (s *fakeSurface) SwapchainImageView(i int) gpu.ImageView { return s.images[i] }
func (s *fakeSurface) DepthStencilImageView() gpu.ImageView   { return s.depth }
func (s *fakeSurface) MSAAColorImageView(i int) gpu.ImageView {
	if s.msaa == nil {
		return nil
	}
	return s.msaa[i]
}

func (s *fakeSurface) Device() gpu.Device                    { return s.dev }
func (s *fakeSurface) CommandPool() gpu.CommandPool          { return s.pool }
func (s *fakeSurface) Queue() gpu.Queue                      { return s.queue }
func (s *fakeSurface) ColorFormat() core1_0.Format           { return core1_0.FormatB8G8R8A8SRGB }
func (s *fakeSurface) DepthStencilFormat() core1_0.Format    { return core1_0.FormatD32SignedFloat }
func (s *fakeSurface) SampleCount() core1_0.SampleCountFlags { return s.samples }
func (s *fakeSurface) ConcurrentFrameCount() int             { return s.frames }
func (s *fakeSurface) CurrentFrame() int                     { return s.frame }
func (s *fakeSurface) CurrentSwapchainImageIndex() int       { return s.frame % len(s.images) }
func (s *fakeSurface) RequestUpdate()                        { s.updates++ }

func (s *fakeSurface) CurrentCommandBuffer() gpu.CommandBuffer {
	if s.cb == nil {
		cb, err := s.pool.AllocateCommandBuffer()
		if err != nil {
			panic(err)
		}
		if err := cb.Begin(false); err != nil {
			panic(err)
		}
		s.cb = cb
	}
	return s.cb
}

func (s *fakeSurface) FrameReady() error {
	defer func() { s.frame++ }()
	if s.cb == nil {
		s.recorded = append(s.recorded, nil)
		return nil
	}
	cb := s.cb
	s.cb = nil
	defer s.pool.FreeCommandBuffers(cb)

	if err := cb.End(); err != nil {
		return err
	}
	s.recorded = append(s.recorded, cb.(*gputest.CommandBuffer))
	return s.queue.Submit(cb)
}

var spirv = []byte{0x03, 0x02, 0x23, 0x07, 0x00, 0x00, 0x01, 0x00}

type importer map[string]*model.Scene

func (i importer) Import(path string) (*model.Scene, error) {
	return i[path], nil
}

func triangle() *model.Scene {
	return &model.Scene{Meshes: []model.Mesh{{
		Positions: []mgl32.Vec3{{0, 0, 0}, {1, 0, 0}, {0, 1, 0}},
		TexCoords: []mgl32.Vec2{{0, 0}, {1, 0}, {0, 1}},
		Indices:   []uint32{0, 1, 2},
	}}}
}

func writeTexture(t *testing.T) string {
	img := image.NewNRGBA(image.Rect(0, 0, 2, 2))
	img.SetNRGBA(1, 1, color.NRGBA{R: 255, A: 255})
	path := filepath.Join(t.TempDir(), "texture.png")
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()
	require.NoError(t, png.Encode(f, img))
	return path
}

// stepClock advances one second per reading.
func stepClock() func() time.Duration {
	var now time.Duration
	return func() time.Duration {
		now += time.Second
		return now
	}
}

func newRenderer(t *testing.T, s *fakeSurface, depth bool) *Renderer {
	return New(s, Options{
		Shaders: pipeline.FSLoader{FS: fstest.MapFS{
			"vert.spv": {Data: spirv},
			"frag.spv": {Data: spirv},
		}},

		VertexShader:   "vert.spv",
		FragmentShader: "frag.spv",

		Importer: importer{"a.obj": triangle(), "b.obj": triangle()},
		Models: []ModelSource{
			{Name: "A", Path: "a.obj"},
			{Name: "B", Path: "b.obj"},
		},
		TexturePath: writeTexture(t),

		Depth:            depth,
		DegreesPerSecond: 90,
		Clock:            stepClock(),
		ClearColor:       [4]float32{0, 0, 0, 1},
	})
}

func TestLifecycle(t *testing.T) {
	s := newSurface(640, 480, true)
	r := newRenderer(t, s, true)
	require.Equal(t, Uninitialized, r.State())

	require.NoError(t, r.InitResources())
	require.Equal(t, ResourcesReady, r.State())
	require.Equal(t, 2, r.Models().Len())

	require.NoError(t, r.InitSwapchainResources())
	require.Equal(t, SwapchainReady, r.State())
	require.Equal(t, 3, s.dev.Live("Framebuffer"))

	require.NoError(t, r.RenderFrame())
	require.Len(t, s.recorded, 1)
	require.Equal(t, []string{
		"BeginRenderPass", "BindPipeline", "SetViewport", "SetScissor", "BindDescriptorSet",
		"BindVertexBuffer", "BindIndexBuffer", "DrawIndexed",
		"BindVertexBuffer", "BindIndexBuffer", "DrawIndexed",
		"EndRenderPass",
	}, s.recorded[0].Names())
	assert.Equal(t, 1, s.updates)

	begin := s.recorded[0].Commands[0].Begin
	assert.Len(t, begin.ClearValues, 2)
	assert.Equal(t, core1_0.Extent2D{Width: 640, Height: 480}, begin.Area.Extent)
	assert.Equal(t, float32(640), s.recorded[0].Commands[2].Viewport.Width)

	r.ReleaseSwapchainResources()
	require.Equal(t, ResourcesReady, r.State())
	r.ReleaseResources()
	require.Equal(t, Uninitialized, r.State())

	require.Empty(t, s.dev.LiveTotal())
	require.Empty(t, s.dev.Violations())
}

func TestZeroSizedSurfaceRecordsNothing(t *testing.T) {
	s := newSurface(640, 480, true)
	r := newRenderer(t, s, true)
	require.NoError(t, r.InitResources())
	require.NoError(t, r.InitSwapchainResources())

	r.ReleaseSwapchainResources()
	s.resize(0, 0)
	require.NoError(t, r.InitSwapchainResources())
	require.Equal(t, ResourcesReady, r.State())
	require.Zero(t, s.dev.Live("Framebuffer"))

	require.NoError(t, r.RenderFrame())
	require.Len(t, s.recorded, 1)
	assert.Nil(t, s.recorded[0])
	assert.Equal(t, 1, s.updates)

	r.ReleaseResources()
	require.Empty(t, s.dev.LiveTotal())
}

func TestShrunkSurfaceSkipsWithoutRelease(t *testing.T) {
	s := newSurface(640, 480, false)
	r := newRenderer(t, s, false)
	require.NoError(t, r.InitResources())
	require.NoError(t, r.InitSwapchainResources())

	s.resize(3, 3)
	require.NoError(t, r.RenderFrame())
	assert.Nil(t, s.recorded[0])

	s.resize(800, 600)
	require.NoError(t, r.RenderFrame())
	assert.Nil(t, s.recorded[1])

	require.NoError(t, r.InitSwapchainResources())
	require.NoError(t, r.RenderFrame())
	require.NotNil(t, s.recorded[2])
	assert.Equal(t, core1_0.Extent2D{Width: 800, Height: 600}, s.recorded[2].Commands[0].Begin.Area.Extent)

	r.ReleaseResources()
	require.Empty(t, s.dev.LiveTotal())
}

func TestUniformSlotWrittenBeforeSubmit(t *testing.T) {
	s := newSurface(640, 480, true)
	r := newRenderer(t, s, true)
	require.NoError(t, r.InitResources())
	require.NoError(t, r.InitSwapchainResources())

	camera := frame.DefaultCamera()
	checked := 0
	s.queue.OnSubmit = func(buffers []*gputest.CommandBuffer) {
		for _, cb := range buffers {
			for _, cmd := range cb.Commands {
				if cmd.Name != "BindDescriptorSet" {
					continue
				}
				slot := r.Ring().Slot(s.frame)
				require.Same(t, r.Registry().Set(s.frame), cmd.Set)

				want, err := transfer.Encode(&frame.UniformBlock{
					Model: r.Animation().Model(),
					View:  camera.View(),
					Proj:  camera.Projection(640, 480),
				})
				require.NoError(t, err)
				got := r.Ring().Binding(slot).Buffer.(*gputest.Buffer).Contents()
				require.Equal(t, want, got[:frame.UniformBlockSize])
				checked++
			}
		}
	}

	for i := 0; i < 4; i++ {
		require.NoError(t, r.RenderFrame())
	}
	require.Equal(t, 4, checked)
	// The first frame starts the clock; each later one adds a quarter turn.
	assert.InDelta(t, 270, r.Animation().Angle(), 1e-3)

	r.ReleaseResources()
	require.Empty(t, s.dev.LiveTotal())
}

func TestReleaseIsIdempotent(t *testing.T) {
	s := newSurface(640, 480, true)
	r := newRenderer(t, s, true)
	r.ReleaseSwapchainResources()
	r.ReleaseResources()

	require.NoError(t, r.InitResources())
	require.NoError(t, r.InitSwapchainResources())
	r.ReleaseSwapchainResources()
	r.ReleaseSwapchainResources()
	r.ReleaseResources()
	r.ReleaseResources()

	require.Empty(t, s.dev.LiveTotal())
	require.Empty(t, s.dev.Violations())
}

func TestReleaseResourcesReleasesSwapchainFirst(t *testing.T) {
	s := newSurface(640, 480, true)
	r := newRenderer(t, s, true)
	require.NoError(t, r.InitResources())
	require.NoError(t, r.InitSwapchainResources())

	r.ReleaseResources()
	require.Empty(t, s.dev.LiveTotal())
	require.Empty(t, s.dev.Violations())
}

func TestStateMachineMisuse(t *testing.T) {
	s := newSurface(640, 480, true)
	r := newRenderer(t, s, true)

	require.Error(t, r.RenderFrame())
	require.Error(t, r.InitSwapchainResources())

	require.NoError(t, r.InitResources())
	require.Error(t, r.InitResources())
	r.ReleaseResources()
}

func TestMissingDepthViewIsRejected(t *testing.T) {
	s := newSurface(640, 480, false)
	r := newRenderer(t, s, true)
	require.NoError(t, r.InitResources())

	err := r.InitSwapchainResources()
	require.Error(t, err)
	require.Equal(t, ResourcesReady, r.State())
	require.Zero(t, s.dev.Live("Framebuffer"))
	r.ReleaseResources()
}

func TestMultisampledFramebuffers(t *testing.T) {
	s := newSurface(640, 480, true)
	s.samples = core1_0.Samples4
	for range s.images {
		s.msaa = append(s.msaa, &view{})
	}
	r := newRenderer(t, s, true)
	require.NoError(t, r.InitResources())
	require.NoError(t, r.InitSwapchainResources())

	require.Len(t, s.dev.Framebuffers[0].Attachments, 3)
	assert.Same(t, s.msaa[0], s.dev.Framebuffers[0].Attachments[0])
	assert.Same(t, s.images[0], s.dev.Framebuffers[0].Attachments[2])

	require.NoError(t, r.RenderFrame())
	assert.Len(t, s.recorded[0].Commands[0].Begin.ClearValues, 3)
	r.ReleaseResources()
}

func TestInitResourcesFailureLeavesNothing(t *testing.T) {
	for _, method := range []string{"CreateDescriptorPool", "CreateGraphicsPipeline", "AllocateMemory", "CreateSampler"} {
		s := newSurface(640, 480, true)
		r := newRenderer(t, s, true)
		s.dev.Fail(method, 0)

		err := r.InitResources()
		require.Error(t, err, method)
		require.True(t, errors.Is(err, gpu.ErrResourceCreation), method)
		require.Equal(t, Uninitialized, r.State())
		require.Empty(t, s.dev.LiveTotal(), method)
	}
}

func TestInitResourcesMissingModel(t *testing.T) {
	s := newSurface(640, 480, true)
	r := newRenderer(t, s, true)
	r.opts.Models = append(r.opts.Models, ModelSource{Name: "C", Path: "missing.obj"})

	err := r.InitResources()
	require.True(t, errors.Is(err, gpu.ErrModelImport))
	require.Empty(t, s.dev.LiveTotal())
}
