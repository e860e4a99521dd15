// Package renderer sequences pipeline state, descriptors, uniform buffers,
// textures, models and swapchain framebuffers through setup, resize,
// per-frame rendering and teardown.
package renderer

import (
	"time"

	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/core/core1_0"
	"golang.org/x/exp/slog"

	"github.com/vkngwrapper/vulkan-renderer/internal/descriptor"
	"github.com/vkngwrapper/vulkan-renderer/internal/frame"
	"github.com/vkngwrapper/vulkan-renderer/internal/gpu"
	"github.com/vkngwrapper/vulkan-renderer/internal/memory"
	"github.com/vkngwrapper/vulkan-renderer/internal/model"
	"github.com/vkngwrapper/vulkan-renderer/internal/pipeline"
	"github.com/vkngwrapper/vulkan-renderer/internal/swapchain"
	"github.com/vkngwrapper/vulkan-renderer/internal/texture"
	"github.com/vkngwrapper/vulkan-renderer/internal/transfer"
)

type State int

const (
	Uninitialized State = iota
	ResourcesReady
	SwapchainReady
)

func (s State) String() string {
	switch s {
	case Uninitialized:
		return "Uninitialized"
	case ResourcesReady:
		return "ResourcesReady"
	case SwapchainReady:
		return "SwapchainReady"
	}
	return "Unknown"
}

type ModelSource struct {
	Name string
	Path string
}

type Options struct {
	Shaders        pipeline.ShaderLoader
	VertexShader   string
	FragmentShader string

	Importer    model.Importer
	Models      []ModelSource
	TexturePath string

	// Depth adds a depth attachment. The surface must then provide a depth
	// view.
	Depth bool
	// Camera defaults to frame.DefaultCamera when left zero.
	Camera           frame.Camera
	DegreesPerSecond float32
	// Clock overrides the animation clock.
	Clock      func() time.Duration
	ClearColor [4]float32
	// MinExtent defaults to swapchain.DefaultMinExtent when zero.
	MinExtent int

	Logger *slog.Logger
}

// Renderer is the frame orchestrator. All methods must be called from the
// thread that drives the surface.
type Renderer struct {
	surface Surface
	opts    Options
	logger  *slog.Logger
	state   State

	camera    frame.Camera
	animation *frame.Animation

	allocator *memory.Allocator
	transfer  *transfer.Pipeline
	registry  *descriptor.Registry
	pipeline  *pipeline.State
	ring      *frame.Ring
	texture   *texture.Texture
	models    *model.Batch
	swapchain *swapchain.Manager
}

func New(surface Surface, opts Options) *Renderer {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	camera := opts.Camera
	if camera == (frame.Camera{}) {
		camera = frame.DefaultCamera()
	}
	minExtent := opts.MinExtent
	if minExtent == 0 {
		minExtent = swapchain.DefaultMinExtent
	}

	animation := frame.NewAnimation(opts.DegreesPerSecond)
	if opts.Clock != nil {
		animation.Clock = opts.Clock
	}

	return &Renderer{
		surface:   surface,
		opts:      opts,
		logger:    logger,
		camera:    camera,
		animation: animation,
		swapchain: swapchain.NewManager(surface.Device(), minExtent, logger),
	}
}

func (r *Renderer) State() State {
	return r.state
}

func (r *Renderer) Models() *model.Batch {
	return r.models
}

// Animation is the rotation state advanced once per rendered frame.
func (r *Renderer) Animation() *frame.Animation {
	return r.animation
}

// Ring is the uniform buffer ring, nil before InitResources.
func (r *Renderer) Ring() *frame.Ring {
	return r.ring
}

func (r *Renderer) Registry() *descriptor.Registry {
	return r.registry
}

func (r *Renderer) Pipeline() *pipeline.State {
	return r.pipeline
}

// InitResources builds everything that outlives the swapchain: descriptor
// registry, pipeline state, uniform ring, texture and models. Uploads block
// until complete. On failure nothing built here is left alive.
func (r *Renderer) InitResources() (err error) {
	if r.state != Uninitialized {
		return errors.AssertionFailedf("init resources in state %s", r.state)
	}

	device := r.surface.Device()
	frames := r.surface.ConcurrentFrameCount()

	var scope gpu.Scope
	defer scope.ReleaseOnError(&err)

	allocator := memory.NewAllocator(device, r.logger)
	pipe := transfer.New(allocator, r.surface.CommandPool(), r.surface.Queue(), r.logger)

	registry, err := descriptor.Build(device, descriptor.DefaultBindings(), frames)
	if err != nil {
		return errors.Wrap(err, "descriptor registry")
	}
	scope.Add(registry.Destroy)

	state, err := pipeline.Build(device, r.opts.Shaders, pipeline.Config{
		ColorFormat:      r.surface.ColorFormat(),
		Depth:            r.opts.Depth,
		DepthFormat:      r.surface.DepthStencilFormat(),
		Samples:          r.surface.SampleCount(),
		VertexBindings:   model.BindingDescriptions(),
		VertexAttributes: model.AttributeDescriptions(),
		SetLayouts:       []gpu.DescriptorSetLayout{registry.Layout()},
		VertexShader:     r.opts.VertexShader,
		FragmentShader:   r.opts.FragmentShader,
	}, r.logger)
	if err != nil {
		return errors.Wrap(err, "pipeline state")
	}
	scope.Add(state.Destroy)

	ring, err := frame.NewRing(allocator, frames, frame.UniformBlockSize, r.logger)
	if err != nil {
		return err
	}
	scope.Add(ring.Destroy)

	tex, err := texture.Load(pipe, r.opts.TexturePath, r.logger)
	if err != nil {
		return err
	}
	scope.Add(tex.Destroy)

	for i := 0; i < frames; i++ {
		if err := registry.Write(i, ring.Binding(i), tex.Binding()); err != nil {
			return err
		}
	}

	models := model.NewBatch(r.opts.Importer, pipe, r.logger)
	scope.Add(models.UnloadAll)
	for _, source := range r.opts.Models {
		if err := models.Load(source.Name, source.Path); err != nil {
			return err
		}
	}
	scope.Keep()

	r.allocator = allocator
	r.transfer = pipe
	r.registry = registry
	r.pipeline = state
	r.ring = ring
	r.texture = tex
	r.models = models
	r.state = ResourcesReady

	r.logger.Info("initialized resources",
		slog.Int("FramesInFlight", frames),
		slog.Int("Models", models.Len()),
	)
	return nil
}

// InitSwapchainResources (re)creates the framebuffers for the surface's
// current size and image count. A surface below the minimum extent leaves
// the renderer in ResourcesReady without error.
func (r *Renderer) InitSwapchainResources() error {
	if r.state == Uninitialized {
		return errors.AssertionFailedf("init swapchain resources before resources")
	}

	extent := r.surface.SwapchainImageSize()
	if !swapchain.TooSmall(extent, r.swapchain.MinExtent()) && r.surface.SwapchainImageCount() > 0 {
		want := r.pipeline.Config.AttachmentCount()
		if got := len(swapchain.Attachments(r.surface, 0)); got != want {
			return errors.AssertionFailedf("surface provides %d attachments, render pass expects %d", got, want)
		}
	}

	outcome, err := r.swapchain.Create(r.pipeline.RenderPass, r.surface)
	if err != nil {
		r.state = ResourcesReady
		return err
	}
	if outcome == swapchain.Skipped {
		r.state = ResourcesReady
		return nil
	}
	r.state = SwapchainReady
	return nil
}

// RenderFrame records one frame into the surface's current command buffer
// and hands it back with FrameReady. When there is nothing to draw into, the
// frame is still completed so the presentation loop keeps turning. It never
// waits on the GPU.
func (r *Renderer) RenderFrame() error {
	if r.state == Uninitialized {
		return errors.AssertionFailedf("render frame before init resources")
	}

	extent := r.surface.SwapchainImageSize()
	if r.state != SwapchainReady || swapchain.TooSmall(extent, r.swapchain.MinExtent()) {
		return r.finishFrame()
	}
	if extent != r.swapchain.Extent() {
		r.logger.Debug("skipped frame for stale framebuffers",
			slog.Int("Width", extent.Width),
			slog.Int("Height", extent.Height),
		)
		return r.finishFrame()
	}

	frameIndex := r.surface.CurrentFrame()
	r.animation.Advance()
	err := r.ring.Update(frameIndex,
		r.animation.Model(),
		r.camera.View(),
		r.camera.Projection(extent.Width, extent.Height),
	)
	if err != nil {
		return err
	}

	cb := r.surface.CurrentCommandBuffer()
	area := core1_0.Rect2D{
		Offset: core1_0.Offset2D{X: 0, Y: 0},
		Extent: extent,
	}

	err = cb.CmdBeginRenderPass(gpu.RenderPassBegin{
		RenderPass:  r.pipeline.RenderPass,
		Framebuffer: r.swapchain.Framebuffer(r.surface.CurrentSwapchainImageIndex()),
		Area:        area,
		ClearValues: r.pipeline.Config.ClearValues(r.opts.ClearColor),
	})
	if err != nil {
		return err
	}

	cb.CmdBindPipeline(r.pipeline.Pipeline)
	cb.CmdSetViewport(core1_0.Viewport{
		X:        0,
		Y:        0,
		Width:    float32(extent.Width),
		Height:   float32(extent.Height),
		MinDepth: 0,
		MaxDepth: 1,
	})
	cb.CmdSetScissor(area)
	cb.CmdBindDescriptorSet(r.pipeline.Layout, r.registry.Set(frameIndex))

	r.models.RenderAll(cb)

	cb.CmdEndRenderPass()

	return r.finishFrame()
}

func (r *Renderer) finishFrame() error {
	if err := r.surface.FrameReady(); err != nil {
		return err
	}
	r.surface.RequestUpdate()
	return nil
}

// ReleaseSwapchainResources destroys the framebuffers. Calling it again
// without an intervening InitSwapchainResources is a no-op.
func (r *Renderer) ReleaseSwapchainResources() {
	r.swapchain.Release()
	if r.state == SwapchainReady {
		r.state = ResourcesReady
	}
}

// ReleaseResources tears down everything InitResources built, releasing the
// swapchain resources first if they are still alive. Calling it again is a
// no-op.
func (r *Renderer) ReleaseResources() {
	if r.state == Uninitialized {
		return
	}
	r.ReleaseSwapchainResources()

	r.models.UnloadAll()
	r.texture.Destroy()
	r.ring.Destroy()
	r.pipeline.Destroy()
	r.registry.Destroy()

	r.models = nil
	r.texture = nil
	r.ring = nil
	r.pipeline = nil
	r.registry = nil
	r.transfer = nil
	r.allocator = nil
	r.state = Uninitialized

	r.logger.Info("released resources")
}
