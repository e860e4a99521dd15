package pipeline

import (
	"github.com/vkngwrapper/core/core1_0"
	"github.com/vkngwrapper/extensions/khr_swapchain"
)

func (c Config) samples() core1_0.SampleCountFlags {
	if c.Samples == 0 {
		return core1_0.Samples1
	}
	return c.Samples
}

// Multisampled reports whether the colour target is an MSAA image resolved
// into the swapchain image.
func (c Config) Multisampled() bool {
	return c.samples() != core1_0.Samples1
}

// AttachmentCount is the number of framebuffer attachments the render pass
// expects: colour, then depth if enabled, then the resolve target if
// multisampled.
func (c Config) AttachmentCount() int {
	n := 1
	if c.Depth {
		n++
	}
	if c.Multisampled() {
		n++
	}
	return n
}

// ClearValues returns one clear value per attachment, in attachment order.
func (c Config) ClearValues(color [4]float32) []core1_0.ClearValue {
	values := []core1_0.ClearValue{core1_0.ClearValueFloat(color)}
	if c.Depth {
		values = append(values, core1_0.ClearValueDepthStencil{Depth: 1.0, Stencil: 0})
	}
	if c.Multisampled() {
		values = append(values, core1_0.ClearValueFloat(color))
	}
	return values
}

// RenderPassInfo describes a single-subpass render pass for cfg.
func RenderPassInfo(cfg Config) core1_0.RenderPassCreateInfo {
	samples := cfg.samples()
	msaa := cfg.Multisampled()

	color := core1_0.AttachmentDescription{
		Format:         cfg.ColorFormat,
		Samples:        samples,
		LoadOp:         core1_0.AttachmentLoadOpClear,
		StoreOp:        core1_0.AttachmentStoreOpStore,
		StencilLoadOp:  core1_0.AttachmentLoadOpDontCare,
		StencilStoreOp: core1_0.AttachmentStoreOpDontCare,
		InitialLayout:  core1_0.ImageLayoutUndefined,
		FinalLayout:    khr_swapchain.ImageLayoutPresentSrc,
	}
	if msaa {
		color.StoreOp = core1_0.AttachmentStoreOpDontCare
		color.FinalLayout = core1_0.ImageLayoutColorAttachmentOptimal
	}

	attachments := []core1_0.AttachmentDescription{color}
	subpass := core1_0.SubpassDescription{
		PipelineBindPoint: core1_0.PipelineBindPointGraphics,
		ColorAttachments: []core1_0.AttachmentReference{
			{
				Attachment: 0,
				Layout:     core1_0.ImageLayoutColorAttachmentOptimal,
			},
		},
	}

	srcStage := core1_0.PipelineStageColorAttachmentOutput
	dstAccess := core1_0.AccessColorAttachmentWrite

	if cfg.Depth {
		attachments = append(attachments, core1_0.AttachmentDescription{
			Format:         cfg.DepthFormat,
			Samples:        samples,
			LoadOp:         core1_0.AttachmentLoadOpClear,
			StoreOp:        core1_0.AttachmentStoreOpDontCare,
			StencilLoadOp:  core1_0.AttachmentLoadOpDontCare,
			StencilStoreOp: core1_0.AttachmentStoreOpDontCare,
			InitialLayout:  core1_0.ImageLayoutUndefined,
			FinalLayout:    core1_0.ImageLayoutDepthStencilAttachmentOptimal,
		})
		subpass.DepthStencilAttachment = &core1_0.AttachmentReference{
			Attachment: len(attachments) - 1,
			Layout:     core1_0.ImageLayoutDepthStencilAttachmentOptimal,
		}
		srcStage |= core1_0.PipelineStageEarlyFragmentTests
		dstAccess |= core1_0.AccessDepthStencilAttachmentWrite
	}

	if msaa {
		attachments = append(attachments, core1_0.AttachmentDescription{
			Format:         cfg.ColorFormat,
			Samples:        core1_0.Samples1,
			LoadOp:         core1_0.AttachmentLoadOpDontCare,
			StoreOp:        core1_0.AttachmentStoreOpStore,
			StencilLoadOp:  core1_0.AttachmentLoadOpDontCare,
			StencilStoreOp: core1_0.AttachmentStoreOpDontCare,
			InitialLayout:  core1_0.ImageLayoutUndefined,
			FinalLayout:    khr_swapchain.ImageLayoutPresentSrc,
		})
		subpass.ResolveAttachments = []core1_0.AttachmentReference{
			{
				Attachment: len(attachments) - 1,
				Layout:     core1_0.ImageLayoutColorAttachmentOptimal,
			},
		}
	}

	return core1_0.RenderPassCreateInfo{
		Attachments: attachments,
		Subpasses:   []core1_0.SubpassDescription{subpass},
		SubpassDependencies: []core1_0.SubpassDependency{
			{
				SrcSubpass: core1_0.SubpassExternal,
				DstSubpass: 0,

				SrcStageMask:  srcStage,
				SrcAccessMask: 0,

				DstStageMask:  srcStage,
				DstAccessMask: dstAccess,
			},
		},
	}
}

// ChooseSamples returns the highest of 16, 8 and 4 samples that is both
// supported and no more than maxSamples, or Samples1 when none is.
func ChooseSamples(supported core1_0.SampleCountFlags, maxSamples int) core1_0.SampleCountFlags {
	candidates := []struct {
		flag  core1_0.SampleCountFlags
		count int
	}{
		{core1_0.Samples16, 16},
		{core1_0.Samples8, 8},
		{core1_0.Samples4, 4},
	}
	for _, c := range candidates {
		if c.count <= maxSamples && supported&c.flag != 0 {
			return c.flag
		}
	}
	return core1_0.Samples1
}
