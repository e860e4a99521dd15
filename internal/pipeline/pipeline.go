// Package pipeline builds the render pass, pipeline layout and graphics
// pipeline from one declarative configuration. The result is immutable for
// the life of the process.
package pipeline

import (
	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/core/core1_0"
	"golang.org/x/exp/slog"

	"github.com/vkngwrapper/vulkan-renderer/internal/gpu"
)

// Config declares everything the pipeline state is built from.
type Config struct {
	ColorFormat core1_0.Format
	// Depth adds a depth attachment of DepthFormat with depth testing.
	Depth       bool
	DepthFormat core1_0.Format
	// Samples above Samples1 render into an MSAA colour image resolved into
	// the swapchain image.
	Samples core1_0.SampleCountFlags

	VertexBindings   []core1_0.VertexInputBindingDescription
	VertexAttributes []core1_0.VertexInputAttributeDescription
	SetLayouts       []gpu.DescriptorSetLayout

	VertexShader   string
	FragmentShader string
}

// State is the render pass, layout and pipeline built from a Config.
type State struct {
	Config     Config
	RenderPass gpu.RenderPass
	Layout     gpu.PipelineLayout
	Pipeline   gpu.Pipeline
}

// GraphicsPipelineInfo fills in the fixed-function state for cfg. Viewport
// and scissor are dynamic and set while recording each frame.
func GraphicsPipelineInfo(cfg Config) gpu.GraphicsPipelineInfo {
	info := gpu.GraphicsPipelineInfo{
		EntryPoint: "main",

		VertexInput: core1_0.PipelineVertexInputStateCreateInfo{
			VertexBindingDescriptions:   cfg.VertexBindings,
			VertexAttributeDescriptions: cfg.VertexAttributes,
		},
		InputAssembly: core1_0.PipelineInputAssemblyStateCreateInfo{
			Topology:               core1_0.PrimitiveTopologyTriangleList,
			PrimitiveRestartEnable: false,
		},
		Rasterization: core1_0.PipelineRasterizationStateCreateInfo{
			DepthClampEnable:        false,
			RasterizerDiscardEnable: false,

			PolygonMode: core1_0.PolygonModeFill,
			CullMode:    core1_0.CullModeBack,
			FrontFace:   core1_0.FrontFaceCounterClockwise,

			DepthBiasEnable: false,

			LineWidth: 1.0,
		},
		Multisample: core1_0.PipelineMultisampleStateCreateInfo{
			SampleShadingEnable:  false,
			RasterizationSamples: cfg.samples(),
			MinSampleShading:     1.0,
		},
		ColorBlend: core1_0.PipelineColorBlendStateCreateInfo{
			LogicOpEnabled: false,
			LogicOp:        core1_0.LogicOpCopy,

			BlendConstants: [4]float32{0, 0, 0, 0},
			Attachments: []core1_0.PipelineColorBlendAttachmentState{
				{
					BlendEnabled:   false,
					ColorWriteMask: core1_0.ColorComponentRed | core1_0.ColorComponentGreen | core1_0.ColorComponentBlue | core1_0.ColorComponentAlpha,
				},
			},
		},
		DynamicStates: []core1_0.DynamicState{core1_0.DynamicStateViewport, core1_0.DynamicStateScissor},
	}

	if cfg.Depth {
		info.DepthStencil = &core1_0.PipelineDepthStencilStateCreateInfo{
			DepthTestEnable:  true,
			DepthWriteEnable: true,
			DepthCompareOp:   core1_0.CompareOpLess,
		}
	}
	return info
}

// Build loads both shaders and creates the render pass, pipeline layout and
// graphics pipeline. Shader modules are released once the pipeline exists.
func Build(device gpu.Device, shaders ShaderLoader, cfg Config, logger *slog.Logger) (state *State, err error) {
	if logger == nil {
		logger = slog.Default()
	}

	vertCode, err := shaders.Load(cfg.VertexShader)
	if err != nil {
		return nil, err
	}
	fragCode, err := shaders.Load(cfg.FragmentShader)
	if err != nil {
		return nil, err
	}

	vertShader, err := device.CreateShaderModule(vertCode)
	if err != nil {
		return nil, errors.Mark(gpu.CreationFailed(err, "create shader module %s", cfg.VertexShader), gpu.ErrShaderLoad)
	}
	defer vertShader.Destroy()

	fragShader, err := device.CreateShaderModule(fragCode)
	if err != nil {
		return nil, errors.Mark(gpu.CreationFailed(err, "create shader module %s", cfg.FragmentShader), gpu.ErrShaderLoad)
	}
	defer fragShader.Destroy()

	var scope gpu.Scope
	defer scope.ReleaseOnError(&err)

	state = &State{Config: cfg}

	state.RenderPass, err = device.CreateRenderPass(RenderPassInfo(cfg))
	if err != nil {
		return nil, gpu.CreationFailed(err, "create render pass")
	}
	scope.Track(state.RenderPass)

	state.Layout, err = device.CreatePipelineLayout(cfg.SetLayouts...)
	if err != nil {
		return nil, gpu.CreationFailed(err, "create pipeline layout")
	}
	scope.Track(state.Layout)

	info := GraphicsPipelineInfo(cfg)
	info.VertexShader = vertShader
	info.FragmentShader = fragShader
	info.Layout = state.Layout
	info.RenderPass = state.RenderPass

	state.Pipeline, err = device.CreateGraphicsPipeline(info)
	if err != nil {
		return nil, gpu.CreationFailed(err, "create graphics pipeline")
	}

	logger.Debug("created pipeline state",
		slog.Int("Attachments", cfg.AttachmentCount()),
		slog.Bool("Depth", cfg.Depth),
		slog.Bool("Multisampled", cfg.Multisampled()),
	)
	return state, nil
}

// Destroy releases the pipeline, its layout and the render pass. Calling it
// again is a no-op.
func (s *State) Destroy() {
	if s == nil {
		return
	}
	if s.Pipeline != nil {
		s.Pipeline.Destroy()
		s.Pipeline = nil
	}
	if s.Layout != nil {
		s.Layout.Destroy()
		s.Layout = nil
	}
	if s.RenderPass != nil {
		s.RenderPass.Destroy()
		s.RenderPass = nil
	}
}
