// Package vk implements the gpu interfaces over a vkngwrapper logical device.
package vk

import (
	"github.com/vkngwrapper/core/core1_0"

	"github.com/vkngwrapper/vulkan-renderer/internal/gpu"
)

// Device wraps a logical device and the physical device it was created from.
type Device struct {
	physical core1_0.PhysicalDevice
	device   core1_0.Device

	memory gpu.MemoryProperties
	limits gpu.Limits
}

var _ gpu.Device = (*Device)(nil)

func NewDevice(physical core1_0.PhysicalDevice, device core1_0.Device) (*Device, error) {
	properties, err := physical.Properties()
	if err != nil {
		return nil, err
	}

	d := &Device{
		physical: physical,
		device:   device,
		limits: gpu.Limits{
			MinUniformBufferOffsetAlignment: int(properties.Limits.MinUniformBufferOffsetAlignment),
			MaxSamplerAnisotropy:            float32(properties.Limits.MaxSamplerAnisotropy),
		},
	}

	for _, memoryType := range physical.MemoryProperties().MemoryTypes {
		d.memory.Types = append(d.memory.Types, gpu.MemoryType{
			PropertyFlags: memoryType.PropertyFlags,
			HeapIndex:     memoryType.HeapIndex,
		})
	}
	return d, nil
}

// Handle is the underlying logical device.
func (d *Device) Handle() core1_0.Device {
	return d.device
}

func (d *Device) MemoryProperties() gpu.MemoryProperties {
	return d.memory
}

func (d *Device) Limits() gpu.Limits {
	return d.limits
}

func (d *Device) CreateBuffer(size int, usage core1_0.BufferUsageFlags) (gpu.Buffer, error) {
	buffer, _, err := d.device.CreateBuffer(nil, core1_0.BufferCreateInfo{
		Size:        size,
		Usage:       usage,
		SharingMode: core1_0.SharingModeExclusive,
	})
	if err != nil {
		return nil, err
	}
	return &Buffer{handle: buffer}, nil
}

func (d *Device) CreateImage(info gpu.ImageInfo) (gpu.Image, error) {
	samples := info.Samples
	if samples == 0 {
		samples = core1_0.Samples1
	}
	image, _, err := d.device.CreateImage(nil, core1_0.ImageCreateOptions{
		ImageType: core1_0.ImageType2D,
		Extent: core1_0.Extent3D{
			Width:  info.Extent.Width,
			Height: info.Extent.Height,
			Depth:  1,
		},
		MipLevels:     1,
		ArrayLayers:   1,
		Format:        info.Format,
		Tiling:        info.Tiling,
		InitialLayout: core1_0.ImageLayoutUndefined,
		Usage:         info.Usage,
		SharingMode:   core1_0.SharingModeExclusive,
		Samples:       samples,
	})
	if err != nil {
		return nil, err
	}
	return &Image{handle: image, owned: true}, nil
}

func (d *Device) AllocateMemory(size int, memoryTypeIndex int) (gpu.Memory, error) {
	memory, _, err := d.device.AllocateMemory(nil, core1_0.MemoryAllocateInfo{
		AllocationSize:  size,
		MemoryTypeIndex: memoryTypeIndex,
	})
	if err != nil {
		return nil, err
	}
	return &Memory{handle: memory}, nil
}

func (d *Device) CreateImageView(image gpu.Image, format core1_0.Format, aspect core1_0.ImageAspectFlags) (gpu.ImageView, error) {
	view, _, err := d.device.CreateImageView(nil, core1_0.ImageViewCreateInfo{
		Image:    image.(*Image).handle,
		ViewType: core1_0.ImageViewType2D,
		Format:   format,
		SubresourceRange: core1_0.ImageSubresourceRange{
			AspectMask:     aspect,
			BaseMipLevel:   0,
			LevelCount:     1,
			BaseArrayLayer: 0,
			LayerCount:     1,
		},
	})
	if err != nil {
		return nil, err
	}
	return &ImageView{handle: view}, nil
}

func (d *Device) CreateSampler(info core1_0.SamplerCreateInfo) (gpu.Sampler, error) {
	sampler, _, err := d.device.CreateSampler(nil, info)
	if err != nil {
		return nil, err
	}
	return &Sampler{handle: sampler}, nil
}

func (d *Device) CreateShaderModule(code []uint32) (gpu.ShaderModule, error) {
	module, _, err := d.device.CreateShaderModule(nil, core1_0.ShaderModuleCreateInfo{
		Code: code,
	})
	if err != nil {
		return nil, err
	}
	return &ShaderModule{handle: module}, nil
}

func (d *Device) CreateRenderPass(info core1_0.RenderPassCreateInfo) (gpu.RenderPass, error) {
	renderPass, _, err := d.device.CreateRenderPass(nil, info)
	if err != nil {
		return nil, err
	}
	return &RenderPass{handle: renderPass}, nil
}

func (d *Device) CreatePipelineLayout(setLayouts ...gpu.DescriptorSetLayout) (gpu.PipelineLayout, error) {
	var layouts []core1_0.DescriptorSetLayout
	for _, layout := range setLayouts {
		layouts = append(layouts, layout.(*DescriptorSetLayout).handle)
	}
	layout, _, err := d.device.CreatePipelineLayout(nil, core1_0.PipelineLayoutCreateInfo{
		SetLayouts: layouts,
	})
	if err != nil {
		return nil, err
	}
	return &PipelineLayout{handle: layout}, nil
}

func (d *Device) CreateGraphicsPipeline(info gpu.GraphicsPipelineInfo) (gpu.Pipeline, error) {
	vertexInput := info.VertexInput
	inputAssembly := info.InputAssembly
	rasterization := info.Rasterization
	multisample := info.Multisample
	colorBlend := info.ColorBlend

	createInfo := core1_0.GraphicsPipelineCreateInfo{
		Stages: []core1_0.PipelineShaderStageCreateInfo{
			{
				Stage:  core1_0.StageVertex,
				Module: info.VertexShader.(*ShaderModule).handle,
				Name:   info.EntryPoint,
			},
			{
				Stage:  core1_0.StageFragment,
				Module: info.FragmentShader.(*ShaderModule).handle,
				Name:   info.EntryPoint,
			},
		},
		VertexInputState:   &vertexInput,
		InputAssemblyState: &inputAssembly,
		// Counts only; the viewport and scissor themselves are dynamic.
		ViewportState: &core1_0.PipelineViewportStateCreateInfo{
			Viewports: []core1_0.Viewport{{}},
			Scissors:  []core1_0.Rect2D{{}},
		},
		RasterizationState: &rasterization,
		MultisampleState:   &multisample,
		DepthStencilState:  info.DepthStencil,
		ColorBlendState:    &colorBlend,
		Layout:             info.Layout.(*PipelineLayout).handle,
		RenderPass:         info.RenderPass.(*RenderPass).handle,
		Subpass:            0,
		BasePipelineIndex:  -1,
	}
	if len(info.DynamicStates) > 0 {
		createInfo.DynamicState = &core1_0.PipelineDynamicStateCreateInfo{
			DynamicStates: info.DynamicStates,
		}
	}

	pipelines, _, err := d.device.CreateGraphicsPipelines(nil, nil, []core1_0.GraphicsPipelineCreateInfo{createInfo})
	if err != nil {
		return nil, err
	}
	return &Pipeline{handle: pipelines[0]}, nil
}

func (d *Device) CreateFramebuffer(info gpu.FramebufferInfo) (gpu.Framebuffer, error) {
	var attachments []core1_0.ImageView
	for _, view := range info.Attachments {
		attachments = append(attachments, view.(*ImageView).handle)
	}
	framebuffer, _, err := d.device.CreateFramebuffer(nil, core1_0.FramebufferCreateInfo{
		RenderPass:  info.RenderPass.(*RenderPass).handle,
		Layers:      1,
		Attachments: attachments,
		Width:       info.Extent.Width,
		Height:      info.Extent.Height,
	})
	if err != nil {
		return nil, err
	}
	return &Framebuffer{handle: framebuffer}, nil
}

func (d *Device) CreateDescriptorSetLayout(bindings []core1_0.DescriptorSetLayoutBinding) (gpu.DescriptorSetLayout, error) {
	layout, _, err := d.device.CreateDescriptorSetLayout(nil, core1_0.DescriptorSetLayoutCreateInfo{
		Bindings: bindings,
	})
	if err != nil {
		return nil, err
	}
	return &DescriptorSetLayout{handle: layout}, nil
}

func (d *Device) CreateDescriptorPool(maxSets int, sizes []core1_0.DescriptorPoolSize) (gpu.DescriptorPool, error) {
	pool, _, err := d.device.CreateDescriptorPool(nil, core1_0.DescriptorPoolCreateInfo{
		MaxSets:   maxSets,
		PoolSizes: sizes,
	})
	if err != nil {
		return nil, err
	}
	return &DescriptorPool{device: d.device, handle: pool}, nil
}

func (d *Device) UpdateDescriptorSets(writes ...gpu.DescriptorWrite) error {
	var vkWrites []core1_0.WriteDescriptorSet
	for _, write := range writes {
		vkWrite := core1_0.WriteDescriptorSet{
			DstSet:          write.Set.(*DescriptorSet).handle,
			DstBinding:      write.Binding,
			DstArrayElement: 0,

			DescriptorType: write.Type,
		}
		if write.Buffer != nil {
			vkWrite.BufferInfo = []core1_0.DescriptorBufferInfo{
				{
					Buffer: write.Buffer.Buffer.(*Buffer).handle,
					Offset: write.Buffer.Offset,
					Range:  write.Buffer.Range,
				},
			}
		}
		if write.Image != nil {
			vkWrite.ImageInfo = []core1_0.DescriptorImageInfo{
				{
					ImageView:   write.Image.View.(*ImageView).handle,
					Sampler:     write.Image.Sampler.(*Sampler).handle,
					ImageLayout: write.Image.Layout,
				},
			}
		}
		vkWrites = append(vkWrites, vkWrite)
	}
	return d.device.UpdateDescriptorSets(vkWrites, nil)
}

func (d *Device) WaitIdle() error {
	_, err := d.device.WaitIdle()
	return err
}
