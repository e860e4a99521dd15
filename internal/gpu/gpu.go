// Package gpu defines the opaque resource handles the renderer drives.
//
// Every handle is owned by exactly one component, which creates and destroys
// it. Implementations are provided by package vk for a real device and by
// package gputest for tests.
package gpu

import (
	"github.com/vkngwrapper/core/core1_0"
)

// Destroyer is implemented by every handle that must be explicitly released.
type Destroyer interface {
	Destroy()
}

// Requirements mirrors the memory requirements a driver reports for a buffer
// or image.
type Requirements struct {
	Size           int
	Alignment      int
	MemoryTypeBits uint32
}

// MemoryType is one entry of the physical device's memory type table.
type MemoryType struct {
	PropertyFlags core1_0.MemoryPropertyFlags
	HeapIndex     int
}

// MemoryProperties is the physical device's memory type table, in index order.
type MemoryProperties struct {
	Types []MemoryType
}

// Limits are the physical device limits the renderer depends on.
type Limits struct {
	MinUniformBufferOffsetAlignment int
	MaxSamplerAnisotropy            float32
}

// Memory is a device memory allocation.
type Memory interface {
	// Map exposes size bytes starting at offset to the host. The returned
	// slice stays valid until Unmap or Free.
	Map(offset, size int) ([]byte, error)
	Unmap()
	Free()
}

// Bindable is a resource whose backing memory is allocated separately and
// bound afterwards.
type Bindable interface {
	MemoryRequirements() Requirements
	BindMemory(memory Memory, offset int) error
}

type Buffer interface {
	Bindable
	Destroyer
}

type Image interface {
	Bindable
	Destroyer
}

type ImageView interface {
	Destroyer
}

type Sampler interface {
	Destroyer
}

type ShaderModule interface {
	Destroyer
}

type RenderPass interface {
	Destroyer
}

type PipelineLayout interface {
	Destroyer
}

type Pipeline interface {
	Destroyer
}

type Framebuffer interface {
	Destroyer
}

type DescriptorSetLayout interface {
	Destroyer
}

// DescriptorSet is released together with the pool it was allocated from.
type DescriptorSet interface {
	Layout() DescriptorSetLayout
}

type DescriptorPool interface {
	Destroyer
	AllocateSets(layout DescriptorSetLayout, count int) ([]DescriptorSet, error)
}

// CommandPool hands out primary command buffers.
type CommandPool interface {
	AllocateCommandBuffer() (CommandBuffer, error)
	FreeCommandBuffers(buffers ...CommandBuffer)
}

// Queue accepts recorded command buffers for execution.
type Queue interface {
	Submit(buffers ...CommandBuffer) error
	WaitIdle() error
}

// ImageBarrier describes a single image layout transition.
type ImageBarrier struct {
	Image     Image
	OldLayout core1_0.ImageLayout
	NewLayout core1_0.ImageLayout
	SrcAccess core1_0.AccessFlags
	DstAccess core1_0.AccessFlags
	SrcStage  core1_0.PipelineStageFlags
	DstStage  core1_0.PipelineStageFlags
	Aspect    core1_0.ImageAspectFlags
}

type RenderPassBegin struct {
	RenderPass  RenderPass
	Framebuffer Framebuffer
	Area        core1_0.Rect2D
	ClearValues []core1_0.ClearValue
}

// CommandBuffer records GPU work.
type CommandBuffer interface {
	Begin(oneTimeSubmit bool) error
	End() error

	CmdCopyBuffer(src, dst Buffer, size int) error
	CmdCopyBufferToImage(src Buffer, dst Image, extent core1_0.Extent2D) error
	CmdImageBarrier(barrier ImageBarrier) error

	CmdBeginRenderPass(begin RenderPassBegin) error
	CmdEndRenderPass()
	CmdBindPipeline(pipeline Pipeline)
	CmdSetViewport(viewport core1_0.Viewport)
	CmdSetScissor(scissor core1_0.Rect2D)
	CmdBindDescriptorSet(layout PipelineLayout, set DescriptorSet)
	CmdBindVertexBuffer(buffer Buffer)
	CmdBindIndexBuffer(buffer Buffer, indexType core1_0.IndexType)
	CmdDrawIndexed(indexCount int)
}

type ImageInfo struct {
	Extent  core1_0.Extent2D
	Format  core1_0.Format
	Usage   core1_0.ImageUsageFlags
	Samples core1_0.SampleCountFlags
	Tiling  core1_0.ImageTiling
}

type FramebufferInfo struct {
	RenderPass  RenderPass
	Attachments []ImageView
	Extent      core1_0.Extent2D
}

type BufferBinding struct {
	Buffer Buffer
	Offset int
	Range  int
}

type ImageBinding struct {
	View    ImageView
	Sampler Sampler
	Layout  core1_0.ImageLayout
}

// DescriptorWrite points one binding of a descriptor set at a buffer or an
// image. Exactly one of Buffer and Image is set.
type DescriptorWrite struct {
	Set     DescriptorSet
	Binding int
	Type    core1_0.DescriptorType
	Buffer  *BufferBinding
	Image   *ImageBinding
}

// GraphicsPipelineInfo carries the fixed-function state of a graphics
// pipeline together with the handles it is built from.
type GraphicsPipelineInfo struct {
	VertexShader   ShaderModule
	FragmentShader ShaderModule
	EntryPoint     string

	VertexInput   core1_0.PipelineVertexInputStateCreateInfo
	InputAssembly core1_0.PipelineInputAssemblyStateCreateInfo
	Rasterization core1_0.PipelineRasterizationStateCreateInfo
	Multisample   core1_0.PipelineMultisampleStateCreateInfo
	DepthStencil  *core1_0.PipelineDepthStencilStateCreateInfo
	ColorBlend    core1_0.PipelineColorBlendStateCreateInfo
	DynamicStates []core1_0.DynamicState

	Layout     PipelineLayout
	RenderPass RenderPass
}

// Device is the logical device together with the physical device queries
// the renderer needs.
type Device interface {
	MemoryProperties() MemoryProperties
	Limits() Limits

	CreateBuffer(size int, usage core1_0.BufferUsageFlags) (Buffer, error)
	CreateImage(info ImageInfo) (Image, error)
	AllocateMemory(size int, memoryTypeIndex int) (Memory, error)

	CreateImageView(image Image, format core1_0.Format, aspect core1_0.ImageAspectFlags) (ImageView, error)
	CreateSampler(info core1_0.SamplerCreateInfo) (Sampler, error)
	CreateShaderModule(code []uint32) (ShaderModule, error)

	CreateRenderPass(info core1_0.RenderPassCreateInfo) (RenderPass, error)
	CreatePipelineLayout(setLayouts ...DescriptorSetLayout) (PipelineLayout, error)
	CreateGraphicsPipeline(info GraphicsPipelineInfo) (Pipeline, error)
	CreateFramebuffer(info FramebufferInfo) (Framebuffer, error)

	CreateDescriptorSetLayout(bindings []core1_0.DescriptorSetLayoutBinding) (DescriptorSetLayout, error)
	CreateDescriptorPool(maxSets int, sizes []core1_0.DescriptorPoolSize) (DescriptorPool, error)
	UpdateDescriptorSets(writes ...DescriptorWrite) error

	WaitIdle() error
}
