package vk

import (
	"unsafe"

	"github.com/vkngwrapper/core/core1_0"

	"github.com/vkngwrapper/vulkan-renderer/internal/gpu"
)

type Memory struct {
	handle core1_0.DeviceMemory
}

func (m *Memory) Map(offset, size int) ([]byte, error) {
	ptr, _, err := m.handle.Map(offset, size, 0)
	if err != nil {
		return nil, err
	}
	return unsafe.Slice((*byte)(ptr), size), nil
}

func (m *Memory) Unmap() {
	m.handle.Unmap()
}

func (m *Memory) Free() {
	m.handle.Free(nil)
}

func requirements(reqs *core1_0.MemoryRequirements) gpu.Requirements {
	return gpu.Requirements{
		Size:           reqs.Size,
		Alignment:      reqs.Alignment,
		MemoryTypeBits: reqs.MemoryTypeBits,
	}
}

type Buffer struct {
	handle core1_0.Buffer
}

func (b *Buffer) Handle() core1_0.Buffer {
	return b.handle
}

func (b *Buffer) MemoryRequirements() gpu.Requirements {
	return requirements(b.handle.MemoryRequirements())
}

func (b *Buffer) BindMemory(memory gpu.Memory, offset int) error {
	_, err := b.handle.BindBufferMemory(memory.(*Memory).handle, offset)
	return err
}

func (b *Buffer) Destroy() {
	b.handle.Destroy(nil)
}

// Image is either an image this package created or a swapchain image, which
// belongs to its swapchain and is never destroyed here.
type Image struct {
	handle core1_0.Image
	owned  bool
}

// SwapchainImage wraps an image owned by a swapchain so views can be created
// for it.
func SwapchainImage(image core1_0.Image) *Image {
	return &Image{handle: image}
}

func (i *Image) Handle() core1_0.Image {
	return i.handle
}

func (i *Image) MemoryRequirements() gpu.Requirements {
	return requirements(i.handle.MemoryRequirements())
}

func (i *Image) BindMemory(memory gpu.Memory, offset int) error {
	_, err := i.handle.BindImageMemory(memory.(*Memory).handle, offset)
	return err
}

func (i *Image) Destroy() {
	if i.owned {
		i.handle.Destroy(nil)
	}
}

type ImageView struct {
	handle core1_0.ImageView
}

func (v *ImageView) Destroy() {
	v.handle.Destroy(nil)
}

type Sampler struct {
	handle core1_0.Sampler
}

func (s *Sampler) Destroy() {
	s.handle.Destroy(nil)
}

type ShaderModule struct {
	handle core1_0.ShaderModule
}

func (s *ShaderModule) Destroy() {
	s.handle.Destroy(nil)
}

type RenderPass struct {
	handle core1_0.RenderPass
}

func (r *RenderPass) Destroy() {
	r.handle.Destroy(nil)
}

type PipelineLayout struct {
	handle core1_0.PipelineLayout
}

func (l *PipelineLayout) Destroy() {
	l.handle.Destroy(nil)
}

type Pipeline struct {
	handle core1_0.Pipeline
}

func (p *Pipeline) Destroy() {
	p.handle.Destroy(nil)
}

type Framebuffer struct {
	handle core1_0.Framebuffer
}

func (f *Framebuffer) Destroy() {
	f.handle.Destroy(nil)
}

type DescriptorSetLayout struct {
	handle core1_0.DescriptorSetLayout
}

func (l *DescriptorSetLayout) Destroy() {
	l.handle.Destroy(nil)
}

type DescriptorSet struct {
	handle core1_0.DescriptorSet
	layout gpu.DescriptorSetLayout
}

func (s *DescriptorSet) Layout() gpu.DescriptorSetLayout {
	return s.layout
}

type DescriptorPool struct {
	device core1_0.Device
	handle core1_0.DescriptorPool
}

func (p *DescriptorPool) AllocateSets(layout gpu.DescriptorSetLayout, count int) ([]gpu.DescriptorSet, error) {
	layouts := make([]core1_0.DescriptorSetLayout, count)
	for i := range layouts {
		layouts[i] = layout.(*DescriptorSetLayout).handle
	}

	sets, _, err := p.device.AllocateDescriptorSets(core1_0.DescriptorSetAllocateInfo{
		DescriptorPool: p.handle,
		SetLayouts:     layouts,
	})
	if err != nil {
		return nil, err
	}

	out := make([]gpu.DescriptorSet, len(sets))
	for i, set := range sets {
		out[i] = &DescriptorSet{handle: set, layout: layout}
	}
	return out, nil
}

// Destroy releases the pool and every set allocated from it.
func (p *DescriptorPool) Destroy() {
	p.handle.Destroy(nil)
}
