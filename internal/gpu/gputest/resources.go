package gputest

import (
	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/core/core1_0"

	"github.com/vkngwrapper/vulkan-renderer/internal/gpu"
)

// Handle is a fake for handles with no behaviour beyond destruction.
type Handle struct {
	handle
}

type Memory struct {
	handle
	Bytes     []byte
	TypeIndex int
	flags     core1_0.MemoryPropertyFlags
	mapped    bool
}

func (m *Memory) Map(offset, size int) ([]byte, error) {
	if m.flags&core1_0.MemoryPropertyHostVisible == 0 {
		return nil, errors.Newf("memory type %d is not host visible", m.TypeIndex)
	}
	if m.mapped {
		return nil, errors.New("memory already mapped")
	}
	if offset < 0 || size < 0 || offset+size > len(m.Bytes) {
		return nil, errors.Newf("map range [%d,%d) outside allocation of %d", offset, offset+size, len(m.Bytes))
	}
	m.mapped = true
	return m.Bytes[offset : offset+size : offset+size], nil
}

func (m *Memory) Unmap() {
	if !m.mapped {
		m.dev.violate("%s unmapped while not mapped", m.String())
	}
	m.mapped = false
}

func (m *Memory) Mapped() bool {
	return m.mapped
}

func (m *Memory) Free() {
	m.Destroy()
}

type bound struct {
	memory *Memory
	offset int
}

func (b *bound) bind(dev *Device, owner string, memory gpu.Memory, offset int, size int) error {
	if b.memory != nil {
		return errors.Newf("%s already bound", owner)
	}
	mem, ok := memory.(*Memory)
	if !ok {
		return errors.Newf("foreign memory %T", memory)
	}
	if offset+size > len(mem.Bytes) {
		return errors.Newf("%s needs %d bytes at offset %d, allocation has %d", owner, size, offset, len(mem.Bytes))
	}
	if offset%dev.Alignment != 0 {
		return errors.Newf("%s bound at unaligned offset %d", owner, offset)
	}
	b.memory = mem
	b.offset = offset
	return nil
}

func (b *bound) contents(size int) []byte {
	if b.memory == nil {
		return nil
	}
	return b.memory.Bytes[b.offset : b.offset+size]
}

type Buffer struct {
	handle
	bound
	Size  int
	Usage core1_0.BufferUsageFlags
}

func (b *Buffer) MemoryRequirements() gpu.Requirements {
	return b.dev.requirements(b.Size)
}

func (b *Buffer) BindMemory(memory gpu.Memory, offset int) error {
	if err := b.dev.call("BindBufferMemory"); err != nil {
		return err
	}
	return b.bind(b.dev, b.String(), memory, offset, b.Size)
}

// Contents returns the bytes currently backing the buffer.
func (b *Buffer) Contents() []byte {
	return b.contents(b.Size)
}

// Memory returns the allocation the buffer is bound to.
func (b *Buffer) Memory() *Memory {
	return b.memory
}

type Image struct {
	handle
	bound
	Info   gpu.ImageInfo
	Layout core1_0.ImageLayout
}

func (i *Image) size() int {
	return i.Info.Extent.Width * i.Info.Extent.Height * 4
}

func (i *Image) MemoryRequirements() gpu.Requirements {
	return i.dev.requirements(i.size())
}

func (i *Image) BindMemory(memory gpu.Memory, offset int) error {
	if err := i.dev.call("BindImageMemory"); err != nil {
		return err
	}
	return i.bind(i.dev, i.String(), memory, offset, i.size())
}

// Pixels returns the bytes currently backing the image, four per texel.
func (i *Image) Pixels() []byte {
	return i.contents(i.size())
}

func (i *Image) Memory() *Memory {
	return i.memory
}

type ImageView struct {
	handle
	Image  gpu.Image
	Format core1_0.Format
	Aspect core1_0.ImageAspectFlags
}

type ShaderModule struct {
	handle
	Code []uint32
}

type Framebuffer struct {
	handle
	Info gpu.FramebufferInfo
}

type DescriptorPool struct {
	handle
	MaxSets   int
	allocated int
}

func (p *DescriptorPool) AllocateSets(layout gpu.DescriptorSetLayout, count int) ([]gpu.DescriptorSet, error) {
	if err := p.dev.call("AllocateDescriptorSets"); err != nil {
		return nil, err
	}
	if p.allocated+count > p.MaxSets {
		return nil, errors.Newf("pool of %d sets exhausted", p.MaxSets)
	}
	sets := make([]gpu.DescriptorSet, count)
	for i := range sets {
		sets[i] = &DescriptorSet{pool: p, layout: layout, Index: p.allocated}
		p.allocated++
	}
	return sets, nil
}

type DescriptorSet struct {
	pool   *DescriptorPool
	layout gpu.DescriptorSetLayout
	Index  int
}

func (s *DescriptorSet) Layout() gpu.DescriptorSetLayout {
	return s.layout
}
