// Package memory picks device memory types and pairs buffers and images with
// the allocations that back them.
package memory

import (
	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/core/core1_0"
	"golang.org/x/exp/slog"

	"github.com/vkngwrapper/vulkan-renderer/internal/gpu"
)

// FindMemoryType returns the lowest index whose bit is set in typeBits and
// whose property flags contain every flag in required.
func FindMemoryType(props gpu.MemoryProperties, typeBits uint32, required core1_0.MemoryPropertyFlags) (int, error) {
	for i, memoryType := range props.Types {
		if i >= 32 {
			break
		}
		typeBit := uint32(1) << uint(i)
		if typeBits&typeBit != 0 && memoryType.PropertyFlags&required == required {
			return i, nil
		}
	}
	return -1, errors.Mark(
		errors.Newf("no memory type in mask %#x has properties %v", typeBits, required),
		gpu.ErrMemoryTypeNotFound,
	)
}

// AlignUp rounds size up to the next multiple of alignment. An alignment of
// zero or one leaves size unchanged.
func AlignUp(size, alignment int) int {
	if alignment <= 1 {
		return size
	}
	return (size + alignment - 1) / alignment * alignment
}

// Allocator creates resources and binds each to a dedicated allocation.
type Allocator struct {
	device gpu.Device
	logger *slog.Logger
}

func NewAllocator(device gpu.Device, logger *slog.Logger) *Allocator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Allocator{device: device, logger: logger}
}

func (a *Allocator) Device() gpu.Device {
	return a.device
}

func (a *Allocator) allocateFor(resource gpu.Bindable, properties core1_0.MemoryPropertyFlags) (gpu.Memory, error) {
	reqs := resource.MemoryRequirements()
	typeIndex, err := FindMemoryType(a.device.MemoryProperties(), reqs.MemoryTypeBits, properties)
	if err != nil {
		return nil, err
	}

	mem, err := a.device.AllocateMemory(reqs.Size, typeIndex)
	if err != nil {
		return nil, gpu.CreationFailed(err, "allocate %d bytes of memory type %d", reqs.Size, typeIndex)
	}
	if err := resource.BindMemory(mem, 0); err != nil {
		mem.Free()
		return nil, gpu.CreationFailed(err, "bind memory")
	}

	a.logger.Debug("Allocator::allocateFor",
		slog.Int("Size", reqs.Size),
		slog.Int("MemoryTypeIndex", typeIndex),
	)
	return mem, nil
}

// Buffer is a buffer together with the memory bound to it.
type Buffer struct {
	Buffer gpu.Buffer
	Memory gpu.Memory
	Size   int
}

// CreateBuffer creates a buffer of size bytes and binds it to fresh memory
// with the requested properties.
func (a *Allocator) CreateBuffer(size int, usage core1_0.BufferUsageFlags, properties core1_0.MemoryPropertyFlags) (*Buffer, error) {
	buffer, err := a.device.CreateBuffer(size, usage)
	if err != nil {
		return nil, gpu.CreationFailed(err, "create buffer of %d bytes", size)
	}

	mem, err := a.allocateFor(buffer, properties)
	if err != nil {
		buffer.Destroy()
		return nil, errors.Wrapf(err, "buffer of %d bytes", size)
	}

	return &Buffer{Buffer: buffer, Memory: mem, Size: size}, nil
}

// Write copies data into the start of a host-visible buffer.
func (b *Buffer) Write(data []byte) error {
	if len(data) > b.Size {
		return errors.AssertionFailedf("write of %d bytes into buffer of %d", len(data), b.Size)
	}
	mapped, err := b.Memory.Map(0, len(data))
	if err != nil {
		return errors.Wrap(err, "map buffer memory")
	}
	copy(mapped, data)
	b.Memory.Unmap()
	return nil
}

// Read copies the whole contents of a host-visible buffer.
func (b *Buffer) Read() ([]byte, error) {
	mapped, err := b.Memory.Map(0, b.Size)
	if err != nil {
		return nil, errors.Wrap(err, "map buffer memory")
	}
	out := make([]byte, b.Size)
	copy(out, mapped)
	b.Memory.Unmap()
	return out, nil
}

// Destroy releases the buffer and then its memory. Calling it again is a no-op.
func (b *Buffer) Destroy() {
	if b == nil || b.Buffer == nil {
		return
	}
	b.Buffer.Destroy()
	b.Memory.Free()
	b.Buffer = nil
	b.Memory = nil
}

// Image is an image together with the memory bound to it and, when one was
// requested, a view over it.
type Image struct {
	Image  gpu.Image
	Memory gpu.Memory
	View   gpu.ImageView
	Info   gpu.ImageInfo
}

// CreateImage creates a 2D image and binds it to fresh memory with the
// requested properties.
func (a *Allocator) CreateImage(info gpu.ImageInfo, properties core1_0.MemoryPropertyFlags) (*Image, error) {
	image, err := a.device.CreateImage(info)
	if err != nil {
		return nil, gpu.CreationFailed(err, "create %dx%d image", info.Extent.Width, info.Extent.Height)
	}

	mem, err := a.allocateFor(image, properties)
	if err != nil {
		image.Destroy()
		return nil, errors.Wrapf(err, "%dx%d image", info.Extent.Width, info.Extent.Height)
	}

	return &Image{Image: image, Memory: mem, Info: info}, nil
}

// CreateViewedImage creates device-local image memory with a view covering
// the given aspect, as used by attachments and textures.
func (a *Allocator) CreateViewedImage(info gpu.ImageInfo, aspect core1_0.ImageAspectFlags) (*Image, error) {
	img, err := a.CreateImage(info, core1_0.MemoryPropertyDeviceLocal)
	if err != nil {
		return nil, err
	}

	view, err := a.device.CreateImageView(img.Image, info.Format, aspect)
	if err != nil {
		img.Destroy()
		return nil, gpu.CreationFailed(err, "create image view")
	}
	img.View = view
	return img, nil
}

// Destroy releases the view, the image and then its memory. Calling it again
// is a no-op.
func (i *Image) Destroy() {
	if i == nil || i.Image == nil {
		return
	}
	if i.View != nil {
		i.View.Destroy()
		i.View = nil
	}
	i.Image.Destroy()
	i.Memory.Free()
	i.Image = nil
	i.Memory = nil
}
