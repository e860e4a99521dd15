// Package frame owns the per-frame-in-flight uniform buffers and the data
// written into them each frame.
package frame

import (
	"github.com/cockroachdb/errors"
	"github.com/go-gl/mathgl/mgl32"
	"github.com/vkngwrapper/core/core1_0"
	"golang.org/x/exp/slog"

	"github.com/vkngwrapper/vulkan-renderer/internal/gpu"
	"github.com/vkngwrapper/vulkan-renderer/internal/memory"
	"github.com/vkngwrapper/vulkan-renderer/internal/transfer"
)

// UniformBlock matches the vertex shader's uniform block at binding 0.
type UniformBlock struct {
	Model mgl32.Mat4
	View  mgl32.Mat4
	Proj  mgl32.Mat4
}

const UniformBlockSize = 3 * 16 * 4

// Ring is a fixed set of N persistently mapped uniform buffers, one per frame
// in flight. Frame n only ever touches slot n mod N.
type Ring struct {
	buffers []*memory.Buffer
	mapped  [][]byte
	size    int
	logger  *slog.Logger
}

// NewRing creates n host-visible uniform buffers of blockSize bytes rounded
// up to the device's uniform offset alignment and maps each one until
// Destroy.
func NewRing(allocator *memory.Allocator, n, blockSize int, logger *slog.Logger) (ring *Ring, err error) {
	if n <= 0 {
		return nil, errors.AssertionFailedf("uniform ring of %d slots", n)
	}
	if logger == nil {
		logger = slog.Default()
	}

	size := memory.AlignUp(blockSize, allocator.Device().Limits().MinUniformBufferOffsetAlignment)
	ring = &Ring{size: size, logger: logger}

	var scope gpu.Scope
	defer scope.ReleaseOnError(&err)
	scope.Add(ring.Destroy)

	for i := 0; i < n; i++ {
		buf, err := allocator.CreateBuffer(size, core1_0.BufferUsageUniformBuffer,
			core1_0.MemoryPropertyHostVisible|core1_0.MemoryPropertyHostCoherent)
		if err != nil {
			return nil, errors.Wrapf(err, "uniform buffer %d", i)
		}
		mapped, err := buf.Memory.Map(0, size)
		if err != nil {
			buf.Destroy()
			return nil, errors.Wrapf(err, "map uniform buffer %d", i)
		}
		ring.buffers = append(ring.buffers, buf)
		ring.mapped = append(ring.mapped, mapped)
	}

	logger.Debug("created uniform ring", slog.Int("Slots", n), slog.Int("SlotSize", size))
	return ring, nil
}

// Len is the number of slots.
func (r *Ring) Len() int {
	return len(r.buffers)
}

// SlotSize is the aligned size of each slot's buffer.
func (r *Ring) SlotSize() int {
	return r.size
}

func (r *Ring) Slot(frameIndex int) int {
	return frameIndex % len(r.buffers)
}

// Update writes the three transforms into the slot for frameIndex.
func (r *Ring) Update(frameIndex int, model, view, proj mgl32.Mat4) error {
	return r.Write(frameIndex, UniformBlock{Model: model, View: view, Proj: proj})
}

func (r *Ring) Write(frameIndex int, block UniformBlock) error {
	if len(r.buffers) == 0 {
		return errors.AssertionFailedf("write to destroyed uniform ring")
	}
	data, err := transfer.Encode(&block)
	if err != nil {
		return err
	}
	copy(r.mapped[r.Slot(frameIndex)], data)
	return nil
}

// Binding describes slot's whole buffer for a uniform buffer descriptor.
func (r *Ring) Binding(slot int) *gpu.BufferBinding {
	return &gpu.BufferBinding{Buffer: r.buffers[slot].Buffer, Offset: 0, Range: UniformBlockSize}
}

// Destroy unmaps and releases every slot. Calling it again is a no-op.
func (r *Ring) Destroy() {
	for _, buf := range r.buffers {
		buf.Memory.Unmap()
		buf.Destroy()
	}
	r.buffers = nil
	r.mapped = nil
}
