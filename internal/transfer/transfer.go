// Package transfer moves host data into device-local buffers and images
// through host-visible staging buffers and single-use command buffers.
//
// Every operation here blocks until the queue is idle. They are meant for
// load time only, never for the per-frame path.
package transfer

import (
	"bytes"
	"encoding/binary"

	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/core/common"
	"github.com/vkngwrapper/core/core1_0"
	"golang.org/x/exp/slog"

	"github.com/vkngwrapper/vulkan-renderer/internal/gpu"
	"github.com/vkngwrapper/vulkan-renderer/internal/memory"
)

const stagingProperties = core1_0.MemoryPropertyHostVisible | core1_0.MemoryPropertyHostCoherent

type Pipeline struct {
	allocator *memory.Allocator
	pool      gpu.CommandPool
	queue     gpu.Queue
	logger    *slog.Logger
}

func New(allocator *memory.Allocator, pool gpu.CommandPool, queue gpu.Queue, logger *slog.Logger) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{allocator: allocator, pool: pool, queue: queue, logger: logger}
}

func (p *Pipeline) Device() gpu.Device {
	return p.allocator.Device()
}

// Encode lays data out in device byte order, as binary.Write would.
func Encode(data any) ([]byte, error) {
	buf := &bytes.Buffer{}
	if err := binary.Write(buf, common.ByteOrder, data); err != nil {
		return nil, errors.Wrap(err, "encode host data")
	}
	return buf.Bytes(), nil
}

// RunOnce records into a freshly allocated command buffer begun with the
// one-time-submit hint, submits it, waits for the queue to drain and frees
// the buffer.
func (p *Pipeline) RunOnce(record func(cb gpu.CommandBuffer) error) error {
	cb, err := p.pool.AllocateCommandBuffer()
	if err != nil {
		return gpu.CreationFailed(err, "allocate single-use command buffer")
	}
	defer p.pool.FreeCommandBuffers(cb)

	if err := cb.Begin(true); err != nil {
		return errors.Wrap(err, "begin single-use command buffer")
	}
	if err := record(cb); err != nil {
		return err
	}
	if err := cb.End(); err != nil {
		return errors.Wrap(err, "end single-use command buffer")
	}

	if err := p.queue.Submit(cb); err != nil {
		return errors.Wrap(err, "submit single-use command buffer")
	}
	return errors.Wrap(p.queue.WaitIdle(), "wait for transfer queue")
}

func (p *Pipeline) stage(data []byte) (*memory.Buffer, error) {
	staging, err := p.allocator.CreateBuffer(len(data), core1_0.BufferUsageTransferSrc, stagingProperties)
	if err != nil {
		return nil, errors.Wrap(err, "staging buffer")
	}
	if err := staging.Write(data); err != nil {
		staging.Destroy()
		return nil, err
	}
	return staging, nil
}

// Upload copies data into a new device-local buffer whose usage is usage
// plus TransferDst.
func (p *Pipeline) Upload(data []byte, usage core1_0.BufferUsageFlags) (buf *memory.Buffer, err error) {
	if len(data) == 0 {
		return nil, errors.AssertionFailedf("upload of zero bytes")
	}

	staging, err := p.stage(data)
	if err != nil {
		return nil, err
	}
	defer staging.Destroy()

	buf, err = p.allocator.CreateBuffer(len(data), usage|core1_0.BufferUsageTransferDst, core1_0.MemoryPropertyDeviceLocal)
	if err != nil {
		return nil, err
	}

	var scope gpu.Scope
	defer scope.ReleaseOnError(&err)
	scope.Add(buf.Destroy)

	err = p.RunOnce(func(cb gpu.CommandBuffer) error {
		return cb.CmdCopyBuffer(staging.Buffer, buf.Buffer, len(data))
	})
	if err != nil {
		return nil, err
	}

	p.logger.Debug("uploaded buffer", slog.Int("Size", len(data)))
	return buf, nil
}

// UploadImage copies tightly packed texels into a new device-local sampled
// image, leaving it in ShaderReadOnlyOptimal layout with a colour view.
func (p *Pipeline) UploadImage(pixels []byte, extent core1_0.Extent2D, format core1_0.Format) (img *memory.Image, err error) {
	if len(pixels) == 0 {
		return nil, errors.AssertionFailedf("image upload of zero bytes")
	}

	staging, err := p.stage(pixels)
	if err != nil {
		return nil, err
	}
	defer staging.Destroy()

	img, err = p.allocator.CreateViewedImage(gpu.ImageInfo{
		Extent:  extent,
		Format:  format,
		Usage:   core1_0.ImageUsageTransferDst | core1_0.ImageUsageSampled,
		Samples: core1_0.Samples1,
		Tiling:  core1_0.ImageTilingOptimal,
	}, core1_0.ImageAspectColor)
	if err != nil {
		return nil, err
	}

	var scope gpu.Scope
	defer scope.ReleaseOnError(&err)
	scope.Add(img.Destroy)

	toTransfer, err := Barrier(img.Image, core1_0.ImageLayoutUndefined, core1_0.ImageLayoutTransferDstOptimal)
	if err != nil {
		return nil, err
	}
	toShader, err := Barrier(img.Image, core1_0.ImageLayoutTransferDstOptimal, core1_0.ImageLayoutShaderReadOnlyOptimal)
	if err != nil {
		return nil, err
	}

	err = p.RunOnce(func(cb gpu.CommandBuffer) error {
		if err := cb.CmdImageBarrier(toTransfer); err != nil {
			return err
		}
		if err := cb.CmdCopyBufferToImage(staging.Buffer, img.Image, extent); err != nil {
			return err
		}
		return cb.CmdImageBarrier(toShader)
	})
	if err != nil {
		return nil, err
	}

	p.logger.Debug("uploaded image",
		slog.Int("Width", extent.Width),
		slog.Int("Height", extent.Height),
	)
	return img, nil
}

// TransitionImageLayout moves a colour image between layouts in its own
// single-use command buffer.
func (p *Pipeline) TransitionImageLayout(image gpu.Image, oldLayout, newLayout core1_0.ImageLayout) error {
	barrier, err := Barrier(image, oldLayout, newLayout)
	if err != nil {
		return err
	}
	return p.RunOnce(func(cb gpu.CommandBuffer) error {
		return cb.CmdImageBarrier(barrier)
	})
}

// ReadBack copies a device buffer into host memory. The buffer must have
// been created with TransferSrc usage.
func (p *Pipeline) ReadBack(src *memory.Buffer) ([]byte, error) {
	staging, err := p.allocator.CreateBuffer(src.Size, core1_0.BufferUsageTransferDst, stagingProperties)
	if err != nil {
		return nil, errors.Wrap(err, "readback buffer")
	}
	defer staging.Destroy()

	err = p.RunOnce(func(cb gpu.CommandBuffer) error {
		return cb.CmdCopyBuffer(src.Buffer, staging.Buffer, src.Size)
	})
	if err != nil {
		return nil, err
	}
	return staging.Read()
}

// Barrier returns the access masks and stages for one of the two supported
// colour layout transitions. Any other pair is a programmer error.
func Barrier(image gpu.Image, oldLayout, newLayout core1_0.ImageLayout) (gpu.ImageBarrier, error) {
	barrier := gpu.ImageBarrier{
		Image:     image,
		OldLayout: oldLayout,
		NewLayout: newLayout,
		Aspect:    core1_0.ImageAspectColor,
	}

	switch {
	case oldLayout == core1_0.ImageLayoutUndefined && newLayout == core1_0.ImageLayoutTransferDstOptimal:
		barrier.DstAccess = core1_0.AccessTransferWrite
		barrier.SrcStage = core1_0.PipelineStageTopOfPipe
		barrier.DstStage = core1_0.PipelineStageTransfer
	case oldLayout == core1_0.ImageLayoutTransferDstOptimal && newLayout == core1_0.ImageLayoutShaderReadOnlyOptimal:
		barrier.SrcAccess = core1_0.AccessTransferWrite
		barrier.DstAccess = core1_0.AccessShaderRead
		barrier.SrcStage = core1_0.PipelineStageTransfer
		barrier.DstStage = core1_0.PipelineStageFragmentShader
	default:
		return gpu.ImageBarrier{}, errors.Mark(
			errors.AssertionFailedf("unexpected layout transition %v -> %v", oldLayout, newLayout),
			gpu.ErrUnsupportedLayoutTransition,
		)
	}
	return barrier, nil
}
