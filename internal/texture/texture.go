// Package texture decodes image files into tightly packed RGBA8 texels and
// uploads them as sampled textures.
package texture

import (
	"image"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"os"

	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/core/core1_0"
	"golang.org/x/exp/slog"
	"golang.org/x/image/draw"

	"github.com/vkngwrapper/vulkan-renderer/internal/gpu"
	"github.com/vkngwrapper/vulkan-renderer/internal/memory"
	"github.com/vkngwrapper/vulkan-renderer/internal/transfer"
)

// Format is the texel format every texture is uploaded in.
const Format = core1_0.FormatR8G8B8A8SRGB

// Decode reads an encoded image and returns it as straight-alpha RGBA8 with
// the origin at (0, 0) and no row padding.
func Decode(r io.Reader) (*image.NRGBA, error) {
	src, _, err := image.Decode(r)
	if err != nil {
		return nil, errors.Wrap(err, "decode texture")
	}
	return ToNRGBA(src), nil
}

// ToNRGBA converts any image to tightly packed straight-alpha RGBA8.
func ToNRGBA(src image.Image) *image.NRGBA {
	bounds := src.Bounds()
	if img, ok := src.(*image.NRGBA); ok && bounds.Min == (image.Point{}) && img.Stride == 4*bounds.Dx() {
		return img
	}
	dst := image.NewNRGBA(image.Rect(0, 0, bounds.Dx(), bounds.Dy()))
	draw.Draw(dst, dst.Bounds(), src, bounds.Min, draw.Src)
	return dst
}

// SamplerInfo is a linear, repeating sampler using the given anisotropy.
func SamplerInfo(maxAnisotropy float32) core1_0.SamplerCreateInfo {
	return core1_0.SamplerCreateInfo{
		MagFilter:    core1_0.FilterLinear,
		MinFilter:    core1_0.FilterLinear,
		AddressModeU: core1_0.SamplerAddressModeRepeat,
		AddressModeV: core1_0.SamplerAddressModeRepeat,
		AddressModeW: core1_0.SamplerAddressModeRepeat,

		AnisotropyEnable: maxAnisotropy > 1,
		MaxAnisotropy:    maxAnisotropy,

		BorderColor: core1_0.BorderColorIntOpaqueBlack,

		MipmapMode: core1_0.SamplerMipmapModeLinear,
	}
}

// Texture is a shader-readable image with its view and sampler. It is shared
// read-only by every frame in flight.
type Texture struct {
	Image   *memory.Image
	Sampler gpu.Sampler
}

// Load decodes the image file at path and uploads it.
func Load(pipe *transfer.Pipeline, path string, logger *slog.Logger) (*Texture, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "open texture %s", path)
	}
	defer f.Close()

	img, err := Decode(f)
	if err != nil {
		return nil, errors.Wrapf(err, "texture %s", path)
	}

	tex, err := Upload(pipe, img)
	if err != nil {
		return nil, errors.Wrapf(err, "texture %s", path)
	}

	if logger == nil {
		logger = slog.Default()
	}
	logger.Info("loaded texture",
		slog.String("Path", path),
		slog.Int("Width", img.Rect.Dx()),
		slog.Int("Height", img.Rect.Dy()),
	)
	return tex, nil
}

// Upload copies img into a device-local texture and creates its sampler.
func Upload(pipe *transfer.Pipeline, img *image.NRGBA) (tex *Texture, err error) {
	extent := core1_0.Extent2D{Width: img.Rect.Dx(), Height: img.Rect.Dy()}
	if extent.Width == 0 || extent.Height == 0 {
		return nil, errors.Newf("empty texture %dx%d", extent.Width, extent.Height)
	}

	uploaded, err := pipe.UploadImage(img.Pix, extent, Format)
	if err != nil {
		return nil, err
	}

	var scope gpu.Scope
	defer scope.ReleaseOnError(&err)
	scope.Add(uploaded.Destroy)

	device := pipe.Device()
	sampler, err := device.CreateSampler(SamplerInfo(device.Limits().MaxSamplerAnisotropy))
	if err != nil {
		return nil, gpu.CreationFailed(err, "create texture sampler")
	}

	return &Texture{Image: uploaded, Sampler: sampler}, nil
}

// Binding describes the texture for a combined image sampler descriptor.
func (t *Texture) Binding() *gpu.ImageBinding {
	return &gpu.ImageBinding{
		View:    t.Image.View,
		Sampler: t.Sampler,
		Layout:  core1_0.ImageLayoutShaderReadOnlyOptimal,
	}
}

// Destroy releases the sampler, view, image and memory. Calling it again is
// a no-op.
func (t *Texture) Destroy() {
	if t == nil {
		return
	}
	if t.Sampler != nil {
		t.Sampler.Destroy()
		t.Sampler = nil
	}
	t.Image.Destroy()
}
