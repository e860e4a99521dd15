package texture

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/vkngwrapper/core/core1_0"

	"github.com/vkngwrapper/vulkan-renderer/internal/gpu/gputest"
	"github.com/vkngwrapper/vulkan-renderer/internal/memory"
	"github.com/vkngwrapper/vulkan-renderer/internal/transfer"
)

func checker() *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, 3, 2))
	for y := 0; y < 2; y++ {
		for x := 0; x < 3; x++ {
			img.SetNRGBA(x, y, color.NRGBA{R: uint8(x * 80), G: uint8(y * 200), B: 7, A: 128})
		}
	}
	return img
}

func encodePNG(t *testing.T, img image.Image) []byte {
	buf := &bytes.Buffer{}
	require.NoError(t, png.Encode(buf, img))
	return buf.Bytes()
}

func TestDecodeKeepsStraightAlpha(t *testing.T) {
	want := checker()
	got, err := Decode(bytes.NewReader(encodePNG(t, want)))
	require.NoError(t, err)
	require.Equal(t, image.Rect(0, 0, 3, 2), got.Rect)
	require.Equal(t, want.Pix, got.Pix)
}

// Every column of a non-square image with a non-zero origin is kept.
func TestToNRGBANonSquareOffset(t *testing.T) {
	src := image.NewRGBA(image.Rect(10, 20, 14, 21))
	src.Set(13, 20, color.RGBA{R: 255, A: 255})

	dst := ToNRGBA(src)
	require.Equal(t, image.Rect(0, 0, 4, 1), dst.Rect)
	require.Len(t, dst.Pix, 16)
	require.Equal(t, []byte{255, 0, 0, 255}, dst.Pix[12:16])
}

func TestDecodeGarbage(t *testing.T) {
	_, err := Decode(bytes.NewReader([]byte("not an image")))
	require.Error(t, err)
}

func newPipeline() (*gputest.Device, *transfer.Pipeline) {
	dev := gputest.NewDevice()
	return dev, transfer.New(memory.NewAllocator(dev, nil), gputest.NewCommandPool(dev), gputest.NewQueue(dev), nil)
}

func TestLoadUploadsTexture(t *testing.T) {
	dev, pipe := newPipeline()
	dev.DeviceLimits.MaxSamplerAnisotropy = 8

	path := filepath.Join(t.TempDir(), "checker.png")
	require.NoError(t, os.WriteFile(path, encodePNG(t, checker()), 0o644))

	tex, err := Load(pipe, path, nil)
	require.NoError(t, err)

	img := tex.Image.Image.(*gputest.Image)
	require.Equal(t, core1_0.ImageLayoutShaderReadOnlyOptimal, img.Layout)
	require.Equal(t, Format, img.Info.Format)
	require.Equal(t, checker().Pix, img.Pixels())

	require.Len(t, dev.Samplers, 1)
	require.Equal(t, float32(8), dev.Samplers[0].MaxAnisotropy)
	require.True(t, dev.Samplers[0].AnisotropyEnable)

	binding := tex.Binding()
	require.Equal(t, core1_0.ImageLayoutShaderReadOnlyOptimal, binding.Layout)
	require.Equal(t, tex.Sampler, binding.Sampler)

	tex.Destroy()
	tex.Destroy()
	require.Empty(t, dev.LiveTotal())
	require.Empty(t, dev.Violations())
}

func TestLoadMissingFile(t *testing.T) {
	dev, pipe := newPipeline()
	_, err := Load(pipe, filepath.Join(t.TempDir(), "missing.png"), nil)
	require.Error(t, err)
	require.Empty(t, dev.LiveTotal())
}

func TestUploadSamplerFailureReleasesImage(t *testing.T) {
	dev, pipe := newPipeline()
	dev.Fail("CreateSampler", 0)

	_, err := Upload(pipe, checker())
	require.Error(t, err)
	require.Empty(t, dev.LiveTotal())
}
