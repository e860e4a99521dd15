package descriptor

import (
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/vkngwrapper/core/core1_0"

	"github.com/vkngwrapper/vulkan-renderer/internal/gpu"
	"github.com/vkngwrapper/vulkan-renderer/internal/gpu/gputest"
)

func TestPoolSizesScaleWithSetCount(t *testing.T) {
	sizes := PoolSizes(DefaultBindings(), 3)
	require.ElementsMatch(t, []core1_0.DescriptorPoolSize{
		{Type: core1_0.DescriptorTypeUniformBuffer, DescriptorCount: 3},
		{Type: core1_0.DescriptorTypeCombinedImageSampler, DescriptorCount: 3},
	}, sizes)
}

func TestBuildAllocatesOneSetPerFrame(t *testing.T) {
	dev := gputest.NewDevice()
	reg, err := Build(dev, DefaultBindings(), 2)
	require.NoError(t, err)

	require.Equal(t, 2, reg.Len())
	require.Equal(t, []int{2}, dev.DescriptorPools)
	require.Same(t, reg.Set(0), reg.Set(2))
	require.NotSame(t, reg.Set(0), reg.Set(1))
	require.Equal(t, reg.Layout(), reg.Set(1).Layout())

	reg.Destroy()
	reg.Destroy()
	require.Empty(t, dev.LiveTotal())
	require.Empty(t, dev.Violations())
}

func TestWritePointsBindingsAtFrameResources(t *testing.T) {
	dev := gputest.NewDevice()
	reg, err := Build(dev, DefaultBindings(), 2)
	require.NoError(t, err)
	defer reg.Destroy()

	buffer := &gpu.BufferBinding{Range: 192}
	image := &gpu.ImageBinding{Layout: core1_0.ImageLayoutShaderReadOnlyOptimal}
	require.NoError(t, reg.Write(1, buffer, image))

	require.Len(t, dev.Writes, 2)
	require.Equal(t, UniformBinding, dev.Writes[0].Binding)
	require.Same(t, buffer, dev.Writes[0].Buffer)
	require.Nil(t, dev.Writes[0].Image)
	require.Equal(t, TextureBinding, dev.Writes[1].Binding)
	require.Same(t, image, dev.Writes[1].Image)
	for _, w := range dev.Writes {
		require.Same(t, reg.Set(1), w.Set)
	}
	require.Empty(t, dev.Violations())
}

func TestWriteMissingResource(t *testing.T) {
	dev := gputest.NewDevice()
	reg, err := Build(dev, DefaultBindings(), 1)
	require.NoError(t, err)
	defer reg.Destroy()

	require.Error(t, reg.Write(0, &gpu.BufferBinding{}, nil))
	require.Empty(t, dev.Writes)
}

func TestBuildFailureReleasesLayout(t *testing.T) {
	dev := gputest.NewDevice()
	dev.Fail("CreateDescriptorPool", 0)

	_, err := Build(dev, DefaultBindings(), 2)
	require.Error(t, err)
	require.Empty(t, dev.LiveTotal())
}
