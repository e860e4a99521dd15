// Package descriptor owns the descriptor pool, the shared set layout and one
// descriptor set per frame in flight.
package descriptor

import (
	"sort"

	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/core/core1_0"

	"github.com/vkngwrapper/vulkan-renderer/internal/gpu"
)

const (
	UniformBinding = 0
	TextureBinding = 1
)

// DefaultBindings is the layout the bundled shaders expect: the transform
// block for the vertex stage and the texture for the fragment stage.
func DefaultBindings() []core1_0.DescriptorSetLayoutBinding {
	return []core1_0.DescriptorSetLayoutBinding{
		{
			Binding:         UniformBinding,
			DescriptorType:  core1_0.DescriptorTypeUniformBuffer,
			DescriptorCount: 1,

			StageFlags: core1_0.StageVertex,
		},
		{
			Binding:         TextureBinding,
			DescriptorType:  core1_0.DescriptorTypeCombinedImageSampler,
			DescriptorCount: 1,

			StageFlags: core1_0.StageFragment,
		},
	}
}

type Registry struct {
	device   gpu.Device
	bindings []core1_0.DescriptorSetLayoutBinding

	layout gpu.DescriptorSetLayout
	pool   gpu.DescriptorPool
	sets   []gpu.DescriptorSet
}

// PoolSizes sums descriptor counts per type across bindings, for n sets.
func PoolSizes(bindings []core1_0.DescriptorSetLayoutBinding, n int) []core1_0.DescriptorPoolSize {
	counts := map[core1_0.DescriptorType]int{}
	for _, b := range bindings {
		counts[b.DescriptorType] += b.DescriptorCount * n
	}

	sizes := make([]core1_0.DescriptorPoolSize, 0, len(counts))
	for t, count := range counts {
		sizes = append(sizes, core1_0.DescriptorPoolSize{Type: t, DescriptorCount: count})
	}
	sort.Slice(sizes, func(i, j int) bool { return sizes[i].Type < sizes[j].Type })
	return sizes
}

// Build creates the layout, a pool sized for n sets and the n sets.
func Build(device gpu.Device, bindings []core1_0.DescriptorSetLayoutBinding, n int) (reg *Registry, err error) {
	if n <= 0 {
		return nil, errors.AssertionFailedf("descriptor registry of %d sets", n)
	}

	var scope gpu.Scope
	defer scope.ReleaseOnError(&err)

	reg = &Registry{device: device, bindings: bindings}

	reg.layout, err = device.CreateDescriptorSetLayout(bindings)
	if err != nil {
		return nil, gpu.CreationFailed(err, "create descriptor set layout")
	}
	scope.Track(reg.layout)

	reg.pool, err = device.CreateDescriptorPool(n, PoolSizes(bindings, n))
	if err != nil {
		return nil, gpu.CreationFailed(err, "create descriptor pool for %d sets", n)
	}
	scope.Track(reg.pool)

	reg.sets, err = reg.pool.AllocateSets(reg.layout, n)
	if err != nil {
		return nil, gpu.CreationFailed(err, "allocate %d descriptor sets", n)
	}

	return reg, nil
}

func (r *Registry) Layout() gpu.DescriptorSetLayout {
	return r.layout
}

func (r *Registry) Len() int {
	return len(r.sets)
}

// Set returns the descriptor set for frameIndex mod N.
func (r *Registry) Set(frameIndex int) gpu.DescriptorSet {
	return r.sets[frameIndex%len(r.sets)]
}

// Write points every binding of the set for frameIndex at buffer or image,
// according to the binding's descriptor type. It is called once per set at
// setup; only buffer contents change afterwards.
func (r *Registry) Write(frameIndex int, buffer *gpu.BufferBinding, image *gpu.ImageBinding) error {
	if len(r.sets) == 0 {
		return errors.AssertionFailedf("write to destroyed descriptor registry")
	}
	set := r.Set(frameIndex)

	writes := make([]gpu.DescriptorWrite, 0, len(r.bindings))
	for _, b := range r.bindings {
		w := gpu.DescriptorWrite{Set: set, Binding: b.Binding, Type: b.DescriptorType}
		switch b.DescriptorType {
		case core1_0.DescriptorTypeUniformBuffer:
			if buffer == nil {
				return errors.AssertionFailedf("binding %d needs a buffer", b.Binding)
			}
			w.Buffer = buffer
		case core1_0.DescriptorTypeCombinedImageSampler:
			if image == nil {
				return errors.AssertionFailedf("binding %d needs an image", b.Binding)
			}
			w.Image = image
		default:
			return errors.AssertionFailedf("binding %d has unsupported descriptor type %v", b.Binding, b.DescriptorType)
		}
		writes = append(writes, w)
	}

	return errors.Wrapf(r.device.UpdateDescriptorSets(writes...), "update descriptor set %d", frameIndex)
}

// Destroy releases the pool, which frees every set, then the layout.
// Calling it again is a no-op.
func (r *Registry) Destroy() {
	if r.pool != nil {
		r.pool.Destroy()
		r.pool = nil
	}
	if r.layout != nil {
		r.layout.Destroy()
		r.layout = nil
	}
	r.sets = nil
}
