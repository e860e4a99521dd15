// Package gputest provides an in-memory gpu.Device for tests.
//
// Memory is backed by byte slices and submitted command buffers are executed
// on the host, so uploads and layout transitions can be observed. Every
// handle is counted while alive and destroying a handle twice is recorded as
// a violation instead of crashing.
package gputest

import (
	"fmt"
	"sort"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/core/core1_0"

	"github.com/vkngwrapper/vulkan-renderer/internal/gpu"
)

// ErrInjected is returned by calls made to fail with Device.Fail.
var ErrInjected = errors.New("injected failure")

// DefaultMemoryTypes is a typical discrete GPU table: device-local first,
// then host-visible coherent, then a host-visible device-local window.
func DefaultMemoryTypes() gpu.MemoryProperties {
	return gpu.MemoryProperties{Types: []gpu.MemoryType{
		{PropertyFlags: core1_0.MemoryPropertyDeviceLocal},
		{PropertyFlags: core1_0.MemoryPropertyHostVisible | core1_0.MemoryPropertyHostCoherent},
		{PropertyFlags: core1_0.MemoryPropertyDeviceLocal | core1_0.MemoryPropertyHostVisible | core1_0.MemoryPropertyHostCoherent},
	}}
}

type Device struct {
	mu sync.Mutex

	Properties   gpu.MemoryProperties
	DeviceLimits gpu.Limits
	// Alignment is reported for every buffer and image.
	Alignment int

	nextID     int
	live       map[string]int
	violations []string
	failures   map[string]int
	calls      map[string]int

	RenderPasses    []core1_0.RenderPassCreateInfo
	Pipelines       []gpu.GraphicsPipelineInfo
	Framebuffers    []gpu.FramebufferInfo
	Samplers        []core1_0.SamplerCreateInfo
	SetLayouts      [][]core1_0.DescriptorSetLayoutBinding
	DescriptorPools []int
	Writes          []gpu.DescriptorWrite
	WaitIdleCalls   int
}

func NewDevice() *Device {
	return &Device{
		Properties: DefaultMemoryTypes(),
		DeviceLimits: gpu.Limits{
			MinUniformBufferOffsetAlignment: 256,
			MaxSamplerAnisotropy:            16,
		},
		Alignment: 16,
		live:      map[string]int{},
		failures:  map[string]int{},
		calls:     map[string]int{},
	}
}

// Fail makes the named method fail once it has succeeded after times.
func (d *Device) Fail(method string, after int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.failures[method] = after
}

func (d *Device) call(method string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls[method]++
	after, ok := d.failures[method]
	if !ok {
		return nil
	}
	if after <= 0 {
		delete(d.failures, method)
		return errors.Wrapf(ErrInjected, "%s", method)
	}
	d.failures[method] = after - 1
	return nil
}

// Calls reports how many times method was invoked.
func (d *Device) Calls(method string) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.calls[method]
}

// Live reports the number of handles of the given kind not yet destroyed.
func (d *Device) Live(kind string) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.live[kind]
}

// LiveTotal reports every live handle kind with a non-zero count.
func (d *Device) LiveTotal() map[string]int {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := map[string]int{}
	for kind, n := range d.live {
		if n != 0 {
			out[kind] = n
		}
	}
	return out
}

// Violations lists misuse such as double destruction or bad layouts.
func (d *Device) Violations() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := append([]string(nil), d.violations...)
	sort.Strings(out)
	return out
}

func (d *Device) violate(format string, args ...interface{}) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.violations = append(d.violations, fmt.Sprintf(format, args...))
}

type handle struct {
	dev       *Device
	kind      string
	id        int
	destroyed bool
}

func (d *Device) newHandle(kind string) handle {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.nextID++
	d.live[kind]++
	return handle{dev: d, kind: kind, id: d.nextID}
}

func (h *handle) Destroy() {
	h.dev.mu.Lock()
	defer h.dev.mu.Unlock()
	if h.destroyed {
		h.dev.violations = append(h.dev.violations, fmt.Sprintf("%s %d destroyed twice", h.kind, h.id))
		return
	}
	h.destroyed = true
	h.dev.live[h.kind]--
}

func (h *handle) String() string {
	return fmt.Sprintf("%s#%d", h.kind, h.id)
}

func (h *handle) Destroyed() bool {
	h.dev.mu.Lock()
	defer h.dev.mu.Unlock()
	return h.destroyed
}

func (d *Device) MemoryProperties() gpu.MemoryProperties {
	return d.Properties
}

func (d *Device) Limits() gpu.Limits {
	return d.DeviceLimits
}

func (d *Device) requirements(size int) gpu.Requirements {
	bits := uint32(0)
	for i := range d.Properties.Types {
		bits |= 1 << uint(i)
	}
	return gpu.Requirements{Size: size, Alignment: d.Alignment, MemoryTypeBits: bits}
}

func (d *Device) CreateBuffer(size int, usage core1_0.BufferUsageFlags) (gpu.Buffer, error) {
	if err := d.call("CreateBuffer"); err != nil {
		return nil, err
	}
	if size <= 0 {
		return nil, errors.Newf("buffer size %d", size)
	}
	return &Buffer{handle: d.newHandle("Buffer"), Size: size, Usage: usage}, nil
}

func (d *Device) CreateImage(info gpu.ImageInfo) (gpu.Image, error) {
	if err := d.call("CreateImage"); err != nil {
		return nil, err
	}
	if info.Extent.Width <= 0 || info.Extent.Height <= 0 {
		return nil, errors.Newf("image extent %dx%d", info.Extent.Width, info.Extent.Height)
	}
	return &Image{handle: d.newHandle("Image"), Info: info, Layout: core1_0.ImageLayoutUndefined}, nil
}

func (d *Device) AllocateMemory(size int, memoryTypeIndex int) (gpu.Memory, error) {
	if err := d.call("AllocateMemory"); err != nil {
		return nil, err
	}
	if memoryTypeIndex < 0 || memoryTypeIndex >= len(d.Properties.Types) {
		return nil, errors.Newf("memory type %d out of range", memoryTypeIndex)
	}
	return &Memory{
		handle:    d.newHandle("Memory"),
		Bytes:     make([]byte, size),
		TypeIndex: memoryTypeIndex,
		flags:     d.Properties.Types[memoryTypeIndex].PropertyFlags,
	}, nil
}

func (d *Device) CreateImageView(image gpu.Image, format core1_0.Format, aspect core1_0.ImageAspectFlags) (gpu.ImageView, error) {
	if err := d.call("CreateImageView"); err != nil {
		return nil, err
	}
	return &ImageView{handle: d.newHandle("ImageView"), Image: image, Format: format, Aspect: aspect}, nil
}

func (d *Device) CreateSampler(info core1_0.SamplerCreateInfo) (gpu.Sampler, error) {
	if err := d.call("CreateSampler"); err != nil {
		return nil, err
	}
	d.mu.Lock()
	d.Samplers = append(d.Samplers, info)
	d.mu.Unlock()
	return &Handle{handle: d.newHandle("Sampler")}, nil
}

func (d *Device) CreateShaderModule(code []uint32) (gpu.ShaderModule, error) {
	if err := d.call("CreateShaderModule"); err != nil {
		return nil, err
	}
	if len(code) == 0 {
		return nil, errors.New("empty shader code")
	}
	return &ShaderModule{handle: d.newHandle("ShaderModule"), Code: code}, nil
}

func (d *Device) CreateRenderPass(info core1_0.RenderPassCreateInfo) (gpu.RenderPass, error) {
	if err := d.call("CreateRenderPass"); err != nil {
		return nil, err
	}
	d.mu.Lock()
	d.RenderPasses = append(d.RenderPasses, info)
	d.mu.Unlock()
	return &Handle{handle: d.newHandle("RenderPass")}, nil
}

func (d *Device) CreatePipelineLayout(setLayouts ...gpu.DescriptorSetLayout) (gpu.PipelineLayout, error) {
	if err := d.call("CreatePipelineLayout"); err != nil {
		return nil, err
	}
	return &Handle{handle: d.newHandle("PipelineLayout")}, nil
}

func (d *Device) CreateGraphicsPipeline(info gpu.GraphicsPipelineInfo) (gpu.Pipeline, error) {
	if err := d.call("CreateGraphicsPipeline"); err != nil {
		return nil, err
	}
	d.mu.Lock()
	d.Pipelines = append(d.Pipelines, info)
	d.mu.Unlock()
	return &Handle{handle: d.newHandle("Pipeline")}, nil
}

func (d *Device) CreateFramebuffer(info gpu.FramebufferInfo) (gpu.Framebuffer, error) {
	if err := d.call("CreateFramebuffer"); err != nil {
		return nil, err
	}
	d.mu.Lock()
	d.Framebuffers = append(d.Framebuffers, info)
	d.mu.Unlock()
	return &Framebuffer{handle: d.newHandle("Framebuffer"), Info: info}, nil
}

func (d *Device) CreateDescriptorSetLayout(bindings []core1_0.DescriptorSetLayoutBinding) (gpu.DescriptorSetLayout, error) {
	if err := d.call("CreateDescriptorSetLayout"); err != nil {
		return nil, err
	}
	d.mu.Lock()
	d.SetLayouts = append(d.SetLayouts, bindings)
	d.mu.Unlock()
	return &Handle{handle: d.newHandle("DescriptorSetLayout")}, nil
}

func (d *Device) CreateDescriptorPool(maxSets int, sizes []core1_0.DescriptorPoolSize) (gpu.DescriptorPool, error) {
	if err := d.call("CreateDescriptorPool"); err != nil {
		return nil, err
	}
	d.mu.Lock()
	d.DescriptorPools = append(d.DescriptorPools, maxSets)
	d.mu.Unlock()
	return &DescriptorPool{handle: d.newHandle("DescriptorPool"), MaxSets: maxSets}, nil
}

func (d *Device) UpdateDescriptorSets(writes ...gpu.DescriptorWrite) error {
	if err := d.call("UpdateDescriptorSets"); err != nil {
		return err
	}
	for _, w := range writes {
		if (w.Buffer == nil) == (w.Image == nil) {
			d.violate("descriptor write for binding %d must set exactly one of buffer or image", w.Binding)
		}
	}
	d.mu.Lock()
	d.Writes = append(d.Writes, writes...)
	d.mu.Unlock()
	return nil
}

func (d *Device) WaitIdle() error {
	if err := d.call("WaitIdle"); err != nil {
		return err
	}
	d.mu.Lock()
	d.WaitIdleCalls++
	d.mu.Unlock()
	return nil
}
