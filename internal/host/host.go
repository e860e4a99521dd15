// Package host is the SDL2 surface provider: it owns the window, the Vulkan
// instance and device, the swapchain with its depth and MSAA images, and
// frame pacing. A renderer draws into it through the renderer.Surface
// methods.
package host

import (
	"context"

	"github.com/cockroachdb/errors"
	"github.com/veandco/go-sdl2/sdl"
	"github.com/vkngwrapper/core"
	"github.com/vkngwrapper/core/common"
	"github.com/vkngwrapper/core/core1_0"
	"github.com/vkngwrapper/extensions/ext_debug_utils"
	"github.com/vkngwrapper/extensions/khr_portability_subset"
	"github.com/vkngwrapper/extensions/khr_surface"
	"github.com/vkngwrapper/extensions/khr_swapchain"
	vkng_sdl2 "github.com/vkngwrapper/integrations/sdl2"
	"golang.org/x/exp/slog"

	"github.com/vkngwrapper/vulkan-renderer/internal/gpu"
	"github.com/vkngwrapper/vulkan-renderer/internal/memory"
	"github.com/vkngwrapper/vulkan-renderer/internal/pipeline"
	"github.com/vkngwrapper/vulkan-renderer/internal/swapchain"
	"github.com/vkngwrapper/vulkan-renderer/internal/vk"
)

var validationLayers = []string{"VK_LAYER_KHRONOS_validation"}
var deviceExtensions = []string{khr_swapchain.ExtensionName}

// VK_KHR_portability_enumeration has no package in the extensions module yet.
const portabilityEnumerationExtensionName = "VK_KHR_portability_enumeration"
const instanceCreateEnumeratePortability core1_0.InstanceCreateFlags = 0x00000001

type Options struct {
	Title  string
	Width  int
	Height int

	Validation     bool
	FramesInFlight int
	Depth          bool
	MSAA           bool
	MaxSamples     int
	// MinExtent is the smallest swapchain width or height that is drawn
	// and presented. Zero means swapchain.DefaultMinExtent.
	MinExtent int

	Logger *slog.Logger
}

type queueFamilies struct {
	graphics *int
	present  *int
}

func (q queueFamilies) complete() bool {
	return q.graphics != nil && q.present != nil
}

type swapchainSupport struct {
	capabilities *khr_surface.Capabilities
	formats      []khr_surface.Format
	presentModes []khr_surface.PresentMode
}

type Host struct {
	opts   Options
	logger *slog.Logger

	window *sdl.Window
	loader core.Loader

	instance       core1_0.Instance
	debugMessenger ext_debug_utils.Messenger
	surface        khr_surface.Surface

	physicalDevice core1_0.PhysicalDevice
	families       queueFamilies
	device         *vk.Device
	allocator      *memory.Allocator
	graphicsQueue  *vk.Queue
	presentQueue   core1_0.Queue
	commandPool    *vk.CommandPool

	surfaceFormat khr_surface.Format
	depthFormat   core1_0.Format
	samples       core1_0.SampleCountFlags

	swapchainExtension khr_swapchain.Extension
	swapchainResources

	frames         []*frameSync
	imagesInFlight []core1_0.Fence
	currentFrame   int
	imageIndex     int
	frameActive    bool

	updateRequested bool
	needsRecreate   bool
}

// New opens the window and brings up the instance, device and first
// swapchain. On failure everything created so far is destroyed.
func New(opts Options) (*Host, error) {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.FramesInFlight <= 0 {
		opts.FramesInFlight = 2
	}
	if opts.MinExtent <= 0 {
		opts.MinExtent = swapchain.DefaultMinExtent
	}
	h := &Host{opts: opts, logger: opts.Logger, samples: core1_0.Samples1}

	steps := []struct {
		name string
		fn   func() error
	}{
		{"init window", h.initWindow},
		{"create instance", h.createInstance},
		{"setup debug messenger", h.setupDebugMessenger},
		{"create surface", h.createSurface},
		{"pick physical device", h.pickPhysicalDevice},
		{"create logical device", h.createLogicalDevice},
		{"create sync objects", h.createSyncObjects},
		{"create swapchain", h.createSwapchain},
	}
	for _, step := range steps {
		if err := step.fn(); err != nil {
			h.Destroy()
			return nil, errors.Wrap(err, step.name)
		}
	}
	return h, nil
}

func (h *Host) initWindow() error {
	if err := sdl.Init(sdl.INIT_VIDEO); err != nil {
		return err
	}

	window, err := sdl.CreateWindow(h.opts.Title, sdl.WINDOWPOS_UNDEFINED, sdl.WINDOWPOS_UNDEFINED, int32(h.opts.Width), int32(h.opts.Height), sdl.WINDOW_SHOWN|sdl.WINDOW_VULKAN|sdl.WINDOW_RESIZABLE)
	if err != nil {
		return err
	}
	h.window = window

	h.loader, err = core.CreateLoaderFromProcAddr(sdl.VulkanGetVkGetInstanceProcAddr())
	return err
}

func (h *Host) createInstance() error {
	instanceOptions := core1_0.InstanceCreateInfo{
		ApplicationName:    h.opts.Title,
		ApplicationVersion: common.CreateVersion(1, 0, 0),
		EngineName:         "No Engine",
		EngineVersion:      common.CreateVersion(1, 0, 0),
		APIVersion:         common.Vulkan1_2,
	}

	sdlExtensions := h.window.VulkanGetInstanceExtensions()
	extensions, _, err := h.loader.AvailableExtensions()
	if err != nil {
		return err
	}

	for _, ext := range sdlExtensions {
		_, hasExt := extensions[ext]
		if !hasExt {
			return errors.Newf("cannot initialize sdl: missing extension %s", ext)
		}
		instanceOptions.EnabledExtensionNames = append(instanceOptions.EnabledExtensionNames, ext)
	}

	if h.opts.Validation {
		instanceOptions.EnabledExtensionNames = append(instanceOptions.EnabledExtensionNames, ext_debug_utils.ExtensionName)
	}

	_, enumerationSupported := extensions[portabilityEnumerationExtensionName]
	if enumerationSupported {
		instanceOptions.EnabledExtensionNames = append(instanceOptions.EnabledExtensionNames, portabilityEnumerationExtensionName)
		instanceOptions.Flags |= instanceCreateEnumeratePortability
	}

	if h.opts.Validation {
		layers, _, err := h.loader.AvailableLayers()
		if err != nil {
			return err
		}

		for _, layer := range validationLayers {
			_, hasValidation := layers[layer]
			if !hasValidation {
				return errors.Newf("validation layer %s not available, install the LunarG Vulkan SDK", layer)
			}
			instanceOptions.EnabledLayerNames = append(instanceOptions.EnabledLayerNames, layer)
		}

		instanceOptions.Next = h.debugMessengerOptions()
	}

	h.instance, _, err = h.loader.CreateInstance(nil, instanceOptions)
	return err
}

func (h *Host) debugMessengerOptions() ext_debug_utils.DebugUtilsMessengerCreateInfo {
	return ext_debug_utils.DebugUtilsMessengerCreateInfo{
		MessageSeverity: ext_debug_utils.SeverityError | ext_debug_utils.SeverityWarning,
		MessageType:     ext_debug_utils.TypeGeneral | ext_debug_utils.TypeValidation | ext_debug_utils.TypePerformance,
		UserCallback:    h.logDebug,
	}
}

func (h *Host) setupDebugMessenger() error {
	if !h.opts.Validation {
		return nil
	}

	var err error
	debugLoader := ext_debug_utils.CreateExtensionFromInstance(h.instance)
	h.debugMessenger, _, err = debugLoader.CreateDebugUtilsMessenger(h.instance, nil, h.debugMessengerOptions())
	return err
}

func (h *Host) logDebug(msgType ext_debug_utils.MessageTypes, severity ext_debug_utils.MessageSeverities, data *ext_debug_utils.DebugUtilsMessengerCallbackData) bool {
	level := slog.LevelWarn
	if severity&ext_debug_utils.SeverityError != 0 {
		level = slog.LevelError
	}
	h.logger.Log(context.Background(), level, data.Message,
		slog.Any("Type", msgType),
		slog.Any("Severity", severity),
	)
	return false
}

func (h *Host) createSurface() error {
	surfaceLoader := vkng_sdl2.CreateExtensionFromInstance(h.instance)

	surface, _, err := surfaceLoader.CreateSurface(h.instance, h.window)
	if err != nil {
		return err
	}

	h.surface = surface
	return nil
}

func (h *Host) pickPhysicalDevice() error {
	physicalDevices, _, err := h.instance.EnumeratePhysicalDevices()
	if err != nil {
		return err
	}

	for _, device := range physicalDevices {
		if h.isDeviceSuitable(device) {
			h.physicalDevice = device
			break
		}
	}
	if h.physicalDevice == nil {
		return errors.New("failed to find a suitable GPU")
	}

	h.families, err = h.findQueueFamilies(h.physicalDevice)
	if err != nil {
		return err
	}

	support, err := h.querySwapchainSupport(h.physicalDevice)
	if err != nil {
		return err
	}
	h.surfaceFormat = chooseSwapSurfaceFormat(support.formats)

	if h.opts.Depth {
		h.depthFormat, err = h.findDepthFormat()
		if err != nil {
			return err
		}
	}

	properties, err := h.physicalDevice.Properties()
	if err != nil {
		return err
	}
	if h.opts.MSAA {
		supported := properties.Limits.FramebufferColorSampleCounts
		if h.opts.Depth {
			supported &= properties.Limits.FramebufferDepthSampleCounts
		}
		h.samples = pipeline.ChooseSamples(supported, h.opts.MaxSamples)
	}

	h.logger.Info("picked physical device",
		slog.String("Driver", properties.DriverName),
		slog.Any("Samples", h.samples),
		slog.Any("ColorFormat", h.surfaceFormat.Format),
	)
	return nil
}

func (h *Host) isDeviceSuitable(device core1_0.PhysicalDevice) bool {
	families, err := h.findQueueFamilies(device)
	if err != nil {
		return false
	}

	extensionsSupported := checkDeviceExtensionSupport(device)

	var swapchainAdequate bool
	if extensionsSupported {
		support, err := h.querySwapchainSupport(device)
		if err != nil {
			return false
		}

		swapchainAdequate = len(support.formats) > 0 && len(support.presentModes) > 0
	}

	features := device.Features()
	return families.complete() && extensionsSupported && swapchainAdequate && features.SamplerAnisotropy
}

func checkDeviceExtensionSupport(device core1_0.PhysicalDevice) bool {
	extensions, _, err := device.EnumerateDeviceExtensionProperties()
	if err != nil {
		return false
	}

	for _, extension := range deviceExtensions {
		_, hasExtension := extensions[extension]
		if !hasExtension {
			return false
		}
	}

	return true
}

func (h *Host) findQueueFamilies(device core1_0.PhysicalDevice) (queueFamilies, error) {
	families := queueFamilies{}
	queueFamilyProperties := device.QueueFamilyProperties()

	for queueFamilyIdx, queueFamily := range queueFamilyProperties {
		if (queueFamily.QueueFlags & core1_0.QueueGraphics) != 0 {
			families.graphics = new(int)
			*families.graphics = queueFamilyIdx
		}

		supported, _, err := h.surface.PhysicalDeviceSurfaceSupport(device, queueFamilyIdx)
		if err != nil {
			return families, err
		}

		if supported {
			families.present = new(int)
			*families.present = queueFamilyIdx
		}

		if families.complete() {
			break
		}
	}

	return families, nil
}

func (h *Host) findDepthFormat() (core1_0.Format, error) {
	candidates := []core1_0.Format{core1_0.FormatD32SignedFloat, core1_0.FormatD32SignedFloatS8UnsignedInt, core1_0.FormatD24UnsignedNormalizedS8UnsignedInt}
	for _, format := range candidates {
		props := h.physicalDevice.FormatProperties(format)
		if (props.OptimalTilingFeatures & core1_0.FormatFeatureDepthStencilAttachment) != 0 {
			return format, nil
		}
	}
	return 0, errors.New("failed to find a supported depth format")
}

func (h *Host) createLogicalDevice() error {
	uniqueQueueFamilies := []int{*h.families.graphics}
	if uniqueQueueFamilies[0] != *h.families.present {
		uniqueQueueFamilies = append(uniqueQueueFamilies, *h.families.present)
	}

	var queueFamilyOptions []core1_0.DeviceQueueCreateInfo
	queuePriority := float32(1.0)
	for _, queueFamily := range uniqueQueueFamilies {
		queueFamilyOptions = append(queueFamilyOptions, core1_0.DeviceQueueCreateInfo{
			QueueFamilyIndex: queueFamily,
			QueuePriorities:  []float32{queuePriority},
		})
	}

	var extensionNames []string
	extensionNames = append(extensionNames, deviceExtensions...)

	// Portability subset is required on MoltenVK.
	extensions, _, err := h.physicalDevice.EnumerateDeviceExtensionProperties()
	if err != nil {
		return err
	}

	_, supported := extensions[khr_portability_subset.ExtensionName]
	if supported {
		extensionNames = append(extensionNames, khr_portability_subset.ExtensionName)
	}

	device, _, err := h.physicalDevice.CreateDevice(nil, core1_0.DeviceCreateInfo{
		QueueCreateInfos: queueFamilyOptions,
		EnabledFeatures: &core1_0.PhysicalDeviceFeatures{
			SamplerAnisotropy: true,
		},
		EnabledExtensionNames: extensionNames,
	})
	if err != nil {
		return err
	}

	h.device, err = vk.NewDevice(h.physicalDevice, device)
	if err != nil {
		device.Destroy(nil)
		return err
	}
	h.allocator = memory.NewAllocator(h.device, h.logger)
	h.graphicsQueue = vk.NewQueue(device.GetQueue(*h.families.graphics, 0))
	h.presentQueue = device.GetQueue(*h.families.present, 0)
	h.swapchainExtension = khr_swapchain.CreateExtensionFromDevice(device)

	h.commandPool, err = vk.NewCommandPool(h.device, *h.families.graphics)
	return err
}

// Destroy waits for the device to go idle and releases everything New
// created, newest first.
func (h *Host) Destroy() {
	if h.device != nil {
		waitIdle(h.device, h.logger)
	}

	h.releaseSwapchain()
	h.destroySyncObjects()

	if h.commandPool != nil {
		h.commandPool.Destroy()
		h.commandPool = nil
	}

	if h.device != nil {
		h.device.Handle().Destroy(nil)
		h.device = nil
	}

	if h.debugMessenger != nil {
		h.debugMessenger.Destroy(nil)
		h.debugMessenger = nil
	}

	if h.surface != nil {
		h.surface.Destroy(nil)
		h.surface = nil
	}

	if h.instance != nil {
		h.instance.Destroy(nil)
		h.instance = nil
	}

	if h.window != nil {
		h.window.Destroy()
		h.window = nil
	}
	sdl.Quit()
}

// waitIdle logs instead of failing so teardown still releases everything
// when the device was lost.
func waitIdle(device gpu.Device, logger *slog.Logger) {
	if err := device.WaitIdle(); err != nil {
		logger.Error("wait for device idle before teardown", slog.Any("Error", err))
	}
}
