package vega

import (
	vk "github.com/vulkan-go/vulkan"
)

type PhysicalDevice struct {
	DeviceName                 string
	VKPhysicalDevice           vk.PhysicalDevice
	VKPhysicalDeviceProperties vk.PhysicalDeviceProperties
}

func (p *PhysicalDevice) String() string {
	return p.DeviceName
}

// QueueFamilies enumerates the queue families this device exposes. Use the
// QueueFamilySlice filters to pick families for logical device creation and
// for constructing DeviceQueues.
func (p *PhysicalDevice) QueueFamilies() (QueueFamilySlice, error) {
	var queueFamilyCount uint32

	vk.GetPhysicalDeviceQueueFamilyProperties(p.VKPhysicalDevice, &queueFamilyCount, nil)

	if queueFamilyCount == 0 {
		return nil, nil
	}

	queues := make([]vk.QueueFamilyProperties, queueFamilyCount)

	vk.GetPhysicalDeviceQueueFamilyProperties(p.VKPhysicalDevice, &queueFamilyCount, queues)

	ret := make(QueueFamilySlice, queueFamilyCount)
	for i, queue := range queues {
		ret[i] = &QueueFamily{Index: i, PhysicalDevice: p, VKQueueFamilyProperties: queue}
		ret[i].VKQueueFamilyProperties.Deref()
	}

	return ret, nil

}

func (p *PhysicalDevice) VKPhysicalDeviceFeatures() vk.PhysicalDeviceFeatures {
	var deviceFeatures vk.PhysicalDeviceFeatures
	vk.GetPhysicalDeviceFeatures(p.VKPhysicalDevice, &deviceFeatures)
	return deviceFeatures
}

func (p *PhysicalDevice) SupportedExtensions() ([]vk.ExtensionProperties, error) {
	var count uint32
	err := vk.Error(vk.EnumerateDeviceExtensionProperties(p.VKPhysicalDevice, "", &count, nil))
	if err != nil {
		return nil, err
	}

	ext := make([]vk.ExtensionProperties, count)

	err = vk.Error(vk.EnumerateDeviceExtensionProperties(p.VKPhysicalDevice, "", &count, ext))
	if err != nil {
		return nil, err
	}
	return ext, nil
}

type CreateDeviceOptions struct {
	EnabledExtensions []string
	EnabledLayers     []string
}

// CreateLogicalDevice creates a logical device with one queue per given
// family.
func (p *PhysicalDevice) CreateLogicalDevice(qfs QueueFamilySlice) (*Device, error) {
	return p.CreateLogicalDeviceWithOptions(qfs, nil)
}

func (p *PhysicalDevice) CreateLogicalDeviceWithOptions(qfs QueueFamilySlice, options *CreateDeviceOptions) (*Device, error) {

	queueCreateInfos := make([]vk.DeviceQueueCreateInfo, len(qfs))
	for j, q := range qfs {
		queueCreateInfos[j] = vk.DeviceQueueCreateInfo{
			SType:            vk.StructureTypeDeviceQueueCreateInfo,
			QueueFamilyIndex: uint32(q.Index),
			QueueCount:       1,
			PQueuePriorities: []float32{1.0},
		}
	}

	deviceFeatures := p.VKPhysicalDeviceFeatures()

	deviceCreateInfo := vk.DeviceCreateInfo{
		SType:                vk.StructureTypeDeviceCreateInfo,
		QueueCreateInfoCount: uint32(len(qfs)),
		PQueueCreateInfos:    queueCreateInfos,
		PEnabledFeatures:     []vk.PhysicalDeviceFeatures{deviceFeatures},
	}

	if options != nil {
		if options.EnabledExtensions != nil {
			deviceCreateInfo.EnabledExtensionCount = uint32(len(options.EnabledExtensions))
			deviceCreateInfo.PpEnabledExtensionNames = safeStrings(options.EnabledExtensions)
		}
		if options.EnabledLayers != nil {
			deviceCreateInfo.EnabledLayerCount = uint32(len(options.EnabledLayers))
			deviceCreateInfo.PpEnabledLayerNames = safeStrings(options.EnabledLayers)
		}
	}

	var ldevice vk.Device

	err := vk.Error(vk.CreateDevice(p.VKPhysicalDevice, &deviceCreateInfo, nil, &ldevice))
	if err != nil {
		return nil, err
	}

	var device Device
	device.PhysicalDevice = p
	device.VKDevice = ldevice

	return &device, nil
}
