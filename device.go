package vega

import (
	"fmt"

	vk "github.com/vulkan-go/vulkan"
)

type Device struct {
	PhysicalDevice *PhysicalDevice
	VKDevice       vk.Device
}

func (d *Device) Destroy() {
	vk.DestroyDevice(d.VKDevice, nil)
}

func (d *Device) String() string {
	return fmt.Sprintf("{ PhysicalDevice: %s }", d.PhysicalDevice)
}

func (d *Device) WaitIdle() {
	vk.DeviceWaitIdle(d.VKDevice)
}

// NewDeviceQueue retrieves the first native queue of the given family and
// wraps it in a DeviceQueue which tracks submissions made through it.
func (d *Device) NewDeviceQueue(qf *QueueFamily) *DeviceQueue {
	return d.NewDeviceQueueAt(qf, 0)
}

// NewDeviceQueueAt is NewDeviceQueue for a specific queue index within the
// family.
func (d *Device) NewDeviceQueueAt(qf *QueueFamily, index int) *DeviceQueue {

	var vkq vk.Queue

	vk.GetDeviceQueue(d.VKDevice, uint32(qf.Index), uint32(index), &vkq)

	q := &DeviceQueue{
		Device:      d,
		QueueFamily: qf,
		VKQueue:     vkq,
	}

	q.newFence = func() (queueFence, error) {
		return d.CreateFence(false)
	}
	q.submit = func(submits []vk.SubmitInfo, fence vk.Fence) vk.Result {
		return vk.QueueSubmit(q.VKQueue, uint32(len(submits)), submits, fence)
	}
	q.present = func(info *vk.PresentInfo) vk.Result {
		return vk.QueuePresent(q.VKQueue, info)
	}
	q.waitIdle = func() vk.Result {
		return vk.QueueWaitIdle(q.VKQueue)
	}

	return q
}
