package vega

import (
	"fmt"

	vk "github.com/vulkan-go/vulkan"
)

// QueueFamily identifies one of a physical device's queue families and the
// capabilities of the queues in it.
type QueueFamily struct {
	Index                   int
	PhysicalDevice          *PhysicalDevice
	VKQueueFamilyProperties vk.QueueFamilyProperties
}

func (q *QueueFamily) IsCompute() bool {
	return q.VKQueueFamilyProperties.QueueFlags&vk.QueueFlags(vk.QueueComputeBit) != 0
}

func (q *QueueFamily) IsGraphics() bool {
	return q.VKQueueFamilyProperties.QueueFlags&vk.QueueFlags(vk.QueueGraphicsBit) != 0
}

func (q *QueueFamily) IsTransfer() bool {
	return q.VKQueueFamilyProperties.QueueFlags&vk.QueueFlags(vk.QueueTransferBit) != 0
}

func (q *QueueFamily) SupportsPresent(surface vk.Surface) bool {
	var supportsPresent vk.Bool32
	vk.GetPhysicalDeviceSurfaceSupport(q.PhysicalDevice.VKPhysicalDevice, uint32(q.Index), surface, &supportsPresent)
	return supportsPresent == vk.True
}

func (q *QueueFamily) String() string {
	return fmt.Sprintf("{ Index: %d Compute: %v Graphics: %v Transfer: %v }", q.Index, q.IsCompute(), q.IsGraphics(), q.IsTransfer())
}

type QueueFamilySlice []*QueueFamily

func (ql QueueFamilySlice) Filter(f func(q *QueueFamily) bool) QueueFamilySlice {
	ret := make(QueueFamilySlice, 0)
	for _, q := range ql {
		if f(q) {
			ret = append(ret, q)
		}
	}
	return ret
}

func (ql QueueFamilySlice) FilterCompute() QueueFamilySlice {
	return ql.Filter(func(q *QueueFamily) bool {
		return q.IsCompute()
	})
}

func (ql QueueFamilySlice) FilterGraphics() QueueFamilySlice {
	return ql.Filter(func(q *QueueFamily) bool {
		return q.IsGraphics()
	})
}

func (ql QueueFamilySlice) FilterTransfer() QueueFamilySlice {
	return ql.Filter(func(q *QueueFamily) bool {
		return q.IsTransfer()
	})
}

func (ql QueueFamilySlice) FilterPresent(surface vk.Surface) QueueFamilySlice {
	return ql.Filter(func(q *QueueFamily) bool {
		return q.SupportsPresent(surface)
	})
}

func (ql QueueFamilySlice) FilterGraphicsAndPresent(surface vk.Surface) QueueFamilySlice {
	return ql.Filter(func(q *QueueFamily) bool {
		return q.IsGraphics() && q.SupportsPresent(surface)
	})
}
