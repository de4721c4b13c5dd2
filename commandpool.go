package vega

import (
	vk "github.com/vulkan-go/vulkan"
)

// CommandPool allocates the command buffers that are submitted through a
// DeviceQueue. The pool is tied to one queue family; buffers it allocates
// may only be submitted to queues of that family.
type CommandPool struct {
	Device        *Device
	QueueFamily   *QueueFamily
	VKCommandPool vk.CommandPool
}

func (d *Device) CreateCommandPool(qf *QueueFamily) (*CommandPool, error) {
	var commandPoolCreateInfo = vk.CommandPoolCreateInfo{}
	commandPoolCreateInfo.SType = vk.StructureTypeCommandPoolCreateInfo
	commandPoolCreateInfo.Flags = vk.CommandPoolCreateFlags(vk.CommandPoolCreateResetCommandBufferBit | vk.CommandPoolCreateTransientBit)
	commandPoolCreateInfo.QueueFamilyIndex = uint32(qf.Index)

	var commandPool vk.CommandPool

	err := vk.Error(vk.CreateCommandPool(d.VKDevice, &commandPoolCreateInfo, nil, &commandPool))
	if err != nil {
		return nil, err
	}

	var ret CommandPool
	ret.Device = d
	ret.QueueFamily = qf
	ret.VKCommandPool = commandPool

	return &ret, nil

}

func (c *CommandPool) Destroy() {
	vk.DestroyCommandPool(c.Device.VKDevice, c.VKCommandPool, nil)
}

func (c *CommandPool) AllocateBuffers(count int) ([]*CommandBuffer, error) {

	var commandBufferAllocateInfo = vk.CommandBufferAllocateInfo{}
	commandBufferAllocateInfo.SType = vk.StructureTypeCommandBufferAllocateInfo
	commandBufferAllocateInfo.CommandPool = c.VKCommandPool
	commandBufferAllocateInfo.Level = vk.CommandBufferLevelPrimary
	commandBufferAllocateInfo.CommandBufferCount = uint32(count)

	cmdBuffers := make([]vk.CommandBuffer, count)

	err := vk.Error(vk.AllocateCommandBuffers(c.Device.VKDevice, &commandBufferAllocateInfo, cmdBuffers))
	if err != nil {
		return nil, err
	}

	ret := make([]*CommandBuffer, count)
	for i := range ret {
		ret[i] = &CommandBuffer{VKCommandBuffer: cmdBuffers[i]}
	}

	return ret, nil

}

func (c *CommandPool) AllocateBuffer() (*CommandBuffer, error) {
	ret, err := c.AllocateBuffers(1)
	if err != nil {
		return nil, err
	}
	return ret[0], nil
}

func (c *CommandPool) FreeBuffers(bs []*CommandBuffer) {
	b := make([]vk.CommandBuffer, len(bs))
	for i := range bs {
		b[i] = bs[i].VKCommandBuffer
	}
	vk.FreeCommandBuffers(c.Device.VKDevice, c.VKCommandPool, uint32(len(bs)), b)
}

func (c *CommandPool) FreeBuffer(b *CommandBuffer) {
	vk.FreeCommandBuffers(c.Device.VKDevice, c.VKCommandPool, 1, []vk.CommandBuffer{b.VKCommandBuffer})
}
