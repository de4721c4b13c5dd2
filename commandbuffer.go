package vega

import (
	vk "github.com/vulkan-go/vulkan"
)

// CommandBuffer describes a sequence of commands that will be executed upon
// being sent to a device queue. Recording uses the native vulkan command
// APIs; this package only wraps the lifecycle calls it needs.
type CommandBuffer struct {
	VKCommandBuffer vk.CommandBuffer
}

// VK is a utility function for accessing the native vulkan command buffer
func (c *CommandBuffer) VK() vk.CommandBuffer {
	return c.VKCommandBuffer
}

// Reset this command buffer
func (c *CommandBuffer) Reset() error {
	return vk.Error(vk.ResetCommandBuffer(c.VKCommandBuffer, 0))
}

// ResetAndRelease will reset this commandbuffer and release the associated resources
func (c *CommandBuffer) ResetAndRelease() error {
	return vk.Error(vk.ResetCommandBuffer(c.VKCommandBuffer, vk.CommandBufferResetFlags(vk.CommandBufferResetReleaseResourcesBit)))
}

// Begin capturing work for this command buffer
func (c *CommandBuffer) Begin() error {
	var beginInfo = vk.CommandBufferBeginInfo{}
	beginInfo.SType = vk.StructureTypeCommandBufferBeginInfo
	beginInfo.Flags = 0
	return vk.Error(vk.BeginCommandBuffer(c.VKCommandBuffer, &beginInfo))
}

// BeginOneTime begins capturing work for this command buffer, with the
// stipulation that it will be submitted exactly once.
func (c *CommandBuffer) BeginOneTime() error {
	var beginInfo = vk.CommandBufferBeginInfo{}
	beginInfo.SType = vk.StructureTypeCommandBufferBeginInfo
	beginInfo.Flags = vk.CommandBufferUsageFlags(vk.CommandBufferUsageOneTimeSubmitBit)
	return vk.Error(vk.BeginCommandBuffer(c.VKCommandBuffer, &beginInfo))
}

// End describing work for this command buffer
func (c *CommandBuffer) End() error {
	return vk.Error(vk.EndCommandBuffer(c.VKCommandBuffer))
}
