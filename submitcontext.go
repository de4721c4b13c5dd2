package vega

import (
	"fmt"

	vk "github.com/vulkan-go/vulkan"
)

// queueFence is the completion primitive a SubmitContext polls. *Fence is the
// implementation used against a real device.
type queueFence interface {
	Signaled() bool
	Reset() error
	Destroy()
	VK() vk.Fence
}

// SubmitContext pairs one fence with one in-flight command buffer submission.
// A context is either idle (no associated buffer, fence meaningless) or armed
// (tracking exactly one buffer, fence signaled by the device on completion).
//
// Contexts are created in batches by the owning DeviceQueue, reused for the
// life of the queue, and destroyed en masse when the queue is disposed.
type SubmitContext struct {
	queue  *DeviceQueue
	fence  queueFence
	buffer vk.CommandBuffer
	armed  bool
}

// prepare associates a command buffer with this context and resets the fence,
// moving the context from idle to armed. The fence must be handed to the
// native submit call so the device signals it on completion.
//
// The armed flag, not the buffer handle, is the state discriminator: native
// handle values are opaque here and must not double as lifecycle state.
func (c *SubmitContext) prepare(buffer vk.CommandBuffer) error {
	c.queue.poolMu.Lock()
	defer c.queue.poolMu.Unlock()

	if c.armed {
		return fmt.Errorf("prepare called on an armed submit context")
	}
	if err := c.fence.Reset(); err != nil {
		return err
	}
	c.buffer = buffer
	c.armed = true
	return nil
}

// tryRelease reports whether the device has finished executing the buffer
// this context tracks, clearing the association and returning the context to
// idle when it has. It never blocks: an unsignaled fence, a failed status
// query, or a context that was claimed but not yet armed all read as "not
// finished". The owning queue's pool lock must be held.
func (c *SubmitContext) tryRelease() bool {
	if !c.armed {
		return false
	}
	if !c.fence.Signaled() {
		return false
	}
	c.buffer = nil
	c.armed = false
	return true
}
