package vega

import (
	vk "github.com/vulkan-go/vulkan"
)

// SubmitDescription collects the pieces of one raw queue submission: the
// command buffers to execute, the semaphores (with their pipeline stages) to
// wait on before executing, and the semaphores to signal afterwards. It
// exists so callers of DeviceQueue.SubmitRaw don't have to assemble
// vk.SubmitInfo by hand.
type SubmitDescription struct {
	WaitSemaphores   []*Semaphore
	WaitStages       []vk.PipelineStageFlags
	CommandBuffers   []*CommandBuffer
	SignalSemaphores []*Semaphore
}

// VKSubmitInfo builds the native descriptor for this submission.
func (s *SubmitDescription) VKSubmitInfo() vk.SubmitInfo {

	waits := make([]vk.Semaphore, len(s.WaitSemaphores))
	for i := range s.WaitSemaphores {
		waits[i] = s.WaitSemaphores[i].VKSemaphore
	}

	signals := make([]vk.Semaphore, len(s.SignalSemaphores))
	for i := range s.SignalSemaphores {
		signals[i] = s.SignalSemaphores[i].VKSemaphore
	}

	buffers := make([]vk.CommandBuffer, len(s.CommandBuffers))
	for i := range s.CommandBuffers {
		buffers[i] = s.CommandBuffers[i].VKCommandBuffer
	}

	var submitInfo = vk.SubmitInfo{}
	submitInfo.SType = vk.StructureTypeSubmitInfo
	submitInfo.WaitSemaphoreCount = uint32(len(waits))
	submitInfo.PWaitSemaphores = waits
	submitInfo.PWaitDstStageMask = s.WaitStages
	submitInfo.CommandBufferCount = uint32(len(buffers))
	submitInfo.PCommandBuffers = buffers
	submitInfo.SignalSemaphoreCount = uint32(len(signals))
	submitInfo.PSignalSemaphores = signals

	return submitInfo
}

// SubmitDescribed issues the given submissions under the caller's fence,
// which may be nil for fire-and-forget work.
func (q *DeviceQueue) SubmitDescribed(fence *Fence, descs ...*SubmitDescription) error {
	submits := make([]vk.SubmitInfo, len(descs))
	for i := range descs {
		submits[i] = descs[i].VKSubmitInfo()
	}

	var vkFence vk.Fence
	if fence != nil {
		vkFence = fence.VKFence
	}

	return q.SubmitRaw(submits, vkFence)
}
