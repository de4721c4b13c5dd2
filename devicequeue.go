package vega

import (
	"fmt"
	"sync"
	"sync/atomic"

	vk "github.com/vulkan-go/vulkan"
)

// ContextGrowSize is how many submission contexts are created in one batch
// when a queue runs out of idle contexts.
const ContextGrowSize = 16

// DeviceQueue wraps a native vulkan queue and tracks the lifetime of work
// submitted through it. Vulkan requires that submissions and presentation on
// one queue are never issued from multiple threads at once; every native
// hand-off here is serialized under a single submission lock, so callers may
// submit from any thread.
//
// Tracked submissions each claim a SubmitContext from the queue's pool. The
// pool keeps idle contexts in an available stack (most recently released
// first, so its fence is the most likely to still be warm) and armed contexts
// in a pending queue in submission order.
type DeviceQueue struct {
	Device      *Device
	QueueFamily *QueueFamily
	VKQueue     vk.Queue

	// submitMu serializes every native submit/present on this queue.
	submitMu sync.Mutex

	// poolMu guards available, pending and the armed state of every
	// context in them.
	poolMu     sync.Mutex
	available  []*SubmitContext // LIFO
	pending    []*SubmitContext // FIFO, submission order
	numPending atomic.Int32

	submitCount atomic.Uint64
	bufferCount atomic.Uint64
	disposed    atomic.Bool

	// Native entry points, bound by Device.NewDeviceQueueAt.
	newFence func() (queueFence, error)
	submit   func(submits []vk.SubmitInfo, fence vk.Fence) vk.Result
	present  func(info *vk.PresentInfo) vk.Result
	waitIdle func() vk.Result
}

// SubmitTracked submits a single command buffer with no wait or signal
// semaphores, tracking its completion through a pooled SubmitContext. The
// buffer is borrowed: it must stay valid until a later UpdateContexts call
// observes the submission complete.
func (q *DeviceQueue) SubmitTracked(buffer *CommandBuffer) error {
	if q.disposed.Load() {
		return fmt.Errorf("submit on disposed queue")
	}

	ctx, err := q.allocateContext()
	if err != nil {
		return err
	}
	if err := ctx.prepare(buffer.VKCommandBuffer); err != nil {
		q.unwindContext(ctx)
		return err
	}

	var submitInfo = vk.SubmitInfo{}
	submitInfo.SType = vk.StructureTypeSubmitInfo
	submitInfo.CommandBufferCount = 1
	submitInfo.PCommandBuffers = []vk.CommandBuffer{buffer.VKCommandBuffer}

	q.submitMu.Lock()
	q.submitCount.Add(1)
	q.bufferCount.Add(1)
	res := q.submit([]vk.SubmitInfo{submitInfo}, ctx.fence.VK())
	q.submitMu.Unlock()

	if res != vk.Success {
		// The device never saw the fence, so the context can be taken
		// straight back instead of leaking at the head of pending.
		q.unwindContext(ctx)
	}

	return vk.Error(res)
}

// SubmitRaw issues caller-constructed submissions directly, without context
// tracking. The caller owns the fence (which may be nil) and any
// semaphores the descriptors reference.
func (q *DeviceQueue) SubmitRaw(submits []vk.SubmitInfo, fence vk.Fence) error {
	if q.disposed.Load() {
		return fmt.Errorf("submit on disposed queue")
	}

	q.submitMu.Lock()
	q.submitCount.Add(1)
	for i := range submits {
		q.bufferCount.Add(uint64(submits[i].CommandBufferCount))
	}
	res := q.submit(submits, fence)
	q.submitMu.Unlock()

	return vk.Error(res)
}

// SubmitRawFence is SubmitRaw for callers holding a wrapped fence, which may
// be nil for fire-and-forget work.
func (q *DeviceQueue) SubmitRawFence(fence *Fence, submits ...vk.SubmitInfo) error {
	var vkFence vk.Fence
	if fence != nil {
		vkFence = fence.VKFence
	}
	return q.SubmitRaw(submits, vkFence)
}

// Present issues a presentation request on this queue, serialized against all
// submissions.
func (q *DeviceQueue) Present(info *vk.PresentInfo) error {
	if q.disposed.Load() {
		return fmt.Errorf("present on disposed queue")
	}

	q.submitMu.Lock()
	res := q.present(info)
	q.submitMu.Unlock()

	return vk.Error(res)
}

// UpdateContexts reclaims the contexts of finished tracked submissions.
// Intended to be called once per frame by the queue's owner; it polls, never
// waits.
func (q *DeviceQueue) UpdateContexts() {
	// Fast path: nothing in flight, skip the pool lock entirely.
	if q.numPending.Load() == 0 {
		return
	}

	q.poolMu.Lock()
	defer q.poolMu.Unlock()

	// Pending is scanned in submission order and the scan stops at the
	// first context still executing. Completion is not guaranteed to
	// follow submission order, but if the oldest submission isn't done
	// the newer ones rarely are; anything the scan skips is simply
	// reclaimed on a later update.
	for len(q.pending) > 0 {
		ctx := q.pending[0]
		if !ctx.tryRelease() {
			break
		}
		q.pending = q.pending[1:]
		q.numPending.Add(-1)
		q.available = append(q.available, ctx)
	}
}

// allocateContext claims an idle context, growing the pool when the
// available stack is empty, and records it as pending. The returned context
// is idle and must be armed with prepare before the native submit.
func (q *DeviceQueue) allocateContext() (*SubmitContext, error) {
	q.poolMu.Lock()
	defer q.poolMu.Unlock()

	// Re-checked under the pool lock: a submit racing Dispose past the
	// entry check must not regrow the pool after its fences are gone.
	if q.disposed.Load() {
		return nil, fmt.Errorf("submit on disposed queue")
	}

	if len(q.available) == 0 {
		if err := q.growContexts(ContextGrowSize); err != nil {
			return nil, err
		}
	}

	ctx := q.available[len(q.available)-1]
	q.available = q.available[:len(q.available)-1]
	q.pending = append(q.pending, ctx)
	q.numPending.Add(1)
	return ctx, nil
}

// growContexts creates a batch of idle contexts on the available stack.
// Caller must hold poolMu.
func (q *DeviceQueue) growContexts(n int) error {
	for i := 0; i < n; i++ {
		fence, err := q.newFence()
		if err != nil {
			return err
		}
		q.available = append(q.available, &SubmitContext{queue: q, fence: fence})
	}
	return nil
}

// unwindContext takes back a context whose submission never reached the
// device, returning it to the available stack.
func (q *DeviceQueue) unwindContext(ctx *SubmitContext) {
	q.poolMu.Lock()
	defer q.poolMu.Unlock()

	for i := len(q.pending) - 1; i >= 0; i-- {
		if q.pending[i] == ctx {
			q.pending = append(q.pending[:i], q.pending[i+1:]...)
			q.numPending.Add(-1)
			break
		}
	}
	ctx.buffer = nil
	ctx.armed = false
	q.available = append(q.available, ctx)
}

// SubmitCount returns the number of submissions issued over the queue's
// lifetime, tracked and raw alike.
func (q *DeviceQueue) SubmitCount() uint64 {
	return q.submitCount.Load()
}

// BufferCount returns the total number of command buffers submitted over the
// queue's lifetime.
func (q *DeviceQueue) BufferCount() uint64 {
	return q.bufferCount.Load()
}

func (q *DeviceQueue) IsDisposed() bool {
	return q.disposed.Load()
}

// WaitIdle blocks until the device has finished all work submitted to this
// queue.
func (q *DeviceQueue) WaitIdle() error {
	return vk.Error(q.waitIdle())
}

// Dispose drains the queue and destroys every submission context it owns.
// The drain means disposal is safe even with tracked work still in flight;
// it is also the only place this queue ever blocks on the device. Calling
// Dispose more than once is a no-op.
func (q *DeviceQueue) Dispose() {
	if q.disposed.Swap(true) {
		return
	}

	// Holding the submission lock keeps a racing submit from slipping a
	// fence to the device while it is being destroyed below.
	q.submitMu.Lock()
	defer q.submitMu.Unlock()

	q.waitIdle()

	q.poolMu.Lock()
	defer q.poolMu.Unlock()

	for _, ctx := range q.pending {
		ctx.buffer = nil
		ctx.armed = false
		ctx.fence.Destroy()
	}
	for _, ctx := range q.available {
		ctx.fence.Destroy()
	}
	q.pending = nil
	q.available = nil
	q.numPending.Store(0)
}

func (q *DeviceQueue) String() string {
	return fmt.Sprintf("{Device: %s QueueFamily: %s}", q.Device.String(), q.QueueFamily.String())
}
