package vega

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	vk "github.com/vulkan-go/vulkan"
	"golang.org/x/sync/errgroup"
)

type fakeFence struct {
	signaled  bool
	resets    int
	destroyed bool
}

func (f *fakeFence) Signaled() bool {
	return f.signaled
}

func (f *fakeFence) Reset() error {
	f.signaled = false
	f.resets++
	return nil
}

func (f *fakeFence) Destroy() {
	f.destroyed = true
}

func (f *fakeFence) VK() vk.Fence {
	return nil
}

// queueRecorder stands in for the native queue, recording every call the
// DeviceQueue hands to it and flagging any two calls that overlap in time.
type queueRecorder struct {
	mu           sync.Mutex
	fences       []*fakeFence
	submits      [][]vk.SubmitInfo
	submitFences []vk.Fence
	presents     int
	waitIdles    int

	inCall  atomic.Bool
	overlap atomic.Bool

	submitResult vk.Result
}

func (r *queueRecorder) enter() {
	if r.inCall.Swap(true) {
		r.overlap.Store(true)
	}
	time.Sleep(time.Microsecond)
}

func (r *queueRecorder) leave() {
	r.inCall.Store(false)
}

func newTestQueue(rec *queueRecorder) *DeviceQueue {
	q := &DeviceQueue{}
	q.newFence = func() (queueFence, error) {
		f := &fakeFence{}
		rec.mu.Lock()
		rec.fences = append(rec.fences, f)
		rec.mu.Unlock()
		return f, nil
	}
	q.submit = func(submits []vk.SubmitInfo, fence vk.Fence) vk.Result {
		rec.enter()
		defer rec.leave()
		rec.mu.Lock()
		rec.submits = append(rec.submits, submits)
		rec.submitFences = append(rec.submitFences, fence)
		rec.mu.Unlock()
		return rec.submitResult
	}
	q.present = func(info *vk.PresentInfo) vk.Result {
		rec.enter()
		defer rec.leave()
		rec.mu.Lock()
		rec.presents++
		rec.mu.Unlock()
		return vk.Success
	}
	q.waitIdle = func() vk.Result {
		rec.mu.Lock()
		rec.waitIdles++
		rec.mu.Unlock()
		return vk.Success
	}
	return q
}

// checkPoolInvariant asserts every context the queue ever created sits in
// exactly one of the two bins.
func checkPoolInvariant(t *testing.T, q *DeviceQueue, created int) {
	t.Helper()

	q.poolMu.Lock()
	defer q.poolMu.Unlock()

	seen := make(map[*SubmitContext]int)
	for _, c := range q.available {
		seen[c]++
	}
	for _, c := range q.pending {
		seen[c]++
	}

	assert.Equal(t, created, len(q.available)+len(q.pending), "context count mismatch")
	assert.Equal(t, created, len(seen), "a context appears in both bins or was lost")
	for _, n := range seen {
		assert.Equal(t, 1, n, "a context appears more than once")
	}
}

func TestAllocateGrowsByOneBatch(t *testing.T) {
	rec := &queueRecorder{}
	q := newTestQueue(rec)

	ctx, err := q.allocateContext()
	require.NoError(t, err)
	require.NotNil(t, ctx)

	assert.Equal(t, ContextGrowSize, len(rec.fences))
	assert.Equal(t, ContextGrowSize-1, len(q.available))
	assert.Equal(t, 1, len(q.pending))
	assert.Same(t, ctx, q.pending[0])
}

func TestAllocateAcrossTwoGrowthEvents(t *testing.T) {
	rec := &queueRecorder{}
	q := newTestQueue(rec)

	for i := 0; i < ContextGrowSize+1; i++ {
		_, err := q.allocateContext()
		require.NoError(t, err)
	}

	assert.Equal(t, 2*ContextGrowSize, len(rec.fences))
	assert.Equal(t, ContextGrowSize+1, len(q.pending))
	assert.Equal(t, ContextGrowSize-1, len(q.available))
	checkPoolInvariant(t, q, 2*ContextGrowSize)
}

func TestReclaimStopsAtFirstUnsignaled(t *testing.T) {
	rec := &queueRecorder{}
	q := newTestQueue(rec)
	cb := &CommandBuffer{}

	var ctxs []*SubmitContext
	for i := 0; i < 3; i++ {
		ctx, err := q.allocateContext()
		require.NoError(t, err)
		require.NoError(t, ctx.prepare(cb.VKCommandBuffer))
		ctxs = append(ctxs, ctx)
	}
	a, b, c := ctxs[0], ctxs[1], ctxs[2]

	a.fence.(*fakeFence).signaled = true
	b.fence.(*fakeFence).signaled = true

	q.UpdateContexts()

	require.Equal(t, 1, len(q.pending))
	assert.Same(t, c, q.pending[0])

	// A is reclaimed before B, so B ends up on top of the stack and is
	// the next context handed out.
	n := len(q.available)
	assert.Same(t, b, q.available[n-1])
	assert.Same(t, a, q.available[n-2])

	next, err := q.allocateContext()
	require.NoError(t, err)
	assert.Same(t, b, next)
	checkPoolInvariant(t, q, ContextGrowSize)
}

func TestReclaimSkipsUnsignaledEntirely(t *testing.T) {
	rec := &queueRecorder{}
	q := newTestQueue(rec)
	cb := &CommandBuffer{}

	ctx, err := q.allocateContext()
	require.NoError(t, err)
	require.NoError(t, ctx.prepare(cb.VKCommandBuffer))

	q.UpdateContexts()

	assert.Equal(t, 1, len(q.pending))
	assert.True(t, ctx.armed)
}

func TestPrepareAndTryReleaseLifecycle(t *testing.T) {
	rec := &queueRecorder{}
	q := newTestQueue(rec)
	cb := &CommandBuffer{}

	ctx, err := q.allocateContext()
	require.NoError(t, err)

	require.NoError(t, ctx.prepare(cb.VKCommandBuffer))
	assert.True(t, ctx.armed)
	f := ctx.fence.(*fakeFence)
	assert.Equal(t, 1, f.resets)

	// Arming twice without a release in between is a caller bug. The armed
	// flag must catch it even though the zero-value buffer handle is nil.
	assert.Error(t, ctx.prepare(cb.VKCommandBuffer))

	q.poolMu.Lock()
	assert.False(t, ctx.tryRelease())
	f.signaled = true
	assert.True(t, ctx.tryRelease())
	assert.False(t, ctx.armed)
	assert.Nil(t, ctx.buffer)

	// Released exactly once per cycle.
	assert.False(t, ctx.tryRelease())
	q.poolMu.Unlock()
}

func TestTryReleaseOnUnarmedContext(t *testing.T) {
	rec := &queueRecorder{}
	q := newTestQueue(rec)

	ctx, err := q.allocateContext()
	require.NoError(t, err)

	// Claimed but not yet armed: even a stale signaled fence from the
	// previous cycle must not release it.
	ctx.fence.(*fakeFence).signaled = true

	q.poolMu.Lock()
	released := ctx.tryRelease()
	q.poolMu.Unlock()
	assert.False(t, released)
}

func TestSubmitTrackedPassesContextFence(t *testing.T) {
	rec := &queueRecorder{submitResult: vk.Success}
	q := newTestQueue(rec)

	require.NoError(t, q.SubmitTracked(&CommandBuffer{}))

	require.Equal(t, 1, len(rec.submits))
	require.Equal(t, 1, len(rec.submits[0]))
	assert.Equal(t, uint32(1), rec.submits[0][0].CommandBufferCount)
	assert.Equal(t, uint32(0), rec.submits[0][0].WaitSemaphoreCount)
	assert.Equal(t, uint32(0), rec.submits[0][0].SignalSemaphoreCount)

	assert.Equal(t, 1, len(q.pending))
	assert.True(t, q.pending[0].armed)
	assert.Equal(t, uint64(1), q.SubmitCount())
	assert.Equal(t, uint64(1), q.BufferCount())
}

func TestSubmitTrackedUnwindsOnNativeFailure(t *testing.T) {
	rec := &queueRecorder{submitResult: vk.ErrorDeviceLost}
	q := newTestQueue(rec)

	err := q.SubmitTracked(&CommandBuffer{})
	require.Error(t, err)

	assert.Equal(t, 0, len(q.pending))
	assert.Equal(t, ContextGrowSize, len(q.available))
	for _, ctx := range q.available {
		assert.False(t, ctx.armed)
		assert.Nil(t, ctx.buffer)
	}
	checkPoolInvariant(t, q, ContextGrowSize)
}

// A tracked submission whose native handle happens to be nil-valued must
// still complete the idle->armed->idle cycle; lifecycle state lives in the
// armed flag, never in the handle.
func TestTrackedNilHandleCompletesCycle(t *testing.T) {
	rec := &queueRecorder{submitResult: vk.Success}
	q := newTestQueue(rec)

	require.NoError(t, q.SubmitTracked(&CommandBuffer{}))
	require.Equal(t, 1, len(q.pending))
	ctx := q.pending[0]
	require.True(t, ctx.armed)

	// Not yet signaled: reclaim leaves it in flight.
	q.UpdateContexts()
	require.Equal(t, 1, len(q.pending))

	ctx.fence.(*fakeFence).signaled = true
	q.UpdateContexts()

	assert.Equal(t, 0, len(q.pending))
	assert.False(t, ctx.armed)
	checkPoolInvariant(t, q, ContextGrowSize)

	// The reclaimed context is reusable: no pool growth on the next claim.
	next, err := q.allocateContext()
	require.NoError(t, err)
	assert.Same(t, ctx, next)
	assert.Equal(t, ContextGrowSize, len(rec.fences))
}

func TestSubmitRawCounters(t *testing.T) {
	rec := &queueRecorder{submitResult: vk.Success}
	q := newTestQueue(rec)

	bufferCounts := []uint32{1, 3, 2, 5, 1}
	var want uint64
	for _, n := range bufferCounts {
		submit := vk.SubmitInfo{
			SType:              vk.StructureTypeSubmitInfo,
			CommandBufferCount: n,
			PCommandBuffers:    make([]vk.CommandBuffer, n),
		}
		require.NoError(t, q.SubmitRaw([]vk.SubmitInfo{submit}, nil))
		want += uint64(n)
	}

	assert.Equal(t, uint64(len(bufferCounts)), q.SubmitCount())
	assert.Equal(t, want, q.BufferCount())
}

func TestUpdateContextsFastPathWithoutPending(t *testing.T) {
	rec := &queueRecorder{}
	q := newTestQueue(rec)

	// Nothing pending: must return without touching the pool.
	q.poolMu.Lock()
	done := make(chan struct{})
	go func() {
		q.UpdateContexts()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("UpdateContexts acquired the pool lock with nothing pending")
	}
	q.poolMu.Unlock()
}

func TestConcurrentSubmissionsNeverOverlap(t *testing.T) {
	rec := &queueRecorder{submitResult: vk.Success}
	q := newTestQueue(rec)

	const workers = 8
	const perWorker = 50

	var g errgroup.Group
	for w := 0; w < workers; w++ {
		w := w
		g.Go(func() error {
			for i := 0; i < perWorker; i++ {
				switch (w + i) % 3 {
				case 0:
					if err := q.SubmitTracked(&CommandBuffer{}); err != nil {
						return err
					}
				case 1:
					submit := vk.SubmitInfo{
						SType:              vk.StructureTypeSubmitInfo,
						CommandBufferCount: 2,
						PCommandBuffers:    make([]vk.CommandBuffer, 2),
					}
					if err := q.SubmitRaw([]vk.SubmitInfo{submit}, nil); err != nil {
						return err
					}
				case 2:
					if err := q.Present(&vk.PresentInfo{SType: vk.StructureTypePresentInfo}); err != nil {
						return err
					}
				}
				if i%8 == 0 {
					q.UpdateContexts()
				}
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())

	assert.False(t, rec.overlap.Load(), "native queue calls overlapped")
	checkPoolInvariant(t, q, len(rec.fences))

	// Every submission either reached the recorder or was a present.
	rec.mu.Lock()
	defer rec.mu.Unlock()
	assert.Equal(t, uint64(len(rec.submits)), q.SubmitCount())
}

func TestPoolInvariantUnderChurn(t *testing.T) {
	rec := &queueRecorder{submitResult: vk.Success}
	q := newTestQueue(rec)
	cb := &CommandBuffer{}

	for round := 0; round < 40; round++ {
		for i := 0; i < 1+round%5; i++ {
			ctx, err := q.allocateContext()
			require.NoError(t, err)
			require.NoError(t, ctx.prepare(cb.VKCommandBuffer))
		}

		// Signal a prefix of pending, in submission order.
		q.poolMu.Lock()
		for i, ctx := range q.pending {
			if i > round%4 {
				break
			}
			ctx.fence.(*fakeFence).signaled = true
		}
		q.poolMu.Unlock()

		q.UpdateContexts()
		checkPoolInvariant(t, q, len(rec.fences))
	}
}

func TestDisposeDrainsAndDestroysContexts(t *testing.T) {
	rec := &queueRecorder{submitResult: vk.Success}
	q := newTestQueue(rec)

	require.NoError(t, q.SubmitTracked(&CommandBuffer{}))
	require.False(t, q.IsDisposed())

	q.Dispose()

	assert.True(t, q.IsDisposed())
	assert.Equal(t, 1, rec.waitIdles, "dispose must drain before destroying fences")
	for _, f := range rec.fences {
		assert.True(t, f.destroyed)
	}
	assert.Equal(t, 0, len(q.available))
	assert.Equal(t, 0, len(q.pending))
}

func TestDisposeIsIdempotent(t *testing.T) {
	rec := &queueRecorder{}
	q := newTestQueue(rec)

	q.Dispose()
	q.Dispose()

	assert.Equal(t, 1, rec.waitIdles)
	assert.True(t, q.IsDisposed())
}

func TestSubmitRawFenceWithNilFence(t *testing.T) {
	rec := &queueRecorder{submitResult: vk.Success}
	q := newTestQueue(rec)

	submit := vk.SubmitInfo{
		SType:              vk.StructureTypeSubmitInfo,
		CommandBufferCount: 1,
		PCommandBuffers:    make([]vk.CommandBuffer, 1),
	}
	require.NoError(t, q.SubmitRawFence(nil, submit))

	require.Equal(t, 1, len(rec.submitFences))
	assert.Nil(t, rec.submitFences[0])
	assert.Equal(t, uint64(1), q.SubmitCount())
}

func TestAllocateAfterDisposeDoesNotGrow(t *testing.T) {
	rec := &queueRecorder{}
	q := newTestQueue(rec)
	q.Dispose()

	// A claim that slipped past the entry check must fail under the pool
	// lock instead of creating fences nothing will ever destroy.
	_, err := q.allocateContext()
	assert.Error(t, err)
	assert.Equal(t, 0, len(rec.fences))
	assert.Equal(t, 0, len(q.available))
	assert.Equal(t, 0, len(q.pending))
}

func TestSubmitAfterDisposeFails(t *testing.T) {
	rec := &queueRecorder{}
	q := newTestQueue(rec)
	q.Dispose()

	assert.Error(t, q.SubmitTracked(&CommandBuffer{}))
	assert.Error(t, q.SubmitRaw(nil, nil))
	assert.Error(t, q.Present(&vk.PresentInfo{}))
	assert.Equal(t, uint64(0), q.SubmitCount())
}
