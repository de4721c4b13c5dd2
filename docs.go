/*
Package vega wraps the Vulkan queue submission machinery for go. Vulkan hands
applications a great deal of power over how work reaches the GPU, at the cost
of making the application responsible for everything OpenGL used to hide:
which queue work is submitted to, how submissions are synchronized, and when
it is safe to reuse the resources a submission referenced.

The center of this package is the DeviceQueue, which wraps a native vulkan
queue and tracks the lifetime of every command buffer submitted through it.
Each tracked submission is paired with a fence in a SubmitContext; the queue
keeps a pool of these contexts and recycles them once the device signals that
the associated work has finished executing.

A typical frame looks like:

	1. Record work into one or more command buffers
	2. Submit them with DeviceQueue.SubmitTracked (or SubmitRaw when the
	   caller manages its own fence and semaphores)
	3. Present the frame with DeviceQueue.Present
	4. Once per frame call DeviceQueue.UpdateContexts so finished
	   submissions are reclaimed

Nothing in the submission path ever blocks on the GPU; completion is polled,
never waited on. The one place the package does wait is DeviceQueue.Dispose,
which drains the queue before destroying the fences it owns, so teardown is
deterministic even with work still in flight.

Native vulkan structures are exposed in all the objects prefixed with 'VK' in
the name, so applications aren't limited by what this package provides.
*/
package vega
