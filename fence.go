package vega

import (
	"time"

	vk "github.com/vulkan-go/vulkan"
)

// Fence wraps a native vulkan fence, the primitive the device signals when a
// submitted batch of work has finished executing.
type Fence struct {
	Device  *Device
	VKFence vk.Fence
}

func (d *Device) VKCreateFence(signaled bool) (vk.Fence, error) {
	var fence vk.Fence
	var fenceCreateInfo = vk.FenceCreateInfo{}
	fenceCreateInfo.SType = vk.StructureTypeFenceCreateInfo
	if signaled {
		fenceCreateInfo.Flags = vk.FenceCreateFlags(vk.FenceCreateSignaledBit)
	} else {
		fenceCreateInfo.Flags = 0
	}
	err := vk.Error(vk.CreateFence(d.VKDevice, &fenceCreateInfo, nil, &fence))
	if err != nil {
		return nil, err
	}
	return fence, nil
}

func (d *Device) VKGetFenceStatus(f vk.Fence) vk.Result {
	return vk.GetFenceStatus(d.VKDevice, f)
}

func (d *Device) VKResetFence(f vk.Fence) error {
	return vk.Error(vk.ResetFences(d.VKDevice, 1, []vk.Fence{f}))
}

func (d *Device) VKDestroyFence(f vk.Fence) {
	vk.DestroyFence(d.VKDevice, f, nil)
}

// CreateFence creates a fence, optionally already in the signaled state.
func (d *Device) CreateFence(signaled bool) (*Fence, error) {

	fence, err := d.VKCreateFence(signaled)
	if err != nil {
		return nil, err
	}

	var ret Fence
	ret.VKFence = fence
	ret.Device = d
	return &ret, nil

}

// WaitForFences blocks until the given fences are signaled (all of them if
// waitForAll is set, any one otherwise) or the timeout expires.
func (d *Device) WaitForFences(waitForAll bool, ts time.Duration, fences ...*Fence) error {

	f := make([]vk.Fence, len(fences))
	for i := range fences {
		f[i] = fences[i].VKFence
	}

	var wait vk.Bool32
	if waitForAll {
		wait = vk.True
	} else {
		wait = vk.False
	}

	return vk.Error(vk.WaitForFences(d.VKDevice, uint32(len(fences)), f, wait, uint64(ts.Nanoseconds())))

}

// Status returns the native status of the fence without blocking.
func (f *Fence) Status() vk.Result {
	return f.Device.VKGetFenceStatus(f.VKFence)
}

// Signaled reports whether the device has signaled this fence. Any status
// other than success, including query errors, reads as not signaled.
func (f *Fence) Signaled() bool {
	return f.Status() == vk.Success
}

// Reset returns the fence to the unsignaled state.
func (f *Fence) Reset() error {
	return f.Device.VKResetFence(f.VKFence)
}

func (f *Fence) Destroy() {
	f.Device.VKDestroyFence(f.VKFence)
}

// VK is a utility function for accessing the native vulkan fence
func (f *Fence) VK() vk.Fence {
	return f.VKFence
}
