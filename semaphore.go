package vega

import (
	vk "github.com/vulkan-go/vulkan"
)

// Semaphore wraps a native vulkan semaphore, used to order raw submissions
// and presentation against each other on the GPU timeline.
type Semaphore struct {
	Device      *Device
	VKSemaphore vk.Semaphore
}

//VKCreateSemaphore creates a native vulkan semaphore object
func (d *Device) VKCreateSemaphore() (vk.Semaphore, error) {
	semaphoreCreateInfo := vk.SemaphoreCreateInfo{
		SType: vk.StructureTypeSemaphoreCreateInfo,
	}

	var sema vk.Semaphore

	err := vk.Error(vk.CreateSemaphore(d.VKDevice, &semaphoreCreateInfo, nil, &sema))

	return sema, err
}

func (d *Device) VKDestroySemaphore(s vk.Semaphore) {
	vk.DestroySemaphore(d.VKDevice, s, nil)
}

func (d *Device) CreateSemaphore() (*Semaphore, error) {
	sema, err := d.VKCreateSemaphore()
	if err != nil {
		return nil, err
	}
	return &Semaphore{Device: d, VKSemaphore: sema}, nil
}

func (s *Semaphore) Destroy() {
	s.Device.VKDestroySemaphore(s.VKSemaphore)
}

// VK is a utility function for accessing the native vulkan semaphore
func (s *Semaphore) VK() vk.Semaphore {
	return s.VKSemaphore
}
