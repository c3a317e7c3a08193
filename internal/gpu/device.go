//go:build !nogpu

package gpu

import (
	"errors"
	"fmt"
	"time"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	// Registers the Vulkan backend.
	_ "github.com/gogpu/wgpu/hal/vulkan"
)

// ErrUnavailable reports that no usable GPU was found.
var ErrUnavailable = errors.New("gpu: no usable device")

// DefaultFenceTimeout bounds how long Submit and ReadBuffer wait for the
// device before declaring it lost.
const DefaultFenceTimeout = 5 * time.Second

// Option configures an Adapter.
type Option func(*options)

type options struct {
	fenceTimeout time.Duration
	integrated   bool
}

func defaultOptions() options {
	return options{fenceTimeout: DefaultFenceTimeout}
}

// WithFenceTimeout sets the device-lost timeout.
func WithFenceTimeout(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.fenceTimeout = d
		}
	}
}

// WithIntegratedGPU prefers an integrated GPU over a discrete one when Open
// picks a device.
func WithIntegratedGPU() Option {
	return func(o *options) { o.integrated = true }
}

// Open creates a Vulkan instance and device owned by the returned Adapter.
func Open(opts ...Option) (*Adapter, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}

	backend, ok := hal.GetBackend(gputypes.BackendVulkan)
	if !ok {
		return nil, fmt.Errorf("%w: vulkan backend not available", ErrUnavailable)
	}
	instance, err := backend.CreateInstance(&hal.InstanceDescriptor{Flags: 0})
	if err != nil {
		return nil, fmt.Errorf("%w: create instance: %w", ErrUnavailable, err)
	}

	adapters := instance.EnumerateAdapters(nil)
	selected := pickAdapter(adapters, o.integrated)
	if selected == nil {
		instance.Destroy()
		return nil, fmt.Errorf("%w: no GPU adapters found", ErrUnavailable)
	}

	limits := gputypes.DefaultLimits()
	openDev, err := selected.Adapter.Open(gputypes.Features(0), limits)
	if err != nil {
		instance.Destroy()
		return nil, fmt.Errorf("%w: open device: %w", ErrUnavailable, err)
	}

	a, err := newAdapter(openDev.Device, openDev.Queue, limits, o)
	if err != nil {
		openDev.Device.Destroy()
		instance.Destroy()
		return nil, err
	}
	a.instance = instance
	a.owned = true
	a.name = selected.Info.Name
	slogger().Info("gpu: device opened", "adapter", a.name, "type", selected.Info.DeviceType)
	return a, nil
}

func pickAdapter(adapters []hal.ExposedAdapter, integrated bool) *hal.ExposedAdapter {
	if len(adapters) == 0 {
		return nil
	}
	first, second := gputypes.DeviceTypeDiscreteGPU, gputypes.DeviceTypeIntegratedGPU
	if integrated {
		first, second = second, first
	}
	for round := 0; round < 2; round++ {
		want := first
		if round == 1 {
			want = second
		}
		for i := range adapters {
			if adapters[i].Info.DeviceType == want {
				return &adapters[i]
			}
		}
	}
	return &adapters[0]
}

// FromProvider wraps the device and queue of a host application. The
// provider must expose HalDevice() and HalQueue() returning hal.Device and
// hal.Queue, as gogpu's device provider does. Close does not destroy them.
func FromProvider(provider any, opts ...Option) (*Adapter, error) {
	type halProvider interface {
		HalDevice() any
		HalQueue() any
	}
	hp, ok := provider.(halProvider)
	if !ok {
		return nil, fmt.Errorf("%w: provider does not expose HAL types", ErrUnavailable)
	}
	device, ok := hp.HalDevice().(hal.Device)
	if !ok || device == nil {
		return nil, fmt.Errorf("%w: provider HalDevice is not hal.Device", ErrUnavailable)
	}
	queue, ok := hp.HalQueue().(hal.Queue)
	if !ok || queue == nil {
		return nil, fmt.Errorf("%w: provider HalQueue is not hal.Queue", ErrUnavailable)
	}

	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	a, err := newAdapter(device, queue, gputypes.DefaultLimits(), o)
	if err != nil {
		return nil, err
	}
	a.name = "shared"
	slogger().Debug("gpu: using shared device")
	return a, nil
}
