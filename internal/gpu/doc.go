//go:build !nogpu

// Package gpu runs the spheray compute kernels on a real GPU through
// gogpu/wgpu's hardware abstraction layer (zero CGO).
//
// [Adapter] implements gpucore.GPUAdapter. It either opens its own Vulkan
// device ([Open]) or borrows the device and queue of a host application
// ([FromProvider]), in which case Close leaves them alive.
//
// WGSL kernels are compiled to SPIR-V with gogpu/naga before they reach the
// device. Images are storage buffers of packed RGBA8 texels, so the adapter
// needs no texture or sampler support.
//
// Recorded passes share one command encoder until Submit, which waits on a
// fence. A fence that never signals is reported as gpucore.ErrDeviceLost
// and the adapter refuses further work.
package gpu
