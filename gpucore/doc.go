// Package gpucore defines the compute contract the renderer is written
// against.
//
// The [GPUAdapter] interface abstracts over backends so the same render
// pipeline runs on:
//   - gogpu/wgpu (Pure Go WebGPU via HAL, Vulkan)
//   - the CPU reference adapter, which runs Go kernels in place of shaders
//
// # Architecture
//
//	               +-----------------+
//	               |  render/upscale |
//	               | (Pipeline,Stage)|
//	               +--------+--------+
//	                        |  GPUAdapter
//	         +--------------+--------------+
//	         |                             |
//	+--------v--------+          +--------v--------+
//	|   hal adapter   |          |   CPU adapter   |
//	|  internal/gpu   |          |internal/software|
//	+--------+--------+          +-----------------+
//	         |
//	+--------v--------+
//	|   gogpu/wgpu    |
//	+-----------------+
//
// # Resource Management
//
// Resources are opaque IDs ([BufferID], [BindGroupID], ...). Adapters map
// IDs to backend objects and hand out new IDs for every creation, so an ID
// is never reused after destruction.
//
// Images are storage buffers of packed RGBA8 texels, one uint32 per pixel,
// described by [Image]. Kernels index them as y*width+x.
//
// # Ordering
//
// Dispatches recorded in one or more compute passes execute in recording
// order when [GPUAdapter.Submit] is called. A pass that reads an image
// written by an earlier dispatch needs no further synchronisation.
// [GPUAdapter.WriteBuffer] takes effect before any dispatch submitted after
// it.
package gpucore
