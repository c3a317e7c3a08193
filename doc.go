// Package spheray renders a hierarchy of signed distance field primitives
// at a reduced resolution and upscales the result to the display.
//
// # Quick Start
//
//	import "github.com/gogpu/spheray"
//
//	eng, err := spheray.New(nil, spheray.WithBackend(spheray.BackendCPU))
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer eng.Close()
//
//	box, _ := eng.Spawn(prim.Difference)
//	_ = eng.Scene().SetShape(box, prim.Box)
//
//	eng.Update()
//	if err := eng.Render(1280, 720); err != nil {
//	    log.Fatal(err)
//	}
//	img := eng.Pipeline().LastFrame()
//
// # Frame Lifecycle
//
// A host calls Update once per tick and Render once per displayed frame.
// Update diffs the scene and the light against their last published state
// and publishes what changed on the event bus. Render raymarches the scene
// at the low resolution only when something the image depends on changed,
// then always upsamples and, when enabled, sharpens to the native size.
//
// # Backends
//
// The engine runs its WGSL kernels on a Vulkan device through gogpu/wgpu,
// or on the CPU through Go ports of the same kernels. BackendAuto tries the
// GPU first. Build with the nogpu tag to leave the GPU backend out.
//
// # Persistence
//
// With a [persist.Store] the current hierarchy can be saved under a name
// and loaded back. Saving never overwrites an existing scene.
package spheray
