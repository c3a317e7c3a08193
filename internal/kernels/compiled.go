package kernels

import (
	"fmt"

	"github.com/gogpu/spheray/gpucore"
)

// Compiled holds the adapter objects of one kernel.
type Compiled struct {
	Kernel   Kernel
	Module   gpucore.ShaderModuleID
	Layout   gpucore.BindGroupLayoutID
	PipeLay  gpucore.PipelineLayoutID
	Pipeline gpucore.ComputePipelineID

	adapter gpucore.GPUAdapter
}

// Compile creates the shader module, layouts and pipeline of the kernel
// called name. On failure everything created so far is released.
func Compile(a gpucore.GPUAdapter, name string) (*Compiled, error) {
	k, ok := Lookup(name)
	if !ok {
		return nil, fmt.Errorf("kernels: unknown kernel %q", name)
	}
	src, err := k.Source()
	if err != nil {
		return nil, err
	}

	c := &Compiled{Kernel: k, adapter: a}
	c.Module, err = a.CreateShaderModule(&gpucore.ShaderModuleDesc{Label: k.Name, WGSL: src})
	if err != nil {
		return nil, fmt.Errorf("compile %s: shader module: %w", k.Name, err)
	}
	c.Layout, err = a.CreateBindGroupLayout(k.LayoutDesc())
	if err != nil {
		c.Destroy()
		return nil, fmt.Errorf("compile %s: bind group layout: %w", k.Name, err)
	}
	c.PipeLay, err = a.CreatePipelineLayout([]gpucore.BindGroupLayoutID{c.Layout})
	if err != nil {
		c.Destroy()
		return nil, fmt.Errorf("compile %s: pipeline layout: %w", k.Name, err)
	}
	c.Pipeline, err = a.CreateComputePipeline(&gpucore.ComputePipelineDesc{
		Label:        k.Name + "_pipeline",
		Layout:       c.PipeLay,
		ShaderModule: c.Module,
		EntryPoint:   EntryPoint,
	})
	if err != nil {
		c.Destroy()
		return nil, fmt.Errorf("compile %s: pipeline: %w", k.Name, err)
	}
	return c, nil
}

// BindGroup binds buffers to the kernel's bindings in order.
func (c *Compiled) BindGroup(buffers ...gpucore.BufferID) (gpucore.BindGroupID, error) {
	if len(buffers) != len(c.Kernel.Bindings) {
		return gpucore.InvalidID, fmt.Errorf("kernels: %s takes %d bindings, got %d",
			c.Kernel.Name, len(c.Kernel.Bindings), len(buffers))
	}
	entries := make([]gpucore.BindGroupEntry, len(buffers))
	for i, b := range buffers {
		entries[i] = gpucore.BindGroupEntry{Binding: uint32(i), Buffer: b} //nolint:gosec // few bindings
	}
	id, err := c.adapter.CreateBindGroup(c.Layout, entries)
	if err != nil {
		return gpucore.InvalidID, fmt.Errorf("%s bind group: %w", c.Kernel.Name, err)
	}
	return id, nil
}

// Record sets the pipeline and group on pass and dispatches over size.
func (c *Compiled) Record(pass gpucore.ComputePassEncoder, group gpucore.BindGroupID, size gpucore.Size) {
	pass.SetPipeline(c.Pipeline)
	pass.SetBindGroup(0, group)
	pass.Dispatch(c.Kernel.Workgroups(size))
}

// Destroy releases the pipeline, then the layouts, then the module.
// It is safe to call on a partially built or already destroyed kernel.
func (c *Compiled) Destroy() {
	if c == nil || c.adapter == nil {
		return
	}
	a := c.adapter
	if c.Pipeline != gpucore.InvalidID {
		a.DestroyComputePipeline(c.Pipeline)
	}
	if c.PipeLay != gpucore.InvalidID {
		a.DestroyPipelineLayout(c.PipeLay)
	}
	if c.Layout != gpucore.InvalidID {
		a.DestroyBindGroupLayout(c.Layout)
	}
	if c.Module != gpucore.InvalidID {
		a.DestroyShaderModule(c.Module)
	}
	*c = Compiled{Kernel: c.Kernel}
}
