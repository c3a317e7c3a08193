//go:build !nogpu

package gpu

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/spheray/gpucore"
)

type buffer struct {
	raw  hal.Buffer
	size uint64
}

// Adapter implements gpucore.GPUAdapter on a hal device.
type Adapter struct {
	mu sync.RWMutex

	instance hal.Instance
	device   hal.Device
	queue    hal.Queue
	owned    bool
	name     string

	limits  gputypes.Limits
	timeout time.Duration

	fence      hal.Fence
	fenceValue uint64

	nextID atomic.Uint64
	lost   atomic.Bool

	buffers     map[gpucore.BufferID]*buffer
	modules     map[gpucore.ShaderModuleID]hal.ShaderModule
	layouts     map[gpucore.BindGroupLayoutID]hal.BindGroupLayout
	pipeLayouts map[gpucore.PipelineLayoutID]hal.PipelineLayout
	pipelines   map[gpucore.ComputePipelineID]hal.ComputePipeline
	groups      map[gpucore.BindGroupID]hal.BindGroup

	// encoder collects passes until Submit; encodeErr is the first error
	// seen while recording them.
	encoder   hal.CommandEncoder
	encodeErr error
}

var _ gpucore.GPUAdapter = (*Adapter)(nil)

func newAdapter(device hal.Device, queue hal.Queue, limits gputypes.Limits, o options) (*Adapter, error) {
	fence, err := device.CreateFence()
	if err != nil {
		return nil, fmt.Errorf("gpu: create fence: %w", err)
	}
	a := &Adapter{
		device:      device,
		queue:       queue,
		limits:      limits,
		timeout:     o.fenceTimeout,
		fence:       fence,
		buffers:     make(map[gpucore.BufferID]*buffer),
		modules:     make(map[gpucore.ShaderModuleID]hal.ShaderModule),
		layouts:     make(map[gpucore.BindGroupLayoutID]hal.BindGroupLayout),
		pipeLayouts: make(map[gpucore.PipelineLayoutID]hal.PipelineLayout),
		pipelines:   make(map[gpucore.ComputePipelineID]hal.ComputePipeline),
		groups:      make(map[gpucore.BindGroupID]hal.BindGroup),
	}
	a.nextID.Store(1)
	return a, nil
}

func (a *Adapter) newID() uint64 { return a.nextID.Add(1) - 1 }

// Name returns the device name, or "shared" for a borrowed device.
func (a *Adapter) Name() string { return a.name }

// Lost reports whether the device was declared lost.
func (a *Adapter) Lost() bool { return a.lost.Load() }

func (a *Adapter) markLost(cause error) error {
	if !a.lost.Swap(true) {
		slogger().Error("gpu: device lost", "adapter", a.name, "err", cause)
	}
	return fmt.Errorf("%w: %w", gpucore.ErrDeviceLost, cause)
}

// SupportsCompute always returns true: the adapter only exists once a
// device with compute queues has been opened.
func (a *Adapter) SupportsCompute() bool { return true }

// MaxBufferSize returns the device limit.
func (a *Adapter) MaxBufferSize() uint64 { return a.limits.MaxBufferSize }

// CreateShaderModule compiles desc.WGSL unless SPIR-V is supplied.
func (a *Adapter) CreateShaderModule(desc *gpucore.ShaderModuleDesc) (gpucore.ShaderModuleID, error) {
	if a.lost.Load() {
		return gpucore.InvalidID, gpucore.ErrDeviceLost
	}
	if desc == nil {
		return gpucore.InvalidID, fmt.Errorf("gpu: nil shader module descriptor")
	}
	code := desc.SPIRV
	if len(code) == 0 {
		var err error
		if code, err = compileWGSL(desc.Label, desc.WGSL); err != nil {
			return gpucore.InvalidID, err
		}
	}
	module, err := a.device.CreateShaderModule(&hal.ShaderModuleDescriptor{
		Label:  desc.Label,
		Source: hal.ShaderSource{SPIRV: code},
	})
	if err != nil {
		return gpucore.InvalidID, fmt.Errorf("%w: shader module %s: %w", gpucore.ErrAllocation, desc.Label, err)
	}
	id := gpucore.ShaderModuleID(a.newID())
	a.mu.Lock()
	a.modules[id] = module
	a.mu.Unlock()
	return id, nil
}

// DestroyShaderModule releases a shader module.
func (a *Adapter) DestroyShaderModule(id gpucore.ShaderModuleID) {
	a.mu.Lock()
	m, ok := a.modules[id]
	delete(a.modules, id)
	a.mu.Unlock()
	if ok {
		a.device.DestroyShaderModule(m)
	}
}

func bindingLayout(t gpucore.BindingType) (*gputypes.BufferBindingLayout, error) {
	switch t {
	case gpucore.BindingTypeUniformBuffer:
		return &gputypes.BufferBindingLayout{Type: gputypes.BufferBindingTypeUniform}, nil
	case gpucore.BindingTypeStorageBuffer:
		return &gputypes.BufferBindingLayout{Type: gputypes.BufferBindingTypeStorage}, nil
	case gpucore.BindingTypeReadOnlyStorageBuffer:
		return &gputypes.BufferBindingLayout{Type: gputypes.BufferBindingTypeReadOnlyStorage}, nil
	}
	return nil, fmt.Errorf("gpu: unknown binding type %d", t)
}

// CreateBindGroupLayout creates a compute-visible buffer layout.
func (a *Adapter) CreateBindGroupLayout(desc *gpucore.BindGroupLayoutDesc) (gpucore.BindGroupLayoutID, error) {
	if a.lost.Load() {
		return gpucore.InvalidID, gpucore.ErrDeviceLost
	}
	if desc == nil {
		return gpucore.InvalidID, fmt.Errorf("gpu: nil bind group layout descriptor")
	}
	entries := make([]gputypes.BindGroupLayoutEntry, len(desc.Entries))
	for i, e := range desc.Entries {
		bl, err := bindingLayout(e.Type)
		if err != nil {
			return gpucore.InvalidID, err
		}
		entries[i] = gputypes.BindGroupLayoutEntry{
			Binding:    e.Binding,
			Visibility: gputypes.ShaderStageCompute,
			Buffer:     bl,
		}
	}
	layout, err := a.device.CreateBindGroupLayout(&hal.BindGroupLayoutDescriptor{Label: desc.Label, Entries: entries})
	if err != nil {
		return gpucore.InvalidID, fmt.Errorf("%w: bind group layout %s: %w", gpucore.ErrAllocation, desc.Label, err)
	}
	id := gpucore.BindGroupLayoutID(a.newID())
	a.mu.Lock()
	a.layouts[id] = layout
	a.mu.Unlock()
	return id, nil
}

// DestroyBindGroupLayout releases a bind group layout.
func (a *Adapter) DestroyBindGroupLayout(id gpucore.BindGroupLayoutID) {
	a.mu.Lock()
	l, ok := a.layouts[id]
	delete(a.layouts, id)
	a.mu.Unlock()
	if ok {
		a.device.DestroyBindGroupLayout(l)
	}
}

// CreatePipelineLayout creates a pipeline layout.
func (a *Adapter) CreatePipelineLayout(layouts []gpucore.BindGroupLayoutID) (gpucore.PipelineLayoutID, error) {
	if a.lost.Load() {
		return gpucore.InvalidID, gpucore.ErrDeviceLost
	}
	raw := make([]hal.BindGroupLayout, len(layouts))
	a.mu.RLock()
	for i, id := range layouts {
		l, ok := a.layouts[id]
		if !ok {
			a.mu.RUnlock()
			return gpucore.InvalidID, fmt.Errorf("gpu: bind group layout %d not found", id)
		}
		raw[i] = l
	}
	a.mu.RUnlock()

	pl, err := a.device.CreatePipelineLayout(&hal.PipelineLayoutDescriptor{BindGroupLayouts: raw})
	if err != nil {
		return gpucore.InvalidID, fmt.Errorf("%w: pipeline layout: %w", gpucore.ErrAllocation, err)
	}
	id := gpucore.PipelineLayoutID(a.newID())
	a.mu.Lock()
	a.pipeLayouts[id] = pl
	a.mu.Unlock()
	return id, nil
}

// DestroyPipelineLayout releases a pipeline layout.
func (a *Adapter) DestroyPipelineLayout(id gpucore.PipelineLayoutID) {
	a.mu.Lock()
	pl, ok := a.pipeLayouts[id]
	delete(a.pipeLayouts, id)
	a.mu.Unlock()
	if ok {
		a.device.DestroyPipelineLayout(pl)
	}
}

// CreateComputePipeline creates a compute pipeline.
func (a *Adapter) CreateComputePipeline(desc *gpucore.ComputePipelineDesc) (gpucore.ComputePipelineID, error) {
	if a.lost.Load() {
		return gpucore.InvalidID, gpucore.ErrDeviceLost
	}
	if desc == nil {
		return gpucore.InvalidID, fmt.Errorf("gpu: nil compute pipeline descriptor")
	}
	a.mu.RLock()
	pl, plOK := a.pipeLayouts[desc.Layout]
	m, mOK := a.modules[desc.ShaderModule]
	a.mu.RUnlock()
	if !plOK {
		return gpucore.InvalidID, fmt.Errorf("gpu: pipeline layout %d not found", desc.Layout)
	}
	if !mOK {
		return gpucore.InvalidID, fmt.Errorf("gpu: shader module %d not found", desc.ShaderModule)
	}

	p, err := a.device.CreateComputePipeline(&hal.ComputePipelineDescriptor{
		Label:   desc.Label,
		Layout:  pl,
		Compute: hal.ComputeState{Module: m, EntryPoint: desc.EntryPoint},
	})
	if err != nil {
		return gpucore.InvalidID, fmt.Errorf("%w: pipeline %s: %w", gpucore.ErrAllocation, desc.Label, err)
	}
	id := gpucore.ComputePipelineID(a.newID())
	a.mu.Lock()
	a.pipelines[id] = p
	a.mu.Unlock()
	return id, nil
}

// DestroyComputePipeline releases a compute pipeline.
func (a *Adapter) DestroyComputePipeline(id gpucore.ComputePipelineID) {
	a.mu.Lock()
	p, ok := a.pipelines[id]
	delete(a.pipelines, id)
	a.mu.Unlock()
	if ok {
		a.device.DestroyComputePipeline(p)
	}
}

func bufferUsage(u gpucore.BufferUsage) gputypes.BufferUsage {
	// Every buffer can be written from the CPU, and storage buffers are
	// also read back.
	out := gputypes.BufferUsageCopyDst
	if u&gpucore.BufferUsageMapRead != 0 {
		out |= gputypes.BufferUsageMapRead
	}
	if u&gpucore.BufferUsageCopySrc != 0 {
		out |= gputypes.BufferUsageCopySrc
	}
	if u&gpucore.BufferUsageUniform != 0 {
		out |= gputypes.BufferUsageUniform
	}
	if u&gpucore.BufferUsageStorage != 0 {
		out |= gputypes.BufferUsageStorage | gputypes.BufferUsageCopySrc
	}
	return out
}

// CreateBuffer creates a buffer and clears it.
func (a *Adapter) CreateBuffer(size int, usage gpucore.BufferUsage) (gpucore.BufferID, error) {
	if a.lost.Load() {
		return gpucore.InvalidID, gpucore.ErrDeviceLost
	}
	if size <= 0 {
		return gpucore.InvalidID, fmt.Errorf("gpu: buffer size %d must be positive", size)
	}
	if uint64(size) > a.MaxBufferSize() {
		return gpucore.InvalidID, fmt.Errorf("%w: %d bytes exceeds limit %d", gpucore.ErrAllocation, size, a.MaxBufferSize())
	}
	raw, err := a.device.CreateBuffer(&hal.BufferDescriptor{
		Size:  uint64(size),
		Usage: bufferUsage(usage),
	})
	if err != nil {
		return gpucore.InvalidID, fmt.Errorf("%w: buffer of %d bytes: %w", gpucore.ErrAllocation, size, err)
	}
	if usage&gpucore.BufferUsageMapRead == 0 {
		a.queue.WriteBuffer(raw, 0, make([]byte, size))
	}
	id := gpucore.BufferID(a.newID())
	a.mu.Lock()
	a.buffers[id] = &buffer{raw: raw, size: uint64(size)}
	a.mu.Unlock()
	return id, nil
}

// DestroyBuffer releases a buffer.
func (a *Adapter) DestroyBuffer(id gpucore.BufferID) {
	a.mu.Lock()
	b, ok := a.buffers[id]
	delete(a.buffers, id)
	a.mu.Unlock()
	if ok {
		a.device.DestroyBuffer(b.raw)
	}
}

// WriteBuffer queues a write. Unknown buffers and a lost device are
// ignored; the next Submit reports the loss.
func (a *Adapter) WriteBuffer(id gpucore.BufferID, offset uint64, data []byte) {
	if len(data) == 0 || a.lost.Load() {
		return
	}
	a.mu.RLock()
	b, ok := a.buffers[id]
	a.mu.RUnlock()
	if !ok || offset+uint64(len(data)) > b.size {
		return
	}
	a.queue.WriteBuffer(b.raw, offset, data)
}

// ReadBuffer copies a range into a staging buffer, waits for the copy and
// returns its contents.
func (a *Adapter) ReadBuffer(id gpucore.BufferID, offset, size uint64) ([]byte, error) {
	if a.lost.Load() {
		return nil, gpucore.ErrDeviceLost
	}
	a.mu.RLock()
	b, ok := a.buffers[id]
	a.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("gpu: buffer %d not found", id)
	}
	if offset+size > b.size {
		return nil, fmt.Errorf("gpu: read [%d, %d) past buffer size %d", offset, offset+size, b.size)
	}

	staging, err := a.device.CreateBuffer(&hal.BufferDescriptor{
		Label: "readback",
		Size:  size,
		Usage: gputypes.BufferUsageMapRead | gputypes.BufferUsageCopyDst,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: staging buffer: %w", gpucore.ErrAllocation, err)
	}
	defer a.device.DestroyBuffer(staging)

	encoder, err := a.device.CreateCommandEncoder(&hal.CommandEncoderDescriptor{Label: "readback"})
	if err != nil {
		return nil, fmt.Errorf("gpu: readback encoder: %w", err)
	}
	if err := encoder.BeginEncoding("readback"); err != nil {
		return nil, fmt.Errorf("gpu: readback begin: %w", err)
	}
	encoder.CopyBufferToBuffer(b.raw, staging, []hal.BufferCopy{{SrcOffset: offset, DstOffset: 0, Size: size}})
	cmd, err := encoder.EndEncoding()
	if err != nil {
		return nil, fmt.Errorf("gpu: readback end: %w", err)
	}

	a.mu.Lock()
	err = a.submitLocked(cmd)
	a.mu.Unlock()
	if err != nil {
		return nil, err
	}

	out := make([]byte, size)
	if err := a.queue.ReadBuffer(staging, 0, out); err != nil {
		return nil, fmt.Errorf("gpu: readback: %w", err)
	}
	return out, nil
}

// CreateBindGroup binds buffers to a layout. A zero entry Size binds the
// rest of the buffer.
func (a *Adapter) CreateBindGroup(layout gpucore.BindGroupLayoutID, entries []gpucore.BindGroupEntry) (gpucore.BindGroupID, error) {
	if a.lost.Load() {
		return gpucore.InvalidID, gpucore.ErrDeviceLost
	}
	a.mu.RLock()
	l, ok := a.layouts[layout]
	if !ok {
		a.mu.RUnlock()
		return gpucore.InvalidID, fmt.Errorf("gpu: bind group layout %d not found", layout)
	}
	raw := make([]gputypes.BindGroupEntry, len(entries))
	for i, e := range entries {
		b, ok := a.buffers[e.Buffer]
		if !ok {
			a.mu.RUnlock()
			return gpucore.InvalidID, fmt.Errorf("gpu: binding %d: buffer %d not found", e.Binding, e.Buffer)
		}
		size := e.Size
		if size == 0 {
			size = b.size - e.Offset
		}
		raw[i] = gputypes.BindGroupEntry{
			Binding:  e.Binding,
			Resource: gputypes.BufferBinding{Buffer: b.raw.NativeHandle(), Offset: e.Offset, Size: size},
		}
	}
	a.mu.RUnlock()

	g, err := a.device.CreateBindGroup(&hal.BindGroupDescriptor{Layout: l, Entries: raw})
	if err != nil {
		return gpucore.InvalidID, fmt.Errorf("%w: bind group: %w", gpucore.ErrAllocation, err)
	}
	id := gpucore.BindGroupID(a.newID())
	a.mu.Lock()
	a.groups[id] = g
	a.mu.Unlock()
	return id, nil
}

// DestroyBindGroup releases a bind group.
func (a *Adapter) DestroyBindGroup(id gpucore.BindGroupID) {
	a.mu.Lock()
	g, ok := a.groups[id]
	delete(a.groups, id)
	a.mu.Unlock()
	if ok {
		a.device.DestroyBindGroup(g)
	}
}

// BeginComputePass opens a pass on the shared frame encoder, creating the
// encoder on first use. If that fails the returned pass records nothing
// and Submit reports the error.
func (a *Adapter) BeginComputePass() gpucore.ComputePassEncoder {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.lost.Load() || a.encodeErr != nil {
		return &passEncoder{a: a}
	}
	if a.encoder == nil {
		enc, err := a.device.CreateCommandEncoder(&hal.CommandEncoderDescriptor{Label: "spheray_frame"})
		if err != nil {
			a.encodeErr = fmt.Errorf("gpu: command encoder: %w", err)
			return &passEncoder{a: a}
		}
		if err := enc.BeginEncoding("spheray_frame"); err != nil {
			a.encodeErr = fmt.Errorf("gpu: begin encoding: %w", err)
			return &passEncoder{a: a}
		}
		a.encoder = enc
	}
	return &passEncoder{a: a, pass: a.encoder.BeginComputePass(&hal.ComputePassDescriptor{Label: "spheray_pass"})}
}

// Submit ends the frame encoder, submits it and waits on the fence.
func (a *Adapter) Submit() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	enc, encErr := a.encoder, a.encodeErr
	a.encoder, a.encodeErr = nil, nil
	if a.lost.Load() {
		return gpucore.ErrDeviceLost
	}
	if encErr != nil {
		return encErr
	}
	if enc == nil {
		return nil
	}
	cmd, err := enc.EndEncoding()
	if err != nil {
		return fmt.Errorf("gpu: end encoding: %w", err)
	}
	return a.submitLocked(cmd)
}

func (a *Adapter) submitLocked(cmd hal.CommandBuffer) error {
	defer a.device.FreeCommandBuffer(cmd)
	a.fenceValue++
	if err := a.queue.Submit([]hal.CommandBuffer{cmd}, a.fence, a.fenceValue); err != nil {
		return a.markLost(fmt.Errorf("submit: %w", err))
	}
	return a.waitLocked()
}

func (a *Adapter) waitLocked() error {
	ok, err := a.device.Wait(a.fence, a.fenceValue, a.timeout)
	if err != nil {
		return a.markLost(fmt.Errorf("wait: %w", err))
	}
	if !ok {
		return a.markLost(fmt.Errorf("fence %d not signalled after %v", a.fenceValue, a.timeout))
	}
	return nil
}

// WaitIdle waits for the last submission.
func (a *Adapter) WaitIdle() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.lost.Load() || a.fenceValue == 0 {
		return
	}
	_ = a.waitLocked()
}

// Close destroys every live resource, then the device and instance when
// the adapter opened them.
func (a *Adapter) Close() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.device == nil {
		return
	}
	if !a.lost.Load() && a.fenceValue > 0 {
		_ = a.waitLocked()
	}
	for id, g := range a.groups {
		a.device.DestroyBindGroup(g)
		delete(a.groups, id)
	}
	for id, p := range a.pipelines {
		a.device.DestroyComputePipeline(p)
		delete(a.pipelines, id)
	}
	for id, pl := range a.pipeLayouts {
		a.device.DestroyPipelineLayout(pl)
		delete(a.pipeLayouts, id)
	}
	for id, l := range a.layouts {
		a.device.DestroyBindGroupLayout(l)
		delete(a.layouts, id)
	}
	for id, m := range a.modules {
		a.device.DestroyShaderModule(m)
		delete(a.modules, id)
	}
	for id, b := range a.buffers {
		a.device.DestroyBuffer(b.raw)
		delete(a.buffers, id)
	}
	a.device.DestroyFence(a.fence)
	if a.owned {
		a.device.Destroy()
		if a.instance != nil {
			a.instance.Destroy()
		}
	}
	a.device, a.queue, a.instance, a.fence = nil, nil, nil, nil
}

type passEncoder struct {
	a    *Adapter
	pass hal.ComputePassEncoder
}

func (p *passEncoder) SetPipeline(id gpucore.ComputePipelineID) {
	if p.pass == nil {
		return
	}
	p.a.mu.RLock()
	pl, ok := p.a.pipelines[id]
	p.a.mu.RUnlock()
	if ok {
		p.pass.SetPipeline(pl)
	}
}

func (p *passEncoder) SetBindGroup(index uint32, id gpucore.BindGroupID) {
	if p.pass == nil {
		return
	}
	p.a.mu.RLock()
	g, ok := p.a.groups[id]
	p.a.mu.RUnlock()
	if ok {
		p.pass.SetBindGroup(index, g, nil)
	}
}

func (p *passEncoder) Dispatch(x, y, z uint32) {
	if p.pass != nil && x > 0 && y > 0 && z > 0 {
		p.pass.Dispatch(x, y, z)
	}
}

func (p *passEncoder) End() {
	if p.pass != nil {
		p.pass.End()
		p.pass = nil
	}
}
