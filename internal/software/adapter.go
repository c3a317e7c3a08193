// Package software implements gpucore.GPUAdapter on the CPU.
//
// Buffers are byte slices, and kernels are Go functions selected by the
// shader module label (see internal/kernels). Recorded passes run on
// Submit, one dispatch at a time, with each dispatch split into row bands
// across a worker pool. The adapter produces the same images as the WGSL
// kernels up to float rounding, which makes it the reference backend for
// tests and headless rendering.
package software

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/gogpu/spheray/gpucore"
	"github.com/gogpu/spheray/internal/kernels"
)

// DefaultMaxBufferSize is the largest buffer the adapter allocates unless
// WithMaxBufferSize says otherwise.
const DefaultMaxBufferSize = 256 * 1024 * 1024

var errUnknownID = errors.New("software: unknown resource id")

type buffer struct {
	data  []byte
	usage gpucore.BufferUsage
}

type bindGroup struct {
	layout  gpucore.BindGroupLayoutID
	entries []gpucore.BindGroupEntry
}

type pipeline struct {
	kernel string
	layout gpucore.PipelineLayoutID
}

type command struct {
	pipeline gpucore.ComputePipelineID
	group    gpucore.BindGroupID
	x, y, z  uint32
}

// Adapter is a CPU GPUAdapter. It is safe for concurrent use.
type Adapter struct {
	mu     sync.RWMutex
	pool   *workerPool
	maxBuf uint64
	lost   atomic.Bool
	closed bool

	nextID atomic.Uint64

	buffers          map[gpucore.BufferID]*buffer
	shaderModules    map[gpucore.ShaderModuleID]string
	computePipelines map[gpucore.ComputePipelineID]pipeline
	bindGroupLayouts map[gpucore.BindGroupLayoutID][]gpucore.BindingType
	pipelineLayouts  map[gpucore.PipelineLayoutID][]gpucore.BindGroupLayoutID
	bindGroups       map[gpucore.BindGroupID]bindGroup

	pending []command
	stats   Stats
}

// Stats counts adapter activity.
type Stats struct {
	Dispatches int
	Submits    int
	Buffers    int
	BytesLive  int
}

// Option configures an Adapter.
type Option func(*Adapter)

// WithWorkers sets the worker pool size. Zero uses GOMAXPROCS.
func WithWorkers(n int) Option {
	return func(a *Adapter) { a.pool = newWorkerPool(n) }
}

// WithMaxBufferSize caps single buffer allocations. Larger requests fail
// with gpucore.ErrAllocation.
func WithMaxBufferSize(n uint64) Option {
	return func(a *Adapter) { a.maxBuf = n }
}

// New returns a CPU adapter.
func New(opts ...Option) *Adapter {
	a := &Adapter{
		maxBuf:           DefaultMaxBufferSize,
		buffers:          make(map[gpucore.BufferID]*buffer),
		shaderModules:    make(map[gpucore.ShaderModuleID]string),
		computePipelines: make(map[gpucore.ComputePipelineID]pipeline),
		bindGroupLayouts: make(map[gpucore.BindGroupLayoutID][]gpucore.BindingType),
		pipelineLayouts:  make(map[gpucore.PipelineLayoutID][]gpucore.BindGroupLayoutID),
		bindGroups:       make(map[gpucore.BindGroupID]bindGroup),
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.pool == nil {
		a.pool = newWorkerPool(0)
	}
	a.nextID.Store(1)
	slogger().Debug("software adapter created", "workers", a.pool.workers, "max_buffer", a.maxBuf)
	return a
}

func (a *Adapter) newID() uint64 {
	return a.nextID.Add(1) - 1
}

// Lose marks the device as lost. Every later call that can fail returns
// gpucore.ErrDeviceLost.
func (a *Adapter) Lose() {
	a.lost.Store(true)
}

func (a *Adapter) checkLost() error {
	if a.lost.Load() {
		return gpucore.ErrDeviceLost
	}
	return nil
}

// Close stops the worker pool and releases every resource.
func (a *Adapter) Close() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return
	}
	a.closed = true
	a.pool.close()
	clear(a.buffers)
	clear(a.bindGroups)
	a.pending = nil
	a.stats.Buffers, a.stats.BytesLive = 0, 0
}

// Stats returns a snapshot of the counters.
func (a *Adapter) Stats() Stats {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.stats
}

// === Capabilities ===

// SupportsCompute always returns true.
func (a *Adapter) SupportsCompute() bool { return true }

// MaxBufferSize returns the allocation cap.
func (a *Adapter) MaxBufferSize() uint64 { return a.maxBuf }

// === Shaders and Pipelines ===

// CreateShaderModule binds the module to the Go kernel named by desc.Label.
// The WGSL source is not parsed.
func (a *Adapter) CreateShaderModule(desc *gpucore.ShaderModuleDesc) (gpucore.ShaderModuleID, error) {
	if err := a.checkLost(); err != nil {
		return gpucore.InvalidID, err
	}
	if _, ok := cpuKernels[desc.Label]; !ok {
		return gpucore.InvalidID, fmt.Errorf("software: no kernel %q", desc.Label)
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	id := gpucore.ShaderModuleID(a.newID())
	a.shaderModules[id] = desc.Label
	return id, nil
}

// DestroyShaderModule releases a shader module.
func (a *Adapter) DestroyShaderModule(id gpucore.ShaderModuleID) {
	a.mu.Lock()
	delete(a.shaderModules, id)
	a.mu.Unlock()
}

// CreateBindGroupLayout records the binding types of a layout.
func (a *Adapter) CreateBindGroupLayout(desc *gpucore.BindGroupLayoutDesc) (gpucore.BindGroupLayoutID, error) {
	if err := a.checkLost(); err != nil {
		return gpucore.InvalidID, err
	}
	types := make([]gpucore.BindingType, len(desc.Entries))
	for _, e := range desc.Entries {
		if int(e.Binding) >= len(types) {
			return gpucore.InvalidID, fmt.Errorf("software: sparse binding %d in %q", e.Binding, desc.Label)
		}
		types[e.Binding] = e.Type
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	id := gpucore.BindGroupLayoutID(a.newID())
	a.bindGroupLayouts[id] = types
	return id, nil
}

// DestroyBindGroupLayout releases a bind group layout.
func (a *Adapter) DestroyBindGroupLayout(id gpucore.BindGroupLayoutID) {
	a.mu.Lock()
	delete(a.bindGroupLayouts, id)
	a.mu.Unlock()
}

// CreatePipelineLayout creates a pipeline layout from bind group layouts.
func (a *Adapter) CreatePipelineLayout(layouts []gpucore.BindGroupLayoutID) (gpucore.PipelineLayoutID, error) {
	if err := a.checkLost(); err != nil {
		return gpucore.InvalidID, err
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	for _, l := range layouts {
		if _, ok := a.bindGroupLayouts[l]; !ok {
			return gpucore.InvalidID, fmt.Errorf("pipeline layout: bind group layout %d: %w", l, errUnknownID)
		}
	}
	id := gpucore.PipelineLayoutID(a.newID())
	a.pipelineLayouts[id] = append([]gpucore.BindGroupLayoutID(nil), layouts...)
	return id, nil
}

// DestroyPipelineLayout releases a pipeline layout.
func (a *Adapter) DestroyPipelineLayout(id gpucore.PipelineLayoutID) {
	a.mu.Lock()
	delete(a.pipelineLayouts, id)
	a.mu.Unlock()
}

// CreateComputePipeline creates a compute pipeline.
func (a *Adapter) CreateComputePipeline(desc *gpucore.ComputePipelineDesc) (gpucore.ComputePipelineID, error) {
	if err := a.checkLost(); err != nil {
		return gpucore.InvalidID, err
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	name, ok := a.shaderModules[desc.ShaderModule]
	if !ok {
		return gpucore.InvalidID, fmt.Errorf("pipeline %q: shader module %d: %w", desc.Label, desc.ShaderModule, errUnknownID)
	}
	if _, ok := a.pipelineLayouts[desc.Layout]; !ok {
		return gpucore.InvalidID, fmt.Errorf("pipeline %q: layout %d: %w", desc.Label, desc.Layout, errUnknownID)
	}
	if desc.EntryPoint != kernels.EntryPoint {
		return gpucore.InvalidID, fmt.Errorf("software: pipeline %q: unknown entry point %q", desc.Label, desc.EntryPoint)
	}
	id := gpucore.ComputePipelineID(a.newID())
	a.computePipelines[id] = pipeline{kernel: name, layout: desc.Layout}
	return id, nil
}

// DestroyComputePipeline releases a compute pipeline.
func (a *Adapter) DestroyComputePipeline(id gpucore.ComputePipelineID) {
	a.mu.Lock()
	delete(a.computePipelines, id)
	a.mu.Unlock()
}

// === Buffers and Bindings ===

// CreateBuffer allocates a zeroed buffer.
func (a *Adapter) CreateBuffer(size int, usage gpucore.BufferUsage) (gpucore.BufferID, error) {
	if err := a.checkLost(); err != nil {
		return gpucore.InvalidID, err
	}
	if size <= 0 || uint64(size) > a.maxBuf {
		return gpucore.InvalidID, fmt.Errorf("buffer of %d bytes (max %d): %w", size, a.maxBuf, gpucore.ErrAllocation)
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	id := gpucore.BufferID(a.newID())
	a.buffers[id] = &buffer{data: make([]byte, size), usage: usage}
	a.stats.Buffers++
	a.stats.BytesLive += size
	return id, nil
}

// DestroyBuffer releases a buffer.
func (a *Adapter) DestroyBuffer(id gpucore.BufferID) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if b, ok := a.buffers[id]; ok {
		a.stats.Buffers--
		a.stats.BytesLive -= len(b.data)
		delete(a.buffers, id)
	}
}

// WriteBuffer copies data into the buffer at offset. Writes past the end
// are truncated.
func (a *Adapter) WriteBuffer(id gpucore.BufferID, offset uint64, data []byte) {
	a.mu.Lock()
	defer a.mu.Unlock()
	b, ok := a.buffers[id]
	if !ok || offset >= uint64(len(b.data)) {
		slogger().Warn("software: write to unknown buffer or past end", "id", id, "offset", offset)
		return
	}
	copy(b.data[offset:], data)
}

// ReadBuffer copies size bytes at offset.
func (a *Adapter) ReadBuffer(id gpucore.BufferID, offset, size uint64) ([]byte, error) {
	if err := a.checkLost(); err != nil {
		return nil, err
	}
	a.mu.RLock()
	defer a.mu.RUnlock()
	b, ok := a.buffers[id]
	if !ok {
		return nil, fmt.Errorf("read buffer %d: %w", id, errUnknownID)
	}
	if offset+size > uint64(len(b.data)) {
		return nil, fmt.Errorf("software: read %d bytes at %d from buffer of %d", size, offset, len(b.data))
	}
	out := make([]byte, size)
	copy(out, b.data[offset:offset+size])
	return out, nil
}

// CreateBindGroup binds buffers to a layout.
func (a *Adapter) CreateBindGroup(layout gpucore.BindGroupLayoutID, entries []gpucore.BindGroupEntry) (gpucore.BindGroupID, error) {
	if err := a.checkLost(); err != nil {
		return gpucore.InvalidID, err
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	types, ok := a.bindGroupLayouts[layout]
	if !ok {
		return gpucore.InvalidID, fmt.Errorf("bind group: layout %d: %w", layout, errUnknownID)
	}
	if len(entries) != len(types) {
		return gpucore.InvalidID, fmt.Errorf("software: bind group has %d entries, layout wants %d", len(entries), len(types))
	}
	for _, e := range entries {
		if _, ok := a.buffers[e.Buffer]; !ok {
			return gpucore.InvalidID, fmt.Errorf("bind group: buffer %d: %w", e.Buffer, errUnknownID)
		}
	}
	id := gpucore.BindGroupID(a.newID())
	a.bindGroups[id] = bindGroup{layout: layout, entries: append([]gpucore.BindGroupEntry(nil), entries...)}
	return id, nil
}

// DestroyBindGroup releases a bind group.
func (a *Adapter) DestroyBindGroup(id gpucore.BindGroupID) {
	a.mu.Lock()
	delete(a.bindGroups, id)
	a.mu.Unlock()
}

// === Command Recording ===

// BeginComputePass starts recording a compute pass.
func (a *Adapter) BeginComputePass() gpucore.ComputePassEncoder {
	return &passEncoder{adapter: a}
}

// Submit runs every ended pass in recording order.
func (a *Adapter) Submit() error {
	if err := a.checkLost(); err != nil {
		return err
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	cmds := a.pending
	a.pending = nil
	a.stats.Submits++
	for i, c := range cmds {
		if err := a.dispatchLocked(c); err != nil {
			return fmt.Errorf("submit: command %d: %w", i, err)
		}
	}
	return nil
}

// WaitIdle returns immediately; Submit is synchronous.
func (a *Adapter) WaitIdle() {}

func (a *Adapter) dispatchLocked(c command) error {
	p, ok := a.computePipelines[c.pipeline]
	if !ok {
		return fmt.Errorf("pipeline %d: %w", c.pipeline, errUnknownID)
	}
	g, ok := a.bindGroups[c.group]
	if !ok {
		return fmt.Errorf("bind group %d: %w", c.group, errUnknownID)
	}
	bufs := make([][]byte, len(g.entries))
	for _, e := range g.entries {
		b, ok := a.buffers[e.Buffer]
		if !ok {
			return fmt.Errorf("buffer %d: %w", e.Buffer, errUnknownID)
		}
		data := b.data[min(int(e.Offset), len(b.data)):] //nolint:gosec // offsets are small
		if e.Size > 0 && int(e.Size) < len(data) {           //nolint:gosec // sizes are small
			data = data[:e.Size]
		}
		bufs[e.Binding] = data
	}
	fn := cpuKernels[p.kernel]
	a.stats.Dispatches++
	return fn(a.pool, bufs, [3]uint32{c.x, c.y, c.z})
}

// passEncoder records commands until End, then queues them on the adapter.
type passEncoder struct {
	adapter  *Adapter
	pipeline gpucore.ComputePipelineID
	group    gpucore.BindGroupID
	cmds     []command
	ended    bool
}

func (e *passEncoder) SetPipeline(p gpucore.ComputePipelineID) { e.pipeline = p }

func (e *passEncoder) SetBindGroup(index uint32, g gpucore.BindGroupID) {
	if index != 0 {
		slogger().Warn("software: only bind group 0 is supported", "index", index)
		return
	}
	e.group = g
}

func (e *passEncoder) Dispatch(x, y, z uint32) {
	if e.ended || x == 0 || y == 0 || z == 0 {
		return
	}
	e.cmds = append(e.cmds, command{pipeline: e.pipeline, group: e.group, x: x, y: y, z: z})
}

func (e *passEncoder) End() {
	if e.ended {
		return
	}
	e.ended = true
	a := e.adapter
	a.mu.Lock()
	a.pending = append(a.pending, e.cmds...)
	a.mu.Unlock()
}
