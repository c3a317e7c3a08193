package gpucore

// GPUAdapter abstracts over compute backends.
//
// Implementations must be safe for concurrent use.
//
// Resource lifecycle:
//   - Resources are created via Create* methods
//   - Resources must be explicitly destroyed via Destroy* methods
//   - Destroying a resource while in use is undefined behavior
//   - IDs become invalid after destruction and are never reused
//
// Create* methods wrap allocation failures with [ErrAllocation]. Any method
// returning an error may return [ErrDeviceLost], after which the adapter is
// unusable.
type GPUAdapter interface {
	// === Capabilities ===

	// SupportsCompute returns whether compute shaders are supported.
	SupportsCompute() bool

	// MaxBufferSize returns the maximum buffer size in bytes.
	MaxBufferSize() uint64

	// === Shaders and Pipelines ===

	// CreateShaderModule creates a compute shader module.
	CreateShaderModule(desc *ShaderModuleDesc) (ShaderModuleID, error)

	// DestroyShaderModule releases a shader module.
	DestroyShaderModule(id ShaderModuleID)

	// CreateBindGroupLayout creates a bind group layout.
	CreateBindGroupLayout(desc *BindGroupLayoutDesc) (BindGroupLayoutID, error)

	// DestroyBindGroupLayout releases a bind group layout.
	DestroyBindGroupLayout(id BindGroupLayoutID)

	// CreatePipelineLayout creates a pipeline layout from bind group layouts.
	CreatePipelineLayout(layouts []BindGroupLayoutID) (PipelineLayoutID, error)

	// DestroyPipelineLayout releases a pipeline layout.
	DestroyPipelineLayout(id PipelineLayoutID)

	// CreateComputePipeline creates a compute pipeline.
	CreateComputePipeline(desc *ComputePipelineDesc) (ComputePipelineID, error)

	// DestroyComputePipeline releases a compute pipeline.
	DestroyComputePipeline(id ComputePipelineID)

	// === Buffers and Bindings ===

	// CreateBuffer creates a zero-initialised buffer of size bytes.
	CreateBuffer(size int, usage BufferUsage) (BufferID, error)

	// DestroyBuffer releases a buffer.
	DestroyBuffer(id BufferID)

	// WriteBuffer writes data at offset. The write is ordered before every
	// later Submit.
	WriteBuffer(id BufferID, offset uint64, data []byte)

	// ReadBuffer copies size bytes at offset back to the CPU, waiting for
	// submitted work that writes the buffer.
	ReadBuffer(id BufferID, offset, size uint64) ([]byte, error)

	// CreateBindGroup binds resources to a layout.
	CreateBindGroup(layout BindGroupLayoutID, entries []BindGroupEntry) (BindGroupID, error)

	// DestroyBindGroup releases a bind group.
	DestroyBindGroup(id BindGroupID)

	// === Command Recording ===

	// BeginComputePass starts recording a compute pass.
	BeginComputePass() ComputePassEncoder

	// Submit executes every pass ended since the last Submit, in recording
	// order.
	Submit() error

	// WaitIdle blocks until submitted work has finished.
	WaitIdle()
}

// ComputePassEncoder records compute commands.
//
// Usage pattern:
//  1. Obtain encoder from GPUAdapter.BeginComputePass()
//  2. Set pipeline and bind groups
//  3. Dispatch compute workgroups
//  4. Call End() to finish recording
//  5. Call GPUAdapter.Submit() to execute
//
// The encoder is single-use and cannot be reused after End().
type ComputePassEncoder interface {
	// SetPipeline sets the active compute pipeline.
	SetPipeline(pipeline ComputePipelineID)

	// SetBindGroup sets a bind group at the specified index.
	SetBindGroup(index uint32, group BindGroupID)

	// Dispatch dispatches compute workgroups.
	Dispatch(x, y, z uint32)

	// End finishes the compute pass.
	End()
}
