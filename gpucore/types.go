package gpucore

// Opaque handles. Adapters map them to backend objects; zero is never
// handed out.
type (
	BufferID          uint64
	ShaderModuleID    uint64
	ComputePipelineID uint64
	BindGroupLayoutID uint64
	BindGroupID       uint64
	PipelineLayoutID  uint64
)

// InvalidID is the null handle of every kind.
const InvalidID = 0

// BufferUsage is a bitmask of buffer roles. The bit positions match WebGPU
// so the hal adapter can convert without a table.
type BufferUsage uint32

const (
	BufferUsageMapRead BufferUsage = 1 << 0
	BufferUsageCopySrc BufferUsage = 1 << 2
	BufferUsageCopyDst BufferUsage = 1 << 3
	BufferUsageUniform BufferUsage = 1 << 6
	BufferUsageStorage BufferUsage = 1 << 7
)

// BindingType is the kind of buffer bound at one kernel binding slot.
type BindingType uint32

const (
	BindingTypeUniformBuffer BindingType = iota + 1
	BindingTypeStorageBuffer
	BindingTypeReadOnlyStorageBuffer
)

// ShaderModuleDesc describes a compute shader module.
type ShaderModuleDesc struct {
	// Label names the kernel. The CPU adapter selects its Go kernel by
	// label, so it must be one of the kernel names.
	Label string

	// WGSL is the shader source. Adapters that need SPIR-V compile it.
	WGSL string

	// SPIRV, when set, is used instead of compiling WGSL.
	SPIRV []uint32
}

// ComputePipelineDesc binds a module entry point to a pipeline layout.
type ComputePipelineDesc struct {
	Label        string
	Layout       PipelineLayoutID
	ShaderModule ShaderModuleID
	EntryPoint   string
}

// BindGroupLayoutDesc lists the binding slots of one kernel.
type BindGroupLayoutDesc struct {
	Label   string
	Entries []BindGroupLayoutEntry
}

// BindGroupLayoutEntry is one binding slot.
type BindGroupLayoutEntry struct {
	Binding uint32
	Type    BindingType
}

// BindGroupEntry binds a buffer range to a slot. A zero Size binds the rest
// of the buffer from Offset.
type BindGroupEntry struct {
	Binding uint32
	Buffer  BufferID
	Offset  uint64
	Size    uint64
}
