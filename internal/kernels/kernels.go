// Package kernels holds the compute kernels of the render pipeline: their
// WGSL sources, bind layouts and uniform encodings.
//
// Every kernel reads and writes images as storage buffers of packed RGBA8
// texels (see [Pack]). A backend compiles the WGSL; the software backend
// instead runs a Go kernel selected by [Kernel.Name].
package kernels

import (
	"embed"
	"fmt"

	"github.com/gogpu/spheray/gpucore"
)

//go:embed shaders/*.wgsl
var shaderFS embed.FS

// Kernel names.
const (
	Raymarch = "raymarch"
	EASUInit = "easu_init"
	EASU     = "easu"
	RCASInit = "rcas_init"
	RCAS     = "rcas"
)

// EntryPoint is the entry point of every kernel.
const EntryPoint = "main"

// Kernel describes one compute kernel.
type Kernel struct {
	Name string

	// Tile is the workgroup side in invocations. Zero for kernels that
	// dispatch a single workgroup.
	Tile int

	// Bindings lists the group 0 bindings in binding order.
	Bindings []gpucore.BindingType
}

var registry = map[string]Kernel{
	Raymarch: {
		Name: Raymarch,
		Tile: gpucore.RaymarchTileSize,
		Bindings: []gpucore.BindingType{
			gpucore.BindingTypeUniformBuffer,         // params
			gpucore.BindingTypeReadOnlyStorageBuffer, // primitives
			gpucore.BindingTypeStorageBuffer,         // output image
		},
	},
	EASUInit: {
		Name: EASUInit,
		Bindings: []gpucore.BindingType{
			gpucore.BindingTypeUniformBuffer, // EASUInput
			gpucore.BindingTypeStorageBuffer, // constants
		},
	},
	EASU: {
		Name: EASU,
		Tile: gpucore.TileSize,
		Bindings: []gpucore.BindingType{
			gpucore.BindingTypeReadOnlyStorageBuffer, // constants
			gpucore.BindingTypeReadOnlyStorageBuffer, // input image
			gpucore.BindingTypeStorageBuffer,         // output image
		},
	},
	RCASInit: {
		Name: RCASInit,
		Bindings: []gpucore.BindingType{
			gpucore.BindingTypeUniformBuffer, // RCASInput
			gpucore.BindingTypeStorageBuffer, // constants
		},
	},
	RCAS: {
		Name: RCAS,
		Tile: gpucore.TileSize,
		Bindings: []gpucore.BindingType{
			gpucore.BindingTypeReadOnlyStorageBuffer, // constants
			gpucore.BindingTypeReadOnlyStorageBuffer, // input image
			gpucore.BindingTypeStorageBuffer,         // output image
		},
	},
}

// Lookup returns the kernel called name.
func Lookup(name string) (Kernel, bool) {
	k, ok := registry[name]
	return k, ok
}

// Source returns the kernel's WGSL source.
func (k Kernel) Source() (string, error) {
	b, err := shaderFS.ReadFile("shaders/" + k.Name + ".wgsl")
	if err != nil {
		return "", fmt.Errorf("kernels: source for %q: %w", k.Name, err)
	}
	return string(b), nil
}

// LayoutDesc returns the bind group layout of the kernel.
func (k Kernel) LayoutDesc() *gpucore.BindGroupLayoutDesc {
	entries := make([]gpucore.BindGroupLayoutEntry, len(k.Bindings))
	for i, t := range k.Bindings {
		entries[i] = gpucore.BindGroupLayoutEntry{Binding: uint32(i), Type: t} //nolint:gosec // few bindings
	}
	return &gpucore.BindGroupLayoutDesc{Label: k.Name + "_layout", Entries: entries}
}

// Workgroups returns the dispatch size covering s.
func (k Kernel) Workgroups(s gpucore.Size) (x, y, z uint32) {
	if k.Tile == 0 {
		return 1, 1, 1
	}
	return gpucore.Workgroups(s, k.Tile)
}
