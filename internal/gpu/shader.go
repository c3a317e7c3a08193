//go:build !nogpu

package gpu

import (
	"encoding/binary"
	"fmt"

	"github.com/gogpu/naga"
)

// compileWGSL translates WGSL to SPIR-V words.
func compileWGSL(label, source string) ([]uint32, error) {
	spirv, err := naga.Compile(source)
	if err != nil {
		return nil, fmt.Errorf("gpu: compile %s: %w", label, err)
	}
	if len(spirv)%4 != 0 {
		return nil, fmt.Errorf("gpu: compile %s: SPIR-V length %d is not a word multiple", label, len(spirv))
	}
	words := make([]uint32, len(spirv)/4)
	for i := range words {
		words[i] = binary.LittleEndian.Uint32(spirv[i*4:])
	}
	return words, nil
}
