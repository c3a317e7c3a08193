package software

import (
	"encoding/binary"
	"fmt"

	"github.com/gogpu/spheray/gpucore"
	"github.com/gogpu/spheray/internal/kernels"
)

// kernelFunc runs one dispatch of groups workgroups over the bound buffers.
type kernelFunc func(pool *workerPool, bufs [][]byte, groups [3]uint32) error

var cpuKernels = map[string]kernelFunc{
	kernels.Raymarch: raymarch,
	kernels.EASUInit: easuInit,
	kernels.EASU:     easu,
	kernels.RCASInit: rcasInit,
	kernels.RCAS:     rcas,
}

// invocations returns the extent covered by groups tiles of side tile,
// clipped to size. A dispatch that is too small leaves the rest untouched.
func invocations(groups [3]uint32, tile int, size gpucore.Size) gpucore.Size {
	return gpucore.Size{
		Width:  min(int(groups[0])*tile, size.Width),
		Height: min(int(groups[1])*tile, size.Height),
	}
}

func need(bufs [][]byte, sizes ...int) error {
	if len(bufs) != len(sizes) {
		return fmt.Errorf("software: kernel takes %d bindings, got %d", len(sizes), len(bufs))
	}
	for i, n := range sizes {
		if len(bufs[i]) < n {
			return fmt.Errorf("software: binding %d holds %d bytes, need %d", i, len(bufs[i]), n)
		}
	}
	return nil
}

func putTexel(dst []byte, i int, v uint32) {
	binary.LittleEndian.PutUint32(dst[i*4:], v)
}

func easuInit(_ *workerPool, bufs [][]byte, _ [3]uint32) error {
	if err := need(bufs, kernels.EASUInputSize, kernels.EASUConstantsSize); err != nil {
		return err
	}
	c := kernels.ComputeEASUConstants(kernels.DecodeEASUInput(bufs[0]))
	copy(bufs[1], c.Bytes())
	return nil
}

func rcasInit(_ *workerPool, bufs [][]byte, _ [3]uint32) error {
	if err := need(bufs, kernels.RCASInputSize, kernels.RCASConstantsSize); err != nil {
		return err
	}
	c := kernels.ComputeRCASConstants(kernels.DecodeRCASInput(bufs[0]))
	copy(bufs[1], c.Bytes())
	return nil
}
