package spheray

import (
	"github.com/gogpu/spheray/gpucore"
	"github.com/gogpu/spheray/internal/software"
)

func openCPU(o *options) (gpucore.GPUAdapter, func()) {
	var opts []software.Option
	if o.workers > 0 {
		opts = append(opts, software.WithWorkers(o.workers))
	}
	a := software.New(opts...)
	return a, a.Close
}
