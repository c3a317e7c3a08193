//go:build !nogpu

package spheray

import (
	"fmt"
	"log/slog"

	"github.com/gogpu/spheray/gpucore"
	"github.com/gogpu/spheray/internal/gpu"
	"github.com/gogpu/spheray/render"
)

func setBackendLogger(l *slog.Logger) { gpu.SetLogger(l) }

func openGPU(o *options) (gpucore.GPUAdapter, func(), error) {
	var (
		a   *gpu.Adapter
		err error
	)
	if render.HasDevice(o.provider) {
		a, err = gpu.FromProvider(o.provider)
	} else {
		a, err = gpu.Open()
	}
	if err != nil {
		return nil, nil, err
	}
	return a, a.Close, nil
}

func openAdapter(o *options) (gpucore.GPUAdapter, func(), Backend, error) {
	switch o.backend {
	case BackendCPU:
		a, closeFn := openCPU(o)
		return a, closeFn, BackendCPU, nil
	case BackendGPU, BackendAuto, "":
		a, closeFn, err := openGPU(o)
		if err == nil {
			return a, closeFn, BackendGPU, nil
		}
		if o.backend == BackendGPU {
			return nil, nil, "", fmt.Errorf("spheray: %w", err)
		}
		Logger().Warn("spheray: GPU unavailable, using CPU backend", "err", err)
		a, closeFn = openCPU(o)
		return a, closeFn, BackendCPU, nil
	}
	return nil, nil, "", fmt.Errorf("spheray: unknown backend %q", o.backend)
}
