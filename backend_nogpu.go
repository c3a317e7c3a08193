//go:build nogpu

package spheray

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/gogpu/spheray/gpucore"
)

func setBackendLogger(*slog.Logger) {}

func openAdapter(o *options) (gpucore.GPUAdapter, func(), Backend, error) {
	switch o.backend {
	case BackendCPU, BackendAuto, "":
		a, closeFn := openCPU(o)
		return a, closeFn, BackendCPU, nil
	case BackendGPU:
		return nil, nil, "", errors.New("spheray: built without GPU support (nogpu)")
	}
	return nil, nil, "", fmt.Errorf("spheray: unknown backend %q", o.backend)
}
