// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

package upscale

// Scale factor range.
const (
	MinScale float32 = 1.3
	MaxScale float32 = 2.0
)

// MipBias returns the texture LOD bias that keeps detail at the given
// scale factor: -0.38 at MinScale falling to -1 at MaxScale.
func MipBias(scale float32) float32 {
	t := (scale - MinScale) / (MaxScale - MinScale)
	t = min(max(t, 0), 1)
	return -(0.38 + (1-0.38)*t)
}
