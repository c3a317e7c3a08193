// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

// Package render drives the resolution-adaptive frame pipeline.
//
// Each frame raymarches the primitive buffer into a low resolution image,
// upsamples it to native resolution with EASU, optionally sharpens it with
// RCAS, and presents the result to a Target:
//
//	BufferUpdated/LightChanged ──► dirty
//	                                 │
//	native / scale ──► low image ──► raymarch (only when dirty)
//	                                 │
//	                            EASU (every frame) ──► RCAS (optional) ──► Target
//
// The raymarch pass dominates frame cost, so it is skipped when nothing it
// reads changed since the last frame. Parameters are compared against the
// last applied value with a per-field epsilon (see Settings).
//
// When an intermediate image cannot be allocated, RenderFrame presents the
// last good frame and returns an error wrapping ErrResourceAllocation; the
// next call retries. A lost device is returned as gpucore.ErrDeviceLost.
package render
