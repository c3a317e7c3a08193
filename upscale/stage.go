// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

// Package upscale runs the edge-adaptive upsample (EASU) and robust
// contrast-adaptive sharpen (RCAS) passes that take the low resolution
// raymarch image to native resolution.
//
// Each pass has an init kernel that writes a small constant buffer and a
// main kernel that reads it. The init kernel is recorded only when its
// inputs changed since the last recording:
//
//	EASU constants: viewport, input and output size
//	RCAS constants: sharpness and output size
package upscale

import (
	"errors"
	"fmt"

	"github.com/gogpu/spheray/gpucore"
	"github.com/gogpu/spheray/internal/cache"
	"github.com/gogpu/spheray/internal/kernels"
)

// Sharpness range. Zero is sharpest.
const (
	MinSharpness float32 = 0
	MaxSharpness float32 = 2
)

// maxGroups bounds the image bind groups kept alive. The pipeline alternates
// between a handful of image pairs, so older pairs belong to released images.
const maxGroups = 8

// ErrSizeMismatch reports an image whose size differs from the configured
// input or output size.
var ErrSizeMismatch = errors.New("upscale: image size does not match configuration")

// Stats counts recorded dispatches.
type Stats struct {
	EASUInits int
	EASUMain  int
	RCASInits int
	RCASMain  int
}

type easuKey struct {
	viewport, input, output gpucore.Size
}

type rcasKey struct {
	sharpness float32
	output    gpucore.Size
}

type groupKey struct {
	kernel  string
	in, out gpucore.BufferID
}

// Stage owns the upscale and sharpen kernels and their constant buffers.
// It is not safe for concurrent use; the render pipeline serialises calls.
type Stage struct {
	adapter gpucore.GPUAdapter

	easuInit, easu, rcasInit, rcas *kernels.Compiled

	easuInput, easuConst gpucore.BufferID
	rcasInput, rcasConst gpucore.BufferID
	easuInitGroup        gpucore.BindGroupID
	rcasInitGroup        gpucore.BindGroupID

	config   easuKey
	easuLast *easuKey
	rcasLast *rcasKey

	groups *cache.LRU[groupKey, gpucore.BindGroupID]
	stats  Stats
}

// New compiles the four kernels and allocates their constant buffers.
func New(a gpucore.GPUAdapter) (*Stage, error) {
	s := &Stage{adapter: a}
	s.groups = cache.New(maxGroups, func(_ groupKey, g gpucore.BindGroupID) {
		a.DestroyBindGroup(g)
	})
	if err := s.init(); err != nil {
		s.Close()
		return nil, err
	}
	return s, nil
}

func (s *Stage) init() error {
	var err error
	for _, k := range []struct {
		dst  **kernels.Compiled
		name string
	}{
		{&s.easuInit, kernels.EASUInit},
		{&s.easu, kernels.EASU},
		{&s.rcasInit, kernels.RCASInit},
		{&s.rcas, kernels.RCAS},
	} {
		if *k.dst, err = kernels.Compile(s.adapter, k.name); err != nil {
			return err
		}
	}

	uniform := gpucore.BufferUsageUniform | gpucore.BufferUsageCopyDst
	storage := gpucore.BufferUsageStorage | gpucore.BufferUsageCopySrc
	for _, b := range []struct {
		dst   *gpucore.BufferID
		size  int
		usage gpucore.BufferUsage
	}{
		{&s.easuInput, kernels.EASUInputSize, uniform},
		{&s.easuConst, kernels.EASUConstantsSize, storage},
		{&s.rcasInput, kernels.RCASInputSize, uniform},
		{&s.rcasConst, kernels.RCASConstantsSize, storage},
	} {
		if *b.dst, err = s.adapter.CreateBuffer(b.size, b.usage); err != nil {
			return fmt.Errorf("upscale constants: %w", err)
		}
	}

	if s.easuInitGroup, err = s.easuInit.BindGroup(s.easuInput, s.easuConst); err != nil {
		return err
	}
	s.rcasInitGroup, err = s.rcasInit.BindGroup(s.rcasInput, s.rcasConst)
	return err
}

// Configure sets the sizes used by the next Upsample. The EASU constants
// become stale when any size differs from the last recorded init.
func (s *Stage) Configure(viewport, input, output gpucore.Size) {
	s.config = easuKey{viewport: viewport, input: input, output: output}
}

// Stale reports whether the next Upsample records the EASU init kernel.
func (s *Stage) Stale() bool {
	return s.easuLast == nil || *s.easuLast != s.config
}

// Invalidate forces both init kernels to run again, for example after the
// constant buffers may have been lost.
func (s *Stage) Invalidate() {
	s.easuLast = nil
	s.rcasLast = nil
}

// Upsample records the EASU pass from in to out.
func (s *Stage) Upsample(pass gpucore.ComputePassEncoder, in, out gpucore.Image) error {
	if in.Size != s.config.input || out.Size != s.config.output {
		return fmt.Errorf("%w: upsample %v -> %v, configured %v -> %v",
			ErrSizeMismatch, in.Size, out.Size, s.config.input, s.config.output)
	}
	if s.Stale() {
		ein := kernels.EASUInput{Viewport: s.config.viewport, Input: s.config.input, Output: s.config.output}
		s.adapter.WriteBuffer(s.easuInput, 0, ein.Bytes())
		s.easuInit.Record(pass, s.easuInitGroup, gpucore.Size{})
		key := s.config
		s.easuLast = &key
		s.stats.EASUInits++
	}
	g, err := s.group(s.easu, s.easuConst, in.Buffer, out.Buffer)
	if err != nil {
		return err
	}
	s.easu.Record(pass, g, out.Size)
	s.stats.EASUMain++
	return nil
}

// Sharpen records the RCAS pass from in to out. Sharpness is clamped to
// [MinSharpness, MaxSharpness].
func (s *Stage) Sharpen(pass gpucore.ComputePassEncoder, in, out gpucore.Image, sharpness float32) error {
	if in.Size != out.Size {
		return fmt.Errorf("%w: sharpen %v -> %v", ErrSizeMismatch, in.Size, out.Size)
	}
	sharpness = min(max(sharpness, MinSharpness), MaxSharpness)
	key := rcasKey{sharpness: sharpness, output: out.Size}
	if s.rcasLast == nil || *s.rcasLast != key {
		s.adapter.WriteBuffer(s.rcasInput, 0, kernels.RCASInput{Sharpness: sharpness, Output: out.Size}.Bytes())
		s.rcasInit.Record(pass, s.rcasInitGroup, gpucore.Size{})
		s.rcasLast = &key
		s.stats.RCASInits++
	}
	g, err := s.group(s.rcas, s.rcasConst, in.Buffer, out.Buffer)
	if err != nil {
		return err
	}
	s.rcas.Record(pass, g, out.Size)
	s.stats.RCASMain++
	return nil
}

func (s *Stage) group(c *kernels.Compiled, con, in, out gpucore.BufferID) (gpucore.BindGroupID, error) {
	key := groupKey{kernel: c.Kernel.Name, in: in, out: out}
	g, err := s.groups.GetOrCreate(key, func() (gpucore.BindGroupID, error) {
		return c.BindGroup(con, in, out)
	})
	if err != nil {
		return gpucore.InvalidID, err
	}
	return g, nil
}

// Release drops the bind groups that reference images. Call it before the
// images are destroyed.
func (s *Stage) Release() {
	s.groups.Clear()
}

// Stats returns the dispatch counters.
func (s *Stage) Stats() Stats { return s.stats }

// CachedGroups returns the number of image bind groups currently held.
func (s *Stage) CachedGroups() int { return s.groups.Len() }

// Close releases every adapter object the stage created.
func (s *Stage) Close() {
	s.Release()
	for _, g := range []*gpucore.BindGroupID{&s.easuInitGroup, &s.rcasInitGroup} {
		if *g != gpucore.InvalidID {
			s.adapter.DestroyBindGroup(*g)
			*g = gpucore.InvalidID
		}
	}
	for _, b := range []*gpucore.BufferID{&s.easuInput, &s.easuConst, &s.rcasInput, &s.rcasConst} {
		if *b != gpucore.InvalidID {
			s.adapter.DestroyBuffer(*b)
			*b = gpucore.InvalidID
		}
	}
	for _, c := range []*kernels.Compiled{s.easuInit, s.easu, s.rcasInit, s.rcas} {
		c.Destroy()
	}
	s.Invalidate()
}
