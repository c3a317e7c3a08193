// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

package render

import (
	"image/color"

	"github.com/chewxy/math32"

	"github.com/gogpu/spheray/upscale"
)

// Change thresholds for tracked parameters.
const (
	FOVEpsilon       float32 = 0.01
	ScaleEpsilon     float32 = 0.01
	IntensityEpsilon float32 = 0.01
)

// Settings are the user-tunable render parameters.
type Settings struct {
	// FOV is the vertical field of view in degrees.
	FOV float32

	// Scale divides the native resolution to get the raymarch resolution,
	// in [upscale.MinScale, upscale.MaxScale].
	Scale float32

	Sharpening bool

	// Sharpness is 0 (sharpest) to 2.
	Sharpness float32

	ReflectionCount     int
	ReflectionIntensity float32
	AOIntensity         float32
	AASamples           int

	// QualityCutoff gates the fill pass: when 1/Scale is below it, freshly
	// created native images are cleared to Background before first use.
	QualityCutoff float32

	Background color.RGBA
}

// DefaultSettings returns the ultra quality preset with sharpening on.
func DefaultSettings() Settings {
	return Settings{
		FOV:           60,
		Scale:         upscale.MinScale,
		Sharpening:    true,
		Sharpness:     0.2,
		AASamples:     1,
		QualityCutoff: 0.9,
		Background:    color.RGBA{A: 255},
	}
}

// Clamp returns s with every field moved into its valid range.
func (s Settings) Clamp() Settings {
	s.FOV = clampf(s.FOV, 1, 179)
	s.Scale = clampf(s.Scale, upscale.MinScale, upscale.MaxScale)
	s.Sharpness = clampf(s.Sharpness, upscale.MinSharpness, upscale.MaxSharpness)
	s.ReflectionCount = min(max(s.ReflectionCount, 0), 2)
	s.ReflectionIntensity = clampf(s.ReflectionIntensity, 0, 1)
	s.AOIntensity = clampf(s.AOIntensity, 0, 1)
	s.AASamples = min(max(s.AASamples, 1), 8)
	s.QualityCutoff = clampf(s.QualityCutoff, 0, 1)
	return s
}

// Quality returns the render quality 1/Scale.
func (s Settings) Quality() float32 { return 1 / s.Scale }

// settingsDiff says what applying next over prev affects.
type settingsDiff struct {
	scale   bool // images and viewport
	shader  bool // raymarch constants only
	present bool // upscale/sharpen/fill only
}

// apply merges next into prev. Epsilon-tracked fields keep their previous
// value when the change is within the epsilon.
func apply(prev, next Settings) (Settings, settingsDiff) {
	var d settingsDiff
	out := next
	if !changed(prev.Scale, next.Scale, ScaleEpsilon) {
		out.Scale = prev.Scale
	} else {
		d.scale = true
	}
	if !changed(prev.FOV, next.FOV, FOVEpsilon) {
		out.FOV = prev.FOV
	} else {
		d.shader = true
	}
	if !changed(prev.ReflectionIntensity, next.ReflectionIntensity, IntensityEpsilon) {
		out.ReflectionIntensity = prev.ReflectionIntensity
	} else {
		d.shader = true
	}
	if !changed(prev.AOIntensity, next.AOIntensity, IntensityEpsilon) {
		out.AOIntensity = prev.AOIntensity
	} else {
		d.shader = true
	}
	if prev.ReflectionCount != next.ReflectionCount || prev.AASamples != next.AASamples {
		d.shader = true
	}
	if prev.Sharpening != next.Sharpening || prev.Sharpness != next.Sharpness ||
		prev.QualityCutoff != next.QualityCutoff || prev.Background != next.Background {
		d.present = true
	}
	return out, d
}

func changed(a, b, eps float32) bool { return math32.Abs(a-b) > eps }

func clampf(v, lo, hi float32) float32 { return min(max(v, lo), hi) }
