// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

package render

import "github.com/gogpu/spheray/prim"

// Option configures a Pipeline.
type Option func(*options)

type options struct {
	target   Target
	settings Settings
	camera   Camera
	light    prim.Light
	enabled  bool
}

func defaultOptions() options {
	return options{
		settings: DefaultSettings(),
		camera:   Camera{Position: [3]float32{0, 1, 6}},
		light:    prim.DefaultLight(),
		enabled:  true,
	}
}

// WithTarget sets where frames are presented. Without a target frames are
// only kept for LastFrame.
func WithTarget(t Target) Option {
	return func(o *options) { o.target = t }
}

// WithSettings sets the initial settings. They are clamped.
func WithSettings(s Settings) Option {
	return func(o *options) { o.settings = s.Clamp() }
}

// WithCamera sets the initial camera.
func WithCamera(c Camera) Option {
	return func(o *options) { o.camera = c }
}

// WithLight sets the light used until the first LightChanged.
func WithLight(l prim.Light) Option {
	return func(o *options) { o.light = l }
}

// WithDisabled creates the pipeline without subscribing to the bus.
func WithDisabled() Option {
	return func(o *options) { o.enabled = false }
}
