package scene

import (
	"github.com/go-gl/mathgl/mgl32"

	"github.com/gogpu/spheray/prim"
)

// Option configures a Tracker.
type Option func(*options)

type options struct {
	shape prim.Shape
	size  mgl32.Vec3
}

func defaultOptions() options {
	return options{
		shape: prim.Sphere,
		size:  mgl32.Vec3{1, 1, 1},
	}
}

// WithDefaultShape sets the shape of the root and of spawned primitives.
func WithDefaultShape(s prim.Shape) Option {
	return func(o *options) {
		if s.Valid() {
			o.shape = s
		}
	}
}

// WithDefaultSize sets the size of the root and of spawned primitives.
func WithDefaultSize(size mgl32.Vec3) Option {
	return func(o *options) {
		o.size = size
	}
}
