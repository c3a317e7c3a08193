package spheray

import (
	"github.com/go-gl/mathgl/mgl32"

	"github.com/gogpu/spheray/persist"
	"github.com/gogpu/spheray/prim"
	"github.com/gogpu/spheray/render"
)

// Backend selects where kernels run when New is given no adapter.
type Backend string

// Backends.
const (
	BackendAuto Backend = "auto"
	BackendCPU  Backend = "cpu"
	BackendGPU  Backend = "gpu"
)

// Option configures an Engine during creation.
//
// Example:
//
//	eng, err := spheray.New(nil,
//	    spheray.WithBackend(spheray.BackendGPU),
//	    spheray.WithSettings(settings),
//	)
type Option func(*options)

type options struct {
	backend  Backend
	provider render.DeviceHandle
	workers  int

	settings    render.Settings
	camera      render.Camera
	light       prim.Light
	followLight bool
	target      render.Target
	fly         render.FlyController

	store *persist.Store

	spawnShape     prim.Shape
	spawnSize      mgl32.Vec3
	spawnBevel     float32
	spawnSmoothing float32
}

func defaultOptions() options {
	return options{
		backend:   BackendAuto,
		settings:  render.DefaultSettings(),
		camera:    render.Camera{Position: mgl32.Vec3{0, 1, 6}},
		light:     prim.DefaultLight(),
		fly:       render.DefaultFlyController(),
		spawnSize: mgl32.Vec3{1, 1, 1},
	}
}

// WithBackend chooses the adapter New creates. It has no effect when New
// is passed an adapter.
func WithBackend(b Backend) Option {
	return func(o *options) { o.backend = b }
}

// WithDeviceProvider shares the host application's GPU device instead of
// opening a new one. The provider must expose HAL device and queue
// accessors; gogpu's provider does.
//
// Example:
//
//	eng, err := spheray.New(nil, spheray.WithDeviceProvider(app.GPUContextProvider()))
func WithDeviceProvider(p render.DeviceHandle) Option {
	return func(o *options) { o.provider = p }
}

// WithWorkers sets the worker count of the CPU backend.
func WithWorkers(n int) Option {
	return func(o *options) { o.workers = n }
}

// WithSettings sets the initial render settings.
func WithSettings(s render.Settings) Option {
	return func(o *options) { o.settings = s }
}

// WithCamera sets the initial camera.
func WithCamera(c render.Camera) Option {
	return func(o *options) { o.camera = c }
}

// WithLight sets the initial light.
func WithLight(l prim.Light) Option {
	return func(o *options) { o.light = l }
}

// WithLightFollowsCamera moves the light to the camera on every Update.
func WithLightFollowsCamera(on bool) Option {
	return func(o *options) { o.followLight = on }
}

// WithTarget sets where rendered frames are presented.
func WithTarget(t render.Target) Option {
	return func(o *options) { o.target = t }
}

// WithFlyController sets the speeds used by Fly.
func WithFlyController(f render.FlyController) Option {
	return func(o *options) { o.fly = f }
}

// WithStore enables Save, Load and Saves.
func WithStore(s *persist.Store) Option {
	return func(o *options) { o.store = s }
}

// WithSpawnDefaults sets the shape, size, bevel and smoothing of spawned
// primitives.
func WithSpawnDefaults(shape prim.Shape, size mgl32.Vec3, bevel, smoothing float32) Option {
	return func(o *options) {
		o.spawnShape = shape
		o.spawnSize = size
		o.spawnBevel = bevel
		o.spawnSmoothing = smoothing
	}
}
