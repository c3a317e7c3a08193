package spheray

import (
	"errors"
	"fmt"
	"sync"

	"github.com/gogpu/spheray/event"
	"github.com/gogpu/spheray/gpucore"
	"github.com/gogpu/spheray/persist"
	"github.com/gogpu/spheray/prim"
	"github.com/gogpu/spheray/render"
	"github.com/gogpu/spheray/scene"
)

var (
	// ErrNoStore is returned by Save, Load and Saves on an engine created
	// without WithStore.
	ErrNoStore = errors.New("spheray: no scene store configured")

	// ErrClosed is returned after Close.
	ErrClosed = errors.New("spheray: engine closed")
)

// Engine wires a scene tracker, a light tracker and a render pipeline to
// one event bus and one adapter.
type Engine struct {
	mu sync.Mutex

	adapter      gpucore.GPUAdapter
	closeAdapter func()
	backend      Backend

	bus      *event.Bus
	scene    *scene.Tracker
	lights   *scene.LightTracker
	pipeline *render.Pipeline
	store    *persist.Store

	fly            render.FlyController
	followLight    bool
	spawnBevel     float32
	spawnSmoothing float32
	closed         bool
}

// New creates an engine. With a nil adapter it opens one according to
// WithBackend and WithDeviceProvider, and Close releases it; an adapter
// passed in stays owned by the caller.
func New(adapter gpucore.GPUAdapter, opts ...Option) (*Engine, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}

	e := &Engine{
		adapter:        adapter,
		closeAdapter:   func() {},
		backend:        "external",
		bus:            event.NewBus(),
		store:          o.store,
		fly:            o.fly,
		followLight:    o.followLight,
		spawnBevel:     o.spawnBevel,
		spawnSmoothing: o.spawnSmoothing,
	}
	if adapter == nil {
		a, closeFn, backend, err := openAdapter(&o)
		if err != nil {
			return nil, err
		}
		e.adapter, e.closeAdapter, e.backend = a, closeFn, backend
	}

	// The pipeline subscribes before the tracker publishes its first buffer.
	popts := []render.Option{
		render.WithSettings(o.settings),
		render.WithCamera(o.camera),
		render.WithLight(o.light),
	}
	if o.target != nil {
		popts = append(popts, render.WithTarget(o.target))
	}
	p, err := render.New(e.adapter, e.bus, popts...)
	if err != nil {
		e.closeAdapter()
		return nil, fmt.Errorf("spheray: %w", err)
	}
	e.pipeline = p

	sopts := []scene.Option{scene.WithDefaultSize(o.spawnSize)}
	if o.spawnShape.Valid() {
		sopts = append(sopts, scene.WithDefaultShape(o.spawnShape))
	}
	e.scene = scene.New(e.bus, sopts...)
	e.lights = scene.NewLightTracker(e.bus, o.light)

	Logger().Info("spheray: engine ready", "backend", e.backend)
	return e, nil
}

// Backend reports which adapter the engine runs on: cpu, gpu or external.
func (e *Engine) Backend() Backend { return e.backend }

// Adapter returns the adapter kernels run on.
func (e *Engine) Adapter() gpucore.GPUAdapter { return e.adapter }

// Bus returns the event bus shared by the trackers and the pipeline.
func (e *Engine) Bus() *event.Bus { return e.bus }

// Scene returns the primitive hierarchy.
func (e *Engine) Scene() *scene.Tracker { return e.scene }

// Lights returns the light tracker.
func (e *Engine) Lights() *scene.LightTracker { return e.lights }

// Pipeline returns the render pipeline.
func (e *Engine) Pipeline() *render.Pipeline { return e.pipeline }

// Camera returns the current camera.
func (e *Engine) Camera() render.Camera { return e.pipeline.Camera() }

// SetCamera replaces the camera. The next Render raymarches.
func (e *Engine) SetCamera(c render.Camera) { e.pipeline.SetCamera(c) }

// Fly moves the camera by one tick of input.
func (e *Engine) Fly(in render.FlyInput, dt float32) {
	e.pipeline.SetCamera(e.fly.Update(e.pipeline.Camera(), in, dt))
}

// Update is the per-tick hook. It moves the light to the camera when
// following is on, then publishes scene and light changes. It returns what
// the scene diff found.
func (e *Engine) Update() scene.Change {
	e.mu.Lock()
	follow, closed := e.followLight, e.closed
	e.mu.Unlock()
	if closed {
		return scene.ChangeNone
	}
	if follow {
		e.lights.SetPosition(e.pipeline.Camera().Position)
	}
	change := e.scene.NotifyIfChanged()
	e.lights.NotifyIfChanged()
	return change
}

// SetLightFollowsCamera toggles light following.
func (e *Engine) SetLightFollowsCamera(on bool) {
	e.mu.Lock()
	e.followLight = on
	e.mu.Unlock()
}

// Render draws one frame at the native size. On allocation failure the
// previous frame is presented and an error wrapping
// render.ErrResourceAllocation is returned.
func (e *Engine) Render(width, height int) error {
	if e.isClosed() {
		return ErrClosed
	}
	return e.pipeline.RenderFrame(width, height)
}

// Enable subscribes the pipeline to the bus and republishes the current
// scene and light, so edits made while disabled reach the next frame.
func (e *Engine) Enable() {
	if e.isClosed() || e.pipeline.Enabled() {
		return
	}
	e.pipeline.Enable()
	e.scene.Flatten()
	e.bus.LightChanged.Publish(e.lights.Light())
}

// Disable unsubscribes the pipeline; Render keeps presenting stale state.
func (e *Engine) Disable() { e.pipeline.Disable() }

// Spawn adds a primitive under the root with the configured spawn bevel
// and smoothing.
func (e *Engine) Spawn(op prim.Operation) (scene.Handle, error) {
	if e.isClosed() {
		return scene.Handle{}, ErrClosed
	}
	h, err := e.scene.Spawn(op)
	if err != nil {
		return h, err
	}
	if e.spawnBevel > 0 {
		if err := e.scene.SetBevel(h, e.spawnBevel); err != nil {
			return h, err
		}
	}
	if e.spawnSmoothing > 0 {
		if err := e.scene.SetSmoothing(h, e.spawnSmoothing); err != nil {
			return h, err
		}
	}
	return h, nil
}

// Save writes the hierarchy under name. It never overwrites: an existing
// name returns persist.ErrConflict.
func (e *Engine) Save(name string) error {
	if e.isClosed() {
		return ErrClosed
	}
	if e.store == nil {
		return ErrNoStore
	}
	if err := e.store.Save(name, e.scene.Records()); err != nil {
		return err
	}
	Logger().Info("spheray: scene saved", "name", name)
	return nil
}

// Load replaces the hierarchy with the saved scene called name. On any
// error the live hierarchy is unchanged.
func (e *Engine) Load(name string) error {
	if e.isClosed() {
		return ErrClosed
	}
	if e.store == nil {
		return ErrNoStore
	}
	records, err := e.store.Load(name)
	if err != nil {
		return err
	}
	return e.scene.Load(records)
}

// Saves lists the saved scene names.
func (e *Engine) Saves() ([]string, error) {
	if e.isClosed() {
		return nil, ErrClosed
	}
	if e.store == nil {
		return nil, ErrNoStore
	}
	return e.store.List()
}

func (e *Engine) isClosed() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.closed
}

// Close releases the pipeline and, when New opened it, the adapter.
// It is safe to call more than once.
func (e *Engine) Close() {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	e.closed = true
	e.mu.Unlock()

	e.pipeline.Close()
	e.closeAdapter()
}
