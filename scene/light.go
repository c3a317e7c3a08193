package scene

import (
	"sync"

	"github.com/chewxy/math32"
	"github.com/go-gl/mathgl/mgl32"

	"github.com/gogpu/spheray/event"
	"github.com/gogpu/spheray/prim"
)

// IntensityEpsilon is the smallest light intensity change that counts.
const IntensityEpsilon float32 = 0.1

// LightTracker owns the scene light and publishes LightChanged when it
// moves, changes colour, or changes intensity by more than
// IntensityEpsilon.
type LightTracker struct {
	mu    sync.Mutex
	bus   *event.Bus
	light prim.Light
	prev  prim.Light
}

// NewLightTracker returns a tracker for light. The initial state is treated
// as already published.
func NewLightTracker(bus *event.Bus, light prim.Light) *LightTracker {
	if bus == nil {
		bus = event.NewBus()
	}
	return &LightTracker{bus: bus, light: light, prev: light}
}

// Light returns the current light.
func (l *LightTracker) Light() prim.Light {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.light
}

// Set replaces the light.
func (l *LightTracker) Set(light prim.Light) {
	l.mu.Lock()
	l.light = light
	l.mu.Unlock()
}

// SetPosition moves the light.
func (l *LightTracker) SetPosition(p mgl32.Vec3) {
	l.mu.Lock()
	l.light.Position = p
	l.mu.Unlock()
}

// NotifyIfChanged publishes LightChanged if the light changed since the last
// notification and reports whether it did.
func (l *LightTracker) NotifyIfChanged() bool {
	l.mu.Lock()
	cur := l.light
	changed := cur.Color != l.prev.Color || cur.Position != l.prev.Position ||
		math32.Abs(cur.Intensity-l.prev.Intensity) > IntensityEpsilon
	if changed {
		l.prev = cur
	}
	l.mu.Unlock()

	if changed {
		slogger().Debug("scene: light changed", "intensity", cur.Intensity)
		l.bus.LightChanged.Publish(cur)
	}
	return changed
}
