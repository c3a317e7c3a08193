// Package event carries change notifications from the scene trackers to the
// render pipeline.
//
// Delivery is synchronous and in subscription order. A channel keeps no
// history: a listener subscribed after a publish never sees it.
package event

import (
	"sync"

	"github.com/gogpu/spheray/prim"
)

// Signal is the payload of notifications that carry no data.
type Signal struct{}

// Listener receives values published on a Channel.
type Listener[T any] interface {
	Notify(T)
}

// Handler adapts a function to a Listener. Use a *Handler as the
// subscription identity: subscribing the same pointer twice is a no-op.
type Handler[T any] struct {
	fn func(T)
}

// Func returns a Handler calling fn.
func Func[T any](fn func(T)) *Handler[T] {
	return &Handler[T]{fn: fn}
}

// Notify calls the wrapped function.
func (h *Handler[T]) Notify(v T) { h.fn(v) }

type entry[T any] struct {
	l       Listener[T]
	removed bool
}

// Channel is a single notification stream. The zero value is ready to use.
// Listeners are compared by interface equality, so they must be of a
// comparable dynamic type (typically a pointer).
type Channel[T any] struct {
	mu      sync.Mutex
	entries []*entry[T]
}

// Subscribe adds l. It returns false if l is already subscribed.
func (c *Channel[T]) Subscribe(l Listener[T]) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, e := range c.entries {
		if e.l == l {
			return false
		}
	}
	c.entries = append(c.entries, &entry[T]{l: l})
	return true
}

// Unsubscribe removes l. It returns false if l was not subscribed.
// A listener removed while a Publish is in flight is not called for the
// rest of that publish.
func (c *Channel[T]) Unsubscribe(l Listener[T]) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i, e := range c.entries {
		if e.l == l {
			e.removed = true
			c.entries = append(c.entries[:i:i], c.entries[i+1:]...)
			return true
		}
	}
	return false
}

// Publish delivers v to every current listener in subscription order.
// Listeners may subscribe and unsubscribe from within Notify.
func (c *Channel[T]) Publish(v T) {
	c.mu.Lock()
	snapshot := make([]*entry[T], len(c.entries))
	copy(snapshot, c.entries)
	c.mu.Unlock()

	for _, e := range snapshot {
		c.mu.Lock()
		skip := e.removed
		c.mu.Unlock()
		if skip {
			continue
		}
		e.l.Notify(v)
	}
}

// Len returns the number of subscribed listeners.
func (c *Channel[T]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Bus groups the four channels shared by the scene and the renderer.
type Bus struct {
	// BufferUpdated fires after every flatten with the new primitive buffer.
	BufferUpdated Channel[prim.Buffer]

	// HierarchyChanged fires when sibling order or parenting changed, or a
	// node disappeared.
	HierarchyChanged Channel[Signal]

	// PrimitiveValueChanged fires when an operation, shape, bevel or
	// smoothing value changed beyond its epsilon.
	PrimitiveValueChanged Channel[Signal]

	// LightChanged fires with the new light state.
	LightChanged Channel[prim.Light]
}

// NewBus returns an empty bus.
func NewBus() *Bus { return &Bus{} }
