// Package scene owns the live primitive hierarchy and the scene light, and
// turns edits into change notifications and flat primitive buffers.
//
// Nodes live in an arena and are addressed by generation-checked
// [Handle]s. Children are ordered; the order matters because the flattened
// buffer applies each operation to the accumulated result of the
// primitives before it.
package scene

import (
	"errors"
	"fmt"
	"sync"

	"github.com/chewxy/math32"
	"github.com/go-gl/mathgl/mgl32"

	"github.com/gogpu/spheray/event"
	"github.com/gogpu/spheray/prim"
)

// Change-detection thresholds.
const (
	BevelEpsilon     float32 = 0.01
	SmoothingEpsilon float32 = 0.005
)

var (
	// ErrCapacityExceeded is returned by Spawn when the scene already
	// holds prim.MaxPrimitives nodes.
	ErrCapacityExceeded = errors.New("scene: primitive capacity exceeded")

	// ErrStaleHandle is returned for handles to removed nodes.
	ErrStaleHandle = errors.New("scene: stale or invalid handle")

	// ErrRootImmutable is returned when an edit would remove or reparent
	// the trunk root.
	ErrRootImmutable = errors.New("scene: root cannot be removed or reparented")

	// ErrCycle is returned when a reparent would make a node its own
	// ancestor.
	ErrCycle = errors.New("scene: reparent would create a cycle")
)

// Change classifies what NotifyIfChanged found.
type Change int

// Changes, in priority order.
const (
	ChangeNone Change = iota
	ChangeTransform
	ChangeValue
	ChangeHierarchy
)

func (c Change) String() string {
	switch c {
	case ChangeNone:
		return "None"
	case ChangeTransform:
		return "Transform"
	case ChangeValue:
		return "Value"
	case ChangeHierarchy:
		return "Hierarchy"
	}
	return fmt.Sprintf("Change(%d)", int(c))
}

// Tracker owns the primitive hierarchy.
//
// Mutators only change live state. NotifyIfChanged, called once per tick,
// compares live state against the previous tick, publishes the matching
// notification and rebuilds the flat buffer.
//
// Tracker is safe for concurrent use. Notifications are published after the
// internal lock is released, so listeners may call back into the tracker.
type Tracker struct {
	mu   sync.Mutex
	bus  *event.Bus
	opts options

	nodes []node
	free  []uint32
	root  Handle
	count int

	// lost is set when a node was removed since the last tick.
	lost bool

	last prim.Buffer
}

// New returns a tracker holding a single trunk root and publishes its first
// buffer. bus may be nil for a tracker nobody listens to.
func New(bus *event.Bus, opts ...Option) *Tracker {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	if bus == nil {
		bus = event.NewBus()
	}
	t := &Tracker{bus: bus, opts: o}
	t.mu.Lock()
	t.resetLocked()
	buf := t.flattenLocked()
	t.mu.Unlock()
	t.bus.BufferUpdated.Publish(buf)
	return t
}

// Bus returns the bus the tracker publishes on.
func (t *Tracker) Bus() *event.Bus { return t.bus }

func (t *Tracker) resetLocked() {
	t.clearLocked()
	t.root = t.allocLocked(Handle{}, prim.Union)
	t.refreshLocked()
}

// clearLocked kills every node but keeps the slots, so generations keep
// counting up and handles from before the clear stay invalid.
func (t *Tracker) clearLocked() {
	t.free = t.free[:0]
	for i := len(t.nodes) - 1; i >= 0; i-- {
		n := &t.nodes[i]
		n.alive = false
		n.children = nil
		t.free = append(t.free, uint32(i)) //nolint:gosec // bounded
	}
	t.count = 0
	t.lost = false
}

// allocLocked creates a node under parent. A zero parent creates a root.
func (t *Tracker) allocLocked(parent Handle, op prim.Operation) Handle {
	var idx uint32
	if n := len(t.free); n > 0 {
		idx = t.free[n-1]
		t.free = t.free[:n-1]
	} else {
		t.nodes = append(t.nodes, node{})
		idx = uint32(len(t.nodes) - 1) //nolint:gosec // bounded by MaxPrimitives
	}
	n := &t.nodes[idx]
	gen := n.gen + 1
	*n = node{
		gen:            gen,
		alive:          true,
		name:           fmt.Sprintf("Primitive %d", t.count),
		shape:          t.opts.shape,
		operation:      op,
		rotation:       mgl32.QuatIdent(),
		size:           t.opts.size,
		parent:         parent,
		transformDirty: true,
	}
	h := Handle{index: idx, gen: gen}
	if !parent.IsZero() {
		p := &t.nodes[parent.index]
		n.position = p.position
		p.children = append(p.children, h)
		n.prev = t.snapshotLocked(h)
	}
	t.count++
	return h
}

func (t *Tracker) get(h Handle) (*node, error) {
	if h.IsZero() || int(h.index) >= len(t.nodes) {
		return nil, ErrStaleHandle
	}
	n := &t.nodes[h.index]
	if !n.alive || n.gen != h.gen {
		return nil, ErrStaleHandle
	}
	return n, nil
}

func (t *Tracker) siblingIndexLocked(h Handle) int {
	n := &t.nodes[h.index]
	if n.parent.IsZero() {
		return 0
	}
	for i, c := range t.nodes[n.parent.index].children {
		if c == h {
			return i
		}
	}
	return -1
}

func (t *Tracker) snapshotLocked(h Handle) snapshot {
	n := &t.nodes[h.index]
	return snapshot{
		sibling:   t.siblingIndexLocked(h),
		parent:    n.parent,
		operation: n.operation,
		shape:     n.shape,
		bevel:     n.bevel,
		smoothing: n.smoothing,
	}
}

// refreshLocked caches every live node's current values.
func (t *Tracker) refreshLocked() {
	for i := range t.nodes {
		n := &t.nodes[i]
		if !n.alive {
			continue
		}
		n.prev = t.snapshotLocked(Handle{index: uint32(i), gen: n.gen}) //nolint:gosec // bounded
		n.transformDirty = false
	}
	t.lost = false
}

// Root returns the trunk root handle.
func (t *Tracker) Root() Handle {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.root
}

// Len returns the number of primitives in the scene.
func (t *Tracker) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.count
}

// Spawn adds a primitive with operation op as the last child of the trunk
// root. At capacity it returns ErrCapacityExceeded and changes nothing.
func (t *Tracker) Spawn(op prim.Operation) (Handle, error) {
	if !op.Valid() {
		return Handle{}, fmt.Errorf("scene: spawn: invalid operation %d", int32(op))
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.count >= prim.MaxPrimitives {
		slogger().Warn("scene: spawn rejected", "count", t.count, "max", prim.MaxPrimitives)
		return Handle{}, fmt.Errorf("%w: max %d primitives", ErrCapacityExceeded, prim.MaxPrimitives)
	}
	h := t.allocLocked(t.root, op)
	slogger().Debug("scene: spawned primitive", "name", t.nodes[h.index].name, "op", op)
	return h, nil
}

// Node returns a copy of the node's state.
func (t *Tracker) Node(h Handle) (NodeView, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	n, err := t.get(h)
	if err != nil {
		return NodeView{}, err
	}
	return n.view(h), nil
}

func (t *Tracker) edit(h Handle, fn func(n *node)) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	n, err := t.get(h)
	if err != nil {
		return err
	}
	fn(n)
	return nil
}

// SetShape changes the node's shape.
func (t *Tracker) SetShape(h Handle, s prim.Shape) error {
	if !s.Valid() {
		return fmt.Errorf("scene: invalid shape %d", int32(s))
	}
	return t.edit(h, func(n *node) { n.shape = s })
}

// SetOperation changes the node's boolean operation.
func (t *Tracker) SetOperation(h Handle, op prim.Operation) error {
	if !op.Valid() {
		return fmt.Errorf("scene: invalid operation %d", int32(op))
	}
	return t.edit(h, func(n *node) { n.operation = op })
}

// SetBevel sets the bevel radius, clamped to [0, prim.MaxBevel].
func (t *Tracker) SetBevel(h Handle, bevel float32) error {
	return t.edit(h, func(n *node) { n.bevel = clamp(bevel, 0, prim.MaxBevel) })
}

// SetSmoothing sets the smoothing factor, clamped to [0, prim.MaxSmoothing].
func (t *Tracker) SetSmoothing(h Handle, smoothing float32) error {
	return t.edit(h, func(n *node) { n.smoothing = clamp(smoothing, 0, prim.MaxSmoothing) })
}

// SetTransform sets the node's world position, rotation and size.
func (t *Tracker) SetTransform(h Handle, pos mgl32.Vec3, rot mgl32.Quat, size mgl32.Vec3) error {
	return t.edit(h, func(n *node) {
		n.position = pos
		n.rotation = rot
		n.size = size
		n.transformDirty = true
	})
}

// MoveSibling moves the node to position index among its siblings. The
// index is clamped to the sibling range.
func (t *Tracker) MoveSibling(h Handle, index int) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	n, err := t.get(h)
	if err != nil {
		return err
	}
	if n.parent.IsZero() {
		return nil
	}
	siblings := t.nodes[n.parent.index].children
	cur := t.siblingIndexLocked(h)
	index = max(0, min(index, len(siblings)-1))
	if cur == index {
		return nil
	}
	siblings = append(siblings[:cur], siblings[cur+1:]...)
	siblings = append(siblings[:index], append([]Handle{h}, siblings[index:]...)...)
	t.nodes[n.parent.index].children = siblings
	return nil
}

// Reparent moves the node to the end of parent's children.
func (t *Tracker) Reparent(h, parent Handle) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	n, err := t.get(h)
	if err != nil {
		return err
	}
	if _, err := t.get(parent); err != nil {
		return err
	}
	if h == t.root {
		return ErrRootImmutable
	}
	for a := parent; !a.IsZero(); a = t.nodes[a.index].parent {
		if a == h {
			return ErrCycle
		}
	}
	if n.parent == parent {
		return nil
	}
	t.detachLocked(h)
	n.parent = parent
	t.nodes[parent.index].children = append(t.nodes[parent.index].children, h)
	return nil
}

func (t *Tracker) detachLocked(h Handle) {
	n := &t.nodes[h.index]
	if n.parent.IsZero() {
		return
	}
	p := &t.nodes[n.parent.index]
	for i, c := range p.children {
		if c == h {
			p.children = append(p.children[:i], p.children[i+1:]...)
			return
		}
	}
}

// Remove deletes the node and its subtree. The trunk root cannot be removed.
func (t *Tracker) Remove(h Handle) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, err := t.get(h); err != nil {
		return err
	}
	if h == t.root {
		return ErrRootImmutable
	}
	t.detachLocked(h)
	t.freeLocked(h)
	t.lost = true
	return nil
}

func (t *Tracker) freeLocked(h Handle) {
	n := &t.nodes[h.index]
	for _, c := range n.children {
		t.freeLocked(c)
	}
	n.alive = false
	n.children = nil
	t.free = append(t.free, h.index)
	t.count--
}

// Reset replaces the hierarchy with a single trunk root and flattens.
func (t *Tracker) Reset() prim.Buffer {
	t.mu.Lock()
	t.resetLocked()
	buf := t.flattenLocked()
	t.mu.Unlock()
	t.bus.BufferUpdated.Publish(buf)
	return buf
}

// NotifyIfChanged compares every node against the previous tick.
//
// A changed sibling position or parent, or a removed node, is a hierarchy
// change: one HierarchyChanged notification is published, the buffer is
// rebuilt and value checks are skipped for the tick. Otherwise a changed
// operation or shape, or a bevel or smoothing change beyond its epsilon,
// publishes one PrimitiveValueChanged notification and rebuilds. A moved
// node rebuilds without either notification. Every rebuild publishes
// BufferUpdated.
func (t *Tracker) NotifyIfChanged() Change {
	t.mu.Lock()
	change := t.detectLocked()
	var buf prim.Buffer
	if change != ChangeNone {
		buf = t.flattenLocked()
	}
	t.mu.Unlock()

	switch change {
	case ChangeHierarchy:
		slogger().Debug("scene: hierarchy changed", "count", buf.Len())
		t.bus.HierarchyChanged.Publish(event.Signal{})
	case ChangeValue:
		slogger().Debug("scene: primitive value changed")
		t.bus.PrimitiveValueChanged.Publish(event.Signal{})
	case ChangeNone:
		return change
	}
	t.bus.BufferUpdated.Publish(buf)
	return change
}

func (t *Tracker) detectLocked() Change {
	structural := t.lost
	for i := range t.nodes {
		n := &t.nodes[i]
		if structural {
			break
		}
		if !n.alive {
			continue
		}
		h := Handle{index: uint32(i), gen: n.gen} //nolint:gosec // bounded
		if t.siblingIndexLocked(h) != n.prev.sibling || n.parent != n.prev.parent {
			structural = true
		}
	}
	if structural {
		t.refreshLocked()
		return ChangeHierarchy
	}

	valueChanged := false
	moved := false
	for i := range t.nodes {
		n := &t.nodes[i]
		if !n.alive {
			continue
		}
		if n.operation != n.prev.operation || n.shape != n.prev.shape ||
			math32.Abs(n.bevel-n.prev.bevel) > BevelEpsilon ||
			math32.Abs(n.smoothing-n.prev.smoothing) > SmoothingEpsilon {
			n.prev.operation = n.operation
			n.prev.shape = n.shape
			n.prev.bevel = n.bevel
			n.prev.smoothing = n.smoothing
			valueChanged = true
		}
		if n.transformDirty {
			n.transformDirty = false
			moved = true
		}
	}
	switch {
	case valueChanged:
		return ChangeValue
	case moved:
		return ChangeTransform
	}
	return ChangeNone
}

// Last returns the buffer produced by the most recent flatten.
func (t *Tracker) Last() prim.Buffer {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.last
}

// Walk calls fn for every node in breadth-first order, children in
// forward order, until fn returns false.
func (t *Tracker) Walk(fn func(NodeView) bool) {
	t.mu.Lock()
	order := t.orderLocked(false)
	views := make([]NodeView, len(order))
	for i, h := range order {
		views[i] = t.nodes[h.index].view(h)
	}
	t.mu.Unlock()
	for _, v := range views {
		if !fn(v) {
			return
		}
	}
}

func clamp(v, lo, hi float32) float32 {
	return math32.Max(lo, math32.Min(v, hi))
}
