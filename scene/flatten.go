package scene

import (
	"fmt"

	"github.com/go-gl/mathgl/mgl32"

	"github.com/gogpu/spheray/prim"
)

// orderLocked returns the live nodes breadth-first from the trunk root.
// With reverse set, each node's children are visited last to first.
func (t *Tracker) orderLocked(reverse bool) []Handle {
	order := make([]Handle, 0, t.count)
	order = append(order, t.root)
	for i := 0; i < len(order); i++ {
		children := t.nodes[order[i].index].children
		if reverse {
			for c := len(children) - 1; c >= 0; c-- {
				order = append(order, children[c])
			}
		} else {
			order = append(order, children...)
		}
	}
	return order
}

// buildLocked flattens the given order, resolving parents to positions in
// the same order.
func (t *Tracker) buildLocked(order []Handle) []prim.Primitive {
	pos := make(map[uint32]int32, len(order))
	prims := make([]prim.Primitive, len(order))
	for i, h := range order {
		pos[h.index] = int32(i) //nolint:gosec // bounded by MaxPrimitives
		n := &t.nodes[h.index]
		parent := int32(-1)
		if !n.parent.IsZero() {
			parent = pos[n.parent.index]
		}
		prims[i] = n.primitive(parent)
	}
	return prims
}

func (t *Tracker) flattenLocked() prim.Buffer {
	t.last = prim.NewBuffer(t.buildLocked(t.orderLocked(true)))
	return t.last
}

// Flatten rebuilds the flat buffer breadth-first from the trunk root,
// visiting children last to first, and publishes BufferUpdated.
func (t *Tracker) Flatten() prim.Buffer {
	t.mu.Lock()
	buf := t.flattenLocked()
	t.mu.Unlock()
	t.bus.BufferUpdated.Publish(buf)
	return buf
}

// Records returns the scene in save order: breadth-first with children in
// forward order, parents given as positions in the returned list. Loading
// the result rebuilds the same child order.
func (t *Tracker) Records() []prim.Record {
	t.mu.Lock()
	defer t.mu.Unlock()
	prims := t.buildLocked(t.orderLocked(false))
	records := make([]prim.Record, len(prims))
	for i := range prims {
		records[i] = prim.ToRecord(prims[i], prims[i].Parent)
	}
	return records
}

// Load replaces the hierarchy with records and flattens. The records are
// validated first; on error the live hierarchy is untouched.
func (t *Tracker) Load(records []prim.Record) error {
	if err := prim.ValidateRecords(records); err != nil {
		return fmt.Errorf("scene: load: %w", err)
	}

	t.mu.Lock()
	t.clearLocked()
	handles := make([]Handle, len(records))
	for i := range records {
		r := &records[i]
		var parent Handle
		if r.Parent >= 0 {
			parent = handles[r.Parent]
		}
		h := t.allocLocked(parent, r.Operation)
		n := &t.nodes[h.index]
		n.shape = r.Shape
		n.position = r.Position.Vec()
		n.rotation = mgl32.Mat4ToQuat(r.Rotation.Mat4())
		n.size = r.Size.Vec()
		n.bevel = r.Bevel
		n.smoothing = r.Smoothing
		handles[i] = h
	}
	t.root = handles[0]
	t.refreshLocked()
	buf := t.flattenLocked()
	t.mu.Unlock()

	slogger().Info("scene: loaded", "primitives", buf.Len())
	t.bus.BufferUpdated.Publish(buf)
	return nil
}
