package scene

import (
	"github.com/go-gl/mathgl/mgl32"

	"github.com/gogpu/spheray/prim"
)

// Handle addresses a node in a Tracker. Handles are generation checked: a
// handle to a removed node stays invalid even after its slot is reused.
// The zero Handle is never valid.
type Handle struct {
	index uint32
	gen   uint32
}

// IsZero reports whether h is the zero handle.
func (h Handle) IsZero() bool { return h.gen == 0 }

// NodeView is a read-only copy of a node's state.
type NodeView struct {
	Handle    Handle
	Name      string
	Shape     prim.Shape
	Operation prim.Operation
	Position  mgl32.Vec3
	Rotation  mgl32.Quat
	Size      mgl32.Vec3
	Bevel     float32
	Smoothing float32

	// Parent is the zero handle for the root.
	Parent   Handle
	Children []Handle
}

// snapshot holds the values a node had at the last tick.
type snapshot struct {
	sibling   int
	parent    Handle
	operation prim.Operation
	shape     prim.Shape
	bevel     float32
	smoothing float32
}

type node struct {
	gen   uint32
	alive bool
	name  string

	shape     prim.Shape
	operation prim.Operation
	position  mgl32.Vec3
	rotation  mgl32.Quat
	size      mgl32.Vec3
	bevel     float32
	smoothing float32

	parent   Handle
	children []Handle

	prev           snapshot
	transformDirty bool
}

// transform returns the world transform with unit scale.
func (n *node) transform() mgl32.Mat4 {
	return mgl32.Translate3D(n.position[0], n.position[1], n.position[2]).Mul4(n.rotation.Normalize().Mat4())
}

func (n *node) primitive(parent int32) prim.Primitive {
	return prim.Primitive{
		Position:  n.position,
		Size:      n.size,
		Bevel:     n.bevel,
		Smoothing: n.smoothing,
		Transform: n.transform(),
		Operation: n.operation,
		Parent:    parent,
		Shape:     n.shape,
	}
}

func (n *node) view(h Handle) NodeView {
	children := make([]Handle, len(n.children))
	copy(children, n.children)
	return NodeView{
		Handle:    h,
		Name:      n.name,
		Shape:     n.shape,
		Operation: n.operation,
		Position:  n.position,
		Rotation:  n.rotation,
		Size:      n.size,
		Bevel:     n.bevel,
		Smoothing: n.smoothing,
		Parent:    n.parent,
		Children:  children,
	}
}
