package prim

import (
	"fmt"
	"strings"

	"github.com/go-gl/mathgl/mgl32"
)

// MaxPrimitives is the largest scene the raymarch kernel accepts.
const MaxPrimitives = 20

// Bevel and smoothing bounds.
const (
	MaxBevel     float32 = 0.4
	MaxSmoothing float32 = 1
)

// Shape selects the signed distance function of a primitive.
type Shape int32

// Shapes, in kernel order.
const (
	Sphere Shape = iota
	Box
	Plane
	Cylinder
	Ellipsoid
	Torus
	HexPrism
)

var shapeNames = [...]string{"Sphere", "Box", "Plane", "Cylinder", "Ellipsoid", "Torus", "HexPrism"}

// Valid reports whether s is a known shape.
func (s Shape) Valid() bool { return s >= Sphere && s <= HexPrism }

func (s Shape) String() string {
	if !s.Valid() {
		return fmt.Sprintf("Shape(%d)", int32(s))
	}
	return shapeNames[s]
}

// ParseShape maps a shape name, matched case-insensitively, to a Shape.
func ParseShape(name string) (Shape, error) {
	for i, n := range shapeNames {
		if strings.EqualFold(n, name) {
			return Shape(i), nil //nolint:gosec // index fits
		}
	}
	return Sphere, fmt.Errorf("prim: unknown shape %q", name)
}

// Operation combines a primitive with the accumulated result of the
// primitives before it.
type Operation int32

// Operations, in kernel order.
const (
	Union Operation = iota
	Difference
	Intersection
)

var operationNames = [...]string{"Union", "Difference", "Intersection"}

// Valid reports whether op is a known operation.
func (op Operation) Valid() bool { return op >= Union && op <= Intersection }

func (op Operation) String() string {
	if !op.Valid() {
		return fmt.Sprintf("Operation(%d)", int32(op))
	}
	return operationNames[op]
}

// ParseOperation maps a case-sensitive lower or title case name to an
// Operation.
func ParseOperation(name string) (Operation, error) {
	switch name {
	case "union", "Union":
		return Union, nil
	case "difference", "Difference":
		return Difference, nil
	case "intersection", "Intersection":
		return Intersection, nil
	}
	return Union, fmt.Errorf("prim: unknown operation %q", name)
}

// Primitive is one flattened SDF primitive.
type Primitive struct {
	Position mgl32.Vec3
	Size     mgl32.Vec3
	Bevel    float32

	// Smoothing blends the operation with its accumulated result. Zero
	// gives a hard boolean.
	Smoothing float32

	// Transform is the world transform with unit scale: rotation plus
	// translation. Size carries the scale.
	Transform mgl32.Mat4

	Operation Operation
	Parent    int32
	Shape     Shape
}

// Root reports whether p has no parent.
func (p *Primitive) Root() bool { return p.Parent < 0 }

// Light is the point light the raymarch kernel shades with.
type Light struct {
	Position  mgl32.Vec3
	Color     mgl32.Vec4
	Intensity float32
}

// DefaultLight is a white light above and behind the origin.
func DefaultLight() Light {
	return Light{
		Position:  mgl32.Vec3{2, 4, -3},
		Color:     mgl32.Vec4{1, 1, 1, 1},
		Intensity: 1,
	}
}
