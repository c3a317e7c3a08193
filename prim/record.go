package prim

import (
	"errors"
	"fmt"

	"github.com/go-gl/mathgl/mgl32"
)

// ErrMalformed reports persisted data that cannot form a valid hierarchy.
var ErrMalformed = errors.New("prim: malformed primitive data")

// Vec3 is the persisted form of a vector.
type Vec3 struct {
	X float32 `json:"x"`
	Y float32 `json:"y"`
	Z float32 `json:"z"`
}

// Matrix is the persisted form of a 4x4 matrix, one field per element
// named e<row><col>.
type Matrix struct {
	E00 float32 `json:"e00"`
	E01 float32 `json:"e01"`
	E02 float32 `json:"e02"`
	E03 float32 `json:"e03"`
	E10 float32 `json:"e10"`
	E11 float32 `json:"e11"`
	E12 float32 `json:"e12"`
	E13 float32 `json:"e13"`
	E20 float32 `json:"e20"`
	E21 float32 `json:"e21"`
	E22 float32 `json:"e22"`
	E23 float32 `json:"e23"`
	E30 float32 `json:"e30"`
	E31 float32 `json:"e31"`
	E32 float32 `json:"e32"`
	E33 float32 `json:"e33"`
}

// Record is one entry of a saved scene.
type Record struct {
	Position  Vec3      `json:"pos"`
	Size      Vec3      `json:"size"`
	Bevel     float32   `json:"bevel"`
	Smoothing float32   `json:"smoothing,omitempty"`
	Rotation  Matrix    `json:"rotationMatrix"`
	Operation Operation `json:"sdfOperation"`
	Parent    int32     `json:"parentIndex"`
	Shape     Shape     `json:"type"`
}

// Document is the top-level saved scene.
type Document struct {
	Primitives []Record `json:"primitives"`
}

func toVec3(v mgl32.Vec3) Vec3 { return Vec3{X: v[0], Y: v[1], Z: v[2]} }

// Vec returns v as an mgl32 vector.
func (v Vec3) Vec() mgl32.Vec3 { return mgl32.Vec3{v.X, v.Y, v.Z} }

func toMatrix(m mgl32.Mat4) Matrix {
	return Matrix{
		E00: m.At(0, 0), E01: m.At(0, 1), E02: m.At(0, 2), E03: m.At(0, 3),
		E10: m.At(1, 0), E11: m.At(1, 1), E12: m.At(1, 2), E13: m.At(1, 3),
		E20: m.At(2, 0), E21: m.At(2, 1), E22: m.At(2, 2), E23: m.At(2, 3),
		E30: m.At(3, 0), E31: m.At(3, 1), E32: m.At(3, 2), E33: m.At(3, 3),
	}
}

// Mat4 returns m as a column-major mgl32 matrix.
func (m Matrix) Mat4() mgl32.Mat4 {
	return mgl32.Mat4{
		m.E00, m.E10, m.E20, m.E30,
		m.E01, m.E11, m.E21, m.E31,
		m.E02, m.E12, m.E22, m.E32,
		m.E03, m.E13, m.E23, m.E33,
	}
}

// ToRecord converts p to its persisted form. parent is the position of the
// parent in the saved order, which may differ from p.Parent.
func ToRecord(p Primitive, parent int32) Record {
	return Record{
		Position:  toVec3(p.Position),
		Size:      toVec3(p.Size),
		Bevel:     p.Bevel,
		Smoothing: p.Smoothing,
		Rotation:  toMatrix(p.Transform),
		Operation: p.Operation,
		Parent:    parent,
		Shape:     p.Shape,
	}
}

// Primitive converts r back to a primitive record.
func (r Record) Primitive() Primitive {
	return Primitive{
		Position:  r.Position.Vec(),
		Size:      r.Size.Vec(),
		Bevel:     r.Bevel,
		Smoothing: r.Smoothing,
		Transform: r.Rotation.Mat4(),
		Operation: r.Operation,
		Parent:    r.Parent,
		Shape:     r.Shape,
	}
}

// ValidateRecords rejects a record list that cannot be loaded: it must be
// non-empty, fit MaxPrimitives, start with the only root and reference
// every parent before the child. A parent at or after the child is the only
// way a flat list can encode a cycle, so the ordering rule also rules out
// cycles.
func ValidateRecords(records []Record) error {
	if len(records) == 0 {
		return fmt.Errorf("%w: no primitives", ErrMalformed)
	}
	if len(records) > MaxPrimitives {
		return fmt.Errorf("%w: %d primitives, limit is %d", ErrMalformed, len(records), MaxPrimitives)
	}
	for i := range records {
		r := &records[i]
		switch {
		case i == 0 && r.Parent != -1:
			return fmt.Errorf("%w: first record must be the root, has parent %d", ErrMalformed, r.Parent)
		case i > 0 && r.Parent < 0:
			return fmt.Errorf("%w: record %d is a second root", ErrMalformed, i)
		case int(r.Parent) >= len(records):
			return fmt.Errorf("%w: record %d parent %d out of range", ErrMalformed, i, r.Parent)
		case i > 0 && int(r.Parent) >= i:
			return fmt.Errorf("%w: record %d parent %d does not precede it", ErrMalformed, i, r.Parent)
		}
		if !r.Shape.Valid() {
			return fmt.Errorf("%w: record %d has unknown shape %d", ErrMalformed, i, int32(r.Shape))
		}
		if !r.Operation.Valid() {
			return fmt.Errorf("%w: record %d has unknown operation %d", ErrMalformed, i, int32(r.Operation))
		}
		if r.Bevel < 0 || r.Bevel > MaxBevel {
			return fmt.Errorf("%w: record %d bevel %g outside [0, %g]", ErrMalformed, i, r.Bevel, MaxBevel)
		}
		if r.Smoothing < 0 || r.Smoothing > MaxSmoothing {
			return fmt.Errorf("%w: record %d smoothing %g outside [0, %g]", ErrMalformed, i, r.Smoothing, MaxSmoothing)
		}
	}
	return nil
}
