package prim

import (
	"errors"
	"testing"

	"github.com/go-gl/mathgl/mgl32"
)

func TestBufferValidate(t *testing.T) {
	tests := []struct {
		name    string
		parents []int32
		wantErr bool
	}{
		{"single root", []int32{-1}, false},
		{"chain", []int32{-1, 0, 1, 2}, false},
		{"fan", []int32{-1, 0, 0, 0}, false},
		{"empty", nil, true},
		{"root not first", []int32{0, -1}, true},
		{"two roots", []int32{-1, -1}, true},
		{"forward parent", []int32{-1, 2, 0}, true},
		{"self parent", []int32{-1, 1}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			prims := make([]Primitive, len(tt.parents))
			for i, p := range tt.parents {
				prims[i].Parent = p
			}
			err := NewBuffer(prims).Validate()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrMalformed) {
				t.Errorf("Validate() error = %v, want ErrMalformed", err)
			}
		})
	}
}

func TestBufferBytesLayout(t *testing.T) {
	p := Primitive{
		Position:  mgl32.Vec3{1, 2, 3},
		Size:      mgl32.Vec3{4, 5, 6},
		Bevel:     0.1,
		Smoothing: 0.25,
		Transform: mgl32.Translate3D(1, 2, 3),
		Operation: Difference,
		Parent:    -1,
		Shape:     Torus,
	}
	data := NewBuffer([]Primitive{p, {Parent: 0, Shape: Box}}).Bytes()
	if got, want := len(data), 2*PrimitiveStride; got != want {
		t.Fatalf("len(Bytes()) = %d, want %d", got, want)
	}
	got := DecodePrimitive(data)
	if got != p {
		t.Errorf("DecodePrimitive() = %+v, want %+v", got, p)
	}
	second := DecodePrimitive(data[PrimitiveStride:])
	if second.Parent != 0 || second.Shape != Box {
		t.Errorf("second record = parent %d shape %v, want parent 0 shape Box", second.Parent, second.Shape)
	}
}

func TestEmptyBufferBytes(t *testing.T) {
	if got := len(Buffer{}.Bytes()); got != PrimitiveStride {
		t.Errorf("len(Bytes()) = %d, want %d", got, PrimitiveStride)
	}
}

func TestBufferPrimitivesIsCopy(t *testing.T) {
	b := NewBuffer([]Primitive{{Parent: -1}})
	out := b.Primitives()
	out[0].Bevel = 0.3
	if b.At(0).Bevel != 0 {
		t.Error("Primitives() shares storage with the buffer")
	}
}
