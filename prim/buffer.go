package prim

import (
	"encoding/binary"
	"fmt"
	"math"
)

// PrimitiveStride is the std430 size of one primitive in the kernel's
// storage buffer.
//
//	offset  field
//	     0  transform  mat4x4<f32>
//	    64  position   vec3<f32>
//	    76  bevel      f32
//	    80  size       vec3<f32>
//	    92  smoothing  f32
//	    96  operation  i32
//	   100  parent     i32
//	   104  shape      i32
//	   108  (pad)
const PrimitiveStride = 112

// Buffer is a breadth-first ordered primitive list.
type Buffer struct {
	prims []Primitive
}

// NewBuffer wraps prims without copying.
func NewBuffer(prims []Primitive) Buffer {
	return Buffer{prims: prims}
}

// Len returns the number of primitives.
func (b Buffer) Len() int { return len(b.prims) }

// At returns the primitive at index i.
func (b Buffer) At(i int) Primitive { return b.prims[i] }

// Primitives returns a copy of the records.
func (b Buffer) Primitives() []Primitive {
	out := make([]Primitive, len(b.prims))
	copy(out, b.prims)
	return out
}

// Validate checks the ordering invariants: exactly one root at index 0 and
// every parent before its child.
func (b Buffer) Validate() error {
	if len(b.prims) == 0 {
		return fmt.Errorf("%w: empty buffer", ErrMalformed)
	}
	for i := range b.prims {
		p := b.prims[i].Parent
		switch {
		case i == 0 && p != -1:
			return fmt.Errorf("%w: record 0 has parent %d", ErrMalformed, p)
		case i > 0 && p < 0:
			return fmt.Errorf("%w: record %d is a second root", ErrMalformed, i)
		case i > 0 && int(p) >= i:
			return fmt.Errorf("%w: record %d has parent %d at or after itself", ErrMalformed, i, p)
		}
	}
	return nil
}

// Bytes packs the buffer as std430 records of PrimitiveStride bytes.
// An empty buffer packs to one zeroed record so the storage binding is never
// zero-sized.
func (b Buffer) Bytes() []byte {
	n := len(b.prims)
	if n == 0 {
		return make([]byte, PrimitiveStride)
	}
	out := make([]byte, n*PrimitiveStride)
	for i := range b.prims {
		putPrimitive(out[i*PrimitiveStride:], &b.prims[i])
	}
	return out
}

func putPrimitive(dst []byte, p *Primitive) {
	le := binary.LittleEndian
	for i := 0; i < 16; i++ {
		le.PutUint32(dst[i*4:], math.Float32bits(p.Transform[i]))
	}
	putVec3(dst[64:], p.Position)
	le.PutUint32(dst[76:], math.Float32bits(p.Bevel))
	putVec3(dst[80:], p.Size)
	le.PutUint32(dst[92:], math.Float32bits(p.Smoothing))
	le.PutUint32(dst[96:], uint32(p.Operation)) //nolint:gosec // enum fits
	le.PutUint32(dst[100:], uint32(p.Parent))   //nolint:gosec // -1 round-trips as two's complement
	le.PutUint32(dst[104:], uint32(p.Shape))    //nolint:gosec // enum fits
}

func putVec3(dst []byte, v [3]float32) {
	for i := 0; i < 3; i++ {
		binary.LittleEndian.PutUint32(dst[i*4:], math.Float32bits(v[i]))
	}
}

// DecodePrimitive reads one record packed by Buffer.Bytes.
func DecodePrimitive(src []byte) Primitive {
	le := binary.LittleEndian
	var p Primitive
	for i := 0; i < 16; i++ {
		p.Transform[i] = math.Float32frombits(le.Uint32(src[i*4:]))
	}
	p.Position = getVec3(src[64:])
	p.Bevel = math.Float32frombits(le.Uint32(src[76:]))
	p.Size = getVec3(src[80:])
	p.Smoothing = math.Float32frombits(le.Uint32(src[92:]))
	p.Operation = Operation(int32(le.Uint32(src[96:]))) //nolint:gosec // two's complement
	p.Parent = int32(le.Uint32(src[100:]))              //nolint:gosec // two's complement
	p.Shape = Shape(int32(le.Uint32(src[104:])))        //nolint:gosec // two's complement
	return p
}

func getVec3(src []byte) [3]float32 {
	var v [3]float32
	for i := 0; i < 3; i++ {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(src[i*4:]))
	}
	return v
}
