package kernels

import (
	"encoding/binary"
	"math"

	"github.com/go-gl/mathgl/mgl32"

	"github.com/gogpu/spheray/gpucore"
	"github.com/gogpu/spheray/prim"
)

// Raymarch constants.
const (
	MaxDistance float32 = 64
	Epsilon     float32 = 0.004
	MaxSteps    uint32  = 128
)

// RaymarchParamsSize is the uniform size of RaymarchParams.
const RaymarchParamsSize = 144

// RaymarchParams is the raymarch kernel's uniform block.
//
//	offset  field
//	     0  cam_to_world          mat4x4<f32>
//	    64  light_pos             vec3<f32>
//	    76  light_intensity       f32
//	    80  light_color           vec4<f32>
//	    96  max_dist              f32
//	   100  epsilon               f32
//	   104  max_steps             u32
//	   108  num_primitives        u32
//	   112  reflection_count      u32
//	   116  reflection_intensity  f32
//	   120  ao_intensity          f32
//	   124  aa_samples            u32
//	   128  width                 u32
//	   132  height                u32
//	   136  tan_half_fov          f32
//	   140  aspect                f32
type RaymarchParams struct {
	CamToWorld          mgl32.Mat4
	Light               prim.Light
	MaxDist             float32
	Epsilon             float32
	MaxSteps            uint32
	NumPrimitives       uint32
	ReflectionCount     uint32
	ReflectionIntensity float32
	AOIntensity         float32
	AASamples           uint32
	Width               uint32
	Height              uint32
	TanHalfFOV          float32
	Aspect              float32
}

// Bytes packs p into its uniform layout.
func (p *RaymarchParams) Bytes() []byte {
	b := make([]byte, RaymarchParamsSize)
	for i := 0; i < 16; i++ {
		putF32(b[i*4:], p.CamToWorld[i])
	}
	for i := 0; i < 3; i++ {
		putF32(b[64+i*4:], p.Light.Position[i])
	}
	putF32(b[76:], p.Light.Intensity)
	for i := 0; i < 4; i++ {
		putF32(b[80+i*4:], p.Light.Color[i])
	}
	putF32(b[96:], p.MaxDist)
	putF32(b[100:], p.Epsilon)
	putU32(b[104:], p.MaxSteps)
	putU32(b[108:], p.NumPrimitives)
	putU32(b[112:], p.ReflectionCount)
	putF32(b[116:], p.ReflectionIntensity)
	putF32(b[120:], p.AOIntensity)
	putU32(b[124:], p.AASamples)
	putU32(b[128:], p.Width)
	putU32(b[132:], p.Height)
	putF32(b[136:], p.TanHalfFOV)
	putF32(b[140:], p.Aspect)
	return b
}

// DecodeRaymarchParams reads a block packed by RaymarchParams.Bytes.
func DecodeRaymarchParams(b []byte) RaymarchParams {
	var p RaymarchParams
	for i := 0; i < 16; i++ {
		p.CamToWorld[i] = getF32(b[i*4:])
	}
	for i := 0; i < 3; i++ {
		p.Light.Position[i] = getF32(b[64+i*4:])
	}
	p.Light.Intensity = getF32(b[76:])
	for i := 0; i < 4; i++ {
		p.Light.Color[i] = getF32(b[80+i*4:])
	}
	p.MaxDist = getF32(b[96:])
	p.Epsilon = getF32(b[100:])
	p.MaxSteps = getU32(b[104:])
	p.NumPrimitives = getU32(b[108:])
	p.ReflectionCount = getU32(b[112:])
	p.ReflectionIntensity = getF32(b[116:])
	p.AOIntensity = getF32(b[120:])
	p.AASamples = getU32(b[124:])
	p.Width = getU32(b[128:])
	p.Height = getU32(b[132:])
	p.TanHalfFOV = getF32(b[136:])
	p.Aspect = getF32(b[140:])
	return p
}

// EASUInputSize is the uniform size of EASUInput.
const EASUInputSize = 48

// EASUInput is the uniform block read by the EASU init kernel: three
// vec4<u32> holding width and height in x and y.
type EASUInput struct {
	Viewport gpucore.Size
	Input    gpucore.Size
	Output   gpucore.Size
}

// Bytes packs in into its uniform layout.
func (in EASUInput) Bytes() []byte {
	b := make([]byte, EASUInputSize)
	for i, s := range [3]gpucore.Size{in.Viewport, in.Input, in.Output} {
		putU32(b[i*16:], uint32(s.Width))    //nolint:gosec // image sizes are positive
		putU32(b[i*16+4:], uint32(s.Height)) //nolint:gosec // image sizes are positive
	}
	return b
}

// DecodeEASUInput reads a block packed by EASUInput.Bytes.
func DecodeEASUInput(b []byte) EASUInput {
	var s [3]gpucore.Size
	for i := range s {
		s[i] = gpucore.Size{Width: int(getU32(b[i*16:])), Height: int(getU32(b[i*16+4:]))}
	}
	return EASUInput{Viewport: s[0], Input: s[1], Output: s[2]}
}

// EASUConstantsSize is the size of the EASU constant buffer: 4 x vec4<u32>.
const EASUConstantsSize = 64

// EASUConstants is the EASU constant buffer written by the init kernel.
//
//	con0  viewport/output scale xy, half-texel offset xy   (f32 bits)
//	con1  1/input w, 1/input h, 1/input w, -1/input h      (f32 bits)
//	con2  -1/input w, 2/input h, 1/input w, 2/input h      (f32 bits)
//	con3  0, 4/input h (f32 bits), input w|h<<16, output w|h<<16
type EASUConstants [4][4]uint32

// ComputeEASUConstants is the CPU form of the EASU init kernel.
func ComputeEASUConstants(in EASUInput) EASUConstants {
	vw, vh := float32(in.Viewport.Width), float32(in.Viewport.Height)
	iw, ih := float32(in.Input.Width), float32(in.Input.Height)
	ow, oh := float32(in.Output.Width), float32(in.Output.Height)
	var c EASUConstants
	c[0] = [4]uint32{f32bits(vw / ow), f32bits(vh / oh), f32bits(0.5*vw/ow - 0.5), f32bits(0.5*vh/oh - 0.5)}
	c[1] = [4]uint32{f32bits(1 / iw), f32bits(1 / ih), f32bits(1 / iw), f32bits(-1 / ih)}
	c[2] = [4]uint32{f32bits(-1 / iw), f32bits(2 / ih), f32bits(1 / iw), f32bits(2 / ih)}
	c[3] = [4]uint32{0, f32bits(4 / ih), packSize(in.Input), packSize(in.Output)}
	return c
}

// Scale returns the input-per-output pixel scale and offset from con0.
func (c EASUConstants) Scale() (sx, sy, ox, oy float32) {
	return math.Float32frombits(c[0][0]), math.Float32frombits(c[0][1]),
		math.Float32frombits(c[0][2]), math.Float32frombits(c[0][3])
}

// Input returns the input image size.
func (c EASUConstants) Input() gpucore.Size { return unpackSize(c[3][2]) }

// Output returns the output image size.
func (c EASUConstants) Output() gpucore.Size { return unpackSize(c[3][3]) }

// Bytes packs c.
func (c EASUConstants) Bytes() []byte {
	b := make([]byte, EASUConstantsSize)
	for i := range c {
		for j := range c[i] {
			putU32(b[(i*4+j)*4:], c[i][j])
		}
	}
	return b
}

// DecodeEASUConstants reads a buffer packed by EASUConstants.Bytes.
func DecodeEASUConstants(b []byte) EASUConstants {
	var c EASUConstants
	for i := range c {
		for j := range c[i] {
			c[i][j] = getU32(b[(i*4+j)*4:])
		}
	}
	return c
}

// RCASInputSize is the uniform size of RCASInput.
const RCASInputSize = 16

// RCASInput is the uniform block read by the RCAS init kernel.
//
//	offset  field
//	     0  sharpness  f32 (0 sharpest, 2 least sharp)
//	     4  width      u32
//	     8  height     u32
type RCASInput struct {
	Sharpness float32
	Output    gpucore.Size
}

// Bytes packs in.
func (in RCASInput) Bytes() []byte {
	b := make([]byte, RCASInputSize)
	putF32(b, in.Sharpness)
	putU32(b[4:], uint32(in.Output.Width))  //nolint:gosec // image sizes are positive
	putU32(b[8:], uint32(in.Output.Height)) //nolint:gosec // image sizes are positive
	return b
}

// DecodeRCASInput reads a block packed by RCASInput.Bytes.
func DecodeRCASInput(b []byte) RCASInput {
	return RCASInput{
		Sharpness: getF32(b),
		Output:    gpucore.Size{Width: int(getU32(b[4:])), Height: int(getU32(b[8:]))},
	}
}

// RCASConstantsSize is the size of the RCAS constant buffer: 1 x vec4<u32>.
const RCASConstantsSize = 16

// RCASConstants is the RCAS constant buffer: exp2(-sharpness) as f32 bits,
// the raw sharpness as f32 bits, then output width and height.
type RCASConstants [4]uint32

// ComputeRCASConstants is the CPU form of the RCAS init kernel.
func ComputeRCASConstants(in RCASInput) RCASConstants {
	return RCASConstants{
		f32bits(float32(math.Exp2(-float64(in.Sharpness)))),
		f32bits(in.Sharpness),
		uint32(in.Output.Width),  //nolint:gosec // image sizes are positive
		uint32(in.Output.Height), //nolint:gosec // image sizes are positive
	}
}

// Strength returns exp2(-sharpness).
func (c RCASConstants) Strength() float32 { return math.Float32frombits(c[0]) }

// Output returns the image size.
func (c RCASConstants) Output() gpucore.Size {
	return gpucore.Size{Width: int(c[2]), Height: int(c[3])}
}

// Bytes packs c.
func (c RCASConstants) Bytes() []byte {
	b := make([]byte, RCASConstantsSize)
	for i, v := range c {
		putU32(b[i*4:], v)
	}
	return b
}

// DecodeRCASConstants reads a buffer packed by RCASConstants.Bytes.
func DecodeRCASConstants(b []byte) RCASConstants {
	var c RCASConstants
	for i := range c {
		c[i] = getU32(b[i*4:])
	}
	return c
}

func packSize(s gpucore.Size) uint32 {
	return uint32(s.Width)&0xFFFF | uint32(s.Height)<<16 //nolint:gosec // sizes fit 16 bits
}

func unpackSize(v uint32) gpucore.Size {
	return gpucore.Size{Width: int(v & 0xFFFF), Height: int(v >> 16)}
}

func f32bits(f float32) uint32 { return math.Float32bits(f) }

func putF32(b []byte, f float32) { binary.LittleEndian.PutUint32(b, math.Float32bits(f)) }
func putU32(b []byte, v uint32)  { binary.LittleEndian.PutUint32(b, v) }
func getF32(b []byte) float32    { return math.Float32frombits(binary.LittleEndian.Uint32(b)) }
func getU32(b []byte) uint32     { return binary.LittleEndian.Uint32(b) }
