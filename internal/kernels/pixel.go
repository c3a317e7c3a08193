package kernels

import (
	"encoding/binary"
	"image"
	"image/color"

	"github.com/gogpu/spheray/gpucore"
)

// Pack packs c as an RGBA8 texel with red in the low byte.
func Pack(c color.RGBA) uint32 {
	return uint32(c.R) | uint32(c.G)<<8 | uint32(c.B)<<16 | uint32(c.A)<<24
}

// Unpack is the inverse of Pack.
func Unpack(v uint32) color.RGBA {
	return color.RGBA{R: uint8(v), G: uint8(v >> 8), B: uint8(v >> 16), A: uint8(v >> 24)}
}

// ToRGBA converts image buffer bytes to an image.RGBA. The packed layout
// is byte-identical to RGBA8, so this is a copy.
func ToRGBA(data []byte, size gpucore.Size) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, size.Width, size.Height))
	copy(img.Pix, data)
	return img
}

// FromRGBA converts img to image buffer bytes.
func FromRGBA(img *image.RGBA) []byte {
	b := img.Bounds()
	out := make([]byte, b.Dx()*b.Dy()*4)
	for y := 0; y < b.Dy(); y++ {
		row := img.Pix[y*img.Stride : y*img.Stride+b.Dx()*4]
		copy(out[y*b.Dx()*4:], row)
	}
	return out
}

// Texel reads texel i of an image buffer.
func Texel(data []byte, i int) color.RGBA {
	return Unpack(binary.LittleEndian.Uint32(data[i*4:]))
}
