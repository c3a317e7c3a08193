package gpucore

import (
	"errors"
	"fmt"
)

var (
	// ErrAllocation wraps failures to create GPU resources. The caller may
	// retry later.
	ErrAllocation = errors.New("gpucore: resource allocation failed")

	// ErrDeviceLost reports loss of the GPU device. It is not recoverable.
	ErrDeviceLost = errors.New("gpucore: device lost")
)

// TileSize is the side of the 16x16 workgroup tile used by the upscale and
// sharpen kernels.
const TileSize = 16

// RaymarchTileSize is the side of the 8x8 raymarch workgroup tile.
const RaymarchTileSize = 8

// Size is a pixel extent.
type Size struct {
	Width  int
	Height int
}

func (s Size) String() string { return fmt.Sprintf("%dx%d", s.Width, s.Height) }

// Empty reports whether s has no pixels.
func (s Size) Empty() bool { return s.Width <= 0 || s.Height <= 0 }

// Pixels returns Width*Height.
func (s Size) Pixels() int { return s.Width * s.Height }

// Image is a storage buffer holding Size.Pixels() packed RGBA8 texels.
type Image struct {
	Buffer BufferID
	Size   Size
}

// Valid reports whether the image refers to a buffer.
func (img Image) Valid() bool { return img.Buffer != InvalidID }

// ByteSize returns the buffer size the image needs.
func (img Image) ByteSize() int { return img.Size.Pixels() * 4 }

// CreateImage allocates a storage image.
func CreateImage(a GPUAdapter, size Size) (Image, error) {
	if size.Empty() {
		return Image{}, fmt.Errorf("gpucore: create image %v: empty size", size)
	}
	id, err := a.CreateBuffer(size.Pixels()*4, BufferUsageStorage|BufferUsageCopySrc|BufferUsageCopyDst)
	if err != nil {
		return Image{}, fmt.Errorf("create image %v: %w", size, err)
	}
	return Image{Buffer: id, Size: size}, nil
}

// DestroyImage releases img if it is valid and resets it.
func DestroyImage(a GPUAdapter, img *Image) {
	if img.Valid() {
		a.DestroyBuffer(img.Buffer)
	}
	*img = Image{}
}

// WorkgroupCount returns how many tiles of side tile cover n pixels,
// including a partial tile at the edge.
func WorkgroupCount(n, tile int) uint32 {
	if n <= 0 {
		return 0
	}
	return uint32((n + tile - 1) / tile) //nolint:gosec // non-negative
}

// Workgroups returns the dispatch size covering s with square tiles.
func Workgroups(s Size, tile int) (x, y, z uint32) {
	return WorkgroupCount(s.Width, tile), WorkgroupCount(s.Height, tile), 1
}
