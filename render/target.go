// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

package render

import (
	"fmt"
	"image"
	"image/color"

	"github.com/gogpu/gputypes"
	"golang.org/x/image/draw"
)

// Target is where finished frames go.
//
// The pipeline presents into Pixels. When the target size differs from
// the frame, the frame is resampled to fit.
type Target interface {
	// Width returns the target width in pixels.
	Width() int

	// Height returns the target height in pixels.
	Height() int

	// Format returns the pixel format of the target: RGBA8Unorm or
	// BGRA8Unorm.
	Format() gputypes.TextureFormat

	// Pixels returns the pixel data, 4 bytes per pixel.
	Pixels() []byte

	// Stride returns the number of bytes per row.
	Stride() int
}

// PixmapTarget is a CPU-backed target using *image.RGBA.
//
// Example:
//
//	target := render.NewPixmapTarget(1280, 720)
//	p, _ := render.New(adapter, bus, render.WithTarget(target))
//	_ = p.RenderFrame(1280, 720)
//	png.Encode(f, target.Image())
type PixmapTarget struct {
	img *image.RGBA
}

// NewPixmapTarget creates a new CPU-backed target.
func NewPixmapTarget(width, height int) *PixmapTarget {
	return &PixmapTarget{img: image.NewRGBA(image.Rect(0, 0, width, height))}
}

// NewPixmapTargetFromImage wraps an existing image.
func NewPixmapTargetFromImage(img *image.RGBA) *PixmapTarget {
	return &PixmapTarget{img: img}
}

// Width returns the target width.
func (t *PixmapTarget) Width() int { return t.img.Bounds().Dx() }

// Height returns the target height.
func (t *PixmapTarget) Height() int { return t.img.Bounds().Dy() }

// Format returns RGBA8Unorm.
func (t *PixmapTarget) Format() gputypes.TextureFormat {
	return gputypes.TextureFormatRGBA8Unorm
}

// Pixels returns the underlying pixel slice.
func (t *PixmapTarget) Pixels() []byte { return t.img.Pix }

// Stride returns the row stride in bytes.
func (t *PixmapTarget) Stride() int { return t.img.Stride }

// Image returns the underlying image. It shares memory with the target.
func (t *PixmapTarget) Image() *image.RGBA { return t.img }

// Clear fills the target with c.
func (t *PixmapTarget) Clear(c color.Color) {
	draw.Draw(t.img, t.img.Bounds(), image.NewUniform(c), image.Point{}, draw.Src)
}

// Resize replaces the backing image. The contents are not preserved.
func (t *PixmapTarget) Resize(width, height int) {
	t.img = image.NewRGBA(image.Rect(0, 0, width, height))
}

var _ Target = (*PixmapTarget)(nil)

// targetImage views the target's pixels as an image.RGBA.
func targetImage(t Target) *image.RGBA {
	return &image.RGBA{
		Pix:    t.Pixels(),
		Stride: t.Stride(),
		Rect:   image.Rect(0, 0, t.Width(), t.Height()),
	}
}

// Present copies frame into t, resampling with Catmull-Rom when the sizes
// differ.
func Present(t Target, frame *image.RGBA) error {
	format := t.Format()
	if format != gputypes.TextureFormatRGBA8Unorm && format != gputypes.TextureFormatBGRA8Unorm {
		return fmt.Errorf("%w: %v", ErrUnsupportedFormat, format)
	}
	if t.Width() <= 0 || t.Height() <= 0 || t.Pixels() == nil {
		return ErrNoTarget
	}
	dst := targetImage(t)
	if dst.Rect.Size() == frame.Rect.Size() {
		draw.Copy(dst, image.Point{}, frame, frame.Rect, draw.Src, nil)
	} else {
		draw.CatmullRom.Scale(dst, dst.Rect, frame, frame.Rect, draw.Src, nil)
	}
	if format == gputypes.TextureFormatBGRA8Unorm {
		swapRB(dst)
	}
	return nil
}

func swapRB(img *image.RGBA) {
	w := img.Rect.Dx() * 4
	for y := 0; y < img.Rect.Dy(); y++ {
		row := img.Pix[y*img.Stride : y*img.Stride+w]
		for i := 0; i < w; i += 4 {
			row[i], row[i+2] = row[i+2], row[i]
		}
	}
}
