package render

import (
	"errors"
	"image"
	"image/color"
	"testing"

	"github.com/gogpu/gputypes"
)

func TestNewPixmapTarget(t *testing.T) {
	tests := []struct {
		name   string
		width  int
		height int
	}{
		{"small", 100, 100},
		{"wide", 1000, 100},
		{"tall", 100, 1000},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			target := NewPixmapTarget(tt.width, tt.height)
			if target.Width() != tt.width {
				t.Errorf("Width() = %d, want %d", target.Width(), tt.width)
			}
			if target.Height() != tt.height {
				t.Errorf("Height() = %d, want %d", target.Height(), tt.height)
			}
			if target.Format() != gputypes.TextureFormatRGBA8Unorm {
				t.Errorf("Format() = %v, want RGBA8Unorm", target.Format())
			}
			if target.Stride() != tt.width*4 {
				t.Errorf("Stride() = %d, want %d", target.Stride(), tt.width*4)
			}
		})
	}
}

func frameOf(w, h int, c color.RGBA) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetRGBA(x, y, c)
		}
	}
	return img
}

func TestPresent(t *testing.T) {
	c := color.RGBA{R: 10, G: 20, B: 30, A: 255}

	same := NewPixmapTarget(8, 4)
	if err := Present(same, frameOf(8, 4, c)); err != nil {
		t.Fatalf("Present() error = %v", err)
	}
	if got := same.Image().RGBAAt(7, 3); got != c {
		t.Errorf("same-size pixel = %v, want %v", got, c)
	}

	scaled := NewPixmapTarget(16, 8)
	if err := Present(scaled, frameOf(8, 4, c)); err != nil {
		t.Fatalf("Present() error = %v", err)
	}
	if got := scaled.Image().RGBAAt(8, 4); got != c {
		t.Errorf("scaled pixel = %v, want %v", got, c)
	}

	bgra := &formatTarget{PixmapTarget: NewPixmapTarget(2, 2), format: gputypes.TextureFormatBGRA8Unorm}
	if err := Present(bgra, frameOf(2, 2, c)); err != nil {
		t.Fatalf("Present(BGRA) error = %v", err)
	}
	if got := bgra.Pixels()[:4]; got[0] != 30 || got[2] != 10 {
		t.Errorf("BGRA bytes = %v, want blue first", got)
	}

	bad := &formatTarget{PixmapTarget: NewPixmapTarget(2, 2), format: gputypes.TextureFormatR8Unorm}
	if err := Present(bad, frameOf(2, 2, c)); !errors.Is(err, ErrUnsupportedFormat) {
		t.Errorf("Present(R8) error = %v, want ErrUnsupportedFormat", err)
	}
	if err := Present(NewPixmapTarget(0, 0), frameOf(2, 2, c)); !errors.Is(err, ErrNoTarget) {
		t.Errorf("Present(empty) error = %v, want ErrNoTarget", err)
	}
}

type formatTarget struct {
	*PixmapTarget
	format gputypes.TextureFormat
}

func (f *formatTarget) Format() gputypes.TextureFormat { return f.format }

func TestPixmapTargetClear(t *testing.T) {
	target := NewPixmapTarget(4, 4)
	target.Clear(color.RGBA{B: 255, A: 255})
	if got := target.Image().RGBAAt(3, 3); got != (color.RGBA{B: 255, A: 255}) {
		t.Errorf("pixel after Clear = %v", got)
	}
	target.Resize(2, 3)
	if target.Width() != 2 || target.Height() != 3 {
		t.Errorf("size after Resize = %dx%d", target.Width(), target.Height())
	}
}
