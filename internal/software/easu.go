package software

import (
	"encoding/binary"

	"github.com/chewxy/math32"

	"github.com/gogpu/spheray/gpucore"
	"github.com/gogpu/spheray/internal/kernels"
)

// rgba is a texel in [0,1].
type rgba [4]float32

func fetch(src []byte, p [2]int, s gpucore.Size) rgba {
	x := min(max(p[0], 0), s.Width-1)
	y := min(max(p[1], 0), s.Height-1)
	v := binary.LittleEndian.Uint32(src[(y*s.Width+x)*4:])
	return rgba{
		float32(v&0xFF) / 255,
		float32(v>>8&0xFF) / 255,
		float32(v>>16&0xFF) / 255,
		float32(v>>24) / 255,
	}
}

func pack(c rgba) uint32 {
	var v uint32
	for i, f := range c {
		f = min(max(f, 0), 1)
		v |= uint32(math32.Floor(f*255+0.5)) << (8 * i)
	}
	return v
}

func luma(c rgba) float32 { return c[2]*0.5 + (c[0]*0.5 + c[1]) }

func edgeLen(a, b, c float32) float32 {
	m := max(math32.Abs(c-b), math32.Abs(b-a))
	if m <= 0 {
		return 0
	}
	l := min(max(math32.Abs(c-a)/m, 0), 1)
	return l * l
}

func easu(pool *workerPool, bufs [][]byte, groups [3]uint32) error {
	if err := need(bufs, kernels.EASUConstantsSize, 0, 0); err != nil {
		return err
	}
	con := kernels.DecodeEASUConstants(bufs[0])
	in, out := con.Input(), con.Output()
	if in.Empty() || out.Empty() {
		return nil
	}
	if err := need(bufs, kernels.EASUConstantsSize, in.Pixels()*4, out.Pixels()*4); err != nil {
		return err
	}
	src, dst := bufs[1], bufs[2]
	sx, sy, ox, oy := con.Scale()
	run := invocations(groups, gpucore.TileSize, out)
	pool.rows(run.Height, func(y0, y1 int) {
		for y := y0; y < y1; y++ {
			for x := 0; x < run.Width; x++ {
				c := easuPixel(src, in, float32(x)*sx+ox, float32(y)*sy+oy)
				putTexel(dst, y*out.Width+x, pack(c))
			}
		}
	})
	return nil
}

func easuPixel(src []byte, in gpucore.Size, px, py float32) rgba {
	fx0, fy0 := math32.Floor(px), math32.Floor(py)
	fx, fy := px-fx0, py-fy0
	bx, by := int(fx0)-1, int(fy0)-1

	var tex [16]rgba
	var lum [16]float32
	for j := 0; j < 4; j++ {
		for i := 0; i < 4; i++ {
			c := fetch(src, [2]int{bx + i, by + j}, in)
			tex[j*4+i] = c
			lum[j*4+i] = luma(c)
		}
	}

	// Direction and edge strength from the centre 2x2, bilinearly weighted.
	w := [4]float32{(1 - fx) * (1 - fy), fx * (1 - fy), (1 - fx) * fy, fx * fy}
	var dx, dy, length float32
	for k := 0; k < 4; k++ {
		x, y := 1+k&1, 1+k>>1
		l, r := lum[y*4+x-1], lum[y*4+x+1]
		u, d := lum[(y-1)*4+x], lum[(y+1)*4+x]
		c := lum[y*4+x]
		dx += w[k] * (r - l)
		dy += w[k] * (d - u)
		length += w[k] * (edgeLen(l, c, r) + edgeLen(u, c, d))
	}
	if dx*dx+dy*dy < 1.0/32768 {
		dx, dy = 1, 0
	} else {
		n := math32.Sqrt(dx*dx + dy*dy)
		dx, dy = dx/n, dy/n
	}
	length *= 0.5
	length *= length

	stretch := 1 / max(math32.Abs(dx), math32.Abs(dy))
	lenX := 1 + (stretch-1)*length
	lenY := 1 - 0.5*length
	lob := 0.5 + (0.21-0.5)*length
	clp := 1 / lob

	var acc rgba
	var wsum float32
	for j := 0; j < 4; j++ {
		for i := 0; i < 4; i++ {
			offX := float32(i-1) - fx
			offY := float32(j-1) - fy
			vx := (offX*dx + offY*dy) * lenX
			vy := (-offX*dy + offY*dx) * lenY
			d2 := min(vx*vx+vy*vy, clp)
			wb := 0.4*d2 - 1
			wa := lob*d2 - 1
			wb *= wb
			wa *= wa
			wb = 1.5625*wb - 0.5625
			wt := wb * wa
			for ch := range acc {
				acc[ch] += tex[j*4+i][ch] * wt
			}
			wsum += wt
		}
	}

	if wsum == 0 {
		return tex[5]
	}
	var outc rgba
	for ch := range outc {
		lo := min(tex[5][ch], tex[6][ch], tex[9][ch], tex[10][ch])
		hi := max(tex[5][ch], tex[6][ch], tex[9][ch], tex[10][ch])
		outc[ch] = min(max(acc[ch]/wsum, lo), hi)
	}
	return outc
}
