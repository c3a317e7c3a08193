package software

import (
	"github.com/gogpu/spheray/gpucore"
	"github.com/gogpu/spheray/internal/kernels"
)

// rcasLimit bounds the negative lobe so the filter never inverts.
const rcasLimit = 0.1875

func rcas(pool *workerPool, bufs [][]byte, groups [3]uint32) error {
	if err := need(bufs, kernels.RCASConstantsSize, 0, 0); err != nil {
		return err
	}
	con := kernels.DecodeRCASConstants(bufs[0])
	s := con.Output()
	if s.Empty() {
		return nil
	}
	if err := need(bufs, kernels.RCASConstantsSize, s.Pixels()*4, s.Pixels()*4); err != nil {
		return err
	}
	strength := con.Strength()
	src, dst := bufs[1], bufs[2]
	run := invocations(groups, gpucore.TileSize, s)
	pool.rows(run.Height, func(y0, y1 int) {
		for y := y0; y < y1; y++ {
			for x := 0; x < run.Width; x++ {
				putTexel(dst, y*s.Width+x, pack(rcasPixel(src, s, x, y, strength)))
			}
		}
	})
	return nil
}

func rcasPixel(src []byte, s gpucore.Size, x, y int, strength float32) rgba {
	b := fetch(src, [2]int{x, y - 1}, s)
	d := fetch(src, [2]int{x - 1, y}, s)
	e := fetch(src, [2]int{x, y}, s)
	f := fetch(src, [2]int{x + 1, y}, s)
	h := fetch(src, [2]int{x, y + 1}, s)

	lobeMax := float32(-1e30)
	for ch := 0; ch < 3; ch++ {
		mn := min(b[ch], d[ch], f[ch], h[ch])
		mx := max(b[ch], d[ch], f[ch], h[ch])
		hitMin := mn / max(4*mx, 1e-5)
		hitMax := (1 - mx) / min(4*mn-4, -1e-5)
		lobeMax = max(lobeMax, max(-hitMin, hitMax))
	}
	lobe := max(-rcasLimit, min(lobeMax, 0)) * strength

	out := rgba{0, 0, 0, e[3]}
	for ch := 0; ch < 3; ch++ {
		out[ch] = (lobe*(b[ch]+d[ch]+f[ch]+h[ch]) + e[ch]) / (4*lobe + 1)
	}
	return out
}
