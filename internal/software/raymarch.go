package software

import (
	"github.com/chewxy/math32"
	"github.com/go-gl/mathgl/mgl32"

	"github.com/gogpu/spheray/gpucore"
	"github.com/gogpu/spheray/internal/kernels"
	"github.com/gogpu/spheray/prim"
)

const (
	ambient     = 0.1
	shadowSteps = 32
	aoSteps     = 5
)

var albedo = mgl32.Vec3{0.8, 0.8, 0.8}

// localPrim is a primitive prepared for distance queries.
type localPrim struct {
	origin mgl32.Vec3
	rot    mgl32.Mat3
	size   mgl32.Vec3
	bevel  float32
	smooth float32
	op     prim.Operation
	shape  prim.Shape
}

type marcher struct {
	p     kernels.RaymarchParams
	prims []localPrim
}

func raymarch(pool *workerPool, bufs [][]byte, groups [3]uint32) error {
	if err := need(bufs, kernels.RaymarchParamsSize, 0, 0); err != nil {
		return err
	}
	p := kernels.DecodeRaymarchParams(bufs[0])
	size := gpucore.Size{Width: int(p.Width), Height: int(p.Height)}
	if err := need(bufs, kernels.RaymarchParamsSize, int(p.NumPrimitives)*prim.PrimitiveStride, size.Pixels()*4); err != nil {
		return err
	}
	m := newMarcher(p, bufs[1])
	out := bufs[2]
	run := invocations(groups, gpucore.RaymarchTileSize, size)
	pool.rows(run.Height, func(y0, y1 int) {
		for y := y0; y < y1; y++ {
			for x := 0; x < run.Width; x++ {
				putTexel(out, y*size.Width+x, m.pixel(x, y))
			}
		}
	})
	return nil
}

func newMarcher(p kernels.RaymarchParams, data []byte) *marcher {
	m := &marcher{p: p, prims: make([]localPrim, p.NumPrimitives)}
	for i := range m.prims {
		r := prim.DecodePrimitive(data[i*prim.PrimitiveStride:])
		size := mgl32.Vec3{max(r.Size[0], 1e-4), max(r.Size[1], 1e-4), max(r.Size[2], 1e-4)}
		m.prims[i] = localPrim{
			origin: r.Transform.Col(3).Vec3(),
			rot:    r.Transform.Mat3(),
			size:   size,
			bevel:  min(r.Bevel, size[0], size[1], size[2]),
			smooth: r.Smoothing,
			op:     r.Operation,
			shape:  r.Shape,
		}
	}
	return m
}

func (m *marcher) pixel(x, y int) uint32 {
	p := &m.p
	origin := p.CamToWorld.Col(3).Vec3()
	samples := max(p.AASamples, 1)
	var col mgl32.Vec3
	for s := uint32(0); s < samples; s++ {
		_, ox := math32.Modf(0.5 + float32(s)*0.618034)
		oy := (float32(s) + 0.5) / float32(samples)
		u := ((float32(x)+ox)/float32(p.Width))*2 - 1
		v := 1 - ((float32(y)+oy)/float32(p.Height))*2
		cam := mgl32.Vec4{u * p.TanHalfFOV * p.Aspect, v * p.TanHalfFOV, -1, 0}
		rd := p.CamToWorld.Mul4x1(cam).Vec3().Normalize()
		col = col.Add(m.trace(origin, rd))
	}
	col = col.Mul(1 / float32(samples))
	return packColor(col, 1)
}

func packColor(c mgl32.Vec3, a float32) uint32 {
	q := func(f float32) uint32 {
		return uint32(math32.Floor(mgl32.Clamp(f, 0, 1)*255 + 0.5))
	}
	return q(c[0]) | q(c[1])<<8 | q(c[2])<<16 | q(a)<<24
}

func (m *marcher) trace(ro, rd mgl32.Vec3) mgl32.Vec3 {
	var col mgl32.Vec3
	weight := float32(1)
	for bounce := uint32(0); bounce <= m.p.ReflectionCount; bounce++ {
		t := m.march(ro, rd)
		if t < 0 {
			col = col.Add(sky(rd).Mul(weight))
			break
		}
		pos := ro.Add(rd.Mul(t))
		n := m.normal(pos)
		var r float32
		if bounce < m.p.ReflectionCount {
			r = m.p.ReflectionIntensity
		}
		col = col.Add(m.shade(pos, n, rd).Mul(weight * (1 - r)))
		weight *= r
		if weight <= 0 {
			break
		}
		ro = pos.Add(n.Mul(m.p.Epsilon * 2))
		rd = reflect(rd, n)
	}
	return col
}

func (m *marcher) march(ro, rd mgl32.Vec3) float32 {
	var t float32
	for i := uint32(0); i < m.p.MaxSteps; i++ {
		d := m.dist(ro.Add(rd.Mul(t)))
		if d < m.p.Epsilon {
			return t
		}
		t += d
		if t > m.p.MaxDist {
			break
		}
	}
	return -1
}

func (m *marcher) dist(p mgl32.Vec3) float32 {
	if len(m.prims) == 0 {
		return m.p.MaxDist
	}
	d := m.primDist(&m.prims[0], p)
	for i := 1; i < len(m.prims); i++ {
		lp := &m.prims[i]
		d = combine(lp.op, lp.smooth, d, m.primDist(lp, p))
	}
	return d
}

func (m *marcher) primDist(lp *localPrim, wp mgl32.Vec3) float32 {
	// Transform is rotation plus translation: the inverse is the transposed
	// rotation applied after removing the translation.
	p := lp.rot.Transpose().Mul3x1(wp.Sub(lp.origin))
	switch lp.shape {
	case prim.Sphere:
		return p.Len() - lp.size[0]
	case prim.Box:
		return sdBox(p, lp.size, lp.bevel)
	case prim.Plane:
		return p[1]
	case prim.Cylinder:
		return sdCylinder(p, lp.size, lp.bevel)
	case prim.Ellipsoid:
		return sdEllipsoid(p, lp.size)
	case prim.Torus:
		return sdTorus(p, lp.size)
	case prim.HexPrism:
		return sdHexPrism(p, lp.size, lp.bevel)
	}
	return m.p.MaxDist
}

func (m *marcher) normal(p mgl32.Vec3) mgl32.Vec3 {
	const e = 0.0005773
	k := [4]mgl32.Vec3{{e, -e, -e}, {-e, -e, e}, {-e, e, -e}, {e, e, e}}
	var n mgl32.Vec3
	for _, o := range k {
		n = n.Add(o.Mul(m.dist(p.Add(o))))
	}
	return normalize(n)
}

func (m *marcher) softShadow(p, l mgl32.Vec3, far float32) float32 {
	res := float32(1)
	t := float32(0.02)
	for i := 0; i < shadowSteps; i++ {
		h := m.dist(p.Add(l.Mul(t)))
		if h < m.p.Epsilon {
			return 0
		}
		res = min(res, 8*h/t)
		t += mgl32.Clamp(h, 0.02, 0.5)
		if t > far {
			break
		}
	}
	return mgl32.Clamp(res, 0, 1)
}

func (m *marcher) occlusion(p, n mgl32.Vec3) float32 {
	var occ float32
	sca := float32(1)
	for i := 0; i < aoSteps; i++ {
		h := 0.01 + 0.12*float32(i)/4
		occ += (h - m.dist(p.Add(n.Mul(h)))) * sca
		sca *= 0.95
	}
	return mgl32.Clamp(1-3*occ, 0, 1)
}

func (m *marcher) shade(p, n, rd mgl32.Vec3) mgl32.Vec3 {
	toLight := m.p.Light.Position.Sub(p)
	far := toLight.Len()
	l := toLight.Mul(1 / max(far, 1e-6))
	shadow := m.softShadow(p.Add(n.Mul(m.p.Epsilon*2)), l, far)
	ao := 1 - m.p.AOIntensity*(1-m.occlusion(p, n))
	diff := max(n.Dot(l), 0) * shadow
	h := normalize(l.Sub(rd))
	spec := math32.Pow(max(n.Dot(h), 0), 32) * 0.3 * shadow
	light := m.p.Light.Color.Vec3().Mul(m.p.Light.Intensity)
	base := mgl32.Vec3{
		albedo[0] * (ambient*ao + diff*light[0]),
		albedo[1] * (ambient*ao + diff*light[1]),
		albedo[2] * (ambient*ao + diff*light[2]),
	}
	return base.Add(light.Mul(spec))
}

func sky(rd mgl32.Vec3) mgl32.Vec3 {
	t := mgl32.Clamp(rd[1]*0.5+0.5, 0, 1)
	lo := mgl32.Vec3{0.05, 0.05, 0.08}
	hi := mgl32.Vec3{0.35, 0.45, 0.6}
	return lo.Add(hi.Sub(lo).Mul(t))
}

func reflect(d, n mgl32.Vec3) mgl32.Vec3 {
	return d.Sub(n.Mul(2 * n.Dot(d)))
}

func normalize(v mgl32.Vec3) mgl32.Vec3 {
	l := v.Len()
	if l == 0 {
		return v
	}
	return v.Mul(1 / l)
}

func combine(op prim.Operation, k, a, b float32) float32 {
	switch op {
	case prim.Union:
		if k <= 0 {
			return min(a, b)
		}
		h := mgl32.Clamp(0.5+0.5*(b-a)/k, 0, 1)
		return mix(b, a, h) - k*h*(1-h)
	case prim.Difference:
		if k <= 0 {
			return max(a, -b)
		}
		h := mgl32.Clamp(0.5-0.5*(b+a)/k, 0, 1)
		return mix(a, -b, h) + k*h*(1-h)
	}
	if k <= 0 {
		return max(a, b)
	}
	h := mgl32.Clamp(0.5-0.5*(b-a)/k, 0, 1)
	return mix(b, a, h) + k*h*(1-h)
}

func mix(a, b, t float32) float32 { return a + (b-a)*t }

func abs3(v mgl32.Vec3) mgl32.Vec3 {
	return mgl32.Vec3{math32.Abs(v[0]), math32.Abs(v[1]), math32.Abs(v[2])}
}

func max3(v mgl32.Vec3, f float32) mgl32.Vec3 {
	return mgl32.Vec3{max(v[0], f), max(v[1], f), max(v[2], f)}
}

func length2(x, y float32) float32 { return math32.Sqrt(x*x + y*y) }

func sdBox(p, b mgl32.Vec3, r float32) float32 {
	q := abs3(p).Sub(b.Sub(mgl32.Vec3{r, r, r}))
	return max3(q, 0).Len() + min(max(q[0], q[1], q[2]), 0) - r
}

func sdCylinder(p, s mgl32.Vec3, r float32) float32 {
	dx := length2(p[0], p[2]) - s[0] + r
	dy := math32.Abs(p[1]) - s[1] + r
	return min(max(dx, dy), 0) + length2(max(dx, 0), max(dy, 0)) - r
}

func sdEllipsoid(p, s mgl32.Vec3) float32 {
	k0 := mgl32.Vec3{p[0] / s[0], p[1] / s[1], p[2] / s[2]}.Len()
	k1 := mgl32.Vec3{p[0] / (s[0] * s[0]), p[1] / (s[1] * s[1]), p[2] / (s[2] * s[2])}.Len()
	return k0 * (k0 - 1) / max(k1, 1e-6)
}

func sdTorus(p, s mgl32.Vec3) float32 {
	return length2(length2(p[0], p[2])-s[0], p[1]) - s[1]
}

func sdHexPrism(p, s mgl32.Vec3, r float32) float32 {
	const kx, ky, kz = -0.8660254, 0.5, 0.57735
	q := abs3(p)
	hx, hy := s[0]-r, s[1]-r
	m := 2 * min(kx*q[0]+ky*q[1], 0)
	q[0] -= m * kx
	q[1] -= m * ky
	cx := mgl32.Clamp(q[0], -kz*hx, kz*hx)
	dx := length2(q[0]-cx, q[1]-hx) * sign(q[1]-hx)
	dy := q[2] - hy
	return min(max(dx, dy), 0) + length2(max(dx, 0), max(dy, 0)) - r
}

func sign(f float32) float32 {
	switch {
	case f > 0:
		return 1
	case f < 0:
		return -1
	}
	return 0
}
