package software

import (
	"errors"
	"image/color"
	"testing"

	"github.com/go-gl/mathgl/mgl32"

	"github.com/gogpu/spheray/gpucore"
	"github.com/gogpu/spheray/internal/kernels"
	"github.com/gogpu/spheray/prim"
)

func newTestAdapter(t *testing.T, opts ...Option) *Adapter {
	t.Helper()
	a := New(append([]Option{WithWorkers(2)}, opts...)...)
	t.Cleanup(a.Close)
	return a
}

func compile(t *testing.T, a *Adapter, name string) *kernels.Compiled {
	t.Helper()
	c, err := kernels.Compile(a, name)
	if err != nil {
		t.Fatalf("Compile(%q) error = %v", name, err)
	}
	t.Cleanup(c.Destroy)
	return c
}

func upload(t *testing.T, a *Adapter, data []byte, usage gpucore.BufferUsage) gpucore.BufferID {
	t.Helper()
	id, err := a.CreateBuffer(len(data), usage)
	if err != nil {
		t.Fatalf("CreateBuffer() error = %v", err)
	}
	a.WriteBuffer(id, 0, data)
	return id
}

func solid(s gpucore.Size, c color.RGBA) []byte {
	out := make([]byte, s.Pixels()*4)
	for i := 0; i < s.Pixels(); i++ {
		putTexel(out, i, kernels.Pack(c))
	}
	return out
}

func run(t *testing.T, a *Adapter, c *kernels.Compiled, size gpucore.Size, bufs ...gpucore.BufferID) {
	t.Helper()
	g, err := c.BindGroup(bufs...)
	if err != nil {
		t.Fatalf("BindGroup() error = %v", err)
	}
	defer a.DestroyBindGroup(g)
	pass := a.BeginComputePass()
	c.Record(pass, g, size)
	pass.End()
	if err := a.Submit(); err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
}

func TestRaymarchSphere(t *testing.T) {
	a := newTestAdapter(t)
	c := compile(t, a, kernels.Raymarch)

	size := gpucore.Size{Width: 24, Height: 16}
	sphere := prim.Primitive{Size: mgl32.Vec3{1, 1, 1}, Transform: mgl32.Ident4(), Parent: -1, Shape: prim.Sphere}
	params := kernels.RaymarchParams{
		CamToWorld:    mgl32.Translate3D(0, 0, 3),
		Light:         prim.DefaultLight(),
		MaxDist:       kernels.MaxDistance,
		Epsilon:       kernels.Epsilon,
		MaxSteps:      kernels.MaxSteps,
		NumPrimitives: 1,
		AASamples:     1,
		Width:         uint32(size.Width),
		Height:        uint32(size.Height),
		TanHalfFOV:    0.577,
		Aspect:        float32(size.Width) / float32(size.Height),
	}
	ub := upload(t, a, params.Bytes(), gpucore.BufferUsageUniform|gpucore.BufferUsageCopyDst)
	pb := upload(t, a, prim.NewBuffer([]prim.Primitive{sphere}).Bytes(), gpucore.BufferUsageStorage)
	img, err := gpucore.CreateImage(a, size)
	if err != nil {
		t.Fatalf("CreateImage() error = %v", err)
	}
	run(t, a, c, size, ub, pb, img.Buffer)

	data, err := a.ReadBuffer(img.Buffer, 0, uint64(img.ByteSize()))
	if err != nil {
		t.Fatalf("ReadBuffer() error = %v", err)
	}
	center := kernels.Texel(data, size.Height/2*size.Width+size.Width/2)
	corner := kernels.Texel(data, 0)
	if center == corner {
		t.Errorf("center texel %v equals background %v", center, corner)
	}
	for i := 0; i < size.Pixels(); i++ {
		if got := kernels.Texel(data, i).A; got != 255 {
			t.Fatalf("texel %d alpha = %d, want 255", i, got)
		}
	}
}

func TestRaymarchFloorDispatchLeavesEdge(t *testing.T) {
	a := newTestAdapter(t)
	c := compile(t, a, kernels.Raymarch)

	size := gpucore.Size{Width: 12, Height: 12}
	params := kernels.RaymarchParams{
		CamToWorld: mgl32.Ident4(), MaxDist: kernels.MaxDistance, Epsilon: kernels.Epsilon,
		MaxSteps: kernels.MaxSteps, AASamples: 1, Width: 12, Height: 12, TanHalfFOV: 1, Aspect: 1,
	}
	ub := upload(t, a, params.Bytes(), gpucore.BufferUsageUniform)
	pb := upload(t, a, prim.NewBuffer(nil).Bytes(), gpucore.BufferUsageStorage)
	img, _ := gpucore.CreateImage(a, size)

	g, _ := c.BindGroup(ub, pb, img.Buffer)
	pass := a.BeginComputePass()
	pass.SetPipeline(c.Pipeline)
	pass.SetBindGroup(0, g)
	pass.Dispatch(1, 1, 1) // 12/8 rounded down
	pass.End()
	if err := a.Submit(); err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	data, _ := a.ReadBuffer(img.Buffer, 0, uint64(img.ByteSize()))
	if got := kernels.Texel(data, 11*12+11); got != (color.RGBA{}) {
		t.Errorf("edge texel = %v, want untouched", got)
	}
	if got := kernels.Texel(data, 0); got.A != 255 {
		t.Errorf("covered texel alpha = %d, want 255", got.A)
	}
}

func TestEASUAndRCASPreserveFlatImage(t *testing.T) {
	a := newTestAdapter(t)
	easuInit := compile(t, a, kernels.EASUInit)
	easuMain := compile(t, a, kernels.EASU)
	rcasInit := compile(t, a, kernels.RCASInit)
	rcasMain := compile(t, a, kernels.RCAS)

	in := gpucore.Size{Width: 10, Height: 6}
	out := gpucore.Size{Width: 17, Height: 10}
	grey := color.RGBA{R: 90, G: 120, B: 200, A: 255}

	src := upload(t, a, solid(in, grey), gpucore.BufferUsageStorage)
	dst, _ := gpucore.CreateImage(a, out)
	sharp, _ := gpucore.CreateImage(a, out)

	einput := kernels.EASUInput{Viewport: in, Input: in, Output: out}
	eu := upload(t, a, einput.Bytes(), gpucore.BufferUsageUniform)
	econ, _ := a.CreateBuffer(kernels.EASUConstantsSize, gpucore.BufferUsageStorage)
	run(t, a, easuInit, out, eu, econ)
	run(t, a, easuMain, out, econ, src, dst.Buffer)

	raw, _ := a.ReadBuffer(econ, 0, kernels.EASUConstantsSize)
	if got, want := kernels.DecodeEASUConstants(raw), kernels.ComputeEASUConstants(einput); got != want {
		t.Errorf("easu constants = %v, want %v", got, want)
	}

	rinput := kernels.RCASInput{Sharpness: 0.2, Output: out}
	ru := upload(t, a, rinput.Bytes(), gpucore.BufferUsageUniform)
	rcon, _ := a.CreateBuffer(kernels.RCASConstantsSize, gpucore.BufferUsageStorage)
	run(t, a, rcasInit, out, ru, rcon)
	run(t, a, rcasMain, out, rcon, dst.Buffer, sharp.Buffer)

	for name, img := range map[string]gpucore.Image{"easu": dst, "rcas": sharp} {
		data, _ := a.ReadBuffer(img.Buffer, 0, uint64(img.ByteSize()))
		for i := 0; i < out.Pixels(); i++ {
			if got := kernels.Texel(data, i); got != grey {
				t.Fatalf("%s texel %d = %v, want %v", name, i, got, grey)
			}
		}
	}
}

func TestRCASSharpensEdge(t *testing.T) {
	a := newTestAdapter(t)
	rcasInit := compile(t, a, kernels.RCASInit)
	rcasMain := compile(t, a, kernels.RCAS)

	s := gpucore.Size{Width: 4, Height: 1}
	data := solid(s, color.RGBA{R: 64, G: 64, B: 64, A: 255})
	putTexel(data, 2, kernels.Pack(color.RGBA{R: 192, G: 192, B: 192, A: 255}))
	putTexel(data, 3, kernels.Pack(color.RGBA{R: 192, G: 192, B: 192, A: 255}))
	src := upload(t, a, data, gpucore.BufferUsageStorage)
	dst, _ := gpucore.CreateImage(a, s)

	ru := upload(t, a, kernels.RCASInput{Sharpness: 0, Output: s}.Bytes(), gpucore.BufferUsageUniform)
	rcon, _ := a.CreateBuffer(kernels.RCASConstantsSize, gpucore.BufferUsageStorage)
	run(t, a, rcasInit, s, ru, rcon)
	run(t, a, rcasMain, s, rcon, src, dst.Buffer)

	got, _ := a.ReadBuffer(dst.Buffer, 0, uint64(dst.ByteSize()))
	if dark := kernels.Texel(got, 1).R; dark >= 64 {
		t.Errorf("dark side of edge = %d, want below 64", dark)
	}
	if light := kernels.Texel(got, 2).R; light <= 192 {
		t.Errorf("light side of edge = %d, want above 192", light)
	}
}

func TestAllocationLimit(t *testing.T) {
	a := newTestAdapter(t, WithMaxBufferSize(1024))
	if _, err := a.CreateBuffer(2048, gpucore.BufferUsageStorage); !errors.Is(err, gpucore.ErrAllocation) {
		t.Errorf("CreateBuffer(2048) error = %v, want ErrAllocation", err)
	}
	if _, err := gpucore.CreateImage(a, gpucore.Size{Width: 16, Height: 16}); err != nil {
		t.Errorf("CreateImage(16x16) error = %v", err)
	}
	if got := a.Stats().BytesLive; got != 1024 {
		t.Errorf("Stats().BytesLive = %d, want 1024", got)
	}
}

func TestDeviceLost(t *testing.T) {
	a := newTestAdapter(t)
	a.Lose()
	if _, err := a.CreateBuffer(16, gpucore.BufferUsageStorage); !errors.Is(err, gpucore.ErrDeviceLost) {
		t.Errorf("CreateBuffer() error = %v, want ErrDeviceLost", err)
	}
	if err := a.Submit(); !errors.Is(err, gpucore.ErrDeviceLost) {
		t.Errorf("Submit() error = %v, want ErrDeviceLost", err)
	}
}

func TestUnknownKernel(t *testing.T) {
	a := newTestAdapter(t)
	if _, err := a.CreateShaderModule(&gpucore.ShaderModuleDesc{Label: "blur"}); err == nil {
		t.Error("CreateShaderModule(blur) succeeded")
	}
}

func TestPoolRows(t *testing.T) {
	p := newWorkerPool(3)
	defer p.close()
	seen := make([]int, 37)
	p.rows(len(seen), func(y0, y1 int) {
		for y := y0; y < y1; y++ {
			seen[y]++
		}
	})
	for y, n := range seen {
		if n != 1 {
			t.Errorf("row %d visited %d times, want 1", y, n)
		}
	}
	p.close()
	ran := false
	p.executeAll([]func(){func() { ran = true }})
	if !ran {
		t.Error("executeAll after close did not run work inline")
	}
}
