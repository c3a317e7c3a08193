package render

import (
	"errors"
	"image/color"
	"sync/atomic"
	"testing"

	"github.com/go-gl/mathgl/mgl32"

	"github.com/gogpu/spheray/event"
	"github.com/gogpu/spheray/gpucore"
	"github.com/gogpu/spheray/internal/software"
	"github.com/gogpu/spheray/prim"
)

var errSubmit = errors.New("submit failed")

// flakyAdapter fails buffer allocations while failing is set. While
// dropping is set, passes record nothing and Submit fails.
type flakyAdapter struct {
	*software.Adapter
	failing  atomic.Bool
	dropping atomic.Bool
}

type droppedPass struct{}

func (droppedPass) SetPipeline(gpucore.ComputePipelineID)    {}
func (droppedPass) SetBindGroup(uint32, gpucore.BindGroupID) {}
func (droppedPass) Dispatch(x, y, z uint32)                  {}
func (droppedPass) End()                                     {}

func (f *flakyAdapter) BeginComputePass() gpucore.ComputePassEncoder {
	if f.dropping.Load() {
		return droppedPass{}
	}
	return f.Adapter.BeginComputePass()
}

func (f *flakyAdapter) Submit() error {
	if f.dropping.Load() {
		return errSubmit
	}
	return f.Adapter.Submit()
}

func (f *flakyAdapter) CreateBuffer(size int, usage gpucore.BufferUsage) (gpucore.BufferID, error) {
	if f.failing.Load() {
		return gpucore.InvalidID, gpucore.ErrAllocation
	}
	return f.Adapter.CreateBuffer(size, usage)
}

func newPipeline(t *testing.T, opts ...Option) (*Pipeline, *event.Bus, *flakyAdapter) {
	t.Helper()
	a := &flakyAdapter{Adapter: software.New(software.WithWorkers(2))}
	t.Cleanup(a.Close)
	bus := event.NewBus()
	p, err := New(a, bus, opts...)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	t.Cleanup(p.Close)
	return p, bus, a
}

func sphereBuffer() prim.Buffer {
	return prim.NewBuffer([]prim.Primitive{{
		Size:      mgl32.Vec3{1, 1, 1},
		Transform: mgl32.Ident4(),
		Parent:    -1,
		Shape:     prim.Sphere,
	}})
}

func TestLowResolution(t *testing.T) {
	tests := []struct {
		native gpucore.Size
		scale  float32
		want   gpucore.Size
	}{
		{gpucore.Size{Width: 1920, Height: 1080}, 1.3, gpucore.Size{Width: 1476, Height: 830}},
		{gpucore.Size{Width: 1920, Height: 1080}, 2, gpucore.Size{Width: 960, Height: 540}},
		{gpucore.Size{Width: 1280, Height: 720}, 1.5, gpucore.Size{Width: 853, Height: 480}},
		{gpucore.Size{Width: 1, Height: 1}, 2, gpucore.Size{Width: 1, Height: 1}},
		{gpucore.Size{Width: 3, Height: 1}, 1.7, gpucore.Size{Width: 1, Height: 1}},
	}
	for _, tt := range tests {
		if got := LowResolution(tt.native, tt.scale); got != tt.want {
			t.Errorf("LowResolution(%v, %v) = %v, want %v", tt.native, tt.scale, got, tt.want)
		}
	}
}

func TestRenderFrameSkipsCleanRaymarch(t *testing.T) {
	p, bus, _ := newPipeline(t)
	bus.BufferUpdated.Publish(sphereBuffer())

	for i := 0; i < 3; i++ {
		if err := p.RenderFrame(64, 36); err != nil {
			t.Fatalf("RenderFrame() #%d error = %v", i, err)
		}
	}
	got := p.Stats()
	if got.Raymarches != 1 {
		t.Errorf("Raymarches = %d, want 1", got.Raymarches)
	}
	if got.Upsamples != 3 || got.Sharpens != 3 {
		t.Errorf("Upsamples, Sharpens = %d, %d, want 3, 3", got.Upsamples, got.Sharpens)
	}
	if got.Recreations != 1 {
		t.Errorf("Recreations = %d, want 1", got.Recreations)
	}
	if us := p.UpscaleStats(); us.EASUInits != 1 || us.RCASInits != 1 {
		t.Errorf("UpscaleStats() = %+v, want one init each", us)
	}
	if p.LowSize() != (gpucore.Size{Width: 49, Height: 27}) {
		t.Errorf("LowSize() = %v, want 49x27", p.LowSize())
	}
}

func TestRenderFrameDirtySources(t *testing.T) {
	tests := []struct {
		name   string
		change func(p *Pipeline, bus *event.Bus)
		want   bool
	}{
		{"nothing", func(*Pipeline, *event.Bus) {}, false},
		{"buffer", func(_ *Pipeline, bus *event.Bus) { bus.BufferUpdated.Publish(sphereBuffer()) }, true},
		{"light", func(_ *Pipeline, bus *event.Bus) { bus.LightChanged.Publish(prim.DefaultLight()) }, true},
		{"camera", func(p *Pipeline, _ *event.Bus) {
			c := p.Camera()
			c.Yaw += 0.1
			p.SetCamera(c)
		}, true},
		{"same camera", func(p *Pipeline, _ *event.Bus) { p.SetCamera(p.Camera()) }, false},
		{"reflection count", func(p *Pipeline, _ *event.Bus) {
			s := p.Settings()
			s.ReflectionCount = 1
			p.SetSettings(s)
		}, true},
		{"ao within epsilon", func(p *Pipeline, _ *event.Bus) {
			s := p.Settings()
			s.AOIntensity += 0.005
			p.SetSettings(s)
		}, false},
		{"ao beyond epsilon", func(p *Pipeline, _ *event.Bus) {
			s := p.Settings()
			s.AOIntensity += 0.05
			p.SetSettings(s)
		}, true},
		{"fov within epsilon", func(p *Pipeline, _ *event.Bus) {
			s := p.Settings()
			s.FOV += 0.005
			p.SetSettings(s)
		}, false},
		{"sharpness", func(p *Pipeline, _ *event.Bus) {
			s := p.Settings()
			s.Sharpness = 1
			p.SetSettings(s)
		}, false},
		{"aa samples", func(p *Pipeline, _ *event.Bus) {
			s := p.Settings()
			s.AASamples = 2
			p.SetSettings(s)
		}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, bus, _ := newPipeline(t)
			if err := p.RenderFrame(32, 32); err != nil {
				t.Fatalf("RenderFrame() error = %v", err)
			}
			tt.change(p, bus)
			if got := p.Dirty(); got != tt.want {
				t.Errorf("Dirty() = %v, want %v", got, tt.want)
			}
			before := p.Stats().Raymarches
			if err := p.RenderFrame(32, 32); err != nil {
				t.Fatalf("RenderFrame() error = %v", err)
			}
			if got := p.Stats().Raymarches - before; got != btoi(tt.want) {
				t.Errorf("raymarches = %d, want %d", got, btoi(tt.want))
			}
		})
	}
}

func btoi(b bool) int {
	if b {
		return 1
	}
	return 0
}

func TestScaleChangeRecreates(t *testing.T) {
	p, _, _ := newPipeline(t)
	if err := p.RenderFrame(100, 100); err != nil {
		t.Fatal(err)
	}
	s := p.Settings()
	s.Scale = 1.305
	p.SetSettings(s)
	if err := p.RenderFrame(100, 100); err != nil {
		t.Fatal(err)
	}
	if got := p.Stats().Recreations; got != 1 {
		t.Errorf("Recreations after scale change within epsilon = %d, want 1", got)
	}
	if got := p.Settings().Scale; got != 1.3 {
		t.Errorf("Settings().Scale = %v, want 1.3 kept", got)
	}

	s.Scale = 2
	p.SetSettings(s)
	if err := p.RenderFrame(100, 100); err != nil {
		t.Fatal(err)
	}
	if got := p.Stats().Recreations; got != 2 {
		t.Errorf("Recreations after scale change = %d, want 2", got)
	}
	if got := p.LowSize(); got != (gpucore.Size{Width: 50, Height: 50}) {
		t.Errorf("LowSize() = %v, want 50x50", got)
	}
	if got := p.UpscaleStats().EASUInits; got != 2 {
		t.Errorf("EASUInits = %d, want 2", got)
	}

	if err := p.RenderFrame(120, 100); err != nil {
		t.Fatal(err)
	}
	if got := p.Stats().Recreations; got != 3 {
		t.Errorf("Recreations after resize = %d, want 3", got)
	}
}

func TestFillPass(t *testing.T) {
	tests := []struct {
		scale  float32
		cutoff float32
		fills  int
	}{
		{1.3, 0.9, 1}, // quality 0.77
		{1.3, 0.5, 0},
		{2.0, 0.9, 1},
	}
	for _, tt := range tests {
		s := DefaultSettings()
		s.Scale, s.QualityCutoff = tt.scale, tt.cutoff
		p, _, _ := newPipeline(t, WithSettings(s))
		if err := p.RenderFrame(16, 16); err != nil {
			t.Fatal(err)
		}
		if got := p.Stats().Fills; got != tt.fills {
			t.Errorf("Fills(scale=%v, cutoff=%v) = %d, want %d", tt.scale, tt.cutoff, got, tt.fills)
		}
	}
}

func TestAllocationFailureFallsBack(t *testing.T) {
	target := NewPixmapTarget(40, 20)
	p, bus, a := newPipeline(t, WithTarget(target))
	bus.BufferUpdated.Publish(sphereBuffer())
	if err := p.RenderFrame(40, 20); err != nil {
		t.Fatalf("RenderFrame() error = %v", err)
	}
	good := p.LastFrame()
	if good == nil {
		t.Fatal("LastFrame() = nil after a good frame")
	}
	target.Clear(color.RGBA{R: 255, A: 255})

	a.failing.Store(true)
	err := p.RenderFrame(80, 40)
	if !errors.Is(err, ErrResourceAllocation) {
		t.Fatalf("RenderFrame() error = %v, want ErrResourceAllocation", err)
	}
	if !errors.Is(err, gpucore.ErrAllocation) {
		t.Errorf("RenderFrame() error = %v, should wrap gpucore.ErrAllocation", err)
	}
	if p.LastFrame() != good {
		t.Error("LastFrame() changed after failed frame")
	}
	if got := target.Image().RGBAAt(0, 0); got != good.RGBAAt(0, 0) {
		t.Errorf("target pixel = %v, want last good frame %v", got, good.RGBAAt(0, 0))
	}
	if got := p.Stats().Fallbacks; got != 1 {
		t.Errorf("Fallbacks = %d, want 1", got)
	}

	a.failing.Store(false)
	if err := p.RenderFrame(80, 40); err != nil {
		t.Fatalf("RenderFrame() after recovery error = %v", err)
	}
	if b := p.LastFrame().Bounds(); b.Dx() != 80 || b.Dy() != 40 {
		t.Errorf("LastFrame() bounds = %v, want 80x40", b)
	}
}

func TestFailedSubmitReinitialisesConstants(t *testing.T) {
	p, bus, a := newPipeline(t)
	bus.BufferUpdated.Publish(sphereBuffer())
	if err := p.RenderFrame(40, 20); err != nil {
		t.Fatalf("RenderFrame() error = %v", err)
	}

	a.dropping.Store(true)
	if err := p.RenderFrame(80, 40); !errors.Is(err, errSubmit) {
		t.Fatalf("RenderFrame() error = %v, want %v", err, errSubmit)
	}
	a.dropping.Store(false)
	if err := p.RenderFrame(80, 40); err != nil {
		t.Fatalf("RenderFrame() after failed submit error = %v", err)
	}

	st := p.UpscaleStats()
	if st.EASUInits != 3 {
		t.Errorf("EASUInits = %d, want 3", st.EASUInits)
	}
	if st.RCASInits != 3 {
		t.Errorf("RCASInits = %d, want 3", st.RCASInits)
	}
	if got := p.Stats().Fallbacks; got != 1 {
		t.Errorf("Fallbacks = %d, want 1", got)
	}
}

func TestDeviceLostPassesThrough(t *testing.T) {
	p, _, a := newPipeline(t)
	a.Lose()
	if err := p.RenderFrame(16, 16); !errors.Is(err, gpucore.ErrDeviceLost) || errors.Is(err, ErrResourceAllocation) {
		t.Errorf("RenderFrame() error = %v, want bare ErrDeviceLost", err)
	}
	if got := p.Stats().Fallbacks; got != 0 {
		t.Errorf("Fallbacks = %d, want 0", got)
	}
}

func TestEnableDisable(t *testing.T) {
	p, bus, _ := newPipeline(t, WithDisabled())
	if p.Enabled() || bus.BufferUpdated.Len() != 0 {
		t.Fatal("pipeline subscribed despite WithDisabled")
	}
	p.Enable()
	p.Enable()
	if bus.BufferUpdated.Len() != 1 || bus.LightChanged.Len() != 1 {
		t.Errorf("subscriptions = %d/%d, want 1/1", bus.BufferUpdated.Len(), bus.LightChanged.Len())
	}
	p.Disable()
	if bus.BufferUpdated.Len() != 0 || bus.LightChanged.Len() != 0 {
		t.Errorf("subscriptions after Disable = %d/%d, want 0/0", bus.BufferUpdated.Len(), bus.LightChanged.Len())
	}
	if err := p.RenderFrame(8, 8); err != nil {
		t.Fatal(err)
	}
	bus.BufferUpdated.Publish(sphereBuffer())
	if p.Dirty() {
		t.Error("disabled pipeline reacted to BufferUpdated")
	}
	p.Enable()
	p.Close()
	if bus.BufferUpdated.Len() != 0 {
		t.Error("Close() left a subscription")
	}
	if err := p.RenderFrame(8, 8); !errors.Is(err, ErrClosed) {
		t.Errorf("RenderFrame() after Close error = %v, want ErrClosed", err)
	}
}

func TestCloseReleasesBuffers(t *testing.T) {
	a := software.New(software.WithWorkers(1))
	defer a.Close()
	p, err := New(a, event.NewBus())
	if err != nil {
		t.Fatal(err)
	}
	if err := p.RenderFrame(32, 32); err != nil {
		t.Fatal(err)
	}
	p.Close()
	p.Close()
	if got := a.Stats().Buffers; got != 0 {
		t.Errorf("live buffers after Close = %d, want 0", got)
	}
}

func TestInvalidSize(t *testing.T) {
	p, _, _ := newPipeline(t)
	if err := p.RenderFrame(0, 10); !errors.Is(err, ErrInvalidSize) {
		t.Errorf("RenderFrame(0, 10) error = %v, want ErrInvalidSize", err)
	}
}
