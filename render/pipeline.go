// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

package render

import (
	"errors"
	"fmt"
	"image"
	"sync"

	"github.com/chewxy/math32"
	"github.com/go-gl/mathgl/mgl32"

	"github.com/gogpu/spheray/event"
	"github.com/gogpu/spheray/gpucore"
	"github.com/gogpu/spheray/internal/kernels"
	"github.com/gogpu/spheray/prim"
	"github.com/gogpu/spheray/upscale"
)

var (
	// ErrResourceAllocation reports an intermediate image or buffer that
	// could not be allocated. The last good frame was presented instead.
	ErrResourceAllocation = errors.New("render: resource allocation failed")

	// ErrClosed is returned by RenderFrame after Close.
	ErrClosed = errors.New("render: pipeline closed")

	// ErrInvalidSize reports a non-positive native size.
	ErrInvalidSize = errors.New("render: invalid frame size")

	// ErrUnsupportedFormat reports a target format Present cannot write.
	ErrUnsupportedFormat = errors.New("render: unsupported target format")

	// ErrNoTarget reports a target without pixels.
	ErrNoTarget = errors.New("render: target has no pixels")
)

// Stats counts pipeline activity.
type Stats struct {
	Frames      int
	Raymarches  int
	Upsamples   int
	Sharpens    int
	Recreations int
	Fills       int
	Fallbacks   int
}

// LowResolution returns the raymarch resolution for a native size:
// floor(native/scale), at least 1x1.
func LowResolution(native gpucore.Size, scale float32) gpucore.Size {
	return gpucore.Size{
		Width:  max(int(float32(native.Width)/scale), 1),
		Height: max(int(float32(native.Height)/scale), 1),
	}
}

// Pipeline renders frames. It is safe for concurrent use; frames are
// serialised.
type Pipeline struct {
	mu      sync.Mutex
	adapter gpucore.GPUAdapter
	bus     *event.Bus
	target  Target

	settings   Settings
	camera     Camera
	camToWorld mgl32.Mat4
	light      prim.Light
	buffer     prim.Buffer

	raymarch  *kernels.Compiled
	stage     *upscale.Stage
	params    gpucore.BufferID
	prims     gpucore.BufferID
	primsSize int
	group     gpucore.BindGroupID

	low, up, sharp gpucore.Image
	native         gpucore.Size
	imageScale     float32

	dirty       bool
	upload      bool
	fillPending bool
	last        *image.RGBA

	onBuffer *event.Handler[prim.Buffer]
	onLight  *event.Handler[prim.Light]
	enabled  bool
	closed   bool
	stats    Stats
}

// New creates a pipeline on adapter listening to bus.
func New(adapter gpucore.GPUAdapter, bus *event.Bus, opts ...Option) (*Pipeline, error) {
	if !adapter.SupportsCompute() {
		return nil, errors.New("render: adapter does not support compute")
	}
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	p := &Pipeline{
		adapter:  adapter,
		bus:      bus,
		target:   o.target,
		settings: o.settings.Clamp(),
		camera:   o.camera,
		light:    o.light,
		buffer:   prim.NewBuffer(nil),
		dirty:    true,
	}
	p.camToWorld = p.camera.CamToWorld()
	p.onBuffer = event.Func(p.bufferUpdated)
	p.onLight = event.Func(p.lightChanged)

	if err := p.init(); err != nil {
		p.Close()
		return nil, err
	}
	if o.enabled {
		p.Enable()
	}
	slogger().Info("render pipeline created", "scale", p.settings.Scale, "sharpening", p.settings.Sharpening)
	return p, nil
}

func (p *Pipeline) init() error {
	var err error
	if p.raymarch, err = kernels.Compile(p.adapter, kernels.Raymarch); err != nil {
		return err
	}
	if p.stage, err = upscale.New(p.adapter); err != nil {
		return err
	}
	if p.params, err = p.adapter.CreateBuffer(kernels.RaymarchParamsSize, gpucore.BufferUsageUniform|gpucore.BufferUsageCopyDst); err != nil {
		return fmt.Errorf("raymarch params: %w", err)
	}
	return p.ensurePrimsLocked(prim.PrimitiveStride)
}

// ensurePrimsLocked grows the primitive buffer to hold size bytes. The old
// buffer is released before the new one is allocated.
func (p *Pipeline) ensurePrimsLocked(size int) error {
	if p.prims != gpucore.InvalidID && size <= p.primsSize {
		return nil
	}
	p.releaseGroupLocked()
	if p.prims != gpucore.InvalidID {
		p.adapter.DestroyBuffer(p.prims)
		p.prims, p.primsSize = gpucore.InvalidID, 0
	}
	size = max(size, prim.MaxPrimitives*prim.PrimitiveStride)
	id, err := p.adapter.CreateBuffer(size, gpucore.BufferUsageStorage|gpucore.BufferUsageCopyDst)
	if err != nil {
		return fmt.Errorf("primitive buffer: %w", err)
	}
	p.prims, p.primsSize = id, size
	return nil
}

func (p *Pipeline) releaseGroupLocked() {
	if p.group != gpucore.InvalidID {
		p.adapter.DestroyBindGroup(p.group)
		p.group = gpucore.InvalidID
	}
}

// Enable subscribes to BufferUpdated and LightChanged.
func (p *Pipeline) Enable() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.enabled || p.closed || p.bus == nil {
		return
	}
	p.bus.BufferUpdated.Subscribe(p.onBuffer)
	p.bus.LightChanged.Subscribe(p.onLight)
	p.enabled = true
}

// Disable unsubscribes from the bus. Frames keep rendering the last
// received buffer and light.
func (p *Pipeline) Disable() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.disableLocked()
}

func (p *Pipeline) disableLocked() {
	if !p.enabled {
		return
	}
	p.bus.BufferUpdated.Unsubscribe(p.onBuffer)
	p.bus.LightChanged.Unsubscribe(p.onLight)
	p.enabled = false
}

// Enabled reports whether the pipeline listens to the bus.
func (p *Pipeline) Enabled() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.enabled
}

func (p *Pipeline) bufferUpdated(b prim.Buffer) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.buffer = b
	p.upload = true
	p.dirty = true
}

func (p *Pipeline) lightChanged(l prim.Light) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.light = l
	p.dirty = true
}

// Settings returns the applied settings.
func (p *Pipeline) Settings() Settings {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.settings
}

// SetSettings applies s after clamping. Changes within a field's epsilon
// are ignored and leave the previous value in place.
func (p *Pipeline) SetSettings(s Settings) {
	p.mu.Lock()
	defer p.mu.Unlock()
	next, d := apply(p.settings, s.Clamp())
	p.settings = next
	if d.shader || d.scale {
		p.dirty = true
	}
}

// Camera returns the current camera.
func (p *Pipeline) Camera() Camera {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.camera
}

// SetCamera moves the camera. Any transform change recomputes the
// camera-to-world matrix and marks the raymarch pass dirty.
func (p *Pipeline) SetCamera(c Camera) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if c == p.camera {
		return
	}
	p.camera = c
	p.camToWorld = c.CamToWorld()
	p.dirty = true
}

// Dirty reports whether the next frame raymarches.
func (p *Pipeline) Dirty() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.dirty
}

// Stats returns the activity counters.
func (p *Pipeline) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stats
}

// UpscaleStats returns the upscale stage counters.
func (p *Pipeline) UpscaleStats() upscale.Stats {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.stage == nil {
		return upscale.Stats{}
	}
	return p.stage.Stats()
}

// LastFrame returns the last successfully rendered frame, or nil. The image
// is not modified afterwards.
func (p *Pipeline) LastFrame() *image.RGBA {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.last
}

// LowSize returns the size of the current raymarch image.
func (p *Pipeline) LowSize() gpucore.Size {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.low.Size
}

// RenderFrame renders one frame at the native size and presents it.
func (p *Pipeline) RenderFrame(width, height int) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return ErrClosed
	}
	native := gpucore.Size{Width: width, Height: height}
	if native.Empty() {
		return fmt.Errorf("%w: %v", ErrInvalidSize, native)
	}

	if err := p.prepareLocked(native); err != nil {
		return p.failLocked(err)
	}

	pass := p.adapter.BeginComputePass()
	raymarched := p.dirty
	if raymarched {
		if err := p.recordRaymarchLocked(pass); err != nil {
			pass.End()
			return p.failLocked(err)
		}
	}
	if err := p.stage.Upsample(pass, p.low, p.up); err != nil {
		pass.End()
		return p.failLocked(err)
	}
	final := p.up
	if p.settings.Sharpening {
		if err := p.stage.Sharpen(pass, p.up, p.sharp, p.settings.Sharpness); err != nil {
			pass.End()
			return p.failLocked(err)
		}
		final = p.sharp
	}
	pass.End()
	if err := p.adapter.Submit(); err != nil {
		return p.failLocked(err)
	}

	if raymarched {
		p.dirty = false
		p.stats.Raymarches++
	}
	p.stats.Upsamples++
	if p.settings.Sharpening {
		p.stats.Sharpens++
	}

	data, err := p.adapter.ReadBuffer(final.Buffer, 0, uint64(final.ByteSize())) //nolint:gosec // positive size
	if err != nil {
		return p.failLocked(err)
	}
	p.last = kernels.ToRGBA(data, final.Size)
	p.stats.Frames++
	slogger().Debug("frame rendered", "native", native, "low", p.low.Size, "raymarched", raymarched)
	return p.presentLocked()
}

// prepareLocked recreates images when the size or scale changed, then
// uploads a pending primitive buffer.
func (p *Pipeline) prepareLocked(native gpucore.Size) error {
	low := LowResolution(native, p.settings.Scale)
	recreate := !p.low.Valid() || !p.up.Valid() ||
		low != p.low.Size || native != p.native ||
		changed(p.imageScale, p.settings.Scale, ScaleEpsilon) ||
		(p.settings.Sharpening && !p.sharp.Valid())
	if recreate {
		if err := p.recreateLocked(native, low); err != nil {
			return err
		}
	} else if p.fillPending {
		p.fillLocked()
	}

	if p.upload {
		data := p.buffer.Bytes()
		if err := p.ensurePrimsLocked(len(data)); err != nil {
			return err
		}
		p.adapter.WriteBuffer(p.prims, 0, data)
		p.upload = false
	}
	return nil
}

func (p *Pipeline) recreateLocked(native, low gpucore.Size) error {
	p.releaseImagesLocked()

	var err error
	if p.low, err = gpucore.CreateImage(p.adapter, low); err != nil {
		p.releaseImagesLocked()
		return err
	}
	if p.up, err = gpucore.CreateImage(p.adapter, native); err != nil {
		p.releaseImagesLocked()
		return err
	}
	if p.settings.Sharpening {
		if p.sharp, err = gpucore.CreateImage(p.adapter, native); err != nil {
			p.releaseImagesLocked()
			return err
		}
	}
	p.native = native
	p.imageScale = p.settings.Scale
	p.stage.Configure(low, low, native)
	p.dirty = true
	p.stats.Recreations++
	p.fillPending = p.settings.Quality() < p.settings.QualityCutoff
	if p.fillPending {
		p.fillLocked()
	}
	slogger().Debug("render images recreated", "native", native, "low", low, "scale", p.imageScale)
	return nil
}

// fillLocked clears the native images to the background colour.
func (p *Pipeline) fillLocked() {
	v := kernels.Pack(p.settings.Background)
	data := make([]byte, p.native.Pixels()*4)
	for i := 0; i < len(data); i += 4 {
		data[i], data[i+1], data[i+2], data[i+3] = byte(v), byte(v>>8), byte(v>>16), byte(v>>24)
	}
	for _, img := range []gpucore.Image{p.up, p.sharp} {
		if img.Valid() {
			p.adapter.WriteBuffer(img.Buffer, 0, data)
		}
	}
	p.fillPending = false
	p.stats.Fills++
}

func (p *Pipeline) releaseImagesLocked() {
	p.stage.Release()
	p.releaseGroupLocked()
	gpucore.DestroyImage(p.adapter, &p.low)
	gpucore.DestroyImage(p.adapter, &p.up)
	gpucore.DestroyImage(p.adapter, &p.sharp)
	p.native = gpucore.Size{}
}

func (p *Pipeline) recordRaymarchLocked(pass gpucore.ComputePassEncoder) error {
	s := p.settings
	low := p.low.Size
	params := kernels.RaymarchParams{
		CamToWorld:          p.camToWorld,
		Light:               p.light,
		MaxDist:             kernels.MaxDistance,
		Epsilon:             kernels.Epsilon,
		MaxSteps:            kernels.MaxSteps,
		NumPrimitives:       uint32(p.buffer.Len()),     //nolint:gosec // at most MaxPrimitives
		ReflectionCount:     uint32(s.ReflectionCount), //nolint:gosec // clamped
		ReflectionIntensity: s.ReflectionIntensity,
		AOIntensity:         s.AOIntensity,
		AASamples:           uint32(s.AASamples), //nolint:gosec // clamped
		Width:               uint32(low.Width),   //nolint:gosec // positive
		Height:              uint32(low.Height),  //nolint:gosec // positive
		TanHalfFOV:          math32.Tan(mgl32.DegToRad(s.FOV) / 2),
		Aspect:              float32(low.Width) / float32(low.Height),
	}
	p.adapter.WriteBuffer(p.params, 0, params.Bytes())
	if p.group == gpucore.InvalidID {
		g, err := p.raymarch.BindGroup(p.params, p.prims, p.low.Buffer)
		if err != nil {
			return err
		}
		p.group = g
	}
	p.raymarch.Record(pass, p.group, low)
	return nil
}

// failLocked classifies err, presents the last good frame and returns the
// error the caller sees.
func (p *Pipeline) failLocked(err error) error {
	if errors.Is(err, gpucore.ErrDeviceLost) {
		slogger().Error("render device lost", "err", err)
		return err
	}
	p.stats.Fallbacks++
	// Init kernels recorded this frame may never have run.
	if p.stage != nil {
		p.stage.Invalidate()
	}
	if perr := p.presentLocked(); perr != nil {
		slogger().Warn("present last frame", "err", perr)
	}
	if errors.Is(err, gpucore.ErrAllocation) {
		slogger().Warn("render allocation failed, showing last frame", "err", err)
		return fmt.Errorf("%w: %w", ErrResourceAllocation, err)
	}
	slogger().Warn("render frame failed, showing last frame", "err", err)
	return err
}

func (p *Pipeline) presentLocked() error {
	if p.target == nil || p.last == nil {
		return nil
	}
	return Present(p.target, p.last)
}

// Close unsubscribes and releases every adapter object. It is safe to call
// more than once.
func (p *Pipeline) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return
	}
	p.closed = true
	p.disableLocked()
	if p.stage != nil {
		p.releaseImagesLocked()
		p.stage.Close()
	}
	p.releaseGroupLocked()
	for _, b := range []*gpucore.BufferID{&p.params, &p.prims} {
		if *b != gpucore.InvalidID {
			p.adapter.DestroyBuffer(*b)
			*b = gpucore.InvalidID
		}
	}
	p.raymarch.Destroy()
	slogger().Info("render pipeline closed")
}
