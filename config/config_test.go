package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gogpu/spheray/prim"
	"github.com/gogpu/spheray/render"
)

const sampleTOML = `
backend = "cpu"
save_dir = "scenes"

[render]
scale = 1.5
sharpness = 0.5
reflections = 1
reflection_intensity = 0.25
background = [10, 20, 30]

[light]
position = [1.0, 5.0, 2.0]
intensity = 2.0

[primitive]
shape = "torus"
bevel = 0.1
`

const sampleYAML = `
backend: gpu
preset: balanced
render:
  sharpening: false
  aa_samples: 4
camera:
  position: [0.0, 2.0, 8.0]
  target: [0.0, 0.0, 0.0]
`

func TestParseTOML(t *testing.T) {
	c, err := Parse([]byte(sampleTOML), "toml")
	require.NoError(t, err)

	assert.Equal(t, BackendCPU, c.Backend)
	assert.Equal(t, "scenes", c.SaveDir)
	assert.InDelta(t, 1.5, c.Render.Scale, 1e-6)
	assert.Equal(t, 1, c.Render.Reflections)
	assert.Equal(t, [3]uint8{10, 20, 30}, c.Render.Background)
	// untouched fields keep their defaults
	assert.Equal(t, Default().Render.FOV, c.Render.FOV)
	assert.True(t, c.Render.Sharpening)

	l := c.PointLight()
	assert.Equal(t, mgl32.Vec3{1, 5, 2}, l.Position)
	assert.InDelta(t, 2, l.Intensity, 1e-6)
	assert.Equal(t, prim.Torus, c.SpawnShape())

	s := c.Settings()
	assert.InDelta(t, 0.5, s.Sharpness, 1e-6)
	assert.Equal(t, uint8(255), s.Background.A)
}

func TestParseYAML(t *testing.T) {
	c, err := Parse([]byte(sampleYAML), "yaml")
	require.NoError(t, err)

	assert.Equal(t, BackendGPU, c.Backend)
	assert.InDelta(t, Balanced.Scale(), c.Render.Scale, 1e-6)
	assert.False(t, c.Render.Sharpening)
	assert.Equal(t, 4, c.Render.AASamples)

	cam := c.StartCamera()
	assert.Equal(t, mgl32.Vec3{0, 2, 8}, cam.Position)
	fwd := cam.Forward()
	want := mgl32.Vec3{0, -2, -8}.Normalize()
	assert.InDelta(t, 0, fwd.Sub(want).Len(), 1e-4)
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		name   string
		data   string
		format string
		err    error
	}{
		{"unknown format", "", "ini", ErrUnknownFormat},
		{"bad backend", `backend = "metal"`, "toml", ErrInvalid},
		{"bad preset", `preset = "cinematic"`, "toml", ErrInvalid},
		{"bad shape", "primitive:\n  shape: cone\n", "yaml", ErrInvalid},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.data), tt.format)
			assert.ErrorIs(t, err, tt.err)
		})
	}

	_, err := Parse([]byte("[render]\nscael = 2.0\n"), "toml")
	assert.Error(t, err, "unknown keys are rejected")
	_, err = Parse([]byte("render: [1, 2"), "yaml")
	assert.Error(t, err)
}

func TestValidateClamps(t *testing.T) {
	c := Default()
	c.Backend = " CPU "
	c.Render.Scale = 9
	c.Render.Sharpness = -1
	c.Render.Reflections = 7
	c.Render.ReflectionIntensity = 3
	c.Render.AOIntensity = -2
	c.Render.AASamples = 0
	c.Primitive.Bevel = 1
	c.Primitive.Smoothing = 4
	c.Primitive.Size = [3]float32{0, -1, 2}
	require.NoError(t, c.Validate())

	assert.Equal(t, BackendCPU, c.Backend)
	assert.InDelta(t, 2, c.Render.Scale, 1e-6)
	assert.InDelta(t, 0, c.Render.Sharpness, 1e-6)
	assert.Equal(t, 2, c.Render.Reflections)
	assert.InDelta(t, 1, c.Render.ReflectionIntensity, 1e-6)
	assert.InDelta(t, 0, c.Render.AOIntensity, 1e-6)
	assert.Equal(t, 1, c.Render.AASamples)
	assert.InDelta(t, prim.MaxBevel, c.Primitive.Bevel, 1e-6)
	assert.InDelta(t, prim.MaxSmoothing, c.Primitive.Smoothing, 1e-6)
	assert.Equal(t, [3]float32{0.01, 0.01, 2}, c.Primitive.Size)
}

func TestDefaultMatchesRenderDefaults(t *testing.T) {
	c := Default()
	require.NoError(t, c.Validate())
	assert.Equal(t, render.DefaultSettings(), c.Settings())
	assert.Equal(t, prim.DefaultLight(), c.PointLight())
}

func TestPresets(t *testing.T) {
	tests := []struct {
		in    string
		want  Preset
		scale float32
	}{
		{"ultra", UltraQuality, 1.3},
		{"Ultra Quality", UltraQuality, 1.3},
		{"quality", Quality, 1.5},
		{"BALANCED", Balanced, 1.7},
		{"performance", Performance, 2.0},
		{"ultra-quality", UltraQuality, 1.3},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			p, err := ParsePreset(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, p)
			assert.InDelta(t, tt.scale, p.Scale(), 1e-6)
		})
	}
	assert.Equal(t, "balanced", Balanced.String())
	_, err := ParsePreset("max")
	assert.ErrorIs(t, err, ErrInvalid)
}

func TestSaveLoad(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"spheray.toml", "spheray.yaml"} {
		t.Run(name, func(t *testing.T) {
			c := Default()
			c.Backend = BackendCPU
			c.Render.Sharpness = 1.25
			c.Light.Color = [3]float32{1, 0.5, 0.25}
			c.Primitive.Shape = "HexPrism"

			path := filepath.Join(dir, name)
			require.NoError(t, Save(path, c))
			got, err := Load(path)
			require.NoError(t, err)
			assert.Equal(t, c, got)
		})
	}
	assert.ErrorIs(t, Save(filepath.Join(dir, "x.json"), Default()), ErrUnknownFormat)
	_, err := Load(filepath.Join(dir, "missing.toml"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestWatch(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "spheray.toml")
	require.NoError(t, os.WriteFile(path, []byte("[render]\nscale = 1.3\n"), 0o644))

	w, err := NewWatcher(path)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	got := make(chan *Config, 16)
	done := make(chan error, 1)
	go func() {
		done <- w.Run(ctx, func(c *Config, err error) {
			if err == nil {
				got <- c
			}
		})
	}()

	require.NoError(t, os.WriteFile(filepath.Join(dir, "other.toml"), []byte("x = 1\n"), 0o644))
	require.NoError(t, os.WriteFile(path, []byte("[render]\nscale = 1.9\n"), 0o644))

	timeout := time.After(5 * time.Second)
	for {
		select {
		case c := <-got:
			if c.Render.Scale > 1.8 {
				cancel()
				require.NoError(t, <-done)
				return
			}
		case <-timeout:
			t.Fatal("no reload after write")
		}
	}
}
