// Package config loads the file-level configuration of a spheray host:
// render settings, light, starting camera, spawn defaults, save directory
// and backend choice.
//
// Files are TOML or YAML, chosen by extension. Fields absent from a file
// keep their Default value, and Validate clamps numeric fields into range.
package config

import (
	"errors"
	"fmt"
	"image/color"
	"strings"

	"github.com/go-gl/mathgl/mgl32"

	"github.com/gogpu/spheray/prim"
	"github.com/gogpu/spheray/render"
	"github.com/gogpu/spheray/upscale"
)

// Backend names accepted in Config.Backend.
const (
	BackendAuto = "auto"
	BackendCPU  = "cpu"
	BackendGPU  = "gpu"
)

var (
	// ErrUnknownFormat is returned for a file extension other than .toml,
	// .yaml or .yml.
	ErrUnknownFormat = errors.New("config: unknown file format")

	// ErrInvalid wraps every validation failure.
	ErrInvalid = errors.New("config: invalid value")
)

// Config is the whole configuration file.
type Config struct {
	// Backend is auto, cpu or gpu. Auto tries the GPU and falls back to
	// the CPU adapter.
	Backend string `toml:"backend" yaml:"backend"`

	// Preset, when set, overrides Render.Scale with the preset's scale.
	Preset string `toml:"preset,omitempty" yaml:"preset,omitempty"`

	SaveDir string `toml:"save_dir" yaml:"save_dir"`

	// LightFollowsCamera moves the light to the camera every tick.
	LightFollowsCamera bool `toml:"light_follows_camera" yaml:"light_follows_camera"`

	Render    Render    `toml:"render" yaml:"render"`
	Light     Light     `toml:"light" yaml:"light"`
	Camera    Camera    `toml:"camera" yaml:"camera"`
	Primitive Primitive `toml:"primitive" yaml:"primitive"`
}

// Render mirrors render.Settings with file-friendly types.
type Render struct {
	FOV                 float32  `toml:"fov" yaml:"fov"`
	Scale               float32  `toml:"scale" yaml:"scale"`
	Sharpening          bool     `toml:"sharpening" yaml:"sharpening"`
	Sharpness           float32  `toml:"sharpness" yaml:"sharpness"`
	Reflections         int      `toml:"reflections" yaml:"reflections"`
	ReflectionIntensity float32  `toml:"reflection_intensity" yaml:"reflection_intensity"`
	AOIntensity         float32  `toml:"ao_intensity" yaml:"ao_intensity"`
	AASamples           int      `toml:"aa_samples" yaml:"aa_samples"`
	QualityCutoff       float32  `toml:"quality_cutoff" yaml:"quality_cutoff"`
	Background          [3]uint8 `toml:"background" yaml:"background,flow"`
}

// Light is the point light.
type Light struct {
	Position  [3]float32 `toml:"position" yaml:"position,flow"`
	Color     [3]float32 `toml:"color" yaml:"color,flow"`
	Intensity float32    `toml:"intensity" yaml:"intensity"`
}

// Camera is the starting view: an eye position looking at a target.
type Camera struct {
	Position [3]float32 `toml:"position" yaml:"position,flow"`
	Target   [3]float32 `toml:"target" yaml:"target,flow"`
}

// Primitive holds the defaults for newly spawned primitives.
type Primitive struct {
	Shape     string     `toml:"shape" yaml:"shape"`
	Size      [3]float32 `toml:"size" yaml:"size,flow"`
	Bevel     float32    `toml:"bevel" yaml:"bevel"`
	Smoothing float32    `toml:"smoothing" yaml:"smoothing"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	s := render.DefaultSettings()
	l := prim.DefaultLight()
	return &Config{
		Backend: BackendAuto,
		SaveDir: "saves",
		Render: Render{
			FOV:                 s.FOV,
			Scale:               s.Scale,
			Sharpening:          s.Sharpening,
			Sharpness:           s.Sharpness,
			Reflections:         s.ReflectionCount,
			ReflectionIntensity: s.ReflectionIntensity,
			AOIntensity:         s.AOIntensity,
			AASamples:           s.AASamples,
			QualityCutoff:       s.QualityCutoff,
			Background:          [3]uint8{s.Background.R, s.Background.G, s.Background.B},
		},
		Light: Light{
			Position:  l.Position,
			Color:     [3]float32{l.Color[0], l.Color[1], l.Color[2]},
			Intensity: l.Intensity,
		},
		Camera: Camera{
			Position: [3]float32{0, 1, 6},
		},
		Primitive: Primitive{
			Shape: prim.Sphere.String(),
			Size:  [3]float32{1, 1, 1},
		},
	}
}

// Validate checks the enumerated fields and clamps numeric ranges in place.
// A non-empty Preset sets Render.Scale.
func (c *Config) Validate() error {
	c.Backend = strings.ToLower(strings.TrimSpace(c.Backend))
	switch c.Backend {
	case "":
		c.Backend = BackendAuto
	case BackendAuto, BackendCPU, BackendGPU:
	default:
		return fmt.Errorf("%w: backend %q", ErrInvalid, c.Backend)
	}

	if c.Preset != "" {
		p, err := ParsePreset(c.Preset)
		if err != nil {
			return err
		}
		c.Render.Scale = p.Scale()
	}

	if _, err := prim.ParseShape(c.Primitive.Shape); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalid, err)
	}

	r := &c.Render
	r.FOV = clamp(r.FOV, 1, 179)
	r.Scale = clamp(r.Scale, upscale.MinScale, upscale.MaxScale)
	r.Sharpness = clamp(r.Sharpness, upscale.MinSharpness, upscale.MaxSharpness)
	r.Reflections = min(max(r.Reflections, 0), 2)
	r.ReflectionIntensity = clamp(r.ReflectionIntensity, 0, 1)
	r.AOIntensity = clamp(r.AOIntensity, 0, 1)
	r.AASamples = min(max(r.AASamples, 1), 8)
	r.QualityCutoff = clamp(r.QualityCutoff, 0, 1)

	c.Light.Intensity = max(c.Light.Intensity, 0)

	p := &c.Primitive
	p.Bevel = clamp(p.Bevel, 0, prim.MaxBevel)
	p.Smoothing = clamp(p.Smoothing, 0, prim.MaxSmoothing)
	for i := range p.Size {
		p.Size[i] = max(p.Size[i], 0.01)
	}
	return nil
}

// Settings converts the render section.
func (c *Config) Settings() render.Settings {
	r := c.Render
	return render.Settings{
		FOV:                 r.FOV,
		Scale:               r.Scale,
		Sharpening:          r.Sharpening,
		Sharpness:           r.Sharpness,
		ReflectionCount:     r.Reflections,
		ReflectionIntensity: r.ReflectionIntensity,
		AOIntensity:         r.AOIntensity,
		AASamples:           r.AASamples,
		QualityCutoff:       r.QualityCutoff,
		Background:          color.RGBA{R: r.Background[0], G: r.Background[1], B: r.Background[2], A: 255},
	}.Clamp()
}

// PointLight converts the light section.
func (c *Config) PointLight() prim.Light {
	l := c.Light
	return prim.Light{
		Position:  l.Position,
		Color:     mgl32.Vec4{l.Color[0], l.Color[1], l.Color[2], 1},
		Intensity: l.Intensity,
	}
}

// StartCamera converts the camera section. A target equal to the position
// gives a camera looking down -Z.
func (c *Config) StartCamera() render.Camera {
	eye := mgl32.Vec3(c.Camera.Position)
	target := mgl32.Vec3(c.Camera.Target)
	if eye.ApproxEqual(target) {
		return render.Camera{Position: eye}
	}
	return render.LookAt(eye, target)
}

// SpawnShape returns the shape for new primitives. It falls back to Sphere
// for a config that was not validated.
func (c *Config) SpawnShape() prim.Shape {
	s, err := prim.ParseShape(c.Primitive.Shape)
	if err != nil {
		return prim.Sphere
	}
	return s
}

func clamp(v, lo, hi float32) float32 {
	return min(max(v, lo), hi)
}
