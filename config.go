package spheray

import (
	"github.com/gogpu/spheray/config"
	"github.com/gogpu/spheray/persist"
)

// ConfigOptions translates c into engine options. When c names a save
// directory it is opened (and created) on the OS filesystem.
func ConfigOptions(c *config.Config) ([]Option, error) {
	opts := []Option{
		WithBackend(Backend(c.Backend)),
		WithSettings(c.Settings()),
		WithCamera(c.StartCamera()),
		WithLight(c.PointLight()),
		WithLightFollowsCamera(c.LightFollowsCamera),
		WithSpawnDefaults(c.SpawnShape(), c.Primitive.Size, c.Primitive.Bevel, c.Primitive.Smoothing),
	}
	if c.SaveDir != "" {
		s, err := persist.OpenDir(c.SaveDir)
		if err != nil {
			return nil, err
		}
		opts = append(opts, WithStore(s))
	}
	return opts, nil
}

// Reconfigure applies the live-tunable parts of c: render settings, light
// and light following. Camera and backend are only read at creation.
func (e *Engine) Reconfigure(c *config.Config) {
	e.pipeline.SetSettings(c.Settings())
	e.lights.Set(c.PointLight())
	e.SetLightFollowsCamera(c.LightFollowsCamera)
}
